package state

import (
	"fmt"
	"math/big"

	"deficore/crypto"
	nativecommon "deficore/native/common"
)

var (
	balancePrefix   = []byte("ledger/balance/")
	allowancePrefix = []byte("ledger/allowance/")
	supplyKey       = []byte("ledger/supply")
)

func balanceKey(addr crypto.Address) []byte {
	return append(append([]byte(nil), balancePrefix...), addr.Bytes()...)
}

func allowanceKey(owner, spender crypto.Address) []byte {
	key := append(append([]byte(nil), allowancePrefix...), owner.Bytes()...)
	key = append(key, '/')
	return append(key, spender.Bytes()...)
}

// AllowanceRecord is a spending allowance with an expiration height.
type AllowanceRecord struct {
	Amount           *big.Int
	ExpirationHeight uint64
}

// Balance returns the account balance, zero when the account is unknown.
func (m *Manager) Balance(addr crypto.Address) (*big.Int, error) {
	if addr.IsZero() {
		return nil, fmt.Errorf("ledger: address must not be empty")
	}
	amount := new(big.Int)
	if _, err := m.KVGet(balanceKey(addr), amount); err != nil {
		return nil, err
	}
	return amount, nil
}

func (m *Manager) setBalance(addr crypto.Address, amount *big.Int) error {
	if amount.Sign() < 0 {
		return fmt.Errorf("ledger: negative balance not allowed")
	}
	if amount.Sign() == 0 {
		return m.KVDelete(balanceKey(addr))
	}
	return m.KVPut(balanceKey(addr), amount)
}

// Debit removes amount from the account, failing when the balance is short.
func (m *Manager) Debit(addr crypto.Address, amount *big.Int) error {
	if err := nativecommon.RequireNonNegative(amount); err != nil {
		return err
	}
	if amount.Sign() == 0 {
		return nil
	}
	balance, err := m.Balance(addr)
	if err != nil {
		return err
	}
	if balance.Cmp(amount) < 0 {
		return nativecommon.ErrInsufficientBalance
	}
	return m.setBalance(addr, balance.Sub(balance, amount))
}

// Credit adds amount to the account.
func (m *Manager) Credit(addr crypto.Address, amount *big.Int) error {
	if err := nativecommon.RequireNonNegative(amount); err != nil {
		return err
	}
	if amount.Sign() == 0 {
		return nil
	}
	balance, err := m.Balance(addr)
	if err != nil {
		return err
	}
	return m.setBalance(addr, balance.Add(balance, amount))
}

// Allowance returns the stored allowance record; missing records read as zero
// with expiration 0.
func (m *Manager) Allowance(owner, spender crypto.Address) (*AllowanceRecord, error) {
	record := &AllowanceRecord{Amount: new(big.Int)}
	if _, err := m.KVGet(allowanceKey(owner, spender), record); err != nil {
		return nil, err
	}
	if record.Amount == nil {
		record.Amount = new(big.Int)
	}
	return record, nil
}

// SetAllowance stores an allowance record. A zero amount removes the record.
func (m *Manager) SetAllowance(owner, spender crypto.Address, record *AllowanceRecord) error {
	if record == nil || record.Amount == nil || record.Amount.Sign() == 0 {
		return m.KVDelete(allowanceKey(owner, spender))
	}
	if record.Amount.Sign() < 0 {
		return fmt.Errorf("ledger: negative allowance not allowed")
	}
	return m.KVPut(allowanceKey(owner, spender), record)
}

// TotalSupply returns the minted supply tracked by the ledger.
func (m *Manager) TotalSupply() (*big.Int, error) {
	total := new(big.Int)
	if _, err := m.KVGet(supplyKey, total); err != nil {
		return nil, err
	}
	return total, nil
}

// AdjustTotalSupply adds delta (which may be negative) to the tracked supply.
func (m *Manager) AdjustTotalSupply(delta *big.Int) error {
	total, err := m.TotalSupply()
	if err != nil {
		return err
	}
	total.Add(total, delta)
	if total.Sign() < 0 {
		return fmt.Errorf("ledger: total supply underflow")
	}
	return m.KVPut(supplyKey, total)
}
