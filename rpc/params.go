package rpc

import (
	"bytes"
	"encoding/json"
	"math/big"
	"strings"

	"github.com/holiman/uint256"

	"deficore/crypto"
)

// decodeParams accepts either a params object or a one-element array holding
// it. Empty params decode to the zero value. Unknown fields are rejected.
func decodeParams(raw json.RawMessage, dst interface{}) error {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return nil
	}
	if trimmed[0] == '[' {
		var list []json.RawMessage
		if err := json.Unmarshal(trimmed, &list); err != nil {
			return invalidParams("invalid params array")
		}
		switch len(list) {
		case 0:
			return nil
		case 1:
			trimmed = bytes.TrimSpace(list[0])
		default:
			return invalidParams("expected a single params object")
		}
	}
	dec := json.NewDecoder(bytes.NewReader(trimmed))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return invalidParams("invalid params: " + err.Error())
	}
	return nil
}

func parseAddress(field, value string) (crypto.Address, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return crypto.Address{}, invalidParams(field + " is required")
	}
	addr, err := crypto.DecodeAddress(trimmed)
	if err != nil {
		return crypto.Address{}, invalidParams(field + ": " + err.Error())
	}
	return addr, nil
}

// parseAmount reads a non-negative decimal amount bounded to 256 bits.
func parseAmount(field, value string) (*big.Int, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return nil, invalidParams(field + " is required")
	}
	parsed, err := uint256.FromDecimal(trimmed)
	if err != nil {
		return nil, invalidParams(field + " must be a non-negative decimal integer")
	}
	return parsed.ToBig(), nil
}

// parseOptionalAmount treats an empty value as zero.
func parseOptionalAmount(field, value string) (*big.Int, error) {
	if strings.TrimSpace(value) == "" {
		return big.NewInt(0), nil
	}
	return parseAmount(field, value)
}

type accountParams struct {
	Address string `json:"address"`
}

func (p accountParams) account() (crypto.Address, error) {
	return parseAddress("address", p.Address)
}

type amountParams struct {
	Amount string `json:"amount"`
}

func (p amountParams) value() (*big.Int, error) {
	return parseAmount("amount", p.Amount)
}
