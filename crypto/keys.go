package crypto

import (
	"bytes"
	"crypto/ecdsa"
	"crypto/rand"
	"fmt"

	"github.com/btcsuite/btcutil/bech32"
	"github.com/ethereum/go-ethereum/crypto"
)

// AddressPrefix defines the human-readable part of a bech32 account address.
type AddressPrefix string

// DefaultPrefix is used for every account on the protocol ledger.
const DefaultPrefix AddressPrefix = "dfc"

// AddressLength is the byte length of an account identifier.
const AddressLength = 20

// Address is a 20-byte account identifier rendered as bech32.
type Address struct {
	prefix AddressPrefix
	bytes  []byte
}

func NewAddress(prefix AddressPrefix, b []byte) Address {
	if len(b) != AddressLength {
		panic("address must be 20 bytes long")
	}
	return Address{prefix: prefix, bytes: append([]byte(nil), b...)}
}

// AddressFromBytes decodes a stored account identifier using the default
// prefix. It reports an error instead of panicking on malformed input.
func AddressFromBytes(b []byte) (Address, error) {
	if len(b) != AddressLength {
		return Address{}, fmt.Errorf("address: expected %d bytes, got %d", AddressLength, len(b))
	}
	return NewAddress(DefaultPrefix, b), nil
}

// ModuleAddress derives the deterministic account owned by a protocol module.
func ModuleAddress(name string) Address {
	digest := crypto.Keccak256([]byte("module/" + name))
	return NewAddress(DefaultPrefix, digest[len(digest)-AddressLength:])
}

func (a Address) String() string {
	if len(a.bytes) == 0 {
		return ""
	}
	conv, err := bech32.ConvertBits(a.bytes, 8, 5, true)
	if err != nil {
		panic(err)
	}
	prefix := a.prefix
	if prefix == "" {
		prefix = DefaultPrefix
	}
	encoded, err := bech32.Encode(string(prefix), conv)
	if err != nil {
		panic(err)
	}
	return encoded
}

func (a Address) Bytes() []byte {
	return a.bytes
}

// Prefix returns the human-readable prefix associated with the address.
func (a Address) Prefix() AddressPrefix {
	return a.prefix
}

// IsZero reports whether the address is unset.
func (a Address) IsZero() bool {
	return len(a.bytes) == 0
}

// Equal compares the raw account bytes, ignoring the prefix.
func (a Address) Equal(other Address) bool {
	return bytes.Equal(a.bytes, other.bytes)
}

// MarshalText renders the bech32 form so addresses embed cleanly in JSON.
func (a Address) MarshalText() ([]byte, error) {
	return []byte(a.String()), nil
}

// UnmarshalText parses a bech32 address.
func (a *Address) UnmarshalText(text []byte) error {
	decoded, err := DecodeAddress(string(text))
	if err != nil {
		return err
	}
	*a = decoded
	return nil
}

func DecodeAddress(addrStr string) (Address, error) {
	prefix, decoded, err := bech32.Decode(addrStr)
	if err != nil {
		return Address{}, fmt.Errorf("invalid bech32 string: %w", err)
	}
	if AddressPrefix(prefix) != DefaultPrefix {
		return Address{}, fmt.Errorf("unexpected address prefix %q", prefix)
	}
	conv, err := bech32.ConvertBits(decoded, 5, 8, false)
	if err != nil {
		return Address{}, fmt.Errorf("error converting bits: %w", err)
	}
	if len(conv) != AddressLength {
		return Address{}, fmt.Errorf("address must decode to %d bytes", AddressLength)
	}
	return NewAddress(AddressPrefix(prefix), conv), nil
}

// --- Key Management ---

type PrivateKey struct {
	*ecdsa.PrivateKey
}

type PublicKey struct {
	*ecdsa.PublicKey
}

func GeneratePrivateKey() (*PrivateKey, error) {
	key, err := ecdsa.GenerateKey(crypto.S256(), rand.Reader)
	if err != nil {
		return nil, err
	}
	return &PrivateKey{key}, nil
}

func (k *PrivateKey) PubKey() *PublicKey {
	return &PublicKey{&k.PrivateKey.PublicKey}
}

func (k *PublicKey) Address() Address {
	addrBytes := crypto.PubkeyToAddress(*k.PublicKey).Bytes()
	return NewAddress(DefaultPrefix, addrBytes)
}

