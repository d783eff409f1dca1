package crypto

import (
	"crypto/ecdsa"
	"crypto/rand"
	"errors"
	"fmt"

	"github.com/btcsuite/btcutil/bech32"
	"github.com/ethereum/go-ethereum/crypto"
)

// AddressPrefix is the human-readable part of a bech32 ledger address.
type AddressPrefix string

const (
	// ParticipantPrefix tags stakers and pool authorities.
	ParticipantPrefix AddressPrefix = "stk"
	// PoolPrefix tags pool identifiers.
	PoolPrefix AddressPrefix = "pool"
	// VaultPrefix tags custody-held vault balances.
	VaultPrefix AddressPrefix = "vault"
)

// AddressLength is the raw byte length of every ledger address.
const AddressLength = 20

var errAddressLength = errors.New("crypto: address must be 20 bytes long")

// Address represents a 20-byte ledger address with a specific prefix.
type Address struct {
	prefix AddressPrefix
	bytes  []byte
}

// NewAddress wraps the raw bytes with the supplied prefix. It panics when the
// byte slice is not exactly AddressLength long.
func NewAddress(prefix AddressPrefix, b []byte) Address {
	if len(b) != AddressLength {
		panic(errAddressLength)
	}
	cloned := append([]byte(nil), b...)
	return Address{prefix: prefix, bytes: cloned}
}

// MustNewAddress is an alias kept for call sites that build addresses from
// fixed-size arrays.
func MustNewAddress(prefix AddressPrefix, b []byte) Address {
	return NewAddress(prefix, b)
}

func (a Address) String() string {
	if len(a.bytes) == 0 {
		return ""
	}
	conv, err := bech32.ConvertBits(a.bytes, 8, 5, true)
	if err != nil {
		panic(err)
	}
	encoded, err := bech32.Encode(string(a.prefix), conv)
	if err != nil {
		panic(err)
	}
	return encoded
}

// Bytes returns the raw address bytes.
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

// Equal reports whether both addresses carry the same prefix and bytes.
func (a Address) Equal(other Address) bool {
	return a.String() == other.String()
}

// DecodeAddress parses a bech32 encoded address.
func DecodeAddress(addrStr string) (Address, error) {
	prefix, decoded, err := bech32.Decode(addrStr)
	if err != nil {
		return Address{}, fmt.Errorf("invalid bech32 string: %w", err)
	}
	conv, err := bech32.ConvertBits(decoded, 5, 8, false)
	if err != nil {
		return Address{}, fmt.Errorf("error converting bits: %w", err)
	}
	if len(conv) != AddressLength {
		return Address{}, errAddressLength
	}
	return NewAddress(AddressPrefix(prefix), conv), nil
}

// DecodeAddressWithPrefix parses a bech32 address and enforces its prefix.
func DecodeAddressWithPrefix(addrStr string, prefix AddressPrefix) (Address, error) {
	addr, err := DecodeAddress(addrStr)
	if err != nil {
		return Address{}, err
	}
	if addr.Prefix() != prefix {
		return Address{}, fmt.Errorf("crypto: unexpected address prefix %q, want %q", addr.Prefix(), prefix)
	}
	return addr, nil
}

// DeriveAddress deterministically derives an address from the supplied seeds.
// The derivation is the trailing 20 bytes of Keccak256(seeds...), so the same
// seeds always map to the same pool or vault address.
func DeriveAddress(prefix AddressPrefix, seeds ...[]byte) Address {
	digest := crypto.Keccak256(seeds...)
	return NewAddress(prefix, digest[len(digest)-AddressLength:])
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

// Bytes returns the byte representation of the private key.
func (k *PrivateKey) Bytes() []byte {
	return crypto.FromECDSA(k.PrivateKey)
}

func (k *PrivateKey) PubKey() *PublicKey {
	return &PublicKey{&k.PrivateKey.PublicKey}
}

// Address returns the participant address controlled by the key.
func (k *PublicKey) Address() Address {
	addrBytes := crypto.PubkeyToAddress(*k.PublicKey).Bytes()
	return NewAddress(ParticipantPrefix, addrBytes)
}

func PrivateKeyFromBytes(b []byte) (*PrivateKey, error) {
	key, err := crypto.ToECDSA(b)
	if err != nil {
		return nil, err
	}
	return &PrivateKey{key}, nil
}
