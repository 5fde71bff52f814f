package ledger

import (
	"encoding/json"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/pkg/errors"
)

type (
	// CredentialHash is the raw hash of a verification key or a script.
	CredentialHash string

	// PubKeyHash is the hash of a payment verification key. Transaction
	// signatories are identified by it.
	PubKeyHash = CredentialHash

	// Credential is a payment or staking credential. Script is true if
	// Hash refers to a script instead of a key.
	Credential struct {
		Script bool           `json:"script"`
		Hash   CredentialHash `json:"hash"`
	}

	// Address is a ledger address with an optional staking part.
	Address struct {
		Payment Credential  `json:"payment"`
		Staking *Credential `json:"staking,omitempty"`
	}
)

// CredentialHashFromHex parses a hex encoded credential hash.
func CredentialHashFromHex(s string) (CredentialHash, error) {
	if len(s) < 2 || s[:2] != "0x" {
		s = "0x" + s
	}
	b, err := hexutil.Decode(s)
	if err != nil {
		return "", errors.Wrapf(err, "decoding credential hash %q", s)
	}
	return CredentialHash(b), nil
}

// Hex returns the hex encoding of the hash.
func (h CredentialHash) Hex() string {
	return common.Bytes2Hex([]byte(h))
}

// MarshalText encodes the hash as hex.
func (h CredentialHash) MarshalText() ([]byte, error) {
	return []byte(h.Hex()), nil
}

// UnmarshalText decodes a hex hash.
func (h *CredentialHash) UnmarshalText(data []byte) (err error) {
	*h, err = CredentialHashFromHex(string(data))
	return err
}

// MarshalJSON encodes the hash as a hex string.
func (h CredentialHash) MarshalJSON() ([]byte, error) {
	return json.Marshal(h.Hex())
}

// UnmarshalJSON decodes a hex string hash.
func (h *CredentialHash) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	return h.UnmarshalText([]byte(s))
}

// PubKeyAddress returns the address paying to the key with hash pkh.
func PubKeyAddress(pkh PubKeyHash) Address {
	return Address{Payment: Credential{Hash: pkh}}
}

// ScriptAddress returns the address locked by the script with the given hash.
func ScriptAddress(hash CredentialHash) Address {
	return Address{Payment: Credential{Script: true, Hash: hash}}
}

// WithStaking returns a copy of a with the given staking credential.
func (a Address) WithStaking(c Credential) Address {
	a.Staking = &c
	return a
}

// IsScript reports whether a is locked by a script.
func (a Address) IsScript() bool {
	return a.Payment.Script
}

// Equal reports whether both addresses are identical, including the
// staking part.
func (a Address) Equal(o Address) bool {
	if a.Payment != o.Payment {
		return false
	}
	if a.Staking == nil || o.Staking == nil {
		return a.Staking == nil && o.Staking == nil
	}
	return *a.Staking == *o.Staking
}

func (a Address) String() string {
	kind := "key"
	if a.Payment.Script {
		kind = "script"
	}
	s := kind + ":" + a.Payment.Hash.Hex()
	if a.Staking != nil {
		s += "/stake:" + a.Staking.Hash.Hex()
	}
	return s
}
