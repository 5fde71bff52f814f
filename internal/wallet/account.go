package wallet

import (
	"crypto/ecdsa"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/pkg/errors"

	"github.com/perun-network/perun-did-orderbook/internal/ledger"
)

// Account is a secp256k1 key identified on the ledger by its key hash.
type Account struct {
	key *ecdsa.PrivateKey
	pkh ledger.PubKeyHash
}

// NewAccount generates a fresh account.
func NewAccount() (*Account, error) {
	key, err := crypto.GenerateKey()
	if err != nil {
		return nil, errors.Wrap(err, "generating key")
	}
	return FromKey(key), nil
}

// AccountFromHex loads the account of a hex encoded private key.
func AccountFromHex(hexkey string) (*Account, error) {
	key, err := crypto.HexToECDSA(hexkey)
	if err != nil {
		return nil, errors.Wrap(err, "parsing private key")
	}
	return FromKey(key), nil
}

// FromKey wraps key.
func FromKey(key *ecdsa.PrivateKey) *Account {
	return &Account{key: key, pkh: ledger.KeyHash(&key.PublicKey)}
}

// PKH returns the key hash of the account.
func (a *Account) PKH() ledger.PubKeyHash {
	return a.pkh
}

// Address returns the key address of the account.
func (a *Account) Address() ledger.Address {
	return ledger.PubKeyAddress(a.pkh)
}

// SignTx adds a witness of a over the id of tx.
func (a *Account) SignTx(tx *ledger.Tx) error {
	id, err := tx.ID()
	if err != nil {
		return err
	}
	sig, err := crypto.Sign(id.Bytes(), a.key)
	if err != nil {
		return errors.Wrap(err, "signing transaction")
	}
	tx.Witnesses = append(tx.Witnesses, ledger.Witness{Signature: sig})
	return nil
}
