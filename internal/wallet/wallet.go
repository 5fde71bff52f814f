// Package wallet holds the keys of the parties acting on the ledger.
package wallet

import (
	"sync"

	"github.com/pkg/errors"

	"github.com/perun-network/perun-did-orderbook/internal/ledger"
)

// Wallet is a set of accounts keyed by their key hash.
type Wallet struct {
	mu       sync.Mutex
	accounts map[ledger.PubKeyHash]*Account
}

// New creates a wallet holding the given accounts.
func New(accs ...*Account) *Wallet {
	w := &Wallet{accounts: make(map[ledger.PubKeyHash]*Account)}
	for _, a := range accs {
		w.Add(a)
	}
	return w
}

// Add adds an account to the wallet.
func (w *Wallet) Add(acc *Account) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.accounts[acc.PKH()] = acc
}

// Account returns the account with the given key hash.
func (w *Wallet) Account(pkh ledger.PubKeyHash) (*Account, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	acc, ok := w.accounts[pkh]
	return acc, ok
}

// Sign adds a witness for every declared signatory of tx.
func (w *Wallet) Sign(tx *ledger.Tx) error {
	for _, pkh := range tx.Signatories {
		acc, ok := w.Account(pkh)
		if !ok {
			return errors.Errorf("account not found: %s", pkh.Hex())
		}
		if err := acc.SignTx(tx); err != nil {
			return err
		}
	}
	return nil
}
