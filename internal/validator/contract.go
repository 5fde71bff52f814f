package validator

import (
	"github.com/pkg/errors"

	"github.com/perun-network/perun-did-orderbook/internal/ledger"
	"github.com/perun-network/perun-did-orderbook/internal/order"
)

// Contract installs a Validator as the script guarding the order book
// address of a ledger.
type Contract struct {
	v *Validator
}

// NewContract wraps v.
func NewContract(v *Validator) *Contract {
	return &Contract{v: v}
}

// Validate implements ledger.Script. Datums that are not orders and
// redeemers that are not actions are rejected as malformed.
func (c *Contract) Validate(own ledger.TxOutRef, datum ledger.Datum, redeemer ledger.Redeemer, tx *ledger.TxInfo) error {
	o, err := order.AsOrder(datum)
	if err != nil {
		return errors.WithStack(newError(RecordMismatch, CodeInputDatum, "locked datum: %v", err))
	}
	a, err := order.AsAction(redeemer)
	if err != nil {
		return errors.WithStack(newError(MalformedAction, CodeAction, "%v", err))
	}
	return c.v.Validate(own, o, a, tx)
}
