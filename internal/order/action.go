package order

import (
	"github.com/pkg/errors"

	"github.com/perun-network/perun-did-orderbook/internal/fraction"
	"github.com/perun-network/perun-did-orderbook/internal/ledger"
)

type (
	// Action is the redeemer selecting which transition a transaction
	// performs on an order. The set of actions is closed.
	Action interface {
		ledger.Redeemer
		// Input returns the claimed index of the consumed order within the
		// transaction inputs.
		Input() int
		isAction()
	}

	// Cancel lets the owner dispose of the order.
	Cancel struct {
		InputIndex int `json:"inputIndex"`
	}

	// FullMatch fills the whole remaining buy amount.
	FullMatch struct {
		InputIndex  int `json:"inputIndex"`
		OutputIndex int `json:"outputIndex"`
	}

	// PartialMatch fills part of the remaining buy amount.
	PartialMatch struct {
		InputIndex   int   `json:"inputIndex"`
		OutputIndex  int   `json:"outputIndex"`
		FilledAmount int64 `json:"filledAmount"`
	}

	// ReturnExpired pays an expired order back to its owner.
	ReturnExpired struct {
		InputIndex  int `json:"inputIndex"`
		OutputIndex int `json:"outputIndex"`
	}

	// StopLossMatch is a partial fill that is only allowed once the market
	// ratio has fallen to the order's stop-loss ratio.
	StopLossMatch struct {
		PartialMatch
		Trigger fraction.Ratio `json:"trigger"`
	}

	// TWAPMatch is a partial fill that is part of a time-weighted execution.
	TWAPMatch struct {
		PartialMatch
		// PreviousExecution references the output of the previous slice, if
		// any. It is informational.
		PreviousExecution *ledger.TxOutRef `json:"previousExecution,omitempty"`
	}
)

func init() {
	ledger.RegisterRedeemer(Cancel{})
	ledger.RegisterRedeemer(FullMatch{})
	ledger.RegisterRedeemer(PartialMatch{})
	ledger.RegisterRedeemer(ReturnExpired{})
	ledger.RegisterRedeemer(StopLossMatch{})
	ledger.RegisterRedeemer(TWAPMatch{})
}

func (Cancel) RedeemerType() string        { return "Cancel" }
func (FullMatch) RedeemerType() string     { return "FullMatch" }
func (PartialMatch) RedeemerType() string  { return "PartialMatch" }
func (ReturnExpired) RedeemerType() string { return "ReturnExpired" }
func (StopLossMatch) RedeemerType() string { return "StopLossMatch" }
func (TWAPMatch) RedeemerType() string     { return "TWAPMatch" }

func (a Cancel) Input() int        { return a.InputIndex }
func (a FullMatch) Input() int     { return a.InputIndex }
func (a PartialMatch) Input() int  { return a.InputIndex }
func (a ReturnExpired) Input() int { return a.InputIndex }

func (Cancel) isAction()        {}
func (FullMatch) isAction()     {}
func (PartialMatch) isAction()  {}
func (ReturnExpired) isAction() {}

// AsAction converts a decoded redeemer into an Action.
func AsAction(r ledger.Redeemer) (Action, error) {
	switch a := r.(type) {
	case Cancel:
		return a, nil
	case FullMatch:
		return a, nil
	case PartialMatch:
		return a, nil
	case ReturnExpired:
		return a, nil
	case StopLossMatch:
		return a, nil
	case TWAPMatch:
		return a, nil
	case nil:
		return nil, errors.New("missing redeemer")
	default:
		return nil, errors.Errorf("unsupported redeemer %T", r)
	}
}

// AsOrder converts a decoded datum into an Order.
func AsOrder(d ledger.Datum) (Order, error) {
	switch o := d.(type) {
	case Order:
		return o, nil
	case *Order:
		if o == nil {
			return Order{}, errors.New("nil order datum")
		}
		return *o, nil
	default:
		return Order{}, errors.Errorf("datum %T is not an order", d)
	}
}
