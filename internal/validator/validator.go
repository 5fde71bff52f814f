// Package validator decides whether a proposed transaction is a legal
// state transition for an order locked at the order book contract.
//
// The validator is invoked once per consumed order. It is a pure function
// of its arguments: it holds no state, performs no I/O and never mutates
// the transaction. When a transaction consumes several orders, the ledger
// invokes it once per order on the same transaction and commits only if
// every invocation accepts.
package validator

import (
	"github.com/perun-network/perun-did-orderbook/internal/did"
	"github.com/perun-network/perun-did-orderbook/internal/fraction"
	"github.com/perun-network/perun-did-orderbook/internal/ledger"
	"github.com/perun-network/perun-did-orderbook/internal/order"
	"github.com/perun-network/perun-did-orderbook/internal/value"
)

// Options tune the validator.
type Options struct {
	// RequireCancelCredential additionally requires the input referenced
	// by a Cancel action to hold a recognized credential.
	RequireCancelCredential bool
}

// Validator judges transitions of orders.
type Validator struct {
	checker *did.Checker
	opts    Options
}

// New creates a validator using checker for DID requirements.
func New(checker *did.Checker, opts Options) *Validator {
	return &Validator{checker: checker, opts: opts}
}

// Validate accepts (nil) or rejects (*Error) tx as transition of the order
// o locked in the output own, performed by action a.
func (v *Validator) Validate(own ledger.TxOutRef, o order.Order, a order.Action, tx *ledger.TxInfo) error {
	if c, ok := a.(order.Cancel); ok {
		return v.checkCancel(o, c, tx)
	}

	in, err := ownInput(own, a.Input(), tx)
	if err != nil {
		return err
	}

	switch a := a.(type) {
	case order.FullMatch:
		out, err := output(a.OutputIndex, tx)
		if err != nil {
			return err
		}
		return v.checkFull(o, in, out, tx)
	case order.PartialMatch:
		out, err := output(a.OutputIndex, tx)
		if err != nil {
			return err
		}
		return v.checkPartial(o, a.FilledAmount, in, out, tx)
	case order.StopLossMatch:
		out, err := output(a.OutputIndex, tx)
		if err != nil {
			return err
		}
		return v.checkStopLoss(o, a, in, out, tx)
	case order.TWAPMatch:
		out, err := output(a.OutputIndex, tx)
		if err != nil {
			return err
		}
		return v.checkTWAP(o, a, in, out, tx)
	case order.ReturnExpired:
		out, err := output(a.OutputIndex, tx)
		if err != nil {
			return err
		}
		return checkReturnExpired(o, in, out, tx)
	default:
		return newError(MalformedAction, CodeAction, "unsupported action %T", a)
	}
}

// ownInput returns the input at idx and checks that it is the output under
// validation.
func ownInput(own ledger.TxOutRef, idx int, tx *ledger.TxInfo) (ledger.TxInInfo, error) {
	if idx < 0 || idx >= len(tx.Inputs) {
		return ledger.TxInInfo{}, newError(MalformedAction, CodeInputIndex,
			"input index %d out of range [0, %d)", idx, len(tx.Inputs))
	}
	in := tx.Inputs[idx]
	if in.OutRef != own {
		return ledger.TxInInfo{}, newError(MalformedAction, CodeInputRef,
			"input %d is %v, not the validated order %v", idx, in.OutRef, own)
	}
	return in, nil
}

func output(idx int, tx *ledger.TxInfo) (ledger.TxOut, error) {
	if idx < 0 || idx >= len(tx.Outputs) {
		return ledger.TxOut{}, newError(MalformedAction, CodeOutputIndex,
			"output index %d out of range [0, %d)", idx, len(tx.Outputs))
	}
	return tx.Outputs[idx], nil
}

// checkCancel lets the owner dispose of the order without further checks.
func (v *Validator) checkCancel(o order.Order, c order.Cancel, tx *ledger.TxInfo) error {
	if !tx.SignedBy(o.Params.OwnerPKH) {
		return newError(Authorization, CodeSignature, "order owner %s did not sign", o.Params.OwnerPKH.Hex())
	}
	if !v.opts.RequireCancelCredential {
		return nil
	}
	if c.InputIndex < 0 || c.InputIndex >= len(tx.Inputs) {
		return newError(MalformedAction, CodeInputIndex,
			"credential input index %d out of range [0, %d)", c.InputIndex, len(tx.Inputs))
	}
	if !v.checker.HoldsCredential(tx.Inputs[c.InputIndex].Resolved) {
		return newError(Authorization, CodeCredential, "input %d holds no recognized credential", c.InputIndex)
	}
	return nil
}

// checkFull checks that the order is filled completely. The filled output
// stays escrowed at the contract, marked as depleted, until the owner
// cancels it.
func (v *Validator) checkFull(o order.Order, in ledger.TxInInfo, out ledger.TxOut, tx *ledger.TxInfo) error {
	if o.BuyAmount <= 0 {
		return newError(Boundary, CodeFillAmount, "order is already depleted")
	}
	if err := checkContinuation(o.Continue(in.OutRef, 0, 0), out, tx); err != nil {
		return err
	}
	if err := checkSameAddress(in, out); err != nil {
		return err
	}

	p := o.Params
	expected := value.AddLovelace(value.Of(p.Buy, o.BuyAmount), p.MinUTxO)
	if !value.GreaterOrEqual(out.Value, expected) {
		return newError(ValueConservation, CodeOutputValue,
			"output value %v below required %v", out.Value, expected)
	}
	return v.checkCounterparty(o, in, tx)
}

// checkPartial checks that the order is partially filled and the
// continuing output is set correctly.
func (v *Validator) checkPartial(o order.Order, filled int64, in ledger.TxInInfo, out ledger.TxOut, tx *ledger.TxInfo) error {
	p := o.Params
	if !p.AllowPartial {
		return newError(Boundary, CodePartial, "order does not allow partial fills")
	}
	if filled <= 0 || filled >= o.BuyAmount {
		return newError(Boundary, CodeFillAmount,
			"filled amount %d not in (0, %d)", filled, o.BuyAmount)
	}
	if f := p.AdvancedFeatures; f != nil && f.MinFillAmount > 0 && filled < f.MinFillAmount {
		return newError(Boundary, CodeMinFill,
			"filled amount %d below minimum fill %d", filled, f.MinFillAmount)
	}

	rewardTaken := fraction.FloorScale(filled, o.BuyAmount, o.BatchReward)
	next := o.Continue(in.OutRef, o.BuyAmount-filled, o.BatchReward-rewardTaken)
	if err := checkContinuation(next, out, tx); err != nil {
		return err
	}
	if err := checkSameAddress(in, out); err != nil {
		return err
	}

	sellBefore := in.Resolved.Value.Get(p.Sell)
	if p.Sell.IsLovelace() {
		sellBefore -= p.MinUTxO
	}
	sold := fraction.FloorScale(filled, o.BuyAmount, sellBefore)

	// Buy and sell token are distinct, so the two entries never collide.
	delta := value.SubtractLovelace(
		value.Add(value.Of(p.Buy, filled), value.Of(p.Sell, -sold)),
		rewardTaken,
	)
	expected := value.Add(in.Resolved.Value, delta)
	if !value.GreaterOrEqual(out.Value, expected) {
		return newError(ValueConservation, CodeOutputValue,
			"output value %v below required %v", out.Value, expected)
	}
	return v.checkCounterparty(o, in, tx)
}

func (v *Validator) checkStopLoss(o order.Order, a order.StopLossMatch, in ledger.TxInInfo, out ledger.TxOut, tx *ledger.TxInfo) error {
	f := o.Params.AdvancedFeatures
	if f == nil {
		return newError(Boundary, CodeNoFeatures, "stop-loss match on order without advanced features")
	}
	limit := f.StopLoss()
	if !a.Trigger.Valid() || !limit.Valid() {
		return newError(Boundary, CodeTriggerRatio, "invalid ratio: trigger %v, stop-loss %v", a.Trigger, limit)
	}
	if !a.Trigger.LessOrEqual(limit) {
		return newError(Boundary, CodeStopLoss, "trigger %v above stop-loss %v", a.Trigger, limit)
	}
	return v.checkPartial(o, a.FilledAmount, in, out, tx)
}

// checkTWAP accepts a slice of a time-weighted execution. The reference to
// the previous slice is informational, pacing is left to the executor.
func (v *Validator) checkTWAP(o order.Order, a order.TWAPMatch, in ledger.TxInInfo, out ledger.TxOut, tx *ledger.TxInfo) error {
	if o.Params.AdvancedFeatures == nil {
		return newError(Boundary, CodeNoFeatures, "TWAP match on order without advanced features")
	}
	return v.checkPartial(o, a.FilledAmount, in, out, tx)
}

// checkReturnExpired checks that the remaining balance, minus the return
// reward, is paid back to the owner after expiry.
func checkReturnExpired(o order.Order, in ledger.TxInInfo, out ledger.TxOut, tx *ledger.TxInfo) error {
	p := o.Params
	if !tx.ValidRange.StartsAtOrAfter(p.ExpiryDate) {
		return newError(Boundary, CodeNotExpired,
			"validity range %v starts before expiry %v", tx.ValidRange, p.ExpiryDate)
	}

	d, err := tx.ResolveDatum(out)
	if err != nil {
		return newError(RecordMismatch, CodeOutputDatum, "payout datum: %v", err)
	}
	if ref, ok := d.(ledger.TxOutRef); !ok || ref != in.OutRef {
		return newError(RecordMismatch, CodeOutputDatum, "payout datum %v does not reference %v", d, in.OutRef)
	}

	if !out.Address.Equal(p.OwnerAddress) {
		return newError(ValueConservation, CodeOutputAddress,
			"payout to %v, not to owner %v", out.Address, p.OwnerAddress)
	}

	expected := value.SubtractLovelace(in.Resolved.Value, p.ReturnReward)
	if !out.Value.Equal(expected) {
		return newError(ValueConservation, CodeReturnValue,
			"payout %v differs from %v", out.Value, expected)
	}
	return nil
}

func checkContinuation(expected order.Order, out ledger.TxOut, tx *ledger.TxInfo) error {
	d, err := tx.ResolveDatum(out)
	if err != nil {
		return newError(RecordMismatch, CodeOutputDatum, "continuation datum: %v", err)
	}
	actual, err := order.AsOrder(d)
	if err != nil {
		return newError(RecordMismatch, CodeOutputDatum, "continuation datum: %v", err)
	}
	if !actual.Equal(expected) {
		return newError(RecordMismatch, CodeOutputDatum, "continuation datum differs from expected record")
	}
	return nil
}

// checkSameAddress keeps the output escrowed at the contract.
func checkSameAddress(in ledger.TxInInfo, out ledger.TxOut) error {
	if !out.Address.Equal(in.Resolved.Address) {
		return newError(ValueConservation, CodeOutputAddress,
			"output at %v, order at %v", out.Address, in.Resolved.Address)
	}
	return nil
}

// checkCounterparty requires some input not belonging to the order owner
// or the contract to satisfy the order's DID requirements.
func (v *Validator) checkCounterparty(o order.Order, own ledger.TxInInfo, tx *ledger.TxInfo) error {
	req := o.Params.DIDRequirements
	if req == nil || len(req.AcceptedDIDTypes) == 0 {
		return nil
	}
	for _, in := range tx.Inputs {
		addr := in.Resolved.Address
		if addr.Equal(own.Resolved.Address) || ownedBy(addr, o.Params) {
			continue
		}
		if v.checker.CheckCompliance(addr, req, tx) {
			return nil
		}
	}
	return newError(Authorization, CodeDID, "no counterparty satisfies the DID requirements")
}

func ownedBy(addr ledger.Address, p order.Params) bool {
	if addr.Equal(p.OwnerAddress) {
		return true
	}
	return !addr.IsScript() && addr.Payment.Hash == p.OwnerPKH
}
