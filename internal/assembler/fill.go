package assembler

import (
	"context"

	"github.com/pkg/errors"

	"github.com/perun-network/perun-did-orderbook/internal/fraction"
	"github.com/perun-network/perun-did-orderbook/internal/ledger"
	"github.com/perun-network/perun-did-orderbook/internal/order"
	"github.com/perun-network/perun-did-orderbook/internal/orderbook"
	"github.com/perun-network/perun-did-orderbook/internal/value"
)

// Fill selects an order and how much of it to fill.
type Fill struct {
	Ref ledger.TxOutRef
	// Amount of the buy token delivered. Zero fills the whole order.
	Amount int64
	// StopLoss, if set, fills as a stop-loss match triggered at the given
	// market ratio.
	StopLoss *fraction.Ratio
	// TWAP fills a slice of a time-weighted execution, continuing Previous.
	TWAP     bool
	Previous *ledger.TxOutRef
}

// Fill builds a transaction of taker filling the given orders. The taker
// delivers the bought tokens and collects the sold tokens together with
// the batch rewards.
func (a *Assembler) Fill(taker ledger.PubKeyHash, fills ...Fill) (ledger.Tx, error) {
	acc, err := a.account(taker)
	if err != nil {
		return ledger.Tx{}, err
	}
	if len(fills) == 0 {
		return ledger.Tx{}, errors.New("nothing to fill")
	}

	b := newBuilder()
	b.spendAll(a.set.At(acc.Address()))
	for i, f := range fills {
		e, u, err := a.lookup(f.Ref)
		if err != nil {
			return ledger.Tx{}, err
		}
		if e.Status != orderbook.StatusOpen {
			return ledger.Tx{}, errors.Errorf("order at %v is %s", f.Ref, e.Status)
		}
		out, action, err := settle(e.Order, u, f)
		if err != nil {
			return ledger.Tx{}, errors.WithMessagef(err, "fill %d", i)
		}
		outIdx := b.pay(out)
		b.spend(u, func(idx int) ledger.Redeemer { return action(idx, outIdx) })
	}
	return a.finish(b, acc)
}

// FillBatch fills as many of fills as the ledger accepts, dropping fills
// from the end on rejection.
func (a *Assembler) FillBatch(ctx context.Context, taker ledger.PubKeyHash, fills []Fill) (int, ledger.TxID, error) {
	return a.Batch(ctx, len(fills), func(k int) (ledger.Tx, error) {
		return a.Fill(taker, fills[:k]...)
	})
}

type actionFunc func(in, out int) order.Action

// settle computes the continuation output of filling o and the matching
// action.
func settle(o order.Order, u ledger.UTxO, f Fill) (ledger.TxOut, actionFunc, error) {
	p := o.Params
	if o.BuyAmount <= 0 {
		return ledger.TxOut{}, nil, errors.Errorf("order %v is already filled", u.Ref)
	}
	if f.Amount == 0 || f.Amount == o.BuyAmount {
		if f.StopLoss != nil || f.TWAP {
			return ledger.TxOut{}, nil, errors.New("stop-loss and TWAP fills must be partial")
		}
		// Tokens bought by earlier partial fills stay with the order.
		bought := u.Out.Value.Get(p.Buy) + o.BuyAmount
		out := ledger.TxOut{
			Address: u.Out.Address,
			Value:   value.AddLovelace(value.Of(p.Buy, bought), p.MinUTxO),
			Datum:   o.Continue(u.Ref, 0, 0),
		}
		return out, func(in, out int) order.Action {
			return order.FullMatch{InputIndex: in, OutputIndex: out}
		}, nil
	}

	filled := f.Amount
	if filled < 0 || filled > o.BuyAmount {
		return ledger.TxOut{}, nil, errors.Errorf("fill amount %d not in (0, %d]", filled, o.BuyAmount)
	}
	if !p.AllowPartial {
		return ledger.TxOut{}, nil, errors.New("order does not allow partial fills")
	}

	reward := fraction.FloorScale(filled, o.BuyAmount, o.BatchReward)
	sellBefore := u.Out.Value.Get(p.Sell)
	if p.Sell.IsLovelace() {
		sellBefore -= p.MinUTxO
	}
	sold := fraction.FloorScale(filled, o.BuyAmount, sellBefore)

	v := value.Add(u.Out.Value, value.Of(p.Buy, filled))
	v = value.Add(v, value.Of(p.Sell, -sold))
	out := ledger.TxOut{
		Address: u.Out.Address,
		Value:   value.SubtractLovelace(v, reward),
		Datum:   o.Continue(u.Ref, o.BuyAmount-filled, o.BatchReward-reward),
	}

	partial := func(in, out int) order.PartialMatch {
		return order.PartialMatch{InputIndex: in, OutputIndex: out, FilledAmount: filled}
	}
	switch {
	case f.StopLoss != nil:
		trigger := *f.StopLoss
		return out, func(in, out int) order.Action {
			return order.StopLossMatch{PartialMatch: partial(in, out), Trigger: trigger}
		}, nil
	case f.TWAP:
		prev := f.Previous
		return out, func(in, out int) order.Action {
			return order.TWAPMatch{PartialMatch: partial(in, out), PreviousExecution: prev}
		}, nil
	default:
		return out, func(in, out int) order.Action { return partial(in, out) }, nil
	}
}

// ReturnExpired builds a transaction of executor paying the expired orders
// at refs back to their owners. The executor keeps the return rewards.
func (a *Assembler) ReturnExpired(executor ledger.PubKeyHash, refs ...ledger.TxOutRef) (ledger.Tx, error) {
	acc, err := a.account(executor)
	if err != nil {
		return ledger.Tx{}, err
	}
	if len(refs) == 0 {
		return ledger.Tx{}, errors.New("nothing to return")
	}
	now := a.set.Now()
	if now.Kind != ledger.Finite {
		return ledger.Tx{}, errors.Errorf("ledger time %v is not finite", now)
	}

	b := newBuilder()
	b.validity = ledger.From(now.Millis)
	b.spendAll(a.set.At(acc.Address()))
	for _, ref := range refs {
		e, u, err := a.lookup(ref)
		if err != nil {
			return ledger.Tx{}, err
		}
		p := e.Order.Params
		if now.Compare(p.ExpiryDate) < 0 {
			return ledger.Tx{}, errors.Errorf("order at %v expires at %v", ref, p.ExpiryDate)
		}
		outIdx := b.pay(ledger.TxOut{
			Address: p.OwnerAddress,
			Value:   value.SubtractLovelace(u.Out.Value, p.ReturnReward),
			Datum:   ref,
		})
		b.spend(u, func(idx int) ledger.Redeemer {
			return order.ReturnExpired{InputIndex: idx, OutputIndex: outIdx}
		})
	}
	return a.finish(b, acc)
}

// ReturnAllExpired returns as many expired orders as the ledger accepts in
// one transaction.
func (a *Assembler) ReturnAllExpired(ctx context.Context, executor ledger.PubKeyHash) (int, ledger.TxID, error) {
	a.book.Sync()
	expired := a.book.WithStatus(orderbook.StatusExpired)
	refs := make([]ledger.TxOutRef, len(expired))
	for i, e := range expired {
		refs[i] = e.Ref
	}
	return a.Batch(ctx, len(refs), func(k int) (ledger.Tx, error) {
		return a.ReturnExpired(executor, refs[:k]...)
	})
}
