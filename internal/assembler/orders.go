package assembler

import (
	"github.com/pkg/errors"

	"github.com/perun-network/perun-did-orderbook/internal/ledger"
	"github.com/perun-network/perun-did-orderbook/internal/order"
	"github.com/perun-network/perun-did-orderbook/internal/value"
	"github.com/perun-network/perun-did-orderbook/internal/wallet"
)

// OrderRequest describes a new order. The order locks SellAmount of the
// sell token plus MinUTxO and BatchReward lovelace.
type OrderRequest struct {
	Params      order.Params
	BuyAmount   int64
	SellAmount  int64
	BatchReward int64
}

func (r OrderRequest) validate() error {
	p := r.Params
	switch {
	case p.Buy == p.Sell:
		return errors.Errorf("buy and sell token are both %v", p.Buy)
	case r.BuyAmount <= 0:
		return errors.Errorf("non-positive buy amount %d", r.BuyAmount)
	case r.SellAmount <= 0:
		return errors.Errorf("non-positive sell amount %d", r.SellAmount)
	case r.BatchReward < 0 || p.ReturnReward < 0 || p.MinUTxO < 0:
		return errors.New("negative reward or minimum balance")
	case p.ReturnReward > p.MinUTxO+r.BatchReward:
		return errors.Errorf("return reward %d exceeds locked lovelace %d", p.ReturnReward, p.MinUTxO+r.BatchReward)
	}
	if f := p.AdvancedFeatures; f != nil && f.StopLossNum != 0 && !f.StopLoss().Valid() {
		return errors.Errorf("invalid stop-loss ratio %v", f.StopLoss())
	}
	return nil
}

func (r OrderRequest) output(contract ledger.Address) ledger.TxOut {
	v := value.AddLovelace(value.Of(r.Params.Sell, r.SellAmount), r.Params.MinUTxO+r.BatchReward)
	return ledger.TxOut{
		Address: contract,
		Value:   v,
		Datum:   order.Order{Params: r.Params, BuyAmount: r.BuyAmount, BatchReward: r.BatchReward},
	}
}

// PlaceOrder builds a transaction of owner locking the requested orders at
// the contract. The i-th order is locked in output i.
func (a *Assembler) PlaceOrder(owner ledger.PubKeyHash, reqs ...OrderRequest) (ledger.Tx, error) {
	acc, err := a.account(owner)
	if err != nil {
		return ledger.Tx{}, err
	}
	if len(reqs) == 0 {
		return ledger.Tx{}, errors.New("no order requested")
	}

	b := newBuilder()
	b.spendAll(a.set.At(acc.Address()))
	for i, r := range reqs {
		if err := r.validate(); err != nil {
			return ledger.Tx{}, errors.WithMessagef(err, "order %d", i)
		}
		b.pay(r.output(a.book.Contract()))
	}
	return a.finish(b, acc)
}

// Cancel builds a transaction of owner closing the orders at refs. The
// locked balances are returned to owner.
func (a *Assembler) Cancel(owner ledger.PubKeyHash, refs ...ledger.TxOutRef) (ledger.Tx, error) {
	acc, b, err := a.cancel(owner, refs)
	if err != nil {
		return ledger.Tx{}, err
	}
	return a.finish(b, acc)
}

// Modify builds a transaction of owner replacing the order at ref by a new
// one. Both happen atomically, so the owner is never left without an
// order.
func (a *Assembler) Modify(owner ledger.PubKeyHash, ref ledger.TxOutRef, req OrderRequest) (ledger.Tx, error) {
	if err := req.validate(); err != nil {
		return ledger.Tx{}, err
	}
	acc, b, err := a.cancel(owner, []ledger.TxOutRef{ref})
	if err != nil {
		return ledger.Tx{}, err
	}
	b.pay(req.output(a.book.Contract()))
	return a.finish(b, acc)
}

func (a *Assembler) cancel(owner ledger.PubKeyHash, refs []ledger.TxOutRef) (*wallet.Account, *builder, error) {
	acc, err := a.account(owner)
	if err != nil {
		return nil, nil, err
	}
	if len(refs) == 0 {
		return nil, nil, errors.New("no order to cancel")
	}

	funds := a.set.At(acc.Address())
	cred, hasCred := a.credentialInput(funds)

	b := newBuilder()
	b.spendAll(funds)
	for _, ref := range refs {
		e, u, err := a.lookup(ref)
		if err != nil {
			return nil, nil, err
		}
		if e.Order.Params.OwnerPKH != owner {
			return nil, nil, errors.Errorf("order at %v is not owned by %s", ref, owner.Hex())
		}
		b.spend(u, func(idx int) ledger.Redeemer {
			if hasCred {
				idx = ledger.IndexOf(b.sortedRefs(), cred.Ref)
			}
			return order.Cancel{InputIndex: idx}
		})
	}
	return acc, b, nil
}
