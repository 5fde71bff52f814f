// Package assembler builds well-formed transactions against the order book
// contract: placing, cancelling, modifying, filling and returning orders.
package assembler

import (
	"context"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/perun-network/perun-did-orderbook/internal/did"
	"github.com/perun-network/perun-did-orderbook/internal/ledger"
	"github.com/perun-network/perun-did-orderbook/internal/orderbook"
	"github.com/perun-network/perun-did-orderbook/internal/validator"
	"github.com/perun-network/perun-did-orderbook/internal/value"
	"github.com/perun-network/perun-did-orderbook/internal/wallet"
)

// Options configure an Assembler.
type Options struct {
	// Fee is the fee in lovelace paid by every transaction.
	Fee int64
	// Metrics defaults to NopMetrics.
	Metrics *Metrics
}

// Assembler builds, signs and submits transactions on behalf of the
// accounts of its wallet.
type Assembler struct {
	set      *ledger.UTxOSet
	book     *orderbook.Book
	registry *did.Registry
	wallet   *wallet.Wallet
	opts     Options
	metrics  *Metrics
	log      logrus.FieldLogger
}

// New creates an assembler for the orders indexed by book.
func New(set *ledger.UTxOSet, book *orderbook.Book, registry *did.Registry, w *wallet.Wallet, opts Options, log logrus.FieldLogger) *Assembler {
	if log == nil {
		log = logrus.StandardLogger()
	}
	metrics := opts.Metrics
	if metrics == nil {
		metrics = NopMetrics()
	}
	return &Assembler{
		set:      set,
		book:     book,
		registry: registry,
		wallet:   w,
		opts:     opts,
		metrics:  metrics,
		log:      log.WithField("component", "assembler"),
	}
}

// Book returns the order book index kept in sync by Submit.
func (a *Assembler) Book() *orderbook.Book {
	return a.book
}

// Submit applies tx to the ledger and syncs the order book.
func (a *Assembler) Submit(tx ledger.Tx) (ledger.TxID, error) {
	id, err := a.set.Apply(tx)
	if err != nil {
		code := validator.Code(err)
		a.log.WithError(err).WithField("code", code).Info("Transaction rejected")
		if code == "" {
			code = "ledger"
		}
		a.metrics.Rejected.With("code", code).Add(1)
		return ledger.TxID{}, err
	}
	a.log.WithField("tx", id.Hex()).Info("Transaction submitted")
	a.metrics.Submitted.Add(1)
	d := a.book.Sync()
	a.metrics.OpenOrders.Set(float64(d.TotalOpen))
	return id, nil
}

// Batch submits the largest prefix of n items the ledger accepts, trying
// n, n-1, ..., 1 items. It fails only if a single item is rejected.
func (a *Assembler) Batch(ctx context.Context, n int, build func(k int) (ledger.Tx, error)) (int, ledger.TxID, error) {
	if n <= 0 {
		return 0, ledger.TxID{}, errors.New("empty batch")
	}
	for k := n; ; k-- {
		if err := ctx.Err(); err != nil {
			return 0, ledger.TxID{}, errors.WithStack(err)
		}
		tx, err := build(k)
		if err == nil {
			var id ledger.TxID
			if id, err = a.Submit(tx); err == nil {
				a.log.Infof("Submitted batch of %d", k)
				a.metrics.BatchSize.Observe(float64(k))
				return k, id, nil
			}
		}
		if k == 1 {
			return 0, ledger.TxID{}, err
		}
		a.log.WithError(err).Warnf("Batch of %d failed, trying less", k)
	}
}

func (a *Assembler) account(pkh ledger.PubKeyHash) (*wallet.Account, error) {
	acc, ok := a.wallet.Account(pkh)
	if !ok {
		return nil, errors.Errorf("account not found: %s", pkh.Hex())
	}
	return acc, nil
}

// lookup returns the order locked in ref together with its output.
func (a *Assembler) lookup(ref ledger.TxOutRef) (orderbook.Entry, ledger.UTxO, error) {
	a.book.Sync()
	e, ok := a.book.Get(ref)
	if !ok {
		return orderbook.Entry{}, ledger.UTxO{}, errors.Errorf("no order at %v", ref)
	}
	out, ok := a.set.Get(ref)
	if !ok {
		return orderbook.Entry{}, ledger.UTxO{}, errors.Errorf("order at %v already spent", ref)
	}
	return e, ledger.UTxO{Ref: ref, Out: out}, nil
}

// credentialInput returns a UTxO of funds carrying a recognized credential.
func (a *Assembler) credentialInput(funds []ledger.UTxO) (ledger.UTxO, bool) {
	for _, u := range funds {
		if len(a.registry.Credentials(u.Out.Value)) > 0 {
			return u, true
		}
	}
	return ledger.UTxO{}, false
}

type input struct {
	utxo ledger.UTxO
	// redeemer builds the redeemer from the input's position among the
	// sorted inputs. Nil for key inputs.
	redeemer func(idx int) ledger.Redeemer
}

// builder collects the parts of a transaction. Redeemers are built last
// since action indices refer to the sorted inputs.
type builder struct {
	inputs   []input
	outputs  []ledger.TxOut
	signers  []ledger.PubKeyHash
	validity ledger.Interval
}

func newBuilder() *builder {
	return &builder{validity: ledger.Always()}
}

func (b *builder) spend(u ledger.UTxO, redeemer func(idx int) ledger.Redeemer) {
	b.inputs = append(b.inputs, input{utxo: u, redeemer: redeemer})
}

func (b *builder) spendAll(us []ledger.UTxO) {
	for _, u := range us {
		b.spend(u, nil)
	}
}

// pay adds an output and returns its index.
func (b *builder) pay(out ledger.TxOut) int {
	b.outputs = append(b.outputs, out)
	return len(b.outputs) - 1
}

func (b *builder) sortedRefs() []ledger.TxOutRef {
	refs := make([]ledger.TxOutRef, len(b.inputs))
	for i, in := range b.inputs {
		refs[i] = in.utxo.Ref
	}
	ledger.SortRefs(refs)
	return refs
}

// build balances the transaction, sending the surplus to change.
func (b *builder) build(fee int64, change ledger.Address) (ledger.Tx, error) {
	refs := b.sortedRefs()
	tx := ledger.Tx{
		Fee:         fee,
		Signatories: b.signers,
		ValidRange:  b.validity,
	}
	consumed := value.New()
	for _, in := range b.inputs {
		txIn := ledger.TxIn{OutRef: in.utxo.Ref}
		if in.redeemer != nil {
			txIn.Redeemer = in.redeemer(ledger.IndexOf(refs, in.utxo.Ref))
		}
		tx.Inputs = append(tx.Inputs, txIn)
		consumed = value.Add(consumed, in.utxo.Out.Value)
	}

	produced := value.FromLovelace(fee)
	for _, out := range b.outputs {
		produced = value.Add(produced, out.Value)
	}
	tx.Outputs = append(tx.Outputs, b.outputs...)

	surplus := value.Subtract(consumed, produced)
	if surplus.HasNegative() {
		return ledger.Tx{}, errors.Errorf("insufficient funds: consumed %v, produced %v", consumed, produced)
	}
	if !surplus.IsZero() {
		tx.Outputs = append(tx.Outputs, ledger.TxOut{Address: change, Value: surplus.Normalize()})
	}
	return tx, nil
}

// finish builds and signs the transaction of acc.
func (a *Assembler) finish(b *builder, acc *wallet.Account) (ledger.Tx, error) {
	b.signers = append(b.signers, acc.PKH())
	tx, err := b.build(a.opts.Fee, acc.Address())
	if err != nil {
		return ledger.Tx{}, err
	}
	if err := a.wallet.Sign(&tx); err != nil {
		return ledger.Tx{}, err
	}
	return tx, nil
}
