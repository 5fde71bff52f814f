// Package orderbook keeps an index of the orders locked at the order book
// contract and broadcasts changes to subscribers.
package orderbook

import (
	"encoding/json"
	"sort"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/perun-network/perun-did-orderbook/internal/ledger"
	"github.com/perun-network/perun-did-orderbook/internal/order"
	"github.com/perun-network/perun-did-orderbook/internal/value"
)

// Source is the ledger view a Book is built from.
type Source interface {
	At(addr ledger.Address) []ledger.UTxO
	Now() ledger.ExtendedTime
	Datums() *ledger.DatumStore
}

// Status captures where an order is in its lifecycle.
type Status string

const (
	// StatusOpen orders can be filled.
	StatusOpen Status = "open"
	// StatusFilled orders are depleted and wait for their owner to cancel.
	StatusFilled Status = "filled"
	// StatusExpired orders can be returned to their owner.
	StatusExpired Status = "expired"
)

// Entry is an order together with the balance it locks.
type Entry struct {
	Ref    ledger.TxOutRef `json:"ref"`
	Order  order.Order     `json:"order"`
	Value  value.Value     `json:"value"`
	Status Status          `json:"status"`
}

// Remaining returns the amount of the sell token still offered.
func (e Entry) Remaining() int64 {
	amt := e.Value.Get(e.Order.Params.Sell)
	if e.Order.Params.Sell.IsLovelace() {
		amt -= e.Order.Params.MinUTxO + e.Order.BatchReward
	}
	return amt
}

// Snapshot is a full view of the book.
type Snapshot struct {
	Sequence  uint64  `json:"sequence"`
	TotalOpen uint64  `json:"totalOpen"`
	Orders    []Entry `json:"orders"`
}

// Delta holds the changes since the previous sequence.
type Delta struct {
	Sequence uint64 `json:"sequence"` // strictly increasing
	// Added/Updated are full rows; Removed are references.
	Added     []Entry           `json:"added"`
	Updated   []Entry           `json:"updated"`
	Removed   []ledger.TxOutRef `json:"removed"`
	TotalOpen uint64            `json:"totalOpen"`
}

// Empty reports whether the delta carries no change.
func (d Delta) Empty() bool {
	return len(d.Added) == 0 && len(d.Updated) == 0 && len(d.Removed) == 0
}

// Book indexes the orders at a contract address.
type Book struct {
	src      Source
	contract ledger.Address
	log      logrus.FieldLogger

	mu        sync.Mutex
	sequence  uint64
	totalOpen uint64
	orders    map[ledger.TxOutRef]Entry

	// Subscribers for broadcasting
	subscribers map[chan []byte]bool
	subMu       sync.RWMutex
}

// NewBook creates a book of the orders at contract and syncs it once.
func NewBook(src Source, contract ledger.Address, log logrus.FieldLogger) *Book {
	if log == nil {
		log = logrus.StandardLogger()
	}
	b := &Book{
		src:         src,
		contract:    contract,
		log:         log.WithField("component", "orderbook"),
		orders:      make(map[ledger.TxOutRef]Entry),
		subscribers: make(map[chan []byte]bool),
	}
	b.Sync()
	return b
}

// Contract returns the address the book indexes.
func (b *Book) Contract() ledger.Address {
	return b.contract
}

// Subscribe adds a channel to receive delta broadcasts.
func (b *Book) Subscribe(ch chan []byte) {
	b.subMu.Lock()
	defer b.subMu.Unlock()
	b.subscribers[ch] = true
}

// Unsubscribe removes a subscriber channel.
func (b *Book) Unsubscribe(ch chan []byte) {
	b.subMu.Lock()
	defer b.subMu.Unlock()
	if b.subscribers[ch] {
		delete(b.subscribers, ch)
		close(ch)
	}
}

// broadcast sends a delta to all subscribers without blocking.
func (b *Book) broadcast(delta Delta) {
	data, err := json.Marshal(delta)
	if err != nil {
		b.log.WithError(err).Error("Encoding delta")
		return
	}

	b.subMu.RLock()
	defer b.subMu.RUnlock()

	for ch := range b.subscribers {
		select {
		case ch <- data:
		default:
			// Non-blocking send; drop slow consumers
			b.log.Warn("Dropping delta for slow subscriber")
		}
	}
}

// Sync rescans the contract address and broadcasts the changes, if any.
// Statuses depend on the ledger time, so a sync without any ledger change
// may still update expired orders.
func (b *Book) Sync() Delta {
	now := b.src.Now()
	current := make(map[ledger.TxOutRef]Entry)
	for _, u := range b.src.At(b.contract) {
		o, ok := b.resolve(u)
		if !ok {
			continue
		}
		current[u.Ref] = Entry{Ref: u.Ref, Order: o, Value: u.Out.Value, Status: status(o, now)}
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	var delta Delta
	for ref, e := range current {
		prev, ok := b.orders[ref]
		switch {
		case !ok:
			delta.Added = append(delta.Added, e)
		case prev.Status != e.Status:
			delta.Updated = append(delta.Updated, e)
		}
	}
	for ref := range b.orders {
		if _, ok := current[ref]; !ok {
			delta.Removed = append(delta.Removed, ref)
		}
	}
	if delta.Empty() {
		delta.Sequence, delta.TotalOpen = b.sequence, b.totalOpen
		return delta
	}

	b.orders = current
	b.totalOpen = 0
	for _, e := range current {
		if e.Status == StatusOpen {
			b.totalOpen++
		}
	}
	b.sequence++
	sortEntries(delta.Added)
	sortEntries(delta.Updated)
	ledger.SortRefs(delta.Removed)
	delta.Sequence, delta.TotalOpen = b.sequence, b.totalOpen

	b.log.WithFields(logrus.Fields{
		"sequence": delta.Sequence,
		"added":    len(delta.Added),
		"updated":  len(delta.Updated),
		"removed":  len(delta.Removed),
	}).Debug("Order book changed")
	// Sent under mu so subscribers see deltas in sequence order.
	b.broadcast(delta)
	return delta
}

func (b *Book) resolve(u ledger.UTxO) (order.Order, bool) {
	d := u.Out.Datum
	if d == nil && u.Out.DatumHash != nil {
		d, _ = b.src.Datums().Get(*u.Out.DatumHash)
	}
	o, err := order.AsOrder(d)
	if err != nil {
		b.log.WithField("ref", u.Ref.String()).Debug("Skipping output without order")
		return order.Order{}, false
	}
	return o, true
}

func status(o order.Order, now ledger.ExtendedTime) Status {
	switch {
	case o.BuyAmount == 0:
		return StatusFilled
	case now.Compare(o.Params.ExpiryDate) >= 0:
		return StatusExpired
	default:
		return StatusOpen
	}
}

// Snapshot returns current state.
func (b *Book) Snapshot() Snapshot {
	b.mu.Lock()
	defer b.mu.Unlock()

	return Snapshot{
		Sequence:  b.sequence,
		TotalOpen: b.totalOpen,
		Orders:    b.filter(func(Entry) bool { return true }),
	}
}

// Get returns the order locked in ref.
func (b *Book) Get(ref ledger.TxOutRef) (Entry, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	e, ok := b.orders[ref]
	return e, ok
}

// Owned returns the orders of the given owner.
func (b *Book) Owned(owner ledger.PubKeyHash) []Entry {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.filter(func(e Entry) bool { return e.Order.Params.OwnerPKH == owner })
}

// WithStatus returns the orders with status s.
func (b *Book) WithStatus(s Status) []Entry {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.filter(func(e Entry) bool { return e.Status == s })
}

// Buying returns the open orders buying token.
func (b *Book) Buying(token value.Token) []Entry {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.filter(func(e Entry) bool { return e.Status == StatusOpen && e.Order.Params.Buy == token })
}

func (b *Book) filter(keep func(Entry) bool) []Entry {
	res := make([]Entry, 0, len(b.orders))
	for _, e := range b.orders {
		if keep(e) {
			res = append(res, e)
		}
	}
	sortEntries(res)
	return res
}

func sortEntries(es []Entry) {
	sort.Slice(es, func(i, j int) bool { return es[i].Ref.Less(es[j].Ref) })
}
