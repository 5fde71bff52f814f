package ledger

import (
	"sort"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/perun-network/perun-did-orderbook/internal/value"
)

// Script judges whether a transaction may spend an output locked by it.
// It must be a pure function of its arguments.
type Script interface {
	Validate(own TxOutRef, datum Datum, redeemer Redeemer, tx *TxInfo) error
}

// ScriptFunc adapts a function to the Script interface.
type ScriptFunc func(own TxOutRef, datum Datum, redeemer Redeemer, tx *TxInfo) error

// Validate calls f.
func (f ScriptFunc) Validate(own TxOutRef, datum Datum, redeemer Redeemer, tx *TxInfo) error {
	return f(own, datum, redeemer, tx)
}

// UTxO is an unspent output together with its reference.
type UTxO struct {
	Ref TxOutRef `json:"ref"`
	Out TxOut    `json:"out"`
}

// ErrScriptRejected matches every ScriptError.
var ErrScriptRejected = errors.New("script rejected transaction")

// ScriptError is returned by Apply when a script rejects the transaction.
// It unwraps to the script's own error.
type ScriptError struct {
	Input TxOutRef
	Err   error
}

func (e *ScriptError) Error() string {
	return "input " + e.Input.String() + ": " + e.Err.Error()
}

// Unwrap returns the error of the script.
func (e *ScriptError) Unwrap() error { return e.Err }

// Is reports whether target is ErrScriptRejected.
func (e *ScriptError) Is(target error) bool { return target == ErrScriptRejected }

// UTxOSet is the set of unspent outputs. Transactions are applied
// atomically: either every consumed output is spent and every new output
// created, or nothing changes.
type UTxOSet struct {
	mu      sync.RWMutex
	utxos   map[TxOutRef]TxOut
	scripts map[CredentialHash]Script
	datums  *DatumStore
	now     ExtendedTime
	log     logrus.FieldLogger
}

// NewUTxOSet creates an empty set.
func NewUTxOSet(log logrus.FieldLogger) *UTxOSet {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &UTxOSet{
		utxos:   make(map[TxOutRef]TxOut),
		scripts: make(map[CredentialHash]Script),
		datums:  NewDatumStore(),
		now:     FiniteTime(0),
		log:     log,
	}
}

// RegisterScript installs the script guarding outputs at script addresses
// with the given hash.
func (s *UTxOSet) RegisterScript(hash CredentialHash, script Script) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.scripts[hash] = script
}

// SetTime sets the current ledger time in milliseconds.
func (s *UTxOSet) SetTime(ms int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = FiniteTime(ms)
}

// Now returns the current ledger time.
func (s *UTxOSet) Now() ExtendedTime {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.now
}

// Datums returns the content-addressed datum store of the ledger.
func (s *UTxOSet) Datums() *DatumStore {
	return s.datums
}

// Mint creates an output out of thin air, for bootstrapping wallets in
// tests and simulations.
func (s *UTxOSet) Mint(out TxOut) (TxOutRef, error) {
	tx := Tx{Outputs: []TxOut{out}, Mint: out.Value, ValidRange: Always()}
	id, err := tx.ID()
	if err != nil {
		return TxOutRef{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	// Distinct genesis outputs with identical content need distinct ids.
	for {
		if _, ok := s.utxos[TxOutRef{TxID: id}]; !ok {
			break
		}
		id = crypto.Keccak256Hash(id.Bytes())
	}
	ref := TxOutRef{TxID: id}
	s.utxos[ref] = out
	if out.Datum != nil {
		if _, err := s.datums.Put(out.Datum); err != nil {
			return TxOutRef{}, err
		}
	}
	return ref, nil
}

// Insert restores an output of a ledger snapshot under its reference.
func (s *UTxOSet) Insert(u UTxO) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.utxos[u.Ref]; ok {
		return errors.Errorf("output %v already exists", u.Ref)
	}
	if u.Out.Datum != nil {
		if _, err := s.datums.Put(u.Out.Datum); err != nil {
			return err
		}
	}
	s.utxos[u.Ref] = u.Out
	return nil
}

// Get returns the unspent output with the given reference.
func (s *UTxOSet) Get(ref TxOutRef) (TxOut, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out, ok := s.utxos[ref]
	return out, ok
}

// At returns all unspent outputs at addr in ledger order.
func (s *UTxOSet) At(addr Address) []UTxO {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var res []UTxO
	for ref, out := range s.utxos {
		if out.Address.Equal(addr) {
			res = append(res, UTxO{Ref: ref, Out: out})
		}
	}
	sort.Slice(res, func(i, j int) bool { return res[i].Ref.Less(res[j].Ref) })
	return res
}

// Len returns the number of unspent outputs.
func (s *UTxOSet) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.utxos)
}

// Resolve builds the view on tx that is handed to scripts.
func (s *UTxOSet) Resolve(tx Tx) (*TxInfo, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.resolve(tx)
}

func (s *UTxOSet) resolve(tx Tx) (*TxInfo, error) {
	id, err := tx.ID()
	if err != nil {
		return nil, err
	}
	info := &TxInfo{
		ID:          id,
		Outputs:     tx.Outputs,
		Fee:         tx.Fee,
		Mint:        tx.Mint,
		Signatories: tx.Signatories,
		ValidRange:  tx.ValidRange,
		Datums:      make(map[common.Hash]Datum, len(tx.Datums)),
	}
	seen := make(map[TxOutRef]bool, len(tx.Inputs))
	for _, ref := range tx.SortedInputRefs() {
		if seen[ref] {
			return nil, errors.Errorf("input %v spent twice", ref)
		}
		seen[ref] = true
		out, ok := s.utxos[ref]
		if !ok {
			return nil, errors.Errorf("input %v not found", ref)
		}
		info.Inputs = append(info.Inputs, TxInInfo{OutRef: ref, Resolved: out})
	}
	for _, d := range tx.Datums {
		h, err := HashDatum(d)
		if err != nil {
			return nil, err
		}
		info.Datums[h] = d
	}
	return info, nil
}

// Apply validates tx against the current set and commits it. Every
// script guarding a consumed output is invoked once on the same TxInfo;
// the transaction is only committed if all of them accept.
func (s *UTxOSet) Apply(tx Tx) (TxID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	info, err := s.resolve(tx)
	if err != nil {
		return TxID{}, err
	}
	log := s.log.WithField("tx", info.ID.Hex())

	if err := checkWitnesses(info, tx.Witnesses); err != nil {
		return TxID{}, err
	}
	if !info.ValidRange.Contains(s.now) {
		return TxID{}, errors.Errorf("ledger time %v outside validity range %v", s.now, info.ValidRange)
	}
	if err := s.checkBalance(info); err != nil {
		return TxID{}, err
	}

	redeemers := make(map[TxOutRef]Redeemer, len(tx.Inputs))
	for _, in := range tx.Inputs {
		redeemers[in.OutRef] = in.Redeemer
	}
	for _, in := range info.Inputs {
		if err := s.checkSpend(info, in, redeemers[in.OutRef]); err != nil {
			log.WithError(err).WithField("input", in.OutRef.String()).Debug("Rejected transaction")
			return TxID{}, err
		}
	}

	// Datums are hashed before anything is mutated, so the commit below
	// cannot fail halfway.
	for i, out := range info.Outputs {
		if out.Datum == nil {
			continue
		}
		if _, err := HashDatum(out.Datum); err != nil {
			return TxID{}, errors.Wrapf(err, "output %d", i)
		}
	}

	for _, in := range info.Inputs {
		delete(s.utxos, in.OutRef)
	}
	for i, out := range info.Outputs {
		s.utxos[TxOutRef{TxID: info.ID, Index: uint32(i)}] = out
		if out.Datum != nil {
			if _, err := s.datums.Put(out.Datum); err != nil {
				return TxID{}, err
			}
		}
	}
	for _, d := range info.Datums {
		if _, err := s.datums.Put(d); err != nil {
			return TxID{}, err
		}
	}
	log.WithFields(logrus.Fields{
		"inputs":  len(info.Inputs),
		"outputs": len(info.Outputs),
	}).Debug("Committed transaction")
	return info.ID, nil
}

// checkWitnesses requires a valid signature of every declared signatory.
func checkWitnesses(info *TxInfo, witnesses []Witness) error {
	signed := make(map[PubKeyHash]bool, len(witnesses))
	for i, w := range witnesses {
		pkh, err := w.Signer(info.ID)
		if err != nil {
			return errors.WithMessagef(err, "witness %d", i)
		}
		signed[pkh] = true
	}
	for _, s := range info.Signatories {
		if !signed[s] {
			return errors.Errorf("missing witness of signatory %s", s.Hex())
		}
	}
	return nil
}

// checkBalance enforces inputs + mint == outputs + fee and non-negative
// outputs.
func (s *UTxOSet) checkBalance(info *TxInfo) error {
	for i, out := range info.Outputs {
		if out.Value.HasNegative() {
			return errors.Errorf("output %d has negative value %v", i, out.Value)
		}
	}
	if info.Fee < 0 {
		return errors.Errorf("negative fee %d", info.Fee)
	}
	produced := value.AddLovelace(info.OutputValue(), info.Fee)
	consumed := value.Add(info.InputValue(), info.Mint)
	if !consumed.Equal(produced) {
		return errors.Errorf("value not preserved: consumed %v, produced %v", consumed, produced)
	}
	return nil
}

func (s *UTxOSet) checkSpend(info *TxInfo, in TxInInfo, redeemer Redeemer) error {
	addr := in.Resolved.Address
	if !addr.IsScript() {
		if !info.SignedBy(addr.Payment.Hash) {
			return errors.Errorf("input %v: missing signature of %s", in.OutRef, addr.Payment.Hash.Hex())
		}
		return nil
	}

	script, ok := s.scripts[addr.Payment.Hash]
	if !ok {
		return errors.Errorf("input %v: no script registered for %s", in.OutRef, addr)
	}
	if redeemer == nil {
		return errors.Errorf("input %v: missing redeemer", in.OutRef)
	}
	datum := in.Resolved.Datum
	if datum == nil && in.Resolved.DatumHash != nil {
		if d, ok := s.datums.Get(*in.Resolved.DatumHash); ok {
			datum = d
		} else if d, ok := info.Datums[*in.Resolved.DatumHash]; ok {
			datum = d
		}
	}
	if datum == nil {
		return errors.Errorf("input %v: datum not resolvable", in.OutRef)
	}
	if err := script.Validate(in.OutRef, datum, redeemer, info); err != nil {
		return &ScriptError{Input: in.OutRef, Err: err}
	}
	return nil
}
