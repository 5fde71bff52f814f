package ledger

import (
	"bytes"
	"crypto/ecdsa"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/pkg/errors"

	"github.com/perun-network/perun-did-orderbook/internal/value"
)

type (
	// TxID identifies a transaction.
	TxID = common.Hash

	// TxOutRef references an output of a transaction. It is also used as
	// datum of payout outputs to tie them to the consumed order.
	TxOutRef struct {
		TxID  TxID   `json:"txID"`
		Index uint32 `json:"index"`
	}

	// TxOut is a locked balance, optionally carrying a datum either inline
	// or by hash.
	TxOut struct {
		Address   Address
		Value     value.Value
		Datum     Datum
		DatumHash *common.Hash
	}

	// TxInInfo is a consumed output together with its reference.
	TxInInfo struct {
		OutRef   TxOutRef `json:"outRef"`
		Resolved TxOut    `json:"resolved"`
	}

	// TxInfo is the immutable view on a proposed transaction that is handed
	// to every script invoked by it. Inputs are sorted by reference.
	TxInfo struct {
		ID          TxID
		Inputs      []TxInInfo
		Outputs     []TxOut
		Fee         int64
		Mint        value.Value
		Signatories []PubKeyHash
		ValidRange  Interval
		Datums      map[common.Hash]Datum
	}

	// TxIn spends an output. Outputs locked by a script need a redeemer.
	TxIn struct {
		OutRef   TxOutRef
		Redeemer Redeemer
	}

	// Tx is a proposed transaction as built by an assembler.
	Tx struct {
		Inputs      []TxIn
		Outputs     []TxOut
		Fee         int64
		Mint        value.Value
		Signatories []PubKeyHash
		ValidRange  Interval
		// Datums holds the witnesses of datums referenced by hash.
		Datums []Datum
		// Witnesses sign the transaction id. They are not part of the body.
		Witnesses []Witness
	}

	// Witness is a recoverable secp256k1 signature over a transaction id.
	Witness struct {
		Signature hexutil.Bytes `json:"signature"`
	}
)

// DatumType implements Datum.
func (TxOutRef) DatumType() string { return "TxOutRef" }

// Less orders references by transaction id and index.
func (r TxOutRef) Less(o TxOutRef) bool {
	if c := bytes.Compare(r.TxID[:], o.TxID[:]); c != 0 {
		return c < 0
	}
	return r.Index < o.Index
}

func (r TxOutRef) String() string {
	return fmt.Sprintf("%s#%d", r.TxID.Hex(), r.Index)
}

// SortRefs sorts the references in ledger order, which is the order of
// TxInfo.Inputs.
func SortRefs(refs []TxOutRef) {
	sort.Slice(refs, func(i, j int) bool { return refs[i].Less(refs[j]) })
}

// IndexOf returns the position of ref within the sorted refs, or -1.
func IndexOf(refs []TxOutRef, ref TxOutRef) int {
	for i, r := range refs {
		if r == ref {
			return i
		}
	}
	return -1
}

type txOutJSON struct {
	Address   Address      `json:"address"`
	Value     value.Value  `json:"value"`
	Datum     *DatumObject `json:"datum,omitempty"`
	DatumHash *common.Hash `json:"datumHash,omitempty"`
}

// MarshalJSON marshals a TxOut into JSON.
func (o TxOut) MarshalJSON() ([]byte, error) {
	out := txOutJSON{Address: o.Address, Value: o.Value, DatumHash: o.DatumHash}
	if o.Datum != nil {
		out.Datum = &DatumObject{o.Datum}
	}
	return json.Marshal(out)
}

// UnmarshalJSON unmarshals a TxOut from JSON.
func (o *TxOut) UnmarshalJSON(data []byte) error {
	var in txOutJSON
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}
	*o = TxOut{Address: in.Address, Value: in.Value, DatumHash: in.DatumHash}
	if in.Datum != nil {
		o.Datum = in.Datum.Datum
	}
	return nil
}

type txInJSON struct {
	OutRef   TxOutRef        `json:"outRef"`
	Redeemer *RedeemerObject `json:"redeemer,omitempty"`
}

// MarshalJSON marshals a TxIn into JSON.
func (in TxIn) MarshalJSON() ([]byte, error) {
	out := txInJSON{OutRef: in.OutRef}
	if in.Redeemer != nil {
		out.Redeemer = &RedeemerObject{in.Redeemer}
	}
	return json.Marshal(out)
}

// UnmarshalJSON unmarshals a TxIn from JSON.
func (in *TxIn) UnmarshalJSON(data []byte) error {
	var raw txInJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*in = TxIn{OutRef: raw.OutRef}
	if raw.Redeemer != nil {
		in.Redeemer = raw.Redeemer.Redeemer
	}
	return nil
}

type txJSON struct {
	Inputs      []TxIn        `json:"inputs"`
	Outputs     []TxOut       `json:"outputs"`
	Fee         int64         `json:"fee"`
	Mint        value.Value   `json:"mint,omitempty"`
	Signatories []PubKeyHash  `json:"signatories"`
	ValidRange  Interval      `json:"validRange"`
	Datums      []DatumObject `json:"datums,omitempty"`
	Witnesses   []Witness     `json:"witnesses,omitempty"`
}

// MarshalJSON marshals a Tx into JSON.
func (tx Tx) MarshalJSON() ([]byte, error) {
	out := txJSON{
		Inputs:      tx.Inputs,
		Outputs:     tx.Outputs,
		Fee:         tx.Fee,
		Mint:        tx.Mint,
		Signatories: tx.Signatories,
		ValidRange:  tx.ValidRange,
		Witnesses:   tx.Witnesses,
	}
	for _, d := range tx.Datums {
		out.Datums = append(out.Datums, DatumObject{d})
	}
	return json.Marshal(out)
}

// UnmarshalJSON unmarshals a Tx from JSON.
func (tx *Tx) UnmarshalJSON(data []byte) error {
	var in txJSON
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}
	*tx = Tx{
		Inputs:      in.Inputs,
		Outputs:     in.Outputs,
		Fee:         in.Fee,
		Mint:        in.Mint,
		Signatories: in.Signatories,
		ValidRange:  in.ValidRange,
		Witnesses:   in.Witnesses,
	}
	for _, d := range in.Datums {
		tx.Datums = append(tx.Datums, d.Datum)
	}
	return nil
}

// ID returns the hash of the transaction body. Witnesses do not change
// the id.
func (tx Tx) ID() (TxID, error) {
	tx.Witnesses = nil
	data, err := json.Marshal(tx)
	if err != nil {
		return TxID{}, errors.Wrap(err, "encoding transaction")
	}
	return crypto.Keccak256Hash(data), nil
}

// KeyHash returns the key hash identifying pub.
func KeyHash(pub *ecdsa.PublicKey) PubKeyHash {
	return PubKeyHash(crypto.PubkeyToAddress(*pub).Bytes())
}

// Signer recovers the key hash of the signer of w over id.
func (w Witness) Signer(id TxID) (PubKeyHash, error) {
	pub, err := crypto.SigToPub(id.Bytes(), w.Signature)
	if err != nil {
		return "", errors.Wrap(err, "recovering signer")
	}
	return KeyHash(pub), nil
}

// SortedInputRefs returns the references of the spent outputs in ledger
// order. Action indices refer to this order.
func (tx Tx) SortedInputRefs() []TxOutRef {
	refs := make([]TxOutRef, len(tx.Inputs))
	for i, in := range tx.Inputs {
		refs[i] = in.OutRef
	}
	SortRefs(refs)
	return refs
}

// SignedBy reports whether pkh is among the declared signatories.
func (info *TxInfo) SignedBy(pkh PubKeyHash) bool {
	for _, s := range info.Signatories {
		if s == pkh {
			return true
		}
	}
	return false
}

// ResolveDatum returns the datum of out, looking datum hashes up in the
// witness set of the transaction.
func (info *TxInfo) ResolveDatum(out TxOut) (Datum, error) {
	if out.Datum != nil {
		return out.Datum, nil
	}
	if out.DatumHash == nil {
		return nil, errors.New("output carries no datum")
	}
	d, ok := info.Datums[*out.DatumHash]
	if !ok {
		return nil, errors.Errorf("datum %s not found in witness set", out.DatumHash.Hex())
	}
	return d, nil
}

// InputValue returns the total value consumed by the transaction.
func (info *TxInfo) InputValue() value.Value {
	total := value.New()
	for _, in := range info.Inputs {
		total = value.Add(total, in.Resolved.Value)
	}
	return total
}

// OutputValue returns the total value produced by the transaction.
func (info *TxInfo) OutputValue() value.Value {
	total := value.New()
	for _, out := range info.Outputs {
		total = value.Add(total, out.Value)
	}
	return total
}
