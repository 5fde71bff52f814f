package ledger

import (
	"encoding/json"
	"fmt"
	"reflect"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/pkg/errors"
)

type (
	// Datum is a record attached to a ledger output.
	Datum interface{ DatumType() string }

	// Redeemer is the argument handed to a script when spending one of its
	// outputs.
	Redeemer interface{ RedeemerType() string }

	// DatumObject is a wrapper for a Datum that includes the datum type.
	DatumObject struct {
		Datum
	}

	// RedeemerObject is a wrapper for a Redeemer that includes the
	// redeemer type.
	RedeemerObject struct {
		Redeemer
	}
)

// registry maps type names to their reflected type. It is used to
// unmarshal tagged values when having their type name.
type registry struct {
	mu    sync.RWMutex
	types map[string]reflect.Type
}

func (r *registry) register(name string, t reflect.Type) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if prev, ok := r.types[name]; ok && prev != t {
		panic(fmt.Sprintf("ledger: type name %q registered twice", name))
	}
	r.types[name] = t
}

func (r *registry) decode(name string, data []byte) (interface{}, error) {
	r.mu.RLock()
	t, ok := r.types[name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("type '%s' not found", name)
	}
	obj := reflect.New(t)
	if err := json.Unmarshal(data, obj.Interface()); err != nil {
		return nil, err
	}
	return obj.Elem().Interface(), nil
}

var (
	datumTypes    = &registry{types: make(map[string]reflect.Type)}
	redeemerTypes = &registry{types: make(map[string]reflect.Type)}
)

func init() {
	RegisterDatum(TxOutRef{})
}

// RegisterDatum makes the type of d decodable by DatumObject.
func RegisterDatum(d Datum) {
	datumTypes.register(d.DatumType(), reflect.TypeOf(d))
}

// RegisterRedeemer makes the type of r decodable by RedeemerObject.
func RegisterRedeemer(r Redeemer) {
	redeemerTypes.register(r.RedeemerType(), reflect.TypeOf(r))
}

// MarshalJSON marshals a DatumObject into JSON.
func (o DatumObject) MarshalJSON() ([]byte, error) {
	if o.Datum == nil {
		return nil, errors.New("nil datum")
	}
	return json.Marshal(struct {
		Type  string `json:"type"`
		Datum Datum  `json:"datum"`
	}{
		Type:  o.Datum.DatumType(),
		Datum: o.Datum,
	})
}

// UnmarshalJSON unmarshals a DatumObject from JSON.
func (o *DatumObject) UnmarshalJSON(data []byte) error {
	var msg struct {
		Type  string          `json:"type"`
		Datum json.RawMessage `json:"datum"`
	}
	if err := json.Unmarshal(data, &msg); err != nil {
		return err
	}
	obj, err := datumTypes.decode(msg.Type, msg.Datum)
	if err != nil {
		return errors.Wrap(err, "decoding datum")
	}
	o.Datum = obj.(Datum)
	return nil
}

// MarshalJSON marshals a RedeemerObject into JSON.
func (o RedeemerObject) MarshalJSON() ([]byte, error) {
	if o.Redeemer == nil {
		return nil, errors.New("nil redeemer")
	}
	return json.Marshal(struct {
		Type     string   `json:"type"`
		Redeemer Redeemer `json:"redeemer"`
	}{
		Type:     o.Redeemer.RedeemerType(),
		Redeemer: o.Redeemer,
	})
}

// UnmarshalJSON unmarshals a RedeemerObject from JSON.
func (o *RedeemerObject) UnmarshalJSON(data []byte) error {
	var msg struct {
		Type     string          `json:"type"`
		Redeemer json.RawMessage `json:"redeemer"`
	}
	if err := json.Unmarshal(data, &msg); err != nil {
		return err
	}
	obj, err := redeemerTypes.decode(msg.Type, msg.Redeemer)
	if err != nil {
		return errors.Wrap(err, "decoding redeemer")
	}
	o.Redeemer = obj.(Redeemer)
	return nil
}

// EncodeDatum returns the canonical encoding of d. Struct fields are
// encoded in declaration order and map keys sorted, so equal datums always
// encode to the same bytes.
func EncodeDatum(d Datum) ([]byte, error) {
	return json.Marshal(DatumObject{d})
}

// HashDatum returns the content address of d.
func HashDatum(d Datum) (common.Hash, error) {
	data, err := EncodeDatum(d)
	if err != nil {
		return common.Hash{}, errors.Wrap(err, "encoding datum")
	}
	return crypto.Keccak256Hash(data), nil
}

// DatumStore is a content-addressed store of datums. It never mutates a
// stored datum, a new version of a record always lives under a new hash.
type DatumStore struct {
	mu     sync.RWMutex
	datums map[common.Hash]Datum
}

// NewDatumStore creates an empty store.
func NewDatumStore() *DatumStore {
	return &DatumStore{datums: make(map[common.Hash]Datum)}
}

// Put stores d and returns its hash.
func (s *DatumStore) Put(d Datum) (common.Hash, error) {
	h, err := HashDatum(d)
	if err != nil {
		return common.Hash{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.datums[h] = d
	return h, nil
}

// Get returns the datum stored under h.
func (s *DatumStore) Get(h common.Hash) (Datum, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	d, ok := s.datums[h]
	return d, ok
}
