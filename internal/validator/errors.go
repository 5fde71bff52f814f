package validator

import (
	"fmt"

	"github.com/pkg/errors"
)

// Kind classifies why a transaction was rejected.
type Kind uint

const (
	// MalformedAction: an index of the action does not identify the
	// expected input or output.
	MalformedAction Kind = iota + 1
	// Authorization: a signature or a DID credential is missing.
	Authorization
	// Boundary: an amount or ratio lies outside its allowed range.
	Boundary
	// RecordMismatch: the continuation record differs from the expected one.
	RecordMismatch
	// ValueConservation: an output does not carry the required value or
	// goes to the wrong address.
	ValueConservation
)

// Sentinels matching every Error of the respective kind.
var (
	ErrMalformedAction   = errors.New("malformed action")
	ErrAuthorization     = errors.New("authorization failed")
	ErrBoundary          = errors.New("amount out of bounds")
	ErrRecordMismatch    = errors.New("record mismatch")
	ErrValueConservation = errors.New("value not conserved")
)

var kindNames = []string{"", "MalformedAction", "Authorization", "Boundary", "RecordMismatch", "ValueConservation"}

func (k Kind) String() string {
	if int(k) < len(kindNames) && k != 0 {
		return kindNames[k]
	}
	return fmt.Sprintf("Kind(%d)", uint(k))
}

func (k Kind) sentinel() error {
	switch k {
	case MalformedAction:
		return ErrMalformedAction
	case Authorization:
		return ErrAuthorization
	case Boundary:
		return ErrBoundary
	case RecordMismatch:
		return ErrRecordMismatch
	case ValueConservation:
		return ErrValueConservation
	}
	return nil
}

// Failure codes. They are short and stable so they can be matched by
// assemblers retrying with a different transaction.
const (
	CodeInputIndex    = "E_IN_IDX"
	CodeInputRef      = "E_IN_REF"
	CodeInputDatum    = "E_IN_DATUM"
	CodeOutputIndex   = "E_OUT_IDX"
	CodeAction        = "E_ACTION"
	CodeSignature     = "E_SIG"
	CodeCredential    = "E_CRED"
	CodeDID           = "E_DID"
	CodeFillAmount    = "E_FILL"
	CodePartial       = "E_PARTIAL"
	CodeMinFill       = "E_MIN_FILL"
	CodeNoFeatures    = "E_NO_FEATURES"
	CodeTriggerRatio  = "E_RATIO"
	CodeStopLoss      = "E_STOP_LOSS"
	CodeNotExpired    = "E_NOT_EXPIRED"
	CodeOutputDatum   = "E_OUT_DATUM"
	CodeOutputAddress = "E_OUT_ADDR"
	CodeOutputValue   = "E_OUT_VALUE"
	CodeReturnValue   = "E_RETURN_VALUE"
)

// Error is a rejection of the validator.
type Error struct {
	Kind Kind
	Code string
	Msg  string
}

func newError(kind Kind, code, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Code: code, Msg: fmt.Sprintf(format, args...)}
}

func (e *Error) Error() string {
	return e.Code + ": " + e.Msg
}

// Is makes errors.Is match the sentinel of the error's kind.
func (e *Error) Is(target error) bool {
	return target != nil && target == e.Kind.sentinel()
}

// Cause returns the sentinel of the error's kind, for errors.Cause.
func (e *Error) Cause() error {
	return e.Kind.sentinel()
}

// Code returns the failure code of err, or the empty string if err was not
// returned by the validator.
func Code(err error) string {
	var verr *Error
	if errors.As(err, &verr) {
		return verr.Code
	}
	return ""
}
