package ledger

import (
	"encoding/json"
	"fmt"
)

// TimeKind distinguishes finite points in time from the open ends of the
// time line.
type TimeKind uint

const (
	// NegInf lies before every finite time.
	NegInf TimeKind = iota
	// Finite is a POSIX time in milliseconds.
	Finite
	// PosInf lies after every finite time.
	PosInf
)

var timeKindNames = []string{"NegInf", "Finite", "PosInf"}

// String returns the string representation of the time kind.
func (k TimeKind) String() string {
	return timeKindNames[k]
}

// MarshalJSON marshals a TimeKind into JSON.
func (k TimeKind) MarshalJSON() ([]byte, error) {
	return json.Marshal(k.String())
}

// UnmarshalJSON unmarshals a TimeKind from JSON.
func (k *TimeKind) UnmarshalJSON(data []byte) error {
	var s string
	err := json.Unmarshal(data, &s)
	if err != nil {
		return err
	}
	*k, err = ParseTimeKind(s)
	return err
}

// ParseTimeKind parses a time kind string.
func ParseTimeKind(s string) (TimeKind, error) {
	for i, name := range timeKindNames {
		if s == name {
			return TimeKind(i), nil
		}
	}

	err := fmt.Errorf("invalid value for time kind. The value is '%s',"+
		" but must be one of '%v'", s, timeKindNames)

	return TimeKind(0), err
}

// ExtendedTime is a POSIX time in milliseconds extended by both infinities.
type ExtendedTime struct {
	Kind TimeKind `json:"kind"`
	// Millis is only meaningful for Finite times.
	Millis int64 `json:"millis,omitempty"`
}

// FiniteTime returns the finite time at the given milliseconds.
func FiniteTime(ms int64) ExtendedTime {
	return ExtendedTime{Kind: Finite, Millis: ms}
}

// NegInfTime returns the lower end of the time line.
func NegInfTime() ExtendedTime { return ExtendedTime{Kind: NegInf} }

// PosInfTime returns the upper end of the time line.
func PosInfTime() ExtendedTime { return ExtendedTime{Kind: PosInf} }

// Compare returns -1, 0 or 1 if t is before, equal to or after o.
func (t ExtendedTime) Compare(o ExtendedTime) int {
	switch {
	case t.Kind < o.Kind:
		return -1
	case t.Kind > o.Kind:
		return 1
	case t.Kind != Finite:
		return 0
	case t.Millis < o.Millis:
		return -1
	case t.Millis > o.Millis:
		return 1
	}
	return 0
}

// Equal reports whether both times are the same point.
func (t ExtendedTime) Equal(o ExtendedTime) bool {
	return t.Compare(o) == 0
}

func (t ExtendedTime) String() string {
	if t.Kind == Finite {
		return fmt.Sprintf("%dms", t.Millis)
	}
	return t.Kind.String()
}

// Interval is the closed validity interval of a transaction.
type Interval struct {
	Lower ExtendedTime `json:"lower"`
	Upper ExtendedTime `json:"upper"`
}

// Always is the interval covering the whole time line.
func Always() Interval {
	return Interval{Lower: NegInfTime(), Upper: PosInfTime()}
}

// From returns the interval starting at ms without upper bound.
func From(ms int64) Interval {
	return Interval{Lower: FiniteTime(ms), Upper: PosInfTime()}
}

// Between returns the interval [from, to].
func Between(from, to int64) Interval {
	return Interval{Lower: FiniteTime(from), Upper: FiniteTime(to)}
}

// Contains reports whether t lies inside the interval.
func (i Interval) Contains(t ExtendedTime) bool {
	return i.Lower.Compare(t) <= 0 && t.Compare(i.Upper) <= 0
}

// StartsAtOrAfter reports whether every point of the interval is at or
// after t.
func (i Interval) StartsAtOrAfter(t ExtendedTime) bool {
	return i.Lower.Compare(t) >= 0
}

func (i Interval) String() string {
	return fmt.Sprintf("[%v, %v]", i.Lower, i.Upper)
}
