// Package value implements multi-asset balances as they are locked in
// ledger outputs.
//
// A Value maps a minting policy to the token names minted under it and
// their signed amounts. Absent and zero entries are equivalent. The
// native coin lives under the empty policy and the empty token name.
//
// NOTE: order accounting built on top of this package assumes that the
// buy and sell token of an order are distinct.
package value

import (
	"fmt"
	"sort"
	"strings"
)

type (
	// PolicyID identifies a minting policy. It holds the raw policy hash
	// bytes, use PolicyIDFromHex to create one from its hex encoding.
	PolicyID string

	// TokenName is the raw name of a token under a policy.
	TokenName string

	// Token identifies a single asset class.
	Token struct {
		PolicyID  PolicyID
		TokenName TokenName
	}

	// Value is a multi-asset balance.
	Value map[PolicyID]map[TokenName]int64
)

// Lovelace is the native coin of the ledger.
var Lovelace = Token{}

// MakeToken creates a Token.
func MakeToken(policy PolicyID, name TokenName) Token {
	return Token{PolicyID: policy, TokenName: name}
}

// IsLovelace reports whether t is the native coin.
func (t Token) IsLovelace() bool {
	return t.PolicyID == "" && t.TokenName == ""
}

func (t Token) String() string {
	if t.IsLovelace() {
		return "lovelace"
	}
	return t.PolicyID.Hex() + "." + t.TokenName.Hex()
}

// New returns an empty Value.
func New() Value {
	return make(Value)
}

// Of returns a Value holding amount of token.
func Of(token Token, amount int64) Value {
	return Value{token.PolicyID: {token.TokenName: amount}}
}

// FromLovelace returns a Value holding only the given amount of native coin.
func FromLovelace(amount int64) Value {
	return Of(Lovelace, amount)
}

// Get returns the amount of token in v, defaulting to 0.
func (v Value) Get(token Token) int64 {
	return v[token.PolicyID][token.TokenName]
}

// Lovelace returns the amount of native coin in v.
func (v Value) Lovelace() int64 {
	return v.Get(Lovelace)
}

// Clone returns a deep copy of v.
func (v Value) Clone() Value {
	out := make(Value, len(v))
	for p, names := range v {
		cp := make(map[TokenName]int64, len(names))
		for n, amt := range names {
			cp[n] = amt
		}
		out[p] = cp
	}
	return out
}

func (v Value) add(token Token, amount int64) {
	names, ok := v[token.PolicyID]
	if !ok {
		names = make(map[TokenName]int64)
		v[token.PolicyID] = names
	}
	names[token.TokenName] += amount
}

// Add returns a + b.
func Add(a, b Value) Value {
	out := a.Clone()
	for p, names := range b {
		for n, amt := range names {
			out.add(MakeToken(p, n), amt)
		}
	}
	return out
}

// Subtract returns a - b. The result may contain negative entries, which
// is intended for delta comparisons.
func Subtract(a, b Value) Value {
	out := a.Clone()
	for p, names := range b {
		for n, amt := range names {
			out.add(MakeToken(p, n), -amt)
		}
	}
	return out
}

// AddLovelace returns v with amount native coin added. Only the native
// slot is touched.
func AddLovelace(v Value, amount int64) Value {
	out := v.Clone()
	out.add(Lovelace, amount)
	return out
}

// SubtractLovelace returns v with amount native coin removed.
func SubtractLovelace(v Value, amount int64) Value {
	return AddLovelace(v, -amount)
}

// GreaterOrEqual reports whether every positive entry of b is matched or
// exceeded in a.
func GreaterOrEqual(a, b Value) bool {
	for p, names := range b {
		for n, amt := range names {
			if amt <= 0 {
				continue
			}
			if a[p][n] < amt {
				return false
			}
		}
	}
	return true
}

// Normalize returns a copy of v without zero entries and empty policies.
func (v Value) Normalize() Value {
	out := make(Value)
	for p, names := range v {
		for n, amt := range names {
			if amt != 0 {
				out.add(MakeToken(p, n), amt)
			}
		}
	}
	return out
}

// Equal reports whether v and o hold the same amounts, treating absent
// and zero entries alike.
func (v Value) Equal(o Value) bool {
	return Subtract(v, o).IsZero()
}

// IsZero reports whether every entry of v is zero.
func (v Value) IsZero() bool {
	for _, names := range v {
		for _, amt := range names {
			if amt != 0 {
				return false
			}
		}
	}
	return true
}

// HasNegative reports whether any entry of v is negative.
func (v Value) HasNegative() bool {
	for _, names := range v {
		for _, amt := range names {
			if amt < 0 {
				return true
			}
		}
	}
	return false
}

// Tokens returns the tokens with a non-zero amount in a deterministic order.
func (v Value) Tokens() []Token {
	var tokens []Token
	for p, names := range v {
		for n, amt := range names {
			if amt != 0 {
				tokens = append(tokens, MakeToken(p, n))
			}
		}
	}
	sort.Slice(tokens, func(i, j int) bool {
		if tokens[i].PolicyID != tokens[j].PolicyID {
			return tokens[i].PolicyID < tokens[j].PolicyID
		}
		return tokens[i].TokenName < tokens[j].TokenName
	})
	return tokens
}

func (v Value) String() string {
	parts := make([]string, 0)
	for _, t := range v.Tokens() {
		parts = append(parts, fmt.Sprintf("%s:%d", t, v.Get(t)))
	}
	return "{" + strings.Join(parts, " ") + "}"
}
