package value_test

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/perun-network/perun-did-orderbook/internal/value"
)

var (
	buy  = value.MakeToken("policy_buy", "BUY")
	sell = value.MakeToken("policy_sell", "SELL")
)

func TestGetDefaultsToZero(t *testing.T) {
	v := value.Of(buy, 5)
	assert.Equal(t, int64(5), v.Get(buy))
	assert.Equal(t, int64(0), v.Get(sell))
	assert.Equal(t, int64(0), value.Value(nil).Get(buy))
}

func TestAddSubtract(t *testing.T) {
	a := value.Add(value.Of(buy, 10), value.FromLovelace(2_000_000))
	b := value.Add(value.Of(buy, 4), value.Of(sell, 3))

	sum := value.Add(a, b)
	assert.Equal(t, int64(14), sum.Get(buy))
	assert.Equal(t, int64(3), sum.Get(sell))
	assert.Equal(t, int64(2_000_000), sum.Lovelace())

	diff := value.Subtract(a, b)
	assert.Equal(t, int64(6), diff.Get(buy))
	assert.Equal(t, int64(-3), diff.Get(sell))
	assert.True(t, diff.HasNegative())

	// operands are untouched
	assert.Equal(t, int64(10), a.Get(buy))
	assert.Equal(t, int64(0), a.Get(sell))
}

func TestLovelaceHelpersTouchOnlyNativeSlot(t *testing.T) {
	v := value.Of(sell, 200)
	v2 := value.AddLovelace(v, 7)
	assert.Equal(t, int64(7), v2.Lovelace())
	assert.Equal(t, int64(200), v2.Get(sell))

	v3 := value.SubtractLovelace(v2, 10)
	assert.Equal(t, int64(-3), v3.Lovelace())
	assert.Equal(t, int64(200), v3.Get(sell))
	assert.Equal(t, int64(0), v.Lovelace())
}

func TestGreaterOrEqual(t *testing.T) {
	tests := []struct {
		name string
		a, b value.Value
		want bool
	}{
		{"equal", value.Of(buy, 5), value.Of(buy, 5), true},
		{"exceeds", value.Of(buy, 6), value.Of(buy, 5), true},
		{"short", value.Of(buy, 4), value.Of(buy, 5), false},
		{"missing key", value.Of(sell, 100), value.Of(buy, 1), false},
		{"extra keys in a", value.Add(value.Of(buy, 5), value.Of(sell, 1)), value.Of(buy, 5), true},
		{"negative entries ignored", value.New(), value.Of(sell, -80), true},
		{"zero entries ignored", value.New(), value.Of(sell, 0), true},
		{"empty b", value.New(), value.New(), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, value.GreaterOrEqual(tt.a, tt.b))
		})
	}
}

func TestEqualIgnoresZeroEntries(t *testing.T) {
	a := value.Add(value.Of(buy, 5), value.Of(sell, 0))
	b := value.Of(buy, 5)
	assert.True(t, a.Equal(b))
	assert.False(t, a.Equal(value.Of(buy, 6)))
	assert.Len(t, a.Normalize(), 1)
	assert.Equal(t, []value.Token{buy}, a.Tokens())
}

func TestJSONRoundTripUsesHexKeys(t *testing.T) {
	v := value.Add(value.Of(buy, 5), value.FromLovelace(42))
	data, err := json.Marshal(v)
	require.NoError(t, err)
	assert.Contains(t, string(data), value.PolicyID("policy_buy").Hex())

	var decoded value.Value
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.True(t, v.Equal(decoded))
}

func TestPolicyIDFromHex(t *testing.T) {
	p, err := value.PolicyIDFromHex("0xabcd")
	require.NoError(t, err)
	assert.Equal(t, value.PolicyID("\xab\xcd"), p)

	p, err = value.PolicyIDFromHex("abcd")
	require.NoError(t, err)
	assert.Equal(t, "abcd", p.Hex())

	_, err = value.PolicyIDFromHex("abc")
	assert.Error(t, err)

	empty, err := value.PolicyIDFromHex("")
	require.NoError(t, err)
	assert.True(t, value.MakeToken(empty, "").IsLovelace())
}
