package value

import (
	"encoding/json"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/pkg/errors"
)

// decodeHex decodes a hex string with or without 0x prefix. The empty
// string decodes to no bytes.
func decodeHex(s string) ([]byte, error) {
	s = strings.TrimPrefix(strings.TrimPrefix(s, "0x"), "0X")
	b, err := hexutil.Decode("0x" + s)
	if err != nil {
		return nil, errors.Wrapf(err, "decoding hex %q", s)
	}
	return b, nil
}

// PolicyIDFromHex parses a hex encoded policy id.
func PolicyIDFromHex(s string) (PolicyID, error) {
	b, err := decodeHex(s)
	if err != nil {
		return "", err
	}
	return PolicyID(b), nil
}

// MustPolicyIDFromHex is like PolicyIDFromHex but panics on error.
func MustPolicyIDFromHex(s string) PolicyID {
	p, err := PolicyIDFromHex(s)
	if err != nil {
		panic(err)
	}
	return p
}

// Hex returns the hex encoding of the policy id.
func (p PolicyID) Hex() string {
	return common.Bytes2Hex([]byte(p))
}

// MarshalText encodes the policy id as hex.
func (p PolicyID) MarshalText() ([]byte, error) {
	return []byte(p.Hex()), nil
}

// UnmarshalText decodes a hex policy id.
func (p *PolicyID) UnmarshalText(data []byte) (err error) {
	*p, err = PolicyIDFromHex(string(data))
	return err
}

// TokenNameFromHex parses a hex encoded token name.
func TokenNameFromHex(s string) (TokenName, error) {
	b, err := decodeHex(s)
	if err != nil {
		return "", err
	}
	return TokenName(b), nil
}

// Hex returns the hex encoding of the token name.
func (n TokenName) Hex() string {
	return common.Bytes2Hex([]byte(n))
}

// MarshalText encodes the token name as hex.
func (n TokenName) MarshalText() ([]byte, error) {
	return []byte(n.Hex()), nil
}

// UnmarshalText decodes a hex token name.
func (n *TokenName) UnmarshalText(data []byte) (err error) {
	*n, err = TokenNameFromHex(string(data))
	return err
}

// MarshalJSON marshals a Token into JSON.
func (t Token) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		PolicyID  string `json:"policyID"`
		TokenName string `json:"tokenName"`
	}{
		PolicyID:  t.PolicyID.Hex(),
		TokenName: t.TokenName.Hex(),
	})
}

// UnmarshalJSON unmarshals a Token from JSON.
func (t *Token) UnmarshalJSON(data []byte) error {
	var raw struct {
		PolicyID  string `json:"policyID"`
		TokenName string `json:"tokenName"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	p, err := PolicyIDFromHex(raw.PolicyID)
	if err != nil {
		return errors.Wrap(err, "token policy")
	}
	n, err := TokenNameFromHex(raw.TokenName)
	if err != nil {
		return errors.Wrap(err, "token name")
	}
	*t = MakeToken(p, n)
	return nil
}

// MarshalJSON marshals a Value into JSON. Policies and token names are
// hex encoded; encoding/json sorts the keys, so the output is stable.
func (v Value) MarshalJSON() ([]byte, error) {
	out := make(map[string]map[string]int64, len(v))
	for p, names := range v {
		m := make(map[string]int64, len(names))
		for n, amt := range names {
			m[n.Hex()] = amt
		}
		out[p.Hex()] = m
	}
	return json.Marshal(out)
}

// UnmarshalJSON unmarshals a Value from JSON.
func (v *Value) UnmarshalJSON(data []byte) error {
	var raw map[string]map[string]int64
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	out := make(Value, len(raw))
	for ph, names := range raw {
		p, err := PolicyIDFromHex(ph)
		if err != nil {
			return err
		}
		for nh, amt := range names {
			n, err := TokenNameFromHex(nh)
			if err != nil {
				return err
			}
			out.add(MakeToken(p, n), amt)
		}
	}
	*v = out
	return nil
}
