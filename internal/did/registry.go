// Package did decides whether a party satisfies the credential
// requirements of an order. Credentials are tokens minted under a
// recognized issuer policy; holding one is treated as proof, genuine
// issuance is assumed to be checked by the issuer's minting policy.
package did

import (
	"sort"

	"github.com/pkg/errors"

	"github.com/perun-network/perun-did-orderbook/internal/order"
	"github.com/perun-network/perun-did-orderbook/internal/value"
)

// Issuer is a recognized credential issuer. Every credential minted under
// its policy carries the issuer's authentication level.
type Issuer struct {
	Name      string          `json:"name" mapstructure:"name"`
	PolicyID  value.PolicyID  `json:"policyID" mapstructure:"policyID"`
	AuthLevel order.AuthLevel `json:"authLevel" mapstructure:"authLevel"`
}

// Registry is the set of recognized issuers keyed by policy.
type Registry struct {
	issuers map[value.PolicyID]Issuer
}

// NewRegistry creates a registry from the given issuers. Policies must be
// unique and non-empty and levels positive.
func NewRegistry(issuers ...Issuer) (*Registry, error) {
	r := &Registry{issuers: make(map[value.PolicyID]Issuer, len(issuers))}
	for _, is := range issuers {
		if is.PolicyID == "" {
			return nil, errors.Errorf("issuer %q: empty policy id", is.Name)
		}
		if is.AuthLevel <= 0 {
			return nil, errors.Errorf("issuer %q: non-positive auth level %d", is.Name, is.AuthLevel)
		}
		if _, ok := r.issuers[is.PolicyID]; ok {
			return nil, errors.Errorf("duplicate issuer policy %s", is.PolicyID.Hex())
		}
		r.issuers[is.PolicyID] = is
	}
	return r, nil
}

// Lookup returns the issuer of the given policy.
func (r *Registry) Lookup(p value.PolicyID) (Issuer, bool) {
	if r == nil {
		return Issuer{}, false
	}
	is, ok := r.issuers[p]
	return is, ok
}

// Issuers returns all issuers ordered by policy.
func (r *Registry) Issuers() []Issuer {
	if r == nil {
		return nil
	}
	res := make([]Issuer, 0, len(r.issuers))
	for _, is := range r.issuers {
		res = append(res, is)
	}
	sort.Slice(res, func(i, j int) bool { return res[i].PolicyID < res[j].PolicyID })
	return res
}

// Credential is a credential token held by a party.
type Credential struct {
	Token  value.Token
	Issuer Issuer
}

// Credentials returns the recognized credentials contained in v.
func (r *Registry) Credentials(v value.Value) []Credential {
	var creds []Credential
	for _, t := range v.Tokens() {
		if v.Get(t) <= 0 {
			continue
		}
		if is, ok := r.Lookup(t.PolicyID); ok {
			creds = append(creds, Credential{Token: t, Issuer: is})
		}
	}
	return creds
}
