package did

import (
	"strings"

	"github.com/perun-network/perun-did-orderbook/internal/ledger"
	"github.com/perun-network/perun-did-orderbook/internal/order"
)

// Checker evaluates DID requirements against a proposed transaction.
type Checker struct {
	registry *Registry
}

// NewChecker creates a checker recognizing the issuers of registry.
func NewChecker(registry *Registry) *Checker {
	return &Checker{registry: registry}
}

// Registry returns the issuers recognized by c.
func (c *Checker) Registry() *Registry {
	return c.registry
}

// CheckCompliance reports whether the party at addr satisfies req within
// tx. Only the inputs of tx spent from addr are considered.
func (c *Checker) CheckCompliance(addr ledger.Address, req *order.DIDRequirements, tx *ledger.TxInfo) bool {
	if req == nil || len(req.AcceptedDIDTypes) == 0 {
		return true
	}

	var held []Credential
	for _, in := range tx.Inputs {
		if !in.Resolved.Address.Equal(addr) {
			continue
		}
		held = append(held, c.registry.Credentials(in.Resolved.Value)...)
	}
	if len(held) == 0 {
		return req.AllowNonDIDTrading
	}

	for _, cred := range held {
		for _, accepted := range req.AcceptedDIDTypes {
			if Satisfies(cred, accepted) {
				return true
			}
		}
	}
	return false
}

// HoldsCredential reports whether out carries any recognized credential.
func (c *Checker) HoldsCredential(out ledger.TxOut) bool {
	return len(c.registry.Credentials(out.Value)) > 0
}

// Satisfies reports whether cred is an instance of the accepted type.
func Satisfies(cred Credential, accepted order.DIDType) bool {
	if cred.Token.PolicyID != accepted.PolicyID {
		return false
	}
	if !strings.HasPrefix(string(cred.Token.TokenName), string(accepted.NamePattern)) {
		return false
	}
	return cred.Issuer.AuthLevel >= accepted.MinAuthLevel
}
