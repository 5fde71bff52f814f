// Package order defines the record attached to every order balance locked
// at the order book contract, and the actions that consume it.
package order

import (
	"github.com/perun-network/perun-did-orderbook/internal/fraction"
	"github.com/perun-network/perun-did-orderbook/internal/ledger"
	"github.com/perun-network/perun-did-orderbook/internal/value"
)

type (
	// Params are the immutable terms of an order. They are only ever
	// replaced as a whole, by cancelling the order and placing a new one in
	// the same transaction.
	Params struct {
		// OwnerPKH is the credential that may cancel the order.
		OwnerPKH ledger.PubKeyHash `json:"ownerPKH"`
		// OwnerAddress receives returned funds. It may differ from the
		// address of OwnerPKH.
		OwnerAddress ledger.Address      `json:"ownerAddress"`
		Buy          value.Token         `json:"buy"`
		Sell         value.Token         `json:"sell"`
		AllowPartial bool                `json:"allowPartial"`
		ExpiryDate   ledger.ExtendedTime `json:"expiryDate"`
		// ReturnReward is withheld by whoever returns the expired order.
		ReturnReward int64 `json:"returnReward"`
		// MinUTxO is the amount of native coin that keeps the order output
		// above the ledger's minimum balance.
		MinUTxO          int64                  `json:"minUTxO"`
		AdvancedFeatures *AdvancedOrderFeatures `json:"advancedFeatures,omitempty"`
		DIDRequirements  *DIDRequirements       `json:"didRequirements,omitempty"`
	}

	// Order is the mutable state of an order, attached to its output.
	Order struct {
		Params    Params `json:"params"`
		BuyAmount int64  `json:"buyAmount"`
		// ContinuationOf references the output this order continues.
		ContinuationOf *ledger.TxOutRef `json:"continuationOf,omitempty"`
		// BatchReward is withheld by whoever fills the order.
		BatchReward int64 `json:"batchReward"`
	}

	// AdvancedOrderFeatures are optional constraints on fills.
	AdvancedOrderFeatures struct {
		StopLossNum   int64 `json:"stopLossNum"`
		StopLossDen   int64 `json:"stopLossDen"`
		MinFillAmount int64 `json:"minFillAmount"`
		// TWAPInterval is the pacing interval in milliseconds. It is carried
		// for off-chain executors and not enforced.
		TWAPInterval int64 `json:"twapInterval"`
		// MaxSlippageBps is carried for off-chain executors and not enforced.
		MaxSlippageBps int64 `json:"maxSlippageBps"`
	}

	// AuthLevel is the authentication level of a credential. Higher levels
	// satisfy lower requirements.
	AuthLevel int64

	// DIDType is a credential accepted as counterparty.
	DIDType struct {
		PolicyID value.PolicyID `json:"policyID"`
		// NamePattern must prefix the credential's token name. Empty
		// accepts any name.
		NamePattern  value.TokenName `json:"namePattern"`
		MinAuthLevel AuthLevel       `json:"minAuthLevel"`
	}

	// DIDRequirements restrict who may fill an order.
	DIDRequirements struct {
		AcceptedDIDTypes       []DIDType `json:"acceptedDIDTypes"`
		RequireCounterpartyDID bool      `json:"requireCounterpartyDID"`
		AllowNonDIDTrading     bool      `json:"allowNonDIDTrading"`
	}
)

// Authentication levels used by the placing tooling.
const (
	AuthLevelBasic      AuthLevel = 1
	AuthLevelAccredited AuthLevel = 2
	AuthLevelBusiness   AuthLevel = 3
)

func init() {
	ledger.RegisterDatum(Order{})
}

// DatumType implements ledger.Datum.
func (Order) DatumType() string { return "Order" }

// StopLoss returns the configured stop-loss trigger ratio.
func (f AdvancedOrderFeatures) StopLoss() fraction.Ratio {
	return fraction.MakeRatio(f.StopLossNum, f.StopLossDen)
}

// Continue returns the successor of o after a fill: same params, the given
// remaining buy amount and batch reward, continuing ref.
func (o Order) Continue(ref ledger.TxOutRef, buyAmount, batchReward int64) Order {
	return Order{
		Params:         o.Params,
		BuyAmount:      buyAmount,
		ContinuationOf: &ref,
		BatchReward:    batchReward,
	}
}

// Equal reports whether both orders are structurally identical.
func (o Order) Equal(other Order) bool {
	if o.BuyAmount != other.BuyAmount || o.BatchReward != other.BatchReward {
		return false
	}
	if (o.ContinuationOf == nil) != (other.ContinuationOf == nil) {
		return false
	}
	if o.ContinuationOf != nil && *o.ContinuationOf != *other.ContinuationOf {
		return false
	}
	return o.Params.Equal(other.Params)
}

// Equal reports whether both parameter sets are structurally identical.
func (p Params) Equal(o Params) bool {
	if p.OwnerPKH != o.OwnerPKH ||
		!p.OwnerAddress.Equal(o.OwnerAddress) ||
		p.Buy != o.Buy ||
		p.Sell != o.Sell ||
		p.AllowPartial != o.AllowPartial ||
		p.ExpiryDate.Kind != o.ExpiryDate.Kind ||
		p.ExpiryDate.Millis != o.ExpiryDate.Millis ||
		p.ReturnReward != o.ReturnReward ||
		p.MinUTxO != o.MinUTxO {
		return false
	}
	if (p.AdvancedFeatures == nil) != (o.AdvancedFeatures == nil) {
		return false
	}
	if p.AdvancedFeatures != nil && *p.AdvancedFeatures != *o.AdvancedFeatures {
		return false
	}
	if (p.DIDRequirements == nil) != (o.DIDRequirements == nil) {
		return false
	}
	return p.DIDRequirements == nil || p.DIDRequirements.Equal(*o.DIDRequirements)
}

// Equal reports whether both requirement sets are structurally identical.
func (r DIDRequirements) Equal(o DIDRequirements) bool {
	if r.RequireCounterpartyDID != o.RequireCounterpartyDID ||
		r.AllowNonDIDTrading != o.AllowNonDIDTrading ||
		len(r.AcceptedDIDTypes) != len(o.AcceptedDIDTypes) {
		return false
	}
	for i := range r.AcceptedDIDTypes {
		if r.AcceptedDIDTypes[i] != o.AcceptedDIDTypes[i] {
			return false
		}
	}
	return true
}
