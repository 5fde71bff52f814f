package validator_test

import (
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/perun-network/perun-did-orderbook/internal/did"
	"github.com/perun-network/perun-did-orderbook/internal/fraction"
	"github.com/perun-network/perun-did-orderbook/internal/ledger"
	"github.com/perun-network/perun-did-orderbook/internal/order"
	"github.com/perun-network/perun-did-orderbook/internal/validator"
	"github.com/perun-network/perun-did-orderbook/internal/value"
)

const minUTxO = 2_000_000

var (
	contractAddr = ledger.ScriptAddress("orderbook")
	ownerPKH     = ledger.PubKeyHash("owner")
	ownerAddr    = ledger.PubKeyAddress(ownerPKH)
	takerPKH     = ledger.PubKeyHash("taker")
	takerAddr    = ledger.PubKeyAddress(takerPKH)

	buyToken  = value.MakeToken("policy_buy", "BUY")
	sellToken = value.MakeToken("policy_sell", "SELL")

	kycPolicy   value.PolicyID = "policy_kyc"
	basicPolicy value.PolicyID = "policy_basic"

	orderRef = ledger.TxOutRef{TxID: common.HexToHash("0x01")}
	takerRef = ledger.TxOutRef{TxID: common.HexToHash("0x02")}
)

func newChecker(t require.TestingT) *did.Checker {
	reg, err := did.NewRegistry(
		did.Issuer{Name: "kyc", PolicyID: kycPolicy, AuthLevel: order.AuthLevelAccredited},
		did.Issuer{Name: "basic", PolicyID: basicPolicy, AuthLevel: order.AuthLevelBasic},
	)
	require.NoError(t, err)
	return did.NewChecker(reg)
}

func newValidator(t require.TestingT, opts validator.Options) *validator.Validator {
	return validator.New(newChecker(t), opts)
}

// newOrder returns the order of the worked example: 100 BUY wanted for
// 200 SELL, 1000 lovelace batch reward.
func newOrder() order.Order {
	return order.Order{
		Params: order.Params{
			OwnerPKH:     ownerPKH,
			OwnerAddress: ownerAddr,
			Buy:          buyToken,
			Sell:         sellToken,
			AllowPartial: true,
			ExpiryDate:   ledger.FiniteTime(10_000),
			ReturnReward: 500_000,
			MinUTxO:      minUTxO,
		},
		BuyAmount:   100,
		BatchReward: 1000,
	}
}

func orderValue(o order.Order, sell int64) value.Value {
	return value.AddLovelace(value.Of(o.Params.Sell, sell), o.Params.MinUTxO+o.BatchReward)
}

func takerValue(creds ...value.Token) value.Value {
	v := value.AddLovelace(value.Of(buyToken, 1_000), 10_000_000)
	for _, c := range creds {
		v = value.Add(v, value.Of(c, 1))
	}
	return v
}

func txInfo(o order.Order, orderVal, takerVal value.Value, outs ...ledger.TxOut) *ledger.TxInfo {
	return &ledger.TxInfo{
		Inputs: []ledger.TxInInfo{
			{OutRef: orderRef, Resolved: ledger.TxOut{Address: contractAddr, Value: orderVal, Datum: o}},
			{OutRef: takerRef, Resolved: ledger.TxOut{Address: takerAddr, Value: takerVal}},
		},
		Outputs:     outs,
		Signatories: []ledger.PubKeyHash{takerPKH},
		ValidRange:  ledger.Always(),
		Datums:      map[common.Hash]ledger.Datum{},
	}
}

// partialOutput is the exact continuation of a partial fill of the worked
// example order.
func partialOutput(o order.Order, sell, filled int64) ledger.TxOut {
	reward := fraction.FloorScale(filled, o.BuyAmount, o.BatchReward)
	sold := fraction.FloorScale(filled, o.BuyAmount, sell)
	v := value.Add(value.Of(o.Params.Buy, filled), value.Of(o.Params.Sell, sell-sold))
	return ledger.TxOut{
		Address: contractAddr,
		Value:   value.AddLovelace(v, o.Params.MinUTxO+o.BatchReward-reward),
		Datum:   o.Continue(orderRef, o.BuyAmount-filled, o.BatchReward-reward),
	}
}

func fullOutput(o order.Order) ledger.TxOut {
	return ledger.TxOut{
		Address: contractAddr,
		Value:   value.AddLovelace(value.Of(o.Params.Buy, o.BuyAmount), o.Params.MinUTxO),
		Datum:   o.Continue(orderRef, 0, 0),
	}
}

func requireRejected(t require.TestingT, err error, kind error, code string) {
	require.Error(t, err)
	require.Truef(t, errors.Is(err, kind), "%v is not %v", err, kind)
	require.Equal(t, code, validator.Code(err))
}

func TestPartialMatch(t *testing.T) {
	v := newValidator(t, validator.Options{})
	o := newOrder()
	match := order.PartialMatch{InputIndex: 0, OutputIndex: 0, FilledAmount: 40}

	t.Run("worked example", func(t *testing.T) {
		out := partialOutput(o, 200, 40)
		assert.Equal(t, int64(160), out.Value.Get(buyToken)+out.Value.Get(sellToken), "40 bought, 80 sold")
		assert.Equal(t, int64(minUTxO+600), out.Value.Lovelace())
		next := out.Datum.(order.Order)
		assert.Equal(t, int64(60), next.BuyAmount)
		assert.Equal(t, int64(600), next.BatchReward)

		tx := txInfo(o, orderValue(o, 200), takerValue(), out)
		require.NoError(t, v.Validate(orderRef, o, match, tx))
	})

	t.Run("surplus accepted", func(t *testing.T) {
		out := partialOutput(o, 200, 40)
		out.Value = value.Add(out.Value, value.Of(buyToken, 5))
		tx := txInfo(o, orderValue(o, 200), takerValue(), out)
		require.NoError(t, v.Validate(orderRef, o, match, tx))
	})

	t.Run("datum by hash", func(t *testing.T) {
		out := partialOutput(o, 200, 40)
		h, err := ledger.HashDatum(out.Datum)
		require.NoError(t, err)
		out.Datum, out.DatumHash = nil, &h
		tx := txInfo(o, orderValue(o, 200), takerValue(), out)
		tx.Datums[h] = o.Continue(orderRef, 60, 600)
		require.NoError(t, v.Validate(orderRef, o, match, tx))

		delete(tx.Datums, h)
		requireRejected(t, v.Validate(orderRef, o, match, tx), validator.ErrRecordMismatch, validator.CodeOutputDatum)
	})

	t.Run("batch reward over-claimed", func(t *testing.T) {
		out := partialOutput(o, 200, 40)
		out.Datum = o.Continue(orderRef, 60, 601)
		tx := txInfo(o, orderValue(o, 200), takerValue(), out)
		requireRejected(t, v.Validate(orderRef, o, match, tx), validator.ErrRecordMismatch, validator.CodeOutputDatum)
	})

	t.Run("continuation of other output", func(t *testing.T) {
		out := partialOutput(o, 200, 40)
		out.Datum = o.Continue(takerRef, 60, 600)
		tx := txInfo(o, orderValue(o, 200), takerValue(), out)
		requireRejected(t, v.Validate(orderRef, o, match, tx), validator.ErrRecordMismatch, validator.CodeOutputDatum)
	})

	t.Run("params changed", func(t *testing.T) {
		out := partialOutput(o, 200, 40)
		next := o.Continue(orderRef, 60, 600)
		next.Params.ReturnReward++
		out.Datum = next
		tx := txInfo(o, orderValue(o, 200), takerValue(), out)
		requireRejected(t, v.Validate(orderRef, o, match, tx), validator.ErrRecordMismatch, validator.CodeOutputDatum)
	})

	t.Run("too much sold", func(t *testing.T) {
		out := partialOutput(o, 200, 40)
		out.Value = value.Add(out.Value, value.Of(sellToken, -1))
		tx := txInfo(o, orderValue(o, 200), takerValue(), out)
		requireRejected(t, v.Validate(orderRef, o, match, tx), validator.ErrValueConservation, validator.CodeOutputValue)
	})

	t.Run("too much reward taken", func(t *testing.T) {
		out := partialOutput(o, 200, 40)
		out.Value = value.SubtractLovelace(out.Value, 1)
		tx := txInfo(o, orderValue(o, 200), takerValue(), out)
		requireRejected(t, v.Validate(orderRef, o, match, tx), validator.ErrValueConservation, validator.CodeOutputValue)
	})

	t.Run("output leaves contract", func(t *testing.T) {
		out := partialOutput(o, 200, 40)
		out.Address = takerAddr
		tx := txInfo(o, orderValue(o, 200), takerValue(), out)
		requireRejected(t, v.Validate(orderRef, o, match, tx), validator.ErrValueConservation, validator.CodeOutputAddress)
	})
}

func TestPartialMatchSellingLovelace(t *testing.T) {
	v := newValidator(t, validator.Options{})
	o := newOrder()
	o.Params.Sell = value.Lovelace
	o.BatchReward = 0

	// 200 lovelace for sale on top of the minimum balance.
	in := value.FromLovelace(minUTxO + 200)
	out := ledger.TxOut{
		Address: contractAddr,
		Value:   value.Add(value.Of(buyToken, 40), value.FromLovelace(minUTxO+120)),
		Datum:   o.Continue(orderRef, 60, 0),
	}
	tx := txInfo(o, in, takerValue(), out)
	match := order.PartialMatch{FilledAmount: 40}
	require.NoError(t, v.Validate(orderRef, o, match, tx))

	out.Value = value.SubtractLovelace(out.Value, 1)
	tx = txInfo(o, in, takerValue(), out)
	requireRejected(t, v.Validate(orderRef, o, match, tx), validator.ErrValueConservation, validator.CodeOutputValue)
}

func TestPartialMatchBoundaries(t *testing.T) {
	v := newValidator(t, validator.Options{})
	o := newOrder()

	for _, filled := range []int64{-1, 0, 100, 101} {
		tx := txInfo(o, orderValue(o, 200), takerValue(), fullOutput(o))
		err := v.Validate(orderRef, o, order.PartialMatch{FilledAmount: filled}, tx)
		requireRejected(t, err, validator.ErrBoundary, validator.CodeFillAmount)
	}

	t.Run("partial fills disabled", func(t *testing.T) {
		o := newOrder()
		o.Params.AllowPartial = false
		tx := txInfo(o, orderValue(o, 200), takerValue(), partialOutput(o, 200, 40))
		err := v.Validate(orderRef, o, order.PartialMatch{FilledAmount: 40}, tx)
		requireRejected(t, err, validator.ErrBoundary, validator.CodePartial)
	})

	t.Run("minimum fill", func(t *testing.T) {
		o := newOrder()
		o.Params.AdvancedFeatures = &order.AdvancedOrderFeatures{MinFillAmount: 50}
		tx := txInfo(o, orderValue(o, 200), takerValue(), partialOutput(o, 200, 40))
		err := v.Validate(orderRef, o, order.PartialMatch{FilledAmount: 40}, tx)
		requireRejected(t, err, validator.ErrBoundary, validator.CodeMinFill)

		tx = txInfo(o, orderValue(o, 200), takerValue(), partialOutput(o, 200, 50))
		require.NoError(t, v.Validate(orderRef, o, order.PartialMatch{FilledAmount: 50}, tx))
	})
}

func TestFullMatch(t *testing.T) {
	v := newValidator(t, validator.Options{})
	o := newOrder()
	match := order.FullMatch{InputIndex: 0, OutputIndex: 0}

	tx := txInfo(o, orderValue(o, 200), takerValue(), fullOutput(o))
	require.NoError(t, v.Validate(orderRef, o, match, tx))

	short := fullOutput(o)
	short.Value = value.SubtractLovelace(short.Value, 1)
	tx = txInfo(o, orderValue(o, 200), takerValue(), short)
	requireRejected(t, v.Validate(orderRef, o, match, tx), validator.ErrValueConservation, validator.CodeOutputValue)

	unmarked := fullOutput(o)
	unmarked.Datum = o.Continue(orderRef, 0, o.BatchReward)
	tx = txInfo(o, orderValue(o, 200), takerValue(), unmarked)
	requireRejected(t, v.Validate(orderRef, o, match, tx), validator.ErrRecordMismatch, validator.CodeOutputDatum)

	tx = txInfo(o, orderValue(o, 200), takerValue(), ledger.TxOut{Address: contractAddr, Value: fullOutput(o).Value})
	requireRejected(t, v.Validate(orderRef, o, match, tx), validator.ErrRecordMismatch, validator.CodeOutputDatum)

	// A depleted escrow holds the owner's bought tokens until cancelled.
	depleted := o.Continue(takerRef, 0, 0)
	escrow := value.AddLovelace(value.Of(buyToken, 100), minUTxO)
	drained := ledger.TxOut{Address: contractAddr, Value: value.FromLovelace(minUTxO), Datum: depleted.Continue(orderRef, 0, 0)}
	tx = txInfo(depleted, escrow, takerValue(), drained)
	requireRejected(t, v.Validate(orderRef, depleted, match, tx), validator.ErrBoundary, validator.CodeFillAmount)
}

func TestIndexChecks(t *testing.T) {
	v := newValidator(t, validator.Options{})
	o := newOrder()
	tx := txInfo(o, orderValue(o, 200), takerValue(), fullOutput(o))

	tests := []struct {
		name   string
		action order.Action
		code   string
	}{
		{"input out of range", order.FullMatch{InputIndex: 2}, validator.CodeInputIndex},
		{"negative input", order.FullMatch{InputIndex: -1}, validator.CodeInputIndex},
		{"input of other party", order.FullMatch{InputIndex: 1}, validator.CodeInputRef},
		{"output out of range", order.FullMatch{OutputIndex: 1}, validator.CodeOutputIndex},
		{"return output out of range", order.ReturnExpired{OutputIndex: 3}, validator.CodeOutputIndex},
		{"partial input of other party", order.PartialMatch{InputIndex: 1, FilledAmount: 40}, validator.CodeInputRef},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			requireRejected(t, v.Validate(orderRef, o, tt.action, tx), validator.ErrMalformedAction, tt.code)
		})
	}
}

func TestDIDRequirements(t *testing.T) {
	v := newValidator(t, validator.Options{})
	o := newOrder()
	o.Params.DIDRequirements = &order.DIDRequirements{
		AcceptedDIDTypes: []order.DIDType{
			{PolicyID: kycPolicy, MinAuthLevel: order.AuthLevelAccredited},
			{PolicyID: basicPolicy, MinAuthLevel: order.AuthLevelAccredited},
		},
		RequireCounterpartyDID: true,
	}
	match := order.FullMatch{}
	basicCred := value.MakeToken(basicPolicy, "did:basic:taker")
	kycCred := value.MakeToken(kycPolicy, "did:kyc:taker")

	t.Run("level too low", func(t *testing.T) {
		tx := txInfo(o, orderValue(o, 200), takerValue(basicCred), fullOutput(o))
		requireRejected(t, v.Validate(orderRef, o, match, tx), validator.ErrAuthorization, validator.CodeDID)
	})

	t.Run("accredited counterparty", func(t *testing.T) {
		tx := txInfo(o, orderValue(o, 200), takerValue(kycCred), fullOutput(o))
		require.NoError(t, v.Validate(orderRef, o, match, tx))
	})

	t.Run("no credential", func(t *testing.T) {
		tx := txInfo(o, orderValue(o, 200), takerValue(), fullOutput(o))
		requireRejected(t, v.Validate(orderRef, o, match, tx), validator.ErrAuthorization, validator.CodeDID)

		open := o
		req := *o.Params.DIDRequirements
		req.AllowNonDIDTrading = true
		open.Params.DIDRequirements = &req
		tx = txInfo(open, orderValue(open, 200), takerValue(), fullOutput(open))
		require.NoError(t, v.Validate(orderRef, open, match, tx))
	})

	t.Run("owner credential does not count", func(t *testing.T) {
		tx := txInfo(o, orderValue(o, 200), takerValue(kycCred), fullOutput(o))
		tx.Inputs[1].Resolved.Address = ownerAddr
		requireRejected(t, v.Validate(orderRef, o, match, tx), validator.ErrAuthorization, validator.CodeDID)

		// a staking variant of the owner's key is still the owner
		tx.Inputs[1].Resolved.Address = ownerAddr.WithStaking(ledger.Credential{Hash: "stake"})
		requireRejected(t, v.Validate(orderRef, o, match, tx), validator.ErrAuthorization, validator.CodeDID)
	})

	t.Run("partial fill checked too", func(t *testing.T) {
		tx := txInfo(o, orderValue(o, 200), takerValue(basicCred), partialOutput(o, 200, 40))
		err := v.Validate(orderRef, o, order.PartialMatch{FilledAmount: 40}, tx)
		requireRejected(t, err, validator.ErrAuthorization, validator.CodeDID)
	})

	t.Run("empty accepted types", func(t *testing.T) {
		open := o
		open.Params.DIDRequirements = &order.DIDRequirements{RequireCounterpartyDID: true}
		tx := txInfo(open, orderValue(open, 200), takerValue(), fullOutput(open))
		require.NoError(t, v.Validate(orderRef, open, match, tx))
	})
}

func TestCancel(t *testing.T) {
	o := newOrder()
	cancel := order.Cancel{InputIndex: 1}

	signed := txInfo(o, orderValue(o, 200), takerValue())
	signed.Signatories = []ledger.PubKeyHash{ownerPKH}
	unsigned := txInfo(o, orderValue(o, 200), takerValue())

	v := newValidator(t, validator.Options{})
	require.NoError(t, v.Validate(orderRef, o, cancel, signed))
	requireRejected(t, v.Validate(orderRef, o, cancel, unsigned), validator.ErrAuthorization, validator.CodeSignature)

	t.Run("credential required", func(t *testing.T) {
		v := newValidator(t, validator.Options{RequireCancelCredential: true})
		requireRejected(t, v.Validate(orderRef, o, cancel, signed), validator.ErrAuthorization, validator.CodeCredential)

		withCred := txInfo(o, orderValue(o, 200), takerValue(value.MakeToken(basicPolicy, "did:basic:owner")))
		withCred.Signatories = []ledger.PubKeyHash{ownerPKH}
		require.NoError(t, v.Validate(orderRef, o, cancel, withCred))

		err := v.Validate(orderRef, o, order.Cancel{InputIndex: 7}, withCred)
		requireRejected(t, err, validator.ErrMalformedAction, validator.CodeInputIndex)
	})
}

func TestReturnExpired(t *testing.T) {
	v := newValidator(t, validator.Options{})
	o := newOrder()
	ret := order.ReturnExpired{InputIndex: 0, OutputIndex: 0}
	in := orderValue(o, 200)

	payout := func() ledger.TxOut {
		return ledger.TxOut{
			Address: ownerAddr,
			Value:   value.SubtractLovelace(in, o.Params.ReturnReward),
			Datum:   orderRef,
		}
	}
	expiredTx := func(out ledger.TxOut) *ledger.TxInfo {
		tx := txInfo(o, in, takerValue(), out)
		tx.ValidRange = ledger.From(10_000)
		return tx
	}

	require.NoError(t, v.Validate(orderRef, o, ret, expiredTx(payout())))

	t.Run("reward not withheld", func(t *testing.T) {
		out := payout()
		out.Value = in
		requireRejected(t, v.Validate(orderRef, o, ret, expiredTx(out)), validator.ErrValueConservation, validator.CodeReturnValue)
	})

	t.Run("less than due", func(t *testing.T) {
		out := payout()
		out.Value = value.Add(out.Value, value.Of(sellToken, -1))
		requireRejected(t, v.Validate(orderRef, o, ret, expiredTx(out)), validator.ErrValueConservation, validator.CodeReturnValue)
	})

	t.Run("not yet expired", func(t *testing.T) {
		tx := expiredTx(payout())
		tx.ValidRange = ledger.From(9_999)
		requireRejected(t, v.Validate(orderRef, o, ret, tx), validator.ErrBoundary, validator.CodeNotExpired)

		tx.ValidRange = ledger.Always()
		requireRejected(t, v.Validate(orderRef, o, ret, tx), validator.ErrBoundary, validator.CodeNotExpired)
	})

	t.Run("payout tagged with other output", func(t *testing.T) {
		out := payout()
		out.Datum = takerRef
		requireRejected(t, v.Validate(orderRef, o, ret, expiredTx(out)), validator.ErrRecordMismatch, validator.CodeOutputDatum)

		out.Datum = o
		requireRejected(t, v.Validate(orderRef, o, ret, expiredTx(out)), validator.ErrRecordMismatch, validator.CodeOutputDatum)
	})

	t.Run("payout to other address", func(t *testing.T) {
		out := payout()
		out.Address = takerAddr
		requireRejected(t, v.Validate(orderRef, o, ret, expiredTx(out)), validator.ErrValueConservation, validator.CodeOutputAddress)
	})
}

func TestStopLossMatch(t *testing.T) {
	v := newValidator(t, validator.Options{})
	o := newOrder()
	o.Params.AdvancedFeatures = &order.AdvancedOrderFeatures{StopLossNum: 9_000, StopLossDen: 10_000}
	tx := txInfo(o, orderValue(o, 200), takerValue(), partialOutput(o, 200, 40))

	match := func(num, den int64) order.StopLossMatch {
		return order.StopLossMatch{
			PartialMatch: order.PartialMatch{FilledAmount: 40},
			Trigger:      fraction.MakeRatio(num, den),
		}
	}

	require.NoError(t, v.Validate(orderRef, o, match(8, 10), tx))
	require.NoError(t, v.Validate(orderRef, o, match(9, 10), tx), "trigger equal to stop-loss")
	requireRejected(t, v.Validate(orderRef, o, match(95, 100), tx), validator.ErrBoundary, validator.CodeStopLoss)
	requireRejected(t, v.Validate(orderRef, o, match(8, 0), tx), validator.ErrBoundary, validator.CodeTriggerRatio)

	plain := newOrder()
	tx = txInfo(plain, orderValue(plain, 200), takerValue(), partialOutput(plain, 200, 40))
	requireRejected(t, v.Validate(orderRef, plain, match(8, 10), tx), validator.ErrBoundary, validator.CodeNoFeatures)
}

func TestTWAPMatch(t *testing.T) {
	v := newValidator(t, validator.Options{})
	o := newOrder()
	o.Params.AdvancedFeatures = &order.AdvancedOrderFeatures{TWAPInterval: 60_000}
	prev := takerRef
	match := order.TWAPMatch{
		PartialMatch:      order.PartialMatch{FilledAmount: 40},
		PreviousExecution: &prev,
	}

	tx := txInfo(o, orderValue(o, 200), takerValue(), partialOutput(o, 200, 40))
	require.NoError(t, v.Validate(orderRef, o, match, tx))

	plain := newOrder()
	tx = txInfo(plain, orderValue(plain, 200), takerValue(), partialOutput(plain, 200, 40))
	requireRejected(t, v.Validate(orderRef, plain, match, tx), validator.ErrBoundary, validator.CodeNoFeatures)
}

func TestContractRejectsForeignDatum(t *testing.T) {
	c := validator.NewContract(newValidator(t, validator.Options{}))
	o := newOrder()
	tx := txInfo(o, orderValue(o, 200), takerValue(), fullOutput(o))

	require.NoError(t, c.Validate(orderRef, o, order.FullMatch{}, tx))
	requireRejected(t, c.Validate(orderRef, takerRef, order.FullMatch{}, tx), validator.ErrRecordMismatch, validator.CodeInputDatum)
	requireRejected(t, c.Validate(orderRef, o, nil, tx), validator.ErrMalformedAction, validator.CodeAction)
}

func TestPartialMatchProperties(t *testing.T) {
	v := newValidator(t, validator.Options{})
	rapid.Check(t, func(t *rapid.T) {
		o := newOrder()
		o.BuyAmount = rapid.Int64Range(2, 1_000_000).Draw(t, "buyAmount")
		o.BatchReward = rapid.Int64Range(0, 1_000_000_000).Draw(t, "batchReward")
		sell := rapid.Int64Range(1, 1<<40).Draw(t, "sell")
		filled := rapid.Int64Range(1, o.BuyAmount-1).Draw(t, "filled")
		match := order.PartialMatch{FilledAmount: filled}

		out := partialOutput(o, sell, filled)
		next := out.Datum.(order.Order)
		require.Equal(t, o.BuyAmount-filled, next.BuyAmount)
		require.GreaterOrEqual(t, next.BatchReward, int64(0))
		require.LessOrEqual(t, next.BatchReward, o.BatchReward)

		tx := txInfo(o, orderValue(o, sell), takerValue(), out)
		require.NoError(t, v.Validate(orderRef, o, match, tx))

		// any shortfall of the sell token is caught
		short := out
		short.Value = value.Add(out.Value, value.Of(sellToken, -1))
		if short.Value.Get(sellToken) >= 0 {
			tx = txInfo(o, orderValue(o, sell), takerValue(), short)
			requireRejected(t, v.Validate(orderRef, o, match, tx), validator.ErrValueConservation, validator.CodeOutputValue)
		}

		// any other remaining amount is rejected
		bad := out
		bad.Datum = o.Continue(orderRef, o.BuyAmount-filled+1, next.BatchReward)
		tx = txInfo(o, orderValue(o, sell), takerValue(), bad)
		requireRejected(t, v.Validate(orderRef, o, match, tx), validator.ErrRecordMismatch, validator.CodeOutputDatum)
	})
}

func TestCancelProperty(t *testing.T) {
	v := newValidator(t, validator.Options{})
	rapid.Check(t, func(t *rapid.T) {
		o := newOrder()
		signers := rapid.SliceOf(rapid.SampledFrom([]ledger.PubKeyHash{ownerPKH, takerPKH, "other"})).Draw(t, "signers")
		tx := txInfo(o, orderValue(o, 200), takerValue())
		tx.Signatories = signers

		err := v.Validate(orderRef, o, order.Cancel{}, tx)
		require.Equal(t, tx.SignedBy(ownerPKH), err == nil, "accepted iff owner signed: %v", err)
	})
}

func TestReturnExpiredExactness(t *testing.T) {
	v := newValidator(t, validator.Options{})
	rapid.Check(t, func(t *rapid.T) {
		o := newOrder()
		in := orderValue(o, rapid.Int64Range(0, 1<<40).Draw(t, "sell"))
		delta := rapid.Int64Range(-1_000, 1_000).Draw(t, "delta")
		token := rapid.SampledFrom([]value.Token{value.Lovelace, sellToken, buyToken}).Draw(t, "token")

		out := ledger.TxOut{
			Address: ownerAddr,
			Value:   value.Add(value.SubtractLovelace(in, o.Params.ReturnReward), value.Of(token, delta)),
			Datum:   orderRef,
		}
		tx := txInfo(o, in, takerValue(), out)
		tx.ValidRange = ledger.From(o.Params.ExpiryDate.Millis)

		err := v.Validate(orderRef, o, order.ReturnExpired{}, tx)
		if delta == 0 {
			require.NoError(t, err)
		} else {
			requireRejected(t, err, validator.ErrValueConservation, validator.CodeReturnValue)
		}
	})
}
