package assembler

import (
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"

	"github.com/perun-network/perun-did-orderbook/internal/did"
	"github.com/perun-network/perun-did-orderbook/internal/fraction"
	"github.com/perun-network/perun-did-orderbook/internal/order"
)

// RatioDenominator is the fixed denominator of prices given as decimals.
const RatioDenominator = 10_000

var (
	ratioDecimal   = decimal.NewFromInt(RatioDenominator)
	hundredDecimal = decimal.NewFromInt(100)
)

func parseNonNegative(s, what string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, errors.Wrapf(err, "parsing %s", what)
	}
	if d.IsNegative() {
		return decimal.Zero, errors.Errorf("negative %s %s", what, s)
	}
	return d, nil
}

// PriceRatio converts a decimal price into a ratio over RatioDenominator,
// truncating further digits.
func PriceRatio(price string) (fraction.Ratio, error) {
	d, err := parseNonNegative(price, "price")
	if err != nil {
		return fraction.Ratio{}, err
	}
	num := d.Mul(ratioDecimal).Truncate(0)
	if !num.IsInteger() || num.GreaterThan(decimal.NewFromInt(1<<62)) {
		return fraction.Ratio{}, errors.Errorf("price %s out of range", price)
	}
	return fraction.MakeRatio(num.IntPart(), RatioDenominator), nil
}

// SlippageBps converts a percentage into basis points, truncating
// fractions of a basis point.
func SlippageBps(percent string) (int64, error) {
	d, err := parseNonNegative(percent, "slippage")
	if err != nil {
		return 0, err
	}
	return d.Mul(hundredDecimal).Truncate(0).IntPart(), nil
}

// FeatureRequest are the advanced features of a new order in user units.
type FeatureRequest struct {
	// StopLossPrice is a decimal price; empty disables stop-loss.
	StopLossPrice string
	MinFillAmount int64
	TWAPInterval  time.Duration
	// MaxSlippage is a decimal percentage; empty means no limit.
	MaxSlippage string
}

// Features converts r into order features. It returns nil if no feature
// is requested.
func Features(r FeatureRequest) (*order.AdvancedOrderFeatures, error) {
	if r.StopLossPrice == "" && r.MinFillAmount == 0 && r.TWAPInterval == 0 && r.MaxSlippage == "" {
		return nil, nil
	}
	if r.MinFillAmount < 0 || r.TWAPInterval < 0 {
		return nil, errors.New("negative minimum fill or TWAP interval")
	}

	f := &order.AdvancedOrderFeatures{
		StopLossDen:   1,
		MinFillAmount: r.MinFillAmount,
		TWAPInterval:  r.TWAPInterval.Milliseconds(),
	}
	if r.StopLossPrice != "" {
		ratio, err := PriceRatio(r.StopLossPrice)
		if err != nil {
			return nil, err
		}
		f.StopLossNum, f.StopLossDen = ratio.Num, ratio.Den
	}
	if r.MaxSlippage != "" {
		bps, err := SlippageBps(r.MaxSlippage)
		if err != nil {
			return nil, err
		}
		f.MaxSlippageBps = bps
	}
	return f, nil
}

// Requirements accepts credentials of the given issuers at their level as
// counterparties. It returns nil if nothing is required.
func Requirements(allowNonDID bool, issuers ...did.Issuer) *order.DIDRequirements {
	if len(issuers) == 0 && !allowNonDID {
		return nil
	}
	req := &order.DIDRequirements{
		RequireCounterpartyDID: true,
		AllowNonDIDTrading:     allowNonDID,
	}
	for _, is := range issuers {
		req.AcceptedDIDTypes = append(req.AcceptedDIDTypes, order.DIDType{
			PolicyID:     is.PolicyID,
			MinAuthLevel: is.AuthLevel,
		})
	}
	return req
}
