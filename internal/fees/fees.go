/**
 * @description
 * Fee computation for sublease payments. All values are integer cents and all rates
 * are basis points (1 bps = 0.01%).
 *
 * @notes
 * - Each fee is rounded on its own (half away from zero) and the totals are sums of the
 *   rounded parts, so a snapshot can always be recomputed from its inputs.
 */

package fees

import (
	"math/big"
	"regexp"
	"strings"
	"time"

	"github.com/sbalsara05/Burrow-Housing-sub000/internal/domain"
)

const (
	MethodCard          = "card"
	MethodUSBankAccount = "us_bank_account"

	bpsDenominator = 10000
)

// Schedule holds the configurable fee rates.
type Schedule struct {
	TenantFeeBps       int64
	ListerFeeBps       int64
	CardSurchargeBps   int64
	MinimumChargeCents int64
}

// DefaultSchedule is 2.5% per party, 1% card surcharge and a 50 cent minimum charge.
func DefaultSchedule() Schedule {
	return Schedule{
		TenantFeeBps:       250,
		ListerFeeBps:       250,
		CardSurchargeBps:   100,
		MinimumChargeCents: 50,
	}
}

// IsSupportedMethod reports whether method can be charged.
func IsSupportedMethod(method string) bool {
	return method == MethodCard || method == MethodUSBankAccount
}

// NormalizeMethod lowercases the method and defaults an empty value to card.
func NormalizeMethod(method string) string {
	method = strings.ToLower(strings.TrimSpace(method))
	if method == "" {
		return MethodCard
	}
	return method
}

var dollarAmountRE = regexp.MustCompile(`^-?\d+(\.\d+)?$`)

// ParseDollarsToCents converts a display amount such as "$1,200.50" into cents.
// Empty, "TBD", negative and non-numeric input all yield 0.
func ParseDollarsToCents(s string) int64 {
	cleaned := strings.TrimSpace(s)
	cleaned = strings.ReplaceAll(cleaned, "$", "")
	cleaned = strings.ReplaceAll(cleaned, ",", "")
	cleaned = strings.TrimSpace(cleaned)
	if cleaned == "" || strings.EqualFold(cleaned, "TBD") {
		return 0
	}
	cleaned = strings.TrimSuffix(cleaned, ".")
	if strings.HasPrefix(cleaned, ".") {
		cleaned = "0" + cleaned
	}
	if !dollarAmountRE.MatchString(cleaned) {
		return 0
	}

	amount, ok := new(big.Rat).SetString(cleaned)
	if !ok || amount.Sign() < 0 {
		return 0
	}

	cents := new(big.Rat).Mul(amount, big.NewRat(100, 1))
	// round half away from zero: floor((2*num + den) / (2*den)) for non-negative values
	num := new(big.Int).Mul(cents.Num(), big.NewInt(2))
	num.Add(num, cents.Denom())
	den := new(big.Int).Mul(cents.Denom(), big.NewInt(2))
	rounded := new(big.Int).Quo(num, den)
	if !rounded.IsInt64() {
		return 0
	}
	return rounded.Int64()
}

// ApplyBps returns round(amountCents * bps / 10000), rounding half away from zero.
func ApplyBps(amountCents, bps int64) int64 {
	product := amountCents * bps
	if product < 0 {
		return -((-product + bpsDenominator/2) / bpsDenominator)
	}
	return (product + bpsDenominator/2) / bpsDenominator
}

// ComputeSnapshot builds the fee snapshot for a rent amount and payment method.
func (s Schedule) ComputeSnapshot(rentCents int64, method string, now time.Time) domain.FeeSnapshot {
	tenantFee := ApplyBps(rentCents, s.TenantFeeBps)
	listerFee := ApplyBps(rentCents, s.ListerFeeBps)
	var surcharge int64
	if method == MethodCard {
		surcharge = ApplyBps(rentCents, s.CardSurchargeBps)
	}

	return domain.FeeSnapshot{
		BaseAmountCents:     rentCents,
		TenantFeeCents:      tenantFee,
		ListerFeeCents:      listerFee,
		CardSurchargeCents:  surcharge,
		PaymentMethod:       method,
		AmountToChargeCents: rentCents + tenantFee + surcharge,
		AmountToPayoutCents: rentCents - listerFee,
		TenantFeeBps:        s.TenantFeeBps,
		ListerFeeBps:        s.ListerFeeBps,
		CardSurchargeBps:    s.CardSurchargeBps,
		ComputedAt:          now.UTC(),
	}
}

// ChargeAmount raises the snapshot's charge to the gateway minimum.
func (s Schedule) ChargeAmount(snapshot domain.FeeSnapshot) int64 {
	if snapshot.AmountToChargeCents < s.MinimumChargeCents {
		return s.MinimumChargeCents
	}
	return snapshot.AmountToChargeCents
}

// RentCents reads the rent amount from contract variables.
func RentCents(vars domain.Variables) int64 {
	return ParseDollarsToCents(vars.First("rent", "monthlyRent"))
}
