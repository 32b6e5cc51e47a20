// Package settlement computes the deterministic split of a shift's gross
// value across platform, optional agency, worker, and tax withholding. It
// performs no I/O and has no knowledge of tiers, currencies, or regions;
// callers resolve rates upstream and pass them in whole.
package settlement

import "github.com/shopspring/decimal"

// RateResolution carries the already-resolved rate inputs for one
// assignment. Zero values mean the deduction does not apply.
type RateResolution struct {
	PlatformFeeRate      decimal.Decimal
	AgencyCommissionRate decimal.Decimal
	TaxRate              decimal.Decimal
}

// Split is a gross amount divided into its parties, in minor currency units.
type Split struct {
	GrossMinor            int64
	PlatformFeeMinor      int64
	AgencyCommissionMinor int64
	TaxWithheldMinor      int64
	WorkerAmountMinor     int64
}

// Compute splits gross (minor units) by the resolved rates. Deduction order:
// platform fee, agency commission, then tax on the remainder; the worker
// amount is the residue, so the components always sum to gross exactly.
// Rounding is half up per minor unit. If rounding pushes the residue below
// zero the deficit comes out of the platform fee, never tax or commission.
func Compute(gross int64, rates RateResolution) Split {
	grossDec := decimal.NewFromInt(gross)

	fee := roundMinor(grossDec.Mul(rates.PlatformFeeRate))
	commission := roundMinor(grossDec.Mul(rates.AgencyCommissionRate))

	taxable := gross - fee - commission
	var tax int64
	if taxable > 0 && rates.TaxRate.IsPositive() {
		tax = roundMinor(decimal.NewFromInt(taxable).Mul(rates.TaxRate))
	}

	worker := gross - fee - commission - tax
	if worker < 0 {
		fee += worker
		worker = 0
	}

	return Split{
		GrossMinor:            gross,
		PlatformFeeMinor:      fee,
		AgencyCommissionMinor: commission,
		TaxWithheldMinor:      tax,
		WorkerAmountMinor:     worker,
	}
}

// GrossFromRate derives the gross amount for worked time: hourly rate in
// minor units times worked minutes over 60, rounded half up.
func GrossFromRate(hourlyRateMinor int64, workedMinutes int) int64 {
	if workedMinutes <= 0 {
		return 0
	}
	rate := decimal.NewFromInt(hourlyRateMinor)
	minutes := decimal.NewFromInt(int64(workedMinutes))
	return roundMinor(rate.Mul(minutes).Div(decimal.NewFromInt(60)))
}

// roundMinor rounds to a whole minor unit, half up for the positive amounts
// handled here.
func roundMinor(d decimal.Decimal) int64 {
	return d.Round(0).IntPart()
}
