package pricing

import "math"

// Money represents a monetary value stored in minor units (kobo).
type Money = int64

// StandardVATRate is the default VAT rate in percent applied to items that do
// not carry their own rate.
const StandardVATRate = 7.5

// ToMinorUnits converts a major-unit amount (naira) into minor units (kobo),
// rounding to the nearest integer. All arithmetic inside the engine happens on
// the returned integers so that repeated additions cannot accumulate binary
// floating-point error.
func ToMinorUnits(amount float64) Money {
	return Money(math.Round(amount * 100))
}

// ToMajorUnits converts a minor-unit amount back into major units. Only applied
// when producing final, caller-facing fields.
func ToMajorUnits(minor Money) float64 {
	return float64(minor) / 100
}

// VATBreakdown splits a VAT-inclusive major-unit price into its pre-VAT cost
// and VAT amount given a rate in percent. The supplied price must be gross;
// mixing VAT-exclusive inputs silently corrupts the breakdown.
func VATBreakdown(totalPrice float64, vatRate float64) (cost, vat float64) {
	costMinor, vatMinor := vatSplitMinor(ToMinorUnits(totalPrice), vatRate)
	return ToMajorUnits(costMinor), ToMajorUnits(vatMinor)
}

// vatSplitMinor back-calculates the cost/VAT split of a gross minor-unit
// amount. The remainder of the per-unit rounding stays in the VAT component.
func vatSplitMinor(totalMinor Money, vatRate float64) (costMinor, vatMinor Money) {
	if vatRate <= 0 {
		return totalMinor, 0
	}
	costMinor = Money(math.Round(float64(totalMinor) / (1 + vatRate/100)))
	return costMinor, totalMinor - costMinor
}
