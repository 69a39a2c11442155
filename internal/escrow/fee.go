package escrow

import "math/big"

var (
	feeNumerator   = big.NewInt(3)
	feeDenominator = big.NewInt(100)
)

// Fee returns the arbiter fee for the given payout amounts: 3% of the
// combined payout, rounded down. The sum is taken before the division
// so truncation is applied exactly once; splitting the computation per
// amount would yield a different result for some inputs and settlement
// amounts must be reproducible bit-for-bit.
func Fee(producerAmount, carrierAmount *big.Int) *big.Int {
	fee := new(big.Int).Add(producerAmount, carrierAmount)
	fee.Mul(fee, feeNumerator)
	return fee.Quo(fee, feeDenominator)
}

// LockTotal returns the amount pulled from the buyer at lock time
func LockTotal(producerAmount, carrierAmount *big.Int) *big.Int {
	total := new(big.Int).Add(producerAmount, carrierAmount)
	return total.Add(total, Fee(producerAmount, carrierAmount))
}
