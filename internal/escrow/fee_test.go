package escrow

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFee(t *testing.T) {
	cases := []struct {
		name              string
		producer, carrier int64
		fee, total        int64
	}{
		{"reference amounts", 1000, 325, 39, 1364},
		{"zero amounts", 0, 0, 0, 0},
		{"fee truncates to zero", 1, 1, 0, 2},
		{"just below one unit", 33, 0, 0, 33},
		{"just above one unit", 34, 0, 1, 35},
		{"sum taken before truncation", 17, 17, 1, 35}, // per-amount flooring would yield 0
		{"even split", 100, 100, 6, 206},
		{"odd split", 333, 333, 19, 685},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			producer := big.NewInt(tc.producer)
			carrier := big.NewInt(tc.carrier)

			require.Equal(t, tc.fee, Fee(producer, carrier).Int64())
			require.Equal(t, tc.total, LockTotal(producer, carrier).Int64())
		})
	}
}

func TestFeeWideAmounts(t *testing.T) {
	producer, _ := new(big.Int).SetString("1000000000000000000000", 10) // 1000 tokens at 18 decimals
	carrier := big.NewInt(0)

	expected, _ := new(big.Int).SetString("30000000000000000000", 10)
	require.Equal(t, expected, Fee(producer, carrier))
}

func TestFeeDoesNotMutateInputs(t *testing.T) {
	producer := big.NewInt(1000)
	carrier := big.NewInt(325)

	_ = Fee(producer, carrier)
	_ = LockTotal(producer, carrier)

	require.Equal(t, int64(1000), producer.Int64())
	require.Equal(t, int64(325), carrier.Int64())
}
