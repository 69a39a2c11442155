package escrow

import (
	"math/big"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gitlab.com/ConsignEx/escrowrouter/internal/lib"
)

func TestSignatureMaskString(t *testing.T) {
	require.Equal(t, "---", SignatureMask(0).String())
	require.Equal(t, "P--", SigProducer.String())
	require.Equal(t, "-C-", SigCarrier.String())
	require.Equal(t, "--B", SigBuyer.String())
	require.Equal(t, "PC-", (SigProducer | SigCarrier).String())
	require.Equal(t, "PCB", SigAll.String())
}

func TestHashDealIDDeterministic(t *testing.T) {
	a := HashDealID([]byte("batch"), []byte("2026-07"))
	b := HashDealID([]byte("batch"), []byte("2026-07"))
	c := HashDealID([]byte("batch"), []byte("2026-08"))

	require.Equal(t, a, b)
	require.NotEqual(t, a, c)
}

func TestSignatureMaskHas(t *testing.T) {
	mask := SigProducer | SigCarrier
	require.True(t, mask.Has(SigProducer))
	require.True(t, mask.Has(SigCarrier))
	require.False(t, mask.Has(SigBuyer))
}

func TestDealStatus(t *testing.T) {
	deal := &Deal{
		producerAmount: big.NewInt(1000),
		carrierAmount:  big.NewInt(325),
	}
	require.Equal(t, StatusPending, deal.Status())

	deal.signatureMask = SigProducer | SigCarrier
	require.Equal(t, StatusPending, deal.Status())

	deal.signatureMask = SigAll
	require.Equal(t, StatusAuthorized, deal.Status())

	deal.producerAmount.SetInt64(0)
	deal.carrierAmount.SetInt64(0)
	require.Equal(t, StatusSettled, deal.Status())

	// zero value held means settled regardless of signatures
	unsigned := &Deal{
		producerAmount: big.NewInt(0),
		carrierAmount:  big.NewInt(0),
	}
	require.Equal(t, StatusSettled, unsigned.Status())
}

func TestDealCopyIsolated(t *testing.T) {
	deal := &Deal{
		id:             lib.GetRandomHash(),
		buyer:          lib.GetRandomAddr(),
		producerAmount: big.NewInt(1000),
		carrierAmount:  big.NewInt(325),
		fee:            big.NewInt(39),
		createdAt:      time.Now().UTC(),
	}

	copied := deal.Copy()
	deal.producerAmount.SetInt64(0)
	deal.signatureMask = SigAll

	require.Equal(t, int64(1000), copied.ProducerAmount().Int64())
	require.Equal(t, SignatureMask(0), copied.SignatureMask())
}

func TestDealGettersReturnCopies(t *testing.T) {
	deal := &Deal{
		producerAmount: big.NewInt(1000),
		carrierAmount:  big.NewInt(325),
		fee:            big.NewInt(39),
	}

	deal.ProducerAmount().SetInt64(7)
	require.Equal(t, int64(1000), deal.producerAmount.Int64())
}
