package escrow

import (
	"gitlab.com/ConsignEx/escrowrouter/internal/repositories/dealstore"
)

func receiptFromDeal(d *Deal) *dealstore.Receipt {
	return &dealstore.Receipt{
		ID:                  d.id,
		Buyer:               d.buyer,
		Producer:            d.producer,
		Carrier:             d.carrier,
		Arbiter:             d.arbiter,
		ProducerAmount:      d.ProducerAmount(),
		CarrierAmount:       d.CarrierAmount(),
		Fee:                 d.Fee(),
		SignatureMask:       uint8(d.signatureMask),
		ArbiterAcknowledged: d.arbiterAcknowledged,
		CreatedAt:           d.createdAt,
		SettledAt:           d.settledAt,
	}
}

func dealFromReceipt(r *dealstore.Receipt) *Deal {
	return &Deal{
		id:                  r.ID,
		buyer:               r.Buyer,
		producer:            r.Producer,
		carrier:             r.Carrier,
		arbiter:             r.Arbiter,
		producerAmount:      r.ProducerAmount,
		carrierAmount:       r.CarrierAmount,
		fee:                 r.Fee,
		signatureMask:       SignatureMask(r.SignatureMask),
		arbiterAcknowledged: r.ArbiterAcknowledged,
		createdAt:           r.CreatedAt,
		settledAt:           r.SettledAt,
	}
}
