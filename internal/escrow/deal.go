package escrow

import (
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"gitlab.com/ConsignEx/escrowrouter/internal/lib"
)

// DealID is an opaque caller-supplied 32-byte identifier. The router
// never derives ids, see NewDealID and HashDealID for helpers callers
// may use.
type DealID = common.Hash

// NewDealID returns a random deal id
func NewDealID() DealID {
	return lib.GetRandomHash()
}

// HashDealID derives a deterministic deal id from an externally
// meaningful reference, e.g. a consignment batch number
func HashDealID(parts ...[]byte) DealID {
	return crypto.Keccak256Hash(parts...)
}

// SignatureMask records which of the three ordered roles have signed
type SignatureMask uint8

const (
	SigBuyer    SignatureMask = 1 << 0
	SigProducer SignatureMask = 1 << 1
	SigCarrier  SignatureMask = 1 << 2

	SigAll = SigBuyer | SigProducer | SigCarrier
)

func (m SignatureMask) Has(bit SignatureMask) bool {
	return m&bit != 0
}

func (m SignatureMask) String() string {
	buf := [3]byte{'-', '-', '-'}
	if m.Has(SigProducer) {
		buf[0] = 'P'
	}
	if m.Has(SigCarrier) {
		buf[1] = 'C'
	}
	if m.Has(SigBuyer) {
		buf[2] = 'B'
	}
	return string(buf[:])
}

type Status uint8

const (
	StatusPending    Status = iota // locked, waiting for signatures
	StatusAuthorized               // all three roles signed, waiting for arbiter
	StatusSettled                  // paid out, amounts zeroed
)

func (s Status) String() string {
	switch s {
	case StatusPending:
		return "pending"
	case StatusAuthorized:
		return "authorized"
	case StatusSettled:
		return "settled"
	default:
		return "unknown"
	}
}

// Deal is one escrowed trade instance. Fields are immutable after Lock
// except the signature mask, the acknowledged flag and the amounts
// zeroed at settlement. Mutations go through the Router only.
type Deal struct {
	id       DealID
	buyer    common.Address
	producer common.Address
	carrier  common.Address
	arbiter  common.Address

	producerAmount *big.Int
	carrierAmount  *big.Int
	fee            *big.Int // captured at lock time, for reporting

	signatureMask       SignatureMask
	arbiterAcknowledged bool

	createdAt time.Time
	settledAt time.Time
}

func (d *Deal) ID() DealID {
	return d.id
}

func (d *Deal) Buyer() common.Address {
	return d.buyer
}

func (d *Deal) Producer() common.Address {
	return d.producer
}

func (d *Deal) Carrier() common.Address {
	return d.carrier
}

func (d *Deal) Arbiter() common.Address {
	return d.arbiter
}

func (d *Deal) ProducerAmount() *big.Int {
	return new(big.Int).Set(d.producerAmount) // copy
}

func (d *Deal) CarrierAmount() *big.Int {
	return new(big.Int).Set(d.carrierAmount) // copy
}

func (d *Deal) Fee() *big.Int {
	return new(big.Int).Set(d.fee) // copy
}

func (d *Deal) SignatureMask() SignatureMask {
	return d.signatureMask
}

func (d *Deal) ArbiterAcknowledged() bool {
	return d.arbiterAcknowledged
}

func (d *Deal) CreatedAt() time.Time {
	return d.createdAt
}

// SettledAt returns the zero time for deals that are not settled yet
func (d *Deal) SettledAt() time.Time {
	return d.settledAt
}

// Status is derived from the stored fields, never persisted
func (d *Deal) Status() Status {
	if d.producerAmount.Sign() == 0 && d.carrierAmount.Sign() == 0 {
		return StatusSettled
	}
	if d.signatureMask == SigAll {
		return StatusAuthorized
	}
	return StatusPending
}

// isActive reports whether the deal still holds escrowed value, which
// is what blocks identifier reuse
func (d *Deal) isActive() bool {
	return d.producerAmount.Sign() > 0 || d.carrierAmount.Sign() > 0
}

func (d *Deal) Copy() *Deal {
	return &Deal{
		id:                  d.id,
		buyer:               d.buyer,
		producer:            d.producer,
		carrier:             d.carrier,
		arbiter:             d.arbiter,
		producerAmount:      d.ProducerAmount(),
		carrierAmount:       d.CarrierAmount(),
		fee:                 d.Fee(),
		signatureMask:       d.signatureMask,
		arbiterAcknowledged: d.arbiterAcknowledged,
		createdAt:           d.createdAt,
		settledAt:           d.settledAt,
	}
}
