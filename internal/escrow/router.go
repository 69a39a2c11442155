package escrow

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"gitlab.com/ConsignEx/escrowrouter/internal/interfaces"
	"gitlab.com/ConsignEx/escrowrouter/internal/journal"
	"gitlab.com/ConsignEx/escrowrouter/internal/lib"
	"gitlab.com/ConsignEx/escrowrouter/internal/repositories/dealstore"
	"gitlab.com/ConsignEx/escrowrouter/internal/repositories/ledger"
	"go.uber.org/atomic"
)

// dealSlot pins one deal id to one mutex for the whole process
// lifetime. A slot with a nil deal is vacant: either the id was never
// locked successfully or it only ever saw a failed Lock.
type dealSlot struct {
	id   string
	mu   lib.Mutex
	deal *Deal
}

func (s *dealSlot) GetID() string {
	return s.id
}

// Router owns every deal transition. State lives in memory in per-id
// slots, is written through to the store after each transition and is
// replayed from the store at boot. Funds move through the ledger: in
// from the buyer at lock, out to the three payees at finalize.
type Router struct {
	// config
	custody common.Address

	// state
	slots     *lib.Collection[*dealSlot]
	openDeals atomic.Int64

	// deps
	ledger  ledger.Ledger
	store   dealstore.Store
	journal *journal.Journal
	log     interfaces.ILogger
}

func NewRouter(custody common.Address, l ledger.Ledger, store dealstore.Store, jrn *journal.Journal, log interfaces.ILogger) *Router {
	return &Router{
		custody: custody,
		slots:   lib.NewCollection[*dealSlot](),
		ledger:  l,
		store:   store,
		journal: jrn,
		log:     log,
	}
}

func (r *Router) Custody() common.Address {
	return r.custody
}

// OpenDeals returns the number of deals currently holding escrowed
// value, exposed as a gauge
func (r *Router) OpenDeals() int64 {
	return r.openDeals.Load()
}

// Restore replays persisted deal records into memory. Must be called
// before the router starts serving, it does not lock slots.
func (r *Router) Restore(ctx context.Context) error {
	receipts, err := r.store.All(ctx)
	if err != nil {
		return err
	}

	for _, receipt := range receipts {
		slot, _ := r.slots.LoadOrStore(&dealSlot{id: receipt.ID.Hex(), mu: lib.NewMutex()})
		slot.deal = dealFromReceipt(receipt)
		if slot.deal.isActive() {
			r.openDeals.Inc()
		}
	}

	r.log.Infof("restored %d deal records, %d open", len(receipts), r.openDeals.Load())
	return nil
}

// Lock creates a deal under the given id and pulls the full escrow
// amount, payouts plus fee, from the buyer in a single inbound
// transfer. Nothing is recorded if the transfer fails. The id may be
// reused once a previous deal under it has settled.
func (r *Router) Lock(ctx context.Context, id DealID, buyer, producer, carrier, arbiter common.Address, producerAmount, carrierAmount *big.Int) (*Deal, error) {
	if producerAmount == nil || carrierAmount == nil || producerAmount.Sign() < 0 || carrierAmount.Sign() < 0 {
		return nil, lib.WrapError(ErrNegativeAmount, fmt.Errorf("producer %s carrier %s", producerAmount, carrierAmount))
	}
	if buyer == (common.Address{}) {
		return nil, lib.WrapError(ErrUnauthorized, fmt.Errorf("zero buyer address"))
	}

	slot, _ := r.slots.LoadOrStore(&dealSlot{id: id.Hex(), mu: lib.NewMutex()})
	if err := slot.mu.LockCtx(ctx); err != nil {
		return nil, err
	}
	defer slot.mu.Unlock()

	if slot.deal != nil && slot.deal.isActive() {
		return nil, lib.WrapError(ErrDuplicateDeal, fmt.Errorf("id %s", lib.StrShort(id.Hex())))
	}

	fee := Fee(producerAmount, carrierAmount)
	total := new(big.Int).Add(producerAmount, carrierAmount)
	total.Add(total, fee)

	if err := r.ledger.TransferFrom(ctx, buyer, r.custody, total); err != nil {
		return nil, lib.WrapError(ErrInsufficientFunds, err)
	}

	deal := &Deal{
		id:             id,
		buyer:          buyer,
		producer:       producer,
		carrier:        carrier,
		arbiter:        arbiter,
		producerAmount: new(big.Int).Set(producerAmount),
		carrierAmount:  new(big.Int).Set(carrierAmount),
		fee:            fee,
		createdAt:      time.Now().UTC(),
	}
	slot.deal = deal

	r.persist(ctx, deal)
	if deal.isActive() {
		// a deal locked with two zero amounts is born settled
		r.openDeals.Inc()
	}

	r.journal.Append(journal.Event{
		Kind:           journal.EventDealLocked,
		DealID:         id.Hex(),
		Actor:          buyer.Hex(),
		Role:           journal.RoleBuyer,
		ProducerAmount: producerAmount.String(),
		CarrierAmount:  carrierAmount.String(),
		Fee:            fee.String(),
	})
	r.log.Infof("deal %s locked, escrowed %s (fee %s)", lib.StrShort(id.Hex()), total, fee)

	return deal.Copy(), nil
}

// SignProducer records the producer signature, the first in the order
func (r *Router) SignProducer(ctx context.Context, id DealID, caller common.Address) (*Deal, error) {
	return r.sign(ctx, id, caller, SigProducer)
}

// SignCarrier records the carrier signature, valid only after the
// producer has signed
func (r *Router) SignCarrier(ctx context.Context, id DealID, caller common.Address) (*Deal, error) {
	return r.sign(ctx, id, caller, SigCarrier)
}

// SignBuyer records the buyer signature, the last in the order
func (r *Router) SignBuyer(ctx context.Context, id DealID, caller common.Address) (*Deal, error) {
	return r.sign(ctx, id, caller, SigBuyer)
}

func (r *Router) sign(ctx context.Context, id DealID, caller common.Address, bit SignatureMask) (*Deal, error) {
	if caller == (common.Address{}) {
		return nil, lib.WrapError(ErrUnauthorized, fmt.Errorf("zero caller address"))
	}

	slot, ok := r.slots.Load(id.Hex())
	if !ok {
		return nil, lib.WrapError(ErrUnauthorized, fmt.Errorf("no deal under id %s", lib.StrShort(id.Hex())))
	}
	if err := slot.mu.LockCtx(ctx); err != nil {
		return nil, err
	}
	defer slot.mu.Unlock()

	deal := slot.deal
	if deal == nil {
		return nil, lib.WrapError(ErrUnauthorized, fmt.Errorf("no deal under id %s", lib.StrShort(id.Hex())))
	}

	var (
		signer   common.Address
		required SignatureMask
		role     string
	)
	switch bit {
	case SigProducer:
		signer, required, role = deal.producer, 0, journal.RoleProducer
	case SigCarrier:
		signer, required, role = deal.carrier, SigProducer, journal.RoleCarrier
	case SigBuyer:
		signer, required, role = deal.buyer, SigProducer|SigCarrier, journal.RoleBuyer
	default:
		return nil, fmt.Errorf("unknown signature bit %d", bit)
	}

	// identity before order: a caller that is not the role must never
	// learn how far the signing has progressed
	if caller != signer {
		return nil, lib.WrapError(ErrUnauthorized, fmt.Errorf("caller %s is not the %s", lib.StrShort(caller.Hex()), role))
	}
	if deal.signatureMask&required != required {
		return nil, lib.WrapError(ErrOutOfOrder, fmt.Errorf("%s signs after [%s], current [%s]", role, required, deal.signatureMask))
	}

	// idempotent: repeating a signature is accepted and changes nothing
	deal.signatureMask |= bit
	r.persist(ctx, deal)

	r.journal.Append(journal.Event{
		Kind:   journal.EventDealSigned,
		DealID: id.Hex(),
		Actor:  caller.Hex(),
		Role:   role,
		Mask:   uint8(deal.signatureMask),
	})
	r.log.Debugf("deal %s signed by %s, mask [%s]", lib.StrShort(id.Hex()), role, deal.signatureMask)

	return deal.Copy(), nil
}

// Finalize settles a fully signed deal: the arbiter acknowledges, the
// escrowed amounts are zeroed and only then paid out. Payout legs run
// after the deal is already settled, so a failed or reentering ledger
// sees a settled deal and cannot double-spend. Leg failures are
// reported, never rolled back, the failed value stays in custody for
// operator recovery.
func (r *Router) Finalize(ctx context.Context, id DealID, caller common.Address) (*Deal, error) {
	settled, takes, err := r.settle(ctx, id, caller)
	if err != nil {
		return nil, err
	}
	return settled, r.payout(ctx, id, takes)
}

type payoutSet struct {
	producer, carrier, arbiter             common.Address
	producerTake, carrierTake, arbiterTake *big.Int
}

// settle performs the checks and the state transition under the slot
// lock and returns the amounts to pay. No fund movement happens here.
func (r *Router) settle(ctx context.Context, id DealID, caller common.Address) (*Deal, payoutSet, error) {
	if caller == (common.Address{}) {
		return nil, payoutSet{}, lib.WrapError(ErrUnauthorized, fmt.Errorf("zero caller address"))
	}

	slot, ok := r.slots.Load(id.Hex())
	if !ok {
		return nil, payoutSet{}, lib.WrapError(ErrUnauthorized, fmt.Errorf("no deal under id %s", lib.StrShort(id.Hex())))
	}
	if err := slot.mu.LockCtx(ctx); err != nil {
		return nil, payoutSet{}, err
	}
	defer slot.mu.Unlock()

	deal := slot.deal
	if deal == nil {
		return nil, payoutSet{}, lib.WrapError(ErrUnauthorized, fmt.Errorf("no deal under id %s", lib.StrShort(id.Hex())))
	}
	if caller != deal.arbiter {
		return nil, payoutSet{}, lib.WrapError(ErrUnauthorized, fmt.Errorf("caller %s is not the arbiter", lib.StrShort(caller.Hex())))
	}
	if !deal.isActive() {
		return nil, payoutSet{}, lib.WrapError(ErrAlreadySettled, fmt.Errorf("id %s", lib.StrShort(id.Hex())))
	}
	if deal.signatureMask != SigAll {
		return nil, payoutSet{}, lib.WrapError(ErrMissingAuthorization, fmt.Errorf("signatures [%s]", deal.signatureMask))
	}

	// the fee is recomputed from the amounts as stored now, not read
	// back from lock time
	takes := payoutSet{
		producer:     deal.producer,
		carrier:      deal.carrier,
		arbiter:      deal.arbiter,
		producerTake: deal.ProducerAmount(),
		carrierTake:  deal.CarrierAmount(),
		arbiterTake:  Fee(deal.producerAmount, deal.carrierAmount),
	}

	deal.producerAmount.SetInt64(0)
	deal.carrierAmount.SetInt64(0)
	deal.arbiterAcknowledged = true
	deal.settledAt = time.Now().UTC()

	// the zeroed record must be durable before any value leaves custody
	r.persist(ctx, deal)
	r.openDeals.Dec()

	r.journal.Append(journal.Event{
		Kind:           journal.EventDealFinalized,
		DealID:         id.Hex(),
		Actor:          caller.Hex(),
		Role:           journal.RoleArbiter,
		Mask:           uint8(deal.signatureMask),
		ProducerAmount: takes.producerTake.String(),
		CarrierAmount:  takes.carrierTake.String(),
		Fee:            takes.arbiterTake.String(),
	})
	r.log.Infof("deal %s settled, paying producer %s carrier %s arbiter %s",
		lib.StrShort(id.Hex()), takes.producerTake, takes.carrierTake, takes.arbiterTake)

	return deal.Copy(), takes, nil
}

// payout runs outside the slot lock so a slow ledger cannot stall
// other operations on the id. Every leg is attempted, failures are
// collected and surfaced together.
func (r *Router) payout(ctx context.Context, id DealID, takes payoutSet) error {
	legs := []struct {
		to     common.Address
		amount *big.Int
		role   string
	}{
		{takes.producer, takes.producerTake, journal.RoleProducer},
		{takes.carrier, takes.carrierTake, journal.RoleCarrier},
		{takes.arbiter, takes.arbiterTake, journal.RoleArbiter},
	}

	var failures []error
	for _, leg := range legs {
		err := r.ledger.Transfer(ctx, leg.to, leg.amount)
		if err == nil {
			continue
		}
		failures = append(failures, fmt.Errorf("%s leg of %s: %w", leg.role, leg.amount, err))
		r.log.Errorw("payout leg failed", "deal", lib.StrShort(id.Hex()), "role", leg.role, "amount", leg.amount, "err", err)
		r.journal.Append(journal.Event{
			Kind:   journal.EventPayoutFailed,
			DealID: id.Hex(),
			Actor:  leg.to.Hex(),
			Role:   leg.role,
			Reason: err.Error(),
		})
	}
	if len(failures) > 0 {
		return lib.WrapError(ErrPayoutTransfer, errors.Join(failures...))
	}
	return nil
}

// GetDeal returns a snapshot of the deal. Reads are public, anyone may
// query any id.
func (r *Router) GetDeal(ctx context.Context, id DealID) (*Deal, error) {
	slot, ok := r.slots.Load(id.Hex())
	if !ok {
		return nil, ErrDealNotFound
	}
	if err := slot.mu.LockCtx(ctx); err != nil {
		return nil, err
	}
	defer slot.mu.Unlock()

	if slot.deal == nil {
		return nil, ErrDealNotFound
	}
	return slot.deal.Copy(), nil
}

// AllDeals returns a snapshot of every deal in no particular order
func (r *Router) AllDeals(ctx context.Context) ([]*Deal, error) {
	var (
		deals   []*Deal
		lockErr error
	)
	r.slots.Range(func(slot *dealSlot) bool {
		if err := slot.mu.LockCtx(ctx); err != nil {
			lockErr = err
			return false
		}
		if slot.deal != nil {
			deals = append(deals, slot.deal.Copy())
		}
		slot.mu.Unlock()
		return true
	})
	if lockErr != nil {
		return nil, lockErr
	}
	return deals, nil
}

// persist writes the deal through to the store. The in-memory state is
// authoritative, a failed write is logged and the record is written
// again on the next transition of the deal.
func (r *Router) persist(ctx context.Context, deal *Deal) {
	if err := r.store.Put(ctx, receiptFromDeal(deal)); err != nil {
		r.log.Errorw("deal record write failed", "deal", lib.StrShort(deal.id.Hex()), "err", err)
	}
}
