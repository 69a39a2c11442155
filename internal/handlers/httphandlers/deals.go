package httphandlers

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gin-gonic/gin"
	"gitlab.com/ConsignEx/escrowrouter/internal/escrow"
	"gitlab.com/ConsignEx/escrowrouter/internal/journal"
	"golang.org/x/exp/slices"
)

func (h *HTTPHandler) CreateDeal(ctx *gin.Context) {
	var req LockDealRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		ctx.JSON(400, gin.H{"error": err.Error()})
		return
	}

	id := escrow.NewDealID()
	if req.ID != "" {
		var err error
		id, err = parseDealID(req.ID)
		if err != nil {
			ctx.JSON(400, gin.H{"error": err.Error()})
			return
		}
	}
	if !common.IsHexAddress(req.Producer) {
		ctx.JSON(400, gin.H{"error": "invalid producer address"})
		return
	}
	if !common.IsHexAddress(req.Carrier) {
		ctx.JSON(400, gin.H{"error": "invalid carrier address"})
		return
	}
	if !common.IsHexAddress(req.Arbiter) {
		ctx.JSON(400, gin.H{"error": "invalid arbiter address"})
		return
	}

	// the authenticated caller is the buyer, the lock pulls the escrow
	// total from their ledger account
	deal, err := h.router.Lock(ctx.Request.Context(), id, h.caller(ctx),
		common.HexToAddress(req.Producer),
		common.HexToAddress(req.Carrier),
		common.HexToAddress(req.Arbiter),
		parseAmount(req.ProducerAmount),
		parseAmount(req.CarrierAmount),
	)
	if err != nil {
		h.writeOpError(ctx, "lock", err)
		return
	}

	h.metrics.DealsLocked.Inc()
	ctx.JSON(201, h.mapDeal(deal))
}

func (h *HTTPHandler) SignProducer(ctx *gin.Context) {
	h.sign(ctx, journal.RoleProducer, h.router.SignProducer)
}

func (h *HTTPHandler) SignCarrier(ctx *gin.Context) {
	h.sign(ctx, journal.RoleCarrier, h.router.SignCarrier)
}

func (h *HTTPHandler) SignBuyer(ctx *gin.Context) {
	h.sign(ctx, journal.RoleBuyer, h.router.SignBuyer)
}

func (h *HTTPHandler) sign(ctx *gin.Context, party string, fn func(context.Context, escrow.DealID, common.Address) (*escrow.Deal, error)) {
	id, err := parseDealID(ctx.Param("ID"))
	if err != nil {
		ctx.JSON(400, gin.H{"error": err.Error()})
		return
	}

	deal, err := fn(ctx.Request.Context(), id, h.caller(ctx))
	if err != nil {
		h.writeOpError(ctx, party+"-sign", err)
		return
	}

	h.metrics.Signatures.WithLabelValues(party).Inc()
	ctx.JSON(200, h.mapDeal(deal))
}

func (h *HTTPHandler) FinalizeDeal(ctx *gin.Context) {
	id, err := parseDealID(ctx.Param("ID"))
	if err != nil {
		ctx.JSON(400, gin.H{"error": err.Error()})
		return
	}

	deal, err := h.router.Finalize(ctx.Request.Context(), id, h.caller(ctx))
	if err != nil && !errors.Is(err, escrow.ErrPayoutTransfer) {
		h.writeOpError(ctx, "finalize", err)
		return
	}

	h.metrics.DealsFinalized.Inc()
	if err != nil {
		// settled, but at least one payout leg did not go out. The
		// unpaid value stays in custody, the deal events name the
		// failed legs.
		ctx.JSON(502, gin.H{"error": err.Error(), "code": "payout_transfer", "deal": h.mapDeal(deal)})
		return
	}

	ctx.JSON(200, h.mapDeal(deal))
}

func (c *HTTPHandler) GetDeals(ctx *gin.Context) {
	deals, err := c.router.AllDeals(ctx.Request.Context())
	if err != nil {
		ctx.JSON(500, gin.H{"error": err.Error()})
		return
	}

	data := []Deal{}
	for _, d := range deals {
		data = append(data, *c.mapDeal(d))
	}

	slices.SortStableFunc(data, func(a Deal, b Deal) bool {
		return a.ID < b.ID
	})

	ctx.JSON(200, data)
}

func (c *HTTPHandler) GetDeal(ctx *gin.Context) {
	id, err := parseDealID(ctx.Param("ID"))
	if err != nil {
		ctx.JSON(400, gin.H{"error": err.Error()})
		return
	}

	deal, err := c.router.GetDeal(ctx.Request.Context(), id)
	if err != nil {
		ctx.JSON(404, gin.H{"error": "deal not found"})
		return
	}

	ctx.JSON(200, c.mapDeal(deal))
}

func (c *HTTPHandler) GetDealEvents(ctx *gin.Context) {
	id, err := parseDealID(ctx.Param("ID"))
	if err != nil {
		ctx.JSON(400, gin.H{"error": err.Error()})
		return
	}

	if _, err := c.router.GetDeal(ctx.Request.Context(), id); err != nil {
		ctx.JSON(404, gin.H{"error": "deal not found"})
		return
	}

	ctx.JSON(200, c.journal.DealEvents(id))
}

func (c *HTTPHandler) GetBalance(ctx *gin.Context) {
	addr := ctx.Param("address")
	if !common.IsHexAddress(addr) {
		ctx.JSON(400, gin.H{"error": "invalid address"})
		return
	}

	balance, err := c.ledger.BalanceOf(ctx.Request.Context(), common.HexToAddress(addr))
	if err != nil {
		ctx.JSON(500, gin.H{"error": err.Error()})
		return
	}

	ctx.JSON(200, BalanceResponse{
		Address: common.HexToAddress(addr).Hex(),
		Balance: balance.String(),
	})
}

// writeOpError maps a refused operation onto a status code, counts it
// and writes the error body
func (h *HTTPHandler) writeOpError(ctx *gin.Context, op string, err error) {
	status, code := mapOpError(err)
	h.metrics.OpErrors.WithLabelValues(op, code).Inc()
	h.log.Warnf("%s refused: %s", op, err)
	ctx.JSON(status, gin.H{"error": err.Error(), "code": code})
}

func mapOpError(err error) (int, string) {
	switch {
	case errors.Is(err, escrow.ErrNegativeAmount):
		return 400, "bad_amount"
	case errors.Is(err, escrow.ErrInsufficientFunds):
		return 402, "insufficient_funds"
	case errors.Is(err, escrow.ErrUnauthorized):
		return 403, "unauthorized"
	case errors.Is(err, escrow.ErrDealNotFound):
		return 404, "not_found"
	case errors.Is(err, escrow.ErrDuplicateDeal):
		return 409, "duplicate_deal"
	case errors.Is(err, escrow.ErrOutOfOrder):
		return 409, "out_of_order"
	case errors.Is(err, escrow.ErrMissingAuthorization):
		return 409, "missing_authorization"
	case errors.Is(err, escrow.ErrAlreadySettled):
		return 410, "already_settled"
	case errors.Is(err, escrow.ErrPayoutTransfer):
		return 502, "payout_transfer"
	}
	return 500, "internal"
}

func (p *HTTPHandler) mapDeal(d *escrow.Deal) *Deal {
	mask := d.SignatureMask()
	return &Deal{
		Resource: Resource{
			Self: p.publicUrl.JoinPath(fmt.Sprintf("/deals/%s", d.ID().Hex())).String(),
		},
		Events: p.publicUrl.JoinPath(fmt.Sprintf("/deals/%s/events", d.ID().Hex())).String(),

		ID:     d.ID().Hex(),
		Status: d.Status().String(),

		Buyer:    d.Buyer().Hex(),
		Producer: d.Producer().Hex(),
		Carrier:  d.Carrier().Hex(),
		Arbiter:  d.Arbiter().Hex(),

		ProducerAmount: d.ProducerAmount().String(),
		CarrierAmount:  d.CarrierAmount().String(),
		Fee:            d.Fee().String(),

		Signatures: Signatures{
			Producer: mask.Has(escrow.SigProducer),
			Carrier:  mask.Has(escrow.SigCarrier),
			Buyer:    mask.Has(escrow.SigBuyer),
			Mask:     mask.String(),
		},
		ArbiterAcknowledged: d.ArbiterAcknowledged(),

		CreatedAt: d.CreatedAt().Format(time.RFC3339),
		SettledAt: formatTime(d.SettledAt()),
	}
}

func parseDealID(s string) (escrow.DealID, error) {
	b := common.FromHex(s)
	if len(b) != common.HashLength {
		return escrow.DealID{}, fmt.Errorf("deal id must be 32 bytes of hex")
	}
	return common.BytesToHash(b), nil
}

// parseAmount returns nil for anything that is not a base 10 integer,
// the escrow refuses nil amounts
func parseAmount(s string) *big.Int {
	v, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return nil
	}
	return v
}

// formatTime converts a zeroable time to a nullable string
func formatTime(t time.Time) *string {
	if t.IsZero() {
		return nil
	}
	s := t.Format(time.RFC3339)
	return &s
}
