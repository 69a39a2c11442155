package httphandlers

import (
	"net/url"
	"strings"

	"net/http/pprof"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"gitlab.com/ConsignEx/escrowrouter/internal/auth"
	"gitlab.com/ConsignEx/escrowrouter/internal/config"
	"gitlab.com/ConsignEx/escrowrouter/internal/escrow"
	"gitlab.com/ConsignEx/escrowrouter/internal/interfaces"
	"gitlab.com/ConsignEx/escrowrouter/internal/journal"
	"gitlab.com/ConsignEx/escrowrouter/internal/metrics"
	"gitlab.com/ConsignEx/escrowrouter/internal/repositories/ledger"
)

// callerKey is the gin context key the auth middleware stores the
// verified caller address under
const callerKey = "caller"

const bearerPrefix = "Bearer "

type HTTPHandler struct {
	router    *escrow.Router
	ledger    ledger.Ledger
	journal   *journal.Journal
	auth      *auth.Service
	metrics   *metrics.Metrics
	config    *config.Config
	publicUrl *url.URL
	log       interfaces.ILogger
}

func NewHTTPHandler(router *escrow.Router, lgr ledger.Ledger, jrn *journal.Journal, authSvc *auth.Service, mtr *metrics.Metrics, cfg *config.Config, publicUrl *url.URL, log interfaces.ILogger) *gin.Engine {
	handl := &HTTPHandler{
		router:    router,
		ledger:    lgr,
		journal:   jrn,
		auth:      authSvc,
		metrics:   mtr,
		config:    cfg,
		publicUrl: publicUrl,
		log:       log,
	}

	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(RequestID())

	r.GET("/healthcheck", handl.HealthCheck)
	r.GET("/config", handl.GetConfig)
	r.GET("/deals", handl.GetDeals)
	r.GET("/deals/:ID", handl.GetDeal)
	r.GET("/deals/:ID/events", handl.GetDealEvents)
	r.GET("/events", handl.StreamEvents)
	r.GET("/balances/:address", handl.GetBalance)

	r.POST("/auth/token", handl.CreateToken)
	r.POST("/deals", handl.Authenticate, handl.CreateDeal)
	r.POST("/deals/:ID/producer-sign", handl.Authenticate, handl.SignProducer)
	r.POST("/deals/:ID/carrier-sign", handl.Authenticate, handl.SignCarrier)
	r.POST("/deals/:ID/buyer-sign", handl.Authenticate, handl.SignBuyer)
	r.POST("/deals/:ID/finalize", handl.Authenticate, handl.FinalizeDeal)

	r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(mtr.Registry(), promhttp.HandlerOpts{})))
	r.Any("/debug/pprof/*action", gin.WrapF(pprof.Index))

	err := r.SetTrustedProxies(nil)
	if err != nil {
		panic(err)
	}

	return r
}

func (h *HTTPHandler) HealthCheck(ctx *gin.Context) {
	ctx.JSON(200, gin.H{
		"status":  "healthy",
		"version": config.BuildVersion,
		"custody": h.router.Custody().Hex(),
	})
}

func (h *HTTPHandler) GetConfig(ctx *gin.Context) {
	ctx.JSON(200, ConfigResponse{
		Version: config.BuildVersion,
		Config:  h.config.GetSanitized(),
	})
}

// RequestID propagates the client request id, or stamps a fresh one, so
// a response can be matched to server logs
func RequestID() gin.HandlerFunc {
	return func(ctx *gin.Context) {
		id := ctx.GetHeader("X-Request-ID")
		if id == "" {
			id = uuid.NewString()
		}
		ctx.Header("X-Request-ID", id)
		ctx.Next()
	}
}

// Authenticate resolves the caller address from the bearer token. The
// address is a claim, not a signature check: the token proves the
// caller went through token issuance, the escrow rules decide what the
// address may do.
func (h *HTTPHandler) Authenticate(ctx *gin.Context) {
	header := ctx.GetHeader("Authorization")
	if !strings.HasPrefix(header, bearerPrefix) {
		ctx.AbortWithStatusJSON(401, gin.H{"error": "bearer token required"})
		return
	}

	addr, err := h.auth.Verify(strings.TrimPrefix(header, bearerPrefix))
	if err != nil {
		h.log.Debugf("token rejected: %s", err)
		ctx.AbortWithStatusJSON(401, gin.H{"error": "invalid token"})
		return
	}

	ctx.Set(callerKey, addr)
	ctx.Next()
}

// caller returns the address the auth middleware verified for this
// request
func (h *HTTPHandler) caller(ctx *gin.Context) common.Address {
	v, ok := ctx.Get(callerKey)
	if !ok {
		return common.Address{}
	}
	addr, _ := v.(common.Address)
	return addr
}
