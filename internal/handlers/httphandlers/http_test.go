package httphandlers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"
	"gitlab.com/ConsignEx/escrowrouter/internal/auth"
	"gitlab.com/ConsignEx/escrowrouter/internal/config"
	"gitlab.com/ConsignEx/escrowrouter/internal/escrow"
	"gitlab.com/ConsignEx/escrowrouter/internal/journal"
	"gitlab.com/ConsignEx/escrowrouter/internal/lib"
	"gitlab.com/ConsignEx/escrowrouter/internal/metrics"
	"gitlab.com/ConsignEx/escrowrouter/internal/repositories/dealstore"
	"gitlab.com/ConsignEx/escrowrouter/internal/repositories/ledger"
)

const buyerFunds = 1_000_000

type fixture struct {
	engine *gin.Engine
	sim    *ledger.SimLedger
	auth   *auth.Service
	cfg    *config.Config

	custody  common.Address
	buyer    common.Address
	producer common.Address
	carrier  common.Address
	arbiter  common.Address
}

// failingLedger refuses outbound transfers to one address, everything
// else passes through
type failingLedger struct {
	ledger.Ledger
	refuse common.Address
}

func (l *failingLedger) Transfer(ctx context.Context, to common.Address, amount *big.Int) error {
	if to == l.refuse {
		return fmt.Errorf("recipient rejected")
	}
	return l.Ledger.Transfer(ctx, to, amount)
}

func newFixture(t *testing.T) *fixture {
	return newFixtureLedger(t, nil)
}

func newFixtureLedger(t *testing.T, wrap func(f *fixture) ledger.Ledger) *fixture {
	t.Helper()
	log := &lib.LoggerMock{}

	f := &fixture{
		custody:  lib.GetRandomAddr(),
		buyer:    lib.GetRandomAddr(),
		producer: lib.GetRandomAddr(),
		carrier:  lib.GetRandomAddr(),
		arbiter:  lib.GetRandomAddr(),
	}

	f.sim = ledger.NewSimLedger(f.custody, log)
	f.sim.SetBalance(f.buyer, big.NewInt(buyerFunds))
	f.sim.Approve(f.buyer, f.custody, big.NewInt(buyerFunds))

	var lgr ledger.Ledger = f.sim
	if wrap != nil {
		lgr = wrap(f)
	}

	jrn := journal.NewJournal(256, log)
	router := escrow.NewRouter(f.custody, lgr, dealstore.NewMemoryStore(), jrn, log)
	mtr := metrics.New(func() float64 { return float64(router.OpenDeals()) })
	f.auth = auth.NewService("handler-test-secret", time.Hour)

	f.cfg = &config.Config{}
	f.cfg.Environment = "development"
	f.cfg.Auth.Secret = "handler-test-secret"
	f.cfg.Auth.TokenTTL = time.Hour

	publicUrl, err := url.Parse("http://localhost:8080")
	require.NoError(t, err)

	f.engine = NewHTTPHandler(router, lgr, jrn, f.auth, mtr, f.cfg, publicUrl, log)
	return f
}

// do performs a request against the engine, minting a token when a
// caller is given
func (f *fixture) do(t *testing.T, method, path string, caller *common.Address, body interface{}) *httptest.ResponseRecorder {
	t.Helper()

	var rdr io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		rdr = bytes.NewReader(b)
	}
	req := httptest.NewRequest(method, path, rdr)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if caller != nil {
		token, err := f.auth.Mint(*caller)
		require.NoError(t, err)
		req.Header.Set("Authorization", "Bearer "+token)
	}

	w := httptest.NewRecorder()
	f.engine.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v), "body: %s", w.Body.String())
	return v
}

func (f *fixture) lockDeal(t *testing.T, producerAmount, carrierAmount string) Deal {
	t.Helper()
	w := f.do(t, http.MethodPost, "/deals", &f.buyer, LockDealRequest{
		Producer:       f.producer.Hex(),
		Carrier:        f.carrier.Hex(),
		Arbiter:        f.arbiter.Hex(),
		ProducerAmount: producerAmount,
		CarrierAmount:  carrierAmount,
	})
	require.Equal(t, 201, w.Code, w.Body.String())
	return decode[Deal](t, w)
}

func (f *fixture) signAll(t *testing.T, id string) {
	t.Helper()
	steps := []struct {
		caller common.Address
		path   string
	}{
		{f.producer, "producer-sign"},
		{f.carrier, "carrier-sign"},
		{f.buyer, "buyer-sign"},
	}
	for _, s := range steps {
		caller := s.caller
		w := f.do(t, http.MethodPost, fmt.Sprintf("/deals/%s/%s", id, s.path), &caller, nil)
		require.Equal(t, 200, w.Code, w.Body.String())
	}
}

func (f *fixture) balanceOf(t *testing.T, addr common.Address) string {
	t.Helper()
	w := f.do(t, http.MethodGet, "/balances/"+addr.Hex(), nil, nil)
	require.Equal(t, 200, w.Code)
	return decode[BalanceResponse](t, w).Balance
}

func TestCreateDeal(t *testing.T) {
	f := newFixture(t)

	deal := f.lockDeal(t, "1000", "325")

	require.Equal(t, "pending", deal.Status)
	require.Equal(t, f.buyer.Hex(), deal.Buyer)
	require.Equal(t, f.producer.Hex(), deal.Producer)
	require.Equal(t, "1000", deal.ProducerAmount)
	require.Equal(t, "325", deal.CarrierAmount)
	require.Equal(t, "39", deal.Fee)
	require.Equal(t, "---", deal.Signatures.Mask)
	require.Nil(t, deal.SettledAt)
	require.Equal(t, "http://localhost:8080/deals/"+deal.ID, deal.Self)
	require.Equal(t, "http://localhost:8080/deals/"+deal.ID+"/events", deal.Events)

	require.Equal(t, "1364", f.balanceOf(t, f.custody))
	require.Equal(t, fmt.Sprint(buyerFunds-1364), f.balanceOf(t, f.buyer))

	w := f.do(t, http.MethodGet, "/deals/"+deal.ID, nil, nil)
	require.Equal(t, 200, w.Code)
	require.Equal(t, deal.ID, decode[Deal](t, w).ID)
}

func TestCreateDealRequiresToken(t *testing.T) {
	f := newFixture(t)

	body := LockDealRequest{
		Producer: f.producer.Hex(), Carrier: f.carrier.Hex(), Arbiter: f.arbiter.Hex(),
		ProducerAmount: "1", CarrierAmount: "1",
	}

	w := f.do(t, http.MethodPost, "/deals", nil, body)
	require.Equal(t, 401, w.Code)

	b, err := json.Marshal(body)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, "/deals", bytes.NewReader(b))
	req.Header.Set("Authorization", "Bearer not-a-token")
	rec := httptest.NewRecorder()
	f.engine.ServeHTTP(rec, req)
	require.Equal(t, 401, rec.Code)
}

func TestCreateDealValidation(t *testing.T) {
	f := newFixture(t)

	base := LockDealRequest{
		Producer: f.producer.Hex(), Carrier: f.carrier.Hex(), Arbiter: f.arbiter.Hex(),
		ProducerAmount: "10", CarrierAmount: "10",
	}

	bad := base
	bad.Producer = "not-an-address"
	w := f.do(t, http.MethodPost, "/deals", &f.buyer, bad)
	require.Equal(t, 400, w.Code)

	bad = base
	bad.ID = "0x1234"
	w = f.do(t, http.MethodPost, "/deals", &f.buyer, bad)
	require.Equal(t, 400, w.Code)

	bad = base
	bad.ProducerAmount = "12.5"
	w = f.do(t, http.MethodPost, "/deals", &f.buyer, bad)
	require.Equal(t, 400, w.Code)
	require.Contains(t, w.Body.String(), "bad_amount")

	bad = base
	bad.CarrierAmount = "-5"
	w = f.do(t, http.MethodPost, "/deals", &f.buyer, bad)
	require.Equal(t, 400, w.Code)
	require.Contains(t, w.Body.String(), "bad_amount")
}

func TestCreateDealInsufficientFunds(t *testing.T) {
	f := newFixture(t)

	w := f.do(t, http.MethodPost, "/deals", &f.buyer, LockDealRequest{
		Producer: f.producer.Hex(), Carrier: f.carrier.Hex(), Arbiter: f.arbiter.Hex(),
		ProducerAmount: fmt.Sprint(buyerFunds), CarrierAmount: "0",
	})
	require.Equal(t, 402, w.Code)
	require.Contains(t, w.Body.String(), "insufficient_funds")
}

func TestCreateDealDuplicate(t *testing.T) {
	f := newFixture(t)

	deal := f.lockDeal(t, "10", "10")

	w := f.do(t, http.MethodPost, "/deals", &f.buyer, LockDealRequest{
		ID:       deal.ID,
		Producer: f.producer.Hex(), Carrier: f.carrier.Hex(), Arbiter: f.arbiter.Hex(),
		ProducerAmount: "10", CarrierAmount: "10",
	})
	require.Equal(t, 409, w.Code)
	require.Contains(t, w.Body.String(), "duplicate_deal")
}

func TestSignFlow(t *testing.T) {
	f := newFixture(t)
	deal := f.lockDeal(t, "1000", "325")

	// carrier cannot open the signing
	w := f.do(t, http.MethodPost, "/deals/"+deal.ID+"/carrier-sign", &f.carrier, nil)
	require.Equal(t, 409, w.Code)
	require.Contains(t, w.Body.String(), "out_of_order")

	w = f.do(t, http.MethodPost, "/deals/"+deal.ID+"/producer-sign", &f.producer, nil)
	require.Equal(t, 200, w.Code)
	require.Equal(t, "P--", decode[Deal](t, w).Signatures.Mask)

	// a stranger with a valid token is still not the carrier
	stranger := lib.GetRandomAddr()
	w = f.do(t, http.MethodPost, "/deals/"+deal.ID+"/carrier-sign", &stranger, nil)
	require.Equal(t, 403, w.Code)
	require.Contains(t, w.Body.String(), "unauthorized")

	w = f.do(t, http.MethodPost, "/deals/"+deal.ID+"/carrier-sign", &f.carrier, nil)
	require.Equal(t, 200, w.Code)
	require.Equal(t, "PC-", decode[Deal](t, w).Signatures.Mask)

	w = f.do(t, http.MethodPost, "/deals/"+deal.ID+"/buyer-sign", &f.buyer, nil)
	require.Equal(t, 200, w.Code)
	got := decode[Deal](t, w)
	require.Equal(t, "PCB", got.Signatures.Mask)
	require.Equal(t, "authorized", got.Status)
}

func TestSignUnknownDeal(t *testing.T) {
	f := newFixture(t)

	id := escrow.NewDealID().Hex()
	w := f.do(t, http.MethodPost, "/deals/"+id+"/producer-sign", &f.producer, nil)
	require.Equal(t, 403, w.Code)
}

func TestFinalize(t *testing.T) {
	f := newFixture(t)
	deal := f.lockDeal(t, "1000", "325")
	f.signAll(t, deal.ID)

	// only the arbiter settles
	w := f.do(t, http.MethodPost, "/deals/"+deal.ID+"/finalize", &f.buyer, nil)
	require.Equal(t, 403, w.Code)

	w = f.do(t, http.MethodPost, "/deals/"+deal.ID+"/finalize", &f.arbiter, nil)
	require.Equal(t, 200, w.Code, w.Body.String())
	got := decode[Deal](t, w)
	require.Equal(t, "settled", got.Status)
	require.Equal(t, "0", got.ProducerAmount)
	require.Equal(t, "0", got.CarrierAmount)
	require.True(t, got.ArbiterAcknowledged)
	require.NotNil(t, got.SettledAt)

	require.Equal(t, "1000", f.balanceOf(t, f.producer))
	require.Equal(t, "325", f.balanceOf(t, f.carrier))
	require.Equal(t, "39", f.balanceOf(t, f.arbiter))
	require.Equal(t, "0", f.balanceOf(t, f.custody))

	w = f.do(t, http.MethodPost, "/deals/"+deal.ID+"/finalize", &f.arbiter, nil)
	require.Equal(t, 410, w.Code)
	require.Contains(t, w.Body.String(), "already_settled")
}

func TestFinalizeIncomplete(t *testing.T) {
	f := newFixture(t)
	deal := f.lockDeal(t, "1000", "325")

	w := f.do(t, http.MethodPost, "/deals/"+deal.ID+"/producer-sign", &f.producer, nil)
	require.Equal(t, 200, w.Code)

	w = f.do(t, http.MethodPost, "/deals/"+deal.ID+"/finalize", &f.arbiter, nil)
	require.Equal(t, 409, w.Code)
	require.Contains(t, w.Body.String(), "missing_authorization")
}

func TestFinalizePayoutFailure(t *testing.T) {
	f := newFixtureLedger(t, func(f *fixture) ledger.Ledger {
		return &failingLedger{Ledger: f.sim, refuse: f.carrier}
	})

	deal := f.lockDeal(t, "1000", "325")
	f.signAll(t, deal.ID)

	w := f.do(t, http.MethodPost, "/deals/"+deal.ID+"/finalize", &f.arbiter, nil)
	require.Equal(t, 502, w.Code)
	require.Contains(t, w.Body.String(), "payout_transfer")

	var body struct{ Deal Deal }
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	require.Equal(t, "settled", body.Deal.Status)

	// paid legs went out, the failed one stays in custody
	require.Equal(t, "1000", f.balanceOf(t, f.producer))
	require.Equal(t, "0", f.balanceOf(t, f.carrier))
	require.Equal(t, "325", f.balanceOf(t, f.custody))
}

func TestGetDeals(t *testing.T) {
	f := newFixture(t)
	a := f.lockDeal(t, "10", "10")
	b := f.lockDeal(t, "20", "20")

	w := f.do(t, http.MethodGet, "/deals", nil, nil)
	require.Equal(t, 200, w.Code)

	deals := decode[[]Deal](t, w)
	require.Len(t, deals, 2)
	require.True(t, deals[0].ID < deals[1].ID)

	ids := []string{deals[0].ID, deals[1].ID}
	require.Contains(t, ids, a.ID)
	require.Contains(t, ids, b.ID)
}

func TestGetDealErrors(t *testing.T) {
	f := newFixture(t)

	w := f.do(t, http.MethodGet, "/deals/"+escrow.NewDealID().Hex(), nil, nil)
	require.Equal(t, 404, w.Code)

	w = f.do(t, http.MethodGet, "/deals/nope", nil, nil)
	require.Equal(t, 400, w.Code)
}

func TestDealEvents(t *testing.T) {
	f := newFixture(t)
	deal := f.lockDeal(t, "1000", "325")
	f.signAll(t, deal.ID)
	w := f.do(t, http.MethodPost, "/deals/"+deal.ID+"/finalize", &f.arbiter, nil)
	require.Equal(t, 200, w.Code)

	w = f.do(t, http.MethodGet, "/deals/"+deal.ID+"/events", nil, nil)
	require.Equal(t, 200, w.Code)

	events := decode[[]journal.Event](t, w)
	require.Len(t, events, 5)
	require.Equal(t, journal.EventDealLocked, events[0].Kind)
	require.Equal(t, journal.EventDealFinalized, events[4].Kind)

	w = f.do(t, http.MethodGet, "/deals/"+escrow.NewDealID().Hex()+"/events", nil, nil)
	require.Equal(t, 404, w.Code)
}

func TestGetBalanceValidation(t *testing.T) {
	f := newFixture(t)

	w := f.do(t, http.MethodGet, "/balances/xyz", nil, nil)
	require.Equal(t, 400, w.Code)

	require.Equal(t, fmt.Sprint(buyerFunds), f.balanceOf(t, f.buyer))
	require.Equal(t, "0", f.balanceOf(t, lib.GetRandomAddr()))
}

func TestCreateToken(t *testing.T) {
	f := newFixture(t)

	addr := lib.GetRandomAddr()
	w := f.do(t, http.MethodPost, "/auth/token", nil, TokenRequest{Address: addr.Hex()})
	require.Equal(t, 200, w.Code)

	res := decode[TokenResponse](t, w)
	require.Equal(t, addr.Hex(), res.Address)

	verified, err := f.auth.Verify(res.Token)
	require.NoError(t, err)
	require.Equal(t, addr, verified)

	w = f.do(t, http.MethodPost, "/auth/token", nil, TokenRequest{Address: "garbage"})
	require.Equal(t, 400, w.Code)
}

func TestCreateTokenDisabledInProduction(t *testing.T) {
	f := newFixture(t)
	f.cfg.Environment = "production"

	w := f.do(t, http.MethodPost, "/auth/token", nil, TokenRequest{Address: lib.GetRandomAddr().Hex()})
	require.Equal(t, 403, w.Code)
}

func TestHealthCheck(t *testing.T) {
	f := newFixture(t)

	w := f.do(t, http.MethodGet, "/healthcheck", nil, nil)
	require.Equal(t, 200, w.Code)
	require.Contains(t, w.Body.String(), "healthy")
	require.Contains(t, w.Body.String(), f.custody.Hex())
}

func TestGetConfigOmitsSecrets(t *testing.T) {
	f := newFixture(t)
	f.cfg.Auth.Secret = "super-secret-value"
	f.cfg.Wallet.PrivateKey = "deadbeef-private"

	w := f.do(t, http.MethodGet, "/config", nil, nil)
	require.Equal(t, 200, w.Code)
	require.NotContains(t, w.Body.String(), "super-secret-value")
	require.NotContains(t, w.Body.String(), "deadbeef-private")
	require.Contains(t, w.Body.String(), "development")
}

func TestMetricsEndpoint(t *testing.T) {
	f := newFixture(t)
	f.lockDeal(t, "10", "10")

	w := f.do(t, http.MethodGet, "/metrics", nil, nil)
	require.Equal(t, 200, w.Code)
	require.Contains(t, w.Body.String(), "escrow_deals_locked_total 1")
	require.Contains(t, w.Body.String(), "escrow_deals_open 1")
}

func TestRequestIDHeader(t *testing.T) {
	f := newFixture(t)

	w := f.do(t, http.MethodGet, "/healthcheck", nil, nil)
	require.NotEmpty(t, w.Header().Get("X-Request-ID"))

	req := httptest.NewRequest(http.MethodGet, "/healthcheck", nil)
	req.Header.Set("X-Request-ID", "my-trace-id")
	rec := httptest.NewRecorder()
	f.engine.ServeHTTP(rec, req)
	require.Equal(t, "my-trace-id", rec.Header().Get("X-Request-ID"))
}

func TestEventsWebsocket(t *testing.T) {
	f := newFixture(t)
	first := f.lockDeal(t, "10", "10")

	srv := httptest.NewServer(f.engine)
	defer srv.Close()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/events?last=16"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))

	// the pre-connect lock arrives from the replay
	var replayed journal.Event
	require.NoError(t, conn.ReadJSON(&replayed))
	require.Equal(t, journal.EventDealLocked, replayed.Kind)
	require.Equal(t, first.ID, replayed.DealID)

	// a live event follows, replay duplicates are possible so scan for
	// the new id
	second := f.lockDeal(t, "20", "20")
	for {
		var live journal.Event
		require.NoError(t, conn.ReadJSON(&live))
		if live.DealID == second.ID {
			require.Equal(t, journal.EventDealLocked, live.Kind)
			break
		}
	}
}

func TestEventsWebsocketBadLast(t *testing.T) {
	f := newFixture(t)

	srv := httptest.NewServer(f.engine)
	defer srv.Close()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/events?last=banana"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	_, _, err = conn.ReadMessage()
	require.Error(t, err)
	require.True(t, websocket.IsCloseError(err, websocket.ClosePolicyViolation))
}
