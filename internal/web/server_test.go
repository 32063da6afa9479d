package web

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/gorilla/websocket"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/vadiminshakov/moexfolio/internal/dispatcher"
	"github.com/vadiminshakov/moexfolio/internal/domain"
	"github.com/vadiminshakov/moexfolio/internal/services/portfolio"
	"github.com/vadiminshakov/moexfolio/internal/storage/trades"
)

const (
	owner  int64 = 777
	secret       = "test-secret"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type fakePortfolio struct {
	p   *domain.Portfolio
	err error
}

func (f fakePortfolio) Portfolio() (*domain.Portfolio, error) { return f.p, f.err }

type fakeValuations struct {
	records []domain.ValuationRecord
}

func (f fakeValuations) After(index uint64) ([]domain.ValuationRecord, error) {
	var out []domain.ValuationRecord
	for _, r := range f.records {
		if r.Index > index {
			out = append(out, r)
		}
	}
	return out, nil
}

type fakeBot struct {
	mu      sync.Mutex
	updates []tgbotapi.Update
}

func (f *fakeBot) HandleUpdate(u tgbotapi.Update) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.updates = append(f.updates, u)
}

type fakeDispatcher struct {
	mu    sync.Mutex
	kinds []dispatcher.CommandKind
}

func (f *fakeDispatcher) Submit(kind dispatcher.CommandKind, _ string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.kinds = append(f.kinds, kind)
	return true
}

type fixture struct {
	srv   *Server
	store *trades.MemoryStore
	bot   *fakeBot
	disp  *fakeDispatcher
	token string
}

func newFixture(t *testing.T, cfg Config, deps Deps) *fixture {
	t.Helper()

	f := &fixture{store: trades.NewMemoryStore(), bot: &fakeBot{}, disp: &fakeDispatcher{}}
	if deps.Trades == nil {
		deps.Trades = f.store
	}
	if deps.Bot == nil {
		deps.Bot = f.bot
	}
	if deps.Dispatcher == nil {
		deps.Dispatcher = f.disp
	}
	f.srv = NewServer(zap.NewNop(), cfg, deps)

	token, err := IssueToken(secret, "owner", time.Hour)
	require.NoError(t, err)
	f.token = token

	return f
}

func (f *fixture) do(method, path, body, token string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	f.srv.Handler().ServeHTTP(rec, req)
	return rec
}

const importBody = `{"trades": [
 {"secCode": "sber", "price1": "250.15", "quantity": "10", "currencyCode": "RUB", "date1": "2021-03-15T10:00:00",
  "side": 1, "tsCommission": {"value": "0.75"}, "bankCommission": {"value": "0"}},
 {"secCode": "SBER", "price1": "300", "quantity": "3", "currencyCode": "RUB", "date1": "2021-04-01T10:00:00",
  "side": 2, "tsCommission": {"value": "0.45"}, "bankCommission": {"value": "0"}}
]}`

func TestServer_Health(t *testing.T) {
	f := newFixture(t, Config{}, Deps{})
	rec := f.do(http.MethodGet, "/health", "", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status": "ok"}`, rec.Body.String())
}

func TestServer_ListTradesWithoutOwner(t *testing.T) {
	f := newFixture(t, Config{}, Deps{})
	rec := f.do(http.MethodGet, "/api/trades", "", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"trades": []}`, rec.Body.String())
}

func TestServer_ImportListDelete(t *testing.T) {
	f := newFixture(t, Config{UserID: owner, JWTSecret: secret}, Deps{})

	rec := f.do(http.MethodPost, "/api/trades", importBody, f.token)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var created struct {
		Trades []domain.Trade `json:"trades"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
	require.Len(t, created.Trades, 2)
	assert.Equal(t, "SBER", created.Trades[0].SecCode)
	assert.Equal(t, int64(-3), created.Trades[1].Quantity)
	assert.Equal(t, owner, created.Trades[0].UserID)

	rec = f.do(http.MethodGet, "/api/trades", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var listed struct {
		Trades []domain.Trade `json:"trades"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &listed))
	require.Len(t, listed.Trades, 2)
	assert.True(t, listed.Trades[0].Price.Equal(decimal.RequireFromString("250.15")))

	rec = f.do(http.MethodDelete, "/api/trades/"+created.Trades[0].ID, "", f.token)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = f.do(http.MethodDelete, "/api/trades/"+created.Trades[0].ID, "", f.token)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	assert.Equal(t, []dispatcher.CommandKind{dispatcher.CommandReload, dispatcher.CommandReload}, f.disp.kinds)
}

func TestServer_DeleteScopedToOwner(t *testing.T) {
	f := newFixture(t, Config{UserID: owner, JWTSecret: secret}, Deps{})

	foreign, err := f.store.Create(context.Background(), domain.Trade{UserID: 7, SecCode: "GAZP", Price: decimal.NewFromInt(300), Quantity: 1})
	require.NoError(t, err)

	rec := f.do(http.MethodDelete, "/api/trades/"+foreign.ID, "", f.token)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	list, err := f.store.List(context.Background(), 7)
	require.NoError(t, err)
	assert.Len(t, list, 1)
	assert.Empty(t, f.disp.kinds)
}

func TestServer_DeleteWithoutOwner(t *testing.T) {
	f := newFixture(t, Config{JWTSecret: secret}, Deps{})

	created, err := f.store.Create(context.Background(), domain.Trade{SecCode: "SBER", Price: decimal.NewFromInt(100), Quantity: 1})
	require.NoError(t, err)

	rec := f.do(http.MethodDelete, "/api/trades/"+created.ID, "", f.token)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	list, err := f.store.List(context.Background(), 0)
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

func TestServer_ImportRejectsWholeBatch(t *testing.T) {
	f := newFixture(t, Config{UserID: owner, JWTSecret: secret}, Deps{})

	body := strings.Replace(importBody, `"price1": "300"`, `"price1": "-300"`, 1)
	rec := f.do(http.MethodPost, "/api/trades", body, f.token)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "row 1")

	list, err := f.store.List(context.Background(), owner)
	require.NoError(t, err)
	assert.Empty(t, list)
	assert.Empty(t, f.disp.kinds)
}

func TestServer_ImportMissingKey(t *testing.T) {
	f := newFixture(t, Config{UserID: owner, JWTSecret: secret}, Deps{})

	body := strings.Replace(importBody, `"bankCommission": {"value": "0"}},`, `},`, 1)
	rec := f.do(http.MethodPost, "/api/trades", body, f.token)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestServer_WriteAuth(t *testing.T) {
	f := newFixture(t, Config{UserID: owner, JWTSecret: secret}, Deps{})

	rec := f.do(http.MethodPost, "/api/trades", importBody, "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = f.do(http.MethodPost, "/api/trades", importBody, "garbage")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	foreign, err := IssueToken("other-secret", "owner", time.Hour)
	require.NoError(t, err)
	rec = f.do(http.MethodPost, "/api/trades", importBody, foreign)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	expired, err := IssueToken(secret, "owner", -time.Minute)
	require.NoError(t, err)
	rec = f.do(http.MethodDelete, "/api/trades/x", "", expired)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestServer_WritesDisabledWithoutSecret(t *testing.T) {
	f := newFixture(t, Config{UserID: owner}, Deps{})
	rec := f.do(http.MethodPost, "/api/trades", importBody, f.token)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestServer_Portfolio(t *testing.T) {
	p := domain.NewPortfolio()
	p.Upsert(domain.Position{SecCode: "SBER", Quantity: 10, AvgBuyPrice: decimal.NewFromInt(100)}.WithClosePrice(decimal.NewFromInt(110)))

	f := newFixture(t, Config{}, Deps{Portfolio: fakePortfolio{p: p}})
	rec := f.do(http.MethodGet, "/api/portfolio", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"SBER"`)

	f = newFixture(t, Config{}, Deps{Portfolio: fakePortfolio{err: errors.Wrap(portfolio.ErrNotReady, "x")}})
	rec = f.do(http.MethodGet, "/api/portfolio", "", "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestServer_Valuations(t *testing.T) {
	vals := fakeValuations{records: []domain.ValuationRecord{
		{Index: 1, Valuation: domain.LatestInfoPayload{TotalPrice: decimal.NewFromInt(1000)}},
		{Index: 2, Valuation: domain.LatestInfoPayload{TotalPrice: decimal.NewFromInt(1100)}},
	}}
	f := newFixture(t, Config{}, Deps{Valuations: vals})

	rec := f.do(http.MethodGet, "/api/valuations?after=1", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var body struct {
		Valuations []valuationView `json:"valuations"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body.Valuations, 1)
	assert.Equal(t, uint64(2), body.Valuations[0].Index)

	rec = f.do(http.MethodGet, "/api/valuations?after=x", "", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestServer_ValuationStream(t *testing.T) {
	vals := fakeValuations{records: []domain.ValuationRecord{
		{Index: 1, Valuation: domain.LatestInfoPayload{TotalPrice: decimal.NewFromInt(1000)}},
		{Index: 2, Valuation: domain.LatestInfoPayload{TotalPrice: decimal.NewFromInt(1100)}},
	}}
	f := newFixture(t, Config{}, Deps{Valuations: vals})

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	req := httptest.NewRequest(http.MethodGet, "/api/valuations/stream", nil).WithContext(ctx)
	req.Header.Set("Last-Event-ID", "1")
	rec := httptest.NewRecorder()

	f.srv.Handler().ServeHTTP(rec, req)

	body := rec.Body.String()
	assert.Equal(t, "text/event-stream", rec.Header().Get("Content-Type"))
	assert.Contains(t, body, "id: 2\nevent: valuation\n")
	assert.NotContains(t, body, "id: 1\n")
}

func TestServer_Webhook(t *testing.T) {
	f := newFixture(t, Config{}, Deps{})

	rec := f.do(http.MethodPost, "/bot", `{"update_id": 1, "message": {"message_id": 5, "text": "/info", "chat": {"id": 42, "type": "private"}}}`, "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, f.bot.updates, 1)
	assert.Equal(t, "/info", f.bot.updates[0].Message.Text)
	assert.Equal(t, int64(42), f.bot.updates[0].Message.Chat.ID)

	rec = f.do(http.MethodPost, "/bot", `not json`, "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestParseLastEventID(t *testing.T) {
	assert.Equal(t, uint64(5), parseLastEventID("5", "7"))
	assert.Equal(t, uint64(7), parseLastEventID("", "7"))
	assert.Equal(t, uint64(7), parseLastEventID("bad", "7"))
	assert.Equal(t, uint64(0), parseLastEventID("", ""))
}

func TestHub_BroadcastsEvents(t *testing.T) {
	hub := NewHub(zap.NewNop())
	events := make(chan domain.Event)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go hub.Run(ctx, events)

	f := newFixture(t, Config{}, Deps{Hub: hub})
	ts := httptest.NewServer(f.srv.Handler())
	defer ts.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(ts.URL, "http")+"/ws", nil)
	require.NoError(t, err)
	defer conn.Close()

	received := make(chan []byte, 1)
	go func() {
		_, msg, err := conn.ReadMessage()
		if err == nil {
			received <- msg
		}
	}()

	e := domain.NewLatestInfoEvent(time.Now(), domain.LatestInfoPayload{TotalPrice: decimal.NewFromInt(1600)})
	deadline := time.After(2 * time.Second)
	for {
		select {
		case events <- e:
		case msg := <-received:
			assert.True(t, bytes.Contains(msg, []byte(`"kind":"latest_info"`)), string(msg))
			return
		case <-deadline:
			t.Fatal("event not received")
		}
		time.Sleep(10 * time.Millisecond)
	}
}
