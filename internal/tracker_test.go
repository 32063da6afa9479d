package internal

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/vadiminshakov/moexfolio/config"
	"github.com/vadiminshakov/moexfolio/internal/domain"
	"github.com/vadiminshakov/moexfolio/internal/storage/trades"
)

const ownerID = 42

type fakeTelegram struct {
	mu       sync.Mutex
	sent     []string
	requests []tgbotapi.Chattable
	updates  chan tgbotapi.Update
}

func newFakeTelegram() *fakeTelegram {
	return &fakeTelegram{updates: make(chan tgbotapi.Update, 4)}
}

func (f *fakeTelegram) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if msg, ok := c.(tgbotapi.MessageConfig); ok {
		f.sent = append(f.sent, msg.Text)
	}
	return tgbotapi.Message{}, nil
}

func (f *fakeTelegram) Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, c)
	return &tgbotapi.APIResponse{Ok: true}, nil
}

func (f *fakeTelegram) GetUpdatesChan(tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel {
	return f.updates
}

func (f *fakeTelegram) StopReceivingUpdates() {}

func (f *fakeTelegram) messages() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.sent...)
}

func issServer(t *testing.T, withSession bool) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case strings.HasSuffix(r.URL.Path, "/dates.json"):
			if !withSession {
				_, _ = w.Write([]byte(`{"dates": {"columns": ["from", "till"], "data": []}}`))
				return
			}
			_, _ = w.Write([]byte(`{"dates": {"columns": ["from", "till"], "data": [["1997-03-24", "2024-06-10"]]}}`))
		case strings.HasSuffix(r.URL.Path, "/securities/SBER.json"):
			_, _ = fmt.Fprint(w, `{"history": {"columns": ["BOARDID", "TRADEDATE", "SECID", "LEGALCLOSEPRICE"],
"data": [["TQBR", "2024-06-10", "SBER", 110]]}}`)
		default:
			_, _ = w.Write([]byte(`{"history": {"columns": ["BOARDID", "SECID", "LEGALCLOSEPRICE"], "data": []}}`))
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func seededStore() *trades.MemoryStore {
	day := time.Date(2024, 6, 3, 0, 0, 0, 0, time.UTC)
	return trades.NewMemoryStore(
		domain.Trade{ID: "1", UserID: ownerID, SecCode: "SBER", Price: decimal.NewFromInt(100), Quantity: 10, CurrencyCode: "RUB", Date: day},
		domain.Trade{ID: "2", UserID: ownerID, SecCode: "VTBR", Price: decimal.RequireFromString("0.04"), Quantity: 10000, CurrencyCode: "RUB", Date: day.AddDate(0, 0, 1)},
		domain.Trade{ID: "3", UserID: 7, SecCode: "GAZP", Price: decimal.NewFromInt(300), Quantity: 1, CurrencyCode: "RUB", Date: day},
	)
}

func testConfig(t *testing.T, iss *httptest.Server) config.Config {
	t.Helper()
	cfg, err := config.Build(config.ConfigTmp{
		Store:    config.StoreTmp{Driver: config.DriverMemory},
		Journal:  config.JournalTmp{Dir: t.TempDir()},
		Schedule: config.ScheduleTmp{InfoInterval: "1h"},
		Log:      config.LogTmp{Development: true},
	}, func(key string) string {
		return map[string]string{
			"STOCK_MARKET_API_URL": iss.URL,
			"TELEGRAM_API_TOKEN":   "token",
			"MY_TELEGRAM_ID":       fmt.Sprint(ownerID),
			"TOTAL_INVESTMENTS":    "2000",
			"API_JWT_SECRET":       "secret",
		}[key]
	})
	require.NoError(t, err)
	cfg.Web.Addr = "127.0.0.1:0"
	return cfg
}

func TestBuildReport(t *testing.T) {
	iss := issServer(t, true)
	cfg := testConfig(t, iss)

	r, err := BuildReport(t.Context(), zap.NewNop(), cfg, WithTradeStore(seededStore()), WithHTTPClient(iss.Client()))
	require.NoError(t, err)

	assert.Equal(t, []string{"SBER", "VTBR"}, r.Initial.Portfolio.Tickers())
	assert.Equal(t, "1400", r.Initial.TotalBuyPrice.String())
	assert.Equal(t, time.Date(2024, 6, 4, 0, 0, 0, 0, time.UTC), r.Initial.LastUpdated)

	require.NotNil(t, r.Latest)
	assert.Equal(t, "1500", r.Latest.TotalPrice.String())
	assert.Equal(t, "100", r.Latest.Changes.Absolute.String())
	require.Len(t, r.Latest.Portfolio, 1)
	assert.Equal(t, "SBER", r.Latest.Portfolio[0].Ticker)
	assert.Equal(t, "9.09", r.Latest.Portfolio[0].Change.StringFixed(2))
}

func TestBuildReportWithoutSession(t *testing.T) {
	iss := issServer(t, false)
	cfg := testConfig(t, iss)

	r, err := BuildReport(t.Context(), zap.NewNop(), cfg, WithTradeStore(seededStore()), WithHTTPClient(iss.Client()))
	require.NoError(t, err)
	assert.Nil(t, r.Latest)
	assert.Equal(t, 2, r.Initial.Portfolio.Len())
}

func TestNewTrackerRequiresBotVariables(t *testing.T) {
	iss := issServer(t, true)
	cfg := testConfig(t, iss)
	cfg.TelegramToken = ""

	_, err := NewTracker(t.Context(), zap.NewNop(), cfg, WithTradeStore(seededStore()), WithTelegramAPI(newFakeTelegram()))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "TELEGRAM_API_TOKEN")
}

func TestTrackerRun(t *testing.T) {
	iss := issServer(t, true)
	cfg := testConfig(t, iss)
	api := newFakeTelegram()

	tracker, err := NewTracker(t.Context(), zap.NewNop(), cfg,
		WithTradeStore(seededStore()), WithTelegramAPI(api), WithHTTPClient(iss.Client()))
	require.NoError(t, err)
	t.Cleanup(func() { _ = tracker.Close(context.Background()) })

	ctx, cancel := context.WithCancel(t.Context())
	done := make(chan error, 1)
	go func() { done <- tracker.Run(ctx) }()

	api.updates <- tgbotapi.Update{Message: &tgbotapi.Message{Text: "/info", Chat: &tgbotapi.Chat{ID: ownerID}}}

	require.Eventually(t, func() bool {
		for _, m := range api.messages() {
			if strings.Contains(m, "Итоги торгов за 10 июня 2024") {
				return true
			}
		}
		return false
	}, 5*time.Second, 20*time.Millisecond)

	rec := httptest.NewRecorder()
	tracker.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/valuations", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Valuations []struct {
			Index     uint64                   `json:"index"`
			Valuation domain.LatestInfoPayload `json:"valuation"`
		} `json:"valuations"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body.Valuations, 1)
	assert.Equal(t, "1500", body.Valuations[0].Valuation.TotalPrice.String())

	rec = httptest.NewRecorder()
	tracker.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/trades", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotContains(t, rec.Body.String(), "GAZP")

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("tracker did not stop")
	}
}
