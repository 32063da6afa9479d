// Package marketdata fetches trading dates and daily close prices from the MOEX ISS API.
package marketdata

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/vadiminshakov/moexfolio/internal/domain"
	"github.com/vadiminshakov/moexfolio/pkg/retrier"
)

const (
	DefaultBaseURL        = "https://iss.moex.com/iss"
	DefaultEngine         = "stock"
	DefaultMarket         = "shares"
	DefaultBoard          = "TQBR"
	DefaultRequestTimeout = 10 * time.Second
	DefaultRetries        = 2
	DefaultConcurrency    = 8
)

// ErrNoData is returned when the feed has no usable row for the request.
var ErrNoData = errors.New("no market data")

// Config of the ISS gateway.
type Config struct {
	BaseURL        string
	Engine         string
	Market         string
	Board          string
	RequestTimeout time.Duration
	Retries        int
	Concurrency    int
}

func (c Config) withDefaults() Config {
	if c.BaseURL == "" {
		c.BaseURL = DefaultBaseURL
	}
	c.BaseURL = strings.TrimRight(c.BaseURL, "/")
	if c.Engine == "" {
		c.Engine = DefaultEngine
	}
	if c.Market == "" {
		c.Market = DefaultMarket
	}
	if c.Board == "" {
		c.Board = DefaultBoard
	}
	if c.RequestTimeout <= 0 {
		c.RequestTimeout = DefaultRequestTimeout
	}
	if c.Retries < 0 {
		c.Retries = 0
	}
	if c.Concurrency <= 0 {
		c.Concurrency = DefaultConcurrency
	}
	return c
}

// statusError is a non-2xx ISS response.
type statusError struct {
	code int
}

func (e *statusError) Error() string {
	return fmt.Sprintf("unexpected status %d", e.code)
}

// Gateway reads the ISS history endpoints. Failures never escape its public methods:
// they are logged and reported as absent data.
type Gateway struct {
	cfg     Config
	client  *http.Client
	retrier *retrier.Retrier
	l       *zap.Logger
}

// NewGateway creates a gateway. A nil client falls back to a client with the configured timeout.
func NewGateway(l *zap.Logger, cfg Config, client *http.Client) *Gateway {
	cfg = cfg.withDefaults()
	if client == nil {
		client = &http.Client{Timeout: cfg.RequestTimeout}
	}

	g := &Gateway{
		cfg:    cfg,
		client: client,
		l:      l,
	}
	g.retrier = retrier.New(
		retrier.WithMaxRetries(cfg.Retries),
		retrier.WithInitialInterval(200*time.Millisecond),
		retrier.WithMaxInterval(2*time.Second),
		retrier.WithRetryIf(isTransient),
		retrier.WithOnRetry(func(attempt int, err error) {
			l.Debug("retrying ISS request", zap.Int("attempt", attempt), zap.Error(err))
		}),
	)

	return g
}

// LastAvailableTradingRange returns the first and last dates with trading history.
func (g *Gateway) LastAvailableTradingRange(ctx context.Context) (domain.TradingRange, bool) {
	endpoint := fmt.Sprintf("%s/history/engines/%s/markets/%s/boards/%s/dates.json",
		g.cfg.BaseURL, g.cfg.Engine, g.cfg.Market, g.cfg.Board)
	q := url.Values{"tradingsession": {"1"}}

	r, err := g.fetchRow(ctx, endpoint, q, "dates")
	if err != nil {
		g.logFailure("failed to fetch trading range", err)
		return domain.TradingRange{}, false
	}

	tr := domain.TradingRange{From: r.str("from"), Till: r.str("till")}
	if tr.Till == "" {
		g.l.Warn("trading range has no till date", zap.String("from", tr.From))
		return domain.TradingRange{}, false
	}

	return tr, true
}

// ClosePrice returns the history row of ticker for date (YYYY-MM-DD).
func (g *Gateway) ClosePrice(ctx context.Context, ticker, date string) (domain.MarketSnapshot, bool) {
	snap, err := g.closePrice(ctx, ticker, date)
	if err != nil {
		g.logFailure("failed to fetch close price", err, zap.String("ticker", ticker), zap.String("date", date))
		return domain.MarketSnapshot{}, false
	}
	return snap, true
}

// PortfolioSnapshot fetches every ticker concurrently and returns the ones that had data,
// keyed by the requested ticker. A failing ticker does not affect the others.
func (g *Gateway) PortfolioSnapshot(ctx context.Context, tickers []string, date string) map[string]domain.MarketSnapshot {
	var (
		mu  sync.Mutex
		out = make(map[string]domain.MarketSnapshot, len(tickers))
	)

	eg, egCtx := errgroup.WithContext(ctx)
	eg.SetLimit(g.cfg.Concurrency)

	for _, ticker := range tickers {
		eg.Go(func() error {
			snap, ok := g.ClosePrice(egCtx, ticker, date)
			if !ok {
				return nil
			}
			mu.Lock()
			out[ticker] = snap
			mu.Unlock()
			return nil
		})
	}
	// goroutines never return errors
	_ = eg.Wait()

	g.l.Debug("portfolio snapshot fetched",
		zap.String("date", date),
		zap.Int("requested", len(tickers)),
		zap.Int("received", len(out)))

	return out
}

func (g *Gateway) closePrice(ctx context.Context, ticker, date string) (domain.MarketSnapshot, error) {
	endpoint := fmt.Sprintf("%s/history/engines/%s/markets/%s/boards/%s/securities/%s.json",
		g.cfg.BaseURL, g.cfg.Engine, g.cfg.Market, g.cfg.Board, url.PathEscape(ticker))
	q := url.Values{
		"from":           {date},
		"till":           {date},
		"tradingsession": {"1"},
	}

	r, err := g.fetchRow(ctx, endpoint, q, "history")
	if err != nil {
		return domain.MarketSnapshot{}, err
	}

	return g.snapshotFromRow(ticker, r)
}

// snapshotFromRow fails only when LEGALCLOSEPRICE is unreadable. Unreadable metadata cells
// are logged and left at zero.
func (g *Gateway) snapshotFromRow(ticker string, r row) (domain.MarketSnapshot, error) {
	snap := domain.MarketSnapshot{
		SecID:     r.str("SECID"),
		BoardID:   r.str("BOARDID"),
		ShortName: r.str("SHORTNAME"),
		TradeDate: r.str("TRADEDATE"),
	}

	closePrice, err := r.dec("LEGALCLOSEPRICE")
	if err != nil {
		return domain.MarketSnapshot{}, errors.Wrapf(ErrNoData, "close price: %v", err)
	}
	snap.ClosePrice = closePrice

	var bad []string
	decimals := []struct {
		col string
		dst *decimal.Decimal
	}{
		{"VALUE", &snap.Value},
		{"OPEN", &snap.Open},
		{"LOW", &snap.Low},
		{"HIGH", &snap.High},
		{"WAPRICE", &snap.WAPrice},
		{"CLOSE", &snap.Close},
	}
	for _, c := range decimals {
		if v, err := r.dec(c.col); err == nil {
			*c.dst = v
		} else {
			bad = append(bad, c.col)
		}
	}

	ints := []struct {
		col string
		dst *int64
	}{
		{"NUMTRADES", &snap.NumTrades},
		{"VOLUME", &snap.Volume},
	}
	for _, c := range ints {
		if v, err := r.int(c.col); err == nil {
			*c.dst = v
		} else {
			bad = append(bad, c.col)
		}
	}

	if session, err := r.int("TRADINGSESSION"); err == nil {
		snap.TradingSession = int(session)
	} else {
		bad = append(bad, "TRADINGSESSION")
	}

	if len(bad) > 0 {
		g.l.Warn("ignoring unreadable history columns",
			zap.String("ticker", ticker),
			zap.Strings("columns", bad))
	}

	return snap, nil
}

func (g *Gateway) fetchRow(ctx context.Context, endpoint string, q url.Values, block string) (row, error) {
	return retrier.DoWithData(ctx, g.retrier, func(ctx context.Context) (row, error) {
		reqCtx, cancel := context.WithTimeout(ctx, g.cfg.RequestTimeout)
		defer cancel()

		req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, endpoint+"?"+q.Encode(), nil)
		if err != nil {
			return nil, errors.Wrap(err, "failed to build request")
		}
		req.Header.Set("Accept", "application/json")

		resp, err := g.client.Do(req)
		if err != nil {
			return nil, errors.Wrapf(err, "GET %s", endpoint)
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			_, _ = io.Copy(io.Discard, resp.Body)
			return nil, errors.Wrapf(&statusError{code: resp.StatusCode}, "GET %s", endpoint)
		}

		return decodeFirstRow(resp.Body, block)
	})
}

func (g *Gateway) logFailure(msg string, err error, fields ...zap.Field) {
	fields = append(fields, zap.Error(err))
	if errors.Is(err, ErrNoData) {
		g.l.Info("no market data", fields...)
		return
	}
	g.l.Warn(msg, fields...)
}

// isTransient reports whether a request is worth retrying: network failures, timeouts,
// throttling and server errors. Empty tables and client errors are final.
func isTransient(err error) bool {
	if errors.Is(err, ErrNoData) || errors.Is(err, context.Canceled) {
		return false
	}

	var se *statusError
	if errors.As(err, &se) {
		return se.code == http.StatusTooManyRequests || se.code >= http.StatusInternalServerError
	}

	var ne net.Error
	if errors.As(err, &ne) {
		return true
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, io.ErrUnexpectedEOF) {
		return true
	}

	return false
}
