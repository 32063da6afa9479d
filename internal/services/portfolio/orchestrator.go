// Package portfolio reconciles the aggregated ledger with the latest trading session and
// produces the valuation payloads.
package portfolio

import (
	"context"
	"sync"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/vadiminshakov/moexfolio/internal/domain"
	"github.com/vadiminshakov/moexfolio/internal/services/aggregator"
	"github.com/vadiminshakov/moexfolio/internal/services/calculator"
)

// ErrNotReady is returned by accessors before the portfolio has been built.
var ErrNotReady = errors.New("portfolio is not initialized")

// State of the orchestrator lifecycle.
type State int

const (
	StateUninitialized State = iota
	StateBuilding
	StateReady
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateBuilding:
		return "building"
	case StateReady:
		return "ready"
	default:
		return "unknown"
	}
}

// TradeLister reads the trade ledger.
type TradeLister interface {
	List(ctx context.Context, userID int64) ([]domain.Trade, error)
}

// MarketGateway reads trading dates and close prices.
type MarketGateway interface {
	LastAvailableTradingRange(ctx context.Context) (domain.TradingRange, bool)
	PortfolioSnapshot(ctx context.Context, tickers []string, date string) map[string]domain.MarketSnapshot
}

// Publisher receives every emitted payload.
type Publisher interface {
	Publish(e domain.Event) int
}

// Journal stores reconciled valuations.
type Journal interface {
	Save(v domain.LatestInfoPayload) (uint64, error)
}

// Option configures the Orchestrator.
type Option func(*Orchestrator)

// WithPublisher sets the payload publisher.
func WithPublisher(p Publisher) Option {
	return func(o *Orchestrator) {
		o.publisher = p
	}
}

// WithJournal sets the valuation journal.
func WithJournal(j Journal) Option {
	return func(o *Orchestrator) {
		o.journal = j
	}
}

// WithClock overrides the event timestamp source.
func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) {
		o.now = now
	}
}

// Orchestrator owns two portfolios: the cost basis built from the ledger and its copy
// augmented with the latest known close prices.
type Orchestrator struct {
	l         *zap.Logger
	userID    int64
	store     TradeLister
	gateway   MarketGateway
	precision domain.PrecisionTable
	publisher Publisher
	journal   Journal
	now       func() time.Time

	mu              sync.Mutex
	state           State
	trades          []domain.Trade
	portfolio       *domain.Portfolio
	portfolioLatest *domain.Portfolio
}

// NewOrchestrator creates an uninitialized orchestrator. Call Start to build the portfolio.
func NewOrchestrator(l *zap.Logger, userID int64, store TradeLister, gateway MarketGateway,
	precision domain.PrecisionTable, opts ...Option) *Orchestrator {
	if precision == nil {
		precision = domain.DefaultPrecisionTable()
	}

	o := &Orchestrator{
		l:         l,
		userID:    userID,
		store:     store,
		gateway:   gateway,
		precision: precision,
		now:       time.Now,
		state:     StateUninitialized,
	}
	for _, opt := range opts {
		opt(o)
	}

	return o
}

// Start builds the portfolio from the ledger. It is a no-op once the orchestrator is ready.
func (o *Orchestrator) Start(ctx context.Context) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.state == StateReady {
		return nil
	}
	return o.build(ctx)
}

// Reload rebuilds the portfolio from the ledger, e.g. after trades were imported.
// Close prices already known for tickers still held are kept.
func (o *Orchestrator) Reload(ctx context.Context) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	return o.build(ctx)
}

// build must be called with the lock held.
func (o *Orchestrator) build(ctx context.Context) error {
	prevState, prevLatest := o.state, o.portfolioLatest
	o.state = StateBuilding

	trades, err := o.store.List(ctx, o.userID)
	if err != nil {
		if prevState == StateReady {
			o.state = StateReady
		} else {
			o.state = StateUninitialized
		}
		return errors.Wrap(err, "failed to load trades")
	}

	res := aggregator.Aggregate(trades, o.precision)
	if len(res.Closed) > 0 {
		o.l.Info("closed positions left out of the portfolio", zap.Strings("tickers", res.Closed))
	}

	latest := res.Portfolio.Clone()
	if prevLatest != nil {
		for _, pos := range prevLatest.Positions() {
			cur, ok := latest.Get(pos.SecCode)
			if !ok || pos.ClosePrice == nil {
				continue
			}
			latest.Upsert(cur.WithClosePrice(*pos.ClosePrice))
		}
	}

	o.trades = trades
	o.portfolio = res.Portfolio
	o.portfolioLatest = latest
	o.state = StateReady

	o.l.Info("portfolio built",
		zap.Int("trades", len(trades)),
		zap.Int("positions", res.Portfolio.Len()))

	return nil
}

// State returns the current lifecycle state.
func (o *Orchestrator) State() State {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state
}

// Portfolio returns a copy of the portfolio with the latest known close prices.
func (o *Orchestrator) Portfolio() (*domain.Portfolio, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.state != StateReady {
		return nil, ErrNotReady
	}
	return o.portfolioLatest.Clone(), nil
}

// ensureReady must be called with the lock held.
func (o *Orchestrator) ensureReady(ctx context.Context) bool {
	if o.state == StateReady {
		return true
	}
	if err := o.build(ctx); err != nil {
		o.l.Warn("portfolio is not initialized", zap.Error(err))
		return false
	}
	return true
}

// OnInitialDataRequest emits the cost basis of the portfolio. It returns false when the
// ledger could not be loaded.
func (o *Orchestrator) OnInitialDataRequest(ctx context.Context) (domain.InitialDataPayload, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if !o.ensureReady(ctx) {
		return domain.InitialDataPayload{}, false
	}

	payload := domain.InitialDataPayload{
		LastUpdated:   domain.LastTradeDate(o.trades),
		Portfolio:     o.portfolio.Clone(),
		TotalBuyPrice: calculator.InitialCost(o.trades),
	}

	if o.publisher != nil {
		e := domain.NewInitialDataEvent(o.now(), payload)
		e.Source = domain.SourceFrom(ctx)
		o.publisher.Publish(e)
	}

	return payload, true
}

// OnInfoRequest reconciles the portfolio with the last trading session. It returns false
// when the portfolio is not initialized or no trading range is available.
func (o *Orchestrator) OnInfoRequest(ctx context.Context) (domain.LatestInfoPayload, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if !o.ensureReady(ctx) {
		return domain.LatestInfoPayload{}, false
	}

	tr, ok := o.gateway.LastAvailableTradingRange(ctx)
	if !ok {
		o.l.Info("no trading range available, skipping valuation")
		return domain.LatestInfoPayload{}, false
	}

	date, err := time.Parse(time.DateOnly, tr.Till)
	if err != nil {
		o.l.Warn("unexpected trading date", zap.String("till", tr.Till), zap.Error(err))
		return domain.LatestInfoPayload{}, false
	}

	changes := o.reconcile(ctx, tr.Till)

	totalCost := calculator.InitialCost(o.trades)
	totalPrice := calculator.TotalValue(o.portfolioLatest.Positions())

	diff, err := calculator.DayDiff(totalCost, totalPrice)
	if err != nil {
		o.l.Warn("relative change is undefined", zap.Error(err))
	}

	payload := domain.LatestInfoPayload{
		Changes:    diff,
		Date:       date,
		Portfolio:  changes,
		TotalPrice: totalPrice,
	}

	if o.journal != nil {
		if _, err := o.journal.Save(payload); err != nil {
			o.l.Error("failed to journal valuation", zap.Error(err))
		}
	}
	if o.publisher != nil {
		e := domain.NewLatestInfoEvent(o.now(), payload)
		e.Source = domain.SourceFrom(ctx)
		o.publisher.Publish(e)
	}

	return payload, true
}

// reconcile applies fresh close prices to portfolioLatest and returns the per-ticker changes
// of this round, ascending. Tickers without data keep their previous close price.
func (o *Orchestrator) reconcile(ctx context.Context, date string) []domain.TickerChange {
	snapshot := o.gateway.PortfolioSnapshot(ctx, o.portfolio.Tickers(), date)

	changes := make([]domain.TickerChange, 0, len(snapshot))
	for _, ticker := range o.portfolio.Tickers() {
		snap, ok := snapshot[ticker]
		if !ok {
			continue
		}

		pos, _ := o.portfolio.Get(ticker)
		change, err := calculator.PercentChange(pos.AvgBuyPrice, snap.ClosePrice)
		if err != nil {
			o.l.Warn("skipping ticker without close price",
				zap.String("ticker", ticker),
				zap.String("date", date),
				zap.Error(err))
			continue
		}

		latest, _ := o.portfolioLatest.Get(ticker)
		o.portfolioLatest.Upsert(latest.WithClosePrice(snap.ClosePrice))

		changes = append(changes, domain.TickerChange{
			Ticker:     ticker,
			ClosePrice: snap.ClosePrice,
			Change:     change,
		})
	}

	o.l.Debug("portfolio reconciled",
		zap.String("date", date),
		zap.Int("updated", len(changes)),
		zap.Int("positions", o.portfolio.Len()))

	return changes
}
