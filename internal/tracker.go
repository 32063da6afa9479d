// Package internal assembles the portfolio tracker from its components.
package internal

import (
	"context"
	"net/http"

	"github.com/pkg/errors"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/vadiminshakov/moexfolio/config"
	"github.com/vadiminshakov/moexfolio/internal/dispatcher"
	"github.com/vadiminshakov/moexfolio/internal/events"
	"github.com/vadiminshakov/moexfolio/internal/notifier/telegram"
	"github.com/vadiminshakov/moexfolio/internal/report"
	"github.com/vadiminshakov/moexfolio/internal/services/marketdata"
	"github.com/vadiminshakov/moexfolio/internal/services/portfolio"
	"github.com/vadiminshakov/moexfolio/internal/storage/trades"
	"github.com/vadiminshakov/moexfolio/internal/storage/valuations"
	"github.com/vadiminshakov/moexfolio/internal/web"
)

// Option overrides a collaborator of the tracker.
type Option func(*options)

type options struct {
	store      trades.Store
	api        telegram.API
	httpClient *http.Client
}

// WithTradeStore uses store instead of the configured ledger.
func WithTradeStore(store trades.Store) Option {
	return func(o *options) {
		o.store = store
	}
}

// WithTelegramAPI uses api instead of connecting to Telegram with the configured token.
func WithTelegramAPI(api telegram.API) Option {
	return func(o *options) {
		o.api = api
	}
}

// WithHTTPClient sets the client used for the market data feed.
func WithHTTPClient(c *http.Client) Option {
	return func(o *options) {
		o.httpClient = c
	}
}

// Tracker runs the valuation pipeline, the Telegram bot and the HTTP API.
type Tracker struct {
	cfg          config.Config
	l            *zap.Logger
	store        trades.Store
	journal      *valuations.WALStore
	events       *events.Broadcaster
	orchestrator *portfolio.Orchestrator
	dispatcher   *dispatcher.Dispatcher
	bot          *telegram.Bot
	hub          *web.Hub
	server       *web.Server
}

// NewTracker wires the tracker. Close releases the ledger and the journal.
func NewTracker(ctx context.Context, l *zap.Logger, cfg config.Config, opts ...Option) (*Tracker, error) {
	o := newOptions(opts)

	if err := cfg.RequireBot(); err != nil {
		return nil, err
	}

	api := o.api
	if api == nil {
		botAPI, err := telegram.NewAPI(cfg.TelegramToken)
		if err != nil {
			return nil, err
		}
		api = botAPI
	}

	store, err := openStore(ctx, l, cfg, o)
	if err != nil {
		return nil, err
	}

	journal, err := valuations.NewWALStore(cfg.JournalDir)
	if err != nil {
		_ = store.Close(ctx)
		return nil, errors.Wrap(err, "failed to open valuation journal")
	}

	broadcaster := events.NewBroadcaster(0)
	gateway := marketdata.NewGateway(l.Named("marketdata"), cfg.Market, o.httpClient)
	orchestrator := portfolio.NewOrchestrator(l.Named("portfolio"), cfg.TelegramChatID, store, gateway, cfg.Precision,
		portfolio.WithPublisher(broadcaster),
		portfolio.WithJournal(journal),
	)
	disp := dispatcher.New(l.Named("dispatcher"), orchestrator, dispatcher.WithInfoInterval(cfg.InfoInterval))
	bot := telegram.NewBot(l.Named("telegram"), api, cfg.TelegramChatID, telegram.NewRenderer(cfg.TotalInvestments), disp)
	hub := web.NewHub(l.Named("ws"))

	server := web.NewServer(l.Named("http"), web.Config{
		Addr:      cfg.Web.Addr,
		UserID:    cfg.TelegramChatID,
		JWTSecret: cfg.Web.JWTSecret,
	}, web.Deps{
		Trades:     store,
		Portfolio:  orchestrator,
		Valuations: journal,
		Bot:        bot,
		Dispatcher: disp,
		Hub:        hub,
	})

	return &Tracker{
		cfg:          cfg,
		l:            l,
		store:        store,
		journal:      journal,
		events:       broadcaster,
		orchestrator: orchestrator,
		dispatcher:   disp,
		bot:          bot,
		hub:          hub,
		server:       server,
	}, nil
}

// Run blocks until ctx is cancelled or a component fails.
func (t *Tracker) Run(ctx context.Context) error {
	if t.cfg.Webhook() {
		if err := t.bot.RegisterWebhook(t.cfg.Web.PublicURL); err != nil {
			return err
		}
	}

	g, ctx := errgroup.WithContext(ctx)

	hubEvents := t.events.Subscribe()
	botEvents := t.events.Subscribe()

	g.Go(func() error {
		return t.dispatcher.Run(ctx)
	})
	g.Go(func() error {
		t.hub.Run(ctx, hubEvents)
		return nil
	})
	g.Go(func() error {
		t.bot.Consume(ctx, botEvents)
		return nil
	})

	if !t.cfg.Webhook() {
		g.Go(func() error {
			return t.bot.Poll(ctx)
		})
	}

	g.Go(func() error {
		if len(t.cfg.Web.Domains) > 0 {
			return t.server.StartWithAutoTLS(ctx, t.cfg.Web.Domains, t.cfg.Web.CertCache)
		}
		return t.server.Start(ctx)
	})

	t.l.Info("tracker started",
		zap.Int64("user_id", t.cfg.TelegramChatID),
		zap.Bool("webhook", t.cfg.Webhook()),
		zap.String("store", t.cfg.Store.Driver))

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

// Handler returns the HTTP API handler.
func (t *Tracker) Handler() http.Handler {
	return t.server.Handler()
}

// Close releases the ledger and the journal.
func (t *Tracker) Close(ctx context.Context) error {
	t.events.Close()

	journalErr := t.journal.Close()
	if err := t.store.Close(ctx); err != nil {
		return errors.Wrap(err, "close trade store")
	}
	if journalErr != nil {
		return errors.Wrap(journalErr, "close valuation journal")
	}
	return nil
}

// BuildReport values the portfolio once against the last trading session.
// Report.Latest is nil when the feed has no session data.
func BuildReport(ctx context.Context, l *zap.Logger, cfg config.Config, opts ...Option) (report.Report, error) {
	o := newOptions(opts)

	store, err := openStore(ctx, l, cfg, o)
	if err != nil {
		return report.Report{}, err
	}
	defer func() {
		if err := store.Close(ctx); err != nil {
			l.Warn("failed to close trade store", zap.Error(err))
		}
	}()

	gateway := marketdata.NewGateway(l.Named("marketdata"), cfg.Market, o.httpClient)
	orchestrator := portfolio.NewOrchestrator(l.Named("portfolio"), cfg.TelegramChatID, store, gateway, cfg.Precision)
	if err := orchestrator.Start(ctx); err != nil {
		return report.Report{}, errors.Wrap(err, "failed to build portfolio")
	}

	initial, ok := orchestrator.OnInitialDataRequest(ctx)
	if !ok {
		return report.Report{}, errors.New("portfolio is not initialized")
	}

	r := report.Report{Initial: initial}
	if latest, ok := orchestrator.OnInfoRequest(ctx); ok {
		r.Latest = &latest
	}
	return r, nil
}

func newOptions(opts []Option) options {
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

func openStore(ctx context.Context, l *zap.Logger, cfg config.Config, o options) (trades.Store, error) {
	if o.store != nil {
		return o.store, nil
	}
	store, err := NewTradeStore(ctx, l.Named("trades"), cfg.Store)
	if err != nil {
		return nil, errors.Wrap(err, "failed to open trade store")
	}
	return store, nil
}
