// Package dispatcher serializes portfolio triggers on a single goroutine.
package dispatcher

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/vadiminshakov/moexfolio/internal/domain"
)

// CommandKind names a trigger.
type CommandKind string

const (
	// CommandStart requests the cost basis of the portfolio.
	CommandStart CommandKind = "start"
	// CommandInfo requests a valuation against the last trading session.
	CommandInfo CommandKind = "info"
	// CommandReload rebuilds the portfolio from the ledger.
	CommandReload CommandKind = "reload"
)

const defaultQueueSize = 16

// Command is a queued trigger. ID correlates log lines of one command.
type Command struct {
	ID     string
	Kind   CommandKind
	Source string
}

// Handler executes the triggers.
type Handler interface {
	Start(ctx context.Context) error
	Reload(ctx context.Context) error
	OnInitialDataRequest(ctx context.Context) (domain.InitialDataPayload, bool)
	OnInfoRequest(ctx context.Context) (domain.LatestInfoPayload, bool)
}

// Dispatcher consumes the command queue and the scheduler ticker.
type Dispatcher struct {
	l        *zap.Logger
	handler  Handler
	queue    chan Command
	interval time.Duration
}

// Option configures the Dispatcher.
type Option func(*Dispatcher)

// WithQueueSize sets the command buffer size.
func WithQueueSize(n int) Option {
	return func(d *Dispatcher) {
		if n > 0 {
			d.queue = make(chan Command, n)
		}
	}
}

// WithInfoInterval enables a scheduled info command every interval.
func WithInfoInterval(interval time.Duration) Option {
	return func(d *Dispatcher) {
		d.interval = interval
	}
}

// New creates a dispatcher.
func New(l *zap.Logger, handler Handler, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		l:       l,
		handler: handler,
		queue:   make(chan Command, defaultQueueSize),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Submit enqueues a command without blocking. It returns false when the queue is full.
func (d *Dispatcher) Submit(kind CommandKind, source string) bool {
	cmd := Command{ID: uuid.NewString(), Kind: kind, Source: source}
	select {
	case d.queue <- cmd:
		return true
	default:
		d.l.Warn("command queue is full, dropping command",
			zap.String("kind", string(kind)),
			zap.String("source", source))
		return false
	}
}

// Run builds the portfolio and processes commands until ctx is cancelled.
// A failed initial build is retried by the next command.
func (d *Dispatcher) Run(ctx context.Context) error {
	if err := d.handler.Start(ctx); err != nil {
		d.l.Warn("initial portfolio build failed, will retry on next trigger", zap.Error(err))
	}

	var tick <-chan time.Time
	if d.interval > 0 {
		ticker := time.NewTicker(d.interval)
		defer ticker.Stop()
		tick = ticker.C
	}

	d.l.Info("dispatcher started", zap.Duration("info_interval", d.interval))

	for {
		select {
		case <-ctx.Done():
			d.l.Info("context done, stopping dispatcher")
			return ctx.Err()
		case cmd := <-d.queue:
			d.handle(ctx, cmd)
		case <-tick:
			d.handle(ctx, Command{ID: uuid.NewString(), Kind: CommandInfo, Source: domain.SourceScheduler})
		}
	}
}

func (d *Dispatcher) handle(ctx context.Context, cmd Command) {
	l := d.l.With(
		zap.String("command_id", cmd.ID),
		zap.String("kind", string(cmd.Kind)),
		zap.String("source", cmd.Source))

	defer func() {
		if r := recover(); r != nil {
			l.Error("command handler panicked", zap.String("panic", fmt.Sprint(r)))
		}
	}()

	ctx = domain.WithSource(ctx, cmd.Source)

	start := time.Now()
	switch cmd.Kind {
	case CommandStart:
		_, ok := d.handler.OnInitialDataRequest(ctx)
		l.Debug("initial data handled", zap.Bool("emitted", ok), zap.Duration("took", time.Since(start)))
	case CommandInfo:
		_, ok := d.handler.OnInfoRequest(ctx)
		l.Debug("info handled", zap.Bool("emitted", ok), zap.Duration("took", time.Since(start)))
	case CommandReload:
		if err := d.handler.Reload(ctx); err != nil {
			l.Error("portfolio reload failed", zap.Error(err))
			return
		}
		l.Info("portfolio reloaded", zap.Duration("took", time.Since(start)))
	default:
		l.Warn("unknown command")
	}
}
