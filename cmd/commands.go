package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/subcommands"
	"go.uber.org/zap"

	"github.com/vadiminshakov/moexfolio/config"
	"github.com/vadiminshakov/moexfolio/internal"
	"github.com/vadiminshakov/moexfolio/internal/report"
	"github.com/vadiminshakov/moexfolio/internal/setup"
	"github.com/vadiminshakov/moexfolio/internal/web"
)

var commands = []subcommands.Command{
	&serveCmd{},
	&importCmd{},
	&reportCmd{},
	&setupCmd{},
	&tokenCmd{},
}

func newLogger(development bool) (*zap.Logger, error) {
	if development {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}

// loadConfig reads the configuration and builds the logger it asks for.
func loadConfig(path string) (config.Config, *zap.Logger, bool) {
	cfg, err := config.Load(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return config.Config{}, nil, false
	}
	logger, err := newLogger(cfg.Development)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: failed to create logger: %v\n", err)
		return config.Config{}, nil, false
	}
	return cfg, logger, true
}

type serveCmd struct {
	config string
}

func (*serveCmd) Name() string     { return "serve" }
func (*serveCmd) Synopsis() string { return "run the tracker, the Telegram bot and the HTTP API" }
func (*serveCmd) Usage() string {
	return `moexfolio serve [-config <file>]

  Runs the valuation pipeline until interrupted.
`
}

func (c *serveCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.config, "config", "", "path to yaml config")
}

func (c *serveCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	cfg, logger, ok := loadConfig(c.config)
	if !ok {
		return subcommands.ExitUsageError
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	tracker, err := internal.NewTracker(ctx, logger, cfg)
	if err != nil {
		logger.Error("failed to create tracker", zap.Error(err))
		return subcommands.ExitFailure
	}
	defer func() {
		if err := tracker.Close(context.Background()); err != nil {
			logger.Warn("failed to close tracker", zap.Error(err))
		}
	}()

	if err := tracker.Run(ctx); err != nil {
		logger.Error("tracker stopped", zap.Error(err))
		return subcommands.ExitFailure
	}

	logger.Info("tracker stopped")
	return subcommands.ExitSuccess
}

type importCmd struct {
	config string
}

func (*importCmd) Name() string     { return "import" }
func (*importCmd) Synopsis() string { return "import broker report rows into the trade ledger" }
func (*importCmd) Usage() string {
	return `moexfolio import [-config <file>] <trades.json|->

  Validates every row and stores them as one batch. A single bad row rejects the file.
`
}

func (c *importCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.config, "config", "", "path to yaml config")
}

func (c *importCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	if f.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "Error: expected exactly one trades file")
		return subcommands.ExitUsageError
	}

	cfg, logger, ok := loadConfig(c.config)
	if !ok {
		return subcommands.ExitUsageError
	}
	defer logger.Sync()

	var in io.Reader = os.Stdin
	if name := f.Arg(0); name != "-" {
		file, err := os.Open(name)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			return subcommands.ExitFailure
		}
		defer file.Close()
		in = file
	}

	inputs, err := internal.ReadTradeInputs(in)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return subcommands.ExitFailure
	}

	store, err := internal.NewTradeStore(ctx, logger, cfg.Store)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return subcommands.ExitFailure
	}
	defer store.Close(context.Background())

	created, err := internal.ImportTrades(ctx, store, cfg.TelegramChatID, inputs)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return subcommands.ExitFailure
	}

	fmt.Printf("imported %d trades\n", len(created))
	return subcommands.ExitSuccess
}

type reportCmd struct {
	config string
	style  string
	width  int
	raw    bool
}

func (*reportCmd) Name() string     { return "report" }
func (*reportCmd) Synopsis() string { return "value the portfolio once and print a report" }
func (*reportCmd) Usage() string {
	return `moexfolio report [-config <file>] [-style <name>] [-width n] [-raw]

  Values the portfolio against the last trading session and renders it as markdown.
`
}

func (c *reportCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.config, "config", "", "path to yaml config")
	f.StringVar(&c.style, "style", "", "glamour style (dark, light, notty), detected when empty")
	f.IntVar(&c.width, "width", 100, "word wrap width")
	f.BoolVar(&c.raw, "raw", false, "print markdown without styling")
}

func (c *reportCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	cfg, logger, ok := loadConfig(c.config)
	if !ok {
		return subcommands.ExitUsageError
	}
	defer logger.Sync()

	r, err := internal.BuildReport(ctx, logger, cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return subcommands.ExitFailure
	}

	md := report.NewBuilder(cfg.TotalInvestments).Markdown(r)
	if c.raw {
		fmt.Print(md)
		return subcommands.ExitSuccess
	}

	out, err := report.Render(md, c.style, c.width)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return subcommands.ExitFailure
	}
	fmt.Print(out)
	return subcommands.ExitSuccess
}

type setupCmd struct {
	output string
}

func (*setupCmd) Name() string     { return "setup" }
func (*setupCmd) Synopsis() string { return "generate a config file interactively" }
func (*setupCmd) Usage() string {
	return `moexfolio setup [-o <file>]

  Launches the configuration wizard.
`
}

func (c *setupCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.output, "o", setup.DefaultOutput, "output file")
}

func (c *setupCmd) Execute(context.Context, *flag.FlagSet, ...interface{}) subcommands.ExitStatus {
	if err := setup.RunTUI(c.output); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return subcommands.ExitFailure
	}
	return subcommands.ExitSuccess
}

type tokenCmd struct {
	config  string
	subject string
	ttl     time.Duration
}

func (*tokenCmd) Name() string     { return "token" }
func (*tokenCmd) Synopsis() string { return "issue a bearer token for API writes" }
func (*tokenCmd) Usage() string {
	return `moexfolio token [-config <file>] [-sub <subject>] [-ttl <duration>]

  Signs a token with API_JWT_SECRET for POST and DELETE /api/trades.
`
}

func (c *tokenCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.config, "config", "", "path to yaml config")
	f.StringVar(&c.subject, "sub", "owner", "token subject")
	f.DurationVar(&c.ttl, "ttl", 30*24*time.Hour, "token lifetime")
}

func (c *tokenCmd) Execute(context.Context, *flag.FlagSet, ...interface{}) subcommands.ExitStatus {
	cfg, err := config.Load(c.config)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return subcommands.ExitUsageError
	}

	token, err := web.IssueToken(cfg.Web.JWTSecret, c.subject, c.ttl)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return subcommands.ExitFailure
	}
	fmt.Println(token)
	return subcommands.ExitSuccess
}
