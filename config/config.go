// Package config loads the application configuration from a YAML file and the environment.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"github.com/vadiminshakov/moexfolio/internal/domain"
	"github.com/vadiminshakov/moexfolio/internal/services/marketdata"
	"github.com/vadiminshakov/moexfolio/internal/storage/trades"
)

// Store drivers.
const (
	DriverMongo  = "mongo"
	DriverFile   = "file"
	DriverMemory = "memory"
)

const (
	defaultInfoInterval = 15 * time.Minute
	defaultStorePath    = "./data/trades.json"
	defaultJournalDir   = "./wal/valuations"
	defaultPort         = "5000"
	defaultCertCache    = "cert-cache"
)

// Config is the validated application configuration.
type Config struct {
	Development      bool
	TelegramToken    string
	TelegramChatID   int64
	TotalInvestments decimal.Decimal
	Market           marketdata.Config
	InfoInterval     time.Duration
	Store            Store
	JournalDir       string
	Precision        domain.PrecisionTable
	Web              Web
}

// Store configures the trade ledger backend.
type Store struct {
	Driver   string
	Path     string
	MongoURI string
	Database string
}

// Web configures the HTTP server.
type Web struct {
	Addr      string
	PublicURL string
	JWTSecret string
	Domains   []string
	CertCache string
}

// Webhook reports whether Telegram updates are delivered to PUBLIC_URL instead of polled.
func (c Config) Webhook() bool {
	return !c.Development && c.Web.PublicURL != ""
}

// ConfigTmp is the YAML representation of Config.
type ConfigTmp struct {
	Log       LogTmp           `yaml:"log"`
	Market    MarketTmp        `yaml:"market"`
	Schedule  ScheduleTmp      `yaml:"schedule"`
	Store     StoreTmp         `yaml:"store"`
	Journal   JournalTmp       `yaml:"journal"`
	Precision map[string]int32 `yaml:"precision,omitempty"`
	Web       WebTmp           `yaml:"web"`
}

type LogTmp struct {
	Development bool `yaml:"development"`
}

type MarketTmp struct {
	BaseURL        string `yaml:"base_url,omitempty"`
	Engine         string `yaml:"engine,omitempty"`
	Market         string `yaml:"market,omitempty"`
	Board          string `yaml:"board,omitempty"`
	RequestTimeout string `yaml:"request_timeout,omitempty"`
	Retries        *int   `yaml:"retries,omitempty"`
	Concurrency    int    `yaml:"concurrency,omitempty"`
}

type ScheduleTmp struct {
	InfoInterval string `yaml:"info_interval,omitempty"`
}

type StoreTmp struct {
	Driver   string `yaml:"driver,omitempty"`
	Path     string `yaml:"path,omitempty"`
	Database string `yaml:"database,omitempty"`
}

type JournalTmp struct {
	Dir string `yaml:"dir,omitempty"`
}

type WebTmp struct {
	Domains   []string `yaml:"domains,omitempty"`
	CertCache string   `yaml:"cert_cache,omitempty"`
}

// Load reads the YAML file at path (optional), the .env file of the working directory (optional)
// and the process environment.
func Load(path string) (Config, error) {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		return Config{}, errors.Wrap(err, "load .env")
	}

	var tmp ConfigTmp
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, errors.Wrapf(err, "read config %s", path)
		}
		if tmp, err = Parse(data); err != nil {
			return Config{}, err
		}
	}

	return Build(tmp, os.Getenv)
}

// Parse decodes YAML config data.
func Parse(data []byte) (ConfigTmp, error) {
	var tmp ConfigTmp
	if err := yaml.Unmarshal(data, &tmp); err != nil {
		return ConfigTmp{}, errors.Wrap(err, "decode yaml config")
	}
	return tmp, nil
}

// Build applies defaults and environment values to tmp and validates the result.
func Build(tmp ConfigTmp, getenv func(string) string) (Config, error) {
	cfg := Config{
		Development: tmp.Log.Development,
		Market: marketdata.Config{
			BaseURL:     strings.TrimRight(firstNonEmpty(getenv("STOCK_MARKET_API_URL"), tmp.Market.BaseURL, marketdata.DefaultBaseURL), "/"),
			Engine:      firstNonEmpty(tmp.Market.Engine, marketdata.DefaultEngine),
			Market:      firstNonEmpty(tmp.Market.Market, marketdata.DefaultMarket),
			Board:       strings.ToUpper(firstNonEmpty(tmp.Market.Board, marketdata.DefaultBoard)),
			Retries:     marketdata.DefaultRetries,
			Concurrency: marketdata.DefaultConcurrency,
		},
		Store: Store{
			Driver:   strings.ToLower(firstNonEmpty(tmp.Store.Driver, DriverMongo)),
			Path:     firstNonEmpty(tmp.Store.Path, defaultStorePath),
			MongoURI: getenv("MONGODB_URI"),
			Database: firstNonEmpty(tmp.Store.Database, trades.DefaultDatabase),
		},
		JournalDir:    firstNonEmpty(tmp.Journal.Dir, defaultJournalDir),
		Precision:     domain.DefaultPrecisionTable().Merge(tmp.Precision),
		TelegramToken: getenv("TELEGRAM_API_TOKEN"),
		Web: Web{
			Addr:      ":" + firstNonEmpty(getenv("PORT"), defaultPort),
			PublicURL: strings.TrimRight(getenv("PUBLIC_URL"), "/"),
			JWTSecret: getenv("API_JWT_SECRET"),
			Domains:   tmp.Web.Domains,
			CertCache: firstNonEmpty(tmp.Web.CertCache, defaultCertCache),
		},
	}

	var err error
	if cfg.Market.RequestTimeout, err = parseDuration(tmp.Market.RequestTimeout, marketdata.DefaultRequestTimeout); err != nil {
		return Config{}, errors.Wrap(err, "incorrect 'market.request_timeout' param in yaml config")
	}
	if cfg.InfoInterval, err = parseDuration(tmp.Schedule.InfoInterval, defaultInfoInterval); err != nil {
		return Config{}, errors.Wrap(err, "incorrect 'schedule.info_interval' param in yaml config")
	}

	if tmp.Market.Retries != nil {
		if *tmp.Market.Retries < 0 {
			return Config{}, fmt.Errorf("incorrect 'market.retries' param in yaml config (must not be negative): %d", *tmp.Market.Retries)
		}
		cfg.Market.Retries = *tmp.Market.Retries
	}
	if tmp.Market.Concurrency < 0 {
		return Config{}, fmt.Errorf("incorrect 'market.concurrency' param in yaml config (must not be negative): %d", tmp.Market.Concurrency)
	}
	if tmp.Market.Concurrency > 0 {
		cfg.Market.Concurrency = tmp.Market.Concurrency
	}

	for ticker, p := range cfg.Precision {
		if p < 0 {
			return Config{}, fmt.Errorf("incorrect precision for %s (must not be negative): %d", ticker, p)
		}
	}

	switch cfg.Store.Driver {
	case DriverMongo:
		if cfg.Store.MongoURI == "" {
			return Config{}, errors.New("MONGODB_URI environment variable must be set for the mongo store")
		}
	case DriverFile, DriverMemory:
	default:
		return Config{}, fmt.Errorf("unsupported store driver %q", cfg.Store.Driver)
	}

	if v := getenv("MY_TELEGRAM_ID"); v != "" {
		if cfg.TelegramChatID, err = strconv.ParseInt(strings.TrimSpace(v), 10, 64); err != nil {
			return Config{}, errors.Wrap(err, "MY_TELEGRAM_ID must be an integer")
		}
	}
	if v := getenv("TOTAL_INVESTMENTS"); v != "" {
		if cfg.TotalInvestments, err = decimal.NewFromString(strings.TrimSpace(v)); err != nil {
			return Config{}, errors.Wrap(err, "TOTAL_INVESTMENTS must be a decimal")
		}
		if cfg.TotalInvestments.IsNegative() {
			return Config{}, errors.New("TOTAL_INVESTMENTS must not be negative")
		}
	}

	return cfg, nil
}

// RequireBot checks the variables needed to run the Telegram bot.
func (c Config) RequireBot() error {
	var missing []string
	if c.TelegramToken == "" {
		missing = append(missing, "TELEGRAM_API_TOKEN")
	}
	if c.TelegramChatID == 0 {
		missing = append(missing, "MY_TELEGRAM_ID")
	}
	if c.TotalInvestments.IsZero() {
		missing = append(missing, "TOTAL_INVESTMENTS")
	}
	if len(missing) > 0 {
		return fmt.Errorf("required environment variables are missing: %s", strings.Join(missing, ", "))
	}
	return nil
}

func parseDuration(v string, def time.Duration) (time.Duration, error) {
	if v == "" {
		return def, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, err
	}
	if d <= 0 {
		return 0, fmt.Errorf("duration must be positive: %s", v)
	}
	return d, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
