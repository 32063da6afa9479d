// Package web exposes the trade ledger API, the Telegram webhook and live payload streams.
package web

import (
	"context"
	"crypto/tls"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/pkg/errors"
	"go.uber.org/zap"
	"golang.org/x/crypto/acme/autocert"

	"github.com/vadiminshakov/moexfolio/internal/dispatcher"
	"github.com/vadiminshakov/moexfolio/internal/domain"
)

const shutdownTimeout = 5 * time.Second

type tradeStore interface {
	List(ctx context.Context, userID int64) ([]domain.Trade, error)
	CreateBatch(ctx context.Context, trades []domain.Trade) ([]domain.Trade, error)
	Delete(ctx context.Context, userID int64, id string) error
}

type portfolioReader interface {
	Portfolio() (*domain.Portfolio, error)
}

type valuationReader interface {
	After(index uint64) ([]domain.ValuationRecord, error)
}

type updateHandler interface {
	HandleUpdate(update tgbotapi.Update)
}

type submitter interface {
	Submit(kind dispatcher.CommandKind, source string) bool
}

// Config of the HTTP server.
type Config struct {
	Addr string
	// UserID owner of the ledger. Zero serves an empty ledger.
	UserID int64
	// JWTSecret signs write requests. Empty disables writes.
	JWTSecret string
}

// Deps are the collaborators served over HTTP. Nil dependencies disable their routes.
type Deps struct {
	Trades     tradeStore
	Portfolio  portfolioReader
	Valuations valuationReader
	Bot        updateHandler
	Dispatcher submitter
	Hub        *Hub
}

// Server is the gin HTTP server.
type Server struct {
	cfg    Config
	deps   Deps
	l      *zap.Logger
	engine *gin.Engine
}

// NewServer creates the server and registers routes.
func NewServer(l *zap.Logger, cfg Config, deps Deps) *Server {
	engine := gin.New()
	engine.Use(requestLogger(l), recovery(l))

	s := &Server{cfg: cfg, deps: deps, l: l, engine: engine}
	s.routes()
	return s
}

// Handler returns the HTTP handler, e.g. for tests.
func (s *Server) Handler() http.Handler {
	return s.engine
}

func (s *Server) routes() {
	s.engine.GET("/health", s.handleHealth)

	api := s.engine.Group("/api")
	if s.deps.Trades != nil {
		api.GET("/trades", s.handleListTrades)
		write := api.Group("", jwtAuth(s.cfg.JWTSecret))
		write.POST("/trades", s.handleImportTrades)
		write.DELETE("/trades/:id", s.handleDeleteTrade)
	}
	if s.deps.Portfolio != nil {
		api.GET("/portfolio", s.handlePortfolio)
	}
	if s.deps.Valuations != nil {
		api.GET("/valuations", s.handleValuations)
		api.GET("/valuations/stream", s.handleValuationStream)
	}

	if s.deps.Bot != nil {
		s.engine.POST("/bot", s.handleWebhook)
	}
	if s.deps.Hub != nil {
		s.engine.GET("/ws", s.deps.Hub.Serve)
	}
}

// Start runs the HTTP server (blocking) and shuts it down when ctx is cancelled.
func (s *Server) Start(ctx context.Context) error {
	server := &http.Server{
		Addr:              s.cfg.Addr,
		Handler:           s.engine,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()

	s.l.Info("http server listening", zap.String("addr", s.cfg.Addr))
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return errors.Wrap(err, "http server")
	}
	return nil
}

// StartWithAutoTLS runs an HTTPS server with automatic TLS certificates via ACME.
// It also starts an HTTP server on port 80 to handle ACME HTTP-01 challenges.
func (s *Server) StartWithAutoTLS(ctx context.Context, domains []string, cacheDir string) error {
	if len(domains) == 0 {
		return fmt.Errorf("no domains provided for automatic TLS")
	}
	if cacheDir == "" {
		cacheDir = "cert-cache"
	}

	manager := &autocert.Manager{
		Prompt:     autocert.AcceptTOS,
		HostPolicy: autocert.HostWhitelist(domains...),
		Cache:      autocert.DirCache(cacheDir),
	}

	httpSrv := &http.Server{
		Addr:              ":80",
		Handler:           manager.HTTPHandler(nil),
		ReadHeaderTimeout: 15 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	tlsConfig := manager.TLSConfig()
	tlsConfig.MinVersion = tls.VersionTLS12

	httpsSrv := &http.Server{
		Addr:              s.cfg.Addr,
		Handler:           s.engine,
		ReadHeaderTimeout: 15 * time.Second,
		IdleTimeout:       120 * time.Second,
		TLSConfig:         tlsConfig,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := httpSrv.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.l.Warn("http (acme) server shutdown error", zap.Error(err))
		}
		if err := httpsSrv.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.l.Warn("https server shutdown error", zap.Error(err))
		}
	}()

	go func() {
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.l.Error("http (acme) server error", zap.Error(err))
		}
	}()

	s.l.Info("https server listening", zap.String("addr", s.cfg.Addr), zap.Strings("domains", domains))
	if err := httpsSrv.ListenAndServeTLS("", ""); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return errors.Wrap(err, "https server")
	}
	return nil
}
