package web

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/vadiminshakov/moexfolio/internal/dispatcher"
	"github.com/vadiminshakov/moexfolio/internal/domain"
	"github.com/vadiminshakov/moexfolio/internal/services/portfolio"
	"github.com/vadiminshakov/moexfolio/internal/storage/trades"
)

const (
	valuationPollInterval = 2 * time.Second
	heartbeatInterval     = 30 * time.Second
)

type importRequest struct {
	Trades []domain.TradeInput `json:"trades" binding:"required"`
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) handleListTrades(c *gin.Context) {
	if s.cfg.UserID == 0 {
		c.JSON(http.StatusOK, gin.H{"trades": []domain.Trade{}})
		return
	}

	list, err := s.deps.Trades.List(c.Request.Context(), s.cfg.UserID)
	if err != nil {
		_ = c.Error(err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list trades"})
		return
	}
	if list == nil {
		list = []domain.Trade{}
	}

	c.JSON(http.StatusOK, gin.H{"trades": list})
}

func (s *Server) handleImportTrades(c *gin.Context) {
	if s.cfg.UserID == 0 {
		c.JSON(http.StatusForbidden, gin.H{"error": "no ledger owner configured"})
		return
	}

	var req importRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body: " + err.Error()})
		return
	}

	batch, err := domain.TradesFromInputs(req.Trades, s.cfg.UserID)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	created, err := s.deps.Trades.CreateBatch(c.Request.Context(), batch)
	if err != nil {
		if errors.Is(err, domain.ErrInvalidTrade) {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		_ = c.Error(err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to store trades"})
		return
	}

	s.l.Info("trades imported", zap.Int("count", len(created)))
	s.reload()

	c.JSON(http.StatusCreated, gin.H{"trades": created})
}

func (s *Server) handleDeleteTrade(c *gin.Context) {
	if s.cfg.UserID == 0 {
		c.JSON(http.StatusForbidden, gin.H{"error": "no ledger owner configured"})
		return
	}

	id := c.Param("id")
	if err := s.deps.Trades.Delete(c.Request.Context(), s.cfg.UserID, id); err != nil {
		if errors.Is(err, trades.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "trade not found"})
			return
		}
		_ = c.Error(err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to delete trade"})
		return
	}

	s.l.Info("trade deleted", zap.String("id", id))
	s.reload()

	c.Status(http.StatusNoContent)
}

func (s *Server) reload() {
	if s.deps.Dispatcher != nil {
		s.deps.Dispatcher.Submit(dispatcher.CommandReload, domain.SourceAPI)
	}
}

func (s *Server) handlePortfolio(c *gin.Context) {
	p, err := s.deps.Portfolio.Portfolio()
	if err != nil {
		if errors.Is(err, portfolio.ErrNotReady) {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
			return
		}
		_ = c.Error(err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to read portfolio"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"portfolio": p})
}

type valuationView struct {
	Index     uint64                   `json:"index"`
	Valuation domain.LatestInfoPayload `json:"valuation"`
}

func (s *Server) handleValuations(c *gin.Context) {
	after, err := parseIndex(c.Query("after"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid after index"})
		return
	}

	records, err := s.deps.Valuations.After(after)
	if err != nil {
		_ = c.Error(err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to read valuations"})
		return
	}

	out := make([]valuationView, 0, len(records))
	for _, r := range records {
		out = append(out, valuationView{Index: r.Index, Valuation: r.Valuation})
	}
	c.JSON(http.StatusOK, gin.H{"valuations": out})
}

// handleValuationStream streams journaled valuations as server-sent events. Clients resume
// with the Last-Event-ID header or the lastEventId query parameter.
func (s *Server) handleValuationStream(c *gin.Context) {
	w := c.Writer
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	lastIndex := parseLastEventID(c.GetHeader("Last-Event-ID"), c.Query("lastEventId"))

	send := func() error {
		records, err := s.deps.Valuations.After(lastIndex)
		if err != nil {
			return err
		}
		for _, r := range records {
			payload, err := json.Marshal(r.Valuation)
			if err != nil {
				return err
			}
			fmt.Fprintf(w, "id: %d\nevent: valuation\ndata: %s\n\n", r.Index, payload)
			lastIndex = r.Index
		}
		w.Flush()
		return nil
	}

	if err := send(); err != nil {
		s.l.Error("valuation stream initial load", zap.Error(err))
		c.AbortWithStatus(http.StatusInternalServerError)
		return
	}

	heartbeat := time.NewTicker(heartbeatInterval)
	defer heartbeat.Stop()
	poll := time.NewTicker(valuationPollInterval)
	defer poll.Stop()

	for {
		select {
		case <-c.Request.Context().Done():
			return
		case <-heartbeat.C:
			fmt.Fprint(w, ": ping\n\n")
			w.Flush()
		case <-poll.C:
			if err := send(); err != nil {
				s.l.Warn("valuation stream poll", zap.Error(err))
			}
		}
	}
}

func (s *Server) handleWebhook(c *gin.Context) {
	var update tgbotapi.Update
	if err := c.ShouldBindJSON(&update); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid update"})
		return
	}

	s.deps.Bot.HandleUpdate(update)
	c.Status(http.StatusOK)
}

func parseIndex(v string) (uint64, error) {
	if v == "" {
		return 0, nil
	}
	return strconv.ParseUint(v, 10, 64)
}

func parseLastEventID(headerVal, queryVal string) uint64 {
	for _, v := range []string{headerVal, queryVal} {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		if idx, err := strconv.ParseUint(v, 10, 64); err == nil {
			return idx
		}
	}
	return 0
}
