/**
 * @description
 * This file contains the HTTP handlers for the intake service. Handlers parse
 * requests, delegate to the gateway and the ledger repository, and map results
 * to HTTP responses. No business rules live here: the input guards below are
 * pure HTTP-shape checks, distinct from the validation engine's rule set.
 *
 * @dependencies
 * - encoding/json, log, net/http: Standard Go libraries.
 * - internal/app, internal/domain, internal/store: Gateway, models, errors.
 */

package api

import (
	"encoding/json"
	"errors"
	"log"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/meridianfs/tradeseal/internal/app"
	"github.com/meridianfs/tradeseal/internal/domain"
	"github.com/meridianfs/tradeseal/internal/seal"
	"github.com/meridianfs/tradeseal/internal/store"
)

// TradeHandlers holds the collaborators the intake endpoints use.
type TradeHandlers struct {
	gateway            *app.Gateway
	repo               store.Repository
	limiter            app.RateLimiter
	rateLimitPerMinute int
}

func NewTradeHandlers(gateway *app.Gateway, repo store.Repository) *TradeHandlers {
	return &TradeHandlers{gateway: gateway, repo: repo}
}

// SetRateLimiter enables per-client submission throttling.
func (h *TradeHandlers) SetRateLimiter(limiter app.RateLimiter, perMinute int) {
	h.limiter = limiter
	h.rateLimitPerMinute = perMinute
}

type submitTradeResponse struct {
	TradeID         uuid.UUID          `json:"tradeId"`
	ExternalOrderID string             `json:"externalOrderId"`
	Status          domain.TradeStatus `json:"status"`
	Timestamp       time.Time          `json:"timestamp"`
	Message         string             `json:"message"`
	IsDuplicate     bool               `json:"isDuplicate"`
}

type verifyTradeResponse struct {
	TradeID         uuid.UUID `json:"tradeId"`
	ExternalOrderID string    `json:"externalOrderId"`
	IsSealed        bool      `json:"isSealed"`
	HashValid       bool      `json:"hashValid"`
	SharedHash      *string   `json:"sharedHash,omitempty"`
	AnchorTxHash    *string   `json:"anchorTxHash,omitempty"`
}

// SubmitTradeHandler accepts a trade instruction. 201 for a new trade, 200
// for an idempotent duplicate, 400 for malformed input.
func (h *TradeHandlers) SubmitTradeHandler(w http.ResponseWriter, r *http.Request) {
	if !h.allowRequest(w, r) {
		return
	}

	var req domain.SubmitTradeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	if strings.TrimSpace(req.ExternalOrderID) == "" {
		h.writeError(w, http.StatusBadRequest, "externalOrderId is required")
		return
	}
	if !req.Amount.IsPositive() {
		h.writeError(w, http.StatusBadRequest, "amount must be greater than zero")
		return
	}

	result, err := h.gateway.Submit(r.Context(), req)
	if err != nil {
		log.Printf("level=error component=api msg=\"submit failed\" external_order_id=%s err=%v", req.ExternalOrderID, err)
		h.writeError(w, http.StatusInternalServerError, "Unable to accept trade instruction")
		return
	}

	message := "Trade accepted and queued for settlement."
	statusCode := http.StatusCreated
	if !result.IsNew {
		message = "Duplicate submission; returning the original trade record."
		statusCode = http.StatusOK
	}

	h.writeJSON(w, statusCode, submitTradeResponse{
		TradeID:         result.Trade.InternalID,
		ExternalOrderID: result.Trade.ExternalOrderID,
		Status:          result.Trade.Status,
		Timestamp:       result.Trade.Timestamp,
		Message:         message,
		IsDuplicate:     !result.IsNew,
	})
}

// ListTradesHandler returns the most recent trades, newest first.
func (h *TradeHandlers) ListTradesHandler(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 || parsed > 500 {
			h.writeError(w, http.StatusBadRequest, "limit must be between 1 and 500")
			return
		}
		limit = parsed
	}

	trades, err := h.repo.ListRecent(r.Context(), limit)
	if err != nil {
		log.Printf("level=error component=api msg=\"list trades failed\" err=%v", err)
		h.writeError(w, http.StatusInternalServerError, "Unable to list trades")
		return
	}
	if trades == nil {
		trades = []domain.Trade{}
	}
	h.writeJSON(w, http.StatusOK, trades)
}

// GetTradeHandler returns one trade by internal id.
func (h *TradeHandlers) GetTradeHandler(w http.ResponseWriter, r *http.Request) {
	trade, ok := h.fetchTrade(w, r)
	if !ok {
		return
	}
	h.writeJSON(w, http.StatusOK, trade)
}

// VerifyTradeHandler recomputes a trade's seal and reports tamper status.
func (h *TradeHandlers) VerifyTradeHandler(w http.ResponseWriter, r *http.Request) {
	trade, ok := h.fetchTrade(w, r)
	if !ok {
		return
	}

	h.writeJSON(w, http.StatusOK, verifyTradeResponse{
		TradeID:         trade.InternalID,
		ExternalOrderID: trade.ExternalOrderID,
		IsSealed:        trade.SharedHash != nil && *trade.SharedHash != "",
		HashValid:       seal.VerifyHash(trade),
		SharedHash:      trade.SharedHash,
		AnchorTxHash:    trade.AnchorTxHash,
	})
}

func (h *TradeHandlers) fetchTrade(w http.ResponseWriter, r *http.Request) (*domain.Trade, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "id must be a valid trade identifier")
		return nil, false
	}

	trade, err := h.repo.FindByID(r.Context(), id)
	if err != nil {
		if errors.Is(err, store.ErrTradeNotFound) {
			h.writeError(w, http.StatusNotFound, "Trade not found")
			return nil, false
		}
		log.Printf("level=error component=api msg=\"trade lookup failed\" trade_id=%s err=%v", id, err)
		h.writeError(w, http.StatusInternalServerError, "Unable to fetch trade")
		return nil, false
	}
	return trade, true
}

// allowRequest applies the per-client submission rate limit when configured.
// A limiter failure is logged and the request is allowed through; throttling
// is protection, not a gate the pipeline depends on.
func (h *TradeHandlers) allowRequest(w http.ResponseWriter, r *http.Request) bool {
	if h.limiter == nil || h.rateLimitPerMinute <= 0 {
		return true
	}

	subject := clientAddr(r)
	count, retryAfter, err := h.limiter.Consume(r.Context(), subject, h.rateLimitPerMinute, time.Minute)
	if err != nil {
		log.Printf("level=warn component=api msg=\"rate limiter unavailable; allowing request\" err=%v", err)
		return true
	}
	if count > h.rateLimitPerMinute {
		w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
		h.writeError(w, http.StatusTooManyRequests, "Too many submissions; retry later")
		return false
	}
	return true
}

func clientAddr(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		return strings.TrimSpace(strings.Split(fwd, ",")[0])
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func (h *TradeHandlers) writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		log.Printf("level=error component=api msg=\"response encode failed\" err=%v", err)
	}
}

func (h *TradeHandlers) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, map[string]string{"error": message})
}
