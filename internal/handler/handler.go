// Package handler provides the storefront's HTTP and MCP surfaces.
package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"golang.org/x/time/rate"

	"merch-storefront/internal/catalog"
	"merch-storefront/internal/model"
	"merch-storefront/internal/session"
)

// Options configures a Handler.
type Options struct {
	Catalog  catalog.Source
	Sessions *session.Registry

	// SubmitRate bounds order submissions across all sessions to protect the
	// intake endpoint. Zero disables the limit.
	SubmitRate  rate.Limit
	SubmitBurst int

	// TelegramBotToken verifies Telegram-Init-Data. Empty accepts it unverified.
	TelegramBotToken string
	// InitDataMaxAge rejects stale Telegram init data. Zero disables the check.
	InitDataMaxAge time.Duration
}

// Handler holds dependencies for HTTP handlers.
type Handler struct {
	catalog  catalog.Source
	sessions *session.Registry
	limiter  *rate.Limiter
	botToken string
	maxAge   time.Duration
	logger   *slog.Logger
}

// New creates a Handler.
func New(opts Options, logger *slog.Logger) *Handler {
	h := &Handler{
		catalog:  opts.Catalog,
		sessions: opts.Sessions,
		botToken: opts.TelegramBotToken,
		maxAge:   opts.InitDataMaxAge,
		logger:   logger,
	}
	if opts.SubmitRate > 0 {
		burst := opts.SubmitBurst
		if burst < 1 {
			burst = 1
		}
		h.limiter = rate.NewLimiter(opts.SubmitRate, burst)
	}
	return h
}

// RegisterRoutes registers all HTTP routes with the given ServeMux.
// Uses Go 1.22+ method routing patterns.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /catalog", h.handleCatalog)

	mux.HandleFunc("GET /cart", h.handleGetCart)
	mux.HandleFunc("PUT /cart", h.handleReplaceCart)
	mux.HandleFunc("POST /cart/items", h.handleAddItem)
	mux.HandleFunc("PATCH /cart/items", h.handleAdjustItem)
	mux.HandleFunc("POST /cart/items/remove", h.handleRemoveItem)

	mux.HandleFunc("POST /orders", h.handleSubmitOrder)

	// MCP transport - JSON-RPC endpoint using official MCP SDK
	mux.Handle("/mcp", h.NewMCPHandler())

	mux.HandleFunc("GET /health", h.handleHealth)
	mux.HandleFunc("GET /healthz", h.handleHealth)
}

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, map[string]any{
		"status":   "ok",
		"sessions": h.sessions.Len(),
	})
}

// === Response Helpers ===

// writeJSON sends a JSON response with the given status code.
func (h *Handler) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to encode response", slog.String("error", err.Error()))
	}
}

// writeError sends an error response, extracting status/code from model.Error if present.
// Uses errors.As() to unwrap error chains (e.g., fmt.Errorf wrapping).
func (h *Handler) writeError(w http.ResponseWriter, err error) {
	var apiErr *model.Error
	if !errors.As(err, &apiErr) {
		apiErr = &model.Error{
			Code:       "INTERNAL_ERROR",
			Message:    "an internal error occurred",
			StatusCode: http.StatusInternalServerError,
		}
		h.logger.Error("internal error", slog.String("error", err.Error()))
	}

	if apiErr.StatusCode == http.StatusTooManyRequests {
		w.Header().Set("Retry-After", "1")
	}
	h.writeJSON(w, apiErr.StatusCode, errorResponse{
		Error: errorBody{
			Code:    apiErr.Code,
			Message: apiErr.Message,
			Field:   apiErr.Field,
		},
	})
}

// errorResponse is the JSON structure for error responses.
type errorResponse struct {
	Error errorBody `json:"error"`
}

type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Field   string `json:"field,omitempty"`
}

// MaxRequestBodySize limits JSON request bodies to 1MB to prevent DoS.
const MaxRequestBodySize = 1 << 20 // 1MB

// decodeJSON reads JSON from request body into v.
// Limits body size to MaxRequestBodySize to prevent memory exhaustion.
// Returns a validation error if decoding fails.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, MaxRequestBodySize)

	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		// Don't expose internal error details to client
		return model.NewValidationError("body", "invalid JSON")
	}
	return nil
}
