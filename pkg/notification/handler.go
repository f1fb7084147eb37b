package notification

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/Sternrassler/notification-window/pkg/logging"
	"github.com/Sternrassler/notification-window/pkg/ratelimit"
	"github.com/rs/zerolog"
)

// Path is the notifications collection endpoint.
const Path = "/v1/notifications"

// HandlerConfig controls the response headers of the HTTP handler.
type HandlerConfig struct {
	// Expires is how long clients may cache a page (Expires header).
	Expires time.Duration

	// ErrorLimit is advertised in the error limit headers.
	ErrorLimit int

	// ErrorLimitReset is advertised as seconds until the error window resets.
	ErrorLimitReset time.Duration
}

// DefaultHandlerConfig returns the headers used by the demo server.
func DefaultHandlerConfig() HandlerConfig {
	return HandlerConfig{
		Expires:         30 * time.Second,
		ErrorLimit:      100,
		ErrorLimitReset: 60 * time.Second,
	}
}

// Handler serves GET /v1/notifications?page=N&page_size=M from a Backend.
type Handler struct {
	backend *Backend
	config  HandlerConfig
	logger  zerolog.Logger
}

// NewHandler creates an HTTP handler for backend.
func NewHandler(backend *Backend, cfg HandlerConfig) *Handler {
	return &Handler{
		backend: backend,
		config:  cfg,
		logger:  logging.NewLogger("notifications-api"),
	}
}

// ServeHTTP implements http.Handler.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", http.MethodGet)
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	w.Header().Set(ratelimit.HeaderErrorLimitRemain, strconv.Itoa(h.config.ErrorLimit))
	w.Header().Set(ratelimit.HeaderErrorLimitReset, strconv.Itoa(int(h.config.ErrorLimitReset.Seconds())))

	page, err := queryInt(r, "page", 1)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	pageSize, err := queryInt(r, "page_size", 10)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	etag := h.etag(page, pageSize)
	if match := r.Header.Get("If-None-Match"); match != "" && match == etag {
		w.Header().Set("ETag", etag)
		w.Header().Set("Expires", time.Now().Add(h.config.Expires).UTC().Format(http.TimeFormat))
		w.WriteHeader(http.StatusNotModified)
		return
	}

	resp, err := h.backend.GetNotifications(r.Context(), page, pageSize)
	if err != nil {
		if errors.Is(err, ErrInvalidPage) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		h.logger.Warn().Err(err).Int("page", page).Int("page_size", pageSize).Msg("Page request aborted")
		writeError(w, http.StatusServiceUnavailable, "request aborted")
		return
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.Header().Set("ETag", etag)
	w.Header().Set("Expires", time.Now().Add(h.config.Expires).UTC().Format(http.TimeFormat))
	w.WriteHeader(http.StatusOK)

	if err := json.NewEncoder(w).Encode(resp); err != nil {
		h.logger.Warn().Err(err).Msg("Failed to write page")
		return
	}

	h.logger.Debug().
		Int("page", page).
		Int("page_size", pageSize).
		Int("items", len(resp.Page.Items)).
		Msg("Served notifications page")
}

// etag identifies a page by its coordinates and the list it was cut from.
func (h *Handler) etag(page, pageSize int) string {
	return fmt.Sprintf(`"p%d-s%d-t%d-u%d"`, page, pageSize, h.backend.config.TotalItems, h.backend.config.NotViewedCount)
}

func queryInt(r *http.Request, name string, def int) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid integer %q", name, raw)
	}
	return v, nil
}

func writeError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": msg})
}
