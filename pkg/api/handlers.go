package api

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"radiolocate/pkg/cellexport"
	"radiolocate/pkg/database"
	"radiolocate/pkg/locate"
	"radiolocate/pkg/report"
	"radiolocate/pkg/reportbus"
	"radiolocate/pkg/stats"
)

// Body limits per endpoint. Locate queries are one observation set,
// report batches carry many items.
const (
	maxLocateBody = 1 << 20
	maxReportBody = 8 << 20
)

// Handler wires the storage layer, the inference engine, and the
// background services into HTTP routes. Routes stay small: translate the
// request, call one building block, translate the answer.
type Handler struct {
	DB        *database.Database
	Engine    *locate.Engine
	Bus       *reportbus.Bus
	Stats     *stats.Service
	Export    *cellexport.Generator
	Limiter   *RateLimiter
	AuthToken string
	Logf      func(string, ...any)
}

// NewHandler constructs a Handler. Bus, Stats, Export, Limiter, and Logf
// are optional; an empty authToken disables the authenticated endpoints
// so the server runs in legacy-ingestion-only mode.
func NewHandler(
	db *database.Database,
	engine *locate.Engine,
	bus *reportbus.Bus,
	statsSvc *stats.Service,
	export *cellexport.Generator,
	limiter *RateLimiter,
	authToken string,
	logf func(string, ...any),
) *Handler {
	return &Handler{
		DB:        db,
		Engine:    engine,
		Bus:       bus,
		Stats:     statsSvc,
		Export:    export,
		Limiter:   limiter,
		AuthToken: authToken,
		Logf:      logf,
	}
}

// Register attaches the API routes to the provided mux. Kept tiny and
// declarative: URLs to methods, nothing clever.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("/api/v1/locate", h.handleLocate)
	mux.HandleFunc("/api/v1/report", h.handleReport)
	mux.HandleFunc("/v2/geosubmit", h.handleGeosubmit)
	mux.HandleFunc("/api", h.handleOverview)
	mux.HandleFunc("/api/v1/data/cells.csv.gz", h.handleCellExport)
}

// handleLocate answers a position query from the learned emitters.
func (h *Handler) handleLocate(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		h.writeError(w, http.StatusMethodNotAllowed, "use POST")
		return
	}
	if !h.authorized(r) {
		h.writeError(w, http.StatusUnauthorized, "missing or invalid bearer token")
		return
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxLocateBody))
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "cannot read request body")
		return
	}
	query, err := report.Parse(body)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "cannot decode request body")
		return
	}

	loc, err := h.Engine.Locate(r.Context(), query)
	if err != nil {
		if errors.Is(err, locate.ErrNoCoverage) {
			h.writeNoCoverage(w)
			return
		}
		h.writeStorageError(w, "locate", err)
		return
	}

	h.respondJSON(w, http.StatusOK, locateResponse{
		Location: locatePosition{
			Longitude: loc.Longitude,
			Latitude:  loc.Latitude,
			Altitude:  loc.Altitude,
		},
		Accuracy: loc.AccuracyM,
	})
}

type locatePosition struct {
	Longitude float64  `json:"longitude"`
	Latitude  float64  `json:"latitude"`
	Altitude  *float64 `json:"altitude,omitempty"`
}

type locateResponse struct {
	Location locatePosition `json:"location"`
	Accuracy float64        `json:"accuracy"`
}

// handleReport appends a ground-truth batch to the report log. The 202
// promises durability, not processing: aggregation happens behind the
// bus wakeup.
func (h *Handler) handleReport(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		h.writeError(w, http.StatusMethodNotAllowed, "use POST")
		return
	}
	if !h.authorized(r) {
		h.writeError(w, http.StatusUnauthorized, "missing or invalid bearer token")
		return
	}

	items, ok := h.decodeBatch(w, r, maxReportBody)
	if !ok {
		return
	}
	if len(items) == 0 {
		h.writeError(w, http.StatusBadRequest, "items required")
		return
	}

	rows := buildRows(items, r.UserAgent(), nil)
	if err := h.appendAndWake(r.Context(), rows); err != nil {
		h.writeStorageError(w, "report", err)
		return
	}

	h.respondJSON(w, http.StatusAccepted, map[string]int{"items_received": len(rows)})
}

// handleGeosubmit ingests the legacy camelCase batch shape. No auth:
// stumbler clients predate the token scheme, so the per-IP limiter
// sequences them instead.
func (h *Handler) handleGeosubmit(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		h.writeError(w, http.StatusMethodNotAllowed, "use POST")
		return
	}

	if h.Limiter != nil {
		permit, err := h.Limiter.Acquire(r.Context(), clientIP(r), RequestGeneral)
		if err != nil {
			// Client went away while queued.
			return
		}
		defer permit.Release()
	}

	items, ok := h.decodeBatch(w, r, maxReportBody)
	if !ok {
		return
	}

	// Devices without a fix report from the null island square; those
	// rows train nothing and are dropped before storage.
	rows := buildRows(items, r.UserAgent(), func(rep report.Report) bool {
		return rep.GNSS != nil && report.NullIsland(rep.GNSS.Latitude, rep.GNSS.Longitude)
	})

	if len(rows) > 0 {
		if err := h.appendAndWake(r.Context(), rows); err != nil {
			h.writeStorageError(w, "geosubmit", err)
			return
		}
	}

	h.respondJSON(w, http.StatusOK, struct{}{})
}

// decodeBatch reads the {items: [...]} envelope shared by both ingestion
// endpoints, keeping each item as raw bytes.
func (h *Handler) decodeBatch(w http.ResponseWriter, r *http.Request, limit int64) ([]json.RawMessage, bool) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, limit))
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "cannot read request body")
		return nil, false
	}
	var batch report.Batch
	if err := json.Unmarshal(body, &batch); err != nil {
		h.writeError(w, http.StatusBadRequest, "cannot decode request body")
		return nil, false
	}
	return batch.Items, true
}

// buildRows turns raw items into report log rows. Items are stored as
// received; the parse here only fills the informational columns and
// feeds the optional drop filter. Unparseable items still land in the
// log, where the worker records the rejection reason.
func buildRows(items []json.RawMessage, userAgent string, drop func(report.Report) bool) []database.ReportRow {
	rows := make([]database.ReportRow, 0, len(items))
	for _, item := range items {
		row := database.ReportRow{UserAgent: userAgent, Raw: item}
		if rep, err := report.Parse(item); err == nil {
			if drop != nil && drop(rep) {
				continue
			}
			row.Timestamp = rep.Timestamp.Time
			row.Lat, row.Lon = rep.Truth()
		}
		rows = append(rows, row)
	}
	return rows
}

// appendAndWake persists the rows and pokes the aggregation workers.
func (h *Handler) appendAndWake(ctx context.Context, rows []database.ReportRow) error {
	ids, err := h.DB.AppendReports(ctx, rows)
	if err != nil {
		return err
	}
	if h.Bus != nil {
		h.Bus.Publish(len(ids))
	}
	return nil
}

// handleOverview publishes machine-readable docs plus the cached corpus
// counters so developers and dashboards share one endpoint.
func (h *Handler) handleOverview(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		h.writeError(w, http.StatusMethodNotAllowed, "use GET")
		return
	}

	overview := struct {
		Endpoints map[string]any  `json:"endpoints"`
		Stats     *stats.Snapshot `json:"stats,omitempty"`
	}{
		Endpoints: map[string]any{
			"locate": map[string]any{
				"method":      "POST",
				"path":        "/api/v1/locate",
				"auth":        "bearer",
				"description": "Estimates a position from Wi-Fi, Bluetooth, and cell observations.",
			},
			"report": map[string]any{
				"method":      "POST",
				"path":        "/api/v1/report",
				"auth":        "bearer",
				"description": "Submits ground-truth observation batches. Returns 202 once the batch is durable.",
			},
			"geosubmit": map[string]any{
				"method":      "POST",
				"path":        "/v2/geosubmit",
				"description": "Legacy stumbler ingestion, camelCase body.",
			},
			"cellExport": map[string]any{
				"method":      "GET",
				"path":        "/api/v1/data/cells.csv.gz",
				"description": "Downloads the current snapshot of learned cell positions.",
				"frequency":   "Updated once per day",
			},
		},
	}

	if h.Stats != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()
		if snap, err := h.Stats.Snapshot(ctx); err == nil {
			overview.Stats = &snap
		}
	}

	h.respondJSON(w, http.StatusOK, overview)
}

// handleCellExport streams the csv.gz snapshot produced by the
// generator. Heavy kind: repeated downloads from one IP sit out the
// cooldown.
func (h *Handler) handleCellExport(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		h.writeError(w, http.StatusMethodNotAllowed, "use GET")
		return
	}
	if h.Export == nil {
		h.writeError(w, http.StatusServiceUnavailable, "export disabled")
		return
	}

	if h.Limiter != nil {
		permit, err := h.Limiter.Acquire(r.Context(), clientIP(r), RequestHeavy)
		if err != nil {
			return
		}
		defer permit.Release()
	}

	ctx, cancel := context.WithTimeout(r.Context(), 30*time.Second)
	defer cancel()

	info, err := h.Export.Fetch(ctx)
	if err != nil {
		h.writeError(w, http.StatusServiceUnavailable, "export unavailable")
		h.logf("cell export fetch error: %v", err)
		return
	}

	file, err := os.Open(info.Path)
	if err != nil {
		h.writeError(w, http.StatusInternalServerError, "export open error")
		return
	}
	defer file.Close()

	stat, err := file.Stat()
	if err != nil {
		h.writeError(w, http.StatusInternalServerError, "export stat error")
		return
	}

	w.Header().Set("Content-Type", "application/gzip")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%s", filepath.Base(info.Path)))
	http.ServeContent(w, r, filepath.Base(info.Path), stat.ModTime(), file)
}

// =====================
// Utility helpers
// =====================

// authorized performs the constant-time bearer comparison. An empty
// configured token authorizes nobody.
func (h *Handler) authorized(r *http.Request) bool {
	if h.AuthToken == "" {
		return false
	}
	const prefix = "Bearer "
	header := r.Header.Get("Authorization")
	if len(header) < len(prefix) || !strings.EqualFold(header[:len(prefix)], prefix) {
		return false
	}
	token := strings.TrimSpace(header[len(prefix):])
	return subtle.ConstantTimeCompare([]byte(token), []byte(h.AuthToken)) == 1
}

func (h *Handler) respondJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	_ = enc.Encode(payload)
}

// writeError emits the flat error envelope used everywhere except the
// locate miss.
func (h *Handler) writeError(w http.ResponseWriter, code int, message string) {
	h.respondJSON(w, code, struct {
		Code    int    `json:"code"`
		Error   string `json:"error"`
		Message string `json:"message"`
	}{
		Code:    code,
		Error:   strings.ToLower(http.StatusText(code)),
		Message: message,
	})
}

// writeNoCoverage emits the nested envelope locate clients expect on a
// miss.
func (h *Handler) writeNoCoverage(w http.ResponseWriter) {
	type inner struct {
		Domain  string `json:"domain"`
		Reason  string `json:"reason"`
		Message string `json:"message"`
		Code    int    `json:"code"`
	}
	h.respondJSON(w, http.StatusNotFound, struct {
		Error inner `json:"error"`
	}{
		Error: inner{
			Domain:  "locate",
			Reason:  "not found",
			Message: "no location could be estimated based on the data provided",
			Code:    http.StatusNotFound,
		},
	})
}

// writeStorageError classifies a failure from the storage path:
// transient trouble and invariant violations answer 503 so clients
// retry, everything else is a plain 500.
func (h *Handler) writeStorageError(w http.ResponseWriter, op string, err error) {
	switch {
	case database.IsRetryable(err):
		h.writeError(w, http.StatusServiceUnavailable, "storage temporarily unavailable")
	case errors.Is(err, database.ErrInvariant):
		h.writeError(w, http.StatusServiceUnavailable, "stored data failed verification")
	default:
		h.writeError(w, http.StatusInternalServerError, "internal error")
	}
	h.logf("%s error: %v", op, err)
}

func (h *Handler) logf(format string, args ...any) {
	if h.Logf != nil {
		h.Logf(format, args...)
	}
}

// clientIP extracts the caller address for the limiter, trusting the
// forwarding header when a proxy filled it.
func clientIP(r *http.Request) string {
	forwarded := strings.TrimSpace(r.Header.Get("X-Forwarded-For"))
	if forwarded != "" {
		parts := strings.Split(forwarded, ",")
		if candidate := strings.TrimSpace(parts[0]); candidate != "" {
			return candidate
		}
	}

	host, _, err := net.SplitHostPort(strings.TrimSpace(r.RemoteAddr))
	if err == nil && strings.TrimSpace(host) != "" {
		return host
	}
	if trimmed := strings.TrimSpace(r.RemoteAddr); trimmed != "" {
		return trimmed
	}
	return ""
}
