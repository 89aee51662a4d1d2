package api

import (
	"crypto/subtle"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/davidrios/incubadora-telemetry/internal/alerts"
	"github.com/davidrios/incubadora-telemetry/internal/collector"
	"github.com/davidrios/incubadora-telemetry/internal/db"
	"github.com/davidrios/incubadora-telemetry/internal/logging"
	"github.com/davidrios/incubadora-telemetry/internal/modelreg"
	"github.com/davidrios/incubadora-telemetry/internal/service"
	"github.com/davidrios/incubadora-telemetry/internal/stream"
)

const maxBodyBytes = 1 << 20

// Handler bundles the HTTP endpoints with their collaborators.
type Handler struct {
	ingestor    *service.Ingestor
	store       service.Store
	broadcaster *stream.Broadcaster
	registry    *modelreg.Registry
	collector   *collector.Collector
	logger      *zap.Logger
	apiKey      string
}

// NewHandler creates the API handler set.
func NewHandler(
	ingestor *service.Ingestor,
	store service.Store,
	broadcaster *stream.Broadcaster,
	registry *modelreg.Registry,
	col *collector.Collector,
	logger *zap.Logger,
	apiKey string,
) *Handler {
	return &Handler{
		ingestor:    ingestor,
		store:       store,
		broadcaster: broadcaster,
		registry:    registry,
		collector:   col,
		logger:      logger,
		apiKey:      apiKey,
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeDetail(w http.ResponseWriter, status int, detail string) {
	writeJSON(w, status, map[string]string{"detail": detail})
}

// requireAPIKey gates a handler behind the X-API-Key header. With no key
// configured the gate is open. The check runs before any body decoding.
func (h *Handler) requireAPIKey(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if h.apiKey != "" {
			got := r.Header.Get("X-API-Key")
			if subtle.ConstantTimeCompare([]byte(got), []byte(h.apiKey)) != 1 {
				writeDetail(w, http.StatusUnauthorized, "Invalid API key")
				return
			}
		}
		next(w, r)
	}
}

// HandleIngest accepts a raw measurement payload in any of the supported
// shapes and acknowledges with the new measurement id.
func (h *Handler) HandleIngest(w http.ResponseWriter, r *http.Request) {
	reqLogger := logging.WithRequestID(h.logger, uuid.NewString())

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		writeDetail(w, http.StatusBadRequest, "failed to read request body")
		return
	}

	id, err := h.ingestor.IngestBody(r.Context(), r.Header.Get("Content-Type"), body, reqLogger)
	if err != nil {
		var reqErr *service.RequestError
		if errors.As(err, &reqErr) {
			writeDetail(w, reqErr.Status, reqErr.Detail)
			return
		}
		reqLogger.Error("ingestion failed", zap.Error(err))
		writeDetail(w, http.StatusInternalServerError, "internal error")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "id": id})
}

// HandleDevices lists every device with last-seen time and latest metrics.
func (h *Handler) HandleDevices(w http.ResponseWriter, r *http.Request) {
	rows, err := h.store.ListDevices(r.Context())
	if err != nil {
		h.logger.Error("failed to list devices", zap.Error(err))
		writeDetail(w, http.StatusInternalServerError, "internal error")
		return
	}
	if rows == nil {
		rows = []db.DeviceRow{}
	}
	writeJSON(w, http.StatusOK, rows)
}

// HandleLatest returns the most recent measurement for one device.
func (h *Handler) HandleLatest(w http.ResponseWriter, r *http.Request) {
	deviceID := r.URL.Query().Get("device_id")
	if deviceID == "" {
		writeDetail(w, http.StatusUnprocessableEntity, "device_id is required")
		return
	}

	m, err := h.store.LatestByDevice(r.Context(), deviceID)
	if err != nil {
		h.logger.Error("failed to query latest measurement", zap.Error(err))
		writeDetail(w, http.StatusInternalServerError, "internal error")
		return
	}
	if m == nil {
		writeDetail(w, http.StatusNotFound, "Not Found")
		return
	}
	writeJSON(w, http.StatusOK, m)
}

// HandleSeries returns measurements for one device in ascending timestamp
// order, optionally bounded by from/to and capped by limit.
func (h *Handler) HandleSeries(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	deviceID := q.Get("device_id")
	if deviceID == "" {
		writeDetail(w, http.StatusUnprocessableEntity, "device_id is required")
		return
	}

	from := parseTimeParam(q.Get("from"))
	to := parseTimeParam(q.Get("to"))
	limit := parseIntParam(q.Get("limit"), 500, 5000)

	points, err := h.store.SeriesByDevice(r.Context(), deviceID, from, to, limit)
	if err != nil {
		h.logger.Error("failed to query series", zap.Error(err))
		writeDetail(w, http.StatusInternalServerError, "internal error")
		return
	}
	if points == nil {
		points = []db.Measurement{}
	}
	writeJSON(w, http.StatusOK, points)
}

type alertResponse struct {
	db.AlertWithMask
	Labels []string `json:"labels"`
}

// HandleAlerts lists recent alerts, newest first, with the firmware bitmask
// of the owning measurement decoded into labels.
func (h *Handler) HandleAlerts(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	sinceMinutes := parseIntParam(q.Get("since_minutes"), 24*60, 60*24*14)
	limit := parseIntParam(q.Get("limit"), 200, 1000)
	since := time.Now().UTC().Add(-time.Duration(sinceMinutes) * time.Minute)

	rows, err := h.store.RecentAlerts(r.Context(), q.Get("device_id"), &since, limit)
	if err != nil {
		h.logger.Error("failed to query alerts", zap.Error(err))
		writeDetail(w, http.StatusInternalServerError, "internal error")
		return
	}

	out := make([]alertResponse, 0, len(rows))
	for _, row := range rows {
		out = append(out, alertResponse{AlertWithMask: row, Labels: alerts.DecodeMask(row.Mask)})
	}
	writeJSON(w, http.StatusOK, out)
}

type retrainRequest struct {
	TrainedBy   string `json:"trained_by"`
	SamplesUsed int    `json:"samples_used"`
	Notes       string `json:"notes"`
}

// HandleModelStatus reports the served model status.
func (h *Handler) HandleModelStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.registry.Status())
}

// HandleRetrain bumps the model version. Training itself happens offline;
// this endpoint only records the request.
func (h *Handler) HandleRetrain(w http.ResponseWriter, r *http.Request) {
	var req retrainRequest
	// Body is optional; a missing or malformed one retrains anonymously.
	_ = json.NewDecoder(r.Body).Decode(&req)

	status := h.registry.Retrain(req.TrainedBy, req.SamplesUsed, req.Notes)
	writeJSON(w, http.StatusOK, status)
}

// HandleCollectorStatus reports the background poller state.
func (h *Handler) HandleCollectorStatus(w http.ResponseWriter, r *http.Request) {
	if h.collector == nil {
		writeJSON(w, http.StatusOK, collector.StatusSnapshot{Enabled: false, Devices: []collector.DeviceStatus{}, Now: time.Now().UTC()})
		return
	}
	writeJSON(w, http.StatusOK, h.collector.Status())
}

// HandleHealthz is the liveness probe.
func (h *Handler) HandleHealthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

func parseTimeParam(raw string) *time.Time {
	if raw == "" {
		return nil
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return nil
	}
	return &t
}

func parseIntParam(raw string, def, max int) int {
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 1 {
		return def
	}
	if n > max {
		return max
	}
	return n
}
