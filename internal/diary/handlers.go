package diary

import (
	"encoding/csv"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/HerbHall/sleepcast/internal/render"
	"github.com/HerbHall/sleepcast/internal/schedule"
	"github.com/HerbHall/sleepcast/pkg/sleep"
)

const problemBase = "https://sleepcast.dev/problems/"

// Body limits for JSON requests and CSV imports.
const (
	maxJSONBody   = 64 << 10
	maxImportBody = 4 << 20
)

// Handler serves the diary API.
type Handler struct {
	svc    *Service
	logger *zap.Logger
}

// NewHandler creates a diary API handler.
func NewHandler(svc *Service, logger *zap.Logger) *Handler {
	return &Handler{svc: svc, logger: logger}
}

// RegisterRoutes registers the diary routes on mux.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/v1/diary/forecast", h.handleForecast)
	mux.HandleFunc("GET /api/v1/diary/periods", h.handleListPeriods)
	mux.HandleFunc("POST /api/v1/diary/periods", h.handleAddPeriod)
	mux.HandleFunc("DELETE /api/v1/diary/periods/{id}", h.handleDeletePeriod)
	mux.HandleFunc("POST /api/v1/diary/sleep", h.handleRecord(sleep.KindSleep))
	mux.HandleFunc("POST /api/v1/diary/wake", h.handleRecord(sleep.KindWake))
	mux.HandleFunc("POST /api/v1/diary/import", h.handleImport)
	mux.HandleFunc("POST /api/v1/diary/refresh", h.handleRefresh)
	mux.HandleFunc("GET /api/v1/diary/snapshots/latest", h.handleLatestSnapshot)
}

// handleForecast computes a forecast from the whole diary.
// Query: format=json|csv|text (default json), now=RFC3339.
func (h *Handler) handleForecast(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	format := render.FormatJSON
	if v := q.Get("format"); v != "" {
		f, err := render.ParseFormat(v)
		if err != nil {
			writeProblem(w, r, http.StatusBadRequest, err.Error())
			return
		}
		format = f
	}
	var now time.Time
	if v := q.Get("now"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			writeProblem(w, r, http.StatusBadRequest, "now must be an RFC 3339 timestamp")
			return
		}
		now = t
	}

	rep, err := h.svc.Forecast(r.Context(), now)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	switch format {
	case render.FormatCSV:
		w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	case render.FormatText:
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	default:
		w.Header().Set("Content-Type", "application/json")
	}
	w.Header().Set("Last-Modified", rep.GeneratedAt.Format(http.TimeFormat))
	if err := render.Write(w, format, rep.Table, rep.Sheet); err != nil {
		h.logger.Warn("write forecast", zap.Error(err))
	}
}

func (h *Handler) handleListPeriods(w http.ResponseWriter, r *http.Request) {
	periods, err := h.svc.ListPeriods(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if periods == nil {
		periods = []sleep.Period{}
	}
	writeJSON(w, http.StatusOK, periods)
}

type periodRequest struct {
	AsleepAt time.Time  `json:"asleep_at"`
	AwakeAt  *time.Time `json:"awake_at,omitempty"`
}

func (h *Handler) handleAddPeriod(w http.ResponseWriter, r *http.Request) {
	var req periodRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeBodyProblem(w, r, err)
		return
	}
	if req.AsleepAt.IsZero() {
		writeProblem(w, r, http.StatusBadRequest, "asleep_at is required")
		return
	}
	p := &sleep.Period{AsleepAt: req.AsleepAt.UTC(), Source: SourceAPI}
	if req.AwakeAt != nil {
		awake := req.AwakeAt.UTC()
		p.AwakeAt = &awake
	}
	if err := h.svc.AddPeriod(r.Context(), p); err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, p)
}

func (h *Handler) handleDeletePeriod(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == "" {
		writeProblem(w, r, http.StatusBadRequest, "id is required")
		return
	}
	if err := h.svc.DeletePeriod(r.Context(), id); err != nil {
		h.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type recordRequest struct {
	At *time.Time `json:"at,omitempty"`
}

// handleRecord records a sleep or wake. The body is optional; without an
// "at" the server clock is used.
func (h *Handler) handleRecord(k sleep.Kind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req recordRequest
		if err := decodeJSON(w, r, &req); err != nil && !errors.Is(err, io.EOF) {
			writeBodyProblem(w, r, err)
			return
		}
		var at time.Time
		if req.At != nil {
			at = *req.At
		}

		var (
			p   *sleep.Period
			err error
		)
		if k == sleep.KindWake {
			p, err = h.svc.RecordWake(r.Context(), at)
		} else {
			p, err = h.svc.RecordSleep(r.Context(), at, SourceAPI)
		}
		if err != nil {
			h.writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusCreated, p)
	}
}

func (h *Handler) handleImport(w http.ResponseWriter, r *http.Request) {
	n, err := h.svc.Import(r.Context(), http.MaxBytesReader(w, r.Body, maxImportBody), SourceImport)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]int{"imported": n})
}

func (h *Handler) handleRefresh(w http.ResponseWriter, r *http.Request) {
	snap, err := h.svc.Refresh(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, snap)
}

func (h *Handler) handleLatestSnapshot(w http.ResponseWriter, r *http.Request) {
	snap, err := h.svc.LatestSnapshot(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

// -- helpers --

// writeError maps service errors onto problem responses. Engine errors are
// 422: the request was fine but the diary cannot support a forecast yet.
func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case IsEngineError(err):
		writeProblem(w, r, http.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, ErrNotFound):
		writeProblem(w, r, http.StatusNotFound, err.Error())
	case errors.Is(err, ErrNoOpenPeriod), errors.Is(err, ErrPeriodOpen), errors.Is(err, ErrOutOfOrder):
		writeProblem(w, r, http.StatusConflict, err.Error())
	case errors.Is(err, ErrInvalidPeriod), errors.Is(err, schedule.ErrWakeNotAfterSleep):
		writeProblem(w, r, http.StatusBadRequest, err.Error())
	default:
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			writeProblem(w, r, http.StatusRequestEntityTooLarge, "request body too large")
			return
		}
		if isParseError(err) {
			writeProblem(w, r, http.StatusBadRequest, err.Error())
			return
		}
		h.logger.Error("diary request failed",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Error(err),
		)
		writeProblem(w, r, http.StatusInternalServerError, "internal error")
	}
}

func isParseError(err error) bool {
	var pe *time.ParseError
	var ce *csv.ParseError
	return errors.As(err, &pe) || errors.As(err, &ce) || errors.Is(err, errBadRecord)
}

// decodeJSON decodes a bounded request body into v.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	return json.NewDecoder(http.MaxBytesReader(w, r.Body, maxJSONBody)).Decode(v)
}

func writeBodyProblem(w http.ResponseWriter, r *http.Request, err error) {
	var maxErr *http.MaxBytesError
	if errors.As(err, &maxErr) {
		writeProblem(w, r, http.StatusRequestEntityTooLarge, "request body too large")
		return
	}
	writeProblem(w, r, http.StatusBadRequest, "invalid JSON body")
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeProblem(w http.ResponseWriter, r *http.Request, status int, detail string) {
	w.Header().Set("Content-Type", "application/problem+json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"type":     problemBase + http.StatusText(status),
		"title":    http.StatusText(status),
		"status":   status,
		"detail":   detail,
		"instance": r.URL.Path,
	})
}
