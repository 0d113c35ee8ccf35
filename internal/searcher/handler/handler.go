// Package handler exposes the query engine and the index over HTTP.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/Adithya-Monish-Kumar-K/medsearch/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/medsearch/internal/searcher/engine"
	"github.com/Adithya-Monish-Kumar-K/medsearch/internal/snapshot"
	apperrors "github.com/Adithya-Monish-Kumar-K/medsearch/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/medsearch/pkg/logger"
)

const maxBodyBytes = 32 << 20

// CacheControl is the response cache surface used for stats and
// invalidation. *cache.QueryCache[engine.Response] satisfies it.
type CacheControl interface {
	Stats() (hits, misses int64)
	Invalidate(ctx context.Context) error
}

// SnapshotSaver persists an export of the index.
type SnapshotSaver interface {
	Save(ctx context.Context, idx *index.Index, keep int) (snapshot.Meta, error)
}

type Option func(*Handler)

func WithCache(c CacheControl) Option {
	return func(h *Handler) { h.cache = c }
}

// WithSnapshots enables POST /api/v1/index/snapshot. keep bounds the number
// of stored snapshots.
func WithSnapshots(s SnapshotSaver, keep int) Option {
	return func(h *Handler) {
		h.snapshots = s
		h.keep = keep
	}
}

// WithMaxLimit makes the search endpoint reject a limit above n with 400.
// Zero leaves limits unbounded.
func WithMaxLimit(n int) Option {
	return func(h *Handler) { h.maxLimit = n }
}

type Handler struct {
	engine    *engine.Engine
	idx       *index.Index
	cache     CacheControl
	snapshots SnapshotSaver
	keep      int
	maxLimit  int
	logger    *slog.Logger
}

func New(eng *engine.Engine, idx *index.Index, opts ...Option) *Handler {
	h := &Handler{
		engine: eng,
		idx:    idx,
		logger: slog.Default().With("component", "search-handler"),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Register mounts every route on mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/v1/search", h.Search)
	mux.HandleFunc("GET /api/v1/search/instant", h.Instant)
	mux.HandleFunc("GET /api/v1/search/suggest", h.Suggest)
	mux.HandleFunc("GET /api/v1/search/recent", h.Recent)
	mux.HandleFunc("GET /api/v1/search/popular", h.Popular)
	mux.HandleFunc("DELETE /api/v1/search/history", h.ClearHistory)
	mux.HandleFunc("GET /api/v1/categories/{category}/search", h.SearchCategory)

	mux.HandleFunc("POST /api/v1/records", h.AddRecords)
	mux.HandleFunc("GET /api/v1/records/{id}", h.GetRecord)
	mux.HandleFunc("PUT /api/v1/records/{id}", h.UpdateRecord)
	mux.HandleFunc("DELETE /api/v1/records/{id}", h.RemoveRecord)
	mux.HandleFunc("PATCH /api/v1/records/{id}/metadata", h.UpdateMetadata)

	mux.HandleFunc("POST /api/v1/index/rebuild", h.Rebuild)
	mux.HandleFunc("GET /api/v1/index/export", h.Export)
	mux.HandleFunc("POST /api/v1/index/import", h.Import)
	mux.HandleFunc("GET /api/v1/index/stats", h.IndexStats)
	mux.HandleFunc("POST /api/v1/index/snapshot", h.Snapshot)

	mux.HandleFunc("GET /api/v1/cache/stats", h.CacheStats)
	mux.HandleFunc("POST /api/v1/cache/invalidate", h.CacheInvalidate)
}

func (h *Handler) Search(w http.ResponseWriter, r *http.Request) {
	params := r.URL.Query()
	limit, offset, err := h.paging(params)
	if err != nil {
		h.writeErr(w, r, err)
		return
	}
	filters, err := parseFilters(params)
	if err != nil {
		h.writeErr(w, r, err)
		return
	}

	resp := h.engine.Search(r.Context(), engine.Query{
		Term:    params.Get("q"),
		Filters: filters,
		Limit:   limit,
		Offset:  offset,
	})
	h.writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) Instant(w http.ResponseWriter, r *http.Request) {
	limit, err := intParam(r.URL.Query(), "limit")
	if err != nil {
		h.writeErr(w, r, err)
		return
	}
	results := h.engine.InstantSearch(r.Context(), r.URL.Query().Get("q"), limit)
	h.writeJSON(w, http.StatusOK, map[string]any{"results": results})
}

func (h *Handler) Suggest(w http.ResponseWriter, r *http.Request) {
	limit, err := intParam(r.URL.Query(), "limit")
	if err != nil {
		h.writeErr(w, r, err)
		return
	}
	suggestions := h.engine.Suggestions(r.URL.Query().Get("q"), limit)
	h.writeJSON(w, http.StatusOK, map[string]any{"suggestions": suggestions})
}

func (h *Handler) Recent(w http.ResponseWriter, r *http.Request) {
	limit, err := intParam(r.URL.Query(), "limit")
	if err != nil {
		h.writeErr(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"queries": h.engine.RecentSearches(limit)})
}

func (h *Handler) Popular(w http.ResponseWriter, r *http.Request) {
	limit, err := intParam(r.URL.Query(), "limit")
	if err != nil {
		h.writeErr(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"queries": h.engine.PopularSearches(limit)})
}

func (h *Handler) ClearHistory(w http.ResponseWriter, r *http.Request) {
	h.engine.ClearHistory()
	h.writeJSON(w, http.StatusOK, map[string]string{"status": "cleared"})
}

func (h *Handler) SearchCategory(w http.ResponseWriter, r *http.Request) {
	category := index.Category(r.PathValue("category"))
	if !category.Valid() {
		h.writeErr(w, r, apperrors.Newf(apperrors.ErrInvalidInput, http.StatusBadRequest, "unknown category %q", category))
		return
	}
	limit, err := intParam(r.URL.Query(), "limit")
	if err != nil {
		h.writeErr(w, r, err)
		return
	}
	results := h.engine.SearchCategory(r.Context(), r.URL.Query().Get("q"), category, limit)
	h.writeJSON(w, http.StatusOK, map[string]any{"category": category, "results": results})
}

// AddRecords accepts a JSON array of records, or a single record object.
func (h *Handler) AddRecords(w http.ResponseWriter, r *http.Request) {
	body, err := readBody(w, r)
	if err != nil {
		h.writeErr(w, r, err)
		return
	}

	var recs []index.Record
	trimmed := strings.TrimSpace(string(body))
	if strings.HasPrefix(trimmed, "{") {
		var rec index.Record
		if err := json.Unmarshal(body, &rec); err != nil {
			h.writeErr(w, r, invalid("decoding record: %v", err))
			return
		}
		recs = []index.Record{rec}
	} else if err := json.Unmarshal(body, &recs); err != nil {
		h.writeErr(w, r, invalid("decoding records: %v", err))
		return
	}
	if len(recs) == 0 {
		h.writeErr(w, r, invalid("no records supplied"))
		return
	}
	if err := h.idx.AddMany(recs); err != nil {
		h.writeErr(w, r, err)
		return
	}
	logger.FromContext(r.Context()).Info("records added", "count", len(recs))
	h.writeJSON(w, http.StatusCreated, map[string]any{"added": len(recs), "stats": h.idx.Stats()})
}

func (h *Handler) GetRecord(w http.ResponseWriter, r *http.Request) {
	rec, ok := h.idx.GetByID(r.PathValue("id"))
	if !ok {
		h.writeErr(w, r, notFound(r.PathValue("id")))
		return
	}
	h.writeJSON(w, http.StatusOK, rec)
}

// UpdateRecord replaces the record with the path id. The body id, when set,
// must match.
func (h *Handler) UpdateRecord(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	var rec index.Record
	if err := decodeJSON(w, r, &rec); err != nil {
		h.writeErr(w, r, err)
		return
	}
	if rec.ID == "" {
		rec.ID = id
	}
	if rec.ID != id {
		h.writeErr(w, r, invalid("body id %q does not match path id %q", rec.ID, id))
		return
	}
	if err := h.idx.Update(rec); err != nil {
		h.writeErr(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, rec)
}

func (h *Handler) RemoveRecord(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if !h.idx.Remove(id) {
		h.writeErr(w, r, notFound(id))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// UpdateMetadata replaces the metadata of an existing record without
// touching its text.
func (h *Handler) UpdateMetadata(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	var meta index.Metadata
	if err := decodeJSON(w, r, &meta); err != nil {
		h.writeErr(w, r, err)
		return
	}
	rec, ok := h.idx.GetByID(id)
	if !ok {
		h.writeErr(w, r, notFound(id))
		return
	}
	rec.Metadata = meta
	if err := h.idx.UpdateMetadata(rec); err != nil {
		h.writeErr(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, rec)
}

func (h *Handler) Rebuild(w http.ResponseWriter, r *http.Request) {
	h.idx.Rebuild()
	h.writeJSON(w, http.StatusOK, h.idx.Stats())
}

func (h *Handler) Export(w http.ResponseWriter, r *http.Request) {
	blob, err := h.idx.Export()
	if err != nil {
		h.writeErr(w, r, fmt.Errorf("exporting index: %w", err))
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Content-Disposition", `attachment; filename="index-export.json"`)
	w.WriteHeader(http.StatusOK)
	if _, err := io.WriteString(w, blob); err != nil {
		h.logger.Error("failed to write export", "error", err)
	}
}

// Import replaces the index with the posted export blob. A malformed blob
// leaves the index unchanged and is reported as 400.
func (h *Handler) Import(w http.ResponseWriter, r *http.Request) {
	body, err := readBody(w, r)
	if err != nil {
		h.writeErr(w, r, err)
		return
	}
	if err := h.idx.Import(string(body)); err != nil {
		h.writeErr(w, r, err)
		return
	}
	logger.FromContext(r.Context()).Info("index imported", "documents", h.idx.Len())
	h.writeJSON(w, http.StatusOK, h.idx.Stats())
}

func (h *Handler) IndexStats(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, map[string]any{
		"stats":      h.idx.Stats(),
		"generation": h.idx.Generation(),
	})
}

func (h *Handler) Snapshot(w http.ResponseWriter, r *http.Request) {
	if h.snapshots == nil {
		h.writeErr(w, r, apperrors.New(apperrors.ErrUnavailable, http.StatusServiceUnavailable, "snapshots are disabled"))
		return
	}
	meta, err := h.snapshots.Save(r.Context(), h.idx, h.keep)
	if err != nil {
		h.writeErr(w, r, fmt.Errorf("%w: %v", apperrors.ErrUnavailable, err))
		return
	}
	h.writeJSON(w, http.StatusCreated, meta)
}

func (h *Handler) CacheStats(w http.ResponseWriter, r *http.Request) {
	if h.cache == nil {
		h.writeJSON(w, http.StatusOK, map[string]string{"status": "disabled"})
		return
	}

	hits, misses := h.cache.Stats()
	total := hits + misses
	var hitRate float64
	if total > 0 {
		hitRate = float64(hits) / float64(total) * 100
	}

	h.writeJSON(w, http.StatusOK, map[string]any{
		"hits":     hits,
		"misses":   misses,
		"total":    total,
		"hit_rate": fmt.Sprintf("%.1f%%", hitRate),
	})
}

func (h *Handler) CacheInvalidate(w http.ResponseWriter, r *http.Request) {
	if h.cache == nil {
		h.writeErr(w, r, apperrors.New(apperrors.ErrUnavailable, http.StatusServiceUnavailable, "caching is disabled"))
		return
	}
	if err := h.cache.Invalidate(r.Context()); err != nil {
		h.writeErr(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]string{"status": "invalidated"})
}

func (h *Handler) paging(params map[string][]string) (limit, offset int, err error) {
	if limit, err = intParam(params, "limit"); err != nil {
		return 0, 0, err
	}
	if h.maxLimit > 0 && limit > h.maxLimit {
		return 0, 0, invalid("limit must be at most %d", h.maxLimit)
	}
	if offset, err = intParam(params, "offset"); err != nil {
		return 0, 0, err
	}
	return limit, offset, nil
}

// intParam parses a non-negative integer query parameter. Absent means 0.
func intParam(params map[string][]string, name string) (int, error) {
	values := params[name]
	if len(values) == 0 || values[0] == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(values[0])
	if err != nil || n < 0 {
		return 0, invalid("%s must be a non-negative integer", name)
	}
	return n, nil
}

// parseFilters reads repeated or comma-separated filter parameters.
func parseFilters(params map[string][]string) (engine.Filters, error) {
	var f engine.Filters
	for _, c := range listParam(params, "category") {
		cat := index.Category(c)
		if !cat.Valid() {
			return f, invalid("unknown category %q", c)
		}
		f.Categories = append(f.Categories, cat)
	}
	f.BodySystems = listParam(params, "body_system")
	f.AgeGroups = listParam(params, "age_group")
	if s := listParam(params, "severity"); len(s) > 0 {
		f.Severity = s[0]
	}
	if v := listParam(params, "verified"); len(v) > 0 {
		b, err := strconv.ParseBool(v[0])
		if err != nil {
			return f, invalid("verified must be a boolean")
		}
		f.Verified = &b
	}
	return f, nil
}

func listParam(params map[string][]string, name string) []string {
	var out []string
	for _, v := range params[name] {
		for _, part := range strings.Split(v, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}

func readBody(w http.ResponseWriter, r *http.Request) ([]byte, error) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return nil, apperrors.Newf(apperrors.ErrInvalidInput, http.StatusRequestEntityTooLarge, "body exceeds %d bytes", tooLarge.Limit)
		}
		return nil, invalid("reading body: %v", err)
	}
	return body, nil
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	body, err := readBody(w, r)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, dst); err != nil {
		return invalid("decoding body: %v", err)
	}
	return nil
}

func invalid(format string, args ...any) error {
	return apperrors.Newf(apperrors.ErrInvalidInput, http.StatusBadRequest, format, args...)
}

func notFound(id string) error {
	return apperrors.Newf(apperrors.ErrRecordNotFound, http.StatusNotFound, "record %q", id)
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to write response", "error", err)
	}
}

func (h *Handler) writeErr(w http.ResponseWriter, r *http.Request, err error) {
	status := apperrors.HTTPStatusCode(err)
	if status >= http.StatusInternalServerError {
		logger.FromContext(r.Context()).Error("request failed", "path", r.URL.Path, "error", err)
	}
	message := err.Error()
	var appErr *apperrors.AppError
	if errors.As(err, &appErr) {
		message = appErr.Message
	}
	h.writeJSON(w, status, map[string]string{"error": message})
}
