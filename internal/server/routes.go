package server

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/go-chi/chi/v5"

	"github.com/lazypower/recall/internal/engine"
	"github.com/lazypower/recall/internal/insight"
	"github.com/lazypower/recall/internal/store"
)

// maxBodyBytes bounds request bodies.
const maxBodyBytes = 1 << 20

func (s *Server) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		writeMessage(w, http.StatusBadRequest, "read body failed")
		return false
	}
	if err := json.Unmarshal(body, v); err != nil {
		writeMessage(w, http.StatusBadRequest, "invalid json")
		return false
	}
	return true
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	dbOK := s.db.Ping(r.Context()) == nil

	status := "ok"
	if !dbOK {
		status = "degraded"
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  status,
		"version": s.version,
		"uptime":  time.Since(s.started).Seconds(),
		"db":      dbOK,
	})
}

// QueryRequest is the body of POST /api/query.
type QueryRequest struct {
	Input      string `json:"input"`
	MaxResults int    `json:"max_results"`
}

// QueryResponse is the answer to POST /api/query.
type QueryResponse struct {
	Triggers  []string        `json:"triggers"`
	Surface   []engine.Scored `json:"surface"`
	Mid       []engine.Scored `json:"mid"`
	Deep      []engine.Scored `json:"deep"`
	Total     int             `json:"total"`
	Formatted string          `json:"formatted"`
	Markdown  string          `json:"markdown"`
	QueryMS   float64         `json:"query_ms"`
}

func (s *Server) handleQuery(w http.ResponseWriter, r *http.Request) {
	var req QueryRequest
	if !s.decode(w, r, &req) {
		return
	}
	if n := utf8.RuneCountInString(req.Input); n > s.cfg.MaxQueryChars {
		writeMessage(w, http.StatusBadRequest, fmt.Sprintf("input is %d characters, limit %d", n, s.cfg.MaxQueryChars))
		return
	}
	req.MaxResults = clamp(req.MaxResults, 1, s.cfg.MaxResultsLimit)

	start := time.Now()
	res, err := s.engine.Retrieve(r.Context(), req.Input, req.MaxResults)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, QueryResponse{
		Triggers:  nonNil(res.Triggers),
		Surface:   nonNil(res.Surface),
		Mid:       nonNil(res.Mid),
		Deep:      nonNil(res.Deep),
		Total:     res.Total(),
		Formatted: engine.FormatForConversation(res.Tiers),
		Markdown:  engine.FormatMarkdown(res.Tiers),
		QueryMS:   float64(time.Since(start).Microseconds()) / 1000,
	})
}

// clamp keeps n in [lo, hi]. Zero or negative n stays 0 so the engine
// applies its default.
func clamp(n, lo, hi int) int {
	if n <= 0 {
		return 0
	}
	if n < lo {
		return lo
	}
	if n > hi {
		return hi
	}
	return n
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}

func (s *Server) handleExtract(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Text string `json:"text"`
	}
	if !s.decode(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.Text) == "" {
		writeMessage(w, http.StatusBadRequest, "text required")
		return
	}

	drafts, err := s.extractor.Extract(r.Context(), req.Text)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"candidates": nonNil(drafts),
		"suggestion": engine.FormatCaptureSuggestion(drafts),
	})
}

func (s *Server) handleAddInsight(w http.ResponseWriter, r *http.Request) {
	var d insight.Draft
	if !s.decode(w, r, &d) {
		return
	}
	id, err := s.engine.Ingest(r.Context(), d)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"id": id})
}

func (s *Server) handleGetInsight(w http.ResponseWriter, r *http.Request) {
	in, err := s.engine.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, in)
}

func (s *Server) handleSupersede(w http.ResponseWriter, r *http.Request) {
	oldID := chi.URLParam(r, "id")
	var d insight.Draft
	if !s.decode(w, r, &d) {
		return
	}
	id, err := s.engine.Supersede(r.Context(), oldID, d)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"id": id, "supersedes": oldID})
}

// EntitySummary is one row of GET /api/entities.
type EntitySummary struct {
	Entity string     `json:"entity"`
	Alias  string     `json:"alias,omitempty"`
	Count  int        `json:"count"`
	Latest *time.Time `json:"latest,omitempty"`
}

func (s *Server) entitySummaries(r *http.Request) ([]EntitySummary, error) {
	stats, err := s.db.EntityStats(r.Context())
	if err != nil {
		return nil, err
	}
	byName := make(map[string]store.EntityStat, len(stats))
	for _, st := range stats {
		byName[st.Entity] = st
	}

	canon := s.engine.Canon()
	out := []EntitySummary{}
	for _, e := range s.engine.Lexicon().Entities() {
		sum := EntitySummary{Entity: e}
		if alias := canon.Denormalize(e); alias != e {
			sum.Alias = alias
		}
		if st, ok := byName[e]; ok {
			sum.Count = st.Count
			latest := st.Latest
			sum.Latest = &latest
		}
		out = append(out, sum)
	}
	return out, nil
}

func (s *Server) handleEntities(w http.ResponseWriter, r *http.Request) {
	out, err := s.entitySummaries(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"entities": out})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	total, err := s.db.Count(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	version, err := s.db.SchemaVersion(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	entities, err := s.entitySummaries(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"total_insights": total,
		"schema_version": version,
		"pool":           s.db.Pool().Stats(),
		"entities":       entities,
		"version":        s.version,
		"uptime":         time.Since(s.started).Seconds(),
	})
}
