package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/chatlab/chatlab/internal/analytics"
	"github.com/chatlab/chatlab/internal/clerr"
	"github.com/chatlab/chatlab/internal/event"
	"github.com/chatlab/chatlab/internal/importer"
	"github.com/chatlab/chatlab/internal/sqllab"
	"github.com/chatlab/chatlab/internal/store"
	"github.com/chatlab/chatlab/internal/worker"
)

// ErrorResponse represents an API error.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, err string, message string) {
	writeJSON(w, status, ErrorResponse{Error: err, Message: message})
}

// writeKindError maps an error kind to an HTTP status and writes it.
func writeKindError(w http.ResponseWriter, err error) {
	kind := clerr.KindOf(err)
	status := http.StatusInternalServerError
	switch kind {
	case clerr.KindIO, clerr.KindUnknownFormat:
		status = http.StatusNotFound
	case clerr.KindParseStructural, clerr.KindParseRecord:
		status = http.StatusUnprocessableEntity
	case clerr.KindCanceled:
		status = 499 // client closed request
	case clerr.KindTimeout:
		status = http.StatusGatewayTimeout
	}
	writeError(w, status, kind.String(), err.Error())
}

func jobIDSequence() func() string {
	var n atomic.Int64
	return func() string {
		return fmt.Sprintf("job_%d", n.Add(1))
	}
}

// SessionResponse is one corpus in list responses.
type SessionResponse struct {
	CorpusID      string  `json:"corpusId"`
	Name          string  `json:"name"`
	Platform      string  `json:"platform"`
	ChatType      string  `json:"chatType"`
	MinTS         *int64  `json:"minTs,omitempty"`
	MaxTS         *int64  `json:"maxTs,omitempty"`
	OwnerID       *string `json:"ownerPlatformId,omitempty"`
	Partial       bool    `json:"partial"`
	SchemaVersion int     `json:"schemaVersion"`
	Active        bool    `json:"active"`
}

func sessionResponse(c *store.Corpus, active bool) SessionResponse {
	resp := SessionResponse{
		CorpusID:      c.ID,
		Name:          c.Name,
		Platform:      c.Platform,
		ChatType:      c.ChatType,
		Partial:       c.Partial,
		SchemaVersion: c.SchemaVersion,
		Active:        active,
	}
	if c.MinTS.Valid {
		resp.MinTS = &c.MinTS.Int64
	}
	if c.MaxTS.Valid {
		resp.MaxTS = &c.MaxTS.Int64
	}
	if c.OwnerPlatformID.Valid {
		resp.OwnerID = &c.OwnerPlatformID.String
	}
	return resp
}

func (s *Server) handleListSessions(w http.ResponseWriter, r *http.Request) {
	entries, err := s.cat.List()
	if err != nil {
		s.logger.Error("list sessions", "error", err)
		writeKindError(w, err)
		return
	}
	out := make([]SessionResponse, 0, len(entries))
	for _, e := range entries {
		out = append(out, sessionResponse(e.Corpus, e.Active))
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleSelectSession(w http.ResponseWriter, r *http.Request) {
	corpusID := chi.URLParam(r, "corpusID")
	if err := s.cat.Select(corpusID); err != nil {
		writeError(w, http.StatusNotFound, "not_found", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"selected": corpusID})
}

func (s *Server) handleDeleteSession(w http.ResponseWriter, r *http.Request) {
	corpusID := chi.URLParam(r, "corpusID")
	if err := s.cat.Delete(corpusID); err != nil {
		s.logger.Error("delete corpus", "corpus", corpusID, "error", err)
		writeKindError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"deleted": corpusID})
}

func (s *Server) handleSetOwner(w http.ResponseWriter, r *http.Request) {
	corpusID := chi.URLParam(r, "corpusID")
	var body struct {
		PlatformID *string `json:"platformId"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", err.Error())
		return
	}
	if err := s.cat.SetOwner(corpusID, body.PlatformID); err != nil {
		writeKindError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"corpusId": corpusID})
}

// ImportRequest starts an import job.
type ImportRequest struct {
	Path      string `json:"path"`
	CorpusID  string `json:"corpusId,omitempty"`
	BatchSize int    `json:"batchSize,omitempty"`
}

func (s *Server) handleImportStart(w http.ResponseWriter, r *http.Request) {
	var req ImportRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", err.Error())
		return
	}
	if req.Path == "" {
		writeError(w, http.StatusBadRequest, "bad_request", "path is required")
		return
	}

	jobID := s.nextJobID()
	opts := importer.Options{
		BatchSize: req.BatchSize,
		Location:  s.loc,
		CorpusID:  req.CorpusID,
		Progress: func(p event.Progress) {
			s.pool.SetProgress(jobID, p)
		},
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = s.cfg.Import.BatchSize
	}

	job := worker.Job{
		ID:   jobID,
		Kind: worker.KindImport,
		Run: func(ctx context.Context, st *store.Store) (interface{}, error) {
			return s.coord.Import(ctx, req.Path, opts)
		},
	}
	if err := s.pool.Submit(job); err != nil {
		writeError(w, http.StatusConflict, "submit_failed", err.Error())
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"jobId": jobID})
}

func (s *Server) handleJobStatus(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "jobID")
	status, ok := s.pool.Status(jobID)
	if !ok {
		writeError(w, http.StatusNotFound, "not_found", "no such job")
		return
	}

	resp := map[string]interface{}{
		"id":    status.ID,
		"kind":  status.Kind,
		"state": status.State,
	}
	if status.Progress != nil {
		resp["progress"] = status.Progress
	}
	if status.Error != "" {
		resp["error"] = status.Error
		if status.Result != nil {
			resp["errorKind"] = status.Result.Kind.String()
		}
	}
	if status.Result != nil && status.Result.OK {
		resp["result"] = status.Result.Data
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleJobCancel(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "jobID")
	if _, ok := s.pool.Status(jobID); !ok {
		writeError(w, http.StatusNotFound, "not_found", "no such job")
		return
	}
	s.pool.Cancel(jobID)
	writeJSON(w, http.StatusOK, map[string]string{"canceled": jobID})
}

func (s *Server) handleSchema(w http.ResponseWriter, r *http.Request) {
	schemas, err := s.st.TableSchemas()
	if err != nil {
		writeKindError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, schemas)
}

// SQLRequest is a SQL lab query.
type SQLRequest struct {
	SQL    string `json:"sql"`
	RowCap int    `json:"rowCap,omitempty"`
}

func (s *Server) handleSQL(w http.ResponseWriter, r *http.Request) {
	var req SQLRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", err.Error())
		return
	}

	data, err := s.runAnalyticsJob(r, "sql", func(ctx context.Context, st *store.Store) (interface{}, error) {
		res, err := sqllab.Query(ctx, st.DB(), req.SQL, req.RowCap)
		if err != nil {
			return nil, err
		}
		return map[string]interface{}{
			"columns":    res.Columns,
			"rows":       res.Rows,
			"rowCount":   res.RowCount,
			"durationMs": res.Duration.Milliseconds(),
			"limited":    res.Limited,
		}, nil
	})
	if err != nil {
		writeKindError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, data)
}

// timeFilterFromQuery reads startTs / endTs query parameters.
func timeFilterFromQuery(r *http.Request) analytics.TimeFilter {
	var f analytics.TimeFilter
	if v := r.URL.Query().Get("startTs"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			f.StartTS = &n
		}
	}
	if v := r.URL.Query().Get("endTs"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			f.EndTS = &n
		}
	}
	return f
}

func queryInt(r *http.Request, name string, def int) int {
	if v := r.URL.Query().Get(name); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

// runAnalyticsJob schedules work on the pool so the boundary thread never
// touches the store, then waits for the outcome. An optional timeoutMs
// query deadline is carried down into the job context and thus the query.
func (s *Server) runAnalyticsJob(r *http.Request, kind string, run worker.RunFunc) (interface{}, error) {
	timeoutMs := queryInt(r, "timeoutMs", 0)

	jobID := s.nextJobID()
	job := worker.Job{
		ID:   jobID,
		Kind: kind,
		Run: func(ctx context.Context, st *store.Store) (interface{}, error) {
			if timeoutMs > 0 {
				var cancel context.CancelFunc
				ctx, cancel = context.WithTimeout(ctx, time.Duration(timeoutMs)*time.Millisecond)
				defer cancel()
			}
			data, err := run(ctx, st)
			if err != nil && ctx.Err() == context.DeadlineExceeded {
				return nil, clerr.Wrap(clerr.KindTimeout, "analytics deadline exceeded", err)
			}
			return data, err
		},
	}
	if err := s.pool.Submit(job); err != nil {
		return nil, err
	}

	res, err := s.pool.Wait(r.Context(), jobID)
	if err != nil {
		// The requester went away; stop the job too.
		s.pool.Cancel(jobID)
		return nil, clerr.Wrap(clerr.KindCanceled, "request abandoned", err)
	}
	if !res.OK {
		return nil, res.Err
	}
	return res.Data, nil
}

func (s *Server) engineFor(st *store.Store) *analytics.Engine {
	return analytics.New(st.DB(), s.loc)
}

func (s *Server) handleActivity(w http.ResponseWriter, r *http.Request) {
	corpusID := chi.URLParam(r, "corpusID")
	f := timeFilterFromQuery(r)
	data, err := s.runAnalyticsJob(r, "activity", func(ctx context.Context, st *store.Store) (interface{}, error) {
		return s.engineFor(st).Activity(ctx, corpusID, f)
	})
	if err != nil {
		writeKindError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, data)
}

func (s *Server) handleNameHistory(w http.ResponseWriter, r *http.Request) {
	corpusID := chi.URLParam(r, "corpusID")
	memberID, err := strconv.ParseInt(chi.URLParam(r, "memberID"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "invalid member id")
		return
	}
	data, err := s.runAnalyticsJob(r, "name_history", func(ctx context.Context, st *store.Store) (interface{}, error) {
		return s.engineFor(st).NameHistory(ctx, corpusID, memberID)
	})
	if err != nil {
		writeKindError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, data)
}

func (s *Server) handleDragonKing(w http.ResponseWriter, r *http.Request) {
	corpusID := chi.URLParam(r, "corpusID")
	f := timeFilterFromQuery(r)
	data, err := s.runAnalyticsJob(r, "dragon_king", func(ctx context.Context, st *store.Store) (interface{}, error) {
		return s.engineFor(st).DragonKing(ctx, corpusID, f)
	})
	if err != nil {
		writeKindError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, data)
}

func (s *Server) handleStreaks(w http.ResponseWriter, r *http.Request) {
	corpusID := chi.URLParam(r, "corpusID")
	f := timeFilterFromQuery(r)
	opts := analytics.StreakOptions{
		MinRun:  queryInt(r, "minRun", s.cfg.Analytics.StreakMinRun),
		IdleGap: int64(queryInt(r, "idleGap", s.cfg.Analytics.StreakIdleGap)),
	}
	data, err := s.runAnalyticsJob(r, "streaks", func(ctx context.Context, st *store.Store) (interface{}, error) {
		return s.engineFor(st).MonologueStreaks(ctx, corpusID, f, opts)
	})
	if err != nil {
		writeKindError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, data)
}

func (s *Server) handleRepeatChains(w http.ResponseWriter, r *http.Request) {
	corpusID := chi.URLParam(r, "corpusID")
	f := timeFilterFromQuery(r)
	opts := analytics.ChainOptions{
		IdleGap: int64(queryInt(r, "idleGap", s.cfg.Analytics.ChainIdleGap)),
	}
	data, err := s.runAnalyticsJob(r, "repeat_chains", func(ctx context.Context, st *store.Store) (interface{}, error) {
		return s.engineFor(st).RepeatChains(ctx, corpusID, f, opts)
	})
	if err != nil {
		writeKindError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, data)
}

func (s *Server) handleCatchphrases(w http.ResponseWriter, r *http.Request) {
	corpusID := chi.URLParam(r, "corpusID")
	f := timeFilterFromQuery(r)
	opts := analytics.CatchphraseOptions{
		TopK:   queryInt(r, "topK", s.cfg.Analytics.CatchphraseTopK),
		MinLen: queryInt(r, "minLen", 0),
		MaxLen: queryInt(r, "maxLen", 0),
	}
	data, err := s.runAnalyticsJob(r, "catchphrases", func(ctx context.Context, st *store.Store) (interface{}, error) {
		return s.engineFor(st).Catchphrases(ctx, corpusID, f, opts)
	})
	if err != nil {
		writeKindError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, data)
}

func (s *Server) handleSessionBursts(w http.ResponseWriter, r *http.Request) {
	corpusID := chi.URLParam(r, "corpusID")
	f := timeFilterFromQuery(r)
	idleGap := int64(queryInt(r, "idleGap", s.cfg.Analytics.SessionIdleGap))
	data, err := s.runAnalyticsJob(r, "sessions", func(ctx context.Context, st *store.Store) (interface{}, error) {
		return s.engineFor(st).Sessions(ctx, corpusID, f, idleGap)
	})
	if err != nil {
		writeKindError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, data)
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.st.GetStats()
	if err != nil {
		s.logger.Error("get stats", "error", err)
		writeKindError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int64{
		"corpusCount":   stats.CorpusCount,
		"memberCount":   stats.MemberCount,
		"messageCount":  stats.MessageCount,
		"databaseBytes": stats.DatabaseSize,
	})
}

func (s *Server) handlePendingMigrations(w http.ResponseWriter, r *http.Request) {
	pending, err := s.st.PendingMigrations()
	if err != nil {
		writeKindError(w, err)
		return
	}
	if pending == nil {
		pending = []store.MigrationInfo{}
	}
	writeJSON(w, http.StatusOK, pending)
}
