package api

import (
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"
	"time"

	"github.com/openagreements/redline/core/compare"
	"github.com/openagreements/redline/core/docx"
	"github.com/openagreements/redline/core/errors"
	"github.com/openagreements/redline/internal/journal"
	"github.com/openagreements/redline/internal/logging"
)

// errorResponse is the JSON error envelope.
type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, format string, args ...any) {
	writeJSON(w, status, errorResponse{Error: fmt.Sprintf(format, args...)})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"journal": s.journal != nil,
		"clients": s.hub.ClientCount(),
	})
}

// compareRequest is one parsed multipart comparison request.
type compareRequest struct {
	original []byte
	revised  []byte
	opts     compare.Options
}

// parseCompareRequest reads the multipart form: two required file fields,
// "original" and "revised", plus optional option fields.
func (s *Server) parseCompareRequest(r *http.Request) (*compareRequest, error) {
	if err := r.ParseMultipartForm(2 * s.cfg.MaxUploadBytes); err != nil {
		return nil, fmt.Errorf("parse multipart form: %w", err)
	}
	original, err := s.formFile(r, "original")
	if err != nil {
		return nil, err
	}
	revised, err := s.formFile(r, "revised")
	if err != nil {
		return nil, err
	}

	req := &compareRequest{original: original, revised: revised}
	req.opts.Author = r.FormValue("author")
	req.opts.Mode = compare.Mode(r.FormValue("mode"))
	req.opts.Engine = compare.Engine(r.FormValue("engine"))
	req.opts.IgnoreFormatting = r.FormValue("ignore_formatting") == "true"
	req.opts.MergeAdjacentRuns = r.FormValue("merge_adjacent_runs") != "false"
	if v := r.FormValue("move_min_words"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			req.opts.MoveMinWords = n
		}
	}
	if v := r.FormValue("move_similarity"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			req.opts.MoveSimilarity = f
		}
	}
	return req, nil
}

func (s *Server) formFile(r *http.Request, field string) ([]byte, error) {
	f, hdr, err := r.FormFile(field)
	if err != nil {
		return nil, fmt.Errorf("missing file field %q", field)
	}
	defer f.Close()
	if hdr.Size > s.cfg.MaxUploadBytes {
		return nil, fmt.Errorf("file %q exceeds upload limit", field)
	}
	return readAllLimited(f, s.cfg.MaxUploadBytes)
}

func readAllLimited(f multipart.File, limit int64) ([]byte, error) {
	data, err := io.ReadAll(io.LimitReader(f, limit+1))
	if err != nil {
		return nil, fmt.Errorf("read upload: %w", err)
	}
	if int64(len(data)) > limit {
		return nil, fmt.Errorf("upload exceeds limit")
	}
	return data, nil
}

// runCompare executes one comparison from raw package bytes.
func runCompare(req *compareRequest) (*compare.Result, error) {
	original, err := docx.ReadBytes(req.original)
	if err != nil {
		return nil, fmt.Errorf("original: %w", err)
	}
	revised, err := docx.ReadBytes(req.revised)
	if err != nil {
		return nil, fmt.Errorf("revised: %w", err)
	}
	return compare.Compare(original, revised, req.opts)
}

// handleCompare runs a synchronous comparison. The response is the result
// package, or a JSON report when format=json is requested.
func (s *Server) handleCompare(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	req, err := s.parseCompareRequest(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "%v", err)
		return
	}

	start := time.Now()
	res, err := runCompare(req)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.IsValidation(err) || errors.IsParse(err) {
			status = http.StatusBadRequest
		}
		writeError(w, status, "%v", err)
		return
	}
	s.recordRun(r, req, res, time.Since(start))

	if r.FormValue("format") == "json" {
		writeJSON(w, http.StatusOK, map[string]any{
			"stats":           res.Stats,
			"engine":          res.Engine,
			"mode_requested":  res.ModeRequested,
			"mode_used":       res.ModeUsed,
			"fallback_reason": res.FallbackReason,
			"diagnostics":     res.Diagnostics,
		})
		return
	}

	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.wordprocessingml.document")
	w.Header().Set("Content-Disposition", `attachment; filename="redline.docx"`)
	w.Header().Set("X-Redline-Insertions", strconv.Itoa(res.Stats.Insertions))
	w.Header().Set("X-Redline-Deletions", strconv.Itoa(res.Stats.Deletions))
	w.Header().Set("X-Redline-Moves", strconv.Itoa(res.Stats.Moves))
	w.Header().Set("X-Redline-Format-Changes", strconv.Itoa(res.Stats.FormatChanges))
	w.Header().Set("X-Redline-Mode-Used", string(res.ModeUsed))
	w.WriteHeader(http.StatusOK)
	w.Write(res.Output)
}

func (s *Server) recordRun(r *http.Request, req *compareRequest, res *compare.Result, elapsed time.Duration) {
	if s.journal == nil {
		return
	}
	run := &journal.Run{
		OriginalPath:   "upload:original",
		RevisedPath:    "upload:revised",
		Engine:         string(res.Engine),
		ModeRequested:  string(res.ModeRequested),
		ModeUsed:       string(res.ModeUsed),
		FallbackReason: res.FallbackReason,
		Insertions:     res.Stats.Insertions,
		Deletions:      res.Stats.Deletions,
		Moves:          res.Stats.Moves,
		FormatChanges:  res.Stats.FormatChanges,
		DurationMS:     elapsed.Milliseconds(),
	}
	if err := s.journal.Record(r.Context(), run); err != nil {
		logging.ErrorContext(r.Context(), "journal record failed", "error", err)
	}
}
