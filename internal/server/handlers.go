package server

import (
	"encoding/json"
	"errors"
	"io"
	"mime"
	"net/http"
	"strconv"

	"github.com/go-kit/log/level"
	"github.com/gorilla/mux"

	"github.com/rcliao/movemate/internal/model"
	"github.com/rcliao/movemate/internal/scanner"
	"github.com/rcliao/movemate/internal/store"
)

// ItemsResponse is the body of GET /api/items.
type ItemsResponse struct {
	Items    []model.PackingItem `json:"items"`
	Count    int                 `json:"count"`
	Revision uint64              `json:"revision"`
}

// FrameResponse is the body of POST /api/frames.
type FrameResponse struct {
	scanner.Report
	Error string `json:"error,omitempty"`
}

// StatsResponse is the body of GET /api/stats.
type StatsResponse struct {
	Scanner scanner.Stats  `json:"scanner"`
	Status  scanner.Status `json:"status"`
	Items   int            `json:"items"`
	Log     *store.Stats   `json:"log,omitempty"`
}

// ScanningRequest is the body of POST /api/scanning.
type ScanningRequest struct {
	Active *bool `json:"active"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, map[string]string{"status": "ok"}, http.StatusOK)
}

func (s *Server) handleFrame(w http.ResponseWriter, r *http.Request) {
	frame, err := readFrame(w, r)
	if err != nil {
		respondError(w, err.Error(), http.StatusBadRequest)
		return
	}

	rep, err := s.scanner.Offer(r.Context(), frame)
	if err != nil {
		respondError(w, "request canceled", http.StatusServiceUnavailable)
		return
	}
	resp := FrameResponse{Report: rep}
	if rep.Err != nil {
		resp.Error = rep.Err.Error()
	}
	respondJSON(w, resp, http.StatusOK)
}

// readFrame returns the uploaded image from a multipart "file" field or
// from a raw request body.
func readFrame(w http.ResponseWriter, r *http.Request) ([]byte, error) {
	r.Body = http.MaxBytesReader(w, r.Body, maxFrameBytes)

	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType == "multipart/form-data" {
		if err := r.ParseMultipartForm(maxFrameBytes); err != nil {
			return nil, errors.New("failed to parse form")
		}
		file, _, err := r.FormFile("file")
		if err != nil {
			return nil, errors.New("no file uploaded")
		}
		defer file.Close()
		data, err := io.ReadAll(file)
		if err != nil {
			return nil, errors.New("failed to read file")
		}
		if len(data) == 0 {
			return nil, errors.New("empty file")
		}
		return data, nil
	}

	data, err := io.ReadAll(r.Body)
	if err != nil {
		return nil, errors.New("failed to read body")
	}
	if len(data) == 0 {
		return nil, errors.New("no image in request")
	}
	return data, nil
}

func (s *Server) handleListItems(w http.ResponseWriter, r *http.Request) {
	items, rev := s.scanner.Snapshot()
	if items == nil {
		items = []model.PackingItem{}
	}
	respondJSON(w, ItemsResponse{Items: items, Count: len(items), Revision: rev}, http.StatusOK)
}

func (s *Server) handleDeleteItem(w http.ResponseWriter, r *http.Request) {
	s.scanner.Delete(mux.Vars(r)["id"])
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleClearItems(w http.ResponseWriter, r *http.Request) {
	if r.URL.Query().Get("confirm") != "true" {
		respondError(w, "clearing the list requires confirm=true", http.StatusBadRequest)
		return
	}
	s.scanner.Clear()
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleGetScanning(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, s.scanner.Status(), http.StatusOK)
}

func (s *Server) handleSetScanning(w http.ResponseWriter, r *http.Request) {
	var req ScanningRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Active == nil {
		respondError(w, `body must be {"active": true|false}`, http.StatusBadRequest)
		return
	}
	s.scanner.SetScanning(*req.Active)
	respondJSON(w, s.scanner.Status(), http.StatusOK)
}

func (s *Server) handleNotice(w http.ResponseWriter, r *http.Request) {
	n, ok := s.scanner.Notice()
	if !ok {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	respondJSON(w, n, http.StatusOK)
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	resp := StatsResponse{
		Scanner: s.scanner.Stats(),
		Status:  s.scanner.Status(),
		Items:   len(s.scanner.Items()),
	}
	if s.log != nil {
		st, err := s.log.Stats(r.Context())
		if err != nil {
			level.Error(s.logger).Log("msg", "log stats failed", "err", err)
			respondError(w, "failed to read scan log", http.StatusInternalServerError)
			return
		}
		resp.Log = st
	}
	respondJSON(w, resp, http.StatusOK)
}

func (s *Server) handleRounds(w http.ResponseWriter, r *http.Request) {
	if s.log == nil {
		respondError(w, "scan log disabled", http.StatusNotFound)
		return
	}

	p := store.ListParams{Limit: 20, WithDetections: true}
	q := r.URL.Query()
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			respondError(w, "limit must be a positive integer", http.StatusBadRequest)
			return
		}
		p.Limit = n
	}
	p.FailedOnly = q.Get("failed") == "true"

	rounds, err := s.log.ListRounds(r.Context(), p)
	if err != nil {
		level.Error(s.logger).Log("msg", "list rounds failed", "err", err)
		respondError(w, "failed to read scan log", http.StatusInternalServerError)
		return
	}
	if rounds == nil {
		rounds = []model.Round{}
	}
	respondJSON(w, rounds, http.StatusOK)
}

func respondJSON(w http.ResponseWriter, data any, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, message string, status int) {
	respondJSON(w, map[string]string{"error": message}, status)
}
