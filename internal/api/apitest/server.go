// Package apitest provides an in-memory NG12 backend for tests.
package apitest

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sort"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/strrl/ng12-assist/pkg/models"
)

// Reply is the canned answer returned for POST /api/chat
type Reply struct {
	Answer    string
	Citations []models.Citation
}

// Server is a fake backend that stores transcripts in memory
type Server struct {
	*httptest.Server

	mu          sync.Mutex
	transcripts map[string][]string
	lastActive  map[string]time.Time
	reply       Reply
	assessments map[string]models.Assessment
	failures    map[string]int
	calls       map[string]int
}

// NewServer starts a fake backend. Close it with t.Cleanup(srv.Close).
func NewServer() *Server {
	s := &Server{
		transcripts: make(map[string][]string),
		lastActive:  make(map[string]time.Time),
		assessments: make(map[string]models.Assessment),
		failures:    make(map[string]int),
		calls:       make(map[string]int),
		reply:       Reply{Answer: "ok"},
	}

	r := chi.NewRouter()
	r.Get("/api/chat/{sessionID}/history", s.handleHistory)
	r.Post("/api/chat", s.handleChat)
	r.Delete("/api/chat/{sessionID}", s.handleClear)
	r.Get("/api/sessions", s.handleSessions)
	r.Post("/api/assess", s.handleAssess)

	s.Server = httptest.NewServer(r)
	return s
}

// SetTranscript stores history lines for a session
func (s *Server) SetTranscript(sessionID string, lines []string, lastActive time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.transcripts[sessionID] = append([]string(nil), lines...)
	s.lastActive[sessionID] = lastActive
}

// Transcript returns the stored history lines for a session
func (s *Server) Transcript(sessionID string) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.transcripts[sessionID]...)
}

// SetReply sets the answer returned by POST /api/chat
func (s *Server) SetReply(r Reply) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reply = r
}

// SetAssessment registers the result for a patient id; unknown ids get 404
func (s *Server) SetAssessment(patientID string, a models.Assessment) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.assessments[patientID] = a
}

// FailNext makes the next n requests to the named route fail with 500.
// Routes are "history", "chat", "clear", "sessions" and "assess".
func (s *Server) FailNext(route string, n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures[route] = n
}

// Calls returns how many requests hit the named route
func (s *Server) Calls(route string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[route]
}

// hit records a call and reports whether it should fail
func (s *Server) hit(route string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls[route]++
	if s.failures[route] > 0 {
		s.failures[route]--
		return true
	}
	return false
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	if s.hit("history") {
		writeError(w, http.StatusInternalServerError, "history unavailable")
		return
	}
	id := chi.URLParam(r, "sessionID")

	s.mu.Lock()
	lines := append([]string{}, s.transcripts[id]...)
	s.mu.Unlock()

	writeJSON(w, http.StatusOK, map[string]any{"history": lines})
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	if s.hit("chat") {
		writeError(w, http.StatusInternalServerError, "model unavailable")
		return
	}

	var req struct {
		SessionID string `json:"session_id"`
		Message   string `json:"message"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.SessionID == "" {
		writeError(w, http.StatusUnprocessableEntity, "invalid request")
		return
	}

	s.mu.Lock()
	reply := s.reply
	s.transcripts[req.SessionID] = append(s.transcripts[req.SessionID], "User: "+req.Message, "Agent: "+reply.Answer)
	s.lastActive[req.SessionID] = time.Now().UTC()
	s.mu.Unlock()

	citations := reply.Citations
	if citations == nil {
		citations = []models.Citation{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"session_id": req.SessionID,
		"answer":     reply.Answer,
		"citations":  citations,
	})
}

func (s *Server) handleClear(w http.ResponseWriter, r *http.Request) {
	if s.hit("clear") {
		writeError(w, http.StatusInternalServerError, "clear failed")
		return
	}
	id := chi.URLParam(r, "sessionID")

	s.mu.Lock()
	delete(s.transcripts, id)
	s.mu.Unlock()

	writeJSON(w, http.StatusOK, map[string]string{"status": "cleared"})
}

func (s *Server) handleSessions(w http.ResponseWriter, r *http.Request) {
	if s.hit("sessions") {
		writeError(w, http.StatusInternalServerError, "sessions unavailable")
		return
	}

	type entry struct {
		SessionID  string `json:"session_id"`
		LastActive string `json:"last_active"`
	}

	s.mu.Lock()
	entries := make([]entry, 0, len(s.lastActive))
	for id, ts := range s.lastActive {
		entries = append(entries, entry{SessionID: id, LastActive: ts.UTC().Format("2006-01-02T15:04:05")})
	}
	s.mu.Unlock()

	sort.Slice(entries, func(i, j int) bool { return entries[i].LastActive > entries[j].LastActive })
	writeJSON(w, http.StatusOK, map[string]any{"sessions": entries})
}

func (s *Server) handleAssess(w http.ResponseWriter, r *http.Request) {
	if s.hit("assess") {
		writeError(w, http.StatusInternalServerError, "assessment engine unavailable")
		return
	}

	var req struct {
		PatientID string `json:"patient_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusUnprocessableEntity, "invalid request")
		return
	}

	s.mu.Lock()
	a, ok := s.assessments[req.PatientID]
	s.mu.Unlock()
	if !ok {
		writeError(w, http.StatusNotFound, "Patient "+req.PatientID+" not found")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"assessment": a.Label,
		"reasoning":  a.Reasoning,
		"citations":  a.Citations,
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, detail string) {
	writeJSON(w, status, map[string]string{"detail": detail})
}
