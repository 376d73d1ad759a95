package mockvalidator

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"

	"github.com/shpitdev/email-finder/pkg/validationapi"
)

// Call records a request made to the mock service.
type Call struct {
	Method string
	Path   string
}

// Server implements a minimal asynchronous verification API: submit returns a job id,
// and the job completes after a configurable number of status polls.
type Server struct {
	mu    sync.Mutex
	calls []Call

	keyHeader   string
	expectedKey string

	verdicts       map[string]string
	defaultVerdict string
	pendingPolls   int

	// submitFailures holds status codes returned by the next submits, in order.
	submitFailures []int
	submissions    map[string]int

	nextJob int
	jobs    map[string]*job
}

type job struct {
	email   string
	verdict string
	polls   int
}

// New constructs a mock server. Addresses without an explicit verdict get "invalid",
// and jobs complete on their first poll.
func New() *Server {
	return &Server{
		keyHeader:      validationapi.DefaultAPIKeyHeader,
		verdicts:       make(map[string]string),
		defaultVerdict: validationapi.VerdictInvalid,
		submissions:    make(map[string]int),
		nextJob:        1,
		jobs:           make(map[string]*job),
	}
}

// RequireAPIKey enforces that requests carry key in header. An empty key disables the check.
func (s *Server) RequireAPIKey(header, key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if strings.TrimSpace(header) != "" {
		s.keyHeader = strings.TrimSpace(header)
	}
	s.expectedKey = strings.TrimSpace(key)
}

// SetVerdict fixes the verdict reported for email.
func (s *Server) SetVerdict(email, verdict string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.verdicts[normalize(email)] = verdict
}

// SetDefaultVerdict sets the verdict for addresses without an explicit one.
func (s *Server) SetDefaultVerdict(verdict string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.defaultVerdict = verdict
}

// SetPendingPolls makes each job report "processing" for the first n polls.
func (s *Server) SetPendingPolls(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pendingPolls = n
}

// FailSubmits makes the next submits fail with the given status codes, in order.
func (s *Server) FailSubmits(codes ...int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.submitFailures = append(s.submitFailures, codes...)
}

// Calls returns a snapshot of calls made to the server.
func (s *Server) Calls() []Call {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Call, len(s.calls))
	copy(out, s.calls)
	return out
}

// Submissions returns how many jobs were created for email.
func (s *Server) Submissions(email string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.submissions[normalize(email)]
}

// Handler returns an http.Handler that serves the mock API.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /v1/verifications", s.handleSubmit)
	mux.HandleFunc("GET /v1/verifications/{id}", s.handleStatus)
	return mux
}

func (s *Server) recordCall(r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, Call{Method: r.Method, Path: r.URL.Path})
}

func (s *Server) authorize(w http.ResponseWriter, r *http.Request) bool {
	s.mu.Lock()
	header, expected := s.keyHeader, s.expectedKey
	s.mu.Unlock()

	if expected == "" || r.Header.Get(header) == expected {
		return true
	}
	writeError(w, http.StatusUnauthorized, "unauthorized", "missing or invalid api key")
	return false
}

func (s *Server) handleSubmit(w http.ResponseWriter, r *http.Request) {
	s.recordCall(r)
	if !s.authorize(w, r) {
		return
	}

	var req struct {
		Email string `json:"email"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || strings.TrimSpace(req.Email) == "" {
		writeError(w, http.StatusBadRequest, "bad_request", "body must be {\"email\": ...}")
		return
	}
	email := normalize(req.Email)

	s.mu.Lock()
	if len(s.submitFailures) > 0 {
		code := s.submitFailures[0]
		s.submitFailures = s.submitFailures[1:]
		s.mu.Unlock()
		writeError(w, code, "unavailable", "injected failure")
		return
	}
	verdict, ok := s.verdicts[email]
	if !ok {
		verdict = s.defaultVerdict
	}
	id := fmt.Sprintf("job-%d", s.nextJob)
	s.nextJob++
	s.jobs[id] = &job{email: email, verdict: verdict}
	s.submissions[email]++
	s.mu.Unlock()

	writeJSON(w, http.StatusAccepted, validationapi.Job{ID: id, Status: validationapi.StatusQueued})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	s.recordCall(r)
	if !s.authorize(w, r) {
		return
	}
	id := r.PathValue("id")

	s.mu.Lock()
	j, ok := s.jobs[id]
	if !ok {
		s.mu.Unlock()
		writeError(w, http.StatusNotFound, "not_found", "unknown job")
		return
	}
	j.polls++
	out := validationapi.JobResult{ID: id, Email: j.email, Status: validationapi.StatusProcessing}
	if j.polls > s.pendingPolls {
		out.Status = validationapi.StatusCompleted
		out.Result = j.verdict
	}
	s.mu.Unlock()

	writeJSON(w, http.StatusOK, out)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, msg string) {
	writeJSON(w, status, map[string]string{"code": code, "error": msg})
}

func normalize(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
