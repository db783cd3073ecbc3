// Package backendtest provides a scriptable mock backend for adapter tests.
// It can answer with plain JSON, Server-Sent-Event frames, or line-delimited
// JSON objects, covering all three wire formats the adapters speak.
package backendtest

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
)

// Response defines a scripted response for one path.
type Response struct {
	// StatusCode defaults to 200.
	StatusCode int

	// Body is marshalled as JSON when non-nil.
	Body interface{}

	// SSEChunks, when set, is written as "data: <chunk>" SSE frames
	// followed by a [DONE] frame.
	SSEChunks []string

	// JSONLines, when set, is written as newline-delimited raw lines.
	JSONLines []string

	// Headers are added to the response.
	Headers map[string]string
}

// Server is a scriptable mock backend.
type Server struct {
	server    *httptest.Server
	mu        sync.Mutex
	responses map[string]Response
	requests  int
}

// New starts a mock backend.
func New() *Server {
	s := &Server{responses: make(map[string]Response)}
	s.server = httptest.NewServer(http.HandlerFunc(s.handler))
	return s
}

// URL returns the backend's base URL.
func (s *Server) URL() string {
	return s.server.URL
}

// Close shuts the backend down.
func (s *Server) Close() {
	s.server.Close()
}

// Set scripts the response for a path.
func (s *Server) Set(path string, resp Response) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.responses[path] = resp
}

// Requests returns how many requests the backend has received.
func (s *Server) Requests() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.requests
}

func (s *Server) handler(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	s.requests++
	resp, ok := s.responses[r.URL.Path]
	s.mu.Unlock()

	if !ok {
		http.NotFound(w, r)
		return
	}

	for key, value := range resp.Headers {
		w.Header().Set(key, value)
	}

	status := resp.StatusCode
	if status == 0 {
		status = http.StatusOK
	}

	switch {
	case resp.SSEChunks != nil:
		w.Header().Set("Content-Type", "text/event-stream")
		w.WriteHeader(status)
		flusher, _ := w.(http.Flusher)
		for _, chunk := range resp.SSEChunks {
			_, _ = w.Write([]byte("data: " + chunk + "\n\n"))
			if flusher != nil {
				flusher.Flush()
			}
		}
		_, _ = w.Write([]byte("data: [DONE]\n\n"))

	case resp.JSONLines != nil:
		w.Header().Set("Content-Type", "application/x-ndjson")
		w.WriteHeader(status)
		flusher, _ := w.(http.Flusher)
		for _, line := range resp.JSONLines {
			_, _ = w.Write([]byte(line + "\n"))
			if flusher != nil {
				flusher.Flush()
			}
		}

	default:
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		if resp.Body != nil {
			_ = json.NewEncoder(w).Encode(resp.Body)
		}
	}
}
