// Package web provides the HTTP/JSON relay API and status page.
package web

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"

	"github.com/sweeney/relayd/internal/relay"
	"github.com/sweeney/relayd/internal/status"
)

// maxBodyBytes bounds command request bodies.
const maxBodyBytes = 1 << 16

// Relays is the relay control surface served over HTTP.
type Relays interface {
	Pins() []int
	Control(pin int, state string) (relay.Result, error)
	AllOn() error
	AllOff() error
}

// Server serves the relay API over HTTP.
type Server struct {
	httpServer *http.Server
	relays     Relays
	tracker    *status.Tracker
}

// New creates a Server driving relays and reporting from tracker.
func New(addr string, relays Relays, tracker *status.Tracker) *Server {
	s := &Server{relays: relays, tracker: tracker}

	mux := http.NewServeMux()
	mux.HandleFunc("/", s.handleRoot)
	mux.HandleFunc("/relay", s.handleRelay)
	mux.HandleFunc("/relay/all_on", s.handleAllOn)
	mux.HandleFunc("/relay/all_off", s.handleAllOff)
	mux.HandleFunc("/status", s.handleStatusPage)
	mux.HandleFunc("/status.json", s.handleStatusJSON)

	s.httpServer = &http.Server{
		Addr:    addr,
		Handler: mux,
	}
	return s
}

// Handler returns the request router.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// ListenAndServe starts listening. It blocks until the server is shut down.
func (s *Server) ListenAndServe() error {
	return s.httpServer.ListenAndServe()
}

// Serve accepts connections on the given listener. Useful for tests.
func (s *Server) Serve(ln net.Listener) error {
	return s.httpServer.Serve(ln)
}

// Shutdown gracefully shuts down the server, waiting for in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		writeJSON(w, http.StatusNotFound, ErrorJSON{Error: "not found"})
		return
	}
	if !allowMethod(w, r, http.MethodGet) {
		return
	}
	writeJSON(w, http.StatusOK, RootJSON{Message: rootMessage, Pins: s.relays.Pins()})
}

func (s *Server) handleRelay(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodPost) {
		return
	}

	cmd, err := decodeCommand(r.Body, maxBodyBytes)
	if err != nil {
		writeJSON(w, http.StatusUnprocessableEntity, ErrorJSON{Error: err.Error()})
		return
	}

	res, err := s.relays.Control(cmd.GPIO, cmd.State)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, RelayJSON{GPIO: res.Pin, State: string(res.State)})
}

func (s *Server) handleAllOn(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodPost) {
		return
	}
	if err := s.relays.AllOn(); err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, MessageJSON{Message: allOnMessage})
}

func (s *Server) handleAllOff(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodPost) {
		return
	}
	if err := s.relays.AllOff(); err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, MessageJSON{Message: allOffMessage})
}

func (s *Server) handleStatusPage(w http.ResponseWriter, r *http.Request) {
	snap := s.tracker.Snapshot()
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	renderHTML(w, snap)
}

func (s *Server) handleStatusJSON(w http.ResponseWriter, r *http.Request) {
	snap := s.tracker.Snapshot()
	w.Header().Set("Content-Type", "application/json")
	w.Write(status.FormatJSON(snap))
}

// writeError maps controller errors to a status code. The body is always
// {"error": "..."}.
func (s *Server) writeError(w http.ResponseWriter, err error) {
	s.tracker.RecordError()

	var verr *relay.ValidationError
	switch {
	case errors.As(err, &verr):
		writeJSON(w, http.StatusBadRequest, ErrorJSON{Error: verr.Message})
	case errors.Is(err, relay.ErrShutdown):
		writeJSON(w, http.StatusServiceUnavailable, ErrorJSON{Error: err.Error()})
	default:
		log.Printf("web: relay command failed: %v", err)
		writeJSON(w, http.StatusInternalServerError, ErrorJSON{Error: err.Error()})
	}
}

func allowMethod(w http.ResponseWriter, r *http.Request, method string) bool {
	if r.Method == method {
		return true
	}
	w.Header().Set("Allow", method)
	writeJSON(w, http.StatusMethodNotAllowed, ErrorJSON{Error: fmt.Sprintf("method %s not allowed", r.Method)})
	return false
}

func writeJSON(w http.ResponseWriter, code int, v interface{}) {
	data, err := json.Marshal(v)
	if err != nil {
		log.Printf("web: encode response: %v", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	w.Write(data)
}
