// Package debugserver exposes the shared chat state and the Go profiler over
// HTTP. It is meant for a loopback address; nothing is authenticated.
package debugserver

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	netpprof "net/http/pprof"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/julienschmidt/httprouter"

	"github.com/codefionn/shmchat/internal/logger"
	"github.com/codefionn/shmchat/internal/session"
	"github.com/codefionn/shmchat/internal/shmstate"
)

// Source supplies the status served by the endpoints. *session.Session
// implements it.
type Source interface {
	Status() (session.Status, error)
}

// Server serves the debug endpoints.
type Server struct {
	addr   string
	src    Source
	router *httprouter.Router
	log    *logger.Logger

	mu       sync.Mutex
	server   *http.Server
	listener net.Listener
}

// New creates a debug server for src listening on addr.
func New(addr string, src Source) *Server {
	s := &Server{
		addr:   addr,
		src:    src,
		router: httprouter.New(),
		log:    logger.Global().WithPrefix("debug"),
	}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.router.GET("/health", s.handleHealth)
	s.router.GET("/debug/state", s.handleState)
	s.router.GET("/debug/semaphores", s.handleSemaphores)
	s.router.GET("/debug/dialogs/:id", s.handleDialog)
	s.router.GET("/debug/pprof/*item", s.handlePprof)
}

// Handler returns the router, for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start binds the listener and serves in the background.
func (s *Server) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.server != nil {
		return errors.New("debug server already started")
	}

	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("failed to bind debug HTTP server: %w", err)
	}
	s.listener = ln
	s.server = &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: 5 * time.Second,
		ErrorLog:          logger.NewStdLogger(s.log, slog.LevelError),
	}

	srv := s.server
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log.Error("debug server error: %v", err)
		}
	}()
	s.log.Info("debug server listening on %s", ln.Addr())
	return nil
}

// Addr returns the bound address, or the configured one before Start.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return s.addr
}

// Stop shuts the server down, waiting briefly for in-flight requests.
func (s *Server) Stop() error {
	s.mu.Lock()
	srv := s.server
	s.server = nil
	s.listener = nil
	s.mu.Unlock()

	if srv == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		return fmt.Errorf("failed to shutdown debug server: %w", err)
	}
	return nil
}

// Run starts the server and stops it when ctx ends.
func (s *Server) Run(ctx context.Context) error {
	if err := s.Start(); err != nil {
		return err
	}
	<-ctx.Done()
	return s.Stop()
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request, _ httprouter.Params) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	fmt.Fprintln(w, "ok")
}

func (s *Server) handleState(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	st, ok := s.status(w)
	if !ok {
		return
	}
	s.write(w, r, st)
}

func (s *Server) handleSemaphores(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	st, ok := s.status(w)
	if !ok {
		return
	}
	s.write(w, r, st.Semaphores)
}

func (s *Server) handleDialog(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	id, err := strconv.ParseInt(ps.ByName("id"), 10, 32)
	if err != nil {
		http.Error(w, "invalid dialog id", http.StatusBadRequest)
		return
	}
	st, ok := s.status(w)
	if !ok {
		return
	}

	type dialogStatus struct {
		Dialog   shmstate.DialogView    `json:"dialog" msgpack:"dialog"`
		Messages []shmstate.MessageView `json:"messages" msgpack:"messages"`
	}
	for _, d := range st.State.Dialogs {
		if d.ID != int32(id) {
			continue
		}
		out := dialogStatus{Dialog: d}
		for _, m := range st.State.Messages {
			if m.DialogID == d.ID {
				out.Messages = append(out.Messages, m)
			}
		}
		s.write(w, r, out)
		return
	}
	http.Error(w, fmt.Sprintf("dialog %d not found", id), http.StatusNotFound)
}

func (s *Server) handlePprof(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	switch strings.TrimPrefix(ps.ByName("item"), "/") {
	case "cmdline":
		netpprof.Cmdline(w, r)
	case "profile":
		netpprof.Profile(w, r)
	case "symbol":
		netpprof.Symbol(w, r)
	case "trace":
		netpprof.Trace(w, r)
	default:
		// Index also serves named profiles such as heap and goroutine
		netpprof.Index(w, r)
	}
}

func (s *Server) status(w http.ResponseWriter) (session.Status, bool) {
	st, err := s.src.Status()
	if err != nil {
		s.log.Warn("status failed: %v", err)
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return session.Status{}, false
	}
	return st, true
}

// write picks msgpack when asked for through ?format= or the Accept header.
func (s *Server) write(w http.ResponseWriter, r *http.Request, v any) {
	format, err := ParseFormat(r.URL.Query().Get("format"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if r.URL.Query().Get("format") == "" && strings.Contains(r.Header.Get("Accept"), "msgpack") {
		format = FormatMsgpack
	}

	w.Header().Set("Content-Type", ContentType(format))
	if err := Encode(w, format, v); err != nil {
		s.log.Warn("encode %s: %v", format, err)
	}
}
