// Package api exposes the daemon over HTTP on the loopback interface: the
// action protocol for UI surfaces and the bridge endpoints for the
// browser-side helper.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/eliteGoblin/focusd/web_mon/internal/bus"
	"github.com/eliteGoblin/focusd/web_mon/internal/domain"
	"github.com/eliteGoblin/focusd/web_mon/internal/infra"
)

// NavigationDecider decides whether a reported navigation is blocked and
// where to send it instead. Implemented by the daemon monitor.
type NavigationDecider interface {
	Decide(ctx context.Context, tabID int, rawURL string) (blocked bool, redirectURL string, err error)
}

// navRequest is one navigation event reported by the browser helper.
type navRequest struct {
	TabID int    `json:"tabId"`
	URL   string `json:"url"`
}

type tabsRequest struct {
	Tabs []domain.Tab `json:"tabs"`
}

// Server is the HTTP control surface.
type Server struct {
	router  *mux.Router
	handler *bus.Handler
	bridge  *infra.BrowserBridge
	decider NavigationDecider
	logger  *zap.Logger
}

// NewServer wires the routes.
func NewServer(handler *bus.Handler, bridge *infra.BrowserBridge, decider NavigationDecider, logger *zap.Logger) *Server {
	s := &Server{
		router:  mux.NewRouter(),
		handler: handler,
		bridge:  bridge,
		decider: decider,
		logger:  logger,
	}

	s.router.Use(s.logRequests)
	s.router.HandleFunc("/v1/actions", s.handleAction).Methods(http.MethodPost)
	s.router.HandleFunc("/v1/nav", s.handleNav).Methods(http.MethodPost)
	s.router.HandleFunc("/v1/tabs", s.handleTabs).Methods(http.MethodPut)
	s.router.HandleFunc("/v1/commands", s.handleCommands).Methods(http.MethodGet)
	s.router.HandleFunc("/blocked", s.handleBlockPage).Methods(http.MethodGet)
	s.router.HandleFunc("/healthz", s.handleHealth).Methods(http.MethodGet)
	return s
}

// Router returns the HTTP handler (for tests).
func (s *Server) Router() http.Handler {
	return s.router
}

// Run serves until ctx is canceled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	s.logger.Info("api server listening", zap.String("addr", addr))

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		return ctx.Err()
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

func (s *Server) handleAction(w http.ResponseWriter, r *http.Request) {
	var req bus.Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusOK, bus.Response{
			"success": false,
			"error":   "That request isn't recognized.",
			"code":    domain.ErrUnknownAction,
		})
		return
	}
	// Failures are protocol-level, not transport-level: always 200 with a
	// success flag, so callers never have to parse two error shapes.
	writeJSON(w, http.StatusOK, s.handler.Handle(r.Context(), req))
}

func (s *Server) handleNav(w http.ResponseWriter, r *http.Request) {
	var req navRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}

	blocked, redirectURL, err := s.decider.Decide(r.Context(), req.TabID, req.URL)
	if err != nil {
		s.logger.Error("navigation decision failed",
			zap.String("url", req.URL),
			zap.Error(err))
		// Cannot determine: do not block.
		writeJSON(w, http.StatusOK, map[string]any{"blocked": false})
		return
	}

	resp := map[string]any{"blocked": blocked}
	if blocked {
		resp["redirectUrl"] = redirectURL
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleTabs(w http.ResponseWriter, r *http.Request) {
	var req tabsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}
	s.bridge.SetTabs(req.Tabs)
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (s *Server) handleCommands(w http.ResponseWriter, r *http.Request) {
	commands := s.bridge.DrainCommands()
	if commands == nil {
		commands = []infra.RedirectCommand{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"commands": commands})
}

// handleBlockPage is a plain fallback target for redirects; a real UI
// surface renders its own page and only needs the query parameters.
func (s *Server) handleBlockPage(w http.ResponseWriter, r *http.Request) {
	d := r.URL.Query().Get("domain")
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	fmt.Fprintf(w, "%s is blocked right now.\n", d)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		s.logger.Debug("http request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Duration("duration", time.Since(start)))
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
