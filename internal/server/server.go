// Package server exposes the tracker to overlays: a JSON command
// surface mirroring the desktop client's IPC set, and a WebSocket
// channel that pushes state as it changes.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/gorilla/websocket"

	"github.com/kripika/tli-tracker/internal/auth"
	"github.com/kripika/tli-tracker/internal/config"
	"github.com/kripika/tli-tracker/internal/engine"
	"github.com/kripika/tli-tracker/internal/gamelog"
	"github.com/kripika/tli-tracker/internal/remote"
	"github.com/kripika/tli-tracker/internal/session"
)

// AuthService is the slice of the auth manager the handlers use.
type AuthService interface {
	LoggedIn() bool
	Session() (auth.Session, bool)
	GetValidToken(ctx context.Context) (string, error)
	SetUserIdentity(userID, email string)
	BeginLogin(apiURL string) (string, error)
	CancelLogin()
	LoginInProgress() bool
	SignOut() error
}

// RemoteAPI is the slice of the remote client the handlers use
// directly; everything else goes through the engine. nil when remote
// sync is not configured.
type RemoteAPI interface {
	FetchAuthUser(ctx context.Context, userJWT string) (*remote.AuthUser, error)
	FetchProfile(ctx context.Context, userJWT, userID string) (*remote.Profile, error)
	FetchSessionHistory(ctx context.Context, userJWT string, limit int) ([]remote.RemoteSession, error)
}

// LogControl lets the UI inspect and repoint the game-log tail without
// the server owning the tailer lifecycle.
type LogControl interface {
	Path() string
	SetPath(path string) error
	Discover() (string, bool)
}

type Server struct {
	cfg            *config.Config
	engine         *engine.Engine
	auth           AuthService
	api            RemoteAPI
	logs           LogControl
	broadcaster    *Broadcaster
	allowedOrigins map[string]bool
	allowedHosts   map[string]bool
	authToken      string
}

func NewServer(cfg *config.Config, eng *engine.Engine, authsvc AuthService, api RemoteAPI, logs LogControl, broadcaster *Broadcaster) *Server {
	s := &Server{
		cfg:            cfg,
		engine:         eng,
		auth:           authsvc,
		api:            api,
		logs:           logs,
		broadcaster:    broadcaster,
		allowedOrigins: make(map[string]bool),
		allowedHosts:   make(map[string]bool),
		authToken:      cfg.Server.AuthToken,
	}

	for _, origin := range cfg.Server.AllowedOrigins {
		trimmed := strings.TrimSpace(origin)
		if trimmed == "" {
			continue
		}
		s.allowedOrigins[trimmed] = true
		if parsed, err := url.Parse(trimmed); err == nil && parsed.Host != "" {
			s.allowedHosts[parsed.Host] = true
		}
	}

	return s
}

// Handler returns the full route set wrapped in the security headers.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	s.SetupRoutes(mux)
	return securityHeaders(mux)
}

func (s *Server) SetupRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/ws", s.guard(s.handleWS))

	mux.HandleFunc("/api/session", s.guard(s.handleSession))
	mux.HandleFunc("/api/session/start", s.guard(s.handleSessionStart))
	mux.HandleFunc("/api/session/end", s.guard(s.handleSessionEnd))
	mux.HandleFunc("/api/session/pause", s.guard(s.handleSessionPause))
	mux.HandleFunc("/api/session/duration", s.guard(s.handleSessionDuration))

	mux.HandleFunc("/api/stats", s.guard(s.handleStats))
	mux.HandleFunc("/api/drops", s.guard(s.handleDrops))

	mux.HandleFunc("/api/expenses", s.guard(s.handleExpenses))
	mux.HandleFunc("/api/expenses/", s.guard(s.handleExpenseByID))
	mux.HandleFunc("/api/manual-drops", s.guard(s.handleManualDrops))
	mux.HandleFunc("/api/manual-drops/", s.guard(s.handleManualDropByID))

	mux.HandleFunc("/api/items", s.guard(s.handleItems))
	mux.HandleFunc("/api/items/", s.guard(s.handleItemByID))
	mux.HandleFunc("/api/prices", s.guard(s.handlePrices))
	mux.HandleFunc("/api/prices/refresh", s.guard(s.handlePricesRefresh))

	mux.HandleFunc("/api/settings", s.guard(s.handleSettings))

	mux.HandleFunc("/api/log/status", s.guard(s.handleLogStatus))
	mux.HandleFunc("/api/log/path", s.guard(s.handleLogPath))
	mux.HandleFunc("/api/log/discover", s.guard(s.handleLogDiscover))

	mux.HandleFunc("/api/auth/status", s.guard(s.handleAuthStatus))
	mux.HandleFunc("/api/auth/login", s.guard(s.handleAuthLogin))
	mux.HandleFunc("/api/auth/cancel", s.guard(s.handleAuthCancel))
	mux.HandleFunc("/api/auth/logout", s.guard(s.handleAuthLogout))
	mux.HandleFunc("/api/auth/profile", s.guard(s.handleAuthProfile))

	mux.HandleFunc("/api/history", s.guard(s.handleHistory))
	mux.HandleFunc("/api/history/remote", s.guard(s.handleRemoteHistory))
	mux.HandleFunc("/api/history/", s.guard(s.handleHistoryByID))
}

func (s *Server) guard(h http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !s.authorize(r) {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		h(w, r)
	}
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	upgrader := websocket.Upgrader{
		CheckOrigin: s.checkOrigin,
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("ws upgrade error: %v", err)
		return
	}

	log.Printf("WebSocket client connected: %s", r.RemoteAddr)
	c := s.broadcaster.AddClient(conn)

	go func() {
		defer func() {
			s.broadcaster.RemoveClient(c)
			log.Printf("WebSocket client disconnected: %s", r.RemoteAddr)
		}()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
}

type sessionResponse struct {
	Active  bool          `json:"active"`
	Session session.State `json:"session"`
}

func (s *Server) handleSession(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, sessionResponse{
		Active:  s.engine.Tracker().Active(),
		Session: s.engine.Tracker().Snapshot(),
	})
}

func (s *Server) handleSessionStart(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req struct {
		PresetID string `json:"presetId"`
	}
	if err := decodeOptional(r, &req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	s.engine.StartSession(req.PresetID)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleSessionEnd(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	final, err := s.engine.EndSession(r.Context())
	if err != nil {
		http.Error(w, err.Error(), http.StatusConflict)
		return
	}
	writeJSON(w, final)
}

func (s *Server) handleSessionPause(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req struct {
		Paused bool `json:"paused"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	s.engine.PauseSession(req.Paused)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleSessionDuration(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req struct {
		DurationSec int `json:"durationSec"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.DurationSec < 0 {
		http.Error(w, "duration must not be negative", http.StatusBadRequest)
		return
	}
	s.engine.SetSessionDuration(req.DurationSec)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, s.engine.Projector().Stats())
}

func (s *Server) handleDrops(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, s.engine.Projector().Drops())
}

func (s *Server) handleExpenses(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		writeJSON(w, s.engine.Tracker().Expenses())
	case http.MethodPost:
		entry, ok := decodeLedgerEntry(w, r)
		if !ok {
			return
		}
		writeJSON(w, s.engine.AddExpense(entry))
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

func (s *Server) handleExpenseByID(w http.ResponseWriter, r *http.Request) {
	id, ok := trailingID(w, r, "/api/expenses/")
	if !ok {
		return
	}
	if r.Method != http.MethodDelete {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	s.engine.RemoveExpense(id)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleManualDrops(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		writeJSON(w, s.engine.Tracker().ManualDrops())
	case http.MethodPost:
		if !s.engine.Tracker().Active() {
			http.Error(w, "no active session", http.StatusConflict)
			return
		}
		entry, ok := decodeLedgerEntry(w, r)
		if !ok {
			return
		}
		writeJSON(w, s.engine.AddManualDrop(entry))
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

func (s *Server) handleManualDropByID(w http.ResponseWriter, r *http.Request) {
	id, ok := trailingID(w, r, "/api/manual-drops/")
	if !ok {
		return
	}
	if r.Method != http.MethodDelete {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	s.engine.RemoveManualDrop(id)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleItems(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, s.engine.Items().Search(r.URL.Query().Get("q")))
}

func (s *Server) handleItemByID(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	raw := strings.TrimPrefix(r.URL.Path, "/api/items/")
	gameID, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		http.Error(w, "invalid item id", http.StatusBadRequest)
		return
	}
	item, ok := s.engine.Items().Get(gameID)
	if !ok {
		http.Error(w, "item not found", http.StatusNotFound)
		return
	}
	writeJSON(w, item)
}

func (s *Server) handlePrices(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		writeJSON(w, s.engine.Prices().All())
	case http.MethodPost:
		var req struct {
			GameID int64   `json:"gameId"`
			Price  float64 `json:"price"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "invalid request body", http.StatusBadRequest)
			return
		}
		if req.GameID == 0 {
			http.Error(w, "gameId is required", http.StatusBadRequest)
			return
		}
		s.engine.UpdatePrice(req.GameID, req.Price)
		w.WriteHeader(http.StatusNoContent)
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

func (s *Server) handlePricesRefresh(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if !s.engine.RemoteEnabled() {
		http.Error(w, "remote sync is not configured", http.StatusServiceUnavailable)
		return
	}
	s.engine.RefreshPrices(r.Context())
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleSettings(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		writeJSON(w, s.engine.Settings())
	case http.MethodPut, http.MethodPost:
		// Decode over the current values so partial documents keep the
		// rest intact.
		current := s.engine.Settings()
		if err := json.NewDecoder(r.Body).Decode(&current); err != nil {
			http.Error(w, "invalid request body", http.StatusBadRequest)
			return
		}
		if err := s.engine.UpdateSettings(current); err != nil {
			http.Error(w, fmt.Sprintf("saving settings: %v", err), http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

type logStatusResponse struct {
	Path string `json:"path,omitempty"`
	gamelog.Status
}

func (s *Server) handleLogStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	path := s.logs.Path()
	writeJSON(w, logStatusResponse{
		Path:   path,
		Status: gamelog.CheckStatus(path),
	})
}

func (s *Server) handleLogPath(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req struct {
		Path string `json:"path"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if err := s.logs.SetPath(req.Path); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type discoverResponse struct {
	Path  string `json:"path,omitempty"`
	Found bool   `json:"found"`
}

func (s *Server) handleLogDiscover(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	path, found := s.logs.Discover()
	writeJSON(w, discoverResponse{Path: path, Found: found})
}

type authStatusResponse struct {
	LoggedIn bool   `json:"loggedIn"`
	UserID   string `json:"userId,omitempty"`
	Email    string `json:"email,omitempty"`
}

func (s *Server) handleAuthStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	resp := authStatusResponse{LoggedIn: s.auth.LoggedIn()}
	if sess, ok := s.auth.Session(); ok {
		resp.UserID = sess.UserID
		resp.Email = sess.UserEmail
	}
	writeJSON(w, resp)
}

func (s *Server) handleAuthLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req struct {
		APIURL string `json:"apiUrl"`
	}
	if err := decodeOptional(r, &req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	apiURL := req.APIURL
	if apiURL == "" {
		apiURL = s.engine.Settings().APIURL
	}
	loginURL, err := s.auth.BeginLogin(apiURL)
	if err != nil {
		http.Error(w, fmt.Sprintf("starting login: %v", err), http.StatusInternalServerError)
		return
	}
	writeJSON(w, struct {
		LoginURL string `json:"loginUrl"`
	}{LoginURL: loginURL})
}

func (s *Server) handleAuthCancel(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	s.auth.CancelLogin()
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleAuthLogout(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if err := s.auth.SignOut(); err != nil {
		http.Error(w, fmt.Sprintf("signing out: %v", err), http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleAuthProfile(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if s.api == nil {
		http.Error(w, "remote sync is not configured", http.StatusServiceUnavailable)
		return
	}
	if !s.auth.LoggedIn() {
		http.Error(w, "not logged in", http.StatusUnauthorized)
		return
	}
	jwt, err := s.auth.GetValidToken(r.Context())
	if err != nil {
		http.Error(w, err.Error(), http.StatusUnauthorized)
		return
	}
	// The session usually knows the user; resolve via the backend when a
	// grant arrived without one.
	sess, _ := s.auth.Session()
	userID := sess.UserID
	if userID == "" {
		u, err := s.api.FetchAuthUser(r.Context(), jwt)
		if err != nil {
			http.Error(w, fmt.Sprintf("resolving user: %v", err), http.StatusBadGateway)
			return
		}
		userID = u.ID
		s.auth.SetUserIdentity(u.ID, u.Email)
	}
	profile, err := s.api.FetchProfile(r.Context(), jwt, userID)
	if err != nil {
		http.Error(w, fmt.Sprintf("fetching profile: %v", err), http.StatusBadGateway)
		return
	}
	if profile == nil {
		http.Error(w, "profile not found", http.StatusNotFound)
		return
	}
	writeJSON(w, profile)
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if !s.auth.LoggedIn() {
		http.Error(w, "not logged in", http.StatusUnauthorized)
		return
	}
	limit, ok := limitParam(w, r, 20)
	if !ok {
		return
	}
	recs, err := s.engine.History(r.Context(), limit)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, recs)
}

func (s *Server) handleRemoteHistory(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if s.api == nil {
		http.Error(w, "remote sync is not configured", http.StatusServiceUnavailable)
		return
	}
	if !s.auth.LoggedIn() {
		http.Error(w, "not logged in", http.StatusUnauthorized)
		return
	}
	limit, ok := limitParam(w, r, 20)
	if !ok {
		return
	}
	jwt, err := s.auth.GetValidToken(r.Context())
	if err != nil {
		http.Error(w, err.Error(), http.StatusUnauthorized)
		return
	}
	rows, err := s.api.FetchSessionHistory(r.Context(), jwt, limit)
	if err != nil {
		http.Error(w, fmt.Sprintf("fetching history: %v", err), http.StatusBadGateway)
		return
	}
	writeJSON(w, rows)
}

func (s *Server) handleHistoryByID(w http.ResponseWriter, r *http.Request) {
	id, ok := trailingID(w, r, "/api/history/")
	if !ok {
		return
	}
	if r.Method != http.MethodDelete {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if !s.auth.LoggedIn() {
		http.Error(w, "not logged in", http.StatusUnauthorized)
		return
	}
	removed, err := s.engine.DeleteHistory(r.Context(), id)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, struct {
		Removed bool `json:"removed"`
	}{Removed: removed})
}

func (s *Server) authorize(r *http.Request) bool {
	if s.authToken == "" {
		return true
	}

	if r.URL.Query().Get("token") == s.authToken {
		return true
	}

	if r.Header.Get("X-TLI-Token") == s.authToken {
		return true
	}

	header := r.Header.Get("Authorization")
	if strings.HasPrefix(header, "Bearer ") && strings.TrimPrefix(header, "Bearer ") == s.authToken {
		return true
	}

	return false
}

func (s *Server) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}

	if len(s.allowedOrigins) > 0 {
		if s.allowedOrigins[origin] {
			return true
		}
		if parsed, err := url.Parse(origin); err == nil && parsed.Host != "" {
			return s.allowedHosts[parsed.Host]
		}
		return false
	}

	parsed, err := url.Parse(origin)
	if err != nil {
		return false
	}

	host := parsed.Host
	if host == "" {
		return false
	}

	if host == r.Host {
		return true
	}

	if strings.HasPrefix(host, "localhost:") || host == "localhost" {
		return true
	}
	if strings.HasPrefix(host, "127.0.0.1:") || host == "127.0.0.1" {
		return true
	}
	if strings.HasPrefix(host, "[::1]:") || host == "::1" {
		return true
	}

	return false
}

func securityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("X-XSS-Protection", "1; mode=block")
		w.Header().Set("Content-Security-Policy", "default-src 'self'")
		next.ServeHTTP(w, r)
	})
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("response encode error: %v", err)
	}
}

// decodeOptional tolerates an empty body, for commands whose arguments
// are all optional.
func decodeOptional(r *http.Request, v any) error {
	err := json.NewDecoder(r.Body).Decode(v)
	if err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

func decodeLedgerEntry(w http.ResponseWriter, r *http.Request) (session.LedgerEntry, bool) {
	var entry session.LedgerEntry
	if err := json.NewDecoder(r.Body).Decode(&entry); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return entry, false
	}
	if entry.Name == "" {
		http.Error(w, "name is required", http.StatusBadRequest)
		return entry, false
	}
	if entry.Quantity <= 0 {
		http.Error(w, "quantity must be positive", http.StatusBadRequest)
		return entry, false
	}
	if entry.UnitPrice < 0 {
		http.Error(w, "unit price must not be negative", http.StatusBadRequest)
		return entry, false
	}
	return entry, true
}

// trailingID extracts the path segment after prefix. Nested paths are
// rejected so /api/expenses/{id}/anything stays a 404.
func trailingID(w http.ResponseWriter, r *http.Request, prefix string) (string, bool) {
	raw := strings.TrimPrefix(r.URL.Path, prefix)
	if raw == "" || strings.Contains(raw, "/") {
		http.Error(w, "not found", http.StatusNotFound)
		return "", false
	}
	id, err := url.PathUnescape(raw)
	if err != nil {
		http.Error(w, "invalid id", http.StatusBadRequest)
		return "", false
	}
	return id, true
}

func limitParam(w http.ResponseWriter, r *http.Request, def int) (int, bool) {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return def, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 1 {
		http.Error(w, "invalid limit", http.StatusBadRequest)
		return 0, false
	}
	return n, true
}

func ListenAndServe(host string, port int, handler http.Handler) error {
	addr := fmt.Sprintf("%s:%d", host, port)
	log.Printf("Server listening on %s", addr)
	return http.ListenAndServe(addr, handler)
}
