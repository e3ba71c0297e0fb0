package auth

import (
	"bufio"
	"fmt"
	"log"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/kripika/tli-tracker/internal/remote"
)

const (
	// defaultCallbackPort is the loopback port kripika.com redirects to
	// after a successful login. The site whitelists this port, so it is
	// fixed rather than ephemeral.
	defaultCallbackPort = 49733

	loginTimeout = 5 * time.Minute

	// acceptPoll bounds how long a cancel can go unnoticed: the
	// listener wakes at this interval to check its cancel flag.
	acceptPoll = 250 * time.Millisecond
)

// BeginLogin starts a login attempt: it opens the loopback callback
// listener and returns the browser URL for the login page. The
// listener accepts one callback carrying the token grant, installs the
// session, and shuts down. A new attempt supersedes any attempt still
// in flight.
func (m *Manager) BeginLogin(apiURL string) (string, error) {
	flag := &atomic.Bool{}
	m.mu.Lock()
	if m.cancel != nil {
		m.cancel.Store(true)
	}
	m.cancel = flag
	m.mu.Unlock()

	ln, err := m.listenCallback()
	if err != nil {
		m.finishLogin(flag)
		return "", fmt.Errorf("opening callback listener: %w", err)
	}

	redirect := fmt.Sprintf("http://%s/callback", ln.Addr().String())
	loginURL := fmt.Sprintf("%s/login?redirect_uri=%s",
		strings.TrimSuffix(apiURL, "/"), url.QueryEscape(redirect))

	go m.serveCallback(ln, flag)
	return loginURL, nil
}

// CancelLogin aborts the attempt in flight, freeing the callback port
// within one poll interval. Cancelling with nothing in flight is a
// no-op.
func (m *Manager) CancelLogin() {
	m.mu.Lock()
	if m.cancel != nil {
		m.cancel.Store(true)
	}
	m.cancel = nil
	m.mu.Unlock()
}

// LoginInProgress reports whether a login attempt is waiting for its
// callback.
func (m *Manager) LoginInProgress() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cancel != nil
}

// finishLogin retires an attempt's cancel flag. A newer attempt may
// have installed its own flag already; only the matching one is
// cleared.
func (m *Manager) finishLogin(flag *atomic.Bool) {
	m.mu.Lock()
	if m.cancel == flag {
		m.cancel = nil
	}
	m.mu.Unlock()
}

// listenCallback binds the callback port. A superseded attempt may
// still be draining, so binding is retried across a few poll
// intervals.
func (m *Manager) listenCallback() (*net.TCPListener, error) {
	addr := fmt.Sprintf("127.0.0.1:%d", m.callbackPort)
	var lastErr error
	for i := 0; i < 5; i++ {
		ln, err := net.Listen("tcp", addr)
		if err == nil {
			return ln.(*net.TCPListener), nil
		}
		lastErr = err
		time.Sleep(acceptPoll)
	}
	return nil, lastErr
}

func (m *Manager) serveCallback(ln *net.TCPListener, flag *atomic.Bool) {
	defer ln.Close()
	defer m.finishLogin(flag)

	deadline := time.Now().Add(loginTimeout)
	for {
		if flag.Load() {
			log.Printf("[auth] login cancelled")
			return
		}
		if time.Now().After(deadline) {
			log.Printf("[auth] login timed out")
			return
		}
		ln.SetDeadline(time.Now().Add(acceptPoll))
		conn, err := ln.Accept()
		if err != nil {
			if ne, ok := err.(net.Error); ok && ne.Timeout() {
				continue
			}
			log.Printf("[auth] callback accept: %v", err)
			return
		}
		if m.handleCallback(conn) {
			return
		}
	}
}

// handleCallback reads one HTTP request off the connection. It reports
// true when the request completed the login; stray requests (favicon
// probes, missing parameters) leave the listener waiting.
func (m *Manager) handleCallback(conn net.Conn) bool {
	defer conn.Close()
	conn.SetDeadline(time.Now().Add(5 * time.Second))

	req, err := http.ReadRequest(bufio.NewReader(conn))
	if err != nil {
		return false
	}
	if req.URL.Path != "/callback" {
		writeCallbackResponse(conn, http.StatusNotFound, "Not found.")
		return false
	}

	q := req.URL.Query()
	access := q.Get("access_token")
	refresh := q.Get("refresh_token")
	if access == "" || refresh == "" {
		writeCallbackResponse(conn, http.StatusBadRequest, "Login callback is missing tokens.")
		return false
	}
	expiresIn, _ := strconv.Atoi(q.Get("expires_in"))

	sess := m.installGrant(&remote.TokenGrant{
		AccessToken:  access,
		RefreshToken: refresh,
		ExpiresIn:    expiresIn,
	})
	writeCallbackResponse(conn, http.StatusOK, "Login complete. You can close this tab.")
	log.Printf("[auth] logged in as %s", sess.UserID)
	return true
}

func writeCallbackResponse(conn net.Conn, status int, body string) {
	fmt.Fprintf(conn, "HTTP/1.1 %d %s\r\nContent-Type: text/plain; charset=utf-8\r\nContent-Length: %d\r\nConnection: close\r\n\r\n%s",
		status, http.StatusText(status), len(body), body)
}
