package integration

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"time"

	"github.com/velmarket/gateway/internal/auth"
	"github.com/velmarket/gateway/internal/config"
	"github.com/velmarket/gateway/internal/database"
	"github.com/velmarket/gateway/internal/gateway"
	"github.com/velmarket/gateway/internal/handlers"
	"github.com/velmarket/gateway/internal/routes"
	"github.com/velmarket/gateway/internal/services"
	pkghttp "github.com/velmarket/gateway/pkg/http"
	pkglogger "github.com/velmarket/gateway/pkg/logger"
)

// TestServer wraps httptest.Server with a real database and the full
// middleware stack wired the way production wires it.
type TestServer struct {
	Server  *httptest.Server
	DB      *database.DB
	Config  *config.Config
	Tracker *gateway.LockoutTracker
}

// TestProfile returns strict-shaped thresholds small enough to trip quickly
// in tests. No delay schedule: tests must not sleep.
func TestProfile() config.SecurityProfile {
	return config.SecurityProfile{
		Name:                    "test",
		WindowLength:            time.Minute,
		MaxAttempts:             50,
		BlockDur:                time.Minute,
		LockoutMaxAttempts:      5,
		LockoutDuration:         time.Hour,
		PermanentBlockThreshold: 20,
		SessionTTL:              30 * time.Minute,
		AbsoluteSessionTimeout:  12 * time.Hour,
		DelaySchedule:           []time.Duration{0},
	}
}

// NewTestServer builds a complete gateway server on top of a live database.
func NewTestServer(db *database.DB) *TestServer {
	logger := slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError}))

	cfg := &config.Config{
		Server: config.ServerConfig{
			Port: "0",
			Env:  "test",
		},
		Auth: config.AuthConfig{
			SessionSecret:   "test-signing-secret-0123456789abcdef",
			CleanupInterval: time.Hour,
		},
		Profile: TestProfile(),
	}

	accountRepo, sessionRepo, eventRepo := InitializeRepositories(db)

	store := gateway.NewMemoryStore()
	limiter := gateway.NewRateLimiter(store, cfg.Profile, logger)
	tracker := gateway.NewLockoutTracker(store, cfg.Profile, logger)

	auditService := services.NewAuditService(eventRepo, pkglogger.NewAuditLogger(logger), logger)

	sessionManager := auth.NewSessionManager(
		cfg.Auth.SessionSecret, cfg.Profile.SessionTTL, cfg.Profile.AbsoluteSessionTimeout,
	)
	csrfManager := auth.NewCSRFTokenManager(cfg.Profile.SessionTTL)
	delay := auth.NewProgressiveDelay(cfg.Profile.DelaySchedule, cfg.Profile.DelayJitterMs)

	authService := services.NewAuthService(
		accountRepo, sessionRepo, tracker, delay, sessionManager, auditService, logger,
	)

	ipConfig := &pkghttp.IPConfig{}
	admission := gateway.NewAdmission(
		limiter, tracker, sessionManager, sessionRepo, csrfManager,
		auditService, cfg.Profile, ipConfig, logger,
	)

	h := routes.Handlers{
		Auth: handlers.NewAuthHandler(
			authService, csrfManager, auth.CookieConfig{}, cfg.Profile.SessionTTL, ipConfig, logger,
		),
		Admin:  handlers.NewAdminHandler(eventRepo, sessionRepo, tracker, auditService, logger),
		Health: handlers.NewHealthHandler(db),
	}

	router := routes.New(cfg, admission, h, logger)

	return &TestServer{
		Server:  httptest.NewServer(router),
		DB:      db,
		Config:  cfg,
		Tracker: tracker,
	}
}

// Close shuts down the test server.
func (ts *TestServer) Close() {
	if ts.Server != nil {
		ts.Server.Close()
	}
}

// Request makes an HTTP request to the test server.
func (ts *TestServer) Request(method, path string, body interface{}, headers map[string]string) (*http.Response, error) {
	var bodyReader io.Reader
	if body != nil {
		bodyBytes, err := json.Marshal(body)
		if err != nil {
			return nil, err
		}
		bodyReader = bytes.NewReader(bodyBytes)
	}

	req, err := http.NewRequest(method, ts.Server.URL+path, bodyReader)
	if err != nil {
		return nil, err
	}

	req.Header.Set("Content-Type", "application/json")
	for key, value := range headers {
		req.Header.Set(key, value)
	}

	return http.DefaultClient.Do(req)
}

// AdminSession holds the credentials issued by a successful login.
type AdminSession struct {
	SessionCookie *http.Cookie
	CSRFToken     string
}

// Login performs a login request and returns the issued session.
func (ts *TestServer) Login(email, password string) (*AdminSession, *http.Response, error) {
	resp, err := ts.Request(http.MethodPost, "/auth/login", map[string]string{
		"email":    email,
		"password": password,
	}, nil)
	if err != nil {
		return nil, nil, err
	}

	if resp.StatusCode != http.StatusOK {
		return nil, resp, nil
	}

	var session AdminSession
	for _, c := range resp.Cookies() {
		if c.Name == auth.SessionCookieName {
			session.SessionCookie = c
		}
	}

	var body struct {
		CSRFToken string `json:"csrf_token"`
	}
	if err := ParseJSONResponse(resp, &body); err != nil {
		return nil, resp, err
	}
	session.CSRFToken = body.CSRFToken

	if session.SessionCookie == nil {
		return nil, resp, fmt.Errorf("login response missing session cookie")
	}
	return &session, resp, nil
}

// AuthedRequest makes a request carrying the session cookie and CSRF header.
func (ts *TestServer) AuthedRequest(method, path string, session *AdminSession, body interface{}) (*http.Response, error) {
	var bodyReader io.Reader
	if body != nil {
		bodyBytes, err := json.Marshal(body)
		if err != nil {
			return nil, err
		}
		bodyReader = bytes.NewReader(bodyBytes)
	}

	req, err := http.NewRequest(method, ts.Server.URL+path, bodyReader)
	if err != nil {
		return nil, err
	}

	req.Header.Set("Content-Type", "application/json")
	req.AddCookie(session.SessionCookie)
	req.Header.Set("X-CSRF-Token", session.CSRFToken)

	return http.DefaultClient.Do(req)
}

// ParseJSONResponse parses a JSON response body into the target struct.
func ParseJSONResponse(resp *http.Response, target interface{}) error {
	defer resp.Body.Close()
	return json.NewDecoder(resp.Body).Decode(target)
}
