package integration

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/palletline/gatehouse/internal/auth"
	"github.com/palletline/gatehouse/internal/handlers"
	middlewareCustom "github.com/palletline/gatehouse/internal/middleware"
	"github.com/palletline/gatehouse/internal/models"
	"github.com/palletline/gatehouse/internal/permissions"
	"github.com/palletline/gatehouse/internal/risk"
	"github.com/palletline/gatehouse/internal/routes"
	"github.com/palletline/gatehouse/internal/services"
	pkghttp "github.com/palletline/gatehouse/pkg/http"
	pkglogger "github.com/palletline/gatehouse/pkg/logger"
)

// SentEmail is a captured password reset message.
type SentEmail struct {
	To        string
	Token     string
	ExpiresAt time.Time
}

// MockEmailSender captures reset emails for test assertions.
type MockEmailSender struct {
	mu   sync.Mutex
	sent []SentEmail
}

func (m *MockEmailSender) SendPasswordResetEmail(ctx context.Context, email, token string, expiresAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.sent = append(m.sent, SentEmail{To: email, Token: token, ExpiresAt: expiresAt})
	return nil
}

// LastEmail returns the most recent captured email, or nil.
func (m *MockEmailSender) LastEmail() *SentEmail {
	m.mu.Lock()
	defer m.mu.Unlock()

	if len(m.sent) == 0 {
		return nil
	}
	return &m.sent[len(m.sent)-1]
}

// TestServer wraps httptest.Server with the full service stack wired
// against a real database and a mocked email sender.
type TestServer struct {
	Server *httptest.Server
	Repos  *Repos
	Email  *MockEmailSender
	Tokens *auth.TokenManager

	logger *slog.Logger
}

// NewTestServer wires repositories, services, handlers, and routes the
// way the production entrypoint does, minus Redis and SES. Timing delay
// is near zero so failure-path tests stay fast.
func NewTestServer(db *TestDB) *TestServer {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelWarn}))

	repos := InitializeRepositories(db.DB)
	mockEmail := &MockEmailSender{}

	securityLogger := pkglogger.NewSecurityLogger(logger)
	auditService := services.NewAuditService(repos.Audit, logger)
	alertService := services.NewAlertService(repos.Alerts, auditService, securityLogger, logger)
	deviceService := services.NewDeviceService(repos.Devices, alertService, auditService, 3, logger)
	sessionStore := services.NewSessionStore(repos.Sessions, nil, logger)

	tokenManager := auth.NewTokenManager(
		"test-secret-32-characters-long-ok",
		"gatehouse", "palletline",
		15*time.Minute, 7*24*time.Hour,
	)
	validator := auth.NewValidator(tokenManager, sessionStore)

	authService := services.NewAuthService(services.AuthServiceConfig{
		Accounts:   repos.Accounts,
		Attempts:   repos.Attempts,
		Resets:     repos.Resets,
		Sessions:   sessionStore,
		Devices:    deviceService,
		Alerts:     alertService,
		Audit:      auditService,
		Tokens:     tokenManager,
		Timing:     auth.NewTimingDelay(1, 1),
		Email:      mockEmail,
		Locations:  risk.NetworkZoneResolver{},
		RiskPolicy: risk.DefaultPolicy(),
		Lockout: services.LockoutPolicy{
			Threshold: 5,
			Duration:  30 * time.Minute,
		},
		RapidWindow:    time.Minute,
		AlertLevel:     models.RiskLevelHigh,
		ResetExpiry:    30 * time.Minute,
		SecurityLogger: securityLogger,
		Logger:         logger,
	})

	ipConfig := &pkghttp.IPConfig{}
	authHandler := handlers.NewAuthHandler(authService, ipConfig)
	securityHandler := handlers.NewSecurityHandler(alertService, deviceService, authService)

	r := chi.NewRouter()
	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(chiMiddleware.Recoverer)
	r.Use(middlewareCustom.SecurityHeaders("test"))

	routes.RegisterRoutes(r, authHandler, securityHandler, validator, permissions.Default())

	return &TestServer{
		Server: httptest.NewServer(r),
		Repos:  repos,
		Email:  mockEmail,
		Tokens: tokenManager,
		logger: logger,
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

// RequestWithAuth makes an authenticated HTTP request with the access token.
func (ts *TestServer) RequestWithAuth(method, path, accessToken string, body interface{}) (*http.Response, error) {
	headers := map[string]string{
		"Authorization": "Bearer " + accessToken,
	}
	return ts.Request(method, path, body, headers)
}

// ParseJSONResponse decodes the response body into target.
func ParseJSONResponse(resp *http.Response, target interface{}) error {
	defer resp.Body.Close()
	return json.NewDecoder(resp.Body).Decode(target)
}
