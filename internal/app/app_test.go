package app

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/kmpdu/evote/internal/config"
	"github.com/kmpdu/evote/internal/handlers"
	"github.com/kmpdu/evote/internal/logger"
	"github.com/kmpdu/evote/internal/models"
	"github.com/kmpdu/evote/pkg/kmpduapi"
)

func testConfig(t *testing.T) config.Config {
	t.Helper()
	return config.Config{
		Port:        0,
		DBPath:      ":memory:",
		HistoryPath: filepath.Join(t.TempDir(), "history.db"),
		CastTimeout: time.Second,
		JWTSecret:   "test-secret",
		TokenTTL:    time.Hour,
	}
}

func createTestApp(t *testing.T, client kmpduapi.Client) *App {
	t.Helper()
	app, err := New(logger.Discard(), testConfig(t), client)
	if err != nil {
		t.Fatalf("failed to create test app: %v", err)
	}
	t.Cleanup(app.Close)
	return app
}

func createTestAppWithConfig(t *testing.T, cfg config.Config) *App {
	t.Helper()
	app, err := New(logger.Discard(), cfg, nil)
	if err != nil {
		t.Fatalf("failed to create test app: %v", err)
	}
	t.Cleanup(app.Close)
	return app
}

func TestNew_InitializesApp(t *testing.T) {
	app := createTestApp(t, kmpduapi.NewMockClient())

	if app.handlers == nil {
		t.Error("expected handlers to be initialized")
	}
	if app.repo == nil || app.history == nil {
		t.Error("expected stores to be initialized")
	}
	if app.cancel == nil {
		t.Error("expected cancel to be set")
	}

	// seed members are loaded so they can sign in
	if _, err := app.repo.GetMemberByMemberID(context.Background(), "KMPDU-2024-00456"); err != nil {
		t.Errorf("seed member missing: %v", err)
	}
}

func TestNew_FailsWithBadDBPath(t *testing.T) {
	cfg := testConfig(t)
	cfg.DBPath = "/nonexistent/path/db.sqlite"

	if _, err := New(logger.Discard(), cfg, nil); err == nil {
		t.Error("expected error for invalid db path")
	}
}

func TestNew_FailsWithBadHistoryPath(t *testing.T) {
	cfg := testConfig(t)
	cfg.HistoryPath = "/nonexistent/path/history.db"

	if _, err := New(logger.Discard(), cfg, nil); err == nil {
		t.Error("expected error for invalid history path")
	}
}

func TestNew_GeneratesAndKeepsSecret(t *testing.T) {
	cfg := testConfig(t)
	cfg.JWTSecret = ""

	app, err := New(logger.Discard(), cfg, nil)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	defer app.Close()

	secret, err := app.repo.GetSetting(context.Background(), "jwt_secret")
	if err != nil || secret == "" {
		t.Errorf("expected generated secret to be stored, got %q, %v", secret, err)
	}
}

func TestNew_AdminPassword(t *testing.T) {
	cfg := testConfig(t)

	app, err := New(logger.Discard(), cfg, nil)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	password, generated := app.AdminPassword()
	if password == "" || !generated {
		t.Errorf("expected a generated password, got %q, %v", password, generated)
	}
	stored, err := app.repo.GetSetting(context.Background(), "admin_password")
	if err != nil || stored != password {
		t.Errorf("generated password not stored, got %q, %v", stored, err)
	}
	app.Close()

	cfg.AdminPassword = "pharmacy-triage-union-kisumu"
	app = createTestAppWithConfig(t, cfg)
	if password, generated := app.AdminPassword(); password != cfg.AdminPassword || generated {
		t.Errorf("configured password should win, got %q, %v", password, generated)
	}
}

func TestApp_SuperadminLoginNeedsPassword(t *testing.T) {
	cfg := testConfig(t)
	cfg.AdminPassword = "pharmacy-triage-union-kisumu"
	app := createTestAppWithConfig(t, cfg)
	server := httptest.NewServer(app.Router())
	defer server.Close()

	login := func(body map[string]string) *http.Response {
		t.Helper()
		b, _ := json.Marshal(body)
		resp, err := http.Post(server.URL+"/api/auth/login", "application/json", bytes.NewReader(b))
		if err != nil {
			t.Fatalf("login failed: %v", err)
		}
		return resp
	}

	resp := login(map[string]string{"memberId": "KMPDU-SUP-001"})
	resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("member id alone gave %d, want 401", resp.StatusCode)
	}

	resp = login(map[string]string{"memberId": "KMPDU-SUP-001", "password": cfg.AdminPassword})
	var ok handlers.LoginResponse
	json.NewDecoder(resp.Body).Decode(&ok)
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK || ok.Token == "" {
		t.Fatalf("login with password gave %d", resp.StatusCode)
	}

	body, _ := json.Marshal(map[string]any{"position_id": "pos_001", "candidate_id": "cand_001"})
	req, _ := http.NewRequest(http.MethodPut, server.URL+"/api/admin/forced-winners", bytes.NewReader(body))
	req.Header.Set("Authorization", "Bearer "+ok.Token)
	req.Header.Set("Content-Type", "application/json")
	put, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("override request failed: %v", err)
	}
	put.Body.Close()
	if put.StatusCode != http.StatusOK {
		t.Errorf("forced winner with a password login gave %d, want 200", put.StatusCode)
	}
}

func TestApp_Router_ServesRequests(t *testing.T) {
	app := createTestApp(t, kmpduapi.NewMockClient())
	server := httptest.NewServer(app.Router())
	defer server.Close()

	resp, err := http.Get(server.URL + "/api/status")
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Errorf("expected 200 for /api/status, got %d", resp.StatusCode)
	}
}

func TestApp_EndToEndVote(t *testing.T) {
	app := createTestApp(t, kmpduapi.NewMockClient())
	server := httptest.NewServer(app.Router())
	defer server.Close()

	before := resultsFor(t, server.URL, "pos_001", "cand_003")

	body, _ := json.Marshal(map[string]string{"memberId": "KMPDU-2024-00456"})
	resp, err := http.Post(server.URL+"/api/auth/login", "application/json", bytes.NewReader(body))
	if err != nil {
		t.Fatalf("login failed: %v", err)
	}
	var login handlers.LoginResponse
	json.NewDecoder(resp.Body).Decode(&login)
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK || login.Token == "" {
		t.Fatalf("login status %d, token %q", resp.StatusCode, login.Token)
	}

	body, _ = json.Marshal(map[string]string{"position_id": "pos_001", "candidate_id": "cand_003"})
	req, _ := http.NewRequest(http.MethodPost, server.URL+"/api/votes", bytes.NewReader(body))
	req.Header.Set("Authorization", "Bearer "+login.Token)
	req.Header.Set("Content-Type", "application/json")
	resp, err = http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("cast failed: %v", err)
	}
	var result models.CastResult
	json.NewDecoder(resp.Body).Decode(&result)
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK || result.Mode != models.ModeConfirmed {
		t.Fatalf("cast status %d, mode %q", resp.StatusCode, result.Mode)
	}

	if after := resultsFor(t, server.URL, "pos_001", "cand_003"); after != before+1 {
		t.Errorf("cand_003 = %d, want %d", after, before+1)
	}

	// the receipt is persisted and publicly verifiable
	resp, err = http.Get(server.URL + "/api/receipts/verify/" + result.Receipt.VerificationToken)
	if err != nil {
		t.Fatalf("verify failed: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("verify status %d", resp.StatusCode)
	}
}

func TestApp_NoBackendQueuesVotes(t *testing.T) {
	app := createTestApp(t, nil)
	ctx := context.Background()

	user, err := app.repo.GetMemberByMemberID(ctx, "KMPDU-2024-00789")
	if err != nil {
		t.Fatalf("member lookup failed: %v", err)
	}
	s := app.Manager().Session(ctx, *user)
	res, err := s.CastVote(ctx, "pos_001", "cand_001")
	if err != nil {
		t.Fatalf("cast failed: %v", err)
	}
	if !res.Offline() {
		t.Errorf("expected offline mode without a backend, got %q", res.Mode)
	}

	pending, err := app.Manager().Pending(ctx, false)
	if err != nil || len(pending) != 1 {
		t.Errorf("expected one queued vote, got %d, %v", len(pending), err)
	}
}

func resultsFor(t *testing.T, baseURL, positionID, candidateID string) int {
	t.Helper()
	resp, err := http.Get(baseURL + "/api/results")
	if err != nil {
		t.Fatalf("results failed: %v", err)
	}
	defer resp.Body.Close()

	var views []models.PositionView
	if err := json.NewDecoder(resp.Body).Decode(&views); err != nil {
		t.Fatalf("decode results: %v", err)
	}
	for _, v := range views {
		if v.ID != positionID {
			continue
		}
		for _, c := range v.Candidates {
			if c.ID == candidateID {
				return c.VoteCount
			}
		}
	}
	t.Fatalf("%s/%s not in results", positionID, candidateID)
	return 0
}

func TestApp_Close_IsIdempotent(t *testing.T) {
	app, err := New(logger.Discard(), testConfig(t), nil)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	app.Close()
	app.Close()
}

func TestApp_BaseURL(t *testing.T) {
	app := createTestApp(t, nil)
	ctx := context.Background()

	if got := app.BaseURL(ctx); got != "http://localhost:0" {
		t.Errorf("BaseURL = %q, want localhost fallback", got)
	}
	app.setBaseURL("https://vote.kmpdu.org")
	if got := app.BaseURL(ctx); got != "https://vote.kmpdu.org" {
		t.Errorf("BaseURL = %q", got)
	}
}

func TestIsPrivate172(t *testing.T) {
	tests := []struct {
		ip       string
		expected bool
	}{
		{"172.16.0.1", true},
		{"172.31.255.255", true},
		{"172.15.0.1", false},
		{"172.32.0.1", false},
		{"192.168.1.1", false},
		{"10.0.0.1", false},
		{"::1", false},
		{"fe80::1", false},
	}

	for _, tt := range tests {
		t.Run(tt.ip, func(t *testing.T) {
			if got := isPrivate172(net.ParseIP(tt.ip)); got != tt.expected {
				t.Errorf("isPrivate172(%s) = %v, want %v", tt.ip, got, tt.expected)
			}
		})
	}
}

func TestIsPrivate172_NilIP(t *testing.T) {
	if isPrivate172(nil) {
		t.Error("isPrivate172(nil) = true, want false")
	}
}

func TestSetDefaultBaseURL(t *testing.T) {
	tests := []struct {
		name     string
		existing string
		want     string
	}{
		{"sets when empty", "", "http://192.168.1.100:8081"},
		{"replaces localhost", "http://localhost:8081", "http://192.168.1.100:8081"},
		{"keeps valid url", "http://192.168.1.50:8081", "http://192.168.1.50:8081"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			app := createTestApp(t, nil)
			ctx := context.Background()
			if tt.existing != "" {
				if err := app.repo.SetSetting(ctx, handlers.BaseURLSetting, tt.existing); err != nil {
					t.Fatalf("failed to set initial setting: %v", err)
				}
			}

			app.setDefaultBaseURL("http://192.168.1.100:8081")

			val, err := app.repo.GetSetting(ctx, handlers.BaseURLSetting)
			if err != nil {
				t.Fatalf("failed to get setting: %v", err)
			}
			if val != tt.want {
				t.Errorf("base_url = %q, want %q", val, tt.want)
			}
		})
	}
}

func TestSetDefaultBaseURL_HandlesRepoError(t *testing.T) {
	app := createTestApp(t, nil)
	app.repo.DB().Close()

	// logs a warning, no panic
	app.setDefaultBaseURL("http://192.168.1.100:8081")
}

// mockInterface implements networkInterface for testing
type mockInterface struct {
	flags net.Flags
	addrs []net.Addr
	err   error
}

func (m mockInterface) Flags() net.Flags {
	return m.flags
}

func (m mockInterface) Addrs() ([]net.Addr, error) {
	return m.addrs, m.err
}

// mockNetworkProvider implements networkProvider for testing
type mockNetworkProvider struct {
	interfaces []networkInterface
	err        error
}

func (m mockNetworkProvider) Interfaces() ([]networkInterface, error) {
	return m.interfaces, m.err
}

func ipNet(s string) *net.IPNet {
	return &net.IPNet{IP: net.ParseIP(s), Mask: net.CIDRMask(24, 32)}
}

func TestGetPreferredIP(t *testing.T) {
	tests := []struct {
		name     string
		provider mockNetworkProvider
		want     string
	}{
		{
			name:     "network error",
			provider: mockNetworkProvider{err: net.ErrClosed},
			want:     "localhost",
		},
		{
			name: "addrs error",
			provider: mockNetworkProvider{interfaces: []networkInterface{
				mockInterface{flags: net.FlagUp, err: net.ErrClosed},
			}},
			want: "localhost",
		},
		{
			name: "ip addr",
			provider: mockNetworkProvider{interfaces: []networkInterface{
				mockInterface{flags: net.FlagUp, addrs: []net.Addr{&net.IPAddr{IP: net.ParseIP("192.168.1.100")}}},
			}},
			want: "192.168.1.100",
		},
		{
			name: "public fallback",
			provider: mockNetworkProvider{interfaces: []networkInterface{
				mockInterface{flags: net.FlagUp, addrs: []net.Addr{ipNet("8.8.8.8")}},
			}},
			want: "8.8.8.8",
		},
		{
			name: "private preferred over public",
			provider: mockNetworkProvider{interfaces: []networkInterface{
				mockInterface{flags: net.FlagUp, addrs: []net.Addr{ipNet("8.8.8.8"), ipNet("10.0.0.7")}},
			}},
			want: "10.0.0.7",
		},
		{
			name: "loopback ip skipped",
			provider: mockNetworkProvider{interfaces: []networkInterface{
				mockInterface{flags: net.FlagUp, addrs: []net.Addr{ipNet("127.0.0.1"), ipNet("192.168.1.50")}},
			}},
			want: "192.168.1.50",
		},
		{
			name: "down and loopback interfaces skipped",
			provider: mockNetworkProvider{interfaces: []networkInterface{
				mockInterface{flags: 0, addrs: []net.Addr{ipNet("192.168.1.10")}},
				mockInterface{flags: net.FlagUp | net.FlagLoopback, addrs: []net.Addr{ipNet("172.16.0.1")}},
			}},
			want: "localhost",
		},
		{
			name: "ipv6 ignored",
			provider: mockNetworkProvider{interfaces: []networkInterface{
				mockInterface{flags: net.FlagUp, addrs: []net.Addr{&net.IPAddr{IP: net.ParseIP("fe80::1")}}},
			}},
			want: "localhost",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := getPreferredIP(tt.provider); got != tt.want {
				t.Errorf("getPreferredIP() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestGetPreferredIP_RealProvider(t *testing.T) {
	ip := getPreferredIP(realNetworkProvider{})
	if ip == "" {
		t.Fatal("IP should never be empty")
	}
	if ip != "localhost" {
		parsed := net.ParseIP(ip)
		if parsed == nil || parsed.To4() == nil {
			t.Errorf("expected IPv4 address or localhost, got: %s", ip)
		}
	}
}

func TestApp_Run_StopsOnCancel(t *testing.T) {
	cfg := testConfig(t)
	cfg.BaseURL = "http://vote.example/"
	app, err := New(logger.Discard(), cfg, nil)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	defer app.Close()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- app.Run(ctx)
	}()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if err != nil && !errors.Is(err, context.Canceled) {
			t.Logf("Run returned: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}

	if got := app.BaseURL(context.Background()); got != "http://vote.example" {
		t.Errorf("configured base URL not stored, got %q", got)
	}
}
