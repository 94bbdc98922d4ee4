package handlers_test

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/kmpdu/evote/internal/auth"
	"github.com/kmpdu/evote/internal/handlers"
	"github.com/kmpdu/evote/internal/repository/mock"
	"github.com/kmpdu/evote/internal/testutil"
)

func TestHandleLogin_Success(t *testing.T) {
	s := newTestSetup(t)

	rec := s.do(t, http.MethodPost, "/api/auth/login", handlers.LoginRequest{MemberID: "KMPDU-2024-00456"}, nil)
	expectStatus(t, rec, http.StatusOK)

	var cookie *http.Cookie
	for _, c := range rec.Result().Cookies() {
		if c.Name == auth.CookieName {
			cookie = c
		}
	}
	if cookie == nil || cookie.Value == "" {
		t.Fatal("expected session cookie")
	}
	if !cookie.HttpOnly {
		t.Error("session cookie should be HttpOnly")
	}

	resp := decode[handlers.LoginResponse](t, rec)
	if resp.Token != cookie.Value {
		t.Error("response token should match cookie")
	}
	if resp.User.Name != "Dr. Sarah Wanjiku" || resp.User.Branch != "Nairobi Branch" {
		t.Errorf("unexpected user %+v", resp.User)
	}
	if _, ok := s.manager.Lookup("KMPDU-2024-00456"); !ok {
		t.Error("login should open the member's session")
	}

	// the cookie authenticates follow-up requests
	req := httptest.NewRequest(http.MethodGet, "/api/me", nil)
	req.AddCookie(cookie)
	me := httptest.NewRecorder()
	s.router.ServeHTTP(me, req)
	expectStatus(t, me, http.StatusOK)
}

func TestHandleLogin_TrimsMemberID(t *testing.T) {
	s := newTestSetup(t)

	rec := s.do(t, http.MethodPost, "/api/auth/login", `{"memberId":"  KMPDU-ADM-001 ","password":"`+testAdminPassword+`"}`, nil)
	expectStatus(t, rec, http.StatusOK)

	resp := decode[handlers.LoginResponse](t, rec)
	if !resp.User.Role.IsAdmin() {
		t.Errorf("expected admin role, got %q", resp.User.Role)
	}
}

func TestHandleLogin_Errors(t *testing.T) {
	tests := []struct {
		name   string
		body   string
		status int
		code   string
	}{
		{"unknown member", `{"memberId":"KMPDU-0000"}`, http.StatusNotFound, handlers.ErrCodeNotFound},
		{"blank member id", `{"memberId":"   "}`, http.StatusBadRequest, handlers.ErrCodeBadRequest},
		{"invalid json", `{not json`, http.StatusBadRequest, handlers.ErrCodeBadRequest},
		{"empty body", ``, http.StatusBadRequest, handlers.ErrCodeBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestSetup(t)
			rec := s.do(t, http.MethodPost, "/api/auth/login", tt.body, nil)
			expectErrorCode(t, rec, tt.status, tt.code)
		})
	}
}

func TestHandleLogin_AdminRequiresPassword(t *testing.T) {
	tests := []struct {
		name     string
		memberID string
		password string
	}{
		{"superadmin without password", "KMPDU-SUP-001", ""},
		{"superadmin wrong password", "KMPDU-SUP-001", "clinic-ward"},
		{"admin without password", "KMPDU-ADM-001", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestSetup(t)
			rec := s.do(t, http.MethodPost, "/api/auth/login",
				handlers.LoginRequest{MemberID: tt.memberID, Password: tt.password}, nil)
			expectErrorCode(t, rec, http.StatusUnauthorized, handlers.ErrCodeUnauthorized)

			for _, c := range rec.Result().Cookies() {
				if c.Name == auth.CookieName && c.Value != "" {
					t.Error("refused login must not set a session cookie")
				}
			}
			if _, ok := s.manager.Lookup(tt.memberID); ok {
				t.Error("refused login must not open a session")
			}
		})
	}
}

func TestHandleLogin_SuperadminPasswordUnlocksOverrides(t *testing.T) {
	s := newTestSetup(t)

	rec := s.do(t, http.MethodPost, "/api/auth/login", `{"memberId":"KMPDU-SUP-001"}`, nil)
	expectStatus(t, rec, http.StatusUnauthorized)

	rec = s.do(t, http.MethodPost, "/api/auth/login",
		handlers.LoginRequest{MemberID: "KMPDU-SUP-001", Password: testAdminPassword}, nil)
	expectStatus(t, rec, http.StatusOK)
	resp := decode[handlers.LoginResponse](t, rec)

	req := httptest.NewRequest(http.MethodGet, "/api/admin/overrides", nil)
	req.Header.Set("Authorization", "Bearer "+resp.Token)
	admin := httptest.NewRecorder()
	s.router.ServeHTTP(admin, req)
	expectStatus(t, admin, http.StatusOK)
}

func TestHandleLogin_RepositoryError(t *testing.T) {
	repo := mock.NewRepository(testutil.NewTestRepository(t))
	repo.GetMemberByMemberIDError = errors.New("database locked")
	s := newTestSetupWithRepo(t, repo)

	rec := s.do(t, http.MethodPost, "/api/auth/login", handlers.LoginRequest{MemberID: "KMPDU-2024-00456"}, nil)
	expectErrorCode(t, rec, http.StatusInternalServerError, handlers.ErrCodeInternalServer)
}

func TestHandleLogout_RevokesToken(t *testing.T) {
	s := newTestSetup(t)

	token, _, err := s.auth.Login(*nairobiMember())
	if err != nil {
		t.Fatalf("login failed: %v", err)
	}

	req := httptest.NewRequest(http.MethodPost, "/api/auth/logout", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	expectStatus(t, rec, http.StatusOK)

	cleared := false
	for _, c := range rec.Result().Cookies() {
		if c.Name == auth.CookieName && c.MaxAge < 0 {
			cleared = true
		}
	}
	if !cleared {
		t.Error("logout should clear the session cookie")
	}

	req = httptest.NewRequest(http.MethodGet, "/api/me", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec = httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	expectErrorCode(t, rec, http.StatusUnauthorized, handlers.ErrCodeUnauthorized)
}

func TestHandleLogout_WithoutToken(t *testing.T) {
	s := newTestSetup(t)

	rec := s.do(t, http.MethodPost, "/api/auth/logout", nil, nil)
	expectStatus(t, rec, http.StatusOK)
}

func TestHandleMe(t *testing.T) {
	s := newTestSetup(t)

	rec := s.do(t, http.MethodGet, "/api/me", nil, nairobiMember())
	expectStatus(t, rec, http.StatusOK)

	me := decode[handlers.MeResponse](t, rec)
	if me.User.MemberID != "KMPDU-2024-00456" {
		t.Errorf("MemberID = %q", me.User.MemberID)
	}
	if me.UnreadCount != 2 {
		t.Errorf("UnreadCount = %d, want 2 from the seed notifications", me.UnreadCount)
	}
	if len(me.VotedPositions) != 0 {
		t.Errorf("fresh member should have no votes, got %v", me.VotedPositions)
	}
}

func TestMemberRoutes_RequireToken(t *testing.T) {
	s := newTestSetup(t)

	routes := []struct {
		method string
		path   string
	}{
		{http.MethodGet, "/api/me"},
		{http.MethodGet, "/api/ballot"},
		{http.MethodPost, "/api/votes"},
		{http.MethodGet, "/api/receipts"},
		{http.MethodGet, "/api/receipts/rcpt_1/qr"},
		{http.MethodGet, "/api/notifications"},
		{http.MethodPost, "/api/notifications/notif_001/read"},
		{http.MethodPost, "/api/level"},
		{http.MethodPost, "/api/level/confirm"},
		{http.MethodPost, "/api/level/cancel"},
	}

	for _, rt := range routes {
		t.Run(rt.method+" "+rt.path, func(t *testing.T) {
			rec := s.do(t, rt.method, rt.path, nil, nil)
			expectErrorCode(t, rec, http.StatusUnauthorized, handlers.ErrCodeUnauthorized)
		})
	}
}
