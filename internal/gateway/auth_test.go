package gateway

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestAuth_LoginSuccessAndAuthenticate(t *testing.T) {
	t.Setenv("SENTINEL_ADMIN_PASSWORD", "hunter2")
	a := NewAuth(false)

	token, role, ok := a.Login("admin", "hunter2")
	if !ok || role != RoleAdmin {
		t.Fatalf("expected successful admin login, got ok=%v role=%v", ok, role)
	}

	r := httptest.NewRequest(http.MethodGet, "/api/status", nil)
	r.AddCookie(&http.Cookie{Name: sessionCookieName, Value: token})
	username, gotRole, sessionID, authed := a.Authenticate(r)
	if !authed || username != "admin" || gotRole != RoleAdmin || sessionID != token {
		t.Fatalf("unexpected authenticate result: %v %v %v %v", username, gotRole, sessionID, authed)
	}
}

func TestAuth_LoginWrongPasswordFails(t *testing.T) {
	a := NewAuth(false)
	if _, _, ok := a.Login("admin", "wrong"); ok {
		t.Fatal("expected login to fail with wrong password")
	}
}

func TestAuth_LoginUnknownUserFails(t *testing.T) {
	a := NewAuth(false)
	if _, _, ok := a.Login("nobody", "admin"); ok {
		t.Fatal("expected login to fail for unknown username")
	}
}

func TestAuth_AuthenticateWithoutCookieFails(t *testing.T) {
	a := NewAuth(false)
	r := httptest.NewRequest(http.MethodGet, "/api/status", nil)
	if _, _, _, ok := a.Authenticate(r); ok {
		t.Fatal("expected authenticate to fail without a cookie")
	}
}

func TestAuth_LogoutInvalidatesSession(t *testing.T) {
	a := NewAuth(false)
	token, _, _ := a.Login("viewer", "viewer")
	a.Logout(token)

	r := httptest.NewRequest(http.MethodGet, "/api/status", nil)
	r.AddCookie(&http.Cookie{Name: sessionCookieName, Value: token})
	if _, _, _, ok := a.Authenticate(r); ok {
		t.Fatal("expected authenticate to fail after logout")
	}
}

func TestAuth_ViewerRoleDiffersFromAdmin(t *testing.T) {
	a := NewAuth(false)
	_, role, ok := a.Login("viewer", "viewer")
	if !ok || role != RoleViewer {
		t.Fatalf("expected viewer login to succeed with viewer role, got ok=%v role=%v", ok, role)
	}
}
