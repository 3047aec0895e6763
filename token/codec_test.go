package token

import (
	"errors"
	"testing"
	"time"
)

func newTestCodec(t *testing.T) *Codec {
	t.Helper()

	c, err := NewCodec(
		Config{Secret: []byte("access-secret-for-tests"), TTL: time.Minute, Issuer: "authcore"},
		Config{Secret: []byte("refresh-secret-for-tests"), TTL: time.Hour, Issuer: "authcore"},
	)
	if err != nil {
		t.Fatalf("NewCodec failed: %v", err)
	}
	return c
}

func TestAccessRoundTrip(t *testing.T) {
	c := newTestCodec(t)

	signed, err := c.SignAccess(AccessPayload{
		UserID:   42,
		DeviceID: 7,
		RoleID:   3,
		RoleName: "CLIENT",
	})
	if err != nil {
		t.Fatalf("SignAccess failed: %v", err)
	}

	claims, err := c.VerifyAccess(signed)
	if err != nil {
		t.Fatalf("VerifyAccess failed: %v", err)
	}
	if claims.UserID != 42 || claims.DeviceID != 7 || claims.RoleID != 3 || claims.RoleName != "CLIENT" {
		t.Fatalf("unexpected claims: %+v", claims)
	}
	if claims.ID == "" {
		t.Fatal("expected a jti on the access token")
	}
}

func TestRefreshRoundTrip(t *testing.T) {
	c := newTestCodec(t)

	signed, err := c.SignRefresh(42)
	if err != nil {
		t.Fatalf("SignRefresh failed: %v", err)
	}

	claims, err := c.VerifyRefresh(signed)
	if err != nil {
		t.Fatalf("VerifyRefresh failed: %v", err)
	}
	if claims.UserID != 42 {
		t.Fatalf("unexpected user id %d", claims.UserID)
	}
	if claims.ID == "" {
		t.Fatal("expected a jti on the refresh token")
	}
}

func TestEverySignGetsFreshJTI(t *testing.T) {
	c := newTestCodec(t)

	first, err := c.SignAccess(AccessPayload{UserID: 1, DeviceID: 1, RoleID: 1, RoleName: "CLIENT"})
	if err != nil {
		t.Fatalf("SignAccess failed: %v", err)
	}
	second, err := c.SignAccess(AccessPayload{UserID: 1, DeviceID: 1, RoleID: 1, RoleName: "CLIENT"})
	if err != nil {
		t.Fatalf("SignAccess failed: %v", err)
	}
	if first == second {
		t.Fatal("expected distinct tokens for identical payloads")
	}
}

func TestTokenClassesDoNotCrossVerify(t *testing.T) {
	c := newTestCodec(t)

	access, err := c.SignAccess(AccessPayload{UserID: 1})
	if err != nil {
		t.Fatalf("SignAccess failed: %v", err)
	}
	refresh, err := c.SignRefresh(1)
	if err != nil {
		t.Fatalf("SignRefresh failed: %v", err)
	}

	if _, err := c.VerifyRefresh(access); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken for access-as-refresh, got %v", err)
	}
	if _, err := c.VerifyAccess(refresh); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken for refresh-as-access, got %v", err)
	}
}

func TestExpiredTokenRejected(t *testing.T) {
	c, err := NewCodec(
		Config{Secret: []byte("access-secret-for-tests"), TTL: time.Nanosecond},
		Config{Secret: []byte("refresh-secret-for-tests"), TTL: time.Hour},
	)
	if err != nil {
		t.Fatalf("NewCodec failed: %v", err)
	}

	signed, err := c.SignAccess(AccessPayload{UserID: 1})
	if err != nil {
		t.Fatalf("SignAccess failed: %v", err)
	}

	time.Sleep(5 * time.Millisecond)
	if _, err := c.VerifyAccess(signed); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken for expired token, got %v", err)
	}
}

func TestVerifyFailuresAreOpaque(t *testing.T) {
	c := newTestCodec(t)

	other, err := NewCodec(
		Config{Secret: []byte("different-access-secret"), TTL: time.Minute},
		Config{Secret: []byte("different-refresh-secret"), TTL: time.Hour},
	)
	if err != nil {
		t.Fatalf("NewCodec failed: %v", err)
	}
	foreign, err := other.SignAccess(AccessPayload{UserID: 1})
	if err != nil {
		t.Fatalf("SignAccess failed: %v", err)
	}

	for _, tok := range []string{"", "garbage", "a.b.c", foreign} {
		if _, err := c.VerifyAccess(tok); !errors.Is(err, ErrInvalidToken) {
			t.Fatalf("expected ErrInvalidToken for %q, got %v", tok, err)
		}
	}
}

func TestNewCodecValidation(t *testing.T) {
	if _, err := NewCodec(Config{TTL: time.Minute}, Config{Secret: []byte("x"), TTL: time.Hour}); err == nil {
		t.Fatal("expected error for missing access secret")
	}
	if _, err := NewCodec(Config{Secret: []byte("x"), TTL: 0}, Config{Secret: []byte("y"), TTL: time.Hour}); err == nil {
		t.Fatal("expected error for zero TTL")
	}
}
