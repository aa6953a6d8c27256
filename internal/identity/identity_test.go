package identity

import (
	"context"
	"strings"
	"testing"
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"

	"billdesk/backend/internal/apperr"
	"billdesk/backend/internal/store/memory"
)

func TestCreateAndAuthenticate(t *testing.T) {
	p := NewStoreProvider(memory.New())
	ctx := context.Background()

	uid, err := p.CreateAccount(ctx, " Owner@Shop.test ", "s3cret-pass", "Owner")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	got, err := p.Authenticate(ctx, "owner@shop.test", "s3cret-pass")
	if err != nil {
		t.Fatalf("authenticate: %v", err)
	}
	if got != uid {
		t.Fatalf("expected uid %s, got %s", uid, got)
	}
	if _, err := p.Authenticate(ctx, "owner@shop.test", "wrong"); !apperr.Is(err, apperr.Unauthenticated) {
		t.Fatalf("expected unauthenticated, got %v", err)
	}
	if _, err := p.Authenticate(ctx, "nobody@shop.test", "s3cret-pass"); !apperr.Is(err, apperr.Unauthenticated) {
		t.Fatalf("expected unauthenticated for unknown email, got %v", err)
	}
}

func TestCreateAccountDuplicateEmail(t *testing.T) {
	p := NewStoreProvider(memory.New())
	ctx := context.Background()
	if _, err := p.CreateAccount(ctx, "staff@shop.test", "password1", "A"); err != nil {
		t.Fatalf("create: %v", err)
	}
	_, err := p.CreateAccount(ctx, "STAFF@shop.test", "password2", "B")
	if !apperr.Is(err, apperr.AlreadyExists) {
		t.Fatalf("expected already-exists, got %v", err)
	}
}

func TestCreateAccountValidation(t *testing.T) {
	p := NewStoreProvider(memory.New())
	tests := []struct {
		name     string
		email    string
		password string
	}{
		{name: "empty email", email: "", password: "password1"},
		{name: "malformed email", email: "not-an-email", password: "password1"},
		{name: "short password", email: "a@b.test", password: "123"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := p.CreateAccount(context.Background(), tc.email, tc.password, "x")
			if !apperr.Is(err, apperr.InvalidArgument) {
				t.Fatalf("expected invalid-argument, got %v", err)
			}
		})
	}
}

func TestDeleteAccountFreesEmail(t *testing.T) {
	p := NewStoreProvider(memory.New())
	ctx := context.Background()
	uid, err := p.CreateAccount(ctx, "staff@shop.test", "password1", "A")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := p.DeleteAccount(ctx, uid); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := p.Authenticate(ctx, "staff@shop.test", "password1"); !apperr.Is(err, apperr.Unauthenticated) {
		t.Fatalf("deleted account must not authenticate, got %v", err)
	}
	if err := p.DeleteAccount(ctx, uid); !apperr.Is(err, apperr.NotFound) {
		t.Fatalf("expected not-found on second delete, got %v", err)
	}
	if _, err := p.CreateAccount(ctx, "staff@shop.test", "password2", "A"); err != nil {
		t.Fatalf("email should be reusable after delete: %v", err)
	}
}

func TestTokenRoundTrip(t *testing.T) {
	issuer := NewTokenIssuer(strings.Repeat("k", 32), time.Hour)
	token, expiresAt, err := issuer.Issue("uid-1", "OWNER")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if time.Until(expiresAt) <= 0 {
		t.Fatalf("expected future expiry, got %v", expiresAt)
	}
	uid, err := issuer.Parse(token)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if uid != "uid-1" {
		t.Fatalf("expected uid-1, got %s", uid)
	}
}

func TestTokenRejectsForeignSecretAndExpiry(t *testing.T) {
	issuer := NewTokenIssuer(strings.Repeat("k", 32), time.Hour)
	other := NewTokenIssuer(strings.Repeat("x", 32), time.Hour)
	token, _, err := other.Issue("uid-1", "OWNER")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if _, err := issuer.Parse(token); err == nil {
		t.Fatalf("expected token signed with another secret to be rejected")
	}

	issuer.now = func() time.Time { return time.Now().Add(-2 * time.Hour) }
	expired, _, err := issuer.Issue("uid-1", "OWNER")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if _, err := issuer.Parse(expired); err == nil {
		t.Fatalf("expected expired token to be rejected")
	}
}

func TestTokenRejectsNoneAlgorithm(t *testing.T) {
	issuer := NewTokenIssuer(strings.Repeat("k", 32), time.Hour)
	claims := jwtlib.RegisteredClaims{Subject: "uid-1", Issuer: "billdesk"}
	unsigned, err := jwtlib.NewWithClaims(jwtlib.SigningMethodNone, claims).SignedString(jwtlib.UnsafeAllowNoneSignatureType)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	if _, err := issuer.Parse(unsigned); err == nil {
		t.Fatalf("expected alg=none token to be rejected")
	}
}
