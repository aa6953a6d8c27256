package identity

import (
	"errors"
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"
)

const issuer = "billdesk"

// TokenIssuer signs HS256 access tokens whose subject is the caller uid.
// The role claim is informational; authorization always re-reads the user
// profile from the store.
type TokenIssuer struct {
	secret   []byte
	tokenTTL time.Duration
	now      func() time.Time
}

type accessClaims struct {
	jwtlib.RegisteredClaims
	Role string `json:"role,omitempty"`
}

func NewTokenIssuer(secret string, tokenTTL time.Duration) *TokenIssuer {
	if tokenTTL <= 0 {
		tokenTTL = 8 * time.Hour
	}
	return &TokenIssuer{secret: []byte(secret), tokenTTL: tokenTTL, now: time.Now}
}

func (t *TokenIssuer) Issue(uid string, role string) (string, time.Time, error) {
	now := t.now().UTC()
	expiresAt := now.Add(t.tokenTTL)
	claims := accessClaims{
		RegisteredClaims: jwtlib.RegisteredClaims{
			Subject:   uid,
			IssuedAt:  jwtlib.NewNumericDate(now),
			ExpiresAt: jwtlib.NewNumericDate(expiresAt),
			Issuer:    issuer,
		},
		Role: role,
	}
	token := jwtlib.NewWithClaims(jwtlib.SigningMethodHS256, claims)
	signed, err := token.SignedString(t.secret)
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, expiresAt, nil
}

// Parse validates a token and returns its subject uid.
func (t *TokenIssuer) Parse(tokenStr string) (string, error) {
	claims := &accessClaims{}
	token, err := jwtlib.ParseWithClaims(tokenStr, claims, func(tok *jwtlib.Token) (interface{}, error) {
		if _, ok := tok.Method.(*jwtlib.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return t.secret, nil
	}, jwtlib.WithValidMethods([]string{"HS256"}), jwtlib.WithIssuer(issuer))
	if err != nil || !token.Valid {
		return "", errors.New("invalid or expired token")
	}
	sub, err := claims.GetSubject()
	if err != nil || sub == "" {
		return "", errors.New("invalid token subject")
	}
	return sub, nil
}
