package identity

import (
	"context"
	"net/mail"
	"strings"
	"time"

	"billdesk/backend/internal/apperr"
	"billdesk/backend/internal/store"
	"billdesk/backend/internal/xid"
)

const (
	accountsCollection = "accounts"
	emailsCollection   = "accountEmails"
	minPasswordLength  = 6
)

// Provider manages login accounts. It knows nothing about shops or roles;
// those live on the user profile.
type Provider interface {
	CreateAccount(ctx context.Context, email string, password string, displayName string) (string, error)
	DeleteAccount(ctx context.Context, uid string) error
	// Authenticate returns the uid for valid credentials.
	Authenticate(ctx context.Context, email string, password string) (string, error)
}

type account struct {
	Email        string    `json:"email"`
	DisplayName  string    `json:"displayName"`
	PasswordHash string    `json:"passwordHash"`
	CreatedAt    time.Time `json:"createdAt"`
}

type emailIndex struct {
	UID string `json:"uid"`
}

// StoreProvider keeps accounts in the document store: accounts/{uid} holds
// the credential and accountEmails/{email} reserves the address.
type StoreProvider struct {
	store store.Store
}

func NewStoreProvider(st store.Store) *StoreProvider {
	return &StoreProvider{store: st}
}

func (p *StoreProvider) CreateAccount(ctx context.Context, email string, password string, displayName string) (string, error) {
	email, err := NormalizeEmail(email)
	if err != nil {
		return "", err
	}
	if len(password) < minPasswordLength {
		return "", apperr.Newf(apperr.InvalidArgument, "password must be at least %d characters", minPasswordLength)
	}
	hash, err := hashPassword(password)
	if err != nil {
		return "", apperr.Wrap(apperr.Internal, err, "failed to hash password")
	}

	uid := xid.New("")
	err = p.store.RunTransaction(ctx, func(ctx context.Context, tx store.Tx) error {
		existing, err := tx.Get(ctx, emailPath(email))
		if err != nil {
			return err
		}
		if existing.Exists {
			return apperr.New(apperr.AlreadyExists, "email already exists")
		}
		if err := tx.Create(emailPath(email), emailIndex{UID: uid}); err != nil {
			return err
		}
		doc, err := store.Encode(account{Email: email, DisplayName: strings.TrimSpace(displayName), PasswordHash: hash})
		if err != nil {
			return err
		}
		doc["createdAt"] = store.ServerTimestamp
		return tx.Create(accountPath(uid), doc)
	})
	if err != nil {
		if apperr.KindOf(err) == apperr.AlreadyExists {
			return "", apperr.New(apperr.AlreadyExists, "email already exists")
		}
		return "", err
	}
	return uid, nil
}

func (p *StoreProvider) DeleteAccount(ctx context.Context, uid string) error {
	if strings.TrimSpace(uid) == "" || strings.Contains(uid, "/") {
		return apperr.New(apperr.InvalidArgument, "uid is required")
	}
	return p.store.RunTransaction(ctx, func(ctx context.Context, tx store.Tx) error {
		snap, err := tx.Get(ctx, accountPath(uid))
		if err != nil {
			return err
		}
		if !snap.Exists {
			return apperr.New(apperr.NotFound, "account not found")
		}
		var acc account
		if err := snap.DataTo(&acc); err != nil {
			return err
		}
		if err := tx.Delete(accountPath(uid)); err != nil {
			return err
		}
		return tx.Delete(emailPath(acc.Email))
	})
}

func (p *StoreProvider) Authenticate(ctx context.Context, email string, password string) (string, error) {
	invalid := apperr.New(apperr.Unauthenticated, "invalid credentials")
	email, err := NormalizeEmail(email)
	if err != nil {
		return "", invalid
	}
	idx, err := p.store.Get(ctx, emailPath(email))
	if err != nil {
		return "", err
	}
	if !idx.Exists {
		return "", invalid
	}
	var entry emailIndex
	if err := idx.DataTo(&entry); err != nil {
		return "", err
	}
	snap, err := p.store.Get(ctx, accountPath(entry.UID))
	if err != nil {
		return "", err
	}
	if !snap.Exists {
		return "", invalid
	}
	var acc account
	if err := snap.DataTo(&acc); err != nil {
		return "", err
	}
	if !verifyPassword(acc.PasswordHash, password) {
		return "", invalid
	}
	return entry.UID, nil
}

// NormalizeEmail lower-cases and validates an address.
func NormalizeEmail(email string) (string, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" {
		return "", apperr.New(apperr.InvalidArgument, "email is required")
	}
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email || strings.Contains(email, "/") {
		return "", apperr.Newf(apperr.InvalidArgument, "invalid email %q", email)
	}
	return email, nil
}

func accountPath(uid string) string {
	return accountsCollection + "/" + uid
}

func emailPath(email string) string {
	return emailsCollection + "/" + email
}
