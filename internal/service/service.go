package service

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"

	"billdesk/backend/internal/apperr"
	"billdesk/backend/internal/catalog"
	"billdesk/backend/internal/domain"
	"billdesk/backend/internal/identity"
	"billdesk/backend/internal/logging"
	"billdesk/backend/internal/metrics"
	"billdesk/backend/internal/store"
)

type callerContextKey struct{}

// WithCaller marks ctx as acting on behalf of uid. Role and shop are never
// taken from the caller; they are re-read from the user profile.
func WithCaller(ctx context.Context, uid string) context.Context {
	return context.WithValue(ctx, callerContextKey{}, uid)
}

func CallerFromContext(ctx context.Context) (string, bool) {
	uid, ok := ctx.Value(callerContextKey{}).(string)
	return uid, ok && uid != ""
}

type Deps struct {
	Store    store.Store
	Identity identity.Provider
	Tokens   *identity.TokenIssuer
	Catalog  *catalog.Catalog
	Metrics  *metrics.Metrics
	Logger   *zap.Logger
	// Location decides the shop's calendar day and year.
	Location *time.Location
	Clock    func() time.Time
}

type Service struct {
	store    store.Store
	identity identity.Provider
	tokens   *identity.TokenIssuer
	catalog  *catalog.Catalog
	metrics  *metrics.Metrics
	logger   *zap.Logger
	location *time.Location
	clock    func() time.Time
}

func New(deps Deps) *Service {
	s := &Service{
		store:    deps.Store,
		identity: deps.Identity,
		tokens:   deps.Tokens,
		catalog:  deps.Catalog,
		metrics:  deps.Metrics,
		logger:   deps.Logger,
		location: deps.Location,
		clock:    deps.Clock,
	}
	if s.logger == nil {
		s.logger = zap.NewNop()
	}
	if s.location == nil {
		s.location = time.UTC
	}
	if s.clock == nil {
		s.clock = time.Now
	}
	if s.identity == nil {
		s.identity = identity.NewStoreProvider(deps.Store)
	}
	if s.catalog == nil {
		s.catalog = catalog.New(deps.Store, nil, 0, s.logger)
	}
	return s
}

// now is the current instant in the shop's timezone.
func (s *Service) now() time.Time {
	return s.clock().In(s.location)
}

func (s *Service) log(ctx context.Context) *zap.Logger {
	return logging.FromContext(ctx, s.logger)
}

// runTx runs fn in a store transaction, logging retries and recording how
// many attempts were needed.
func (s *Service) runTx(ctx context.Context, operation string, fn store.TxFunc) error {
	attempts := 0
	err := s.store.RunTransaction(ctx, func(ctx context.Context, tx store.Tx) error {
		attempts++
		if attempts > 1 {
			s.log(ctx).Warn("retrying transaction after conflict",
				zap.String("operation", operation),
				zap.Int("attempt", attempts),
			)
		}
		return fn(ctx, tx)
	})
	s.metrics.ObserveAttempts(operation, attempts)
	return err
}

func (s *Service) observe(operation string, started time.Time, err error) {
	outcome := "ok"
	if err != nil {
		outcome = string(apperr.KindOf(err))
	}
	s.metrics.ObserveOperation(operation, outcome, time.Since(started))
}

// loadCaller reads the caller's profile through r, so inside a transaction
// the role and shop checks are part of the read set.
func (s *Service) loadCaller(ctx context.Context, r store.Reader) (domain.User, error) {
	uid, ok := CallerFromContext(ctx)
	if !ok {
		return domain.User{}, apperr.New(apperr.Unauthenticated, "authentication required")
	}
	snap, err := r.Get(ctx, domain.UserPath(uid))
	if err != nil {
		return domain.User{}, err
	}
	if !snap.Exists {
		return domain.User{}, apperr.New(apperr.NotFound, "user profile not found")
	}
	var user domain.User
	if err := snap.DataTo(&user); err != nil {
		return domain.User{}, err
	}
	user.ID = uid
	if user.Role == domain.RoleStaff && !user.IsActive {
		return domain.User{}, apperr.New(apperr.PermissionDenied, "account is inactive")
	}
	return user, nil
}

func requireShop(user domain.User) (string, error) {
	shopID := user.Shop()
	if shopID == "" {
		return "", apperr.New(apperr.FailedPrecondition, "user has no shop")
	}
	return shopID, nil
}

func requireOwner(user domain.User) error {
	if user.Role != domain.RoleOwner {
		return apperr.New(apperr.PermissionDenied, "owner role required")
	}
	return nil
}

// requireOwnerShop checks the role before the shop, so a staff member is
// told permission-denied and an owner without a shop failed-precondition.
func requireOwnerShop(user domain.User) (string, error) {
	if err := requireOwner(user); err != nil {
		return "", err
	}
	return requireShop(user)
}

// classify makes every returned error carry a kind. Store conflicts that
// outlived the retry budget become aborted; unknown failures internal.
func classify(err error) error {
	if err == nil {
		return nil
	}
	return apperr.Normalize(err)
}

// docID validates an id taken from a request before it becomes part of a
// document path.
func docID(field string, value string) (string, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return "", apperr.Newf(apperr.InvalidArgument, "%s is required", field)
	}
	if strings.Contains(value, "/") || len(value) > 128 {
		return "", apperr.Newf(apperr.InvalidArgument, "invalid %s", field)
	}
	return value, nil
}

func encodeWithTimestamps(v any, fields ...string) (map[string]any, error) {
	doc, err := store.Encode(v)
	if err != nil {
		return nil, err
	}
	for _, field := range fields {
		doc[field] = store.ServerTimestamp
	}
	return doc, nil
}
