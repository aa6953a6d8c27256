package service

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"billdesk/backend/internal/apperr"
	"billdesk/backend/internal/domain"
	"billdesk/backend/internal/identity"
	"billdesk/backend/internal/store"
	"billdesk/backend/internal/xid"
)

const (
	opSignUpOwner = "signUpOwner"
	opCreateShop  = "createShop"
)

// SignUpOwner registers a shop owner. The owner has every permission and no
// shop until CreateShop is called.
func (s *Service) SignUpOwner(ctx context.Context, req domain.SignUpRequest) (resp domain.SignUpResponse, err error) {
	started := s.clock()
	defer func() { s.observe(opSignUpOwner, started, err) }()

	email, err := identity.NormalizeEmail(req.Email)
	if err != nil {
		return domain.SignUpResponse{}, err
	}
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return domain.SignUpResponse{}, apperr.New(apperr.InvalidArgument, "name is required")
	}

	uid, err := s.identity.CreateAccount(ctx, email, req.Password, name)
	if err != nil {
		return domain.SignUpResponse{}, classify(err)
	}
	err = s.runTx(ctx, opSignUpOwner, func(ctx context.Context, tx store.Tx) error {
		doc, err := encodeWithTimestamps(domain.User{
			ID:          uid,
			Name:        name,
			Email:       email,
			Role:        domain.RoleOwner,
			IsActive:    true,
			Permissions: domain.AllPermissions(),
		}, "createdAt")
		if err != nil {
			return err
		}
		return tx.Create(domain.UserPath(uid), doc)
	})
	if err != nil {
		s.removeAccount(ctx, uid)
		return domain.SignUpResponse{}, classify(err)
	}

	s.log(ctx).Info("owner signed up", zap.String("uid", uid))
	return domain.SignUpResponse{UID: uid}, nil
}

// SignIn checks credentials and issues an access token. The token carries
// only the uid; role and shop are re-read on every call.
func (s *Service) SignIn(ctx context.Context, req domain.SignInRequest) (domain.SignInResponse, error) {
	if s.tokens == nil {
		return domain.SignInResponse{}, apperr.New(apperr.Internal, "token issuer is not configured")
	}
	uid, err := s.identity.Authenticate(ctx, req.Email, req.Password)
	if err != nil {
		return domain.SignInResponse{}, classify(err)
	}
	user, err := s.loadCaller(WithCaller(ctx, uid), s.store)
	if err != nil {
		return domain.SignInResponse{}, classify(err)
	}
	token, expiresAt, err := s.tokens.Issue(uid, string(user.Role))
	if err != nil {
		return domain.SignInResponse{}, apperr.Wrap(apperr.Internal, err, "failed to issue token")
	}
	return domain.SignInResponse{
		AccessToken: token,
		TokenType:   "Bearer",
		ExpiresAt:   expiresAt,
		UID:         uid,
		Role:        user.Role,
		ShopID:      user.ShopID,
	}, nil
}

// CreateShop creates the owner's shop and links it to the owner's profile.
func (s *Service) CreateShop(ctx context.Context, req domain.CreateShopRequest) (shop domain.Shop, err error) {
	started := s.clock()
	defer func() { s.observe(opCreateShop, started, err) }()

	businessName := strings.TrimSpace(req.BusinessName)
	if businessName == "" {
		return domain.Shop{}, apperr.New(apperr.InvalidArgument, "businessName is required")
	}
	billMessage := strings.TrimSpace(req.BillMessage)
	if billMessage == "" {
		billMessage = domain.DefaultBillMessage
	}

	shopID := xid.New("")
	err = s.runTx(ctx, opCreateShop, func(ctx context.Context, tx store.Tx) error {
		owner, err := s.loadCaller(ctx, tx)
		if err != nil {
			return err
		}
		if err := requireOwner(owner); err != nil {
			return err
		}
		if owner.Shop() != "" {
			return apperr.New(apperr.AlreadyExists, "owner already has a shop")
		}
		shop = domain.Shop{
			ID:           shopID,
			OwnerID:      owner.ID,
			BusinessName: businessName,
			Phone:        strings.TrimSpace(req.Phone),
			Address:      strings.TrimSpace(req.Address),
			GSTNumber:    strings.TrimSpace(req.GSTNumber),
			BillMessage:  billMessage,
		}
		doc, err := encodeWithTimestamps(shop, "createdAt")
		if err != nil {
			return err
		}
		if err := tx.Create(domain.ShopPath(shopID), doc); err != nil {
			return err
		}
		return tx.Update(domain.UserPath(owner.ID), map[string]any{"shopId": shopID})
	})
	if err != nil {
		return domain.Shop{}, classify(err)
	}
	shop.CreatedAt = s.now()

	s.log(ctx).Info("shop created", zap.String("shop_id", shopID))
	return shop, nil
}
