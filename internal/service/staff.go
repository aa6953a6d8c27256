package service

import (
	"context"
	"sort"
	"strings"

	"go.uber.org/zap"

	"billdesk/backend/internal/apperr"
	"billdesk/backend/internal/domain"
	"billdesk/backend/internal/identity"
	"billdesk/backend/internal/store"
)

const (
	opCreateStaff = "createStaff"
	opDeleteStaff = "deleteStaff"
	opUpdateStaff = "updateStaff"
)

// CreateStaff opens a login account for a new staff member of the owner's
// shop. If the profile cannot be written the account is removed again.
func (s *Service) CreateStaff(ctx context.Context, req domain.CreateStaffRequest) (resp domain.CreateStaffResponse, err error) {
	started := s.clock()
	defer func() { s.observe(opCreateStaff, started, err) }()

	email, err := identity.NormalizeEmail(req.Email)
	if err != nil {
		return domain.CreateStaffResponse{}, err
	}
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return domain.CreateStaffResponse{}, apperr.New(apperr.InvalidArgument, "name is required")
	}
	permissions := domain.Permissions{}
	if req.Permissions != nil {
		permissions = *req.Permissions
	}

	owner, err := s.loadCaller(ctx, s.store)
	if err != nil {
		return domain.CreateStaffResponse{}, classify(err)
	}
	if _, err := requireOwnerShop(owner); err != nil {
		return domain.CreateStaffResponse{}, err
	}

	uid, err := s.identity.CreateAccount(ctx, email, req.Password, name)
	if err != nil {
		return domain.CreateStaffResponse{}, classify(err)
	}

	var shopID string
	err = s.runTx(ctx, opCreateStaff, func(ctx context.Context, tx store.Tx) error {
		owner, err := s.loadCaller(ctx, tx)
		if err != nil {
			return err
		}
		shopID, err = requireOwnerShop(owner)
		if err != nil {
			return err
		}
		user := domain.User{
			ID:          uid,
			Name:        name,
			Email:       email,
			Role:        domain.RoleStaff,
			ShopID:      &shopID,
			IsActive:    true,
			Permissions: permissions,
		}
		userDoc, err := encodeWithTimestamps(user, "createdAt")
		if err != nil {
			return err
		}
		record := domain.StaffRecord{
			UID:         uid,
			Name:        name,
			Email:       email,
			Permissions: permissions,
			IsActive:    true,
		}
		recordDoc, err := encodeWithTimestamps(record, "createdAt")
		if err != nil {
			return err
		}
		if err := tx.Create(domain.UserPath(uid), userDoc); err != nil {
			return err
		}
		return tx.Create(domain.StaffPath(shopID, uid), recordDoc)
	})
	if err != nil {
		s.removeAccount(ctx, uid)
		return domain.CreateStaffResponse{}, classify(err)
	}

	s.log(ctx).Info("staff created", zap.String("shop_id", shopID), zap.String("staff_uid", uid))
	return domain.CreateStaffResponse{UID: uid}, nil
}

// removeAccount undoes CreateAccount after a failed profile write. It runs
// even if ctx was cancelled.
func (s *Service) removeAccount(ctx context.Context, uid string) {
	if err := s.identity.DeleteAccount(context.WithoutCancel(ctx), uid); err != nil && !apperr.Is(err, apperr.NotFound) {
		s.log(ctx).Error("failed to remove orphaned account", zap.String("uid", uid), zap.Error(err))
	}
}

// DeleteStaff removes a staff member's profile, the shop's staff record and
// the login account.
func (s *Service) DeleteStaff(ctx context.Context, req domain.DeleteStaffRequest) (err error) {
	started := s.clock()
	defer func() { s.observe(opDeleteStaff, started, err) }()

	staffID, err := docID("staffId", req.StaffID)
	if err != nil {
		return err
	}

	var shopID string
	err = s.runTx(ctx, opDeleteStaff, func(ctx context.Context, tx store.Tx) error {
		owner, err := s.loadCaller(ctx, tx)
		if err != nil {
			return err
		}
		shopID, err = requireOwnerShop(owner)
		if err != nil {
			return err
		}
		snap, err := tx.Get(ctx, domain.UserPath(staffID))
		if err != nil {
			return err
		}
		if !snap.Exists {
			return apperr.New(apperr.NotFound, "staff member not found")
		}
		var staff domain.User
		if err := snap.DataTo(&staff); err != nil {
			return err
		}
		if staff.Role != domain.RoleStaff || staff.Shop() != shopID {
			return apperr.New(apperr.PermissionDenied, "user is not staff of this shop")
		}
		if err := tx.Delete(domain.UserPath(staffID)); err != nil {
			return err
		}
		return tx.Delete(domain.StaffPath(shopID, staffID))
	})
	if err != nil {
		return classify(err)
	}

	if err := s.identity.DeleteAccount(ctx, staffID); err != nil && !apperr.Is(err, apperr.NotFound) {
		s.log(ctx).Error("staff profile deleted but account removal failed", zap.String("staff_uid", staffID), zap.Error(err))
		return apperr.Wrap(apperr.Internal, err, "failed to delete staff account")
	}
	s.log(ctx).Info("staff deleted", zap.String("shop_id", shopID), zap.String("staff_uid", staffID))
	return nil
}

// UpdateStaff changes a staff member's name, permissions or active flag on
// both the profile and the shop's staff record.
func (s *Service) UpdateStaff(ctx context.Context, staffID string, req domain.UpdateStaffRequest) (err error) {
	started := s.clock()
	defer func() { s.observe(opUpdateStaff, started, err) }()

	staffID, err = docID("staffId", staffID)
	if err != nil {
		return err
	}
	fields := map[string]any{}
	if req.Name != nil {
		name := strings.TrimSpace(*req.Name)
		if name == "" {
			return apperr.New(apperr.InvalidArgument, "name must not be empty")
		}
		fields["name"] = name
	}
	if req.Permissions != nil {
		perms, err := store.Encode(*req.Permissions)
		if err != nil {
			return err
		}
		fields["permissions"] = perms
	}
	if req.IsActive != nil {
		fields["isActive"] = *req.IsActive
	}
	if len(fields) == 0 {
		return apperr.New(apperr.InvalidArgument, "nothing to update")
	}

	return classify(s.runTx(ctx, opUpdateStaff, func(ctx context.Context, tx store.Tx) error {
		owner, err := s.loadCaller(ctx, tx)
		if err != nil {
			return err
		}
		shopID, err := requireOwnerShop(owner)
		if err != nil {
			return err
		}
		snap, err := tx.Get(ctx, domain.UserPath(staffID))
		if err != nil {
			return err
		}
		if !snap.Exists {
			return apperr.New(apperr.NotFound, "staff member not found")
		}
		var staff domain.User
		if err := snap.DataTo(&staff); err != nil {
			return err
		}
		if staff.Role != domain.RoleStaff || staff.Shop() != shopID {
			return apperr.New(apperr.PermissionDenied, "user is not staff of this shop")
		}
		if err := tx.Update(domain.UserPath(staffID), fields); err != nil {
			return err
		}
		return tx.SetMerge(domain.StaffPath(shopID, staffID), fields)
	}))
}

func (s *Service) ListStaff(ctx context.Context) ([]domain.StaffRecord, error) {
	owner, err := s.loadCaller(ctx, s.store)
	if err != nil {
		return nil, classify(err)
	}
	shopID, err := requireOwnerShop(owner)
	if err != nil {
		return nil, err
	}
	snaps, err := s.store.List(ctx, domain.StaffCollection(shopID))
	if err != nil {
		return nil, classify(err)
	}
	out := make([]domain.StaffRecord, 0, len(snaps))
	for _, snap := range snaps {
		var rec domain.StaffRecord
		if err := snap.DataTo(&rec); err != nil {
			return nil, classify(err)
		}
		rec.UID = snap.ID
		out = append(out, rec)
	}
	sort.SliceStable(out, func(i, j int) bool {
		return strings.ToLower(out[i].Name) < strings.ToLower(out[j].Name)
	})
	return out, nil
}
