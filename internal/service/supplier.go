package service

import (
	"context"
	"sort"
	"strings"

	"github.com/shopspring/decimal"

	"billdesk/backend/internal/apperr"
	"billdesk/backend/internal/domain"
	"billdesk/backend/internal/store"
	"billdesk/backend/internal/xid"
)

const (
	opCreateSupplier = "createSupplier"
	opUpdateSupplier = "updateSupplier"
	opDeleteSupplier = "deleteSupplier"
)

func (s *Service) CreateSupplier(ctx context.Context, req domain.CreateSupplierRequest) (supplier domain.Supplier, err error) {
	started := s.clock()
	defer func() { s.observe(opCreateSupplier, started, err) }()

	name := strings.TrimSpace(req.Name)
	if name == "" {
		return domain.Supplier{}, apperr.New(apperr.InvalidArgument, "name is required")
	}
	if req.OpeningBalance.IsNegative() {
		return domain.Supplier{}, apperr.New(apperr.InvalidArgument, "openingBalance must not be negative")
	}

	supplierID := xid.New("")
	err = s.runTx(ctx, opCreateSupplier, func(ctx context.Context, tx store.Tx) error {
		caller, err := s.loadCaller(ctx, tx)
		if err != nil {
			return err
		}
		shopID, err := requireOwnerShop(caller)
		if err != nil {
			return err
		}
		supplier = domain.Supplier{
			ID:             supplierID,
			Name:           name,
			Phone:          strings.TrimSpace(req.Phone),
			Address:        strings.TrimSpace(req.Address),
			GSTNumber:      strings.TrimSpace(req.GSTNumber),
			OpeningBalance: req.OpeningBalance,
			PurchaseDue:    decimal.Zero,
			IsActive:       true,
		}
		doc, err := encodeWithTimestamps(supplier, "createdAt")
		if err != nil {
			return err
		}
		return tx.Create(domain.SupplierPath(shopID, supplierID), doc)
	})
	if err != nil {
		return domain.Supplier{}, classify(err)
	}
	supplier.CreatedAt = s.now()
	return supplier, nil
}

// UpdateSupplier changes contact details only. Balances are owned by
// purchases and the opening balance is fixed at creation.
func (s *Service) UpdateSupplier(ctx context.Context, supplierID string, req domain.UpdateSupplierRequest) (err error) {
	started := s.clock()
	defer func() { s.observe(opUpdateSupplier, started, err) }()

	supplierID, err = docID("supplierId", supplierID)
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
	if req.Phone != nil {
		fields["phone"] = strings.TrimSpace(*req.Phone)
	}
	if req.Address != nil {
		fields["address"] = strings.TrimSpace(*req.Address)
	}
	if req.GSTNumber != nil {
		fields["gstNumber"] = strings.TrimSpace(*req.GSTNumber)
	}
	if len(fields) == 0 {
		return apperr.New(apperr.InvalidArgument, "nothing to update")
	}

	return classify(s.runTx(ctx, opUpdateSupplier, func(ctx context.Context, tx store.Tx) error {
		path, err := s.ownedSupplier(ctx, tx, supplierID)
		if err != nil {
			return err
		}
		return tx.Update(path, fields)
	}))
}

// DeleteSupplier deactivates the supplier. Past purchases keep referring to
// it, so the document stays.
func (s *Service) DeleteSupplier(ctx context.Context, supplierID string) (err error) {
	started := s.clock()
	defer func() { s.observe(opDeleteSupplier, started, err) }()

	supplierID, err = docID("supplierId", supplierID)
	if err != nil {
		return err
	}
	return classify(s.runTx(ctx, opDeleteSupplier, func(ctx context.Context, tx store.Tx) error {
		path, err := s.ownedSupplier(ctx, tx, supplierID)
		if err != nil {
			return err
		}
		return tx.Update(path, map[string]any{"isActive": false})
	}))
}

func (s *Service) ownedSupplier(ctx context.Context, tx store.Reader, supplierID string) (string, error) {
	caller, err := s.loadCaller(ctx, tx)
	if err != nil {
		return "", err
	}
	shopID, err := requireOwnerShop(caller)
	if err != nil {
		return "", err
	}
	path := domain.SupplierPath(shopID, supplierID)
	snap, err := tx.Get(ctx, path)
	if err != nil {
		return "", err
	}
	if !snap.Exists {
		return "", apperr.Newf(apperr.NotFound, "supplier %s not found", supplierID)
	}
	return path, nil
}

// ListSuppliers returns active suppliers first, each group ordered by name.
func (s *Service) ListSuppliers(ctx context.Context) ([]domain.Supplier, error) {
	caller, err := s.loadCaller(ctx, s.store)
	if err != nil {
		return nil, classify(err)
	}
	shopID, err := requireOwnerShop(caller)
	if err != nil {
		return nil, err
	}
	snaps, err := s.store.List(ctx, domain.SuppliersCollection(shopID))
	if err != nil {
		return nil, classify(err)
	}
	out := make([]domain.Supplier, 0, len(snaps))
	for _, snap := range snaps {
		var sup domain.Supplier
		if err := snap.DataTo(&sup); err != nil {
			return nil, classify(err)
		}
		sup.ID = snap.ID
		out = append(out, sup)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].IsActive != out[j].IsActive {
			return out[i].IsActive
		}
		return strings.ToLower(out[i].Name) < strings.ToLower(out[j].Name)
	})
	return out, nil
}
