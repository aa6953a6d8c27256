package service

import (
	"testing"

	"billdesk/backend/internal/apperr"
	"billdesk/backend/internal/domain"
)

func TestSupplierLifecycle(t *testing.T) {
	env := newTestEnv(t)

	created, err := env.svc.CreateSupplier(as(testOwner), domain.CreateSupplierRequest{
		Name: "Bharat Wholesale", Phone: "555", OpeningBalance: dec("250"),
	})
	if err != nil {
		t.Fatalf("create supplier: %v", err)
	}
	if !created.IsActive || !created.PurchaseDue.IsZero() || !created.OpeningBalance.Equal(dec("250")) {
		t.Fatalf("unexpected supplier %+v", created)
	}

	phone := "  777 "
	if err := env.svc.UpdateSupplier(as(testOwner), created.ID, domain.UpdateSupplierRequest{Phone: &phone}); err != nil {
		t.Fatalf("update supplier: %v", err)
	}
	var stored domain.Supplier
	env.decode(t, domain.SupplierPath(testShop, created.ID), &stored)
	if stored.Phone != "777" || stored.Name != "Bharat Wholesale" || !stored.OpeningBalance.Equal(dec("250")) {
		t.Fatalf("unexpected supplier after update %+v", stored)
	}

	if err := env.svc.DeleteSupplier(as(testOwner), created.ID); err != nil {
		t.Fatalf("delete supplier: %v", err)
	}
	env.decode(t, domain.SupplierPath(testShop, created.ID), &stored)
	if stored.IsActive {
		t.Fatalf("delete must only deactivate")
	}

	list, err := env.svc.ListSuppliers(as(testOwner))
	if err != nil {
		t.Fatalf("list suppliers: %v", err)
	}
	var names []string
	for _, s := range list {
		names = append(names, s.Name)
	}
	want := []string{"Acme Traders", "Bharat Wholesale", "Gone Ltd"}
	if len(names) != len(want) {
		t.Fatalf("expected %v, got %v", want, names)
	}
	for i := range want {
		if names[i] != want[i] {
			t.Fatalf("expected %v, got %v", want, names)
		}
	}
}

func TestSupplierRejections(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.svc.CreateSupplier(as(testStaff), domain.CreateSupplierRequest{Name: "X"})
	expectKind(t, err, apperr.PermissionDenied)
	_, err = env.svc.CreateSupplier(as(testOwner), domain.CreateSupplierRequest{Name: "X", OpeningBalance: dec("-1")})
	expectKind(t, err, apperr.InvalidArgument)
	_, err = env.svc.CreateSupplier(as(testOwner), domain.CreateSupplierRequest{})
	expectKind(t, err, apperr.InvalidArgument)

	name := "Y"
	err = env.svc.UpdateSupplier(as(testOwner), "missing", domain.UpdateSupplierRequest{Name: &name})
	expectKind(t, err, apperr.NotFound)
	err = env.svc.UpdateSupplier(as(testOwner), "sup1", domain.UpdateSupplierRequest{})
	expectKind(t, err, apperr.InvalidArgument)
	err = env.svc.DeleteSupplier(as(testStaff), "sup1")
	expectKind(t, err, apperr.PermissionDenied)
}
