package service

import (
	"strings"
	"time"

	"billdesk/backend/internal/apperr"
	"billdesk/backend/internal/domain"
	"billdesk/backend/internal/store"
)

// requestRecord is stored at shops/{shopId}/requests/{key} in the same
// transaction as the bill or purchase it produced, so a retried call with
// the same key can return the original result instead of issuing again.
type requestRecord struct {
	Operation string                         `json:"operation"`
	Bill      *domain.CreateBillResponse     `json:"bill,omitempty"`
	Purchase  *domain.CreatePurchaseResponse `json:"purchase,omitempty"`
	CreatedAt time.Time                      `json:"createdAt"`
}

func normalizeIdempotencyKey(key string) (string, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return "", nil
	}
	return docID("idempotencyKey", key)
}

func decodeRequestRecord(snap *store.Snapshot, operation string) (requestRecord, error) {
	var rec requestRecord
	if err := snap.DataTo(&rec); err != nil {
		return requestRecord{}, err
	}
	if rec.Operation != operation {
		return requestRecord{}, apperr.New(apperr.InvalidArgument, "idempotency key was already used for a different operation")
	}
	return rec, nil
}

func replayBill(snap *store.Snapshot) (domain.CreateBillResponse, error) {
	rec, err := decodeRequestRecord(snap, opCreateBill)
	if err != nil {
		return domain.CreateBillResponse{}, err
	}
	if rec.Bill == nil {
		return domain.CreateBillResponse{}, apperr.New(apperr.Internal, "stored request has no bill result")
	}
	resp := *rec.Bill
	resp.Duplicate = true
	return resp, nil
}

func replayPurchase(snap *store.Snapshot) (domain.CreatePurchaseResponse, error) {
	rec, err := decodeRequestRecord(snap, opCreatePurchase)
	if err != nil {
		return domain.CreatePurchaseResponse{}, err
	}
	if rec.Purchase == nil {
		return domain.CreatePurchaseResponse{}, apperr.New(apperr.Internal, "stored request has no purchase result")
	}
	resp := *rec.Purchase
	resp.Duplicate = true
	return resp, nil
}

func encodeRequestRecord(rec requestRecord) (map[string]any, error) {
	return encodeWithTimestamps(rec, "createdAt")
}
