package models

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/verdecarbon/biochar_backend/config"
	"github.com/verdecarbon/biochar_backend/recordstore"
	"github.com/verdecarbon/biochar_backend/utils"
)

// Batch is a unit of produced material. AvailableQuantity is the dry output
// not yet shipped; it is only ever decremented by confirmed remission
// receipts, never incremented by this service.
type Batch struct {
	ID                string          `json:"id"`
	Code              string          `json:"code"`
	AvailableQuantity decimal.Decimal `json:"available_quantity"`
	Status            string          `json:"status"`
}

var BatchFields = recordstore.FieldMap{
	"code":              "Código",
	"availableQuantity": "Biochar Seco Disponible (kg)",
	"status":            "Estado",
}

var batchRequiredFields = []string{"code", "availableQuantity", "status"}

func BatchFromRecord(rec *recordstore.Record) *Batch {
	return &Batch{
		ID:                rec.ID,
		Code:              rec.String(BatchFields.Column("code")),
		AvailableQuantity: rec.Decimal(BatchFields.Column("availableQuantity")),
		Status:            rec.String(BatchFields.Column("status")),
	}
}

// BatchStore is the read/write surface over batch records. The production
// implementation talks to the record store; tests substitute a fake.
type BatchStore interface {
	GetBatch(ctx context.Context, batchId string) (*Batch, error)
	ListAvailableBatches(ctx context.Context) ([]*Batch, error)
	DecrementAvailableQuantity(ctx context.Context, batchId string, amount decimal.Decimal) (*Batch, error)
}

type batchStore struct {
	client *recordstore.Client
	logger *logrus.Logger
}

func NewBatchStore(client *recordstore.Client, logger *logrus.Logger) BatchStore {
	return &batchStore{client: client, logger: logger}
}

func (s *batchStore) GetBatch(ctx context.Context, batchId string) (*Batch, error) {
	rec, err := s.client.GetRecord(ctx, "batches", batchId)
	if err != nil {
		return nil, err
	}
	return BatchFromRecord(rec), nil
}

func (s *batchStore) ListAvailableBatches(ctx context.Context) ([]*Batch, error) {
	formula := fmt.Sprintf("{%s} > 0", BatchFields.Column("availableQuantity"))
	recs, err := s.client.ListRecords(ctx, "batches", recordstore.ListQuery{
		FilterFormula: formula,
		Sort:          []string{BatchFields.Column("code")},
	})
	if err != nil {
		return nil, err
	}
	batches := make([]*Batch, 0, len(recs))
	for _, rec := range recs {
		batches = append(batches, BatchFromRecord(rec))
	}
	return batches, nil
}

// DecrementAvailableQuantity debits a confirmed receipt's quantity from the
// batch. The caller holds the remission lock; this is still a read-modify-
// write against the store, so the result is re-checked before writing:
// available stock must never go negative.
func (s *batchStore) DecrementAvailableQuantity(ctx context.Context, batchId string, amount decimal.Decimal) (*Batch, error) {
	if amount.IsNegative() {
		return nil, utils.NewValidationError("amount", "debit amount must not be negative")
	}

	rec, err := s.client.GetRecord(ctx, "batches", batchId)
	if err != nil {
		return nil, err
	}
	batch := BatchFromRecord(rec)

	remaining := batch.AvailableQuantity.Sub(amount)
	if remaining.IsNegative() {
		err := fmt.Errorf("debit of %s would leave batch %s negative (available %s)",
			amount.String(), batch.Code, batch.AvailableQuantity.String())
		config.LogError(s.logger, "models/batch.go", "DecrementAvailableQuantity", "negative stock guard", batchId, err)
		return nil, utils.NewAdapterError("decrement batch "+batchId, err)
	}

	qty, _ := remaining.Float64()
	updated, err := s.client.UpdateRecord(ctx, "batches", batchId, map[string]any{
		BatchFields.Column("availableQuantity"): qty,
	})
	if err != nil {
		return nil, err
	}
	return BatchFromRecord(updated), nil
}
