package workflow

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"

	"github.com/verdecarbon/biochar_backend/config"
	"github.com/verdecarbon/biochar_backend/models"
	"github.com/verdecarbon/biochar_backend/utils"
)

var tracer = otel.Tracer("biochar-backend")

// AllocationEngine turns a caller-supplied wish list of (batch, quantity)
// pairs into either a committed allocation set or a rejection. No partial
// commits: if any line fails, reservations made for earlier lines are rolled
// back before returning.
type AllocationEngine struct {
	batches models.BatchStore
	ledger  ReservationLedger
	logger  *logrus.Logger
}

func NewAllocationEngine(batches models.BatchStore, ledger ReservationLedger, logger *logrus.Logger) *AllocationEngine {
	return &AllocationEngine{batches: batches, ledger: ledger, logger: logger}
}

// ProposeAllocation validates and reserves the requested quantities.
// Input rules: non-empty, every quantity > 0, no duplicate batch ids
// (the selection UI produces one row per batch, so duplicates are a caller
// error, not something to merge silently).
func (e *AllocationEngine) ProposeAllocation(ctx context.Context, items []models.Allocation) (*models.AllocationSet, error) {
	ctx, span := tracer.Start(ctx, "ProposeAllocation")
	defer span.End()

	if len(items) == 0 {
		return nil, utils.NewValidationError("allocations", "at least one batch allocation is required")
	}
	seen := make(map[string]bool, len(items))
	for _, item := range items {
		if item.BatchId == "" {
			return nil, utils.NewValidationError("batch_id", "batch id is required")
		}
		if !item.RequestedQuantity.IsPositive() {
			return nil, utils.NewValidationError("requested_quantity", "requested quantity must be greater than zero")
		}
		if seen[item.BatchId] {
			return nil, utils.NewValidationError("batch_id", "duplicate batch "+item.BatchId+" in proposal")
		}
		seen[item.BatchId] = true
	}

	set := &models.AllocationSet{Items: make([]models.Allocation, 0, len(items))}
	for _, item := range items {
		batch, err := e.batches.GetBatch(ctx, item.BatchId)
		if err != nil {
			e.rollback(ctx, set)
			return nil, err
		}

		// The reservation check uses the exact stored quantity, never the
		// rounded display value the operator saw.
		if err := e.ledger.Reserve(ctx, batch.ID, item.RequestedQuantity, batch.AvailableQuantity); err != nil {
			e.rollback(ctx, set)
			return nil, err
		}

		set.Items = append(set.Items, models.Allocation{
			BatchId:           batch.ID,
			BatchCode:         batch.Code,
			RequestedQuantity: item.RequestedQuantity,
		})
	}
	return set, nil
}

// ReleaseAllocation returns a proposal's reservations to the pool, e.g. when
// persisting the remission failed after the reservations succeeded.
func (e *AllocationEngine) ReleaseAllocation(ctx context.Context, set *models.AllocationSet) {
	e.rollback(ctx, set)
}

func (e *AllocationEngine) rollback(ctx context.Context, set *models.AllocationSet) {
	if set == nil {
		return
	}
	for _, item := range set.Items {
		if err := e.ledger.Release(ctx, item.BatchId, item.RequestedQuantity); err != nil {
			config.LogError(e.logger, "workflow/allocation.go", "rollback", "release reservation", item.BatchId, err)
		}
	}
}

// BatchAvailability is a UI-facing live view of what is still free on a
// batch. Advisory only; the authoritative check happens in ProposeAllocation.
type BatchAvailability struct {
	BatchId   string          `json:"batch_id"`
	Code      string          `json:"code"`
	Available decimal.Decimal `json:"available"`
}

// RecomputeAvailability is the pure helper behind the allocation form: as the
// operator adds rows, it shows each batch's availability minus what the
// in-progress proposal already claims.
func (e *AllocationEngine) RecomputeAvailability(set models.AllocationSet, batches []*models.Batch) []BatchAvailability {
	claimed := make(map[string]decimal.Decimal, len(set.Items))
	for _, item := range set.Items {
		claimed[item.BatchId] = claimed[item.BatchId].Add(item.RequestedQuantity)
	}
	out := make([]BatchAvailability, 0, len(batches))
	for _, batch := range batches {
		out = append(out, BatchAvailability{
			BatchId:   batch.ID,
			Code:      batch.Code,
			Available: batch.AvailableQuantity.Sub(claimed[batch.ID]),
		})
	}
	return out
}

// UnreservedAvailability subtracts the ledger's outstanding reservations from
// each batch's stored availability; backs GET /api/batches.
func (e *AllocationEngine) UnreservedAvailability(ctx context.Context) ([]BatchAvailability, error) {
	batches, err := e.batches.ListAvailableBatches(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]BatchAvailability, 0, len(batches))
	for _, batch := range batches {
		outstanding, err := e.ledger.Outstanding(ctx, batch.ID)
		if err != nil {
			return nil, fmt.Errorf("reservation ledger read for batch %s: %w", batch.ID, err)
		}
		free := batch.AvailableQuantity.Sub(outstanding)
		if free.IsNegative() {
			free = decimal.Zero
		}
		out = append(out, BatchAvailability{BatchId: batch.ID, Code: batch.Code, Available: free})
	}
	return out, nil
}
