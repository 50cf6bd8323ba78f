package workflow

import (
	"context"
	"errors"
	"testing"

	"github.com/verdecarbon/biochar_backend/models"
	"github.com/verdecarbon/biochar_backend/utils"
)

func newTestEngine(batches *fakeBatchStore) (*AllocationEngine, ReservationLedger) {
	ledger := NewMemoryReservationLedger()
	return NewAllocationEngine(batches, ledger, testLogger()), ledger
}

func TestProposeAllocation_ReservesAcrossBatches(t *testing.T) {
	store := newFakeBatchStore(
		&models.Batch{ID: "b1", Code: "L-001", AvailableQuantity: dec("500")},
		&models.Batch{ID: "b2", Code: "L-002", AvailableQuantity: dec("300")},
	)
	engine, ledger := newTestEngine(store)

	set, err := engine.ProposeAllocation(context.Background(), []models.Allocation{
		{BatchId: "b1", RequestedQuantity: dec("200")},
		{BatchId: "b2", RequestedQuantity: dec("100.5")},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(set.Items) != 2 {
		t.Fatalf("expected 2 allocation lines, got %d", len(set.Items))
	}
	if set.Items[0].BatchCode != "L-001" {
		t.Fatalf("expected batch code resolved from store, got %q", set.Items[0].BatchCode)
	}
	if got := set.Total(); !got.Equal(dec("300.5")) {
		t.Fatalf("expected total 300.5, got %s", got)
	}

	out, _ := ledger.Outstanding(context.Background(), "b1")
	if !out.Equal(dec("200")) {
		t.Fatalf("expected 200 outstanding on b1, got %s", out)
	}
}

func TestProposeAllocation_EmptyProposalRejectedBeforeStore(t *testing.T) {
	store := newFakeBatchStore()
	engine, _ := newTestEngine(store)

	_, err := engine.ProposeAllocation(context.Background(), nil)
	if !utils.IsValidationError(err) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if store.getCalls != 0 {
		t.Fatalf("empty proposal must not reach the store; got %d calls", store.getCalls)
	}
}

func TestProposeAllocation_InputValidation(t *testing.T) {
	store := newFakeBatchStore(
		&models.Batch{ID: "b1", Code: "L-001", AvailableQuantity: dec("500")},
	)
	engine, _ := newTestEngine(store)

	cases := []struct {
		name  string
		items []models.Allocation
	}{
		{"missing batch id", []models.Allocation{{RequestedQuantity: dec("10")}}},
		{"zero quantity", []models.Allocation{{BatchId: "b1", RequestedQuantity: dec("0")}}},
		{"negative quantity", []models.Allocation{{BatchId: "b1", RequestedQuantity: dec("-5")}}},
		{"duplicate batch", []models.Allocation{
			{BatchId: "b1", RequestedQuantity: dec("10")},
			{BatchId: "b1", RequestedQuantity: dec("20")},
		}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := engine.ProposeAllocation(context.Background(), tc.items); !utils.IsValidationError(err) {
				t.Fatalf("expected validation error, got %v", err)
			}
		})
	}
}

func TestProposeAllocation_OverAllocationRollsBackEarlierLines(t *testing.T) {
	store := newFakeBatchStore(
		&models.Batch{ID: "b1", Code: "L-001", AvailableQuantity: dec("500")},
		&models.Batch{ID: "b2", Code: "L-002", AvailableQuantity: dec("50")},
	)
	engine, ledger := newTestEngine(store)

	_, err := engine.ProposeAllocation(context.Background(), []models.Allocation{
		{BatchId: "b1", RequestedQuantity: dec("100")},
		{BatchId: "b2", RequestedQuantity: dec("80")},
	})
	if !utils.IsInsufficientStock(err) {
		t.Fatalf("expected insufficient stock, got %v", err)
	}

	// The b1 reservation from the first line must have been released.
	out, _ := ledger.Outstanding(context.Background(), "b1")
	if !out.IsZero() {
		t.Fatalf("expected rollback of b1 reservation, still outstanding: %s", out)
	}
}

func TestProposeAllocation_SequentialProposalsShareTheBatch(t *testing.T) {
	store := newFakeBatchStore(
		&models.Batch{ID: "b1", Code: "L-001", AvailableQuantity: dec("100")},
	)
	engine, _ := newTestEngine(store)

	if _, err := engine.ProposeAllocation(context.Background(), []models.Allocation{
		{BatchId: "b1", RequestedQuantity: dec("60")},
	}); err != nil {
		t.Fatalf("first proposal: %v", err)
	}

	// Second proposal sees only the unreserved remainder.
	_, err := engine.ProposeAllocation(context.Background(), []models.Allocation{
		{BatchId: "b1", RequestedQuantity: dec("60")},
	})
	var ise *utils.InsufficientStockError
	if !errors.As(err, &ise) {
		t.Fatalf("expected insufficient stock, got %v", err)
	}
	if !ise.Available.Equal(dec("40")) {
		t.Fatalf("expected 40 free reported, got %s", ise.Available)
	}

	if _, err := engine.ProposeAllocation(context.Background(), []models.Allocation{
		{BatchId: "b1", RequestedQuantity: dec("40")},
	}); err != nil {
		t.Fatalf("remainder should fit exactly: %v", err)
	}
}

func TestReleaseAllocation_ReturnsReservations(t *testing.T) {
	store := newFakeBatchStore(
		&models.Batch{ID: "b1", Code: "L-001", AvailableQuantity: dec("100")},
	)
	engine, ledger := newTestEngine(store)

	set, err := engine.ProposeAllocation(context.Background(), []models.Allocation{
		{BatchId: "b1", RequestedQuantity: dec("70")},
	})
	if err != nil {
		t.Fatalf("propose: %v", err)
	}
	engine.ReleaseAllocation(context.Background(), set)

	out, _ := ledger.Outstanding(context.Background(), "b1")
	if !out.IsZero() {
		t.Fatalf("expected zero outstanding after release, got %s", out)
	}
}

func TestUnreservedAvailability_SubtractsOutstanding(t *testing.T) {
	store := newFakeBatchStore(
		&models.Batch{ID: "b1", Code: "L-001", AvailableQuantity: dec("100")},
	)
	engine, ledger := newTestEngine(store)

	if err := ledger.Reserve(context.Background(), "b1", dec("30"), dec("100")); err != nil {
		t.Fatalf("reserve: %v", err)
	}

	availability, err := engine.UnreservedAvailability(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(availability) != 1 {
		t.Fatalf("expected 1 batch, got %d", len(availability))
	}
	if !availability[0].Available.Equal(dec("70")) {
		t.Fatalf("expected 70 unreserved, got %s", availability[0].Available)
	}
}

func TestRecomputeAvailability_IsPure(t *testing.T) {
	store := newFakeBatchStore()
	engine, _ := newTestEngine(store)

	batches := []*models.Batch{
		{ID: "b1", Code: "L-001", AvailableQuantity: dec("100")},
		{ID: "b2", Code: "L-002", AvailableQuantity: dec("50")},
	}
	set := models.AllocationSet{Items: []models.Allocation{
		{BatchId: "b1", RequestedQuantity: dec("25")},
	}}

	first := engine.RecomputeAvailability(set, batches)
	second := engine.RecomputeAvailability(set, batches)
	if len(first) != 2 || len(second) != 2 {
		t.Fatalf("expected 2 rows each, got %d and %d", len(first), len(second))
	}
	for i := range first {
		if !first[i].Available.Equal(second[i].Available) {
			t.Fatalf("recompute is not deterministic: %s vs %s", first[i].Available, second[i].Available)
		}
	}
	if !first[0].Available.Equal(dec("75")) {
		t.Fatalf("expected 75 available on b1, got %s", first[0].Available)
	}
	if !first[1].Available.Equal(dec("50")) {
		t.Fatalf("expected untouched batch to keep 50, got %s", first[1].Available)
	}
}
