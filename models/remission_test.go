package models

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/verdecarbon/biochar_backend/recordstore"
)

func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)
	return logger
}

func TestRemissionState_DerivedFromConfirmationBlocks(t *testing.T) {
	cases := []struct {
		name     string
		delivery *DeliveryInfo
		receipt  *ReceiptInfo
		want     RemissionState
	}{
		{"nothing confirmed", nil, nil, StateCreated},
		{"delivery only", &DeliveryInfo{ResponsibleName: "Carlos"}, nil, StateDeliveryConfirmed},
		{"both confirmed", &DeliveryInfo{ResponsibleName: "Carlos"}, &ReceiptInfo{ResponsibleName: "Ana"}, StateReceiptConfirmed},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			r := &Remission{DeliveryInfo: tc.delivery, ReceiptInfo: tc.receipt}
			if got := r.State(); got != tc.want {
				t.Fatalf("expected %s, got %s", tc.want, got)
			}
		})
	}
}

func TestRemissionFromRecord_PhasePresence(t *testing.T) {
	rec := &recordstore.Record{
		ID: "rec001",
		Fields: map[string]any{
			"Cliente":      "Finca La Esperanza",
			"NIT Cliente":  "900123456-7",
			"Fecha Evento": "2026-08-20",
			"Creado Por":   "operador1",
			"Asignaciones": `[{"batch_id":"b1","batch_code":"L-001","requested_quantity":"200"}]`,

			"Entrega Responsable": "Carlos Pérez",
			"Entrega Documento":   "1020304050",
			"Entrega Fecha":       "2026-08-21T14:30:00Z",

			// A blank receipt column means the phase has not happened.
			"Recepción Responsable": "   ",
		},
	}

	r := RemissionFromRecord(quietLogger(), rec)
	if r.State() != StateDeliveryConfirmed {
		t.Fatalf("expected DeliveryConfirmed, got %s", r.State())
	}
	if r.DeliveryInfo == nil || r.DeliveryInfo.ResponsibleName != "Carlos Pérez" {
		t.Fatal("expected delivery info populated")
	}
	if r.ReceiptInfo != nil {
		t.Fatal("blank receipt column must not create a receipt block")
	}
	if len(r.Allocations) != 1 {
		t.Fatalf("expected 1 allocation, got %d", len(r.Allocations))
	}
	if !r.Allocations[0].RequestedQuantity.Equal(decimal.NewFromInt(200)) {
		t.Fatalf("expected 200 kg allocated, got %s", r.Allocations[0].RequestedQuantity)
	}
}

func TestRemissionFromRecord_BadAllocationsJSONIsLoggedNotFatal(t *testing.T) {
	rec := &recordstore.Record{
		ID: "rec002",
		Fields: map[string]any{
			"Cliente":      "Finca La Esperanza",
			"Asignaciones": "{not valid json",
		},
	}
	r := RemissionFromRecord(quietLogger(), rec)
	if r == nil || len(r.Allocations) != 0 {
		t.Fatal("malformed allocations must yield an empty slice, not a failure")
	}
}

func TestAllocationSetTotal(t *testing.T) {
	set := AllocationSet{Items: []Allocation{
		{BatchId: "b1", RequestedQuantity: decimal.RequireFromString("200")},
		{BatchId: "b2", RequestedQuantity: decimal.RequireFromString("100.5")},
	}}
	if got := set.Total(); !got.Equal(decimal.RequireFromString("300.5")) {
		t.Fatalf("expected 300.5, got %s", got)
	}
}

func TestValidateFieldMaps(t *testing.T) {
	if err := ValidateFieldMaps(); err != nil {
		t.Fatalf("shipped field maps must validate: %v", err)
	}
}
