package reports

import (
	"bytes"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"

	"github.com/verdecarbon/biochar_backend/models"
)

func TestWriteRemissionRegister(t *testing.T) {
	remissions := []*models.Remission{
		{
			ID:          "rec001",
			ClientName:  "Finca La Esperanza",
			ClientTaxId: "900123456-7",
			EventDate:   time.Date(2026, 8, 20, 0, 0, 0, 0, time.UTC),
			Allocations: []models.Allocation{
				{BatchId: "b1", BatchCode: "L-001", RequestedQuantity: decimal.RequireFromString("200")},
				{BatchId: "b2", BatchCode: "L-002", RequestedQuantity: decimal.RequireFromString("100.5")},
			},
			DeliveryInfo: &models.DeliveryInfo{
				ResponsibleName: "Carlos Pérez",
				ConfirmedAt:     time.Date(2026, 8, 21, 14, 30, 0, 0, time.UTC),
			},
		},
		{
			ID:         "rec002",
			ClientName: "Vivero El Roble",
			EventDate:  time.Date(2026, 8, 25, 0, 0, 0, 0, time.UTC),
		},
	}

	var buf bytes.Buffer
	if err := WriteRemissionRegister(&buf, remissions); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	f, err := excelize.OpenReader(&buf)
	if err != nil {
		t.Fatalf("workbook does not open: %v", err)
	}
	defer f.Close()

	if sheets := f.GetSheetList(); len(sheets) != 1 || sheets[0] != "Remisiones" {
		t.Fatalf("expected the register to be the only sheet, got %v", sheets)
	}

	rows, err := f.GetRows("Remisiones")
	if err != nil {
		t.Fatalf("read sheet: %v", err)
	}
	if len(rows) != 3 {
		t.Fatalf("expected header + 2 rows, got %d", len(rows))
	}
	if rows[0][0] != "ID" || rows[0][4] != "Estado" {
		t.Fatalf("unexpected headers: %v", rows[0])
	}
	if rows[1][4] != string(models.StateDeliveryConfirmed) {
		t.Fatalf("expected derived state in register, got %q", rows[1][4])
	}
	if rows[1][6] != "L-001, L-002" {
		t.Fatalf("expected batch codes joined, got %q", rows[1][6])
	}
	if rows[2][4] != string(models.StateCreated) {
		t.Fatalf("expected Created for unconfirmed remission, got %q", rows[2][4])
	}
}
