package models

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/verdecarbon/biochar_backend/recordstore"
)

// WasteRecord tracks non-product residue leaving the site (ash, rejected
// feedstock, packaging). Plain CRUD.
type WasteRecord struct {
	ID          string          `json:"id"`
	WasteType   string          `json:"waste_type"`
	QuantityKg  decimal.Decimal `json:"quantity_kg"`
	Disposal    string          `json:"disposal"`
	RecordedBy  string          `json:"recorded_by"`
	RecordedAt  time.Time       `json:"recorded_at"`
	Observation string          `json:"observation,omitempty"`
}

var WasteRecordFields = recordstore.FieldMap{
	"wasteType":   "Tipo Residuo",
	"quantityKg":  "Cantidad (kg)",
	"disposal":    "Disposición",
	"recordedBy":  "Registrado Por",
	"recordedAt":  "Fecha Registro",
	"observation": "Observación",
}

var wasteRecordRequiredFields = []string{"wasteType", "quantityKg", "disposal", "recordedBy", "recordedAt"}

func WasteRecordFromRecord(rec *recordstore.Record) *WasteRecord {
	return &WasteRecord{
		ID:          rec.ID,
		WasteType:   rec.String(WasteRecordFields.Column("wasteType")),
		QuantityKg:  rec.Decimal(WasteRecordFields.Column("quantityKg")),
		Disposal:    rec.String(WasteRecordFields.Column("disposal")),
		RecordedBy:  rec.String(WasteRecordFields.Column("recordedBy")),
		RecordedAt:  rec.Time(WasteRecordFields.Column("recordedAt")),
		Observation: rec.String(WasteRecordFields.Column("observation")),
	}
}

type WasteRecordStore interface {
	ListWasteRecords(ctx context.Context) ([]*WasteRecord, error)
	CreateWasteRecord(ctx context.Context, w *WasteRecord) (*WasteRecord, error)
}

type wasteRecordStore struct {
	client *recordstore.Client
	logger *logrus.Logger
}

func NewWasteRecordStore(client *recordstore.Client, logger *logrus.Logger) WasteRecordStore {
	return &wasteRecordStore{client: client, logger: logger}
}

func (s *wasteRecordStore) ListWasteRecords(ctx context.Context) ([]*WasteRecord, error) {
	recs, err := s.client.ListRecords(ctx, "wasteRecords", recordstore.ListQuery{
		Sort: []string{"-" + WasteRecordFields.Column("recordedAt")},
	})
	if err != nil {
		return nil, err
	}
	out := make([]*WasteRecord, 0, len(recs))
	for _, rec := range recs {
		out = append(out, WasteRecordFromRecord(rec))
	}
	return out, nil
}

func (s *wasteRecordStore) CreateWasteRecord(ctx context.Context, w *WasteRecord) (*WasteRecord, error) {
	qty, _ := w.QuantityKg.Float64()
	rec, err := s.client.CreateRecord(ctx, "wasteRecords", map[string]any{
		WasteRecordFields.Column("wasteType"):   w.WasteType,
		WasteRecordFields.Column("quantityKg"):  qty,
		WasteRecordFields.Column("disposal"):    w.Disposal,
		WasteRecordFields.Column("recordedBy"):  w.RecordedBy,
		WasteRecordFields.Column("recordedAt"):  w.RecordedAt.Format("2006-01-02"),
		WasteRecordFields.Column("observation"): w.Observation,
	})
	if err != nil {
		return nil, err
	}
	return WasteRecordFromRecord(rec), nil
}
