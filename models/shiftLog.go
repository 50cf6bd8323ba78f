package models

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/verdecarbon/biochar_backend/recordstore"
)

// ShiftLog records one production shift: who ran it, which kiln, what went in
// and what came out. Plain CRUD against the record store, no invariants
// beyond field validation.
type ShiftLog struct {
	ID              string          `json:"id"`
	Operator        string          `json:"operator"`
	Kiln            string          `json:"kiln"`
	ShiftDate       time.Time       `json:"shift_date"`
	FeedstockKg     decimal.Decimal `json:"feedstock_kg"`
	BiocharOutputKg decimal.Decimal `json:"biochar_output_kg"`
	Notes           string          `json:"notes,omitempty"`
}

var ShiftLogFields = recordstore.FieldMap{
	"operator":        "Operario",
	"kiln":            "Horno",
	"shiftDate":       "Fecha Turno",
	"feedstockKg":     "Biomasa (kg)",
	"biocharOutputKg": "Biochar Producido (kg)",
	"notes":           "Notas",
}

var shiftLogRequiredFields = []string{"operator", "kiln", "shiftDate", "feedstockKg", "biocharOutputKg"}

func ShiftLogFromRecord(rec *recordstore.Record) *ShiftLog {
	return &ShiftLog{
		ID:              rec.ID,
		Operator:        rec.String(ShiftLogFields.Column("operator")),
		Kiln:            rec.String(ShiftLogFields.Column("kiln")),
		ShiftDate:       rec.Time(ShiftLogFields.Column("shiftDate")),
		FeedstockKg:     rec.Decimal(ShiftLogFields.Column("feedstockKg")),
		BiocharOutputKg: rec.Decimal(ShiftLogFields.Column("biocharOutputKg")),
		Notes:           rec.String(ShiftLogFields.Column("notes")),
	}
}

type ShiftLogStore interface {
	ListShiftLogs(ctx context.Context) ([]*ShiftLog, error)
	GetShiftLog(ctx context.Context, id string) (*ShiftLog, error)
	CreateShiftLog(ctx context.Context, log *ShiftLog) (*ShiftLog, error)
}

type shiftLogStore struct {
	client *recordstore.Client
	logger *logrus.Logger
}

func NewShiftLogStore(client *recordstore.Client, logger *logrus.Logger) ShiftLogStore {
	return &shiftLogStore{client: client, logger: logger}
}

func (s *shiftLogStore) ListShiftLogs(ctx context.Context) ([]*ShiftLog, error) {
	recs, err := s.client.ListRecords(ctx, "shiftLogs", recordstore.ListQuery{
		Sort: []string{"-" + ShiftLogFields.Column("shiftDate")},
	})
	if err != nil {
		return nil, err
	}
	out := make([]*ShiftLog, 0, len(recs))
	for _, rec := range recs {
		out = append(out, ShiftLogFromRecord(rec))
	}
	return out, nil
}

func (s *shiftLogStore) GetShiftLog(ctx context.Context, id string) (*ShiftLog, error) {
	rec, err := s.client.GetRecord(ctx, "shiftLogs", id)
	if err != nil {
		return nil, err
	}
	return ShiftLogFromRecord(rec), nil
}

func (s *shiftLogStore) CreateShiftLog(ctx context.Context, log *ShiftLog) (*ShiftLog, error) {
	feedstock, _ := log.FeedstockKg.Float64()
	output, _ := log.BiocharOutputKg.Float64()
	rec, err := s.client.CreateRecord(ctx, "shiftLogs", map[string]any{
		ShiftLogFields.Column("operator"):        log.Operator,
		ShiftLogFields.Column("kiln"):            log.Kiln,
		ShiftLogFields.Column("shiftDate"):       log.ShiftDate.Format("2006-01-02"),
		ShiftLogFields.Column("feedstockKg"):     feedstock,
		ShiftLogFields.Column("biocharOutputKg"): output,
		ShiftLogFields.Column("notes"):           log.Notes,
	})
	if err != nil {
		return nil, err
	}
	return ShiftLogFromRecord(rec), nil
}
