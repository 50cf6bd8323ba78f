package models

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/verdecarbon/biochar_backend/recordstore"
)

// TransportLog records an inbound biomass delivery: origin, vehicle, load.
// Plain CRUD.
type TransportLog struct {
	ID            string          `json:"id"`
	Origin        string          `json:"origin"`
	VehiclePlate  string          `json:"vehicle_plate"`
	DriverName    string          `json:"driver_name"`
	BiomassType   string          `json:"biomass_type"`
	LoadKg        decimal.Decimal `json:"load_kg"`
	TransportDate time.Time       `json:"transport_date"`
}

var TransportLogFields = recordstore.FieldMap{
	"origin":        "Origen",
	"vehiclePlate":  "Placa Vehículo",
	"driverName":    "Conductor",
	"biomassType":   "Tipo Biomasa",
	"loadKg":        "Carga (kg)",
	"transportDate": "Fecha Transporte",
}

var transportLogRequiredFields = []string{"origin", "vehiclePlate", "driverName", "biomassType", "loadKg", "transportDate"}

func TransportLogFromRecord(rec *recordstore.Record) *TransportLog {
	return &TransportLog{
		ID:            rec.ID,
		Origin:        rec.String(TransportLogFields.Column("origin")),
		VehiclePlate:  rec.String(TransportLogFields.Column("vehiclePlate")),
		DriverName:    rec.String(TransportLogFields.Column("driverName")),
		BiomassType:   rec.String(TransportLogFields.Column("biomassType")),
		LoadKg:        rec.Decimal(TransportLogFields.Column("loadKg")),
		TransportDate: rec.Time(TransportLogFields.Column("transportDate")),
	}
}

type TransportLogStore interface {
	ListTransportLogs(ctx context.Context) ([]*TransportLog, error)
	CreateTransportLog(ctx context.Context, t *TransportLog) (*TransportLog, error)
}

type transportLogStore struct {
	client *recordstore.Client
	logger *logrus.Logger
}

func NewTransportLogStore(client *recordstore.Client, logger *logrus.Logger) TransportLogStore {
	return &transportLogStore{client: client, logger: logger}
}

func (s *transportLogStore) ListTransportLogs(ctx context.Context) ([]*TransportLog, error) {
	recs, err := s.client.ListRecords(ctx, "transportLogs", recordstore.ListQuery{
		Sort: []string{"-" + TransportLogFields.Column("transportDate")},
	})
	if err != nil {
		return nil, err
	}
	out := make([]*TransportLog, 0, len(recs))
	for _, rec := range recs {
		out = append(out, TransportLogFromRecord(rec))
	}
	return out, nil
}

func (s *transportLogStore) CreateTransportLog(ctx context.Context, t *TransportLog) (*TransportLog, error) {
	load, _ := t.LoadKg.Float64()
	rec, err := s.client.CreateRecord(ctx, "transportLogs", map[string]any{
		TransportLogFields.Column("origin"):        t.Origin,
		TransportLogFields.Column("vehiclePlate"):  t.VehiclePlate,
		TransportLogFields.Column("driverName"):    t.DriverName,
		TransportLogFields.Column("biomassType"):   t.BiomassType,
		TransportLogFields.Column("loadKg"):        load,
		TransportLogFields.Column("transportDate"): t.TransportDate.Format("2006-01-02"),
	})
	if err != nil {
		return nil, err
	}
	return TransportLogFromRecord(rec), nil
}
