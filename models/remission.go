package models

import (
	"context"
	"encoding/json"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/verdecarbon/biochar_backend/config"
	"github.com/verdecarbon/biochar_backend/recordstore"
)

// DeliveryInfo is the deliverer's one-time confirmation. Present iff delivery
// has been confirmed.
type DeliveryInfo struct {
	ResponsibleName string    `json:"responsible_name"`
	DocumentNumber  string    `json:"document_number"`
	Phone           string    `json:"phone,omitempty"`
	Email           string    `json:"email,omitempty"`
	ConfirmedAt     time.Time `json:"confirmed_at"`
}

// ReceiptInfo is the receiver's one-time confirmation. Present iff receipt
// has been confirmed.
type ReceiptInfo struct {
	ResponsibleName string    `json:"responsible_name"`
	DocumentNumber  string    `json:"document_number"`
	Phone           string    `json:"phone,omitempty"`
	Email           string    `json:"email,omitempty"`
	ReceptionNotes  string    `json:"reception_notes,omitempty"`
	ConfirmedAt     time.Time `json:"confirmed_at"`
}

// Remission is a single customer shipment instance. Created atomically with
// its allocations, mutated exactly twice (delivery fill, receipt fill),
// never deleted.
type Remission struct {
	ID           string        `json:"id"`
	ClientName   string        `json:"client_name"`
	ClientTaxId  string        `json:"client_tax_id"`
	EventDate    time.Time     `json:"event_date"`
	CreatedBy    string        `json:"created_by"`
	Observations string        `json:"observations,omitempty"`
	Allocations  []Allocation  `json:"allocations"`
	DeliveryInfo *DeliveryInfo `json:"delivery_info,omitempty"`
	ReceiptInfo  *ReceiptInfo  `json:"receipt_info,omitempty"`
}

// State is a pure projection from the presence of the two confirmation
// blocks. It is never stored on its own.
func (r *Remission) State() RemissionState {
	switch {
	case r.ReceiptInfo != nil:
		return StateReceiptConfirmed
	case r.DeliveryInfo != nil:
		return StateDeliveryConfirmed
	default:
		return StateCreated
	}
}

var RemissionFields = recordstore.FieldMap{
	"clientName":   "Cliente",
	"clientTaxId":  "NIT Cliente",
	"eventDate":    "Fecha Evento",
	"createdBy":    "Creado Por",
	"observations": "Observaciones",
	// Allocations are stored as a JSON document in a long-text column; the
	// record store has no native nested rows.
	"allocations": "Asignaciones",

	"deliveryResponsible": "Entrega Responsable",
	"deliveryDocument":    "Entrega Documento",
	"deliveryPhone":       "Entrega Teléfono",
	"deliveryEmail":       "Entrega Email",
	"deliveryConfirmedAt": "Entrega Fecha",

	"receiptResponsible": "Recepción Responsable",
	"receiptDocument":    "Recepción Documento",
	"receiptPhone":       "Recepción Teléfono",
	"receiptEmail":       "Recepción Email",
	"receiptNotes":       "Recepción Notas",
	"receiptConfirmedAt": "Recepción Fecha",
}

var remissionRequiredFields = []string{
	"clientName", "clientTaxId", "eventDate", "createdBy", "allocations",
	"deliveryResponsible", "deliveryDocument", "deliveryConfirmedAt",
	"receiptResponsible", "receiptDocument", "receiptConfirmedAt",
}

func RemissionFromRecord(logger *logrus.Logger, rec *recordstore.Record) *Remission {
	r := &Remission{
		ID:           rec.ID,
		ClientName:   rec.String(RemissionFields.Column("clientName")),
		ClientTaxId:  rec.String(RemissionFields.Column("clientTaxId")),
		EventDate:    rec.Time(RemissionFields.Column("eventDate")),
		CreatedBy:    rec.String(RemissionFields.Column("createdBy")),
		Observations: rec.String(RemissionFields.Column("observations")),
	}

	if raw := rec.String(RemissionFields.Column("allocations")); raw != "" {
		if err := json.Unmarshal([]byte(raw), &r.Allocations); err != nil {
			config.LogError(logger, "models/remission.go", "RemissionFromRecord", "unmarshal allocations", rec.ID, err)
		}
	}

	// Presence of the responsible name is the source of truth for each phase.
	if rec.Has(RemissionFields.Column("deliveryResponsible")) {
		r.DeliveryInfo = &DeliveryInfo{
			ResponsibleName: rec.String(RemissionFields.Column("deliveryResponsible")),
			DocumentNumber:  rec.String(RemissionFields.Column("deliveryDocument")),
			Phone:           rec.String(RemissionFields.Column("deliveryPhone")),
			Email:           rec.String(RemissionFields.Column("deliveryEmail")),
			ConfirmedAt:     rec.Time(RemissionFields.Column("deliveryConfirmedAt")),
		}
	}
	if rec.Has(RemissionFields.Column("receiptResponsible")) {
		r.ReceiptInfo = &ReceiptInfo{
			ResponsibleName: rec.String(RemissionFields.Column("receiptResponsible")),
			DocumentNumber:  rec.String(RemissionFields.Column("receiptDocument")),
			Phone:           rec.String(RemissionFields.Column("receiptPhone")),
			Email:           rec.String(RemissionFields.Column("receiptEmail")),
			ReceptionNotes:  rec.String(RemissionFields.Column("receiptNotes")),
			ConfirmedAt:     rec.Time(RemissionFields.Column("receiptConfirmedAt")),
		}
	}
	return r
}

// RemissionStore persists remissions in the record store.
type RemissionStore interface {
	GetRemission(ctx context.Context, id string) (*Remission, error)
	ListRemissions(ctx context.Context) ([]*Remission, error)
	CreateRemission(ctx context.Context, r *Remission) (*Remission, error)
	// SetDeliveryInfo / SetReceiptInfo patch only the phase's own columns;
	// everything else on the record is left untouched.
	SetDeliveryInfo(ctx context.Context, id string, info DeliveryInfo) (*Remission, error)
	SetReceiptInfo(ctx context.Context, id string, info ReceiptInfo) (*Remission, error)
}

type remissionStore struct {
	client *recordstore.Client
	logger *logrus.Logger
}

func NewRemissionStore(client *recordstore.Client, logger *logrus.Logger) RemissionStore {
	return &remissionStore{client: client, logger: logger}
}

func (s *remissionStore) GetRemission(ctx context.Context, id string) (*Remission, error) {
	rec, err := s.client.GetRecord(ctx, "remissions", id)
	if err != nil {
		return nil, err
	}
	return RemissionFromRecord(s.logger, rec), nil
}

func (s *remissionStore) ListRemissions(ctx context.Context) ([]*Remission, error) {
	recs, err := s.client.ListRecords(ctx, "remissions", recordstore.ListQuery{
		Sort: []string{"-" + RemissionFields.Column("eventDate")},
	})
	if err != nil {
		return nil, err
	}
	out := make([]*Remission, 0, len(recs))
	for _, rec := range recs {
		out = append(out, RemissionFromRecord(s.logger, rec))
	}
	return out, nil
}

func (s *remissionStore) CreateRemission(ctx context.Context, r *Remission) (*Remission, error) {
	allocationsJSON, err := json.Marshal(r.Allocations)
	if err != nil {
		return nil, err
	}
	rec, err := s.client.CreateRecord(ctx, "remissions", map[string]any{
		RemissionFields.Column("clientName"):   r.ClientName,
		RemissionFields.Column("clientTaxId"):  r.ClientTaxId,
		RemissionFields.Column("eventDate"):    r.EventDate.Format("2006-01-02"),
		RemissionFields.Column("createdBy"):    r.CreatedBy,
		RemissionFields.Column("observations"): r.Observations,
		RemissionFields.Column("allocations"):  string(allocationsJSON),
	})
	if err != nil {
		return nil, err
	}
	return RemissionFromRecord(s.logger, rec), nil
}

func (s *remissionStore) SetDeliveryInfo(ctx context.Context, id string, info DeliveryInfo) (*Remission, error) {
	rec, err := s.client.UpdateRecord(ctx, "remissions", id, map[string]any{
		RemissionFields.Column("deliveryResponsible"): info.ResponsibleName,
		RemissionFields.Column("deliveryDocument"):    info.DocumentNumber,
		RemissionFields.Column("deliveryPhone"):       info.Phone,
		RemissionFields.Column("deliveryEmail"):       info.Email,
		RemissionFields.Column("deliveryConfirmedAt"): info.ConfirmedAt.Format(time.RFC3339),
	})
	if err != nil {
		return nil, err
	}
	return RemissionFromRecord(s.logger, rec), nil
}

func (s *remissionStore) SetReceiptInfo(ctx context.Context, id string, info ReceiptInfo) (*Remission, error) {
	rec, err := s.client.UpdateRecord(ctx, "remissions", id, map[string]any{
		RemissionFields.Column("receiptResponsible"): info.ResponsibleName,
		RemissionFields.Column("receiptDocument"):    info.DocumentNumber,
		RemissionFields.Column("receiptPhone"):       info.Phone,
		RemissionFields.Column("receiptEmail"):       info.Email,
		RemissionFields.Column("receiptNotes"):       info.ReceptionNotes,
		RemissionFields.Column("receiptConfirmedAt"): info.ConfirmedAt.Format(time.RFC3339),
	})
	if err != nil {
		return nil, err
	}
	return RemissionFromRecord(s.logger, rec), nil
}
