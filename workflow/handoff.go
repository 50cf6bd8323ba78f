package workflow

import (
	"context"
	"fmt"
	"strings"

	"github.com/verdecarbon/biochar_backend/models"
	"github.com/verdecarbon/biochar_backend/utils"
)

// Handoff paths per phase. The URL is deterministic and carries no secret,
// expiry or single-use token: physical possession of the printed/scanned QR
// is the access control, and the form's availability is gated by lifecycle
// state, not by the link.
const (
	deliveryFormPath = "/entrega-remision/"
	receiptFormPath  = "/recepcion-remision/"
)

// BuildHandoffURL composes the public form URL for a remission and phase.
func BuildHandoffURL(baseURL string, remissionId string, phase models.HandoffPhase) (string, error) {
	if strings.TrimSpace(remissionId) == "" {
		return "", utils.NewValidationError("remission_id", "remission id is required")
	}
	base := strings.TrimRight(baseURL, "/")
	switch phase {
	case models.PhaseDelivery:
		return base + deliveryFormPath + remissionId, nil
	case models.PhaseReceipt:
		return base + receiptFormPath + remissionId, nil
	default:
		return "", utils.NewValidationError("phase", fmt.Sprintf("unknown handoff phase %q", phase))
	}
}

// PhaseOpen reports whether a phase's form accepts writes in the given
// state. The form is live only in the state immediately preceding the
// phase; otherwise it renders the locked/already-completed view.
func PhaseOpen(state models.RemissionState, phase models.HandoffPhase) bool {
	switch phase {
	case models.PhaseDelivery:
		return state == models.StateCreated
	case models.PhaseReceipt:
		return state == models.StateDeliveryConfirmed
	default:
		return false
	}
}

// QrRenderer generates a scannable image for a URL; implemented by the
// external QR image service client.
type QrRenderer interface {
	GenerateQrImage(ctx context.Context, url string) ([]byte, error)
}

// HandoffService builds handoff URLs and renders them as QR images for the
// operator standing next to the physical shipment. Access gating is not done
// here: authority lives entirely in the lifecycle state.
type HandoffService struct {
	remissions models.RemissionStore
	renderer   QrRenderer
	baseURL    string
}

func NewHandoffService(remissions models.RemissionStore, renderer QrRenderer, baseURL string) *HandoffService {
	return &HandoffService{remissions: remissions, renderer: renderer, baseURL: baseURL}
}

// HandoffImage renders the QR for a remission's phase. The remission must
// exist; beyond that no state check is applied, since scanning a QR for a
// closed phase just lands on the locked view.
func (s *HandoffService) HandoffImage(ctx context.Context, remissionId string, phase models.HandoffPhase) ([]byte, error) {
	if !phase.Valid() {
		return nil, utils.NewValidationError("phase", fmt.Sprintf("unknown handoff phase %q", phase))
	}
	if _, err := s.remissions.GetRemission(ctx, remissionId); err != nil {
		return nil, err
	}
	url, err := BuildHandoffURL(s.baseURL, remissionId, phase)
	if err != nil {
		return nil, err
	}
	return s.renderer.GenerateQrImage(ctx, url)
}
