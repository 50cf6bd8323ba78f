package models

// HandoffPhase is one of the two gated steps of the remission lifecycle.
type HandoffPhase string

const (
	PhaseDelivery HandoffPhase = "delivery"
	PhaseReceipt  HandoffPhase = "receipt"
)

func (p HandoffPhase) Valid() bool {
	return p == PhaseDelivery || p == PhaseReceipt
}

// RemissionState is the derived lifecycle state of a remission. It is never
// stored; it is always computed from the presence of the delivery and receipt
// blocks so that state and data cannot diverge.
type RemissionState string

const (
	StateCreated           RemissionState = "Created"
	StateDeliveryConfirmed RemissionState = "DeliveryConfirmed"
	StateReceiptConfirmed  RemissionState = "ReceiptConfirmed"
)

// Lifecycle event phases published to Pub/Sub.
const (
	EventRemissionCreated   = "created"
	EventDeliveryConfirmed  = "delivery_confirmed"
	EventReceiptConfirmed   = "receipt_confirmed"
)
