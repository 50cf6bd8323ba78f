package workflow

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/verdecarbon/biochar_backend/config"
	"github.com/verdecarbon/biochar_backend/models"
	"github.com/verdecarbon/biochar_backend/utils"
)

// ErrConfirmationInProgress: the per-remission lock could not be obtained
// after retries. The caller should simply retry; if the competing call won,
// the retry will see AlreadyCompleted.
var ErrConfirmationInProgress = errors.New("confirmation in progress")

// LifecycleController owns the forward-only Created -> DeliveryConfirmed ->
// ReceiptConfirmed lifecycle, the one-time-fill rule on each confirmation,
// and the single batch debit at receipt time.
//
// Both confirmations are read-before-write against the record store, so two
// near-simultaneous submissions of the same form are a real race. Each write
// happens under the per-remission lock with a re-read of the phase field
// inside the critical section; the loser gets AlreadyCompleted instead of
// overwriting the winner's data.
type LifecycleController struct {
	remissions models.RemissionStore
	batches    models.BatchStore
	ledger     ReservationLedger
	engine     *AllocationEngine
	locker     RemissionLocker
	pending    debitQueue
	logger     *logrus.Logger
}

func NewLifecycleController(
	remissions models.RemissionStore,
	batches models.BatchStore,
	ledger ReservationLedger,
	engine *AllocationEngine,
	locker RemissionLocker,
	logger *logrus.Logger,
) *LifecycleController {
	return &LifecycleController{
		remissions: remissions,
		batches:    batches,
		ledger:     ledger,
		engine:     engine,
		locker:     locker,
		pending:    redisDebitQueue{},
		logger:     logger,
	}
}

type CreateRemissionInput struct {
	ClientName   string              `json:"client_name" binding:"required"`
	ClientTaxId  string              `json:"client_tax_id" binding:"required"`
	EventDate    time.Time           `json:"event_date" binding:"required"`
	CreatedBy    string              `json:"created_by"`
	Observations string              `json:"observations"`
	Allocations  []models.Allocation `json:"allocations" binding:"required"`
}

// DeliveryConfirmation is the deliverer's form payload. Both consent flags
// are hard preconditions; they gate the call and are not stored separately.
type DeliveryConfirmation struct {
	ResponsibleName       string `json:"responsible_name" binding:"required"`
	DocumentNumber        string `json:"document_number" binding:"required"`
	Phone                 string `json:"phone"`
	Email                 string `json:"email"`
	ConsentDataProcessing bool   `json:"consent_data_processing"`
	ConsentTerms          bool   `json:"consent_terms"`
}

// ReceiptConfirmation adds the responsible-use declaration: the receiver
// commits to not burning the product, which is what makes the carbon
// sequestration claim real.
type ReceiptConfirmation struct {
	ResponsibleName       string `json:"responsible_name" binding:"required"`
	DocumentNumber        string `json:"document_number" binding:"required"`
	Phone                 string `json:"phone"`
	Email                 string `json:"email"`
	Notes                 string `json:"notes"`
	ConsentDataProcessing bool   `json:"consent_data_processing"`
	ConsentTerms          bool   `json:"consent_terms"`
	ConsentResponsibleUse bool   `json:"consent_responsible_use"`
}

// CreateRemission validates the input, reserves the requested quantities
// through the allocation engine and persists the remission atomically with
// its allocations. If persisting fails, the reservations are rolled back.
func (c *LifecycleController) CreateRemission(ctx context.Context, input CreateRemissionInput) (*models.Remission, error) {
	ctx, span := tracer.Start(ctx, "CreateRemission")
	defer span.End()

	if strings.TrimSpace(input.ClientName) == "" {
		return nil, utils.NewValidationError("client_name", "client is required")
	}
	if input.EventDate.IsZero() {
		return nil, utils.NewValidationError("event_date", "event date is required")
	}
	if len(input.Allocations) == 0 {
		return nil, utils.NewValidationError("allocations", "at least one batch allocation is required")
	}

	set, err := c.engine.ProposeAllocation(ctx, input.Allocations)
	if err != nil {
		return nil, err
	}

	createdBy := input.CreatedBy
	if createdBy == "" {
		if operator, ok := utils.GetOperatorFromContext(ctx); ok {
			createdBy = operator
		}
	}

	remission, err := c.remissions.CreateRemission(ctx, &models.Remission{
		ClientName:   input.ClientName,
		ClientTaxId:  input.ClientTaxId,
		EventDate:    input.EventDate,
		CreatedBy:    createdBy,
		Observations: input.Observations,
		Allocations:  set.Items,
	})
	if err != nil {
		c.engine.ReleaseAllocation(ctx, set)
		return nil, err
	}

	c.publishEvent(ctx, remission, models.EventRemissionCreated)
	return remission, nil
}

// ConfirmDelivery applies the deliverer's one-time fill. Re-submission after
// success returns AlreadyCompleted and never touches the stored data.
func (c *LifecycleController) ConfirmDelivery(ctx context.Context, remissionId string, form DeliveryConfirmation) (*models.Remission, error) {
	ctx, span := tracer.Start(ctx, "ConfirmDelivery")
	defer span.End()

	if err := validatePerson(form.ResponsibleName, form.DocumentNumber, form.Phone, form.Email); err != nil {
		return nil, err
	}
	if !form.ConsentDataProcessing {
		return nil, utils.NewValidationError("consent_data_processing", "data processing consent is required")
	}
	if !form.ConsentTerms {
		return nil, utils.NewValidationError("consent_terms", "terms of service consent is required")
	}

	release, err := c.locker.Obtain(ctx, remissionId)
	if err != nil {
		if errors.Is(err, ErrLockNotObtained) {
			return nil, ErrConfirmationInProgress
		}
		return nil, err
	}
	defer func() {
		if releaseErr := release(ctx); releaseErr != nil {
			config.LogError(c.logger, "workflow/lifecycle.go", "ConfirmDelivery", "release lock", remissionId, releaseErr)
		}
	}()

	// Re-read under the lock: this is the conditional-write guard. Whatever
	// an earlier page load showed, only the current stored state decides.
	remission, err := c.remissions.GetRemission(ctx, remissionId)
	if err != nil {
		return nil, err
	}
	if remission.State() != models.StateCreated {
		return nil, utils.ErrAlreadyCompleted
	}

	updated, err := c.remissions.SetDeliveryInfo(ctx, remissionId, models.DeliveryInfo{
		ResponsibleName: strings.TrimSpace(form.ResponsibleName),
		DocumentNumber:  strings.TrimSpace(form.DocumentNumber),
		Phone:           strings.TrimSpace(form.Phone),
		Email:           strings.TrimSpace(form.Email),
		ConfirmedAt:     time.Now().UTC(),
	})
	if err != nil {
		return nil, err
	}

	c.publishEvent(ctx, updated, models.EventDeliveryConfirmed)
	return updated, nil
}

// ConfirmReceipt applies the receiver's one-time fill and, as part of the
// same logical operation, debits every allocated batch. Receipt before
// delivery fails with DeliveryPending ("come back later"), a second receipt
// with AlreadyCompleted ("permanently closed") - the forms rely on the
// distinction.
func (c *LifecycleController) ConfirmReceipt(ctx context.Context, remissionId string, form ReceiptConfirmation) (*models.Remission, error) {
	ctx, span := tracer.Start(ctx, "ConfirmReceipt")
	defer span.End()

	if err := validatePerson(form.ResponsibleName, form.DocumentNumber, form.Phone, form.Email); err != nil {
		return nil, err
	}
	if !form.ConsentDataProcessing {
		return nil, utils.NewValidationError("consent_data_processing", "data processing consent is required")
	}
	if !form.ConsentTerms {
		return nil, utils.NewValidationError("consent_terms", "terms of service consent is required")
	}
	if !form.ConsentResponsibleUse {
		return nil, utils.NewValidationError("consent_responsible_use", "responsible use declaration is required")
	}

	release, err := c.locker.Obtain(ctx, remissionId)
	if err != nil {
		if errors.Is(err, ErrLockNotObtained) {
			return nil, ErrConfirmationInProgress
		}
		return nil, err
	}
	defer func() {
		if releaseErr := release(ctx); releaseErr != nil {
			config.LogError(c.logger, "workflow/lifecycle.go", "ConfirmReceipt", "release lock", remissionId, releaseErr)
		}
	}()

	remission, err := c.remissions.GetRemission(ctx, remissionId)
	if err != nil {
		return nil, err
	}
	switch remission.State() {
	case models.StateCreated:
		return nil, utils.ErrDeliveryPending
	case models.StateReceiptConfirmed:
		return nil, utils.ErrAlreadyCompleted
	}

	updated, err := c.remissions.SetReceiptInfo(ctx, remissionId, models.ReceiptInfo{
		ResponsibleName: strings.TrimSpace(form.ResponsibleName),
		DocumentNumber:  strings.TrimSpace(form.DocumentNumber),
		Phone:           strings.TrimSpace(form.Phone),
		Email:           strings.TrimSpace(form.Email),
		ReceptionNotes:  strings.TrimSpace(form.Notes),
		ConfirmedAt:     time.Now().UTC(),
	})
	if err != nil {
		return nil, err
	}

	c.publishEvent(ctx, updated, models.EventReceiptConfirmed)

	// Debit policy: receiptInfo stays set even if a debit cannot be applied.
	// Failed debits land on the pending queue and the error is surfaced to
	// the operator for replay; the confirmation itself is never rolled back.
	if err := c.debitAllocations(ctx, updated); err != nil {
		return updated, err
	}
	return updated, nil
}

// GetState is a pure projection; two calls with no intervening mutation
// return the same result.
func (c *LifecycleController) GetState(ctx context.Context, remissionId string) (models.RemissionState, error) {
	remission, err := c.remissions.GetRemission(ctx, remissionId)
	if err != nil {
		return "", err
	}
	return remission.State(), nil
}

func (c *LifecycleController) GetRemission(ctx context.Context, remissionId string) (*models.Remission, error) {
	return c.remissions.GetRemission(ctx, remissionId)
}

func (c *LifecycleController) ListRemissions(ctx context.Context) ([]*models.Remission, error) {
	return c.remissions.ListRemissions(ctx)
}

func validatePerson(name, document, phone, email string) error {
	if strings.TrimSpace(name) == "" {
		return utils.NewValidationError("responsible_name", "responsible name is required")
	}
	if strings.TrimSpace(document) == "" {
		return utils.NewValidationError("document_number", "document number is required")
	}
	if strings.TrimSpace(phone) != "" {
		if err := utils.ValidatePhoneNumber(phone, utils.CountryCode); err != nil {
			return utils.NewValidationError("phone", "phone number is not valid")
		}
	}
	if strings.TrimSpace(email) != "" && !utils.IsValidEmail(email) {
		return utils.NewValidationError("email", "email is not valid")
	}
	return nil
}
