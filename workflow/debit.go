package workflow

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/verdecarbon/biochar_backend/config"
	"github.com/verdecarbon/biochar_backend/models"
)

const pendingDebitListKey = "pending_debits"

const debitAttempts = 3

// debitQueue holds debits awaiting replay. Backed by a redis list in
// production; tests swap in an in-memory queue.
type debitQueue interface {
	Push(payload string) error
	Pop() (string, bool, error)
}

type redisDebitQueue struct{}

func (redisDebitQueue) Push(payload string) error { return config.PushRedisList(pendingDebitListKey, payload) }
func (redisDebitQueue) Pop() (string, bool, error) {
	return config.PopRedisList(pendingDebitListKey)
}

// PendingDebit is a batch debit that could not be applied when its receipt
// was confirmed. It waits on a redis list until an operator replays it.
type PendingDebit struct {
	RemissionId string `json:"remission_id"`
	BatchId     string `json:"batch_id"`
	Amount      string `json:"amount"`
	QueuedAt    string `json:"queued_at"`
}

// DebitFailedError tells the operator that the receipt is recorded but some
// stock debits are parked on the pending queue. Fatal and visible, never
// silent: manual replay (or reconciliation) is required.
type DebitFailedError struct {
	RemissionId string
	Pending     int
	LastErr     error
}

func (e *DebitFailedError) Error() string {
	return fmt.Sprintf("receipt for remission %s recorded, but %d batch debit(s) failed and were queued for replay: %v",
		e.RemissionId, e.Pending, e.LastErr)
}

func (e *DebitFailedError) Unwrap() error { return e.LastErr }

// debitAllocations decrements each allocated batch by its requested quantity
// and releases the matching reservation (the reserve has become a durable
// debit). Each line retries with backoff; lines that still fail are queued.
func (c *LifecycleController) debitAllocations(ctx context.Context, remission *models.Remission) error {
	var pending int
	var lastErr error

	for _, allocation := range remission.Allocations {
		if err := c.debitOne(ctx, remission.ID, allocation.BatchId, allocation.RequestedQuantity); err != nil {
			pending++
			lastErr = err
		}
	}

	if pending > 0 {
		err := &DebitFailedError{RemissionId: remission.ID, Pending: pending, LastErr: lastErr}
		config.LogError(c.logger, "workflow/debit.go", "debitAllocations", "debits queued for replay", remission.ID, err)
		return err
	}
	return nil
}

func (c *LifecycleController) debitOne(ctx context.Context, remissionId, batchId string, amount decimal.Decimal) error {
	var lastErr error
retry:
	for attempt := 1; attempt <= debitAttempts; attempt++ {
		if attempt > 1 {
			select {
			case <-ctx.Done():
				lastErr = ctx.Err()
				break retry
			case <-time.After(time.Duration(attempt) * 500 * time.Millisecond):
			}
		}
		if _, err := c.batches.DecrementAvailableQuantity(ctx, batchId, amount); err != nil {
			lastErr = err
			continue
		}
		if err := c.ledger.Release(ctx, batchId, amount); err != nil {
			// The debit itself landed; a stale reservation only makes the
			// ledger conservative until the next rebuild.
			config.LogError(c.logger, "workflow/debit.go", "debitOne", "release reservation after debit", batchId, err)
		}
		return nil
	}

	queued := PendingDebit{
		RemissionId: remissionId,
		BatchId:     batchId,
		Amount:      amount.String(),
		QueuedAt:    time.Now().UTC().Format(time.RFC3339),
	}
	payload, err := json.Marshal(queued)
	if err != nil {
		return fmt.Errorf("marshal pending debit: %w (debit error: %v)", err, lastErr)
	}
	if err := c.pending.Push(string(payload)); err != nil {
		config.LogError(c.logger, "workflow/debit.go", "debitOne", "queue pending debit", queued, err)
	}
	return lastErr
}

// QueuedPendingDebits lists the parked debits without consuming them.
// The reservation rebuild uses this: a pending debit means the receipt is
// confirmed but the batch stock has not moved yet, so its reservation must
// survive a ledger rebuild or the stock could be promised twice.
func QueuedPendingDebits() ([]PendingDebit, error) {
	raws, err := config.RangeRedisList(pendingDebitListKey)
	if err != nil {
		return nil, err
	}
	return ParsePendingDebits(raws), nil
}

// ParsePendingDebits decodes queue payloads, skipping malformed entries.
func ParsePendingDebits(raws []string) []PendingDebit {
	out := make([]PendingDebit, 0, len(raws))
	for _, raw := range raws {
		var debit PendingDebit
		if err := json.Unmarshal([]byte(raw), &debit); err != nil {
			continue
		}
		out = append(out, debit)
	}
	return out
}

// PendingDebitTotals sums queued debit amounts per batch. Entries whose
// amount does not parse are ignored, matching the replay path.
func PendingDebitTotals(debits []PendingDebit) map[string]decimal.Decimal {
	totals := map[string]decimal.Decimal{}
	for _, d := range debits {
		amount, err := decimal.NewFromString(d.Amount)
		if err != nil {
			continue
		}
		totals[d.BatchId] = totals[d.BatchId].Add(amount)
	}
	return totals
}

// ReplayPendingDebits drains the pending-debit queue. Backs the internal ops
// replay endpoint; entries that fail again go back on the queue and the
// drain stops so the operator sees a bounded, honest result.
func (c *LifecycleController) ReplayPendingDebits(ctx context.Context) (applied int, err error) {
	for {
		raw, ok, popErr := c.pending.Pop()
		if popErr != nil {
			return applied, popErr
		}
		if !ok {
			return applied, nil
		}

		var debit PendingDebit
		if err := json.Unmarshal([]byte(raw), &debit); err != nil {
			config.LogError(c.logger, "workflow/debit.go", "ReplayPendingDebits", "unmarshal pending debit", raw, err)
			continue
		}
		amount, err := decimal.NewFromString(debit.Amount)
		if err != nil {
			config.LogError(c.logger, "workflow/debit.go", "ReplayPendingDebits", "parse pending debit amount", debit, err)
			continue
		}

		if _, err := c.batches.DecrementAvailableQuantity(ctx, debit.BatchId, amount); err != nil {
			if pushErr := c.pending.Push(raw); pushErr != nil {
				config.LogError(c.logger, "workflow/debit.go", "ReplayPendingDebits", "requeue pending debit", debit, pushErr)
			}
			return applied, err
		}
		if err := c.ledger.Release(ctx, debit.BatchId, amount); err != nil {
			config.LogError(c.logger, "workflow/debit.go", "ReplayPendingDebits", "release reservation", debit.BatchId, err)
		}
		applied++
	}
}
