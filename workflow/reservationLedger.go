package workflow

import (
	"context"
	"fmt"
	"sync"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"

	"github.com/verdecarbon/biochar_backend/config"
	"github.com/verdecarbon/biochar_backend/utils"
)

const reserveKeyPrefix = "reserve:"

// ReservationLedger tracks, per batch, the quantity reserved by remissions
// that have not yet reached receipt confirmation. A live read of the batch's
// available quantity alone cannot stop two concurrent proposals from jointly
// overbooking a batch; the ledger's check-and-reserve is what makes the
// allocation bound hold under concurrency.
type ReservationLedger interface {
	// Reserve atomically checks requested <= available - outstanding and,
	// if so, adds requested to the batch's outstanding total.
	Reserve(ctx context.Context, batchId string, requested, available decimal.Decimal) error
	// Release subtracts amount from the outstanding total. Called when a
	// reservation becomes a durable debit (receipt confirmed) or when a
	// proposal is rolled back.
	Release(ctx context.Context, batchId string, amount decimal.Decimal) error
	Outstanding(ctx context.Context, batchId string) (decimal.Decimal, error)
	// Rebuild replaces the ledger contents wholesale; used by the
	// reservation-rebuild tool after redis data loss.
	Rebuild(ctx context.Context, outstanding map[string]decimal.Decimal) error
}

// redisLedger implements the ledger with optimistic WATCH/MULTI transactions
// so that two concurrent reservations of the same batch serialize correctly
// across instances.
type redisLedger struct {
	rdb *redis.Client
}

func NewRedisReservationLedger(rdb *redis.Client) ReservationLedger {
	return &redisLedger{rdb: rdb}
}

func (l *redisLedger) Reserve(ctx context.Context, batchId string, requested, available decimal.Decimal) error {
	key := reserveKeyPrefix + batchId

	txf := func(tx *redis.Tx) error {
		outstanding, err := readDecimal(ctx, tx, key)
		if err != nil {
			return err
		}
		free := available.Sub(outstanding)
		if requested.GreaterThan(free) {
			if free.IsNegative() {
				free = decimal.Zero
			}
			return &utils.InsufficientStockError{
				BatchId:   batchId,
				Requested: requested,
				Available: free,
			}
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, outstanding.Add(requested).String(), 0)
			return nil
		})
		return err
	}

	// Bounded optimistic retries; a lost WATCH means another reservation
	// landed first and the free quantity must be re-read.
	var err error
	for attempt := 0; attempt < 10; attempt++ {
		err = l.rdb.Watch(ctx, txf, key)
		if err == redis.TxFailedErr {
			continue
		}
		if err == nil || utils.IsInsufficientStock(err) {
			return err
		}
		break
	}
	if err == nil || err == redis.TxFailedErr {
		return fmt.Errorf("reservation for batch %s did not settle after concurrent retries", batchId)
	}

	// Ledger unavailable. In strict mode that blocks the proposal; otherwise
	// fall back to the advisory live read so a redis outage does not stop
	// remission creation entirely.
	if config.StrictReservationLedger() {
		return fmt.Errorf("reservation ledger unavailable for batch %s: %w", batchId, err)
	}
	if requested.GreaterThan(available) {
		return &utils.InsufficientStockError{BatchId: batchId, Requested: requested, Available: available}
	}
	return nil
}

func (l *redisLedger) Release(ctx context.Context, batchId string, amount decimal.Decimal) error {
	key := reserveKeyPrefix + batchId

	txf := func(tx *redis.Tx) error {
		outstanding, err := readDecimal(ctx, tx, key)
		if err != nil {
			return err
		}
		next := outstanding.Sub(amount)
		if next.IsNegative() {
			// A rebuild ran in between; clamp rather than go negative.
			next = decimal.Zero
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			if next.IsZero() {
				pipe.Del(ctx, key)
			} else {
				pipe.Set(ctx, key, next.String(), 0)
			}
			return nil
		})
		return err
	}

	for attempt := 0; attempt < 10; attempt++ {
		err := l.rdb.Watch(ctx, txf, key)
		if err == redis.TxFailedErr {
			continue
		}
		return err
	}
	return fmt.Errorf("release for batch %s did not settle after concurrent retries", batchId)
}

func (l *redisLedger) Outstanding(ctx context.Context, batchId string) (decimal.Decimal, error) {
	val, err := l.rdb.Get(ctx, reserveKeyPrefix+batchId).Result()
	if err == redis.Nil {
		return decimal.Zero, nil
	}
	if err != nil {
		return decimal.Zero, err
	}
	return decimal.NewFromString(val)
}

func (l *redisLedger) Rebuild(ctx context.Context, outstanding map[string]decimal.Decimal) error {
	iter := l.rdb.Scan(ctx, 0, reserveKeyPrefix+"*", 0).Iterator()
	var stale []string
	for iter.Next(ctx) {
		stale = append(stale, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return err
	}
	_, err := l.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		if len(stale) > 0 {
			pipe.Del(ctx, stale...)
		}
		for batchId, amount := range outstanding {
			if amount.IsPositive() {
				pipe.Set(ctx, reserveKeyPrefix+batchId, amount.String(), 0)
			}
		}
		return nil
	})
	return err
}

func readDecimal(ctx context.Context, tx *redis.Tx, key string) (decimal.Decimal, error) {
	val, err := tx.Get(ctx, key).Result()
	if err == redis.Nil {
		return decimal.Zero, nil
	}
	if err != nil {
		return decimal.Zero, err
	}
	return decimal.NewFromString(val)
}

// memoryLedger is the in-process implementation used by tests and by local
// development without redis. Same semantics, one mutex.
type memoryLedger struct {
	mu          sync.Mutex
	outstanding map[string]decimal.Decimal
}

func NewMemoryReservationLedger() ReservationLedger {
	return &memoryLedger{outstanding: map[string]decimal.Decimal{}}
}

func (l *memoryLedger) Reserve(ctx context.Context, batchId string, requested, available decimal.Decimal) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	free := available.Sub(l.outstanding[batchId])
	if requested.GreaterThan(free) {
		if free.IsNegative() {
			free = decimal.Zero
		}
		return &utils.InsufficientStockError{BatchId: batchId, Requested: requested, Available: free}
	}
	l.outstanding[batchId] = l.outstanding[batchId].Add(requested)
	return nil
}

func (l *memoryLedger) Release(ctx context.Context, batchId string, amount decimal.Decimal) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	next := l.outstanding[batchId].Sub(amount)
	if next.IsPositive() {
		l.outstanding[batchId] = next
	} else {
		delete(l.outstanding, batchId)
	}
	return nil
}

func (l *memoryLedger) Outstanding(ctx context.Context, batchId string) (decimal.Decimal, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.outstanding[batchId], nil
}

func (l *memoryLedger) Rebuild(ctx context.Context, outstanding map[string]decimal.Decimal) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.outstanding = map[string]decimal.Decimal{}
	for batchId, amount := range outstanding {
		if amount.IsPositive() {
			l.outstanding[batchId] = amount
		}
	}
	return nil
}
