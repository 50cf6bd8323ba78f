package workflow

import (
	"context"
	"fmt"
	"sync"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/verdecarbon/biochar_backend/models"
	"github.com/verdecarbon/biochar_backend/utils"
)

// NOTE: These tests are intentionally network-free. The record store and
// redis are replaced by in-memory fakes with the same semantics; integration
// against the real store belongs in an environment that can run it.

func testLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)
	return logger
}

type fakeBatchStore struct {
	mu       sync.Mutex
	batches  map[string]*models.Batch
	getCalls int
	// failDebits marks batch ids whose DecrementAvailableQuantity always fails.
	failDebits map[string]bool
	debits     map[string]int
}

func newFakeBatchStore(batches ...*models.Batch) *fakeBatchStore {
	s := &fakeBatchStore{
		batches:    map[string]*models.Batch{},
		failDebits: map[string]bool{},
		debits:     map[string]int{},
	}
	for _, b := range batches {
		s.batches[b.ID] = b
	}
	return s
}

func (s *fakeBatchStore) GetBatch(ctx context.Context, batchId string) (*models.Batch, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.getCalls++
	b, ok := s.batches[batchId]
	if !ok {
		return nil, utils.ErrorRecordNotFound
	}
	copied := *b
	return &copied, nil
}

func (s *fakeBatchStore) ListAvailableBatches(ctx context.Context) ([]*models.Batch, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*models.Batch, 0, len(s.batches))
	for _, b := range s.batches {
		if b.AvailableQuantity.IsPositive() {
			copied := *b
			out = append(out, &copied)
		}
	}
	return out, nil
}

func (s *fakeBatchStore) DecrementAvailableQuantity(ctx context.Context, batchId string, amount decimal.Decimal) (*models.Batch, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failDebits[batchId] {
		return nil, fmt.Errorf("record store unavailable")
	}
	b, ok := s.batches[batchId]
	if !ok {
		return nil, utils.ErrorRecordNotFound
	}
	b.AvailableQuantity = b.AvailableQuantity.Sub(amount)
	s.debits[batchId]++
	copied := *b
	return &copied, nil
}

func (s *fakeBatchStore) debitCount(batchId string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.debits[batchId]
}

// memoryDebitQueue is a FIFO stand-in for the redis pending-debit list.
type memoryDebitQueue struct {
	mu      sync.Mutex
	entries []string
}

func (q *memoryDebitQueue) Push(payload string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.entries = append(q.entries, payload)
	return nil
}

func (q *memoryDebitQueue) Pop() (string, bool, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.entries) == 0 {
		return "", false, nil
	}
	head := q.entries[0]
	q.entries = q.entries[1:]
	return head, true, nil
}

func (q *memoryDebitQueue) len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.entries)
}

type fakeRemissionStore struct {
	mu         sync.Mutex
	remissions map[string]*models.Remission
	nextId     int
	failCreate bool
}

func newFakeRemissionStore() *fakeRemissionStore {
	return &fakeRemissionStore{remissions: map[string]*models.Remission{}}
}

func (s *fakeRemissionStore) put(r *models.Remission) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.remissions[r.ID] = r
}

func (s *fakeRemissionStore) GetRemission(ctx context.Context, id string) (*models.Remission, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.remissions[id]
	if !ok {
		return nil, utils.ErrorRecordNotFound
	}
	copied := *r
	return &copied, nil
}

func (s *fakeRemissionStore) ListRemissions(ctx context.Context) ([]*models.Remission, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*models.Remission, 0, len(s.remissions))
	for _, r := range s.remissions {
		copied := *r
		out = append(out, &copied)
	}
	return out, nil
}

func (s *fakeRemissionStore) CreateRemission(ctx context.Context, r *models.Remission) (*models.Remission, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failCreate {
		return nil, fmt.Errorf("record store unavailable")
	}
	s.nextId++
	copied := *r
	copied.ID = fmt.Sprintf("rec%03d", s.nextId)
	s.remissions[copied.ID] = &copied
	result := copied
	return &result, nil
}

func (s *fakeRemissionStore) SetDeliveryInfo(ctx context.Context, id string, info models.DeliveryInfo) (*models.Remission, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.remissions[id]
	if !ok {
		return nil, utils.ErrorRecordNotFound
	}
	r.DeliveryInfo = &info
	copied := *r
	return &copied, nil
}

func (s *fakeRemissionStore) SetReceiptInfo(ctx context.Context, id string, info models.ReceiptInfo) (*models.Remission, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.remissions[id]
	if !ok {
		return nil, utils.ErrorRecordNotFound
	}
	r.ReceiptInfo = &info
	copied := *r
	return &copied, nil
}

func dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}
