package models

import "github.com/shopspring/decimal"

// Allocation binds a remission to a batch for a requested quantity. It is
// owned by its remission; the batch reference is a weak back-reference.
type Allocation struct {
	BatchId           string          `json:"batch_id"`
	BatchCode         string          `json:"batch_code,omitempty"`
	RequestedQuantity decimal.Decimal `json:"requested_quantity"`
}

// AllocationSet is a committed, validated set of allocations ready to be
// attached to a new remission. Produced only by the allocation engine.
type AllocationSet struct {
	Items []Allocation `json:"items"`
}

func (s AllocationSet) Total() decimal.Decimal {
	total := decimal.Zero
	for _, item := range s.Items {
		total = total.Add(item.RequestedQuantity)
	}
	return total
}
