package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/verdecarbon/biochar_backend/config"
	"github.com/verdecarbon/biochar_backend/models"
	"github.com/verdecarbon/biochar_backend/recordstore"
	"github.com/verdecarbon/biochar_backend/workflow"
)

// Rebuilds the Redis reservation ledger from the record store. The ledger is
// an optimization over the store's truth: every remission that has not yet
// confirmed receipt still holds its allocations as outstanding reservations.
// Run after a Redis flush or when the ledger is suspected to have drifted.
func main() {
	dryRun := flag.Bool("dry-run", false, "Print the computed outstanding totals without writing to Redis")
	timeout := flag.Duration("timeout", 2*time.Minute, "Overall timeout")
	flag.Parse()

	logger := logrus.New()
	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	storeCfg := config.LoadRecordStoreConfig()
	client, err := recordstore.NewClient(storeCfg, logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "record store client: %v\n", err)
		os.Exit(1)
	}

	remissions := models.NewRemissionStore(client, logger)
	all, err := remissions.ListRemissions(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "list remissions: %v\n", err)
		os.Exit(1)
	}

	outstanding := map[string]decimal.Decimal{}
	counted := 0
	for _, r := range all {
		// Receipt-confirmed remissions were already debited from the batch.
		if r.State() == models.StateReceiptConfirmed {
			continue
		}
		counted++
		for _, a := range r.Allocations {
			outstanding[a.BatchId] = outstanding[a.BatchId].Add(a.RequestedQuantity)
		}
	}

	config.ConnectRedisWithRetry()
	rdb := config.GetRedisDB()
	if rdb == nil {
		fmt.Fprintln(os.Stderr, "redis not initialized")
		os.Exit(1)
	}

	// Debits still parked on the replay queue belong to receipt-confirmed
	// remissions, but their stock has not moved yet. Keep those reservations
	// so a later replay cannot collide with a fresh allocation.
	pending, err := workflow.QueuedPendingDebits()
	if err != nil {
		fmt.Fprintf(os.Stderr, "read pending-debit queue: %v\n", err)
		os.Exit(1)
	}
	for batchId, total := range workflow.PendingDebitTotals(pending) {
		outstanding[batchId] = outstanding[batchId].Add(total)
	}

	fmt.Printf("remissions scanned: %d, holding reservations: %d, pending debits queued: %d, batches affected: %d\n",
		len(all), counted, len(pending), len(outstanding))
	for batchId, total := range outstanding {
		fmt.Printf("  %s -> %s kg\n", batchId, total.String())
	}

	if *dryRun {
		fmt.Println("dry run; ledger not modified")
		return
	}

	ledger := workflow.NewRedisReservationLedger(rdb)
	if err := ledger.Rebuild(ctx, outstanding); err != nil {
		fmt.Fprintf(os.Stderr, "rebuild ledger: %v\n", err)
		os.Exit(1)
	}
	fmt.Println("reservation ledger rebuilt")
}
