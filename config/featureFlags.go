package config

import (
	"os"
	"strings"
)

// StrictReservationLedger makes the redis reservation ledger authoritative:
// allocation proposals fail when the ledger is unavailable instead of falling
// back to an advisory live read.
//
// Set via env:
// - STRICT_RESERVATION_LEDGER=true
func StrictReservationLedger() bool {
	v := strings.ToLower(strings.TrimSpace(os.Getenv("STRICT_RESERVATION_LEDGER")))
	return v == "1" || v == "true" || v == "yes" || v == "y"
}

// PublishLifecycleEvents gates Pub/Sub publication of remission transitions.
// Off by default so local development does not need GCP credentials.
//
// Set via env:
// - PUBLISH_LIFECYCLE_EVENTS=true
func PublishLifecycleEvents() bool {
	v := strings.ToLower(strings.TrimSpace(os.Getenv("PUBLISH_LIFECYCLE_EVENTS")))
	return v == "1" || v == "true" || v == "yes" || v == "y"
}
