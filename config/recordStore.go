package config

import (
	"log"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// The record store is an external tabular storage service reached over its
// HTTP API. We never talk to a database directly; every read and write in
// this codebase goes through these settings.
type RecordStoreConfig struct {
	BaseURL string
	APIKey  string
	// Table identifiers, keyed by logical table name.
	Tables  map[string]string
	Timeout time.Duration
}

var recordStoreCfg *RecordStoreConfig

func GetRecordStoreConfig() *RecordStoreConfig {
	return recordStoreCfg
}

func init() {
	// Load env from .env
	godotenv.Load()
}

// LoadRecordStoreConfig reads env and sets the global config.
// Call this from main() before wiring the record store client.
func LoadRecordStoreConfig() *RecordStoreConfig {
	baseURL := strings.TrimSpace(os.Getenv("RECORD_STORE_BASE_URL"))
	if baseURL == "" {
		baseURL = "https://api.airtable.com/v0"
		log.Printf("RECORD_STORE_BASE_URL not set; defaulting to %s", baseURL)
	}
	apiKey := strings.TrimSpace(os.Getenv("RECORD_STORE_API_KEY"))

	baseID := strings.TrimSpace(os.Getenv("RECORD_STORE_BASE_ID"))
	if baseID != "" {
		baseURL = strings.TrimRight(baseURL, "/") + "/" + baseID
	}

	timeout := 15 * time.Second
	if v := strings.TrimSpace(os.Getenv("RECORD_STORE_TIMEOUT_SECONDS")); v != "" {
		if d, err := time.ParseDuration(v + "s"); err == nil && d > 0 {
			timeout = d
		}
	}

	recordStoreCfg = &RecordStoreConfig{
		BaseURL: strings.TrimRight(baseURL, "/"),
		APIKey:  apiKey,
		Timeout: timeout,
		Tables: map[string]string{
			"batches":       envOr("RECORD_STORE_TABLE_BATCHES", "Lotes"),
			"remissions":    envOr("RECORD_STORE_TABLE_REMISSIONS", "Remisiones"),
			"shiftLogs":     envOr("RECORD_STORE_TABLE_SHIFT_LOGS", "Turnos"),
			"wasteRecords":  envOr("RECORD_STORE_TABLE_WASTE", "Residuos"),
			"transportLogs": envOr("RECORD_STORE_TABLE_TRANSPORT", "Transportes"),
		},
	}
	return recordStoreCfg
}

func envOr(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}
