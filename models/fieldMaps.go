package models

import "fmt"

// ValidateFieldMaps checks every table's field map at startup. A renamed or
// missing column in the record store should kill the deploy, not surface as
// empty reads in production.
func ValidateFieldMaps() error {
	checks := []struct {
		table    string
		fields   interface{ Validate(string, []string) error }
		required []string
	}{
		{"batches", BatchFields, batchRequiredFields},
		{"remissions", RemissionFields, remissionRequiredFields},
		{"shiftLogs", ShiftLogFields, shiftLogRequiredFields},
		{"wasteRecords", WasteRecordFields, wasteRecordRequiredFields},
		{"transportLogs", TransportLogFields, transportLogRequiredFields},
	}
	for _, check := range checks {
		if err := check.fields.Validate(check.table, check.required); err != nil {
			return fmt.Errorf("field map validation: %w", err)
		}
	}
	return nil
}
