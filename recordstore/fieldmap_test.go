package recordstore

import (
	"strings"
	"testing"
	"time"
)

func TestFieldMapValidate(t *testing.T) {
	cases := []struct {
		name     string
		m        FieldMap
		required []string
		wantErr  string
	}{
		{
			"valid",
			FieldMap{"code": "Código", "status": "Estado"},
			[]string{"code", "status"},
			"",
		},
		{
			"missing required field",
			FieldMap{"code": "Código"},
			[]string{"code", "status"},
			"missing logical fields: status",
		},
		{
			"empty column name",
			FieldMap{"code": "  "},
			[]string{"code"},
			"empty column name",
		},
		{
			"duplicate column",
			FieldMap{"code": "Código", "alias": "Código"},
			[]string{"code"},
			"mapped by both",
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.m.Validate("Lotes", tc.required)
			if tc.wantErr == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tc.wantErr) {
				t.Fatalf("expected error containing %q, got %v", tc.wantErr, err)
			}
		})
	}
}

func TestFieldMapColumn_PanicsOnUnknownField(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic on unmapped logical field")
		}
	}()
	FieldMap{"code": "Código"}.Column("status")
}

func TestRecordAccessors(t *testing.T) {
	rec := &Record{
		ID: "rec001",
		Fields: map[string]any{
			"Código":                        "L-2026-014",
			"Biochar Seco Disponible (kg)":  412.5,
			"Cantidad Texto":                "17.25",
			"Fecha Evento":                  "2026-08-20",
			"Entrega Fecha":                 "2026-08-21T14:30:00Z",
			"Activo":                        true,
			"Documentos":                    []any{"a.pdf", "b.pdf"},
			"Vacío":                         "   ",
		},
	}

	if got := rec.String("Código"); got != "L-2026-014" {
		t.Fatalf("String: got %q", got)
	}
	if got := rec.String("No Existe"); got != "" {
		t.Fatalf("String on missing column: got %q", got)
	}
	if got := rec.Decimal("Biochar Seco Disponible (kg)"); got.String() != "412.5" {
		t.Fatalf("Decimal from float: got %s", got)
	}
	if got := rec.Decimal("Cantidad Texto"); got.String() != "17.25" {
		t.Fatalf("Decimal from string: got %s", got)
	}
	if got := rec.Decimal("No Existe"); !got.IsZero() {
		t.Fatalf("Decimal on missing column: got %s", got)
	}
	if got := rec.Time("Fecha Evento"); got != time.Date(2026, 8, 20, 0, 0, 0, 0, time.UTC) {
		t.Fatalf("Time from date-only: got %s", got)
	}
	if got := rec.Time("Entrega Fecha"); got != time.Date(2026, 8, 21, 14, 30, 0, 0, time.UTC) {
		t.Fatalf("Time from RFC3339: got %s", got)
	}
	if !rec.Bool("Activo") {
		t.Fatal("Bool: expected true")
	}
	if got := rec.StringSlice("Documentos"); len(got) != 2 || got[1] != "b.pdf" {
		t.Fatalf("StringSlice: got %v", got)
	}
	if !rec.Has("Código") {
		t.Fatal("Has: expected true for non-empty string")
	}
	if rec.Has("Vacío") {
		t.Fatal("Has: blank string must count as absent")
	}
	if rec.Has("No Existe") {
		t.Fatal("Has: missing column must count as absent")
	}

	var nilRec *Record
	if nilRec.String("x") != "" || !nilRec.Decimal("x").IsZero() || nilRec.Has("x") {
		t.Fatal("nil record accessors must return zero values")
	}
}
