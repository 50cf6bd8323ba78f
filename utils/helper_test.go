package utils

import (
	"errors"
	"testing"

	"github.com/go-playground/validator/v10"
)

func TestIsValidEmail(t *testing.T) {
	cases := []struct {
		email string
		valid bool
	}{
		{"ana@finca.co", true},
		{"carlos.perez+qr@example.com", true},
		{"no-at-sign", false},
		{"", false},
		{"a@b", false},
	}
	for _, tc := range cases {
		if got := IsValidEmail(tc.email); got != tc.valid {
			t.Fatalf("IsValidEmail(%q) = %v, want %v", tc.email, got, tc.valid)
		}
	}
}

func TestProcessValidationErrors(t *testing.T) {
	v := validator.New()
	err := v.Struct(struct {
		Name     string `validate:"required"`
		Quantity int    `validate:"gt=0"`
	}{})
	fields := ProcessValidationErrors(err)
	if fields["Name"] != "required" {
		t.Fatalf("expected Name -> required, got %v", fields)
	}
	if fields["Quantity"] != "gt" {
		t.Fatalf("expected Quantity -> gt, got %v", fields)
	}

	if fields := ProcessValidationErrors(errors.New("not a validator error")); fields != nil {
		t.Fatalf("expected nil for non-validator error, got %v", fields)
	}
}

func TestValidatePhoneNumber(t *testing.T) {
	if err := ValidatePhoneNumber("3001234567", CountryCode); err != nil {
		t.Fatalf("expected valid Colombian mobile, got %v", err)
	}
	if err := ValidatePhoneNumber("abc", CountryCode); err == nil {
		t.Fatal("expected error for non-numeric phone")
	}
}

func TestSplitAndTrim(t *testing.T) {
	got := SplitAndTrim(" a, b ,, c ")
	want := []string{"a", "b", "c"}
	if len(got) != len(want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("expected %v, got %v", want, got)
		}
	}
	if out := SplitAndTrim("  "); out != nil {
		t.Fatalf("expected nil for blank input, got %v", out)
	}
}

func TestExtractObjectKeyFromURL(t *testing.T) {
	cases := []struct {
		name string
		in   string
		want string
	}{
		{"raw key", "remisiones/rec001/doc.pdf", "remisiones/rec001/doc.pdf"},
		{"path traversal rejected", "remisiones/../secrets", ""},
		{"gs scheme", "gs://bucket/remisiones/rec001/doc.pdf", "remisiones/rec001/doc.pdf"},
		{"public gcs url", "https://storage.googleapis.com/bucket/remisiones/rec001/doc.pdf", "remisiones/rec001/doc.pdf"},
		{"query key", "https://cdn.example.com/file?key=remisiones%2Frec001%2Fdoc.pdf", "remisiones/rec001/doc.pdf"},
		{"empty", "", ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := ExtractObjectKeyFromURL(tc.in); got != tc.want {
				t.Fatalf("expected %q, got %q", tc.want, got)
			}
		})
	}
}

func TestBuildObjectAccessURL(t *testing.T) {
	t.Setenv("STORAGE_ACCESS_BASE_URL", "https://files.example.com")
	if got := BuildObjectAccessURL("remisiones/rec001/doc.pdf"); got != "https://files.example.com/remisiones/rec001/doc.pdf" {
		t.Fatalf("base url join: got %q", got)
	}

	t.Setenv("STORAGE_ACCESS_BASE_URL", "https://api.example.com/uploads/object?key={objectKey}")
	if got := BuildObjectAccessURL("remisiones/rec001/doc.pdf"); got != "https://api.example.com/uploads/object?key=remisiones%2Frec001%2Fdoc.pdf" {
		t.Fatalf("placeholder url: got %q", got)
	}
}
