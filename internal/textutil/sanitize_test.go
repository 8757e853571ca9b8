package textutil

import (
	"errors"
	"testing"
)

func TestSanitizeFileName(t *testing.T) {
	tests := map[string]string{
		"  Invoices 2024  ": "Invoices 2024",
		"a/b:c*d":           "a-b-c-d",
		`what?"<>|`:         "what",
		"":                  "",
	}
	for in, want := range tests {
		if got := SanitizeFileName(in); got != want {
			t.Fatalf("SanitizeFileName(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestNormalizeName(t *testing.T) {
	decomposed := "Cafe\u0301"
	got, err := NormalizeName(decomposed)
	if err != nil {
		t.Fatalf("NormalizeName: %v", err)
	}
	if got != "Caf\u00e9" {
		t.Fatalf("expected NFC form, got %q", got)
	}

	for _, bad := range []string{"", "  ", ".", "..", "a/b", "tax:2024", "???"} {
		if _, err := NormalizeName(bad); !errors.Is(err, ErrInvalidName) {
			t.Fatalf("NormalizeName(%q) error = %v, want ErrInvalidName", bad, err)
		}
	}
}
