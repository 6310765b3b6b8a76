package loader

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestDetectFormat(t *testing.T) {
	tests := []struct {
		path string
		want Format
	}{
		{"data.csv", FormatDelimited},
		{"DATA.CSV", FormatDelimited},
		{"a/b/c.tsv", FormatDelimited},
		{"x.psv", FormatDelimited},
		{"x.txt", FormatDelimited},
		{"book.xlsx", FormatSpreadsheet},
		{"book.xlsm", FormatSpreadsheet},
		{"legacy.dbf", FormatDBase},
		{"fixed.dat", FormatFixed},
		{"fixed.fwf", FormatFixed},
		{"report.prn", FormatFixed},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			got, err := DetectFormat(tt.path)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("expected %s, got %s", tt.want, got)
			}
		})
	}
}

func TestDetectFormat_Unsupported(t *testing.T) {
	for _, path := range []string{"file.json", "noext", "archive.zip"} {
		if _, err := DetectFormat(path); !errors.Is(err, ErrUnsupportedFormat) {
			t.Errorf("%s: expected ErrUnsupportedFormat, got %v", path, err)
		}
	}
}

func TestCheckFile(t *testing.T) {
	dir := t.TempDir()

	if err := CheckFile(filepath.Join(dir, "missing.csv")); !errors.Is(err, ErrFileNotFound) {
		t.Errorf("expected ErrFileNotFound, got %v", err)
	}

	sub := filepath.Join(dir, "folder.csv")
	if err := os.Mkdir(sub, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := CheckFile(sub); !errors.Is(err, ErrNotAFile) {
		t.Errorf("expected ErrNotAFile, got %v", err)
	}

	file := filepath.Join(dir, "ok.csv")
	if err := os.WriteFile(file, []byte("a\n1\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := CheckFile(file); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestOpen_FailsBeforeReading(t *testing.T) {
	dir := t.TempDir()

	if _, err := Open(filepath.Join(dir, "gone.xlsx"), TableMeta{}); !errors.Is(err, ErrFileNotFound) {
		t.Errorf("expected ErrFileNotFound, got %v", err)
	}
	if _, err := Open(filepath.Join(dir, "gone.json"), TableMeta{}); !errors.Is(err, ErrUnsupportedFormat) {
		t.Errorf("expected ErrUnsupportedFormat, got %v", err)
	}
}

func TestSanitizeColumnName(t *testing.T) {
	tests := []struct {
		in     string
		maxLen int
		want   string
	}{
		{"name", 0, "NAME"},
		{"First Name", 0, "FIRSTNAME"},
		{"Café-Crème", 0, "CAFECREME"},
		{"amount ($)", 0, "AMOUNT"},
		{"1st_place", 0, "_1ST_PLACE"},
		{"  padded  ", 0, "PADDED"},
		{"!!!", 0, "_"},
		{"abcdefghij", 4, "ABCD"},
		{"snake_case_ok", 0, "SNAKE_CASE_OK"},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			if got := SanitizeColumnName(tt.in, tt.maxLen); got != tt.want {
				t.Errorf("expected %q, got %q", tt.want, got)
			}
		})
	}
}

func TestSanitizeColumnName_DefaultLimit(t *testing.T) {
	long := ""
	for i := 0; i < 100; i++ {
		long += "x"
	}
	got := SanitizeColumnName(long, 0)
	if len(got) != DefaultMaxIdentifierLength {
		t.Errorf("expected length %d, got %d", DefaultMaxIdentifierLength, len(got))
	}
}

func TestTruncateIdentifier_KeepsRunesWhole(t *testing.T) {
	// "Ж" занимает 2 байта
	got := truncateIdentifier("ЖЖЖ", 5)
	if got != "ЖЖ" {
		t.Errorf("expected %q, got %q", "ЖЖ", got)
	}
}

func TestFormatValues(t *testing.T) {
	if FormatBool(true) != "TRUE" || FormatBool(false) != "FALSE" {
		t.Error("unexpected boolean format")
	}
	if got := FormatDecimal(1e21); got != "1000000000000000000000" {
		t.Errorf("decimal must not use exponent, got %s", got)
	}
	if got := FormatDecimal(0.1); got != "0.1" {
		t.Errorf("expected 0.1, got %s", got)
	}
	if got := FormatDecimal(30); got != "30" {
		t.Errorf("expected 30, got %s", got)
	}
	if !looksLikeWholeNumber(45000) || looksLikeWholeNumber(45000.5) {
		t.Error("whole number check failed")
	}
}
