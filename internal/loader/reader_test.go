package loader

import (
	"context"
	"errors"
	"io"
	"path/filepath"
	"reflect"
	"testing"
	"time"

	"github.com/xuri/excelize/v2"
)

func readAll(t *testing.T, rr RecordReader) [][]string {
	t.Helper()
	var out [][]string
	for {
		rec, err := rr.Next()
		if errors.Is(err, io.EOF) {
			return out
		}
		if err != nil {
			t.Fatalf("read: %v", err)
		}
		out = append(out, rec)
	}
}

func writeWorkbook(t *testing.T) string {
	t.Helper()

	f := excelize.NewFile()
	defer f.Close()

	sheet := "Sheet1"
	cells := map[string]interface{}{
		"A1": "Name", "B1": "Born", "C1": "Active", "D1": "Total", "E1": "Seen At", "F1": "Ratio",
		"A2": "Al", "B2": 45000, "C2": true, "E2": 45000.5, "F2": 0.25,
		"A3": "Bo", "B3": 45001, "C3": false, "E3": 45001.75, "F3": 3,
	}
	for cell, v := range cells {
		if err := f.SetCellValue(sheet, cell, v); err != nil {
			t.Fatalf("set %s: %v", cell, err)
		}
	}
	if err := f.SetCellFormula(sheet, "D2", "2+3"); err != nil {
		t.Fatal(err)
	}
	if err := f.SetCellFormula(sheet, "D3", "F3*2"); err != nil {
		t.Fatal(err)
	}

	dateStyle, err := f.NewStyle(&excelize.Style{NumFmt: 14})
	if err != nil {
		t.Fatal(err)
	}
	if err := f.SetCellStyle(sheet, "B2", "B3", dateStyle); err != nil {
		t.Fatal(err)
	}
	custom := "yyyy-mm-dd hh:mm"
	dtStyle, err := f.NewStyle(&excelize.Style{CustomNumFmt: &custom})
	if err != nil {
		t.Fatal(err)
	}
	if err := f.SetCellStyle(sheet, "E2", "E3", dtStyle); err != nil {
		t.Fatal(err)
	}

	if _, err := f.NewSheet("Empty"); err != nil {
		t.Fatal(err)
	}

	path := filepath.Join(t.TempDir(), "book.xlsx")
	if err := f.SaveAs(path); err != nil {
		t.Fatalf("save workbook: %v", err)
	}
	return path
}

func TestSpreadsheet_NormalizesCells(t *testing.T) {
	path := writeWorkbook(t)

	src, err := Open(path, TableMeta{HasHeader: true, Sheet: "Sheet1"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer src.Close()

	if tables := src.Tables(); !reflect.DeepEqual(tables, []string{"Sheet1"}) {
		t.Errorf("expected only Sheet1, got %v", tables)
	}

	rr, err := src.Open("Sheet1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer rr.Close()

	wantHeader := []string{"Name", "Born", "Active", "Total", "Seen At", "Ratio"}
	if !reflect.DeepEqual(rr.Header(), wantHeader) {
		t.Errorf("expected header %v, got %v", wantHeader, rr.Header())
	}

	got := readAll(t, rr)
	want := [][]string{
		{"Al", "2023-03-15", "TRUE", "5", "2023-03-15T12:00:00", "0.25"},
		{"Bo", "2023-03-16", "FALSE", "6", "2023-03-16T18:00:00", "3"},
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("unexpected records:\nwant %q\ngot  %q", want, got)
	}
}

func TestSpreadsheet_AllSheets(t *testing.T) {
	path := writeWorkbook(t)

	src, err := Open(path, TableMeta{HasHeader: true})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer src.Close()

	if tables := src.Tables(); !reflect.DeepEqual(tables, []string{"Sheet1", "Empty"}) {
		t.Errorf("expected both sheets, got %v", tables)
	}

	if _, err := src.Open("Nope"); !errors.Is(err, ErrTableNotFound) {
		t.Errorf("expected ErrTableNotFound, got %v", err)
	}
}

func TestSpreadsheet_UnknownSheet(t *testing.T) {
	path := writeWorkbook(t)

	if _, err := Open(path, TableMeta{Sheet: "Missing"}); !errors.Is(err, ErrTableNotFound) {
		t.Errorf("expected ErrTableNotFound, got %v", err)
	}
}

func TestIsCustomDateFormat(t *testing.T) {
	tests := []struct {
		code string
		want bool
	}{
		{"yyyy-mm-dd", true},
		{"dd/mm/yy", true},
		{"h:mm", true},
		{"mmm yyyy", true},
		{"0.00", false},
		{`#,##0 "days"`, false},
		{"[Red]0.00", false},
	}
	for _, tt := range tests {
		if got := isCustomDateFormat(tt.code); got != tt.want {
			t.Errorf("%q: expected %v, got %v", tt.code, tt.want, got)
		}
	}
}

func TestFixed_InferredFromHeader(t *testing.T) {
	content := "" +
		"ID   NAME       AMOUNT\n" +
		"1    Alice      10.50\n" +
		"\n" +
		"22   Bob Smith  7\n"
	path := writeFile(t, "ledger.dat", content)

	src, err := Open(path, TableMeta{HasHeader: true})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	rr, err := src.Open("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer rr.Close()

	if !reflect.DeepEqual(rr.Header(), []string{"ID", "NAME", "AMOUNT"}) {
		t.Errorf("unexpected header %v", rr.Header())
	}

	got := readAll(t, rr)
	want := [][]string{
		{"1", "Alice", "10.50"},
		{"22", "Bob Smith", "7"},
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("expected %q, got %q", want, got)
	}
}

func TestFixed_Widths(t *testing.T) {
	path := writeFile(t, "codes.fwf", "01ABCx\n02DEF \n")

	src, err := Open(path, TableMeta{
		Columns: []ColumnMeta{
			{Name: "code", Width: 2},
			{Name: "label", Width: 3},
			{Name: "flag", Width: 1},
		},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	rr, err := src.Open("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer rr.Close()

	if !reflect.DeepEqual(rr.Header(), []string{"code", "label", "flag"}) {
		t.Errorf("unexpected header %v", rr.Header())
	}
	got := readAll(t, rr)
	want := [][]string{{"01", "ABC", "x"}, {"02", "DEF", ""}}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("expected %q, got %q", want, got)
	}
}

func TestFixed_NoLayout(t *testing.T) {
	path := writeFile(t, "blind.prn", "abc\n")

	src, err := Open(path, TableMeta{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := src.Open(""); !errors.Is(err, ErrNoColumns) {
		t.Errorf("expected ErrNoColumns, got %v", err)
	}
}

func TestDBaseValue(t *testing.T) {
	tests := []struct {
		in   interface{}
		want string
	}{
		{nil, ""},
		{"  text  ", "  text"},
		{true, "TRUE"},
		{false, "FALSE"},
		{float64(12.5), "12.5"},
		{int64(42), "42"},
		{int32(-7), "-7"},
		{time.Date(2024, 2, 29, 0, 0, 0, 0, time.UTC), "2024-02-29"},
		{time.Date(2024, 2, 29, 13, 5, 0, 0, time.UTC), "2024-02-29T13:05:00"},
	}
	for _, tt := range tests {
		if got := dbaseValue(tt.in); got != tt.want {
			t.Errorf("%v: expected %q, got %q", tt.in, tt.want, got)
		}
	}
}

func TestAnalyze_Spreadsheet(t *testing.T) {
	path := writeWorkbook(t)

	results, err := Analyze(context.Background(), path, TableMeta{HasHeader: true, Sheet: "Sheet1"}, AnalyzeOptions{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("expected 1 result, got %d", len(results))
	}
	res := results[0]
	if res.Table != "Sheet1" || res.RecordCount != 2 {
		t.Errorf("unexpected result %+v", res)
	}
	if c := res.Columns[1]; c.Sanitized != "BORN" || c.MaxLen != 10 {
		t.Errorf("unexpected date column stats %+v", c)
	}
}
