package loader

import (
	"context"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

func TestAnalyze_TwoRowCSV(t *testing.T) {
	path := writeFile(t, "people.csv", "name,age\nAl,30\nBo,4\n")

	results, err := Analyze(context.Background(), path, TableMeta{
		Delimiter: ',',
		Quote:     '"',
		HasHeader: true,
	}, AnalyzeOptions{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("expected 1 result, got %d", len(results))
	}

	res := results[0]
	if res.RecordCount != 2 {
		t.Errorf("expected 2 records, got %d", res.RecordCount)
	}
	if len(res.Columns) != 2 {
		t.Fatalf("expected 2 columns, got %d", len(res.Columns))
	}

	want := []struct {
		name           string
		minLen, maxLen int
	}{
		{"name", 2, 2},
		{"age", 1, 2},
	}
	for i, w := range want {
		c := res.Columns[i]
		if c.Name != w.name || c.MinLen != w.minLen || c.MaxLen != w.maxLen {
			t.Errorf("column %d: expected {%s %d %d}, got {%s %d %d}",
				i, w.name, w.minLen, w.maxLen, c.Name, c.MinLen, c.MaxLen)
		}
	}
	if res.Columns[1].Sanitized != "AGE" {
		t.Errorf("expected sanitized AGE, got %s", res.Columns[1].Sanitized)
	}
	if res.Fingerprint == "" {
		t.Error("expected fingerprint")
	}
}

func TestAnalyze_SmallChunksMatchSingleChunk(t *testing.T) {
	var b strings.Builder
	b.WriteString("code|label\n")
	for i := 0; i < 257; i++ {
		b.WriteString(strings.Repeat("c", i%7+1))
		b.WriteString("|")
		b.WriteString(strings.Repeat("l", (i*13)%29+1))
		b.WriteString("\n")
	}
	path := writeFile(t, "codes.psv", b.String())
	meta := TableMeta{HasHeader: true}

	whole, err := Analyze(context.Background(), path, meta, AnalyzeOptions{ChunkSize: 10000})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	chunked, err := Analyze(context.Background(), path, meta, AnalyzeOptions{ChunkSize: 10, Concurrency: 4})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if !reflect.DeepEqual(whole, chunked) {
		t.Errorf("chunked analysis differs:\nwhole:   %+v\nchunked: %+v", whole, chunked)
	}
	if whole[0].RecordCount != 257 {
		t.Errorf("expected 257 records, got %d", whole[0].RecordCount)
	}
}

func TestAnalyze_MissingAndExtraColumns(t *testing.T) {
	path := writeFile(t, "acc.csv", "Account No,Balance,Comment\n1,10.5,x\n")

	results, err := Analyze(context.Background(), path, TableMeta{
		Quote:     '"',
		HasHeader: true,
		Columns: []ColumnMeta{
			{Name: "ACCOUNT_NO"},
			{Name: "Account No"},
			{Name: "Balance", Type: "numeric"},
			{Name: "Currency"},
		},
	}, AnalyzeOptions{SkipFingerprint: true})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	res := results[0]
	if !reflect.DeepEqual(res.MissingColumns, []string{"ACCOUNT_NO", "CURRENCY"}) {
		t.Errorf("unexpected missing columns: %v", res.MissingColumns)
	}
	if !reflect.DeepEqual(res.ExtraColumns, []string{"COMMENT"}) {
		t.Errorf("unexpected extra columns: %v", res.ExtraColumns)
	}
}

func TestAnalyze_WithoutHeaderUsesMetaNames(t *testing.T) {
	path := writeFile(t, "raw.txt", "a;bb;ccc\n")

	results, err := Analyze(context.Background(), path, TableMeta{
		Delimiter: ';',
		Columns:   []ColumnMeta{{Name: "first", Type: "char"}},
	}, AnalyzeOptions{SkipFingerprint: true})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	cols := results[0].Columns
	names := []string{cols[0].Name, cols[1].Name, cols[2].Name}
	if !reflect.DeepEqual(names, []string{"first", "COLUMN2", "COLUMN3"}) {
		t.Errorf("unexpected names: %v", names)
	}
	if cols[0].Type != "char" {
		t.Errorf("expected type label to be carried, got %q", cols[0].Type)
	}
}

func TestMerge_GroupingIndependent(t *testing.T) {
	records := [][]string{
		{"aaa", "1"},
		{"a", ""},
		{"aaaaa", "12345"},
		{"aa", "12"},
		{"", "123"},
		{"aaaa", "1", "extra"},
	}

	splits := [][]int{
		{6},
		{1, 5},
		{2, 2, 2},
		{3, 1, 2},
		{1, 1, 1, 1, 1, 1},
	}

	var want AnalyzeResult
	for i, split := range splits {
		var parts []AnalyzeResult
		pos := 0
		for _, size := range split {
			parts = append(parts, chunkStats(records[pos:pos+size], 3))
			pos += size
		}

		left := MergeAll(parts)

		// Свёртка справа налево
		right := parts[len(parts)-1]
		for j := len(parts) - 2; j >= 0; j-- {
			right = Merge(parts[j], right)
		}

		if !reflect.DeepEqual(left, right) {
			t.Errorf("split %v: left and right folds differ", split)
		}
		if i == 0 {
			want = left
			continue
		}
		if !reflect.DeepEqual(left, want) {
			t.Errorf("split %v: expected %+v, got %+v", split, want, left)
		}
	}

	if want.RecordCount != 6 {
		t.Errorf("expected 6 records, got %d", want.RecordCount)
	}
	if c := want.Columns[1]; c.MinLen != 1 || c.MaxLen != 5 {
		t.Errorf("expected second column 1..5, got %d..%d", c.MinLen, c.MaxLen)
	}
	if len(want.Columns) != 3 || want.Columns[2].MaxLen != 5 {
		t.Errorf("expected extra third column, got %+v", want.Columns)
	}
}

func TestMerge_Commutative(t *testing.T) {
	a := chunkStats([][]string{{"xx", "y"}}, 2)
	b := chunkStats([][]string{{"x", "yyy"}, {"xxxx", ""}}, 2)

	if !reflect.DeepEqual(Merge(a, b), Merge(b, a)) {
		t.Error("merge is not commutative")
	}
}

func TestSplitLine(t *testing.T) {
	tests := []struct {
		line  string
		delim rune
		quote rune
		want  []string
	}{
		{"a|b|c", '|', 0, []string{"a", "b", "c"}},
		{"a||", '|', 0, []string{"a", "", ""}},
		{"'a;b';c", ';', '\'', []string{"a;b", "c"}},
		{"'it''s';x", ';', '\'', []string{"it's", "x"}},
	}

	for _, tt := range tests {
		got := splitLine(tt.line, tt.delim, tt.quote)
		if !reflect.DeepEqual(got, tt.want) {
			t.Errorf("%q: expected %q, got %q", tt.line, tt.want, got)
		}
	}
}

func TestDelimited_Encoding(t *testing.T) {
	// "Ñu" в windows-1252
	path := writeFile(t, "latin.csv", "name\n\xd1u\n")

	src, err := Open(path, TableMeta{HasHeader: true, Quote: '"', Encoding: "windows-1252"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer src.Close()

	rr, err := src.Open("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer rr.Close()

	rec, err := rr.Next()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec[0] != "Ñu" {
		t.Errorf("expected Ñu, got %q", rec[0])
	}
}

func TestChunkStats_CapsAtWidth(t *testing.T) {
	res := chunkStats([][]string{{"a", "bb", "overflow"}, {"ccc"}}, 2)
	if len(res.Columns) != 2 {
		t.Fatalf("expected 2 columns, got %+v", res.Columns)
	}
	if c := res.Columns[0]; c.MinLen != 1 || c.MaxLen != 3 {
		t.Errorf("expected first column 1..3, got %d..%d", c.MinLen, c.MaxLen)
	}
}
