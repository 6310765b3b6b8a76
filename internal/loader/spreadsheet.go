package loader

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/xuri/excelize/v2"
)

// Встроенные форматы Excel, означающие дату/время.
func isBuiltinDateFormat(id int) bool {
	return (id >= 14 && id <= 22) || (id >= 45 && id <= 47)
}

// isCustomDateFormat проверяет пользовательский формат на токены даты.
// Литералы в кавычках и секции в [] (цвета, локали) не учитываются.
func isCustomDateFormat(code string) bool {
	var b strings.Builder
	inQuote, inBracket := false, false
	for _, r := range strings.ToLower(code) {
		switch {
		case r == '"':
			inQuote = !inQuote
		case inQuote:
		case r == '[':
			inBracket = true
		case r == ']':
			inBracket = false
		case inBracket:
		default:
			b.WriteRune(r)
		}
	}
	s := b.String()
	return strings.ContainsAny(s, "yd") || strings.Contains(s, "h:") || strings.Contains(s, "mmm")
}

type spreadsheetSource struct {
	f        *excelize.File
	meta     TableMeta
	sheets   []string
	date1904 bool
}

func openSpreadsheet(path string, meta TableMeta) (Source, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("open workbook %s: %w", path, err)
	}

	s := &spreadsheetSource{f: f, meta: meta}

	if props, err := f.GetWorkbookProps(); err == nil && props.Date1904 != nil {
		s.date1904 = *props.Date1904
	}

	all := f.GetSheetList()
	if meta.Sheet != "" {
		found := false
		for _, name := range all {
			if strings.EqualFold(name, meta.Sheet) {
				s.sheets = []string{name}
				found = true
				break
			}
		}
		if !found {
			f.Close()
			return nil, fmt.Errorf("%w: sheet %q in %s", ErrTableNotFound, meta.Sheet, path)
		}
	} else {
		s.sheets = all
	}

	return s, nil
}

func (s *spreadsheetSource) Tables() []string { return s.sheets }

func (s *spreadsheetSource) Open(table string) (RecordReader, error) {
	sheet := ""
	for _, name := range s.sheets {
		if table == "" || strings.EqualFold(name, table) {
			sheet = name
			break
		}
	}
	if sheet == "" {
		return nil, fmt.Errorf("%w: sheet %q", ErrTableNotFound, table)
	}

	rows, err := s.f.Rows(sheet)
	if err != nil {
		return nil, fmt.Errorf("read sheet %s: %w", sheet, err)
	}

	r := &sheetReader{src: s, sheet: sheet, rows: rows}

	first, err := r.read()
	switch {
	case err == io.EOF:
		first = nil
	case err != nil:
		rows.Close()
		return nil, err
	}

	if s.meta.HasHeader && first != nil {
		r.header = first
	} else {
		r.first = first
		r.header = headerFromMeta(s.meta, len(first))
	}
	if len(r.header) == 0 {
		rows.Close()
		return nil, fmt.Errorf("%w: sheet %s", ErrNoColumns, sheet)
	}
	r.types = s.meta.expectedTypes(len(r.header))

	return r, nil
}

func (s *spreadsheetSource) Close() error { return s.f.Close() }

// sheetReader читает строки листа и нормализует значения ячеек.
type sheetReader struct {
	src    *spreadsheetSource
	sheet  string
	rows   *excelize.Rows
	row    int
	header []string
	types  []string
	first  []string
}

func (r *sheetReader) Header() []string { return r.header }
func (r *sheetReader) Types() []string  { return r.types }

func (r *sheetReader) Next() ([]string, error) {
	if r.first != nil {
		rec := r.first
		r.first = nil
		return rec, nil
	}
	return r.read()
}

func (r *sheetReader) Close() error { return r.rows.Close() }

func (r *sheetReader) read() ([]string, error) {
	for r.rows.Next() {
		r.row++
		raw, err := r.rows.Columns(excelize.Options{RawCellValue: true})
		if err != nil {
			return nil, fmt.Errorf("sheet %s row %d: %w", r.sheet, r.row, err)
		}
		if isBlankRecord(raw) {
			continue
		}

		rec := make([]string, len(raw))
		for i, v := range raw {
			cell, err := excelize.CoordinatesToCellName(i+1, r.row)
			if err != nil {
				return nil, err
			}
			rec[i], err = r.src.cellValue(r.sheet, cell, v)
			if err != nil {
				return nil, fmt.Errorf("sheet %s cell %s: %w", r.sheet, cell, err)
			}
		}
		return rec, nil
	}
	if err := r.rows.Error(); err != nil {
		return nil, err
	}
	return nil, io.EOF
}

// cellValue приводит сырое значение ячейки к каноническому виду.
func (s *spreadsheetSource) cellValue(sheet, cell, raw string) (string, error) {
	if formula, err := s.f.GetCellFormula(sheet, cell); err == nil && formula != "" {
		if v, err := s.f.CalcCellValue(sheet, cell, excelize.Options{RawCellValue: true}); err == nil {
			raw = v
		}
	}
	if raw == "" {
		return "", nil
	}

	typ, err := s.f.GetCellType(sheet, cell)
	if err != nil {
		return "", err
	}

	switch typ {
	case excelize.CellTypeBool:
		return FormatBool(raw == "1" || strings.EqualFold(raw, "TRUE")), nil
	case excelize.CellTypeSharedString, excelize.CellTypeInlineString, excelize.CellTypeError:
		return normalizeText(raw), nil
	}

	num, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return normalizeText(raw), nil
	}

	if typ == excelize.CellTypeDate || s.isDateCell(sheet, cell) {
		t, err := excelize.ExcelDateToTime(num, s.date1904)
		if err != nil {
			return FormatDecimal(num), nil
		}
		if looksLikeWholeNumber(num) {
			return FormatDate(t), nil
		}
		return FormatDateTime(t), nil
	}

	return FormatDecimal(num), nil
}

func (s *spreadsheetSource) isDateCell(sheet, cell string) bool {
	styleID, err := s.f.GetCellStyle(sheet, cell)
	if err != nil || styleID == 0 {
		return false
	}
	style, err := s.f.GetStyle(styleID)
	if err != nil || style == nil {
		return false
	}
	if isBuiltinDateFormat(style.NumFmt) {
		return true
	}
	return style.CustomNumFmt != nil && isCustomDateFormat(*style.CustomNumFmt)
}
