package loader

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// Format: тип адаптера для файла.
type Format string

const (
	FormatDelimited   Format = "delimited"
	FormatSpreadsheet Format = "spreadsheet"
	FormatDBase       Format = "dbase"
	FormatFixed       Format = "fixed"
)

var extensions = map[string]Format{
	".csv":  FormatDelimited,
	".txt":  FormatDelimited,
	".tsv":  FormatDelimited,
	".psv":  FormatDelimited,
	".xlsx": FormatSpreadsheet,
	".xlsm": FormatSpreadsheet,
	".dbf":  FormatDBase,
	".dat":  FormatFixed,
	".fwf":  FormatFixed,
	".prn":  FormatFixed,
}

// DetectFormat определяет формат по расширению (без учёта регистра).
func DetectFormat(path string) (Format, error) {
	ext := strings.ToLower(filepath.Ext(path))
	if f, ok := extensions[ext]; ok {
		return f, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnsupportedFormat, ext)
}

// CheckFile проверяет, что путь существует и это обычный файл.
func CheckFile(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("%w: %s", ErrFileNotFound, path)
		}
		return fmt.Errorf("stat %s: %w", path, err)
	}
	if !info.Mode().IsRegular() {
		return fmt.Errorf("%w: %s", ErrNotAFile, path)
	}
	return nil
}

// defaultDelimiter подбирает разделитель по расширению.
func defaultDelimiter(path string) rune {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".tsv":
		return '\t'
	case ".psv":
		return '|'
	default:
		return ','
	}
}
