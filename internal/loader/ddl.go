package loader

import (
	"fmt"
	"strings"
)

// Destination: целевая таблица загрузки.
type Destination struct {
	Schema string
	Table  string
}

// FQN возвращает schema.table в кавычках.
func (d Destination) FQN() string {
	if d.Schema == "" {
		return pgIdent(d.Table)
	}
	return pgIdent(d.Schema) + "." + pgIdent(d.Table)
}

// String возвращает schema.table без кавычек.
func (d Destination) String() string {
	if d.Schema == "" {
		return d.Table
	}
	return d.Schema + "." + d.Table
}

// pgIdent экранирует один идентификатор PostgreSQL.
func pgIdent(id string) string { return `"` + strings.ReplaceAll(id, `"`, `""`) + `"` }

// CreateTableSQL строит CREATE TABLE по результатам анализа:
// varchar(MaxLen) для каждой колонки, text - если значений не было.
func CreateTableSQL(dest Destination, columns []ColumnStats) (string, error) {
	if len(columns) == 0 {
		return "", fmt.Errorf("%w: %s", ErrNoColumns, dest)
	}

	seen := make(map[string]bool, len(columns))
	defs := make([]string, 0, len(columns))
	for _, c := range columns {
		name := c.Sanitized
		if name == "" {
			name = SanitizeColumnName(c.Name, 0)
		}
		if seen[name] {
			return "", fmt.Errorf("duplicate column %s in %s", name, dest)
		}
		seen[name] = true

		typ := "text"
		if c.MaxLen > 0 {
			typ = fmt.Sprintf("varchar(%d)", c.MaxLen)
		}
		defs = append(defs, "\t"+pgIdent(name)+" "+typ)
	}

	return fmt.Sprintf("CREATE TABLE %s (\n%s\n)", dest.FQN(), strings.Join(defs, ",\n")), nil
}

// CreateSchemaSQL возвращает CREATE SCHEMA IF NOT EXISTS.
func CreateSchemaSQL(schema string) string {
	return "CREATE SCHEMA IF NOT EXISTS " + pgIdent(schema)
}

// DropTableSQL возвращает DROP TABLE IF EXISTS.
func DropTableSQL(dest Destination) string {
	return "DROP TABLE IF EXISTS " + dest.FQN()
}

// CountSQL возвращает запрос количества строк.
func CountSQL(dest Destination) string {
	return "SELECT count(*) FROM " + dest.FQN()
}

// CopySQL строит COPY ... FROM STDIN для CSV-потока.
func CopySQL(dest Destination, columns []string, delim, quote rune) string {
	cols := make([]string, len(columns))
	for i, c := range columns {
		cols[i] = pgIdent(c)
	}
	return fmt.Sprintf("COPY %s (%s) FROM STDIN WITH (FORMAT csv, DELIMITER %s, QUOTE %s)",
		dest.FQN(), strings.Join(cols, ", "), pgLiteral(delim), pgLiteral(quote))
}

func pgLiteral(r rune) string {
	if r == '\'' {
		return "''''"
	}
	if r == '\t' {
		return "E'\\t'"
	}
	return "'" + string(r) + "'"
}
