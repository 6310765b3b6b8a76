// Package migrations содержит SQL-схему Ingestor.
//
// Файлы применяются по порядку имени; версия - префикс до первого '_'.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS
