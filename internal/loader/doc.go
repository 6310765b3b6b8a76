// Package loader читает исходные файлы данных и грузит их в PostgreSQL.
//
// Включает:
//   - format.go      - определение формата по расширению, проверки пути
//   - source.go      - общий интерфейс Source/RecordReader
//   - delimited.go   - текст с разделителями (csv/tsv/psv/txt)
//   - spreadsheet.go - книги Excel (excelize)
//   - dbase.go       - таблицы dBase (.dbf)
//   - fixed.go       - файлы с полями фиксированной ширины
//   - analyze.go     - статистика колонок по чанкам и их слияние
//   - copy.go        - потоковая загрузка через COPY FROM STDIN
//   - ddl.go         - CREATE/DROP TABLE для staging-таблиц
//
// Все адаптеры приводят записи к []string с нормализованными значениями:
// ISO-даты, TRUE/FALSE для логических значений, десятичные числа без
// экспоненты. Пустая строка означает NULL.
package loader
