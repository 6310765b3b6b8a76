package loader

import (
	"math"
	"strconv"
	"strings"
	"time"
)

// Канонические форматы значений для COPY.
const (
	DateLayout     = "2006-01-02"
	DateTimeLayout = "2006-01-02T15:04:05"
)

// FormatBool возвращает TRUE или FALSE.
func FormatBool(b bool) string {
	if b {
		return "TRUE"
	}
	return "FALSE"
}

// FormatDate форматирует дату в ISO-8601.
func FormatDate(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format(DateLayout)
}

// FormatDateTime форматирует дату и время в ISO-8601.
// Если время равно полуночи, дата всё равно выводится со временем.
func FormatDateTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format(DateTimeLayout)
}

// FormatDecimal выводит число без экспоненты и лишних нулей.
func FormatDecimal(f float64) string {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return ""
	}
	return strconv.FormatFloat(f, 'f', -1, 64)
}

// looksLikeWholeNumber: true, если у числа нет дробной части.
// Для сериальных дат Excel это означает «дата без времени».
func looksLikeWholeNumber(f float64) bool {
	return !math.IsInf(f, 0) && f == math.Trunc(f)
}

// normalizeText убирает завершающие пробелы и управляющие \r.
func normalizeText(s string) string {
	return strings.TrimRight(s, " \r")
}
