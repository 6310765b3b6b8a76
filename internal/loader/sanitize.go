package loader

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// SanitizeColumnName приводит заголовок к идентификатору колонки:
//  1. убирает диакритику (NFD → удалить Mn → NFC)
//  2. переводит в верхний регистр
//  3. удаляет всё, кроме букв, цифр и '_'
//  4. экранирует ведущую цифру префиксом '_'
//  5. обрезает до maxLen (maxLen <= 0 - DefaultMaxIdentifierLength)
//
// Пустой результат заменяется на "_".
func SanitizeColumnName(name string, maxLen int) string {
	if maxLen <= 0 {
		maxLen = DefaultMaxIdentifierLength
	}

	t := transform.Chain(
		norm.NFD,
		runes.Remove(runes.In(unicode.Mn)),
		norm.NFC,
	)
	plain, _, err := transform.String(t, strings.TrimSpace(name))
	if err != nil {
		plain = name
	}
	plain = strings.ToUpper(plain)

	var b strings.Builder
	for _, r := range plain {
		if r == '_' || unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
		}
	}
	out := b.String()

	if out == "" {
		out = "_"
	}
	if first := []rune(out)[0]; unicode.IsDigit(first) {
		out = "_" + out
	}

	return truncateIdentifier(out, maxLen)
}

// truncateIdentifier обрезает строку до maxLen байт, не разрывая руны.
func truncateIdentifier(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	cut := 0
	for i := range s {
		if i > maxLen {
			break
		}
		cut = i
	}
	return s[:cut]
}
