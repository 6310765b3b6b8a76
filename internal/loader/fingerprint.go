package loader

import (
	"fmt"
	"io"
	"os"

	"github.com/zeebo/xxh3"
)

// Fingerprint возвращает xxh3-64 содержимого файла в hex.
// Используется, чтобы заметить замену файла между анализом и загрузкой.
func Fingerprint(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	h := xxh3.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", fmt.Errorf("hash %s: %w", path, err)
	}
	return fmt.Sprintf("%016x", h.Sum64()), nil
}
