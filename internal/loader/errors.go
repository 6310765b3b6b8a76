package loader

import "errors"

// Ошибки проверки файла. Возвращаются до начала чтения.
var (
	// ErrUnsupportedFormat: расширение файла не поддерживается.
	ErrUnsupportedFormat = errors.New("unsupported file format")

	// ErrFileNotFound: файл не существует.
	ErrFileNotFound = errors.New("file not found")

	// ErrNotAFile: путь указывает на каталог или специальный файл.
	ErrNotAFile = errors.New("path is not a regular file")
)

// Ошибки чтения.
var (
	// ErrTableNotFound: лист/подтаблица отсутствует в файле.
	ErrTableNotFound = errors.New("sub-table not found")

	// ErrNoColumns: не удалось определить колонки.
	ErrNoColumns = errors.New("no columns")

	// ErrUnknownEncoding: неизвестная кодировка файла.
	ErrUnknownEncoding = errors.New("unknown encoding")
)
