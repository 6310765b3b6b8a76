// Package cli содержит команды утилиты ingestor.
//
// Команды run, task и job ходят в HTTP API через Client и не знают об
// оркестраторе. Ошибки API возвращаются как *APIError (код, сообщение,
// X-Request-ID для поиска в логах сервера).
//
// file analyze и db migrate работают локально: первая читает файл через
// loader без базы и API, вторая применяет встроенные миграции по --db-url.
//
// Output печатает таблицы через text/tabwriter или JSON при --json.
// Данные идут в stdout, статусные сообщения и предупреждения в stderr,
// так что вывод можно отдавать в jq:
//
//	ingestor run tasks 42 --json | jq '.[].status'
//
// Фабрики NewRunCmd, NewTaskCmd и т.д. принимают clientFn и outputFn:
// Client и Output создаются после разбора persistent-флагов.
package cli
