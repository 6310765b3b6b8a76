// Package ingest содержит встроенные задачи загрузки данных.
//
// SYSTEM-задачи (id 1–5) проходят путь файла источника от проверки
// наличия до сверки количества строк:
//
//	1 check-source-files     - все ли ожидаемые файлы на месте
//	2 analyze-source-files   - статистика колонок (loader.Analyze)
//	3 create-staging-tables  - DROP + CREATE по результатам анализа
//	4 load-source-files      - COPY FROM STDIN (loader.Load)
//	5 verify-record-counts   - count(*) против анализа
//
// USER-задачи (101–103) - ручные контрольные точки. Задача 1 добавляет
// ребёнка 101, если файлов не хватает.
//
// Файлы лежат в <DATA_ROOT>/<код источника>/<YYYYMMDD>/<имя файла>.
package ingest
