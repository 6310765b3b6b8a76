// Package tasks содержит реестр задач pipeline.
//
// Реестр: статическая таблица «id задачи → поведение», собранная при
// старте процесса. SYSTEM-задачи имеют исполняемую функцию, USER-задачи
// - нет (это ручные контрольные точки). При старте реестр сверяется с
// определениями из БД (Bind): любое расхождение - фатальная ошибка.
package tasks
