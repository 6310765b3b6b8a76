// Package engine содержит алгоритмы над деревом задач pipeline run.
//
// Включает:
//   - tree.go - pre-order обход, поиск следующей задачи, потомки узла
//
// Engine не ходит в БД: функции принимают срез узлов, загруженный
// репозиторием, и возвращают порядок выполнения. Решение о том, что
// запускать, принимает orchestrator.
package engine
