// Package orchestrator выполняет узлы дерева задач и планирует следующие.
//
// Coordinator выполняет один узел:
//
//	Scheduled → Running (условный UPDATE, вне блокировки)
//	BEGIN; SELECT ... FOR UPDATE; статус всё ещё Running?
//	Resolve(task_id) → SYSTEM: функция в SAVEPOINT; USER: успех без сообщения
//	Complete | Failed + сообщение; COMMIT
//
// Ошибка задачи (включая панику) локальна для узла: она сохраняется
// как Failed и не выходит за пределы Coordinator. Инфраструктурные
// ошибки возвращаются вызывающему, узел по возможности возвращается
// в Scheduled.
//
// Service: граничные операции над run: упорядоченный список задач,
// reset, планирование следующей задачи и цепочки до завершения.
package orchestrator
