// Package worker выполняет jobs из долговременной очереди.
//
// # Обзор
//
// Worker: stateless процесс. Очередь живёт в таблице scheduled_jobs,
// поэтому воркеры масштабируются горизонтально: Claim использует
// FOR UPDATE SKIP LOCKED, и каждый job достаётся ровно одному слоту.
//
//	w := worker.New(worker.Config{
//	    Queue:    jobRepo,
//	    Executor: coordinator,
//	    Chain:    service,
//	    Conn:     mqConn,
//	    Logger:   logger,
//	})
//
//	if err := w.Start(ctx); err != nil {
//	    log.Fatal(err)
//	}
//	defer w.Stop()
//
// # Обработка job
//
//  1. Claim (опрос) или ClaimByID (уведомление job.enqueued)
//  2. Coordinator.Execute узла job
//  3. Finish: done при Complete, error при Failed
//  4. Service.Continue: при runNext планируется следующая SYSTEM-задача
//
// # Ошибки
//
// Повторов нет. Ошибка задачи сохраняется на узле, job получает error.
// Устаревший job (узел уже не Scheduled) завершается error.
// Инфраструктурная ошибка только логируется: job остаётся running, и
// после истечения lease janitor возвращает его в очередь.
//
// # Остановка
//
// Stop прекращает захват, ждёт выполняющиеся jobs не дольше DrainTimeout
// и затем отменяет их контекст.
package worker
