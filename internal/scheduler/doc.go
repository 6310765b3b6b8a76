// Package scheduler обслуживает очередь jobs.
//
// Janitor периодически:
//   - возвращает в очередь running jobs с истёкшим lease (воркер пропал);
//   - удаляет done/error jobs старше JobRetention.
//
// В кластере janitor работает только на лидере: лидерство берётся
// через pg_try_advisory_lock (см. AdvisoryLeader).
package scheduler
