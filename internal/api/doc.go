// Package api содержит HTTP API Ingestor поверх orchestrator.Service.
//
// Маршруты /api/v1 регистрируются на http.ServeMux шаблонами Go 1.22
// ("POST /api/v1/runs/{id}/schedule-next"). Каждый маршрут обёрнут в observe:
// X-Request-ID, восстановление после паники, access-лог и счётчик
// ingestor_api_http_requests_total по шаблону маршрута.
//
// Ответы: {"data": ...}, списки {"data": [...], "total": n}, ошибки
// {"error": {"code", "message"}}. HandleError сопоставляет доменные ошибки
// с 404, 400, 409 (run завершён или заблокирован) и 422 (узел не в том статусе).
//
// Аутентификации нет: id пользователя передаётся в теле или query
// (user_id) и попадает в логи и архив удалённых задач.
package api
