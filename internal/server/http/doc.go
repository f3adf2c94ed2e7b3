// Package httpserver exposes the mailroom JSON API over HTTP.
//
// Routes:
//
//	GET  /v1/healthz                  health check
//	POST /v1/issues/publish           publish an issue (Basic auth + Idempotency-Key)
//	GET  /v1/issues/get               fetch one issue record
//	POST /v1/subscribers              sign up a subscriber
//	POST /v1/subscribers/confirm      confirm a subscription token
//	GET  /v1/subscribers              list subscribers (Basic auth)
//	GET  /v1/tasks/failed             list failed tasks, optional CEL filter
//	GET  /v1/tasks/completed          recent completed deliveries
//	GET  /v1/tasks/stats              queue population by state
package httpserver
