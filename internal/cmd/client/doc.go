// Package client provides the `mailroom` command-line client.
//
// The CLI talks to the mailroom HTTP API to publish issues, manage
// subscribers and inspect the delivery queue from a terminal. It is
// primarily intended for operators.
//
// # Address configuration
//
// The HTTP base URL is discovered by the application that embeds the
// commands via a BaseURLFunc. When using the standalone binary, it defaults
// to http://127.0.0.1:8080 and can be overridden with MAILROOM_HTTP.
// Publisher credentials come from --username/--password or the
// MAILROOM_PUBLISHER_USERNAME / MAILROOM_PUBLISHER_PASSWORD environment
// variables.
//
// Usage
//
//	mailroom issue publish --title "Issue 7" --text-body "hello" --key weekly-7
//
//	mailroom subscriber add --email a@example.com --name "Ada"
//	mailroom subscriber confirm --token TOKEN
//	mailroom subscriber list
//
//	mailroom task stats
//	mailroom task failed --filter 'attempts >= 3 && last_error.contains("550")'
//	mailroom task completed --limit 20
package client
