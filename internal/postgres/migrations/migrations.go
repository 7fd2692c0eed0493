// Package migrations embeds the schema files applied by the migrate command.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS

// Files lists the migrations in application order.
var Files = []string{
	"001_create_agent_tasks.sql",
	"002_create_chat_tables.sql",
	"003_create_training_sessions.sql",
	"004_create_scheduled_jobs.sql",
}
