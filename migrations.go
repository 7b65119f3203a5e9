package llmgate

import "embed"

//go:embed migrations/*.sql
var MigrationsFS embed.FS
