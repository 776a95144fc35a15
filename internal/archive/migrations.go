package archive

import "embed"

//go:embed migrations/*.sql
var Migrations embed.FS

// MigrationsDir is the directory goose looks for SQL files under within
// the embedded filesystem above.
const MigrationsDir = "migrations"
