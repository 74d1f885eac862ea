package migrations

import "embed"

// One directory per dialect; callers pick theirs with fs.Sub.
//
//go:embed postgres mysql sqlite3
var FS embed.FS
