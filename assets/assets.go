// Package assets provides access to embedded static files: SQL migrations and the
// default game data (maps, weapons, colliders).
package assets

import (
	"embed"
	"io/fs"
)

//go:embed migrations/*.sql data/*.json
var embedFS embed.FS

// ReadFile returns the content of a specific file from the embedded assets by its name.
func ReadFile(name string) ([]byte, error) {
	return embedFS.ReadFile(name)
}

// ReadDir returns the directory entries for a specific path.
func ReadDir(name string) ([]fs.DirEntry, error) {
	return embedFS.ReadDir(name)
}
