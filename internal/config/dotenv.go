// Package config loads weblet's two configuration surfaces: the
// handler-visible dotenv snapshot (spec.md §6) and the YAML server
// topology/route/cron manifest consumed only at startup.
package config

import "github.com/joho/godotenv"

// Snapshot is the read-only key→string map loaded from a dotenv file and
// propagated verbatim to every handler (spec.md §6: "the server uses it
// only to propagate to handlers; it does not interpret any keys
// itself").
type Snapshot map[string]string

// LoadSnapshot reads one or more dotenv files and returns their merged
// contents. Later files override earlier ones on key collision.
func LoadSnapshot(paths ...string) (Snapshot, error) {
	if len(paths) == 0 {
		return Snapshot{}, nil
	}
	m, err := godotenv.Read(paths...)
	if err != nil {
		return nil, err
	}
	return Snapshot(m), nil
}
