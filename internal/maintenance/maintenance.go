// Package maintenance provides one-shot database tasks run instead of the server.
package maintenance

import (
	"time"

	"github.com/rs/zerolog/log"

	"github.com/woozymasta/overbyte/internal/config"
)

// Pruner deletes server history evicted before a cutoff.
type Pruner interface {
	PruneEvicted(cutoff time.Time) (int64, error)
}

// Run checks if any maintenance flags are set and executes the corresponding tasks.
// Returns true if a maintenance task was executed (indicating the program should exit).
func Run(cfg *config.Balancer, store Pruner) bool {
	if cfg.Storage.PruneEvicted == "" {
		return false
	}

	age, err := cfg.PruneAge()
	if err != nil {
		log.Error().Err(err).Msg("Invalid prune age")
		return true
	}
	if store == nil {
		log.Error().Msg("Pruning requires a database path")
		return true
	}

	cutoff := time.Now().Add(-age)
	log.Info().Dur("age", age).Time("cutoff", cutoff).Msg("Pruning evicted servers...")

	count, err := store.PruneEvicted(cutoff)
	if err != nil {
		log.Error().Err(err).Msg("Failed to prune servers")
	} else {
		log.Info().Int64("deleted", count).Msg("Prune finished")
	}

	return true
}
