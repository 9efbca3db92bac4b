package cli

import (
	"os"

	"github.com/spf13/viper"

	"github.com/stackwave/stackctl/pkg/engine"
	"github.com/stackwave/stackctl/pkg/provider"
	"github.com/stackwave/stackctl/pkg/provider/memory"
	"github.com/stackwave/stackctl/pkg/state"
)

// createEngine creates a deployment engine backed by the given store. The
// in-memory provider handles every resource kind; real providers register
// explicitly on top of it.
func createEngine(store *state.Store) *engine.Engine {
	registry := provider.NewRegistry()
	registry.SetFallback(memory.NewProvider())

	return engine.NewEngine(store, registry, engine.Options{
		Region:    viper.GetString("region"),
		AccountID: viper.GetString("account-id"),
		Who:       operatorName(),
	})
}

func operatorName() string {
	if user := os.Getenv("USER"); user != "" {
		return user
	}
	host, err := os.Hostname()
	if err != nil {
		return "stackctl"
	}
	return host
}

// defaultParallelism is the default number of parallel provider calls.
const defaultParallelism = 4
