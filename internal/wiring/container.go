// Package wiring assembles the daemon's components behind a
// samber/do injector: configuration, the logger, the resolved roots,
// the entry store, the watcher backend, optional persistence, and the
// content scanner. Bootstrap then invokes them, builds the indexer,
// event loop and query-serving socket, and sequences their startup.
package wiring

import (
	"log/slog"

	"github.com/samber/do/v2"

	"github.com/ffind/ffind/internal/config"
	"github.com/ffind/ffind/internal/index"
	"github.com/ffind/ffind/internal/search"
	"github.com/ffind/ffind/internal/watcher"
)

// NewContainer registers every provider and seeds cfg/log as fixed
// values. Call Bootstrap on the result to sequence startup.
func NewContainer(cfg *config.Config, log *slog.Logger) *do.RootScope {
	injector := do.New()

	do.ProvideValue(injector, cfg)
	do.ProvideValue(injector, log)

	do.Provide(injector, provideRoots)
	do.Provide(injector, provideStore)
	do.Provide(injector, provideWatcher)
	do.Provide(injector, providePersistence)
	do.Provide(injector, provideScanner)

	return injector
}

func provideRoots(i do.Injector) (RootList, error) {
	cfg := do.MustInvoke[*config.Config](i)
	log := do.MustInvoke[*slog.Logger](i)
	resolved, err := resolveRoots(cfg.Roots, log)
	if err != nil {
		return nil, err
	}
	return RootList(resolved), nil
}

func provideStore(i do.Injector) (*index.Store, error) {
	return index.New(), nil
}

func provideWatcher(i do.Injector) (watcher.Watcher, error) {
	return watcher.New()
}

func provideScanner(i do.Injector) (*search.Scanner, error) {
	return search.New(), nil
}

// RootList is the resolved, canonical root directory list, wrapped so
// it has a distinct type for the injector's type-keyed registry.
type RootList []string
