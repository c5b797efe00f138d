package wiring

import (
	"log/slog"

	"github.com/samber/do/v2"

	"github.com/ffind/ffind/internal/config"
	"github.com/ffind/ffind/internal/errors"
	"github.com/ffind/ffind/internal/index"
	"github.com/ffind/ffind/internal/persistence"
	"github.com/ffind/ffind/internal/roots"
)

func resolveRoots(raw []string, log *slog.Logger) ([]string, error) {
	warn := func(msg string) { log.Warn(msg) }
	return roots.Resolve(raw, warn)
}

// PersistenceHandle wraps an optional *persistence.Store: nil when the
// operator did not supply a durable-store path. Its Shutdown performs
// the unconditional final flush required by spec §4.5 step 5.
type PersistenceHandle struct {
	Store     *persistence.Store
	Scheduler *persistence.Scheduler
	indexRef  *index.Store
}

// Shutdown implements do.Shutdownable.
func (h *PersistenceHandle) Shutdown() error {
	if h.Store == nil {
		return nil
	}
	h.Store.Shutdown(h.indexRef)
	return h.Store.Close()
}

func providePersistence(i do.Injector) (*PersistenceHandle, error) {
	cfg := do.MustInvoke[*config.Config](i)
	log := do.MustInvoke[*slog.Logger](i)
	store := do.MustInvoke[*index.Store](i)

	if cfg.DBPath == "" {
		return &PersistenceHandle{indexRef: store}, nil
	}

	dbStore, err := persistence.Open(cfg.DBPath, log)
	if err != nil {
		return nil, errors.Wrap(err, errors.CodeResource, "opening persistence store")
	}
	return &PersistenceHandle{
		Store:     dbStore,
		Scheduler: persistence.NewScheduler(dbStore),
		indexRef:  store,
	}, nil
}
