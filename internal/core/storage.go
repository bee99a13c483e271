package core

import (
	"fmt"

	"stockcore/internal/config"
	"stockcore/internal/infra/persistence/memory"
	"stockcore/internal/infra/persistence/postgres"
	"stockcore/internal/infra/persistence/sqlite"
)

// OpenPersistentStore opens the backend named by cfg.Driver. A nil engine
// selects NewDefaultRulesEngine; an empty driver selects sqlite. The memory
// options apply to every backend, since the durable stores keep their
// working state in a memory.Store.
func OpenPersistentStore(cfg config.StorageConfig, engine *RulesEngine, opts ...memory.Option) (PersistentStore, error) {
	if engine == nil {
		engine = NewDefaultRulesEngine()
	}
	switch cfg.Driver {
	case config.StorageMemory:
		return memory.NewStore(engine, opts...), nil
	case config.StorageSQLite, "":
		store, err := sqlite.NewStore(cfg.SQLitePath, engine, opts...)
		if err != nil {
			return nil, err
		}
		return store, nil
	case config.StoragePostgres:
		store, err := postgres.NewStore(cfg.PostgresDSN, engine, opts...)
		if err != nil {
			return nil, err
		}
		return store, nil
	default:
		return nil, fmt.Errorf("unknown storage driver %q", cfg.Driver)
	}
}

// OpenService opens the configured store and wraps it in a Service whose
// clock also stamps record timestamps.
func OpenService(cfg config.StorageConfig, opts ...ServiceOption) (*Service, error) {
	svc := NewService(nil, opts...)
	store, err := OpenPersistentStore(cfg, nil, memory.WithClock(svc.clock.Now))
	if err != nil {
		return nil, err
	}
	svc.store = store
	return svc, nil
}
