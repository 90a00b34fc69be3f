package app

import (
	"fmt"
	"log/slog"

	"github.com/stacklok/crmsync/internal/config"
	"github.com/stacklok/crmsync/internal/connector"
	"github.com/stacklok/crmsync/internal/connector/memory"
	"github.com/stacklok/crmsync/internal/connector/rest"
	"github.com/stacklok/crmsync/internal/entity"
)

// BuildConnectors creates one adapter per configured system, the system of record included.
// Adapter calls are bounded by the sync adapter timeout unless a REST connector sets its own.
func BuildConnectors(cfg *config.Config) (*connector.Registry, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}

	registry, err := connector.NewRegistry()
	if err != nil {
		return nil, err
	}

	sor, err := newAdapter(cfg.SystemOfRecord, true, cfg.Sync)
	if err != nil {
		return nil, fmt.Errorf("system of record: %w", err)
	}
	if err := registry.Register(sor); err != nil {
		return nil, err
	}

	for i, conn := range cfg.Connectors {
		adapter, err := newAdapter(conn, false, cfg.Sync)
		if err != nil {
			return nil, fmt.Errorf("connectors[%d]: %w", i, err)
		}
		if err := registry.Register(adapter); err != nil {
			return nil, fmt.Errorf("connectors[%d]: %w", i, err)
		}
	}

	slog.Info("Connectors initialized",
		"system_of_record", cfg.SystemOfRecord.Name,
		"connectors", registry.Names())
	return registry, nil
}

func newAdapter(conn config.ConnectorConfig, systemOfRecord bool, syncCfg config.SyncConfig) (connector.Adapter, error) {
	switch conn.Type {
	case config.ConnectorTypeMemory:
		var opts []memory.Option
		if systemOfRecord {
			opts = append(opts, memory.AsSystemOfRecord())
		}
		slog.Warn("Using in-memory connector, data is lost on restart", "connector", conn.Name)
		return memory.New(conn.Name, opts...), nil
	case config.ConnectorTypeREST:
		if conn.REST == nil {
			return nil, fmt.Errorf("connector %s: rest settings are required", conn.Name)
		}
		restCfg, err := restConfig(conn.Name, conn.REST, syncCfg)
		if err != nil {
			return nil, fmt.Errorf("connector %s: %w", conn.Name, err)
		}
		adapter, err := rest.New(restCfg)
		if err != nil {
			return nil, err
		}
		return adapter, nil
	default:
		return nil, fmt.Errorf("connector %s: unsupported type %q", conn.Name, conn.Type)
	}
}

func restConfig(name string, r *config.RESTConfig, syncCfg config.SyncConfig) (rest.Config, error) {
	token, err := r.GetToken()
	if err != nil {
		return rest.Config{}, err
	}

	kinds := make(map[entity.Kind]rest.KindConfig, len(r.Kinds))
	for kindName, kc := range r.Kinds {
		kind, err := entity.ParseKind(kindName)
		if err != nil {
			return rest.Config{}, fmt.Errorf("kinds.%s: %w", kindName, err)
		}
		kinds[kind] = rest.KindConfig{
			Path:              kc.Path,
			ListPath:          kc.ListPath,
			ItemPath:          kc.ItemPath,
			IDPath:            kc.IDPath,
			VersionPath:       kc.VersionPath,
			UpdatedAtPath:     kc.UpdatedAtPath,
			CanonicalIDPath:   kc.CanonicalIDPath,
			Fields:            kc.Fields,
			ChangedSinceParam: kc.ChangedSinceParam,
			LookupParam:       kc.LookupParam,
			CursorPath:        kc.CursorPath,
			CursorParam:       kc.CursorParam,
		}
	}

	return rest.Config{
		Name:    name,
		BaseURL: r.BaseURL,
		Token:   token,
		Timeout: r.GetTimeout(syncCfg.GetAdapterTimeout()),
		Kinds:   kinds,
	}, nil
}
