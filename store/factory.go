package store

import (
	"context"
	"fmt"
)

// Config selects and locates a Backend.
type Config struct {
	Kind        string // memory, file, sqlite, postgres or dynamodb
	FilePath    string
	SQLitePath  string
	PostgresDSN string
	Dynamo      DynamoConfig
}

// NewStore constructs a Backend by cfg.Kind. "mem" is accepted for memory.
func NewStore(ctx context.Context, cfg Config) (Backend, error) {
	switch cfg.Kind {
	case "memory", "mem", "":
		return NewInMemoryStore(), nil
	case "file":
		if cfg.FilePath == "" {
			return nil, fmt.Errorf("file path required for file store")
		}
		return NewFileStore(cfg.FilePath)
	case "sqlite":
		if cfg.SQLitePath == "" {
			return nil, fmt.Errorf("database path required for sqlite store")
		}
		return NewSQLiteStore(ctx, cfg.SQLitePath)
	case "postgres":
		if cfg.PostgresDSN == "" {
			return nil, fmt.Errorf("dsn required for postgres store")
		}
		return NewPostgresStore(ctx, cfg.PostgresDSN)
	case "dynamodb":
		return NewDynamoStore(ctx, cfg.Dynamo)
	default:
		return nil, fmt.Errorf("unknown store kind: %s", cfg.Kind)
	}
}
