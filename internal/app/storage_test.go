package app

import (
	"context"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInitRuntimeDependencies_Memory(t *testing.T) {
	deps, err := initRuntimeDependencies(context.Background(), DefaultConfig(), quietLogger())
	require.NoError(t, err)
	t.Cleanup(func() { require.NoError(t, deps.close()) })

	assert.NotNil(t, deps.orders)
	assert.NotNil(t, deps.catalog)
	assert.NotNil(t, deps.tx, "memory catalog and orders share one transactional store")
	assert.NotNil(t, deps.outboxRepo)
	assert.NotNil(t, deps.timelineRepo)
	assert.NotNil(t, deps.idempotencyRepo)
	assert.Empty(t, deps.checkers)
}

func TestInitRuntimeDependencies_InvalidConfig(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"unsupported driver", func(c *Config) { c.StorageDriver = "cassandra" }, "unsupported storage driver"},
		{"postgres without dsn", func(c *Config) { c.StorageDriver = StorageDriverPostgres }, "postgres dsn is required"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(&cfg)

			deps, err := initRuntimeDependencies(context.Background(), cfg, quietLogger())
			require.Error(t, err)
			assert.Nil(t, deps)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestInitRuntimeDependencies_RedisUnreachable(t *testing.T) {
	cfg := DefaultConfig()
	cfg.CatalogDriver = CatalogDriverRedis
	cfg.RedisAddr = "127.0.0.1:1"

	_, err := initRuntimeDependencies(context.Background(), cfg, quietLogger())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connect redis")
}

func TestInitRuntimeDependencies_Postgres(t *testing.T) {
	dsn := os.Getenv("AGRO_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("AGRO_TEST_POSTGRES_DSN is not set")
	}

	cfg := DefaultConfig()
	cfg.StorageDriver = StorageDriverPostgres
	cfg.CatalogDriver = StorageDriverPostgres
	cfg.PostgresDSN = dsn

	deps, err := initRuntimeDependencies(context.Background(), cfg, quietLogger())
	require.NoError(t, err)
	t.Cleanup(func() { require.NoError(t, deps.close()) })

	assert.NotNil(t, deps.tx)
	require.Contains(t, deps.checkers, "postgres")
	assert.Equal(t, "healthy", string(deps.checkers["postgres"].Check(context.Background()).Status))
}
