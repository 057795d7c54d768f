package runner

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/umich-dbgroup/litmus/internal/cache"
	"github.com/umich-dbgroup/litmus/internal/catalog"
	"github.com/umich-dbgroup/litmus/internal/config"
	"github.com/umich-dbgroup/litmus/internal/storage"
	"github.com/umich-dbgroup/litmus/pkg/db"
	"github.com/umich-dbgroup/litmus/pkg/db/mysql"
	"github.com/umich-dbgroup/litmus/pkg/db/postgres"
	"github.com/umich-dbgroup/litmus/pkg/db/sqlite"
	"github.com/umich-dbgroup/litmus/pkg/leaselock"
)

// OpenDatabase connects to the database the candidates run against. name
// overrides the database of DATABASE_URL. For sqlite DATABASE_URL is the
// database file, or the directory holding <name>.sqlite when name is set.
func OpenDatabase(ctx context.Context, cfg *config.Config, name string) (db.Database, error) {
	switch cfg.Engine {
	case "postgres":
		return postgres.Open(ctx, postgres.OpenParams{
			URL:              cfg.DatabaseURL,
			Database:         name,
			StatementTimeout: cfg.StatementTimeout,
			MaxConns:         int32(max(cfg.Workers, 4)),
		})
	case "mysql":
		return mysql.Open(ctx, mysql.OpenParams{
			DSN:              cfg.DatabaseURL,
			Database:         name,
			StatementTimeout: cfg.StatementTimeout,
			MaxOpenConns:     max(cfg.Workers, 4),
		})
	case "sqlite":
		path := cfg.DatabaseURL
		if name != "" {
			path = filepath.Join(cfg.DatabaseURL, name+".sqlite")
		}
		return sqlite.Open(ctx, sqlite.OpenParams{Path: path, StatementTimeout: cfg.StatementTimeout})
	default:
		return nil, fmt.Errorf("unknown engine %q", cfg.Engine)
	}
}

// OpenRepository builds the cache repository selected by the configuration.
// pool is only used by the postgres backend.
func OpenRepository(ctx context.Context, cfg *config.Config, pool *pgxpool.Pool) (*cache.Repository, error) {
	switch cfg.CacheBackend {
	case "file":
		return cache.NewRepository(cache.NewFileBackend(cfg.CacheDir)), nil
	case "s3":
		client, err := storage.NewS3Client(ctx, storage.NewS3ClientParams{
			Region:    cfg.S3.Region,
			Endpoint:  cfg.S3.Endpoint,
			AccessKey: cfg.S3.AccessKey,
			SecretKey: cfg.S3.SecretKey,
		})
		if err != nil {
			return nil, err
		}
		return cache.NewRepository(cache.NewS3Backend(storage.NewBucket(client, cfg.S3.Bucket, cfg.S3.Prefix))), nil
	case "postgres":
		if pool == nil {
			return nil, fmt.Errorf("postgres cache backend needs a metadata database")
		}
		return cache.NewRepository(cache.NewPostgresBackend(pool)), nil
	default:
		return cache.NewRepository(nil), nil
	}
}

// OpenCatalog builds the per process catalog. With a metadata pool graph
// builds are also serialised across processes.
func OpenCatalog(cfg *config.Config, repo *cache.Repository, pool *pgxpool.Pool) *catalog.Catalog {
	var locks *leaselock.Client
	if pool != nil {
		locks = leaselock.New(pool)
	}
	return catalog.NewCatalog(catalog.NewCatalogParams{
		Repository:      repo,
		Locks:           locks,
		MaxBuilds:       1,
		Ignore:          cfg.IgnoreRelations,
		TextIndexPrefix: cfg.TextIndexPrefix,
		Parallelism:     cfg.AIGParallelism,
	})
}
