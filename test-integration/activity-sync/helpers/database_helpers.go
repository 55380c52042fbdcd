package helpers

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/onsi/gomega"
	"github.com/testcontainers/testcontainers-go/modules/postgres"

	"github.com/stacklok/repo-activity-sync/database"
)

const (
	postgresImage    = "postgres:16-alpine"
	postgresDatabase = "activity_sync"
	postgresUser     = "activity"
	postgresPassword = "activity-pass"
)

// PostgresHelper owns a migrated PostgreSQL container shared by the suite
type PostgresHelper struct {
	ctx       context.Context
	container *postgres.PostgresContainer
	connStr   string
	pool      *pgxpool.Pool
}

// StartPostgres starts a PostgreSQL container and applies every migration
func StartPostgres(ctx context.Context) *PostgresHelper {
	container, err := postgres.Run(
		ctx,
		postgresImage,
		postgres.WithDatabase(postgresDatabase),
		postgres.WithUsername(postgresUser),
		postgres.WithPassword(postgresPassword),
		postgres.BasicWaitStrategies(),
	)
	gomega.Expect(err).NotTo(gomega.HaveOccurred(), "PostgreSQL container should start")

	connStr, err := container.ConnectionString(ctx, "sslmode=disable")
	gomega.Expect(err).NotTo(gomega.HaveOccurred())

	gomega.Expect(database.MigrateUp(connStr, 0)).To(gomega.Succeed())

	pool, err := pgxpool.New(ctx, connStr)
	gomega.Expect(err).NotTo(gomega.HaveOccurred())

	return &PostgresHelper{
		ctx:       ctx,
		container: container,
		connStr:   connStr,
		pool:      pool,
	}
}

// Terminate closes the pool and removes the container
func (p *PostgresHelper) Terminate() {
	p.pool.Close()
	if err := p.container.Terminate(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "failed to terminate PostgreSQL container: %v\n", err)
	}
}

// Reset removes every repository, credential and activity record
func (p *PostgresHelper) Reset() {
	_, err := p.pool.Exec(p.ctx,
		`TRUNCATE activity_record, credential_repository, access_credential, tracked_repository`)
	gomega.Expect(err).NotTo(gomega.HaveOccurred())
}

// DatabaseYAML returns the database section of a server configuration,
// writing the password to a file under dir
func (p *PostgresHelper) DatabaseYAML(dir string) string {
	cfg, err := pgxpool.ParseConfig(p.connStr)
	gomega.Expect(err).NotTo(gomega.HaveOccurred())

	passwordFile := filepath.Join(dir, "db-password")
	gomega.Expect(os.WriteFile(passwordFile, []byte(cfg.ConnConfig.Password), 0600)).To(gomega.Succeed())

	return fmt.Sprintf(`database:
  host: %s
  port: %d
  user: %s
  database: %s
  passwordFile: %s
  sslMode: disable
`, cfg.ConnConfig.Host, cfg.ConnConfig.Port, cfg.ConnConfig.User, cfg.ConnConfig.Database, passwordFile)
}

// CountActivity returns the number of activity records of the repository
func (p *PostgresHelper) CountActivity(link string) int {
	var count int
	err := p.pool.QueryRow(p.ctx, `
		SELECT count(*)
		FROM activity_record a
		JOIN tracked_repository r ON r.id = a.repository_id
		WHERE r.canonical_link = $1`, link).Scan(&count)
	gomega.Expect(err).NotTo(gomega.HaveOccurred())
	return count
}

// CountActivityByKind returns the number of activity records of the given kind
func (p *PostgresHelper) CountActivityByKind(kind string) int {
	var count int
	err := p.pool.QueryRow(p.ctx, `SELECT count(*) FROM activity_record WHERE kind = $1`, kind).Scan(&count)
	gomega.Expect(err).NotTo(gomega.HaveOccurred())
	return count
}

// IsFetched reports whether the repository has a last fetch time
func (p *PostgresHelper) IsFetched(link string) bool {
	var fetched bool
	err := p.pool.QueryRow(p.ctx,
		`SELECT last_fetched_at IS NOT NULL FROM tracked_repository WHERE canonical_link = $1`, link).Scan(&fetched)
	gomega.Expect(err).NotTo(gomega.HaveOccurred())
	return fetched
}
