package database

import (
	"bytes"
	"context"
	"database/sql"
	"fmt"
	"io"
	"net"
	"net/url"
	"os"
	"os/exec"
	"strings"
	"time"

	_ "github.com/lib/pq" // postgres driver

	"github.com/kebairia/snapdump/internal/compression"
	"github.com/kebairia/snapdump/internal/config"
	"github.com/kebairia/snapdump/internal/logger"
)

const EnginePostgres = "postgres"

// PostgresOption lets you override default settings on a Postgres.
type PostgresOption func(*Postgres)

// Postgres is the live engine: a database/sql pool for transactional work and
// the pg_basebackup / psql client tools for snapshots and scripts.
type Postgres struct {
	Username       string
	Password       string
	Database       string
	Host           string
	Port           string
	SSLMode        string
	Timeout        time.Duration
	BaseBackupPath string
	PsqlPath       string
	Logger         logger.Logger

	db *sql.DB
}

var _ Engine = (*Postgres)(nil)

// NewPostgres returns a Postgres configured from cfg plus any overrides.
func NewPostgres(cfg config.PostgresConfig, log logger.Logger, opts ...PostgresOption) *Postgres {
	p := &Postgres{
		Username:       cfg.Username,
		Password:       cfg.Password,
		Database:       cfg.Database,
		Host:           cfg.Host,
		Port:           cfg.Port,
		SSLMode:        cfg.SSLMode,
		Timeout:        cfg.Timeout,
		BaseBackupPath: "pg_basebackup",
		PsqlPath:       "psql",
		Logger:         log,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// WithPostgresHost overrides the host.
func WithPostgresHost(host string) PostgresOption {
	return func(p *Postgres) {
		if host != "" {
			p.Host = host
		}
	}
}

// WithPostgresPort overrides the port.
func WithPostgresPort(port string) PostgresOption {
	return func(p *Postgres) {
		if port != "" {
			p.Port = port
		}
	}
}

// WithPostgresCredentials sets username and password.
func WithPostgresCredentials(user, pass string) PostgresOption {
	return func(p *Postgres) {
		if user != "" {
			p.Username = user
		}
		if pass != "" {
			p.Password = pass
		}
	}
}

// WithPostgresDatabase overrides the database name.
func WithPostgresDatabase(db string) PostgresOption {
	return func(p *Postgres) {
		if db != "" {
			p.Database = db
		}
	}
}

// WithPostgresTimeout bounds every client tool invocation.
func WithPostgresTimeout(d time.Duration) PostgresOption {
	return func(p *Postgres) {
		if d > 0 {
			p.Timeout = d
		}
	}
}

// WithPostgresBinaries overrides where pg_basebackup and psql are found.
func WithPostgresBinaries(baseBackup, psql string) PostgresOption {
	return func(p *Postgres) {
		if baseBackup != "" {
			p.BaseBackupPath = baseBackup
		}
		if psql != "" {
			p.PsqlPath = psql
		}
	}
}

// DSN returns a lib/pq connection URL for the configured database.
func (p *Postgres) DSN() string {
	u := url.URL{
		Scheme: "postgres",
		User:   url.UserPassword(p.Username, p.Password),
		Host:   net.JoinHostPort(p.Host, p.Port),
		Path:   "/" + p.Database,
	}
	q := url.Values{}
	if p.SSLMode != "" {
		q.Set("sslmode", p.SSLMode)
	}
	u.RawQuery = q.Encode()
	return u.String()
}

// Open connects the pool and verifies the server answers.
func (p *Postgres) Open(ctx context.Context) error {
	db, err := sql.Open("postgres", p.DSN())
	if err != nil {
		return fmt.Errorf("open postgres: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return fmt.Errorf("ping postgres %s:%s: %w", p.Host, p.Port, err)
	}
	p.db = db
	p.Logger.Debug("postgres connected",
		"host", p.Host,
		"port", p.Port,
		"database", p.Database,
	)
	return nil
}

// DB exposes the pool for callers that need ad-hoc queries.
func (p *Postgres) DB() *sql.DB { return p.db }

// Close releases the pool.
func (p *Postgres) Close() error {
	if p.db == nil {
		return nil
	}
	err := p.db.Close()
	p.db = nil
	return err
}

func (p *Postgres) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if p.Timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeoutCause(ctx, p.Timeout, ErrTimeout)
}

func (p *Postgres) commandEnv() []string {
	// Pass PGPASSWORD for non-interactive auth
	env := append(os.Environ(), "PGPASSWORD="+p.Password)
	if p.SSLMode != "" {
		env = append(env, "PGSSLMODE="+p.SSLMode)
	}
	return env
}

// DumpDataDir streams a tar base backup of the whole cluster and keeps it
// zstd-compressed in memory. WAL needed for consistency is fetched into the
// same tar, so the image can boot on its own.
func (p *Postgres) DumpDataDir(ctx context.Context) (*Snapshot, error) {
	log := p.Logger
	ctx, cancel := p.withTimeout(ctx)
	defer cancel()

	args := []string{
		"-h", p.Host,
		"-p", p.Port,
		"-U", p.Username,
		"-D", "-",
		"-F", "tar",
		"-X", "fetch",
		"--checkpoint=fast",
		"--no-password",
	}
	cmd := exec.CommandContext(ctx, p.BaseBackupPath, args...)
	cmd.Env = p.commandEnv()
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("pg_basebackup stdout: %w", err)
	}

	log.Info("snapshot started",
		"engine", EnginePostgres,
		"host", p.Host,
		"database", p.Database,
	)
	startTime := time.Now()
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start pg_basebackup: %w", err)
	}

	var image bytes.Buffer
	n, copyErr := compression.CompressImage(&image, stdout)
	if copyErr != nil {
		// Unblock pg_basebackup so Wait returns.
		_, _ = io.Copy(io.Discard, stdout)
	}
	waitErr := cmd.Wait()
	if waitErr != nil {
		return nil, fmt.Errorf("pg_basebackup failed: %w: %s", waitErr, strings.TrimSpace(stderr.String()))
	}
	if copyErr != nil {
		return nil, copyErr
	}
	if n == 0 {
		return nil, ErrEmptySnapshot
	}

	log.Info("snapshot completed",
		"engine", EnginePostgres,
		"raw_bytes", n,
		"image_bytes", image.Len(),
		"duration", time.Since(startTime).String(),
	)
	return &Snapshot{Image: image.Bytes(), TakenAt: startTime}, nil
}

// ExecScript pipes script into psql. The whole script runs in one
// transaction and stops at the first error.
func (p *Postgres) ExecScript(ctx context.Context, script string) error {
	ctx, cancel := p.withTimeout(ctx)
	defer cancel()

	cmd := exec.CommandContext(ctx, p.PsqlPath,
		"-h", p.Host,
		"-p", p.Port,
		"-U", p.Username,
		"-d", p.Database,
		"--no-password",
		"--quiet",
		"--single-transaction",
		"-v", "ON_ERROR_STOP=1",
		"-f", "-",
	)
	cmd.Env = p.commandEnv()
	cmd.Stdin = strings.NewReader(script)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	p.Logger.Debug("script started", "database", p.Database, "bytes", len(script))
	startTime := time.Now()
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("psql failed: %w: %s", err, strings.TrimSpace(stderr.String()))
	}
	p.Logger.Debug("script completed",
		"database", p.Database,
		"duration", time.Since(startTime).String(),
	)
	return nil
}

// Reset runs ResetTx in its own transaction, committing only when every drop
// succeeded.
func (p *Postgres) Reset(ctx context.Context) (*ResetReport, error) {
	if p.db == nil {
		return nil, ErrEngineClosed
	}
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin reset transaction: %w", err)
	}
	report, err := ResetTx(ctx, tx)
	if err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			p.Logger.Error("reset rollback failed", "error", rbErr.Error())
		}
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit reset transaction: %w", err)
	}
	p.Logger.Info("database reset",
		"database", p.Database,
		"schemas", report.Schemas,
		"types", report.Types,
	)
	return report, nil
}
