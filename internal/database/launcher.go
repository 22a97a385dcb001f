package database

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/jackc/pgconn"
	"github.com/jackc/pgerrcode"
	"github.com/ory/dockertest/v3"
	"github.com/ory/dockertest/v3/docker"

	"github.com/kebairia/snapdump/internal/config"
	"github.com/kebairia/snapdump/internal/logger"
)

// containerPGDATA is where the extracted snapshot is mounted.
const containerPGDATA = "/var/lib/postgresql/snapshot"

// permanentConnectCodes stop the readiness probe early; waiting will not help.
var permanentConnectCodes = map[string]struct{}{
	pgerrcode.InvalidCatalogName:                {},
	pgerrcode.InvalidAuthorizationSpecification: {},
	pgerrcode.InvalidPassword:                   {},
}

// DockerLauncher boots each snapshot in its own short-lived postgres container.
type DockerLauncher struct {
	pool       *dockertest.Pool
	repository string
	tag        string
	workDir    string
	username   string
	database   string
	log        logger.Logger
}

var _ Launcher = (*DockerLauncher)(nil)

// NewDockerLauncher connects to the Docker daemon at cfg.Endpoint (empty uses
// DOCKER_HOST or the default socket). username and database name the role and
// database the dump is taken with; they must exist in the snapshot.
func NewDockerLauncher(cfg config.LauncherConfig, username, database string, log logger.Logger) (*DockerLauncher, error) {
	pool, err := dockertest.NewPool(cfg.Endpoint)
	if err != nil {
		return nil, fmt.Errorf("connect to docker: %w", err)
	}
	if err := pool.Client.Ping(); err != nil {
		return nil, fmt.Errorf("ping docker: %w", err)
	}
	if cfg.MaxWait > 0 {
		pool.MaxWait = cfg.MaxWait
	}
	repository := cfg.Repository
	if repository == "" {
		repository = "postgres"
	}
	return &DockerLauncher{
		pool:       pool,
		repository: repository,
		tag:        cfg.Tag,
		workDir:    cfg.WorkDir,
		username:   username,
		database:   database,
		log:        log,
	}, nil
}

// Launch extracts snap into a private directory and starts postgres on it.
func (l *DockerLauncher) Launch(ctx context.Context, snap *Snapshot) (Instance, error) {
	tmp, err := os.MkdirTemp(l.workDir, "snapdump-*")
	if err != nil {
		return nil, fmt.Errorf("create work dir: %w", err)
	}
	tmp, err = filepath.Abs(tmp)
	if err != nil {
		return nil, err
	}
	cleanup := func() { _ = os.RemoveAll(tmp) }

	dataDir := filepath.Join(tmp, "pgdata")
	if err := ExtractSnapshot(snap, dataDir); err != nil {
		cleanup()
		return nil, fmt.Errorf("extract snapshot: %w", err)
	}

	tag := l.tag
	if tag == "" {
		if tag, err = ReadPGVersion(dataDir); err != nil {
			cleanup()
			return nil, err
		}
	}

	l.log.Info("throwaway engine starting",
		"image", l.repository+":"+tag,
		"data_dir", dataDir,
	)
	startTime := time.Now()
	resource, err := l.pool.RunWithOptions(&dockertest.RunOptions{
		Repository: l.repository,
		Tag:        tag,
		User:       containerUser(),
		Env: []string{
			"PGDATA=" + containerPGDATA,
			"POSTGRES_HOST_AUTH_METHOD=trust",
		},
		Cmd: []string{
			"postgres",
			"-c", "listen_addresses=*",
			"-c", "hba_file=" + containerPGDATA + "/pg_hba.conf",
			"-c", "ssl=off",
			"-c", "archive_mode=off",
		},
		Mounts: []string{dataDir + ":" + containerPGDATA},
	}, func(hc *docker.HostConfig) {
		hc.AutoRemove = true
		hc.RestartPolicy = docker.RestartPolicy{Name: "no"}
	})
	if err != nil {
		cleanup()
		return nil, fmt.Errorf("start throwaway postgres: %w", err)
	}

	inst := &dockerInstance{
		pool:     l.pool,
		resource: resource,
		tmp:      tmp,
		username: l.username,
		database: l.database,
		log:      l.log,
	}
	if err := inst.waitReady(ctx); err != nil {
		_ = inst.Close()
		return nil, err
	}
	l.log.Info("throwaway engine ready",
		"container", resource.Container.ID,
		"duration", time.Since(startTime).String(),
	)
	return inst, nil
}

// containerUser runs postgres as the owner of the extracted files so the host
// can delete them afterwards. Root keeps the image default: the entrypoint
// chowns PGDATA and drops to the postgres user, which refuses to run as root.
func containerUser() string {
	if os.Getuid() == 0 {
		return ""
	}
	return fmt.Sprintf("%d:%d", os.Getuid(), os.Getgid())
}

type dockerInstance struct {
	pool     *dockertest.Pool
	resource *dockertest.Resource
	tmp      string
	username string
	database string
	log      logger.Logger
	closed   bool
}

func (i *dockerInstance) connString() string {
	u := url.URL{
		Scheme:   "postgres",
		User:     url.User(i.username),
		Host:     i.resource.GetHostPort("5432/tcp"),
		Path:     "/" + i.database,
		RawQuery: "sslmode=disable",
	}
	return u.String()
}

// waitReady polls until the server accepts a connection. A server still
// replaying WAL answers with cannot_connect_now, which is retried.
func (i *dockerInstance) waitReady(ctx context.Context) error {
	var fatal error
	err := i.pool.Retry(func() error {
		if err := ctx.Err(); err != nil {
			fatal = err
			return nil
		}
		probeCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		conn, err := pgconn.Connect(probeCtx, i.connString())
		if err != nil {
			var pgErr *pgconn.PgError
			if errors.As(err, &pgErr) {
				if _, ok := permanentConnectCodes[pgErr.Code]; ok {
					fatal = err
					return nil
				}
			}
			return err
		}
		return conn.Close(probeCtx)
	})
	if fatal != nil {
		return fmt.Errorf("throwaway postgres unusable: %w", fatal)
	}
	if err != nil {
		return fmt.Errorf("throwaway postgres not ready: %w", err)
	}
	return nil
}

// Dump runs pg_dump inside the container, so the client always matches the
// server version.
func (i *dockerInstance) Dump(ctx context.Context, fileName string) (string, error) {
	if i.closed {
		return "", ErrEngineClosed
	}
	var stdout, stderr bytes.Buffer
	args := []string{
		"pg_dump",
		"-U", i.username,
		"-d", i.database,
		"--format=plain",
		"--no-password",
	}

	i.log.Info("dump started", "file", fileName, "database", i.database)
	startTime := time.Now()

	type result struct {
		code int
		err  error
	}
	done := make(chan result, 1)
	go func() {
		code, err := i.resource.Exec(args, dockertest.ExecOptions{StdOut: &stdout, StdErr: &stderr})
		done <- result{code: code, err: err}
	}()

	var res result
	select {
	case res = <-done:
	case <-ctx.Done():
		// Purging the container ends the exec as well.
		_ = i.Close()
		<-done
		return "", context.Cause(ctx)
	}
	if res.err != nil {
		return "", fmt.Errorf("exec pg_dump: %w", res.err)
	}
	if res.code != 0 {
		return "", fmt.Errorf("pg_dump exited with %d: %s", res.code, strings.TrimSpace(stderr.String()))
	}

	i.log.Info("dump completed",
		"file", fileName,
		"bytes", stdout.Len(),
		"duration", time.Since(startTime).String(),
	)
	return stdout.String(), nil
}

// Close purges the container and deletes the extracted data directory.
func (i *dockerInstance) Close() error {
	if i.closed {
		return nil
	}
	i.closed = true
	var errs []error
	if err := i.pool.Purge(i.resource); err != nil {
		errs = append(errs, fmt.Errorf("purge container: %w", err))
	}
	if err := os.RemoveAll(i.tmp); err != nil {
		errs = append(errs, fmt.Errorf("remove work dir: %w", err))
	}
	return errors.Join(errs...)
}
