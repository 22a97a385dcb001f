package cmd

import (
	"context"
	"errors"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/kebairia/snapdump/internal/database"
	"github.com/kebairia/snapdump/internal/operations"
	"github.com/kebairia/snapdump/internal/state"
	"github.com/kebairia/snapdump/internal/storage"
	"github.com/kebairia/snapdump/internal/vault"
)

// app holds everything a command needs and releases it in close.
type app struct {
	pg       *database.Postgres
	state    *state.Store
	registry *prometheus.Registry
	op       *operations.Operator

	vault   *vault.Client
	leaseID string
}

type appNeeds struct {
	launcher bool
	exports  bool
}

func newApp(ctx context.Context, needs appNeeds) (_ *app, err error) {
	a := &app{registry: prometheus.NewRegistry()}
	defer func() {
		if err != nil {
			a.close(ctx)
		}
	}()

	var opts []database.PostgresOption
	if cfg.Postgres.RoleName != "" {
		creds, err := a.vaultCredentials(ctx)
		if err != nil {
			return nil, err
		}
		opts = append(opts, database.WithPostgresCredentials(creds.Username, creds.Password))
	}

	a.pg = database.NewPostgres(cfg.Postgres, log, opts...)
	if err := a.pg.Open(ctx); err != nil {
		return nil, err
	}

	a.state, err = state.Open(ctx, cfg.State.Path)
	if err != nil {
		return nil, err
	}

	var launcher database.Launcher
	if needs.launcher {
		launcher, err = database.NewDockerLauncher(cfg.Backup.Launcher, a.pg.Username, a.pg.Database, log)
		if err != nil {
			return nil, err
		}
	}

	var exports storage.Store
	if needs.exports {
		exports, err = storage.FromConfig(ctx, cfg.Export)
		if err != nil {
			return nil, err
		}
	}

	metrics, err := operations.NewMetrics(a.registry)
	if err != nil {
		return nil, fmt.Errorf("register metrics: %w", err)
	}
	a.op = operations.New(a.pg, launcher, a.state, exports, log, operations.WithMetrics(metrics))
	return a, nil
}

func (a *app) vaultCredentials(ctx context.Context) (vault.DynamicCredentials, error) {
	client, err := vault.NewClient(ctx,
		vault.WithAddress(cfg.Vault.Address),
		vault.WithAppRole(cfg.Vault.RoleID, cfg.Vault.ApproleName),
	)
	if err != nil {
		return vault.DynamicCredentials{}, fmt.Errorf("vault client init: %w", err)
	}
	creds, err := client.GetDynamicCredentials(ctx, cfg.Postgres.RoleName)
	if err != nil {
		return vault.DynamicCredentials{}, err
	}
	a.vault = client
	a.leaseID = creds.LeaseID
	log.Debug("vault credentials leased", "role", cfg.Postgres.RoleName, "ttl", creds.TTL.String())
	return creds, nil
}

func (a *app) close(ctx context.Context) {
	var errs []error
	if a.pg != nil {
		errs = append(errs, a.pg.Close())
	}
	if a.state != nil {
		errs = append(errs, a.state.Close())
	}
	if a.vault != nil {
		errs = append(errs, a.vault.Revoke(ctx, a.leaseID))
	}
	if metricsFile != "" {
		errs = append(errs, operations.WriteTextfile(metricsFile, a.registry))
	}
	if err := errors.Join(errs...); err != nil {
		log.Warn("cleanup failed", "error", err.Error())
	}
}
