package storage

import (
	"context"
	"fmt"

	"github.com/kebairia/snapdump/internal/config"
	"github.com/kebairia/snapdump/internal/storage/local"
	s3store "github.com/kebairia/snapdump/internal/storage/s3"
)

// FromConfig builds the export store selected by cfg.Type.
func FromConfig(ctx context.Context, cfg config.ExportConfig) (Store, error) {
	switch cfg.Type {
	case "local":
		if cfg.Local.Directory == "" {
			return nil, fmt.Errorf("export local: directory is required")
		}
		return adapt[*local.Object](local.New("local", cfg.Local.Directory)), nil

	case "s3":
		s, err := s3store.New(ctx, s3store.Options{
			Name:          "s3",
			Bucket:        cfg.S3.Bucket,
			Region:        cfg.S3.Region,
			Prefix:        cfg.S3.Prefix,
			Endpoint:      cfg.S3.Endpoint,
			AccessKey:     cfg.S3.AccessKey,
			SecretKey:     cfg.S3.SecretKey,
			PresignExpiry: cfg.S3.PresignExpiry,
		})
		if err != nil {
			return nil, fmt.Errorf("export s3: %w", err)
		}
		return adapt[*s3store.Object](s), nil

	default:
		return nil, fmt.Errorf("export: unknown type %q", cfg.Type)
	}
}

// backend is a store whose Put returns its own handle type.
type backend[H Handle] interface {
	Name() string
	Put(ctx context.Context, key, contentType string, data []byte) (H, error)
}

type adapted[H Handle] struct {
	b backend[H]
}

func adapt[H Handle](b backend[H]) Store { return adapted[H]{b: b} }

func (a adapted[H]) Name() string { return a.b.Name() }

func (a adapted[H]) Put(ctx context.Context, key, contentType string, data []byte) (Handle, error) {
	h, err := a.b.Put(ctx, key, contentType, data)
	if err != nil {
		return nil, err
	}
	return h, nil
}
