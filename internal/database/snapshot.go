package database

import (
	"archive/tar"
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/kebairia/snapdump/internal/compression"
)

// throwawayHBA lets the throwaway cluster accept any local client. The cluster
// only lives for one dump inside a private container.
const throwawayHBA = `local all all trust
host all all 0.0.0.0/0 trust
host all all ::/0 trust
`

// filesDroppedOnExtract would make a copied cluster try to follow its source.
var filesDroppedOnExtract = map[string]struct{}{
	"standby.signal":  {},
	"recovery.signal": {},
	"postmaster.pid":  {},
	"postmaster.opts": {},
}

// ExtractSnapshot unpacks snap into dir, which becomes a bootable PGDATA.
func ExtractSnapshot(snap *Snapshot, dir string) error {
	if snap == nil || len(snap.Image) == 0 {
		return ErrEmptySnapshot
	}
	rc, err := compression.ImageReader(bytes.NewReader(snap.Image))
	if err != nil {
		return err
	}
	defer rc.Close()

	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("mkdir %q: %w", dir, err)
	}
	if err := extractTar(rc, dir); err != nil {
		return err
	}
	if _, err := os.Stat(filepath.Join(dir, "PG_VERSION")); err != nil {
		return fmt.Errorf("snapshot is not a data directory: %w", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "pg_hba.conf"), []byte(throwawayHBA), 0o600); err != nil {
		return fmt.Errorf("write pg_hba.conf: %w", err)
	}
	// Clusters configured from /etc ship no postgresql.conf in the base backup.
	conf := filepath.Join(dir, "postgresql.conf")
	if _, err := os.Stat(conf); errors.Is(err, os.ErrNotExist) {
		if err := os.WriteFile(conf, nil, 0o600); err != nil {
			return fmt.Errorf("write postgresql.conf: %w", err)
		}
	}
	// postgres refuses to start on a group/world readable data directory.
	return os.Chmod(dir, 0o700)
}

// ReadPGVersion returns the major version recorded in a data directory.
func ReadPGVersion(dir string) (string, error) {
	b, err := os.ReadFile(filepath.Join(dir, "PG_VERSION"))
	if err != nil {
		return "", fmt.Errorf("read PG_VERSION: %w", err)
	}
	v := strings.TrimSpace(string(b))
	if v == "" {
		return "", errors.New("PG_VERSION is empty")
	}
	return v, nil
}

func extractTar(r io.Reader, dir string) error {
	root, err := filepath.Abs(dir)
	if err != nil {
		return err
	}
	tr := tar.NewReader(r)
	for {
		hdr, err := tr.Next()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("read snapshot tar: %w", err)
		}
		if _, skip := filesDroppedOnExtract[filepath.Base(hdr.Name)]; skip {
			continue
		}

		name := strings.TrimPrefix(hdr.Name, "./")
		if name == "" || name == "." {
			continue
		}
		if !filepath.IsLocal(name) {
			return fmt.Errorf("snapshot entry %q escapes the data directory", hdr.Name)
		}
		target := filepath.Join(root, name)

		switch hdr.Typeflag {
		case tar.TypeDir:
			if err := os.MkdirAll(target, 0o700); err != nil {
				return fmt.Errorf("mkdir %q: %w", target, err)
			}
		case tar.TypeReg:
			if err := writeFile(target, tr, hdr.FileInfo().Mode().Perm()); err != nil {
				return err
			}
		case tar.TypeSymlink:
			// pg_basebackup emits pg_wal as a directory in tar mode; other
			// links point at tablespaces outside the image.
			continue
		}
	}
}

func writeFile(path string, r io.Reader, perm os.FileMode) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("mkdir %q: %w", filepath.Dir(path), err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, perm|0o600)
	if err != nil {
		return fmt.Errorf("create %q: %w", path, err)
	}
	if _, err := io.Copy(f, r); err != nil {
		_ = f.Close()
		return fmt.Errorf("write %q: %w", path, err)
	}
	return f.Close()
}
