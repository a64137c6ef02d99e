package database

import (
	"errors"
	"fmt"
	"io/fs"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/pgx/v5"
	"github.com/golang-migrate/migrate/v4/source/iofs"

	"github.com/s22001503-hash/ouslpms-monorepo/pkg/config"
)

// Migrator applies the embedded schema migrations.
type Migrator struct {
	m *migrate.Migrate
}

// NewMigrator opens a migrate instance over files rooted at dir inside fsys.
func NewMigrator(fsys fs.FS, dir string, cfg config.DatabaseConfig) (*Migrator, error) {
	source, err := iofs.New(fsys, dir)
	if err != nil {
		return nil, fmt.Errorf("create migration source: %w", err)
	}
	m, err := migrate.NewWithSourceInstance("iofs", source, MigrationURL(cfg))
	if err != nil {
		return nil, fmt.Errorf("create migrator: %w", err)
	}
	return &Migrator{m: m}, nil
}

// Up applies every pending migration. It is a no-op when the schema is current.
func (r *Migrator) Up() error {
	return ignoreNoChange(r.m.Up())
}

// Down reverts every migration.
func (r *Migrator) Down() error {
	return ignoreNoChange(r.m.Down())
}

// Steps migrates n steps; negative values migrate down.
func (r *Migrator) Steps(n int) error {
	return ignoreNoChange(r.m.Steps(n))
}

// Version reports the applied version. A fresh database reports 0.
func (r *Migrator) Version() (uint, bool, error) {
	v, dirty, err := r.m.Version()
	if errors.Is(err, migrate.ErrNilVersion) {
		return 0, false, nil
	}
	return v, dirty, err
}

// Force records version as applied without running it, clearing the dirty flag.
func (r *Migrator) Force(version int) error {
	return r.m.Force(version)
}

// Close releases the source and database handles.
func (r *Migrator) Close() error {
	srcErr, dbErr := r.m.Close()
	return errors.Join(srcErr, dbErr)
}

func ignoreNoChange(err error) error {
	if errors.Is(err, migrate.ErrNoChange) {
		return nil
	}
	return err
}
