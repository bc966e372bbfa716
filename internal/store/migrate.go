package store

import (
	"context"
	"embed"
	"fmt"
	"io/fs"
	"os"
	"regexp"
	"slices"
	"time"

	"github.com/Xunop/e-oasis-meta/internal/log"
	"github.com/pkg/errors"
	"go.uber.org/zap"
	"golang.org/x/mod/semver"
)

// SchemaVersion is the version of LATEST_META_SCHEMA.sql.
const SchemaVersion = "0.2.0"

const (
	latestMetaSchemaFileName = "LATEST_META_SCHEMA.sql"
	updateMetaSchemaFileName = "UPDATE_META.sql"
)

//go:embed migration
var migrationFS embed.FS

type MigrationHistory struct {
	Version   string
	CreatedTs int64
}

// Migrate brings the file up to SchemaVersion. A fresh file gets the latest
// schema; a metadata.db written by another program gets our bookkeeping
// tables; a file from an older release gets the pending minor migrations.
func (d *DB) Migrate(ctx context.Context) error {
	if err := d.migrate(ctx); err != nil {
		if rbErr := d.Rollback(); rbErr != nil {
			log.Error("Failed to roll back migration", zap.Error(rbErr))
		}
		return err
	}
	return d.Commit()
}

func (d *DB) migrate(ctx context.Context) error {
	hasBooks, err := d.CheckTableExists(ctx, "books")
	if err != nil {
		return errors.Wrap(err, "failed to check database table")
	}
	if !hasBooks {
		log.Info("Applying latest meta schema", zap.String("path", d.path), zap.String("version", SchemaVersion))
		if err := d.applyFile(ctx, "migration/"+latestMetaSchemaFileName); err != nil {
			return errors.Wrap(err, "failed to apply latest schema")
		}
		return d.UpsertMigrationHistory(ctx, SchemaVersion)
	}

	hasHistory, err := d.CheckTableExists(ctx, "migration_history")
	if err != nil {
		return errors.Wrap(err, "failed to check database table")
	}
	if !hasHistory {
		log.Info("Adopting existing metadata database", zap.String("path", d.path))
		if err := d.applyFile(ctx, "migration/"+updateMetaSchemaFileName); err != nil {
			return errors.Wrap(err, "failed to apply update schema")
		}
		if err := d.applyMinorMigrations(ctx, "0.0.0"); err != nil {
			return err
		}
		return d.UpsertMigrationHistory(ctx, SchemaVersion)
	}

	list, err := d.FindMigrationHistoryList(ctx)
	if err != nil {
		return errors.Wrap(err, "failed to find migration history list")
	}
	latest := "0.0.0"
	for _, h := range list {
		if versionGreater(h.Version, latest) {
			latest = h.Version
		}
	}
	if !versionGreater(SchemaVersion, latest) {
		return nil
	}

	backup, err := d.backup(latest)
	if err != nil {
		return err
	}
	log.Info("Start migration", zap.String("from", latest), zap.String("to", SchemaVersion))
	if err := d.applyMinorMigrations(ctx, latest); err != nil {
		return err
	}
	if err := d.UpsertMigrationHistory(ctx, SchemaVersion); err != nil {
		return err
	}
	if backup != "" {
		if err := os.Remove(backup); err != nil {
			log.Warn("Failed to remove database backup", zap.String("path", backup), zap.Error(err))
		}
	}
	return nil
}

func (d *DB) applyFile(ctx context.Context, name string) error {
	buf, err := migrationFS.ReadFile(name)
	if err != nil {
		return errors.Wrapf(err, "failed to read schema file: %q", name)
	}
	return d.ExecuteScript(ctx, string(buf))
}

// applyMinorMigrations runs every migration/<minor>/*.sql newer than from,
// oldest first.
func (d *DB) applyMinorMigrations(ctx context.Context, from string) error {
	for _, minor := range minorVersionList() {
		normalized := minor + ".0"
		if !versionGreater(normalized, from) || versionGreater(normalized, SchemaVersion) {
			continue
		}
		filenames, err := fs.Glob(migrationFS, fmt.Sprintf("migration/%s/*.sql", minor))
		if err != nil {
			return errors.Wrapf(err, "failed to find migration files for version %s", minor)
		}
		// 10001_example.sql, 10002_example.sql, ...
		slices.Sort(filenames)
		for _, filename := range filenames {
			log.Info("Applying migration", zap.String("file", filename))
			if err := d.applyFile(ctx, filename); err != nil {
				return errors.Wrapf(err, "failed to apply migration %s", filename)
			}
		}
		if err := d.UpsertMigrationHistory(ctx, normalized); err != nil {
			return err
		}
	}
	return nil
}

func (d *DB) backup(version string) (string, error) {
	raw, err := os.ReadFile(d.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", nil
		}
		return "", errors.Wrap(err, "failed to read raw database file")
	}
	path := fmt.Sprintf("%s.%s_%d.bak", d.path, version, time.Now().Unix())
	if err := os.WriteFile(path, raw, 0644); err != nil {
		return "", errors.Wrap(err, "failed to write backup database file")
	}
	log.Info("Backup database file", zap.String("path", path))
	return path, nil
}

func (d *DB) UpsertMigrationHistory(ctx context.Context, version string) error {
	stmt := `
		INSERT INTO migration_history (version)
		VALUES (?)
		ON CONFLICT(version) DO UPDATE SET version=EXCLUDED.version
	`
	return errors.Wrap(d.Execute(stmt, version), "failed to upsert migration history")
}

func (d *DB) FindMigrationHistoryList(ctx context.Context) ([]*MigrationHistory, error) {
	rows, err := d.Query("SELECT `version`, `created_ts` FROM `migration_history` ORDER BY `created_ts` DESC")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	list := make([]*MigrationHistory, 0)
	for rows.Next() {
		var h MigrationHistory
		if err := rows.Scan(&h.Version, &h.CreatedTs); err != nil {
			return nil, err
		}
		list = append(list, &h)
	}
	return list, rows.Err()
}

func (d *DB) CheckTableExists(ctx context.Context, tableName string) (bool, error) {
	return d.checkExists("table", tableName)
}

func (d *DB) CheckIndexExists(ctx context.Context, name string) (bool, error) {
	return d.checkExists("index", name)
}

func (d *DB) checkExists(kind, name string) (bool, error) {
	rows, err := d.Query("SELECT name FROM sqlite_master WHERE type=? AND name=?", kind, name)
	if err != nil {
		return false, err
	}
	defer rows.Close()
	exists := rows.Next()
	return exists, rows.Err()
}

// minorDirRegexp matches a minor version directory.
var minorDirRegexp = regexp.MustCompile(`^migration/[0-9]+\.[0-9]+$`)

func minorVersionList() []string {
	list := []string{}
	if err := fs.WalkDir(migrationFS, "migration", func(path string, file fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if file.IsDir() && minorDirRegexp.MatchString(path) {
			list = append(list, file.Name())
		}
		return nil
	}); err != nil {
		panic(err)
	}
	slices.SortFunc(list, func(a, b string) int {
		return semver.Compare("v"+a, "v"+b)
	})
	return list
}

func versionGreater(a, b string) bool {
	return semver.Compare("v"+a, "v"+b) > 0
}
