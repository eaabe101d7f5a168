// Package database はリモートドキュメントストア（PostgreSQL）の接続とスキーマ管理を提供する。
package database

import (
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"strconv"
	"strings"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

const migrationsDir = "migrations"

// MigrationResult はマイグレーション適用後のスキーマ状態。
type MigrationResult struct {
	Before  uint // 適用前のバージョン（未適用なら0）
	Version uint // 適用後のバージョン
	Latest  uint // 埋め込まれたマイグレーションの最新バージョン
}

// Applied は今回の実行で1つ以上のマイグレーションを適用したかを返す。
func (r MigrationResult) Applied() bool {
	return r.Version != r.Before
}

// NewMigrator は埋め込みマイグレーションを読むmigrateインスタンスを生成する。
func NewMigrator(databaseURL string) (*migrate.Migrate, error) {
	source, err := iofs.New(migrationsFS, migrationsDir)
	if err != nil {
		return nil, fmt.Errorf("failed to create migration source: %w", err)
	}

	m, err := migrate.NewWithSourceInstance("iofs", source, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to create migrator: %w", err)
	}
	return m, nil
}

// Migrate は未適用のマイグレーションをすべて適用する。
// すでに最新の場合もエラーにはならない。dirtyな状態で止まっている場合はエラーを返す。
func Migrate(databaseURL string) (MigrationResult, error) {
	latest, err := LatestVersion()
	if err != nil {
		return MigrationResult{}, err
	}
	res := MigrationResult{Latest: latest}

	m, err := NewMigrator(databaseURL)
	if err != nil {
		return res, err
	}
	defer m.Close()

	if res.Before, err = currentVersion(m); err != nil {
		return res, err
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return res, fmt.Errorf("failed to run migrations: %w", err)
	}

	if res.Version, err = currentVersion(m); err != nil {
		return res, err
	}
	return res, nil
}

func currentVersion(m *migrate.Migrate) (uint, error) {
	version, dirty, err := m.Version()
	if errors.Is(err, migrate.ErrNilVersion) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to read migration version: %w", err)
	}
	if dirty {
		return version, fmt.Errorf("migration version %d is dirty", version)
	}
	return version, nil
}

// LatestVersion は埋め込まれた *.up.sql のうち最大のバージョン番号を返す。
func LatestVersion() (uint, error) {
	entries, err := fs.ReadDir(migrationsFS, migrationsDir)
	if err != nil {
		return 0, fmt.Errorf("failed to list migrations: %w", err)
	}

	var latest uint
	for _, e := range entries {
		name := e.Name()
		if !strings.HasSuffix(name, ".up.sql") {
			continue
		}
		prefix, _, ok := strings.Cut(name, "_")
		if !ok {
			return 0, fmt.Errorf("invalid migration file name: %s", name)
		}
		v, err := strconv.ParseUint(prefix, 10, 64)
		if err != nil {
			return 0, fmt.Errorf("invalid migration version in %s: %w", name, err)
		}
		if uint(v) > latest {
			latest = uint(v)
		}
	}
	return latest, nil
}
