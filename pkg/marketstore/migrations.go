package marketstore

import (
	"database/sql"
	"embed"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/rs/zerolog/log"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// EnsureMigrations brings the schema of the sqlite database at dbPath up to
// date. The migrations are embedded in the binary, so there is no migrations
// path to configure. It opens its own connection and closes it when done.
func EnsureMigrations(dbPath string) {
	sqliteDb, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		panic(err)
	}
	src, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		panic(err)
	}
	driver, err := sqlite3.WithInstance(sqliteDb, &sqlite3.Config{})
	if err != nil {
		panic(err)
	}
	m, err := migrate.NewWithInstance("iofs", src, "sqlite3", driver)
	if err != nil {
		panic(err)
	}
	log.Info().Msg("bringing up migration")
	if err := m.Up(); err != nil && err != migrate.ErrNoChange {
		panic(err)
	}
	e1, e2 := m.Close()
	if e1 != nil {
		log.Err(e1).Msg("close-source")
	}
	if e2 != nil {
		log.Err(e2).Msg("close-database")
	}
}
