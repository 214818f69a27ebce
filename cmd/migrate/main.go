package main

import (
	"errors"
	"fmt"
	"log"

	"github.com/alecthomas/kong"
	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"

	"github.com/vishesh2305/DAAN/pkg/config"
)

type UpCmd struct{}

func (UpCmd) Run(m *migrate.Migrate) error {
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migration up failed: %w", err)
	}
	log.Println("Migration up done")
	return nil
}

type DownCmd struct {
	Steps int `arg:"" optional:"" help:"number of migrations to roll back; all when omitted."`
}

func (c DownCmd) Run(m *migrate.Migrate) error {
	var err error
	if c.Steps > 0 {
		err = m.Steps(-c.Steps)
	} else {
		err = m.Down()
	}
	if err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migration down failed: %w", err)
	}
	log.Println("Migration down done")
	return nil
}

type ForceCmd struct {
	Version int `arg:"" help:"version to mark as applied, clearing the dirty flag."`
}

func (c ForceCmd) Run(m *migrate.Migrate) error {
	if err := m.Force(c.Version); err != nil {
		return fmt.Errorf("migration force failed: %w", err)
	}
	log.Printf("Migration forced to version %d", c.Version)
	return nil
}

type VersionCmd struct{}

func (VersionCmd) Run(m *migrate.Migrate) error {
	v, dirty, err := m.Version()
	if errors.Is(err, migrate.ErrNilVersion) {
		log.Println("No migration applied")
		return nil
	}
	if err != nil {
		return err
	}
	log.Printf("Version %d (dirty=%t)", v, dirty)
	return nil
}

type CLI struct {
	Source string `default:"file://migrations" help:"migration source URL."`

	Up      UpCmd      `cmd:"" default:"1" help:"apply all pending migrations."`
	Down    DownCmd    `cmd:"" help:"roll back migrations."`
	Force   ForceCmd   `cmd:"" help:"force a version after a failed migration."`
	Version VersionCmd `cmd:"" help:"print the current version."`
}

func main() {
	var cli CLI
	kctx := kong.Parse(&cli,
		kong.Description("Postgres schema migrations for daan-server."),
		kong.UsageOnError(),
	)

	config.Init()
	db := config.Global.DB
	if db.Driver == "sqlite" {
		log.Fatal("sqlite databases are migrated by daan-server on start")
	}
	dsn := fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=disable",
		db.User, db.Password, db.Host, db.Port, db.Name)

	m, err := migrate.New(cli.Source, dsn)
	if err != nil {
		log.Fatalf("Migration init failed: %v", err)
	}
	defer m.Close()

	kctx.FatalIfErrorf(kctx.Run(m))
}
