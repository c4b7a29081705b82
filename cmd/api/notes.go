package main

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"path/filepath"

	"github.com/gofiber/fiber/v2"

	"svcboot/internal/config"
	"svcboot/internal/container"
	"svcboot/internal/database"
	"svcboot/internal/http/handler"
	"svcboot/internal/model"
	"svcboot/internal/repository"
	"svcboot/internal/repository/mongodb"
	"svcboot/internal/repository/postgres"
	"svcboot/internal/service"
)

const notesCollection = "notes"

// registerNotes mounts the notes API over the configured document store.
// Without persistence the service only exposes the built-in routes.
func registerNotes(_ context.Context, _ *fiber.App, cfg *config.Config, c *container.Container) error {
	var repo repository.Repository[model.Note]

	switch cfg.Persistence.Driver {
	case config.DriverMongo:
		m, err := container.Resolve[*database.Mongo](c)
		if err != nil {
			return err
		}
		repo = mongodb.New[model.Note](m.Collection(notesCollection))
	case config.DriverPostgres:
		db, err := container.Resolve[*sql.DB](c)
		if err != nil {
			return err
		}
		repo = postgres.New[model.Note](db, notesCollection).WithTimeFields("created_at")
	default:
		return nil
	}

	svc := service.NewNoteService(repo)
	if err := errors.Join(container.Provide(c, repo), container.Provide(c, svc)); err != nil {
		return err
	}
	c.AddController(handler.NewNoteController(svc))
	return nil
}

func executableDir() (string, error) {
	exe, err := os.Executable()
	if err != nil {
		return ".", err
	}
	return filepath.Dir(exe), nil
}
