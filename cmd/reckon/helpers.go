package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"

	"github.com/finfold/reckon/internal/common"
	"github.com/finfold/reckon/internal/service"
	"github.com/finfold/reckon/internal/storage"
)

// initStorage opens the configured SQLite database and brings its schema up
// to date.
func initStorage(ctx context.Context) (service.Storage, error) {
	dbPath := viper.GetString("database.path")
	if dbPath == "" {
		dbPath = "$HOME/.local/share/reckon/reckon.db"
	}
	dbPath = expandPath(dbPath)

	store, err := storage.NewSQLiteStorage(dbPath)
	if err != nil {
		return nil, err
	}

	if err := store.Migrate(ctx); err != nil {
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return store, nil
}

// requireCompany returns the company every command operates on.
func requireCompany() (string, error) {
	company := viper.GetString("company.id")
	if company == "" {
		return "", common.NewUserError(
			"no company selected; pass --company or set company.id in the config file",
			common.ErrMissingConfig)
	}
	return company, nil
}

// expandPath expands a leading ~ and any $VAR environment references.
func expandPath(path string) string {
	if strings.HasPrefix(path, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			path = filepath.Join(home, path[2:])
		}
	} else if path == "~" {
		if home, err := os.UserHomeDir(); err == nil {
			path = home
		}
	}
	return os.ExpandEnv(path)
}
