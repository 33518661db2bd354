package repository

import (
	"context"
	"log/slog"

	"github.com/joseph-ayodele/polygon-locator/internal/common"
)

// Open connects the run store selected by cfg.Driver and ensures its schema.
// An empty driver yields a nil repository and no error.
func Open(ctx context.Context, cfg common.StoreConfig, logger *slog.Logger) (RunRepository, error) {
	if logger == nil {
		logger = slog.Default()
	}
	var (
		repo RunRepository
		err  error
	)
	switch cfg.Driver {
	case "":
		logger.Info("run store disabled")
		return nil, nil
	case common.DriverSQLite:
		repo, err = OpenSQLite(ctx, cfg.DSN, logger)
	case common.DriverPostgres:
		repo, err = OpenPostgres(ctx, cfg, logger)
	default:
		return nil, common.NewAppError(common.CodeConfig, "unknown store driver "+cfg.Driver, common.ErrInvalidInput)
	}
	if err != nil {
		return nil, common.NewAppError(common.CodeStore, "open "+cfg.Driver+" store", err)
	}
	return repo, nil
}
