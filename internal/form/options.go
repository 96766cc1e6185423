package form

import (
	"context"
	"log/slog"

	"github.com/mobilsoft/backoffice/internal/entity"
	"github.com/mobilsoft/backoffice/internal/recordstore"
)

// LoadOptions reads a reference list for selection inputs. Failures are logged
// and yield an empty list.
func LoadOptions(ctx context.Context, store recordstore.Store, spec entity.OptionSpec, logger *slog.Logger) []entity.Option {
	if logger == nil {
		logger = slog.Default()
	}
	rows, err := store.Fetch(ctx, spec.Model, nil, entity.Names(spec.Fields), recordstore.Options{Order: spec.Order})
	if err != nil {
		logger.Warn("option list failed", slog.String("options", spec.Name), slog.Any("error", err))
		return []entity.Option{}
	}
	recs, err := entity.DecodeAll(spec.Fields, rows)
	if err != nil {
		logger.Warn("option list decode failed", slog.String("options", spec.Name), slog.Any("error", err))
		return []entity.Option{}
	}
	return entity.OptionsFrom(recs)
}
