package storage

import (
	"context"

	"log/slog"

	"github.com/jmoiron/sqlx"

	"github.com/m3rciful/shopbot/core/logger"
	"github.com/m3rciful/shopbot/shop/domain"
)

// SeedShopInfo ensures the single shop info row exists so the about screen
// and its editor always have something to read. Re-running is a no-op.
func SeedShopInfo(ctx context.Context, db *sqlx.DB) error {
	res, err := db.ExecContext(ctx, `
		INSERT INTO shop_info (about_text)
		VALUES ('Welcome to the shop!')
		ON CONFLICT (id) DO NOTHING`)
	if err != nil {
		return domain.Transient("seed shop info", err)
	}
	if n, err := res.RowsAffected(); err == nil && n > 0 {
		logger.SEED.LogAttrs(ctx, slog.LevelInfo, "seed.shop_info",
			slog.String("status", "ok"),
		)
	}
	return nil
}
