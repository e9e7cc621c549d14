package treasurydb

import (
	"context"
	"log"

	"github.com/uptrace/bun"

	mghelper "github.com/zero-finance/treasury-engine/pkg/pgutil/migrations"
	"github.com/zero-finance/treasury-engine/pkg/safes"
)

func init() {
	Migrations.MustRegister(func(ctx context.Context, db *bun.DB) error {
		log.Println("creating safes table...")
		if err := mghelper.CreateSchema(ctx, db, &safes.SafeDao{}); err != nil {
			return err
		}
		if err := mghelper.CreateModelIndexes(ctx, db, &safes.SafeDao{}, "primary_address", "chain_id"); err != nil {
			return err
		}
		// At most one safe per (primary, category, chain).
		_, err := db.ExecContext(ctx,
			`CREATE UNIQUE INDEX IF NOT EXISTS idx_safes_primary_category_chain ON safes (primary_address, category, chain_id)`)
		return err
	}, func(ctx context.Context, db *bun.DB) error {
		log.Println("dropping safes table...")
		return mghelper.DropTables(ctx, db, &safes.SafeDao{})
	})
}
