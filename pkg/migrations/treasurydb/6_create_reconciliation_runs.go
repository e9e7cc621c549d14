package treasurydb

import (
	"context"
	"log"

	"github.com/uptrace/bun"

	mghelper "github.com/zero-finance/treasury-engine/pkg/pgutil/migrations"
	"github.com/zero-finance/treasury-engine/pkg/reconcile"
)

func init() {
	Migrations.MustRegister(func(ctx context.Context, db *bun.DB) error {
		log.Println("creating reconciliation_runs table...")
		if err := mghelper.CreateSchema(ctx, db, &reconcile.RunDao{}); err != nil {
			return err
		}
		return mghelper.CreateModelIndexes(ctx, db, &reconcile.RunDao{}, "safe_id", "state")
	}, func(ctx context.Context, db *bun.DB) error {
		log.Println("dropping reconciliation_runs table...")
		return mghelper.DropTables(ctx, db, &reconcile.RunDao{})
	})
}
