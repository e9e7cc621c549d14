package treasurydb

import (
	"context"
	"log"

	"github.com/uptrace/bun"

	"github.com/zero-finance/treasury-engine/pkg/bridge"
	mghelper "github.com/zero-finance/treasury-engine/pkg/pgutil/migrations"
)

func init() {
	Migrations.MustRegister(func(ctx context.Context, db *bun.DB) error {
		log.Println("creating bridge_transactions table...")
		if err := mghelper.CreateSchema(ctx, db, &bridge.TransactionDao{}); err != nil {
			return err
		}
		return mghelper.CreateModelIndexes(ctx, db, &bridge.TransactionDao{}, "status", "owner_address")
	}, func(ctx context.Context, db *bun.DB) error {
		log.Println("dropping bridge_transactions table...")
		return mghelper.DropTables(ctx, db, &bridge.TransactionDao{})
	})
}
