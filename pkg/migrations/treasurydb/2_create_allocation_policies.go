package treasurydb

import (
	"context"
	"log"

	"github.com/uptrace/bun"

	mghelper "github.com/zero-finance/treasury-engine/pkg/pgutil/migrations"
	"github.com/zero-finance/treasury-engine/pkg/policy"
)

func init() {
	Migrations.MustRegister(func(ctx context.Context, db *bun.DB) error {
		log.Println("creating allocation_policies table...")
		if err := mghelper.CreateSchema(ctx, db, &policy.PolicyDao{}); err != nil {
			return err
		}
		if err := mghelper.CreateModelIndexes(ctx, db, &policy.PolicyDao{}, "primary_address"); err != nil {
			return err
		}
		// One active (non-superseded) version per primary.
		_, err := db.ExecContext(ctx,
			`CREATE UNIQUE INDEX IF NOT EXISTS idx_allocation_policies_active ON allocation_policies (primary_address) WHERE superseded_at IS NULL`)
		return err
	}, func(ctx context.Context, db *bun.DB) error {
		log.Println("dropping allocation_policies table...")
		return mghelper.DropTables(ctx, db, &policy.PolicyDao{})
	})
}
