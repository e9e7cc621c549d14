package treasurydb

import (
	"context"
	"log"

	"github.com/uptrace/bun"

	mghelper "github.com/zero-finance/treasury-engine/pkg/pgutil/migrations"
	"github.com/zero-finance/treasury-engine/pkg/vaults"
)

func init() {
	Migrations.MustRegister(func(ctx context.Context, db *bun.DB) error {
		log.Println("creating vaults table...")
		if err := mghelper.CreateSchema(ctx, db, &vaults.VaultDao{}); err != nil {
			return err
		}
		_, err := db.ExecContext(ctx,
			`CREATE UNIQUE INDEX IF NOT EXISTS idx_vaults_chain_address ON vaults (chain_id, LOWER(address))`)
		return err
	}, func(ctx context.Context, db *bun.DB) error {
		log.Println("dropping vaults table...")
		return mghelper.DropTables(ctx, db, &vaults.VaultDao{})
	})
}
