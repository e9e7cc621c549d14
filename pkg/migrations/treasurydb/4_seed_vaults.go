package treasurydb

import (
	"context"
	"log"

	"github.com/google/uuid"
	"github.com/uptrace/bun"

	mghelper "github.com/zero-finance/treasury-engine/pkg/pgutil/migrations"
	"github.com/zero-finance/treasury-engine/pkg/vaults"
)

func init() {
	Migrations.MustRegister(func(ctx context.Context, db *bun.DB) error {
		log.Println("seeding vaults table...")
		return mghelper.InsertEntry(ctx, db,
			&vaults.VaultDao{
				ID:       uuid.New(),
				ChainID:  8453,
				Address:  "0x616a4e1db48e22028f6bbf20444cd3b8e3273738",
				Name:     "Seamless USDC Vault",
				Protocol: "morpho",
				Risk:     string(vaults.RiskMedium),
				APY:      "0.052000",
				Active:   true,
			},
			&vaults.VaultDao{
				ID:       uuid.New(),
				ChainID:  42161,
				Address:  "0x724dc807b04555b71ed48a6896b6f41593b8c637",
				Name:     "Aave v3 USDC",
				Protocol: "aave",
				Risk:     string(vaults.RiskLow),
				APY:      "0.038000",
				Active:   true,
			},
			&vaults.VaultDao{
				ID:       uuid.New(),
				ChainID:  8453,
				Address:  "0xbeef010f9cb27031ad51e3333f9af9c6b1228183",
				Name:     "Steakhouse USDC",
				Protocol: "morpho",
				Risk:     string(vaults.RiskLow),
				APY:      "0.045000",
				Active:   true,
			},
			&vaults.VaultDao{
				ID:       uuid.New(),
				ChainID:  8453,
				Address:  "0x0000000000000000000000000000000000001111",
				Name:     "Test Vault",
				Protocol: "test",
				Risk:     string(vaults.RiskHigh),
				APY:      "0.000000",
				Active:   true,
				Sandbox:  true,
			},
		)
	}, func(ctx context.Context, db *bun.DB) error {
		log.Println("removing seeded vaults...")
		_, err := db.NewDelete().
			Model((*vaults.VaultDao)(nil)).
			Where("1=1").
			Exec(ctx)
		return err
	})
}
