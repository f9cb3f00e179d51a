package cli

import (
	"fmt"

	"github.com/Shay-Sh/BizOSV1-sub000/pkg/common"
	"github.com/Shay-Sh/BizOSV1-sub000/pkg/repository"
	"github.com/Shay-Sh/BizOSV1-sub000/pkg/types"
	"github.com/spf13/cobra"
)

func newMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply Postgres migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			config, err := loadConfig()
			if err != nil {
				return err
			}
			if config.Database.Postgres.Host == "" {
				return fmt.Errorf("database.postgres.host is not configured")
			}

			// Migrations never touch sealed columns, so no secret key is needed
			backend, err := repository.NewPostgresBackend(cmd.Context(), config.Database.Postgres, nil)
			if err != nil {
				return err
			}
			defer backend.Close()

			version, err := backend.RunMigrations(cmd.Context())
			if err != nil {
				return err
			}

			p := NewPrinter(cmd.OutOrStdout(), jsonOutput)
			if !p.JSON(map[string]int64{"version": version}) {
				p.Success("schema at version %d", version)
			}
			return nil
		},
	}
}

func loadConfig() (types.AppConfig, error) {
	cm, err := common.NewConfigManager[types.AppConfig]()
	if err != nil {
		return types.AppConfig{}, err
	}
	if configPath != "" {
		if err := cm.LoadFile(configPath); err != nil {
			return types.AppConfig{}, err
		}
	}
	return cm.GetConfig(), nil
}
