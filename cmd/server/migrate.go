package main

import (
	"lounge_backend/internal/config"
	"lounge_backend/internal/database"
	"lounge_backend/pkg/utils"

	"github.com/spf13/cobra"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create the database schema",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}
		utils.InitLogger(cfg.Log.Level, cfg.Log.Pretty)

		db, err := database.Open(cfg.DB.Driver, cfg.DB.DSN())
		if err != nil {
			return err
		}
		defer db.Close()

		if err := database.ApplySchema(db, cfg.DB.Driver); err != nil {
			utils.LogError(err, "Schema migration failed")
			return err
		}
		utils.LogInfo("Schema migration complete", map[string]interface{}{"driver": cfg.DB.Driver})
		return nil
	},
}
