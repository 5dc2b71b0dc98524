package cmd

import (
	"log"

	"echofm/config"
	"echofm/db"

	"github.com/spf13/cobra"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "创建或更新数据库表结构",
	Run: func(cmd *cobra.Command, args []string) {
		cfg := config.Load()

		if err := db.ConnectDB(cfg); err != nil {
			log.Fatalf("Failed to connect to database: %v", err)
		}
		defer db.DB.Close()

		if err := db.InitDB(); err != nil {
			log.Fatalf("Failed to initialize database schema: %v", err)
		}

		if err := db.ConnectGormDB(cfg); err != nil {
			log.Fatalf("Failed to connect to database with GORM: %v", err)
		}
		defer db.CloseGormDB()

		if err := db.MigrateBillingTables(); err != nil {
			log.Fatalf("Failed to migrate billing tables: %v", err)
		}

		log.Println("Migration completed.")
	},
}

func init() {
	rootCmd.AddCommand(migrateCmd)
}
