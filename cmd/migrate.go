package cmd

import (
	"database/sql"
	"fmt"
	"os"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/spf13/cobra"

	"github.com/nextcampus/aula/internal/config"
	"github.com/nextcampus/aula/internal/store/pg"
)

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending PostgreSQL migrations",
		Run: func(cmd *cobra.Command, args []string) {
			cfg, err := config.Load(resolveConfigPath())
			if err != nil {
				fmt.Fprintf(os.Stderr, "load config: %v\n", err)
				os.Exit(1)
			}
			dsn := cfg.Database.PostgresDSN
			if dsn == "" {
				fmt.Fprintln(os.Stderr, "AULA_POSTGRES_DSN environment variable is not set")
				os.Exit(1)
			}
			db, err := sql.Open("pgx", dsn)
			if err != nil {
				fmt.Fprintf(os.Stderr, "open postgres: %v\n", err)
				os.Exit(1)
			}
			defer db.Close()
			if err := pg.Migrate(db); err != nil {
				fmt.Fprintf(os.Stderr, "migrate: %v\n", err)
				os.Exit(1)
			}
			fmt.Println("migrations applied")
		},
	}
}
