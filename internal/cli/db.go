package cli

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/shaiso/Ingestor/internal/repo"
	"github.com/shaiso/Ingestor/migrations"
)

// NewDBCmd создаёт группу команд обслуживания базы.
// dsnFn возвращает строку подключения после парсинга флагов.
func NewDBCmd(dsnFn func() string, outputFn func() *Output, logger *slog.Logger) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "db",
		Short: "Database maintenance",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "migrate",
		Short: "Apply pending schema migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			pool, err := repo.NewPool(ctx, dsnFn(), 2)
			if err != nil {
				return err
			}
			defer pool.Close()

			applied, err := repo.Migrate(ctx, pool, migrations.FS, logger)
			if err != nil {
				return err
			}

			outputFn().Success(fmt.Sprintf("Migrations applied: %d", applied))
			return nil
		},
	})

	return cmd
}
