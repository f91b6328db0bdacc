package cmd

import (
	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"groundwork/internal/bootstrap"
	"groundwork/internal/config"
	"groundwork/internal/database"
)

var ensureAdminCmd = &cobra.Command{
	Use:   "ensure-admin",
	Short: "Ensure the initial admin account exists",
	Long: `Run the initial admin bootstrap outside the server process. Unlike the
startup-time bootstrap, store errors are propagated instead of swallowed.`,
	Example: `GROUNDWORK_ADMIN_EMAIL=admin@example.com GROUNDWORK_ADMIN_PASSWORD=secret groundwork ensure-admin`,
	RunE:    ensureAdmin,
}

func init() {
	rootCmd.AddCommand(ensureAdminCmd)
}

func ensureAdmin(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load(rootCmdPersistentFlags.ConfigFile)
	if err != nil {
		return err
	}
	setLogLevel(cfg.LogLevel)

	db, err := database.New(cfg.Database.Path)
	if err != nil {
		return err
	}
	defer db.Close() //nolint:errcheck

	if err := bootstrap.EnsureInitialAdmin(cmd.Context(), db, cfg.Admin, true); err != nil {
		return err
	}

	log.Info("initial admin check complete")
	return nil
}
