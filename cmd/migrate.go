package cmd

import (
	"context"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"example.com/snackhouse/delivery/config"
	"example.com/snackhouse/delivery/internal/database"
	"example.com/snackhouse/delivery/internal/models"
	"example.com/snackhouse/delivery/internal/repositories"
	"example.com/snackhouse/delivery/internal/services"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Run database migrations",
	Long:  `Apply the database schema and seed the operator account without starting the server.`,
	RunE:  runMigrate,
}

func init() {
	rootCmd.AddCommand(migrateCmd)
}

func runMigrate(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadConfig(cfgFile)
	if err != nil {
		return err
	}

	db, err := database.Connect(cfg.DB)
	if err != nil {
		return errors.Wrap(err, "failed to connect to database")
	}
	defer db.Close()

	if err := models.SetupModels(db.DB()); err != nil {
		return errors.Wrap(err, "failed to run migrations")
	}

	operatorRepo := repositories.NewOperatorRepository(db.DB())
	sessionRepo := repositories.NewSessionRepository(db.DB())
	authService := services.NewAuthService(cfg.Auth, operatorRepo, sessionRepo, nil)

	if err := authService.EnsureOperator(context.Background()); err != nil {
		return errors.Wrap(err, "failed to seed operator account")
	}

	log.Info().Msg("Migrations applied")
	return nil
}
