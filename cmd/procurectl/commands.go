package main

import (
	"errors"
	"fmt"

	"procurement-backend/internal/access"
	"procurement-backend/internal/apperr"
	"procurement-backend/internal/database"
	"procurement-backend/internal/models"
	"procurement-backend/internal/users"

	"github.com/spf13/cobra"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create or update the database tables",
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := openEnv()
		if err != nil {
			return err
		}
		if err := database.Migrate(e.db); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), "migrations applied")
		return nil
	},
}

var (
	adminName     string
	adminEmail    string
	adminPassword string
)

var createAdminCmd = &cobra.Command{
	Use:   "create-admin",
	Short: "Create an Admin user",
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := openEnv()
		if err != nil {
			return err
		}
		u, err := e.deps.Users.Seed(cmd.Context(), users.Input{
			Name:     adminName,
			Email:    adminEmail,
			Password: adminPassword,
			Role:     models.RoleAdmin,
		})
		if err != nil {
			var verr apperr.ValidationErrors
			if errors.As(err, &verr) {
				for field, msg := range verr.Fields() {
					fmt.Fprintf(cmd.ErrOrStderr(), "  %s: %s\n", field, msg)
				}
			}
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "admin %s created with id %d\n", u.Email, u.ID)
		return nil
	},
}

var regenerateSupplyID uint

var regenerateCmd = &cobra.Command{
	Use:   "regenerate-documents",
	Short: "Render and store the delivery challan and invoice of a supply again",
	RunE: func(cmd *cobra.Command, args []string) error {
		if regenerateSupplyID == 0 {
			return fmt.Errorf("--supply is required")
		}
		e, err := openEnv()
		if err != nil {
			return err
		}

		// operator runs act with full rights
		operator := access.Actor{ID: ^uint(0), Name: "procurectl", Role: models.RoleAdmin}
		sup, err := e.deps.Supplies.RegenerateDocuments(cmd.Context(), operator, regenerateSupplyID)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "supply %d: %s, %s\n", sup.ID, sup.DCPDF, sup.InvoicePDF)
		return nil
	},
}

func init() {
	createAdminCmd.Flags().StringVar(&adminName, "name", "", "display name")
	createAdminCmd.Flags().StringVar(&adminEmail, "email", "", "login email")
	createAdminCmd.Flags().StringVar(&adminPassword, "password", "", "password, at least 8 characters")
	_ = createAdminCmd.MarkFlagRequired("email")
	_ = createAdminCmd.MarkFlagRequired("password")
	_ = createAdminCmd.MarkFlagRequired("name")

	regenerateCmd.Flags().UintVar(&regenerateSupplyID, "supply", 0, "supply id")

	rootCmd.AddCommand(migrateCmd, createAdminCmd, regenerateCmd)
}
