package main

import (
	"fmt"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/cobra"

	"github.com/s22001503-hash/ouslpms-monorepo/internal/models"
	"github.com/s22001503-hash/ouslpms-monorepo/internal/repository"
	"github.com/s22001503-hash/ouslpms-monorepo/internal/service"
	"github.com/s22001503-hash/ouslpms-monorepo/pkg/database"
)

// systemActor attributes CLI writes in the audit log.
var systemActor = &models.JWTClaims{UserID: "printctl", Role: models.RoleAdmin}

func newUserCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "user",
		Short: "Manage accounts",
	}

	var req models.CreateUserRequest
	var role string
	create := &cobra.Command{
		Use:   "create",
		Short: "Create an account, typically the first admin",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			env, err := loadEnv()
			if err != nil {
				return err
			}
			defer env.logger.Sync() //nolint:errcheck

			db, err := database.NewPostgres(env.cfg.Database)
			if err != nil {
				return err
			}
			defer db.Close()

			policies := service.NewPolicyService(repository.NewPolicyRepository(db), env.logger)
			users := service.NewUserService(repository.NewUserRepository(db), policies, repository.NewAuditRepository(db), validator.New(), env.logger)

			req.Role = models.UserRole(role)
			user, err := users.Create(cmd.Context(), systemActor, req, models.LoginRequest{UserAgent: "printctl"})
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "created %s (%s) as %s\n", user.EPF, user.Email, user.Role)
			return nil
		},
	}
	flags := create.Flags()
	flags.StringVar(&req.EPF, "epf", "", "EPF number")
	flags.StringVar(&req.Name, "name", "", "display name")
	flags.StringVar(&req.Email, "email", "", "university email")
	flags.StringVar(&req.Password, "password", "", "initial password for the local auth provider")
	flags.StringVar(&req.Department, "department", "", "department")
	flags.StringVar(&role, "role", string(models.RoleUser), "user|admin|hod|dean|vc")
	_ = create.MarkFlagRequired("epf")
	_ = create.MarkFlagRequired("name")
	_ = create.MarkFlagRequired("email")

	cmd.AddCommand(create)
	return cmd
}
