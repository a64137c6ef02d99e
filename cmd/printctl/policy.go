package main

import (
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/s22001503-hash/ouslpms-monorepo/internal/repository"
	"github.com/s22001503-hash/ouslpms-monorepo/internal/service"
	"github.com/s22001503-hash/ouslpms-monorepo/pkg/database"
)

func newPolicyCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "policy",
		Short: "Inspect print policies",
	}
	var epf string
	show := &cobra.Command{
		Use:   "show",
		Short: "Print the global policy and special-user overrides as YAML",
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
			var out interface{}
			if epf != "" {
				effective, err := policies.EffectivePolicy(cmd.Context(), epf)
				if err != nil {
					return err
				}
				out = effective
			} else {
				current, err := policies.CurrentPolicies(cmd.Context())
				if err != nil {
					return err
				}
				out = current
			}
			enc := yaml.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent(2)
			defer enc.Close()
			return enc.Encode(out)
		},
	}
	show.Flags().StringVar(&epf, "epf", "", "show the effective policy for one user instead")
	cmd.AddCommand(show)
	return cmd
}
