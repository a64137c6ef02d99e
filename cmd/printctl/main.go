// Command printctl runs schema migrations and one-off administration against
// the print management database.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/s22001503-hash/ouslpms-monorepo/pkg/config"
	"github.com/s22001503-hash/ouslpms-monorepo/pkg/logger"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "printctl",
		Short:         "Administer the OUSL print management service",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(newMigrateCmd(), newPolicyCmd(), newUserCmd(), newEvaluateCmd())
	return root
}

// runtimeEnv is the configuration shared by commands that touch the database.
type runtimeEnv struct {
	cfg    *config.Config
	logger *zap.Logger
}

func loadEnv() (*runtimeEnv, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	logr, err := logger.New(cfg)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}
	return &runtimeEnv{cfg: cfg, logger: logr}, nil
}
