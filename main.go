package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/bsaid97/go-boundary-fixer/utils"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

type rootOptions struct {
	configPath string
	quiet      bool
}

func main() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "failed to load .env: %v\n", err)
	}
	utils.SetupLogger()

	if err := newRootCmd().Execute(); err != nil {
		utils.L().Error("run failed", "error", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var opts rootOptions

	cmd := &cobra.Command{
		Use:           "boundaryfix",
		Short:         "Repair, associate, dissolve and simplify boundary files",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.PersistentFlags().StringVar(&opts.configPath, "config", "", "YAML config file (defaults apply when empty)")
	cmd.PersistentFlags().BoolVar(&opts.quiet, "quiet", false, "Hide progress spinners")

	cmd.AddCommand(
		newConsolidateCmd(&opts),
		newRepairCmd(&opts),
		newAssociateCmd(&opts),
		newRunCmd(&opts),
		newIssuesCmd(&opts),
		newCheckCmd(&opts),
	)
	return cmd
}
