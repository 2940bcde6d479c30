package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/fx"

	"github.com/facilitydesk/chatsync/internal/daemon"
	"github.com/facilitydesk/chatsync/internal/profile"
)

var profileFlag string

var rootCmd = &cobra.Command{
	Use:           "chatsyncd",
	Short:         "chatsync daemon",
	Long:          "Runs the chat sync engine for one profile and serves its API on the profile socket.",
	Args:          cobra.NoArgs,
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		name := profile.Resolve(profileFlag)
		if err := profile.ValidateName(name); err != nil {
			return err
		}

		app := fx.New(
			daemon.Module(daemon.Params{ProfileName: name}),
		)
		if err := app.Err(); err != nil {
			return err
		}
		app.Run()
		return nil
	},
}

func init() {
	rootCmd.Flags().StringVar(&profileFlag, "profile", "", "profile name (overrides config default)")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}
