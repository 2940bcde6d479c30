package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/facilitydesk/chatsync/internal/config"
	"github.com/facilitydesk/chatsync/internal/profile"
)

var (
	initSelfID     string
	initAPIBaseURL string
	initSocketURL  string
	initToken      string
	initOperation  string
	initTimezone   string
	initDefault    bool
	initForce      bool
)

func init() {
	initCmd.Flags().StringVar(&initSelfID, "self-id", "", "id of the local user (required)")
	initCmd.Flags().StringVar(&initAPIBaseURL, "api-base-url", "", "history API base URL (required)")
	initCmd.Flags().StringVar(&initSocketURL, "socket-url", "", "message server websocket URL (required)")
	initCmd.Flags().StringVar(&initToken, "token", "", "auth token sent with every request")
	initCmd.Flags().StringVar(&initOperation, "history-operation", config.OperationMessages, "history operation: get_message or fetchChatHistory")
	initCmd.Flags().StringVar(&initTimezone, "server-timezone", "UTC", "zone of the server's naive timestamps")
	initCmd.Flags().BoolVar(&initDefault, "default", false, "make this the default profile")
	initCmd.Flags().BoolVar(&initForce, "force", false, "overwrite an existing profile config")

	rootCmd.AddCommand(initCmd)
}

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Write the profile config",
	Long:  "Write ~/.chatsync/profiles/<profile>/config.toml with default tunables. The daemon reads it on start.",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		name, err := profileName()
		if err != nil {
			return err
		}
		path := profile.ConfigPath(name)
		if _, err := os.Stat(path); err == nil && !initForce {
			return fmt.Errorf("%s exists; use --force to overwrite", path)
		}

		p := config.Defaults()
		p.SelfID = initSelfID
		p.APIBaseURL = initAPIBaseURL
		p.SocketURL = initSocketURL
		p.Token = initToken
		p.HistoryOperation = initOperation
		p.ServerTimezone = initTimezone
		if err := p.Validate(); err != nil {
			return err
		}
		if err := profile.EnsureDir(name); err != nil {
			return err
		}
		if err := config.SaveProfile(path, &p); err != nil {
			return fmt.Errorf("save profile config: %w", err)
		}
		fmt.Printf("Profile %q written to %s\n", name, path)

		if initDefault {
			if err := config.Save(profile.GlobalConfigPath(), &config.Config{DefaultProfile: name}); err != nil {
				return fmt.Errorf("save global config: %w", err)
			}
			fmt.Printf("Default profile set to %q\n", name)
		}
		return nil
	},
}
