package commands

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/krich11/mls-chat/internal/app"
)

var (
	home       string
	passphrase string
	user       string
	verbose    bool

	appCtx *app.Wire
)

func Execute() error {
	root := &cobra.Command{
		Use:   "mlschat",
		Short: "End-to-end encrypted group chat CLI",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if home == "" {
				dir, err := os.UserHomeDir()
				if err != nil {
					return err
				}
				home = filepath.Join(dir, ".mlschat")
			}
			if err := os.MkdirAll(home, 0o700); err != nil {
				return err
			}

			level := zerolog.WarnLevel
			if verbose {
				level = zerolog.DebugLevel
			}
			wire, err := app.NewWire(app.Config{Home: home, LogLevel: level})
			if err != nil {
				return err
			}
			appCtx = wire
			return nil
		},
	}

	root.PersistentFlags().StringVar(&home, "home", "", "data dir (default ~/.mlschat)")
	root.PersistentFlags().StringVarP(&passphrase, "passphrase", "p", "", "passphrase protecting local keys")
	root.PersistentFlags().StringVarP(&user, "user", "u", "", "act as this user (default: last init)")
	root.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "debug logging")

	root.AddCommand(
		initCmd(),
		createGroupCmd(),
		addMemberCmd(),
		removeMemberCmd(),
		rotateKeyCmd(),
		sendCmd(),
		messagesCmd(),
		infoCmd(),
		whoamiCmd(),
	)
	return root.Execute()
}

// currentUser resolves the acting user from --user or the stored setting.
func currentUser() (string, error) {
	if user != "" {
		return user, nil
	}
	u, ok, err := appCtx.Settings.CurrentUser()
	if err != nil {
		return "", err
	}
	if !ok {
		return "", fmt.Errorf("no user selected: run 'mlschat init <user>' or pass --user")
	}
	return u, nil
}

func requirePassphrase() error {
	if passphrase == "" {
		return fmt.Errorf("passphrase required (-p)")
	}
	return nil
}
