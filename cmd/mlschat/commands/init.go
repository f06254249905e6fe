package commands

import (
	"fmt"

	"github.com/spf13/cobra"
)

func initCmd() *cobra.Command {
	var reissue bool
	cmd := &cobra.Command{
		Use:   "init <user>",
		Short: "Enroll a user and issue its key package",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := requirePassphrase(); err != nil {
				return err
			}
			userID := args[0]

			kp, err := appCtx.KeyPackages.Issue(passphrase, userID, reissue)
			if err != nil {
				return err
			}
			if err := appCtx.Settings.SetCurrentUser(userID); err != nil {
				return err
			}
			fmt.Printf("User %q enrolled.\nKey package: %s\n", userID, kp.ID)
			return nil
		},
	}
	cmd.Flags().BoolVar(&reissue, "reissue", false, "replace an unconsumed key package")
	return cmd
}
