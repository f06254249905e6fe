package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/krich11/mls-chat/internal/crypto"
)

func createGroupCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "create-group <name>",
		Short: "Start a new group at epoch 0",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := requirePassphrase(); err != nil {
				return err
			}
			me, err := currentUser()
			if err != nil {
				return err
			}
			m, err := appCtx.Groups.Create(passphrase, me, args[0])
			if err != nil {
				return err
			}
			fmt.Printf("Group %q created.\nGroup ID: %s\nEpoch: %d\n", args[0], m.State.GroupID, m.State.Epoch)
			return nil
		},
	}
}

func addMemberCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "add-member <group> <user>",
		Short: "Commit an Add for another enrolled user",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := requirePassphrase(); err != nil {
				return err
			}
			me, err := currentUser()
			if err != nil {
				return err
			}
			if err := appCtx.Groups.AddMember(passphrase, me, args[0], args[1]); err != nil {
				return err
			}
			fmt.Printf("Added %q to %q; their key package is consumed.\n", args[1], args[0])
			return nil
		},
	}
}

func removeMemberCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "remove-member <group> <user>",
		Short: "Commit a Remove for a current member",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := requirePassphrase(); err != nil {
				return err
			}
			me, err := currentUser()
			if err != nil {
				return err
			}
			if err := appCtx.Groups.RemoveMember(passphrase, me, args[0], args[1]); err != nil {
				return err
			}
			fmt.Printf("Removed %q from %q.\n", args[1], args[0])
			return nil
		},
	}
}

func rotateKeyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "rotate-key <group>",
		Short: "Commit an Update of your own leaf key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := requirePassphrase(); err != nil {
				return err
			}
			me, err := currentUser()
			if err != nil {
				return err
			}
			if err := appCtx.Groups.RotateKey(passphrase, me, args[0]); err != nil {
				return err
			}
			fmt.Println("Leaf key rotated; group advanced one epoch.")
			return nil
		},
	}
}

func infoCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "info <group>",
		Short: "Show group id, epoch, tree hash and members",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := requirePassphrase(); err != nil {
				return err
			}
			me, err := currentUser()
			if err != nil {
				return err
			}
			st, err := appCtx.Groups.Info(passphrase, me, args[0])
			if err != nil {
				return err
			}
			fmt.Printf("Group:     %s\n", args[0])
			fmt.Printf("Group ID:  %s\n", st.GroupID)
			fmt.Printf("Epoch:     %d\n", st.Epoch)
			fmt.Printf("Tree hash: %s\n", crypto.Fingerprint(st.TreeHash))
			fmt.Println("Members:")
			for i, leaf := range st.Leaves {
				if leaf.Blank {
					continue
				}
				fmt.Printf("  [%d] %s (%s)\n", i, leaf.Credential.UserID, crypto.Fingerprint(leaf.PublicKey.Slice()))
			}
			return nil
		},
	}
}
