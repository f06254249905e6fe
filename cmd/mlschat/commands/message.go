package commands

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

func sendCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "send <group> <message>",
		Short: "Encrypt and post a message to the group",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := requirePassphrase(); err != nil {
				return err
			}
			me, err := currentUser()
			if err != nil {
				return err
			}
			if err := appCtx.Messages.Send(passphrase, me, args[0], []byte(args[1])); err != nil {
				return err
			}
			fmt.Println("sent")
			return nil
		},
	}
}

func messagesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "messages <group>",
		Short: "Drain the mailbox and print decrypted history",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := requirePassphrase(); err != nil {
				return err
			}
			me, err := currentUser()
			if err != nil {
				return err
			}
			msgs, err := appCtx.Messages.Sync(passphrase, me, args[0])
			if err != nil {
				return err
			}
			if len(msgs) == 0 {
				fmt.Println("No new messages.")
				return nil
			}
			for _, m := range msgs {
				ts := time.Unix(m.Timestamp, 0).Format("15:04:05")
				fmt.Printf("[%s] %s (epoch %d): %s\n", ts, m.From, m.Epoch, m.Plaintext)
			}
			return nil
		},
	}
}

func whoamiCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Print the active user",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			me, err := currentUser()
			if err != nil {
				return err
			}
			fmt.Println(me)
			return nil
		},
	}
}
