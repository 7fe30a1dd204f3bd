package commands

import (
	"fmt"

	"github.com/spf13/cobra"
)

// login: interactive login that saves the session cookies.
func loginCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "login",
		Short: "Log in with an SMS verification code and save the session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := opts.newApp(cmd)
			if err != nil {
				return err
			}
			defer a.close()

			if err := a.poster(a.prompter(false)).Login(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "session saved to %s\n", a.store.Path())
			return nil
		},
	}
}
