package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"
)

var errNotSignedIn = errors.New("not signed in; run `assistant user login <email>` first")

func newUserCmd(g *globalFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "user",
		Short: "Account commands",
	}

	cmd.AddCommand(newUserSignupCmd(g))
	cmd.AddCommand(newUserLoginCmd(g))
	cmd.AddCommand(newUserLogoutCmd(g))
	cmd.AddCommand(newUserWhoamiCmd(g))
	return cmd
}

func newUserSignupCmd(g *globalFlags) *cobra.Command {
	var password string

	cmd := &cobra.Command{
		Use:   "signup <email>",
		Short: "Create a local account",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			creds, closeFn, err := g.openCredentials()
			if err != nil {
				return err
			}
			defer closeFn()

			if !cmd.Flags().Changed("password") {
				if password, err = promptPassword(cmd, "Password: "); err != nil {
					return err
				}
			}

			res := creds.SignUp(cmd.Context(), args[0], password)
			fmt.Fprintln(cmd.OutOrStdout(), res.Message)
			if !res.Success {
				return errors.New(res.Message)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&password, "password", "", "password (prompted for when omitted)")
	return cmd
}

func newUserLoginCmd(g *globalFlags) *cobra.Command {
	var password string

	cmd := &cobra.Command{
		Use:   "login <email>",
		Short: "Sign in and remember the session",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			creds, closeFn, err := g.openCredentials()
			if err != nil {
				return err
			}
			defer closeFn()

			tf, err := g.tokenFile()
			if err != nil {
				return err
			}

			if !cmd.Flags().Changed("password") {
				if password, err = promptPassword(cmd, "Password: "); err != nil {
					return err
				}
			}

			res, user := creds.Login(cmd.Context(), args[0], password)
			fmt.Fprintln(cmd.OutOrStdout(), res.Message)
			if !res.Success || user == nil {
				return errors.New(res.Message)
			}

			// a previous marker on this machine is replaced, not left dangling
			if old, err := tf.Load(); err == nil && old != "" {
				creds.Logout(cmd.Context(), old)
			}
			return tf.Save(user.Token)
		},
	}

	cmd.Flags().StringVar(&password, "password", "", "password (prompted for when omitted)")
	return cmd
}

func newUserLogoutCmd(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Forget the current session",
		RunE: func(cmd *cobra.Command, args []string) error {
			creds, closeFn, err := g.openCredentials()
			if err != nil {
				return err
			}
			defer closeFn()

			tf, err := g.tokenFile()
			if err != nil {
				return err
			}
			token, err := tf.Load()
			if err != nil {
				return err
			}
			creds.Logout(cmd.Context(), token)
			if err := tf.Clear(); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Signed out.")
			return nil
		},
	}
}

func newUserWhoamiCmd(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Show the signed-in account",
		RunE: func(cmd *cobra.Command, args []string) error {
			creds, closeFn, err := g.openCredentials()
			if err != nil {
				return err
			}
			defer closeFn()

			tf, err := g.tokenFile()
			if err != nil {
				return err
			}
			token, err := tf.Load()
			if err != nil {
				return err
			}
			user, ok := creds.CurrentSession(cmd.Context(), token)
			if !ok {
				return errNotSignedIn
			}
			fmt.Fprintln(cmd.OutOrStdout(), user.Email)
			return nil
		},
	}
}

// promptPassword reads a password without echo on a terminal, or a single line from
// the command's input otherwise.
func promptPassword(cmd *cobra.Command, prompt string) (string, error) {
	fmt.Fprint(cmd.ErrOrStderr(), prompt)

	if f, ok := cmd.InOrStdin().(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		password, err := term.ReadPassword(int(f.Fd()))
		fmt.Fprintln(cmd.ErrOrStderr())
		if err != nil {
			return "", fmt.Errorf("failed to read password: %w", err)
		}
		return string(password), nil
	}

	line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", fmt.Errorf("failed to read password: %w", err)
	}
	return strings.TrimRight(line, "\r\n"), nil
}
