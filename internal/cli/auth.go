package cli

import (
	"fmt"

	"direct-chat-backend/internal/client"

	"github.com/spf13/cobra"
)

type credentials struct {
	FullName string
	Email    string
	Password string
}

// NewSignupCommand creates the signup command.
func NewSignupCommand(opts *RootOptions) *cobra.Command {
	creds := &credentials{}

	cmd := &cobra.Command{
		Use:          "signup",
		Short:        "Create an account and save the session",
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			api := client.NewAPI(opts.Settings.ServerURL, "")
			resp, err := api.Signup(cmd.Context(), creds.FullName, creds.Email, creds.Password)
			if err != nil {
				return err
			}
			return saveSession(cmd, opts, resp)
		},
	}

	cmd.Flags().StringVar(&creds.FullName, "name", "", "display name (required)")
	cmd.Flags().StringVar(&creds.Email, "email", "", "email (required)")
	cmd.Flags().StringVar(&creds.Password, "password", "", "password, at least 8 characters (required)")
	_ = cmd.MarkFlagRequired("name")
	_ = cmd.MarkFlagRequired("email")
	_ = cmd.MarkFlagRequired("password")

	return cmd
}

// NewLoginCommand creates the login command.
func NewLoginCommand(opts *RootOptions) *cobra.Command {
	creds := &credentials{}

	cmd := &cobra.Command{
		Use:          "login",
		Short:        "Log in and save the session",
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			api := client.NewAPI(opts.Settings.ServerURL, "")
			resp, err := api.Login(cmd.Context(), creds.Email, creds.Password)
			if err != nil {
				return err
			}
			return saveSession(cmd, opts, resp)
		},
	}

	cmd.Flags().StringVar(&creds.Email, "email", "", "email (required)")
	cmd.Flags().StringVar(&creds.Password, "password", "", "password (required)")
	_ = cmd.MarkFlagRequired("email")
	_ = cmd.MarkFlagRequired("password")

	return cmd
}

// NewLogoutCommand creates the logout command.
func NewLogoutCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:          "logout",
		Short:        "Forget the saved session",
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			prefs, err := openPrefs(opts)
			if err != nil {
				return err
			}
			defer prefs.Close()
			return prefs.Delete(client.PrefToken)
		},
	}
}

func saveSession(cmd *cobra.Command, opts *RootOptions, resp *client.AuthResponse) error {
	prefs, err := openPrefs(opts)
	if err != nil {
		return err
	}
	defer prefs.Close()

	if err := prefs.SetString(client.PrefToken, resp.Token); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Logged in as %s (%s)\n", resp.FullName, resp.ID)
	return nil
}
