package cli

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// RootOptions holds global flags and the resolved client settings
type RootOptions struct {
	Verbose    bool
	Format     string // "json" | "text"
	ConfigFile string

	Settings Settings
	viper    *viper.Viper
}

// Settings is the client configuration read by viper
type Settings struct {
	ServerURL     string `mapstructure:"server_url"`
	DataDir       string `mapstructure:"data_dir"`
	Notifications bool   `mapstructure:"notifications"`
}

// PrefsPath is the sqlite file holding the session token and preferences
func (s Settings) PrefsPath() string {
	return filepath.Join(s.DataDir, "client.db")
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// NewRootCommand creates the root command of the terminal client
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{viper: viper.New()}

	cmd := &cobra.Command{
		Use:   "chatctl",
		Short: "Terminal client for the direct chat gateway",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !isValidFormat(opts.Format) {
				return fmt.Errorf("invalid format %q: must be one of %v", opts.Format, ValidFormats)
			}
			setupLogger(opts.Verbose)
			return opts.load(cmd)
		},
	}

	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")
	cmd.PersistentFlags().StringVar(&opts.ConfigFile, "config", "", "config file (default ./chatctl.yaml)")
	cmd.PersistentFlags().String("server", "", "gateway base URL")
	cmd.PersistentFlags().String("data-dir", "", "directory for the local preference store")

	cmd.AddCommand(NewSignupCommand(opts))
	cmd.AddCommand(NewLoginCommand(opts))
	cmd.AddCommand(NewLogoutCommand(opts))
	cmd.AddCommand(NewContactsCommand(opts))
	cmd.AddCommand(NewChatsCommand(opts))
	cmd.AddCommand(NewHistoryCommand(opts))
	cmd.AddCommand(NewSendCommand(opts))
	cmd.AddCommand(NewMarkReadCommand(opts))
	cmd.AddCommand(NewSoundCommand(opts))
	cmd.AddCommand(NewWatchCommand(opts))

	return cmd
}

// load resolves Settings from defaults, config file, CHATCTL_* env and flags
func (o *RootOptions) load(cmd *cobra.Command) error {
	v := o.viper

	v.SetDefault("server_url", "http://localhost:3000")
	v.SetDefault("data_dir", defaultDataDir())
	v.SetDefault("notifications", true)

	if o.ConfigFile != "" {
		v.SetConfigFile(o.ConfigFile)
	} else {
		v.SetConfigName("chatctl")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		if dir, err := os.UserConfigDir(); err == nil {
			v.AddConfigPath(filepath.Join(dir, "chatctl"))
		}
	}

	v.SetEnvPrefix("chatctl")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) || o.ConfigFile != "" {
			return fmt.Errorf("read config: %w", err)
		}
	}

	if err := v.BindPFlag("server_url", cmd.Flags().Lookup("server")); err != nil {
		return err
	}
	if err := v.BindPFlag("data_dir", cmd.Flags().Lookup("data-dir")); err != nil {
		return err
	}

	if err := v.Unmarshal(&o.Settings); err != nil {
		return fmt.Errorf("decode config: %w", err)
	}
	log.Debug().
		Str("server", o.Settings.ServerURL).
		Str("data_dir", o.Settings.DataDir).
		Msg("Client configuration loaded")
	return nil
}

func defaultDataDir() string {
	if dir, err := os.UserConfigDir(); err == nil {
		return filepath.Join(dir, "chatctl")
	}
	return ".chatctl"
}

func setupLogger(verbose bool) {
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	if verbose {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
		return
	}
	zerolog.SetGlobalLevel(zerolog.WarnLevel)
}

// isValidFormat checks if the format is one of the allowed values.
func isValidFormat(format string) bool {
	for _, f := range ValidFormats {
		if f == format {
			return true
		}
	}
	return false
}
