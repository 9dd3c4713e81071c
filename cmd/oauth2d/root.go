package main

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// envPrefix prefixes every environment variable read by oauth2d, e.g. OAUTH2D_LISTEN
const envPrefix = "OAUTH2D"

func newRootCmd(version string) *cobra.Command {
	return newCommandTree(viper.New(), version)
}

// newCommandTree builds the commands over v, which every command reads its settings from
func newCommandTree(v *viper.Viper, version string) *cobra.Command {
	root := &cobra.Command{
		Use:   "oauth2d",
		Short: "OAuth2 authorization server",
		Long: `oauth2d issues OAuth2 authorization codes, access tokens and refresh tokens
for registered clients. It supports the authorization code, implicit,
resource owner password, client credentials and refresh token grants.

Configuration is read from flags, OAUTH2D_* environment variables and an
optional YAML file given with --config, in that order of precedence.`,
		SilenceUsage: true,
		Version:      version,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return loadConfig(v)
		},
	}
	root.SetVersionTemplate(`{{printf "oauth2d version %s\n" .Version}}`)

	root.PersistentFlags().String("config", "", "path to a YAML config file")
	root.PersistentFlags().String("log-level", "info", "log level: debug, info, warn, error")
	root.PersistentFlags().String("log-format", "text", "log format: text or json")
	bindFlags(v, root.PersistentFlags())

	root.AddCommand(newServeCmd(v))
	root.AddCommand(newVersionCmd(version))
	return root
}

// bindFlags binds every flag in fs to the viper key of the same name
func bindFlags(v *viper.Viper, fs *pflag.FlagSet) {
	fs.VisitAll(func(f *pflag.Flag) {
		if err := v.BindPFlag(f.Name, f); err != nil {
			panic(fmt.Sprintf("bind flag %q: %v", f.Name, err))
		}
	})
}

// loadConfig wires environment variables and, when --config is set, the YAML file
func loadConfig(v *viper.Viper) error {
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	path := strings.TrimSpace(v.GetString("config"))
	if path == "" {
		return nil
	}
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	if err := v.ReadInConfig(); err != nil {
		return fmt.Errorf("read config file %q: %w", path, err)
	}
	return nil
}

// newLogger builds the process logger from --log-level and --log-format
func newLogger(v *viper.Viper) (*slog.Logger, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(v.GetString("log-level"))); err != nil {
		return nil, fmt.Errorf("invalid log level %q", v.GetString("log-level"))
	}
	opts := &slog.HandlerOptions{Level: level}

	switch format := strings.ToLower(v.GetString("log-format")); format {
	case "json":
		return slog.New(slog.NewJSONHandler(os.Stderr, opts)), nil
	case "text", "":
		return slog.New(slog.NewTextHandler(os.Stderr, opts)), nil
	default:
		return nil, fmt.Errorf("invalid log format %q", format)
	}
}

func newVersionCmd(version string) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version number of oauth2d",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "oauth2d version %s\n", version)
		},
	}
}
