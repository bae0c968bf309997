package main

import (
	"context"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/kubusdb/kubus"
	"github.com/kubusdb/kubus/pkg/constants"
	"github.com/kubusdb/kubus/pkg/logger"
)

const (
	flagURL         = "url"
	flagName        = "name"
	flagViewsFolder = "views-folder"
	flagViewsSuffix = "views-suffix"
	flagLogLevel    = "log-level"
	flagTimeout     = "timeout"
)

// cli carries the configuration of one command tree.
type cli struct {
	v *viper.Viper
}

// NewRootCmd builds the kubus command tree. Every flag can also be set as
// KUBUS_<FLAG> in the environment or in .env / .env.local.
func NewRootCmd() *cobra.Command {
	c := &cli{v: viper.New()}

	root := &cobra.Command{
		Use:   "kubus",
		Short: "CouchDB design document tooling",
		Long: `kubus keeps the design documents of a CouchDB database in step with
local view definitions and reads documents for inspection.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			c.initConfig()
			return c.v.BindPFlags(cmd.Flags())
		},
	}

	root.PersistentFlags().String(flagURL, "http://localhost:5984", "CouchDB server url, credentials included")
	root.PersistentFlags().String(flagName, "", "database name")
	root.PersistentFlags().String(flagViewsFolder, constants.DefaultViewsFolder, "folder holding view definition files")
	root.PersistentFlags().String(flagViewsSuffix, constants.DefaultViewsSuffix, "suffix of view definition files")
	root.PersistentFlags().String(flagLogLevel, "info", "log level (debug, info, warn, error)")
	root.PersistentFlags().Duration(flagTimeout, 30*time.Second, "overall timeout of the command")

	root.AddCommand(c.syncCmd(), c.getCmd(), c.viewsCmd())
	return root
}

func (c *cli) initConfig() {
	_ = godotenv.Load(".env")
	_ = godotenv.Load(".env.local")

	c.v.SetEnvPrefix("kubus")
	c.v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	c.v.AutomaticEnv()
}

func (c *cli) logger(cmd *cobra.Command) zerolog.Logger {
	level, err := zerolog.ParseLevel(c.v.GetString(flagLogLevel))
	if err != nil {
		level = zerolog.InfoLevel
	}
	data, err := logger.New().FromBuffer(cmd.ErrOrStderr()).Console().Level(level).Make()
	if err != nil {
		return logger.Default()
	}
	return data.Logger
}

func (c *cli) context(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	return context.WithTimeout(cmd.Context(), c.v.GetDuration(flagTimeout))
}

func (c *cli) options(cmd *cobra.Command) kubus.Options {
	log := c.logger(cmd)
	return kubus.Options{
		URL:         c.v.GetString(flagURL),
		Name:        c.v.GetString(flagName),
		ViewsFolder: c.v.GetString(flagViewsFolder),
		ViewsSuffix: c.v.GetString(flagViewsSuffix),
		Logger:      &log,
	}
}
