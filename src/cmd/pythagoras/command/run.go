package command

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/pythagoras-dev/pythagoras/src/config"
	"github.com/pythagoras-dev/pythagoras/src/pythagoras"
	vers "github.com/pythagoras-dev/pythagoras/src/version"
)

var (
	conf    *config.Config
	datadir *string
	version *bool
)

func init() {
	conf = config.NewDefaultConfig()

	cobra.OnInitialize(initConfig)

	// Base datadir
	datadir = rootCmd.PersistentFlags().StringP("datadir", "d", conf.DataDir, "Base configuration directory")

	// Service
	rootCmd.PersistentFlags().Bool("no-service", conf.NoService, "Disable the HTTP API service")
	rootCmd.PersistentFlags().StringP("service-listen", "s", conf.ServiceAddr, "HTTP service listen IP:Port")

	// Storage
	rootCmd.PersistentFlags().Bool("store", conf.Store, "Use badgerDB instead of in-mem DB")
	rootCmd.PersistentFlags().String("db", conf.DatabaseDir, "Database directory")
	rootCmd.PersistentFlags().Int("cache-size", conf.CacheSize, "Number of items in the in-memory value cache")

	// Portal tuning
	rootCmd.PersistentFlags().Float64("check-probability", conf.CheckProbability, "Sampling rate of write-once consistency checks")
	rootCmd.PersistentFlags().Int("max-attempts", conf.MaxAttempts, "Execution attempt ceiling per work item")
	rootCmd.PersistentFlags().Duration("base-delay", conf.BaseDelay, "Backoff unit between execution attempts")

	// Swarm tuning
	rootCmd.PersistentFlags().IntP("workers", "w", conf.Workers, "Number of background workers")
	rootCmd.PersistentFlags().Int("sample-min", conf.SampleMin, "Min request-queue sample size per polling round")
	rootCmd.PersistentFlags().Int("sample-max", conf.SampleMax, "Max request-queue sample size per polling round")
	rootCmd.PersistentFlags().Duration("poll-interval", conf.PollInterval, "Base idle sleep between polling rounds")

	// Various
	rootCmd.PersistentFlags().String("log", conf.LogLevel, "Log level (debug, info, warn, error, fatal, panic)")
	rootCmd.PersistentFlags().String("log-file", conf.LogFile, "Mirror info-and-above logs to a file")
	rootCmd.PersistentFlags().StringP("moniker", "m", conf.Moniker, "Friendly name of this node")

	// Version
	version = rootCmd.PersistentFlags().BoolP("version", "v", false, "Show version and exit")
}

func initConfig() {
	viper.AddConfigPath(*datadir)
	viper.SetConfigName("pythagoras")

	viper.BindPFlags(rootCmd.PersistentFlags())

	if err := viper.ReadInConfig(); err != nil {
		conf.Logger().Warn(err, ". Taking cli or default.")
	}

	if err := viper.Unmarshal(conf); err != nil {
		conf.Logger().Warn(err, ". Taking cli or default.")
	}

	conf.SetDataDir(conf.DataDir)
}

var rootCmd = &cobra.Command{
	Use:   "pythagoras",
	Short: "Pythagoras distributed result cache and swarm scheduler",
	Long:  "Pythagoras distributed result cache and swarm scheduler",
	RunE: func(cmd *cobra.Command, args []string) error {
		if *version {
			fmt.Println(vers.Version)

			return nil
		}

		conf.Logger().WithField("config", conf).Debug("RUN")

		engine := pythagoras.NewPythagoras(conf)

		if err := engine.Init(); err != nil {
			return fmt.Errorf("cannot initialize engine: %s", err)
		}

		return engine.Run()
	},
}

// Execute runs the root command and exits non-zero on error.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)

		os.Exit(1)
	}
}
