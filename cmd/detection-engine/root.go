package main

import (
	"fmt"
	"os"

	homedir "github.com/mitchellh/go-homedir"
	detection "github.com/prowlkit/go-detection-engine"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	cfgFile string
	quiet   bool
	debug   bool
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "detection-engine",
	Short: "Match detection rules against structured event streams",
	Long: `detection-engine loads a directory tree of YAML detection rules and
evaluates structured events against them. Subcommands cover ruleset linting,
stream matching and single-event match explanation.`,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)
	cobra.OnInitialize(initLogging)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "",
		"config file (default is $HOME/.detection-engine.yaml)")

	rootCmd.PersistentFlags().BoolVarP(&quiet, "quiet", "q", false,
		"Quiet output. Suppress warnings and other stuff. Takes precedence over --debug.")
	rootCmd.PersistentFlags().BoolVarP(&debug, "debug", "d", false,
		"Debug mode. Enable trace logging.")

	rootCmd.PersistentFlags().StringSlice("rules-dir", []string{},
		"Directories that contain detection rules.")
	viper.BindPFlag("rules.dir", rootCmd.PersistentFlags().Lookup("rules-dir"))

	rootCmd.PersistentFlags().Bool("rules-case-sensitive", false,
		"Disable default case-insensitive text matching.")
	viper.BindPFlag("rules.case_sensitive", rootCmd.PersistentFlags().Lookup("rules-case-sensitive"))

	rootCmd.PersistentFlags().Bool("rules-strict-id", false,
		"Reject rules whose id does not parse as UUID.")
	viper.BindPFlag("rules.strict_id", rootCmd.PersistentFlags().Lookup("rules-strict-id"))
}

// initConfig reads in config file and ENV variables if set.
func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := homedir.Dir()
		if err != nil {
			fmt.Println(err)
			os.Exit(1)
		}
		viper.AddConfigPath(home)
		viper.SetConfigName(".detection-engine")
	}

	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err == nil {
		fmt.Println("Using config file:", viper.ConfigFileUsed())
	}
}

func initLogging() {
	log.SetFormatter(&log.TextFormatter{
		DisableColors: false,
		FullTimestamp: true,
	})
	if quiet {
		log.SetLevel(log.ErrorLevel)
	} else if debug {
		log.SetLevel(log.TraceLevel)
	}
}

func rulesetConfig() detection.Config {
	return detection.Config{
		Directory:     viper.GetStringSlice("rules.dir"),
		CaseSensitive: viper.GetBool("rules.case_sensitive"),
		StrictID:      viper.GetBool("rules.strict_id"),
	}
}
