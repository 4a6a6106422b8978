package main

import (
	detection "github.com/prowlkit/go-detection-engine"
	glob "github.com/ryanuber/go-glob"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// parseCmd represents the parse command
var parseCmd = &cobra.Command{
	Use:   "parse",
	Short: "Lint rule directories without consuming any events",
	Long: `Parse walks the configured rule directories, compiles every rule it
finds and reports per-rule load errors. Use it to validate a ruleset before
deploying it against a live stream.`,
	Run: parse,
}

func parse(cmd *cobra.Command, args []string) {
	ruleset, err := detection.NewRuleset(rulesetConfig())
	if err != nil {
		logrus.Fatal(err)
	}
	for _, e := range ruleset.Errors {
		logrus.Warn(e)
	}
	filter := viper.GetString("parse.filter")
	for _, rule := range ruleset.Rules {
		if filter != "" &&
			!glob.Glob(filter, rule.Rule.Title) &&
			!glob.Glob(filter, rule.Rule.ID) {
			continue
		}
		logrus.WithFields(logrus.Fields{
			"id":         rule.Rule.ID,
			"title":      rule.Rule.Title,
			"level":      rule.Rule.Level,
			"selections": len(rule.Selections()),
			"condition":  rule.Condition(),
		}).Info("rule ok")
	}
	logrus.Infof("Found %d files, %d ok, %d failed, %d unsupported",
		ruleset.Total, ruleset.Ok, ruleset.Failed, ruleset.Unsupported)
}

func init() {
	rootCmd.AddCommand(parseCmd)

	parseCmd.PersistentFlags().String("parse-filter", "",
		`Glob pattern for filtering listed rules by title or id. Supports * wildcards.`)
	viper.BindPFlag("parse.filter",
		parseCmd.PersistentFlags().Lookup("parse-filter"))
}
