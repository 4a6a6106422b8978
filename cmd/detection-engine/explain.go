package main

import (
	"fmt"
	"io/ioutil"
	"os"

	detection "github.com/prowlkit/go-detection-engine"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// explainCmd represents the explain command
var explainCmd = &cobra.Command{
	Use:   "explain",
	Short: "Explain how a single rule evaluates one event",
	Long: `Explain loads the ruleset, decodes one JSON event from stdin or a file
and reports the per-selection truth values of a chosen rule against it. Useful
when a rule silently stops matching and the condition is non-trivial.

	detection-engine explain --explain-rule 52a80c2c --explain-input event.json
`,
	Run: explain,
}

func explain(cmd *cobra.Command, args []string) {
	ruleID := viper.GetString("explain.rule")
	if ruleID == "" {
		logrus.Fatal("missing rule id, see --explain-rule")
	}
	var raw []byte
	var err error
	if infile := viper.GetString("explain.input"); infile != "" {
		raw, err = ioutil.ReadFile(infile)
	} else {
		raw, err = ioutil.ReadAll(os.Stdin)
	}
	if err != nil {
		logrus.Fatal(err)
	}

	ruleset, err := detection.NewRuleset(rulesetConfig())
	if err != nil {
		logrus.Fatal(err)
	}

	var d detection.DynamicMap
	if err := json.Unmarshal(raw, &d); err != nil {
		logrus.Fatal(err)
	}
	var e detection.Event = d
	source := detection.Logsource{
		Product:  viper.GetString("explain.product"),
		Category: viper.GetString("explain.category"),
		Service:  viper.GetString("explain.service"),
	}
	if (source != detection.Logsource{}) {
		e = detection.ScopedEvent{Event: d, Source: source}
	}

	report, ok := ruleset.ExplainMatch(ruleID, e)
	if !ok {
		logrus.Fatalf("no loaded rule with id %s", ruleID)
	}
	b, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		logrus.Fatal(err)
	}
	fmt.Println(string(b))
}

func init() {
	rootCmd.AddCommand(explainCmd)

	explainCmd.PersistentFlags().String("explain-rule", "",
		`Rule id to explain.`)
	viper.BindPFlag("explain.rule",
		explainCmd.PersistentFlags().Lookup("explain-rule"))

	explainCmd.PersistentFlags().String("explain-input", "",
		`JSON event file. Empty value reads stdin.`)
	viper.BindPFlag("explain.input",
		explainCmd.PersistentFlags().Lookup("explain-input"))

	explainCmd.PersistentFlags().String("explain-product", "",
		`Logsource product to attach to the event.`)
	viper.BindPFlag("explain.product",
		explainCmd.PersistentFlags().Lookup("explain-product"))

	explainCmd.PersistentFlags().String("explain-category", "",
		`Logsource category to attach to the event.`)
	viper.BindPFlag("explain.category",
		explainCmd.PersistentFlags().Lookup("explain-category"))

	explainCmd.PersistentFlags().String("explain-service", "",
		`Logsource service to attach to the event.`)
	viper.BindPFlag("explain.service",
		explainCmd.PersistentFlags().Lookup("explain-service"))
}
