package main

import (
	"bufio"
	"compress/gzip"
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	jsoniter "github.com/json-iterator/go"
	"github.com/markuskont/go-dispatch"
	"github.com/prometheus/common/log"
	detection "github.com/prowlkit/go-detection-engine"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// runCmd represents the run command
var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Match a ruleset against an event stream",
	Long: `Run reads newline delimited JSON events from stdin or a file, thus any
stream can be piped into the command. For example:

	zcat ~/Logs/windows.json.gz | detection-engine run --rules-dir ./rules
`,
	Run: run,
}

type workerStats struct {
	ID      int
	Events  int
	Skipped int
	Matches int
}

func (s workerStats) String() string {
	return fmt.Sprintf("worker %d got %d events, %d gated, %d matched",
		s.ID, s.Events, s.Skipped, s.Matches)
}

type streamStats struct {
	start time.Time

	Events  int `json:"events"`
	Skipped int `json:"skipped"`
	Matches int `json:"matches"`
}

func (s streamStats) eps() float64 {
	return float64(s.Events) / time.Since(s.start).Seconds()
}

func (s streamStats) String() string {
	return fmt.Sprintf("got %d events %.2f eps, %d gated by prefilter, %d matches",
		s.Events, s.eps(), s.Skipped, s.Matches)
}

func copyBytes(in []byte) []byte {
	tx := make([]byte, len(in))
	copy(tx, in)
	return tx
}

func scanLines(input io.Reader, ctx context.Context) <-chan []byte {
	tx := make(chan []byte, 1)
	go func(ctx context.Context) {
		defer close(tx)
		scanner := bufio.NewScanner(input)
		scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	loop:
		for scanner.Scan() {
			select {
			case <-ctx.Done():
				break loop
			case tx <- copyBytes(scanner.Bytes()):
			}
		}
		if err := scanner.Err(); err != nil {
			logrus.Fatal(err)
		}
	}(ctx)
	return tx
}

func open(path string) (io.ReadCloser, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	if strings.HasSuffix(path, "gz") {
		return gzip.NewReader(file)
	}
	return file, nil
}

// goroutine
func logStats(workerCh <-chan workerStats, ctx context.Context) {
	tick := time.NewTicker(viper.GetDuration("stream.stats.interval"))
	defer tick.Stop()
	s := streamStats{start: time.Now()}
loop:
	for {
		select {
		case <-tick.C:
			logrus.Info(s)
		case w, ok := <-workerCh:
			if !ok {
				continue loop
			}
			s.Events += w.Events
			s.Skipped += w.Skipped
			s.Matches += w.Matches
		case <-ctx.Done():
			logrus.Info(s)
			break loop
		}
	}
}

func run(cmd *cobra.Command, args []string) {
	var input io.ReadCloser
	var err error
	if infile := viper.GetString("stream.input"); infile != "" {
		input, err = open(infile)
		if err != nil {
			log.Fatal(err)
		}
		defer input.Close()
	} else {
		input = os.Stdin
	}

	ruleset, err := detection.NewRuleset(rulesetConfig())
	if err != nil {
		logrus.Fatal(err)
	}
	logrus.Infof("Found %d files, %d ok, %d failed, %d unsupported",
		ruleset.Total, ruleset.Ok, ruleset.Failed, ruleset.Unsupported)
	for _, err := range ruleset.Errors {
		logrus.Warn(err)
	}

	gate := viper.GetBool("stream.prefilter") && ruleset.Prefilter.Enabled()
	if gate {
		logrus.Infof("Prefilter gate enabled with %d literal patterns",
			ruleset.Prefilter.Patterns())
	} else if viper.GetBool("stream.prefilter") {
		logrus.Info("Prefilter requested but ruleset is not fully anchored, gate disabled")
	}

	source := detection.Logsource{
		Product:  viper.GetString("stream.product"),
		Category: viper.GetString("stream.category"),
		Service:  viper.GetString("stream.service"),
	}
	scoped := source != detection.Logsource{}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	workers := viper.GetInt("stream.workers")
	workerStatCh := make(chan workerStats, workers)
	go logStats(workerStatCh, ctx)

	lines := scanLines(input, ctx)

	if err := dispatch.Run(dispatch.Config{
		Async:   false,
		Workers: workers,
		FeederFunc: func(tasks chan<- dispatch.Task, stop <-chan struct{}) {
			var wg sync.WaitGroup
			for i := 0; i < workers; i++ {
				wg.Add(1)
				tasks <- func(id, count int, ctx context.Context) error {
					defer wg.Done()
					s := workerStats{ID: id}
					report := time.NewTicker(1 * time.Second)
					defer report.Stop()
				loop:
					for {
						select {
						case l, ok := <-lines:
							if !ok {
								break loop
							}
							s.Events++
							if gate && !ruleset.Prefilter.Keep(l) {
								s.Skipped++
								continue loop
							}
							var d detection.DynamicMap
							if err := json.Unmarshal(l, &d); err != nil {
								logrus.Error(err)
								continue loop
							}
							var e detection.Event = d
							if scoped {
								e = detection.ScopedEvent{Event: d, Source: source}
							}
							if results, match := ruleset.EvalAll(e); match {
								s.Matches += len(results)
								if viper.GetBool("stream.emit.match") {
									b, err := json.Marshal(results)
									if err != nil {
										logrus.Error(err)
										continue loop
									}
									fmt.Println(string(b))
								}
							}
						case <-report.C:
							workerStatCh <- s
							s = workerStats{ID: id}
						}
					}
					workerStatCh <- s
					return nil
				}
			}
			wg.Wait()
		},
		ErrFunc: func(err error) bool {
			return true
		},
	}); err != nil {
		logrus.Fatal(err)
	}
}

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.PersistentFlags().Int("stream-workers", 4,
		`Number of workers for event matching.`)
	viper.BindPFlag("stream.workers",
		runCmd.PersistentFlags().Lookup("stream-workers"))

	runCmd.PersistentFlags().String("stream-input", "",
		`Input log file. Gzipped input is supported with a gz suffix. Empty value reads stdin.`)
	viper.BindPFlag("stream.input",
		runCmd.PersistentFlags().Lookup("stream-input"))

	runCmd.PersistentFlags().Bool("stream-prefilter", true,
		`Gate events through the literal prefilter before decode and match.`)
	viper.BindPFlag("stream.prefilter",
		runCmd.PersistentFlags().Lookup("stream-prefilter"))

	runCmd.PersistentFlags().Bool("stream-emit-match", true,
		`Print match results as JSON lines on stdout.`)
	viper.BindPFlag("stream.emit.match",
		runCmd.PersistentFlags().Lookup("stream-emit-match"))

	runCmd.PersistentFlags().String("stream-product", "",
		`Logsource product to attach to every consumed event.`)
	viper.BindPFlag("stream.product",
		runCmd.PersistentFlags().Lookup("stream-product"))

	runCmd.PersistentFlags().String("stream-category", "",
		`Logsource category to attach to every consumed event.`)
	viper.BindPFlag("stream.category",
		runCmd.PersistentFlags().Lookup("stream-category"))

	runCmd.PersistentFlags().String("stream-service", "",
		`Logsource service to attach to every consumed event.`)
	viper.BindPFlag("stream.service",
		runCmd.PersistentFlags().Lookup("stream-service"))

	runCmd.PersistentFlags().Duration("stream-stats-interval", 5*time.Second,
		`Interval between stats logging.`)
	viper.BindPFlag("stream.stats.interval",
		runCmd.PersistentFlags().Lookup("stream-stats-interval"))
}
