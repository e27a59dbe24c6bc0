package proof

import (
	"encoding/csv"
	"fmt"
	"github.com/ValentinKolb/dProof/cmd/util"
	"github.com/ValentinKolb/dProof/lib/store"
	"github.com/ValentinKolb/dProof/rpc/common"
	"github.com/google/uuid"
	"github.com/rcrowley/go-metrics"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"log"
	"math"
	"os"
	"strconv"
	"strings"
	"testing"
	"time"
)

var (
	perfTestCmd = &cobra.Command{
		Use:   "perf",
		Short: "Performance testing tool for dProof servers",
		Long: util.WrapString("Runs a set of benchmarks against a dProof server. " +
			"Registrations can not be removed, every run adds documents to the registry shard."),
		RunE:    run,
		PreRunE: processPerfConfig,
	}
	perfHashPrefix = "__perf"
	perfNumThreads = 10
	perfHashSpread = 100
	perfSkip       = make([]string, 0)

	// latency timers of all benchmarks
	perfTimers = metrics.NewRegistry()
)

// perfPercentiles are the latency percentiles that are reported
var perfPercentiles = []float64{0.5, 0.95, 0.99}

// benchmark describes one load pattern
type benchmark struct {
	name string
	// prepare runs once before the timer starts and returns the operation
	prepare func() func(counter int) error
}

var benchmarks = []benchmark{
	{
		name: "register",
		prepare: func() func(int) error {
			return func(int) error {
				_, err := rpcStore.Register(newPerfHash("register"), "perf", "")
				return err
			}
		},
	},
	{
		name: "register-duplicate",
		prepare: func() func(int) error {
			getHash := registeredHashes("register-duplicate")
			return func(counter int) error {
				_, err := rpcStore.Register(getHash(counter), "perf", "")
				if store.IsDuplicate(err) {
					return nil
				}
				if err == nil {
					return fmt.Errorf("duplicate registration was accepted")
				}
				return err
			}
		},
	},
	{
		name: "verify",
		prepare: func() func(int) error {
			getHash := registeredHashes("verify")
			return func(counter int) error {
				proof, err := rpcStore.Verify(getHash(counter))
				if err == nil && !proof.Exists() {
					return fmt.Errorf("registered document was not found")
				}
				return err
			}
		},
	},
	{
		name: "verify-missing",
		prepare: func() func(int) error {
			return func(counter int) error {
				_, err := rpcStore.Verify(fmt.Sprintf("%s/missing-%d", perfHashPrefix, counter%perfHashSpread))
				return err
			}
		},
	},
	{
		name: "get",
		prepare: func() func(int) error {
			getHash := registeredHashes("get")
			return func(counter int) error {
				_, _, err := rpcStore.GetProof(getHash(counter))
				return err
			}
		},
	},
	{
		name: "stats",
		prepare: func() func(int) error {
			return func(int) error {
				_, err := rpcStore.GetStats()
				return err
			}
		},
	},
	{
		name: "mixed",
		prepare: func() func(int) error {
			getHash := registeredHashes("mixed")
			return func(counter int) error {
				var err error
				switch counter % 4 {
				case 0: // register
					_, err = rpcStore.Register(newPerfHash("mixed"), "perf", "")
				case 1: // verify
					_, err = rpcStore.Verify(getHash(counter))
				case 2: // get
					_, _, err = rpcStore.GetProof(getHash(counter))
				case 3: // stats
					_, err = rpcStore.GetStats()
				}
				return err
			}
		},
	},
}

func init() {
	// add flags
	key := "skip"
	perfTestCmd.Flags().String(key, "", util.WrapString("Benchmarks to skip (comma separated - e.g. register,verify)"))
	key = "threads"
	perfTestCmd.Flags().Int(key, 10, util.WrapString("Number of threads to use for the benchmark"))
	key = "hashes"
	perfTestCmd.Flags().Int(key, 100, util.WrapString("How many pre-registered documents to use for the read benchmarks"))
	key = "csv"
	perfTestCmd.Flags().String(key, "", util.WrapString("Optional path to save benchmark results as CSV"))
}

func processPerfConfig(cmd *cobra.Command, _ []string) error {
	if err := viper.BindPFlags(cmd.Flags()); err != nil {
		return err
	}

	// Read the configuration from the command line flags and environment variables
	perfHashSpread = max(viper.GetInt("hashes"), 1)
	perfNumThreads = max(viper.GetInt("threads"), 1)
	perfSkip = strings.Split(viper.GetString("skip"), ",")

	return nil
}

func run(_ *cobra.Command, _ []string) error {

	fmt.Println(util.Bold("Performance testing tool for dProof servers"))

	// Print configuration
	fmt.Println()
	fmt.Println("Configuration:")
	fmt.Println(util.GetClientConfig().String())
	fmt.Printf("Threads: %d\n", perfNumThreads)
	fmt.Println()

	fmt.Println("starting tests...")

	results := make(map[string]testing.BenchmarkResult)

	for _, bm := range benchmarks {
		if shouldSkip(bm.name) {
			results[bm.name] = testing.BenchmarkResult{}
			printResult(bm.name, results[bm.name])
			continue
		}

		op := bm.prepare()
		timer := metrics.GetOrRegisterTimer(bm.name, perfTimers)
		failed := metrics.GetOrRegisterCounter(bm.name+".errors", perfTimers)

		result := testing.Benchmark(func(b *testing.B) {
			b.SetParallelism(perfNumThreads)
			b.ResetTimer()

			b.RunParallel(func(pb *testing.PB) {
				counter := 0
				for pb.Next() {
					start := time.Now()
					err := op(counter)
					timer.UpdateSince(start)
					if err != nil {
						failed.Inc(1)
						log.Printf("(%s) - error: %v\n", bm.name, err)
					}
					counter++
				}
			})
		})

		results[bm.name] = result
		printResult(bm.name, result)
	}

	// Write results to csv is specified
	if csvPath := viper.GetString("csv"); csvPath != "" {
		fmt.Printf("\nExporting results to CSV: %s\n", csvPath)
		if err := writeResultsToCSV(csvPath, results, util.GetClientConfig()); err != nil {
			return fmt.Errorf("failed to export results to CSV: %v", err)
		}
		fmt.Println("Export complete")
	}

	return nil
}

// --------------------------------------------------------------------------
// Helper
// --------------------------------------------------------------------------

func shouldSkip(test string) bool {
	for _, skip := range perfSkip {
		if test == strings.TrimSpace(skip) {
			return true
		}
	}
	return false
}

// newPerfHash returns a document hash that was never registered before
func newPerfHash(prefix string) string {
	return fmt.Sprintf("%s-%s-%s", perfHashPrefix, prefix, uuid.NewString())
}

// registeredHashes registers perfHashSpread fresh documents and returns a getter (with wraparound)
func registeredHashes(prefix string) func(int) string {
	hashes := make([]string, perfHashSpread)
	for i := range hashes {
		hashes[i] = newPerfHash(prefix)
		if _, err := rpcStore.Register(hashes[i], "perf", ""); err != nil {
			log.Printf("(%s) - error registering document: %v\n", prefix, err)
		}
	}
	return func(i int) string {
		return hashes[i%len(hashes)]
	}
}

// latency returns the recorded latency percentiles of a benchmark
func latency(test string) []time.Duration {
	out := make([]time.Duration, len(perfPercentiles))
	timer, ok := perfTimers.Get(test).(metrics.Timer)
	if !ok {
		return out
	}
	for i, p := range timer.Percentiles(perfPercentiles) {
		out[i] = time.Duration(p)
	}
	return out
}

// errorCount returns how many operations of a benchmark failed
func errorCount(test string) int64 {
	counter, ok := perfTimers.Get(test + ".errors").(metrics.Counter)
	if !ok {
		return 0
	}
	return counter.Count()
}

// printResult prints the result of a benchmark test in a formatted way
func printResult(test string, result testing.BenchmarkResult) {
	if result.NsPerOp() == 0 {
		fmt.Printf("%-20s%s\n", test, util.Yellow("skipped"))
		return
	}

	nsPerOp := math.Max(float64(result.NsPerOp()), 1) // prevent division by zero
	opsPerSec := 1.0 / (nsPerOp / 1e9)
	p := latency(test)

	errs := util.Green("0 errors")
	if n := errorCount(test); n > 0 {
		errs = util.Red(fmt.Sprintf("%d errors", n))
	}

	fmt.Printf("%-20s%.0fns/op (%s/op)\t%.0f ops/sec\tp50=%s p95=%s p99=%s\t%s\n",
		test, nsPerOp, time.Duration(nsPerOp), opsPerSec, p[0], p[1], p[2], errs)
}

// writeResultsToCSV writes benchmark results to a CSV file
func writeResultsToCSV(csvPath string, results map[string]testing.BenchmarkResult, config *common.ClientConfig) error {
	file, err := os.Create(csvPath)
	if err != nil {
		return fmt.Errorf("failed to create CSV file: %v", err)
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	defer writer.Flush()

	// Write header
	header := []string{
		"Test", "NsPerOp", "DurationPerOp", "OpsPerSec", "P50", "P95", "P99", "Errors", "Skipped",
		"Endpoints", "TimeoutSec", "RetryCount", "ConnectionsPerEndpoint",
		"ShardID", "Serializer", "Transport",
		"Threads", "Hashes Count",
	}
	if err := writer.Write(header); err != nil {
		return fmt.Errorf("failed to write CSV header: %v", err)
	}

	// Write test results
	for test, result := range results {
		var nsPerOp float64
		var opsPerSec float64
		var skipped string

		if result.NsPerOp() == 0 {
			skipped = "true"
		} else {
			skipped = "false"
			nsPerOp = math.Max(float64(result.NsPerOp()), 1)
			opsPerSec = 1.0 / (nsPerOp / 1e9)
		}
		p := latency(test)

		row := []string{
			test,
			fmt.Sprintf("%.0f", nsPerOp),
			time.Duration(nsPerOp).String(),
			fmt.Sprintf("%.0f", opsPerSec),
			p[0].String(),
			p[1].String(),
			p[2].String(),
			strconv.FormatInt(errorCount(test), 10),
			skipped,
			strings.Join(config.Transport.Endpoints, ";"),
			strconv.Itoa(config.TimeoutSecond),
			strconv.Itoa(config.Transport.RetryCount),
			strconv.Itoa(config.Transport.ConnectionsPerEndpoint),
			strconv.FormatUint(util.GetShardID(), 10),
			viper.GetString("serializer"),
			viper.GetString("transport"),
			strconv.Itoa(perfNumThreads),
			strconv.Itoa(perfHashSpread),
		}

		if err := writer.Write(row); err != nil {
			return fmt.Errorf("failed to write row for test %s: %v", test, err)
		}
	}

	return nil
}
