package counter

import (
	"context"
	"encoding/csv"
	"fmt"
	"log"
	"math"
	"os"
	"slices"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/ValentinKolb/dLV/cmd/util"
	"github.com/ValentinKolb/dLV/rpc/common"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	perfTestCmd = &cobra.Command{
		Use:     "perf",
		Short:   "Performance testing tool for the counters of a dLV server",
		RunE:    runPerf,
		PreRunE: processPerfConfig,
	}
	perfNamePrefix  = "__perf"
	perfNumThreads  = 10
	perfNameSpread  = 100
	perfSkip        = make([]string, 0)
	perfTestOrder   = []string{"add", "add-hot", "get", "sync", "mixed"}
	perfTestsByName = map[string]func(b *testing.B){
		"add":     benchmarkAdd(false),
		"add-hot": benchmarkAdd(true),
		"get":     benchmarkRead("get"),
		"sync":    benchmarkRead("sync"),
		"mixed":   benchmarkMixed,
	}
)

func init() {
	// add flags
	key := "skip"
	perfTestCmd.Flags().String(key, "", util.WrapString("Benchmarks to skip (comma separated - e.g. add-hot,sync)"))
	key = "threads"
	perfTestCmd.Flags().Int(key, 10, util.WrapString("Number of threads to use for the benchmark"))
	key = "counters"
	perfTestCmd.Flags().Int(key, 100, util.WrapString("How many different counters to use for the tests"))
	key = "csv"
	perfTestCmd.Flags().String(key, "", util.WrapString("Optional path to save benchmark results as CSV"))
}

func processPerfConfig(cmd *cobra.Command, _ []string) error {
	if err := viper.BindPFlags(cmd.Flags()); err != nil {
		return err
	}

	perfNameSpread = max(1, viper.GetInt("counters"))
	perfNumThreads = max(1, viper.GetInt("threads"))
	perfSkip = strings.Split(viper.GetString("skip"), ",")

	return nil
}

func runPerf(_ *cobra.Command, _ []string) error {
	fmt.Println("Performance testing tool for dLV counters")

	// Print configuration
	fmt.Println()
	fmt.Println("Configuration:")
	fmt.Println(util.GetClientConfig().String())
	fmt.Printf("Threads: %d\n", perfNumThreads)
	fmt.Println()

	fmt.Println("starting tests...")

	results := make(map[string]testing.BenchmarkResult)
	for _, name := range perfTestOrder {
		if slices.Contains(perfSkip, name) {
			results[name] = testing.BenchmarkResult{}
			printResult(name, results[name])
			continue
		}
		results[name] = testing.Benchmark(perfTestsByName[name])
		printResult(name, results[name])
	}

	// Write results to csv if specified
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
// Benchmarks
// --------------------------------------------------------------------------

// benchmarkAdd adds to the counters of the test. With hot set all threads add to the same counter.
func benchmarkAdd(hot bool) func(b *testing.B) {
	return func(b *testing.B) {
		getName := names("add")
		if hot {
			getName = func(int) string { return perfNamePrefix + "-add-hot" }
		}

		b.SetParallelism(perfNumThreads)
		b.ResetTimer()

		b.RunParallel(func(pb *testing.PB) {
			counter := 0
			for pb.Next() {
				if _, err := rpcCounter.Add(context.Background(), getName(counter), 1); err != nil {
					log.Printf("(add) - error adding to counter: %v\n", err)
				}
				counter++
			}
		})
	}
}

// benchmarkRead reads the counters of the test with get or sync
func benchmarkRead(op string) func(b *testing.B) {
	return func(b *testing.B) {
		getName := names(op)

		// activate all counters first
		for i := 0; i < perfNameSpread; i++ {
			if _, err := rpcCounter.Add(context.Background(), getName(i), 1); err != nil {
				log.Printf("(%s) - error preparing counter: %v\n", op, err)
			}
		}

		b.SetParallelism(perfNumThreads)
		b.ResetTimer()

		b.RunParallel(func(pb *testing.PB) {
			counter := 0
			for pb.Next() {
				var err error
				if op == "sync" {
					_, err = rpcCounter.Sync(context.Background(), getName(counter))
				} else {
					_, err = rpcCounter.Get(context.Background(), getName(counter))
				}
				if err != nil {
					log.Printf("(%s) - error reading counter: %v\n", op, err)
				}
				counter++
			}
		})
	}
}

// benchmarkMixed alternates between add, get and sync
func benchmarkMixed(b *testing.B) {
	getName := names("mixed")

	b.SetParallelism(perfNumThreads)
	b.ResetTimer()

	b.RunParallel(func(pb *testing.PB) {
		counter := 0
		for pb.Next() {
			var err error
			name := getName(counter)
			switch counter % 3 {
			case 0:
				_, err = rpcCounter.Add(context.Background(), name, 1)
			case 1:
				_, err = rpcCounter.Get(context.Background(), name)
			case 2:
				_, err = rpcCounter.Sync(context.Background(), name)
			}
			if err != nil {
				log.Printf("(mixed) - error performing operation (%d): %v\n", counter%3, err)
			}
			counter++
		}
	})
}

// --------------------------------------------------------------------------
// Helper
// --------------------------------------------------------------------------

// names returns a function mapping an index to one of the counter names of a test
func names(prefix string) func(int) string {
	all := make([]string, perfNameSpread)
	for i := range all {
		all[i] = fmt.Sprintf("%s-%s-%d", perfNamePrefix, prefix, i)
	}
	return func(i int) string {
		return all[i%perfNameSpread]
	}
}

// printResult prints the result of a benchmark test in a formatted way
func printResult(test string, result testing.BenchmarkResult) {
	if result.NsPerOp() == 0 {
		fmt.Printf("%-20sskipped\n", test)
		return
	}

	nsPerOp := math.Max(float64(result.NsPerOp()), 1) // prevent division by zero
	opsPerSec := 1.0 / (nsPerOp / 1e9)

	fmt.Printf("%-20s%.0fns/op (%s/op)\t%.0f ops/sec\n", test, nsPerOp, time.Duration(nsPerOp), opsPerSec)
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

	header := []string{
		"Test", "NsPerOp", "DurationPerOp", "OpsPerSec", "Skipped",
		"Endpoints", "TimeoutSec", "RetryCount", "ConnectionsPerEndpoint",
		"ShardID", "Serializer", "Transport",
		"Threads", "Counters",
	}
	if err := writer.Write(header); err != nil {
		return fmt.Errorf("failed to write CSV header: %v", err)
	}

	for _, test := range perfTestOrder {
		result := results[test]
		var nsPerOp, opsPerSec float64
		skipped := "true"

		if result.NsPerOp() != 0 {
			skipped = "false"
			nsPerOp = math.Max(float64(result.NsPerOp()), 1)
			opsPerSec = 1.0 / (nsPerOp / 1e9)
		}

		row := []string{
			test,
			fmt.Sprintf("%.0f", nsPerOp),
			time.Duration(nsPerOp).String(),
			fmt.Sprintf("%.0f", opsPerSec),
			skipped,
			strings.Join(config.Transport.Endpoints, ";"),
			strconv.Itoa(config.TimeoutSecond),
			strconv.Itoa(config.Transport.RetryCount),
			strconv.Itoa(config.Transport.ConnectionsPerEndpoint),
			strconv.FormatUint(util.GetShardID(), 10),
			viper.GetString("serializer"),
			viper.GetString("transport"),
			strconv.Itoa(perfNumThreads),
			strconv.Itoa(perfNameSpread),
		}

		if err := writer.Write(row); err != nil {
			return fmt.Errorf("failed to write row for test %s: %v", test, err)
		}
	}

	return nil
}
