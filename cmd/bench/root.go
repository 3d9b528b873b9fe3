package bench

import (
	"encoding/csv"
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	cmdUtil "github.com/ValentinKolb/sKV/cmd/util"
	"github.com/ValentinKolb/sKV/lib/db/engines/grove"
	"github.com/ValentinKolb/sKV/lib/logging"
	"github.com/ValentinKolb/sKV/lib/store"
	"github.com/ValentinKolb/sKV/lib/store/lstore"
	"github.com/ValentinKolb/sKV/lib/store/tstore"
	"github.com/puzpuzpuz/xsync/v3"
	gometrics "github.com/rcrowley/go-metrics"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	// BenchCmd runs the local engine benchmark
	BenchCmd = &cobra.Command{
		Use:     "bench",
		Short:   "Benchmark the local sKV engine",
		Long:    "Runs a local load generator against the transactional (or baseline) store and reports latency distributions per workload.",
		RunE:    run,
		PreRunE: processBenchConfig,
	}

	benchNumThreads  = 8
	benchKeySpread   = 1000
	benchOps         = 50000
	benchValueSizeB  = 64
	benchStoreKind   = "tstore"
	benchCSVPath     = ""
	benchSkip        = make([]string, 0)
)

func init() {
	// initialize viper
	cobra.OnInitialize(cmdUtil.InitEnvConfig)

	cmdUtil.SetupEngineFlags(BenchCmd)

	// add flags
	key := "threads"
	BenchCmd.PersistentFlags().Int(key, 8, cmdUtil.WrapString("Number of concurrent client goroutines"))
	key = "keys"
	BenchCmd.PersistentFlags().Int(key, 1000, cmdUtil.WrapString("How many different keys to use for the workloads"))
	key = "ops"
	BenchCmd.PersistentFlags().Int(key, 50000, cmdUtil.WrapString("Number of operations per workload"))
	key = "value-size"
	BenchCmd.PersistentFlags().Int(key, 64, cmdUtil.WrapString("Size of the values in bytes"))
	key = "store"
	BenchCmd.PersistentFlags().String(key, "tstore", cmdUtil.WrapString("Store implementation to benchmark (tstore, lstore)"))
	key = "skip"
	BenchCmd.PersistentFlags().String(key, "", cmdUtil.WrapString("Workloads to skip (comma separated - e.g. set,get)"))
	key = "csv"
	BenchCmd.Flags().String(key, "", cmdUtil.WrapString("Optional path to save benchmark results as CSV"))
}

func processBenchConfig(cmd *cobra.Command, _ []string) error {
	if err := cmdUtil.BindCommandFlags(cmd); err != nil {
		return err
	}

	// Read the configuration from the command line flags and environment variables
	benchNumThreads = viper.GetInt("threads")
	benchKeySpread = viper.GetInt("keys")
	benchOps = viper.GetInt("ops")
	benchValueSizeB = viper.GetInt("value-size")
	benchStoreKind = viper.GetString("store")
	benchCSVPath = viper.GetString("csv")
	benchSkip = strings.Split(viper.GetString("skip"), ",")

	return nil
}

func shouldSkip(name string) bool {
	for _, s := range benchSkip {
		if strings.TrimSpace(s) == name {
			return true
		}
	}
	return false
}

// result captures one workload's latency distribution.
type result struct {
	name  string
	ops   int64
	timer gometrics.Timer
}

func run(_ *cobra.Command, _ []string) error {
	logging.InitLoggers(viper.GetString("log-level"))

	fmt.Println("Benchmark tool for the local sKV engine")
	fmt.Println()
	fmt.Println("Configuration:")
	fmt.Printf("  %-12s: %s\n", "Store", benchStoreKind)
	fmt.Printf("  %-12s: %d\n", "Threads", benchNumThreads)
	fmt.Printf("  %-12s: %d\n", "Keys", benchKeySpread)
	fmt.Printf("  %-12s: %d\n", "Ops", benchOps)
	fmt.Printf("  %-12s: %d B\n", "Value size", benchValueSizeB)
	fmt.Println()

	// Build the store under test
	var s store.IStore
	switch benchStoreKind {
	case "tstore":
		ss := cmdUtil.NewShardSet(nil)
		defer ss.Close()
		s = tstore.NewTransactionalStore(ss, cmdUtil.NewRegistry(), 0)
	case "lstore":
		s = lstore.NewLocalStore(grove.NewStore)
	default:
		return fmt.Errorf("invalid store %s (expected tstore or lstore)", benchStoreKind)
	}
	defer s.Close()

	value := make([]byte, benchValueSizeB)
	for i := range value {
		value[i] = byte('a' + i%26)
	}

	var results []result

	// runWorkload fans the operation out over the configured goroutines and
	// tracks per-operation latency.
	runWorkload := func(name string, op func(i int) error) {
		if shouldSkip(name) {
			return
		}

		timer := gometrics.NewTimer()
		errors := xsync.NewCounter()

		var wg sync.WaitGroup
		wg.Add(benchNumThreads)
		perThread := benchOps / benchNumThreads

		start := time.Now()
		for t := 0; t < benchNumThreads; t++ {
			go func(t int) {
				defer wg.Done()
				for i := 0; i < perThread; i++ {
					opStart := time.Now()
					if err := op(t*perThread + i); err != nil {
						errors.Inc()
					}
					timer.UpdateSince(opStart)
				}
			}(t)
		}
		wg.Wait()
		elapsed := time.Since(start)

		results = append(results, result{name: name, ops: timer.Count(), timer: timer})
		printResult(name, timer, elapsed)

		if n := errors.Value(); n > 0 {
			fmt.Printf("  WARNING: %d operations failed\n", n)
		}
	}

	key := func(i int) string {
		return fmt.Sprintf("bench-key-%d", i%benchKeySpread)
	}

	fmt.Println("starting workloads...")
	fmt.Println()

	runWorkload("set", func(i int) error {
		return s.Set(key(i), value)
	})

	runWorkload("get", func(i int) error {
		_, _, err := s.Get(key(i))
		return err
	})

	runWorkload("mset", func(i int) error {
		return s.MSet(key(i), string(value), key(i+1), string(value))
	})

	runWorkload("mget", func(i int) error {
		_, err := s.MGet(key(i), key(i+1), key(i+2))
		return err
	})

	runWorkload("push-pop", func(i int) error {
		listKey := fmt.Sprintf("bench-list-%d", i%benchKeySpread)
		if _, err := s.RPush(listKey, value); err != nil {
			return err
		}
		_, _, err := s.LPop(listKey)
		return err
	})

	runWorkload("delete", func(i int) error {
		return s.Delete(key(i))
	})

	if benchCSVPath != "" {
		if err := writeCSV(benchCSVPath, results); err != nil {
			return fmt.Errorf("failed to write CSV: %w", err)
		}
		fmt.Printf("results saved to %s\n", benchCSVPath)
	}

	return nil
}

// printResult renders one workload's latency distribution.
func printResult(name string, timer gometrics.Timer, elapsed time.Duration) {
	ps := timer.Percentiles([]float64{0.5, 0.95, 0.99})
	opsPerSec := float64(timer.Count()) / elapsed.Seconds()

	fmt.Printf("%-10s %10.0f ops/s   p50 %8s   p95 %8s   p99 %8s\n",
		name,
		opsPerSec,
		time.Duration(ps[0]).Round(time.Microsecond),
		time.Duration(ps[1]).Round(time.Microsecond),
		time.Duration(ps[2]).Round(time.Microsecond),
	)
}

// writeCSV exports the collected results.
func writeCSV(path string, results []result) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	w := csv.NewWriter(f)
	defer w.Flush()

	if err := w.Write([]string{"workload", "ops", "mean_ns", "p50_ns", "p95_ns", "p99_ns", "max_ns"}); err != nil {
		return err
	}

	for _, r := range results {
		ps := r.timer.Percentiles([]float64{0.5, 0.95, 0.99})
		row := []string{
			r.name,
			strconv.FormatInt(r.ops, 10),
			strconv.FormatFloat(r.timer.Mean(), 'f', 0, 64),
			strconv.FormatFloat(ps[0], 'f', 0, 64),
			strconv.FormatFloat(ps[1], 'f', 0, 64),
			strconv.FormatFloat(ps[2], 'f', 0, 64),
			strconv.FormatInt(r.timer.Max(), 10),
		}
		if err := w.Write(row); err != nil {
			return err
		}
	}

	return nil
}
