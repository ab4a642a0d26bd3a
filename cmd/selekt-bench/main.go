// Command selekt-bench hammers a Pool with concurrent readers and writers
// and prints occupancy/throughput stats.
package main

import (
	"fmt"
	"io"
	"math/rand"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/selekt/selekt"
	"github.com/selekt/selekt/conn"
	"github.com/selekt/selekt/session"
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	var logFile string
	var logLevel string
	var configFile string

	root := &cobra.Command{
		Use:   "selekt-bench",
		Short: "Benchmark and stats harness for a Selekt connection pool",
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if err := loadConfig(configFile); err != nil {
				return err
			}
			return configureLogging(logFile, logLevel)
		},
	}
	root.PersistentFlags().StringVar(&logFile, "log-file", "", "write logs to this file (rotated via lumberjack), in addition to stderr")
	root.PersistentFlags().StringVar(&logLevel, "log-level", "info", "log level: debug, info, warn, error")
	root.PersistentFlags().StringVar(&configFile, "config", "", "optional YAML/TOML/JSON config file providing defaults for any flag below")

	root.AddCommand(newRunCommand(), newStatsCommand())
	return root
}

// loadConfig reads path (when set) into the global viper instance, or
// leaves it searching ./selekt-bench.{yaml,toml,json} otherwise, so a
// config file can supply defaults (dsn, readers, writers, ...) without
// every flag being repeated on the command line. bindRunFlags below makes
// an explicit --flag on the command line win over a config value.
func loadConfig(path string) error {
	if path != "" {
		viper.SetConfigFile(path)
	} else {
		viper.SetConfigName("selekt-bench")
		viper.AddConfigPath(".")
	}
	viper.SetEnvPrefix("SELEKT_BENCH")
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok && path == "" {
			return nil
		}
		return fmt.Errorf("read config: %w", err)
	}
	return nil
}

// bindRunFlags lets loadConfig's viper values supply defaults for any of
// cmd's flags the caller did not pass explicitly.
func bindRunFlags(cmd *cobra.Command) {
	cmd.Flags().VisitAll(func(f *pflag.Flag) {
		if !f.Changed && viper.IsSet(f.Name) {
			_ = cmd.Flags().Set(f.Name, viper.GetString(f.Name))
		}
	})
}

// configureLogging wires zerolog's global logger to stderr plus, when
// logFile is set, a size/age-rotated file via lumberjack.
func configureLogging(logFile, level string) error {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil {
		return fmt.Errorf("invalid --log-level %q: %w", level, err)
	}

	writers := []io.Writer{zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen}}
	if logFile != "" {
		writers = append(writers, &lumberjack.Logger{
			Filename:   logFile,
			MaxSize:    50, // megabytes
			MaxBackups: 3,
			MaxAge:     28, // days
			Compress:   true,
		})
	}

	log.Logger = zerolog.New(zerolog.MultiLevelWriter(writers...)).
		Level(lvl).
		With().Timestamp().Logger()
	return nil
}

func newRunCommand() *cobra.Command {
	var (
		dsn        string
		readers    int
		writers    int
		duration   time.Duration
		statPeriod time.Duration
	)

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Open a pool and drive it with concurrent readers/writers for a fixed duration",
		RunE: func(cmd *cobra.Command, _ []string) error {
			bindRunFlags(cmd)
			return runBenchmark(dsn, readers, writers, duration, statPeriod)
		},
	}
	cmd.Flags().StringVar(&dsn, "dsn", "jdbc:selekt:/tmp/selekt-bench.db?poolSize=8", "connection URL (jdbc:selekt:<path>?prop=value)")
	cmd.Flags().IntVar(&readers, "readers", 4, "number of concurrent reader goroutines")
	cmd.Flags().IntVar(&writers, "writers", 1, "number of concurrent writer goroutines (serialized by the pool's single writer slot)")
	cmd.Flags().DurationVar(&duration, "duration", 10*time.Second, "how long to run the benchmark")
	cmd.Flags().DurationVar(&statPeriod, "stat-period", 2*time.Second, "how often to log pool occupancy while running")
	return cmd
}

const schemaSQL = "CREATE TABLE IF NOT EXISTS bench (id INTEGER PRIMARY KEY, value TEXT)"

func runBenchmark(dsn string, readers, writers int, duration, statPeriod time.Duration) error {
	db, err := selekt.Open(dsn)
	if err != nil {
		return fmt.Errorf("open %q: %w", dsn, err)
	}
	defer db.Close()

	stopReaper := db.StartIdleReaper(30_000)
	defer stopReaper()

	setup := db.NewSession()
	if _, err := setup.Execute(true, schemaSQL, func(c *conn.Connection) (any, error) {
		return nil, c.ExecuteSQL(schemaSQL, nil)
	}); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}

	deadline := time.Now().Add(duration)
	var reads, writes, errs int64
	var wg sync.WaitGroup

	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			runWriter(db.NewSession(), deadline, &writes, &errs, n)
		}(i)
	}
	for i := 0; i < readers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			runReader(db.NewSession(), deadline, &reads, &errs)
		}()
	}

	stopStats := logStatsPeriodically(db, statPeriod, deadline)
	wg.Wait()
	stopStats()

	log.Info().
		Int64("reads", atomic.LoadInt64(&reads)).
		Int64("writes", atomic.LoadInt64(&writes)).
		Int64("errors", atomic.LoadInt64(&errs)).
		Dur("duration", duration).
		Msg("selekt-bench: run complete")
	return nil
}

// runWriter drives one goroutine's worth of BEGIN IMMEDIATE / INSERT / COMMIT
// cycles against the writer slot until deadline, exercising the Pool's
// single-writer serialization.
func runWriter(s *session.Session, deadline time.Time, writes, errs *int64, n int) {
	for time.Now().Before(deadline) {
		if err := writeOnce(s, n); err != nil {
			atomic.AddInt64(errs, 1)
			continue
		}
		atomic.AddInt64(writes, 1)
	}
}

func writeOnce(s *session.Session, n int) error {
	if err := s.BeginImmediate(); err != nil {
		return err
	}
	value := fmt.Sprintf("w%d-%d", n, time.Now().UnixNano())
	_, execErr := s.Execute(true, "INSERT INTO bench (value) VALUES (?)", func(c *conn.Connection) (any, error) {
		return nil, c.ExecuteSQL("INSERT INTO bench (value) VALUES (?)", conn.Positional(value))
	})
	if execErr == nil {
		execErr = s.SetSuccessful()
	}
	if endErr := s.End(); execErr == nil {
		execErr = endErr
	}
	return execErr
}

// runReader drives one goroutine's worth of concurrent SELECTs against the
// reader pool until deadline.
func runReader(s *session.Session, deadline time.Time, reads, errs *int64) {
	for time.Now().Before(deadline) {
		_, err := s.Execute(false, "SELECT COUNT(*) FROM bench", func(c *conn.Connection) (any, error) {
			n, err := c.ExecuteForLong("SELECT COUNT(*) FROM bench", nil)
			return n, err
		})
		if err != nil {
			atomic.AddInt64(errs, 1)
			continue
		}
		atomic.AddInt64(reads, 1)
		time.Sleep(time.Duration(rand.Intn(5)) * time.Millisecond)
	}
}

func logStatsPeriodically(db *selekt.DB, period time.Duration, deadline time.Time) (stop func()) {
	stopCh := make(chan struct{})
	go func() {
		ticker := time.NewTicker(period)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if time.Now().After(deadline) {
					return
				}
				s := db.Stats()
				log.Info().
					Int("lent", s.Lent).Int("idle", s.Idle).
					Int("waitingReaders", s.WaitingReaders).Int("waitingWriters", s.WaitingWriters).
					Msg("selekt-bench: pool occupancy")
			case <-stopCh:
				return
			}
		}
	}()
	return func() { close(stopCh) }
}

func newStatsCommand() *cobra.Command {
	var dsn string
	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Open a pool, print its initial occupancy snapshot, and exit",
		RunE: func(cmd *cobra.Command, _ []string) error {
			db, err := selekt.Open(dsn)
			if err != nil {
				return fmt.Errorf("open %q: %w", dsn, err)
			}
			defer db.Close()
			s := db.Stats()
			fmt.Printf("lent=%d idle=%d waitingReaders=%d waitingWriters=%d\n", s.Lent, s.Idle, s.WaitingReaders, s.WaitingWriters)
			return nil
		},
	}
	cmd.Flags().StringVar(&dsn, "dsn", "jdbc:selekt:/tmp/selekt-bench.db?poolSize=8", "connection URL (jdbc:selekt:<path>?prop=value)")
	return cmd
}
