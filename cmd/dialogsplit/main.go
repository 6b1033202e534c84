package main

import (
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/starrysea/dialogsplit/internal/config"
	"github.com/starrysea/dialogsplit/internal/daemon"
	"github.com/starrysea/dialogsplit/internal/ipc"
	"github.com/starrysea/dialogsplit/internal/logging"
	"github.com/starrysea/dialogsplit/internal/report"
	"github.com/starrysea/dialogsplit/internal/splitter"
	"github.com/starrysea/dialogsplit/internal/store"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	var configPath string

	root := &cobra.Command{
		Use:   "dialogsplit",
		Short: "Split chat exports into one file per day",
		Long: `dialogsplit watches an input directory for chat exports and rewrites
every modified export as one file per calendar day under the output
directory (<output>/<export name>/<YYYY>/<MM>/<YYYY-MM-DD>.txt).`,
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&configPath, "config", "", "Config file (default: ~/.dialogsplit/config.json)")

	load := func() (*config.Config, error) {
		path := configPath
		if path == "" {
			path = config.ConfigPath()
		}
		cfg, err := config.Load(path)
		if err != nil {
			return nil, fmt.Errorf("load config: %w", err)
		}
		return cfg, nil
	}

	root.AddCommand(startCmd(load))
	root.AddCommand(stopCmd(load))
	root.AddCommand(pingCmd(load))
	root.AddCommand(statusCmd(load))
	root.AddCommand(splitCmd(load))
	root.AddCommand(lookupCmd(load))
	root.AddCommand(putCmd(load))
	root.AddCommand(runsCmd(load))

	return root
}

type loader func() (*config.Config, error)

func startCmd(load loader) *cobra.Command {
	var (
		input  string
		output string
		scan   bool
	)

	cmd := &cobra.Command{
		Use:   "start",
		Short: "Start the dialogsplit daemon in the foreground",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := load()
			if err != nil {
				return err
			}
			if input != "" {
				cfg.InputDir = input
			}
			if output != "" {
				cfg.OutputDir = output
			}
			if cmd.Flags().Changed("scan") {
				cfg.ScanOnStart = scan
			}
			if err := absDirs(cfg); err != nil {
				return err
			}
			if err := cfg.Validate(); err != nil {
				return err
			}

			closer := logging.Setup(cfg)
			defer closer.Close()

			// Check if daemon is already running.
			client := ipc.NewClient(cfg.SocketPath)
			if err := client.Ping(); err == nil {
				fmt.Println("daemon is already running")
				return nil
			}

			// Remove stale socket file (from a prior crash).
			if _, err := os.Stat(cfg.SocketPath); err == nil {
				log.Println("removing stale socket file")
				_ = os.Remove(cfg.SocketPath)
			}

			// The server gets its store and daemon once both exist.
			ipcServer := ipc.NewServer(nil, nil, cfg.InputDir, cfg.OutputDir)
			d := daemon.New(cfg, ipcServer)
			ipcServer.SetDaemon(d)

			// Start blocks until signal, stop command, or error.
			return d.Start()
		},
	}

	cmd.Flags().StringVar(&input, "input", "", "Directory to watch (default: from config)")
	cmd.Flags().StringVar(&output, "output", "", "Directory to write day files to (default: from config)")
	cmd.Flags().BoolVar(&scan, "scan", false, "Split every file already in the input directory on start")

	return cmd
}

func stopCmd(load loader) *cobra.Command {
	return &cobra.Command{
		Use:   "stop",
		Short: "Stop the dialogsplit daemon",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := load()
			if err != nil {
				return err
			}

			client := ipc.NewClient(cfg.SocketPath)
			if err := client.RequestStop(); err != nil {
				return fmt.Errorf("stop daemon: %w", err)
			}

			fmt.Println("daemon stopping")
			return nil
		},
	}
}

func pingCmd(load loader) *cobra.Command {
	return &cobra.Command{
		Use:   "ping",
		Short: "Check if daemon is alive",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := load()
			if err != nil {
				return err
			}

			client := ipc.NewClient(cfg.SocketPath)
			if err := client.Ping(); err != nil {
				fmt.Println("daemon is not running")
				return err
			}

			fmt.Println("daemon is alive")
			return nil
		},
	}
}

func statusCmd(load loader) *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show daemon status",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := load()
			if err != nil {
				return err
			}

			client := ipc.NewClient(cfg.SocketPath)
			status, err := client.Status()
			if err != nil {
				return fmt.Errorf("daemon not running or unreachable: %w", err)
			}

			if jsonOutput {
				fmt.Println(report.FormatJSON(status))
			} else {
				fmt.Print(report.FormatStatus(status))
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")

	return cmd
}

func splitCmd(load loader) *cobra.Command {
	var (
		output   string
		noLedger bool
	)

	cmd := &cobra.Command{
		Use:   "split <file>...",
		Short: "Split chat exports once, without the daemon",
		Long: `Split each named chat export into day files, exactly as the daemon
would on a modification event. The export's base name becomes its
directory under the output root.

Runs are recorded in the split ledger unless --no-ledger is given.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := load()
			if err != nil {
				return err
			}
			if output != "" {
				cfg.OutputDir = output
			}
			if err := absDirs(cfg); err != nil {
				return err
			}
			if err := os.MkdirAll(cfg.OutputDir, 0o755); err != nil {
				return fmt.Errorf("create output dir: %w", err)
			}

			var ledger *store.Store
			if !noLedger {
				if err := cfg.EnsureDataDir(); err != nil {
					return fmt.Errorf("create data dir: %w", err)
				}
				ledger, err = store.New(cfg.DBPath)
				if err != nil {
					return fmt.Errorf("open store: %w", err)
				}
				defer ledger.Close()
			}

			w := splitter.NewWriter(cfg.OutputDir)
			var errs []error
			for _, arg := range args {
				path, err := filepath.Abs(arg)
				if err != nil {
					errs = append(errs, err)
					continue
				}
				name := filepath.Base(path)
				sp := splitter.New(filepath.Dir(path), w)

				started := time.Now()
				res, err := sp.Split(name)
				finished := time.Now()
				fmt.Print(report.FormatResult(res, err, finished.Sub(started)))
				if err != nil {
					errs = append(errs, fmt.Errorf("%s: %w", arg, err))
				}

				if ledger == nil {
					continue
				}
				run := store.SplitRun{
					Source:     name,
					Days:       len(res.Days),
					Failed:     res.Failed,
					Skipped:    res.Skipped,
					Locked:     res.Locked,
					StartedAt:  started,
					FinishedAt: finished,
				}
				if err != nil {
					run.Error = err.Error()
				}
				if err := ledger.InsertSplitRun(run); err != nil {
					log.Printf("ledger: %v", err)
				}
			}
			return errors.Join(errs...)
		},
	}

	cmd.Flags().StringVar(&output, "output", "", "Directory to write day files to (default: from config)")
	cmd.Flags().BoolVar(&noLedger, "no-ledger", false, "Do not record runs in the database")

	return cmd
}

func lookupCmd(load loader) *cobra.Command {
	var (
		dbPath     string
		jsonOutput bool
	)

	cmd := &cobra.Command{
		Use:   "lookup <keyword>",
		Short: "Look up the value stored for a keyword",
		Long: `Look up a keyword in the record store.

Reads the SQLite database directly -- the daemon does not need to be running.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := openStore(load, dbPath)
			if err != nil {
				return err
			}
			defer s.Close()

			rec, err := s.Lookup(args[0])
			if errors.Is(err, store.ErrNotFound) {
				return fmt.Errorf("no record for %q", args[0])
			}
			if err != nil {
				return fmt.Errorf("lookup: %w", err)
			}

			if jsonOutput {
				fmt.Println(report.FormatJSON(rec))
			} else {
				fmt.Print(report.FormatRecord(rec))
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&dbPath, "db", "", "Override database path (default: from config)")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")

	return cmd
}

func putCmd(load loader) *cobra.Command {
	var dbPath string

	cmd := &cobra.Command{
		Use:   "put <keyword> <value>",
		Short: "Store a value under a keyword",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := openStore(load, dbPath)
			if err != nil {
				return err
			}
			defer s.Close()

			if err := s.PutRecord(args[0], args[1]); err != nil {
				return fmt.Errorf("put: %w", err)
			}
			fmt.Printf("stored %s\n", args[0])
			return nil
		},
	}

	cmd.Flags().StringVar(&dbPath, "db", "", "Override database path (default: from config)")

	return cmd
}

func runsCmd(load loader) *cobra.Command {
	var (
		dbPath     string
		source     string
		limit      int
		jsonOutput bool
	)

	cmd := &cobra.Command{
		Use:   "runs",
		Short: "Show the split ledger",
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := openStore(load, dbPath)
			if err != nil {
				return err
			}
			defer s.Close()

			var runs []store.SplitRun
			if source != "" {
				last, err := s.LastSplitRun(source)
				if err != nil {
					return fmt.Errorf("last run: %w", err)
				}
				if last == nil {
					return fmt.Errorf("no runs recorded for %q", source)
				}
				runs = []store.SplitRun{*last}
			} else {
				runs, err = s.RecentSplitRuns(limit)
				if err != nil {
					return fmt.Errorf("recent runs: %w", err)
				}
			}

			if jsonOutput {
				fmt.Println(report.FormatJSON(runs))
			} else {
				fmt.Print(report.FormatRuns(runs))
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&dbPath, "db", "", "Override database path (default: from config)")
	cmd.Flags().StringVar(&source, "source", "", "Show only the latest run of this export")
	cmd.Flags().IntVar(&limit, "limit", 20, "Number of runs to show")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")

	return cmd
}

// openStore opens dbPath, or the configured database when it is empty.
func openStore(load loader, dbPath string) (*store.Store, error) {
	if dbPath == "" {
		cfg, err := load()
		if err != nil {
			return nil, err
		}
		if err := cfg.EnsureDataDir(); err != nil {
			return nil, fmt.Errorf("create data dir: %w", err)
		}
		dbPath = cfg.DBPath
	}
	s, err := store.New(dbPath)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	return s, nil
}

// absDirs makes the input and output directories absolute so that event
// names and log lines do not depend on the working directory.
func absDirs(cfg *config.Config) error {
	for _, p := range []*string{&cfg.InputDir, &cfg.OutputDir} {
		abs, err := filepath.Abs(*p)
		if err != nil {
			return fmt.Errorf("resolve %s: %w", *p, err)
		}
		*p = abs
	}
	return nil
}
