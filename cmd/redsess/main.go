package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	jsoniter "github.com/json-iterator/go"
	"github.com/spf13/cobra"
	"github.com/tidwall/gjson"
	"go.uber.org/zap"

	"github.com/amoylab/redsess/internal/common/cnst"
	"github.com/amoylab/redsess/internal/common/config"
	"github.com/amoylab/redsess/internal/server"
	"github.com/amoylab/redsess/internal/session"
	"github.com/amoylab/redsess/pkg/logger"
	"github.com/amoylab/redsess/pkg/metrics"
	"github.com/amoylab/redsess/pkg/trace"
	"github.com/amoylab/redsess/pkg/version"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

var (
	configPath string
	ttl        time.Duration
	once       bool
	field      string

	versionCmd = &cobra.Command{
		Use:   "version",
		Short: "Print the version number of redsess",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "redsess version %s\n", version.Get())
		},
	}

	testCmd = &cobra.Command{
		Use:   "test",
		Short: "Test the configuration file",
		RunE: func(cmd *cobra.Command, args []string) error {
			_, cfgPath, err := loadConfig()
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "configuration file %s test is successful\n", cfgPath)
			return nil
		},
	}

	serveCmd = &cobra.Command{
		Use:   "serve",
		Short: "Serve the session store over HTTP",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context())
		},
	}

	getCmd = &cobra.Command{
		Use:   "get <sid>",
		Short: "Print a session record",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(cmd, args[0], func(ctx context.Context, store session.Store) error {
				rec, err := store.Get(ctx, args[0])
				if err != nil {
					return err
				}
				if rec == nil {
					return fmt.Errorf("session %s not found", args[0])
				}
				data, err := json.MarshalIndent(rec, "", "  ")
				if err != nil {
					return err
				}
				if field != "" {
					value := gjson.GetBytes(data, field)
					if !value.Exists() {
						return fmt.Errorf("field %s not found in session %s", field, args[0])
					}
					data = []byte(value.Raw)
				}
				fmt.Fprintln(cmd.OutOrStdout(), string(data))
				return nil
			})
		},
	}

	setCmd = &cobra.Command{
		Use:   "set <sid> <json>",
		Short: "Store a session record",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			if !gjson.Valid(args[1]) || !gjson.Parse(args[1]).IsObject() {
				return fmt.Errorf("record must be a JSON object")
			}
			var rec session.Record
			if err := json.UnmarshalFromString(args[1], &rec); err != nil {
				return err
			}
			return withStore(cmd, args[0], func(ctx context.Context, store session.Store) error {
				if ttl > 0 {
					return store.SetWithTTL(ctx, args[0], rec, ttl)
				}
				return store.Set(ctx, args[0], rec)
			})
		},
	}

	destroyCmd = &cobra.Command{
		Use:   "destroy <sid>",
		Short: "Remove a session record",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(cmd, args[0], func(ctx context.Context, store session.Store) error {
				return store.Destroy(ctx, args[0])
			})
		},
	}

	watchCmd = &cobra.Command{
		Use:   "watch <sid>",
		Short: "Print every published change of a session",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(cmd, args[0], func(ctx context.Context, store session.Store) error {
				return watch(ctx, cmd, store, args[0])
			})
		},
	}

	rootCmd = &cobra.Command{
		Use:   "redsess",
		Short: "Redis backed session store",
		Long:  `redsess keeps session records in Redis and announces their changes to every subscribed instance`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context())
		},
		SilenceUsage: true,
	}
)

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "conf", "c", cnst.DefaultConfigFile, "path to configuration file")
	setCmd.Flags().DurationVar(&ttl, "ttl", 0, "expiration overriding the configured and cookie derived one")
	watchCmd.Flags().BoolVar(&once, "once", false, "exit after the first change")
	getCmd.Flags().StringVar(&field, "field", "", "print only the value at this path, e.g. cookie.maxAge")

	rootCmd.AddCommand(versionCmd, testCmd, serveCmd, getCmd, setCmd, destroyCmd, watchCmd)
}

func loadConfig() (*config.Config, string, error) {
	cfg, cfgPath, err := config.LoadConfig(configPath)
	if err != nil {
		return nil, cfgPath, fmt.Errorf("failed to load configuration %s: %w", cfgPath, err)
	}
	if err := config.Validate(cfg); err != nil {
		return nil, cfgPath, err
	}
	return cfg, cfgPath, nil
}

// withStore opens the configured store for a one-shot command. Only errors are
// logged so the command output stays clean.
func withStore(cmd *cobra.Command, sid string, fn func(ctx context.Context, store session.Store) error) error {
	if sid == "" {
		return cnst.ErrEmptySessionID
	}
	cfg, _, err := loadConfig()
	if err != nil {
		return err
	}
	cfg.Logger.Level = "error"
	lg, err := logger.NewLogger(&cfg.Logger)
	if err != nil {
		return err
	}
	defer lg.Sync()

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := session.NewStore(ctx, lg, &cfg.Session)
	if err != nil {
		return err
	}
	defer store.Close()

	return fn(ctx, store)
}

func watch(ctx context.Context, cmd *cobra.Command, store session.Store, sid string) error {
	type change struct {
		rec session.Record
		err error
	}
	changes := make(chan change, 16)
	handler := func(rec session.Record, err error) {
		select {
		case changes <- change{rec: rec, err: err}:
		case <-ctx.Done():
		}
	}

	var (
		id  session.SubscriptionID
		err error
	)
	if once {
		id, err = store.SubscribeOnce(ctx, sid, handler)
	} else {
		id, err = store.Subscribe(ctx, sid, handler)
	}
	if err != nil {
		return err
	}
	defer func() { _ = store.Unsubscribe(context.Background(), sid, id) }()

	out := cmd.OutOrStdout()
	for {
		select {
		case c := <-changes:
			if c.err != nil {
				fmt.Fprintf(cmd.ErrOrStderr(), "error: %v\n", c.err)
			} else {
				data, err := json.Marshal(c.rec)
				if err != nil {
					return err
				}
				fmt.Fprintln(out, string(data))
			}
			if once {
				return nil
			}
		case <-ctx.Done():
			return nil
		}
	}
}

func run(parent context.Context) error {
	cfg, cfgPath, err := loadConfig()
	if err != nil {
		return err
	}

	lg, err := logger.NewLogger(&cfg.Logger)
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	defer lg.Sync()

	lg.Info("Starting redsess",
		zap.String("version", version.Get()),
		zap.String("config", cfgPath))

	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := trace.InitTracing(ctx, &cfg.Tracing, lg)
	if err != nil {
		return fmt.Errorf("failed to initialize tracing: %w", err)
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
		defer cancel()
		if err := shutdownTracing(sctx); err != nil {
			lg.Warn("failed to shutdown tracing", zap.Error(err))
		}
	}()

	var m *metrics.Metrics
	if cfg.Metrics.Enabled {
		m = metrics.New(cfg.Metrics)
	}

	store, err := session.NewStore(ctx, lg, &cfg.Session, session.WithMetrics(m))
	if err != nil {
		return fmt.Errorf("failed to initialize session store: %w", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			lg.Error("failed to close session store", zap.Error(err))
		}
	}()

	go func() {
		for ev := range store.Events(ctx) {
			lg.Info("session backend event", zap.String("event", string(ev)))
		}
	}()

	srv := server.NewServer(lg, cfg, store, m)
	srv.Start()

	<-ctx.Done()
	lg.Info("Received shutdown signal")

	sctx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(sctx); err != nil {
		lg.Error("failed to shutdown server", zap.Error(err))
	}
	return nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
