package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/ajitpratap0/gridfeed/internal/pipeline"
	"github.com/ajitpratap0/gridfeed/pkg/config"
	"github.com/ajitpratap0/gridfeed/pkg/connector/registry"
	"github.com/ajitpratap0/gridfeed/pkg/credentials"
	"github.com/ajitpratap0/gridfeed/pkg/logger"
	"github.com/ajitpratap0/gridfeed/pkg/metrics"
	"github.com/ajitpratap0/gridfeed/pkg/observability"
	"github.com/ajitpratap0/gridfeed/pkg/scheme"

	// Import all available connectors to register them
	_ "github.com/ajitpratap0/gridfeed/pkg/connector/destinations"
	_ "github.com/ajitpratap0/gridfeed/pkg/connector/sources"
)

var version = "0.1.0"

const pushTimeout = 10 * time.Second

func main() {
	// Load .env file if it exists
	_ = godotenv.Load() // Ignore error if .env doesn't exist

	if err := newRootCmd(viper.New()).Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// newRootCmd builds the command tree. Flags are bound to v, which also reads
// GRIDFEED_* environment variables.
func newRootCmd(v *viper.Viper) *cobra.Command {
	v.SetEnvPrefix("GRIDFEED")
	v.AutomaticEnv()

	root := &cobra.Command{
		Use:   "gridfeed",
		Short: "gridfeed - Infoblox Grid Manager network feed",
		Long: `gridfeed reads the networks of Infoblox Grid Manager appliances through the WAPI,
flattens their extensible attributes and options, and streams one event per network to
a sink such as the Splunk XML stream, JSON lines, an HTTP Event Collector or Kafka.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringP("config", "c", "gridfeed.yaml", "Path to the YAML configuration file")
	root.PersistentFlags().String("log-level", "", "Log level override (debug, info, warn, error)")
	_ = v.BindPFlag("config", root.PersistentFlags().Lookup("config"))
	_ = v.BindPFlag("log_level", root.PersistentFlags().Lookup("log-level"))

	root.AddCommand(
		newVersionCmd(),
		newListCmd(),
		newSchemeCmd(),
		newRunCmd(v),
		newCredentialsCmd(v),
	)
	return root
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(cmd *cobra.Command, args []string) {
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "gridfeed v%s\n", version)
			fmt.Fprintf(out, "Go version: %s\n", runtime.Version())
			fmt.Fprintf(out, "OS/Arch: %s/%s\n", runtime.GOOS, runtime.GOARCH)
		},
	}
}

func newListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List available connectors",
		Run: func(cmd *cobra.Command, args []string) {
			out := cmd.OutOrStdout()
			w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(out, "Available connectors:")
			for _, info := range registry.GetRegistry().Info() {
				fmt.Fprintf(w, "  %s\t%s\t%s\n", info.Type, info.Name, info.Description)
			}
			_ = w.Flush()
		},
	}
}

func newSchemeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "scheme",
		Short: "Print the input argument scheme as XML",
		RunE: func(cmd *cobra.Command, args []string) error {
			return scheme.GridManager().WriteXML(cmd.OutOrStdout())
		},
	}
}

func newRunCmd(v *viper.Viper) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run [input-name...]",
		Short: "Fetch every configured input, or the named ones, once or on an interval",
		Long: `Run fetches the networks of every configured input and writes them to the sink.

Without --interval a single pass is made, as a cron job or a host scheduler would
invoke it. With --interval the pass repeats until SIGINT or SIGTERM.

Example:
  gridfeed run --config gridfeed.yaml
  gridfeed run --interval 15m infoblox_gridmanager://corp`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runInputs(ctx, v, args)
		},
	}
	cmd.Flags().Duration("interval", 0, "Repeat the run at this interval until interrupted (0 runs once)")
	cmd.Flags().String("push-gateway", "", "Prometheus Pushgateway URL metrics are pushed to after the run")
	_ = v.BindPFlag("interval", cmd.Flags().Lookup("interval"))
	_ = v.BindPFlag("push_gateway", cmd.Flags().Lookup("push-gateway"))
	return cmd
}

func newCredentialsCmd(v *viper.Viper) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "credentials",
		Short: "Inspect and remove stored input passwords",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List stored credentials without their secrets",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(v)
			if err != nil {
				return err
			}
			store, err := credentials.OpenStore(cmd.Context(), cfg.Credentials, zap.NewNop())
			if err != nil {
				return err
			}
			defer store.Close()

			list, err := store.List(cmd.Context())
			if err != nil {
				return err
			}
			return printCredentials(cmd.OutOrStdout(), list)
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "delete <input-name>",
		Short: "Remove the stored password of an input",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			_, name, err := config.ParseInputName(args[0])
			if err != nil {
				return err
			}
			cfg, err := loadConfig(v)
			if err != nil {
				return err
			}
			store, err := credentials.OpenStore(cmd.Context(), cfg.Credentials, zap.NewNop())
			if err != nil {
				return err
			}
			defer store.Close()

			if err := credentials.NewManager(store, nil, nil).Forget(cmd.Context(), name); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Removed stored password of %s\n", args[0])
			return nil
		},
	})
	return cmd
}

func printCredentials(out io.Writer, list []credentials.Summary) error {
	if len(list) == 0 {
		_, err := fmt.Fprintln(out, "No stored credentials")
		return err
	}
	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "REALM\tUSERNAME\tCREATED")
	for _, c := range list {
		fmt.Fprintf(w, "%s\t%s\t%s\n", c.Realm, c.Username, c.CreatedAt.Format(time.RFC3339))
	}
	return w.Flush()
}

// loadConfig reads the configuration file and applies flag and environment
// overrides.
func loadConfig(v *viper.Viper) (*config.RunConfig, error) {
	cfg, err := config.LoadRunConfig(v.GetString("config"))
	if err != nil {
		return nil, err
	}
	if level := v.GetString("log_level"); level != "" {
		cfg.Logging.Level = level
	}
	if gateway := v.GetString("push_gateway"); gateway != "" {
		cfg.Metrics.PushGateway = gateway
	}
	if interval := v.GetDuration("interval"); interval > 0 {
		cfg.Interval = interval
	}
	return cfg, nil
}

// selectInputs keeps the named inputs, or all of them when names is empty
func selectInputs(cfg *config.RunConfig, names []string) (map[string]config.InputConfig, error) {
	if len(names) == 0 {
		return cfg.Inputs, nil
	}
	selected := make(map[string]config.InputConfig, len(names))
	for _, name := range names {
		in, ok := cfg.Inputs[name]
		if !ok {
			return nil, fmt.Errorf("input %q is not configured (known: %v)", name, cfg.InputNames())
		}
		selected[name] = in
	}
	return selected, nil
}

func runInputs(ctx context.Context, v *viper.Viper, names []string) error {
	cfg, err := loadConfig(v)
	if err != nil {
		return err
	}

	log, err := logger.New(cfg.Logging)
	if err != nil {
		return err
	}
	logger.Set(log)
	defer func() { _ = logger.Sync() }()

	shutdown, err := observability.InitTracing(cfg.Tracing, version)
	if err != nil {
		return err
	}
	defer func() {
		if err := shutdown(context.Background()); err != nil {
			log.Warn("Failed to flush traces", zap.Error(err))
		}
	}()

	store, err := credentials.OpenStore(ctx, cfg.Credentials, log)
	if err != nil {
		return err
	}
	defer store.Close()

	path := v.GetString("config")
	manager := credentials.NewManager(store, config.NewFileInputStore(path), log)
	runner := pipeline.NewRunner(manager, cfg.Sink, pipeline.WithLogger(log))
	defer pushMetrics(log, cfg.Metrics)

	for pass := 1; ; pass++ {
		inputs, err := selectInputs(cfg, names)
		if err != nil {
			return err
		}

		log.Info("Starting run", zap.Int("pass", pass), zap.Int("inputs", len(inputs)))
		runErr := runner.RunAll(ctx, inputs)
		if cfg.Interval <= 0 {
			return runErr
		}
		if runErr != nil {
			log.Warn("Run finished with failures", zap.Int("pass", pass), zap.Error(runErr))
		}

		select {
		case <-ctx.Done():
			log.Info("Stopping", zap.String("reason", ctx.Err().Error()))
			return nil
		case <-time.After(cfg.Interval):
		}

		// Passwords stored on the previous pass are now masked in the file
		reloaded, err := loadConfig(v)
		if err != nil {
			return err
		}
		cfg.Inputs = reloaded.Inputs
	}
}

func pushMetrics(log *zap.Logger, cfg config.MetricsConfig) {
	if cfg.PushGateway == "" {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), pushTimeout)
	defer cancel()
	if err := metrics.Default().Push(ctx, cfg.PushGateway, cfg.Job); err != nil {
		log.Warn("Failed to push metrics", zap.String("gateway", cfg.PushGateway), zap.Error(err))
	}
}
