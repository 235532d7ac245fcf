package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	transmission "github.com/jfxdev/go-transmission"
	"github.com/jfxdev/go-transmission/config"
	"github.com/jfxdev/go-transmission/middleware"
)

// version is overridden via -ldflags "-X main.version=...".
var version = "dev"

var (
	cfgFile string
	logger  = zap.NewNop()
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		stop()
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "transmission-cli",
	Short: "Command-line client for the Transmission RPC API",
	Long: `transmission-cli talks to a Transmission daemon over its RPC API.

Settings come from flags, TRANSMISSION_* environment variables (a .env file
is honored) and ~/.transmission-cli/config.yaml, in that order of precedence.`,
	SilenceUsage: true,
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = logger.Sync()
	},
}

func init() {
	// Assigned here rather than in the literal to avoid an initialization
	// cycle (rootCmd -> initViper -> rootCmd).
	rootCmd.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		if err := initViper(); err != nil {
			return err
		}

		l, err := newLogger(viper.GetBool("debug"))
		if err != nil {
			return fmt.Errorf("init logger: %w", err)
		}
		logger = l
		return nil
	}

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&cfgFile, "config", "", "config file (default ~/.transmission-cli/config.yaml)")
	flags.String("host", "", "daemon host (default localhost)")
	flags.Int("port", 0, "daemon port (default 9091)")
	flags.String("path", "", "RPC path (default /transmission/rpc)")
	flags.String("username", "", "RPC username")
	flags.String("password", "", "RPC password")
	flags.Duration("timeout", 0, "per-request timeout (default 30s)")
	flags.Float64("rate-limit", 0, "max requests per second, 0 disables")
	flags.Int("rate-burst", 0, "rate limiter burst (default 1)")
	flags.Bool("debug", false, "verbose logging")

	rootCmd.AddCommand(callCmd)
	rootCmd.AddCommand(sessionCmd)
	rootCmd.AddCommand(addCmd)
	rootCmd.AddCommand(watchCmd)
	rootCmd.AddCommand(versionCmd)
}

// initViper layers flags over environment over the YAML file, with the
// config package supplying defaults.
func initViper() error {
	defaults, err := config.Load()
	if err != nil {
		return err
	}

	viper.SetDefault("host", defaults.Host)
	viper.SetDefault("port", defaults.Port)
	viper.SetDefault("path", defaults.Path)
	viper.SetDefault("username", defaults.Username)
	viper.SetDefault("password", defaults.Password)
	viper.SetDefault("timeout", defaults.RequestTimeout)
	viper.SetDefault("rate-limit", defaults.RateLimit)
	viper.SetDefault("rate-burst", defaults.RateBurst)
	viper.SetDefault("debug", defaults.Debug)

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, _ := os.UserHomeDir()
		viper.AddConfigPath(home + "/.transmission-cli")
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
	}

	viper.SetEnvPrefix("TRANSMISSION")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if cfgFile != "" || !errors.As(err, &notFound) {
			return fmt.Errorf("read config: %w", err)
		}
	}

	return viper.BindPFlags(rootCmd.PersistentFlags())
}

func settings() config.Config {
	return config.Config{
		Host:           viper.GetString("host"),
		Port:           viper.GetInt("port"),
		Path:           viper.GetString("path"),
		Username:       viper.GetString("username"),
		Password:       viper.GetString("password"),
		RequestTimeout: viper.GetDuration("timeout"),
		RateLimit:      viper.GetFloat64("rate-limit"),
		RateBurst:      viper.GetInt("rate-burst"),
		Debug:          viper.GetBool("debug"),
	}
}

func newLogger(debug bool) (*zap.Logger, error) {
	if debug {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}

// newClient builds a client whose transport is wrapped, innermost first, by
// logging, rate limiting and (when metrics is non-nil) Prometheus metrics.
func newClient(cfg config.Config, metrics *middleware.Metrics) (*transmission.Client, error) {
	var transport transmission.Transport = transmission.NewHTTPTransport(cfg.RequestTimeout)
	transport = middleware.Logging(transport, logger)
	transport = middleware.RateLimit(transport, cfg.RateLimit, cfg.RateBurst)
	if metrics != nil {
		transport = metrics.Wrap(transport)
	}

	cc := cfg.ClientConfig()
	cc.Transport = transport
	cc.Logger = logger

	return transmission.New(cc)
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// ── call ─────────────────────────────────────────────────────────────────────

var callArgs string

var callCmd = &cobra.Command{
	Use:   "call <method> [key=value ...]",
	Short: "Perform a raw RPC call and print the decoded response",
	Long: `Call sends any RPC method with the given arguments.

  transmission-cli call torrent-get --args '{"fields":["id","name","percentDone"]}'
  transmission-cli call torrent-stop ids=[1,2]`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		arguments, err := parseArguments(callArgs, args[1:])
		if err != nil {
			return err
		}

		client, err := newClient(settings(), nil)
		if err != nil {
			return err
		}

		resp, err := client.Call(cmd.Context(), args[0], arguments)
		if err != nil {
			return err
		}
		return printJSON(cmd.OutOrStdout(), resp)
	},
}

func init() {
	callCmd.Flags().StringVar(&callArgs, "args", "", "arguments as a JSON object")
}

// ── session ──────────────────────────────────────────────────────────────────

var sessionCmd = &cobra.Command{
	Use:   "session",
	Short: "Print the daemon session settings",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newClient(settings(), nil)
		if err != nil {
			return err
		}

		session, err := client.SessionGet(cmd.Context())
		if err != nil {
			return err
		}
		return printJSON(cmd.OutOrStdout(), session)
	},
}

// ── add ──────────────────────────────────────────────────────────────────────

var (
	addDownloadDir string
	addPaused      bool
	addLabels      []string
)

var addCmd = &cobra.Command{
	Use:   "add <magnet>",
	Short: "Add a torrent from a magnet link",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newClient(settings(), nil)
		if err != nil {
			return err
		}

		added, err := client.AddMagnet(cmd.Context(), transmission.AddOptions{
			MagnetURI:   args[0],
			DownloadDir: addDownloadDir,
			Paused:      addPaused,
			Labels:      addLabels,
		})
		if err != nil {
			return err
		}

		if added.Duplicate {
			fmt.Fprintf(cmd.OutOrStdout(), "Already present: #%d %s (%s)\n", added.ID, added.Name, added.HashString)
			return nil
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Added: #%d %s (%s)\n", added.ID, added.Name, added.HashString)
		return nil
	},
}

func init() {
	addCmd.Flags().StringVar(&addDownloadDir, "download-dir", "", "directory to download into (daemon default when empty)")
	addCmd.Flags().BoolVar(&addPaused, "paused", false, "add the torrent paused")
	addCmd.Flags().StringSliceVar(&addLabels, "label", nil, "label to attach (repeatable)")
}

// ── watch ────────────────────────────────────────────────────────────────────

var (
	watchInterval    time.Duration
	watchMetricsAddr string
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Poll session statistics and export them as Prometheus metrics",
	Long: `Watch polls session-stats every --interval and serves the results,
together with RPC transport metrics, on --metrics-addr/metrics.`,
	Args: cobra.NoArgs,
	RunE: runWatch,
}

func init() {
	watchCmd.Flags().DurationVar(&watchInterval, "interval", 10*time.Second, "poll interval")
	watchCmd.Flags().StringVar(&watchMetricsAddr, "metrics-addr", ":9190", "listen address for /metrics; empty disables")
}

type statsGauges struct {
	torrents *prometheus.GaugeVec
	speed    *prometheus.GaugeVec
}

func newStatsGauges(reg prometheus.Registerer) *statsGauges {
	g := &statsGauges{
		torrents: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "transmission_torrents",
			Help: "Torrents known to the daemon by state.",
		}, []string{"state"}),
		speed: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "transmission_speed_bytes_per_second",
			Help: "Current transfer speed by direction.",
		}, []string{"direction"}),
	}
	reg.MustRegister(g.torrents, g.speed)
	return g
}

func (g *statsGauges) set(stats *transmission.SessionStats) {
	g.torrents.WithLabelValues("active").Set(float64(stats.ActiveTorrentCount))
	g.torrents.WithLabelValues("paused").Set(float64(stats.PausedTorrentCount))
	g.torrents.WithLabelValues("total").Set(float64(stats.TorrentCount))
	g.speed.WithLabelValues("down").Set(float64(stats.DownloadSpeed))
	g.speed.WithLabelValues("up").Set(float64(stats.UploadSpeed))
}

func runWatch(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	reg := prometheus.NewRegistry()
	metrics, err := middleware.NewMetrics(reg)
	if err != nil {
		return err
	}
	gauges := newStatsGauges(reg)

	client, err := newClient(settings(), metrics)
	if err != nil {
		return err
	}

	if watchMetricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
		srv := &http.Server{Addr: watchMetricsAddr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("metrics server stopped", zap.Error(err))
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()
		logger.Info("serving metrics", zap.String("addr", watchMetricsAddr))
	}

	ticker := time.NewTicker(watchInterval)
	defer ticker.Stop()

	for {
		stats, err := client.SessionStats(ctx)
		switch {
		case err == nil:
			gauges.set(stats)
			fmt.Fprintf(cmd.OutOrStdout(), "%s torrents=%d active=%d down=%dB/s up=%dB/s\n",
				time.Now().Format(time.RFC3339), stats.TorrentCount, stats.ActiveTorrentCount,
				stats.DownloadSpeed, stats.UploadSpeed)
		case ctx.Err() != nil:
			return nil
		default:
			logger.Warn("poll session-stats",
				zap.Error(err),
				zap.String("code", string(transmission.GetErrorCode(err))),
				zap.Bool("retryable", transmission.IsRetryableError(err)))
			if transmission.IsPermanentError(err) {
				return err
			}
		}

		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

// ── version ──────────────────────────────────────────────────────────────────

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the CLI version",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "transmission-cli %s\n", version)
	},
}
