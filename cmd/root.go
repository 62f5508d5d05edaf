package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Bastien2203/pi-medias/config"
	"github.com/Bastien2203/pi-medias/core/api"
	"github.com/Bastien2203/pi-medias/core/auth"
	"github.com/Bastien2203/pi-medias/logger"
	"github.com/Bastien2203/pi-medias/session"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
)

const userAgent = "pi-medias/1.0 (cli)"

var verbose bool

var rootCmd = &cobra.Command{
	Use:           "pimedias",
	Short:         "pi-medias is a command line client for a personal media service.",
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute executes the root command.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	defer logger.Sync()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		logger.Sync()
		stop()
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "log requests to stderr")
}

// app bundles what every command needs.
type app struct {
	cfg     *config.Config
	client  *api.Client
	store   session.Store
	metrics *prometheus.Registry // nil unless METRICS_ENABLED
}

func newApp(ctx context.Context) (*app, error) {
	cfg := config.Load()

	level := logger.LogLevel(cfg.LogLevel)
	if verbose {
		level = logger.DebugLevel
	}
	if err := logger.InitLogger(logger.Config{
		Level:      level,
		OutputPath: cfg.LogFile,
		MaxSize:    cfg.LogMaxSize,
		MaxBackups: cfg.LogMaxBackups,
		MaxAge:     cfg.LogMaxAge,
		Compress:   cfg.LogCompress,
	}); err != nil {
		return nil, fmt.Errorf("初始化日志失败: %w", err)
	}

	a := &app{cfg: cfg}
	opts := []api.Option{api.WithUserAgent(userAgent)}
	if cfg.MetricsEnabled {
		a.metrics = prometheus.NewRegistry()
		m, err := api.NewMetrics(a.metrics)
		if err != nil {
			return nil, err
		}
		opts = append(opts, api.WithMetrics(m))
	}
	a.client = api.NewFromConfig(cfg, opts...)

	store, err := session.Open(ctx, cfg)
	if err != nil {
		return nil, err
	}
	a.store = store
	return a, nil
}

func (a *app) Close() {
	if err := a.store.Close(); err != nil {
		logger.Warn("[cmd] 关闭会话存储失败", logger.ErrorField(err))
	}
}

// token returns the stored session token. An expired token is destroyed
// and reported as a missing session.
func (a *app) token(ctx context.Context) (string, error) {
	token, err := a.store.Load(ctx)
	if errors.Is(err, session.ErrNoSession) {
		return "", errors.New("not logged in, run `pimedias login` first")
	}
	if err != nil {
		return "", err
	}
	if auth.Expired(token, time.Now()) {
		logger.Info("[cmd] 会话已过期")
		if err := a.store.Clear(ctx); err != nil {
			return "", err
		}
		return "", errors.New("session expired, run `pimedias login` again")
	}
	return token, nil
}

// checkSession destroys the stored session when the service rejected it.
func (a *app) checkSession(ctx context.Context, err error) error {
	if err == nil || !api.SessionRejected(err) {
		return err
	}
	var authzErr *api.AuthorizationError
	if errors.As(err, &authzErr) && (authzErr.NotFound() || authzErr.Forbidden()) {
		return err
	}
	if clearErr := a.store.Clear(ctx); clearErr != nil {
		logger.Warn("[cmd] 清除会话失败", logger.ErrorField(clearErr))
	}
	return fmt.Errorf("%w (session cleared, log in again)", err)
}

// withApp wraps a command body with setup and teardown.
func withApp(run func(ctx context.Context, a *app, args []string) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		a, err := newApp(ctx)
		if err != nil {
			return err
		}
		defer a.Close()
		return run(ctx, a, args)
	}
}
