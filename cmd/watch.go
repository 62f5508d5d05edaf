package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/Bastien2203/pi-medias/core/autoupload"
	"github.com/Bastien2203/pi-medias/logger"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
)

var watchSettle time.Duration

var watchCmd = &cobra.Command{
	Use:   "watch <dir>",
	Short: "Upload every new file that appears in a folder",
	Long: `Watch a folder and upload each new file once it has stopped changing.
Hidden files and .part files are skipped. Runs until interrupted or until the
service rejects the session.`,
	Args: cobra.ExactArgs(1),
	RunE: withApp(func(ctx context.Context, a *app, args []string) error {
		// fail early instead of on the first file
		if _, err := a.token(ctx); err != nil {
			return err
		}

		if a.metrics != nil {
			stop := serveMetrics(a)
			defer stop()
		}

		settle := watchSettle
		if settle <= 0 {
			settle = a.cfg.WatchSettle
		}
		w := autoupload.New(args[0], a.client, a.token,
			autoupload.WithSettle(settle),
			autoupload.WithResultHandler(func(r autoupload.Result) {
				if r.Err != nil {
					fmt.Printf("✗ %s: %v\n", r.Path, r.Err)
					return
				}
				fmt.Printf("✓ %s -> id %d\n", r.Path, r.Media.ID)
			}))

		fmt.Printf("Watching %s, press Ctrl+C to stop\n", args[0])
		return a.checkSession(ctx, w.Run(ctx))
	}),
}

// serveMetrics exposes the client metrics while watching.
func serveMetrics(a *app) func() {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(a.metrics, promhttp.HandlerOpts{}))
	srv := &http.Server{Addr: a.cfg.MetricsAddr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		logger.Info("[cmd/watch] metrics 监听", logger.String("addr", a.cfg.MetricsAddr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("[cmd/watch] metrics 服务失败", logger.ErrorField(err))
		}
	}()
	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	}
}

func init() {
	watchCmd.Flags().DurationVar(&watchSettle, "settle", 0, "quiet period before a file is uploaded, defaults to WATCH_SETTLE")
	rootCmd.AddCommand(watchCmd)
}
