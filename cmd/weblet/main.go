// Command weblet runs the weblet HTTP and cron core from a YAML
// topology manifest plus a handler-visible dotenv file.
package main

import (
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/anvil-systems/weblet/internal/concurrency"
	"github.com/anvil-systems/weblet/internal/config"
	"github.com/anvil-systems/weblet/internal/cron"
	"github.com/anvil-systems/weblet/internal/httpd"
	"github.com/anvil-systems/weblet/internal/obs"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var manifestPath, envPath, addrOverride string

	root := &cobra.Command{
		Use:   "weblet",
		Short: "weblet runs a concurrency/HTTP/cron systems framework",
	}
	root.PersistentFlags().StringVar(&manifestPath, "config", "weblet.yaml", "path to the YAML topology manifest")
	root.PersistentFlags().StringVar(&envPath, "env", ".env", "path to the handler-visible dotenv file")
	root.PersistentFlags().StringVar(&addrOverride, "addr", "", "override the manifest's listen address")

	root.AddCommand(newServeCmd(&manifestPath, &envPath, &addrOverride))
	root.AddCommand(newRoutesCmd(&manifestPath))
	root.AddCommand(newCronCmd(&manifestPath))
	return root
}

func newServeCmd(manifestPath, envPath, addrOverride *string) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP server and cron scheduler",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(*manifestPath, *envPath, *addrOverride)
		},
	}
}

func runServe(manifestPath, envPath, addrOverride string) error {
	manifest, err := config.LoadManifest(manifestPath)
	if err != nil {
		return err
	}
	snapshot, err := config.LoadSnapshot(envPath)
	if err != nil {
		return fmt.Errorf("loading dotenv %q: %w", envPath, err)
	}

	addr := manifest.Server.Addr
	if addrOverride != "" {
		addr = addrOverride
	}

	logger, err := obs.NewLogger(os.Getenv("WEBLET_DEV") == "1")
	if err != nil {
		return err
	}
	defer logger.Sync()
	sugar := logger.Sugar()

	metrics := obs.NewMetrics()

	router := httpd.NewRouter()
	registry := httpd.NewDynamicRegistry(func(err error) {
		sugar.Errorw("dynamic handler error", "error", err.Error())
	}, sugar)

	for _, rs := range manifest.Routes {
		id := registry.Register(rs.Module)
		handler := registry.Load(id, rs.Handler)
		router.Register(rs.Pattern, handler)
	}

	if manifest.Dynamic.WatchDir != "" {
		if err := registry.WatchDir(manifest.Dynamic.WatchDir); err != nil {
			sugar.Errorw("dynamic handler watch setup failed", "dir", manifest.Dynamic.WatchDir, "error", err.Error())
		}
	}

	static := &httpd.StaticServer{PublicDir: manifest.Static.Dir, SPA: manifest.Static.SPA}

	errorPages := httpd.ErrorPages{}
	for code, path := range manifest.ErrorPages {
		errorPages[code] = path
	}

	httpPool := concurrency.NewTaskPool(manifest.Server.Workers, manifest.Server.QueueCapacity,
		concurrency.WithLogger(sugar), concurrency.WithMetrics(metrics.PoolMetrics()))

	server := httpd.NewServer(addr, httpPool, router, static, errorPages, snapshot,
		httpd.WithServerLogger(sugar), httpd.WithServerMetrics(metrics.ServerMetrics()), httpd.WithRegistry(registry))

	scheduler := cron.NewCronScheduler(manifest.Server.Workers, manifest.Server.QueueCapacity,
		cron.WithSchedulerLogger(sugar), cron.WithSchedulerMetrics(metrics.CronMetrics()))
	for _, job := range manifest.Cron {
		job := job
		result := scheduler.Add(job.ID, job.Description, job.Expression, func() error {
			sugar.Infow("cron job fired", "job", job.ID)
			return nil
		})
		if result != cron.Added {
			sugar.Errorw("cron job registration failed", "job", job.ID)
		}
	}

	metricsMux := http.NewServeMux()
	metricsMux.Handle("/weblet/metrics", metrics.Handler())
	metricsMux.HandleFunc("/weblet/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(200)
		w.Write([]byte("ok"))
	})
	metricsServer := &http.Server{Addr: ":9090", Handler: metricsMux}
	go metricsServer.ListenAndServe()

	if err := server.Start(); err != nil {
		return err
	}
	scheduler.Start()
	sugar.Infow("weblet serving", "addr", addr)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	sugar.Infow("weblet shutting down")
	scheduler.Stop()
	server.Stop()
	metricsServer.Close()
	return nil
}

func newRoutesCmd(manifestPath *string) *cobra.Command {
	routesCmd := &cobra.Command{Use: "routes", Short: "Inspect the route manifest"}
	validateCmd := &cobra.Command{
		Use:   "validate",
		Short: "Validate the manifest's route table for duplicate patterns",
		RunE: func(cmd *cobra.Command, args []string) error {
			manifest, err := config.LoadManifest(*manifestPath)
			if err != nil {
				return err
			}
			seen := map[string]bool{}
			conflicts := 0
			for _, r := range manifest.Routes {
				if seen[r.Pattern] {
					fmt.Printf("duplicate pattern: %s\n", r.Pattern)
					conflicts++
				}
				seen[r.Pattern] = true
			}
			if conflicts == 0 {
				fmt.Println("no conflicts")
			}
			return nil
		},
	}
	routesCmd.AddCommand(validateCmd)
	return routesCmd
}

func newCronCmd(manifestPath *string) *cobra.Command {
	cronCmd := &cobra.Command{Use: "cron", Short: "Inspect the cron manifest"}
	listCmd := &cobra.Command{
		Use:   "list",
		Short: "Print each cron job's next five fire times",
		RunE: func(cmd *cobra.Command, args []string) error {
			manifest, err := config.LoadManifest(*manifestPath)
			if err != nil {
				return err
			}
			for _, job := range manifest.Cron {
				expr, err := cron.Parse(job.Expression)
				if err != nil {
					fmt.Printf("%s: invalid expression %q: %v\n", job.ID, job.Expression, err)
					continue
				}
				fmt.Printf("%s (%s): %s\n", job.ID, job.Description, job.Expression)
				from := time.Now().UTC()
				for i := 0; i < 5; i++ {
					next, err := expr.NextFire(from)
					if err != nil {
						fmt.Printf("  <unsatisfiable: %v>\n", err)
						break
					}
					fmt.Printf("  %s\n", next.Format(time.RFC3339))
					from = next.Add(time.Minute)
				}
			}
			return nil
		},
	}
	cronCmd.AddCommand(listCmd)
	return cronCmd
}
