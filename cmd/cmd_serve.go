package cmd

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"address-distance/internal/config"
	"address-distance/internal/excel"
	"address-distance/internal/jobs"
	"address-distance/internal/server"
	"address-distance/internal/store"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
)

var queueSize int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Starts the HTTP server",
	Long: `
Starts the HTTP server. Runs are queued and processed one at a time. When
DATABASE_URL is set finished runs are stored in PostgreSQL and listed under
/history; when OUTPUT_DIR is set each run is also written there as a workbook.
`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		return serve(ctx, config.Load(Version))
	},
}

func serve(ctx context.Context, cfg config.Config) error {
	var recorders jobs.Recorders
	var history server.History

	if cfg.DatabaseURL != "" {
		pool, err := store.Open(ctx, cfg.DatabaseURL)
		if err != nil {
			return fmt.Errorf("opening database: %w", err)
		}
		defer pool.Close()

		runs := store.NewPostgresRunStore(pool)
		if err := runs.CreateSchema(ctx); err != nil {
			return err
		}
		recorders = append(recorders, runs)
		history = runs
		log.Printf("Run history enabled")
	}
	if cfg.OutputDir != "" {
		recorders = append(recorders, excel.Archive{Dir: cfg.OutputDir})
	}

	var recorder jobs.Recorder
	if len(recorders) > 0 {
		recorder = recorders
	}

	runner := jobs.NewRunner(cfg.Pipeline(), jobs.NewStore(), recorder, queueSize)
	runner.Start(ctx)

	gin.SetMode(gin.ReleaseMode)
	srv := &http.Server{
		Addr: ":" + cfg.Port,
		Handler: server.New(server.Options{
			Runner:        runner,
			History:       history,
			SessionSecret: cfg.SessionSecret,
		}),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Printf("Shutdown: %v", err)
		}
	}()

	log.Printf("Server %s running on port %s", Version, cfg.Port)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}

	return nil
}

func init() {
	serveCmd.Flags().IntVar(&queueSize, "queue-size", 16, "maximum number of runs waiting to be processed")
	rootCmd.AddCommand(serveCmd)
}
