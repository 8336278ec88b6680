package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"hseproject/config"
	"hseproject/database"
	"hseproject/handlers"
	"hseproject/kinds"
	"hseproject/middlewares"
	"hseproject/models"
	repository "hseproject/repositories"
	"hseproject/routes"
	"hseproject/schema"
	"hseproject/services"
	"hseproject/storage"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var rootCmd = &cobra.Command{
	Use:   "hse",
	Short: "HSE record-keeping API",
	Long: `Health, safety and environment records for construction sites: near misses,
incidents, stop work orders, trainings, inspections, PPE compliance and daily reports.`,
	SilenceUsage: true,
}

func main() {
	rootCmd.AddCommand(serveCmd(), indexesCmd(), tokenCmd())
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

// setup loads and validates configuration and builds the logger.
func setup() (*config.Config, *zap.Logger, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, nil, fmt.Errorf("invalid configuration: %w", err)
	}
	logger, err := config.NewLogger(cfg.Log)
	if err != nil {
		return nil, nil, fmt.Errorf("build logger: %w", err)
	}
	return cfg, logger, nil
}

func registeredKinds() []*schema.Kind {
	var out []*schema.Kind
	for _, r := range kinds.All() {
		out = append(out, r.Kind)
	}
	return out
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := setup()
			if err != nil {
				return err
			}
			defer logger.Sync()
			return serve(cmd.Context(), cfg, logger)
		},
	}
}

func indexesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "indexes",
		Short: "Create the MongoDB indexes of every record kind",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := setup()
			if err != nil {
				return err
			}
			defer logger.Sync()

			db, err := database.Connect(cmd.Context(), cfg.Mongo.URI, cfg.Mongo.Database, cfg.Mongo.ConnectTimeout)
			if err != nil {
				return err
			}
			defer db.Close(context.Background())

			if err := database.CreateIndexes(cmd.Context(), db.Database(), registeredKinds()); err != nil {
				return err
			}
			logger.Info("indexes created", zap.Int("kinds", len(kinds.All())))
			return nil
		},
	}
}

func tokenCmd() *cobra.Command {
	var role, name string
	var ttl time.Duration
	cmd := &cobra.Command{
		Use:   "token <user-id>",
		Short: "Sign an access token for local testing",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if cfg.JWT.Secret == "" {
				return errors.New("jwt.secret is required")
			}
			token, err := middlewares.IssueToken(cfg.JWT.Secret, cfg.JWT.Issuer,
				models.Actor{ID: args[0], Name: name, Role: role}, ttl)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}
	cmd.Flags().StringVar(&role, "role", models.RoleUser, "role claim (admin, supervisor, user)")
	cmd.Flags().StringVar(&name, "name", "", "display name claim")
	cmd.Flags().DurationVar(&ttl, "ttl", 24*time.Hour, "token lifetime")
	return cmd
}

func serve(ctx context.Context, cfg *config.Config, logger *zap.Logger) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	var (
		store repository.Store
		db    *database.DB
		blobs storage.Store
	)
	switch cfg.Store.Driver {
	case "memory":
		logger.Warn("using the in-memory record store; data is lost on restart")
		store = repository.NewMemoryStore()
	default:
		var err error
		db, err = database.Connect(ctx, cfg.Mongo.URI, cfg.Mongo.Database, cfg.Mongo.ConnectTimeout)
		if err != nil {
			return err
		}
		defer func() {
			if err := db.Close(context.Background()); err != nil {
				logger.Error("failed to disconnect from MongoDB", zap.Error(err))
			}
		}()
		logger.Info("connected to MongoDB", zap.String("database", cfg.Mongo.Database))
		db.LogTopology(ctx, logger)
		if err := database.CreateIndexes(ctx, db.Database(), registeredKinds()); err != nil {
			logger.Warn("failed to create indexes", zap.Error(err))
		}
		store = repository.NewMongoStore(db.Database())
	}

	switch cfg.Blob.Driver {
	case "s3":
		s3, err := storage.NewS3Store(ctx, storage.S3Config{
			Bucket:    cfg.Blob.S3.Bucket,
			Region:    cfg.Blob.S3.Region,
			Endpoint:  cfg.Blob.S3.Endpoint,
			PathStyle: cfg.Blob.S3.PathStyle,
			PublicURL: cfg.Blob.S3.PublicURL,
		})
		if err != nil {
			return err
		}
		blobs = s3
	case "gridfs":
		gfs, err := storage.NewGridFSStore(db.Database(), cfg.Blob.BaseURL)
		if err != nil {
			return err
		}
		blobs = gfs
	default:
		blobs = storage.NewMemoryStore(cfg.Blob.BaseURL)
	}

	opts := handlers.Options{
		Logger:      logger,
		Timeout:     cfg.Server.RequestTimeout,
		Development: cfg.Development(),
	}
	var pinger handlers.Pinger
	if db != nil {
		pinger = db
	}
	h := routes.Handlers{
		Records: routes.RecordRoutes(kinds.All(), func(r kinds.Route) *handlers.RecordHandler {
			return handlers.NewRecordHandler(services.NewRecordService(r.Kind, store, logger), opts)
		}),
		Uploads: handlers.NewUploadHandler(
			services.NewUploadService(blobs, cfg.Blob.MaxDimension, cfg.Blob.MaxFiles, logger),
			cfg.Blob.MaxUploadBytes, opts),
		Attendees:  handlers.NewAttendeeHandler(opts),
		Health:     handlers.NewHealthHandler(pinger),
		ServeBlobs: cfg.Blob.Driver != "s3",
	}
	mux := routes.SetupRoutes(h, cfg.JWT.Secret, cfg.JWT.Issuer)

	srv := &http.Server{
		Addr: ":" + strconv.Itoa(cfg.Server.Port),
		Handler: middlewares.Chain(mux,
			middlewares.RequestID,
			middlewares.Logger(logger),
			middlewares.Recover(logger),
			middlewares.Metrics,
		),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server starting", zap.Int("port", cfg.Server.Port), zap.String("environment", cfg.Server.Environment))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}
	return nil
}
