package cli

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"mathquest-service/internal/app"
	"mathquest-service/internal/config"
	"mathquest-service/internal/domain"
	"mathquest-service/internal/infra/memory"
	pginfra "mathquest-service/internal/infra/postgres"
	redisinfra "mathquest-service/internal/infra/redis"
	transport "mathquest-service/internal/transport/http"
)

// NewServeCmd builds the CLI subcommand to start the server.
func NewServeCmd(configPath, port *string) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the quiz backend",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context(), *configPath, *port)
		},
	}
}

func runServer(ctx context.Context, configPath, portFlag string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	if cfg.Postgres.URL != "" {
		if err := runMigrationsWithConfig(ctx, cfg); err != nil {
			return err
		}
	}

	finalPort := portFlag
	if finalPort == "" {
		finalPort = cfg.Server.Port
	}
	if finalPort == "" {
		finalPort = "8080"
	}

	var redisClient *redis.Client
	if cfg.Redis.Addr != "" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
	}

	var pool *pgxpool.Pool
	if cfg.Postgres.URL != "" {
		pool, err = pgxpool.Connect(ctx, cfg.Postgres.URL)
		if err != nil {
			return err
		}
		defer pool.Close()
	}

	var loader memory.ContentLoader = memory.NewStaticContentLoader(sampleLessons())
	if pool != nil {
		loader = pginfra.NewContentLoader(pool)
	}

	contentTTL := config.TTLDuration(cfg.Content.TTL, 10*time.Minute)
	var content app.ContentRepository
	if redisClient != nil {
		content = redisinfra.NewContentRepository(redisClient, loader, contentTTL)
	} else {
		content = memory.NewContentRepository(loader, contentTTL)
	}

	var ledger app.Ledger
	if pool != nil {
		ledger = pginfra.NewLedger(pool)
	} else {
		ledger = memory.NewLedger(domain.User{ID: cfg.Demo.UserID, Username: "demo_user"})
	}

	hub := app.NewProgressHub()
	service := app.NewService(content, ledger, app.WithHub(hub))
	handler := transport.NewHandler(service, hub, cfg.Demo.UserID)

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	})
	handler.Register(mux)

	server := &http.Server{
		Addr:         ":" + finalPort,
		Handler:      mux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}

	go func() {
		log.Printf("starting mathquest service on :%s", finalPort)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("failed to start server: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-stop:
		log.Println("shutting down server...")
	case <-ctx.Done():
		log.Println("context canceled, shutting down server...")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

// sampleLessons backs the no-database demo mode; production runs use the
// Postgres loader seeded via the seed command.
func sampleLessons() map[int64]domain.Lesson {
	return map[int64]domain.Lesson{
		1: {
			ID:    1,
			Title: "Basic Arithmetic",
			Problems: []domain.Problem{
				{
					ID:       101,
					Question: "What is 2 + 3?",
					Options: []domain.ProblemOption{
						{ID: 1, Text: "4"},
						{ID: 2, Text: "5"},
						{ID: 3, Text: "6"},
					},
					Key: domain.ChoiceKey{OptionID: 2},
				},
				{
					ID:       102,
					Question: "What is 10 / 2?",
					Key:      domain.NumericKey{Value: 5.0},
				},
			},
		},
	}
}
