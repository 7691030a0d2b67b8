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

	"rocketquiz/internal/app"
	"rocketquiz/internal/config"
	"rocketquiz/internal/docstore"
	"rocketquiz/internal/infra/memory"
	"rocketquiz/internal/infra/postgres"
	rediscore "rocketquiz/internal/infra/redis"
	transport "rocketquiz/internal/transport/http"
)

// NewStartCmd builds the CLI subcommand to start the server.
func NewStartCmd(configPath, port *string) *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Start the quiz server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context(), *configPath, *port)
		},
	}
}

func runServer(ctx context.Context, configPath, portFlag string) error {
	if ctx == nil {
		ctx = context.Background()
	}
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
		defer redisClient.Close()
	}
	redisTTL := config.TTLDuration(cfg.Redis.TTL, 6*time.Hour)

	var loader memory.QuizLoader = memory.NewStaticQuizLoader(sampleQuizzes())
	var archive app.Archive = memory.NewArchive()
	if cfg.Postgres.URL != "" {
		pool, err := pgxpool.Connect(ctx, cfg.Postgres.URL)
		if err != nil {
			return err
		}
		defer pool.Close()
		loader = postgres.NewQuizLoader(pool)

		db := postgres.OpenDB(cfg.Postgres.URL)
		defer db.Close()
		archive = postgres.NewArchive(db)
	}

	quizTTL := config.TTLDuration(cfg.Quiz.TTL, 10*time.Minute)
	var quizRepo app.QuizRepository
	if redisClient != nil {
		quizRepo = rediscore.NewQuizRepository(redisClient, loader, quizTTL)
	} else {
		quizRepo = memory.NewQuizRepository(loader, quizTTL)
	}

	var store docstore.Store
	if redisClient != nil {
		store = rediscore.NewDocumentStore(redisClient, redisTTL)
	} else {
		store = memory.NewDocumentStore()
	}

	defaults := app.DefaultSettings()
	settings := app.Settings{
		PublicURL:   cfg.Server.PublicURL,
		GracePeriod: config.TTLDuration(cfg.Game.GracePeriod, defaults.GracePeriod),
		Tick:        config.TTLDuration(cfg.Game.Tick, defaults.Tick),
		AutoAdvance: cfg.AutoAdvance(),
	}
	service := app.NewService(store, quizRepo, settings, app.WithArchive(archive))

	server := &http.Server{
		Addr:        ":" + finalPort,
		Handler:     transport.Router(service),
		ReadTimeout: 15 * time.Second,
	}

	go func() {
		log.Printf("starting rocketquiz on :%s (join links at %s)", finalPort, service.Settings().PublicURL)
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
