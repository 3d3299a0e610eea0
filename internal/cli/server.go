package cli

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
	"live-poll-service/internal/app"
	"live-poll-service/internal/config"
	"live-poll-service/internal/domain"
	"live-poll-service/internal/infra/memory"
	"live-poll-service/internal/infra/postgres"
	redisinfra "live-poll-service/internal/infra/redis"
	transport "live-poll-service/internal/transport/http"
)

// NewStartCmd builds the CLI subcommand to start the server.
func NewStartCmd(configPath, port *string) *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Start the poll server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context(), *configPath, *port)
		},
	}
}

type courseSeeder interface {
	SeedCourse(ctx context.Context, c domain.Course) error
}

func runServer(ctx context.Context, configPath, portFlag string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	logger := newLogger(cfg)
	slog.SetDefault(logger)

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

	var pool *pgxpool.Pool
	if cfg.Postgres.URL != "" {
		pool, err = pgxpool.Connect(ctx, cfg.Postgres.URL)
		if err != nil {
			return err
		}
		defer pool.Close()
	}

	var (
		questions app.QuestionRepository
		responses app.ResponseStore
		roster    app.RosterStore
		seeder    courseSeeder
	)
	if pool != nil {
		store := postgres.NewStore(pool)
		pgRoster := postgres.NewRoster(pool)
		questions, responses, roster, seeder = store, store, pgRoster, pgRoster
	} else {
		store := memory.NewQuestionStore()
		questions, responses = store, store
		roster = memory.NewStaticRoster(cfg.Roster.Courses)
	}
	if redisClient != nil && cfg.Redis.Responses {
		responses = redisinfra.NewResponseStore(redisClient)
	}
	if redisClient != nil && cfg.Redis.Roster {
		redisRoster := redisinfra.NewRoster(redisClient)
		roster, seeder = redisRoster, redisRoster
	}
	if seeder != nil {
		for _, c := range cfg.Roster.Courses {
			if err := seeder.SeedCourse(ctx, c); err != nil {
				return err
			}
		}
	}

	cacheTTL := config.Duration(cfg.Questions.CacheTTL, 10*time.Minute)
	if redisClient != nil {
		questions = redisinfra.NewQuestionCache(redisClient, questions, cacheTTL)
	} else {
		questions = memory.NewQuestionCache(questions, cacheTTL)
	}

	// Subscribers are live sockets of this process, so channels stay in memory.
	broadcaster := app.NewBroadcaster(memory.NewChannelStore(cfg.Live.ChannelBuffer), logger)
	registry := app.NewSessionRegistry(questions, broadcaster, app.ParseOpenPolicy(cfg.Live.OpenPolicy), logger)
	var graderOpts []app.GraderOption
	if cfg.Live.Tally {
		graderOpts = append(graderOpts, app.WithTally(broadcaster))
	}
	grader := app.NewGrader(questions, responses, roster, registry, broadcaster, logger, graderOpts...)
	service := app.NewPollService(questions, roster, registry, broadcaster, grader, logger)

	wsHandler := transport.NewWSHandler(service, transport.LiveOptions{
		SendBuffer:   cfg.Live.SendBuffer,
		WriteTimeout: config.Duration(cfg.Live.WriteTimeout, 10*time.Second),
		PingInterval: config.Duration(cfg.Live.PingInterval, 30*time.Second),
		PongTimeout:  config.Duration(cfg.Live.PongTimeout, 90*time.Second),
	}, logger)

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	})
	mux.HandleFunc("/ws", wsHandler.ServeWS)

	server := &http.Server{
		Addr:         ":" + finalPort,
		Handler:      mux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("starting poll service", "port", finalPort)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})
	return g.Wait()
}
