package main

import (
	"context"
	"fmt"
	"math/rand"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/wordmine/wordmine/internal/config"
	"github.com/wordmine/wordmine/internal/distractor"
	"github.com/wordmine/wordmine/internal/economy"
	httpapi "github.com/wordmine/wordmine/internal/interfaces/http"
	"github.com/wordmine/wordmine/internal/persistence/postgres"
	"github.com/wordmine/wordmine/internal/review"
	"github.com/wordmine/wordmine/internal/srs"
	"github.com/wordmine/wordmine/internal/survey"
	"github.com/wordmine/wordmine/internal/survey/sessionstore"
	"github.com/wordmine/wordmine/internal/vocab"
)

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the WordMine HTTP service",
		Long:  "Load the vocabulary snapshot, connect Postgres and Redis, and serve the learning core over HTTP until interrupted.",
		RunE:  runServe,
	}
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	setupLogging(cfg.Log.Level, cfg.Log.Pretty)

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := loadVocab(ctx, cfg)
	if err != nil {
		return err
	}

	if cfg.Database.DSN == "" {
		return fmt.Errorf("database dsn is required (set PG_DSN or database.dsn)")
	}
	db, err := postgres.Open(cfg.Database.DSN, cfg.Database.MaxOpenConns)
	if err != nil {
		return err
	}
	defer db.Close()
	if err := postgres.EnsureSchema(ctx, db); err != nil {
		return err
	}

	queryTimeout := cfg.Database.QueryTimeout()
	xpRepo := postgres.NewXPRepo(db, queryTimeout)
	cardsRepo := postgres.NewCardsRepo(db, queryTimeout)
	assignRepo := postgres.NewAssignmentRepo(db, queryTimeout)

	checks := map[string]httpapi.HealthCheck{
		"postgres": db.PingContext,
	}

	var sessions survey.SessionStore
	var redisClient *goredis.Client
	if cfg.Redis.Addr != "" {
		redisClient = goredis.NewClient(&goredis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer redisClient.Close()
		if err := redisClient.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("failed to reach redis at %s: %w", cfg.Redis.Addr, err)
		}
		sessions = sessionstore.NewRedis(redisClient, cfg.Redis.SessionTTL())
		checks["redis"] = func(ctx context.Context) error { return redisClient.Ping(ctx).Err() }
	} else {
		log.Warn().Msg("No redis configured; survey sessions are in-process only")
		memory := sessionstore.NewMemory(cfg.Redis.SessionTTL())
		janitor := sessionstore.NewJanitor(memory, time.Minute)
		defer janitor.Stop()
		sessions = memory
	}

	decks := distractor.NewEngine(store, cfg.DeckBuilder())
	surveyEngine := survey.NewEngine(store, decks, cfg.SurveyEngine())
	surveySvc := survey.NewService(surveyEngine, sessions)

	sm2, err := srs.NewSM2Plus(cfg.SM2Scheduler())
	if err != nil {
		return err
	}
	fsrsAdapter, err := srs.NewFSRSAdapter(cfg.FSRSScheduler())
	if err != nil {
		return err
	}
	algorithms := map[srs.AlgorithmType]srs.Algorithm{
		srs.AlgorithmSM2Plus: sm2,
		srs.AlgorithmFSRS:    fsrsAdapter,
	}

	assignments := review.NewAssignmentService(assignRepo, cardsRepo, cfg.AssignmentRules(), rand.Float64)
	econ := economy.NewService(xpRepo, cfg.EconomyRules())
	reviews := review.NewReviewService(algorithms, assignments, cardsRepo, econ, nil)

	server, err := httpapi.NewServer(httpapi.Config{
		Port:               cfg.Server.Port,
		ReadTimeout:        cfg.Server.ReadTimeout(),
		WriteTimeout:       cfg.Server.WriteTimeout(),
		IdleTimeout:        cfg.Server.IdleTimeout(),
		RequestTimeout:     cfg.Server.WriteTimeout(),
		RateLimitPerMinute: cfg.Server.RateLimitPerMinute,
		RateLimitBurst:     cfg.Server.RateLimitBurst,
		AdminToken:         cfg.Admin.Token,
	}, httpapi.Deps{
		Survey:      surveySvc,
		Reviews:     reviews,
		Assignments: assignments,
		Economy:     econ,
		Vocab:       store,
		Verifier:    devVerifier(),
		Checks:      checks,
	})
	if err != nil {
		return err
	}

	errCh := make(chan error, 1)
	go func() { errCh <- server.Start() }()

	log.Info().
		Int("port", cfg.Server.Port).
		Int("senses", store.Stats().SenseCount).
		Msg("WordMine serving")

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout())
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

// loadVocab resolves the snapshot through the file source with the optional
// graph fallback. A missing file with no fallback fails startup.
func loadVocab(ctx context.Context, cfg *config.Config) (*vocab.Store, error) {
	primary := &vocab.FileSource{Path: cfg.Vocab.SnapshotPath}
	var fallback vocab.SnapshotSource
	if cfg.Vocab.GraphURL != "" {
		fallback = vocab.NewGraphSource(cfg.Vocab.GraphURL, cfg.Vocab.FetchTimeout())
	}

	start := time.Now()
	store, err := vocab.LoadFromSource(ctx, primary, fallback)
	if err != nil {
		return nil, err
	}
	stats := store.Stats()
	log.Info().
		Str("version", stats.Version).
		Int("senses", stats.SenseCount).
		Int("lemmas", stats.LemmaCount).
		Float64("embedding_coverage", stats.EmbeddingCoverage).
		Dur("took", time.Since(start)).
		Msg("Vocabulary snapshot loaded")
	return store, nil
}

// devVerifier builds the in-tree token verifier from WORDMINE_DEV_TOKENS
// ("token:user,token:user"). Production deployments replace it behind the
// same interface.
func devVerifier() httpapi.TokenVerifier {
	verifier := httpapi.StaticVerifier{}
	for _, pair := range strings.Split(os.Getenv("WORDMINE_DEV_TOKENS"), ",") {
		if token, user, ok := strings.Cut(pair, ":"); ok && token != "" && user != "" {
			verifier[token] = user
		}
	}
	if len(verifier) == 0 {
		log.Warn().Msg("No dev tokens configured; only the admin token can authenticate")
	}
	return verifier
}
