package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/julienschmidt/httprouter"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"github.com/ringsaturn/tzf"
	"github.com/rs/cors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"tripy/config"
	"tripy/contract"
	"tripy/db"
	"tripy/edits"
	"tripy/export"
	"tripy/itinerary"
	"tripy/llm"
	"tripy/logger"
	"tripy/metrics"
	"tripy/middleware"
	"tripy/models"
	"tripy/mq"
	"tripy/newchat"
	"tripy/places"
	"tripy/ratelim"
	"tripy/rdx"
	"tripy/routes"
	"tripy/suggestions"
	"tripy/utils"
)

// securityHeaders applies a set of recommended HTTP security headers.
func securityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Content-Security-Policy", "frame-ancestors 'none'")
		w.Header().Set("Strict-Transport-Security", "max-age=31536000; includeSubDomains; preload")
		w.Header().Set("Referrer-Policy", "no-referrer")
		w.Header().Set("Permissions-Policy", "geolocation=(), microphone=(), camera=()")
		w.Header().Set("Cache-Control", "no-store, no-cache, must-revalidate, private")
		next.ServeHTTP(w, r)
	})
}

// loggingMiddleware logs each request method, path, remote address, and duration.
func loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		r, id := utils.WithRequestID(w, r)
		next.ServeHTTP(w, r)
		logger.Get().Info("request",
			zap.String("request_id", id),
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.String("remote", r.RemoteAddr),
			zap.Duration("took", time.Since(start)))
	})
}

func main() {
	root := &cobra.Command{
		Use:           "tripy",
		Short:         "AI trip itinerary service",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(serveCmd(), validateCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP and websocket server",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if err := logger.Init(cfg.DevMode, logger.LogLevel(cfg.LogLevel)); err != nil {
				return fmt.Errorf("init logger: %w", err)
			}
			defer logger.Sync()
			return serve(cfg)
		},
	}
}

func validateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate <request.json>",
		Short: "Check a trip request and preview its budget without generating anything",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			raw, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			var body models.TripRequest
			if err := json.Unmarshal(raw, &body); err != nil {
				return fmt.Errorf("parse %s: %w", args[0], err)
			}
			verdict := itinerary.Preview(body, cfg.Limits)

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			if err := enc.Encode(verdict); err != nil {
				return err
			}
			if !verdict.Valid {
				return errors.New("request is not valid")
			}
			return nil
		},
	}
}

func serve(cfg config.Config) error {
	log := logger.Get()
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	store, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := db.Disconnect(context.Background()); err != nil {
			log.Warn("disconnect MongoDB", zap.Error(err))
		}
	}()

	var redisClient *redis.Client
	if cfg.RedisURL != "" {
		if redisClient, err = rdx.Connect(ctx, cfg.RedisURL); err != nil {
			log.Warn("redis unavailable, running single-node", zap.Error(err))
			redisClient = nil
		} else {
			defer rdx.Close()
		}
	}

	gen, err := llm.NewOpenAIGenerator(cfg.OpenAIKey, cfg.OpenAIModel)
	if err != nil {
		return err
	}
	client := contract.NewClient(gen, contract.OptionsFrom(cfg.Generation), m)
	resolver := placeResolver(cfg, m, redisClient)

	hub := newchat.NewHub(m)
	go hub.Run()

	var events mq.Publisher = mq.NewLocal(hub.TripUpdated)
	if redisClient != nil {
		events = mq.NewEmitter(redisClient)
		go mq.StartTripEventWorker(ctx, redisClient, hub.TripUpdated)
	}

	auth := middleware.NewJWTVerifier(cfg.JWTSecret)
	orch := itinerary.NewOrchestrator(client, resolver, store, events, m, itinerary.Options{
		Workers:   cfg.Assembly.EnrichmentWorkers,
		Slack:     cfg.Assembly.CeilingSlack,
		Tolerance: cfg.Assembly.BudgetTolerance,
	})

	router := httprouter.New()
	routes.RoutesWrapper(router, routes.Deps{
		Config:      cfg,
		Store:       store,
		Auth:        auth,
		Limiter:     ratelim.NewRateLimiter(5, 2),
		Assembler:   orch,
		Edits:       edits.NewPipeline(client, resolver, store, events, m, cfg.Assembly.BudgetTolerance),
		Suggestions: suggestions.NewService(client, cfg.Assembly.SuggestionLimit, cfg.Assembly.CeilingSlack),
		Places:      resolver,
		Exporter:    export.New(cfg.BaseURL),
		Chat:        newchat.NewManager(hub, auth, store, client, cfg.Chat, m),
		Gatherer:    reg,
		Shutdown:    ctx,
	})

	// apply middleware: CORS → security headers → logging → router
	corsHandler := cors.New(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Content-Type", "Authorization"},
		AllowCredentials: true,
	}).Handler(router)

	server := &http.Server{
		Addr:              cfg.Port,
		Handler:           loggingMiddleware(securityHeaders(corsHandler)),
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      4 * time.Minute,
		IdleTimeout:       120 * time.Second,
		ReadHeaderTimeout: 2 * time.Second,
	}
	server.RegisterOnShutdown(func() {
		log.Info("shutting down chat hub")
		hub.Stop()
	})

	errCh := make(chan error, 1)
	go func() {
		log.Info("server listening", zap.String("addr", cfg.Port))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("listen: %w", err)
	case <-ctx.Done():
	}

	log.Info("shutdown signal received, draining")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("graceful shutdown: %w", err)
	}
	log.Info("server stopped cleanly")
	return nil
}

func openStore(ctx context.Context, cfg config.Config) (db.Store, error) {
	if cfg.MongoURI == "" {
		logger.Get().Warn("MONGO_URI empty, trips are kept in memory")
		return db.NewMemoryStore(), nil
	}
	connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	return db.Connect(connectCtx, cfg.MongoURI, cfg.MongoDatabase)
}

// placeResolver stacks the local and shared caches over the search service.
func placeResolver(cfg config.Config, m *metrics.Metrics, redisClient *redis.Client) *places.Service {
	log := logger.Get()
	tiers := []places.Cache{places.NewLocalCache(cfg.Places.CacheTTL, cfg.Places.CacheMaxEntries)}
	if redisClient != nil {
		tiers = append(tiers, places.NewRedisCache(redisClient, cfg.Places.CacheTTL))
	}

	var searcher places.Searcher = places.Offline{}
	if cfg.MapsAPIKey != "" {
		g, err := places.NewGoogleSearcher(cfg.MapsAPIKey, cfg.Places.SearchRadiusM)
		if err != nil {
			log.Warn("place search disabled", zap.Error(err))
		} else {
			searcher = g
		}
	} else {
		log.Warn("GOOGLE_MAPS_API_KEY empty, activities will stay unresolved")
	}

	var tz places.TimeZoneFinder
	if finder, err := tzf.NewDefaultFinder(); err != nil {
		log.Warn("time zone finder unavailable", zap.Error(err))
	} else {
		tz = finder
	}
	return places.NewService(searcher, tz, m, tiers...)
}
