package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/KAsare1/telecare-server/cmd/config"
	"github.com/KAsare1/telecare-server/cmd/utils"
	"github.com/KAsare1/telecare-server/db"
	"github.com/KAsare1/telecare-server/service/appointment"
	"github.com/KAsare1/telecare-server/service/connection"
	"github.com/KAsare1/telecare-server/service/metrics"
	"github.com/KAsare1/telecare-server/service/notification"
	"github.com/KAsare1/telecare-server/service/presence"
	"github.com/KAsare1/telecare-server/service/schedule"
	"github.com/KAsare1/telecare-server/service/ws"
)

const shutdownTimeout = 10 * time.Second

// store is everything the handlers need from persistence. Both the gorm
// store and the memory store satisfy it.
type store interface {
	schedule.BookingStore
	connection.RequestStore
}

type APIServer struct {
	cfg    *config.Config
	db     *gorm.DB
	logger zerolog.Logger

	mirror *presence.RedisMirror
	redis  *redis.Client
}

// NewAPIServer builds the server. A nil db selects the in-memory store.
func NewAPIServer(cfg *config.Config, db *gorm.DB, logger zerolog.Logger) *APIServer {
	return &APIServer{cfg: cfg, db: db, logger: logger}
}

type recoveryLogger struct {
	logger zerolog.Logger
}

func (l recoveryLogger) Println(v ...interface{}) {
	l.logger.Error().Msg(fmt.Sprint(v...))
}

// Handler wires every component and returns the root handler. Background
// workers run until ctx is cancelled.
func (s *APIServer) Handler(ctx context.Context) http.Handler {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	var st store
	if s.db != nil {
		st = db.NewStore(s.db)
	} else {
		s.logger.Warn().Msg("using in-memory store; bookings are lost on restart")
		st = db.NewMemoryStore()
	}

	registryOpts := []presence.Option{presence.WithMetrics(m)}
	var remote presence.Lookuper
	if s.cfg.RedisAddr != "" {
		s.redis = redis.NewClient(&redis.Options{Addr: s.cfg.RedisAddr, Password: s.cfg.RedisPassword})
		pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
		if err := s.redis.Ping(pingCtx).Err(); err != nil {
			s.logger.Warn().Err(err).Str("addr", s.cfg.RedisAddr).Msg("redis unreachable, presence mirror will retry per write")
		}
		cancel()

		s.mirror = presence.NewRedisMirror(s.redis, s.cfg.PresenceTTL, s.logger)
		go s.mirror.Run(ctx)
		registryOpts = append(registryOpts, presence.WithMirror(s.mirror))
		remote = s.mirror
	}
	registry := presence.NewRegistry(registryOpts...)

	bridge := notification.NewLogBridge(s.logger)
	scheduler := schedule.NewScheduler(st, schedule.NewPolicy(s.cfg.Location), s.logger,
		schedule.WithNotifier(bridge),
		schedule.WithMetrics(m),
	)
	hub := ws.NewHub(registry, scheduler, s.logger, ws.WithBridge(bridge), ws.WithMetrics(m))

	limiter := utils.NewRateLimiter(s.cfg.BookingRateRPS, s.cfg.BookingRateBurst).TrustProxy(s.cfg.TrustProxy)
	go limiter.Run(ctx.Done())

	router := mux.NewRouter()
	router.Use(utils.RequestLogger(s.logger))
	router.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		utils.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}).Methods("GET")
	router.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{})).Methods("GET")

	subrouter := router.PathPrefix("/api/v1").Subrouter()

	appointmentHandler := appointment.NewAppointmentHandler(scheduler, limiter, s.cfg.SecretKey, s.logger)
	appointmentHandler.RegisterRoutes(subrouter)

	connectionHandler := connection.NewConnectionHandler(connection.NewService(st, hub, bridge, s.logger), s.logger)
	connectionHandler.RegisterRoutes(subrouter)

	presenceHandler := presence.NewPresenceHandler(registry, remote, s.logger)
	presenceHandler.RegisterRoutes(subrouter)

	wsHandler := ws.NewSignalHandler(hub, s.cfg.SecretKey, s.cfg.CORSOrigins, s.cfg.WSSendBuffer, s.logger)
	wsHandler.RegisterRoutes(router)

	cors := handlers.CORS(
		handlers.AllowedOrigins(s.cfg.CORSOrigins),
		handlers.AllowedMethods([]string{"GET", "POST", "OPTIONS"}),
		handlers.AllowedHeaders([]string{"Content-Type", "Authorization", "X-Request-ID"}),
	)
	recovery := handlers.RecoveryHandler(
		handlers.RecoveryLogger(recoveryLogger{logger: s.logger}),
		handlers.PrintRecoveryStack(s.cfg.IsDev()),
	)
	return recovery(cors(router))
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *APIServer) Run(ctx context.Context) error {
	workers, stopWorkers := context.WithCancel(ctx)
	defer stopWorkers()

	srv := &http.Server{
		Addr:              ":" + s.cfg.Port,
		Handler:           s.Handler(workers),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info().Str("addr", srv.Addr).Msg("server running")
		errCh <- srv.ListenAndServe()
	}()

	var serveErr error
	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			serveErr = err
		}
	case <-ctx.Done():
		s.logger.Info().Msg("shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		if err := srv.Shutdown(shutdownCtx); err != nil {
			s.logger.Error().Err(err).Msg("graceful shutdown failed")
		}
		cancel()
	}

	stopWorkers()
	s.close()
	return serveErr
}

func (s *APIServer) close() {
	if s.mirror != nil {
		s.mirror.Wait()
	}
	if s.redis != nil {
		if err := s.redis.Close(); err != nil {
			s.logger.Warn().Err(err).Msg("closing redis client")
		}
	}
}
