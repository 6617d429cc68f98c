package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	goredis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/sammogharabi/seda.fm-sub007/internal/auth"
	"github.com/sammogharabi/seda.fm-sub007/internal/config"
	"github.com/sammogharabi/seda.fm-sub007/internal/queue"
	"github.com/sammogharabi/seda.fm-sub007/internal/room"
	"github.com/sammogharabi/seda.fm-sub007/internal/session"
	"github.com/sammogharabi/seda.fm-sub007/internal/tracks"
	"github.com/sammogharabi/seda.fm-sub007/internal/vote"
	"github.com/sammogharabi/seda.fm-sub007/internal/ws"
	"github.com/sammogharabi/seda.fm-sub007/pkg/database"
	"github.com/sammogharabi/seda.fm-sub007/pkg/events"
	redisx "github.com/sammogharabi/seda.fm-sub007/pkg/redis"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	cfg := config.Load()

	if cfg.Production() {
		gin.SetMode(gin.ReleaseMode)
	} else {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	}

	db, err := database.NewMySQL(
		cfg.MySQLHost,
		cfg.MySQLPort,
		cfg.MySQLUser,
		cfg.MySQLPassword,
		cfg.MySQLDatabase,
	)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to database")
	}

	redisClient := goredis.NewClient(&goredis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       0,
	})
	sessionCache := redisx.NewSessionCache(redisClient)

	kafkaClient := events.NewKafkaClient(cfg.KafkaBrokers, cfg.KafkaTopic, cfg.KafkaGroupID)
	defer kafkaClient.Close()

	var resolver *tracks.Resolver
	if cfg.ProviderClientID != "" && cfg.ProviderClientSecret != "" {
		resolver = tracks.NewResolver(cfg.ProviderClientID, cfg.ProviderClientSecret)
	} else {
		log.Info().Msg("track resolver disabled, submissions must carry a title")
	}

	queueService := queue.NewService(db, kafkaClient)
	voteService := vote.NewService(db, kafkaClient)
	sessionService := session.NewService(db, sessionCache, kafkaClient, queueService)
	roomService := room.NewService(db)

	authHandler := auth.NewHandler(db)
	roomHandler := room.NewHandler(roomService)
	sessionHandler := session.NewHandler(sessionService, queueService, voteService, resolver)
	wsHandler := ws.NewHandler(kafkaClient, voteService, sessionCache)

	go wsHandler.Run(ctx)

	router := gin.Default()

	router.Use(cors.New(cors.Config{
		AllowOrigins:     cfg.AllowedOrigins,
		AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: true,
	}))

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	v1 := router.Group("/api/v1")
	protected := v1.Group("/")
	protected.Use(auth.Middleware())
	{
		authHandler.RegisterRoutes(protected)
		roomHandler.RegisterRoutes(protected)
		sessionHandler.RegisterRoutes(protected)
		protected.GET("/ws/:sessionId", wsHandler.HandleWebSocket)
	}

	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: router,
	}

	go func() {
		log.Info().Str("addr", srv.Addr).Msg("server started")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("server failed")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("graceful shutdown failed")
	}
}
