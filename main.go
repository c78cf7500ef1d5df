package main

import (
	"context"
	"os"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"chatrooms-service/internal/auth"
	"chatrooms-service/internal/db"
	"chatrooms-service/internal/handlers"
	"chatrooms-service/internal/logger"
	"chatrooms-service/internal/middleware"
	"chatrooms-service/internal/observability"
	"chatrooms-service/internal/rabbitmq"
	"chatrooms-service/internal/repositories"
	"chatrooms-service/internal/telemetry"
	"chatrooms-service/internal/ws"
)

const serviceName = "chatrooms-service"

func main() {
	log := logger.New(getEnv("LOG_LEVEL", "info"))

	database, err := db.Connect(log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to db")
	}
	defer database.Close()

	shutdownTracing, err := observability.SetupTracing(context.Background(), serviceName, getEnv("OTLP_ENDPOINT", ""))
	if err != nil {
		log.Fatal().Err(err).Msg("failed to set up tracing")
	}
	defer shutdownTracing(context.Background())

	amqpURL := getEnv("AMQP_URL", "")
	exchange := getEnv("AMQP_EXCHANGE", "chatrooms.events")

	auditPublisher := rabbitmq.NewPublisher(amqpURL, exchange)
	defer auditPublisher.Close()
	log.Info().Str("mode", rabbitmq.PublisherMode(auditPublisher)).Msg("audit publisher ready")

	audit := telemetry.NewAuditEmitter(auditPublisher, "audit.chatrooms", serviceName, getEnv("ENVIRONMENT", "dev"))

	if eventPublisher, err := observability.NewAMQPPublisher(amqpURL, exchange); err != nil {
		log.Warn().Err(err).Msg("ws event publishing disabled")
	} else {
		observability.SetPublisher(eventPublisher)
		defer eventPublisher.Close()
	}

	verifier := auth.NewJWTVerifier([]byte(getEnv("JWT_SECRET", "your-secret-key-change-in-production")))

	roomRepo := repositories.NewRoomRepo(database)
	messageRepo := repositories.NewMessageRepo(database)
	userRepo := repositories.NewUserRepo(database)

	hub := ws.NewHub(log)

	roomHandler := handlers.NewRoomHandler(roomRepo, messageRepo, userRepo, hub, audit)
	roomWS := ws.NewRoomWebSocketHandler(hub, verifier, userRepo, roomRepo, messageRepo, log)

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(otelgin.Middleware(serviceName))
	router.Use(observability.HTTPMetricsMiddleware())

	authMiddleware := middleware.AuthMiddleware(verifier, userRepo)

	api := router.Group("/api")
	api.POST("/rooms", authMiddleware, roomHandler.CreateRoom)
	api.GET("/rooms", authMiddleware, roomHandler.ListRooms)
	api.POST("/rooms/:room_id/join", authMiddleware, roomHandler.JoinRoom)
	api.GET("/rooms/:room_id/messages", authMiddleware, roomHandler.GetRoomMessages)
	api.POST("/rooms/:room_id/messages", authMiddleware, roomHandler.PostRoomMessage)
	api.GET("/rooms/:room_id/users", authMiddleware, roomHandler.GetRoomUsers)

	router.GET("/ws/:room_id", roomWS.Handle)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	handlers.RegisterDebugRoutes(router, audit, getEnv("DEBUG_ROUTES", "") == "true")

	port := getEnv("PORT", "8083")
	log.Info().Str("port", port).Msg("starting chatrooms service")
	if err := router.Run(":" + port); err != nil {
		log.Fatal().Err(err).Msg("server error")
	}
}

func getEnv(key, fallback string) string {
	if val, ok := os.LookupEnv(key); ok {
		return val
	}
	return fallback
}
