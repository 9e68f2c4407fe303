package main

import (
	"context"
	"fmt"
	"log"
	"net/http"

	"lobbyhub/backend/internal/auth"
	"lobbyhub/backend/internal/config"
	"lobbyhub/backend/internal/database"
	"lobbyhub/backend/internal/handler"
	"lobbyhub/backend/internal/hub"
	"lobbyhub/backend/internal/lobby"
	"lobbyhub/backend/internal/presence"
	"lobbyhub/backend/internal/ws"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"

	// Swagger imports
	_ "lobbyhub/backend/docs" // This is important for swag to find the generated docs

	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
)

func init() {
	config.LoadConfig()
}

// @title           LobbyHub API
// @version         1.0
// @description     This is the API for the LobbyHub service.
// @host            localhost:8080
// @BasePath        /api/v1
// @securityDefinitions.apiKey BearerAuth
// @in header
// @name Authorization
func main() {
	// Connect to the database
	database.Connect(config.AppConfig.DatabaseURL)
	if err := database.SeedGames(database.DB); err != nil {
		log.Fatalf("Failed to seed game catalog: %v", err)
	}

	// Presence lives in redis when configured so multiple processes share one
	// view; otherwise it stays process-local.
	var tracker presence.Tracker = presence.NewMemory()
	if config.AppConfig.RedisURL != "" {
		opts, err := redis.ParseURL(config.AppConfig.RedisURL)
		if err != nil {
			log.Fatalf("invalid REDIS_URL: %v", err)
		}
		rdb := redis.NewClient(opts)
		if err := rdb.Ping(context.Background()).Err(); err != nil {
			log.Fatalf("Redis connect failed: %v", err)
		}
		tracker = presence.NewRedis(rdb)
		log.Println("Presence tracking via redis.")
	}

	// Wire the core: service -> notifier -> hub, with channel authorization
	// re-checking membership on every subscribe.
	lobbySvc := lobby.NewService(database.DB, nil, tracker)
	broadcastHub := hub.NewHub(hub.NewAuthorizer(lobbySvc))
	notifier := hub.NewNotifier(broadcastHub)
	lobbySvc.SetBroadcaster(notifier)

	handler.Init(lobbySvc, notifier)
	wsHandler := ws.NewHandler(broadcastHub, tracker)

	router := gin.Default()

	// Swagger route
	router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	// Health check endpoint
	router.GET("/ping", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"message": "pong",
		})
	})

	// API v1 routes
	apiV1 := router.Group("/api/v1")
	{
		// Auth routes
		authRoutes := apiV1.Group("/auth")
		{
			authRoutes.POST("/register", handler.RegisterUser)
			authRoutes.POST("/login", handler.LoginUser)
		}

		// User routes (protected)
		userRoutes := apiV1.Group("/users")
		userRoutes.Use(auth.AuthMiddleware())
		{
			userRoutes.GET("/me", handler.GetMe)
			userRoutes.GET("/me/relations", handler.GetRelations)

			// Friendship routes
			userRoutes.POST("/:id/request", handler.SendRequest)
			userRoutes.POST("/:id/accept", handler.AcceptRequest)
			userRoutes.POST("/:id/decline", handler.DeclineRequest)
			userRoutes.POST("/:id/remove", handler.RemoveRelation)
		}

		// Game catalog routes (protected)
		gameRoutes := apiV1.Group("/games")
		gameRoutes.Use(auth.AuthMiddleware())
		{
			gameRoutes.GET("", handler.GetGames)
			gameRoutes.GET("/:slug", handler.GetGameBySlug)
		}

		// Lobby routes (protected)
		lobbyRoutes := apiV1.Group("/lobbies")
		lobbyRoutes.Use(auth.AuthMiddleware())
		{
			lobbyRoutes.POST("", handler.CreateLobby)
			lobbyRoutes.GET("", handler.ListLobbies)
			lobbyRoutes.POST("/join", handler.JoinLobby)
			lobbyRoutes.GET("/:code", handler.GetLobby)
			lobbyRoutes.POST("/:code/leave", handler.LeaveLobby)
			lobbyRoutes.POST("/:code/ready", handler.ToggleReady)
			lobbyRoutes.POST("/:code/start", handler.StartLobby)
			lobbyRoutes.POST("/:code/kick", handler.KickMember)
			lobbyRoutes.POST("/:code/invite", handler.InviteToLobby)
			lobbyRoutes.POST("/:code/messages", handler.SendLobbyMessage)
			lobbyRoutes.GET("/:code/messages", handler.GetLobbyMessages)
		}

		// Real-time channel endpoint (protected)
		apiV1.GET("/ws", auth.AuthMiddleware(), wsHandler.Serve)
	}

	addr := ":" + config.AppConfig.Port
	fmt.Println("Server is running on " + addr)
	fmt.Println("Swagger UI is available at http://localhost:8080/swagger/index.html")
	log.Fatal(router.Run(addr))
}
