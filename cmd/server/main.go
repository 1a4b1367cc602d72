package main

import (
	"chat-gateway/internal/api/handlers"
	"chat-gateway/internal/app"
	"chat-gateway/internal/auth"
	"chat-gateway/internal/cache"
	"chat-gateway/internal/config"
	"chat-gateway/internal/logger"
	"chat-gateway/internal/repository/postgres"
	chatService "chat-gateway/internal/service/chat"
	conversationService "chat-gateway/internal/service/conversation"
	"chat-gateway/internal/service/llm"
	"chat-gateway/internal/service/tokens"
	"net/http"
)

func enableCORS(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	}
}

func main() {
	appConfig, err := config.LoadConfig()
	if err != nil {
		logger.Log.WithError(err).Fatal("Failed to load configuration")
	}

	// Initialize database
	logger.Log.Info("Initializing database...")
	database, err := postgres.NewPostgresDB(appConfig.Database)
	if err != nil {
		logger.Log.WithError(err).Fatal("Failed to initialize database")
	}
	defer database.Close()

	// Seed demo user
	if err := postgres.SeedDemoUser(database); err != nil {
		logger.Log.WithError(err).Fatal("Failed to seed demo user")
	}

	// Response cache
	responseCache := cache.NewMemoryCache(appConfig.Cache.CleanupInterval)
	defer responseCache.Stop()

	appCfg := app.NewConfig(database, appConfig, responseCache)

	// Build the service layer
	registry := llm.NewRegistry(appConfig.Providers, appConfig.Models)
	client := llm.NewClient(registry, appConfig.Providers.RequestTimeout)
	ledger := tokens.NewLedger(database, appConfig.Quota)
	costs := tokens.NewCostEngine(appConfig.Models)
	convSvc := conversationService.NewService(database)
	chatSvc := chatService.NewChatService(database, registry, client, ledger, costs, convSvc, responseCache, appConfig.Cache.TTL)

	authHandlers := auth.NewHandlers(database, appConfig.Auth)
	chatHandlers := handlers.NewChatHandlers(appCfg, chatSvc, convSvc, ledger)

	// Create new ServeMux to use Go 1.22+ routing features for path parameters
	mux := http.NewServeMux()

	// CORS preflight handler for OPTIONS requests
	corsHandler := func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		w.WriteHeader(http.StatusOK)
	}

	// Public routes
	mux.HandleFunc("POST /api/login", enableCORS(authHandlers.LoginHandler))
	mux.HandleFunc("OPTIONS /api/login", corsHandler)
	mux.HandleFunc("POST /api/register", enableCORS(authHandlers.RegisterHandler))
	mux.HandleFunc("OPTIONS /api/register", corsHandler)
	mux.HandleFunc("GET /api/health", enableCORS(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	}))
	mux.HandleFunc("OPTIONS /api/health", corsHandler)

	// Protected routes - use method-based routing (Go 1.22+ native)
	mux.HandleFunc("POST /api/chat", enableCORS(authHandlers.Middleware(chatHandlers.ChatHandler)))
	mux.HandleFunc("OPTIONS /api/chat", corsHandler)
	mux.HandleFunc("POST /api/chat/stream", enableCORS(authHandlers.Middleware(chatHandlers.ChatStreamHandler)))
	mux.HandleFunc("OPTIONS /api/chat/stream", corsHandler)
	mux.HandleFunc("GET /api/models", enableCORS(authHandlers.Middleware(chatHandlers.GetModelsHandler)))
	mux.HandleFunc("OPTIONS /api/models", corsHandler)
	mux.HandleFunc("GET /api/quota", enableCORS(authHandlers.Middleware(chatHandlers.GetQuotaHandler)))
	mux.HandleFunc("OPTIONS /api/quota", corsHandler)
	mux.HandleFunc("GET /api/threads", enableCORS(authHandlers.Middleware(chatHandlers.GetThreadsHandler)))
	mux.HandleFunc("OPTIONS /api/threads", corsHandler)

	// Protected parameterized routes (Go 1.22+ native path parameters with {id})
	mux.HandleFunc("GET /api/threads/{id}/messages", enableCORS(authHandlers.Middleware(chatHandlers.GetThreadMessagesHandler)))
	mux.HandleFunc("OPTIONS /api/threads/{id}/messages", corsHandler)
	mux.HandleFunc("DELETE /api/threads/{id}", enableCORS(authHandlers.Middleware(chatHandlers.DeleteThreadHandler)))
	mux.HandleFunc("OPTIONS /api/threads/{id}", corsHandler)
	mux.HandleFunc("GET /api/messages/{id}/responses", enableCORS(authHandlers.Middleware(chatHandlers.GetMessageResponsesHandler)))
	mux.HandleFunc("OPTIONS /api/messages/{id}/responses", corsHandler)
	mux.HandleFunc("POST /api/messages/{id}/responses/{responseId}/primary", enableCORS(authHandlers.Middleware(chatHandlers.SwitchPrimaryResponseHandler)))
	mux.HandleFunc("OPTIONS /api/messages/{id}/responses/{responseId}/primary", corsHandler)

	port := appConfig.Server.Port
	logger.Log.WithField("port", port).Info("Server starting")
	logger.Log.Infof("Health check: http://localhost:%s/api/health", port)
	logger.Log.Infof("Chat endpoint: http://localhost:%s/api/chat", port)
	logger.Log.Infof("Chat stream endpoint: http://localhost:%s/api/chat/stream", port)
	logger.Log.Infof("Threads endpoint: http://localhost:%s/api/threads", port)

	if err := http.ListenAndServe(":"+port, mux); err != nil {
		logger.Log.WithError(err).Fatal("Server failed to start")
	}
}
