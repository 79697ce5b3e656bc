package main

import (
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"nodeflow/internal/agent"
	"nodeflow/internal/config"
	"nodeflow/internal/database"
	"nodeflow/internal/execution"
	"nodeflow/internal/handlers"
	"nodeflow/internal/llm"
	"nodeflow/internal/logging"
	"nodeflow/internal/middleware"
	"nodeflow/internal/sandbox"
	"nodeflow/internal/services"
	"nodeflow/internal/tools"
	"nodeflow/pkg/auth"

	"github.com/ansrivas/fiberprometheus/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/joho/godotenv"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)

	// Structured logging (JSON in production, text in dev)
	logging.Init()

	log.Println("🚀 Starting NodeFlow Server...")

	// Load .env file (ignore error if file doesn't exist)
	if err := godotenv.Load(); err != nil {
		log.Printf("⚠️  No .env file found or error loading it: %v", err)
	} else {
		log.Println("✅ .env file loaded successfully")
	}

	cfg := config.Load()
	log.Printf("📋 Configuration loaded (Port: %s, DB: %s)", cfg.Port, cfg.DatabasePath)

	db, err := database.New(cfg.DatabasePath)
	if err != nil {
		log.Fatalf("❌ Failed to open database: %v", err)
	}
	defer db.Close()

	if err := db.Initialize(); err != nil {
		log.Fatalf("❌ Failed to initialize database: %v", err)
	}

	// Services
	executionService := services.NewExecutionService(db)
	workflowService := services.NewWorkflowService(db)
	nodeTypeService := services.NewNodeTypeService(db)
	credentialService := services.NewCredentialService(db)
	userService := services.NewUserService(db)

	// Sweep executions orphaned by a previous crash before anything
	// can observe them as live
	if swept, err := executionService.SweepOrphans(); err != nil {
		log.Printf("⚠️  Orphan sweep failed: %v", err)
	} else if swept > 0 {
		log.Printf("🧹 Swept %d orphaned execution(s) to failed", swept)
	}

	// Tool policy
	tablePolicy, err := config.LoadAllowedTables(cfg.AllowedTablesPath)
	if err != nil {
		log.Fatalf("❌ Failed to load table policy: %v", err)
	}
	log.Printf("🔒 Database tool policy: %d table(s) allowed", len(tablePolicy))

	// LLM clients and tool registry
	llmFactory := llm.NewFactory(credentialService)
	registry := tools.NewRegistry()
	if err := tools.RegisterBuiltins(registry, db.DB, tablePolicy, executionService, llmFactory); err != nil {
		log.Fatalf("❌ Failed to register tools: %v", err)
	}
	log.Printf("🔧 Registered tools: %v", registry.Names())

	// Agent loop and sandbox runtime
	conversations := agent.NewConversationStore()
	agentLoop := agent.NewLoop(llmFactory, registry, conversations, cfg.AgentMaxIterations)
	runtime := sandbox.New(sandbox.Options{
		MaxSteps: cfg.MaxExecutionSteps,
		Timeout:  time.Duration(cfg.NodeTimeoutSeconds) * time.Second,
	})

	runner := execution.NewRunner(
		executionService,
		workflowService,
		nodeTypeService,
		credentialService,
		runtime,
		agentLoop,
		llmFactory,
		conversations,
	)

	// Cron scheduler for workflows with a schedule expression
	schedulerService, err := services.NewSchedulerService(workflowService)
	if err != nil {
		log.Fatalf("❌ Failed to create scheduler: %v", err)
	}
	schedulerService.SetExecutor(runner.LaunchInBackground)
	if err := schedulerService.Start(); err != nil {
		log.Printf("⚠️  Scheduler failed to start: %v", err)
	} else {
		log.Println("⏰ Workflow scheduler started")
	}

	// Auth
	var jwtAuth *auth.JWTAuth
	if cfg.JWTSecret != "" {
		jwtAuth, err = auth.NewJWTAuth(cfg.JWTSecret, time.Duration(cfg.AccessTokenMinutes)*time.Minute, 0)
		if err != nil {
			log.Fatalf("❌ Failed to initialize auth: %v", err)
		}
	}

	app := fiber.New(fiber.Config{
		AppName:      "NodeFlow v1.0",
		ReadTimeout:  300 * time.Second, // workflow runs are synchronous on /run
		WriteTimeout: 300 * time.Second,
		IdleTimeout:  300 * time.Second,
		BodyLimit:    10 * 1024 * 1024,
	})

	app.Use(recover.New())
	app.Use(logger.New())

	prometheus := fiberprometheus.New("nodeflow")
	prometheus.RegisterAt(app, "/metrics")
	app.Use(prometheus.Middleware)
	log.Println("📊 Prometheus metrics endpoint enabled at /metrics")

	allowedOrigins := os.Getenv("ALLOWED_ORIGINS")
	if allowedOrigins == "" {
		allowedOrigins = "http://localhost:5173,http://localhost:3000"
		log.Println("⚠️  ALLOWED_ORIGINS not set, using development defaults")
	}
	app.Use(cors.New(cors.Config{
		AllowOrigins:     allowedOrigins,
		AllowMethods:     "GET,POST,PUT,DELETE,OPTIONS",
		AllowHeaders:     "Origin,Content-Type,Accept,Authorization",
		AllowCredentials: allowedOrigins != "*",
	}))

	app.Use("/api", middleware.APIRateLimit(0, 0))

	// Handlers
	healthHandler := handlers.NewHealthHandler(db)
	authHandler := handlers.NewAuthHandler(userService, jwtAuth)
	workflowHandler := handlers.NewWorkflowHandler(workflowService, runner)
	executionHandler := handlers.NewExecutionHandler(executionService)
	nodeTypeHandler := handlers.NewNodeTypeHandler(nodeTypeService, runtime)
	credentialHandler := handlers.NewCredentialHandler(credentialService)

	// Routes
	app.Get("/health", healthHandler.Handle)

	api := app.Group("/api")
	api.Post("/auth/login", authHandler.Login)
	api.Post("/auth/refresh", authHandler.Refresh)

	authed := api.Group("", middleware.Auth(jwtAuth))
	authed.Post("/auth/register", middleware.RequireRole("admin"), authHandler.Register)

	authed.Post("/workflows", middleware.RequireRole("admin", "manager"), workflowHandler.Create)
	authed.Get("/workflows/:id", workflowHandler.Get)
	authed.Put("/workflows/:id/graph", middleware.RequireRole("admin", "manager"), workflowHandler.UpdateGraph)
	authed.Post("/workflows/:id/run", middleware.ExecutionRateLimit(0, 0), workflowHandler.Run)
	authed.Post("/workflows/:id/run-async", middleware.ExecutionRateLimit(0, 0), workflowHandler.RunAsync)

	authed.Get("/executions/:id", executionHandler.Get)
	authed.Get("/executions/:id/logs", executionHandler.Logs)
	authed.Get("/executions/:id/nodes", executionHandler.Nodes)

	authed.Get("/node-types", nodeTypeHandler.List)
	authed.Get("/node-types/:name", nodeTypeHandler.Get)
	authed.Put("/node-types/:name", middleware.RequireRole("admin"), nodeTypeHandler.Upsert)

	authed.Get("/credentials", middleware.RequireRole("admin"), credentialHandler.List)
	authed.Put("/credentials/:key", middleware.RequireRole("admin"), credentialHandler.Set)
	authed.Delete("/credentials/:key", middleware.RequireRole("admin"), credentialHandler.Delete)

	// Graceful shutdown
	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		<-sigChan

		log.Println("\n🛑 Shutting down server...")

		if err := schedulerService.Stop(); err != nil {
			log.Printf("⚠️ Error stopping scheduler: %v", err)
		}

		if err := app.Shutdown(); err != nil {
			log.Printf("⚠️ Error shutting down server: %v", err)
		}
	}()

	if err := app.Listen(":" + cfg.Port); err != nil {
		log.Fatalf("❌ Failed to start server: %v", err)
	}
}
