package main

import (
	"context"
	"log"
	"os"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/AlexandrLebegue/thesis-llm/internal/agent"
	"github.com/AlexandrLebegue/thesis-llm/internal/api"
	"github.com/AlexandrLebegue/thesis-llm/internal/auth"
	"github.com/AlexandrLebegue/thesis-llm/internal/config"
	"github.com/AlexandrLebegue/thesis-llm/internal/llm"
	"github.com/AlexandrLebegue/thesis-llm/internal/pdfquery"
	"github.com/AlexandrLebegue/thesis-llm/internal/redis"
	"github.com/AlexandrLebegue/thesis-llm/internal/scratch"
	"github.com/AlexandrLebegue/thesis-llm/internal/service/chat"
	"github.com/AlexandrLebegue/thesis-llm/internal/storage"
	"github.com/AlexandrLebegue/thesis-llm/internal/worker"
)

func main() {
	cfgPath := os.Getenv("THESISLLM_CONFIG")
	cfg, err := config.Load(cfgPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	prompts, err := config.LoadPrompts(os.Getenv("THESISLLM_PROMPTS"))
	if err != nil {
		log.Printf("using built-in prompts: %v", err)
	}

	dbType := os.Getenv("THESISLLM_DB")
	if dbType == "" {
		dbType = "sqlite3"
	}
	log.Printf("dbType: %s", dbType)
	db, err := storage.Open(dbType, cfg)
	if err != nil {
		log.Fatalf("open database: %v", err)
	}
	defer db.Close()
	if err := storage.Migrate(db, dbType); err != nil {
		log.Fatalf("migrate database: %v", err)
	}

	rdb, err := redis.NewRedisClient(cfg)
	if err != nil {
		log.Printf("redis unavailable, history caching disabled: %v", err)
		rdb = nil
	} else {
		defer rdb.Close()
	}

	uploadTTL := time.Duration(cfg.BasicConfig.UploadTTL) * time.Minute
	store := scratch.NewStore(db, cfg.BasicConfig.ScratchDir, uploadTTL)
	// uploads and generated documents never survive a restart
	if err := store.Wipe(); err != nil {
		log.Fatalf("prepare scratch dir: %v", err)
	}

	visitorTTL := time.Duration(cfg.BasicConfig.VisitorTTL) * time.Minute
	authService := auth.NewService(db, visitorTTL)

	pdfTool := newPDFQueryTool(cfg)
	toolbox := agent.NewToolbox(pdfTool, prompts.AnalystPrompt, store.RecordArtifact)
	agentService, err := agent.NewService(cfg, toolbox.Tools())
	if err != nil {
		log.Fatalf("init agent service: %v", err)
	}

	chatService := chat.NewService(db, store, agentService, prompts)
	workers := worker.NewManager(chatService, rdb)

	cleanCtx, cleanCancel := context.WithCancel(context.Background())
	defer cleanCancel()
	cleanInterval := time.Duration(cfg.BasicConfig.CleanupInterval) * time.Minute
	scratch.NewCleaner(db, store, authService, cleanInterval).Start(cleanCtx)

	handlers := api.NewHandler(authService, chatService, store, workers, cfg)
	router := gin.Default()
	handlers.RegisterRoutes(router)

	addr := cfg.BasicConfig.ServerAddress
	if err := router.Run(addr); err != nil {
		log.Fatalf("server stopped: %v", err)
	}
}

// newPDFQueryTool binds the question-answering tool to an OpenAI-compatible
// completion endpoint. The "openai" provider is preferred because the tool
// speaks that wire format; otherwise the agent's provider is used as-is.
func newPDFQueryTool(cfg *config.Config) *pdfquery.Tool {
	prov, ok := cfg.Providers["openai"]
	if !ok {
		prov = cfg.Providers[cfg.Agent.Provider]
	}
	client := llm.NewClient(llm.Config{
		BaseURL: prov.BaseURL,
		Model:   cfg.Agent.Model,
		APIKey:  prov.APIKey,
		Timeout: time.Duration(cfg.Agent.RequestTimeout) * time.Second,
	})
	return pdfquery.New(pdfquery.Options{
		Completer:   client,
		APIKey:      prov.APIKey,
		Model:       cfg.Agent.Model,
		Temperature: cfg.Agent.Temperature,
		MaxTokens:   cfg.Agent.MaxTokens,
	})
}
