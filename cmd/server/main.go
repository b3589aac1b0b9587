package main

import (
	"context"
	"fmt"
	"log"
	"time"

	config "mindcheck-web/configs"
	"mindcheck-web/pkg/handlers"
	"mindcheck-web/pkg/models"
	"mindcheck-web/pkg/services"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
)

func main() {
	// .envファイルを読み込み
	if err := godotenv.Load(); err != nil {
		log.Printf("Warning: .env file not found or could not be loaded: %v", err)
	}

	// 設定の読み込み
	cfg := config.LoadConfig()
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx := context.Background()

	// 質問票とモデルは起動時に一度だけ用意し、以後は読み取り専用
	questionnaire := models.DefaultQuestionnaire()
	scoring, err := newScoringService(cfg, questionnaire)
	if err != nil {
		log.Fatalf("FATAL: モデルの学習に失敗しました: %v", err)
	}
	log.Printf("📈 スコアリング方式: %s", scoring.Method())

	sessions, err := newSessionStore(ctx, cfg)
	if err != nil {
		log.Fatalf("FATAL: セッションストアを初期化できません: %v", err)
	}

	monitoringService := services.NewMonitoringService("/static", "/admin", "/monitoring")

	// Ginルーターの初期化
	r := gin.Default()
	handlers.RegisterRoutes(r, handlers.Dependencies{
		Config:        cfg,
		Questionnaire: questionnaire,
		Scoring:       scoring,
		Sessions:      sessions,
		Monitoring:    monitoringService,
	})

	log.Printf("Starting MindCheck server on :%s", cfg.Port)
	if err := r.Run(":" + cfg.Port); err != nil {
		log.Fatal("Failed to start server:", err)
	}
}

// newScoringService 学習データがあれば回帰モデル、なければ平均スコアを使う
func newScoringService(cfg *config.Config, qn *models.Questionnaire) (*services.ScoringService, error) {
	model, _, err := services.LoadModel(services.ModelOptions{
		DataPath:  cfg.TrainingDataPath,
		Sheet:     cfg.TrainingSheet,
		TestRatio: cfg.TrainingTestRatio,
		Seed:      cfg.TrainingSeed,
	}, qn)
	if err != nil {
		return nil, err
	}
	if model == nil {
		return services.NewScoringService(qn, nil), nil
	}
	log.Printf("🧮 回帰式: %s", model)
	return services.NewScoringService(qn, model), nil
}

// newSessionStore SESSION_STORE に応じてセッションストアを生成
func newSessionStore(ctx context.Context, cfg *config.Config) (services.SessionStore, error) {
	switch cfg.SessionStore {
	case "", "memory":
		store := services.NewMemorySessionStore(cfg.SessionTTL)
		store.StartSweeper(ctx, time.Minute)
		log.Printf("🗂️ セッションストア: memory (TTL %s)", cfg.SessionTTL)
		return store, nil
	case "redis":
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		if err := client.Ping(pingCtx).Err(); err != nil {
			client.Close()
			return nil, fmt.Errorf("redis %s に接続できません: %w", cfg.RedisAddr, err)
		}
		log.Printf("🗂️ セッションストア: redis %s (TTL %s)", cfg.RedisAddr, cfg.SessionTTL)
		return services.NewRedisSessionStore(client, cfg.SessionTTL), nil
	default:
		return nil, fmt.Errorf("未対応のSESSION_STORE: %s", cfg.SessionStore)
	}
}
