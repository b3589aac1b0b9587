package handlers

import (
	config "mindcheck-web/configs"
	"mindcheck-web/pkg/models"
	"mindcheck-web/pkg/services"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

// Dependencies ルーターに渡す起動時に確定した依存関係
type Dependencies struct {
	Config        *config.Config
	Questionnaire *models.Questionnaire
	Scoring       *services.ScoringService
	Sessions      services.SessionStore
	Monitoring    *services.MonitoringService
}

// RegisterRoutes はミドルウェアとルートを登録し、管理ハンドラーを返します。
func RegisterRoutes(r *gin.Engine, deps Dependencies) *AdminHandler {
	r.SetHTMLTemplate(LoadTemplates())
	r.StaticFS("/static", StaticFileSystem())

	questionnaireHandler := NewQuestionnaireHandler(
		deps.Questionnaire,
		deps.Scoring,
		deps.Sessions,
		deps.Monitoring,
		CookieSettings{
			Name:   deps.Config.SessionCookie,
			MaxAge: int(deps.Config.SessionTTL.Seconds()),
			Secure: deps.Config.CookieSecure,
		},
	)
	adminHandler := NewAdminHandler(deps.Config, deps.Scoring)
	monitoringHandler := NewMonitoringHandler(deps.Monitoring)

	// ミドルウェアの登録
	r.Use(deps.Monitoring.LoggingMiddleware())
	r.Use(cors.Default())

	// ヘルスチェックエンドポイント
	r.GET("/health", adminHandler.HealthCheck)

	// 質問票（メンテナンス中は停止）
	form := r.Group("/")
	form.Use(adminHandler.MaintenanceGuard())
	{
		form.GET("/", questionnaireHandler.Welcome)
		form.POST("/", questionnaireHandler.Consent)
		form.GET("/questionnaire", questionnaireHandler.ShowQuestion)
		form.POST("/questionnaire", questionnaireHandler.SubmitAnswer)
		form.GET("/predict", questionnaireHandler.Predict)
	}

	// 管理者向けAPI
	admin := r.Group("/admin")
	{
		admin.GET("/health-status", adminHandler.GetHealthStatus)
		admin.POST("/maintenance/start", adminHandler.StartMaintenance)
		admin.POST("/maintenance/stop", adminHandler.StopMaintenance)
	}

	// モニタリングAPI（管理者パスワード設定時はBasic認証）
	monitoring := r.Group("/monitoring")
	if deps.Config.AdminPassword != "" {
		monitoring.Use(gin.BasicAuth(gin.Accounts{deps.Config.AdminUsername: deps.Config.AdminPassword}))
	}
	{
		monitoring.GET("/logs", monitoringHandler.GetLogs)
	}

	return adminHandler
}
