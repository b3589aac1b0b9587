package handlers

import (
	"crypto/subtle"
	"log"
	"net/http"
	"strings"
	"sync/atomic"

	config "mindcheck-web/configs"
	"mindcheck-web/pkg/services"

	"github.com/gin-gonic/gin"
)

// AdminHandler は管理者向け操作とヘルスチェックのハンドラです。
type AdminHandler struct {
	AdminUsername string
	AdminPassword string

	scoring *services.ScoringService
	// メンテナンス中は質問票の画面を停止する
	maintenance atomic.Bool
}

// NewAdminHandler は新しいAdminHandlerを生成します。
func NewAdminHandler(cfg *config.Config, scoring *services.ScoringService) *AdminHandler {
	return &AdminHandler{
		AdminUsername: cfg.AdminUsername,
		AdminPassword: cfg.AdminPassword,
		scoring:       scoring,
	}
}

// AdminCredentials は管理者認証のためのリクエストボディです。
type AdminCredentials struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// InMaintenance 現在メンテナンスモードかどうか
func (h *AdminHandler) InMaintenance() bool {
	return h.maintenance.Load()
}

// StartMaintenance はメンテナンスモードを開始します。
func (h *AdminHandler) StartMaintenance(c *gin.Context) {
	if !h.authorize(c) {
		return
	}
	h.maintenance.Store(true)
	log.Println("🛠️ メンテナンスモードを開始しました")
	c.JSON(http.StatusOK, gin.H{"message": "Maintenance mode started"})
}

// StopMaintenance はメンテナンスモードを停止します。
func (h *AdminHandler) StopMaintenance(c *gin.Context) {
	if !h.authorize(c) {
		return
	}
	h.maintenance.Store(false)
	log.Println("🛠️ メンテナンスモードを終了しました")
	c.JSON(http.StatusOK, gin.H{"message": "Maintenance mode stopped"})
}

// GetHealthStatus は現在のサーバーの状態を返します。
func (h *AdminHandler) GetHealthStatus(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"isMaintenanceMode": h.InMaintenance(),
		"scoringMethod":     h.scoring.Method(),
	})
}

// HealthCheck は外部のヘルスチェッカー（例: ロードバランサー）からのリクエストに応答します。
func (h *AdminHandler) HealthCheck(c *gin.Context) {
	if h.InMaintenance() {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable", "message": "Server is in maintenance mode"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok", "scoringMethod": h.scoring.Method()})
}

// MaintenanceGuard はメンテナンス中に質問票の画面を503で止めるミドルウェアです。
func (h *AdminHandler) MaintenanceGuard() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !h.InMaintenance() {
			c.Next()
			return
		}
		c.HTML(http.StatusServiceUnavailable, "welcome.html", gin.H{"maintenance": true})
		c.Abort()
	}
}

func (h *AdminHandler) authorize(c *gin.Context) bool {
	if strings.TrimSpace(h.AdminPassword) == "" {
		c.JSON(http.StatusForbidden, gin.H{"error": "Admin API is disabled"})
		return false
	}

	var input AdminCredentials
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Username and password are required"})
		return false
	}

	userOK := subtle.ConstantTimeCompare([]byte(input.Username), []byte(h.AdminUsername)) == 1
	passOK := subtle.ConstantTimeCompare([]byte(input.Password), []byte(h.AdminPassword)) == 1
	if !userOK || !passOK {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid credentials"})
		return false
	}
	return true
}
