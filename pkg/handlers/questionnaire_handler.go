package handlers

import (
	"errors"
	"fmt"
	"log"
	"net/http"
	"strings"

	"mindcheck-web/pkg/models"
	"mindcheck-web/pkg/services"

	"github.com/gin-gonic/gin"
)

// CookieSettings セッションCookieの設定
type CookieSettings struct {
	Name   string
	MaxAge int // 秒
	Secure bool
}

// QuestionnaireHandler 同意画面・質問・結果の3画面を扱うハンドラー
type QuestionnaireHandler struct {
	questionnaire *models.Questionnaire
	scoring       *services.ScoringService
	sessions      services.SessionStore
	monitoring    *services.MonitoringService
	cookie        CookieSettings
}

// NewQuestionnaireHandler は新しいQuestionnaireHandlerを生成します。
// monitoring は nil でも構いません。
func NewQuestionnaireHandler(
	qn *models.Questionnaire,
	scoring *services.ScoringService,
	sessions services.SessionStore,
	monitoring *services.MonitoringService,
	cookie CookieSettings,
) *QuestionnaireHandler {
	return &QuestionnaireHandler{
		questionnaire: qn,
		scoring:       scoring,
		sessions:      sessions,
		monitoring:    monitoring,
		cookie:        cookie,
	}
}

// Welcome 同意画面
func (h *QuestionnaireHandler) Welcome(c *gin.Context) {
	c.HTML(http.StatusOK, "welcome.html", gin.H{"total": h.questionnaire.Len()})
}

// Consent は同意を受け付けてセッションを開始します。
// 同意がなければ同意画面を再表示します。
func (h *QuestionnaireHandler) Consent(c *gin.Context) {
	if !isTruthy(c.PostForm("consent")) {
		c.HTML(http.StatusOK, "welcome.html", gin.H{
			"total":           h.questionnaire.Len(),
			"consentRequired": true,
		})
		return
	}

	// 途中のセッションがあれば破棄してやり直す
	if id, err := c.Cookie(h.cookie.Name); err == nil && id != "" {
		if err := h.sessions.Delete(c.Request.Context(), id); err != nil {
			log.Printf("⚠️ 既存セッションの削除に失敗しました: %v", err)
		}
	}

	state := models.NewSessionState(services.NewSessionID())
	if err := h.sessions.Save(c.Request.Context(), state); err != nil {
		h.renderError(c, fmt.Errorf("セッションの作成に失敗しました: %w", err))
		return
	}
	h.setSessionCookie(c, state.ID)
	c.Redirect(http.StatusSeeOther, "/questionnaire")
}

// ShowQuestion 現在のカーソル位置の質問を表示
func (h *QuestionnaireHandler) ShowQuestion(c *gin.Context) {
	state, ok := h.requireSession(c)
	if !ok {
		return
	}
	if state.Completed(h.questionnaire.Len()) {
		c.Redirect(http.StatusSeeOther, "/predict")
		return
	}
	h.renderQuestion(c, state)
}

// SubmitAnswer は回答を保存してカーソルを進めます。
// 不正な回答は無視して同じ質問を再表示します。
func (h *QuestionnaireHandler) SubmitAnswer(c *gin.Context) {
	state, ok := h.requireSession(c)
	if !ok {
		return
	}
	total := h.questionnaire.Len()
	if state.Completed(total) {
		c.Redirect(http.StatusSeeOther, "/predict")
		return
	}

	question, _ := h.questionnaire.At(state.Cursor)
	value, valid := question.ResolveAnswer(c.PostForm("answer"))
	if !valid {
		h.renderQuestion(c, state)
		return
	}

	state.Record(question.ID, value, total)
	if err := h.sessions.Save(c.Request.Context(), state); err != nil {
		h.renderError(c, fmt.Errorf("回答の保存に失敗しました: %w", err))
		return
	}
	// サーバー側の有効期限は Save ごとに延びるので Cookie も合わせて更新
	h.setSessionCookie(c, state.ID)

	if state.Completed(total) {
		c.Redirect(http.StatusSeeOther, "/predict")
		return
	}
	c.Redirect(http.StatusSeeOther, "/questionnaire")
}

// Predict スコアを計算して結果を表示し、セッションを破棄します。
func (h *QuestionnaireHandler) Predict(c *gin.Context) {
	state, ok := h.requireSession(c)
	if !ok {
		return
	}

	result, err := h.scoring.Score(state.Answers)
	if err != nil {
		h.renderError(c, fmt.Errorf("スコアの計算に失敗しました: %w", err))
		return
	}

	if err := h.sessions.Delete(c.Request.Context(), state.ID); err != nil {
		log.Printf("⚠️ セッションの削除に失敗しました: %v", err)
	}
	h.clearSessionCookie(c)
	if h.monitoring != nil {
		h.monitoring.RecordAssessment(result.Tier)
	}

	c.HTML(http.StatusOK, "result.html", gin.H{
		"score":    fmt.Sprintf("%.1f", result.Score),
		"tier":     result.Tier,
		"severity": result.Severity,
		"alert":    result.Alert,
		"msg":      result.Message,
	})
}

// requireSession はセッションを読み込みます。無ければ同意画面へリダイレクトし ok=false。
func (h *QuestionnaireHandler) requireSession(c *gin.Context) (*models.SessionState, bool) {
	id, err := c.Cookie(h.cookie.Name)
	if err != nil || id == "" {
		c.Redirect(http.StatusSeeOther, "/")
		return nil, false
	}

	state, err := h.sessions.Get(c.Request.Context(), id)
	if errors.Is(err, services.ErrSessionNotFound) {
		h.clearSessionCookie(c)
		c.Redirect(http.StatusSeeOther, "/")
		return nil, false
	}
	if err != nil {
		h.renderError(c, err)
		return nil, false
	}
	return state, true
}

func (h *QuestionnaireHandler) renderQuestion(c *gin.Context, state *models.SessionState) {
	question, _ := h.questionnaire.At(state.Cursor)
	total := h.questionnaire.Len()
	c.HTML(http.StatusOK, "question.html", gin.H{
		"qNum":     state.Cursor + 1,
		"total":    total,
		"question": question.Text,
		"options":  question.Options,
		"progress": state.Cursor * 100 / total,
	})
}

func (h *QuestionnaireHandler) renderError(c *gin.Context, err error) {
	log.Printf("❌ %s %s: %v", c.Request.Method, c.Request.URL.Path, err)
	c.HTML(http.StatusInternalServerError, "error.html", gin.H{
		"message": "Something went wrong. Please start again.",
	})
}

func (h *QuestionnaireHandler) setSessionCookie(c *gin.Context, id string) {
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(h.cookie.Name, id, h.cookie.MaxAge, "/", "", h.cookie.Secure, true)
}

func (h *QuestionnaireHandler) clearSessionCookie(c *gin.Context) {
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(h.cookie.Name, "", -1, "/", "", h.cookie.Secure, true)
}

func isTruthy(v string) bool {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "1", "on", "true", "yes", "y":
		return true
	}
	return false
}
