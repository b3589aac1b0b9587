package models

import "time"

// SessionState 訪問者ごとの回答状態
type SessionState struct {
	ID        string         `json:"id"`
	Answers   map[string]int `json:"answers"` // 質問ID -> 数値コード
	Cursor    int            `json:"cursor"`  // 次に表示する質問のインデックス
	CreatedAt time.Time      `json:"created_at"`
}

// NewSessionState 同意直後の空の状態を生成
func NewSessionState(id string) *SessionState {
	return &SessionState{
		ID:        id,
		Answers:   make(map[string]int),
		Cursor:    0,
		CreatedAt: time.Now(),
	}
}

// Record は現在の質問への回答を保存し、カーソルを進めます。
// total を超えてカーソルが進むことはありません。
func (s *SessionState) Record(questionID string, value, total int) {
	if s.Answers == nil {
		s.Answers = make(map[string]int)
	}
	s.Answers[questionID] = value
	if s.Cursor < total {
		s.Cursor++
	}
}

// Completed 全問回答済みかどうか
func (s *SessionState) Completed(total int) bool {
	return s.Cursor >= total
}

// RiskTier リスク区分
type RiskTier string

const (
	RiskLow      RiskTier = "low"
	RiskModerate RiskTier = "moderate"
	RiskHigh     RiskTier = "high"
)

// AssessmentResult スコアリング結果（保存はしない）
type AssessmentResult struct {
	Score    float64  `json:"score"`    // 0.0 - 10.0, 小数第1位
	Tier     RiskTier `json:"tier"`     // low / moderate / high
	Severity string   `json:"severity"` // 表示用の重症度
	Message  string   `json:"message"`  // アドバイス文
	Alert    string   `json:"alert"`    // 表示スタイル (success / warning / danger)
	Method   string   `json:"method"`   // "regression" or "average"
}
