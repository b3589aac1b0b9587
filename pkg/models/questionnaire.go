package models

import (
	"fmt"
	"strconv"
	"strings"
)

// Option 回答の選択肢（表示ラベルと数値コードの組）
type Option struct {
	Label string `json:"label"` // 表示ラベル (例: "Often")
	Value int    `json:"value"` // 数値コード (例: 3)
}

// Display は "Often (3)" 形式の表示文字列を返します。
func (o Option) Display() string {
	return fmt.Sprintf("%s (%d)", o.Label, o.Value)
}

// Question 質問票の1問
type Question struct {
	ID      string   `json:"id"`      // 特徴量名と同じキー
	Text    string   `json:"text"`    // 質問文
	Options []Option `json:"options"` // 選択肢（表示順）
}

// ResolveAnswer は送信された回答文字列を選択肢に照合します。
// 数値コード ("3") と表示文字列 ("Often (3)") のどちらも受け付け、
// 選択肢にない値は ok=false を返します。
func (q Question) ResolveAnswer(raw string) (int, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, false
	}
	if v, err := strconv.Atoi(raw); err == nil {
		for _, opt := range q.Options {
			if opt.Value == v {
				return v, true
			}
		}
		return 0, false
	}
	for _, opt := range q.Options {
		if raw == opt.Display() || strings.EqualFold(raw, opt.Label) {
			return opt.Value, true
		}
	}
	return 0, false
}

// MaxValue 選択肢の最大コード
func (q Question) MaxValue() int {
	max := 0
	for _, opt := range q.Options {
		if opt.Value > max {
			max = opt.Value
		}
	}
	return max
}

// Questionnaire 起動時に確定する不変の質問リスト
type Questionnaire struct {
	questions []Question
	index     map[string]int
}

// NewQuestionnaire は質問リストから Questionnaire を生成します。
// ID の重複や選択肢の欠落はエラーになります。
func NewQuestionnaire(questions []Question) (*Questionnaire, error) {
	if len(questions) == 0 {
		return nil, fmt.Errorf("質問が1件もありません")
	}
	qs := make([]Question, len(questions))
	index := make(map[string]int, len(questions))
	for i, q := range questions {
		if q.ID == "" {
			return nil, fmt.Errorf("質問 %d のIDが空です", i)
		}
		if _, dup := index[q.ID]; dup {
			return nil, fmt.Errorf("質問IDが重複しています: %s", q.ID)
		}
		if len(q.Options) == 0 {
			return nil, fmt.Errorf("質問 %s に選択肢がありません", q.ID)
		}
		opts := make([]Option, len(q.Options))
		copy(opts, q.Options)
		q.Options = opts
		qs[i] = q
		index[q.ID] = i
	}
	return &Questionnaire{questions: qs, index: index}, nil
}

// Len 質問数
func (qn *Questionnaire) Len() int {
	return len(qn.questions)
}

// At は cursor 位置の質問を返します。
func (qn *Questionnaire) At(cursor int) (Question, bool) {
	if cursor < 0 || cursor >= len(qn.questions) {
		return Question{}, false
	}
	return qn.questions[cursor], true
}

// ByID はIDから質問を返します。
func (qn *Questionnaire) ByID(id string) (Question, bool) {
	i, ok := qn.index[id]
	if !ok {
		return Question{}, false
	}
	return qn.questions[i], true
}

// IDs 質問IDを質問順で返します（特徴量の列順と一致）。
func (qn *Questionnaire) IDs() []string {
	ids := make([]string, len(qn.questions))
	for i, q := range qn.questions {
		ids[i] = q.ID
	}
	return ids
}

// Vector は回答を質問順の特徴量ベクトルに変換します。未回答は0。
func (qn *Questionnaire) Vector(answers map[string]int) []float64 {
	vec := make([]float64, len(qn.questions))
	for i, q := range qn.questions {
		vec[i] = float64(answers[q.ID])
	}
	return vec
}

var frequencyOptions = []Option{
	{Label: "Never", Value: 0},
	{Label: "Rarely", Value: 1},
	{Label: "Sometimes", Value: 2},
	{Label: "Often", Value: 3},
	{Label: "Always", Value: 4},
}

// Categorical columns in the training data.
const (
	QuestionIncomeLevel      = "income_level"
	QuestionEmploymentStatus = "employment_status"
)

// DefaultQuestions 標準の10問
func DefaultQuestions() []Question {
	return []Question{
		{ID: "sadness", Text: "How often do you feel sad or down?", Options: frequencyOptions},
		{ID: "sleep_disturbance", Text: "How often do you have trouble sleeping?", Options: frequencyOptions},
		{ID: "body_pain", Text: "How often do you feel body pain or heaviness?", Options: frequencyOptions},
		{ID: "loss_of_interest", Text: "How often do you lose interest in things you used to enjoy?", Options: frequencyOptions},
		{ID: "fatigue", Text: "How often do you feel tired or have low energy?", Options: frequencyOptions},
		{ID: "guilt", Text: "How often do you feel worthless or guilty?", Options: frequencyOptions},
		{ID: "concentration", Text: "How often do you have trouble concentrating?", Options: frequencyOptions},
		{ID: QuestionIncomeLevel, Text: "What is your income level?", Options: []Option{
			{Label: "Low", Value: 0},
			{Label: "Medium", Value: 1},
			{Label: "High", Value: 2},
		}},
		{ID: QuestionEmploymentStatus, Text: "What is your employment status?", Options: []Option{
			{Label: "Unemployed", Value: 0},
			{Label: "Employed", Value: 1},
			{Label: "Student", Value: 2},
		}},
		{ID: "hopelessness", Text: "How often do you feel hopeless about the future?", Options: frequencyOptions},
	}
}

// DefaultQuestionnaire は標準の10問から Questionnaire を生成します。
func DefaultQuestionnaire() *Questionnaire {
	qn, err := NewQuestionnaire(DefaultQuestions())
	if err != nil {
		panic(err)
	}
	return qn
}
