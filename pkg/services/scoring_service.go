package services

import (
	"errors"
	"math"

	"mindcheck-web/pkg/models"
)

const (
	// MaxScore スコアの上限
	MaxScore = 10.0
	// averageScale 回答平均 [0,4] を [0,10] に写す係数
	averageScale = 2.5

	lowRiskUpper      = 3.0
	moderateRiskUpper = 6.0
)

// ErrInvalidScore モデルの出力が数値にならなかった
var ErrInvalidScore = errors.New("モデルの出力が不正です (NaN)")

// ScoringService は回答からリスクスコアを算出します。
// 起動後は不変で、全リクエストから共有されます。
type ScoringService struct {
	questionnaire *models.Questionnaire
	predictor     Predictor
}

// NewScoringService predictor が nil の場合は平均スコアを使用します。
func NewScoringService(qn *models.Questionnaire, predictor Predictor) *ScoringService {
	s := &ScoringService{questionnaire: qn}
	// 型付き nil (*LinearModel)(nil) を平均スコア扱いにする
	if m, ok := predictor.(*LinearModel); ok && m == nil {
		predictor = nil
	}
	s.predictor = predictor
	return s
}

// Method 使用しているスコアリング方式
func (s *ScoringService) Method() string {
	if s.predictor != nil {
		return "regression"
	}
	return "average"
}

// Score は回答を質問順のベクトルに変換し、スコアとリスク区分を返します。
// 出力が NaN の場合は [0,10] に収められないため ErrInvalidScore を返します。
func (s *ScoringService) Score(answers map[string]int) (models.AssessmentResult, error) {
	vec := s.questionnaire.Vector(answers)

	var raw float64
	if s.predictor != nil {
		raw = s.predictor.Predict(vec)
	} else {
		raw = calculateMean(vec) * averageScale
	}

	if math.IsNaN(raw) {
		return models.AssessmentResult{}, ErrInvalidScore
	}

	score := roundTo1(clamp(raw, 0, MaxScore))
	result := ClassifyScore(score)
	result.Method = s.Method()
	return result, nil
}

// ClassifyScore スコアをリスク区分に変換
func ClassifyScore(score float64) models.AssessmentResult {
	switch {
	case score <= lowRiskUpper:
		return models.AssessmentResult{
			Score:    score,
			Tier:     models.RiskLow,
			Severity: "Low",
			Message:  "Low risk – Keep up healthy habits!",
			Alert:    "success",
		}
	case score <= moderateRiskUpper:
		return models.AssessmentResult{
			Score:    score,
			Tier:     models.RiskModerate,
			Severity: "Moderate",
			Message:  "Moderate risk – Consider talking to someone.",
			Alert:    "warning",
		}
	default:
		return models.AssessmentResult{
			Score:    score,
			Tier:     models.RiskHigh,
			Severity: "High",
			Message:  "High risk – Please see a doctor or counselor.",
			Alert:    "danger",
		}
	}
}
