package services

import (
	"errors"
	"fmt"
	"math"
	"strings"
)

// Predictor は特徴量ベクトルから重症度スコアを推定します。
type Predictor interface {
	Predict(features []float64) float64
}

// LinearModel 重回帰モデル（起動時に学習し、以後は読み取り専用）
type LinearModel struct {
	Features     []string  `json:"features"`
	Intercept    float64   `json:"intercept"`
	Coefficients []float64 `json:"coefficients"`
}

// Predict 切片 + Σ 係数×特徴量
func (m *LinearModel) Predict(features []float64) float64 {
	y := m.Intercept
	for i, c := range m.Coefficients {
		if i < len(features) {
			y += c * features[i]
		}
	}
	return y
}

// String 回帰式の表示
func (m *LinearModel) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "y = %.3f", m.Intercept)
	for i, c := range m.Coefficients {
		name := fmt.Sprintf("x%d", i)
		if i < len(m.Features) {
			name = m.Features[i]
		}
		fmt.Fprintf(&b, " %+.3f*%s", c, name)
	}
	return b.String()
}

// FitLinearModel は最小二乗法で切片付きの重回帰を学習します。
// X は行（サンプル）×列（特徴量）。正規方程式をコレスキー分解で解きます。
func FitLinearModel(features []string, X [][]float64, y []float64) (*LinearModel, error) {
	n := len(y)
	if n == 0 || len(X) != n {
		return nil, fmt.Errorf("データ数が不正です: X=%d, y=%d", len(X), n)
	}
	k := len(features)
	for i, row := range X {
		if len(row) != k {
			return nil, fmt.Errorf("行 %d の列数が一致しません: %d != %d", i, len(row), k)
		}
		if !allFinite(row) || !allFinite(y[i:i+1]) {
			return nil, fmt.Errorf("行 %d に有限でない値が含まれています", i)
		}
	}
	if n < 2 {
		return nil, errors.New("学習には2件以上のデータが必要です")
	}

	// 先頭列を切片(1)とした設計行列で X'X と X'y を構築
	p := k + 1
	XtX := make([][]float64, p)
	for i := range XtX {
		XtX[i] = make([]float64, p)
	}
	Xty := make([]float64, p)
	row := make([]float64, p)
	for t := 0; t < n; t++ {
		row[0] = 1
		copy(row[1:], X[t])
		for i := 0; i < p; i++ {
			Xty[i] += row[i] * y[t]
			for j := 0; j <= i; j++ {
				XtX[i][j] += row[i] * row[j]
			}
		}
	}
	for i := 0; i < p; i++ {
		for j := i + 1; j < p; j++ {
			XtX[i][j] = XtX[j][i]
		}
	}

	beta, err := solveSymmetric(XtX, Xty)
	if errors.Is(err, errNotPositiveDefinite) {
		// 定数列や共線性がある場合は微小なリッジ項を加えて解く
		for i := 1; i < p; i++ {
			XtX[i][i] += 1e-6 * float64(n)
		}
		beta, err = solveSymmetric(XtX, Xty)
	}
	if err != nil {
		return nil, fmt.Errorf("回帰係数の計算に失敗しました: %w", err)
	}
	if !allFinite(beta) {
		return nil, errors.New("回帰係数が有限の値になりません")
	}

	names := make([]string, k)
	copy(names, features)
	return &LinearModel{
		Features:     names,
		Intercept:    beta[0],
		Coefficients: beta[1:],
	}, nil
}

func allFinite(values []float64) bool {
	for _, v := range values {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}
