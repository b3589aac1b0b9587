package services

import (
	"errors"
	"math"
)

var errNotPositiveDefinite = errors.New("行列が正定値ではありません")

// solveSymmetric solves A*x=b for symmetric positive definite A by Cholesky
func solveSymmetric(A [][]float64, b []float64) ([]float64, error) {
	n := len(A)
	if n == 0 {
		return nil, errors.New("空の行列です")
	}
	for _, row := range A {
		if len(row) != n {
			return nil, errors.New("正方行列ではありません")
		}
	}
	if len(b) != n {
		return nil, errors.New("右辺ベクトルの長さが一致しません")
	}
	// copy A to L
	L := make([][]float64, n)
	for i := 0; i < n; i++ {
		L[i] = make([]float64, n)
		copy(L[i], A[i])
	}
	// Cholesky decomposition
	for i := 0; i < n; i++ {
		for j := 0; j <= i; j++ {
			var sum float64
			for k := 0; k < j; k++ {
				sum += L[i][k] * L[j][k]
			}
			if i == j {
				val := L[i][i] - sum
				if val <= 1e-12 {
					return nil, errNotPositiveDefinite
				}
				L[i][j] = math.Sqrt(val)
			} else {
				L[i][j] = (L[i][j] - sum) / L[j][j]
			}
		}
		for j := i + 1; j < n; j++ {
			L[i][j] = 0
		}
	}
	// Forward substitution
	y := make([]float64, n)
	for i := 0; i < n; i++ {
		var sum float64
		for j := 0; j < i; j++ {
			sum += L[i][j] * y[j]
		}
		y[i] = (b[i] - sum) / L[i][i]
	}
	// Back substitution
	x := make([]float64, n)
	for i := n - 1; i >= 0; i-- {
		var sum float64
		for j := i + 1; j < n; j++ {
			sum += L[j][i] * x[j]
		}
		x[i] = (y[i] - sum) / L[i][i]
	}
	return x, nil
}

// calculateMean パッケージ内部用のヘルパー関数：平均値を計算
func calculateMean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sum := 0.0
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

// meanSquaredError 平均二乗誤差
func meanSquaredError(actual, predicted []float64) float64 {
	if len(actual) == 0 || len(actual) != len(predicted) {
		return 0
	}
	var sum float64
	for i := range actual {
		d := actual[i] - predicted[i]
		sum += d * d
	}
	return sum / float64(len(actual))
}

// clamp は v を [lo, hi] に収めます。
func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}

// roundTo1 小数第1位に丸める
func roundTo1(v float64) float64 {
	return math.Round(v*10) / 10
}
