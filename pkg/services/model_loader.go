package services

import (
	"errors"
	"fmt"
	"io/fs"
	"log"
	"os"

	"mindcheck-web/pkg/models"
)

// ModelOptions 学習データの読み込み設定
type ModelOptions struct {
	DataPath  string
	Sheet     string
	TestRatio float64
	Seed      int64
}

// TrainingReport 学習結果の診断情報（起動ログ用）
type TrainingReport struct {
	Rows      int
	TrainRows int
	TestRows  int
	MSE       float64
	HasMSE    bool
}

// LoadModel は学習データがあれば線形回帰モデルを学習して返します。
// ファイルが存在しない場合はエラーではなく (nil, nil, nil) を返し、
// 呼び出し側は平均スコアにフォールバックします。
func LoadModel(opts ModelOptions, qn *models.Questionnaire) (*LinearModel, *TrainingReport, error) {
	if opts.DataPath == "" {
		log.Println("ℹ️ 学習データのパスが未設定です。平均スコアを使用します。")
		return nil, nil, nil
	}
	if _, err := os.Stat(opts.DataPath); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			log.Printf("ℹ️ 学習データ %s が見つかりません。平均スコアを使用します。", opts.DataPath)
			return nil, nil, nil
		}
		return nil, nil, fmt.Errorf("学習データを確認できません: %w", err)
	}

	set, err := LoadTrainingSet(opts.DataPath, opts.Sheet, qn)
	if err != nil {
		return nil, nil, fmt.Errorf("学習データの読み込みに失敗しました: %w", err)
	}
	for col, enc := range set.Encodings {
		log.Printf("🔤 カテゴリ列 %s をエンコードしました: %v", col, enc)
	}

	model, report, err := TrainModel(set, opts.TestRatio, opts.Seed)
	if err != nil {
		return nil, nil, err
	}

	if report.HasMSE {
		log.Printf("✅ モデル学習完了 (train=%d, test=%d) MSE: %.2f", report.TrainRows, report.TestRows, report.MSE)
	} else {
		log.Printf("✅ モデル学習完了 (train=%d)", report.TrainRows)
	}
	return model, report, nil
}

// TrainModel は学習データを分割して回帰モデルを学習し、検証用データのMSEを計算します。
func TrainModel(set *TrainingSet, testRatio float64, seed int64) (*LinearModel, *TrainingReport, error) {
	train, test := SplitTrainTest(set, testRatio, seed)

	model, err := FitLinearModel(set.Features, train.X, train.Y)
	if err != nil {
		return nil, nil, err
	}

	report := &TrainingReport{Rows: set.Len(), TrainRows: train.Len()}
	if test != nil {
		predicted := make([]float64, test.Len())
		for i, x := range test.X {
			predicted[i] = model.Predict(x)
		}
		report.TestRows = test.Len()
		report.MSE = meanSquaredError(test.Y, predicted)
		report.HasMSE = true
	}
	return model, report, nil
}
