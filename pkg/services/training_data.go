package services

import (
	"encoding/csv"
	"fmt"
	"io"
	"math"
	"math/rand"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"mindcheck-web/pkg/models"

	"github.com/xuri/excelize/v2"
)

// TargetColumn 学習データの目的変数列
const TargetColumn = "severity"

// TrainingSet 学習用の特徴量行列と目的変数
type TrainingSet struct {
	Features []string
	X        [][]float64
	Y        []float64
	// 文字列カテゴリ列のエンコード結果（列名 -> ラベル -> コード）
	Encodings map[string]map[string]int
}

// Len サンプル数
func (ts *TrainingSet) Len() int {
	return len(ts.Y)
}

// subset は指定インデックスの行だけを持つ TrainingSet を返します。
func (ts *TrainingSet) subset(idx []int) *TrainingSet {
	out := &TrainingSet{
		Features:  ts.Features,
		X:         make([][]float64, len(idx)),
		Y:         make([]float64, len(idx)),
		Encodings: ts.Encodings,
	}
	for i, j := range idx {
		out.X[i] = ts.X[j]
		out.Y[i] = ts.Y[j]
	}
	return out
}

// LoadTrainingSet は CSV または XLSX から学習データを読み込みます。
// 特徴量の列順は質問票の順序に揃えます。
func LoadTrainingSet(path, sheet string, qn *models.Questionnaire) (*TrainingSet, error) {
	var rows [][]string
	var err error

	switch strings.ToLower(filepath.Ext(path)) {
	case ".xlsx", ".xlsm":
		rows, err = readExcelRows(path, sheet)
	default:
		rows, err = readCSVRows(path)
	}
	if err != nil {
		return nil, err
	}
	return buildTrainingSet(rows, qn)
}

func readCSVRows(path string) ([][]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("CSVファイルを開けません: %w", err)
	}
	defer f.Close()
	return parseCSV(f)
}

func parseCSV(r io.Reader) ([][]string, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true
	reader.FieldsPerRecord = -1
	rows, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("CSVの解析に失敗しました: %w", err)
	}
	return rows, nil
}

func readExcelRows(path, sheet string) ([][]string, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("Excelファイルを開けません: %w", err)
	}
	defer f.Close()

	if sheet == "" {
		sheet = f.GetSheetName(0)
	}
	rows, err := f.GetRows(sheet)
	if err != nil {
		return nil, fmt.Errorf("シート %q の読み込みに失敗しました: %w", sheet, err)
	}
	return rows, nil
}

func buildTrainingSet(rows [][]string, qn *models.Questionnaire) (*TrainingSet, error) {
	if len(rows) < 2 {
		return nil, fmt.Errorf("学習データにヘッダーとデータ行が必要です")
	}

	header := rows[0]
	features := qn.IDs()
	cols := make([]int, len(features))
	for i, id := range features {
		cols[i] = findIndex(header, id)
		if cols[i] < 0 {
			return nil, fmt.Errorf("列 %q が見つかりません", id)
		}
	}
	targetCol := findIndex(header, TargetColumn)
	if targetCol < 0 {
		return nil, fmt.Errorf("目的変数の列 %q が見つかりません", TargetColumn)
	}

	// 空行を除外
	data := make([][]string, 0, len(rows)-1)
	for _, r := range rows[1:] {
		if isBlankRow(r) {
			continue
		}
		data = append(data, r)
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("学習データが空です")
	}

	encodings := make(map[string]map[string]int)
	for _, id := range []string{models.QuestionIncomeLevel, models.QuestionEmploymentStatus} {
		q, ok := qn.ByID(id)
		if !ok {
			continue
		}
		if enc := buildCategoryEncoding(columnValues(data, findIndex(header, id)), q); enc != nil {
			encodings[id] = enc
		}
	}

	set := &TrainingSet{
		Features:  features,
		X:         make([][]float64, 0, len(data)),
		Y:         make([]float64, 0, len(data)),
		Encodings: encodings,
	}
	for n, r := range data {
		line := n + 2 // ヘッダー分 + 1始まり
		x := make([]float64, len(features))
		for i, id := range features {
			raw := cell(r, cols[i])
			if enc, ok := encodings[id]; ok {
				x[i] = float64(enc[raw])
				continue
			}
			v, err := parseFinite(raw)
			if err != nil {
				return nil, fmt.Errorf("%d行目の列 %q が数値ではありません: %q", line, id, raw)
			}
			x[i] = v
		}
		y, err := parseFinite(cell(r, targetCol))
		if err != nil {
			return nil, fmt.Errorf("%d行目の %q が数値ではありません: %q", line, TargetColumn, cell(r, targetCol))
		}
		set.X = append(set.X, x)
		set.Y = append(set.Y, y)
	}
	return set, nil
}

// parseFinite は有限の数値だけを受け付けます（NaN, Inf はエラー）。
func parseFinite(raw string) (float64, error) {
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, err
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, fmt.Errorf("有限の数値ではありません: %q", raw)
	}
	return v, nil
}

// buildCategoryEncoding は文字列カテゴリ列のエンコード表を作ります。
// 全て数値なら nil（そのまま数値として扱う）。
// 全ての値が質問の選択肢ラベルに一致すればその選択肢のコードを使い、
// それ以外はラベルを辞書順に並べて 0..n-1 を割り当てます。
func buildCategoryEncoding(values []string, q models.Question) map[string]int {
	numeric := true
	distinct := make(map[string]struct{})
	for _, v := range values {
		distinct[v] = struct{}{}
		if _, err := strconv.ParseFloat(v, 64); err != nil {
			numeric = false
		}
	}
	if numeric {
		return nil
	}

	enc := make(map[string]int, len(distinct))
	matchesOptions := true
	for v := range distinct {
		matched := false
		for _, opt := range q.Options {
			if strings.EqualFold(v, opt.Label) {
				enc[v] = opt.Value
				matched = true
				break
			}
		}
		if !matched {
			matchesOptions = false
			break
		}
	}
	if matchesOptions {
		return enc
	}

	labels := make([]string, 0, len(distinct))
	for v := range distinct {
		labels = append(labels, v)
	}
	sort.Strings(labels)
	enc = make(map[string]int, len(labels))
	for i, v := range labels {
		enc[v] = i
	}
	return enc
}

// SplitTrainTest はシード付きシャッフルで学習用と検証用に分割します。
// 検証用が0件または全件になる場合は全件を学習用にし、test は nil。
func SplitTrainTest(set *TrainingSet, testRatio float64, seed int64) (train, test *TrainingSet) {
	n := set.Len()
	testN := int(math.Ceil(float64(n) * testRatio))
	if testRatio <= 0 || testN <= 0 || testN >= n {
		return set, nil
	}
	perm := rand.New(rand.NewSource(seed)).Perm(n)
	return set.subset(perm[testN:]), set.subset(perm[:testN])
}

// findIndex finds the index of the first candidate in a slice
func findIndex(slice []string, candidates ...string) int {
	for _, candidate := range candidates {
		for i, item := range slice {
			if strings.EqualFold(strings.TrimSpace(item), candidate) {
				return i
			}
		}
	}
	return -1
}

func cell(row []string, i int) string {
	if i < 0 || i >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[i])
}

func columnValues(rows [][]string, col int) []string {
	out := make([]string, len(rows))
	for i, r := range rows {
		out[i] = cell(r, col)
	}
	return out
}

func isBlankRow(row []string) bool {
	for _, v := range row {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}
