package services

import (
	"sort"
	"strings"
	"sync"
	"time"

	"mindcheck-web/pkg/models"

	"github.com/gin-gonic/gin"
)

// 保持するリクエストログの上限
const maxLogEntries = 10000

// LogEntry は単一のリクエストログを表します。
type LogEntry struct {
	Timestamp    time.Time     `json:"timestamp"`
	Path         string        `json:"path"`
	Method       string        `json:"method"`
	StatusCode   int           `json:"statusCode"`
	ResponseTime time.Duration `json:"responseTime"`
}

// MonitoringService は質問票アプリのリクエストと診断件数を集計します。
type MonitoringService struct {
	mu              sync.RWMutex
	logs            []LogEntry
	assessments     map[models.RiskTier]int
	excludePrefixes []string
	now             func() time.Time
}

// NewMonitoringService は新しいMonitoringServiceを生成します。
// excludePrefixes に一致するパスは記録しません。
func NewMonitoringService(excludePrefixes ...string) *MonitoringService {
	return &MonitoringService{
		logs:            make([]LogEntry, 0),
		assessments:     make(map[models.RiskTier]int),
		excludePrefixes: excludePrefixes,
		now:             time.Now,
	}
}

// LogRequest はリクエストを記録します。
func (s *MonitoringService) LogRequest(entry LogEntry) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.logs = append(s.logs, entry)
	if len(s.logs) > maxLogEntries {
		s.logs = s.logs[len(s.logs)-maxLogEntries:]
	}
}

// RecordAssessment は完了した診断の区分を記録します（回答内容は保持しない）。
func (s *MonitoringService) RecordAssessment(tier models.RiskTier) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.assessments[tier]++
}

// LoggingMiddleware はリクエスト情報を記録するGinミドルウェアです。
func (s *MonitoringService) LoggingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := s.now()

		c.Next()

		path := c.Request.URL.Path
		for _, prefix := range s.excludePrefixes {
			if strings.HasPrefix(path, prefix) {
				return
			}
		}

		s.LogRequest(LogEntry{
			Timestamp:    start,
			Path:         path,
			Method:       c.Request.Method,
			StatusCode:   c.Writer.Status(),
			ResponseTime: time.Since(start),
		})
	}
}

// EndpointLatency エンドポイントごとの平均応答時間
type EndpointLatency struct {
	Endpoint     string `json:"endpoint"`
	ResponseTime int64  `json:"responseTime"` // ミリ秒
}

// HourlyCount 1時間ごとのリクエスト数
type HourlyCount struct {
	Time     string `json:"time"`
	Requests int    `json:"requests"`
}

// DashboardData はダッシュボードに表示するための集計済みデータです。
type DashboardData struct {
	RequestsOverTime []HourlyCount           `json:"requestsOverTime"`
	Endpoints        map[string]int          `json:"endpoints"`
	StatusCodes      map[string]int          `json:"statusCodes"`
	AvgResponseTimes []EndpointLatency       `json:"avgResponseTimes"`
	RecentErrors     []LogEntry              `json:"recentErrors"`
	Assessments      map[models.RiskTier]int `json:"assessments"`
}

// GetDashboardData は指定された期間のログを集計してダッシュボード用データを返します。
func (s *MonitoringService) GetDashboardData(periodHours int) DashboardData {
	if periodHours <= 0 {
		periodHours = 24
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	now := s.now()
	since := now.Add(-time.Duration(periodHours) * time.Hour)

	filtered := make([]LogEntry, 0)
	for _, entry := range s.logs {
		if entry.Timestamp.After(since) {
			filtered = append(filtered, entry)
		}
	}

	// 時間バケットを過去から現在の順に作成
	overTime := make([]HourlyCount, periodHours)
	bucketIndex := make(map[time.Time]int, periodHours)
	for i := 0; i < periodHours; i++ {
		t := now.Add(-time.Duration(periodHours-1-i) * time.Hour).Truncate(time.Hour)
		overTime[i] = HourlyCount{Time: t.Format("15:00")}
		bucketIndex[t] = i
	}

	endpoints := make(map[string]int)
	statusCodes := map[string]int{
		"2xx Success":      0,
		"3xx Redirect":     0,
		"4xx Client Error": 0,
		"5xx Server Error": 0,
	}
	latencySum := make(map[string]time.Duration)
	recentErrors := make([]LogEntry, 0)

	for _, entry := range filtered {
		if i, ok := bucketIndex[entry.Timestamp.Truncate(time.Hour)]; ok {
			overTime[i].Requests++
		}
		endpoints[entry.Path]++
		latencySum[entry.Path] += entry.ResponseTime

		switch {
		case entry.StatusCode >= 500:
			statusCodes["5xx Server Error"]++
		case entry.StatusCode >= 400:
			statusCodes["4xx Client Error"]++
		case entry.StatusCode >= 300:
			statusCodes["3xx Redirect"]++
		case entry.StatusCode >= 200:
			statusCodes["2xx Success"]++
		}
	}

	// 直近の5xxを新しい順に最大10件
	for i := len(filtered) - 1; i >= 0 && len(recentErrors) < 10; i-- {
		if filtered[i].StatusCode >= 500 {
			recentErrors = append(recentErrors, filtered[i])
		}
	}

	latencies := make([]EndpointLatency, 0, len(latencySum))
	for path, total := range latencySum {
		latencies = append(latencies, EndpointLatency{
			Endpoint:     path,
			ResponseTime: total.Milliseconds() / int64(endpoints[path]),
		})
	}
	sort.Slice(latencies, func(i, j int) bool { return latencies[i].Endpoint < latencies[j].Endpoint })

	assessments := make(map[models.RiskTier]int, len(s.assessments))
	for tier, n := range s.assessments {
		assessments[tier] = n
	}

	return DashboardData{
		RequestsOverTime: overTime,
		Endpoints:        endpoints,
		StatusCodes:      statusCodes,
		AvgResponseTimes: latencies,
		RecentErrors:     recentErrors,
		Assessments:      assessments,
	}
}
