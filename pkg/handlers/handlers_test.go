package handlers

import (
	"context"
	"fmt"
	"math"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	config "mindcheck-web/configs"
	"mindcheck-web/pkg/models"
	"mindcheck-web/pkg/services"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testCookie = "mindcheck_test"

type stubPredictor float64

func (s stubPredictor) Predict([]float64) float64 { return float64(s) }

type testApp struct {
	router *gin.Engine
	store  *services.MemorySessionStore
	admin  *AdminHandler
	qn     *models.Questionnaire
}

func newTestApp(t *testing.T, predictor services.Predictor) *testApp {
	t.Helper()
	gin.SetMode(gin.TestMode)

	cfg := &config.Config{
		SessionCookie: testCookie,
		SessionTTL:    time.Minute,
		AdminUsername: "admin",
		AdminPassword: "secret",
	}
	qn := models.DefaultQuestionnaire()
	store := services.NewMemorySessionStore(cfg.SessionTTL)

	r := gin.New()
	admin := RegisterRoutes(r, Dependencies{
		Config:        cfg,
		Questionnaire: qn,
		Scoring:       services.NewScoringService(qn, predictor),
		Sessions:      store,
		Monitoring:    services.NewMonitoringService("/static", "/admin", "/monitoring"),
	})
	return &testApp{router: r, store: store, admin: admin, qn: qn}
}

// visitor はCookieを保持するブラウザの代わり
type visitor struct {
	app     *testApp
	cookies map[string]*http.Cookie
}

func (a *testApp) newVisitor() *visitor {
	return &visitor{app: a, cookies: make(map[string]*http.Cookie)}
}

func (v *visitor) do(t *testing.T, method, path string, form url.Values) *httptest.ResponseRecorder {
	t.Helper()
	var body *strings.Reader
	if form != nil {
		body = strings.NewReader(form.Encode())
	} else {
		body = strings.NewReader("")
	}
	req, err := http.NewRequest(method, path, body)
	require.NoError(t, err)
	if form != nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}
	for _, c := range v.cookies {
		req.AddCookie(c)
	}

	w := httptest.NewRecorder()
	v.app.router.ServeHTTP(w, req)

	for _, c := range w.Result().Cookies() {
		if c.MaxAge < 0 || c.Value == "" {
			delete(v.cookies, c.Name)
			continue
		}
		v.cookies[c.Name] = c
	}
	return w
}

func (v *visitor) state(t *testing.T) *models.SessionState {
	t.Helper()
	c, ok := v.cookies[testCookie]
	require.True(t, ok, "visitor has no session cookie")
	state, err := v.app.store.Get(context.Background(), c.Value)
	require.NoError(t, err)
	return state
}

func (v *visitor) consent(t *testing.T) {
	t.Helper()
	w := v.do(t, "POST", "/", url.Values{"consent": {"yes"}})
	require.Equal(t, http.StatusSeeOther, w.Code)
	require.Equal(t, "/questionnaire", w.Header().Get("Location"))
}

func (v *visitor) answer(t *testing.T, value string) *httptest.ResponseRecorder {
	t.Helper()
	return v.do(t, "POST", "/questionnaire", url.Values{"answer": {value}})
}

func TestWelcomePage(t *testing.T) {
	app := newTestApp(t, nil)

	w := app.newVisitor().do(t, "GET", "/", nil)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "MindCheck")
	assert.Contains(t, w.Body.String(), `name="consent"`)
}

func TestConsentRequired(t *testing.T) {
	app := newTestApp(t, nil)
	v := app.newVisitor()

	w := v.do(t, "POST", "/", url.Values{})

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "Please tick the box")
	assert.Empty(t, v.cookies)
}

func TestRoutesWithoutSessionRedirectToIntake(t *testing.T) {
	app := newTestApp(t, nil)
	v := app.newVisitor()

	for _, tc := range []struct{ method, path string }{
		{"GET", "/questionnaire"},
		{"POST", "/questionnaire"},
		{"GET", "/predict"},
	} {
		w := v.do(t, tc.method, tc.path, nil)
		assert.Equal(t, http.StatusSeeOther, w.Code, tc.path)
		assert.Equal(t, "/", w.Header().Get("Location"), tc.path)
	}

	// 存在しないセッションIDも同様
	v.cookies[testCookie] = &http.Cookie{Name: testCookie, Value: "unknown"}
	w := v.do(t, "GET", "/questionnaire", nil)
	assert.Equal(t, http.StatusSeeOther, w.Code)
	assert.Equal(t, "/", w.Header().Get("Location"))
}

func TestConsentStartsEmptySession(t *testing.T) {
	app := newTestApp(t, nil)
	v := app.newVisitor()

	v.consent(t)

	state := v.state(t)
	assert.Empty(t, state.Answers)
	assert.Equal(t, 0, state.Cursor)

	w := v.do(t, "GET", "/questionnaire", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "Question 1 of 10")
	assert.Contains(t, w.Body.String(), "How often do you feel sad or down?")
	assert.Contains(t, w.Body.String(), "Often (3)")
}

func TestFullQuestionnaireFlow(t *testing.T) {
	app := newTestApp(t, nil)
	v := app.newVisitor()
	v.consent(t)

	w := v.answer(t, "Often (3)")
	assert.Equal(t, http.StatusSeeOther, w.Code)
	assert.Equal(t, "/questionnaire", w.Header().Get("Location"))
	assert.Equal(t, 3, v.state(t).Answers["sadness"])
	assert.Equal(t, 1, v.state(t).Cursor)

	w = v.do(t, "GET", "/questionnaire", nil)
	assert.Contains(t, w.Body.String(), "Question 2 of 10")

	// 残り9問: 頻度は4、カテゴリは2
	for i := 1; i < app.qn.Len(); i++ {
		q, _ := app.qn.At(i)
		w = v.answer(t, "4")
		if q.MaxValue() == 2 {
			// 選択肢外の値は無視されるので2で回答し直す
			assert.Equal(t, http.StatusOK, w.Code)
			w = v.answer(t, "2")
		}
		require.Equal(t, http.StatusSeeOther, w.Code)
	}
	assert.Equal(t, "/predict", w.Header().Get("Location"))

	// 全問回答後の質問画面は結果へ
	w = v.do(t, "GET", "/questionnaire", nil)
	assert.Equal(t, http.StatusSeeOther, w.Code)
	assert.Equal(t, "/predict", w.Header().Get("Location"))

	// (3 + 4*6 + 2 + 2 + 4) / 10 * 2.5 = 8.75 -> 8.8
	w = v.do(t, "GET", "/predict", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "8.8")
	assert.Contains(t, w.Body.String(), "High risk – Please see a doctor or counselor.")
	assert.Contains(t, w.Body.String(), "alert-danger")

	// 結果表示後はセッションが消える
	_, hasCookie := v.cookies[testCookie]
	assert.False(t, hasCookie)
	w = v.do(t, "GET", "/predict", nil)
	assert.Equal(t, http.StatusSeeOther, w.Code)
	assert.Equal(t, "/", w.Header().Get("Location"))
}

func TestPredictClearsSessionServerSide(t *testing.T) {
	app := newTestApp(t, nil)
	v := app.newVisitor()
	v.consent(t)
	sessionCookie := *v.cookies[testCookie]

	w := v.do(t, "GET", "/predict", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "0.0")
	assert.Contains(t, w.Body.String(), "Low risk")

	// 古いCookieを再送してもセッションは復活しない
	v.cookies[testCookie] = &sessionCookie
	w = v.do(t, "GET", "/predict", nil)
	assert.Equal(t, http.StatusSeeOther, w.Code)
	assert.Equal(t, "/", w.Header().Get("Location"))
}

func TestMalformedAnswerIsIgnored(t *testing.T) {
	app := newTestApp(t, nil)
	v := app.newVisitor()
	v.consent(t)

	for _, bad := range []string{"", "banana", "9", "Often (7)"} {
		w := v.answer(t, bad)
		assert.Equal(t, http.StatusOK, w.Code, "answer %q", bad)
		assert.Contains(t, w.Body.String(), "Question 1 of 10")
	}

	state := v.state(t)
	assert.Equal(t, 0, state.Cursor)
	assert.Empty(t, state.Answers)
}

func TestSessionIsolation(t *testing.T) {
	app := newTestApp(t, nil)
	alice := app.newVisitor()
	bob := app.newVisitor()

	alice.consent(t)
	bob.consent(t)
	require.NotEqual(t, alice.cookies[testCookie].Value, bob.cookies[testCookie].Value)

	alice.answer(t, "1")
	bob.answer(t, "4")
	bob.answer(t, "3")

	assert.Equal(t, map[string]int{"sadness": 1}, alice.state(t).Answers)
	assert.Equal(t, 1, alice.state(t).Cursor)
	assert.Equal(t, map[string]int{"sadness": 4, "sleep_disturbance": 3}, bob.state(t).Answers)
	assert.Equal(t, 2, bob.state(t).Cursor)

	assert.Contains(t, alice.do(t, "GET", "/questionnaire", nil).Body.String(), "Question 2 of 10")
	assert.Contains(t, bob.do(t, "GET", "/questionnaire", nil).Body.String(), "Question 3 of 10")
}

func TestConcurrentVisitorsAreIsolated(t *testing.T) {
	app := newTestApp(t, nil)

	// 全問を同じ値で回答する（カテゴリ質問は上限2）
	// 8問 x v + 2問 x min(v,2) の平均 * 2.5
	expected := []string{"0.0", "2.5", "5.0", "7.0", "9.0"}

	t.Run("group", func(t *testing.T) {
		for i := 0; i < 10; i++ {
			value := i % len(expected)
			t.Run(fmt.Sprintf("visitor%d", i), func(t *testing.T) {
				t.Parallel()
				v := app.newVisitor()
				v.consent(t)

				want := make(map[string]int)
				for j := 0; j < app.qn.Len(); j++ {
					q, _ := app.qn.At(j)
					answer := min(value, q.MaxValue())
					want[q.ID] = answer
					w := v.answer(t, fmt.Sprint(answer))
					require.Equal(t, http.StatusSeeOther, w.Code)
				}

				state := v.state(t)
				assert.Equal(t, want, state.Answers)
				assert.Equal(t, app.qn.Len(), state.Cursor)

				w := v.do(t, "GET", "/predict", nil)
				require.Equal(t, http.StatusOK, w.Code)
				assert.Contains(t, w.Body.String(), expected[value])
			})
		}
	})
}

func TestSubmitAnswerRefreshesSessionCookie(t *testing.T) {
	app := newTestApp(t, nil)
	v := app.newVisitor()
	v.consent(t)

	w := v.answer(t, "2")
	require.Equal(t, http.StatusSeeOther, w.Code)

	var refreshed *http.Cookie
	for _, c := range w.Result().Cookies() {
		if c.Name == testCookie {
			refreshed = c
		}
	}
	require.NotNil(t, refreshed, "answer should re-issue the session cookie")
	assert.Equal(t, v.state(t).ID, refreshed.Value)
	assert.Equal(t, int(time.Minute.Seconds()), refreshed.MaxAge)
	assert.True(t, refreshed.HttpOnly)

	// 不正な回答では保存しないので再発行もしない
	w = v.answer(t, "banana")
	for _, c := range w.Result().Cookies() {
		assert.NotEqual(t, testCookie, c.Name)
	}
}

func TestPredictRejectsNaNModelOutput(t *testing.T) {
	app := newTestApp(t, stubPredictor(math.NaN()))
	v := app.newVisitor()
	v.consent(t)

	w := v.do(t, "GET", "/predict", nil)

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Contains(t, w.Body.String(), "Something went wrong")
	assert.NotContains(t, w.Body.String(), "NaN")
}

func TestPredictUsesModelAndClamps(t *testing.T) {
	app := newTestApp(t, stubPredictor(50))
	v := app.newVisitor()
	v.consent(t)

	w := v.do(t, "GET", "/predict", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "10.0")
	assert.Contains(t, w.Body.String(), "High risk")

	app = newTestApp(t, stubPredictor(-5))
	v = app.newVisitor()
	v.consent(t)
	w = v.do(t, "GET", "/predict", nil)
	assert.Contains(t, w.Body.String(), "0.0")
	assert.Contains(t, w.Body.String(), "Low risk")
}

func TestHealthAndMaintenanceMode(t *testing.T) {
	app := newTestApp(t, nil)
	v := app.newVisitor()

	w := v.do(t, "GET", "/health", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"scoringMethod":"average"`)

	adminPost := func(path, body string) *httptest.ResponseRecorder {
		req, _ := http.NewRequest("POST", path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
		rec := httptest.NewRecorder()
		app.router.ServeHTTP(rec, req)
		return rec
	}

	w = adminPost("/admin/maintenance/start", `{"username":"admin","password":"wrong"}`)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	w = adminPost("/admin/maintenance/start", `{}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = adminPost("/admin/maintenance/start", `{"username":"admin","password":"secret"}`)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.True(t, app.admin.InMaintenance())

	w = v.do(t, "GET", "/", nil)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Contains(t, w.Body.String(), "temporarily unavailable")
	assert.Equal(t, http.StatusServiceUnavailable, v.do(t, "GET", "/health", nil).Code)

	w = adminPost("/admin/maintenance/stop", `{"username":"admin","password":"secret"}`)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, http.StatusOK, v.do(t, "GET", "/", nil).Code)
}

func TestMonitoringLogsRequireAuth(t *testing.T) {
	app := newTestApp(t, nil)
	v := app.newVisitor()
	v.consent(t)
	v.do(t, "GET", "/predict", nil)

	req, _ := http.NewRequest("GET", "/monitoring/logs?period=1h", nil)
	w := httptest.NewRecorder()
	app.router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	req, _ = http.NewRequest("GET", "/monitoring/logs?period=1h", nil)
	req.SetBasicAuth("admin", "secret")
	w = httptest.NewRecorder()
	app.router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"assessments":{"low":1}`)
	assert.Contains(t, w.Body.String(), `"/predict":1`)
}

func TestStaticAssets(t *testing.T) {
	app := newTestApp(t, nil)

	w := app.newVisitor().do(t, "GET", "/static/style.css", nil)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), ".progress")
}

func TestIsTruthy(t *testing.T) {
	for _, v := range []string{"on", "true", "1", "YES", " y "} {
		assert.True(t, isTruthy(v), v)
	}
	for _, v := range []string{"", "0", "off", "no", "false"} {
		assert.False(t, isTruthy(v), v)
	}
}
