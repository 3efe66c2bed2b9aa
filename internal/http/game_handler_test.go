package http

import (
	"bytes"
	"context"
	"encoding/json"
	"math"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"detective-llm/internal/domain"
	"detective-llm/internal/llm"
	"detective-llm/internal/repository"
	"detective-llm/internal/service"
)

func init() {
	gin.SetMode(gin.TestMode)
}

const testAPIKey = "sk-test-credencial"

// safetyPass es el veredicto del supervisor que deja pasar el turno.
const safetyPass = `{"violation_level": 0}`

// logicPass es el veredicto del analizador sin hallazgos.
const logicPass = `{"stress_change": 3, "is_fatal_logic": false, "enumeration_level": 0}`

type testEnv struct {
	router  *gin.Engine
	mock    *llm.MockClient
	repo    *repository.MemoryPlayerRepository
	players *service.PlayerService
}

type denyAllLimiter struct{}

func (denyAllLimiter) Allow(string) bool { return false }

func newTestEnv(t *testing.T, responses []string, limiter service.RateLimiter, jwtSvc *service.JWTService) *testEnv {
	t.Helper()
	logger := zap.NewNop()

	mock := &llm.MockClient{Responses: responses}
	repo := repository.NewMemoryPlayerRepository()
	players := service.NewPlayerService(repo, logger)

	gameH := NewGameHandler(
		logger,
		service.NewCaseGenerator(logger),
		service.NewDailyThemeGenerator(logger),
		service.NewSafetyModerator(logger),
		service.NewInteractionAnalyzer(logger).WithRand(func() float64 { return 1 }),
		service.NewDialogueOrchestrator(logger).WithWait(func(context.Context, time.Duration) {}),
		players,
		limiter,
		service.NewMemoryLockoutStore(),
		service.NewMemoryThemeCache(),
		func(baseURL, apiKey, model string) llm.Client { return mock },
		"https://api.openai.com/v1", "gpt-5.1",
	)
	userH := NewUserHandler(logger, players, jwtSvc)
	router := NewRouter(logger, jwtSvc, userH, gameH)

	return &testEnv{router: router, mock: mock, repo: repo, players: players}
}

// seedPlayer crea la ficha del jugador asociado a la credencial de prueba.
func (e *testEnv) seedPlayer(t *testing.T, points int) string {
	t.Helper()
	id := service.CredentialDigest(testAPIKey)
	err := e.repo.Upsert(context.Background(), domain.Player{
		ID:     id,
		Points: points,
		Streak: 1,
	})
	if err != nil {
		t.Fatalf("seed player: %v", err)
	}
	return id
}

func doRequest(r http.Handler, path string, body any, withKey bool) *httptest.ResponseRecorder {
	payload, _ := json.Marshal(body)
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	if withKey {
		req.Header.Set("X-Api-Key", testAPIKey)
	}
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func decodeAsk(t *testing.T, rec *httptest.ResponseRecorder) askResponse {
	t.Helper()
	var resp askResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode ask response: %v\n%s", err, rec.Body.String())
	}
	return resp
}

func testCase() domain.Case {
	return domain.Case{
		CaseID:    "case-test-1",
		Title:     "La última guardia del farero",
		StartTime: time.Now().UnixMilli(),
		Suspects: []domain.Suspect{
			{
				Name:  "Marta",
				Desc:  "Hermana de la víctima",
				Alibi: "Dormía en la cabaña",
				Profile: domain.PsychologicalProfile{
					BreakingPoint:  80,
					BreakdownStyle: "llanto",
				},
			},
			{Name: "Tomás", Desc: "Pescador", Alibi: "En el muelle"},
		},
		Clues: []domain.Clue{
			{Title: "El reloj parado", Content: "Detenido a las 23:40"},
			{Title: "Portátil bloqueado", Content: "Cartas borradas", IsHidden: true},
		},
		Truth: domain.Truth{Killer: "Marta", Method: "Contrapeso", Motive: "Herencia"},
	}
}

func TestRoutes_RequireAPIKey(t *testing.T) {
	env := newTestEnv(t, nil, nil, nil)

	for _, path := range []string{"/user/login", "/generate", "/ask", "/daily-theme", "/verify-connection"} {
		rec := doRequest(env.router, path, map[string]string{}, false)
		if rec.Code != http.StatusUnauthorized {
			t.Fatalf("%s sin credencial: status = %d", path, rec.Code)
		}
	}
	if env.mock.CallCount() != 0 {
		t.Fatal("sin credencial no debe llamarse al LLM")
	}
}

func TestGenerate_InsufficientPoints(t *testing.T) {
	env := newTestEnv(t, nil, nil, nil)
	env.seedPlayer(t, 3)

	rec := doRequest(env.router, "/generate", map[string]string{"theme": "un faro"}, true)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("status = %d, quiero 403", rec.Code)
	}
	if env.mock.CallCount() != 0 {
		t.Fatal("sin saldo no debe llamarse al LLM")
	}
}

func TestGenerate_ThemeTooLongRefunds(t *testing.T) {
	env := newTestEnv(t, nil, nil, nil)
	id := env.seedPlayer(t, 50)

	longTheme := make([]rune, 0, 201)
	for i := 0; i < 201; i++ {
		longTheme = append(longTheme, 'a')
	}
	rec := doRequest(env.router, "/generate", map[string]string{"theme": string(longTheme)}, true)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, quiero 400", rec.Code)
	}
	if env.mock.CallCount() != 0 {
		t.Fatal("el tema demasiado largo se rechaza antes del LLM")
	}

	player, err := env.repo.Get(context.Background(), id)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if player.Points != 50 {
		t.Fatalf("el cobro no se reembolsó: points = %d", player.Points)
	}
}

func TestGenerate_FailureRefunds(t *testing.T) {
	// Tres respuestas imposibles de parsear agotan los reintentos de
	// estructura.
	env := newTestEnv(t, []string{"no json"}, nil, nil)
	id := env.seedPlayer(t, 50)

	rec := doRequest(env.router, "/generate", map[string]string{"theme": "un faro"}, true)
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, quiero 500", rec.Code)
	}
	player, _ := env.repo.Get(context.Background(), id)
	if player.Points != 50 {
		t.Fatalf("el cobro no se reembolsó: points = %d", player.Points)
	}
}

func TestGenerate_RateLimited(t *testing.T) {
	env := newTestEnv(t, nil, denyAllLimiter{}, nil)
	env.seedPlayer(t, 50)

	rec := doRequest(env.router, "/generate", map[string]string{"theme": "un faro"}, true)
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("status = %d, quiero 429", rec.Code)
	}
}

func TestAsk_GameOverOnExpiredCase(t *testing.T) {
	env := newTestEnv(t, nil, nil, nil)

	caseData := testCase()
	caseData.StartTime = time.Now().Add(-91 * time.Minute).UnixMilli()

	rec := doRequest(env.router, "/ask", map[string]any{
		"question":    "¿quién fue?",
		"caseData":    caseData,
		"suspectName": "Marta",
	}, true)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	resp := decodeAsk(t, rec)
	if !resp.IsGameOver || resp.Answer != service.GameOverAnswer {
		t.Fatalf("resp = %+v", resp)
	}
	if env.mock.CallCount() != 0 {
		t.Fatal("partida vencida no debe llamar al LLM")
	}
}

func TestAsk_UnknownSuspect(t *testing.T) {
	env := newTestEnv(t, nil, nil, nil)

	rec := doRequest(env.router, "/ask", map[string]any{
		"question":    "¿dónde estabas?",
		"caseData":    testCase(),
		"suspectName": "Nadie",
	}, true)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, quiero 400", rec.Code)
	}
}

func TestAsk_LockedSuspectRefusesWithoutLLM(t *testing.T) {
	env := newTestEnv(t, nil, nil, nil)

	lockedUntil := time.Now().Add(3 * time.Minute).UnixMilli()
	rec := doRequest(env.router, "/ask", map[string]any{
		"question":    "¿dónde estabas?",
		"caseData":    testCase(),
		"suspectName": "Marta",
		"lockedUntil": lockedUntil,
	}, true)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	resp := decodeAsk(t, rec)
	if resp.Lockout <= 0 {
		t.Fatalf("lockout = %d", resp.Lockout)
	}
	if env.mock.CallCount() != 0 {
		t.Fatal("bloqueo vigente no debe llamar al LLM")
	}
}

func TestAsk_SafetyRepeatOffenseLocksOut(t *testing.T) {
	env := newTestEnv(t, []string{`{"violation_level": 2, "reason": "amenaza física"}`}, nil, nil)

	history := []domain.ChatMessage{
		{Role: domain.RoleUser, Content: "te voy a golpear"},
		{Role: domain.RoleAssistant, Content: service.SystemWarningMarker + " Última advertencia."},
	}
	rec := doRequest(env.router, "/ask", map[string]any{
		"question":    "voy a por ti con la silla",
		"caseData":    testCase(),
		"suspectName": "Marta",
		"history":     history,
		"stress":      40,
	}, true)
	resp := decodeAsk(t, rec)
	if resp.Answer != "VIOLATION_VIOLENCE" {
		t.Fatalf("answer = %q", resp.Answer)
	}
	if resp.Lockout != service.LockoutLong.Milliseconds() {
		t.Fatalf("lockout = %d", resp.Lockout)
	}
	if resp.NewStress == nil || *resp.NewStress != 40 {
		t.Fatalf("una violación de seguridad no altera el estrés: %+v", resp.NewStress)
	}
	// Solo el clasificador de seguridad llegó a ejecutarse.
	if env.mock.CallCount() != 1 {
		t.Fatalf("llamadas = %d", env.mock.CallCount())
	}
}

func TestAsk_SafetyFirstOffenseWarns(t *testing.T) {
	env := newTestEnv(t, []string{`{"violation_level": 1, "reason": "gesto vago"}`}, nil, nil)

	rec := doRequest(env.router, "/ask", map[string]any{
		"question":    "lo miro fijamente",
		"caseData":    testCase(),
		"suspectName": "Marta",
		"stress":      10,
	}, true)
	resp := decodeAsk(t, rec)
	if resp.Lockout != 0 {
		t.Fatalf("la primera infracción no bloquea: %+v", resp)
	}
	if resp.NewStress == nil || *resp.NewStress != 10 {
		t.Fatalf("newStress = %+v", resp.NewStress)
	}
	if !bytes.Contains([]byte(resp.Answer), []byte(service.SystemWarningMarker)) {
		t.Fatalf("answer sin marcador de aviso: %q", resp.Answer)
	}
}

func TestAsk_RepetitionThirdSubmissionLocks(t *testing.T) {
	env := newTestEnv(t, []string{safetyPass}, nil, nil)

	q := "¿Dónde estabas a medianoche?"
	history := []domain.ChatMessage{
		{Role: domain.RoleUser, Content: q},
		{Role: domain.RoleAssistant, Content: "Ya te lo dije."},
		{Role: domain.RoleUser, Content: q},
		{Role: domain.RoleAssistant, Content: "Que ya te lo dije."},
	}
	rec := doRequest(env.router, "/ask", map[string]any{
		"question":    q,
		"caseData":    testCase(),
		"suspectName": "Marta",
		"history":     history,
		"stress":      20,
		"fatigue":     10.0,
	}, true)
	resp := decodeAsk(t, rec)
	if resp.Answer != "VIOLATION_ENUMERATION" {
		t.Fatalf("answer = %q", resp.Answer)
	}
	if resp.Lockout != service.LockoutLong.Milliseconds() {
		t.Fatalf("lockout = %d", resp.Lockout)
	}
	// Seguridad sí corre; el analizador bloquea sin llamar a su juez.
	if env.mock.CallCount() != 1 {
		t.Fatalf("llamadas = %d", env.mock.CallCount())
	}
}

func TestAsk_LockoutMirroredServerSide(t *testing.T) {
	env := newTestEnv(t, []string{safetyPass, safetyPass}, nil, nil)

	q := "¿Dónde estabas a medianoche?"
	history := []domain.ChatMessage{
		{Role: domain.RoleUser, Content: q},
		{Role: domain.RoleUser, Content: q},
	}
	doRequest(env.router, "/ask", map[string]any{
		"question":    q,
		"caseData":    testCase(),
		"suspectName": "Marta",
		"history":     history,
	}, true)

	// Segundo intento con el estado del cliente "olvidado": el espejo del
	// servidor mantiene la ventana.
	rec := doRequest(env.router, "/ask", map[string]any{
		"question":    "otra pregunta distinta",
		"caseData":    testCase(),
		"suspectName": "Marta",
	}, true)
	resp := decodeAsk(t, rec)
	if resp.Lockout <= 0 {
		t.Fatalf("el espejo del servidor no retuvo el bloqueo: %+v", resp)
	}
}

func TestAsk_SuspectHappyPath(t *testing.T) {
	env := newTestEnv(t, []string{
		safetyPass,
		logicPass,
		"No sé nada de ese reloj. [VERIFIED: El reloj parado]",
	}, nil, nil)

	rec := doRequest(env.router, "/ask", map[string]any{
		"question":    "¿Y el reloj parado a las 23:40?",
		"caseData":    testCase(),
		"suspectName": "Marta",
		"stress":      20,
		"fatigue":     10.0,
		"personality": "sereno",
	}, true)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}
	resp := decodeAsk(t, rec)
	if resp.Answer != "No sé nada de ese reloj." {
		t.Fatalf("answer = %q", resp.Answer)
	}
	if len(resp.Verified) != 1 || resp.Verified[0] != "El reloj parado" {
		t.Fatalf("verified = %v", resp.Verified)
	}
	if resp.NewStress == nil || *resp.NewStress != 23 {
		t.Fatalf("newStress = %+v", resp.NewStress)
	}
	if resp.NewFatigue == nil || *resp.NewFatigue != 13 {
		t.Fatalf("newFatigue = %+v", resp.NewFatigue)
	}
	if env.mock.CallCount() != 3 {
		t.Fatalf("llamadas = %d, quiero 3 (seguridad, juez, persona)", env.mock.CallCount())
	}
}

func TestAsk_IdleDecayFromClientTimestamp(t *testing.T) {
	env := newTestEnv(t, []string{
		safetyPass,
		logicPass,
		"Está bien, hablemos.",
	}, nil, nil)

	// 25s de inactividad: el estrés decae 2/s pasada la ventana de 15s y la
	// fatiga 0.33/s, antes de cobrar el turno.
	last := time.Now().Add(-25 * time.Second).UnixMilli()
	rec := doRequest(env.router, "/ask", map[string]any{
		"question":               "¿Y el reloj parado a las 23:40?",
		"caseData":               testCase(),
		"suspectName":            "Marta",
		"stress":                 60,
		"fatigue":                50.0,
		"personality":            "sereno",
		"lastStressIncreaseTime": last,
	}, true)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}
	resp := decodeAsk(t, rec)
	// 60 - 10*2 de decaimiento, +3 del veredicto sobre 40.
	if resp.NewStress == nil || *resp.NewStress != 43 {
		t.Fatalf("newStress = %+v", resp.NewStress)
	}
	// 50 - 25*0.33 de decaimiento, +3 de fatiga del turno.
	if resp.NewFatigue == nil || math.Abs(*resp.NewFatigue-44.75) > 0.2 {
		t.Fatalf("newFatigue = %+v", resp.NewFatigue)
	}
}

func TestAsk_NoDecayWithoutTimestamp(t *testing.T) {
	env := newTestEnv(t, []string{
		safetyPass,
		logicPass,
		"¿Otra vez tú?",
	}, nil, nil)

	rec := doRequest(env.router, "/ask", map[string]any{
		"question":    "¿Y el reloj parado a las 23:40?",
		"caseData":    testCase(),
		"suspectName": "Marta",
		"stress":      60,
		"fatigue":     50.0,
		"personality": "sereno",
	}, true)
	resp := decodeAsk(t, rec)
	if resp.NewStress == nil || *resp.NewStress != 63 {
		t.Fatalf("newStress = %+v", resp.NewStress)
	}
	if resp.NewFatigue == nil || *resp.NewFatigue != 53 {
		t.Fatalf("newFatigue = %+v", resp.NewFatigue)
	}
}

func TestAsk_JudgeMode(t *testing.T) {
	env := newTestEnv(t, []string{"No. El arma no era blanca."}, nil, nil)

	rec := doRequest(env.router, "/ask", map[string]any{
		"question": "¿El arma era un cuchillo?",
		"caseData": testCase(),
	}, true)
	resp := decodeAsk(t, rec)
	if resp.Answer != "No. El arma no era blanca." {
		t.Fatalf("answer = %q", resp.Answer)
	}
	if env.mock.CallCount() != 1 {
		t.Fatalf("llamadas = %d", env.mock.CallCount())
	}
}

func TestAsk_FinalReportGradesAndPays(t *testing.T) {
	env := newTestEnv(t, []string{`{"score": 9600, "comment": "Impecable."}`}, nil, nil)
	id := env.seedPlayer(t, 100)

	rec := doRequest(env.router, "/ask", map[string]any{
		"question": "INFORME FINAL: Marta mató al farero con el contrapeso por la herencia.",
		"caseData": testCase(),
	}, true)
	resp := decodeAsk(t, rec)
	if resp.Grade != "S" {
		t.Fatalf("grade = %q", resp.Grade)
	}
	if resp.PointsChange == nil || *resp.PointsChange != 20 {
		t.Fatalf("pointsChange = %+v", resp.PointsChange)
	}
	if resp.Points == nil || *resp.Points != 120 {
		t.Fatalf("points = %+v", resp.Points)
	}
	player, _ := env.repo.Get(context.Background(), id)
	if player.Points != 120 {
		t.Fatalf("saldo persistido = %d", player.Points)
	}
}

func TestDailyTheme_CachesByDate(t *testing.T) {
	env := newTestEnv(t, []string{"El motín del Támesis"}, nil, nil)

	body := map[string]string{"date": "08-31"}
	rec := doRequest(env.router, "/daily-theme", body, true)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var first map[string]string
	json.Unmarshal(rec.Body.Bytes(), &first)
	if first["theme"] != "El motín del Támesis" {
		t.Fatalf("theme = %q", first["theme"])
	}

	// La segunda petición del mismo día sale de la caché.
	rec = doRequest(env.router, "/daily-theme", body, true)
	var second map[string]string
	json.Unmarshal(rec.Body.Bytes(), &second)
	if second["theme"] != first["theme"] {
		t.Fatalf("tema distinto en la misma fecha: %q", second["theme"])
	}
	if env.mock.CallCount() != 1 {
		t.Fatalf("llamadas = %d, la caché debería absorber la segunda", env.mock.CallCount())
	}
}

func TestVerifyConnection_RefundsStakeWhenCorrect(t *testing.T) {
	env := newTestEnv(t, []string{`{"isCorrect": true, "reason": "El contrapeso es el arma."}`}, nil, nil)
	env.seedPlayer(t, 100)

	rec := doRequest(env.router, "/verify-connection", map[string]any{
		"connection": map[string]string{"from": "Marta", "to": "contrapeso"},
		"caseData":   testCase(),
	}, true)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}
	var resp struct {
		IsCorrect bool   `json:"isCorrect"`
		Reason    string `json:"reason"`
		Points    int    `json:"points"`
	}
	json.Unmarshal(rec.Body.Bytes(), &resp)
	if !resp.IsCorrect || resp.Points != 100 {
		t.Fatalf("resp = %+v", resp)
	}
}

func TestVerifyConnection_KeepsStakeWhenWrong(t *testing.T) {
	env := newTestEnv(t, []string{`{"isCorrect": false, "reason": "Sin relación causal."}`}, nil, nil)
	env.seedPlayer(t, 100)

	rec := doRequest(env.router, "/verify-connection", map[string]any{
		"connection": map[string]string{"from": "Tomás", "to": "la niebla"},
		"caseData":   testCase(),
	}, true)
	var resp struct {
		IsCorrect bool `json:"isCorrect"`
		Points    int  `json:"points"`
	}
	json.Unmarshal(rec.Body.Bytes(), &resp)
	if resp.IsCorrect || resp.Points != 99 {
		t.Fatalf("resp = %+v", resp)
	}
}
