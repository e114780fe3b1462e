package handle

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/sirupsen/logrus"

	"captcha-solver/api/internal/ocr"
)

const defaultDeadline = 90 * time.Second

type Solver interface {
	Solve(ctx context.Context, img ocr.CaptchaImage) ocr.Decision
	SolveDebug(ctx context.Context, img ocr.CaptchaImage) ocr.Decision
	Backends() []string
}

// CredentialChecker: облачный бэкенд с самопроверкой ключа.
type CredentialChecker interface {
	CheckCredentials(ctx context.Context) bool
	Disabled() bool
}

type Handle struct {
	solver  Solver
	engs    *ocr.Engines
	checker CredentialChecker
	log     logrus.FieldLogger
}

func New(solver Solver, engs *ocr.Engines, checker CredentialChecker, log logrus.FieldLogger) *Handle {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Handle{
		solver:  solver,
		engs:    engs,
		checker: checker,
		log:     log,
	}
}

// Routes регистрирует эндпоинты на mux.
func (h *Handle) Routes(mux *http.ServeMux) {
	mux.HandleFunc("/v1/captcha/solve", h.Solve)
	mux.HandleFunc("/v1/captcha/recognize", h.Recognize)
	mux.HandleFunc("/v1/captcha/check", h.Check)
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]string{"error": msg})
}

// requestContext applies X-Request-Timeout (or ?timeoutSec=) in seconds.
func requestContext(r *http.Request) (context.Context, context.CancelFunc) {
	deadline := defaultDeadline
	ts := r.Header.Get("X-Request-Timeout")
	if ts == "" {
		ts = r.URL.Query().Get("timeoutSec")
	}
	if v, _ := strconv.Atoi(ts); v > 0 {
		deadline = time.Duration(v) * time.Second
	}
	return context.WithTimeout(r.Context(), deadline)
}
