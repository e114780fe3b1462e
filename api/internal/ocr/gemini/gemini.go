package gemini

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/generative-ai-go/genai"
	"github.com/sirupsen/logrus"
	"google.golang.org/api/option"

	"captcha-solver/api/internal/util"
)

const (
	maxAttempts = 2
	callTimeout = 30 * time.Second
)

const prompt = `The image is a CAPTCHA of 4 to 6 characters: Latin letters (case-sensitive) and digits.
Reply with the characters only, exactly as drawn, without spaces, quotes or explanations.`

// Engine asks a Gemini model to read the CAPTCHA. It is an optional extra voter.
type Engine struct {
	APIKey string
	Model  string
	log    logrus.FieldLogger
}

func New(apiKey, model string, log logrus.FieldLogger) *Engine {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Engine{
		APIKey: strings.TrimSpace(apiKey),
		Model:  strings.TrimSpace(model),
		log:    log,
	}
}

func (e *Engine) Name() string     { return "gemini" }
func (e *Engine) GetModel() string { return e.Model }

func (e *Engine) Recognize(ctx context.Context, img []byte) (string, error) {
	if e.APIKey == "" {
		return "", errors.New("GEMINI_API_KEY is empty")
	}
	ctx, cancel := context.WithTimeout(ctx, callTimeout)
	defer cancel()

	cl, err := genai.NewClient(ctx, option.WithAPIKey(e.APIKey))
	if err != nil {
		return "", fmt.Errorf("gemini: new client: %w", err)
	}
	defer cl.Close()

	m := cl.GenerativeModel(e.Model)
	m.GenerationConfig = genai.GenerationConfig{
		Temperature: ptrFloat32(0),
	}

	parts := []genai.Part{
		genai.Text(prompt),
		genai.Blob{MIMEType: util.SniffMimeHTTP(img), Data: img},
	}

	// ретраи на 5xx/транзиентные сбои
	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		resp, err := m.GenerateContent(ctx, parts...)
		if err != nil {
			lastErr = err
			e.log.WithError(err).WithField("attempt", attempt).Warn("gemini: generate failed")
			select {
			case <-ctx.Done():
				return "", fmt.Errorf("gemini: %w", ctx.Err())
			case <-time.After(time.Duration(attempt) * 300 * time.Millisecond):
			}
			continue
		}
		return util.StripCodeFences(firstText(resp)), nil
	}
	return "", fmt.Errorf("gemini: %w", lastErr)
}

func firstText(resp *genai.GenerateContentResponse) string {
	if resp == nil || len(resp.Candidates) == 0 {
		return ""
	}
	for _, c := range resp.Candidates {
		if c.Content == nil {
			continue
		}
		for _, p := range c.Content.Parts {
			if t, ok := p.(genai.Text); ok {
				return string(t)
			}
		}
	}
	return ""
}

func ptrFloat32(v float32) *float32 { return &v }
