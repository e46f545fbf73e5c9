package gemini

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"math/rand"
	"strings"
	"time"

	"github.com/phrazzld/annotator-api/internal/analysis"
	"github.com/phrazzld/annotator-api/internal/config"
	"github.com/phrazzld/annotator-api/internal/domain"
	"github.com/phrazzld/annotator-api/internal/platform/logger"
	"golang.org/x/time/rate"
	"google.golang.org/genai"
)

// contentGenerator is the part of the genai client the analyzer calls.
// *genai.Models satisfies it.
type contentGenerator interface {
	GenerateContent(
		ctx context.Context,
		model string,
		contents []*genai.Content,
		config *genai.GenerateContentConfig,
	) (*genai.GenerateContentResponse, error)
}

// Analyzer implements analysis.Analyzer with the Gemini API.
type Analyzer struct {
	logger     *slog.Logger
	generator  contentGenerator
	model      string
	maxRetries int
	baseDelay  time.Duration
	limiter    *rate.Limiter
}

var _ analysis.Analyzer = (*Analyzer)(nil)

// NewAnalyzer creates a Gemini client from cfg and wraps it in an Analyzer.
func NewAnalyzer(ctx context.Context, logger *slog.Logger, cfg config.LLMConfig) (*Analyzer, error) {
	if cfg.GeminiAPIKey == "" {
		return nil, fmt.Errorf("%w: gemini API key cannot be empty", analysis.ErrInvalidConfig)
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.GeminiAPIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: failed to create Gemini client: %v", analysis.ErrInvalidConfig, err)
	}

	return newAnalyzer(logger, cfg, client.Models)
}

func newAnalyzer(logger *slog.Logger, cfg config.LLMConfig, generator contentGenerator) (*Analyzer, error) {
	if logger == nil {
		return nil, errors.New("logger cannot be nil")
	}
	if cfg.ModelName == "" {
		return nil, fmt.Errorf("%w: model name cannot be empty", analysis.ErrInvalidConfig)
	}

	maxRetries := cfg.MaxRetries
	if maxRetries < 0 {
		maxRetries = 2
	}
	delay := cfg.RetryDelaySeconds
	if delay < 1 {
		delay = 2
	}

	a := &Analyzer{
		logger:     logger.With(slog.String("component", "gemini_analyzer"), slog.String("model", cfg.ModelName)),
		generator:  generator,
		model:      cfg.ModelName,
		maxRetries: maxRetries,
		baseDelay:  time.Duration(delay) * time.Second,
	}
	if cfg.RequestsPerMinute > 0 {
		a.limiter = rate.NewLimiter(rate.Every(time.Minute/time.Duration(cfg.RequestsPerMinute)), 1)
	}
	return a, nil
}

// Analyze sends the clip to the model and returns the parsed JSON answer.
func (a *Analyzer) Analyze(
	ctx context.Context,
	audio []byte,
	mimeType string,
	cfg *domain.AnalysisConfig,
) (map[string]any, error) {
	if len(audio) == 0 {
		return nil, fmt.Errorf("%w: empty audio", analysis.ErrInvalidConfig)
	}
	if mimeType == "" {
		mimeType = analysis.MIMETypeWAV
	}

	genCfg, err := buildGenerateConfig(cfg)
	if err != nil {
		return nil, err
	}
	contents := buildContents(audio, mimeType, cfg.EffectivePrompt())

	return a.callWithRetry(ctx, contents, genCfg)
}

func (a *Analyzer) callWithRetry(
	ctx context.Context,
	contents []*genai.Content,
	genCfg *genai.GenerateContentConfig,
) (map[string]any, error) {
	log := logger.FromContextOrDefault(ctx, a.logger)

	for attempt := 0; ; attempt++ {
		attemptNum := attempt + 1

		if a.limiter != nil {
			if err := a.limiter.Wait(ctx); err != nil {
				return nil, fmt.Errorf("%w: rate limiter: %v", analysis.ErrTransientFailure, err)
			}
		}

		log.Debug("calling Gemini",
			slog.Int("attempt", attemptNum),
			slog.Int("max_attempts", a.maxRetries+1))

		start := time.Now()
		resp, err := a.generator.GenerateContent(ctx, a.model, contents, genCfg)
		if err == nil {
			result, perr := parseResponse(resp)
			if perr == nil {
				log.Info("Gemini call succeeded",
					slog.Int("attempt", attemptNum),
					slog.Duration("duration", time.Since(start)))
				return result, nil
			}
			log.Warn("Gemini response rejected", slog.String("error", perr.Error()))
			return nil, perr
		}

		log.Error("Gemini call failed",
			slog.Int("attempt", attemptNum),
			slog.String("error", err.Error()))

		if !isRetryable(err) {
			return nil, fmt.Errorf("%w: %v", analysis.ErrUpstream, err)
		}
		if attempt >= a.maxRetries {
			return nil, fmt.Errorf("%w: exceeded maximum retry attempts (%d): %v",
				analysis.ErrTransientFailure, a.maxRetries, err)
		}

		delay := a.backoff(attempt)
		log.Info("retrying Gemini call after delay",
			slog.Int("attempt", attemptNum),
			slog.Duration("delay", delay))

		timer := time.NewTimer(delay)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return nil, fmt.Errorf("%w: %v", analysis.ErrTransientFailure, ctx.Err())
		}
	}
}

// backoff is baseDelay * 2^attempt scaled by a jitter factor in [0.5, 1).
func (a *Analyzer) backoff(attempt int) time.Duration {
	jitter := 0.5 + rand.Float64()*0.5
	return time.Duration(float64(a.baseDelay) * math.Pow(2, float64(attempt)) * jitter)
}

// parseResponse extracts the answer text, skipping thought parts, and
// decodes it as a JSON object.
func parseResponse(resp *genai.GenerateContentResponse) (map[string]any, error) {
	if resp == nil {
		return nil, fmt.Errorf("%w: nil response", analysis.ErrInvalidResponse)
	}
	if resp.PromptFeedback != nil && resp.PromptFeedback.BlockReason != "" {
		return nil, fmt.Errorf("%w: prompt blocked (%s)", analysis.ErrContentBlocked, resp.PromptFeedback.BlockReason)
	}
	if len(resp.Candidates) == 0 {
		return nil, fmt.Errorf("%w: no candidates", analysis.ErrInvalidResponse)
	}

	candidate := resp.Candidates[0]
	if candidate.FinishReason == genai.FinishReasonSafety {
		return nil, fmt.Errorf("%w: blocked by safety filters", analysis.ErrContentBlocked)
	}
	if candidate.Content == nil {
		return nil, fmt.Errorf("%w: empty content (finish reason %s)", analysis.ErrInvalidResponse, candidate.FinishReason)
	}

	var sb strings.Builder
	for _, part := range candidate.Content.Parts {
		if part == nil || part.Thought {
			continue
		}
		sb.WriteString(part.Text)
	}
	return decodeAnswer(sb.String())
}
