package gemini

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/phrazzld/annotator-api/internal/analysis"
	"github.com/phrazzld/annotator-api/internal/domain"
	"google.golang.org/genai"
)

// Thinking budgets per level. The pinned SDK's ThinkingConfig only carries a
// token budget. -1 lets the model decide.
var thinkingBudgets = map[domain.ThinkingLevel]int32{
	domain.ThinkingLevelMinimal: 128,
	domain.ThinkingLevelLow:     1024,
	domain.ThinkingLevelMedium:  8192,
	domain.ThinkingLevelHigh:    -1,
}

func thinkingBudget(level domain.ThinkingLevel) (int32, error) {
	budget, ok := thinkingBudgets[level]
	if !ok {
		return 0, fmt.Errorf("%w: unknown thinking level %q", analysis.ErrInvalidConfig, level)
	}
	return budget, nil
}

// buildContents puts the instruction first and the audio after it.
func buildContents(audio []byte, mimeType, prompt string) []*genai.Content {
	return []*genai.Content{{
		Role: "user",
		Parts: []*genai.Part{
			{Text: prompt},
			{InlineData: &genai.Blob{Data: audio, MIMEType: mimeType}},
		},
	}}
}

// buildGenerateConfig translates a batch configuration into request options.
func buildGenerateConfig(cfg *domain.AnalysisConfig) (*genai.GenerateContentConfig, error) {
	schemaText := domain.DefaultSchemaJSON
	var params domain.AnalysisParams
	if cfg != nil {
		if err := cfg.Validate(); err != nil {
			return nil, fmt.Errorf("%w: %v", analysis.ErrInvalidConfig, err)
		}
		if strings.TrimSpace(cfg.SchemaJSON) != "" {
			schemaText = cfg.SchemaJSON
		}
		params = cfg.Params
	}

	schema, err := convertSchema(schemaText)
	if err != nil {
		return nil, err
	}
	budget, err := thinkingBudget(cfg.EffectiveThinkingLevel())
	if err != nil {
		return nil, err
	}

	gc := &genai.GenerateContentConfig{
		ResponseMIMEType: "application/json",
		ResponseSchema:   schema,
		ThinkingConfig:   &genai.ThinkingConfig{ThinkingBudget: &budget},
	}

	if params.MediaResolution != nil {
		gc.MediaResolution = genai.MediaResolution(*params.MediaResolution)
	}
	if params.GoogleSearch {
		gc.Tools = append(gc.Tools, &genai.Tool{GoogleSearch: &genai.GoogleSearch{}})
	}
	if params.URLContext {
		gc.Tools = append(gc.Tools, &genai.Tool{URLContext: &genai.URLContext{}})
	}
	for _, s := range params.SafetySettings {
		gc.SafetySettings = append(gc.SafetySettings, &genai.SafetySetting{
			Category:  genai.HarmCategory(s.Category),
			Threshold: genai.HarmBlockThreshold(s.Threshold),
		})
	}
	return gc, nil
}

// convertSchema turns JSON-schema text into a genai schema. JSON schema
// spells types in lower case while the API enum is upper case.
func convertSchema(text string) (*genai.Schema, error) {
	var raw map[string]any
	if err := json.Unmarshal([]byte(text), &raw); err != nil {
		return nil, fmt.Errorf("%w: response schema is not a JSON object: %v", analysis.ErrInvalidConfig, err)
	}
	if raw == nil {
		return nil, fmt.Errorf("%w: response schema is not a JSON object", analysis.ErrInvalidConfig)
	}

	upperTypes(raw)

	encoded, err := json.Marshal(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", analysis.ErrInvalidConfig, err)
	}
	var schema genai.Schema
	if err := json.Unmarshal(encoded, &schema); err != nil {
		return nil, fmt.Errorf("%w: unsupported response schema: %v", analysis.ErrInvalidConfig, err)
	}
	return &schema, nil
}

func upperTypes(node any) {
	switch v := node.(type) {
	case map[string]any:
		for key, child := range v {
			if key == "type" {
				if s, ok := child.(string); ok {
					v[key] = strings.ToUpper(s)
					continue
				}
			}
			upperTypes(child)
		}
	case []any:
		for _, child := range v {
			upperTypes(child)
		}
	}
}
