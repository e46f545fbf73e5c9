package domain

import (
	"encoding/json"
	"fmt"
	"sort"
)

// ThinkingLevel controls how much reasoning effort the model spends.
type ThinkingLevel string

// Supported thinking levels. An empty level means ThinkingLevelHigh.
const (
	ThinkingLevelMinimal ThinkingLevel = "minimal"
	ThinkingLevelLow     ThinkingLevel = "low"
	ThinkingLevelMedium  ThinkingLevel = "medium"
	ThinkingLevelHigh    ThinkingLevel = "high"
)

// IsValid reports whether l is one of the supported levels.
func (l ThinkingLevel) IsValid() bool {
	switch l {
	case ThinkingLevelMinimal, ThinkingLevelLow, ThinkingLevelMedium, ThinkingLevelHigh:
		return true
	}
	return false
}

// MediaResolution selects the resolution the model uses for media input.
type MediaResolution string

const (
	MediaResolutionUnspecified MediaResolution = "MEDIA_RESOLUTION_UNSPECIFIED"
	MediaResolutionLow         MediaResolution = "MEDIA_RESOLUTION_LOW"
	MediaResolutionMedium      MediaResolution = "MEDIA_RESOLUTION_MEDIUM"
	MediaResolutionHigh        MediaResolution = "MEDIA_RESOLUTION_HIGH"
)

// IsValid reports whether r is one of the supported resolutions.
func (r MediaResolution) IsValid() bool {
	switch r {
	case MediaResolutionUnspecified, MediaResolutionLow, MediaResolutionMedium, MediaResolutionHigh:
		return true
	}
	return false
}

// SafetySetting is passed through to the model provider unchanged.
type SafetySetting struct {
	Category  string `json:"category"`
	Threshold string `json:"threshold"`
}

// AnalysisParams are the tunable model parameters of an AnalysisConfig.
type AnalysisParams struct {
	ThinkingLevel   ThinkingLevel    `json:"thinkingLevel"`
	MediaResolution *MediaResolution `json:"mediaResolution"`
	GoogleSearch    bool             `json:"googleSearch,omitempty"`
	URLContext      bool             `json:"urlContext,omitempty"`
	SafetySettings  []SafetySetting  `json:"safetySettings,omitempty"`
}

// AnalysisConfig is the prompt, response schema and parameters used for
// every analysis call of a batch.
type AnalysisConfig struct {
	Prompt     string         `json:"prompt"`
	SchemaJSON string         `json:"schemaJson"`
	Params     AnalysisParams `json:"params"`
}

// Validate checks the schema text and the enumerated parameters.
// Empty prompt, schema and thinking level fall back to the defaults.
func (c *AnalysisConfig) Validate() error {
	if c.SchemaJSON != "" {
		if _, err := parseSchema(c.SchemaJSON); err != nil {
			return NewValidationError("gemini_config.schemaJson", err.Error(), ErrInvalidSchema)
		}
	}
	if c.Params.ThinkingLevel != "" && !c.Params.ThinkingLevel.IsValid() {
		return NewValidationError(
			"gemini_config.params.thinkingLevel",
			fmt.Sprintf("%s %q", ErrInvalidThinkingLevel.Error(), c.Params.ThinkingLevel),
			ErrInvalidThinkingLevel,
		)
	}
	if c.Params.MediaResolution != nil && !c.Params.MediaResolution.IsValid() {
		return NewValidationError(
			"gemini_config.params.mediaResolution",
			fmt.Sprintf("%s %q", ErrInvalidResolution.Error(), *c.Params.MediaResolution),
			ErrInvalidResolution,
		)
	}
	for _, s := range c.Params.SafetySettings {
		if s.Category == "" || s.Threshold == "" {
			return NewValidationError("gemini_config.params.safetySettings", ErrInvalidSafety.Error(), ErrInvalidSafety)
		}
	}
	return nil
}

// EffectivePrompt returns the prompt, or the default one when empty.
func (c *AnalysisConfig) EffectivePrompt() string {
	if c == nil || c.Prompt == "" {
		return DefaultPrompt
	}
	return c.Prompt
}

// EffectiveThinkingLevel returns the configured level, defaulting to high.
func (c *AnalysisConfig) EffectiveThinkingLevel() ThinkingLevel {
	if c == nil || c.Params.ThinkingLevel == "" {
		return ThinkingLevelHigh
	}
	return c.Params.ThinkingLevel
}

// Schema returns the parsed response schema, or the default one.
func (c *AnalysisConfig) Schema() (map[string]any, error) {
	if c == nil || c.SchemaJSON == "" {
		return parseSchema(DefaultSchemaJSON)
	}
	return parseSchema(c.SchemaJSON)
}

// AnswerFields lists the top-level schema properties a human is expected to
// answer, sorted by name. The transcript is excluded because it is judged
// through the transcript-correct flag instead.
func (c *AnalysisConfig) AnswerFields() []string {
	schema, err := c.Schema()
	if err != nil {
		return nil
	}
	props, ok := schema["properties"].(map[string]any)
	if !ok {
		return nil
	}
	fields := make([]string, 0, len(props))
	for name := range props {
		if name == TranscriptField {
			continue
		}
		fields = append(fields, name)
	}
	sort.Strings(fields)
	return fields
}

func parseSchema(text string) (map[string]any, error) {
	var schema map[string]any
	if err := json.Unmarshal([]byte(text), &schema); err != nil {
		return nil, fmt.Errorf("invalid JSON: %w", err)
	}
	if schema == nil {
		return nil, ErrInvalidSchema
	}
	return schema, nil
}

// DefaultPrompt asks for the eight audio metrics plus a transcript.
const DefaultPrompt = `You are an expert audio annotator. Listen to the attached audio clip and answer every field of the response schema.

- single_speaker: true if exactly one person speaks in the clip.
- speaker_gender: the gender of the main speaker, "male" or "female".
- noise_level: background noise, one of "no_noise", "low", "high".
- is_artificially_generated: true if the voice sounds synthetic or AI generated.
- speaking_pace: one of "very_slow", "slow", "normal", "fast", "very_fast".
- language_category: "only_hindi" for pure Hindi, "hinglish" for mixed Hindi and English, "english" for English only.
- recording_quality: "studio" for clean close-mic audio, otherwise "low_quality".
- word_cutoff: true if a word is cut off at the start or end of the clip.
- transcript: a verbatim transcript of the speech, in the script it is spoken in.

Respond with JSON only.`

// DefaultSchemaJSON is the response schema matching DefaultPrompt.
const DefaultSchemaJSON = `{
  "type": "object",
  "properties": {
    "single_speaker": {"type": "boolean"},
    "speaker_gender": {"type": "string", "enum": ["male", "female"]},
    "noise_level": {"type": "string", "enum": ["no_noise", "low", "high"]},
    "is_artificially_generated": {"type": "boolean"},
    "speaking_pace": {"type": "string", "enum": ["very_slow", "slow", "normal", "fast", "very_fast"]},
    "language_category": {"type": "string", "enum": ["only_hindi", "hinglish", "english"]},
    "recording_quality": {"type": "string", "enum": ["studio", "low_quality"]},
    "word_cutoff": {"type": "boolean"},
    "transcript": {"type": "string"}
  },
  "required": [
    "single_speaker",
    "speaker_gender",
    "noise_level",
    "is_artificially_generated",
    "speaking_pace",
    "language_category",
    "recording_quality",
    "word_cutoff",
    "transcript"
  ]
}`

// DefaultAnalysisConfig returns a fresh copy of the default configuration.
func DefaultAnalysisConfig() *AnalysisConfig {
	return &AnalysisConfig{
		Prompt:     DefaultPrompt,
		SchemaJSON: DefaultSchemaJSON,
		Params: AnalysisParams{
			ThinkingLevel: ThinkingLevelHigh,
		},
	}
}
