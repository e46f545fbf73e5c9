// Package gemini implements analysis.Analyzer on Google's Gemini API.
//
// An Analyzer sends one audio clip together with the batch's prompt to the
// configured model and asks for a JSON answer shaped by the batch's response
// schema. The per-batch analysis parameters are translated into the genai
// request:
//
//   - thinkingLevel becomes a thinking budget
//   - mediaResolution is passed through
//   - googleSearch and urlContext enable the matching tools
//   - safetySettings become per-category block thresholds
//
// Calls are rate limited when llm.requests_per_minute is set and retried with
// jittered exponential backoff on transient failures. Safety blocks, client
// errors and unparseable answers are permanent.
package gemini
