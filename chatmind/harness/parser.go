package harness

import (
	"encoding/json"
	"regexp"
	"strings"
)

// ParsedResponse is the structured form of a model response: the visible
// message plus any requested actions.
type ParsedResponse struct {
	Message string   `json:"message"`
	Actions []Action `json:"actions,omitempty"`
}

// OutputParser extracts the {message, actions} envelope from model
// responses. Plain text passes through as a message-only response.
type OutputParser struct {
	envelopePattern *regexp.Regexp
	fencePattern    *regexp.Regexp
}

// NewOutputParser creates a parser for the structured action format.
func NewOutputParser() *OutputParser {
	return &OutputParser{
		// Smallest object literal containing an "actions" key, possibly
		// spanning lines.
		envelopePattern: regexp.MustCompile(`(?s)\{.*"actions".*\}`),
		fencePattern:    regexp.MustCompile("(?s)```(?:json)?\\s*(.*?)```"),
	}
}

// Parse extracts the structured envelope from text. Text without a
// parsable envelope becomes a message-only response.
func (p *OutputParser) Parse(text string) ParsedResponse {
	trimmed := strings.TrimSpace(text)

	if fence := p.fencePattern.FindStringSubmatch(trimmed); fence != nil {
		if resp, ok := p.tryEnvelope(fence[1]); ok {
			return resp
		}
	}
	if resp, ok := p.tryEnvelope(trimmed); ok {
		return resp
	}
	if match := p.envelopePattern.FindString(trimmed); match != "" {
		if resp, ok := p.tryEnvelope(match); ok {
			return resp
		}
	}

	return ParsedResponse{Message: trimmed}
}

func (p *OutputParser) tryEnvelope(candidate string) (ParsedResponse, bool) {
	candidate = strings.TrimSpace(candidate)
	if !strings.HasPrefix(candidate, "{") {
		return ParsedResponse{}, false
	}

	var resp ParsedResponse
	if err := json.Unmarshal([]byte(candidate), &resp); err != nil {
		// Try to fix common JSON issues before giving up
		fixed := fixJSON(candidate)
		if err := json.Unmarshal([]byte(fixed), &resp); err != nil {
			return ParsedResponse{}, false
		}
	}
	if resp.Message == "" && len(resp.Actions) == 0 {
		return ParsedResponse{}, false
	}
	return resp, true
}

// fixJSON attempts to fix common JSON formatting issues.
func fixJSON(jsonStr string) string {
	// Remove trailing commas before closing braces/brackets
	jsonStr = regexp.MustCompile(`,\s*([}\]])`).ReplaceAllString(jsonStr, "$1")

	// Fix unquoted keys (basic heuristic)
	jsonStr = regexp.MustCompile(`([{,]\s*)([a-zA-Z_][a-zA-Z0-9_]*)\s*:`).ReplaceAllString(jsonStr, `$1"$2":`)

	// Fix single quotes to double quotes
	jsonStr = strings.ReplaceAll(jsonStr, "'", "\"")

	return jsonStr
}
