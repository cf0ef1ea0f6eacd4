package client

import (
	"encoding/json"
	"regexp"
	"strings"

	"github.com/menta2k/cropmatrix/pkg/types"
)

var (
	reBlockComment  = regexp.MustCompile(`(?s)/\*.*?\*/`)
	reLineComment   = regexp.MustCompile(`(?m)^\s*//.*$`)
	reInlineComment = regexp.MustCompile(`(?m)//.*$`)
	reTrailingComma = regexp.MustCompile(`,(\s*[}\]])`)
)

// ParseAnalysisResult decodes a model reply. Replies that cannot be decoded
// become a result without faces, labelled so the caller can log why.
func ParseAnalysisResult(raw string) *types.AnalysisResult {
	raw = SanitizeModelJSON(raw)

	if !strings.HasPrefix(raw, "{") {
		return fallbackResult("non-json", "Model returned non-JSON response")
	}

	var result types.AnalysisResult
	if err := json.Unmarshal([]byte(raw), &result); err != nil {
		return fallbackResult("parse-error", "Failed to parse model response")
	}

	if result.Primary.Label == "" && result.Primary.Confidence == 0 && result.Primary.Cx == 0 && result.Primary.Cy == 0 {
		result.Primary.Cx = 0.5
		result.Primary.Cy = 0.5
	}
	return &result
}

func fallbackResult(tag, description string) *types.AnalysisResult {
	return &types.AnalysisResult{
		Primary: types.Primary{
			Label: "none",
			Box:   types.Box{X: 0.25, Y: 0.25, W: 0.5, H: 0.5},
			Cx:    0.5,
			Cy:    0.5,
		},
		Description: description,
		Tags:        []string{tag, "fallback"},
	}
}

// SanitizeModelJSON removes code fences, comments, and trailing commas and
// keeps only the outermost object.
func SanitizeModelJSON(raw string) string {
	raw = strings.TrimSpace(raw)

	if strings.HasPrefix(raw, "```") {
		if i := strings.Index(raw, "\n"); i >= 0 {
			raw = raw[i+1:]
		}
		if j := strings.LastIndex(raw, "```"); j >= 0 {
			raw = raw[:j]
		}
	}
	raw = strings.Trim(strings.TrimSpace(raw), "`")

	raw = reBlockComment.ReplaceAllString(raw, "")
	raw = reLineComment.ReplaceAllString(raw, "")
	raw = reInlineComment.ReplaceAllString(raw, "")
	raw = reTrailingComma.ReplaceAllString(raw, "$1")

	if start := strings.Index(raw, "{"); start >= 0 {
		if end := strings.LastIndex(raw, "}"); end > start {
			raw = raw[start : end+1]
		}
	}
	return strings.TrimSpace(raw)
}
