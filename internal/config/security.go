package config

import (
	"fmt"
	"regexp"
	"strings"
)

// SensitivePattern represents a pattern that might indicate sensitive data
type SensitivePattern struct {
	Name        string
	Pattern     *regexp.Regexp
	Description string
}

// starter.lua is often committed next to the application; tokens belong in
// the environment (github.token_env, app.env values read by the app).
var sensitivePatterns = []SensitivePattern{
	{
		Name:        "GitHub Token",
		Pattern:     regexp.MustCompile(`gh[pousr]_[A-Za-z0-9]{36,}|github_pat_[A-Za-z0-9_]{22,}`),
		Description: "GitHub token hardcoded in configuration",
	},
	{
		Name:        "Token",
		Pattern:     regexp.MustCompile(`(?i)(token|auth[_-]?token|access[_-]?token|bearer)\s*=\s*['"][A-Za-z0-9._-]{15,}['"]`),
		Description: "Potential authentication token detected",
	},
	{
		Name:        "API Key",
		Pattern:     regexp.MustCompile(`(?i)(api[_-]?key|apikey)\s*=\s*['"][A-Za-z0-9_-]{15,}['"]`),
		Description: "Potential API key detected",
	},
	{
		Name:        "Password",
		Pattern:     regexp.MustCompile(`(?i)(password|passwd|pwd)\s*=\s*['"].+['"]`),
		Description: "Potential password detected",
	},
}

// SensitiveDataFinding represents a detected sensitive data instance
type SensitiveDataFinding struct {
	PatternName string
	Description string
	Line        int
	Preview     string // Redacted preview of the match
}

// DetectSensitiveData scans configuration content for potential sensitive
// data. Each line reports at most one finding.
func DetectSensitiveData(content string) []SensitiveDataFinding {
	var findings []SensitiveDataFinding

	for lineNum, line := range strings.Split(content, "\n") {
		if strings.HasPrefix(strings.TrimSpace(line), "--") {
			continue
		}
		for _, pattern := range sensitivePatterns {
			if pattern.Pattern.MatchString(line) {
				findings = append(findings, SensitiveDataFinding{
					PatternName: pattern.Name,
					Description: pattern.Description,
					Line:        lineNum + 1,
					Preview:     redactSensitiveValue(line),
				})
				break
			}
		}
	}

	return findings
}

// redactSensitiveValue keeps the key of an assignment and hides the value.
func redactSensitiveValue(line string) string {
	line = strings.TrimSpace(line)
	eqIdx := strings.Index(line, "=")
	if eqIdx == -1 {
		if len(line) > 30 {
			return line[:30] + "... [REDACTED]"
		}
		return line + " [REDACTED]"
	}
	return strings.TrimSpace(line[:eqIdx]) + " = [REDACTED]"
}

// FormatSensitiveDataWarning renders findings as a single log-friendly line.
func FormatSensitiveDataWarning(findings []SensitiveDataFinding) string {
	if len(findings) == 0 {
		return ""
	}

	parts := make([]string, 0, len(findings))
	for _, f := range findings {
		parts = append(parts, fmt.Sprintf("line %d: %s (%s)", f.Line, f.Description, f.Preview))
	}
	return "possible secrets in config: " + strings.Join(parts, "; ")
}
