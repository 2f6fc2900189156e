package usecase

import (
	"strings"
)

// Tool-error classes picked by substring matching on the failure text.
// Best-effort: an unmatched error falls through to generic guidance.
const (
	errClassTimeout    = "timeout"
	errClassConnection = "connection"
	errClassInvalid    = "invalid_format"
	errClassUnknown    = "unknown"
)

var exampleQueries = []string{
	`"What's the monthly cost of a t3.medium EC2 instance?"`,
	`"Estimate S3 storage costs for 500 GB in us-east-1"`,
	`"Compare RDS db.t3.small against db.t3.medium pricing"`,
}

// classifyFailure buckets a failure message into a remediation class.
func classifyFailure(errText string) string {
	lowered := strings.ToLower(errText)
	switch {
	case strings.Contains(lowered, "timeout") || strings.Contains(lowered, "timed out") ||
		strings.Contains(lowered, "deadline exceeded"):
		return errClassTimeout
	case strings.Contains(lowered, "connection") || strings.Contains(lowered, "connect") ||
		strings.Contains(lowered, "unreachable") || strings.Contains(lowered, "refused"):
		return errClassConnection
	case strings.Contains(lowered, "invalid") || strings.Contains(lowered, "format") ||
		strings.Contains(lowered, "malformed") || strings.Contains(lowered, "parameter"):
		return errClassInvalid
	default:
		return errClassUnknown
	}
}

// ErrorGuidance turns a failure into a plain-language message and a list of
// concrete next steps. The raw failure text never reaches the user verbatim.
func ErrorGuidance(errText string) (string, []string) {
	switch classifyFailure(errText) {
	case errClassTimeout:
		return "The pricing request took too long and was cancelled.", []string{
			"Try a simpler query covering fewer services at once",
			"Split a multi-service estimate into one query per service",
			"Retry in a moment; the pricing source may be under load",
			"Example queries that work well: " + strings.Join(exampleQueries[:2], ", "),
		}
	case errClassConnection:
		return "The live pricing data source could not be reached.", []string{
			"Check that the pricing service is running and network access is available",
			"Ask again and an estimate from built-in knowledge will be provided",
			"Verify any configured endpoint or credentials for the pricing source",
			"Example queries that work well: " + strings.Join(exampleQueries[:2], ", "),
		}
	case errClassInvalid:
		return "The query could not be translated into a valid pricing request.", []string{
			"Check service names, instance types, and region spellings",
			"Use concrete identifiers like t3.small or us-east-1 rather than descriptions",
			"Example queries that work well: " + strings.Join(exampleQueries, ", "),
		}
	default:
		return "Something went wrong while preparing your cost estimate.", []string{
			"Please try the query again",
			"Rephrase with specific services and instance types",
			"If the problem persists, ask for a knowledge-base estimate instead",
			"Example queries that work well: " + strings.Join(exampleQueries[:2], ", "),
		}
	}
}

// FormatGuidance renders a guidance message plus hints into display text.
func FormatGuidance(message string, hints []string) string {
	var b strings.Builder
	b.WriteString(message)
	b.WriteString("\n\nWhat you can do:\n")
	for _, h := range hints {
		b.WriteString("- " + h + "\n")
	}
	return strings.TrimRight(b.String(), "\n")
}
