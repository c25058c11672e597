package security

import (
	"fmt"
	"net/netip"
	"regexp"
	"unicode/utf8"
)

// Validation limits.
const (
	MinQuestionLength = 1
	MaxQuestionLength = 4000

	MaxIndexPatternLength = 255

	MinTopK     = 1
	MaxTopK     = 50
	DefaultTopK = 3
)

// ValidationError represents a field validation error.
type ValidationError struct {
	Field      string
	Value      interface{}
	Constraint string
}

func (e *ValidationError) Error() string {
	if e.Value != nil {
		return fmt.Sprintf("validation failed for %s: %s (got: %v)", e.Field, e.Constraint, e.Value)
	}
	return fmt.Sprintf("validation failed for %s: %s", e.Field, e.Constraint)
}

// indexPatternRegex matches Elasticsearch index names with optional glob wildcards.
// Index names are lowercase and may not contain \ / " < > | , # or spaces.
var indexPatternRegex = regexp.MustCompile(`^[a-z0-9*?_\-.+\[\]]+$`)

// ValidateQuestion validates a natural-language question.
func ValidateQuestion(question string) error {
	if question == "" {
		return &ValidationError{
			Field:      "question",
			Constraint: "required",
		}
	}

	if !utf8.ValidString(question) {
		return &ValidationError{
			Field:      "question",
			Constraint: "must be valid UTF-8",
		}
	}

	length := utf8.RuneCountInString(question)
	if length > MaxQuestionLength {
		return &ValidationError{
			Field:      "question",
			Value:      length,
			Constraint: fmt.Sprintf("maximum length is %d characters", MaxQuestionLength),
		}
	}

	return nil
}

// ValidateIP validates an IPv4 or IPv6 address.
func ValidateIP(ip string) error {
	if ip == "" {
		return &ValidationError{
			Field:      "ip",
			Constraint: "required",
		}
	}

	if _, err := netip.ParseAddr(ip); err != nil {
		return &ValidationError{
			Field:      "ip",
			Value:      ip,
			Constraint: "must be a valid IPv4 or IPv6 address",
		}
	}

	return nil
}

// ValidateIndexPattern validates an index name or glob pattern.
func ValidateIndexPattern(pattern string) error {
	if pattern == "" {
		return &ValidationError{
			Field:      "index",
			Constraint: "required",
		}
	}

	if len(pattern) > MaxIndexPatternLength {
		return &ValidationError{
			Field:      "index",
			Value:      len(pattern),
			Constraint: fmt.Sprintf("maximum length is %d characters", MaxIndexPatternLength),
		}
	}

	if !indexPatternRegex.MatchString(pattern) {
		return &ValidationError{
			Field:      "index",
			Value:      pattern,
			Constraint: "must be lowercase letters, digits, _ - . + and glob wildcards",
		}
	}

	return nil
}

// ValidateTopK validates the number of candidate sources to return.
func ValidateTopK(topK int) error {
	if topK < MinTopK {
		return &ValidationError{
			Field:      "top_k",
			Value:      topK,
			Constraint: fmt.Sprintf("minimum is %d", MinTopK),
		}
	}

	if topK > MaxTopK {
		return &ValidationError{
			Field:      "top_k",
			Value:      topK,
			Constraint: fmt.Sprintf("maximum is %d", MaxTopK),
		}
	}

	return nil
}
