package llm

import (
	"fmt"
	"net/url"
	"time"
)

// Accepted ranges for judge request options. Out-of-range values fall back
// to the default when options are parsed, and providers clamp again.
const (
	MinTemperature = 0.0
	MaxTemperature = 2.0 // Gemini accepts up to 2
	MinTopP        = 0.0
	MaxTopP        = 1.0
	MinTopLogProbs = 1
	MaxTopLogProbs = 20 // largest top-K both OpenAI and Gemini return

	MinTimeout = 1 * time.Second
	MaxTimeout = 10 * time.Minute
)

// Response formats accepted by the "response_format" option.
const (
	ResponseFormatText = "text"
	ResponseFormatJSON = "json_object"
)

func IsValidTemperature(val float64) bool { return val >= MinTemperature && val <= MaxTemperature }

func IsValidTopP(val float64) bool { return val >= MinTopP && val <= MaxTopP }

func IsValidTopLogProbs(val int) bool { return val >= MinTopLogProbs && val <= MaxTopLogProbs }

// IsValidResponseFormat reports whether val is text or json_object.
func IsValidResponseFormat(val string) bool {
	return val == ResponseFormatText || val == ResponseFormatJSON
}

// IsPositiveInt checks if the integer value is positive.
func IsPositiveInt(val int) bool {
	return val > 0
}

// IsNonEmptyString checks if the string is non-empty.
func IsNonEmptyString(val string) bool {
	return val != ""
}

// ValidateBaseURL validates and normalizes a base URL string.
// It ensures the URL has an http or https scheme and a host.
// An empty string is valid and selects the provider's default endpoint.
func ValidateBaseURL(baseURL string) (string, error) {
	if baseURL == "" {
		return "", nil
	}

	u, err := url.Parse(baseURL)
	switch {
	case err != nil:
		return "", fmt.Errorf("invalid URL format: %w", err)
	case u.Scheme == "":
		return "", fmt.Errorf("URL must include a scheme (e.g., http:// or https://)")
	case u.Scheme != "http" && u.Scheme != "https":
		return "", fmt.Errorf("URL scheme must be http or https, but got: %s", u.Scheme)
	case u.Host == "":
		return "", fmt.Errorf("URL must include a host")
	}
	return u.String(), nil
}

// ValidateTimeout ensures the timeout is within a reasonable range.
// Zero or negative selects the default and returns zero. Values outside
// [MinTimeout, MaxTimeout] are clamped to the nearest boundary.
func ValidateTimeout(timeout time.Duration) time.Duration {
	if timeout <= 0 {
		return 0
	}
	if timeout < MinTimeout {
		return MinTimeout
	}
	if timeout > MaxTimeout {
		return MaxTimeout
	}
	return timeout
}

// SafeInt32 converts an int to int32, failing on overflow.
func SafeInt32(v int) (int32, bool) {
	if v > 1<<31-1 || v < -1<<31 {
		return 0, false
	}
	return int32(v), true
}

// ClampFloat64 clamps a float64 value to the [lo, hi] range.
func ClampFloat64(val, lo, hi float64) float64 {
	if val < lo {
		return lo
	}
	if val > hi {
		return hi
	}
	return val
}

// ClampInt clamps an int value to the [lo, hi] range.
func ClampInt(val, lo, hi int) int {
	if val < lo {
		return lo
	}
	if val > hi {
		return hi
	}
	return val
}
