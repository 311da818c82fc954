package llm

// config.go extracts typed request parameters from the generic option maps
// callers pass to Judge.

// ExtractOptionalInt extracts an integer value from options map with validation.
// Whole float64 values are accepted since option maps decoded from JSON or
// YAML carry numbers that way. Returns defaultVal if key doesn't exist, value
// is not numeric, or validator fails.
func ExtractOptionalInt(opts map[string]any, key string, defaultVal int, validator func(int) bool) int {
	if opts == nil {
		return defaultVal
	}

	val, ok := opts[key]
	if !ok {
		return defaultVal
	}

	var intVal int
	switch v := val.(type) {
	case int:
		intVal = v
	case float64:
		if v != float64(int(v)) {
			return defaultVal
		}
		intVal = int(v)
	default:
		return defaultVal
	}

	if validator != nil && !validator(intVal) {
		return defaultVal
	}

	return intVal
}

// ExtractOptionalString extracts a string value from options map with validation.
// Returns defaultVal if key doesn't exist, value is not a string, or validator fails.
func ExtractOptionalString(opts map[string]any, key string, defaultVal string, validator func(string) bool) string {
	if opts == nil {
		return defaultVal
	}

	val, ok := opts[key]
	if !ok {
		return defaultVal
	}

	strVal, ok := val.(string)
	if !ok {
		return defaultVal
	}

	if validator != nil && !validator(strVal) {
		return defaultVal
	}

	return strVal
}

// ExtractOptionalFloat64 extracts a float64 value from options map with validation.
// Integer values are widened. Returns defaultVal if key doesn't exist, value
// is not numeric, or validator fails.
func ExtractOptionalFloat64(opts map[string]any, key string, defaultVal float64, validator func(float64) bool) float64 {
	if opts == nil {
		return defaultVal
	}

	val, ok := opts[key]
	if !ok {
		return defaultVal
	}

	var floatVal float64
	switch v := val.(type) {
	case float64:
		floatVal = v
	case int:
		floatVal = float64(v)
	default:
		return defaultVal
	}

	if validator != nil && !validator(floatVal) {
		return defaultVal
	}

	return floatVal
}

// ExtractOptionalBool extracts a bool value from options map.
// Returns defaultVal if key doesn't exist or value is not a bool.
func ExtractOptionalBool(opts map[string]any, key string, defaultVal bool) bool {
	if opts == nil {
		return defaultVal
	}

	val, ok := opts[key].(bool)
	if !ok {
		return defaultVal
	}
	return val
}
