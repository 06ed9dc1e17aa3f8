package document

import "fmt"

var (
	divisionRequired  = []string{"name", "ordinal", "title", "body", "articles", "divisions"}
	articleRequired   = []string{"ordinal", "body", "articles"}
	referenceRequired = []string{"body"}
	stringFields      = []string{"name", "ordinal", "title", "body"}
)

// ValidationResult is the outcome of a structural check over the whole tree
type ValidationResult struct {
	Valid bool
	Error string
}

func invalid(format string, args ...any) ValidationResult {
	return ValidationResult{Valid: false, Error: fmt.Sprintf(format, args...)}
}

var valid = ValidationResult{Valid: true}

// Validate checks a decoded JSON tree against the document schema.
// The first failure anywhere aborts the walk; the message names the path and
// field, e.g. "Division 2 nested division 0 article 1 missing required field: body".
func Validate(raw any) ValidationResult {
	root, ok := raw.(map[string]any)
	if !ok || root == nil {
		return invalid("document must be a JSON object, got %s", typeName(raw))
	}

	if v, present := root["preamble"]; present {
		if !isStringOrNull(v) {
			return invalid("document field preamble must be a string or null, got %s", typeName(v))
		}
	}

	for _, key := range []string{"divisions", "articles", "references"} {
		if v, present := root[key]; present {
			if _, isArr := v.([]any); !isArr {
				return invalid("document field %s must be an array, got %s", key, typeName(v))
			}
		}
	}

	if items, _ := root["divisions"].([]any); len(items) > 0 {
		for i, item := range items {
			if r := validateDivision(item, fmt.Sprintf("Division %d", i)); !r.Valid {
				return r
			}
		}
	}

	if items, _ := root["articles"].([]any); len(items) > 0 {
		for i, item := range items {
			if r := validateArticle(item, fmt.Sprintf("Article %d", i)); !r.Valid {
				return r
			}
		}
	}

	if items, _ := root["references"].([]any); len(items) > 0 {
		for i, item := range items {
			if r := validateReference(item, fmt.Sprintf("Reference %d", i)); !r.Valid {
				return r
			}
		}
	}

	return valid
}

func validateDivision(raw any, path string) ValidationResult {
	node, ok := raw.(map[string]any)
	if !ok {
		return invalid("%s must be an object, got %s", path, typeName(raw))
	}
	if r := checkNode(node, path, divisionRequired); !r.Valid {
		return r
	}

	articles, _ := node["articles"].([]any)
	for i, item := range articles {
		if r := validateArticle(item, fmt.Sprintf("%s article %d", path, i)); !r.Valid {
			return r
		}
	}

	divisions, _ := node["divisions"].([]any)
	for i, item := range divisions {
		if r := validateDivision(item, fmt.Sprintf("%s nested division %d", path, i)); !r.Valid {
			return r
		}
	}
	return valid
}

func validateArticle(raw any, path string) ValidationResult {
	node, ok := raw.(map[string]any)
	if !ok {
		return invalid("%s must be an object, got %s", path, typeName(raw))
	}
	if r := checkNode(node, path, articleRequired); !r.Valid {
		return r
	}

	articles, _ := node["articles"].([]any)
	for i, item := range articles {
		if r := validateArticle(item, fmt.Sprintf("%s sub-article %d", path, i)); !r.Valid {
			return r
		}
	}
	return valid
}

func validateReference(raw any, path string) ValidationResult {
	node, ok := raw.(map[string]any)
	if !ok {
		return invalid("%s must be an object, got %s", path, typeName(raw))
	}
	return checkNode(node, path, referenceRequired)
}

// checkNode verifies presence of every required key, then the type of the
// string-typed and array-typed keys.
func checkNode(node map[string]any, path string, required []string) ValidationResult {
	for _, field := range required {
		if _, present := node[field]; !present {
			return invalid("%s missing required field: %s", path, field)
		}
	}

	for _, field := range stringFields {
		v, present := node[field]
		if !present {
			continue
		}
		if !isStringOrNull(v) {
			return invalid("%s field %s must be a string or null, got %s", path, field, typeName(v))
		}
	}

	for _, field := range required {
		if field != "articles" && field != "divisions" {
			continue
		}
		if _, isArr := node[field].([]any); !isArr {
			return invalid("%s field %s must be an array, got %s", path, field, typeName(node[field]))
		}
	}
	return valid
}

func isStringOrNull(v any) bool {
	if v == nil {
		return true
	}
	_, ok := v.(string)
	return ok
}

func typeName(v any) string {
	switch v.(type) {
	case nil:
		return "null"
	case string:
		return "string"
	case float64:
		return "number"
	case bool:
		return "boolean"
	case []any:
		return "array"
	case map[string]any:
		return "object"
	default:
		return fmt.Sprintf("%T", v)
	}
}
