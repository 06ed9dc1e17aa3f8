package document

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
)

var codeFenceRe = regexp.MustCompile("(?s)^```[a-zA-Z]*\\s*(.*?)\\s*```$")

// StripCodeFence removes a surrounding markdown code fence, if any
func StripCodeFence(s string) string {
	s = strings.TrimSpace(s)
	if m := codeFenceRe.FindStringSubmatch(s); len(m) > 1 {
		return m[1]
	}
	return s
}

// ParseJSONObject decodes an LLM reply into a generic JSON object.
// It strips code fences and, failing a direct decode, falls back to the
// outermost {...} span of the reply.
func ParseJSONObject(raw string) (map[string]any, error) {
	text := StripCodeFence(raw)
	if text == "" {
		return nil, fmt.Errorf("empty reply")
	}

	var obj map[string]any
	err := json.Unmarshal([]byte(text), &obj)
	if err == nil && obj != nil {
		return obj, nil
	}

	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start < 0 || end <= start {
		if err == nil {
			err = fmt.Errorf("reply is not a JSON object")
		}
		return nil, fmt.Errorf("no JSON object found: %w", err)
	}

	obj = nil
	if err2 := json.Unmarshal([]byte(text[start:end+1]), &obj); err2 != nil {
		return nil, fmt.Errorf("decode outermost object: %w", err2)
	}
	if obj == nil {
		return nil, fmt.Errorf("reply is not a JSON object")
	}
	return obj, nil
}

// FromRaw converts a decoded JSON tree into a Document.
// Conversion is lenient: numbers are rendered as strings and unknown or
// mistyped fields are dropped, so it also works on trees that failed
// validation. Order values from the model are discarded.
func FromRaw(raw map[string]any) *Document {
	doc := &Document{
		Preamble:   stringField(raw, "preamble"),
		Divisions:  divisionsField(raw, "divisions"),
		Articles:   articlesField(raw, "articles"),
		References: referencesField(raw, "references"),
	}
	return doc
}

func divisionsField(obj map[string]any, key string) []Division {
	items, _ := obj[key].([]any)
	out := make([]Division, 0, len(items))
	for _, item := range items {
		m, ok := item.(map[string]any)
		if !ok {
			continue
		}
		out = append(out, Division{
			Name:      stringField(m, "name"),
			Ordinal:   stringField(m, "ordinal"),
			Title:     stringField(m, "title"),
			Body:      stringField(m, "body"),
			Articles:  articlesField(m, "articles"),
			Divisions: divisionsField(m, "divisions"),
		})
	}
	return out
}

func articlesField(obj map[string]any, key string) []Article {
	items, _ := obj[key].([]any)
	out := make([]Article, 0, len(items))
	for _, item := range items {
		m, ok := item.(map[string]any)
		if !ok {
			continue
		}
		out = append(out, Article{
			Ordinal:  stringField(m, "ordinal"),
			Body:     stringField(m, "body"),
			Articles: articlesField(m, "articles"),
		})
	}
	return out
}

func referencesField(obj map[string]any, key string) []Reference {
	items, _ := obj[key].([]any)
	if len(items) == 0 {
		return nil
	}
	out := make([]Reference, 0, len(items))
	for _, item := range items {
		m, ok := item.(map[string]any)
		if !ok {
			continue
		}
		out = append(out, Reference{
			Name: stringField(m, "name"),
			Body: stringField(m, "body"),
		})
	}
	return out
}

func stringField(obj map[string]any, key string) string {
	switch v := obj[key].(type) {
	case string:
		return v
	case float64:
		return fmt.Sprintf("%v", v)
	case bool:
		return fmt.Sprintf("%t", v)
	default:
		return ""
	}
}
