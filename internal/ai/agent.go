// Package ai defines the LLM capability used by the pipeline agents and the
// helpers that turn model output into typed records.
package ai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/mitchellh/mapstructure"
)

// Generator sends a system instruction and a user message to a model and
// returns the textual reply.
type Generator interface {
	GenerateContent(ctx context.Context, system, message string) (string, error)
	Model() string
}

// ErrNoJSON is returned when a reply carries no JSON object.
var ErrNoJSON = errors.New("response does not contain a json object")

// ExtractJSON strips code fences and surrounding prose, returning the outermost
// JSON object in raw.
func ExtractJSON(raw string) string {
	raw = strings.TrimSpace(raw)
	if strings.HasPrefix(raw, "```") {
		raw = strings.TrimPrefix(raw, "```json")
		raw = strings.TrimPrefix(raw, "```")
		raw = strings.TrimSpace(raw)
		if idx := strings.LastIndex(raw, "```"); idx != -1 {
			raw = raw[:idx]
		}
	}
	raw = strings.Trim(raw, "`")
	raw = strings.TrimSpace(raw)

	start := strings.Index(raw, "{")
	end := strings.LastIndex(raw, "}")
	if start == -1 || end < start {
		return raw
	}
	return raw[start : end+1]
}

// DecodeJSON parses the JSON object in raw into out. Loosely typed values such
// as "12" for a number or "yes" for a boolean are accepted.
func DecodeJSON(raw string, out any) error {
	cleaned := ExtractJSON(raw)
	if !strings.HasPrefix(cleaned, "{") {
		return ErrNoJSON
	}

	var data map[string]any
	if err := json.Unmarshal([]byte(cleaned), &data); err != nil {
		return fmt.Errorf("parse model response: %w", err)
	}

	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           out,
		WeaklyTypedInput: true,
		TagName:          "mapstructure",
		DecodeHook:       boolHook,
	})
	if err != nil {
		return fmt.Errorf("build decoder: %w", err)
	}

	if err := decoder.Decode(data); err != nil {
		return fmt.Errorf("decode model response: %w", err)
	}
	return nil
}

func boolHook(from reflect.Type, to reflect.Type, data any) (any, error) {
	if to.Kind() != reflect.Bool || from.Kind() != reflect.String {
		return data, nil
	}
	return CoerceBool(data), nil
}

// CoerceBool interprets common truthy spellings.
func CoerceBool(v any) bool {
	switch val := v.(type) {
	case bool:
		return val
	case string:
		lower := strings.ToLower(strings.TrimSpace(val))
		return lower == "true" || lower == "yes" || lower == "1"
	case float64:
		return val != 0
	default:
		return false
	}
}

// RenderTemplate substitutes {{KEY}} placeholders in template.
func RenderTemplate(template string, values map[string]string) string {
	pairs := make([]string, 0, len(values)*2)
	for key, value := range values {
		pairs = append(pairs, "{{"+key+"}}", value)
	}
	return strings.NewReplacer(pairs...).Replace(template)
}

// MustJSON renders v as indented JSON for prompts.
func MustJSON(v any) string {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Sprintf("%v", v)
	}
	return string(data)
}
