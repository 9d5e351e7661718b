package logger

import (
	"strings"

	"go.uber.org/zap"
)

const (
	// FieldProvider is the structured log field key for the AI provider name.
	FieldProvider = "ai_provider"
	// FieldModel is the structured log field key for the AI model identifier.
	FieldModel = "ai_model"
	// FieldAgent names the LLM agent issuing a request.
	FieldAgent = "agent"
	// FieldRunID identifies a single faculty evaluation.
	FieldRunID = "run_id"
	// FieldURL is the faculty URL a run was started for.
	FieldURL = "faculty_url"
	// FieldStage is the pipeline stage currently executing.
	FieldStage = "stage"
)

// StringField describes a string-valued structured logging field.
type StringField struct {
	Key   string
	Value string
}

// StringFields converts the provided key/value pairs into zap fields, trimming
// whitespace and omitting entries with empty keys or values.
func StringFields(fields ...StringField) []zap.Field {
	result := make([]zap.Field, 0, len(fields))
	for _, field := range fields {
		key := strings.TrimSpace(field.Key)
		if key == "" {
			continue
		}

		value := strings.TrimSpace(field.Value)
		if value == "" {
			continue
		}

		result = append(result, zap.String(key, value))
	}

	return result
}

// WithFields attaches fields to the logger, defaulting to a no-op logger when nil.
func WithFields(logger *zap.Logger, fields ...zap.Field) *zap.Logger {
	if logger == nil {
		logger = zap.NewNop()
	}

	if len(fields) == 0 {
		return logger
	}

	return logger.With(fields...)
}

// CommonFields returns fields that describe the AI provider and model.
func CommonFields(provider, model string) []zap.Field {
	return StringFields(
		StringField{Key: FieldProvider, Value: provider},
		StringField{Key: FieldModel, Value: model},
	)
}

// ForAgent scopes a logger to one LLM agent.
func ForAgent(logger *zap.Logger, agent, model string) *zap.Logger {
	fields := StringFields(
		StringField{Key: FieldAgent, Value: agent},
		StringField{Key: FieldModel, Value: model},
	)
	return WithFields(logger, fields...)
}

// ForRun scopes a logger to one faculty evaluation.
func ForRun(logger *zap.Logger, runID, url string) *zap.Logger {
	fields := StringFields(
		StringField{Key: FieldRunID, Value: runID},
		StringField{Key: FieldURL, Value: url},
	)
	return WithFields(logger, fields...)
}

// ForStage scopes a logger to a pipeline stage.
func ForStage(logger *zap.Logger, stage string) *zap.Logger {
	return WithFields(logger, StringFields(StringField{Key: FieldStage, Value: stage})...)
}
