package ai

import (
	"bytes"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

//go:embed schemas/*.json
var schemaFiles embed.FS

var (
	// ErrEmptyResponse indicates the provider answered without usable text.
	ErrEmptyResponse = errors.New("oracle returned no content")
	// ErrMalformedResponse indicates the provider answer was not the expected JSON document.
	ErrMalformedResponse = errors.New("oracle returned malformed json")
	// ErrSchemaViolation indicates the provider answer did not match the judgment schema.
	ErrSchemaViolation = errors.New("oracle response violates schema")
)

var (
	schemasOnce sync.Once
	schemas     map[Kind]*jsonschema.Schema
	schemasErr  error
)

func loadSchemas() (map[Kind]*jsonschema.Schema, error) {
	schemasOnce.Do(func() {
		compiler := jsonschema.NewCompiler()
		kinds := []Kind{KindTranslatorPrescreen, KindConsultantPrescreen, KindTranslationAssessment, KindLQAAssessment}
		compiled := make(map[Kind]*jsonschema.Schema, len(kinds))
		for _, kind := range kinds {
			name := "schemas/" + string(kind) + ".json"
			data, err := schemaFiles.ReadFile(name)
			if err != nil {
				schemasErr = fmt.Errorf("read schema %s: %w", name, err)
				return
			}
			url := "mem://" + name
			if err := compiler.AddResource(url, bytes.NewReader(data)); err != nil {
				schemasErr = fmt.Errorf("add schema %s: %w", name, err)
				return
			}
			schema, err := compiler.Compile(url)
			if err != nil {
				schemasErr = fmt.Errorf("compile schema %s: %w", name, err)
				return
			}
			compiled[kind] = schema
		}
		schemas = compiled
	})
	return schemas, schemasErr
}

// ParseJudgment validates raw provider output against the schema for kind and decodes it.
func ParseJudgment(kind Kind, raw string) (Judgment, error) {
	content := stripCodeFences(raw)
	if content == "" {
		return Judgment{}, ErrEmptyResponse
	}

	var document interface{}
	if err := json.Unmarshal([]byte(content), &document); err != nil {
		return Judgment{}, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}

	compiled, err := loadSchemas()
	if err != nil {
		return Judgment{}, err
	}
	schema, ok := compiled[kind]
	if !ok {
		return Judgment{}, fmt.Errorf("no schema for judgment kind %q", kind)
	}
	if err := schema.Validate(document); err != nil {
		return Judgment{}, fmt.Errorf("%w: %v", ErrSchemaViolation, err)
	}

	judgment := Judgment{Kind: kind}
	switch kind {
	case KindTranslatorPrescreen:
		judgment.TranslatorPrescreen = &TranslatorPrescreen{}
		err = json.Unmarshal([]byte(content), judgment.TranslatorPrescreen)
	case KindConsultantPrescreen:
		judgment.ConsultantPrescreen = &ConsultantPrescreen{}
		err = json.Unmarshal([]byte(content), judgment.ConsultantPrescreen)
	case KindTranslationAssessment:
		judgment.TranslationAssessment = &TranslationAssessment{}
		err = json.Unmarshal([]byte(content), judgment.TranslationAssessment)
	case KindLQAAssessment:
		judgment.LQAAssessment = &LQAAssessment{}
		err = json.Unmarshal([]byte(content), judgment.LQAAssessment)
	}
	if err != nil {
		return Judgment{}, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}

	return judgment, nil
}

func stripCodeFences(raw string) string {
	content := strings.TrimSpace(raw)
	if !strings.HasPrefix(content, "```") {
		return content
	}
	content = strings.TrimPrefix(content, "```json")
	content = strings.TrimPrefix(content, "```JSON")
	content = strings.TrimPrefix(content, "```")
	if idx := strings.LastIndex(content, "```"); idx != -1 {
		content = content[:idx]
	}
	return strings.TrimSpace(content)
}
