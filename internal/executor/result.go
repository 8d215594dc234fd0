package executor

import (
	"encoding/json"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v6"
)

// resultSchemaJSON is the structured-result contract every dispatch case's
// agent turn must conform to: {status, summary, errors}.
const resultSchemaJSON = `{
	"type": "object",
	"required": ["status", "summary"],
	"properties": {
		"status": {"enum": ["success", "failed", "skipped"]},
		"summary": {"type": "string", "minLength": 1},
		"errors": {
			"type": "array",
			"items": {
				"type": "object",
				"required": ["code", "message"],
				"properties": {
					"code": {"type": "string", "minLength": 1},
					"message": {"type": "string", "minLength": 1}
				}
			}
		}
	}
}`

var resultSchema = compileResultSchema()

func compileResultSchema() *jsonschema.Schema {
	doc, err := jsonschema.UnmarshalJSON(strings.NewReader(resultSchemaJSON))
	if err != nil {
		panic("executor: invalid embedded result schema: " + err.Error())
	}
	c := jsonschema.NewCompiler()
	if err := c.AddResource("result.json", doc); err != nil {
		panic("executor: add result schema resource: " + err.Error())
	}
	schema, err := c.Compile("result.json")
	if err != nil {
		panic("executor: compile result schema: " + err.Error())
	}
	return schema
}

// ResultStatus is the agent-reported outcome of one task execution.
type ResultStatus string

const (
	ResultSuccess ResultStatus = "success"
	ResultFailed  ResultStatus = "failed"
	ResultSkipped ResultStatus = "skipped"
)

// StructuredError is one entry of a structured result's errors array.
type StructuredError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// StructuredResult is the parsed, schema-valid shape an agent turn returns.
type StructuredResult struct {
	Status  ResultStatus
	Summary string
	Errors  []StructuredError

	// Set when parsing or validation failed; the run is finalized as
	// failed with the original text preserved for diagnosis.
	ParseFailed bool
	ErrorCode   string // invalid_result_json | invalid_result_schema
	RawOutput   string
}

// ParseStructuredResult implements spec.md §4.E's "Structured-result
// parsing": trim, JSON.parse, fall back to a fenced ```json block on
// failure, normalize the errors field, then validate against the schema.
func ParseStructuredResult(text string) StructuredResult {
	trimmed := strings.TrimSpace(text)

	raw, ok := tryParseJSON(trimmed)
	if !ok {
		if block, found := extractFencedJSONBlock(trimmed); found {
			raw, ok = tryParseJSON(block)
		}
	}
	if !ok {
		return StructuredResult{ParseFailed: true, ErrorCode: "invalid_result_json", RawOutput: text}
	}

	normalized, ok := normalizeErrors(raw)
	if !ok {
		return StructuredResult{ParseFailed: true, ErrorCode: "invalid_result_schema", RawOutput: text}
	}

	if err := resultSchema.Validate(normalized); err != nil {
		return StructuredResult{ParseFailed: true, ErrorCode: "invalid_result_schema", RawOutput: text}
	}

	return toStructuredResult(normalized)
}

func tryParseJSON(s string) (any, bool) {
	if s == "" {
		return nil, false
	}
	v, err := jsonschema.UnmarshalJSON(strings.NewReader(s))
	if err != nil {
		return nil, false
	}
	return v, true
}

func extractFencedJSONBlock(text string) (string, bool) {
	idx := strings.Index(text, "```json")
	if idx < 0 {
		return "", false
	}
	start := idx + len("```json")
	if start < len(text) && text[start] == '\n' {
		start++
	}
	end := strings.Index(text[start:], "```")
	if end < 0 {
		return "", false
	}
	block := strings.TrimSpace(text[start : start+end])
	if block == "" {
		return "", false
	}
	return block, true
}

// normalizeErrors accepts "errors" as an array of {code,message} objects or
// plain strings; strings become {code: "task_error", message: <string>}.
// JSON Schema can't express this coercion, so it happens here first.
func normalizeErrors(raw any) (map[string]any, bool) {
	obj, ok := raw.(map[string]any)
	if !ok {
		return nil, false
	}
	errs, exists := obj["errors"]
	if !exists {
		return obj, true
	}
	list, ok := errs.([]any)
	if !ok {
		return nil, false
	}

	normalized := make([]any, 0, len(list))
	for _, item := range list {
		switch v := item.(type) {
		case string:
			normalized = append(normalized, map[string]any{"code": "task_error", "message": v})
		case map[string]any:
			normalized = append(normalized, v)
		default:
			return nil, false
		}
	}
	obj["errors"] = normalized
	return obj, true
}

func toStructuredResult(obj map[string]any) StructuredResult {
	result := StructuredResult{
		Status:  ResultStatus(stringField(obj, "status")),
		Summary: stringField(obj, "summary"),
	}
	if errs, ok := obj["errors"].([]any); ok {
		for _, e := range errs {
			if m, ok := e.(map[string]any); ok {
				result.Errors = append(result.Errors, StructuredError{
					Code:    stringField(m, "code"),
					Message: stringField(m, "message"),
				})
			}
		}
	}
	return result
}

func stringField(obj map[string]any, key string) string {
	v, ok := obj[key]
	if !ok {
		return ""
	}
	s, _ := v.(string)
	return s
}

// MarshalForStorage serializes the result for the run's resultJson column,
// including rawOutput only when parsing failed.
func (r StructuredResult) MarshalForStorage() string {
	payload := map[string]any{
		"status":  r.Status,
		"summary": r.Summary,
		"errors":  r.Errors,
	}
	if r.ParseFailed {
		payload["rawOutput"] = r.RawOutput
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return "{}"
	}
	return string(data)
}
