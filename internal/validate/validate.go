// Package validate checks JSON payloads crossing the service boundary
// against JSON schemas: upload bodies coming in and model service
// responses coming back.
package validate

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/ChuLiYu/docqueue/pkg/types"
)

var (
	// ErrInvalid is wrapped by every validation failure.
	ErrInvalid = errors.New("invalid payload")
)

// IDPattern restricts task ids to names that are safe as file names.
const IDPattern = `^[A-Za-z0-9][A-Za-z0-9._-]{0,127}$`

const uploadSchema = `{
  "type": "object",
  "properties": {
    "id": {"type": ["string", "null"], "pattern": "` + IDPattern + `"},
    "documents": {
      "type": "array",
      "minItems": 1,
      "items": {
        "type": "object",
        "properties": {
          "doc_url": {"type": "string", "minLength": 1},
          "doc_type": {"type": ["string", "null"]}
        },
        "required": ["doc_url"]
      }
    }
  },
  "required": ["documents"]
}`

const classificationSchema = `{
  "type": "object",
  "properties": {
    "facesheet": {"type": "integer", "minimum": 0},
    "f2f": {"type": "integer", "minimum": 0},
    "poc": {"type": "integer", "minimum": 0},
    "documents": {
      "type": ["array", "null"],
      "items": {
        "type": "object",
        "properties": {
          "index": {"type": "integer"},
          "type": {"type": "string"},
          "start_page": {"type": "integer"},
          "end_page": {"type": "integer"},
          "confidence": {"type": "number"}
        },
        "required": ["type"]
      }
    }
  },
  "required": ["facesheet", "f2f", "poc"]
}`

const extractionSchema = `{"type": "object"}`

var (
	uploadValidator         = mustCompile("upload.json", uploadSchema)
	classificationValidator = mustCompile("classification.json", classificationSchema)
	extractionValidator     = mustCompile("extraction.json", extractionSchema)
)

func mustCompile(name, schema string) *jsonschema.Schema {
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource(name, bytes.NewReader([]byte(schema))); err != nil {
		panic(fmt.Sprintf("add schema %s: %v", name, err))
	}
	return compiler.MustCompile(name)
}

func check(schema *jsonschema.Schema, data []byte) error {
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return fmt.Errorf("%w: malformed JSON: %v", ErrInvalid, err)
	}
	if err := schema.Validate(v); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	return nil
}

// Upload validates and decodes a POST /upload body.
func Upload(data []byte) (types.UploadRequest, error) {
	var req types.UploadRequest
	if err := check(uploadValidator, data); err != nil {
		return req, err
	}
	if err := json.Unmarshal(data, &req); err != nil {
		return req, fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	return req, nil
}

// Classification validates a classifier response body.
func Classification(data []byte) error {
	return check(classificationValidator, data)
}

// Extraction validates an extraction result body.
func Extraction(data []byte) error {
	return check(extractionValidator, data)
}
