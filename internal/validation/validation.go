// Package validation checks input documents against JSON Schemas before
// they are decoded into domain types.
package validation

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v6"
	"gopkg.in/yaml.v3"

	"github.com/verte-zerg/hydrobasin/internal/model"
)

// ErrInvalidDocument is wrapped by every schema violation.
var ErrInvalidDocument = errors.New("invalid document")

const (
	samplesSchemaURL = "https://hydrobasin.dev/schemas/samples.json"
	regionsSchemaURL = "https://hydrobasin.dev/schemas/regions.json"
)

const samplesSchemaJSON = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "object",
  "required": ["samples"],
  "additionalProperties": false,
  "properties": {
    "kind": {"type": "string", "enum": ["gev", "tcev", "GEV", "TCEV"]},
    "name": {"type": "string"},
    "samples": {
      "type": "array",
      "minItems": 1,
      "items": {
        "type": "object",
        "required": ["t", "value"],
        "additionalProperties": false,
        "properties": {
          "t": {"type": "number", "exclusiveMinimum": 1},
          "value": {"type": "number"}
        }
      }
    }
  }
}`

const regionsSchemaJSON = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "object",
  "required": ["regions"],
  "properties": {
    "regions": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["id", "tmco", "beta_medio"],
        "properties": {
          "id": {"type": "integer", "minimum": 0},
          "name": {"type": "string"},
          "tmco": {"type": "number", "exclusiveMinimum": 1},
          "beta_medio": {"type": "number", "minimum": 0},
          "distribution": {"type": "string", "enum": ["", "GEV", "TCEV"]},
          "ic50": {"type": "number"},
          "ic67": {"type": "number"},
          "ic90": {"type": "number"},
          "p0_coeffs": {
            "type": "object",
            "propertyNames": {"pattern": "^[0-9]+$"},
            "additionalProperties": {"type": "number", "minimum": 0}
          },
          "boundary": {
            "type": "array",
            "items": {
              "type": "array",
              "minItems": 3,
              "items": {
                "type": "object",
                "required": ["x", "y"],
                "properties": {"x": {"type": "number"}, "y": {"type": "number"}}
              }
            }
          }
        }
      }
    }
  }
}`

// SampleFile is a frequency sample document.
type SampleFile struct {
	Kind    string                  `json:"kind,omitempty"`
	Name    string                  `json:"name,omitempty"`
	Samples []model.FrequencySample `json:"samples"`
}

// Validator holds the compiled document schemas.
type Validator struct {
	samples *jsonschema.Schema
	regions *jsonschema.Schema
}

// New compiles the embedded schemas.
func New() (*Validator, error) {
	c := jsonschema.NewCompiler()
	for url, src := range map[string]string{
		samplesSchemaURL: samplesSchemaJSON,
		regionsSchemaURL: regionsSchemaJSON,
	} {
		doc, err := jsonschema.UnmarshalJSON(strings.NewReader(src))
		if err != nil {
			return nil, fmt.Errorf("unmarshal schema %s: %w", url, err)
		}
		if err := c.AddResource(url, doc); err != nil {
			return nil, fmt.Errorf("add schema resource %s: %w", url, err)
		}
	}
	samples, err := c.Compile(samplesSchemaURL)
	if err != nil {
		return nil, fmt.Errorf("compile samples schema: %w", err)
	}
	regions, err := c.Compile(regionsSchemaURL)
	if err != nil {
		return nil, fmt.Errorf("compile regions schema: %w", err)
	}
	return &Validator{samples: samples, regions: regions}, nil
}

// DecodeSamples reads a JSON or YAML sample document, checks it against
// the schema and decodes it.
func (v *Validator) DecodeSamples(r io.Reader) (SampleFile, error) {
	var raw any
	if err := yaml.NewDecoder(r).Decode(&raw); err != nil {
		if errors.Is(err, io.EOF) {
			return SampleFile{}, fmt.Errorf("sample document is empty: %w", ErrInvalidDocument)
		}
		return SampleFile{}, fmt.Errorf("failed to parse sample document: %w", err)
	}
	b, err := json.Marshal(raw)
	if err != nil {
		return SampleFile{}, fmt.Errorf("failed to serialize sample document: %w", err)
	}
	doc, err := jsonschema.UnmarshalJSON(bytes.NewReader(b))
	if err != nil {
		return SampleFile{}, fmt.Errorf("failed to serialize sample document: %w", err)
	}
	if err := v.samples.Validate(doc); err != nil {
		return SampleFile{}, violationError(err)
	}
	var f SampleFile
	if err := json.Unmarshal(b, &f); err != nil {
		return SampleFile{}, fmt.Errorf("failed to decode sample document: %w", err)
	}
	return f, nil
}

// ValidateRegions checks an already decoded region document.
func (v *Validator) ValidateRegions(doc any) error {
	val, err := toJSONValue(doc)
	if err != nil {
		return fmt.Errorf("failed to serialize region document: %w", err)
	}
	if err := v.regions.Validate(val); err != nil {
		return violationError(err)
	}
	return nil
}

// toJSONValue round-trips a Go value through JSON so numbers become
// json.Number.
func toJSONValue(v any) (any, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return jsonschema.UnmarshalJSON(bytes.NewReader(b))
}

func violationError(err error) error {
	var verr *jsonschema.ValidationError
	if !errors.As(err, &verr) {
		return fmt.Errorf("%v: %w", err, ErrInvalidDocument)
	}
	violations := collectViolations(verr)
	if len(violations) == 0 {
		return fmt.Errorf("%v: %w", verr, ErrInvalidDocument)
	}
	return fmt.Errorf("%s: %w", strings.Join(violations, "; "), ErrInvalidDocument)
}

// collectViolations walks a ValidationError tree and returns its leaf
// messages prefixed with the instance location.
func collectViolations(verr *jsonschema.ValidationError) []string {
	if len(verr.Causes) == 0 {
		loc := "/" + strings.Join(verr.InstanceLocation, "/")
		return []string{fmt.Sprintf("%s: %s", loc, verr.Error())}
	}
	var out []string
	for _, cause := range verr.Causes {
		out = append(out, collectViolations(cause)...)
	}
	return out
}
