// Package script loads YAML call scripts: a library, the structs and
// functions to register against it, and a list of calls with their flattened
// argument values.
package script

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"

	"github.com/go-playground/validator/v10"
	"github.com/invopop/jsonschema"
	"gopkg.in/yaml.v3"

	"github.com/wippyai/ffi-bridge/errors"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// Script is a parsed call script.
type Script struct {
	// Library is a shared library path, or a .wasm module.
	Library   string     `yaml:"library" json:"library,omitempty" jsonschema:"description=Shared library path; a .wasm suffix selects the WebAssembly backend"`
	Structs   []Struct   `yaml:"structs" json:"structs,omitempty" validate:"dive"`
	Functions []Function `yaml:"functions" json:"functions" validate:"required,min=1,dive"`
	Calls     []Call     `yaml:"calls" json:"calls,omitempty" validate:"dive"`
}

// Struct declares a struct type. Fields name scalar kinds or earlier structs.
type Struct struct {
	Name   string   `yaml:"name" json:"name" validate:"required"`
	Fields []string `yaml:"fields" json:"fields" validate:"dive,required"`
}

// Function declares a function signature. An empty Returns means void.
type Function struct {
	Name    string   `yaml:"name" json:"name" validate:"required"`
	Args    []string `yaml:"args" json:"args,omitempty" validate:"dive,required"`
	Returns string   `yaml:"returns" json:"returns,omitempty"`
}

// Call invokes a declared function. Args are leaf values in depth-first
// order; numbers may be written as YAML numbers or as strings such as "0x10".
type Call struct {
	Function string `yaml:"function" json:"function" validate:"required"`
	Args     []any  `yaml:"args" json:"args,omitempty"`
}

// Parse decodes and validates a call script. Unknown keys are rejected.
func Parse(data []byte) (*Script, error) {
	var s Script
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&s); err != nil {
		return nil, errors.ParseFailed("call script", err)
	}
	if err := validate.Struct(&s); err != nil {
		return nil, errors.New(errors.PhaseConfig, errors.KindInvalidInput).
			Detail("validate call script").
			Cause(err).
			Build()
	}
	return &s, nil
}

// Load reads and parses the call script at path.
func Load(path string) (*Script, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(errors.PhaseConfig, errors.KindNotFound, err, "read "+path)
	}
	return Parse(data)
}

// Schema returns the JSON schema of the call script format.
func Schema() ([]byte, error) {
	reflector := jsonschema.Reflector{
		ExpandedStruct: true,
	}
	out, err := json.MarshalIndent(reflector.Reflect(&Script{}), "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal schema: %w", err)
	}
	return out, nil
}
