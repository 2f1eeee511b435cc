// Package jobspec loads declarative job spec files.
//
// Specs are YAML documents validated twice: structurally against the
// embedded CUE schema (types, required fields, enum values), then
// semantically by the model (CID shapes, mount paths). The CUE pass
// catches typos and shape errors with useful positions before anything
// touches the store.
package jobspec

import (
	"bytes"
	_ "embed"
	"fmt"
	"os"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueerrors "cuelang.org/go/cue/errors"
	"gopkg.in/yaml.v3"

	"github.com/roach88/trawl/internal/model"
)

//go:embed schema.cue
var schemaCUE string

// Load reads, validates, and decodes a job spec file.
func Load(path string) (model.JobSpec, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return model.JobSpec{}, fmt.Errorf("load job spec: %w", err)
	}
	return Parse(data)
}

// Parse validates and decodes job spec YAML.
func Parse(data []byte) (model.JobSpec, error) {
	// First pass: generic decode for schema validation.
	var raw map[string]any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return model.JobSpec{}, fmt.Errorf("parse job spec: %w", err)
	}
	if raw == nil {
		return model.JobSpec{}, fmt.Errorf("parse job spec: document is empty")
	}

	if err := validateSchema(raw); err != nil {
		return model.JobSpec{}, err
	}

	// Second pass: strict decode into the model. KnownFields catches
	// any field the schema's open positions let through.
	var spec model.JobSpec
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&spec); err != nil {
		return model.JobSpec{}, fmt.Errorf("parse job spec: %w", err)
	}

	if err := spec.Validate(); err != nil {
		return model.JobSpec{}, err
	}

	return spec, nil
}

// validateSchema unifies the decoded document with #JobSpec.
func validateSchema(doc map[string]any) error {
	ctx := cuecontext.New()

	schema := ctx.CompileString(schemaCUE)
	if err := schema.Err(); err != nil {
		return fmt.Errorf("compile job spec schema: %w", err)
	}
	def := schema.LookupPath(cue.ParsePath("#JobSpec"))
	if err := def.Err(); err != nil {
		return fmt.Errorf("job spec schema is missing #JobSpec: %w", err)
	}

	val := ctx.Encode(doc)
	if err := val.Err(); err != nil {
		return fmt.Errorf("encode job spec: %w", err)
	}

	unified := def.Unify(val)
	if err := unified.Validate(cue.Concrete(true)); err != nil {
		return fmt.Errorf("invalid job spec: %s", cueerrors.Details(err, nil))
	}

	return nil
}
