package template

import (
	_ "embed"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
	"gopkg.in/yaml.v3"

	"github.com/stackwave/stackctl/pkg/errors"
)

//go:embed template.schema.json
var schemaJSON string

var (
	schemaOnce     sync.Once
	schemaErr      error
	compiledSchema *jsonschema.Schema
)

func loadSchema() (*jsonschema.Schema, error) {
	schemaOnce.Do(func() {
		compiler := jsonschema.NewCompiler()
		if err := compiler.AddResource("template.schema.json", strings.NewReader(schemaJSON)); err != nil {
			schemaErr = err
			return
		}
		compiledSchema, schemaErr = compiler.Compile("template.schema.json")
	})
	return compiledSchema, schemaErr
}

// validateStructure checks the document against the embedded JSON schema.
// Short-tag intrinsics are normalized to their long form first so YAML and
// JSON documents validate identically.
func validateStructure(data []byte) error {
	sch, err := loadSchema()
	if err != nil {
		return errors.Wrap(errors.ErrCodeParse, "failed to load template schema", err)
	}

	var root yaml.Node
	if err := yaml.Unmarshal(data, &root); err != nil {
		return errors.ParseError(err.Error(), "")
	}
	doc := root.Content[0]

	plain, err := decodeValue(doc, "")
	if err != nil {
		return err
	}

	if err := sch.Validate(Plain(plain)); err != nil {
		return errors.Wrap(errors.ErrCodeParse, "template failed schema validation", err)
	}
	return nil
}
