// ABOUTME: Embedded JSON schemas for instantiate, exec and query messages
// ABOUTME: Compiled once with santhosh-tekuri/jsonschema (draft 2020-12)

package contract

import (
	"bytes"
	"embed"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

//go:embed schemas/*.schema.json
var schemaFS embed.FS

// Schema names, matching the files under schemas/.
const (
	SchemaInstantiate = "instantiate"
	SchemaExec        = "exec"
	SchemaQuery       = "query"
)

const schemaBaseURL = "https://whitelist.schemas.local/"

var (
	compileOnce sync.Once
	compiled    map[string]*jsonschema.Schema
	compileErr  error
)

func compileSchemas() (map[string]*jsonschema.Schema, error) {
	compileOnce.Do(func() {
		c := jsonschema.NewCompiler()
		c.Draft = jsonschema.Draft2020

		names := []string{SchemaInstantiate, SchemaExec, SchemaQuery}
		for _, name := range names {
			data, err := SchemaJSON(name)
			if err != nil {
				compileErr = err
				return
			}
			if err := c.AddResource(schemaURL(name), bytes.NewReader(data)); err != nil {
				compileErr = fmt.Errorf("loading %s schema: %w", name, err)
				return
			}
		}

		out := make(map[string]*jsonschema.Schema, len(names))
		for _, name := range names {
			s, err := c.Compile(schemaURL(name))
			if err != nil {
				compileErr = fmt.Errorf("compiling %s schema: %w", name, err)
				return
			}
			out[name] = s
		}
		compiled = out
	})
	return compiled, compileErr
}

func schemaURL(name string) string {
	return schemaBaseURL + name + ".schema.json"
}

// SchemaJSON returns the raw schema document for name.
func SchemaJSON(name string) ([]byte, error) {
	data, err := schemaFS.ReadFile("schemas/" + name + ".schema.json")
	if err != nil {
		return nil, fmt.Errorf("unknown schema %q: %w", name, err)
	}
	return data, nil
}

// validate checks raw against the named schema.
func validate(name string, raw []byte) error {
	schemas, err := compileSchemas()
	if err != nil {
		return err
	}

	var doc any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return invalidMessage(fmt.Errorf("decoding JSON: %w", err))
	}
	if err := schemas[name].Validate(doc); err != nil {
		return invalidMessage(err)
	}
	return nil
}
