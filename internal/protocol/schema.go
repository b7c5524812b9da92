package protocol

import (
	"bytes"
	"embed"
	"encoding/json"
	"fmt"
	"path"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

//go:embed schemas/*.json
var schemaFS embed.FS

const schemaBaseURL = "https://brawlarena.ai/schemas/"

var (
	schemaOnce     sync.Once
	schemaCompiler *jsonschema.Compiler
	schemaErr      error

	schemaMu    sync.Mutex
	schemaCache = map[string]*jsonschema.Schema{}
)

func compiler() (*jsonschema.Compiler, error) {
	schemaOnce.Do(func() {
		c := jsonschema.NewCompiler()
		c.Draft = jsonschema.Draft2020
		ents, err := schemaFS.ReadDir("schemas")
		if err != nil {
			schemaErr = err
			return
		}
		for _, e := range ents {
			b, err := schemaFS.ReadFile(path.Join("schemas", e.Name()))
			if err != nil {
				schemaErr = err
				return
			}
			if err := c.AddResource(schemaBaseURL+e.Name(), bytes.NewReader(b)); err != nil {
				schemaErr = fmt.Errorf("%s: %w", e.Name(), err)
				return
			}
		}
		schemaCompiler = c
	})
	return schemaCompiler, schemaErr
}

// CompileSchema returns the embedded schema with the given file name (e.g. "user.schema.json").
func CompileSchema(name string) (*jsonschema.Schema, error) {
	schemaMu.Lock()
	defer schemaMu.Unlock()
	if s, ok := schemaCache[name]; ok {
		return s, nil
	}
	c, err := compiler()
	if err != nil {
		return nil, err
	}
	s, err := c.Compile(schemaBaseURL + name)
	if err != nil {
		return nil, err
	}
	schemaCache[name] = s
	return s, nil
}

// ValidateRecord checks rec against user.schema.json.
func ValidateRecord(rec UserRecord) error {
	s, err := CompileSchema("user.schema.json")
	if err != nil {
		return err
	}
	b, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	var doc any
	if err := json.Unmarshal(b, &doc); err != nil {
		return err
	}
	if err := s.Validate(doc); err != nil {
		return NewError(ErrBadRecord, err.Error())
	}
	return nil
}
