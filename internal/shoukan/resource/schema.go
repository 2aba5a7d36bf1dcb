package resource

import (
	"bytes"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

//go:embed schemas/*.json
var schemaFS embed.FS

var (
	schemasOnce sync.Once
	schemas     map[Type]*jsonschema.Schema
	schemasErr  error
)

// ErrUnknownType is returned when a request names no supported resource type.
var ErrUnknownType = errors.New("unknown resource type")

// ValidationError lists every constraint a request violates.
type ValidationError struct {
	Type     Type
	Problems []string
	// Fields holds the JSON pointer of every offending field ("/name",
	// "/parameters/admin_username"), sorted and without duplicates.
	Fields []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s request: %s", e.Type, strings.Join(e.Problems, "; "))
}

func loadSchemas() {
	schemas = make(map[Type]*jsonschema.Schema, len(Types))
	c := jsonschema.NewCompiler()
	c.Draft = jsonschema.Draft2020
	for _, t := range Types {
		name := "schemas/" + string(t) + ".json"
		raw, err := schemaFS.ReadFile(name)
		if err != nil {
			schemasErr = fmt.Errorf("read schema %s: %w", name, err)
			return
		}
		if err := c.AddResource(name, bytes.NewReader(raw)); err != nil {
			schemasErr = fmt.Errorf("add schema %s: %w", name, err)
			return
		}
	}
	for _, t := range Types {
		name := "schemas/" + string(t) + ".json"
		sch, err := c.Compile(name)
		if err != nil {
			schemasErr = fmt.Errorf("compile schema %s: %w", name, err)
			return
		}
		schemas[t] = sch
	}
}

// Validate checks r against the JSON schema of its resource type. A request
// that passes has every mandatory slot populated.
func Validate(r *Request) error {
	if r == nil {
		return errors.New("nil request")
	}
	schemasOnce.Do(loadSchemas)
	if schemasErr != nil {
		return schemasErr
	}
	sch, ok := schemas[r.Type]
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownType, r.Type)
	}

	// The validator works on the generic JSON value tree.
	raw, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var doc any
	if err := dec.Decode(&doc); err != nil {
		return fmt.Errorf("unmarshal request: %w", err)
	}

	if err := sch.Validate(doc); err != nil {
		var verr *jsonschema.ValidationError
		if errors.As(err, &verr) {
			problems, fields := leafProblems(verr)
			return &ValidationError{Type: r.Type, Problems: problems, Fields: fields}
		}
		return fmt.Errorf("validate %s request: %w", r.Type, err)
	}
	return nil
}

// leafProblems flattens the cause tree into "location: message" strings and
// the distinct locations they point at.
func leafProblems(e *jsonschema.ValidationError) (problems, fields []string) {
	seen := map[string]bool{}
	var walk func(*jsonschema.ValidationError)
	walk = func(v *jsonschema.ValidationError) {
		if len(v.Causes) == 0 {
			loc := v.InstanceLocation
			if loc == "" {
				loc = "/"
			}
			problems = append(problems, loc+": "+v.Message)
			if !seen[loc] {
				seen[loc] = true
				fields = append(fields, loc)
			}
			return
		}
		for _, c := range v.Causes {
			walk(c)
		}
	}
	walk(e)
	sort.Strings(problems)
	sort.Strings(fields)
	return problems, fields
}
