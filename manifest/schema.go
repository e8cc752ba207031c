// Copyright (c) 2020 Siemens AG
//
// Permission is hereby granted, free of charge, to any person obtaining a copy of
// this software and associated documentation files (the "Software"), to deal in
// the Software without restriction, including without limitation the rights to
// use, copy, modify, merge, publish, distribute, sublicense, and/or sell copies of
// the Software, and to permit persons to whom the Software is furnished to do so,
// subject to the following conditions:
//
// The above copyright notice and this permission notice shall be included in all
// copies or substantial portions of the Software.
//
// THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
// IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY, FITNESS
// FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE AUTHORS OR
// COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER LIABILITY, WHETHER
// IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM, OUT OF OR IN
// CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE SOFTWARE.

package manifest

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/pkg/errors"
	"github.com/qri-io/jsonschema"
	"github.com/tidwall/gjson"
)

const processSchema = `{
  "$schema": "https://json-schema.org/draft/2019-09/schema",
  "title": "process",
  "type": "object",
  "required": ["id", "type", "name", "command_line", "created_time"],
  "properties": {
    "id": {"type": "string", "pattern": "^process--[0-9a-f-]{36}$"},
    "type": {"const": "process"},
    "name": {"type": "string", "minLength": 1},
    "artifact": {"type": "string"},
    "created_time": {"type": "string", "pattern": "^[0-9]{4}-[0-9]{2}-[0-9]{2}T[0-9]{2}:[0-9]{2}:[0-9]{2}\\.[0-9]{3}Z$"},
    "command_line": {"type": "string", "minLength": 1},
    "arguments": {"type": "array", "items": {"type": "string"}},
    "stdout_path": {"type": "string"},
    "return_code": {"type": "number"},
    "duration": {"type": "number", "minimum": 0},
    "errors": {"type": "array"}
  }
}`

const fileSchema = `{
  "$schema": "https://json-schema.org/draft/2019-09/schema",
  "title": "file",
  "type": "object",
  "required": ["id", "type", "name"],
  "properties": {
    "id": {"type": "string", "pattern": "^file--[0-9a-f-]{36}$"},
    "type": {"const": "file"},
    "name": {"type": "string", "minLength": 1},
    "artifact": {"type": "string"},
    "size": {"type": "number", "minimum": 0},
    "mtime": {"type": "string"},
    "export_path": {"type": "string"},
    "hashes": {
      "type": "object",
      "properties": {
        "MD5": {"type": "string", "pattern": "^[0-9a-f]{32}$"},
        "SHA-1": {"type": "string", "pattern": "^[0-9a-f]{40}$"}
      }
    },
    "errors": {"type": "array"}
  }
}`

var errSchemaNotFound = errors.New("schema not found")

func loadSchemas() (map[string]*jsonschema.Schema, error) {
	schemas := map[string]*jsonschema.Schema{}
	for name, content := range map[string]string{"process": processSchema, "file": fileSchema} {
		schema := &jsonschema.Schema{}
		if err := json.Unmarshal([]byte(content), schema); err != nil {
			return nil, errors.Wrap(err, fmt.Sprintf("unmarshal error %s", name))
		}
		schemas[name] = schema
	}
	return schemas, nil
}

func (m *Manifest) validateElementSchema(element JSONElement) (flaws []string, err error) {
	elementType := gjson.GetBytes(element, discriminator)
	if !elementType.Exists() {
		return []string{"element needs to have a type"}, nil
	}

	schema, ok := m.schemas[elementType.String()]
	if !ok {
		return nil, errors.Wrap(errSchemaNotFound, elementType.String())
	}

	errs, err := schema.ValidateBytes(context.Background(), element)
	if err != nil {
		return nil, err
	}
	for _, verr := range errs {
		flaws = append(flaws, fmt.Sprintf("failed to validate element: %s", verr))
	}
	return flaws, nil
}
