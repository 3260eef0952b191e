// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 auth-server-jwt Contributors

package httpapi

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"sync"

	"github.com/invopop/jsonschema"
	jschema "github.com/santhosh-tekuri/jsonschema/v6"
	"github.com/samber/oops"
)

const maxBodyBytes = 1 << 20

// credentialsRequest is the body of POST /auth/register and POST /auth/login.
type credentialsRequest struct {
	Username string `json:"username" jsonschema:"description=Unique user name,example=alice"`
	Password string `json:"password" jsonschema:"description=Plaintext password,example=hunter2"`
}

var (
	credentialsSchemaOnce sync.Once
	credentialsSchema     *jschema.Schema
	credentialsSchemaErr  error
)

func reflectSchema(v any) *jsonschema.Schema {
	r := jsonschema.Reflector{DoNotReference: true, AllowAdditionalProperties: true}
	return r.Reflect(v)
}

func compileSchema(name string, s *jsonschema.Schema) (*jschema.Schema, error) {
	data, err := json.Marshal(s)
	if err != nil {
		return nil, oops.With("schema", name).Wrap(err)
	}
	doc, err := jschema.UnmarshalJSON(bytes.NewReader(data))
	if err != nil {
		return nil, oops.With("schema", name).Wrap(err)
	}
	c := jschema.NewCompiler()
	if err := c.AddResource(name, doc); err != nil {
		return nil, oops.With("schema", name).Wrap(err)
	}
	sch, err := c.Compile(name)
	if err != nil {
		return nil, oops.With("schema", name).Wrap(err)
	}
	return sch, nil
}

func getCredentialsSchema() (*jschema.Schema, error) {
	credentialsSchemaOnce.Do(func() {
		credentialsSchema, credentialsSchemaErr = compileSchema("credentials.json", reflectSchema(&credentialsRequest{}))
	})
	return credentialsSchema, credentialsSchemaErr
}

// errMalformedBody marks a body that is not a JSON object of the expected shape.
var errMalformedBody = errors.New("malformed request body")

// decodeCredentials reads and validates the request body. Bodies that are not
// JSON or do not match the schema return errMalformedBody.
func decodeCredentials(w http.ResponseWriter, r *http.Request) (credentialsRequest, error) {
	var req credentialsRequest

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		return req, oops.With("reason", "read").Wrap(errMalformedBody)
	}
	inst, err := jschema.UnmarshalJSON(bytes.NewReader(body))
	if err != nil {
		return req, oops.With("reason", "json").Wrap(errMalformedBody)
	}

	sch, err := getCredentialsSchema()
	if err != nil {
		return req, err
	}
	if err := sch.Validate(inst); err != nil {
		return req, oops.With("reason", "schema", "detail", err.Error()).Wrap(errMalformedBody)
	}

	if err := json.Unmarshal(body, &req); err != nil {
		return req, oops.With("reason", "json").Wrap(errMalformedBody)
	}
	return req, nil
}
