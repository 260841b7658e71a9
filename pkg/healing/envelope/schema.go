/*
Copyright 2026 The Codeheal Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package envelope

import (
	"encoding/json"
	"sync"

	"github.com/getkin/kin-openapi/openapi3"

	cherrors "github.com/codeheals/codeheal/pkg/shared/errors"
)

// Schema publishes the envelope's JSON Schema, per spec.md §6: required
// top-level fields are patch_id, patch_data, metadata, attempts,
// success. Built once and reused across validations.
var (
	schemaOnce sync.Once
	schema     *openapi3.Schema
)

func Schema() *openapi3.Schema {
	schemaOnce.Do(func() {
		schema = openapi3.NewObjectSchema().
			WithProperty("patch_id", openapi3.NewStringSchema()).
			WithProperty("patch_data", openapi3.NewObjectSchema()).
			WithProperty("metadata", openapi3.NewObjectSchema()).
			WithProperty("attempts", openapi3.NewArraySchema()).
			WithProperty("timeline", openapi3.NewArraySchema()).
			WithProperty("success", openapi3.NewBoolSchema()).
			WithProperty("envelope_hash", openapi3.NewStringSchema()).
			WithProperty("cascade_depth", openapi3.NewIntegerSchema())
		schema.Required = []string{"patch_id", "patch_data", "metadata", "attempts", "success"}
	})
	return schema
}

// Validate checks e against Schema(), per spec.md §4.8: "every emitted
// envelope must validate against a published JSON schema before being
// returned to callers; a validation failure is a fatal programmer
// error." Callers should treat a non-nil error as fatal, not retriable.
func Validate(e *Envelope) error {
	raw, err := json.Marshal(e)
	if err != nil {
		return &cherrors.FatalError{Kind: cherrors.KindSchemaViolation, Detail: "marshal envelope: " + err.Error()}
	}
	var generic any
	if err := json.Unmarshal(raw, &generic); err != nil {
		return &cherrors.FatalError{Kind: cherrors.KindSchemaViolation, Detail: "unmarshal envelope: " + err.Error()}
	}
	if err := Schema().VisitJSON(generic); err != nil {
		return &cherrors.FatalError{Kind: cherrors.KindSchemaViolation, Detail: err.Error()}
	}
	return nil
}
