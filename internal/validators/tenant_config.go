// Package validators checks documents accepted by the admin API before they
// reach the tenant registry.
package validators

import (
	"bytes"
	_ "embed"
	"errors"
	"fmt"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v6"
)

const tenantConfigSchemaURL = "https://crmsync.stacklok.dev/schema/tenant-config.json"

//go:embed schema/tenant_config.json
var tenantConfigSchema []byte

// ErrInvalidDocument is returned when a document does not match its schema
var ErrInvalidDocument = errors.New("invalid document")

var (
	compileOnce    sync.Once
	compiledSchema *jsonschema.Schema
	compileErr     error
)

func tenantSchema() (*jsonschema.Schema, error) {
	compileOnce.Do(func() {
		doc, err := jsonschema.UnmarshalJSON(bytes.NewReader(tenantConfigSchema))
		if err != nil {
			compileErr = fmt.Errorf("failed to parse tenant config schema: %w", err)
			return
		}
		c := jsonschema.NewCompiler()
		if err := c.AddResource(tenantConfigSchemaURL, doc); err != nil {
			compileErr = fmt.Errorf("failed to load tenant config schema: %w", err)
			return
		}
		compiledSchema, compileErr = c.Compile(tenantConfigSchemaURL)
	})
	return compiledSchema, compileErr
}

// ValidateTenantConfig checks a raw tenant configuration document against the
// embedded JSON schema. maxSize limits the document size in bytes; zero or a
// negative value disables the check.
func ValidateTenantConfig(body []byte, maxSize int) error {
	if maxSize > 0 && len(body) > maxSize {
		return fmt.Errorf("%w: document size %d bytes exceeds maximum allowed size of %d bytes",
			ErrInvalidDocument, len(body), maxSize)
	}

	schema, err := tenantSchema()
	if err != nil {
		return err
	}

	inst, err := jsonschema.UnmarshalJSON(bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidDocument, err)
	}
	if err := schema.Validate(inst); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidDocument, err)
	}
	return nil
}
