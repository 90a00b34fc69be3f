package validators

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateTenantConfig(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name        string
		body        string
		maxSize     int
		expectError bool
	}{
		{
			name: "complete document",
			body: `{"tenantId":"acme","syncEnabled":true,"conflictPolicy":"external-priority",
				"syncIntervalSeconds":60,"adapters":[{"name":"S1","direction":"bidirectional"}]}`,
		},
		{
			name: "minimal document",
			body: `{"conflictPolicy":"field-merge"}`,
		},
		{
			name:        "missing policy",
			body:        `{"tenantId":"acme","adapters":[]}`,
			expectError: true,
		},
		{
			name:        "unknown policy",
			body:        `{"conflictPolicy":"last-write-wins"}`,
			expectError: true,
		},
		{
			name:        "bad direction",
			body:        `{"conflictPolicy":"field-merge","adapters":[{"name":"S1","direction":"sideways"}]}`,
			expectError: true,
		},
		{
			name:        "unknown property",
			body:        `{"conflictPolicy":"field-merge","watermarks":{}}`,
			expectError: true,
		},
		{
			name:        "negative interval",
			body:        `{"conflictPolicy":"field-merge","syncIntervalSeconds":-1}`,
			expectError: true,
		},
		{
			name:        "tenant id with slash",
			body:        `{"tenantId":"../etc","conflictPolicy":"field-merge"}`,
			expectError: true,
		},
		{
			name:        "not json",
			body:        `conflictPolicy: field-merge`,
			expectError: true,
		},
		{
			name:        "too large",
			body:        `{"conflictPolicy":"field-merge","tenantId":"` + strings.Repeat("a", 64) + `"}`,
			maxSize:     32,
			expectError: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			err := ValidateTenantConfig([]byte(tt.body), tt.maxSize)
			if tt.expectError {
				require.Error(t, err)
				assert.ErrorIs(t, err, ErrInvalidDocument)
				return
			}
			assert.NoError(t, err)
		})
	}
}
