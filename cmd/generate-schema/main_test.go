package main

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateUsesConfigKeys(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, generate(&buf))

	var schema struct {
		ID         string                     `json:"$id"`
		Title      string                     `json:"title"`
		Properties map[string]json.RawMessage `json:"properties"`
	}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &schema))

	assert.Equal(t, schemaID, schema.ID)
	assert.Equal(t, "FTPPlus Configuration", schema.Title)
	for _, key := range []string{"logging", "server", "storage", "limits", "encryption", "scanner", "adapters", "metrics"} {
		assert.Contains(t, schema.Properties, key)
	}

	var limits struct {
		Properties map[string]json.RawMessage `json:"properties"`
	}
	require.NoError(t, json.Unmarshal(schema.Properties["limits"], &limits))
	assert.Contains(t, limits.Properties, "max_file_size")
	assert.Contains(t, limits.Properties, "max_bulk_files")
}
