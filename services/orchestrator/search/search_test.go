// Copyright (C) 2025 Speedboat Agent Authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package search

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/afoxnyc3/speedboat-agent/services/orchestrator/datatypes"
)

func TestOfflineResponse_AlwaysHasSources(t *testing.T) {
	resp := OfflineResponse("how does auth work?")

	require.NotEmpty(t, resp.Results)
	for _, doc := range resp.Results {
		assert.NotEmpty(t, doc.Id)
		assert.NotEmpty(t, doc.Content)
		assert.Equal(t, datatypes.SourceLocal, doc.Source)
	}
	assert.True(t, resp.Metadata.Offline)
	assert.Equal(t, "how does auth work?", resp.Metadata.Query)
}

func TestBuildWhere_Empty(t *testing.T) {
	assert.Nil(t, buildWhere(nil))
	assert.Nil(t, buildWhere(map[string]string{}))
}

func TestBuildWhere_SingleFilter(t *testing.T) {
	where := buildWhere(map[string]string{"language": "go"})
	require.NotNil(t, where)

	built := where.Build()
	assert.Equal(t, []string{"language"}, built.Path)
	require.NotNil(t, built.ValueText)
	assert.Equal(t, "go", *built.ValueText)
}

func TestBuildWhere_MultipleFiltersAnded(t *testing.T) {
	where := buildWhere(map[string]string{
		"language": "go",
		"source":   "github",
	})
	require.NotNil(t, where)

	built := where.Build()
	assert.Len(t, built.Operands, 2)
}
