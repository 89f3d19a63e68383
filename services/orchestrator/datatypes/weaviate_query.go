// Copyright (C) 2025 Speedboat Agent Authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package datatypes

import (
	"encoding/json"
	"fmt"

	"github.com/weaviate/weaviate/entities/models"
)

// =============================================================================
// Generic GraphQL Response Parser
// =============================================================================

// ParseGraphQLResponse parses a Weaviate GraphQL response into the target type.
//
// # Description
//
// This generic function encapsulates the marshal/unmarshal pattern required to
// convert Weaviate's dynamic response (map[string]models.JSONObject) into a
// strongly-typed Go struct. The target type T must have json tags matching
// the expected response shape.
//
// # Type Parameters
//
//   - T: The target struct type with json tags matching the response shape.
//
// # Inputs
//
//   - resp: The GraphQL response from Weaviate client's Do() method.
//
// # Outputs
//
//   - *T: Pointer to the parsed struct.
//   - error: Non-nil if response is nil or parsing fails.
//
// # Example
//
//	resp, err := client.GraphQL().Get().WithClassName("KnowledgeChunk").Do(ctx)
//	if err != nil { ... }
//
//	parsed, err := ParseGraphQLResponse[KnowledgeChunkQueryResponse](resp)
//	if err != nil { ... }
//
//	for _, c := range parsed.Get.KnowledgeChunk {
//	    fmt.Println(c.Filepath)
//	}
//
// # Limitations
//
//   - Requires the target type to exactly match the expected response structure.
//   - Type mismatches will result in zero values, not errors.
//
// # Assumptions
//
//   - The response Data field is JSON-marshalable.
//   - The target type T has correct json tags.
func ParseGraphQLResponse[T any](resp *models.GraphQLResponse) (*T, error) {
	if resp == nil {
		return nil, fmt.Errorf("nil GraphQL response")
	}

	respBytes, err := json.Marshal(resp.Data)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal GraphQL response data: %w", err)
	}

	var result T
	if err := json.Unmarshal(respBytes, &result); err != nil {
		return nil, fmt.Errorf("failed to unmarshal into target type: %w", err)
	}

	return &result, nil
}

// =============================================================================
// Knowledge Chunk Response Types
// =============================================================================

// KnowledgeChunkQueryResponse represents the response from querying the
// KnowledgeChunk class.
//
// # Fields
//
//   - Get.KnowledgeChunk: Array of retrieved chunk objects.
type KnowledgeChunkQueryResponse struct {
	Get struct {
		KnowledgeChunk []KnowledgeChunkResult `json:"KnowledgeChunk"`
	} `json:"Get"`
}

// KnowledgeChunkResult represents a single chunk from a hybrid query.
type KnowledgeChunkResult struct {
	Content    string `json:"content"`
	Filepath   string `json:"filepath"`
	Source     string `json:"source"`
	Language   string `json:"language"`
	IngestedAt int64  `json:"ingested_at"`
	Additional struct {
		ID    string   `json:"id"`
		Score *float32 `json:"score"`
	} `json:"_additional"`
}

// ToDocument converts a query result into the Document type used by the
// rest of the pipeline. A missing hybrid score maps to zero.
func (r *KnowledgeChunkResult) ToDocument() Document {
	score := 0.0
	if r.Additional.Score != nil {
		score = float64(*r.Additional.Score)
	}
	doc := Document{
		Id:       r.Additional.ID,
		Content:  r.Content,
		Filepath: r.Filepath,
		Source:   r.Source,
		Score:    score,
	}
	if r.Language != "" {
		doc.Metadata = map[string]string{"language": r.Language}
	}
	return doc
}
