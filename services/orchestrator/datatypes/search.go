// Copyright (C) 2025 Speedboat Agent Authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// This file contains the document types returned by the search service.
package datatypes

// Document source origins.
const (
	SourceGithub = "github"
	SourceWeb    = "web"
	SourceLocal  = "local"
)

// Document is one retrieved knowledge base chunk.
type Document struct {
	Id       string            `json:"id"`
	Content  string            `json:"content"`
	Filepath string            `json:"filepath"`
	Source   string            `json:"source"`
	Score    float64           `json:"score"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

// SearchMetadata describes how a search was executed.
type SearchMetadata struct {
	Query          string `json:"query"`
	EmbeddingModel string `json:"embedding_model,omitempty"`
	TookMs         int64  `json:"took_ms"`
	Offline        bool   `json:"offline,omitempty"`
}
