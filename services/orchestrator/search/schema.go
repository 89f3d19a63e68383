// Copyright (C) 2025 Speedboat Agent Authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package search

import (
	"context"
	"log/slog"

	"github.com/weaviate/weaviate-go-client/v5/weaviate"
	"github.com/weaviate/weaviate/entities/models"
)

// knowledgeChunkSchema returns the class definition for ingested
// document chunks. The class vectorizer embeds content server-side, so
// hybrid queries only ship the raw query text.
func knowledgeChunkSchema() *models.Class {
	return &models.Class{
		Class:       knowledgeClass,
		Description: "A chunk of an ingested knowledge base document.",
		Vectorizer:  "text2vec-transformers",
		Properties: []*models.Property{
			{
				Name:        "content",
				DataType:    []string{"text"},
				Description: "The chunk text",
			},
			{
				Name:        "filepath",
				DataType:    []string{"text"},
				Description: "Path of the source file within its repository",
			},
			{
				Name:        "source",
				DataType:    []string{"text"},
				Description: "Origin of the document (github, web, local)",
			},
			{
				Name:        "language",
				DataType:    []string{"text"},
				Description: "Programming or natural language of the chunk",
			},
		},
	}
}

// EnsureSchema creates the knowledge chunk class if it does not exist.
// Returns an error instead of exiting so callers can decide whether a
// missing schema is fatal.
func EnsureSchema(ctx context.Context, client *weaviate.Client) error {
	class := knowledgeChunkSchema()

	_, err := client.Schema().ClassGetter().WithClassName(class.Class).Do(ctx)
	if err == nil {
		slog.Info("Schema already exists", "class", class.Class)
		return nil
	}

	slog.Info("Schema not found, creating it", "class", class.Class)
	if err := client.Schema().ClassCreator().WithClass(class).Do(ctx); err != nil {
		return err
	}
	slog.Info("Created schema", "class", class.Class)
	return nil
}
