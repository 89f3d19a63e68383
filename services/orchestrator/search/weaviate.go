// Copyright (C) 2025 Speedboat Agent Authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package search

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/weaviate/weaviate-go-client/v5/weaviate"
	"github.com/weaviate/weaviate-go-client/v5/weaviate/filters"
	"github.com/weaviate/weaviate-go-client/v5/weaviate/graphql"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/afoxnyc3/speedboat-agent/services/orchestrator/datatypes"
)

var searchTracer = otel.Tracer("speedboat.orchestrator.search")

// knowledgeClass is the Weaviate class holding ingested chunks.
const knowledgeClass = "KnowledgeChunk"

// hybridAlpha balances vector (1.0) against keyword (0.0) scoring.
const hybridAlpha = float32(0.5)

// WeaviateService is a Service backed by Weaviate hybrid search.
//
// # Description
//
// Each query runs one hybrid GraphQL Get against the KnowledgeChunk
// class, blending BM25 keyword matching with vector similarity. The
// hybrid score from _additional becomes the Document score. Filters
// map to ANDed Equal where-clauses on chunk properties.
//
// The embedding model named in the request is recorded in the response
// metadata; the vectorizer configured on the class performs the actual
// embedding server-side.
//
// Thread Safety: Safe for concurrent use.
type WeaviateService struct {
	client *weaviate.Client
	logger *slog.Logger
}

// NewWeaviateService creates a search service over the given client.
func NewWeaviateService(client *weaviate.Client, logger *slog.Logger) *WeaviateService {
	if logger == nil {
		logger = slog.Default()
	}
	return &WeaviateService{client: client, logger: logger}
}

// Search implements Service.
func (s *WeaviateService) Search(ctx context.Context, req Request) (*Response, error) {
	ctx, span := searchTracer.Start(ctx, "WeaviateService.Search")
	defer span.End()
	span.SetAttributes(
		attribute.String("search.query", req.Query),
		attribute.Int("search.limit", req.Limit),
	)

	if s.client == nil {
		return nil, fmt.Errorf("search backend not configured")
	}

	start := time.Now()

	hybrid := s.client.GraphQL().HybridArgumentBuilder().
		WithQuery(req.Query).
		WithAlpha(hybridAlpha)

	fields := []graphql.Field{
		{Name: "content"},
		{Name: "filepath"},
		{Name: "source"},
		{Name: "language"},
		{Name: "_additional", Fields: []graphql.Field{
			{Name: "id"},
			{Name: "score"},
		}},
	}

	query := s.client.GraphQL().Get().
		WithClassName(knowledgeClass).
		WithFields(fields...).
		WithHybrid(hybrid).
		WithLimit(req.Limit)

	if where := buildWhere(req.Filters); where != nil {
		query = query.WithWhere(where)
	}

	result, err := query.Do(ctx)
	if err != nil {
		s.logger.Error("Weaviate hybrid search failed", "error", err, "query", req.Query)
		return nil, fmt.Errorf("weaviate search failed: %w", err)
	}

	parsed, err := datatypes.ParseGraphQLResponse[datatypes.KnowledgeChunkQueryResponse](result)
	if err != nil {
		return nil, fmt.Errorf("failed to parse search results: %w", err)
	}

	docs := make([]datatypes.Document, 0, len(parsed.Get.KnowledgeChunk))
	for _, chunk := range parsed.Get.KnowledgeChunk {
		docs = append(docs, chunk.ToDocument())
	}

	span.SetAttributes(attribute.Int("search.results_count", len(docs)))
	return &Response{
		Results: docs,
		Metadata: datatypes.SearchMetadata{
			Query:          req.Query,
			EmbeddingModel: req.EmbeddingModel,
			TookMs:         time.Since(start).Milliseconds(),
		},
	}, nil
}

// buildWhere converts the filter map to an ANDed Equal clause set.
// Returns nil when no filters are present.
func buildWhere(filterMap map[string]string) *filters.WhereBuilder {
	if len(filterMap) == 0 {
		return nil
	}

	operands := make([]*filters.WhereBuilder, 0, len(filterMap))
	for key, value := range filterMap {
		operands = append(operands, filters.Where().
			WithPath([]string{key}).
			WithOperator(filters.Equal).
			WithValueText(value))
	}
	if len(operands) == 1 {
		return operands[0]
	}
	return filters.Where().
		WithOperator(filters.And).
		WithOperands(operands)
}

var _ Service = (*WeaviateService)(nil)
