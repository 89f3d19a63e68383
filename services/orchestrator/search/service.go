// Copyright (C) 2025 Speedboat Agent Authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package search provides document retrieval against the knowledge
// base.
package search

import (
	"context"

	"github.com/afoxnyc3/speedboat-agent/services/orchestrator/datatypes"
)

// Request describes one retrieval call.
type Request struct {
	Query          string
	Limit          int
	EmbeddingModel string
	Filters        map[string]string
}

// Response carries retrieved documents plus execution metadata.
type Response struct {
	Results  []datatypes.Document
	Metadata datatypes.SearchMetadata
}

// Service retrieves documents for a query.
//
// Implementations must respect context cancellation and return an
// error rather than blocking past the caller's deadline. The
// orchestrator owns degradation: on error it substitutes the offline
// response instead of failing the turn.
type Service interface {
	Search(ctx context.Context, req Request) (*Response, error)
}
