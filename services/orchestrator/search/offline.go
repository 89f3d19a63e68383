// Copyright (C) 2025 Speedboat Agent Authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package search

import (
	"github.com/afoxnyc3/speedboat-agent/services/orchestrator/datatypes"
)

// OfflineResponse returns the fixed demo documents used when the
// search backend is unreachable. The pipeline downstream always has
// citable sources, so generation and citation building behave the same
// in degraded mode.
func OfflineResponse(query string) *Response {
	return &Response{
		Results: []datatypes.Document{
			{
				Id:       "offline-1",
				Content:  "The service is running in offline mode. Live document search is temporarily unavailable, so answers are generated without repository context.",
				Filepath: "docs/offline-mode.md",
				Source:   datatypes.SourceLocal,
				Score:    0.5,
			},
			{
				Id:       "offline-2",
				Content:  "Offline mode answers come from the model's general knowledge. Retry later for answers grounded in the indexed knowledge base.",
				Filepath: "docs/offline-mode.md",
				Source:   datatypes.SourceLocal,
				Score:    0.4,
			},
		},
		Metadata: datatypes.SearchMetadata{
			Query:   query,
			Offline: true,
		},
	}
}
