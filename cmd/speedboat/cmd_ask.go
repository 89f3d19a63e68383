// Copyright (C) 2025 Speedboat Agent Authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/afoxnyc3/speedboat-agent/pkg/ux"
	"github.com/spf13/cobra"
)

// streamTimeout bounds a whole ask round trip. The server caps
// generation at 45s, so anything past this is a hung connection.
const streamTimeout = 2 * time.Minute

type chatStreamRequest struct {
	Message    string `json:"message"`
	SessionId  string `json:"session_id,omitempty"`
	MaxSources int    `json:"max_sources,omitempty"`
}

type serverErrorResponse struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func runAskCommand(cmd *cobra.Command, args []string) {
	question := strings.Join(args, " ")

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	result, err := streamChat(ctx, getOrchestratorBaseURL(), question)
	if err != nil {
		log.Fatalf("Error: %v", err)
	}

	printSources(result.Sources)
	printSuggestions(result.Suggestions)

	verification := ux.NewFullChainVerifier().Verify(result.Events)
	if !verification.Valid {
		ux.Warning(fmt.Sprintf("Response integrity check FAILED: %s", verification.ErrorMessage))
	}
	if showIntegrity {
		info := ux.NewIntegrityInfo(result, verification)
		ux.Muted(info.FormatForDisplay())
	}

	if result.SessionID != "" {
		ux.Muted(fmt.Sprintf("Session: %s (resume with --session %s)", result.SessionID, result.SessionID))
	}
}

// streamChat posts the question to the streaming endpoint and renders
// the answer as tokens arrive.
func streamChat(ctx context.Context, baseURL, question string) (*ux.StreamResult, error) {
	payload, err := json.Marshal(chatStreamRequest{
		Message:    question,
		SessionId:  sessionID,
		MaxSources: maxSources,
	})
	if err != nil {
		return nil, fmt.Errorf("encode request: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, streamTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		baseURL+"/api/chat/stream", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "text/event-stream")

	// No client timeout here, the context carries the deadline. A
	// Timeout on http.Client would cut off the body mid-stream.
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("orchestrator unreachable at %s: %w", baseURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, decodeServerError(resp)
	}

	return ux.NewStreamProcessor().Process(resp.Body)
}

func decodeServerError(resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))

	var serverErr serverErrorResponse
	if err := json.Unmarshal(body, &serverErr); err == nil && serverErr.Error.Message != "" {
		if resp.StatusCode == http.StatusTooManyRequests {
			retryAfter := resp.Header.Get("Retry-After")
			return fmt.Errorf("%s (retry after %ss)", serverErr.Error.Message, retryAfter)
		}
		return fmt.Errorf("%s (%s)", serverErr.Error.Message, serverErr.Error.Code)
	}
	return fmt.Errorf("server returned %d", resp.StatusCode)
}

func printSources(sources []ux.SourceInfo) {
	if len(sources) == 0 {
		return
	}
	fmt.Println()
	ux.Title("Sources")
	for i, source := range sources {
		line := fmt.Sprintf("%d. %s", i+1, source.Filepath)
		if source.Score != 0 {
			line += fmt.Sprintf(" (score: %.2f, %s)", source.Score, source.Authority)
		}
		ux.Info(line)
	}
}

func printSuggestions(suggestions []string) {
	if len(suggestions) == 0 || ux.GetPersonality().Level == ux.PersonalityMachine {
		return
	}
	fmt.Println()
	ux.Title("Follow-up questions")
	for _, suggestion := range suggestions {
		ux.Info(suggestion)
	}
}
