// Copyright (C) 2025 Speedboat Agent Authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package ux

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
)

// StreamProcessor defines the interface for processing streaming responses.
type StreamProcessor interface {
	// Process reads and processes a streaming response from the reader.
	// Returns the complete answer, sources, session ID, and any error.
	Process(reader io.Reader) (*StreamResult, error)
}

// sseStreamProcessor implements StreamProcessor for Server-Sent Events
type sseStreamProcessor struct {
	writer      io.Writer
	personality PersonalityLevel
	spinner     *Spinner
	answer      strings.Builder
	events      []StreamEvent
	sources     []SourceInfo
	suggestions []string
	sessionID   string
}

// NewStreamProcessor creates a new SSE stream processor
func NewStreamProcessor() StreamProcessor {
	return &sseStreamProcessor{
		writer:      os.Stdout,
		personality: GetPersonality().Level,
	}
}

// NewStreamProcessorWithWriter creates a stream processor with custom writer (for testing)
func NewStreamProcessorWithWriter(w io.Writer, personality PersonalityLevel) StreamProcessor {
	return &sseStreamProcessor{
		writer:      w,
		personality: personality,
	}
}

// Process reads and processes a streaming response.
//
// Lines are parsed per the SSE wire format: "event:" lines are
// informational (the payload repeats the type), "data:" lines carry the
// JSON event, and lines starting with ":" are keepalive comments. The
// stream ends at the complete or error event.
func (p *sseStreamProcessor) Process(reader io.Reader) (*StreamResult, error) {
	scanner := bufio.NewScanner(reader)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for scanner.Scan() {
		line := scanner.Text()

		if strings.TrimSpace(line) == "" {
			continue
		}

		// Keepalive comments reset proxy idle timers, nothing more.
		if strings.HasPrefix(line, ":") {
			continue
		}

		if strings.HasPrefix(line, "event: ") {
			continue
		}

		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		payload := strings.TrimPrefix(line, "data: ")

		var event StreamEvent
		if err := json.Unmarshal([]byte(payload), &event); err != nil {
			p.finalize()
			return nil, fmt.Errorf("malformed stream event: %w", err)
		}
		p.events = append(p.events, event)

		switch event.Type {
		case StreamEventStatus:
			p.handleStatus(event.Message)
		case StreamEventToken:
			p.handleToken(event.Delta)
		case StreamEventSources:
			p.sources = event.Sources
		case StreamEventComplete:
			p.sessionID = event.SessionID
			p.suggestions = event.Suggestions
			if len(event.Sources) > 0 {
				p.sources = event.Sources
			}
			// Fallback answers arrive only on the complete event.
			if p.answer.Len() == 0 && event.Message != "" {
				p.handleToken(event.Message)
			}
			p.finalize()
			return p.result(), nil
		case StreamEventError:
			p.finalize()
			return nil, fmt.Errorf("%s", event.Error)
		}
	}

	if err := scanner.Err(); err != nil {
		p.finalize()
		return nil, err
	}

	// Stream ended without explicit complete event
	p.finalize()
	return p.result(), nil
}

func (p *sseStreamProcessor) result() *StreamResult {
	result := &StreamResult{
		Answer:      p.answer.String(),
		Sources:     p.sources,
		Suggestions: p.suggestions,
		SessionID:   p.sessionID,
		Events:      p.events,
		TotalEvents: len(p.events),
		ContentHash: NewSHA256HashComputer().ComputeContentHash(p.answer.String()),
	}
	if len(p.events) > 0 {
		result.ChainHash = p.events[len(p.events)-1].Hash
	}
	return result
}

func (p *sseStreamProcessor) handleStatus(message string) {
	if p.personality == PersonalityMachine {
		fmt.Fprintf(p.writer, "STATUS: %s\n", message)
		return
	}

	// Start or update spinner
	if p.spinner == nil {
		p.spinner = NewSpinner(message)
		p.spinner.Start()
	} else {
		p.spinner.UpdateMessage(message)
	}
}

func (p *sseStreamProcessor) handleToken(token string) {
	// Stop spinner when first token arrives
	if p.spinner != nil {
		p.spinner.Stop()
		p.spinner = nil
		if p.personality != PersonalityMachine {
			fmt.Fprintln(p.writer) // New line after spinner
		}
	}

	p.answer.WriteString(token)

	if p.personality == PersonalityMachine {
		// In machine mode, buffer until done
		return
	}

	// Print token immediately for streaming effect
	fmt.Fprint(p.writer, token)
}

func (p *sseStreamProcessor) finalize() {
	// Stop spinner if still running
	if p.spinner != nil {
		p.spinner.Stop()
		p.spinner = nil
	}

	if p.personality == PersonalityMachine {
		// Print buffered answer
		if p.answer.Len() > 0 {
			fmt.Fprintf(p.writer, "ANSWER: %s\n", p.answer.String())
		}
	} else {
		// Ensure we end with a newline
		if p.answer.Len() > 0 && !strings.HasSuffix(p.answer.String(), "\n") {
			fmt.Fprintln(p.writer)
		}
	}
}
