// Copyright (C) 2025 Speedboat Agent Authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/afoxnyc3/speedboat-agent/pkg/ux"
	"github.com/spf13/cobra"
)

type healthResponse struct {
	Status  string `json:"status"`
	Breaker struct {
		State    string `json:"state"`
		Failures int    `json:"failures"`
		OpenUntil int64  `json:"open_until"`
	} `json:"memory_breaker"`
	RateStore string `json:"rate_limit_store"`
}

func runHealthCommand(cmd *cobra.Command, args []string) {
	baseURL := getOrchestratorBaseURL()

	client := &http.Client{Timeout: 5 * time.Second}
	resp, err := client.Get(baseURL + "/api/health")
	if err != nil {
		log.Fatalf("Orchestrator unreachable at %s: %v", baseURL, err)
	}
	defer resp.Body.Close()

	var health healthResponse
	if err := json.NewDecoder(resp.Body).Decode(&health); err != nil {
		log.Fatalf("Malformed health response: %v", err)
	}

	switch health.Status {
	case "ok":
		ux.Success("Orchestrator healthy")
	default:
		ux.Warning(fmt.Sprintf("Orchestrator degraded (status: %s)", health.Status))
	}

	ux.Info(fmt.Sprintf("Memory breaker: %s (%d recent failures)",
		health.Breaker.State, health.Breaker.Failures))
	if health.Breaker.OpenUntil > 0 {
		reopenAt := time.UnixMilli(health.Breaker.OpenUntil).Format(time.RFC3339)
		ux.Info(fmt.Sprintf("Breaker retry at: %s", reopenAt))
	}
	ux.Info(fmt.Sprintf("Rate limit store: %s", health.RateStore))
}
