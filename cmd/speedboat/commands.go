// Copyright (C) 2025 Speedboat Agent Authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"fmt"
	"os"

	"github.com/afoxnyc3/speedboat-agent/pkg/ux"
	"github.com/spf13/cobra"
)

const (
	DefaultOrchestratorHost = "localhost"
	DefaultOrchestratorPort = 12210
)

// --- Global Command Variables ---
var (
	sessionID        string
	maxSources       int
	showIntegrity    bool
	personalityLevel string // UX personality level (full/standard/minimal/machine)

	rootCmd = &cobra.Command{
		Use:   "speedboat",
		Short: "A cli for the Speedboat RAG chat service",
		Long: `Speedboat streams grounded answers from your indexed knowledge
base, with cited sources and tamper-evident response verification.`,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			// Initialize UX personality from flag or environment
			if personalityLevel != "" {
				ux.SetPersonalityLevel(ux.ParsePersonalityLevel(personalityLevel))
			} else {
				ux.InitPersonality()
			}
		},
	}

	// --- RAG / Ask ---
	askCmd = &cobra.Command{
		Use:   "ask [question]",
		Short: "Asks a question and streams the answer with cited sources",
		Args:  cobra.MinimumNArgs(1),
		Run:   runAskCommand, // Defined in cmd_ask.go
	}

	healthCmd = &cobra.Command{
		Use:   "health",
		Short: "Check orchestrator health and dependency status",
		Run:   runHealthCommand, // Defined in cmd_health.go
	}
)

func init() {
	rootCmd.PersistentFlags().StringVar(&personalityLevel, "personality", "",
		"Output personality: full, standard, minimal, or machine")

	rootCmd.AddCommand(askCmd)
	askCmd.Flags().StringVar(&sessionID, "session", "", "Continue a conversation using a specific session ID.")
	askCmd.Flags().IntVar(&maxSources, "max-sources", 0, "Maximum sources to retrieve (0 uses the server default)")
	askCmd.Flags().BoolVar(&showIntegrity, "integrity", false, "Show hash chain verification details after the answer")

	rootCmd.AddCommand(healthCmd)
}

// getOrchestratorBaseURL returns the standard address for the orchestrator.
func getOrchestratorBaseURL() string {
	// 1. Priority: Environment Variable (Used by Tests & Docker overrides)
	if url := os.Getenv("SPEEDBOAT_ORCHESTRATOR_URL"); url != "" {
		return url
	}
	// 2. Default: Standard Host/Port
	return fmt.Sprintf("http://%s:%d", DefaultOrchestratorHost, DefaultOrchestratorPort)
}
