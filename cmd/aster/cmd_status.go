// Copyright 2026 Aster Labs
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//	http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.
package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/aster-labs/aster/pkg/fallback"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show tier health and configured providers",
	RunE:  runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) error {
	registry := buildRegistry(cfg)
	router := fallback.NewRouter(fallback.DefaultRouterConfig(), registry, nil)

	fmt.Println("Configured providers:")
	names := registry.ConfiguredProviders()
	if len(names) == 0 {
		fmt.Println("  (none)")
	}
	for _, name := range names {
		fmt.Printf("  %s\n", name)
	}

	fmt.Println("\nTiers (priority order):")
	status := router.TierStatus()
	for _, tier := range []fallback.TierID{
		fallback.TierCloud,
		fallback.TierLocalAccelerated,
		fallback.TierLocalLightweight,
		fallback.TierRuleBased,
	} {
		h := status[tier]
		fmt.Printf("  %-18s successes=%d failures=%d consecutive=%d avg_latency_ms=%d\n",
			tier, h.TotalSuccesses, h.TotalFailures, h.ConsecutiveFailures, h.AverageLatencyMs)
	}
	return nil
}
