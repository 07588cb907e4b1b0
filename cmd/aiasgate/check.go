// Copyright 2025 Kadir Pekel
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package main

import (
	"context"
	"fmt"
	"time"

	"github.com/yoshikouki/aias-sub000/pkg/clock"
	"github.com/yoshikouki/aias-sub000/pkg/config"
	"github.com/yoshikouki/aias-sub000/pkg/ratelimit"
)

// CheckCmd runs a configured policy against a key in-process and
// prints each decision. Useful for inspecting what a policy does
// before deploying it.
type CheckCmd struct {
	Key     string `help:"Rate limit key to check." default:"demo"`
	N       int    `short:"n" help:"Number of checks to run." default:"5"`
	Limiter string `help:"Policy section to exercise." default:"default"`
}

func (c *CheckCmd) Run(cli *CLI) error {
	ctx := context.Background()

	cfg, loader, err := loadConfig(ctx, cli.Config)
	if err != nil {
		return err
	}
	if loader != nil {
		defer loader.Close()
	}

	if c.Limiter != config.DefaultLimiterName {
		if _, ok := cfg.RateLimits[c.Limiter]; !ok {
			return fmt.Errorf("no rate limit policy %q in configuration", c.Limiter)
		}
	}
	sec := cfg.Limiter(c.Limiter)

	lim, err := ratelimit.FromConfig(sec, clock.Real())
	if err != nil {
		return fmt.Errorf("failed to build limiter: %w", err)
	}
	if lim == nil {
		fmt.Printf("Policy %q is disabled; every request passes.\n", c.Limiter)
		return nil
	}

	window := time.Duration(sec.WindowMs) * time.Millisecond
	fmt.Printf("Policy %q: %d requests / %s, key %q\n\n", c.Limiter, sec.MaxRequests, window, c.Key)
	fmt.Printf("%-4s %-10s %-10s %-12s %s\n", "#", "decision", "remaining", "retry_after", "reset")

	for i := 1; i <= c.N; i++ {
		res, err := lim.Check(ctx, c.Key)
		if err != nil {
			return fmt.Errorf("check failed: %w", err)
		}

		decision := "allowed"
		retryAfter := "-"
		if !res.Allowed {
			decision = "throttled"
			retryAfter = res.RetryAfter.Round(time.Millisecond).String()
		}
		reset := time.UnixMilli(res.Info.Reset).Format(time.RFC3339)
		fmt.Printf("%-4d %-10s %-10d %-12s %s\n", i, decision, res.Info.Remaining, retryAfter, reset)
	}
	return nil
}
