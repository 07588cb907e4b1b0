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

	"github.com/yoshikouki/aias-sub000/pkg/config"
	"github.com/yoshikouki/aias-sub000/pkg/journal"
)

// SweepCmd prunes aged entries from the usage journal. Limiter windows
// clean themselves during checks; the journal is the part that
// accumulates without bound and needs an operator pass.
type SweepCmd struct {
	OlderThan time.Duration `name:"older-than" help:"Prune journal entries older than this." default:"168h"`
}

func (c *SweepCmd) Run(cli *CLI) error {
	ctx := context.Background()

	cfg, loader, err := loadConfig(ctx, cli.Config)
	if err != nil {
		return err
	}
	if loader != nil {
		defer loader.Close()
	}

	if !cfg.Journal.IsEnabled() {
		return fmt.Errorf("journal is not enabled in configuration")
	}

	pool := config.NewDBPool()
	defer pool.Close()

	jrnl, err := journal.NewFromConfig(cfg, pool)
	if err != nil {
		return fmt.Errorf("failed to open journal: %w", err)
	}
	defer jrnl.Close()

	cutoff := time.Now().Add(-c.OlderThan)
	pruned, err := jrnl.Prune(ctx, cutoff.UnixMilli())
	if err != nil {
		return fmt.Errorf("failed to prune journal: %w", err)
	}
	fmt.Printf("Pruned %d journal entries older than %s.\n", pruned, cutoff.Format(time.RFC3339))

	entries, err := jrnl.Recent(ctx, "", 10)
	if err != nil {
		return fmt.Errorf("failed to list journal: %w", err)
	}
	if len(entries) == 0 {
		fmt.Println("Journal is empty.")
		return nil
	}

	fmt.Println("\nMost recent decisions:")
	for _, e := range entries {
		at := time.UnixMilli(e.At).Format(time.RFC3339)
		fmt.Printf("  %s  %-10s %-20s remaining=%d\n", at, e.Decision, e.Key, e.Remaining)
	}
	return nil
}
