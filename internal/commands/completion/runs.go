// Copyright 2025 Tom Barlow
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

package completion

import (
	"context"
	"slices"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/tombee/runchain/internal/commands/shared"
	"github.com/tombee/runchain/internal/config"
	"github.com/tombee/runchain/internal/model"
	"github.com/tombee/runchain/internal/tracking"
)

const storeTimeout = 500 * time.Millisecond

// withStore opens the configured tracking store for one completion.
// Memory stores are empty in a fresh process and are skipped.
func withStore(fn func(ctx context.Context, store tracking.Backend, cfg *config.Config) []string) ([]string, cobra.ShellCompDirective) {
	cfg, err := LoadConfigForCompletion()
	if err != nil || cfg == nil || cfg.Tracking.Backend == config.BackendMemory {
		return nil, cobra.ShellCompDirectiveNoFileComp
	}

	store, err := shared.OpenStore(cfg.Tracking)
	if err != nil {
		return nil, cobra.ShellCompDirectiveNoFileComp
	}
	defer store.Close()

	ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
	defer cancel()

	return fn(ctx, store, cfg), cobra.ShellCompDirectiveNoFileComp
}

// CompleteRunIDs completes run IDs with "project (status)" descriptions.
func CompleteRunIDs(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
	if len(args) > 0 {
		return nil, cobra.ShellCompDirectiveNoFileComp
	}
	return SafeCompletionWrapper(func() ([]string, cobra.ShellCompDirective) {
		return withStore(func(ctx context.Context, store tracking.Backend, _ *config.Config) []string {
			runs, err := store.ListRuns(ctx, tracking.RunFilter{})
			if err != nil {
				return nil
			}

			completions := make([]string, 0, len(runs))
			for _, r := range runs {
				if !strings.HasPrefix(r.ID, toComplete) {
					continue
				}
				completions = append(completions, r.ID+"\t"+r.Project+" ("+string(r.Status)+")")
			}
			return completions
		})
	})
}

// CompleteCheckpointRefs completes the checkpoint references saved by
// runs in the configured namespace.
func CompleteCheckpointRefs(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
	return SafeCompletionWrapper(func() ([]string, cobra.ShellCompDirective) {
		return withStore(func(ctx context.Context, store tracking.Backend, cfg *config.Config) []string {
			runs, err := store.ListRuns(ctx, tracking.RunFilter{
				Entity:  cfg.Tracking.Entity,
				Project: cfg.Tracking.Project,
			})
			if err != nil {
				return nil
			}

			var completions []string
			for _, r := range runs {
				arts, err := store.ListArtifacts(ctx, r.ID)
				if err != nil {
					return completions
				}
				for _, art := range arts {
					if art.Type != model.ArtifactType {
						continue
					}
					ref := art.Ref().String()
					if strings.HasPrefix(ref, toComplete) {
						completions = append(completions, ref+"\tcheckpoint of "+r.ID)
					}
				}
			}
			return completions
		})
	})
}

// CompleteProjects completes the projects that hold runs.
func CompleteProjects(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
	return SafeCompletionWrapper(func() ([]string, cobra.ShellCompDirective) {
		return withStore(func(ctx context.Context, store tracking.Backend, _ *config.Config) []string {
			runs, err := store.ListRuns(ctx, tracking.RunFilter{})
			if err != nil {
				return nil
			}

			var projects []string
			for _, r := range runs {
				if strings.HasPrefix(r.Project, toComplete) && !slices.Contains(projects, r.Project) {
					projects = append(projects, r.Project)
				}
			}
			slices.Sort(projects)
			return projects
		})
	})
}
