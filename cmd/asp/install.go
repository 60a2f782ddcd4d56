package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"agentspaces/internal/logging"
	"agentspaces/pkg/orchestrator"
)

var (
	installPins      []string
	installHardlinks bool
	installForce     bool
)

var installCmd = &cobra.Command{
	Use:   "install <space-ref>...",
	Short: "Resolve a closure of space refs and snapshot it into the content-addressed store",
	Long:  `install resolves every root space:<id>@<selector> ref's dependency closure, snapshots each non-dev/project space into ASP_HOME/store, and writes the merged project asp-lock.json.`,
	Args:  cobra.MinimumNArgs(1),
	RunE:  runInstall,
}

func init() {
	installCmd.Flags().StringArrayVar(&installPins, "pin", nil, "pin a space to an exact commit, space-id=commit (repeatable)")
	installCmd.Flags().BoolVar(&installHardlinks, "hardlinks", true, "has no effect: the store is always populated by extracting a git archive")
	installCmd.Flags().BoolVar(&installForce, "force", false, "re-verify snapshot integrity even if already present")
}

func runInstall(cmd *cobra.Command, args []string) error {
	home := resolvedASPHome()
	project, err := resolvedProjectPath()
	if err != nil {
		return err
	}

	pinned, err := parsePins(installPins)
	if err != nil {
		return err
	}

	o := buildOrchestrator(home, project)
	result, err := o.Install(cmd.Context(), orchestrator.InstallOptions{
		Roots:        args,
		PinnedSpaces: pinned,
		UseHardlinks: installHardlinks,
		Force:        installForce,
	})
	if err != nil {
		return err
	}

	fmt.Printf("installed %d space(s): %d added, %d changed\n", len(result.Closure.Spaces), len(result.Diff.AddedSpaces), len(result.Diff.ChangedSpaces))
	for _, key := range result.Closure.LoadOrder {
		logging.Info("resolved space", "key", key, "commit", result.Closure.Spaces[key].Commit)
	}
	return nil
}

// parsePins turns repeated --pin id=commit flags into the map
// Orchestrator.Install expects.
func parsePins(raw []string) (map[string]string, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	pins := make(map[string]string, len(raw))
	for _, p := range raw {
		id, commit, ok := strings.Cut(p, "=")
		if !ok || id == "" || commit == "" {
			return nil, fmt.Errorf("invalid --pin %q, expected id=commit", p)
		}
		pins[id] = commit
	}
	return pins, nil
}
