package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"agentspaces/pkg/harness"
	"agentspaces/pkg/orchestrator"
)

var (
	buildSpaces     []string
	buildTarget     string
	buildHarnessID  string
	buildHardlinks  bool
	buildClean      bool
	buildForce      bool
)

var buildCmd = &cobra.Command{
	Use:   "build",
	Short: "Materialize and compose a target's harness-native bundle",
	Long:  `build materializes every space in the --spaces list's closure into the plugin cache, runs the lint gate, and composes the harness-native bundle under <project>/asp_modules. --target only names the bundle directory: asp-targets.toml is not read.`,
	Args:  cobra.NoArgs,
	RunE:  runBuild,
}

func init() {
	buildCmd.Flags().StringArrayVar(&buildSpaces, "spaces", nil, "space refs to compose ad hoc, instead of --target")
	buildCmd.Flags().StringVar(&buildTarget, "target", "", "target name for the composed bundle directory (asp-targets.toml is not read; the spaces come from --spaces)")
	buildCmd.Flags().StringVar(&buildHarnessID, "harness", string(harness.IDClaudeCLI), "harness to compose for")
	buildCmd.Flags().BoolVar(&buildHardlinks, "hardlinks", true, "use hardlinks when materializing where possible")
	buildCmd.Flags().BoolVar(&buildClean, "clean", false, "remove the existing composed bundle before writing")
	buildCmd.Flags().BoolVar(&buildForce, "force", false, "re-materialize even if a cached artifact exists")
}

func runBuild(cmd *cobra.Command, args []string) error {
	if len(buildSpaces) == 0 && buildTarget == "" {
		return fmt.Errorf("one of --spaces or --target is required")
	}

	home := resolvedASPHome()
	project, err := resolvedProjectPath()
	if err != nil {
		return err
	}

	o := buildOrchestrator(home, project)
	result, err := o.Build(cmd.Context(), orchestrator.BuildOptions{
		Spaces:       buildSpaces,
		Target:       buildTarget,
		HarnessID:    harness.ID(buildHarnessID),
		UseHardlinks: buildHardlinks,
		Clean:        buildClean,
		Force:        buildForce,
	})
	if err != nil {
		return err
	}

	for _, w := range result.LintReport.Warnings {
		fmt.Printf("[%s] %s: %s\n", w.Severity, w.Code, w.Message)
	}
	if result.Bundle != nil {
		fmt.Printf("composed %s bundle at %s\n", result.Bundle.HarnessID, result.Bundle.RootDir)
	}
	return nil
}
