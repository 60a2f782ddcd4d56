package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"agentspaces/pkg/orchestrator"
)

var doctorRoots []string

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Report harness availability and lock-file staleness",
	Long:  `doctor probes every registered harness adapter for availability and reports whether the project's asp-lock.json is missing or stale against the given roots.`,
	Args:  cobra.ArbitraryArgs,
	RunE:  runDoctor,
}

func init() {
	doctorCmd.Flags().StringArrayVar(&doctorRoots, "root", nil, "space ref to check lock staleness against (repeatable)")
}

func runDoctor(cmd *cobra.Command, args []string) error {
	home := resolvedASPHome()
	project, err := resolvedProjectPath()
	if err != nil {
		return err
	}

	o := buildOrchestrator(home, project)
	report, err := o.Diagnose(cmd.Context(), orchestrator.InstallOptions{Roots: doctorRoots})
	if err != nil {
		return err
	}

	fmt.Println("harnesses:")
	for _, h := range report.Harnesses {
		status := "unavailable"
		if h.Result.Available {
			status = "available"
		}
		fmt.Printf("  %-16s %s", h.ID, status)
		if h.Result.Error != "" {
			fmt.Printf("  (%s)", h.Result.Error)
		}
		fmt.Println()
	}

	fmt.Printf("lock file present: %v\n", report.LockPresent)
	if len(doctorRoots) > 0 {
		fmt.Printf("lock file stale: %v\n", report.LockStale)
	}
	return nil
}
