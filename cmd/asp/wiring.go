package main

import (
	"agentspaces/pkg/gitaccess"
	"agentspaces/pkg/harness/claude"
	"agentspaces/pkg/harness/codex"
	"agentspaces/pkg/harness/picli"
	harnessregistry "agentspaces/pkg/harness/registry"
	"agentspaces/pkg/harness/sdkvariant"
	"agentspaces/pkg/orchestrator"
	"agentspaces/pkg/paths"
)

// buildHarnessRegistry registers every compiled-in adapter once, the
// same set pkg/orchestrator and pkg/session dispatch against.
func buildHarnessRegistry() *harnessregistry.Registry {
	reg := harnessregistry.New()
	_ = reg.Register(claude.New())
	_ = reg.Register(picli.New())
	_ = reg.Register(codex.New())
	_ = reg.Register(sdkvariant.NewClaudeSDK())
	_ = reg.Register(sdkvariant.NewPiSDK())
	return reg
}

// buildOrchestrator wires an Orchestrator over the registry clone at
// ASP_HOME/repo and the given project root, mirroring the layout
// pkg/paths derives.
func buildOrchestrator(home, project string) *orchestrator.Orchestrator {
	repo := gitaccess.Open(paths.Repo(home))
	return orchestrator.New(home, project, repo, buildHarnessRegistry())
}
