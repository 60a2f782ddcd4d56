// Command asp is the thin CLI façade over the agentspaces library: it
// parses arguments and flags, wires an Orchestrator and a harness
// registry for the invocation, and calls straight into pkg/orchestrator
// and pkg/session. It never reimplements resolution, closure, lint, or
// session driving itself, generalized from the teacher's cmd/main
// idiom (a cobra root command, OnInitialize-driven viper config, one
// file per command family) onto this module's install/build/run/doctor
// surface.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"agentspaces/internal/logging"
	"agentspaces/internal/version"
	"agentspaces/pkg/paths"
)

var (
	cfgFile     string
	aspHome     string
	projectPath string
	debugMode   bool

	rootCmd = &cobra.Command{
		Use:     "asp",
		Short:   "Agent Spaces - shared, versioned context for coding agents",
		Long:    `asp installs, builds, and runs "spaces" - versioned, composable bundles of skills, commands, hooks, and MCP servers - against any supported coding-agent harness.`,
		Version: version.GetVersionString(),
	}
)

func init() {
	cobra.OnInitialize(initConfig, initLogging)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default $HOME/.asp/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&aspHome, "asp-home", "", "override ASP_HOME (default $HOME/.asp)")
	rootCmd.PersistentFlags().StringVar(&projectPath, "project", "", "project root (default: current directory)")
	rootCmd.PersistentFlags().BoolVar(&debugMode, "debug", false, "enable debug logging")

	rootCmd.AddCommand(installCmd)
	rootCmd.AddCommand(buildCmd)
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(doctorCmd)
}

func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.AddConfigPath(paths.Home())
		viper.SetConfigType("yaml")
		viper.SetConfigName("config")
	}

	viper.SetEnvPrefix("ASP")
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err == nil {
		fmt.Fprintln(os.Stderr, "using config file:", viper.ConfigFileUsed())
	}
}

func initLogging() {
	logging.Initialize(debugMode)
}

// resolvedASPHome returns the effective ASP_HOME for this invocation:
// the --asp-home flag, then ASP_HOME/viper, then the paths package
// default.
func resolvedASPHome() string {
	if aspHome != "" {
		return aspHome
	}
	return paths.Home()
}

// resolvedProjectPath returns the effective project root: the
// --project flag, or the current working directory.
func resolvedProjectPath() (string, error) {
	if projectPath != "" {
		return projectPath, nil
	}
	return os.Getwd()
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
