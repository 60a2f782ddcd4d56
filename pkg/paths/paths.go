// Package paths derives the deterministic on-disk layout rooted at
// ASP_HOME: the registry clone, the content-addressed snapshot store,
// the plugin cache, scratch space, and the global advisory lock.
//
// Apart from Home, which reads the environment and the user's home
// directory, all functions here are pure string/path computation with
// no I/O.
package paths

import (
	"os"
	"path/filepath"

	"github.com/spf13/viper"
)

func init() {
	viper.SetEnvPrefix("ASP")
	viper.AutomaticEnv()
}

// Home returns ASP_HOME, defaulting to $HOME/.asp.
func Home() string {
	if v := viper.GetString("HOME"); v != "" {
		return v
	}
	if v := os.Getenv("ASP_HOME"); v != "" {
		return v
	}
	home, err := os.UserHomeDir()
	if err != nil {
		home = "."
	}
	return filepath.Join(home, ".asp")
}

// Repo is the local clone of the registry, under ASP_HOME/repo.
func Repo(aspHome string) string {
	return filepath.Join(aspHome, "repo")
}

// Store is the content-addressed snapshot root, ASP_HOME/store.
func Store(aspHome string) string {
	return filepath.Join(aspHome, "store")
}

// Snapshot is the on-disk location for one integrity hash's snapshot.
// integrity is the full "sha256:<hex>" form; only the hex portion is
// used as the directory name.
func Snapshot(aspHome, integrity string) string {
	return filepath.Join(Store(aspHome), hexOf(integrity))
}

// Cache is the plugin cache root, ASP_HOME/cache.
func Cache(aspHome string) string {
	return filepath.Join(aspHome, "cache")
}

// CacheEntry is the on-disk location for one plugin-cache key.
func CacheEntry(aspHome, cacheKey string) string {
	return filepath.Join(Cache(aspHome), cacheKey)
}

// Tmp is scratch space for atomic-rename staging, ASP_HOME/tmp.
func Tmp(aspHome string) string {
	return filepath.Join(aspHome, "tmp")
}

// GlobalLock is the path to the global advisory lock file.
func GlobalLock(aspHome string) string {
	return filepath.Join(aspHome, "global-lock.json")
}

// Sessions is the root of per-harness session directories,
// ASP_HOME/sessions/<harnessId>.
func Sessions(aspHome, harnessID string) string {
	return filepath.Join(aspHome, "sessions", harnessID)
}

// TargetOutput is the project-local composed bundle path for a target
// under a given harness, <project>/asp_modules/<target>/<harnessId>.
func TargetOutput(projectPath, targetName, harnessID string) string {
	return filepath.Join(projectPath, "asp_modules", targetName, harnessID)
}

// ProjectLock is the advisory whole-project lock file path.
func ProjectLock(projectPath string) string {
	return filepath.Join(projectPath, ".asp-lock.lock")
}

// LockFilePath is the canonical lock file path for a project.
func LockFilePath(projectPath string) string {
	return filepath.Join(projectPath, "asp-lock.json")
}

// TargetsManifestPath is the canonical project manifest path.
func TargetsManifestPath(projectPath string) string {
	return filepath.Join(projectPath, "asp-targets.toml")
}

func hexOf(integrity string) string {
	const prefix = "sha256:"
	if len(integrity) > len(prefix) && integrity[:len(prefix)] == prefix {
		return integrity[len(prefix):]
	}
	return integrity
}
