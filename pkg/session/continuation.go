package session

import (
	"crypto/sha256"
	"encoding/hex"
	"os"

	"agentspaces/pkg/aspdiag"
	"agentspaces/pkg/paths"
)

// Continuation is the opaque, harness-specific reference returned to
// the caller so a subsequent turn can resume the same logical
// session, per the GLOSSARY. For filesystem-backed frontends the key
// is a deterministic function of (aspHome, cpSessionId); other
// frontends echo whatever opaque string their own SDK/session
// implementation produced. Provider records which provider the
// continuation was created under, so a later resume under a
// mismatched frontend's provider can be rejected (spec §4.14 step 1,
// "continuation ↔ provider match") rather than silently handed to the
// wrong harness.
type Continuation struct {
	Key      string   `json:"key"`
	Provider Provider `json:"provider,omitempty"`
}

// deriveContinuationKey computes the first-run continuation key for a
// filesystem-backed frontend: sha256(cpSessionId), mapped under
// aspHome/sessions/<harnessId>/<hex>, per spec §4.14 step 2 and
// testable property 9. Pure and deterministic: no I/O.
func deriveContinuationKey(cpSessionID string) string {
	sum := sha256.Sum256([]byte(cpSessionID))
	return hex.EncodeToString(sum[:])
}

// sessionDir resolves the on-disk directory for a filesystem-backed
// continuation key under a given harness.
func sessionDir(aspHome, harnessID, key string) string {
	return paths.Sessions(aspHome, harnessID) + string(os.PathSeparator) + key
}

// prepareContinuation implements spec §4.14 step 2: on first run
// (continuation == nil) it derives and creates the deterministic
// session directory; on resume it verifies the supplied key's
// directory still exists, failing with continuation_not_found
// otherwise. Frontends that don't require a filesystem session
// directory (RequiresSessionDir == false) pass the continuation
// through unchanged without touching the filesystem.
func prepareContinuation(aspHome string, harnessID string, f Frontend, provider Provider, cpSessionID string, in *Continuation) (*Continuation, error) {
	if !RequiresSessionDir(f) {
		if in != nil {
			return in, nil
		}
		return nil, nil
	}

	if in == nil {
		key := deriveContinuationKey(cpSessionID)
		dir := sessionDir(aspHome, harnessID, key)
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, aspdiag.Wrap(aspdiag.CodeFilesystemError, "create session directory", err)
		}
		return &Continuation{Key: key, Provider: provider}, nil
	}

	dir := sessionDir(aspHome, harnessID, in.Key)
	info, err := os.Stat(dir)
	if err != nil || !info.IsDir() {
		return in, aspdiag.New(aspdiag.CodeContinuationNotFound, "continuation directory not found: "+dir)
	}
	return in, nil
}
