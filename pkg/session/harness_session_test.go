package session

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAutoAllowPermissionHandlerAllowsEverything(t *testing.T) {
	decision := AutoAllowPermissionHandler(context.Background(), PermissionRequest{ToolName: "bash"})
	assert.True(t, decision.Allow)
}
