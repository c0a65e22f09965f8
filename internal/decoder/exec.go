package decoder

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
)

// execOutput runs name and returns stdout. Stderr is folded into the error.
func execOutput(ctx context.Context, name string, args ...string) ([]byte, error) {
	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("%w: %s", err, strings.TrimSpace(stderr.String()))
	}
	return stdout.Bytes(), nil
}
