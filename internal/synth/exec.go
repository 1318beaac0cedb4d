package synth

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"
)

// maxOutputSize bounds subprocess output to catch runaway engines.
const maxOutputSize = 50 * 1024 * 1024

// runCommand runs name with args, feeding stdin and returning stdout. On
// cancellation the process is interrupted first and killed shortly after.
func runCommand(ctx context.Context, stdin []byte, name string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Cancel = func() error { return cmd.Process.Signal(os.Interrupt) }
	cmd.WaitDelay = 100 * time.Millisecond
	cmd.Stdin = bytes.NewReader(stdin)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("%s: %w", name, ctx.Err())
		}
		return nil, fmt.Errorf("%s failed: %w, stderr: %s", name, err, strings.TrimSpace(stderr.String()))
	}

	out := stdout.Bytes()
	if len(out) == 0 {
		return nil, fmt.Errorf("%s produced no output, stderr: %s", name, strings.TrimSpace(stderr.String()))
	}
	if len(out) > maxOutputSize {
		return nil, fmt.Errorf("%s output too large: %d bytes", name, len(out))
	}
	return out, nil
}
