package assemble

import (
	"context"
	"fmt"
	"os/exec"
	"strings"
	"sync"

	"shuttle/internal/services"
)

const stderrTailBytes = 4096

// CommandRunner executes an external command and returns its failure, if any.
type CommandRunner func(ctx context.Context, name string, args ...string) error

func defaultCommandRunner(ctx context.Context, name string, args ...string) error {
	tail := &tailBuffer{limit: stderrTailBytes}
	cmd := exec.CommandContext(ctx, name, args...) //nolint:gosec
	cmd.Stdout = tail
	cmd.Stderr = tail
	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		detail := strings.TrimSpace(tail.String())
		if detail == "" {
			return services.Wrap(services.ErrExternalTool, "assemble", name, "", err)
		}
		return services.Wrap(services.ErrExternalTool, "assemble", name, fmt.Sprintf("%v: %s", err, detail), nil)
	}
	return nil
}

// tailBuffer keeps the last limit bytes written to it.
type tailBuffer struct {
	mu    sync.Mutex
	limit int
	buf   []byte
}

func (t *tailBuffer) Write(p []byte) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.buf = append(t.buf, p...)
	if over := len(t.buf) - t.limit; over > 0 {
		t.buf = append(t.buf[:0], t.buf[over:]...)
	}
	return len(p), nil
}

func (t *tailBuffer) String() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return string(t.buf)
}
