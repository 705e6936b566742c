package notification

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/chainwatch-io/chainwatch/internal/models"
)

// defaultScriptTimeout applies when a script trigger configures no timeout.
const defaultScriptTimeout = 30 * time.Second

// scriptNotifier runs a local executable with the message body on stdin.
// The script's last stdout line must be "true" or "false"; "false" is a
// successful delivery that chose to do nothing, anything else is a parse
// error.
type scriptNotifier struct {
	cfg    *models.ScriptConfig
	logger *zap.Logger
}

func newScriptNotifier(cfg *models.ScriptConfig, logger *zap.Logger) *scriptNotifier {
	return &scriptNotifier{cfg: cfg, logger: logger.Named("script_notifier")}
}

func (n *scriptNotifier) Notify(ctx context.Context, message models.NotificationMessage) error {
	if _, err := os.Stat(n.cfg.ScriptPath); err != nil {
		return fmt.Errorf("%w: %s", ErrScriptNotFound, n.cfg.ScriptPath)
	}

	timeout := defaultScriptTimeout
	if n.cfg.TimeoutMS > 0 {
		timeout = time.Duration(n.cfg.TimeoutMS) * time.Millisecond
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	args := append([]string{n.cfg.ScriptPath}, n.cfg.Arguments...)
	cmd := exec.CommandContext(ctx, args[0], args[1:]...)
	cmd.Stdin = strings.NewReader(message.Body)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return fmt.Errorf("%w: %s timed out after %s", ErrScriptExecution, n.cfg.ScriptPath, timeout)
		}
		return fmt.Errorf("%w: %s: %v (stderr: %s)", ErrScriptExecution, n.cfg.ScriptPath, err, strings.TrimSpace(stderr.String()))
	}

	result, err := parseScriptVerdict(stdout.String())
	if err != nil {
		return err
	}
	if !result {
		n.logger.Debug("script declined notification", zap.String("script", n.cfg.ScriptPath))
	}
	return nil
}

// parseScriptVerdict extracts the boolean verdict from the last non-empty
// stdout line.
func parseScriptVerdict(output string) (bool, error) {
	lines := strings.Split(strings.TrimSpace(output), "\n")
	last := strings.TrimSpace(lines[len(lines)-1])
	switch strings.ToLower(last) {
	case "true":
		return true, nil
	case "false":
		return false, nil
	}
	return false, fmt.Errorf("%w: last output line %q is not true/false", ErrScriptParse, last)
}
