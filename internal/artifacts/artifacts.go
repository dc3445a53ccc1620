// Package artifacts persists screenshots taken during a run.
package artifacts

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/hurdle/internal/challenge"
)

var _ challenge.ScreenshotStore = (*Dir)(nil)

var unsafeChars = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

// Dir writes screenshots into a single directory.
type Dir struct {
	path   string
	logger *zap.Logger
	now    func() time.Time
}

// NewDir creates the directory if needed.
func NewDir(path string, logger *zap.Logger) (*Dir, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if path == "" {
		return nil, fmt.Errorf("artifacts: empty directory")
	}
	if err := os.MkdirAll(path, 0o755); err != nil {
		return nil, fmt.Errorf("artifacts: create %s: %w", path, err)
	}
	return &Dir{path: path, logger: logger.Named("artifacts"), now: time.Now}, nil
}

// Path returns the directory screenshots are written to.
func (d *Dir) Path() string { return d.path }

// Save writes png as <session>_<label>_<timestamp>.png and returns its path.
func (d *Dir) Save(ctx context.Context, sessionID, label string, png []byte) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if len(png) == 0 {
		return "", fmt.Errorf("artifacts: empty screenshot for session %s", sessionID)
	}
	name := fmt.Sprintf("%s_%s_%s.png",
		sanitize(sessionID), sanitize(label), d.now().UTC().Format("20060102T150405.000"))
	path := filepath.Join(d.path, name)
	if err := os.WriteFile(path, png, 0o644); err != nil {
		return "", fmt.Errorf("artifacts: write %s: %w", path, err)
	}
	d.logger.Debug("Screenshot saved.", zap.String("path", path), zap.Int("bytes", len(png)))
	return path, nil
}

func sanitize(s string) string {
	s = unsafeChars.ReplaceAllString(s, "-")
	if s == "" {
		return "unnamed"
	}
	return s
}
