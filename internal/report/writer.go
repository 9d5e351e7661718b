package report

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"
)

// Policy decides what happens when a report file already exists.
type Policy string

const (
	// PolicySuffix writes NAME_2.md, NAME_3.md, ... next to the existing file.
	PolicySuffix Policy = "suffix"
	// PolicyFail returns a ConflictError.
	PolicyFail Policy = "fail"
	// PolicyAsk lets an AskFunc choose.
	PolicyAsk Policy = "ask"
)

// Decision is the answer of an AskFunc.
type Decision int

const (
	DecisionSuffix Decision = iota
	DecisionOverwrite
	DecisionSkip
)

// AskFunc is consulted under PolicyAsk with the path that already exists.
type AskFunc func(path string) (Decision, error)

const maxSuffix = 1000

// ErrRenderConflict is matched by every ConflictError.
var ErrRenderConflict = errors.New("report already exists")

// ConflictError names the report file that blocked a write.
type ConflictError struct {
	Path string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("%s: %s", ErrRenderConflict, e.Path)
}

func (e *ConflictError) Unwrap() error { return ErrRenderConflict }

// ParsePolicy validates a configured policy name. Empty selects PolicySuffix.
func ParsePolicy(s string) (Policy, error) {
	switch p := Policy(strings.ToLower(strings.TrimSpace(s))); p {
	case "":
		return PolicySuffix, nil
	case PolicySuffix, PolicyFail, PolicyAsk:
		return p, nil
	default:
		return "", fmt.Errorf("unknown conflict policy %q (want suffix, fail or ask)", s)
	}
}

// Writer stores reports in a directory without silently replacing existing ones.
type Writer struct {
	dir    string
	policy Policy
	ask    AskFunc
	logger *zap.Logger
}

// NewWriter returns a Writer. PolicyAsk requires ask.
func NewWriter(dir string, policy Policy, ask AskFunc, logger *zap.Logger) (*Writer, error) {
	if strings.TrimSpace(dir) == "" {
		dir = "reports"
	}
	if policy == "" {
		policy = PolicySuffix
	}
	if policy == PolicyAsk && ask == nil {
		return nil, errors.New("conflict policy ask needs an interactive prompt")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Writer{dir: dir, policy: policy, ask: ask, logger: logger}, nil
}

// Dir returns the reports directory.
func (w *Writer) Dir() string { return w.dir }

// Write stores content under filename and returns the path written. An empty
// path with a nil error means the user chose to skip the report.
func (w *Writer) Write(filename string, content []byte) (string, error) {
	if err := os.MkdirAll(w.dir, 0o755); err != nil {
		return "", fmt.Errorf("create reports dir: %w", err)
	}

	path := filepath.Join(w.dir, filename)
	err := writeExclusive(path, content)
	if err == nil {
		return path, nil
	}
	if !errors.Is(err, fs.ErrExist) {
		return "", err
	}

	decision := DecisionSuffix
	switch w.policy {
	case PolicyFail:
		return "", &ConflictError{Path: path}
	case PolicyAsk:
		decision, err = w.ask(path)
		if err != nil {
			return "", fmt.Errorf("resolve report conflict: %w", err)
		}
	}

	switch decision {
	case DecisionSkip:
		w.logger.Warn("report not written, existing file kept", zap.String("path", path))
		return "", nil
	case DecisionOverwrite:
		if err := replaceFile(path, content); err != nil {
			return "", err
		}
		w.logger.Warn("existing report overwritten", zap.String("path", path))
		return path, nil
	}

	ext := filepath.Ext(filename)
	stem := strings.TrimSuffix(filename, ext)
	for n := 2; n <= maxSuffix; n++ {
		candidate := filepath.Join(w.dir, fmt.Sprintf("%s_%d%s", stem, n, ext))
		err := writeExclusive(candidate, content)
		if err == nil {
			w.logger.Info("report name taken, wrote with suffix",
				zap.String("existing", path),
				zap.String("path", candidate),
			)
			return candidate, nil
		}
		if !errors.Is(err, fs.ErrExist) {
			return "", err
		}
	}
	return "", &ConflictError{Path: path}
}

// writeExclusive creates path only if it does not exist. A failed write
// removes the partial file.
func writeExclusive(path string, content []byte) error {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return err
	}
	if _, err := f.Write(content); err != nil {
		f.Close()
		os.Remove(path)
		return fmt.Errorf("write report: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(path)
		return fmt.Errorf("write report: %w", err)
	}
	return nil
}

// replaceFile swaps content in through a temp file so readers never see a partial report.
func replaceFile(path string, content []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".report-*.tmp")
	if err != nil {
		return fmt.Errorf("write report: %w", err)
	}
	name := tmp.Name()
	if _, err := tmp.Write(content); err != nil {
		tmp.Close()
		os.Remove(name)
		return fmt.Errorf("write report: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(name)
		return fmt.Errorf("write report: %w", err)
	}
	if err := os.Chmod(name, 0o644); err != nil {
		os.Remove(name)
		return fmt.Errorf("write report: %w", err)
	}
	if err := os.Rename(name, path); err != nil {
		os.Remove(name)
		return fmt.Errorf("write report: %w", err)
	}
	return nil
}
