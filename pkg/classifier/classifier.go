// Package classifier wraps the external image-classification executables.
// The subprocess contract: one image path argument in, exactly one JSON
// document on stdout out. stderr carries diagnostics only.
package classifier

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"time"

	gocache "github.com/patrickmn/go-cache"
)

type Prediction struct {
	Disease        string  `json:"disease"`
	VietnameseName string  `json:"vietnameseName"`
	Probability    float64 `json:"probability"`
}

// Result mirrors the JSON document the classifier scripts print.
type Result struct {
	Success              bool         `json:"success"`
	Error                string       `json:"error,omitempty"`
	TopDisease           string       `json:"topDisease"`
	TopDiseaseVietnamese string       `json:"topDiseaseVietnamese"`
	TopProbability       float64      `json:"topProbability"`
	AllPredictions       []Prediction `json:"allPredictions"`
}

// ProcessError is a fatal classification failure: non-zero exit, timeout,
// or stdout that is not a single JSON document.
type ProcessError struct {
	Detail string
	Stderr string
	Err    error
}

func (e *ProcessError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("classifier: %s: %v", e.Detail, e.Err)
	}
	return "classifier: " + e.Detail
}

func (e *ProcessError) Unwrap() error {
	return e.Err
}

type IClassifier interface {
	Classify(ctx context.Context, mode, imagePath string) (*Result, error)
	Modes() []string
}

// Runner executes one classifier script per process mode, with result
// caching keyed by image content hash: re-submitting the same image must
// not re-spawn the model process.
type Runner struct {
	interpreter string            // e.g. "python3"
	scripts     map[string]string // mode -> script path
	timeout     time.Duration
	cache       *gocache.Cache
}

var _ IClassifier = &Runner{}

func NewRunner(interpreter string, scripts map[string]string, timeout time.Duration) *Runner {
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &Runner{
		interpreter: interpreter,
		scripts:     scripts,
		timeout:     timeout,
		cache:       gocache.New(30*time.Minute, 10*time.Minute),
	}
}

func (r *Runner) Modes() []string {
	modes := make([]string, 0, len(r.scripts))
	for mode := range r.scripts {
		modes = append(modes, mode)
	}
	return modes
}

func (r *Runner) Classify(ctx context.Context, mode, imagePath string) (*Result, error) {
	script, ok := r.scripts[mode]
	if !ok {
		return nil, fmt.Errorf("unknown process mode: %s", mode)
	}

	cacheKey, err := r.contentKey(mode, imagePath)
	if err == nil {
		if cached, found := r.cache.Get(cacheKey); found {
			return cached.(*Result), nil
		}
	}

	runCtx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	cmd := exec.CommandContext(runCtx, r.interpreter, script, imagePath)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if runErr := cmd.Run(); runErr != nil {
		if runCtx.Err() == context.DeadlineExceeded {
			return nil, &ProcessError{
				Detail: fmt.Sprintf("timed out after %s", r.timeout),
				Stderr: stderr.String(),
				Err:    runCtx.Err(),
			}
		}
		return nil, &ProcessError{
			Detail: "exited with error",
			Stderr: stderr.String(),
			Err:    runErr,
		}
	}

	var result Result
	if jsonErr := json.Unmarshal(bytes.TrimSpace(stdout.Bytes()), &result); jsonErr != nil {
		return nil, &ProcessError{
			Detail: "stdout is not valid JSON",
			Stderr: stderr.String(),
			Err:    jsonErr,
		}
	}

	if !result.Success {
		return nil, &ProcessError{
			Detail: result.Error,
			Stderr: stderr.String(),
		}
	}

	if cacheKey != "" {
		r.cache.Set(cacheKey, &result, gocache.DefaultExpiration)
	}
	return &result, nil
}

func (r *Runner) contentKey(mode, imagePath string) (string, error) {
	data, err := os.ReadFile(imagePath)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(data)
	return fmt.Sprintf("%s:%x", mode, sum), nil
}
