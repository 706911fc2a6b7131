package classifier

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const successScript = `#!/bin/sh
echo "loading model" 1>&2
cat <<'EOF'
{"success":true,"topDisease":"Eczema","topDiseaseVietnamese":"Cham","topProbability":81.5,"allPredictions":[{"disease":"Eczema","vietnameseName":"Cham","probability":81.5},{"disease":"Psoriasis","vietnameseName":"Vay nen","probability":12.1}]}
EOF
`

func writeScript(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "classify.sh")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o755))
	return path
}

func writeImage(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "input.jpg")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestClassifyParsesStdout(t *testing.T) {
	runner := NewRunner("/bin/sh", map[string]string{"skin": writeScript(t, successScript)}, 5*time.Second)

	result, err := runner.Classify(context.Background(), "skin", writeImage(t, "jpegdata"))

	require.NoError(t, err)
	assert.Equal(t, "Eczema", result.TopDisease)
	assert.InDelta(t, 81.5, result.TopProbability, 0.001)
	assert.Len(t, result.AllPredictions, 2)
}

func TestClassifyUnknownMode(t *testing.T) {
	runner := NewRunner("/bin/sh", map[string]string{"skin": writeScript(t, successScript)}, 5*time.Second)

	_, err := runner.Classify(context.Background(), "retina", writeImage(t, "jpegdata"))

	assert.Error(t, err)
}

func TestClassifyNonZeroExit(t *testing.T) {
	script := writeScript(t, "#!/bin/sh\necho \"cannot open image\" 1>&2\nexit 2\n")
	runner := NewRunner("/bin/sh", map[string]string{"skin": script}, 5*time.Second)

	_, err := runner.Classify(context.Background(), "skin", writeImage(t, "jpegdata"))

	var procErr *ProcessError
	require.ErrorAs(t, err, &procErr)
	assert.Contains(t, procErr.Stderr, "cannot open image")
}

func TestClassifyTimeout(t *testing.T) {
	script := writeScript(t, "#!/bin/sh\nsleep 5\n")
	runner := NewRunner("/bin/sh", map[string]string{"skin": script}, 100*time.Millisecond)

	_, err := runner.Classify(context.Background(), "skin", writeImage(t, "jpegdata"))

	var procErr *ProcessError
	require.ErrorAs(t, err, &procErr)
	assert.ErrorIs(t, procErr.Err, context.DeadlineExceeded)
}

func TestClassifyRejectsNonJSONStdout(t *testing.T) {
	script := writeScript(t, "#!/bin/sh\necho \"Loading weights...\"\n")
	runner := NewRunner("/bin/sh", map[string]string{"skin": script}, 5*time.Second)

	_, err := runner.Classify(context.Background(), "skin", writeImage(t, "jpegdata"))

	var procErr *ProcessError
	require.ErrorAs(t, err, &procErr)
}

func TestClassifyReportedFailure(t *testing.T) {
	script := writeScript(t, "#!/bin/sh\necho '{\"success\":false,\"error\":\"image too small\"}'\n")
	runner := NewRunner("/bin/sh", map[string]string{"skin": script}, 5*time.Second)

	_, err := runner.Classify(context.Background(), "skin", writeImage(t, "jpegdata"))

	var procErr *ProcessError
	require.ErrorAs(t, err, &procErr)
	assert.Contains(t, procErr.Detail, "image too small")
}

func TestClassifyCachesByImageContent(t *testing.T) {
	dir := t.TempDir()
	counter := filepath.Join(dir, "runs")
	script := filepath.Join(dir, "classify.sh")
	body := "#!/bin/sh\necho run >> " + counter + "\n" + successScript[len("#!/bin/sh\n"):]
	require.NoError(t, os.WriteFile(script, []byte(body), 0o755))

	runner := NewRunner("/bin/sh", map[string]string{"skin": script}, 5*time.Second)
	image := writeImage(t, "same bytes")

	_, err := runner.Classify(context.Background(), "skin", image)
	require.NoError(t, err)
	_, err = runner.Classify(context.Background(), "skin", image)
	require.NoError(t, err)

	runs, err := os.ReadFile(counter)
	require.NoError(t, err)
	assert.Equal(t, "run\n", string(runs))
}

func TestProcessErrorUnwrap(t *testing.T) {
	inner := errors.New("boom")
	err := &ProcessError{Detail: "exited with error", Err: inner}

	assert.ErrorIs(t, err, inner)
	assert.Contains(t, err.Error(), "exited with error")
}

func TestModes(t *testing.T) {
	runner := NewRunner("/bin/sh", map[string]string{"skin": "a.sh", "medical-record": "b.sh"}, time.Second)

	assert.ElementsMatch(t, []string{"skin", "medical-record"}, runner.Modes())
}
