package toolbox

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/crystaldolphin/toolsmith/internal/schema"
	"github.com/crystaldolphin/toolsmith/internal/shared/stringutils"
	"github.com/crystaldolphin/toolsmith/internal/tools"
)

const (
	defaultScriptTimeout = 30 * time.Second
	defaultMaxOutput     = 10240
	maxErrorOutput       = 2048
	killGrace            = time.Second
)

// ScriptTool runs a module's entrypoint in its own process. Arguments arrive
// as one JSON object on stdin; the result is whatever the script prints.
type ScriptTool struct {
	manifest    Manifest
	dir         string
	interpreter string
	timeout     time.Duration
	maxOutput   int
}

// NewScriptTool binds a loaded module to an interpreter binary.
func NewScriptTool(m Manifest, dir, interpreter string, maxOutput int) *ScriptTool {
	timeout := time.Duration(m.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = defaultScriptTimeout
	}
	if maxOutput <= 0 {
		maxOutput = defaultMaxOutput
	}
	return &ScriptTool{
		manifest:    m,
		dir:         dir,
		interpreter: interpreter,
		timeout:     timeout,
		maxOutput:   maxOutput,
	}
}

func (t *ScriptTool) Name() string           { return t.manifest.Name }
func (t *ScriptTool) Description() string    { return t.manifest.Description }
func (t *ScriptTool) Params() []schema.Param { return t.manifest.Parameters }
func (t *ScriptTool) Timeout() time.Duration { return t.timeout }
func (t *ScriptTool) Dir() string            { return t.dir }

func (t *ScriptTool) Execute(ctx context.Context, args map[string]any) (string, error) {
	payload, err := json.Marshal(args)
	if err != nil {
		return "", fmt.Errorf("marshal arguments: %w", err)
	}

	dataDir := filepath.Join(t.dir, dataDirName)
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return "", fmt.Errorf("ensure data dir: %w", err)
	}

	cmd := exec.CommandContext(ctx, t.interpreter, t.manifest.Entrypoint)
	cmd.Dir = t.dir
	cmd.Stdin = bytes.NewReader(payload)
	cmd.Env = t.environ(ctx, dataDir)
	cmd.WaitDelay = killGrace

	stdout := newCappedBuffer(t.maxOutput)
	stderr := newCappedBuffer(maxErrorOutput)
	cmd.Stdout = stdout
	cmd.Stderr = stderr

	runErr := cmd.Run()
	if ctx.Err() != nil {
		return "", ctx.Err()
	}
	if runErr != nil {
		msg := stderr.text(maxErrorOutput)
		if msg == "" {
			msg = stdout.text(maxErrorOutput)
		}
		return "", fmt.Errorf("%s exited: %v: %s", t.manifest.Name, runErr, msg)
	}

	return stdout.text(t.maxOutput), nil
}

// environ does not inherit the host environment beyond PATH.
func (t *ScriptTool) environ(ctx context.Context, dataDir string) []string {
	env := []string{
		"PATH=" + os.Getenv("PATH"),
		"HOME=" + t.dir,
		"LANG=C.UTF-8",
		"PYTHONIOENCODING=utf-8",
		"TOOL_DATA_DIR=" + dataDir,
	}
	if tc := tools.TurnCtx(ctx); tc.ConversationID != "" {
		env = append(env, "TOOL_CONVERSATION_ID="+tc.ConversationID)
	}
	return env
}

// cappedBuffer keeps enough bytes for maxRunes runes of output and discards
// the rest, so a chatty script cannot grow memory without bound.
type cappedBuffer struct {
	buf     bytes.Buffer
	limit   int
	dropped int
}

func newCappedBuffer(maxRunes int) *cappedBuffer {
	return &cappedBuffer{limit: maxRunes * utf8.UTFMax}
}

func (b *cappedBuffer) Write(p []byte) (int, error) {
	n := min(max(b.limit-b.buf.Len(), 0), len(p))
	b.buf.Write(p[:n])
	b.dropped += len(p) - n
	return len(p), nil
}

// text returns the trimmed output cut to maxRunes runes.
func (b *cappedBuffer) text(maxRunes int) string {
	s := strings.TrimSpace(strings.ToValidUTF8(b.buf.String(), ""))
	return truncateOutput(s, maxRunes, b.dropped > 0)
}

func truncateOutput(s string, maxRunes int, dropped bool) string {
	out := stringutils.Truncate(s, maxRunes)
	if out == s && !dropped {
		return s
	}
	if out == s {
		out += "..."
	}
	return out + "\n(output truncated)"
}
