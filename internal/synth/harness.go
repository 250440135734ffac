package synth

import "github.com/crystaldolphin/toolsmith/internal/toolbox"

// The harness is appended after the safety scan. It reads the JSON
// arguments from stdin, calls execute and prints the result.

const pythonHarness = `

if __name__ == "__main__":
    import json as _json
    import sys as _sys

    _args = _json.loads(_sys.stdin.read() or "{}")
    _result = execute(_args)
    if not isinstance(_result, str):
        _result = _json.dumps(_result, ensure_ascii=False, default=str)
    _sys.stdout.write(_result)
`

const javascriptHarness = `

let __toolInput = "";
process.stdin.setEncoding("utf8");
process.stdin.on("data", (chunk) => { __toolInput += chunk; });
process.stdin.on("end", async () => {
  try {
    const out = await execute(JSON.parse(__toolInput || "{}"));
    process.stdout.write(typeof out === "string" ? out : JSON.stringify(out));
  } catch (err) {
    process.stderr.write(String((err && err.stack) || err));
    process.exit(1);
  }
});
`

// WithHarness returns source ready to be run as a module entrypoint.
func WithHarness(runtime toolbox.Runtime, source string) string {
	switch runtime {
	case toolbox.RuntimePython:
		return source + pythonHarness
	case toolbox.RuntimeJavaScript:
		return source + javascriptHarness
	}
	return source
}
