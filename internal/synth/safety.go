package synth

import (
	"fmt"
	"net/url"
	"regexp"
	"slices"
	"strings"

	"github.com/crystaldolphin/toolsmith/internal/toolbox"
)

// DefaultAllowedImports are the modules generated code may import.
var DefaultAllowedImports = map[toolbox.Runtime][]string{
	toolbox.RuntimePython: {
		"json", "sys", "os", "re", "math", "datetime", "time", "typing", "decimal",
		"urllib", "requests", "statistics", "collections", "string",
	},
	toolbox.RuntimeJavaScript: {
		"https", "http", "url", "querystring", "util", "fs", "path",
	},
}

// DefaultAllowedHosts are the public APIs generated code may call.
var DefaultAllowedHosts = []string{
	"open.er-api.com",
	"api.open-meteo.com",
	"geocoding-api.open-meteo.com",
	"ip-api.com",
	"api.ipify.org",
	"en.wikipedia.org",
	"api.frankfurter.app",
}

// Violation is one reason the gate refused a candidate.
type Violation struct {
	Rule string
	Line int
	Text string
}

func (v Violation) String() string {
	return fmt.Sprintf("%s (line %d: %s)", v.Rule, v.Line, v.Text)
}

type rule struct {
	name      string
	re        *regexp.Regexp
	dataDirOK bool // lines referencing TOOL_DATA_DIR are exempt
}

// Rules run on lines whose import aliases were resolved to dotted module
// paths, so "from os import system" followed by "system(...)" reads as
// "os.system(...)".
var pythonRules = []rule{
	{name: "process spawning", re: regexp.MustCompile(`\bsubprocess\b|\bos\.(system|popen|exec\w*|spawn\w*|posix_spawn\w*|startfile|fork\w*|kill\w*|plock)\b|\bpty\b|\bmultiprocessing\b|\bgetattr\s*\(\s*os\b|\bvars\s*\(\s*os\b|\bos\.__dict__`)},
	{name: "dynamic code evaluation", re: regexp.MustCompile(`(?:^|[^.\w])(eval|exec|compile)\s*\(|__import__|\bimportlib\b|\bbuiltins\b`)},
	{name: "filesystem write", dataDirOK: true, re: regexp.MustCompile(`\bopen\s*\(.*,\s*(?:mode\s*=\s*)?['"](?:[wax]|r\+)[bt]?\+?['"]|\bos\.(remove|unlink|rmdir|removedirs|rename|renames|replace|makedirs|mkdir|chmod|chown|truncate)\b|\bshutil\b|\.write_(text|bytes)\s*\(`)},
	{name: "unchecked network client", re: regexp.MustCompile(`\brequests\.(Session|session)\b|\burllib\.request\.(build_opener|OpenerDirector|install_opener)\b`)},
}

var javascriptRules = []rule{
	{name: "process spawning", re: regexp.MustCompile(`\bchild_process\b|\bworker_threads\b|\bprocess\.(binding|dlopen|kill)\b|\bcluster\b`)},
	{name: "dynamic code evaluation", re: regexp.MustCompile(`\beval\s*\(|\bnew\s+Function\b|\bFunction\s*\(|\bvm\b\.|\bimport\s*\(`)},
	{name: "filesystem write", dataDirOK: true, re: regexp.MustCompile(`\b(writeFile|writeFileSync|appendFile|appendFileSync|createWriteStream|unlink|unlinkSync|rmSync|rmdir|rmdirSync|rename|renameSync|mkdir|mkdirSync|chmod|chmodSync|truncate|truncateSync|copyFile|copyFileSync)\s*\(`)},
}

// netCall is a call whose target must be an allow-listed literal URL.
type netCall struct {
	re   *regexp.Regexp
	arg  int  // position of the URL argument
	host bool // the argument is a bare host name, not a URL
}

var pythonNetCalls = []netCall{
	{re: regexp.MustCompile(`(?:^|[^.\w])requests\.(get|post|put|patch|delete|head|options)\s*\(`)},
	{re: regexp.MustCompile(`(?:^|[^.\w])requests\.request\s*\(`), arg: 1},
	{re: regexp.MustCompile(`(?:^|[^.\w])urllib\.request\.(urlopen|Request|urlretrieve)\s*\(`)},
	{re: regexp.MustCompile(`(?:^|[^.\w])http\.client\.HTTPS?Connection\s*\(`), host: true},
}

var javascriptNetCalls = []netCall{
	{re: regexp.MustCompile(`(?:^|[^.\w])https?\.(get|request)\s*\(`)},
	{re: regexp.MustCompile(`(?:^|[^.\w])fetch\s*\(`)},
}

var (
	pyImportRE   = regexp.MustCompile(`^\s*import\s+(.+)$`)
	pyFromRE     = regexp.MustCompile(`^\s*from\s+([\w.]+)\s+import\b`)
	pyFromAllRE  = regexp.MustCompile(`^\s*from\s+([\w.]+)\s+import\s+(.+)$`)
	jsRequireRE  = regexp.MustCompile(`\brequire\s*\(\s*['"]([^'"]+)['"]\s*\)`)
	jsImportRE   = regexp.MustCompile(`^\s*import\b.*?\bfrom\s+['"]([^'"]+)['"]|^\s*import\s+['"]([^'"]+)['"]`)
	jsReqAliasRE = regexp.MustCompile(`^\s*(?:const|let|var)\s+(\w+)\s*=\s*require\s*\(\s*['"]([^'"]+)['"]\s*\)`)
	jsReqNamesRE = regexp.MustCompile(`^\s*(?:const|let|var)\s*\{([^}]*)\}\s*=\s*require\s*\(\s*['"]([^'"]+)['"]\s*\)`)
	jsImpAliasRE = regexp.MustCompile(`^\s*import\s+(?:\*\s*as\s+)?(\w+)\s+from\s+['"]([^'"]+)['"]`)
	jsImpNamesRE = regexp.MustCompile(`^\s*import\s*\{([^}]*)\}\s*from\s+['"]([^'"]+)['"]`)
	assignRE     = regexp.MustCompile(`^\s*(?:(?:const|let|var)\s+)?(\w+)\s*(\+?=)([^=].*)$`)
	urlLitRE     = regexp.MustCompile("^[fFrR]?(['\"`])(?:https?|wss?)://([A-Za-z0-9.-]+)(?::[0-9]+)?([/?#'\"`])")
	pathLitRE    = regexp.MustCompile("^\\+\\s*[fFrR]?['\"`][/?#]")
	hostLitRE    = regexp.MustCompile(`^['"]([A-Za-z0-9.-]+)['"]$`)
	identRE      = regexp.MustCompile(`^\w+$`)
	urlRE        = regexp.MustCompile(`(?i)\b(?:https?|wss?|ftp)://[^\s'"` + "`" + `<>)]+`)
	dataDirRefRE = regexp.MustCompile(`TOOL_DATA_DIR`)
)

// Gate statically scans generated source before it is persisted.
type Gate struct {
	allowedHosts   []string
	allowedImports map[toolbox.Runtime][]string
}

// NewGate returns a Gate. Nil arguments select the defaults.
func NewGate(allowedHosts []string, allowedImports map[toolbox.Runtime][]string) *Gate {
	if allowedHosts == nil {
		allowedHosts = DefaultAllowedHosts
	}
	if allowedImports == nil {
		allowedImports = DefaultAllowedImports
	}
	hosts := make([]string, 0, len(allowedHosts))
	for _, h := range allowedHosts {
		hosts = append(hosts, strings.ToLower(strings.TrimSpace(h)))
	}
	return &Gate{allowedHosts: hosts, allowedImports: allowedImports}
}

// Scan returns every violation found in source. An empty result means the
// source may be persisted.
func (g *Gate) Scan(runtime toolbox.Runtime, source string) []Violation {
	var (
		rules []rule
		calls []netCall
	)
	switch runtime {
	case toolbox.RuntimePython:
		rules, calls = pythonRules, pythonNetCalls
	case toolbox.RuntimeJavaScript:
		rules, calls = javascriptRules, javascriptNetCalls
	default:
		return []Violation{{Rule: fmt.Sprintf("unsupported runtime %q", runtime)}}
	}

	raw := strings.Split(source, "\n")
	sc := newScan(g, runtime, raw)
	sc.bind()
	sc.trackURLs(calls)

	for i, line := range raw {
		n := i + 1
		code := sc.code[i]
		if strings.TrimSpace(code) == "" {
			continue
		}
		text := strings.TrimSpace(line)
		canon := sc.canonical(i)
		checked := append([]string{canon}, sc.bound[i]...)
		for _, r := range rules {
			for _, c := range checked {
				if !r.re.MatchString(c) {
					continue
				}
				if r.dataDirOK && dataDirRefRE.MatchString(c) {
					continue
				}
				sc.add(r.name, n, text)
				break
			}
		}
		if sc.wildcard[i] != "" {
			sc.add(fmt.Sprintf("wildcard import from %q not allowed", sc.wildcard[i]), n, text)
		}
		for _, mod := range importedModules(runtime, code) {
			if !g.importAllowed(runtime, mod) {
				sc.add(fmt.Sprintf("import of %q not allowed", mod), n, text)
			}
		}
		for _, u := range urlRE.FindAllString(code, -1) {
			host := hostOf(u)
			if !g.hostAllowed(host) {
				sc.add(fmt.Sprintf("network host %q not allowed", host), n, text)
			}
		}
		if sc.imports[i] {
			continue
		}
		for _, call := range calls {
			for _, loc := range call.re.FindAllStringIndex(canon, -1) {
				arg := nthArg(sc.argText(i, canon[loc[1]:]), call.arg)
				if !sc.targetAllowed(arg, call.host) {
					sc.add("network call target is not an allow-listed literal URL", n, text)
				}
			}
		}
	}
	return sc.out
}

// scan holds the per-source state of one Gate.Scan.
type scan struct {
	gate     *Gate
	runtime  toolbox.Runtime
	code     []string          // lines with comments stripped
	imports  map[int]bool      // lines that are part of an import statement
	bound    map[int][]string  // dotted names bound by the import on that line
	wildcard map[int]string    // module star-imported on that line
	modules  map[string]bool   // names that refer to a module
	aliases  map[string]string // local name -> dotted module path
	aliasRE  []aliasRewrite    // compiled from aliases
	safe     map[string]bool   // variables holding an allow-listed URL
	tainted  map[string]bool   // variables ever assigned anything else
	out      []Violation
}

type aliasRewrite struct {
	re     *regexp.Regexp
	target string
}

func newScan(g *Gate, runtime toolbox.Runtime, raw []string) *scan {
	sc := &scan{
		gate:     g,
		runtime:  runtime,
		code:     make([]string, len(raw)),
		imports:  make(map[int]bool),
		bound:    make(map[int][]string),
		wildcard: make(map[int]string),
		modules:  make(map[string]bool),
		aliases:  make(map[string]string),
		safe:     make(map[string]bool),
		tainted:  make(map[string]bool),
	}
	for i, line := range raw {
		sc.code[i] = stripLineComment(runtime, line)
	}
	return sc
}

func (sc *scan) add(rule string, line int, text string) {
	sc.out = append(sc.out, Violation{Rule: rule, Line: line, Text: text})
}

// bind records every name an import statement or a plain module
// reassignment introduces.
func (sc *scan) bind() {
	for i := 0; i < len(sc.code); i++ {
		code := sc.code[i]
		switch sc.runtime {
		case toolbox.RuntimePython:
			if m := pyFromAllRE.FindStringSubmatch(code); m != nil {
				names := m[2]
				sc.imports[i] = true
				if strings.Contains(names, "(") && !strings.Contains(names, ")") {
					for i+1 < len(sc.code) {
						i++
						sc.imports[i] = true
						names += " " + sc.code[i]
						if strings.Contains(sc.code[i], ")") {
							break
						}
					}
				}
				sc.bindNames(i, m[1], strings.Trim(strings.TrimSpace(names), "()"), " as ")
				continue
			}
			if m := pyImportRE.FindStringSubmatch(code); m != nil {
				sc.imports[i] = true
				for _, part := range strings.Split(m[1], ",") {
					name, alias, ok := strings.Cut(strings.TrimSpace(part), " as ")
					name = strings.TrimSpace(name)
					if name == "" {
						continue
					}
					if ok {
						sc.alias(strings.TrimSpace(alias), name)
						continue
					}
					root, _, _ := strings.Cut(name, ".")
					sc.modules[root] = true
				}
				continue
			}
		case toolbox.RuntimeJavaScript:
			if m := jsReqNamesRE.FindStringSubmatch(code); m != nil {
				sc.imports[i] = true
				sc.bindNames(i, jsModule(m[2]), m[1], ":")
				continue
			}
			if m := jsImpNamesRE.FindStringSubmatch(code); m != nil {
				sc.imports[i] = true
				sc.bindNames(i, jsModule(m[2]), m[1], " as ")
				continue
			}
			if m := jsReqAliasRE.FindStringSubmatch(code); m != nil {
				sc.imports[i] = true
				sc.alias(m[1], jsModule(m[2]))
				continue
			}
			if m := jsImpAliasRE.FindStringSubmatch(code); m != nil {
				sc.imports[i] = true
				sc.alias(m[1], jsModule(m[2]))
				continue
			}
		}
		if m := assignRE.FindStringSubmatch(code); m != nil && m[2] == "=" {
			rhs := strings.TrimSuffix(strings.TrimSpace(m[3]), ";")
			root, _, _ := strings.Cut(rhs, ".")
			if isDotted(rhs) && (sc.modules[root] || sc.aliases[root] != "") {
				sc.alias(m[1], sc.resolve(rhs))
			}
		}
	}
}

// bindNames handles "from mod import a, b as c" and its JavaScript
// destructuring equivalents; sep separates an imported name from its alias.
func (sc *scan) bindNames(line int, mod, names, sep string) {
	for _, part := range strings.Split(names, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		if part == "*" {
			sc.wildcard[line] = mod
			continue
		}
		name, alias, ok := strings.Cut(part, sep)
		name = strings.TrimSpace(name)
		if !ok {
			alias = name
		}
		target := mod + "." + name
		sc.alias(strings.TrimSpace(alias), target)
		sc.bound[line] = append(sc.bound[line], target)
	}
}

func (sc *scan) alias(name, target string) {
	if name == "" || name == target || !identRE.MatchString(name) {
		return
	}
	sc.aliases[name] = target
	sc.aliasRE = append(sc.aliasRE, aliasRewrite{
		re:     regexp.MustCompile(`(^|[^.\w])` + regexp.QuoteMeta(name) + `\b`),
		target: target,
	})
}

// resolve expands a leading alias in a dotted name.
func (sc *scan) resolve(name string) string {
	root, rest, dotted := strings.Cut(name, ".")
	target, ok := sc.aliases[root]
	if !ok {
		return name
	}
	if dotted {
		return target + "." + rest
	}
	return target
}

// canonical returns line i with every aliased name replaced by the dotted
// path it refers to. Import lines are returned as written.
func (sc *scan) canonical(i int) string {
	code := sc.code[i]
	if sc.imports[i] {
		return code
	}
	for _, a := range sc.aliasRE {
		code = a.re.ReplaceAllString(code, "${1}"+a.target)
	}
	return code
}

// trackURLs marks variables whose every assignment is an allow-listed URL
// (possibly a safe variable extended by a path) or a call built from one.
func (sc *scan) trackURLs(calls []netCall) {
	for i := range sc.code {
		if sc.imports[i] {
			continue
		}
		m := assignRE.FindStringSubmatch(sc.canonical(i))
		if m == nil {
			continue
		}
		name, op := m[1], m[2]
		rhs := strings.TrimSuffix(strings.TrimSpace(m[3]), ";")

		var ok bool
		if op == "+=" {
			ok = sc.safe[name] && pathLitRE.MatchString("+ "+rhs)
		} else {
			ok = sc.targetAllowed(rhs, false) || sc.safeCall(rhs, i, calls)
		}
		if !ok {
			sc.tainted[name] = true
		}
		sc.safe[name] = ok && !sc.tainted[name]
	}
}

func (sc *scan) safeCall(rhs string, line int, calls []netCall) bool {
	for _, call := range calls {
		loc := call.re.FindStringIndex(rhs)
		if loc == nil || loc[0] != 0 {
			continue
		}
		return sc.targetAllowed(nthArg(sc.argText(line, rhs[loc[1]:]), call.arg), call.host)
	}
	return false
}

// argText is the call's argument list, continuing onto the next non-blank
// line when the opening parenthesis ends the line.
func (sc *scan) argText(line int, rest string) string {
	if strings.TrimSpace(rest) != "" {
		return rest
	}
	for j := line + 1; j < len(sc.code); j++ {
		if next := strings.TrimSpace(sc.code[j]); next != "" {
			return next
		}
	}
	return ""
}

// targetAllowed reports whether expr fixes an allow-listed host: a URL
// literal whose host cannot be altered by what follows it, or a variable
// only ever assigned such a value.
func (sc *scan) targetAllowed(expr string, host bool) bool {
	expr = strings.TrimSpace(expr)
	if k, v, ok := strings.Cut(expr, "="); ok && identRE.MatchString(strings.TrimSpace(k)) && !strings.HasPrefix(v, "=") {
		expr = strings.TrimSpace(v)
	}
	if host {
		m := hostLitRE.FindStringSubmatch(expr)
		return m != nil && sc.gate.hostAllowed(strings.ToLower(m[1]))
	}
	if identRE.MatchString(expr) {
		return sc.safe[expr]
	}
	if id, rest, ok := strings.Cut(expr, "+"); ok && sc.safe[strings.TrimSpace(id)] {
		return pathLitRE.MatchString("+" + rest)
	}
	m := urlLitRE.FindStringSubmatch(expr)
	if m == nil || !sc.gate.hostAllowed(strings.ToLower(m[2])) {
		return false
	}
	if m[3] != m[1] {
		return true
	}
	rest := strings.TrimSpace(expr[len(m[0]):])
	return rest == "" || pathLitRE.MatchString(rest)
}

// nthArg returns the n-th top-level argument of a call whose opening
// parenthesis has already been consumed.
func nthArg(args string, n int) string {
	var (
		quote byte
		depth int
		idx   int
		start int
	)
	for i := 0; i < len(args); i++ {
		c := args[i]
		switch {
		case quote != 0:
			if c == '\\' {
				i++
			} else if c == quote {
				quote = 0
			}
		case c == '"' || c == '\'' || c == '`':
			quote = c
		case c == '(' || c == '[' || c == '{':
			depth++
		case (c == ')' || c == ']' || c == '}') && depth > 0:
			depth--
		case c == ')' || (c == ',' && depth == 0):
			if idx == n {
				return strings.TrimSpace(args[start:i])
			}
			if c == ')' {
				return ""
			}
			idx++
			start = i + 1
		}
	}
	if idx == n {
		return strings.TrimSpace(args[start:])
	}
	return ""
}

func isDotted(s string) bool {
	for _, part := range strings.Split(s, ".") {
		if !identRE.MatchString(part) {
			return false
		}
	}
	return true
}

func jsModule(mod string) string {
	return strings.TrimPrefix(mod, "node:")
}

// Check is Scan reported as an error.
func (g *Gate) Check(runtime toolbox.Runtime, source string) error {
	violations := g.Scan(runtime, source)
	if len(violations) == 0 {
		return nil
	}
	msgs := make([]string, 0, len(violations))
	for _, v := range violations {
		msgs = append(msgs, v.String())
	}
	return fmt.Errorf("%w: safety gate: %s", ErrSynthesisFailure, strings.Join(msgs, "; "))
}

func (g *Gate) importAllowed(runtime toolbox.Runtime, mod string) bool {
	mod = strings.TrimPrefix(mod, "node:")
	if runtime == toolbox.RuntimePython {
		mod, _, _ = strings.Cut(mod, ".")
	} else {
		mod, _, _ = strings.Cut(mod, "/")
	}
	return slices.Contains(g.allowedImports[runtime], mod)
}

func (g *Gate) hostAllowed(host string) bool {
	if host == "" {
		return false
	}
	for _, allowed := range g.allowedHosts {
		if host == allowed || strings.HasSuffix(host, "."+allowed) {
			return true
		}
	}
	return false
}

func importedModules(runtime toolbox.Runtime, code string) []string {
	var mods []string
	switch runtime {
	case toolbox.RuntimePython:
		if m := pyFromRE.FindStringSubmatch(code); m != nil {
			return []string{m[1]}
		}
		if m := pyImportRE.FindStringSubmatch(code); m != nil {
			for _, part := range strings.Split(m[1], ",") {
				name, _, _ := strings.Cut(strings.TrimSpace(part), " ")
				if name != "" {
					mods = append(mods, name)
				}
			}
		}
	case toolbox.RuntimeJavaScript:
		for _, m := range jsRequireRE.FindAllStringSubmatch(code, -1) {
			mods = append(mods, m[1])
		}
		if m := jsImportRE.FindStringSubmatch(code); m != nil {
			if m[1] != "" {
				mods = append(mods, m[1])
			} else if m[2] != "" {
				mods = append(mods, m[2])
			}
		}
	}
	return mods
}

func hostOf(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	return strings.ToLower(u.Hostname())
}

// stripLineComment drops a trailing comment that is not inside a string.
func stripLineComment(runtime toolbox.Runtime, line string) string {
	marker := "#"
	if runtime == toolbox.RuntimeJavaScript {
		marker = "//"
	}
	var quote byte
	for i := 0; i < len(line); i++ {
		c := line[i]
		switch {
		case quote != 0:
			if c == '\\' {
				i++
			} else if c == quote {
				quote = 0
			}
		case c == '"' || c == '\'' || c == '`':
			quote = c
		case strings.HasPrefix(line[i:], marker):
			return line[:i]
		}
	}
	return line
}
