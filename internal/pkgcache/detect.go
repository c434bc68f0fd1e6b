// Package pkgcache detects third-party dependencies in user code and
// installs them into a persistent per-language cache shared across
// sessions. Installation failures are warnings at the call site, never
// fatal to an execution.
package pkgcache

import (
	"regexp"
	"sort"
	"strings"
)

var nodeBuiltins = map[string]bool{
	"assert": true, "buffer": true, "child_process": true, "cluster": true,
	"console": true, "crypto": true, "dgram": true, "dns": true, "domain": true,
	"events": true, "fs": true, "http": true, "https": true, "net": true,
	"os": true, "path": true, "process": true, "punycode": true,
	"querystring": true, "readline": true, "stream": true, "string_decoder": true,
	"timers": true, "tls": true, "tty": true, "url": true, "util": true,
	"v8": true, "vm": true, "zlib": true,
}

var pythonBuiltins = map[string]bool{
	"abc": true, "argparse": true, "array": true, "ast": true, "asyncio": true,
	"atexit": true, "base64": true, "bisect": true, "builtins": true, "bz2": true,
	"calendar": true, "cmath": true, "cmd": true, "code": true, "codecs": true,
	"collections": true, "concurrent": true, "configparser": true,
	"contextlib": true, "copy": true, "csv": true, "ctypes": true,
	"dataclasses": true, "datetime": true, "decimal": true, "difflib": true,
	"dis": true, "doctest": true, "email": true, "enum": true, "errno": true,
	"fcntl": true, "fileinput": true, "fnmatch": true, "fractions": true,
	"functools": true, "gc": true, "getopt": true, "getpass": true, "gettext": true,
	"glob": true, "graphlib": true, "gzip": true, "hashlib": true, "heapq": true,
	"hmac": true, "html": true, "http": true, "importlib": true, "inspect": true,
	"io": true, "ipaddress": true, "itertools": true, "json": true, "keyword": true,
	"locale": true, "logging": true, "lzma": true, "math": true, "mimetypes": true,
	"mmap": true, "multiprocessing": true, "numbers": true, "operator": true,
	"os": true, "pathlib": true, "pdb": true, "pickle": true, "pkgutil": true,
	"platform": true, "pprint": true, "pty": true, "queue": true, "random": true,
	"re": true, "readline": true, "sched": true, "secrets": true, "select": true,
	"selectors": true, "shlex": true, "shutil": true, "signal": true, "site": true,
	"smtplib": true, "socket": true, "socketserver": true, "sqlite3": true,
	"ssl": true, "stat": true, "statistics": true, "string": true, "struct": true,
	"subprocess": true, "sys": true, "sysconfig": true, "tarfile": true,
	"tempfile": true, "termios": true, "textwrap": true, "threading": true,
	"time": true, "timeit": true, "tkinter": true, "token": true, "tokenize": true,
	"traceback": true, "types": true, "typing": true, "unicodedata": true,
	"unittest": true, "urllib": true, "uuid": true, "venv": true, "warnings": true,
	"weakref": true, "webbrowser": true, "xml": true, "xmlrpc": true,
	"zipfile": true, "zlib": true, "zoneinfo": true,
}

var (
	requireRe      = regexp.MustCompile(`require\s*\(\s*['"]([^'"]+)['"]\s*\)`)
	pyImportRe     = regexp.MustCompile(`(?m)^import\s+([a-zA-Z0-9_]+)`)
	pyFromImportRe = regexp.MustCompile(`(?m)^from\s+([a-zA-Z0-9_]+)`)
	javaImportRe   = regexp.MustCompile(`(?m)^\s*import\s+(?:static\s+)?([a-zA-Z0-9_.]+);`)
)

// Detect scans source code for third-party package references, filtering
// out modules that ship with the language runtime. The result is sorted
// for deterministic installs.
func Detect(code, lang string) []string {
	set := map[string]bool{}

	switch lang {
	case "javascript", "typescript":
		detectNode(code, set)
	case "python":
		detectPython(code, set)
	case "java":
		detectJava(code, set)
	}

	out := make([]string, 0, len(set))
	for pkg := range set {
		out = append(out, pkg)
	}
	sort.Strings(out)
	return out
}

func detectNode(code string, set map[string]bool) {
	for _, m := range requireRe.FindAllStringSubmatch(code, -1) {
		mod := m[1]
		if strings.HasPrefix(mod, ".") || strings.HasPrefix(mod, "/") {
			continue
		}
		if nodeBuiltins[mod] || strings.HasPrefix(mod, "node:") {
			continue
		}
		// Scoped packages keep @org/name, subpath imports reduce to the
		// package root.
		var pkg string
		if strings.HasPrefix(mod, "@") {
			parts := strings.SplitN(mod, "/", 3)
			if len(parts) < 2 {
				continue
			}
			pkg = parts[0] + "/" + parts[1]
		} else {
			pkg = strings.SplitN(mod, "/", 2)[0]
		}
		set[pkg] = true
	}
}

func detectPython(code string, set map[string]bool) {
	for _, re := range []*regexp.Regexp{pyImportRe, pyFromImportRe} {
		for _, m := range re.FindAllStringSubmatch(code, -1) {
			if pkg := m[1]; !pythonBuiltins[pkg] && !strings.HasPrefix(pkg, "_") {
				set[pkg] = true
			}
		}
	}
}

func detectJava(code string, set map[string]bool) {
	for _, m := range javaImportRe.FindAllStringSubmatch(code, -1) {
		class := m[1]
		if strings.HasPrefix(class, "java.") || strings.HasPrefix(class, "javax.") ||
			strings.HasPrefix(class, "jdk.") || strings.HasPrefix(class, "sun.") {
			continue
		}
		set[class] = true
	}
}
