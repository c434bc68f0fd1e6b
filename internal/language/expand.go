package language

import (
	"path/filepath"
	"strings"
)

// ExpandCommand rewrites a command template written against the
// descriptor's canonical file name so it runs the caller-supplied file
// instead. Both the full file name and its base name are substituted,
// so a template like "javac Main.java && java Main" works for
// "Solution.java". The template is returned unchanged when the caller
// kept the canonical name.
func ExpandCommand(template, canonicalFile, actualFile string) string {
	if actualFile == "" || actualFile == canonicalFile {
		return template
	}

	out := strings.ReplaceAll(template, canonicalFile, actualFile)

	canonicalBase := baseName(canonicalFile)
	actualBase := baseName(actualFile)
	if canonicalBase != actualBase {
		out = strings.ReplaceAll(out, canonicalBase, actualBase)
	}
	return out
}

func baseName(file string) string {
	return strings.TrimSuffix(file, filepath.Ext(file))
}
