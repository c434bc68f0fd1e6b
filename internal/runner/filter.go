package runner

import (
	"regexp"
	"strings"
)

// Terminal title sequences (OSC 0/1/2) set the window caption; a web
// client renders them as garbage, so they are stripped from every chunk.
var titleSeqRe = regexp.MustCompile(`\x1b\][012];[^\x07\x1b]*(?:\x07|\x1b\\)`)

// banner lines a wrapping shell may print before the program's own
// output. Cosmetic filtering only: applied to the first chunk and never
// to anything the program itself produced later.
var bannerPrefixes = []string{
	"Microsoft Windows [",
	"(c) Microsoft Corporation",
	"Copyright (C) Microsoft Corporation",
}

// StripTitleSequences removes terminal title escape codes from a chunk.
func StripTitleSequences(chunk string) string {
	if !strings.Contains(chunk, "\x1b]") {
		return chunk
	}
	return titleSeqRe.ReplaceAllString(chunk, "")
}

// StripBanner drops leading shell banner lines from the first output
// chunk of a run. Lines that don't look like a banner stop the scan, so
// program output is never dropped; a chunk without a banner is returned
// unchanged.
func StripBanner(chunk string) string {
	rest := chunk
	stripped := false
	for {
		line, tail, found := strings.Cut(rest, "\n")
		trimmed := strings.TrimSpace(line)
		if trimmed == "" && found && stripped {
			// Blank separator after a banner line.
			rest = tail
			continue
		}
		if !isBannerLine(trimmed) {
			if stripped {
				return rest
			}
			return chunk
		}
		stripped = true
		if !found {
			return ""
		}
		rest = tail
	}
}

func isBannerLine(line string) bool {
	for _, prefix := range bannerPrefixes {
		if strings.HasPrefix(line, prefix) {
			return true
		}
	}
	return false
}
