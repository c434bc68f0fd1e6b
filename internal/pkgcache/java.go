package pkgcache

import (
	"bytes"
	"context"
	"fmt"
	"log"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"
	"sync"
)

// mavenCoordinates maps import prefixes to Maven artifacts. Longest
// matching prefix wins.
var mavenCoordinates = map[string]string{
	"org.springframework.boot": "org.springframework.boot:spring-boot-starter:3.1.2",
	"org.springframework.web":  "org.springframework.boot:spring-boot-starter-web:3.1.2",
	"org.springframework.data": "org.springframework.boot:spring-boot-starter-data-jpa:3.1.2",

	"com.mysql.cj.jdbc": "com.mysql:mysql-connector-j:8.0.33",
	"org.postgresql":    "org.postgresql:postgresql:42.6.0",
	"org.mongodb":       "org.mongodb:mongodb-driver-sync:4.10.2",

	"com.google.gson":             "com.google.code.gson:gson:2.10.1",
	"org.apache.commons.lang3":    "org.apache.commons:commons-lang3:3.12.0",
	"org.apache.commons.io":       "commons-io:commons-io:2.13.0",
	"com.fasterxml.jackson.core":  "com.fasterxml.jackson.core:jackson-databind:2.15.2",
	"org.json":                    "org.json:json:20230618",
	"org.jsoup":                   "org.jsoup:jsoup:1.16.1",

	"org.junit.jupiter": "org.junit.jupiter:junit-jupiter-api:5.9.3",
	"org.junit":         "junit:junit:4.13.2",
	"org.mockito":       "org.mockito:mockito-core:5.3.1",

	"lombok": "org.projectlombok:lombok:1.18.28",

	"org.slf4j":       "org.slf4j:slf4j-api:2.0.7",
	"ch.qos.logback":  "ch.qos.logback:logback-classic:1.4.8",
}

// JavaCache resolves imports to Maven artifacts and keeps the downloaded
// jars in a flat persistent directory usable as a classpath.
type JavaCache struct {
	dir      string
	mu       sync.Mutex
	download installFunc
}

// NewJavaCache returns a cache rooted at dir.
func NewJavaCache(dir string) *JavaCache {
	return &JavaCache{dir: dir, download: mavenCopy}
}

// resolveArtifacts maps detected imports to the artifacts that provide
// them, using the longest matching prefix.
func resolveArtifacts(imports []string) []string {
	set := map[string]bool{}
	for _, imp := range imports {
		var best string
		bestLen := 0
		for prefix, coordinate := range mavenCoordinates {
			if imp != prefix && !strings.HasPrefix(imp, prefix+".") {
				continue
			}
			if len(prefix) > bestLen {
				bestLen = len(prefix)
				best = coordinate
			}
		}
		if best != "" {
			set[best] = true
		}
	}

	out := make([]string, 0, len(set))
	for a := range set {
		out = append(out, a)
	}
	sort.Strings(out)
	return out
}

// Ensure downloads artifacts for any unresolved imports and returns the
// classpath string covering every jar in the cache. Unknown imports are
// skipped silently: the compiler will complain with a clearer message
// than we could produce here.
func (c *JavaCache) Ensure(ctx context.Context, imports []string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	artifacts := resolveArtifacts(imports)
	if len(artifacts) > 0 {
		if err := os.MkdirAll(c.dir, 0o755); err != nil {
			return "", fmt.Errorf("creating java lib dir: %w", err)
		}

		m := newManifest(c.dir)
		missing, err := m.missing(artifacts)
		if err != nil {
			return "", err
		}
		if len(missing) > 0 {
			log.Printf("pkgcache: downloading maven artifacts: %v", missing)
			if err := c.download(ctx, c.dir, missing); err != nil {
				return c.classpath(), err
			}
			if err := m.record(missing); err != nil {
				return c.classpath(), err
			}
		}
	}

	return c.classpath(), nil
}

func (c *JavaCache) classpath() string {
	entries, err := os.ReadDir(c.dir)
	if err != nil {
		return ""
	}
	var jars []string
	for _, e := range entries {
		if strings.HasSuffix(e.Name(), ".jar") {
			jars = append(jars, filepath.Join(c.dir, e.Name()))
		}
	}
	return strings.Join(jars, string(os.PathListSeparator))
}

func mavenCopy(ctx context.Context, dir string, artifacts []string) error {
	for _, artifact := range artifacts {
		cmd := exec.CommandContext(ctx, "mvn", "dependency:copy",
			"-Dartifact="+artifact,
			"-DoutputDirectory="+dir,
			"-Dmdep.useBaseVersion=true")

		var out bytes.Buffer
		cmd.Stdout = &out
		cmd.Stderr = &out

		if err := cmd.Run(); err != nil {
			return fmt.Errorf("maven download of %s failed: %v: %s", artifact, err, tail(out.String(), 400))
		}
	}
	return nil
}
