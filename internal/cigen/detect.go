// Package cigen generates GitHub Actions workflows from a repository's
// Dockerfile and exposes the steps as tools.
package cigen

import (
	"bufio"
	"strings"
)

// Language is a detected build ecosystem.
type Language string

const (
	Python     Language = "python"
	Node       Language = "node"
	JavaMaven  Language = "java-maven"
	JavaGradle Language = "java-gradle"
	Go         Language = "go"
	Ruby       Language = "ruby"
	Unknown    Language = "unknown"
)

// base image substrings, checked in order against each FROM line.
var markers = []struct {
	substr []string
	lang   Language
}{
	{[]string{"python"}, Python},
	{[]string{"node"}, Node},
	{[]string{"openjdk", "maven"}, JavaMaven},
	{[]string{"gradle"}, JavaGradle},
	{[]string{"golang"}, Go},
	{[]string{"ruby"}, Ruby},
}

// DetectLanguage inspects FROM lines top-down and returns the language of
// the first one that names a known base image.
func DetectLanguage(dockerfile string) Language {
	sc := bufio.NewScanner(strings.NewReader(dockerfile))
	sc.Buffer(make([]byte, 0, 64<<10), 1<<20)
	for sc.Scan() {
		line := strings.ToLower(strings.TrimSpace(sc.Text()))
		if !strings.HasPrefix(line, "from") {
			continue
		}
		for _, m := range markers {
			for _, s := range m.substr {
				if strings.Contains(line, s) {
					return m.lang
				}
			}
		}
	}
	return Unknown
}
