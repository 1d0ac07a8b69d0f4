package main

import (
	"regexp"
	"testing"
)

func TestVersionLooksLikeSemver(t *testing.T) {
	if !regexp.MustCompile(`^\d+\.\d+\.\d+$`).MatchString(version) {
		t.Errorf("version %q is not a semantic version", version)
	}
}
