package models

import "strings"

// PlatformTarget is one entry of the build matrix.
type PlatformTarget struct {
	Label  string   `yaml:"label" json:"label"`
	Target string   `yaml:"target" json:"target"` // compilation target triple
	Image  string   `yaml:"image" json:"image"`   // execution context image
	Shell  []string `yaml:"shell,omitempty" json:"shell,omitempty"`
}

// IsWindows returns true if the target triple produces Windows binaries.
func (p PlatformTarget) IsWindows() bool {
	return strings.Contains(p.Target, "windows")
}

// ExeSuffix returns the executable file suffix for the target.
func (p PlatformTarget) ExeSuffix() string {
	if p.IsWindows() {
		return ".exe"
	}
	return ""
}
