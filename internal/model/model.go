package model

import (
	"fmt"
	"runtime"
	"strings"
	"time"
)

// Category is the kind of monitored entity a change record describes
type Category string

const (
	CategoryFile        Category = "FILE"
	CategoryCertificate Category = "CERTIFICATE"
	CategoryPort        Category = "PORT"
	CategoryRegistry    Category = "REGISTRY"
	CategoryService     Category = "SERVICE"
	CategoryUser        Category = "USER"
	CategoryGroup       Category = "GROUP"
	CategoryFirewall    Category = "FIREWALL"
	CategoryCOM         Category = "COM"
	CategoryLog         Category = "LOG"
	CategoryUnknown     Category = "UNKNOWN"
)

// Categories lists every known category except UNKNOWN
var Categories = []Category{
	CategoryFile,
	CategoryCertificate,
	CategoryPort,
	CategoryRegistry,
	CategoryService,
	CategoryUser,
	CategoryGroup,
	CategoryFirewall,
	CategoryCOM,
	CategoryLog,
}

// Valid reports whether c is one of the known categories (UNKNOWN included)
func (c Category) Valid() bool {
	if c == CategoryUnknown {
		return true
	}
	for _, known := range Categories {
		if c == known {
			return true
		}
	}
	return false
}

// ChangeKind describes whether an entity was created, modified or deleted
type ChangeKind string

const (
	ChangeCreated  ChangeKind = "CREATED"
	ChangeModified ChangeKind = "MODIFIED"
	ChangeDeleted  ChangeKind = "DELETED"
	ChangeUnknown  ChangeKind = "UNKNOWN"
)

// Valid reports whether k is a known change kind
func (k ChangeKind) Valid() bool {
	switch k {
	case ChangeCreated, ChangeModified, ChangeDeleted, ChangeUnknown:
		return true
	}
	return false
}

// Platform identifies the operating system the analyzer runs on
type Platform string

const (
	PlatformWindows Platform = "WINDOWS"
	PlatformLinux   Platform = "LINUX"
	PlatformMacOS   Platform = "MACOS"
	PlatformUnknown Platform = "UNKNOWN"
)

// Valid reports whether p is a known platform
func (p Platform) Valid() bool {
	switch p {
	case PlatformWindows, PlatformLinux, PlatformMacOS, PlatformUnknown:
		return true
	}
	return false
}

// PlatformFromGOOS maps a GOOS value to a Platform
func PlatformFromGOOS(goos string) Platform {
	switch goos {
	case "windows":
		return PlatformWindows
	case "linux":
		return PlatformLinux
	case "darwin":
		return PlatformMacOS
	default:
		return PlatformUnknown
	}
}

// CurrentPlatform returns the platform of the running process
func CurrentPlatform() Platform {
	return PlatformFromGOOS(runtime.GOOS)
}

// ParsePlatform accepts either a Platform name or a GOOS value
func ParsePlatform(s string) (Platform, error) {
	p := Platform(strings.ToUpper(strings.TrimSpace(s)))
	if p.Valid() {
		return p, nil
	}
	if p := PlatformFromGOOS(strings.ToLower(strings.TrimSpace(s))); p != PlatformUnknown {
		return p, nil
	}
	return PlatformUnknown, fmt.Errorf("unknown platform: %q", s)
}

// MatchedRule records a rule whose clauses all passed for a change record
type MatchedRule struct {
	Name        string   `json:"name"`
	Description string   `json:"description,omitempty"`
	Flag        Severity `json:"flag"`
}

// ChangeRecord is one detected difference between two snapshots.
// Previous is set for DELETED and MODIFIED records, Current for CREATED and
// MODIFIED records. MatchedRules is appended to by the analyzer.
type ChangeRecord struct {
	Identity     string        `json:"identity"`
	Category     Category      `json:"category"`
	ChangeKind   ChangeKind    `json:"change_kind"`
	Previous     Entity        `json:"previous,omitempty"`
	Current      Entity        `json:"current,omitempty"`
	MatchedRules []MatchedRule `json:"matched_rules,omitempty"`
}

// Classification is the output of analyzing a single change record
type Classification struct {
	ID           string        `json:"id"`
	Identity     string        `json:"identity"`
	Category     Category      `json:"category"`
	ChangeKind   ChangeKind    `json:"change_kind"`
	Severity     Severity      `json:"severity"`
	MatchedRules []MatchedRule `json:"matched_rules"`
	Platform     Platform      `json:"platform"`
	Timestamp    time.Time     `json:"timestamp"`
}
