// Package uaparser resolves raw User-Agent header strings into a structured
// device/OS/browser descriptor, backed by a ua-parser regex rule database
// (the same rule format MaxMind-style projects ship, see
// _examples/original_source/src/uaparser.rs for the Rust predecessor this
// mirrors).
package uaparser

import (
	"fmt"

	"github.com/ua-parser/uap-go/uaparser"
)

// UserDevice is the parsed form of a User-Agent string.
type UserDevice struct {
	DeviceFamily string  `json:"device_family"`
	DeviceBrand  *string `json:"device_brand,omitempty"`
	DeviceModel  *string `json:"device_model,omitempty"`

	OSFamily     string  `json:"os_family"`
	OSMajor      *string `json:"os_major,omitempty"`
	OSMinor      *string `json:"os_minor,omitempty"`
	OSPatch      *string `json:"os_patch,omitempty"`
	OSPatchMinor *string `json:"os_patch_minor,omitempty"`

	AgentFamily string  `json:"agent_family"`
	AgentMajor  *string `json:"agent_major,omitempty"`
	AgentMinor  *string `json:"agent_minor,omitempty"`
}

// Parser resolves User-Agent strings using a loaded rule database.
type Parser struct {
	inner *uaparser.Parser
}

// Construct parses a ua-parser regex rule file (YAML). It is the
// constructor plugged into renewer.Renewer[*Parser].
func Construct(data []byte) (*Parser, error) {
	inner, err := uaparser.NewFromBytes(data)
	if err != nil {
		return nil, fmt.Errorf("uaparser: parse rule database: %w", err)
	}
	return &Parser{inner: inner}, nil
}

// Resolve always returns a value: an empty or unmatched User-Agent string
// resolves to whatever the rule file's catch-all ("Other") patterns
// produce, per the ua-parser contract.
func (p *Parser) Resolve(userAgent string) UserDevice {
	client := p.inner.Parse(userAgent)

	return UserDevice{
		DeviceFamily: client.Device.Family,
		DeviceBrand:  nonEmpty(client.Device.Brand),
		DeviceModel:  nonEmpty(client.Device.Model),

		OSFamily:     client.Os.Family,
		OSMajor:      nonEmpty(client.Os.Major),
		OSMinor:      nonEmpty(client.Os.Minor),
		OSPatch:      nonEmpty(client.Os.Patch),
		OSPatchMinor: nonEmpty(client.Os.PatchMinor),

		AgentFamily: client.UserAgent.Family,
		AgentMajor:  nonEmpty(client.UserAgent.Major),
		AgentMinor:  nonEmpty(client.UserAgent.Minor),
	}
}

func nonEmpty(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
