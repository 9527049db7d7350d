// Package actors implements the server side of the root protocol: the root
// actor, the descriptors it hands out for processes, tabs, workers,
// service worker registrations and add-ons, and the targets that own a
// thread and a tracer session.
//
// Everything the actors describe comes from a Host. StaticHost serves a
// fixed inventory loaded from a YAML or JSON file.
package actors

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Worker types as reported on the wire
const (
	WorkerTypeDedicated = 0
	WorkerTypeShared    = 1
	WorkerTypeService   = 2
)

// ProcessInfo describes one debuggee process
type ProcessInfo struct {
	ID       int  `json:"id" yaml:"id"`
	IsParent bool `json:"isParent" yaml:"isParent"`
}

// SourceInfo describes one script loaded by a target
type SourceInfo struct {
	URL          string `json:"url" yaml:"url"`
	SourceMapURL string `json:"sourceMapURL,omitempty" yaml:"sourceMapURL,omitempty"`
	Text         string `json:"text,omitempty" yaml:"text,omitempty"`
}

// TabInfo describes one tab or frame document
type TabInfo struct {
	TabID         int    `json:"tabId" yaml:"tabId"`
	OuterWindowID int    `json:"outerWindowID" yaml:"outerWindowID"`
	URL           string `json:"url" yaml:"url"`
	Title         string `json:"title,omitempty" yaml:"title,omitempty"`
	Selected      bool   `json:"selected,omitempty" yaml:"selected,omitempty"`
	ProcessID     int    `json:"processID,omitempty" yaml:"processID,omitempty"`
	// SubDocument marks an iframe document that runs on its parent's thread
	SubDocument bool         `json:"subDocument,omitempty" yaml:"subDocument,omitempty"`
	Sources     []SourceInfo `json:"sources,omitempty" yaml:"sources,omitempty"`
}

// WorkerInfo describes one running worker
type WorkerInfo struct {
	ID        string       `json:"id" yaml:"id"`
	Type      int          `json:"type" yaml:"type"`
	URL       string       `json:"url" yaml:"url"`
	Name      string       `json:"name,omitempty" yaml:"name,omitempty"`
	Scope     string       `json:"scope,omitempty" yaml:"scope,omitempty"`
	ProcessID int          `json:"processID,omitempty" yaml:"processID,omitempty"`
	Sources   []SourceInfo `json:"sources,omitempty" yaml:"sources,omitempty"`
}

// RegistrationInfo describes one service worker registration
type RegistrationInfo struct {
	Scope  string `json:"scope" yaml:"scope"`
	URL    string `json:"url,omitempty" yaml:"url,omitempty"`
	Fetch  bool   `json:"fetch,omitempty" yaml:"fetch,omitempty"`
	Active bool   `json:"active,omitempty" yaml:"active,omitempty"`
}

// AddonInfo describes one installed add-on
type AddonInfo struct {
	ID         string `json:"id" yaml:"id"`
	Name       string `json:"name" yaml:"name"`
	URL        string `json:"url,omitempty" yaml:"url,omitempty"`
	Debuggable bool   `json:"debuggable,omitempty" yaml:"debuggable,omitempty"`
}

// DeviceInfo is returned by the device actor's getDescription
type DeviceInfo struct {
	AppType  string `json:"appType" yaml:"appType"`
	Name     string `json:"name" yaml:"name"`
	Version  string `json:"version" yaml:"version"`
	Platform string `json:"platform" yaml:"platform"`
}

// Host is what the root actor exposes to clients
type Host interface {
	Device() DeviceInfo
	Processes() []ProcessInfo
	Tabs() []TabInfo
	// Workers returns the workers running in the given process
	Workers(processID int) []WorkerInfo
	Registrations() []RegistrationInfo
	Addons() []AddonInfo
}

// Inventory is the on-disk form of a StaticHost
type Inventory struct {
	Device        DeviceInfo         `json:"device" yaml:"device"`
	Processes     []ProcessInfo      `json:"processes" yaml:"processes"`
	Tabs          []TabInfo          `json:"tabs" yaml:"tabs"`
	Workers       []WorkerInfo       `json:"workers" yaml:"workers"`
	Registrations []RegistrationInfo `json:"registrations" yaml:"registrations"`
	Addons        []AddonInfo        `json:"addons" yaml:"addons"`
}

// StaticHost serves a fixed inventory
type StaticHost struct {
	inv Inventory
}

// NewStaticHost creates a host from inv. A parent process with id 0 is
// added when inv lists none.
func NewStaticHost(inv Inventory) *StaticHost {
	hasParent := false
	for _, p := range inv.Processes {
		if p.IsParent {
			hasParent = true
			break
		}
	}
	if !hasParent {
		inv.Processes = append([]ProcessInfo{{ID: 0, IsParent: true}}, inv.Processes...)
	}
	if inv.Device.AppType == "" {
		inv.Device.AppType = "tracebyte"
	}
	return &StaticHost{inv: inv}
}

// LoadInventory reads an inventory file. YAML is a superset of JSON, so
// both formats go through the YAML decoder.
func LoadInventory(path string) (*StaticHost, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read inventory: %w", err)
	}
	var inv Inventory
	if err := yaml.Unmarshal(data, &inv); err != nil {
		return nil, fmt.Errorf("failed to parse inventory: %w", err)
	}
	return NewStaticHost(inv), nil
}

func (h *StaticHost) Device() DeviceInfo { return h.inv.Device }

func (h *StaticHost) Processes() []ProcessInfo { return h.inv.Processes }

func (h *StaticHost) Tabs() []TabInfo { return h.inv.Tabs }

func (h *StaticHost) Workers(processID int) []WorkerInfo {
	var out []WorkerInfo
	for _, w := range h.inv.Workers {
		if w.ProcessID == processID {
			out = append(out, w)
		}
	}
	return out
}

func (h *StaticHost) Registrations() []RegistrationInfo { return h.inv.Registrations }

func (h *StaticHost) Addons() []AddonInfo { return h.inv.Addons }

// parentProcessID returns the id of the parent process
func parentProcessID(h Host) int {
	for _, p := range h.Processes() {
		if p.IsParent {
			return p.ID
		}
	}
	return 0
}
