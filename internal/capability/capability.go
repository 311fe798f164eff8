// Package capability defines the closed set of discrete permissions a tool
// may require. Adding a capability here forces every consumer (classifier,
// policy engine, config parser) to handle it at compile time.
package capability

import (
	"fmt"
	"sort"
	"strings"
)

// Capability is one discrete permission a tool declares it needs.
type Capability int

const (
	NetworkOutbound Capability = iota
	FilesystemRead
	FilesystemWrite
	ContactsRead
	ContactsWrite
	SmsSend
	CodeExecution
	ModelExecution
	NotificationPost
	ClipboardAccess
	numCapabilities // sentinel, keep last
)

// String returns the stable wire name of the capability.
func (c Capability) String() string {
	switch c {
	case NetworkOutbound:
		return "network_outbound"
	case FilesystemRead:
		return "filesystem_read"
	case FilesystemWrite:
		return "filesystem_write"
	case ContactsRead:
		return "contacts_read"
	case ContactsWrite:
		return "contacts_write"
	case SmsSend:
		return "sms_send"
	case CodeExecution:
		return "code_execution"
	case ModelExecution:
		return "model_execution"
	case NotificationPost:
		return "notification_post"
	case ClipboardAccess:
		return "clipboard_access"
	default:
		return fmt.Sprintf("unknown(%d)", int(c))
	}
}

// Parse resolves a wire name back to a Capability.
func Parse(name string) (Capability, error) {
	for c := Capability(0); c < numCapabilities; c++ {
		if c.String() == name {
			return c, nil
		}
	}
	return 0, fmt.Errorf("unknown capability %q", name)
}

// All returns every defined capability in declaration order.
func All() []Capability {
	out := make([]Capability, 0, int(numCapabilities))
	for c := Capability(0); c < numCapabilities; c++ {
		out = append(out, c)
	}
	return out
}

// Set is an unordered collection of capabilities.
type Set map[Capability]struct{}

// NewSet builds a Set from the given capabilities.
func NewSet(caps ...Capability) Set {
	s := make(Set, len(caps))
	for _, c := range caps {
		s[c] = struct{}{}
	}
	return s
}

// Contains reports whether c is in the set.
func (s Set) Contains(c Capability) bool {
	_, ok := s[c]
	return ok
}

// Add inserts c into the set.
func (s Set) Add(c Capability) {
	s[c] = struct{}{}
}

// Union returns a new set holding every capability in s or other.
func (s Set) Union(other Set) Set {
	out := make(Set, len(s)+len(other))
	for c := range s {
		out[c] = struct{}{}
	}
	for c := range other {
		out[c] = struct{}{}
	}
	return out
}

// Missing returns the capabilities in s that are absent from granted,
// sorted for deterministic output.
func (s Set) Missing(granted Set) []Capability {
	var missing []Capability
	for c := range s {
		if !granted.Contains(c) {
			missing = append(missing, c)
		}
	}
	sort.Slice(missing, func(i, j int) bool { return missing[i] < missing[j] })
	return missing
}

// Sorted returns the set's members in declaration order.
func (s Set) Sorted() []Capability {
	out := make([]Capability, 0, len(s))
	for c := range s {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Clone returns an independent copy of the set.
func (s Set) Clone() Set {
	out := make(Set, len(s))
	for c := range s {
		out[c] = struct{}{}
	}
	return out
}

// Names returns the sorted wire names of the set's members.
func (s Set) Names() []string {
	caps := s.Sorted()
	names := make([]string, len(caps))
	for i, c := range caps {
		names[i] = c.String()
	}
	return names
}

// FormatList joins capability names for display.
func FormatList(caps []Capability) string {
	names := make([]string, len(caps))
	for i, c := range caps {
		names[i] = c.String()
	}
	return strings.Join(names, ", ")
}
