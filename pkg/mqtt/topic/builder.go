package topic

import (
	"strings"
)

// MQTT wildcards. Wildcard matches one level (bms/v1/snapshot/+ matches every
// device), MultiWildcard matches the rest of the topic and must come last.
const (
	Wildcard      = "+"
	MultiWildcard = "#"
)

// Builder constructs MQTT topic strings of the form {root}/{segment}/{id}.
// Segments are defined by the consuming application, so the builder stays
// agnostic of any particular topic tree.
type Builder struct {
	// root is the base namespace for all topics (e.g., "bms/v1").
	root string

	// group, when set, prefixes subscriptions with $share/{group}/.
	group string
}

// NewBuilder creates a Builder for the given root namespace. Leading and
// trailing slashes are trimmed.
func NewBuilder(root string) *Builder {
	return &Builder{root: strings.Trim(root, "/")}
}

// Root returns the namespace the builder was created with.
func (b *Builder) Root() string {
	return b.root
}

// Shared returns a copy of the builder that emits shared subscription filters
// for the given consumer group.
func (b *Builder) Shared(group string) *Builder {
	return &Builder{root: b.root, group: group}
}

// Build returns {root}/{segment}/{id}.
func (b *Builder) Build(segment, id string) string {
	return b.prefix() + join(b.root, segment, id)
}

// BuildWildcard returns {root}/{segment}/+, matching the segment for every id.
func (b *Builder) BuildWildcard(segment string) string {
	return b.Build(segment, Wildcard)
}

// All returns {root}/#, matching every topic under the namespace.
func (b *Builder) All() string {
	return b.prefix() + join(b.root, MultiWildcard)
}

func (b *Builder) prefix() string {
	if b.group == "" {
		return ""
	}
	return "$share/" + b.group + "/"
}

func join(parts ...string) string {
	out := parts[:0:0]
	for _, p := range parts {
		if p = strings.Trim(p, "/"); p != "" {
			out = append(out, p)
		}
	}
	return strings.Join(out, "/")
}
