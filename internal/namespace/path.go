package namespace

import (
	"errors"
	"fmt"
	"strings"
)

// Path is a dot-separated hierarchical namespace, deepest label first
// (role.app.org). Each label is owned by exactly one address at a time;
// ownership of a node implies nothing about its parent or children.
type Path string

const (
	// AnchorRoles and AnchorApps are the reserved child labels that anchor
	// the role and application subtrees of a node.
	AnchorRoles = "roles"
	AnchorApps  = "apps"
)

var ErrInvalidPath = errors.New("invalid namespace path")

// ParsePath validates the label syntax of a dotted namespace path.
func ParsePath(s string) (Path, error) {
	s = strings.TrimSpace(strings.ToLower(s))
	if s == "" {
		return "", ErrInvalidPath
	}
	for _, label := range strings.Split(s, ".") {
		if !validLabel(label) {
			return "", fmt.Errorf("%w: bad label %q", ErrInvalidPath, label)
		}
	}
	return Path(s), nil
}

func validLabel(label string) bool {
	if label == "" {
		return false
	}
	for _, r := range label {
		switch {
		case r >= 'a' && r <= 'z':
		case r >= '0' && r <= '9':
		case r == '-' || r == '_':
		default:
			return false
		}
	}
	return true
}

func (p Path) String() string { return string(p) }

func (p Path) Labels() []string {
	if p == "" {
		return nil
	}
	return strings.Split(string(p), ".")
}

// Label is the node's own (deepest) label.
func (p Path) Label() string {
	if i := strings.IndexByte(string(p), '.'); i >= 0 {
		return string(p)[:i]
	}
	return string(p)
}

// Parent drops the deepest label; the empty path means no parent.
func (p Path) Parent() Path {
	if i := strings.IndexByte(string(p), '.'); i >= 0 {
		return Path(string(p)[i+1:])
	}
	return ""
}

func (p Path) Depth() int {
	if p == "" {
		return 0
	}
	return strings.Count(string(p), ".") + 1
}

// Child prepends a label one level below p.
func (p Path) Child(label string) Path {
	if p == "" {
		return Path(label)
	}
	return Path(label + "." + string(p))
}

func (p Path) RolesAnchor() Path { return p.Child(AnchorRoles) }
func (p Path) AppsAnchor() Path  { return p.Child(AnchorApps) }

// Under reports whether p sits strictly below ancestor.
func (p Path) Under(ancestor Path) bool {
	if ancestor == "" {
		return p != ""
	}
	return strings.HasSuffix(string(p), "."+string(ancestor))
}

// ReservedLabel reports whether label anchors an auxiliary subtree rather
// than naming a dependent application.
func ReservedLabel(label string) bool {
	return label == AnchorRoles || label == AnchorApps
}

// Kind classifies a namespace node.
type Kind int

const (
	KindOrganization Kind = iota
	KindApplication
	KindRole
)

func (k Kind) String() string {
	switch k {
	case KindOrganization:
		return "organization"
	case KindApplication:
		return "application"
	case KindRole:
		return "role"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}
