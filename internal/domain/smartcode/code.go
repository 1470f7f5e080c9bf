package smartcode

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/erp/platform/internal/domain/shared"
)

// Grammar limits
const (
	MinNamespaceSegments = 4
	MaxNamespaceSegments = 10
	MaxLength            = 200
)

var (
	segmentPattern = regexp.MustCompile(`^[A-Z0-9][A-Z0-9_]*$`)
	versionPattern = regexp.MustCompile(`^v([1-9][0-9]*)$`)
)

// Code is a parsed smart code: uppercase namespace segments followed by a version marker
type Code struct {
	Segments []string
	Version  int
}

// Key is the comparable form of a Code
type Key struct {
	Namespace string
	Version   int
}

// Parse parses s under the smart code grammar without consulting the registry
func Parse(s string) (Code, error) {
	if s == "" {
		return Code{}, formatError(s, "smart code is empty")
	}
	if len(s) > MaxLength {
		return Code{}, formatError(s, "smart code exceeds "+strconv.Itoa(MaxLength)+" characters")
	}
	parts := strings.Split(s, ".")
	last := parts[len(parts)-1]
	m := versionPattern.FindStringSubmatch(last)
	if m == nil {
		return Code{}, formatError(s, "smart code must end in a version marker vN")
	}
	version, err := strconv.Atoi(m[1])
	if err != nil {
		return Code{}, formatError(s, "version is not numeric")
	}
	segments := parts[:len(parts)-1]
	if len(segments) < MinNamespaceSegments {
		return Code{}, formatError(s, "smart code needs at least "+strconv.Itoa(MinNamespaceSegments)+" namespace segments")
	}
	if len(segments) > MaxNamespaceSegments {
		return Code{}, formatError(s, "smart code has more than "+strconv.Itoa(MaxNamespaceSegments)+" namespace segments")
	}
	for _, seg := range segments {
		if !segmentPattern.MatchString(seg) {
			return Code{}, formatError(s, "segment "+strconv.Quote(seg)+" is not an uppercase identifier")
		}
	}
	out := make([]string, len(segments))
	copy(out, segments)
	return Code{Segments: out, Version: version}, nil
}

// MustParse parses s and panics on error
func MustParse(s string) Code {
	c, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return c
}

// String reassembles the code; Parse(c.String()) round-trips exactly
func (c Code) String() string {
	return c.Namespace() + ".v" + strconv.Itoa(c.Version)
}

// Namespace returns the dotted namespace without the version
func (c Code) Namespace() string {
	return strings.Join(c.Segments, ".")
}

// Root returns the first namespace segment
func (c Code) Root() string {
	if len(c.Segments) == 0 {
		return ""
	}
	return c.Segments[0]
}

// Key returns the comparable key of the code
func (c Code) Key() Key {
	return Key{Namespace: c.Namespace(), Version: c.Version}
}

// HasPrefix reports whether the namespace starts with prefix on a segment boundary
func (c Code) HasPrefix(prefix string) bool {
	ns := c.Namespace()
	return ns == prefix || strings.HasPrefix(ns, prefix+".")
}

// ValidPrefix reports whether p is a dotted sequence of uppercase segments
func ValidPrefix(p string) bool {
	if p == "" {
		return false
	}
	for _, seg := range strings.Split(p, ".") {
		if !segmentPattern.MatchString(seg) {
			return false
		}
	}
	return true
}

func formatError(code, reason string) *shared.DomainError {
	return shared.NewValidationError(shared.CodeInvalidFormat, "invalid smart code: "+reason, shared.Violation{
		Rule:     "smart_code",
		Code:     shared.CodeInvalidFormat,
		Field:    "smart_code",
		Message:  reason,
		Value:    code,
		Expected: "DOMAIN.MODULE.CATEGORY.SUBTYPE.vN",
	})
}
