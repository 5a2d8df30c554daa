package topic

import (
	"strconv"
	"strings"

	"github.com/dshills/topicmq/internal/mq"
)

// Token is the numeric identifier of one topic segment.
type Token uint8

// Reserved token values.
const (
	// Unused marks a level that is not present; the topic ends before it.
	Unused Token = iota

	// SingleLevel is the "+" wildcard.
	SingleLevel

	// MultiLevel is the "#" wildcard.
	MultiLevel

	// Invalid is a segment that a predefined vocabulary does not know.
	Invalid

	// Reserved is the number of reserved values; vocabulary ids start here.
	Reserved
)

const (
	// MaxTokens is the number of values a Token can hold.
	MaxTokens = 1 << 8

	// MaxDepth is the maximum number of levels an ID can represent.
	MaxDepth = 10

	// Separator delimits topic levels.
	Separator = "/"

	// WildcardSingle matches exactly one level.
	WildcardSingle = "+"

	// WildcardMulti matches the remaining levels.
	WildcardMulti = "#"
)

// ID is the fixed-size encoding of a topic. Slot MaxDepth is always Unused.
// IDs are comparable and can be used as map keys.
type ID [MaxDepth + 1]Token

// Depth returns the number of levels in use.
func (id ID) Depth() int {
	for i, t := range id {
		if t == Unused {
			return i
		}
	}
	return len(id)
}

// WellFormed reports whether all used levels are contiguous from index 0.
func (id ID) WellFormed() bool {
	ended := false
	for _, t := range id {
		if t == Unused {
			ended = true
			continue
		}
		if ended {
			return false
		}
	}
	return true
}

// HasWildcard reports whether the ID contains "+" or "#".
func (id ID) HasWildcard() bool {
	for _, t := range id {
		if t == SingleLevel || t == MultiLevel {
			return true
		}
	}
	return false
}

// Bytes returns the wire representation, one byte per slot.
func (id ID) Bytes() []byte {
	b := make([]byte, len(id))
	for i, t := range id {
		b[i] = byte(t)
	}
	return b
}

// IDFromBytes decodes the wire representation produced by Bytes.
func IDFromBytes(b []byte) (ID, error) {
	var id ID
	if len(b) != len(id) {
		return id, mq.ErrOutOfBounds
	}
	for i, v := range b {
		id[i] = Token(v)
	}
	if id[MaxDepth] != Unused {
		return ID{}, mq.ErrOutOfBounds
	}
	return id, nil
}

// String returns the used slots joined by dots, e.g. "4.1.2".
func (id ID) String() string {
	var sb strings.Builder
	for i := 0; i < id.Depth(); i++ {
		if i > 0 {
			sb.WriteByte('.')
		}
		sb.WriteString(strconv.Itoa(int(id[i])))
	}
	return sb.String()
}

// Segments returns the topic split into levels, following the tokenizer
// rules (leading separator skipped, stops at an empty level).
func Segments(name string) []string {
	spans := Spans(name)
	if len(spans) == 0 {
		return nil
	}
	segs := make([]string, len(spans))
	for i, sp := range spans {
		segs[i] = name[sp.Start:sp.End]
	}
	return segs
}

// Join joins levels into a topic name.
func Join(segments ...string) string {
	return strings.Join(segments, Separator)
}

// IsWildcard reports whether the name contains a "+" or "#" level.
func IsWildcard(name string) bool {
	for _, seg := range Segments(name) {
		if seg == WildcardSingle || seg == WildcardMulti {
			return true
		}
	}
	return false
}

// HasRootToken reports whether name starts with token.
//
// Example: HasRootToken("config/start/A", "config/") -> true
func HasRootToken(name, token string) bool {
	return strings.HasPrefix(name, token)
}

// HasFinalToken reports whether name ends with token.
//
// Example: HasFinalToken("config/start/AB", "/AB") -> true
func HasFinalToken(name, token string) bool {
	return strings.HasSuffix(name, token)
}
