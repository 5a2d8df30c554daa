package topic

import (
	"sync"

	"github.com/dshills/topicmq/internal/mq"
)

// DefaultCapacity is the largest vocabulary an 8-bit Token can address once
// the reserved values are set aside.
const DefaultCapacity = MaxTokens - int(Reserved)

// Vocabulary is the append-only table mapping segments to tokens.
// It is safe for concurrent use.
type Vocabulary struct {
	mu       sync.RWMutex
	tokens   []string
	index    map[string]Token
	capacity int
	managed  bool
}

// NewVocabulary creates an auto-managed vocabulary that grows as new
// segments are seen. A capacity <= 0 selects DefaultCapacity.
func NewVocabulary(capacity int) (*Vocabulary, error) {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	if capacity+int(Reserved) > MaxTokens {
		return nil, mq.ErrOutOfBounds
	}
	return &Vocabulary{
		tokens:   make([]string, 0, capacity),
		index:    make(map[string]Token, capacity),
		capacity: capacity,
		managed:  true,
	}, nil
}

// NewPredefinedVocabulary creates a fixed vocabulary from tokens. Segments
// outside it encode as Invalid. Repeated tokens keep their first id.
func NewPredefinedVocabulary(tokens []string) (*Vocabulary, error) {
	if len(tokens)+int(Reserved) > MaxTokens {
		return nil, mq.ErrOutOfBounds
	}
	v := &Vocabulary{
		tokens:   make([]string, 0, len(tokens)),
		index:    make(map[string]Token, len(tokens)),
		capacity: len(tokens),
	}
	for _, tok := range tokens {
		if _, ok := v.index[tok]; ok {
			continue
		}
		v.appendLocked(tok)
	}
	return v, nil
}

// Managed reports whether the vocabulary grows automatically.
func (v *Vocabulary) Managed() bool {
	return v.managed
}

// Ensure adds every unseen, non-wildcard segment of name. Segments added
// before a failure stay in the table. It is a no-op on predefined
// vocabularies.
func (v *Vocabulary) Ensure(name string) error {
	if !v.managed {
		return nil
	}

	v.mu.Lock()
	defer v.mu.Unlock()

	for _, sp := range Spans(name) {
		seg := name[sp.Start:sp.End]
		if seg == WildcardSingle || seg == WildcardMulti {
			continue
		}
		if _, ok := v.index[seg]; ok {
			continue
		}
		if len(v.tokens) >= v.capacity {
			return mq.ErrOutOfMemory
		}
		v.appendLocked(seg)
	}
	return nil
}

func (v *Vocabulary) appendLocked(seg string) {
	v.index[seg] = Token(len(v.tokens) + int(Reserved))
	v.tokens = append(v.tokens, seg)
}

// Lookup returns the token for seg.
func (v *Vocabulary) Lookup(seg string) (Token, bool) {
	v.mu.RLock()
	defer v.mu.RUnlock()

	t, ok := v.index[seg]
	return t, ok
}

// Name returns the segment for a vocabulary token.
func (v *Vocabulary) Name(t Token) (string, bool) {
	v.mu.RLock()
	defer v.mu.RUnlock()

	i := int(t) - int(Reserved)
	if i < 0 || i >= len(v.tokens) {
		return "", false
	}
	return v.tokens[i], true
}

// Len returns the number of segments in the vocabulary.
func (v *Vocabulary) Len() int {
	v.mu.RLock()
	defer v.mu.RUnlock()

	return len(v.tokens)
}

// Cap returns the maximum number of segments.
func (v *Vocabulary) Cap() int {
	return v.capacity
}

// Tokens returns a copy of the segments in id order.
func (v *Vocabulary) Tokens() []string {
	v.mu.RLock()
	defer v.mu.RUnlock()

	out := make([]string, len(v.tokens))
	copy(out, v.tokens)
	return out
}
