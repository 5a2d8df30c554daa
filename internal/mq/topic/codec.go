package topic

import "strings"

// UnknownSegment is written by Decode for tokens the vocabulary does not hold.
const UnknownSegment = "?"

// Codec converts topic names to IDs and back using a Vocabulary.
type Codec struct {
	vocab *Vocabulary
	depth int
}

// NewCodec creates a codec that encodes at most depth levels. Levels past
// depth are not represented. A depth outside 1..MaxDepth selects MaxDepth.
func NewCodec(vocab *Vocabulary, depth int) *Codec {
	if depth <= 0 || depth > MaxDepth {
		depth = MaxDepth
	}
	return &Codec{vocab: vocab, depth: depth}
}

// Vocabulary returns the codec's vocabulary.
func (c *Codec) Vocabulary() *Vocabulary {
	return c.vocab
}

// Depth returns the number of levels the codec encodes.
func (c *Codec) Depth() int {
	return c.depth
}

// Ensure grows the vocabulary with the segments of name.
func (c *Codec) Ensure(name string) error {
	return c.vocab.Ensure(name)
}

// Encode returns the ID of name. Unknown segments encode as Invalid.
func (c *Codec) Encode(name string) ID {
	var id ID
	for i, sp := range Spans(name) {
		if i >= c.depth {
			break
		}
		seg := name[sp.Start:sp.End]
		switch seg {
		case WildcardSingle:
			id[i] = SingleLevel
		case WildcardMulti:
			id[i] = MultiLevel
		default:
			if t, ok := c.vocab.Lookup(seg); ok {
				id[i] = t
			} else {
				id[i] = Invalid
			}
		}
	}
	return id
}

// Decode rebuilds the topic name of id, stopping at the first Unused level.
func (c *Codec) Decode(id ID) string {
	var sb strings.Builder
	for i := 0; i < MaxDepth; i++ {
		t := id[i]
		if t == Unused {
			break
		}
		if i > 0 {
			sb.WriteString(Separator)
		}
		switch t {
		case SingleLevel:
			sb.WriteString(WildcardSingle)
		case MultiLevel:
			sb.WriteString(WildcardMulti)
		default:
			seg, ok := c.vocab.Name(t)
			if !ok {
				seg = UnknownSegment
			}
			sb.WriteString(seg)
		}
	}
	return sb.String()
}
