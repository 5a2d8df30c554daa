package topic

import (
	"errors"
	"testing"

	"github.com/dshills/topicmq/internal/mq"
)

func newTestCodec(t *testing.T, names ...string) *Codec {
	t.Helper()
	v, err := NewVocabulary(DefaultCapacity)
	if err != nil {
		t.Fatalf("NewVocabulary failed: %v", err)
	}
	c := NewCodec(v, MaxDepth)
	for _, name := range names {
		if err := c.Ensure(name); err != nil {
			t.Fatalf("Ensure(%q) failed: %v", name, err)
		}
	}
	return c
}

func TestCodec_RoundTrip(t *testing.T) {
	names := []string{
		"stat/var/0",
		"cmd/cfg/par/2",
		"set/value/at/var/2",
		"stat/+/#",
		"#",
		"+/var",
		"a/b/c/d/e/f/g/h/i/j",
	}
	c := newTestCodec(t, names...)

	for _, name := range names {
		t.Run(name, func(t *testing.T) {
			id := c.Encode(name)
			if !id.WellFormed() {
				t.Fatalf("Encode(%q) = %v is not well formed", name, id)
			}
			if got := c.Decode(id); got != name {
				t.Errorf("Decode(Encode(%q)) = %q", name, got)
			}
		})
	}
}

func TestCodec_DecodeIdempotent(t *testing.T) {
	c := newTestCodec(t, "stat/var/0")

	for _, name := range []string{"/stat/var/0", "stat/var/0/", "stat//var"} {
		once := c.Decode(c.Encode(name))
		twice := c.Decode(c.Encode(once))
		if once != twice {
			t.Errorf("%q: decode(encode) not idempotent: %q != %q", name, once, twice)
		}
	}
}

func TestCodec_Encode(t *testing.T) {
	c := newTestCodec(t, "stat/var/0")

	id := c.Encode("stat/+/#")
	expected := ID{Reserved, SingleLevel, MultiLevel}
	if id != expected {
		t.Errorf("Encode(stat/+/#) = %v, expected %v", id, expected)
	}
	if !id.HasWildcard() {
		t.Error("expected HasWildcard")
	}
	if id.Depth() != 3 {
		t.Errorf("Depth() = %d", id.Depth())
	}
	if s := id.String(); s != "4.1.2" {
		t.Errorf("String() = %q", s)
	}
}

func TestCodec_Truncation(t *testing.T) {
	long := "a/b/c/d/e/f/g/h/i/j/k/l"
	c := newTestCodec(t, long)

	id := c.Encode(long)
	if id.Depth() != MaxDepth {
		t.Errorf("Depth() = %d, expected %d", id.Depth(), MaxDepth)
	}
	if id[MaxDepth] != Unused {
		t.Error("terminator slot must stay Unused")
	}
	if got := c.Decode(id); got != "a/b/c/d/e/f/g/h/i/j" {
		t.Errorf("Decode = %q", got)
	}

	shallow := NewCodec(c.Vocabulary(), 2)
	if shallow.Depth() != 2 {
		t.Fatalf("Depth() = %d", shallow.Depth())
	}
	if got := shallow.Decode(shallow.Encode("a/b/c")); got != "a/b" {
		t.Errorf("depth-2 round trip = %q", got)
	}
	if NewCodec(c.Vocabulary(), 99).Depth() != MaxDepth {
		t.Error("out of range depth should select MaxDepth")
	}
}

func TestCodec_PredefinedUnknown(t *testing.T) {
	v, err := NewPredefinedVocabulary([]string{"stat", "var"})
	if err != nil {
		t.Fatalf("NewPredefinedVocabulary failed: %v", err)
	}
	c := NewCodec(v, 0)

	id := c.Encode("stat/other")
	if id[1] != Invalid {
		t.Errorf("id[1] = %d, expected Invalid", id[1])
	}
	if got := c.Decode(id); got != "stat/"+UnknownSegment {
		t.Errorf("Decode = %q", got)
	}
}

func TestID_Bytes(t *testing.T) {
	c := newTestCodec(t, "stat/var/0")
	id := c.Encode("stat/var/0")

	b := id.Bytes()
	if len(b) != MaxDepth+1 {
		t.Fatalf("len(Bytes()) = %d", len(b))
	}
	back, err := IDFromBytes(b)
	if err != nil || back != id {
		t.Errorf("IDFromBytes = %v, %v", back, err)
	}

	if _, err := IDFromBytes(b[:3]); !errors.Is(err, mq.ErrOutOfBounds) {
		t.Errorf("short input error = %v", err)
	}
	b[MaxDepth] = 7
	if _, err := IDFromBytes(b); !errors.Is(err, mq.ErrOutOfBounds) {
		t.Errorf("non-terminated input error = %v", err)
	}
}

func TestID_WellFormed(t *testing.T) {
	if !(ID{}).WellFormed() {
		t.Error("empty ID is well formed")
	}
	gap := ID{Reserved, Unused, Reserved}
	if gap.WellFormed() {
		t.Error("ID with a gap must not be well formed")
	}
}
