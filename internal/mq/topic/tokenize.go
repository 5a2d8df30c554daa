package topic

import "strings"

// Span is the byte range [Start, End) of one level inside a topic name.
type Span struct {
	Start int
	End   int
}

// Len returns the span length.
func (s Span) Len() int {
	return s.End - s.Start
}

// NextSpan returns the level that starts at from and whether it is the last
// one. A separator at from is skipped. Once from reaches the end of name an
// empty span at len(name) is returned.
func NextSpan(name string, from int) (Span, bool) {
	n := len(name)
	if from >= n {
		return Span{Start: n, End: n}, true
	}
	if name[from] == Separator[0] {
		from++
	}
	end := strings.IndexByte(name[from:], Separator[0])
	if end < 0 {
		return Span{Start: from, End: n}, true
	}
	return Span{Start: from, End: from + end}, false
}

// Spans returns every level of name in order. Tokenization stops at the
// first empty level, so "a///b" yields only "a".
func Spans(name string) []Span {
	var spans []Span
	from := 0
	for {
		sp, last := NextSpan(name, from)
		if sp.Len() == 0 {
			return spans
		}
		spans = append(spans, sp)
		if last {
			return spans
		}
		from = sp.End + 1
	}
}
