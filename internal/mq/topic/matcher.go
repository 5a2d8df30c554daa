package topic

// Match reports whether a registered ID, which may contain wildcards,
// accepts a published ID. Levels are compared from the root:
//
//   - "#" in the registered ID accepts everything from that level on
//   - when the published topic ends, the registered one must end too
//   - "+" accepts any single published level
//   - any other level must be equal
//
// A published Invalid level is only accepted by a wildcard, so two topics
// unknown to a predefined vocabulary never match each other by accident.
func Match(registered, published ID) bool {
	for i := 0; i < MaxDepth; i++ {
		r, p := registered[i], published[i]

		if r == MultiLevel {
			return true
		}
		if p == Unused {
			return r == Unused
		}
		if r == SingleLevel {
			continue
		}
		if p == Invalid || r != p {
			return false
		}
	}
	return true
}

// Matches reports whether id, as a registered ID, accepts published.
func (id ID) Matches(published ID) bool {
	return Match(id, published)
}
