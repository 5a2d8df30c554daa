// Package topic encodes hierarchical topic names into fixed-size numeric
// identifiers and matches them against each other.
//
// # Topic Format
//
// Topics are '/'-delimited names. A leading separator is ignored:
//
//	stat/var/0
//	/move/stop
//	cmd/cfg/par/2
//
// # Identifiers
//
// Every distinct segment is assigned a small integer token from a shared
// Vocabulary. An ID holds one token per level, so comparing two topics costs
// at most MaxDepth byte comparisons regardless of name length:
//
//	vocabulary: stat=4 var=5 0=6
//	stat/var/0  -> [4 5 6 0 0 0 0 0 0 0 0]
//	stat/+/#    -> [4 1 2 0 0 0 0 0 0 0 0]
//
// Tokens 0..3 are reserved: Unused (level not present), SingleLevel ("+"),
// MultiLevel ("#") and Invalid (segment missing from a predefined vocabulary).
//
// # Wildcards
//
// Wildcards are only meaningful in registered (subscription) identifiers:
//
//   - "+" matches exactly one level
//   - "#" matches the remainder of the topic, at any depth
//
// Examples:
//
//	stat/+/+/+   matches stat/all/vars/done (not stat/all/vars)
//	stat/#       matches stat/anything/at/any/depth
//	#            matches every topic
//
// # Usage
//
//	vocab, _ := topic.NewVocabulary(topic.DefaultCapacity)
//	codec := topic.NewCodec(vocab, topic.MaxDepth)
//	_ = codec.Ensure("stat/var/0")
//	if topic.Match(codec.Encode("stat/#"), codec.Encode("stat/var/0")) {
//	    // deliver
//	}
package topic
