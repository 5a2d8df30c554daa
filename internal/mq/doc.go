// Package mq holds the types shared by every part of the topicmq broker:
// the result taxonomy, its sentinel errors and the callback handles that
// subscribers, publishers and bridges register with.
//
// # Architecture
//
//	          ┌───────────────────────────┐
//	          │          Client           │
//	          │  - Publish + bridging     │
//	          └───────────────────────────┘
//	                 │              │
//	                 ▼              ▼
//	┌─────────────────────┐  ┌─────────────────────┐
//	│       Broker        │  │   Bridge Manager    │
//	│  - topic registry   │  │  - string patterns  │
//	│  - bounded lock     │  │  - redirects        │
//	└─────────────────────┘  └─────────────────────┘
//	          │
//	          ▼
//	┌─────────────────────┐
//	│     Topic Codec     │
//	│  - vocabulary       │
//	│  - id matcher       │
//	└─────────────────────┘
//
// # Topics
//
// Topics are '/'-delimited names such as "stat/var/0". Subscriptions may use
// two wildcards:
//
//	+   matches exactly one level      (stat/+/0 matches stat/var/0)
//	#   matches the rest of the topic  (stat/# matches stat/a/b/c)
//
// # Handles
//
// Callbacks are registered through handles created with NewSubscriber,
// NewPublisher and NewBridgeHandler. Handles are compared by identity, so
// registering the same handle twice on a topic is reported as ErrExists.
// The broker never owns a handle's lifetime: callers keep their handles for
// as long as they stay registered.
//
// # Delivery
//
// Delivery is synchronous. Subscriber callbacks run in the publisher's
// goroutine after the broker lock has been released, so a callback may
// publish or subscribe again. Slow callbacks still delay the publisher.
// Callbacks are not serialized across publishers: concurrent publishes may
// invoke the same subscriber at the same time.
package mq
