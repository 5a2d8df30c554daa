package client

import (
	"context"
	"errors"
	"reflect"
	"sync"
	"testing"

	"go.uber.org/goleak"

	"github.com/dshills/topicmq/internal/mq"
	"github.com/dshills/topicmq/internal/mq/bridge"
	"github.com/dshills/topicmq/internal/mq/broker"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func newTestClient(t *testing.T, opts ...Option) *Client {
	t.Helper()
	b := broker.New()
	if err := b.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	return New(b, opts...)
}

type inbox struct {
	mu  sync.Mutex
	got []string
}

func (in *inbox) subscriber() *mq.Subscriber {
	return mq.NewSubscriber(func(name string, payload []byte) {
		in.mu.Lock()
		defer in.mu.Unlock()
		in.got = append(in.got, name+"="+string(payload))
	})
}

func (in *inbox) messages() []string {
	in.mu.Lock()
	defer in.mu.Unlock()
	return append([]string(nil), in.got...)
}

func TestClient_BridgeRedirection(t *testing.T) {
	c := newTestClient(t)
	ctx := context.Background()

	in := &inbox{}
	sub := in.subscriber()
	_ = c.Subscribe(ctx, "topic/dato1", sub)
	_ = c.Subscribe(ctx, "topic/dato2", sub)

	fired := map[string]int{}
	redirect := func(to string) *mq.BridgeHandler {
		return mq.NewBridgeHandler(func(ctx context.Context, name string, payload []byte, pub *mq.Publisher) {
			fired[to]++
			if err := c.Publish(ctx, to, payload, pub); err != nil {
				t.Errorf("redirect to %s failed: %v", to, err)
			}
		})
	}
	h1, h2 := redirect("topic/dato1"), redirect("topic/dato2")

	if err := c.AddBridge("topic/bridge", h1); err != nil {
		t.Fatalf("AddBridge failed: %v", err)
	}
	if err := c.AddBridge("topic/bridge", h2); err != nil {
		t.Fatalf("AddBridge failed: %v", err)
	}

	value := []byte{0x01, 0x02, 0x03, 0x04}
	if err := c.Publish(ctx, "topic/bridge", value, nil); err != nil {
		t.Fatalf("Publish failed: %v", err)
	}

	if fired["topic/dato1"] != 1 || fired["topic/dato2"] != 1 {
		t.Errorf("bridge handlers fired %v, expected once each", fired)
	}
	expected := []string{
		"topic/dato1=" + string(value),
		"topic/dato2=" + string(value),
	}
	if !reflect.DeepEqual(in.messages(), expected) {
		t.Errorf("deliveries = %q, expected %q", in.messages(), expected)
	}

	if err := c.RemoveBridge("topic/bridge", h1); err != nil {
		t.Errorf("RemoveBridge failed: %v", err)
	}
	if err := c.RemoveBridge("topic/bridge", h2); err != nil {
		t.Errorf("RemoveBridge failed: %v", err)
	}
	if err := c.RemoveBridge("topic/bridge", h2); !errors.Is(err, mq.ErrNotFound) {
		t.Errorf("second RemoveBridge = %v, expected ErrNotFound", err)
	}
	if len(c.Bridges().Patterns()) != 0 {
		t.Error("bridges left after removal")
	}
}

func TestClient_BridgeWithoutSubscribers(t *testing.T) {
	c := newTestClient(t)
	ctx := context.Background()

	fired := 0
	_ = c.AddBridge("lonely/#", mq.NewBridgeHandler(func(context.Context, string, []byte, *mq.Publisher) {
		fired++
	}))

	var result mq.Result
	pub := mq.NewPublisher(func(_ string, res mq.Result) { result = res })
	if err := c.Publish(ctx, "lonely/topic", nil, pub); err != nil {
		t.Fatalf("Publish failed: %v", err)
	}
	if fired != 1 {
		t.Errorf("bridge fired %d times, expected 1", fired)
	}
	if result != mq.NotFound {
		t.Errorf("publisher result = %v, expected not found", result)
	}
}

func TestClient_BridgeSkippedOnError(t *testing.T) {
	c := newTestClient(t)
	ctx := context.Background()

	fired := 0
	_ = c.AddBridge("#", mq.NewBridgeHandler(func(context.Context, string, []byte, *mq.Publisher) {
		fired++
	}))

	long := make([]byte, c.MaxTopicLen())
	for i := range long {
		long[i] = 'a'
	}
	if err := c.Publish(ctx, string(long), nil, nil); !errors.Is(err, mq.ErrOutOfBounds) {
		t.Fatalf("Publish = %v, expected ErrOutOfBounds", err)
	}
	if fired != 0 {
		t.Error("bridges must not run for a rejected publish")
	}
}

func TestClient_Republish(t *testing.T) {
	c := newTestClient(t)
	ctx := context.Background()
	in := &inbox{}
	_ = c.Subscribe(ctx, "r", in.subscriber())

	fired := 0
	_ = c.AddBridge("r", mq.NewBridgeHandler(func(context.Context, string, []byte, *mq.Publisher) {
		fired++
	}))

	if err := c.Republish(ctx, "r", []byte("x"), nil); err != nil {
		t.Fatalf("Republish failed: %v", err)
	}
	if fired != 0 {
		t.Error("Republish must not dispatch bridges")
	}
	if len(in.messages()) != 1 {
		t.Errorf("deliveries = %q", in.messages())
	}
}

func TestClient_RedirectLimit(t *testing.T) {
	c := newTestClient(t, WithMaxRedirects(8))
	ctx := context.Background()

	calls := 0
	var failures []error
	_ = c.AddBridge("loop", mq.NewBridgeHandler(func(ctx context.Context, name string, payload []byte, _ *mq.Publisher) {
		calls++
		if err := c.Publish(ctx, name, payload, nil); err != nil {
			failures = append(failures, err)
		}
	}))

	if err := c.Publish(ctx, "loop", nil, nil); err != nil {
		t.Fatalf("Publish failed: %v", err)
	}
	if calls != 9 {
		t.Errorf("bridge ran %d times, expected 9", calls)
	}
	if len(failures) != 1 || !errors.Is(failures[0], mq.ErrOutOfBounds) {
		t.Errorf("failures = %v, expected a single ErrOutOfBounds", failures)
	}
	if got := c.Broker().Stats().Published; got != 9 {
		t.Errorf("broker published %d, expected 9", got)
	}
}

func TestClient_Redirector(t *testing.T) {
	c := newTestClient(t)
	ctx := context.Background()
	in := &inbox{}
	_ = c.Subscribe(ctx, "to/here", in.subscriber())

	r := bridge.NewRedirector(c.Bridges(), c)
	if err := r.Add("from/+", "to/here"); err != nil {
		t.Fatalf("Add failed: %v", err)
	}
	_ = c.Publish(ctx, "from/there", []byte("moved"), nil)

	if got := in.messages(); !reflect.DeepEqual(got, []string{"to/here=moved"}) {
		t.Errorf("deliveries = %q", got)
	}
}

func TestClient_Passthrough(t *testing.T) {
	c := newTestClient(t)
	ctx := context.Background()
	sub := (&inbox{}).subscriber()

	if err := c.Subscribe(ctx, "stat/var/0", sub); err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}
	if !c.Exists("stat/var/0") || c.Exists("stat/var") {
		t.Error("Exists must compare exact names")
	}
	id, err := c.TopicID("stat/var/0")
	if err != nil {
		t.Fatalf("TopicID failed: %v", err)
	}
	if name, _ := c.TopicName(id); name != "stat/var/0" {
		t.Errorf("TopicName = %q", name)
	}
	if !reflect.DeepEqual(c.Tokens(), []string{"stat", "var", "0"}) {
		t.Errorf("Tokens() = %q", c.Tokens())
	}
	if c.MaxTopicLen() != 64 {
		t.Errorf("MaxTopicLen() = %d", c.MaxTopicLen())
	}
	if err := c.Unsubscribe(ctx, "stat/var/0", sub); err != nil {
		t.Errorf("Unsubscribe failed: %v", err)
	}
}
