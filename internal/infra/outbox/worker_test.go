package outbox

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClaimer struct {
	mu     sync.Mutex
	queue  []*EventDocument
	sent   []string
	failed map[string]string
}

func (f *fakeClaimer) Claim(context.Context, string) (*EventDocument, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.queue) == 0 {
		return nil, nil
	}
	doc := f.queue[0]
	f.queue = f.queue[1:]
	return doc, nil
}

func (f *fakeClaimer) MarkSent(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, id)
	return nil
}

func (f *fakeClaimer) MarkFailed(_ context.Context, id string, _ time.Time, msg string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failed == nil {
		f.failed = map[string]string{}
	}
	f.failed[id] = msg
	return nil
}

type published struct {
	topic   string
	key     string
	payload []byte
	headers map[string]string
}

type fakeProducer struct {
	out  []published
	fail error
}

func (p *fakeProducer) Publish(_ context.Context, topic, key string, payload []byte, headers map[string]string) error {
	if p.fail != nil {
		return p.fail
	}
	p.out = append(p.out, published{topic: topic, key: key, payload: payload, headers: headers})
	return nil
}

func TestWorkerPublishesCloudEvents(t *testing.T) {
	store := &fakeClaimer{queue: []*EventDocument{
		{ID: "e1", Name: "message.sent", Payload: []byte(`{"MessageID":"m1"}`), Aggregate: "c1", Headers: map[string]string{"source": "test"}},
		{ID: "e2", Name: "conversation.read", Payload: []byte(`{}`), Aggregate: "c1"},
	}}
	producer := &fakeProducer{}
	w := &Worker{Store: store, Producer: producer, TopicPrefix: "learnhub.", ID: "w1"}

	w.drain(context.Background())

	require.Len(t, producer.out, 2)
	first := producer.out[0]
	assert.Equal(t, "learnhub.message.events.v1", first.topic)
	assert.Equal(t, "c1", first.key)
	assert.Equal(t, "application/cloudevents+json", first.headers["content-type"])
	assert.Equal(t, "test", first.headers["source"])
	assert.Equal(t, "learnhub.conversation.events.v1", producer.out[1].topic)

	var evt map[string]any
	require.NoError(t, json.Unmarshal(first.payload, &evt))
	assert.Equal(t, "message.sent.v1", evt["type"])
	assert.Equal(t, "app://learnhub/messenger", evt["source"])
	assert.Equal(t, "m1", evt["data"].(map[string]any)["MessageID"])

	assert.Equal(t, []string{"e1", "e2"}, store.sent)
}

func TestWorkerMarksFailures(t *testing.T) {
	store := &fakeClaimer{queue: []*EventDocument{
		{ID: "bad", Name: "message.sent", Payload: []byte("not json")},
		{ID: "e1", Name: "message.sent", Payload: []byte(`{}`)},
	}}
	producer := &fakeProducer{fail: errors.New("broker down")}
	w := &Worker{Store: store, Producer: producer, Backoff: []time.Duration{time.Second}}

	w.drain(context.Background())

	assert.Empty(t, store.sent)
	assert.Contains(t, store.failed, "bad")
	assert.Equal(t, "broker down", store.failed["e1"])
}

func TestWorkerRetrySchedule(t *testing.T) {
	w := &Worker{Backoff: []time.Duration{time.Second, time.Minute}}
	before := time.Now()
	assert.WithinDuration(t, before.Add(time.Second), w.nextRetry(0), time.Second)
	assert.WithinDuration(t, before.Add(time.Minute), w.nextRetry(5), time.Second)
	assert.WithinDuration(t, before.Add(5*time.Second), (&Worker{}).nextRetry(0), time.Second)

	assert.ErrorIs(t, (&Worker{}).Run(context.Background()), ErrWorkerNotConfigured)
}
