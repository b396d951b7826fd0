package kafka

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBackoffWithJitterBounds(t *testing.T) {
	for attempt := 1; attempt <= 40; attempt++ {
		d := backoffWithJitter(100*time.Millisecond, time.Second, attempt)
		assert.Greater(t, d, time.Duration(0))
		assert.LessOrEqual(t, d, time.Second)
	}
	assert.LessOrEqual(t, backoffWithJitter(100*time.Millisecond, time.Second, 1), 100*time.Millisecond)
}

func TestBuildMessagesEncodesValues(t *testing.T) {
	at := time.Unix(1700000000, 0)
	msgs, n, err := buildMessages("signals", []Message{
		{Key: []byte("BTC"), Value: map[string]int{"score": 70}, Headers: map[string]string{"scan_id": "s1"}},
		{Key: []byte("ETH"), Value: "raw"},
	}, at)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.JSONEq(t, `{"score":70}`, string(msgs[0].Value))
	assert.Equal(t, "signals", msgs[0].Topic)
	assert.Equal(t, []kafka.Header{{Key: "scan_id", Value: []byte("s1")}}, msgs[0].Headers)
	assert.Equal(t, "raw", string(msgs[1].Value))
	assert.Equal(t, int64(len(`{"score":70}`)+3), n)

	_, _, err = buildMessages("t", []Message{{Value: make(chan int)}}, at)
	assert.Error(t, err)
}

func TestParseCompression(t *testing.T) {
	assert.Equal(t, kafka.Snappy, parseCompression("snappy"))
	assert.Equal(t, kafka.Zstd, parseCompression("zstd"))
	assert.Equal(t, kafka.Compression(0), parseCompression("none"))
}

func TestNewProducerRequiresBrokers(t *testing.T) {
	_, err := NewProducer()
	assert.Error(t, err)
	p, err := NewProducer(WithBrokers([]string{"localhost:9092"}), WithHashByKey(true))
	require.NoError(t, err)
	assert.NoError(t, p.Close())
}

type countingHandler struct {
	calls int
	err   error
}

func (h *countingHandler) Topic() string { return "scan-requests" }
func (h *countingHandler) Handle(context.Context, []byte) error {
	h.calls++
	return h.err
}

func TestProcessRetriesTransientErrors(t *testing.T) {
	c, err := NewConsumer(WithConsumerBrokers([]string{"localhost:9092"}), WithConsumerRetry(2, time.Millisecond, time.Millisecond))
	require.NoError(t, err)

	h := &countingHandler{err: errors.New("temporary")}
	err = c.process(context.Background(), h, kafka.Message{Topic: "scan-requests"})
	assert.Error(t, err)
	assert.Equal(t, 3, h.calls)

	h = &countingHandler{err: Permanent(errors.New("bad json"))}
	err = c.process(context.Background(), h, kafka.Message{Topic: "scan-requests"})
	var perm *PermanentError
	assert.ErrorAs(t, err, &perm)
	assert.Equal(t, 1, h.calls)
}

type panickingHandler struct{}

func (panickingHandler) Topic() string                        { return "t" }
func (panickingHandler) Handle(context.Context, []byte) error { panic("boom") }

func TestProcessRecoversPanics(t *testing.T) {
	c, err := NewConsumer(WithConsumerBrokers([]string{"localhost:9092"}))
	require.NoError(t, err)
	err = c.process(context.Background(), panickingHandler{}, kafka.Message{Topic: "t"})
	var perm *PermanentError
	assert.ErrorAs(t, err, &perm)
}

func TestStartRequiresHandlers(t *testing.T) {
	c, err := NewConsumer(WithConsumerBrokers([]string{"localhost:9092"}))
	require.NoError(t, err)
	assert.Error(t, c.Start(context.Background()))
}

func TestAsyncProducerCountsDeliveryFailures(t *testing.T) {
	plain, err := NewProducer(WithBrokers([]string{"localhost:9092"}))
	require.NoError(t, err)
	assert.False(t, plain.writer.Async)
	assert.Nil(t, plain.writer.Completion)
	require.NoError(t, plain.Close())

	p, err := NewProducer(WithBrokers([]string{"localhost:9092"}), WithAsync(true), WithHashByKey(true))
	require.NoError(t, err)
	defer p.Close()
	require.True(t, p.writer.Async)
	require.NotNil(t, p.writer.Completion)
	assert.IsType(t, &kafka.Hash{}, p.writer.Balancer)

	errs := producerErrsTotal.WithLabelValues("signals-async")
	before := testutil.ToFloat64(errs)
	msgs := []kafka.Message{{Topic: "signals-async", Key: []byte("BTC")}, {Topic: "signals-async", Key: []byte("ETH")}}
	p.writer.Completion(msgs, nil)
	assert.Equal(t, before, testutil.ToFloat64(errs))
	p.writer.Completion(msgs, errors.New("broker down"))
	assert.Equal(t, before+1, testutil.ToFloat64(errs))
	assert.Equal(t, 2.0, testutil.ToFloat64(producerMsgsTotal.WithLabelValues("signals-async", "snappy", "async_error")))
}
