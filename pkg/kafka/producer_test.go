package kafka

import (
	"testing"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeValue(t *testing.T) {
	b, err := encodeValue([]byte("raw"))
	require.NoError(t, err)
	assert.Equal(t, []byte("raw"), b)

	b, err = encodeValue("text")
	require.NoError(t, err)
	assert.Equal(t, []byte("text"), b)

	b, err = encodeValue(map[string]int{"qty": 3})
	require.NoError(t, err)
	assert.JSONEq(t, `{"qty":3}`, string(b))

	_, err = encodeValue(make(chan int))
	assert.Error(t, err)
}

func TestParseCompression(t *testing.T) {
	assert.Equal(t, kafka.Snappy, parseCompression("snappy"))
	assert.Equal(t, kafka.Zstd, parseCompression("zstd"))
	assert.Equal(t, kafka.Gzip, parseCompression("unknown"))
}

func TestNewProducerRequiresBrokers(t *testing.T) {
	_, err := NewProducer()
	assert.Error(t, err)

	p, err := NewProducer(WithBrokers([]string{"localhost:9092"}), WithHashByKey(true))
	require.NoError(t, err)
	_, hashed := p.writer.Balancer.(*kafka.Hash)
	assert.True(t, hashed)
	require.NoError(t, p.Close())
}
