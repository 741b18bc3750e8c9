package kafka

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestReaderConfig_Defaults(t *testing.T) {
	rc := readerConfig(Config{Brokers: []string{"k:9092"}, Topic: "esim.orders", GroupID: "g"})

	assert.Equal(t, 1<<10, rc.MinBytes)
	assert.Equal(t, 10<<20, rc.MaxBytes)
	assert.Equal(t, time.Second, rc.CommitInterval)
	assert.Equal(t, 50*time.Millisecond, rc.MaxWait)
	assert.Equal(t, "esim.orders", rc.Topic)
}

func TestReaderConfig_KeepsExplicitValues(t *testing.T) {
	rc := readerConfig(Config{MinBytes: 10, MaxBytes: 20, CommitInterval: 0, MaxWait: time.Second})

	assert.Equal(t, 10, rc.MinBytes)
	assert.Equal(t, 20, rc.MaxBytes)
	assert.Equal(t, time.Second, rc.MaxWait)
}
