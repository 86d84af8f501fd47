package msg

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseStartPosition(t *testing.T) {
	for in, want := range map[string]StartPosition{
		"":           StartEarliest,
		"earliest":   StartEarliest,
		" EARLIEST ": StartEarliest,
		"committed":  StartCommitted,
		"latest":     StartCommitted,
	} {
		got, err := ParseStartPosition(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}

	_, err := ParseStartPosition("middle")
	assert.Error(t, err)
}

func TestParseValidationPolicy(t *testing.T) {
	p, err := ParseValidationPolicy("")
	require.NoError(t, err)
	assert.Equal(t, ValidationSkip, p)

	p, err = ParseValidationPolicy("Fatal")
	require.NoError(t, err)
	assert.Equal(t, ValidationFatal, p)

	_, err = ParseValidationPolicy("ignore")
	assert.Error(t, err)
}

func TestParseBrokers(t *testing.T) {
	assert.Equal(t, []string{"localhost:9092", "kafka:29092"}, ParseBrokers("localhost:9092, kafka:29092,"))
	assert.Empty(t, ParseBrokers(""))
}

func TestDefaultConsumerConfig(t *testing.T) {
	cfg := DefaultConsumerConfig(DefaultTopic, DefaultGroupID)

	assert.Equal(t, "test-topic", cfg.Topic)
	assert.Equal(t, "test-group", cfg.GroupID)
	assert.Equal(t, ValidationSkip, cfg.ValidationPolicy)
	assert.Positive(t, cfg.Connect.MaxAttempts)
	assert.Positive(t, cfg.Persist.MaxAttempts)
	assert.Less(t, cfg.Persist.InitialInterval, cfg.Persist.MaxInterval)
}
