package msg

import (
	"fmt"
	"strings"
	"time"
)

// Defaults matching the demo broker setup
const (
	DefaultTopic    = "test-topic"
	DefaultGroupID  = "test-group"
	DefaultClientID = "my-app"
)

// StartPosition selects where a group without a committed offset begins
type StartPosition string

const (
	// StartEarliest reads from the beginning of each partition when the
	// group has no commit, and from the commit otherwise.
	StartEarliest StartPosition = "earliest"
	// StartCommitted resumes from the group commit and otherwise only sees
	// messages produced after subscribing.
	StartCommitted StartPosition = "committed"
)

// ParseStartPosition validates a configured start position
func ParseStartPosition(s string) (StartPosition, error) {
	switch StartPosition(strings.ToLower(strings.TrimSpace(s))) {
	case StartEarliest, "":
		return StartEarliest, nil
	case StartCommitted, "latest":
		return StartCommitted, nil
	default:
		return "", fmt.Errorf("unknown start position %q", s)
	}
}

// ValidationPolicy decides what happens to records whose payload cannot be decoded
type ValidationPolicy string

const (
	// ValidationSkip logs the record, commits past it and continues
	ValidationSkip ValidationPolicy = "skip"
	// ValidationFatal stops the consumer with the validation error
	ValidationFatal ValidationPolicy = "fatal"
)

// ParseValidationPolicy validates a configured policy
func ParseValidationPolicy(s string) (ValidationPolicy, error) {
	switch ValidationPolicy(strings.ToLower(strings.TrimSpace(s))) {
	case ValidationSkip, "":
		return ValidationSkip, nil
	case ValidationFatal:
		return ValidationFatal, nil
	default:
		return "", fmt.Errorf("unknown validation policy %q", s)
	}
}

// KafkaConfig holds broker connection settings
type KafkaConfig struct {
	Brokers       []string
	ClientID      string
	Topic         string
	GroupID       string
	StartPosition StartPosition
}

// Backoff describes a bounded exponential retry schedule
type Backoff struct {
	InitialInterval time.Duration
	MaxInterval     time.Duration
	MaxAttempts     int
}

// ConsumerConfig holds StreamConsumer settings
type ConsumerConfig struct {
	Topic            string
	GroupID          string
	Connect          Backoff
	Persist          Backoff
	ValidationPolicy ValidationPolicy
	StatsInterval    time.Duration
}

// DefaultConsumerConfig returns production defaults for topic and group
func DefaultConsumerConfig(topic, group string) ConsumerConfig {
	return ConsumerConfig{
		Topic:   topic,
		GroupID: group,
		Connect: Backoff{
			InitialInterval: 500 * time.Millisecond,
			MaxInterval:     30 * time.Second,
			MaxAttempts:     10,
		},
		Persist: Backoff{
			InitialInterval: 100 * time.Millisecond,
			MaxInterval:     10 * time.Second,
			MaxAttempts:     8,
		},
		ValidationPolicy: ValidationSkip,
		StatsInterval:    30 * time.Second,
	}
}

// ParseBrokers splits a comma separated broker list
func ParseBrokers(s string) []string {
	brokers := make([]string, 0)
	for _, b := range strings.Split(s, ",") {
		if b = strings.TrimSpace(b); b != "" {
			brokers = append(brokers, b)
		}
	}
	return brokers
}
