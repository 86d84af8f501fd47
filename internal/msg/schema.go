package msg

import (
	"fmt"
	"unicode/utf8"
)

// ValidationError reports a payload that cannot be decoded into a record value
type ValidationError struct {
	Topic     string
	Partition int32
	Offset    int64
	Reason    string
	// Err is the underlying cause, if any
	Err error
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid payload at %s/%d@%d: %s", e.Topic, e.Partition, e.Offset, e.Reason)
}

func (e *ValidationError) Unwrap() error {
	return e.Err
}

// Decode returns the record payload as text. Tombstones (nil values) and
// payloads that are not valid UTF-8 are rejected.
func Decode(rec Record) (string, error) {
	if rec.Value == nil {
		return "", &ValidationError{
			Topic: rec.Topic, Partition: rec.Partition, Offset: rec.Offset,
			Reason: "tombstone record has no value",
		}
	}
	if !utf8.Valid(rec.Value) {
		return "", &ValidationError{
			Topic: rec.Topic, Partition: rec.Partition, Offset: rec.Offset,
			Reason: "value is not valid UTF-8",
		}
	}
	return string(rec.Value), nil
}
