package msg

import "github.com/twmb/franz-go/pkg/kgo"

// Record represents a consumed Kafka record
type Record struct {
	Topic     string
	Key       string
	Value     []byte
	Partition int32
	Offset    int64
	Timestamp int64

	// raw is the client record used for committing; nil for records that did
	// not come from a kgo client.
	raw *kgo.Record
}

func recordFromKgo(r *kgo.Record) Record {
	return Record{
		Topic:     r.Topic,
		Key:       string(r.Key),
		Value:     r.Value,
		Partition: r.Partition,
		Offset:    r.Offset,
		Timestamp: r.Timestamp.UnixMilli(),
		raw:       r,
	}
}
