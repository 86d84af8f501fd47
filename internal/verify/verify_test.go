package verify

import (
	"testing"
	"time"

	"github.com/ismaiel54/event-sink/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var base = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

func record(id string, partition int32, offset int64, secs int) store.Record {
	return store.Record{
		ID:        id,
		Value:     id,
		CreatedAt: base.Add(time.Duration(secs) * time.Second),
		Source:    store.SourceOffset{Topic: "test-topic", Partition: partition, Offset: offset},
	}
}

func kinds(r Report) []string {
	out := make([]string, 0, len(r.Violations))
	for _, v := range r.Violations {
		out = append(out, v.Kind)
	}
	return out
}

func TestCheck_Valid(t *testing.T) {
	report := Check([]store.Record{
		record("c", 0, 2, 3),
		record("x", 1, 0, 2),
		record("b", 0, 1, 2),
		record("a", 0, 0, 1),
	})

	assert.True(t, report.OK(), report.Violations)
	assert.Equal(t, 4, report.Records)
	assert.Equal(t, 2, report.Partitions)
}

func TestCheck_Empty(t *testing.T) {
	report := Check(nil)
	assert.True(t, report.OK())
	assert.Zero(t, report.Records)
}

func TestCheck_DuplicateSource(t *testing.T) {
	report := Check([]store.Record{
		record("b", 0, 0, 2),
		record("a", 0, 0, 1),
	})

	require.False(t, report.OK())
	assert.Contains(t, kinds(report), KindDuplicateSource)
}

func TestCheck_DuplicateID(t *testing.T) {
	report := Check([]store.Record{
		record("a", 0, 1, 2),
		record("a", 0, 0, 1),
	})

	assert.Equal(t, []string{KindDuplicateID}, kinds(report))
}

func TestCheck_Ordering(t *testing.T) {
	report := Check([]store.Record{
		record("a", 0, 0, 1),
		record("b", 1, 0, 2),
	})

	assert.Equal(t, []string{KindOrdering}, kinds(report))
}

func TestCheck_IngestionTimeAlongOffsets(t *testing.T) {
	report := Check([]store.Record{
		record("a", 0, 0, 5),
		record("b", 0, 1, 4),
	})

	require.Equal(t, []string{KindIngestionTime}, kinds(report))
	assert.Contains(t, report.Violations[0].String(), "test-topic/0@1")
}
