// Package verify checks stored records against the sink's delivery guarantees.
package verify

import (
	"fmt"
	"sort"

	"github.com/ismaiel54/event-sink/internal/store"
)

// Violation describes one broken guarantee
type Violation struct {
	Kind   string
	Detail string
}

func (v Violation) String() string {
	return fmt.Sprintf("%s: %s", v.Kind, v.Detail)
}

// Violation kinds
const (
	KindDuplicateSource = "duplicate_source"
	KindDuplicateID     = "duplicate_id"
	KindOrdering        = "ordering"
	KindIngestionTime   = "ingestion_time"
)

// Report summarises a verification run
type Report struct {
	Records    int
	Partitions int
	Violations []Violation
}

// OK reports whether no violation was found
func (r Report) OK() bool {
	return len(r.Violations) == 0
}

// Check verifies records as returned by ListRecent (newest first):
//   - each source offset and each id appears once
//   - records are ordered by ingestion time, newest first
//   - within a partition, ingestion time does not decrease along offset order
func Check(records []store.Record) Report {
	report := Report{Records: len(records)}

	sources := make(map[store.SourceOffset]string, len(records))
	ids := make(map[string]store.SourceOffset, len(records))
	partitions := make(map[string][]store.Record)

	for i, rec := range records {
		if prev, ok := sources[rec.Source]; ok {
			report.Violations = append(report.Violations, Violation{
				Kind:   KindDuplicateSource,
				Detail: fmt.Sprintf("%s stored as %s and %s", rec.Source, prev, rec.ID),
			})
		} else {
			sources[rec.Source] = rec.ID
		}

		if prev, ok := ids[rec.ID]; ok {
			report.Violations = append(report.Violations, Violation{
				Kind:   KindDuplicateID,
				Detail: fmt.Sprintf("id %s used by %s and %s", rec.ID, prev, rec.Source),
			})
		} else {
			ids[rec.ID] = rec.Source
		}

		if i > 0 && rec.CreatedAt.After(records[i-1].CreatedAt) {
			report.Violations = append(report.Violations, Violation{
				Kind: KindOrdering,
				Detail: fmt.Sprintf("%s (%d) listed after older %s (%d)",
					rec.Source, rec.CreatedAt.UnixMilli(), records[i-1].Source, records[i-1].CreatedAt.UnixMilli()),
			})
		}

		key := fmt.Sprintf("%s/%d", rec.Source.Topic, rec.Source.Partition)
		partitions[key] = append(partitions[key], rec)
	}

	report.Partitions = len(partitions)

	keys := make([]string, 0, len(partitions))
	for k := range partitions {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, key := range keys {
		recs := partitions[key]
		sort.SliceStable(recs, func(i, j int) bool { return recs[i].Source.Offset < recs[j].Source.Offset })
		for i := 1; i < len(recs); i++ {
			if recs[i].CreatedAt.Before(recs[i-1].CreatedAt) {
				report.Violations = append(report.Violations, Violation{
					Kind: KindIngestionTime,
					Detail: fmt.Sprintf("%s ingested at %d before earlier offset %s at %d",
						recs[i].Source, recs[i].CreatedAt.UnixMilli(), recs[i-1].Source, recs[i-1].CreatedAt.UnixMilli()),
				})
			}
		}
	}

	return report
}
