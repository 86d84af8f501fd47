package msg

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/twmb/franz-go/pkg/kgo"
)

func TestDecode(t *testing.T) {
	tests := []struct {
		name    string
		value   []byte
		want    string
		wantErr string
	}{
		{name: "plain text", value: []byte("hello"), want: "hello"},
		{name: "json text", value: []byte(`{"a":1}`), want: `{"a":1}`},
		{name: "empty payload", value: []byte{}, want: ""},
		{name: "multibyte", value: []byte("héllo ✓"), want: "héllo ✓"},
		{name: "tombstone", value: nil, wantErr: "tombstone"},
		{name: "invalid utf8", value: []byte{0xc3, 0x28}, wantErr: "not valid UTF-8"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Decode(Record{Topic: "t", Partition: 2, Offset: 9, Value: tt.value})
			if tt.wantErr != "" {
				var verr *ValidationError
				require.ErrorAs(t, err, &verr)
				assert.Equal(t, int32(2), verr.Partition)
				assert.Equal(t, int64(9), verr.Offset)
				assert.Contains(t, err.Error(), tt.wantErr)
				assert.Contains(t, err.Error(), "t/2@9")
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestRecordFromKgo(t *testing.T) {
	kr := &kgo.Record{
		Topic:     "orders",
		Key:       []byte("k1"),
		Value:     []byte("v1"),
		Partition: 3,
		Offset:    42,
	}

	r := recordFromKgo(kr)

	assert.Equal(t, "orders", r.Topic)
	assert.Equal(t, "k1", r.Key)
	assert.Equal(t, []byte("v1"), r.Value)
	assert.Equal(t, int32(3), r.Partition)
	assert.Equal(t, int64(42), r.Offset)
	assert.Same(t, kr, r.raw)
}
