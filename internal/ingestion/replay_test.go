package ingestion

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"solana-slot-sniper/internal/domain"
)

func TestParseRawEvent_Aliases(t *testing.T) {
	tests := []struct {
		name string
		line string
		want domain.RawEvent
	}{
		{
			name: "collector record",
			line: `{"time":1700000000,"program":"p","signature":"sig1","kind":"InitializeMint","freshMints":["m1","m2"],"sampleLogs":["a","b"],"txBlock":321,"raw":{}}`,
			want: domain.RawEvent{Slot: 321, Kind: "InitializeMint", FreshMints: []string{"m1", "m2"}, Authority: "sig1", Signature: "sig1", SampleLogs: []string{"a", "b"}},
		},
		{
			name: "slot precedence and explicit authority",
			line: `{"slot":5,"blockSlot":6,"authority":"auth","user":"u","kind":"x"}`,
			want: domain.RawEvent{Slot: 5, Kind: "x", Authority: "auth"},
		},
		{
			name: "zero slot falls through",
			line: `{"slot":0,"firstBlock":"77","user":"u"}`,
			want: domain.RawEvent{Slot: 77, Authority: "u"},
		},
		{
			name: "nested kind and candidate authority",
			line: `{"blockSlot":9,"event":{"kind":"create_pool"},"candidateTokens":[{"mintAuthority":"ma"}]}`,
			want: domain.RawEvent{Slot: 9, Kind: "create_pool", Authority: "ma"},
		},
		{
			name: "candidate fallback authority",
			line: `{"slot":9,"candidateTokens":[{"authority":"ca"}]}`,
			want: domain.RawEvent{Slot: 9, Authority: "ca"},
		},
		{
			name: "source signature",
			line: `{"slot":9,"sourceSignature":"ss"}`,
			want: domain.RawEvent{Slot: 9, Authority: "ss", Signature: "ss"},
		},
		{
			name: "string logs",
			line: `{"slot":1,"sampleLogs":"line one\nline two"}`,
			want: domain.RawEvent{Slot: 1, SampleLogs: []string{"line one", "line two"}},
		},
		{
			name: "no slot",
			line: `{"kind":"x","freshMints":["m"]}`,
			want: domain.RawEvent{Kind: "x", FreshMints: []string{"m"}},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ev, err := ParseRawEvent([]byte(tt.line))
			require.NoError(t, err)
			assert.Equal(t, tt.want, *ev)
		})
	}
}

func TestParseRawEvent_Malformed(t *testing.T) {
	for _, line := range []string{`{"slot":`, `[1,2]`, `42`} {
		_, err := ParseRawEvent([]byte(line))
		assert.ErrorIs(t, err, ErrMalformedEvent, line)
	}
}

const sampleJSONL = `{"slot":10,"kind":"a","freshMints":["m1"],"signature":"s1"}

not json
{"kind":"orphan","freshMints":["m2"]}
{"txBlock":11,"kind":"b","freshMints":["m3"],"signature":"s2"}
`

func TestReadEvents(t *testing.T) {
	events, stats, err := ReadEvents(strings.NewReader(sampleJSONL))
	require.NoError(t, err)
	assert.Equal(t, ReadStats{Lines: 4, Malformed: 1}, stats)
	require.Len(t, events, 3, "slot-less records are kept for the experiment")
	assert.False(t, events[1].HasSlot())
}

func TestReplaySource_Subscribe(t *testing.T) {
	src := NewReplaySource(ReplayOptions{Reader: strings.NewReader(sampleJSONL)})
	ch, err := src.Subscribe(context.Background())
	require.NoError(t, err)

	var slots []int64
	for ev := range ch {
		slots = append(slots, ev.Slot)
	}
	assert.Equal(t, []int64{10, 11}, slots)
}

func TestReplaySource_MissingFile(t *testing.T) {
	_, err := NewReplaySource(ReplayOptions{Path: "/nonexistent/events.jsonl"}).Subscribe(context.Background())
	assert.Error(t, err)
}
