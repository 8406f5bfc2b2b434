package ingestion

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/rs/zerolog"
	"github.com/tidwall/gjson"

	"solana-slot-sniper/internal/domain"
	"solana-slot-sniper/internal/observability"
)

// ErrMalformedEvent is returned for lines that are not JSON objects.
var ErrMalformedEvent = errors.New("malformed event record")

// maxLineSize bounds a single JSONL record; raw transactions can be large.
const maxLineSize = 8 << 20

// Field aliases accepted by ParseRawEvent, in priority order.
var (
	slotPaths      = []string{"slot", "blockSlot", "firstBlock", "txBlock"}
	kindPaths      = []string{"kind", "event.kind"}
	signaturePaths = []string{"signature", "sourceSignature"}
	authorityPaths = []string{
		"authority", "user", "signature", "sourceSignature",
		"candidateTokens.0.mintAuthority", "candidateTokens.0.authority",
	}
)

// ParseRawEvent decodes one collector record. A record without a usable
// slot decodes with Slot 0; callers decide whether to drop it.
func ParseRawEvent(line []byte) (*domain.RawEvent, error) {
	if !gjson.ValidBytes(line) {
		return nil, ErrMalformedEvent
	}
	rec := gjson.ParseBytes(line)
	if !rec.IsObject() {
		return nil, ErrMalformedEvent
	}

	ev := &domain.RawEvent{
		Kind:      firstString(rec, kindPaths),
		Authority: firstString(rec, authorityPaths),
		Signature: firstString(rec, signaturePaths),
	}
	for _, p := range slotPaths {
		if n := rec.Get(p).Int(); n > 0 {
			ev.Slot = n
			break
		}
	}
	if fm := rec.Get("freshMints"); fm.IsArray() {
		for _, m := range fm.Array() {
			if s := m.String(); s != "" {
				ev.FreshMints = append(ev.FreshMints, s)
			}
		}
	}
	switch logs := rec.Get("sampleLogs"); {
	case logs.IsArray():
		for _, l := range logs.Array() {
			ev.SampleLogs = append(ev.SampleLogs, l.String())
		}
	case logs.Type == gjson.String && logs.Str != "":
		ev.SampleLogs = strings.Split(logs.Str, "\n")
	}
	return ev, nil
}

func firstString(rec gjson.Result, paths []string) string {
	for _, p := range paths {
		if v := rec.Get(p); v.Type == gjson.String && v.Str != "" {
			return v.Str
		}
	}
	return ""
}

// ReadStats summarizes a JSONL read.
type ReadStats struct {
	Lines     int `json:"lines"`
	Malformed int `json:"malformed"`
}

// ReadEvents decodes every record in r, skipping blank and malformed lines.
// Slot-less records are kept.
func ReadEvents(r io.Reader) ([]*domain.RawEvent, ReadStats, error) {
	var (
		events []*domain.RawEvent
		stats  ReadStats
	)
	err := scanLines(r, func(line []byte) bool {
		stats.Lines++
		ev, err := ParseRawEvent(line)
		if err != nil {
			stats.Malformed++
			return true
		}
		events = append(events, ev)
		return true
	})
	return events, stats, err
}

func scanLines(r io.Reader, fn func([]byte) bool) error {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), maxLineSize)
	for sc.Scan() {
		line := sc.Bytes()
		if len(strings.TrimSpace(string(line))) == 0 {
			continue
		}
		if !fn(line) {
			return nil
		}
	}
	return sc.Err()
}

// ReplayOptions configures a ReplaySource. Reader takes precedence over Path.
type ReplayOptions struct {
	Path   string
	Reader io.Reader
	Logger *zerolog.Logger
}

// ReplaySource streams collector JSONL records as raw events.
// Malformed and slot-less records are dropped.
type ReplaySource struct {
	path   string
	reader io.Reader
	logger zerolog.Logger
}

// NewReplaySource creates a new ReplaySource.
func NewReplaySource(opts ReplayOptions) *ReplaySource {
	logger := zerolog.Nop()
	if opts.Logger != nil {
		logger = *opts.Logger
	}
	return &ReplaySource{
		path:   opts.Path,
		reader: opts.Reader,
		logger: logger.With().Str("component", "replay_source").Logger(),
	}
}

// Subscribe implements EventSource. The channel closes at end of input.
func (s *ReplaySource) Subscribe(ctx context.Context) (<-chan *domain.RawEvent, error) {
	r := s.reader
	var closer io.Closer
	if r == nil {
		f, err := os.Open(s.path)
		if err != nil {
			return nil, fmt.Errorf("open replay file: %w", err)
		}
		r, closer = f, f
	}

	out := make(chan *domain.RawEvent, 256)
	go func() {
		defer close(out)
		if closer != nil {
			defer closer.Close()
		}

		var sent, dropped int
		err := scanLines(r, func(line []byte) bool {
			ev, err := ParseRawEvent(line)
			switch {
			case err != nil:
				dropped++
				observability.RecordEventDropped("malformed")
				return true
			case !ev.HasSlot():
				dropped++
				observability.RecordEventDropped("no_slot")
				return true
			}
			select {
			case out <- ev:
				sent++
				return true
			case <-ctx.Done():
				return false
			}
		})
		if err != nil {
			s.logger.Error().Err(err).Msg("replay read failed")
		}
		s.logger.Info().Int("events", sent).Int("dropped", dropped).Msg("replay finished")
	}()
	return out, nil
}
