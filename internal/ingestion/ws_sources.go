package ingestion

import (
	"context"
	"strings"
	"sync"
	"unicode"

	"github.com/rs/zerolog"

	"solana-slot-sniper/internal/domain"
	"solana-slot-sniper/internal/ledger"
	"solana-slot-sniper/internal/observability"
	"solana-slot-sniper/internal/solana"
)

const (
	systemProgramID        = "11111111111111111111111111111111"
	computeBudgetProgramID = "ComputeBudget111111111111111111111111111111"

	instructionPrefix = "Instruction: "
	defaultKind       = "logs"
)

// builtinPrograms are never fresh mints.
var builtinPrograms = map[string]bool{
	systemProgramID:                 true,
	computeBudgetProgramID:          true,
	solana.TokenProgramID:           true,
	solana.Token2022ProgramID:       true,
	solana.AssociatedTokenProgramID: true,
	solana.MetaplexProgramID:        true,
	solana.RaydiumAMMV4ProgramID:    true,
	solana.OrcaWhirlpoolProgramID:   true,
	solana.JupiterV6ProgramID:       true,
}

// WSOptions configures a WSEventSource.
type WSOptions struct {
	Programs      []string // one logsSubscribe per program
	MaxFreshMints int      // default ledger.DefaultMaxFreshMints
	BufferSize    int      // default 256
	Logger        *zerolog.Logger
}

// WSEventSource turns live logsSubscribe notifications into raw events.
type WSEventSource struct {
	ws       solana.WSClient
	programs []string
	maxFresh int
	buffer   int
	skip     map[string]bool
	logger   zerolog.Logger
}

// NewWSEventSource creates a new WebSocket-based event source.
func NewWSEventSource(ws solana.WSClient, opts WSOptions) *WSEventSource {
	if opts.MaxFreshMints <= 0 {
		opts.MaxFreshMints = ledger.DefaultMaxFreshMints
	}
	if opts.BufferSize <= 0 {
		opts.BufferSize = 256
	}
	logger := zerolog.Nop()
	if opts.Logger != nil {
		logger = *opts.Logger
	}

	skip := make(map[string]bool, len(builtinPrograms)+len(opts.Programs))
	for k := range builtinPrograms {
		skip[k] = true
	}
	for _, p := range opts.Programs {
		skip[p] = true
	}

	return &WSEventSource{
		ws:       ws,
		programs: opts.Programs,
		maxFresh: opts.MaxFreshMints,
		buffer:   opts.BufferSize,
		skip:     skip,
		logger:   logger.With().Str("component", "ws_source").Logger(),
	}
}

// Subscribe implements EventSource.
// Some providers only accept one address per subscription, so each program
// gets its own and the notification channels are merged.
func (s *WSEventSource) Subscribe(ctx context.Context) (<-chan *domain.RawEvent, error) {
	var logsChannels []<-chan solana.LogNotification
	if len(s.programs) == 0 {
		ch, err := s.ws.SubscribeLogs(ctx, solana.LogsFilter{})
		if err != nil {
			return nil, err
		}
		logsChannels = append(logsChannels, ch)
	}
	for _, program := range s.programs {
		ch, err := s.ws.SubscribeLogs(ctx, solana.LogsFilter{Mentions: []string{program}})
		if err != nil {
			return nil, err
		}
		logsChannels = append(logsChannels, ch)
		s.logger.Info().Str("program", program).Msg("subscribed to program logs")
	}

	eventsCh := make(chan *domain.RawEvent, s.buffer)
	merged := make(chan solana.LogNotification, s.buffer)

	var wg sync.WaitGroup
	for _, ch := range logsChannels {
		wg.Add(1)
		go func(logsCh <-chan solana.LogNotification) {
			defer wg.Done()
			for notif := range logsCh {
				select {
				case merged <- notif:
				case <-ctx.Done():
					return
				}
			}
		}(ch)
	}
	go func() {
		wg.Wait()
		close(merged)
	}()

	go func() {
		defer close(eventsCh)
		for {
			select {
			case <-ctx.Done():
				return
			case notif, ok := <-merged:
				if !ok {
					s.logger.Warn().Msg("log subscriptions closed")
					return
				}
				ev := s.toRawEvent(notif)
				if ev == nil {
					continue
				}
				select {
				case eventsCh <- ev:
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	return eventsCh, nil
}

// toRawEvent maps one notification. Failed transactions and notifications
// without a slot yield nil.
func (s *WSEventSource) toRawEvent(n solana.LogNotification) *domain.RawEvent {
	if n.Err != nil {
		observability.RecordEventDropped("tx_failed")
		return nil
	}
	if n.Slot <= 0 {
		observability.RecordEventDropped("no_slot")
		return nil
	}
	ev := &domain.RawEvent{
		Slot:       n.Slot,
		Kind:       instructionKind(n.Logs),
		FreshMints: extractMints(n.Logs, s.skip, s.maxFresh),
		Authority:  n.Signature,
		Signature:  n.Signature,
		SampleLogs: n.Logs,
	}
	s.logger.Debug().
		Int64("slot", ev.Slot).
		Str("kind", ev.Kind).
		Int("fresh_mints", len(ev.FreshMints)).
		Msg("log notification")
	return ev
}

// instructionKind returns the name of the first "Instruction: X" log line.
func instructionKind(logs []string) string {
	for _, line := range logs {
		i := strings.Index(line, instructionPrefix)
		if i < 0 {
			continue
		}
		if f := strings.Fields(line[i+len(instructionPrefix):]); len(f) > 0 {
			return f[0]
		}
	}
	return defaultKind
}

// extractMints collects distinct address-like tokens from logs in order of
// appearance, skipping known programs.
func extractMints(logs []string, skip map[string]bool, limit int) []string {
	seen := make(map[string]bool)
	var out []string
	for _, line := range logs {
		tokens := strings.FieldsFunc(line, func(r rune) bool {
			return r > unicode.MaxASCII || !(unicode.IsLetter(r) || unicode.IsDigit(r))
		})
		for _, tok := range tokens {
			if seen[tok] || skip[tok] || !ledger.IsAddress(tok) {
				continue
			}
			seen[tok] = true
			out = append(out, tok)
			if len(out) >= limit {
				return out
			}
		}
	}
	return out
}
