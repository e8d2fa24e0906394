package market

import (
	"time"

	"github.com/rs/zerolog"
)

type EventType string

const (
	EventMarketCreated  EventType = "market_created"
	EventTrade          EventType = "trade"
	EventMarketResolved EventType = "market_resolved"
	EventPayout         EventType = "payout"
	EventWithdrawal     EventType = "withdrawal"
)

// Event is a structured notification emitted after a state change commits.
// Quantities are decimal strings so sinks can forward them without caring
// about the fixed-point representation. The engine never reads events back.
type Event struct {
	Type     EventType `json:"type"`
	MarketID uint64    `json:"market_id"`
	Question string    `json:"question,omitempty"`
	Account  string    `json:"account,omitempty"`
	Option   int       `json:"option"`
	Side     string    `json:"side,omitempty"`
	Tokens   string    `json:"tokens,omitempty"`
	Amount   string    `json:"amount,omitempty"`
	At       time.Time `json:"at"`
}

// EventSink consumes engine events for observability.
type EventSink interface {
	Publish(ev Event)
}

// LogSink writes events to a zerolog logger.
type LogSink struct {
	Log zerolog.Logger
}

func (s LogSink) Publish(ev Event) {
	s.Log.Info().
		Str("type", string(ev.Type)).
		Uint64("marketID", ev.MarketID).
		Str("account", ev.Account).
		Int("option", ev.Option).
		Str("side", ev.Side).
		Str("tokens", ev.Tokens).
		Str("amount", ev.Amount).
		Msg("market-event")
}

// MultiSink fans one event out to several sinks.
type MultiSink []EventSink

func (m MultiSink) Publish(ev Event) {
	for _, s := range m {
		s.Publish(ev)
	}
}

// NopSink discards events.
type NopSink struct{}

func (NopSink) Publish(Event) {}
