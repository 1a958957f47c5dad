// Package feed turns raw Kraken private-feed messages into calls against
// the order manager. All positional destructuring of the wire envelope
// happens in ParseEnvelope; nothing loosely typed crosses that boundary.
package feed

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"krakenOrderTracker/internal/domain"
	"krakenOrderTracker/internal/ports"
)

// Channel names on the Kraken private feed.
const (
	ChannelOpenOrders = "openOrders"
	ChannelOwnTrades  = "ownTrades"
)

// MessageKind classifies a parsed feed message.
type MessageKind string

const (
	KindOrderSnapshots MessageKind = "order_snapshots"
	KindOwnTrades      MessageKind = "own_trades"
	KindHeartbeat      MessageKind = "heartbeat"
	KindSystemEvent    MessageKind = "system_event"
	KindUnknown        MessageKind = "unknown"
)

// OrderSnapshotEntry is one order's cumulative status from an openOrders
// message, decoded and decimal-parsed.
type OrderSnapshotEntry struct {
	OrderID        string
	Status         string
	Volume         decimal.Decimal // requested volume as the exchange sees it
	VolumeExecuted decimal.Decimal
	Cost           decimal.Decimal
	Fee            decimal.Decimal
	Price          decimal.Decimal // order price field, not an execution price
	AvgPrice       decimal.Decimal // average execution price when reported
}

// TradeEntry is one execution from an ownTrades message.
type TradeEntry struct {
	TradeID   string
	OrderTxID string
	Pair      string
	Side      domain.OrderSide
	Price     decimal.Decimal
	Volume    decimal.Decimal
	Fee       decimal.Decimal
	Cost      decimal.Decimal
	Time      time.Time
}

// Envelope is the tagged result of destructuring one raw feed message.
// Exactly the fields matching Kind are populated.
type Envelope struct {
	Kind     MessageKind
	Channel  string // raw channel name for data and unknown frames
	Sequence int64  // per-channel sequence number, 0 when absent

	// System events (subscriptionStatus, systemStatus, ...).
	Event        string
	Status       string
	ErrorMessage string

	OrderSnapshots []OrderSnapshotEntry
	Trades         []TradeEntry
}

// ParseEnvelope destructures one raw Kraken private-feed frame.
//
// Data frames are arrays of the form [payload, channelName, {"sequence": n}]:
// the channel discriminator sits at index 1, after the payload — an offset
// that is easy to get wrong, which is why this is the only place in the
// codebase allowed to index into the frame. Object frames are heartbeats
// and system events. Anything that cannot be destructured returns
// ports.ErrMalformedMessage.
func ParseEnvelope(raw []byte) (*Envelope, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		return nil, fmt.Errorf("%w: empty frame", ports.ErrMalformedMessage)
	}

	if trimmed[0] == '{' {
		var obj struct {
			Event        string `json:"event"`
			Status       string `json:"status"`
			ErrorMessage string `json:"errorMessage"`
		}
		if err := json.Unmarshal(trimmed, &obj); err != nil {
			return nil, fmt.Errorf("%w: invalid object frame: %v", ports.ErrMalformedMessage, err)
		}
		if obj.Event == "heartbeat" {
			return &Envelope{Kind: KindHeartbeat}, nil
		}
		return &Envelope{
			Kind:         KindSystemEvent,
			Event:        obj.Event,
			Status:       obj.Status,
			ErrorMessage: obj.ErrorMessage,
		}, nil
	}

	var frame []json.RawMessage
	if err := json.Unmarshal(trimmed, &frame); err != nil {
		return nil, fmt.Errorf("%w: frame is neither object nor array: %v", ports.ErrMalformedMessage, err)
	}
	if len(frame) < 2 {
		return nil, fmt.Errorf("%w: array frame has %d elements, need payload and channel name", ports.ErrMalformedMessage, len(frame))
	}

	var channel string
	if err := json.Unmarshal(frame[1], &channel); err != nil {
		return nil, fmt.Errorf("%w: channel name at index 1 is not a string", ports.ErrMalformedMessage)
	}

	env := &Envelope{Channel: channel}
	if len(frame) >= 3 {
		var meta struct {
			Sequence int64 `json:"sequence"`
		}
		// Sequence metadata is best-effort; its absence is not malformed.
		if err := json.Unmarshal(frame[2], &meta); err == nil {
			env.Sequence = meta.Sequence
		}
	}

	var err error
	switch channel {
	case ChannelOpenOrders:
		env.Kind = KindOrderSnapshots
		env.OrderSnapshots, err = parseOrderSnapshots(frame[0])
	case ChannelOwnTrades:
		env.Kind = KindOwnTrades
		env.Trades, err = parseTradeEntries(frame[0])
	default:
		env.Kind = KindUnknown
	}
	if err != nil {
		return nil, err
	}
	return env, nil
}

type orderSnapshotJSON struct {
	Status   string `json:"status"`
	Vol      string `json:"vol"`
	VolExec  string `json:"vol_exec"`
	Cost     string `json:"cost"`
	Fee      string `json:"fee"`
	Price    string `json:"price"`
	AvgPrice string `json:"avg_price"`
}

// parseOrderSnapshots decodes an openOrders payload: an array of single-key
// maps, one map per affected order, keyed by txid.
func parseOrderSnapshots(raw json.RawMessage) ([]OrderSnapshotEntry, error) {
	var batch []map[string]orderSnapshotJSON
	if err := json.Unmarshal(raw, &batch); err != nil {
		return nil, fmt.Errorf("%w: openOrders payload is not an array of single-key maps: %v", ports.ErrMalformedMessage, err)
	}
	entries := make([]OrderSnapshotEntry, 0, len(batch))
	for _, byTxid := range batch {
		for txid, body := range byTxid {
			entry := OrderSnapshotEntry{OrderID: txid, Status: body.Status}
			var err error
			if entry.Volume, err = parseDecimalField("vol", body.Vol); err != nil {
				return nil, err
			}
			if entry.VolumeExecuted, err = parseDecimalField("vol_exec", body.VolExec); err != nil {
				return nil, err
			}
			if entry.Cost, err = parseDecimalField("cost", body.Cost); err != nil {
				return nil, err
			}
			if entry.Fee, err = parseDecimalField("fee", body.Fee); err != nil {
				return nil, err
			}
			if entry.Price, err = parseDecimalField("price", body.Price); err != nil {
				return nil, err
			}
			if entry.AvgPrice, err = parseDecimalField("avg_price", body.AvgPrice); err != nil {
				return nil, err
			}
			entries = append(entries, entry)
		}
	}
	return entries, nil
}

type tradeJSON struct {
	OrderTxID string          `json:"ordertxid"`
	Pair      string          `json:"pair"`
	Price     string          `json:"price"`
	Vol       string          `json:"vol"`
	Fee       string          `json:"fee"`
	Cost      string          `json:"cost"`
	Time      json.RawMessage `json:"time"` // string or number depending on feed version
	Type      string          `json:"type"`
}

// parseTradeEntries decodes an ownTrades payload: an array of single-key
// maps, one map per execution, keyed by trade id.
func parseTradeEntries(raw json.RawMessage) ([]TradeEntry, error) {
	var batch []map[string]tradeJSON
	if err := json.Unmarshal(raw, &batch); err != nil {
		return nil, fmt.Errorf("%w: ownTrades payload is not an array of single-key maps: %v", ports.ErrMalformedMessage, err)
	}
	entries := make([]TradeEntry, 0, len(batch))
	for _, byTradeID := range batch {
		for tradeID, body := range byTradeID {
			entry := TradeEntry{
				TradeID:   tradeID,
				OrderTxID: body.OrderTxID,
				Pair:      body.Pair,
				Side:      domain.OrderSide(body.Type),
			}
			var err error
			if entry.Price, err = parseDecimalField("price", body.Price); err != nil {
				return nil, err
			}
			if entry.Volume, err = parseDecimalField("vol", body.Vol); err != nil {
				return nil, err
			}
			if entry.Fee, err = parseDecimalField("fee", body.Fee); err != nil {
				return nil, err
			}
			if entry.Cost, err = parseDecimalField("cost", body.Cost); err != nil {
				return nil, err
			}
			if entry.Time, err = parseTimestamp(body.Time); err != nil {
				return nil, err
			}
			entries = append(entries, entry)
		}
	}
	return entries, nil
}

// parseDecimalField parses one of Kraken's string-encoded numeric fields.
// Absent fields decode to zero; present but non-numeric values are malformed.
func parseDecimalField(field, value string) (decimal.Decimal, error) {
	if value == "" {
		return decimal.Zero, nil
	}
	d, err := decimal.NewFromString(value)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: field %s value %q is not numeric", ports.ErrMalformedMessage, field, value)
	}
	return d, nil
}

// parseTimestamp parses Kraken's unix-seconds timestamps, which arrive as
// decimal strings like "1560520332.914664" (or bare numbers on some feed
// versions).
func parseTimestamp(raw json.RawMessage) (time.Time, error) {
	s := strings.Trim(string(raw), `"`)
	if s == "" || s == "null" {
		return time.Time{}, nil
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: timestamp %q is not numeric", ports.ErrMalformedMessage, s)
	}
	sec := d.IntPart()
	nanos := d.Sub(decimal.NewFromInt(sec)).Mul(decimal.NewFromInt(1_000_000_000)).IntPart()
	return time.Unix(sec, nanos).UTC(), nil
}
