package models

import (
	"bytes"
	"encoding/json"
	"strconv"
	"time"
)

// RawChainMessage carries one fetched option-chain payload from a reader to
// the analysis processor.
type RawChainMessage struct {
	Symbol    string
	Source    string
	Data      []byte
	Timestamp time.Time
}

// RawChain mirrors the option-chain document served by NSE. Only the fields
// the analyzer reads are typed; everything else is ignored on decode.
type RawChain struct {
	Records  ChainRecords  `json:"records"`
	Filtered *ChainRecords `json:"filtered,omitempty"`
}

// ChainRecords holds the per-strike entries of a chain.
type ChainRecords struct {
	ExpiryDates     []string     `json:"expiryDates,omitempty"`
	Timestamp       string       `json:"timestamp,omitempty"`
	UnderlyingValue Value        `json:"underlyingValue"`
	Data            []ChainEntry `json:"data"`
}

// ChainEntry is one row of the chain. Either side may be absent.
type ChainEntry struct {
	StrikePrice Value      `json:"strikePrice"`
	ExpiryDate  string     `json:"expiryDate,omitempty"`
	CE          *OptionLeg `json:"CE,omitempty"`
	PE          *OptionLeg `json:"PE,omitempty"`
}

// HasBothSides reports whether the entry carries a call and a put leg.
func (e ChainEntry) HasBothSides() bool {
	return e.CE != nil && e.PE != nil
}

// OptionLeg is the call or put side of a chain entry.
type OptionLeg struct {
	StrikePrice          Value  `json:"strikePrice"`
	ExpiryDate           string `json:"expiryDate,omitempty"`
	Underlying           string `json:"underlying,omitempty"`
	OpenInterest         Value  `json:"openInterest"`
	ChangeInOpenInterest Value  `json:"changeinOpenInterest"`
	TotalTradedVolume    Value  `json:"totalTradedVolume"`
	LastPrice            Value  `json:"lastPrice"`
}

// Value keeps a JSON field exactly as it was received so that numbers sent as
// text ("1,234"), plain numbers, nulls and garbage can all be told apart later.
type Value struct {
	raw json.RawMessage
}

// NumberValue builds a Value holding an integer literal.
func NumberValue(n int64) Value {
	return Value{raw: json.RawMessage(strconv.FormatInt(n, 10))}
}

// StringValue builds a Value holding a JSON string.
func StringValue(s string) Value {
	b, _ := json.Marshal(s)
	return Value{raw: b}
}

// RawValue builds a Value from a JSON literal such as `null` or `12.5`.
func RawValue(literal string) Value {
	return Value{raw: json.RawMessage(literal)}
}

func (v *Value) UnmarshalJSON(b []byte) error {
	v.raw = append(v.raw[:0], b...)
	return nil
}

func (v Value) MarshalJSON() ([]byte, error) {
	if len(v.raw) == 0 {
		return []byte("null"), nil
	}
	return v.raw, nil
}

// Present reports whether the field was sent with a non-null value.
func (v Value) Present() bool {
	t := bytes.TrimSpace(v.raw)
	return len(t) > 0 && !bytes.Equal(t, []byte("null"))
}

// Text returns the textual form of a string or number field. Objects,
// arrays, booleans, null and missing fields report false.
func (v Value) Text() (string, bool) {
	t := bytes.TrimSpace(v.raw)
	if len(t) == 0 {
		return "", false
	}
	switch c := t[0]; {
	case c == '"':
		var s string
		if err := json.Unmarshal(t, &s); err != nil {
			return "", false
		}
		return s, true
	case c == '-' || (c >= '0' && c <= '9'):
		return string(t), true
	default:
		return "", false
	}
}
