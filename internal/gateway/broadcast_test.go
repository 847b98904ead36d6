package gateway

import (
	"encoding/json"
	"strconv"
	"testing"
	"time"
)

// buildEnvelope reproduces the exact hand-crafted JSON logic from
// Broadcaster.Broadcast so we can test envelope format independently of
// WS dependencies.
func buildEnvelope(channel string, data []byte, now time.Time, seq, channelSeq int64) []byte {
	buf := make([]byte, 0, len(channel)+len(data)+160)
	buf = append(buf, `{"channel":"`...)
	buf = append(buf, channel...)
	buf = append(buf, `","data":`...)
	buf = append(buf, data...)
	buf = append(buf, `,"ts":"`...)
	buf = now.AppendFormat(buf, time.RFC3339Nano)
	buf = append(buf, `","seq":`...)
	buf = strconv.AppendInt(buf, seq, 10)
	buf = append(buf, `,"channel_seq":`...)
	buf = strconv.AppendInt(buf, channelSeq, 10)
	buf = append(buf, '}')
	return buf
}

// envelope is the parsed WS message structure.
type envelope struct {
	Channel    string          `json:"channel"`
	Data       json.RawMessage `json:"data"`
	TS         string          `json:"ts"`
	Seq        int64           `json:"seq"`
	ChannelSeq int64           `json:"channel_seq"`
}

// TestBroadcastEnvelopeFormat verifies the hand-crafted JSON envelope
// matches the expected structure.
func TestBroadcastEnvelopeFormat(t *testing.T) {
	channel := "bars:60s:NSE:RELIANCE"
	data := []byte(`{"ts":"2026-02-25T10:00:00Z","open":100,"high":105,"low":99,"close":103,"volume":500}`)
	now := time.Date(2026, 2, 25, 10, 0, 1, 0, time.UTC)
	var seq int64 = 42

	buf := buildEnvelope(channel, data, now, seq, 7)

	var env envelope
	if err := json.Unmarshal(buf, &env); err != nil {
		t.Fatalf("envelope is not valid JSON: %v\nraw: %s", err, buf)
	}

	if env.Channel != channel {
		t.Errorf("channel: got %q, want %q", env.Channel, channel)
	}
	if env.Seq != seq {
		t.Errorf("seq: got %d, want %d", env.Seq, seq)
	}
	if env.ChannelSeq != 7 {
		t.Errorf("channel_seq: got %d, want 7", env.ChannelSeq)
	}

	// Data should be parseable JSON
	var bar map[string]interface{}
	if err := json.Unmarshal(env.Data, &bar); err != nil {
		t.Fatalf("data is not valid JSON: %v", err)
	}
	if _, ok := bar["ts"]; !ok {
		t.Error("data missing 'ts' field")
	}

	// TS should be valid RFC3339Nano
	parsed, err := time.Parse(time.RFC3339Nano, env.TS)
	if err != nil {
		t.Errorf("ts is not valid RFC3339Nano: %v", err)
	}
	if !parsed.Equal(now) {
		t.Errorf("ts: got %v, want %v", parsed, now)
	}
}

// TestBroadcastEnvelopeIndicator tests envelope with an indicator channel.
func TestBroadcastEnvelopeIndicator(t *testing.T) {
	channel := "ind:NSE:RELIANCE@60"
	data := []byte(`{"kind":"RSI","lines":[{"name":"RSI","values":[null,55.2]}]}`)
	now := time.Now().UTC()

	buf := buildEnvelope(channel, data, now, 1, 1)

	var env envelope
	if err := json.Unmarshal(buf, &env); err != nil {
		t.Fatalf("envelope is not valid JSON: %v\nraw: %s", err, buf)
	}

	if env.Channel != channel {
		t.Errorf("channel: got %q, want %q", env.Channel, channel)
	}

	var indData struct {
		Kind string `json:"kind"`
	}
	if err := json.Unmarshal(env.Data, &indData); err != nil {
		t.Fatalf("data is not valid JSON: %v", err)
	}
	if indData.Kind != "RSI" {
		t.Errorf("indicator kind: got %q, want RSI", indData.Kind)
	}
}

// TestChannelParsing tests the parseChannel function with various formats.
func TestChannelParsing(t *testing.T) {
	tests := []struct {
		name       string
		channel    string
		wantType   string
		wantSymbol string
		wantTF     int
		wantNil    bool
	}{
		{"bars_60s", "bars:60s:NSE:RELIANCE", "bars", "NSE:RELIANCE", 60, false},
		{"bars_300s", "bars:300s:NSE:SBIN", "bars", "NSE:SBIN", 300, false},
		{"ind", "ind:NSE:RELIANCE@60", "ind", "NSE:RELIANCE", 60, false},
		{"ind_5m", "ind:NSE:SBIN@300", "ind", "NSE:SBIN", 300, false},
		{"invalid_garbage", "garbage", "", "", 0, true},
		{"invalid_ind", "ind:no-at-sign", "", "", 0, true},
		{"metrics", "metrics", "", "", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			parsed := parseChannel(tt.channel)
			if tt.wantNil {
				if parsed != nil {
					t.Errorf("expected nil, got %+v", parsed)
				}
				return
			}
			if parsed == nil {
				t.Fatal("expected non-nil parsed channel")
			}
			if parsed.chType != tt.wantType {
				t.Errorf("chType: got %q, want %q", parsed.chType, tt.wantType)
			}
			if parsed.symbol != tt.wantSymbol {
				t.Errorf("symbol: got %q, want %q", parsed.symbol, tt.wantSymbol)
			}
			if parsed.tf != tt.wantTF {
				t.Errorf("tf: got %d, want %d", parsed.tf, tt.wantTF)
			}
		})
	}
}

// TestEnvelopeSeqMonotonic verifies sequence numbers are reflected correctly.
func TestEnvelopeSeqMonotonic(t *testing.T) {
	channel := "bars:60s:NSE:RELIANCE"
	data := []byte(`{}`)
	now := time.Now().UTC()

	for i := int64(1); i <= 100; i++ {
		buf := buildEnvelope(channel, data, now, i, i)
		var env envelope
		if err := json.Unmarshal(buf, &env); err != nil {
			t.Fatalf("seq=%d: invalid JSON: %v", i, err)
		}
		if env.Seq != i {
			t.Errorf("seq: got %d, want %d", env.Seq, i)
		}
	}
}

// TestBroadcaster_PerChannelSeq verifies that per-channel seq tracks
// independently across channels.
func TestBroadcaster_PerChannelSeq(t *testing.T) {
	channelA := "bars:60s:NSE:RELIANCE"
	channelB := "ind:NSE:RELIANCE@60"
	data := []byte(`{}`)
	now := time.Now().UTC()

	var globalSeq int64

	for i := int64(1); i <= 3; i++ {
		globalSeq++
		buf := buildEnvelope(channelA, data, now, globalSeq, i)
		var env envelope
		if err := json.Unmarshal(buf, &env); err != nil {
			t.Fatalf("channelA seq=%d: invalid JSON: %v", i, err)
		}
		if env.ChannelSeq != i {
			t.Errorf("channelA channel_seq: got %d, want %d", env.ChannelSeq, i)
		}
		if env.Seq != globalSeq {
			t.Errorf("channelA global seq: got %d, want %d", env.Seq, globalSeq)
		}
	}

	for i := int64(1); i <= 2; i++ {
		globalSeq++
		buf := buildEnvelope(channelB, data, now, globalSeq, i)
		var env envelope
		if err := json.Unmarshal(buf, &env); err != nil {
			t.Fatalf("channelB seq=%d: invalid JSON: %v", i, err)
		}
		if env.ChannelSeq != i {
			t.Errorf("channelB channel_seq: got %d, want %d", env.ChannelSeq, i)
		}
		if env.Channel != channelB {
			t.Errorf("channelB: got %q, want %q", env.Channel, channelB)
		}
	}

	if globalSeq != 5 {
		t.Errorf("global seq: got %d, want 5", globalSeq)
	}
}
