package loadgen

import (
	"testing"
	"time"

	"github.com/rickgao/chatflow/internal/metrics"
	"github.com/rickgao/chatflow/internal/protocol"
)

type fakeSource struct {
	room  string
	sends []int64
}

func (f *fakeSource) RoomID() string { return f.room }

func (f *fakeSource) PollSend() (int64, bool) {
	if len(f.sends) == 0 {
		return 0, false
	}
	ts := f.sends[0]
	f.sends = f.sends[1:]
	return ts, true
}

type sampleRecorder struct {
	samples  []metrics.Sample
	failures int
}

func (r *sampleRecorder) RecordResponse(s metrics.Sample) { r.samples = append(r.samples, s) }
func (r *sampleRecorder) RecordFailure() { r.failures++ }

func encode(t *testing.T, resp protocol.ServerResponse) []byte {
	t.Helper()
	data, err := protocol.EncodeResponse(resp)
	if err != nil {
		t.Fatalf("EncodeResponse failed: %v", err)
	}
	return data
}

func TestCorrelator(t *testing.T) {
	sentAt := time.UnixMilli(1_700_000_000_000).UTC()
	ackAt := sentAt.Add(25 * time.Millisecond)
	queued := sentAt.UnixMilli() - 5

	echoed := protocol.MessageTemplate{
		UserID: "1", Username: "user1", Body: "hi", Type: protocol.MessageTypeJoin, RoomID: "3",
	}.Message(sentAt)

	badStamp := echoed
	badStamp.MessageType = protocol.MessageTypeText
	badStamp.Timestamp = "not-a-timestamp"

	tests := []struct {
		name        string
		data        []byte
		queue       []int64
		wantFailure bool
		want        metrics.Sample
	}{
		{
			name:  "success prefers echoed timestamp",
			data:  encode(t, protocol.Success(echoed, ackAt)),
			queue: []int64{queued},
			want: metrics.Sample{
				SendMs: sentAt.UnixMilli(), AckMs: ackAt.UnixMilli(), LatencyMs: 25,
				StatusCode: 200, Type: "JOIN", RoomID: "3",
			},
		},
		{
			name:  "error ignores queued send time",
			data:  encode(t, protocol.Failure("User must JOIN before sending TEXT", ackAt)),
			queue: []int64{1000},
			want: metrics.Sample{
				SendMs: -1, AckMs: ackAt.UnixMilli(), LatencyMs: -1,
				StatusCode: 400, Type: metrics.UnknownType, RoomID: "3",
			},
		},
		{
			name:  "unparseable echoed timestamp has unknown latency",
			data:  encode(t, protocol.Success(badStamp, ackAt)),
			queue: []int64{queued},
			want: metrics.Sample{
				SendMs: -1, AckMs: ackAt.UnixMilli(), LatencyMs: -1,
				StatusCode: 200, Type: "TEXT", RoomID: "3",
			},
		},
		{
			name: "error with empty queue has unknown latency",
			data: encode(t, protocol.Failure("rate limit exceeded", ackAt)),
			want: metrics.Sample{
				SendMs: -1, AckMs: ackAt.UnixMilli(), LatencyMs: -1,
				StatusCode: 400, Type: metrics.UnknownType, RoomID: "3",
			},
		},
		{
			name:        "undecodable frame is a failure",
			data:        []byte("not json"),
			queue:       []int64{queued},
			wantFailure: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := &sampleRecorder{}
			src := &fakeSource{room: "3", sends: tt.queue}

			NewCorrelator(rec, nil).handle(src, tt.data, ackAt)

			if len(src.sends) != 0 {
				t.Errorf("correlation queue not popped: %v", src.sends)
			}
			if tt.wantFailure {
				if rec.failures != 1 || len(rec.samples) != 0 {
					t.Errorf("failures = %d, samples = %d, want 1 and 0", rec.failures, len(rec.samples))
				}
				return
			}
			if len(rec.samples) != 1 {
				t.Fatalf("samples = %d, want 1", len(rec.samples))
			}
			if got := rec.samples[0]; got != tt.want {
				t.Errorf("sample = %+v, want %+v", got, tt.want)
			}
		})
	}
}
