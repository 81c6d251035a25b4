package generator

import (
	"context"
	"errors"
	"strconv"
	"testing"
	"time"

	"github.com/rickgao/chatflow/internal/protocol"
)

func TestGenerator_TemplatesAreValid(t *testing.T) {
	g := New(Config{RoomCount: 20, Seed: 42}, nil)
	now := time.Now()

	for i := 0; i < 5000; i++ {
		tmpl := g.Next()
		if res := protocol.Validate(tmpl.Message(now)); !res.Valid {
			t.Fatalf("template %d invalid: %s (%+v)", i, res.Message, tmpl)
		}
		room, err := strconv.Atoi(tmpl.RoomID)
		if err != nil || room < 1 || room > 20 {
			t.Fatalf("RoomID = %q, want 1..20", tmpl.RoomID)
		}
		if tmpl.Username != "user"+tmpl.UserID {
			t.Errorf("Username = %q, want user%s", tmpl.Username, tmpl.UserID)
		}
	}
}

func TestGenerator_FirstMessagePerRoomIsJoin(t *testing.T) {
	g := New(Config{RoomCount: 5, Seed: 7}, nil)
	joined := make(map[string]bool)

	for i := 0; i < 2000; i++ {
		tmpl := g.Next()
		if !joined[tmpl.RoomID] && tmpl.Type != protocol.MessageTypeJoin {
			t.Fatalf("message %d to unjoined room %s has type %s", i, tmpl.RoomID, tmpl.Type)
		}
		switch tmpl.Type {
		case protocol.MessageTypeJoin:
			joined[tmpl.RoomID] = true
		case protocol.MessageTypeLeave:
			joined[tmpl.RoomID] = false
		}
	}
}

func TestGenerator_TypeMix(t *testing.T) {
	g := New(Config{RoomCount: 1, Seed: 1}, nil)
	counts := make(map[protocol.MessageType]int)

	const n = 20000
	for i := 0; i < n; i++ {
		counts[g.Next().Type]++
	}

	if text := float64(counts[protocol.MessageTypeText]) / n; text < 0.8 || text > 0.92 {
		t.Errorf("TEXT share = %.3f, want about 0.85-0.90", text)
	}
	if counts[protocol.MessageTypeLeave] == 0 {
		t.Error("no LEAVE messages generated")
	}
}

func TestGenerator_Fill(t *testing.T) {
	g := New(Config{RoomCount: 3}, nil)
	out := make(chan protocol.MessageTemplate, 10)

	if err := g.Fill(context.Background(), out, 10); err != nil {
		t.Fatalf("Fill failed: %v", err)
	}
	if len(out) != 10 {
		t.Errorf("len(out) = %d, want 10", len(out))
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := g.Fill(ctx, out, 1); !errors.Is(err, context.Canceled) {
		t.Errorf("Fill on full channel with cancelled ctx = %v, want Canceled", err)
	}
}
