// Package generator produces the message templates a load run sends.
package generator

import (
	"context"
	"log/slog"
	"math/rand/v2"
	"strconv"

	"github.com/rickgao/chatflow/internal/protocol"
)

var phrases = []string{
	"Hello everyone!", "How are you doing?", "Great to be here!",
	"Anyone online?", "What's up?", "Good morning!",
	"Good evening!", "See you later!", "Thanks for the help!",
	"That's interesting!", "I agree with that.", "Nice to meet you!",
	"Let's discuss this.", "What do you think?", "Sounds good to me.",
	"I'm working on a project.", "Can anyone help?", "This is fun!",
	"Looking forward to it.", "Count me in!", "Absolutely!",
	"Not sure about that.", "Maybe later.", "I'll check it out.",
	"Thanks for sharing!", "Appreciate it!", "No problem!",
	"You're welcome!", "My pleasure!", "Anytime!",
	"Let me know.", "Keep me posted.", "Will do!",
	"Got it!", "Understood.", "Makes sense.",
	"Interesting point.", "Good question.", "Fair enough.",
	"I see what you mean.", "That works for me.", "Sounds like a plan.",
	"Let's do it!", "I'm in!", "Perfect!",
	"Awesome!", "Cool!", "Nice!",
	"Great job!", "Well done!", "Congratulations!",
}

// Config configures a Generator.
type Config struct {
	RoomCount int    // rooms are "1".."RoomCount"
	Seed      uint64 // 0 = random
}

// Generator builds random templates. Type mix is 90% TEXT, 5% JOIN, 5% LEAVE,
// except that the first message to a room not currently joined is a JOIN.
// Not safe for concurrent use.
type Generator struct {
	cfg    Config
	rng    *rand.Rand
	joined []bool
	logger *slog.Logger
}

// New creates a generator.
func New(cfg Config, logger *slog.Logger) *Generator {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.RoomCount < 1 {
		cfg.RoomCount = 1
	}
	seed := cfg.Seed
	if seed == 0 {
		seed = rand.Uint64()
	}

	return &Generator{
		cfg:    cfg,
		rng:    rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)),
		joined: make([]bool, cfg.RoomCount+1),
		logger: logger,
	}
}

// Next returns the next template.
func (g *Generator) Next() protocol.MessageTemplate {
	userID := g.rng.IntN(protocol.MaxUserID) + protocol.MinUserID
	room := g.rng.IntN(g.cfg.RoomCount) + 1

	return protocol.MessageTemplate{
		UserID:   strconv.Itoa(userID),
		Username: "user" + strconv.Itoa(userID),
		Body:     phrases[g.rng.IntN(len(phrases))],
		Type:     g.pickType(room),
		RoomID:   strconv.Itoa(room),
	}
}

func (g *Generator) pickType(room int) protocol.MessageType {
	var t protocol.MessageType
	switch roll := g.rng.IntN(100); {
	case roll < 90:
		t = protocol.MessageTypeText
	case roll < 95:
		t = protocol.MessageTypeJoin
	default:
		t = protocol.MessageTypeLeave
	}

	if !g.joined[room] {
		t = protocol.MessageTypeJoin
	}
	switch t {
	case protocol.MessageTypeJoin:
		g.joined[room] = true
	case protocol.MessageTypeLeave:
		g.joined[room] = false
	}
	return t
}

// Fill sends n templates to out, blocking while out is full. It does not close out.
func (g *Generator) Fill(ctx context.Context, out chan<- protocol.MessageTemplate, n int) error {
	for i := 0; i < n; i++ {
		select {
		case out <- g.Next():
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	g.logger.Info("message generation completed", "messages", n)
	return nil
}
