// Package changefeed implements the optional external replication
// collaborator named in spec §6's replication interface: a
// command.Propagator that republishes every write command onto a NATS
// JetStream subject, so an out-of-process consumer (another Vire
// instance, a cache invalidator, an analytics sink) can tail the write
// stream without touching the append-log files directly. Grounded on the
// teacher's own JetStream wiring (`src/server.go`: nats.Connect,
// nc.JetStream, js.AddStream with an interest-policy, memory-storage,
// discard-old stream).
package changefeed

import (
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"

	"github.com/vipshop/vire/internal/keyspace"
	"github.com/vipshop/vire/internal/object"
)

// Config mirrors the handful of JetStream knobs the teacher's Config
// exposes for its token-update stream, narrowed to what a write changefeed
// needs.
type Config struct {
	URL           string
	StreamName    string
	SubjectPrefix string // published subjects are "<prefix>.<db>"
	MaxAge        time.Duration
	MaxMsgs       int64
	MaxBytes      int64
}

// Publisher is a command.Propagator that fire-and-forgets every write
// command onto NATS; append-log durability is persistence.Engine's job,
// not this package's, so publish failures are logged and otherwise
// ignored (spec §6: replication is an external collaborator, out of
// scope for correctness guarantees here).
type Publisher struct {
	nc     *nats.Conn
	js     nats.JetStreamContext
	cfg    Config
	logger zerolog.Logger
}

// Connect dials NATS, opens a JetStream context, and ensures cfg's stream
// exists, matching the teacher's connect-then-AddStream-if-missing
// sequence.
func Connect(cfg Config, logger zerolog.Logger) (*Publisher, error) {
	nc, err := nats.Connect(cfg.URL, nats.MaxReconnects(5), nats.ReconnectWait(2*time.Second))
	if err != nil {
		return nil, fmt.Errorf("changefeed: connecting to nats: %w", err)
	}
	js, err := nc.JetStream()
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("changefeed: opening jetstream context: %w", err)
	}
	if _, err := js.StreamInfo(cfg.StreamName); err != nil {
		_, err := js.AddStream(&nats.StreamConfig{
			Name:      cfg.StreamName,
			Subjects:  []string{cfg.SubjectPrefix + ".>"},
			Retention: nats.InterestPolicy,
			MaxAge:    cfg.MaxAge,
			Storage:   nats.MemoryStorage,
			Discard:   nats.DiscardOld,
			MaxMsgs:   cfg.MaxMsgs,
			MaxBytes:  cfg.MaxBytes,
		})
		if err != nil {
			nc.Close()
			return nil, fmt.Errorf("changefeed: creating stream %s: %w", cfg.StreamName, err)
		}
	}
	return &Publisher{nc: nc, js: js, cfg: cfg, logger: logger.With().Str("component", "changefeed").Logger()}, nil
}

// Propagate implements command.Propagator's write-fanout half by
// publishing argv as a RESP multi-bulk frame to "<prefix>.<db>".
func (p *Publisher) Propagate(db int, argv [][]byte) {
	frame := encodeFrame(argv)
	subject := fmt.Sprintf("%s.%d", p.cfg.SubjectPrefix, db)
	if _, err := p.js.PublishAsync(subject, frame); err != nil {
		p.logger.Warn().Err(err).Str("subject", subject).Msg("changefeed: publish failed")
	}
}

// WriteBarrier is a no-op: the changefeed republishes commands, not
// pre-images, so it never needs the write barrier's serialization hook.
// A Publisher composes with persistence.Engine (which does implement the
// hook) via a fanning-out Propagator in cmd/vire, not by itself covering
// both.
func (p *Publisher) WriteBarrier(sh *keyspace.Shard, key string, obj *object.Object) {}

// Close drains and closes the NATS connection.
func (p *Publisher) Close() {
	p.nc.Drain()
}

func encodeFrame(argv [][]byte) []byte {
	out := make([]byte, 0, 64)
	out = append(out, '*')
	out = appendInt(out, len(argv))
	out = append(out, '\r', '\n')
	for _, a := range argv {
		out = append(out, '$')
		out = appendInt(out, len(a))
		out = append(out, '\r', '\n')
		out = append(out, a...)
		out = append(out, '\r', '\n')
	}
	return out
}

func appendInt(b []byte, n int) []byte {
	if n == 0 {
		return append(b, '0')
	}
	var tmp [20]byte
	i := len(tmp)
	for n > 0 {
		i--
		tmp[i] = byte('0' + n%10)
		n /= 10
	}
	return append(b, tmp[i:]...)
}
