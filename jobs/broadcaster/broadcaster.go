// Package broadcaster drains the outbox into the configured sinks. Each
// entry goes NEW -> SENT -> ACKED once every sink took it; a failed round
// puts it back to NEW until MaxAttempts, after which it is parked as FAILED.
package broadcaster

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"scalex/infra/metrics"
	"scalex/infra/outbox"
)

// Sink receives outbox entries. Delivery is at least once, so sinks key
// their writes on (Seq, Index) or the event id.
type Sink interface {
	Name() string
	Deliver(ctx context.Context, e outbox.Entry) error
}

type Config struct {
	Interval     time.Duration
	BatchSize    int
	Retries      int // in-round retries per sink
	RetryBackoff time.Duration
	MaxAttempts  uint32
}

func (c *Config) defaults() {
	if c.Interval <= 0 {
		c.Interval = 250 * time.Millisecond
	}
	if c.BatchSize <= 0 {
		c.BatchSize = 256
	}
	if c.Retries < 0 {
		c.Retries = 0
	}
	if c.RetryBackoff <= 0 {
		c.RetryBackoff = 100 * time.Millisecond
	}
	if c.MaxAttempts == 0 {
		c.MaxAttempts = 10
	}
}

type Broadcaster struct {
	box     *outbox.Outbox
	sinks   []Sink
	cfg     Config
	metrics *metrics.Metrics
	log     *zap.Logger
}

func New(box *outbox.Outbox, sinks []Sink, cfg Config, m *metrics.Metrics, log *zap.Logger) *Broadcaster {
	cfg.defaults()
	if log == nil {
		log = zap.NewNop()
	}
	return &Broadcaster{box: box, sinks: sinks, cfg: cfg, metrics: m, log: log.Named("broadcaster")}
}

// Run requeues entries left SENT by a previous process, then drains the
// outbox every Interval until ctx is done.
func (b *Broadcaster) Run(ctx context.Context) error {
	n, err := b.Requeue()
	if err != nil {
		return err
	}
	b.log.Info("started", zap.Int("sinks", len(b.sinks)), zap.Int("requeued", n))

	t := time.NewTicker(b.cfg.Interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-t.C:
			if _, err := b.Drain(ctx); err != nil && !errors.Is(err, context.Canceled) {
				b.log.Warn("drain", zap.Error(err))
			}
		}
	}
}

// Requeue moves SENT entries back to NEW without counting an attempt.
func (b *Broadcaster) Requeue() (int, error) {
	var stuck []outbox.Entry
	if err := b.box.ScanByState(outbox.StateSent, 0, func(e outbox.Entry) error {
		stuck = append(stuck, e)
		return nil
	}); err != nil {
		return 0, err
	}
	for _, e := range stuck {
		if err := b.box.Mark(e.Seq, e.Index, outbox.StateNew, e.Retries); err != nil {
			return 0, err
		}
	}
	return len(stuck), nil
}

// Drain delivers one batch of NEW entries in log order. It stops at the
// first entry that cannot be delivered so later events never overtake it.
func (b *Broadcaster) Drain(ctx context.Context) (delivered int, err error) {
	var batch []outbox.Entry
	if err := b.box.ScanByState(outbox.StateNew, b.cfg.BatchSize, func(e outbox.Entry) error {
		batch = append(batch, e)
		return nil
	}); err != nil {
		return 0, err
	}
	defer b.report()

	for _, e := range batch {
		if err := b.box.MarkSent(e); err != nil {
			return delivered, err
		}
		if derr := b.deliver(ctx, e); derr != nil {
			if e.Retries+1 >= b.cfg.MaxAttempts {
				b.log.Error("event parked",
					zap.Uint64("seq", e.Seq), zap.Uint16("index", e.Index),
					zap.Uint32("attempts", e.Retries+1), zap.Error(derr))
				if err := b.box.MarkFailed(e); err != nil {
					return delivered, err
				}
				continue
			}
			if err := b.box.MarkRetry(e); err != nil {
				return delivered, err
			}
			return delivered, derr
		}
		if err := b.box.MarkAcked(e); err != nil {
			return delivered, err
		}
		delivered++
	}
	return delivered, nil
}

func (b *Broadcaster) deliver(ctx context.Context, e outbox.Entry) error {
	for _, s := range b.sinks {
		err := withRetry(ctx, b.cfg.Retries, b.cfg.RetryBackoff, func(ctx context.Context) error {
			return s.Deliver(ctx, e)
		})
		b.metrics.Delivery(s.Name(), err)
		if err != nil {
			b.log.Debug("delivery failed", zap.String("sink", s.Name()), zap.Uint64("seq", e.Seq), zap.Error(err))
			return err
		}
	}
	return nil
}

func (b *Broadcaster) report() {
	if b.metrics == nil {
		return
	}
	counts, err := b.box.Count()
	if err != nil {
		return
	}
	for _, st := range []outbox.State{outbox.StateNew, outbox.StateSent, outbox.StateAcked, outbox.StateFailed} {
		b.metrics.Outbox(st.String(), counts[st])
	}
}
