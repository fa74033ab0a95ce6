package upload

import (
	"context"
	"log/slog"

	"github.com/cockroachdb/errors"

	"github.com/joshuapare/modelstore/store"
	"github.com/joshuapare/modelstore/store/dirty"
)

// Config controls an Uploader.
type Config struct {
	// Name identifies the uploader in logs.
	Name string

	// Binding is the consumer slot the buffer is bound to.
	Binding uint32

	// InitialCapacity is the first buffer size in records.
	// Zero selects the storage's current size rounded up to Increment.
	InitialCapacity int

	// Increment is the growth granularity in records.
	// Zero selects InitialCapacity.
	Increment int
}

func (c Config) normalized(size int) Config {
	if c.InitialCapacity <= 0 {
		c.InitialCapacity = max(size, 1)
	}
	if c.Increment <= 0 {
		c.Increment = c.InitialCapacity
	}
	c.InitialCapacity = AlignUp(max(c.InitialCapacity, size), c.Increment)
	return c
}

// Report describes one upload cycle.
type Report struct {
	Cycle    int  // Cycle number, starting at 1
	Resized  bool // Buffer was re-created this cycle
	Capacity int  // Buffer capacity after the cycle
	Ranges   int  // Dirty ranges copied
	Records  int  // Records copied
	FullCopy bool // Whole slab copied (non-persistent buffer)
	Skipped  bool // Cycle failed and will be retried
}

// Stats reports uploader metrics.
type Stats struct {
	Cycles  int // Update calls
	Uploads int // Cycles that copied data
	Idle    int // Cycles with nothing dirty
	Skipped int // Failed cycles
	Resizes int // Buffer re-creations
	Ranges  int // Total ranges copied
	Records int // Total records copied
}

// Uploader streams one storage into one buffer.
type Uploader[T any] struct {
	s      *store.Storage[T]
	buf    Buffer[T]
	cfg    Config
	logger *slog.Logger
	stats  Stats
	closed bool
}

// New sizes buf for s and binds it.
func New[T any](s *store.Storage[T], buf Buffer[T], cfg Config, logger *slog.Logger) (*Uploader[T], error) {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	cfg = cfg.normalized(s.Size())

	if err := buf.Resize(cfg.InitialCapacity); err != nil {
		return nil, errors.Wrapf(err, "size %s buffer to %d records", cfg.Name, cfg.InitialCapacity)
	}
	buf.Bind(cfg.Binding)

	return &Uploader[T]{
		s:      s,
		buf:    buf,
		cfg:    cfg,
		logger: logger.With("uploader", cfg.Name, "binding", cfg.Binding),
	}, nil
}

// Config returns the normalised configuration.
func (u *Uploader[T]) Config() Config { return u.cfg }

// Update runs one upload cycle.
//
// The context is checked before the cycle and between ranges. A cancelled
// cycle is skipped like a failed one.
func (u *Uploader[T]) Update(ctx context.Context) (Report, error) {
	if err := ctx.Err(); err != nil {
		return Report{Skipped: true}, err
	}

	var rep Report
	err := u.s.Do(func(tx *store.Tx[T]) error {
		return u.cycle(ctx, tx, &rep)
	})
	return rep, err
}

func (u *Uploader[T]) cycle(ctx context.Context, tx *store.Tx[T], rep *Report) error {
	if u.closed {
		return ErrClosed
	}
	u.stats.Cycles++
	rep.Cycle = u.stats.Cycles

	size := tx.Size()
	src := tx.Dirty()

	if size > u.buf.Capacity() {
		newCap := AlignUp(size, u.cfg.Increment)
		u.buf.Unbind(u.cfg.Binding)
		if err := u.buf.Resize(newCap); err != nil {
			return u.skip(rep, errors.Wrapf(err, "resize %s buffer to %d records", u.cfg.Name, newCap))
		}
		// A fresh buffer holds nothing valid in any generation.
		src.MarkAllDirty()
		u.stats.Resizes++
		rep.Resized = true
		u.logger.Debug("buffer resized", "records", size, "capacity", newCap)
	}
	rep.Capacity = u.buf.Capacity()

	if !src.NeedsUpload() {
		u.stats.Idle++
		return nil
	}

	u.buf.Unbind(u.cfg.Binding)
	recs := tx.Records()

	if u.buf.Persistent() {
		for r, ok := src.First(); ok; r, ok = src.Next(r) {
			if err := ctx.Err(); err != nil {
				return u.skip(rep, errors.Wrap(err, "upload cancelled"))
			}
			if err := u.copyRange(recs, r); err != nil {
				return u.skip(rep, err)
			}
			rep.Ranges++
			rep.Records += r.Len
		}
	} else {
		if err := u.copyRange(recs, dirty.Range{Off: 0, Len: size}); err != nil {
			return u.skip(rep, err)
		}
		rep.FullCopy = true
		rep.Ranges = 1
		rep.Records = size
	}

	u.buf.Bind(u.cfg.Binding)
	u.buf.Advance()
	src.Advance()

	u.stats.Uploads++
	u.stats.Ranges += rep.Ranges
	u.stats.Records += rep.Records
	return nil
}

func (u *Uploader[T]) copyRange(recs []T, r dirty.Range) error {
	dst, err := u.buf.Map(r.Off, r.Len)
	if err != nil {
		return errors.Wrapf(err, "map %s records [%d,%d)", u.cfg.Name, r.Off, r.End())
	}
	copy(dst, recs[r.Off:r.End()])
	if err := u.buf.Unmap(); err != nil {
		return errors.Wrapf(err, "unmap %s records [%d,%d)", u.cfg.Name, r.Off, r.End())
	}
	return nil
}

// skip abandons the cycle. Dirty counters are not advanced, so the next
// cycle retries the same ranges.
func (u *Uploader[T]) skip(rep *Report, err error) error {
	u.buf.Bind(u.cfg.Binding)
	u.stats.Skipped++
	rep.Skipped = true
	rep.Capacity = u.buf.Capacity()
	u.logger.Error("upload cycle skipped", "cycle", rep.Cycle, "error", err)
	return err
}

// Close unbinds the buffer. Later Update calls return ErrClosed.
func (u *Uploader[T]) Close() error {
	return u.s.Do(func(*store.Tx[T]) error {
		if u.closed {
			return nil
		}
		u.closed = true
		u.buf.Unbind(u.cfg.Binding)
		return nil
	})
}

// Stats returns uploader metrics.
func (u *Uploader[T]) Stats() Stats {
	var st Stats
	_ = u.s.Do(func(*store.Tx[T]) error {
		st = u.stats
		return nil
	})
	return st
}
