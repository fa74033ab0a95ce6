package session

import (
	"bytes"
	"context"
	"log/slog"
	"sync"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/require"

	"github.com/joshuapare/modelstore/model"
	"github.com/joshuapare/modelstore/store"
	"github.com/joshuapare/modelstore/store/alloc"
	"github.com/joshuapare/modelstore/store/ringbuf"
)

type unit struct {
	kind   Kind
	pieces *store.Span[model.Transform]
}

func (u *unit) Kind() Kind                               { return u.kind }
func (u *unit) Transforms() *store.Span[model.Transform] { return u.pieces }

func smallConfig() Config {
	cfg := DefaultConfig()
	cfg.Transforms = alloc.Config{InitialCapacity: 16}
	cfg.TransformsUpload.InitialCapacity = 16
	cfg.TransformsUpload.Increment = 8
	cfg.Uniforms = alloc.Config{InitialCapacity: 8}
	cfg.UniformsUpload.InitialCapacity = 8
	cfg.UniformsUpload.Increment = 4
	return cfg
}

func newSession(t *testing.T) *Session {
	t.Helper()
	s, err := NewWithRingBuffers(smallConfig(), nil)
	require.NoError(t, err)
	t.Cleanup(func() { require.NoError(t, s.Close()) })
	return s
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	require.Equal(t, 1<<16, cfg.Transforms.InitialCapacity)
	require.Equal(t, 1<<16, cfg.TransformsUpload.InitialCapacity)
	require.Equal(t, 1<<14, cfg.TransformsUpload.Increment)
	require.Equal(t, uint32(0), cfg.TransformsUpload.Binding)
	require.Equal(t, 1<<12, cfg.Uniforms.InitialCapacity)
	require.Equal(t, 1<<12, cfg.UniformsUpload.InitialCapacity)
	require.Equal(t, 1<<11, cfg.UniformsUpload.Increment)
	require.Equal(t, uint32(1), cfg.UniformsUpload.Binding)
	require.Equal(t, uint8(3), cfg.Buffering)
}

func TestKind(t *testing.T) {
	for _, k := range []Kind{KindUnit, KindFeature, KindProjectile} {
		require.True(t, k.OwnsUniforms(), k.String())
	}
	for _, k := range []Kind{KindUnitDef, KindFeatureDef, KindModel} {
		require.False(t, k.OwnsUniforms(), k.String())
	}
	require.Equal(t, "projectile", KindProjectile.String())
	require.Equal(t, "unknown", Kind(42).String())
}

func TestSessions_AreIndependent(t *testing.T) {
	a, b := newSession(t), newSession(t)
	require.NotEqual(t, a.ID(), b.ID())

	u := &unit{kind: KindUnit}
	require.True(t, a.UniformsOffset(u).Valid())
	require.Equal(t, 1, a.Stats().Objects.Entries)
	require.Zero(t, b.Stats().Objects.Entries)
}

func TestTransforms_AcquireResolveRelease(t *testing.T) {
	s := newSession(t)

	u := &unit{kind: KindUnit}
	require.Equal(t, store.Invalid, s.TransformOffset(nil))

	sp, err := s.AcquireTransforms(4)
	require.NoError(t, err)
	u.pieces = sp

	off := s.TransformOffset(u)
	require.Equal(t, sp.Offset(), off)
	require.NoError(t, u.pieces.Set(1, model.IdentityTransform()))

	require.NoError(t, u.pieces.Release())
	require.Equal(t, store.Invalid, s.TransformOffset(u), "released spans resolve to the sentinel")

	require.NoError(t, s.Transforms().Do(func(tx *store.Tx[model.Transform]) error {
		require.Equal(t, model.ZeroTransform(), tx.Records()[off+1], "released records hold the zero transform")
		return nil
	}))
	_, err = s.Transforms().Get(off + 1)
	require.ErrorIs(t, err, store.ErrNotLive)

	sentinel, err := s.Transforms().Get(store.Invalid)
	require.NoError(t, err)
	require.True(t, sentinel.IsIdentity())
}

func TestUniforms_OwningKinds(t *testing.T) {
	s := newSession(t)
	u := &unit{kind: KindFeature}

	require.NoError(t, s.SetUniforms(u, model.ModelUniforms{ID: 12, MaxHealth: 100, Health: 100}))
	require.NoError(t, s.UpdateUniforms(u, func(m *model.ModelUniforms) { m.Health = 40 }))

	got, err := s.Uniforms(u)
	require.NoError(t, err)
	require.Equal(t, uint16(12), got.ID)
	require.InDelta(t, 0.4, got.HealthFraction(), 1e-6)

	off := s.UniformsOffset(u)
	require.True(t, off.Valid())
	raw, err := s.UniformsStorage().Get(off)
	require.NoError(t, err)
	require.Equal(t, got, raw)

	require.NoError(t, s.RemoveObject(u))
	require.Zero(t, s.Stats().Objects.Entries)
	require.NoError(t, s.RemoveObject(u), "second removal is ignored")
}

func TestUniforms_ReadOnlyKinds(t *testing.T) {
	s := newSession(t)
	def := &unit{kind: KindUnitDef}

	require.Equal(t, store.Invalid, s.UniformsOffset(def))
	require.Equal(t, store.Invalid, s.UniformsOffset(nil))

	got, err := s.Uniforms(def)
	require.NoError(t, err)
	require.Equal(t, model.ModelUniforms{}, got)

	require.ErrorIs(t, s.SetUniforms(def, model.ModelUniforms{ID: 1}), ErrNoUniforms)
	require.ErrorIs(t, s.UpdateUniforms(nil, func(*model.ModelUniforms) {}), ErrNoUniforms)
	require.NoError(t, s.RemoveObject(def))
	require.NoError(t, s.RemoveObject(nil))

	require.Equal(t, 1, s.UniformsStorage().Size(), "read-only kinds never allocate")
}

func TestTypedNilObjects_ResolveToSentinel(t *testing.T) {
	s := newSession(t)
	var u *unit

	require.Equal(t, store.Invalid, s.UniformsOffset(u))
	require.Equal(t, store.Invalid, s.TransformOffset(u))

	got, err := s.Uniforms(u)
	require.NoError(t, err)
	require.Equal(t, model.ModelUniforms{}, got)

	require.ErrorIs(t, s.SetUniforms(u, model.ModelUniforms{ID: 1}), ErrNoUniforms)
	require.ErrorIs(t, s.UpdateUniforms(u, func(*model.ModelUniforms) {}), ErrNoUniforms)
	require.NoError(t, s.RemoveObject(u))

	_, ok := s.Objects().Lookup(u)
	require.True(t, ok, "typed nil is the zero identity")
	require.Zero(t, s.Objects().Len())
	require.Equal(t, 1, s.UniformsStorage().Size(), "typed nil never allocates")
}

func TestTransformOffset_InvalidOwnerLogged(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))
	s, err := NewWithRingBuffers(smallConfig(), logger)
	require.NoError(t, err)
	defer s.Close()

	dummy := &unit{kind: KindUnit, pieces: store.Dummy[model.Transform]()}
	require.Equal(t, store.Invalid, s.TransformOffset(dummy))
	require.Contains(t, buf.String(), "level=ERROR")
	require.Contains(t, buf.String(), "owner holds no transforms")

	buf.Reset()
	require.Equal(t, store.Invalid, s.TransformOffset(nil))
	require.Empty(t, buf.String(), "nil owners resolve silently")
}

func TestObjects_ReadOnlyView(t *testing.T) {
	s := newSession(t)
	u := &unit{kind: KindProjectile}

	_, ok := s.Objects().Lookup(u)
	require.False(t, ok, "lookups never create")
	require.Zero(t, s.Objects().Len())

	off := s.UniformsOffset(u)
	got, ok := s.Objects().Lookup(u)
	require.True(t, ok)
	require.Equal(t, off, got)
	require.Equal(t, 1, s.Objects().Stats().Creates)
}

func TestUpdate_StreamsBothStorages(t *testing.T) {
	cfg := smallConfig()
	tr, err := ringbuf.New[model.Transform](ringbuf.Config{Persistent: true})
	require.NoError(t, err)
	ur, err := ringbuf.New[model.ModelUniforms](ringbuf.Config{Persistent: true})
	require.NoError(t, err)
	t.Cleanup(func() { _ = tr.Close(); _ = ur.Close() })

	s, err := New(cfg, tr, ur, nil)
	require.NoError(t, err)

	u := &unit{kind: KindUnit}
	u.pieces, err = s.AcquireTransforms(2)
	require.NoError(t, err)
	want := model.Transform{R: model.IdentityQuaternion, T: model.Float4{X: 3}}
	require.NoError(t, u.pieces.Set(1, want))
	require.NoError(t, s.SetUniforms(u, model.ModelUniforms{ID: 5}))

	for range int(cfg.Buffering) {
		rep, err := s.Update(context.Background())
		require.NoError(t, err)
		require.False(t, rep.Transforms.Skipped)
		require.False(t, rep.Uniforms.Skipped)
	}
	require.False(t, s.Transforms().NeedsUpload())
	require.False(t, s.UniformsStorage().NeedsUpload())

	tOff := s.TransformOffset(u)
	uOff := s.UniformsOffset(u)
	for g := range int(cfg.Buffering) {
		require.Equal(t, want, tr.Contents(g)[tOff+1], "generation %d", g)
		require.Equal(t, uint16(5), ur.Contents(g)[uOff].ID, "generation %d", g)
	}

	slot, ok := ur.Bound()
	require.True(t, ok)
	require.Equal(t, uint32(UniformsBinding), slot)

	require.NoError(t, s.Close())
	_, ok = tr.Bound()
	require.False(t, ok)
	require.NoError(t, s.Close(), "close is idempotent")
}

func TestUpdate_GrowthFailureReportsStorage(t *testing.T) {
	cfg := smallConfig()
	cfg.Ring.MaxBytes = 3 * 8 * 128 // Uniforms ring fits exactly; transforms cannot pass 21 records

	s, err := NewWithRingBuffers(cfg, nil)
	require.NoError(t, err)
	defer s.Close()

	_, err = s.AcquireTransforms(20)
	require.NoError(t, err)

	rep, err := s.Update(context.Background())
	require.Error(t, err)
	require.ErrorIs(t, err, ringbuf.ErrTooLarge)
	require.Contains(t, err.Error(), "transforms")
	require.True(t, rep.Transforms.Skipped)
	require.False(t, rep.Uniforms.Skipped, "uniforms still uploaded")
	require.Equal(t, 1, s.Stats().TransformsUpload.Skipped)
}

func TestReset(t *testing.T) {
	s := newSession(t)

	u := &unit{kind: KindProjectile}
	sp, err := s.AcquireTransforms(3)
	require.NoError(t, err)
	u.pieces = sp
	require.True(t, s.UniformsOffset(u).Valid())

	s.Reset()

	st := s.Stats()
	require.Zero(t, st.Objects.Entries)
	require.Equal(t, 1, st.Transforms.Records)
	require.Equal(t, 1, st.Uniforms.Records)
	require.NoError(t, u.pieces.Release(), "stale spans release as a no-op")

	require.ErrorIs(t, u.pieces.Set(0, model.Transform{}), store.ErrInvalidSpan)
	require.True(t, s.Transforms().NeedsUpload(), "reset schedules a full upload")
}

func TestSession_LogsWithID(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))

	s, err := NewWithRingBuffers(smallConfig(), logger)
	require.NoError(t, err)
	require.NoError(t, s.Close())

	require.Contains(t, buf.String(), "session created")
	require.Contains(t, buf.String(), "session="+s.ID().String())
}

// TestSession_Concurrent runs simulation goroutines against an upload loop.
// Run with -race.
func TestSession_Concurrent(t *testing.T) {
	s := newSession(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	uploadDone := make(chan error, 1)
	go func() {
		for ctx.Err() == nil {
			if _, err := s.Update(ctx); err != nil && !errors.Is(err, context.Canceled) {
				uploadDone <- err
				return
			}
		}
		uploadDone <- nil
	}()

	var wg sync.WaitGroup
	for w := range 4 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range 50 {
				u := &unit{kind: Kind(i % 3)}
				sp, err := s.AcquireTransforms(1 + w)
				if err != nil {
					t.Error(err)
					return
				}
				u.pieces = sp
				if err := s.UpdateUniforms(u, func(m *model.ModelUniforms) { m.ID = uint16(i) }); err != nil {
					t.Error(err)
					return
				}
				if err := u.pieces.Release(); err != nil {
					t.Error(err)
					return
				}
				if err := s.RemoveObject(u); err != nil {
					t.Error(err)
					return
				}
			}
		}()
	}
	wg.Wait()
	cancel()
	require.NoError(t, <-uploadDone)

	st := s.Stats()
	require.Zero(t, st.Objects.Entries)
	require.Zero(t, st.Transforms.Alloc.LiveSpans)
	require.Zero(t, st.Uniforms.Alloc.LiveSpans)
}
