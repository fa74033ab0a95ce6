// Package session owns one world's record storages and their uploaders.
//
// A Session replaces process-wide storages: everything that allocates
// transforms, looks up uniforms or drives uploads receives the Session it
// belongs to. Two sessions never share state.
package session

import (
	"context"
	"io"
	"log/slog"
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"

	"github.com/joshuapare/modelstore/model"
	"github.com/joshuapare/modelstore/store"
	"github.com/joshuapare/modelstore/store/index"
	"github.com/joshuapare/modelstore/store/ringbuf"
	"github.com/joshuapare/modelstore/store/upload"
)

var (
	// ErrNoUniforms indicates a uniforms write for an object kind that does not
	// own a uniforms record.
	ErrNoUniforms = errors.New("session: object kind has no uniforms record")

	// ErrNoTransforms indicates an owner whose transform span is released,
	// moved-from or a dummy.
	ErrNoTransforms = errors.New("session: owner holds no transforms")
)

// Session holds the transform and uniforms storages of one world.
type Session struct {
	id     uuid.UUID
	cfg    Config
	logger *slog.Logger

	transforms *store.Storage[model.Transform]
	uniforms   *store.Storage[model.ModelUniforms]
	objects    *index.Index[Object, model.ModelUniforms]

	transformsUp *upload.Uploader[model.Transform]
	uniformsUp   *upload.Uploader[model.ModelUniforms]

	closers   []io.Closer
	closeOnce sync.Once
	closeErr  error
}

// Report describes one Update call.
type Report struct {
	Transforms upload.Report
	Uniforms   upload.Report
}

// Stats reports session metrics.
type Stats struct {
	ID               uuid.UUID
	Transforms       store.Stats
	Uniforms         store.Stats
	Objects          index.Stats
	TransformsUpload upload.Stats
	UniformsUpload   upload.Stats
}

// New creates a session that streams into the given buffers.
func New(cfg Config, transformsBuf upload.Buffer[model.Transform], uniformsBuf upload.Buffer[model.ModelUniforms], logger *slog.Logger) (*Session, error) {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	id := uuid.New()
	logger = logger.With("session", id.String())

	s := &Session{
		id:     id,
		cfg:    cfg,
		logger: logger,
		transforms: store.New(store.Config{
			Name:      "transforms",
			Alloc:     cfg.Transforms,
			Buffering: cfg.Buffering,
			Logger:    logger,
		}, model.IdentityTransform()),
		uniforms: store.New(store.Config{
			Name:      "uniforms",
			Alloc:     cfg.Uniforms,
			Buffering: cfg.Buffering,
			Logger:    logger,
		}, model.ModelUniforms{}),
	}
	s.objects = index.New[Object](s.uniforms, model.ModelUniforms{}, cfg.Uniforms.InitialCapacity)

	var err error
	s.transformsUp, err = upload.New(s.transforms, transformsBuf, cfg.TransformsUpload, logger)
	if err != nil {
		return nil, errors.Wrap(err, "transforms uploader")
	}
	s.uniformsUp, err = upload.New(s.uniforms, uniformsBuf, cfg.UniformsUpload, logger)
	if err != nil {
		_ = s.transformsUp.Close()
		return nil, errors.Wrap(err, "uniforms uploader")
	}

	logger.Info("session created",
		"transforms_capacity", s.transformsUp.Config().InitialCapacity,
		"uniforms_capacity", s.uniformsUp.Config().InitialCapacity)
	return s, nil
}

// NewWithRingBuffers creates a session backed by in-process ring buffers.
// Close releases them.
func NewWithRingBuffers(cfg Config, logger *slog.Logger) (*Session, error) {
	ringCfg := cfg.Ring
	ringCfg.Generations = int(cfg.Buffering)
	ringCfg.Logger = logger

	ringCfg.Name = "transforms"
	tr, err := ringbuf.New[model.Transform](ringCfg)
	if err != nil {
		return nil, err
	}
	ringCfg.Name = "uniforms"
	ur, err := ringbuf.New[model.ModelUniforms](ringCfg)
	if err != nil {
		return nil, errors.CombineErrors(err, tr.Close())
	}

	s, err := New(cfg, tr, ur, logger)
	if err != nil {
		return nil, errors.CombineErrors(err, errors.CombineErrors(tr.Close(), ur.Close()))
	}
	s.closers = append(s.closers, tr, ur)
	return s, nil
}

// ID returns the session identifier used in logs.
func (s *Session) ID() uuid.UUID { return s.id }

// Config returns the configuration the session was built with.
func (s *Session) Config() Config { return s.cfg }

// Objects returns the read side of the uniforms identity index.
func (s *Session) Objects() index.ReadOnly[Object] { return s.objects }

// Transforms returns the transform storage.
func (s *Session) Transforms() *store.Storage[model.Transform] { return s.transforms }

// UniformsStorage returns the uniforms storage.
func (s *Session) UniformsStorage() *store.Storage[model.ModelUniforms] { return s.uniforms }

// AcquireTransforms allocates n transforms, one per model piece. Released
// spans are overwritten with the zero transform.
func (s *Session) AcquireTransforms(n int) (*store.Span[model.Transform], error) {
	return store.AcquireSpan(s.transforms, n, model.ZeroTransform())
}

// TransformOffset returns the first transform of owner, or store.Invalid
// when owner is nil or holds no transforms. The latter is logged.
func (s *Session) TransformOffset(owner TransformOwner) store.Offset {
	return upload.Resolve(s.logger, "transforms", owner, resolveTransforms)
}

func resolveTransforms(o TransformOwner) (store.Offset, error) {
	sp := o.Transforms()
	if !sp.Valid() {
		return store.Invalid, errors.Wrapf(ErrNoTransforms, "%T", o)
	}
	return sp.Offset(), nil
}

// UniformsOffset returns the uniforms record of obj, creating it on first
// use. Nil objects and kinds without uniforms resolve to store.Invalid.
func (s *Session) UniformsOffset(obj Object) store.Offset {
	return upload.Resolve(s.logger, "uniforms", obj, s.resolveUniforms)
}

func (s *Session) resolveUniforms(obj Object) (store.Offset, error) {
	if !obj.Kind().OwnsUniforms() {
		return store.Invalid, nil
	}
	return s.objects.GetOrCreate(obj)
}

// Uniforms returns the uniforms of obj. Objects without a record read the
// sentinel.
func (s *Session) Uniforms(obj Object) (model.ModelUniforms, error) {
	if store.IsNil(obj) || !obj.Kind().OwnsUniforms() {
		return s.uniforms.Get(store.Invalid)
	}
	return s.objects.Get(obj)
}

// SetUniforms overwrites the uniforms of obj.
func (s *Session) SetUniforms(obj Object, v model.ModelUniforms) error {
	if err := checkOwner(obj); err != nil {
		return err
	}
	return s.objects.Set(obj, v)
}

// UpdateUniforms mutates the uniforms of obj in place.
func (s *Session) UpdateUniforms(obj Object, fn func(*model.ModelUniforms)) error {
	if err := checkOwner(obj); err != nil {
		return err
	}
	return s.objects.Update(obj, fn)
}

func checkOwner(obj Object) error {
	if store.IsNil(obj) {
		return errors.Wrap(ErrNoUniforms, "nil object")
	}
	if k := obj.Kind(); !k.OwnsUniforms() {
		return errors.Wrapf(ErrNoUniforms, "kind %s", k)
	}
	return nil
}

// RemoveObject frees the uniforms record of a destroyed object.
// Objects that never owned a record are ignored.
func (s *Session) RemoveObject(obj Object) error {
	if store.IsNil(obj) || !obj.Kind().OwnsUniforms() {
		return nil
	}
	// Objects that were never looked up have nothing to free.
	_, err := s.objects.TryRemove(obj)
	return err
}

// Update runs one upload cycle on both storages. A failure in one storage
// does not stop the other.
func (s *Session) Update(ctx context.Context) (Report, error) {
	var rep Report
	var errT, errU error
	rep.Transforms, errT = s.transformsUp.Update(ctx)
	rep.Uniforms, errU = s.uniformsUp.Update(ctx)
	return rep, errors.CombineErrors(
		errors.Wrap(errT, "transforms"),
		errors.Wrap(errU, "uniforms"),
	)
}

// Reset drops every record of both storages. Spans acquired before the
// reset become stale and identities are forgotten.
func (s *Session) Reset() {
	s.transforms.Reset()
	s.uniforms.Reset()
	s.logger.Info("session reset")
}

// Close unbinds both buffers and releases buffers the session created.
func (s *Session) Close() error {
	s.closeOnce.Do(func() {
		err := errors.CombineErrors(s.transformsUp.Close(), s.uniformsUp.Close())
		for _, c := range s.closers {
			err = errors.CombineErrors(err, c.Close())
		}
		s.closeErr = err
		s.logger.Info("session closed")
	})
	return s.closeErr
}

// Stats returns a snapshot of session metrics.
func (s *Session) Stats() Stats {
	return Stats{
		ID:               s.id,
		Transforms:       s.transforms.Stats(),
		Uniforms:         s.uniforms.Stats(),
		Objects:          s.objects.Stats(),
		TransformsUpload: s.transformsUp.Stats(),
		UniformsUpload:   s.uniformsUp.Stats(),
	}
}
