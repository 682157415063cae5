package handler

import (
	"bytes"
	"context"
	"io"
	"sync"
	"time"

	"github.com/devrev/securegpx/internal/admission"
	"github.com/devrev/securegpx/internal/errors"
	"github.com/devrev/securegpx/internal/metrics"
	"github.com/devrev/securegpx/internal/model"
	"github.com/devrev/securegpx/internal/queue"
	"github.com/devrev/securegpx/internal/store"
	"go.uber.org/zap"
)

// Opener opens the destination a save writes to
type Opener func() (io.WriteCloser, error)

// Config holds handler dependencies. Queue may be shared by many handlers.
type Config struct {
	Store   *store.Store
	Queue   *queue.Queue
	Policy  admission.Policy
	Metrics *metrics.Metrics
	Logger  *zap.Logger
	// Clock stamps admitted points, time.Now when nil
	Clock func() time.Time
}

// Handler is the producer-facing API of one store. Every mutation is
// submitted to the queue and applied on its worker; methods return once the
// task is enqueued.
type Handler struct {
	store   *store.Store
	queue   *queue.Queue
	policy  admission.Policy
	metrics *metrics.Metrics
	logger  *zap.Logger
	clock   func() time.Time

	changeListeners registry[ChangeListener]
	saveListeners   registry[SaveListener]

	mu          sync.Mutex
	destination Opener
}

// New creates a handler
func New(cfg Config) *Handler {
	if cfg.Policy == nil {
		cfg.Policy = admission.Always{}
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}
	return &Handler{
		store:   cfg.Store,
		queue:   cfg.Queue,
		policy:  cfg.Policy,
		metrics: cfg.Metrics,
		logger:  cfg.Logger,
		clock:   cfg.Clock,
	}
}

// Store returns the underlying store. Reading it off the worker races with
// pending tasks; read from a listener or after Flush.
func (h *Handler) Store() *store.Store {
	return h.store
}

// ProcessWaypoint records a free waypoint stamped with the current time
func (h *Handler) ProcessWaypoint(name string, lat, lng, accuracy float64, alt *float64) error {
	now := h.clock()
	h.metrics.RecordAdmission(true)
	return h.submit(queue.ActionChangeData, func(context.Context) error {
		h.store.AddWaypoint(name, lat, lng, now, accuracy, alt)
		return nil
	})
}

// ProcessTrackpoint records a track point if the admission policy accepts it
func (h *Handler) ProcessTrackpoint(track string, lat, lng, accuracy float64, alt *float64) error {
	now := h.clock()
	candidate := model.NewWayPoint("", lat, lng, now, accuracy).WithAltitude(alt)
	if !h.policy.Admit(track, candidate) {
		h.metrics.RecordAdmission(false)
		h.logger.Debug("Track point not admitted",
			zap.String("track", track),
			zap.Float64("lat", lat),
			zap.Float64("lng", lng))
		return nil
	}
	h.metrics.RecordAdmission(true)
	return h.AddTrackPoint(track, "", lat, lng, accuracy, alt, now)
}

// AddTrackPoint records a track point as given, bypassing admission
func (h *Handler) AddTrackPoint(track, name string, lat, lng, accuracy float64, alt *float64, at time.Time) error {
	return h.submit(queue.ActionChangeData, func(context.Context) error {
		h.store.AddTrackPoint(track, name, lat, lng, at, accuracy, alt)
		return nil
	})
}

// RequestValidation reports the validity of the chain to cb from the worker
func (h *Handler) RequestValidation(cb func(valid bool)) error {
	return h.submit(queue.ActionValidation, func(context.Context) error {
		cb(h.store.IsValid())
		return nil
	})
}

// Repair rewrites every hash of the chain and reports the resulting
// validity to cb, which may be nil
func (h *Handler) Repair(cb func(valid bool)) error {
	return h.submit(queue.ActionChangeData, func(context.Context) error {
		valid := h.store.Validate(true)
		h.store.MarkChanged()
		if cb != nil {
			cb(valid)
		}
		return nil
	})
}

// RemoveLocation removes a point
func (h *Handler) RemoveLocation(p *model.WayPoint) error {
	return h.submit(queue.ActionChangeData, func(context.Context) error {
		if !h.store.RemoveLocation(p) {
			return errors.PointNotFound("point is not part of the store")
		}
		return nil
	})
}

// RemoveSegment removes a whole segment
func (h *Handler) RemoveSegment(seg *model.TrackSegment) error {
	return h.submit(queue.ActionChangeData, func(context.Context) error {
		if !h.store.RemoveSegment(seg) {
			return errors.InvalidArgument("segment is not part of the store", nil)
		}
		return nil
	})
}

// RemoveTrack deletes a track. The orphaned points are passed to done, which
// may be nil.
func (h *Handler) RemoveTrack(name string, done func(orphans []*model.WayPoint)) error {
	return h.submit(queue.ActionChangeData, func(context.Context) error {
		orphans, err := h.store.RemoveTrack(name)
		if err != nil {
			return err
		}
		if done != nil {
			done(orphans)
		}
		return nil
	})
}

func (h *Handler) RenameTrack(oldName, newName string) error {
	return h.submit(queue.ActionChangeData, func(context.Context) error {
		return h.store.RenameTrack(oldName, newName)
	})
}

// ChangeTrackFromWaypoint moves p, the rest of its segment and all later
// segments of its track into the named track
func (h *Handler) ChangeTrackFromWaypoint(p *model.WayPoint, track string) error {
	return h.submit(queue.ActionChangeData, func(context.Context) error {
		if !h.store.MovePointsToTrack(p, track) {
			h.logger.Debug("Nothing to move", zap.String("track", track))
		}
		return nil
	})
}

// Locations reads through to the store, see Store for the caveats
func (h *Handler) Locations() []*model.WayPoint {
	return h.store.Locations()
}

func (h *Handler) TrackLocations(name string) []*model.WayPoint {
	return h.store.TrackLocations(name)
}

func (h *Handler) SortedTracks() []*model.Track {
	return h.store.SortedTracks()
}

// Subscribe registers a listener for data changes and initialization
func (h *Handler) Subscribe(l ChangeListener) Subscription {
	return h.changeListeners.add(l)
}

// Unsubscribe removes a change listener and reports whether it was known
func (h *Handler) Unsubscribe(s Subscription) bool {
	return h.changeListeners.remove(s)
}

// OnSave registers a listener for the next successful save only
func (h *Handler) OnSave(l SaveListener) Subscription {
	return h.saveListeners.add(l)
}

// RemoveSaveListener removes a pending save listener
func (h *Handler) RemoveSaveListener(s Subscription) bool {
	return h.saveListeners.remove(s)
}

// Load reads r right away and replaces the store content on the worker.
// A document that fails to decode leaves the store empty and not
// initialized; change listeners are notified either way.
func (h *Handler) Load(r io.Reader) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return errors.InvalidArgument("failed to read gpx input", err)
	}
	return h.submit(queue.ActionInit, func(context.Context) error {
		return h.store.Load(bytes.NewReader(data))
	})
}

// SetDestination sets where Save writes to
func (h *Handler) SetDestination(o Opener) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.destination = o
}

// Save encodes the store to the destination on the worker. A missing
// destination is reported right away and nothing is queued.
func (h *Handler) Save() error {
	h.mu.Lock()
	open := h.destination
	h.mu.Unlock()
	if open == nil {
		return errors.NoDestination()
	}

	return h.submit(queue.ActionSave, func(context.Context) error {
		w, err := open()
		if err != nil {
			return errors.WriteFailed("failed to open destination", err)
		}
		if err := h.store.Write(w); err != nil {
			if cerr := w.Close(); cerr != nil {
				h.logger.Warn("Failed to close destination after write error",
					zap.Error(cerr))
			}
			return err
		}
		if err := w.Close(); err != nil {
			return errors.WriteFailed("failed to close destination", err)
		}
		h.store.MarkSaved()
		h.logger.Info("Saved gpx document",
			zap.String("name", h.store.Name()),
			zap.Int("points", h.store.Size()))
		return nil
	})
}

// Flush waits until every task submitted so far has run
func (h *Handler) Flush(ctx context.Context) error {
	return h.queue.Flush(ctx)
}

func (h *Handler) submit(action queue.Action, fn func(context.Context) error) error {
	return h.queue.Submit(queue.Task{
		Action: action,
		Fn:     fn,
		Notify: func(err error) {
			h.notify(action, err)
		},
	})
}

// notify dispatches listeners after a task. Change listeners also run when
// the task failed since the store may have been partly mutated.
func (h *Handler) notify(action queue.Action, err error) {
	switch action {
	case queue.ActionChangeData, queue.ActionInit:
		for _, l := range h.changeListeners.snapshot() {
			l(h.store)
		}
	case queue.ActionSave:
		if err != nil {
			return
		}
		for _, l := range h.saveListeners.drain() {
			l(h.store)
		}
	}
}
