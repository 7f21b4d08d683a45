package dvs

import (
	"context"
	"errors"
	"fmt"
)

const (
	defaultBatchSize = 100

	// maxUpdateRetries bounds read-modify-write loops that lose a version race.
	maxUpdateRetries = 3
)

// Engine drives file records through Discover, Index, Reorganize and Cleanup.
// All coordination between concurrent engines happens through conditional
// updates in the RecordStore; the engine holds no locks across I/O.
type Engine struct {
	store     RecordStore
	source    SourceFilesystem
	dest      Destination
	logger    Logger
	clock     Clock
	encryptor Encryptor
	indexer   Indexer
	metrics   Metrics
	events    EventPublisher
	actor     string
	destRoot  string
	batchSize int
}

// Option configures optional Engine collaborators.
type Option func(*Engine)

// WithEncryptor encrypts files before they are written to the destination.
func WithEncryptor(enc Encryptor) Option {
	return func(e *Engine) { e.encryptor = enc }
}

// WithIndexer replaces the DefaultIndexer.
func WithIndexer(idx Indexer) Option {
	return func(e *Engine) { e.indexer = idx }
}

// WithMetrics reports lifecycle observations to m.
func WithMetrics(m Metrics) Option {
	return func(e *Engine) { e.metrics = m }
}

// WithEventPublisher publishes per-file lifecycle events to p.
func WithEventPublisher(p EventPublisher) Option {
	return func(e *Engine) { e.events = p }
}

// WithActor sets the identity recorded as deletedBy during cleanup.
func WithActor(actor string) Option {
	return func(e *Engine) { e.actor = actor }
}

// WithDestinationRoot prefixes every destination path.
func WithDestinationRoot(root string) Option {
	return func(e *Engine) { e.destRoot = root }
}

// WithBatchSize sets how many records each store query fetches.
func WithBatchSize(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.batchSize = n
		}
	}
}

// NewEngine creates an Engine over the given store and filesystems.
func NewEngine(store RecordStore, source SourceFilesystem, dest Destination, logger Logger, clock Clock, opts ...Option) *Engine {
	e := &Engine{
		store:     store,
		source:    source,
		dest:      dest,
		logger:    logger,
		clock:     clock,
		indexer:   DefaultIndexer{},
		metrics:   NopMetrics{},
		events:    NopPublisher{},
		actor:     "dvsmart",
		batchSize: defaultBatchSize,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Store returns the engine's record store.
func (e *Engine) Store() RecordStore {
	return e.store
}

// mutate reloads the record with the given ID, applies fn to it and writes it
// back with a version check, retrying when another writer got there first.
// fn returns false to leave the record untouched.
func (e *Engine) mutate(ctx context.Context, id string, fn func(rec *FileRecord) (bool, error)) (*FileRecord, bool, error) {
	for attempt := 1; ; attempt++ {
		rec, err := e.store.GetFile(ctx, id)
		if err != nil {
			return nil, false, fmt.Errorf("loading file %s: %w", id, err)
		}
		if rec == nil {
			return nil, false, fmt.Errorf("file %s: %w", id, ErrNotFound)
		}

		changed, err := fn(rec)
		if err != nil {
			return nil, false, err
		}
		if !changed {
			return rec, false, nil
		}

		err = e.store.UpdateFile(ctx, rec)
		if err == nil {
			return rec, true, nil
		}
		if !errors.Is(err, ErrConflict) || attempt >= maxUpdateRetries {
			return nil, false, fmt.Errorf("updating file %s: %w", id, err)
		}
		e.logger.Debug("retrying update after version conflict", "id", id, "attempt", attempt)
	}
}

func (e *Engine) publish(ctx context.Context, ev Event) {
	if ev.At.IsZero() {
		ev.At = e.clock.Now()
	}
	if err := e.events.Publish(ctx, ev); err != nil {
		e.logger.Warn("publishing event failed", "type", string(ev.Type), "error", err)
	}
}

// isRecordLevel reports whether err concerns a single record and should be
// counted against that record instead of aborting the phase.
func isRecordLevel(err error) bool {
	var te *TransitionError
	return errors.Is(err, ErrNotFound) || errors.Is(err, ErrConflict) ||
		errors.Is(err, ErrInvalidRecord) || errors.As(err, &te)
}
