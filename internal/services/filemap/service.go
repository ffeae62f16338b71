// Package filemap exposes the live tree model: full builds, incremental watch
// updates, debounced change delivery and text rendering.
package filemap

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"github.com/temirov/ctxtree/internal/ignore"
	"github.com/temirov/ctxtree/internal/metrics"
	"github.com/temirov/ctxtree/internal/services/notifier"
	"github.com/temirov/ctxtree/internal/tree"
	"github.com/temirov/ctxtree/internal/types"
)

var (
	// ErrServiceClosed is returned by operations on a closed Service.
	ErrServiceClosed = errors.New("file map service closed")
	// ErrNoWatcher is returned by StartWatching when no WatchCapability was configured.
	ErrNoWatcher = errors.New("no watch capability configured")
)

const (
	errorAbsolutePathFormat = "getting absolute path for %s: %w"
	errorBuildTreeFormat    = "building tree for %s: %w"
	errorStartWatchFormat   = "starting watch for %s: %w"
	errorStopWatchFormat    = "stopping watch %s: %w"

	logMessageTreeBuilt      = "tree built"
	logMessageDetailsFailed  = "detail population failed"
	logMessageBatchApplied   = "watch batch applied"
	logMessageWatchStarted   = "watching tree"
	logMessageBatchAfterStop = "dropping watch batch after close"
	logFieldRoot             = "root"
	logFieldPath             = "path"
	logFieldNodes            = "nodes"
	logFieldEvents           = "events"
	logFieldChanged          = "changed"
	logFieldDuration         = "duration"
)

// Callback receives a private snapshot of the tree after a quiet period.
type Callback func(snapshot types.TreeSnapshot)

// Service owns the tree model. Builds and watch batches are serialized; detail
// population runs concurrently and only writes results for placements that
// are still current.
type Service struct {
	options   Options
	logger    *zap.Logger
	populator *tree.DetailPopulator
	notifier  *notifier.Notifier

	// mutationMutex serializes builds and event batches.
	mutationMutex sync.Mutex
	matcher       *ignore.Matcher
	detailContext context.Context
	cancelDetails context.CancelFunc

	// storeMutex guards store for short reads and writes.
	storeMutex sync.RWMutex
	store      *tree.Store

	detailSlots *semaphore.Weighted
	detailGroup sync.WaitGroup

	subscribersMutex sync.Mutex
	subscribers      map[string]Callback

	// watchMutex serializes StartWatching and StopWatching.
	watchMutex   sync.Mutex
	watchID      string
	watchSession atomic.Uint64

	lifetimeContext context.Context
	cancelLifetime  context.CancelFunc
	closed          atomic.Bool
}

// NewService returns a Service with an empty model.
func NewService(options Options) *Service {
	options = options.withDefaults()
	lifetimeContext, cancelLifetime := context.WithCancel(context.Background())
	service := &Service{
		options:         options,
		logger:          options.Logger,
		populator:       &tree.DetailPopulator{Detector: options.Detector, Counter: options.Counter},
		store:           tree.NewStore(),
		detailSlots:     semaphore.NewWeighted(int64(options.DetailWorkers)),
		subscribers:     make(map[string]Callback),
		lifetimeContext: lifetimeContext,
		cancelLifetime:  cancelLifetime,
		detailContext:   lifetimeContext,
		cancelDetails:   func() {},
	}
	service.notifier = notifier.New(options.DebounceWindow, service.deliver)
	return service
}

// BuildTree scans rootPath and replaces the model with the result. Any
// pending notification is cancelled and detail work for the previous model
// is abandoned. Failure to read the root fails the build and leaves the
// previous model in place.
func (service *Service) BuildTree(ctx context.Context, rootPath string) (types.TreeSnapshot, error) {
	if service.closed.Load() {
		return types.TreeSnapshot{}, ErrServiceClosed
	}
	absoluteRoot, absoluteError := filepath.Abs(rootPath)
	if absoluteError != nil {
		return types.TreeSnapshot{}, fmt.Errorf(errorAbsolutePathFormat, rootPath, absoluteError)
	}

	service.mutationMutex.Lock()
	defer service.mutationMutex.Unlock()
	if service.closed.Load() {
		return types.TreeSnapshot{}, ErrServiceClosed
	}

	service.notifier.Cancel()
	matcher := ignore.NewMatcher(absoluteRoot, service.options.Patterns.IgnorePatterns())
	builder := &tree.Builder{Matcher: matcher, Logger: service.logger, Concurrency: service.options.ScanWorkers}
	startTime := time.Now()
	nodes, buildError := builder.Build(ctx, absoluteRoot, "")
	metrics.RecordBuild(time.Since(startTime), buildError == nil)
	if buildError != nil {
		return types.TreeSnapshot{}, fmt.Errorf(errorBuildTreeFormat, absoluteRoot, buildError)
	}

	service.cancelDetails()
	service.detailContext, service.cancelDetails = context.WithCancel(service.lifetimeContext)
	service.matcher = matcher

	service.storeMutex.Lock()
	pending := service.store.Replace(absoluteRoot, nodes)
	snapshot := service.store.Snapshot()
	service.storeMutex.Unlock()

	metrics.SetTreeNodes(len(snapshot.Nodes))
	service.logger.Debug(logMessageTreeBuilt,
		zap.String(logFieldRoot, absoluteRoot),
		zap.Int(logFieldNodes, len(snapshot.Nodes)),
		zap.Duration(logFieldDuration, time.Since(startTime)))
	service.scheduleDetails(service.detailContext, pending)
	service.notifier.Notify()
	return snapshot, nil
}

// ApplyWatchEvents applies a batch of watch events in order. Effects are
// observed through OnTreeChanged.
func (service *Service) ApplyWatchEvents(ctx context.Context, events []types.WatchEvent) error {
	if service.closed.Load() {
		return ErrServiceClosed
	}
	service.mutationMutex.Lock()
	defer service.mutationMutex.Unlock()
	if service.closed.Load() {
		return ErrServiceClosed
	}

	applier := &tree.Applier{
		Builder: &tree.Builder{Matcher: service.matcher, Logger: service.logger, Concurrency: service.options.ScanWorkers},
		Lock:    &service.storeMutex,
		Logger:  service.logger,
	}
	result := applier.Apply(ctx, service.store, events)

	for _, event := range events {
		metrics.RecordWatchEvent(event.Kind.String())
	}
	metrics.RecordWatchBatch()
	service.logger.Debug(logMessageBatchApplied, zap.Int(logFieldEvents, len(events)), zap.Bool(logFieldChanged, result.Changed))

	service.scheduleDetails(service.detailContext, result.Pending)
	if result.Changed {
		service.storeMutex.RLock()
		nodeCount := service.store.Len()
		service.storeMutex.RUnlock()
		metrics.SetTreeNodes(nodeCount)
		service.notifier.Notify()
	}
	return nil
}

// OnTreeChanged subscribes callback to debounced change delivery and
// returns the subscription id.
func (service *Service) OnTreeChanged(callback Callback) string {
	subscriptionID := uuid.NewString()
	service.subscribersMutex.Lock()
	service.subscribers[subscriptionID] = callback
	service.subscribersMutex.Unlock()
	return subscriptionID
}

// Unsubscribe removes a subscription. It reports whether the id was known.
func (service *Service) Unsubscribe(subscriptionID string) bool {
	service.subscribersMutex.Lock()
	defer service.subscribersMutex.Unlock()
	if _, exists := service.subscribers[subscriptionID]; !exists {
		return false
	}
	delete(service.subscribers, subscriptionID)
	return true
}

// Snapshot returns a deep copy of the current model.
func (service *Service) Snapshot() types.TreeSnapshot {
	service.storeMutex.RLock()
	defer service.storeMutex.RUnlock()
	return service.store.Snapshot()
}

// FlattenedTreeText renders the current model as a text tree.
func (service *Service) FlattenedTreeText() string {
	return tree.RenderText(service.Snapshot())
}

// StartWatching ends the previous watch session, builds rootPath and
// subscribes to its changes. Batches from earlier sessions are dropped.
func (service *Service) StartWatching(ctx context.Context, rootPath string) (types.TreeSnapshot, error) {
	if service.options.Watcher == nil {
		return types.TreeSnapshot{}, ErrNoWatcher
	}
	service.watchMutex.Lock()
	defer service.watchMutex.Unlock()

	if stopError := service.stopWatchingLocked(); stopError != nil {
		service.logger.Warn(stopError.Error())
	}
	session := service.watchSession.Add(1)
	snapshot, buildError := service.BuildTree(ctx, rootPath)
	if buildError != nil {
		return types.TreeSnapshot{}, buildError
	}

	service.mutationMutex.Lock()
	matcher := service.matcher
	service.mutationMutex.Unlock()

	watchID, watchError := service.options.Watcher.Watch(snapshot.Root, matcher, func(events []types.WatchEvent) {
		if service.watchSession.Load() != session {
			return
		}
		if applyError := service.ApplyWatchEvents(service.lifetimeContext, events); applyError != nil {
			service.logger.Debug(logMessageBatchAfterStop, zap.Error(applyError))
		}
	})
	if watchError != nil {
		return types.TreeSnapshot{}, fmt.Errorf(errorStartWatchFormat, snapshot.Root, watchError)
	}
	service.watchID = watchID
	service.logger.Info(logMessageWatchStarted, zap.String(logFieldRoot, snapshot.Root))
	return snapshot, nil
}

// StopWatching ends the current watch session, if any.
func (service *Service) StopWatching() error {
	service.watchMutex.Lock()
	defer service.watchMutex.Unlock()
	return service.stopWatchingLocked()
}

func (service *Service) stopWatchingLocked() error {
	service.watchSession.Add(1)
	if service.watchID == "" {
		return nil
	}
	watchID := service.watchID
	service.watchID = ""
	if unwatchError := service.options.Watcher.Unwatch(watchID); unwatchError != nil {
		return fmt.Errorf(errorStopWatchFormat, watchID, unwatchError)
	}
	return nil
}

// WaitForDetails blocks until detail population scheduled so far has
// finished. It must not race with a BuildTree or ApplyWatchEvents call.
func (service *Service) WaitForDetails() {
	service.detailGroup.Wait()
}

// Close stops watching and change delivery and abandons in-flight detail
// work. It waits for a running build or batch to finish. No callback runs
// after Close returns. Close is idempotent.
func (service *Service) Close() error {
	if service.closed.Swap(true) {
		return nil
	}
	stopError := service.StopWatching()
	service.notifier.Stop()
	service.cancelLifetime()
	// mutations that passed the closed check finish scheduling before the wait
	service.mutationMutex.Lock()
	service.mutationMutex.Unlock()
	service.detailGroup.Wait()
	return stopError
}

// scheduleDetails populates pending files on the detail pool. Results are
// written only while ctx is live and the placement is still current.
func (service *Service) scheduleDetails(ctx context.Context, pending []tree.PendingDetail) {
	if len(pending) == 0 {
		return
	}
	service.detailGroup.Add(1)
	go func() {
		defer service.detailGroup.Done()
		for _, placement := range pending {
			if acquireError := service.detailSlots.Acquire(ctx, 1); acquireError != nil {
				return
			}
			service.detailGroup.Add(1)
			go func(placement tree.PendingDetail) {
				defer service.detailGroup.Done()
				defer service.detailSlots.Release(1)
				service.populate(ctx, placement)
			}(placement)
		}
	}()
}

func (service *Service) populate(ctx context.Context, placement tree.PendingDetail) {
	details, populateError := service.populator.Populate(ctx, placement.Path)
	if populateError != nil {
		if ctx.Err() == nil {
			service.logger.Warn(logMessageDetailsFailed, zap.String(logFieldPath, placement.Path), zap.Error(populateError))
			metrics.RecordDetailResult(metrics.DetailFailed)
		}
		return
	}
	service.storeMutex.Lock()
	written := ctx.Err() == nil && service.store.SetDetails(placement.Path, placement.Revision, details)
	service.storeMutex.Unlock()
	if !written {
		metrics.RecordDetailResult(metrics.DetailDiscarded)
		return
	}
	metrics.RecordDetailResult(metrics.DetailWritten)
	service.notifier.Notify()
}

// deliver hands every subscriber its own snapshot.
func (service *Service) deliver() {
	if service.closed.Load() {
		return
	}
	service.subscribersMutex.Lock()
	callbacks := make([]Callback, 0, len(service.subscribers))
	for _, callback := range service.subscribers {
		callbacks = append(callbacks, callback)
	}
	service.subscribersMutex.Unlock()
	if len(callbacks) == 0 {
		return
	}
	metrics.RecordNotification()
	for _, callback := range callbacks {
		callback(service.Snapshot())
	}
}
