// Package watcher delivers batched filesystem change events for a directory tree.
package watcher

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/temirov/ctxtree/internal/ignore"
	"github.com/temirov/ctxtree/internal/types"
)

// DefaultBatchWindow is how long raw events are collected before delivery.
const DefaultBatchWindow = 50 * time.Millisecond

const (
	errorCreateWatcherFormat = "creating watcher for %s: %w"
	errorWatchRootFormat     = "watching %s: %w"
	errorCloseWatcherFormat  = "closing watcher %s: %w"

	logMessageWatchDirectory = "unable to watch directory"
	logMessageWatchError     = "watcher error"
	logFieldPath             = "path"
	logFieldSubscription     = "subscription"
)

// ErrUnknownSubscription is returned by Unwatch for ids it never issued or already released.
var ErrUnknownSubscription = errors.New("unknown watch subscription")

// Handler receives one batch of events. Batches of a subscription are
// delivered one at a time.
type Handler func(events []types.WatchEvent)

// Service manages fsnotify subscriptions.
type Service struct {
	logger      *zap.Logger
	batchWindow time.Duration

	mutex         sync.Mutex
	subscriptions map[string]*subscription
}

// NewService returns a Service. A non-positive batchWindow selects
// DefaultBatchWindow.
func NewService(logger *zap.Logger, batchWindow time.Duration) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	if batchWindow <= 0 {
		batchWindow = DefaultBatchWindow
	}
	return &Service{
		logger:        logger,
		batchWindow:   batchWindow,
		subscriptions: make(map[string]*subscription),
	}
}

// Watch registers root and every non-ignored directory below it and starts
// delivering batches to handler. It returns the subscription id.
func (service *Service) Watch(root string, matcher *ignore.Matcher, handler Handler) (string, error) {
	fsWatcher, creationError := fsnotify.NewWatcher()
	if creationError != nil {
		return "", fmt.Errorf(errorCreateWatcherFormat, root, creationError)
	}
	newSubscription := &subscription{
		id:          uuid.NewString(),
		root:        filepath.Clean(root),
		matcher:     matcher,
		watcher:     fsWatcher,
		handler:     handler,
		batchWindow: service.batchWindow,
		done:        make(chan struct{}),
	}
	newSubscription.logger = service.logger.With(zap.String(logFieldSubscription, newSubscription.id))
	if addError := newSubscription.addRecursive(newSubscription.root); addError != nil {
		_ = fsWatcher.Close()
		return "", fmt.Errorf(errorWatchRootFormat, root, addError)
	}

	service.mutex.Lock()
	service.subscriptions[newSubscription.id] = newSubscription
	service.mutex.Unlock()

	newSubscription.waitGroup.Add(1)
	go newSubscription.run()
	return newSubscription.id, nil
}

// Unwatch stops the subscription and waits until its last batch was handled.
// It must not be called from the subscription's own handler.
func (service *Service) Unwatch(id string) error {
	service.mutex.Lock()
	existing, found := service.subscriptions[id]
	delete(service.subscriptions, id)
	service.mutex.Unlock()
	if !found {
		return ErrUnknownSubscription
	}
	return existing.stop()
}

// UnwatchAll stops every subscription.
func (service *Service) UnwatchAll() error {
	service.mutex.Lock()
	stopping := make([]*subscription, 0, len(service.subscriptions))
	for id, existing := range service.subscriptions {
		stopping = append(stopping, existing)
		delete(service.subscriptions, id)
	}
	service.mutex.Unlock()

	var stopErrors []error
	for _, existing := range stopping {
		if stopError := existing.stop(); stopError != nil {
			stopErrors = append(stopErrors, stopError)
		}
	}
	return errors.Join(stopErrors...)
}

// Active returns the number of running subscriptions.
func (service *Service) Active() int {
	service.mutex.Lock()
	defer service.mutex.Unlock()
	return len(service.subscriptions)
}

type subscription struct {
	id          string
	root        string
	matcher     *ignore.Matcher
	watcher     *fsnotify.Watcher
	handler     Handler
	logger      *zap.Logger
	batchWindow time.Duration
	done        chan struct{}
	waitGroup   sync.WaitGroup
}

// addRecursive watches directory and its non-ignored descendants. Only a
// failure on directory itself is returned. directory may be a symlink to a
// directory; links below it are not followed.
func (current *subscription) addRecursive(directory string) error {
	if addError := current.watcher.Add(directory); addError != nil {
		return addError
	}
	entries, readError := os.ReadDir(directory)
	if readError != nil {
		return readError
	}
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		current.addTree(filepath.Join(directory, entry.Name()))
	}
	return nil
}

// addTree watches every non-ignored directory at and below top, logging
// failures.
func (current *subscription) addTree(top string) {
	_ = filepath.WalkDir(top, func(path string, entry fs.DirEntry, walkError error) error {
		if walkError != nil {
			current.logger.Warn(logMessageWatchDirectory, zap.String(logFieldPath, path), zap.Error(walkError))
			return nil
		}
		if !entry.IsDir() {
			return nil
		}
		if current.matcher.Matches(path, true) {
			return filepath.SkipDir
		}
		if addError := current.watcher.Add(path); addError != nil {
			current.logger.Warn(logMessageWatchDirectory, zap.String(logFieldPath, path), zap.Error(addError))
		}
		return nil
	})
}

func (current *subscription) run() {
	defer current.waitGroup.Done()
	var pending []types.WatchEvent
	var flushTimer *time.Timer
	var flush <-chan time.Time
	for {
		select {
		case <-current.done:
			if flushTimer != nil {
				flushTimer.Stop()
			}
			return
		case rawEvent, open := <-current.watcher.Events:
			if !open {
				return
			}
			event, relevant := convertEvent(rawEvent)
			if !relevant {
				continue
			}
			if event.Kind == types.WatchEventCreate {
				current.watchCreatedDirectory(event.Path)
			}
			pending = append(pending, event)
			if flush == nil {
				flushTimer = time.NewTimer(current.batchWindow)
				flush = flushTimer.C
			}
		case <-flush:
			batch := pending
			pending = nil
			flushTimer = nil
			flush = nil
			if current.handler != nil {
				current.handler(batch)
			}
		case watchError, open := <-current.watcher.Errors:
			if !open {
				return
			}
			current.logger.Warn(logMessageWatchError, zap.Error(watchError))
		}
	}
}

// watchCreatedDirectory extends the watch to a directory created after Watch.
func (current *subscription) watchCreatedDirectory(path string) {
	info, statError := os.Lstat(path)
	if statError != nil || !info.IsDir() || current.matcher.Matches(path, true) {
		return
	}
	if addError := current.addRecursive(path); addError != nil {
		current.logger.Warn(logMessageWatchDirectory, zap.String(logFieldPath, path), zap.Error(addError))
	}
}

func (current *subscription) stop() error {
	close(current.done)
	closeError := current.watcher.Close()
	current.waitGroup.Wait()
	if closeError != nil {
		return fmt.Errorf(errorCloseWatcherFormat, current.root, closeError)
	}
	return nil
}

// convertEvent maps an fsnotify event onto a watch event. Chmod-only events
// are dropped. A rename reports the old name as deleted; the new name
// arrives as its own create.
func convertEvent(rawEvent fsnotify.Event) (types.WatchEvent, bool) {
	path := filepath.Clean(rawEvent.Name)
	switch {
	case rawEvent.Has(fsnotify.Create):
		return types.WatchEvent{Path: path, Kind: types.WatchEventCreate}, true
	case rawEvent.Has(fsnotify.Write):
		return types.WatchEvent{Path: path, Kind: types.WatchEventUpdate}, true
	case rawEvent.Has(fsnotify.Remove), rawEvent.Has(fsnotify.Rename):
		return types.WatchEvent{Path: path, Kind: types.WatchEventDelete}, true
	default:
		return types.WatchEvent{}, false
	}
}
