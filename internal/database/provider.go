package database

import (
	"context"
	"errors"
	"sync"
)

var errNotInitialized = errors.New("storage backend not initialized: DATABASE_URL or SQLITE_PATH is required")

var (
	backendMu        sync.RWMutex
	backendName      string
	enrollmentWriter func() EnrollmentWriter
	eventWriter      func() EventWriter
	backendClose     func() error
)

// RegisterBackend registers repository constructors of the active backend.
// This is called by cmd after opening postgres, sqlite or the in-memory store
// to avoid import cycles between the backends and their consumers.
func RegisterBackend(name string, enrollments func() EnrollmentWriter, events func() EventWriter, closer func() error) {
	backendMu.Lock()
	defer backendMu.Unlock()
	backendName = name
	enrollmentWriter = enrollments
	eventWriter = events
	backendClose = closer
}

// BackendName returns the name of the registered backend, or "" if none.
func BackendName() string {
	backendMu.RLock()
	defer backendMu.RUnlock()
	return backendName
}

// IsInitialized returns whether a backend has been registered.
func IsInitialized() bool {
	backendMu.RLock()
	defer backendMu.RUnlock()
	return enrollmentWriter != nil && eventWriter != nil
}

// Close releases the registered backend, if it has a closer.
func Close() error {
	backendMu.Lock()
	defer backendMu.Unlock()
	if backendClose == nil {
		return nil
	}
	err := backendClose()
	backendClose = nil
	return err
}

// GetEnrollmentReader returns an EnrollmentReader from the registered backend
func GetEnrollmentReader(ctx context.Context) (EnrollmentReader, error) {
	return GetEnrollmentWriter(ctx)
}

// GetEnrollmentWriter returns an EnrollmentWriter from the registered backend
func GetEnrollmentWriter(ctx context.Context) (EnrollmentWriter, error) {
	backendMu.RLock()
	defer backendMu.RUnlock()
	if enrollmentWriter == nil {
		return nil, errNotInitialized
	}
	return enrollmentWriter(), nil
}

// GetEventReader returns an EventReader from the registered backend
func GetEventReader(ctx context.Context) (EventReader, error) {
	return GetEventWriter(ctx)
}

// GetEventWriter returns an EventWriter from the registered backend
func GetEventWriter(ctx context.Context) (EventWriter, error) {
	backendMu.RLock()
	defer backendMu.RUnlock()
	if eventWriter == nil {
		return nil, errNotInitialized
	}
	return eventWriter(), nil
}
