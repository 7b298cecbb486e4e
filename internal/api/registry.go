package api

import (
	"bytes"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"traffic-analytics/internal/ingest"
	"traffic-analytics/internal/models"
	"traffic-analytics/internal/stream"
)

var ErrUnknownSensor = errors.New("unknown sensor")

// Store persists uploads and caches window statistics.
type Store interface {
	StoreUpload(sensorID string, data []byte) error
	GetUpload(sensorID string) ([]byte, error)
	StoreStatistics(key string, stats models.Statistics, ttl time.Duration) error
	GetStatistics(key string) (*models.Statistics, error)
	InvalidateStatistics(sensorID string) error
}

type entry struct {
	stream   *stream.Stream
	uploadID string
}

// Registry holds the constructed stream of every known sensor and rebuilds
// streams from the store on first access.
type Registry struct {
	store   Store
	opts    stream.Options
	streams map[string]entry
	mu      sync.RWMutex
}

func NewRegistry(store Store, opts stream.Options) *Registry {
	return &Registry{
		store:   store,
		opts:    opts,
		streams: make(map[string]entry),
	}
}

// Put builds a stream from a CSV upload, persists the upload and replaces
// any stream previously registered under sensorID.
func (r *Registry) Put(sensorID string, data []byte) (*stream.Stream, string, error) {
	s, err := ingest.Load(bytes.NewReader(data), r.opts)
	if err != nil {
		return nil, "", err
	}
	streamsLoaded.Inc()
	observeNormalization(s.LastReport())

	if err := r.store.StoreUpload(sensorID, data); err != nil {
		return nil, "", err
	}

	e := entry{stream: s, uploadID: uuid.NewString()}
	r.mu.Lock()
	r.streams[sensorID] = e
	r.mu.Unlock()

	// Entries of the previous upload can no longer be hit.
	if err := r.store.InvalidateStatistics(sensorID); err != nil {
		log.Printf("Failed to invalidate statistics for %s: %v", sensorID, err)
	}

	log.Printf("Sensor %s loaded: %d readings, upload %s", sensorID, s.Len(), e.uploadID)
	return s, e.uploadID, nil
}

func (r *Registry) Get(sensorID string) (*stream.Stream, string, error) {
	r.mu.RLock()
	e, ok := r.streams[sensorID]
	r.mu.RUnlock()
	if ok {
		return e.stream, e.uploadID, nil
	}

	data, err := r.store.GetUpload(sensorID)
	if err != nil {
		return nil, "", err
	}
	if data == nil {
		return nil, "", fmt.Errorf("%w: %s", ErrUnknownSensor, sensorID)
	}

	s, err := ingest.Load(bytes.NewReader(data), r.opts)
	if err != nil {
		return nil, "", fmt.Errorf("rebuild sensor %s: %w", sensorID, err)
	}
	streamsLoaded.Inc()
	observeNormalization(s.LastReport())

	r.mu.Lock()
	defer r.mu.Unlock()
	// Another request may have rebuilt it meanwhile.
	if e, ok := r.streams[sensorID]; ok {
		return e.stream, e.uploadID, nil
	}
	e = entry{stream: s, uploadID: uuid.NewString()}
	r.streams[sensorID] = e
	log.Printf("Sensor %s rebuilt from store: %d readings", sensorID, s.Len())
	return s, e.uploadID, nil
}

func observeNormalization(report stream.Report) {
	duplicateRowsDropped.Add(float64(report.Duplicates))
	gridPointsTrimmed.Add(float64(report.Trimmed))
}
