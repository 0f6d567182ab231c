package storage

import (
	"context"
	"time"

	"github.com/inferloop/tabsynth/internal/observability/metrics"
	"github.com/inferloop/tabsynth/pkg/interfaces"
	"github.com/inferloop/tabsynth/pkg/models"
)

// instrumentedStore records the outcome and latency of every data operation.
type instrumentedStore struct {
	interfaces.DescriptionStore
	backend string
	metrics *metrics.PrometheusMetrics
}

// Instrument wraps store so its Save, Load, Delete and List calls are
// recorded under backend. A nil collector returns store unchanged.
func Instrument(store interfaces.DescriptionStore, backend string, m *metrics.PrometheusMetrics) interfaces.DescriptionStore {
	if m == nil {
		return store
	}
	return &instrumentedStore{DescriptionStore: store, backend: backend, metrics: m}
}

func (s *instrumentedStore) Save(ctx context.Context, id string, desc *models.DatasetDescription) error {
	start := time.Now()
	err := s.DescriptionStore.Save(ctx, id, desc)
	s.metrics.RecordStorageOperation(s.backend, "save", err, time.Since(start))
	return err
}

func (s *instrumentedStore) Load(ctx context.Context, id string) (*models.DatasetDescription, error) {
	start := time.Now()
	desc, err := s.DescriptionStore.Load(ctx, id)
	s.metrics.RecordStorageOperation(s.backend, "load", err, time.Since(start))
	return desc, err
}

func (s *instrumentedStore) Delete(ctx context.Context, id string) error {
	start := time.Now()
	err := s.DescriptionStore.Delete(ctx, id)
	s.metrics.RecordStorageOperation(s.backend, "delete", err, time.Since(start))
	return err
}

func (s *instrumentedStore) List(ctx context.Context) ([]string, error) {
	start := time.Now()
	ids, err := s.DescriptionStore.List(ctx)
	s.metrics.RecordStorageOperation(s.backend, "list", err, time.Since(start))
	return ids, err
}
