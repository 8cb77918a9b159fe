package expiration

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/marianozunino/gatedrop/internal/model"
)

// Sweeper removes expired files
type Sweeper interface {
	Cleanup(ctx context.Context) (model.CleanupResult, error)
}

// ExpirationManager periodically sweeps expired files out of the registry and blob store
type ExpirationManager struct {
	sweeper  Sweeper
	interval time.Duration
	enabled  bool
	stopChan chan struct{}
	done     chan struct{}
	stopOnce sync.Once
}

// NewExpirationManager creates a manager running every interval. A disabled manager never sweeps.
func NewExpirationManager(sweeper Sweeper, interval time.Duration, enabled bool) *ExpirationManager {
	if interval <= 0 {
		interval = time.Hour
	}
	return &ExpirationManager{
		sweeper:  sweeper,
		interval: interval,
		enabled:  enabled,
		stopChan: make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// Start begins the expiration checking process
func (m *ExpirationManager) Start() {
	if !m.enabled {
		close(m.done)
		log.Println("Expiration manager disabled")
		return
	}

	go func() {
		defer close(m.done)

		m.RunOnce()

		ticker := time.NewTicker(m.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				m.RunOnce()
			case <-m.stopChan:
				log.Println("Expiration manager stopped")
				return
			}
		}
	}()
	log.Printf("Expiration manager started, checking every %v", m.interval)
}

// Stop halts the expiration checking process and waits for a running sweep to finish
func (m *ExpirationManager) Stop() {
	m.stopOnce.Do(func() {
		close(m.stopChan)
	})
	<-m.done
}

// RunOnce performs a single sweep
func (m *ExpirationManager) RunOnce() {
	log.Println("Checking for expired files...")

	ctx, cancel := context.WithTimeout(context.Background(), m.interval)
	defer cancel()

	result, err := m.sweeper.Cleanup(ctx)
	if err != nil {
		log.Printf("Error: Expiration sweep failed: %v", err)
		return
	}
	log.Printf("Expiration check complete. Removed %d files", result.DeletedFiles)
}
