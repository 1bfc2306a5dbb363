package notification

import (
	"fmt"
	"sync"
)

var (
	instance *Service
	once     sync.Once
	mu       sync.RWMutex
)

// Initialize sets up the global notification service instance.
func Initialize(s *Service) {
	once.Do(func() {
		mu.Lock()
		defer mu.Unlock()
		instance = s
	})
}

// GetService returns the global notification service instance, or nil if
// Initialize has not run.
func GetService() *Service {
	mu.RLock()
	defer mu.RUnlock()
	return instance
}

// SetServiceForTesting allows setting a custom service instance for testing
// only. It returns an error if the service is already initialized.
func SetServiceForTesting(s *Service) error {
	mu.Lock()
	defer mu.Unlock()
	if instance != nil {
		return fmt.Errorf("notification service already initialized")
	}
	instance = s
	return nil
}

// IsInitialized checks if the notification service has been initialized.
func IsInitialized() bool {
	return GetService() != nil
}
