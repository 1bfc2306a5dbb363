// Package notification keeps an in-process, bounded store of notification
// records produced by rule executions. Records are what the portal's
// administrative UI polls; delivery to external channels is out of scope
// for the engine.
package notification

import (
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/regwatch/regwatch/internal/errors"
	"github.com/regwatch/regwatch/internal/logger"
)

// Notification types.
const (
	TypeAlert   = "alert"
	TypeWarning = "warning"
	TypeSystem  = "system"
)

// ErrNotFound is returned when a notification ID is unknown.
var ErrNotFound = errors.NewStd("notification not found")

// Notification is one record addressed to a role audience.
type Notification struct {
	ID       string `json:"id"`
	Type     string `json:"type"`
	Title    string `json:"title"`
	Message  string `json:"message"`
	Severity string `json:"severity"`

	// Audience is the comma-separated roles the record targets.
	Audience string `json:"audience"`

	EntityID uint  `json:"entity_id,omitempty"`
	AlertID  uint  `json:"alert_id,omitempty"`
	RuleID   uint  `json:"rule_id,omitempty"`

	Read      bool      `json:"read"`
	CreatedAt time.Time `json:"created_at"`
}

// Service is a bounded FIFO store of notifications, newest kept.
type Service struct {
	mu        sync.RWMutex
	records   []*Notification
	maxStored int
	log       logger.Logger
}

// NewService creates a Service retaining at most maxStored records.
func NewService(maxStored int, log logger.Logger) *Service {
	if maxStored <= 0 {
		maxStored = 1000
	}
	if log == nil {
		log = logger.Default()
	}
	return &Service{maxStored: maxStored, log: log}
}

// Create stores a record, assigning ID and timestamp, evicting the oldest
// record when the cap is reached.
func (s *Service) Create(n Notification) *Notification {
	n.ID = uuid.New().String()
	n.CreatedAt = time.Now()

	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = append(s.records, &n)
	if over := len(s.records) - s.maxStored; over > 0 {
		s.records = s.records[over:]
	}
	s.log.Debug("notification stored",
		logger.String("id", n.ID),
		logger.String("type", n.Type),
		logger.String("audience", n.Audience))
	return &n
}

// ListFilter narrows List results.
type ListFilter struct {
	Type       string
	UnreadOnly bool
	Limit      int
}

// List returns matching notifications, newest first.
func (s *Service) List(filter ListFilter) []*Notification {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*Notification, 0, len(s.records))
	for _, n := range s.records {
		if filter.Type != "" && n.Type != filter.Type {
			continue
		}
		if filter.UnreadOnly && n.Read {
			continue
		}
		copied := *n
		out = append(out, &copied)
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out
}

// Get returns one notification by ID.
func (s *Service) Get(id string) (*Notification, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, n := range s.records {
		if n.ID == id {
			copied := *n
			return &copied, nil
		}
	}
	return nil, ErrNotFound
}

// MarkRead flags a notification as read. Idempotent.
func (s *Service) MarkRead(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, n := range s.records {
		if n.ID == id {
			n.Read = true
			return nil
		}
	}
	return ErrNotFound
}

// UnreadCount reports how many stored records are unread.
func (s *Service) UnreadCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	count := 0
	for _, n := range s.records {
		if !n.Read {
			count++
		}
	}
	return count
}
