package dispatch

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"MarketPulse/internal/domain/models"
	"MarketPulse/internal/repository"
	"MarketPulse/pkg/logger"
)

// ErrInvalidSubscription rejects malformed subscriptions at
// registration time.
var ErrInvalidSubscription = errors.New("invalid subscription")

// ErrSubscriptionNotFound is returned for unknown subscription ids.
var ErrSubscriptionNotFound = errors.New("subscription not found")

// Registry holds subscriptions behind its own lock and persists them
// to a JSON snapshot on every mutation.
type Registry struct {
	log      *logger.Logger
	mu       sync.RWMutex
	subs     map[string]*models.Subscription
	snapshot *repository.JSONSnapshot
	seq      atomic.Uint64
}

func NewRegistry(log *logger.Logger, snapshot *repository.JSONSnapshot) *Registry {
	r := &Registry{
		log:      log,
		subs:     make(map[string]*models.Subscription),
		snapshot: snapshot,
	}
	r.restore()
	return r
}

func (r *Registry) restore() {
	if r.snapshot == nil {
		return
	}
	var stored []*models.Subscription
	if err := r.snapshot.Load(&stored); err != nil {
		r.log.Warn("subscription snapshot load failed", logger.Error(err))
		return
	}
	for _, s := range stored {
		if s == nil || s.ID == "" {
			continue
		}
		r.subs[s.ID] = s
	}
	if len(r.subs) > 0 {
		r.log.Info("subscriptions restored", logger.Int("count", len(r.subs)))
	}
}

// Validate applies the registration rules shared by every entry path.
func Validate(s *models.Subscription) error {
	if !s.Type.Valid() {
		return fmt.Errorf("%w: unknown type %q", ErrInvalidSubscription, s.Type)
	}
	if s.Name == "" {
		return fmt.Errorf("%w: name is required", ErrInvalidSubscription)
	}
	if !s.Filter.MinPriority.Valid() {
		return fmt.Errorf("%w: min priority %d out of range", ErrInvalidSubscription, s.Filter.MinPriority)
	}
	for _, c := range s.Filter.Categories {
		if !c.Valid() {
			return fmt.Errorf("%w: unknown category %q", ErrInvalidSubscription, c)
		}
	}
	switch s.Type {
	case models.SubscriberWebhook:
		if s.Destination.URL == "" {
			return fmt.Errorf("%w: webhook destination needs a url", ErrInvalidSubscription)
		}
	case models.SubscriberComponent:
		if s.Destination.Component == "" {
			return fmt.Errorf("%w: component destination needs a component name", ErrInvalidSubscription)
		}
	}
	return nil
}

// Add registers a subscription, minting an id when absent.
func (r *Registry) Add(s *models.Subscription) error {
	if s.Filter.MinPriority == 0 {
		s.Filter.MinPriority = models.PriorityLow
	}
	if err := Validate(s); err != nil {
		return err
	}
	if s.ID == "" {
		s.ID = fmt.Sprintf("sub_%s_%d", s.Type, r.seq.Add(1))
	}
	if s.CreatedAt.IsZero() {
		s.CreatedAt = time.Now()
	}

	r.mu.Lock()
	if _, dup := r.subs[s.ID]; dup {
		r.mu.Unlock()
		return fmt.Errorf("%w: duplicate id %q", ErrInvalidSubscription, s.ID)
	}
	r.subs[s.ID] = s
	r.mu.Unlock()

	r.persist()
	r.log.Info("subscription added",
		logger.String("id", s.ID),
		logger.String("type", string(s.Type)),
		logger.String("name", s.Name))
	return nil
}

// Update replaces mutable fields of an existing subscription.
func (r *Registry) Update(id string, apply func(*models.Subscription)) error {
	r.mu.Lock()
	s, ok := r.subs[id]
	if !ok {
		r.mu.Unlock()
		return ErrSubscriptionNotFound
	}
	apply(s)
	err := Validate(s)
	r.mu.Unlock()
	if err != nil {
		return err
	}
	r.persist()
	return nil
}

func (r *Registry) Remove(id string) error {
	r.mu.Lock()
	if _, ok := r.subs[id]; !ok {
		r.mu.Unlock()
		return ErrSubscriptionNotFound
	}
	delete(r.subs, id)
	r.mu.Unlock()
	r.persist()
	return nil
}

func (r *Registry) Get(id string) (*models.Subscription, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.subs[id]
	return s, ok
}

// List returns all subscriptions, unordered.
func (r *Registry) List() []*models.Subscription {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*models.Subscription, 0, len(r.subs))
	for _, s := range r.subs {
		out = append(out, s)
	}
	return out
}

// Active returns only subscriptions eligible for delivery.
func (r *Registry) Active() []*models.Subscription {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*models.Subscription, 0, len(r.subs))
	for _, s := range r.subs {
		if s.Active {
			out = append(out, s)
		}
	}
	return out
}

// Touch stamps the last successful delivery.
func (r *Registry) Touch(id string, at time.Time) {
	r.mu.Lock()
	if s, ok := r.subs[id]; ok {
		s.LastDelivery = at
	}
	r.mu.Unlock()
	r.persist()
}

func (r *Registry) persist() {
	if r.snapshot == nil {
		return
	}
	all := r.List()
	if err := r.snapshot.Save(all); err != nil {
		r.log.Error("subscription snapshot save failed", logger.Error(err))
	}
}

// Convenience constructors for the common subscription shapes.

func NewUserSubscription(name, chatID string, minPriority models.EventPriority) *models.Subscription {
	return &models.Subscription{
		Type:        models.SubscriberUser,
		Name:        name,
		Filter:      models.SubscriptionFilter{MinPriority: minPriority},
		Destination: models.Destination{ChatID: chatID},
		Active:      true,
	}
}

func NewWebhookSubscription(name, url, secret string, minPriority models.EventPriority) *models.Subscription {
	return &models.Subscription{
		Type:        models.SubscriberWebhook,
		Name:        name,
		Filter:      models.SubscriptionFilter{MinPriority: minPriority},
		Destination: models.Destination{URL: url, Secret: secret},
		Active:      true,
	}
}

func NewComponentSubscription(name, component string, categories []models.EventCategory) *models.Subscription {
	return &models.Subscription{
		Type:        models.SubscriberComponent,
		Name:        name,
		Filter:      models.SubscriptionFilter{MinPriority: models.PriorityLow, Categories: categories},
		Destination: models.Destination{Component: component},
		Active:      true,
	}
}
