package dispatch

import (
	"context"
	"fmt"
	"sync"

	"MarketPulse/internal/domain/models"
	drepo "MarketPulse/internal/domain/repository"
)

// ComponentHandler receives events delivered to an in-process component.
type ComponentHandler func(ctx context.Context, e *models.AIEvent) error

// ComponentProvider routes deliveries to registered in-process
// handlers, keyed by the destination component name.
type ComponentProvider struct {
	mu       sync.RWMutex
	handlers map[string]ComponentHandler
}

func NewComponentProvider() *ComponentProvider {
	return &ComponentProvider{handlers: make(map[string]ComponentHandler)}
}

func (p *ComponentProvider) Type() models.SubscriberType { return models.SubscriberComponent }

// Register binds a handler to a component name, replacing any previous one.
func (p *ComponentProvider) Register(component string, h ComponentHandler) {
	p.mu.Lock()
	p.handlers[component] = h
	p.mu.Unlock()
}

func (p *ComponentProvider) handler(component string) (ComponentHandler, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	h, ok := p.handlers[component]
	return h, ok
}

func (p *ComponentProvider) SendEvent(ctx context.Context, sub *models.Subscription, e *models.AIEvent) error {
	h, ok := p.handler(sub.Destination.Component)
	if !ok {
		return fmt.Errorf("component %q has no registered handler", sub.Destination.Component)
	}
	return h(ctx, e)
}

// SendSummary unrolls the top events; components consume events
// individually and have no summary form.
func (p *ComponentProvider) SendSummary(ctx context.Context, sub *models.Subscription, total int, byCategory map[models.EventCategory]int, top []*models.AIEvent) error {
	h, ok := p.handler(sub.Destination.Component)
	if !ok {
		return fmt.Errorf("component %q has no registered handler", sub.Destination.Component)
	}
	for _, e := range top {
		if err := h(ctx, e); err != nil {
			return err
		}
	}
	return nil
}

var _ drepo.ChannelProvider = (*ComponentProvider)(nil)
