package dispatch

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"MarketPulse/internal/domain/models"
	drepo "MarketPulse/internal/domain/repository"
	"MarketPulse/pkg/logger"
)

// ConsoleProvider writes deliveries to the structured log. It backs
// user and channel subscriptions in deployments without a chat bridge
// and never fails.
type ConsoleProvider struct {
	log *logger.Logger
	typ models.SubscriberType
}

func NewConsoleProvider(log *logger.Logger, typ models.SubscriberType) drepo.ChannelProvider {
	return &ConsoleProvider{log: log, typ: typ}
}

func (p *ConsoleProvider) Type() models.SubscriberType { return p.typ }

func (p *ConsoleProvider) SendEvent(ctx context.Context, sub *models.Subscription, e *models.AIEvent) error {
	p.log.Info(fmt.Sprintf("[%s] %s", strings.ToUpper(e.Priority.String()), e.Title),
		logger.String("subscription", sub.ID),
		logger.String("event", e.ID),
		logger.String("category", string(e.Category)),
		logger.String("symbol", e.Symbol),
		logger.String("content", e.Content))
	return nil
}

func (p *ConsoleProvider) SendSummary(ctx context.Context, sub *models.Subscription, total int, byCategory map[models.EventCategory]int, top []*models.AIEvent) error {
	var b strings.Builder
	fmt.Fprintf(&b, "%d pending alerts.", total)
	cats := make([]string, 0, len(byCategory))
	for c := range byCategory {
		cats = append(cats, string(c))
	}
	sort.Strings(cats)
	for _, c := range cats {
		fmt.Fprintf(&b, " %s: %d.", c, byCategory[models.EventCategory(c)])
	}
	for _, e := range top {
		fmt.Fprintf(&b, " | [%s] %s", strings.ToUpper(e.Priority.String()), e.Title)
	}
	p.log.Info(b.String(), logger.String("subscription", sub.ID))
	return nil
}
