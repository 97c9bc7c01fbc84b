package messaging

import (
	"context"
	"fmt"
	"time"

	"github.com/dojo-hub/progression-engine/internal/domain/shared"
	"github.com/dojo-hub/progression-engine/pkg/logger"
	"github.com/dojo-hub/progression-engine/pkg/retry"
)

// ══════════════════════════════════════════════════════════════════════════════
// SUBSCRIBERS
// ══════════════════════════════════════════════════════════════════════════════

// RankingWriter stores the latest total XP of a student.
type RankingWriter interface {
	Record(ctx context.Context, organizationID, studentID string, totalXP int) error
}

// RankingProjector keeps the organization rankings in step with XP awards.
type RankingProjector struct {
	ranking RankingWriter
	timeout time.Duration
	retrier *retry.Retrier
	log     *logger.Logger
}

// NewRankingProjector creates a new RankingProjector.
func NewRankingProjector(ranking RankingWriter, log *logger.Logger) *RankingProjector {
	if log == nil {
		log = logger.Nop()
	}
	return &RankingProjector{
		ranking: ranking,
		timeout: 2 * time.Second,
		retrier: retry.New(
			retry.WithMaxAttempts(3),
			retry.WithInitialDelay(20*time.Millisecond),
			retry.WithRetryIf(func(error) bool { return true }),
		),
		log: log.With(logger.Component("ranking_projector")),
	}
}

// Register subscribes the projector to XP awards.
func (p *RankingProjector) Register(bus shared.EventSubscriber) error {
	return bus.Subscribe(shared.EventXPAwarded, p.Handle)
}

// Handle records the new total carried by an XPAwardedEvent.
func (p *RankingProjector) Handle(event shared.Event) error {
	e, ok := event.(shared.XPAwardedEvent)
	if !ok {
		return nil
	}
	if e.OrganizationID == "" {
		p.log.Debug("xp award without organization, ranking skipped", logger.StudentID(e.StudentID))
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), p.timeout)
	defer cancel()

	return p.retrier.Do(ctx, func(ctx context.Context) error {
		return p.ranking.Record(ctx, e.OrganizationID, e.StudentID, e.NewTotal)
	})
}

// ChannelPublisher publishes a message on a named channel.
type ChannelPublisher interface {
	Publish(ctx context.Context, channel string, message interface{}) error
}

// Forwarder relays every event to an external channel named after its type,
// so other processes can follow progression without sharing the store.
type Forwarder struct {
	publisher ChannelPublisher
	channel   func(eventType string) string
	log       *logger.Logger
}

// NewForwarder creates a new Forwarder. channel maps an event type to a
// channel name.
func NewForwarder(publisher ChannelPublisher, channel func(string) string, log *logger.Logger) *Forwarder {
	if log == nil {
		log = logger.Nop()
	}
	return &Forwarder{
		publisher: publisher,
		channel:   channel,
		log:       log.With(logger.Component("event_forwarder")),
	}
}

// Register subscribes the forwarder to all events.
func (f *Forwarder) Register(bus shared.EventSubscriber) error {
	return bus.SubscribeAll(f.Handle)
}

// Handle publishes the event envelope.
func (f *Forwarder) Handle(event shared.Event) error {
	env := envelope{
		Type:        string(event.EventType()),
		AggregateID: event.AggregateID(),
		OccurredAt:  event.OccurredAt(),
		Payload:     event.Payload(),
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	if err := f.publisher.Publish(ctx, f.channel(env.Type), env); err != nil {
		return fmt.Errorf("forward %s: %w", env.Type, err)
	}
	return nil
}

type envelope struct {
	Type        string                 `json:"type"`
	AggregateID string                 `json:"aggregate_id"`
	OccurredAt  time.Time              `json:"occurred_at"`
	Payload     map[string]interface{} `json:"payload"`
}
