package limits

import (
	"context"
	"time"

	"github.com/riskd/risk-engine/internal/notify"
	"github.com/riskd/risk-engine/internal/stream"
	"github.com/riskd/risk-engine/pkg/models"
)

// NotifyListener forwards committed transitions to the notification
// dispatcher. Breach entries go to every target configured on the limit plus
// the default channel; other transitions go to the default channel only.
type NotifyListener struct {
	dispatcher notify.Dispatcher
	channel    string
}

// NewNotifyListener creates a listener over the given dispatcher.
func NewNotifyListener(dispatcher notify.Dispatcher, defaultChannel string) *NotifyListener {
	if defaultChannel == "" {
		defaultChannel = "limits"
	}
	return &NotifyListener{dispatcher: dispatcher, channel: defaultChannel}
}

type transitionPayload struct {
	LimitID     string             `json:"limit_id"`
	PortfolioID string             `json:"portfolio_id"`
	Type        models.LimitType   `json:"type"`
	From        models.LimitStatus `json:"from"`
	To          models.LimitStatus `json:"to"`
	Value       float64            `json:"value"`
	BreachID    string             `json:"breach_id,omitempty"`
	Timestamp   time.Time          `json:"timestamp"`
}

// OnTransition implements TransitionListener.
func (l *NotifyListener) OnTransition(ctx context.Context, limit models.RiskLimit, prior models.LimitStatus, breach *models.Breach) {
	payload := transitionPayload{
		LimitID:     limit.ID,
		PortfolioID: limit.PortfolioID,
		Type:        limit.Type,
		From:        prior,
		To:          limit.Status,
		Value:       limit.CurrentValue,
		Timestamp:   time.Now(),
	}
	if breach != nil {
		payload.BreachID = breach.ID
	}

	l.dispatcher.Notify(ctx, l.channel, payload)
	if limit.Status == models.LimitStatusBreached {
		for _, target := range limit.NotificationTargets {
			l.dispatcher.Notify(ctx, target, payload)
		}
	}
}

// TransitionRecorder counts committed status transitions.
type TransitionRecorder interface {
	RecordTransition(from, to string)
}

// MetricsListener publishes committed transitions to the metrics recorder.
type MetricsListener struct {
	recorder TransitionRecorder
}

// NewMetricsListener creates a listener over the given recorder.
func NewMetricsListener(recorder TransitionRecorder) *MetricsListener {
	return &MetricsListener{recorder: recorder}
}

// OnTransition implements TransitionListener.
func (l *MetricsListener) OnTransition(_ context.Context, limit models.RiskLimit, prior models.LimitStatus, _ *models.Breach) {
	l.recorder.RecordTransition(string(prior), string(limit.Status))
}

// StreamListener pushes committed transitions to websocket subscribers.
type StreamListener struct {
	hub *stream.Hub
}

// NewStreamListener creates a listener over the event hub.
func NewStreamListener(hub *stream.Hub) *StreamListener {
	return &StreamListener{hub: hub}
}

// OnTransition implements TransitionListener.
func (l *StreamListener) OnTransition(_ context.Context, limit models.RiskLimit, prior models.LimitStatus, breach *models.Breach) {
	event := stream.Event{
		Type:        "limit_transition",
		PortfolioID: limit.PortfolioID,
		LimitID:     limit.ID,
		Status:      limit.Status,
		Value:       limit.CurrentValue,
		Timestamp:   time.Now(),
	}
	if breach != nil {
		event.BreachID = breach.ID
		if limit.Status == models.LimitStatusBreached && prior != models.LimitStatusBreached {
			event.Type = "breach_opened"
		}
		if prior == models.LimitStatusBreached && limit.Status != models.LimitStatusBreached {
			event.Type = "breach_closed"
		}
	}
	l.hub.Publish(event)
}
