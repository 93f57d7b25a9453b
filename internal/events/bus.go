package events

import (
	"sync"
	"time"
)

// EventType represents different types of events in the system
type EventType string

const (
	EventEngineStarted     EventType = "ENGINE_STARTED"
	EventEngineStopped     EventType = "ENGINE_STOPPED"
	EventPassCompleted     EventType = "PASS_COMPLETED"
	EventPassSkipped       EventType = "PASS_SKIPPED"
	EventSignalBatch       EventType = "SIGNAL_BATCH_GENERATED"
	EventRuleTriggered     EventType = "RULE_TRIGGERED"
	EventPurchaseExecuted  EventType = "PURCHASE_EXECUTED"
	EventRuleCreated       EventType = "RULE_CREATED"
	EventRuleUpdated       EventType = "RULE_UPDATED"
	EventRuleDeleted       EventType = "RULE_DELETED"
	EventStrategyCreated   EventType = "STRATEGY_CREATED"
	EventStrategyUpdated   EventType = "STRATEGY_UPDATED"
	EventSafetyTripped     EventType = "SAFETY_TRIPPED"
	EventSafetyReset       EventType = "SAFETY_RESET"
	EventSummaryComputed   EventType = "SUMMARY_COMPUTED"
	EventError             EventType = "ERROR"
)

// Event represents a system event
type Event struct {
	Type      EventType              `json:"type"`
	Timestamp time.Time              `json:"timestamp"`
	Data      map[string]interface{} `json:"data"`
}

// Subscriber is a function that handles events
type Subscriber func(Event)

// EventBus manages event publishing and subscriptions
type EventBus struct {
	mu          sync.RWMutex
	subscribers map[EventType][]Subscriber
	allSubs     []Subscriber // Subscribers to all events
}

// NewEventBus creates a new event bus
func NewEventBus() *EventBus {
	return &EventBus{
		subscribers: make(map[EventType][]Subscriber),
		allSubs:     make([]Subscriber, 0),
	}
}

// Subscribe registers a subscriber for a specific event type
func (eb *EventBus) Subscribe(eventType EventType, subscriber Subscriber) {
	eb.mu.Lock()
	defer eb.mu.Unlock()

	eb.subscribers[eventType] = append(eb.subscribers[eventType], subscriber)
}

// SubscribeAll registers a subscriber for all events
func (eb *EventBus) SubscribeAll(subscriber Subscriber) {
	eb.mu.Lock()
	defer eb.mu.Unlock()

	eb.allSubs = append(eb.allSubs, subscriber)
}

// Publish sends an event to all subscribers
func (eb *EventBus) Publish(event Event) {
	eb.mu.RLock()
	defer eb.mu.RUnlock()

	// Set timestamp if not provided
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	// Notify specific subscribers
	if subs, ok := eb.subscribers[event.Type]; ok {
		for _, sub := range subs {
			go sub(event) // Run in goroutine to avoid blocking
		}
	}

	// Notify all-event subscribers
	for _, sub := range eb.allSubs {
		go sub(event)
	}
}

// PublishEngineStarted publishes an engine started event
func (eb *EventBus) PublishEngineStarted(intervalSecs int, activeRules int) {
	eb.Publish(Event{
		Type: EventEngineStarted,
		Data: map[string]interface{}{
			"interval_secs": intervalSecs,
			"active_rules":  activeRules,
		},
	})
}

// PublishEngineStopped publishes an engine stopped event
func (eb *EventBus) PublishEngineStopped(uptime time.Duration, passCount int64) {
	eb.Publish(Event{
		Type: EventEngineStopped,
		Data: map[string]interface{}{
			"uptime":     uptime.String(),
			"pass_count": passCount,
		},
	})
}

// PublishSignalBatch publishes a signal batch generated event
func (eb *EventBus) PublishSignalBatch(count int, symbols []string) {
	eb.Publish(Event{
		Type: EventSignalBatch,
		Data: map[string]interface{}{
			"count":   count,
			"symbols": symbols,
		},
	})
}

// PublishRuleTriggered publishes a rule triggered event
func (eb *EventBus) PublishRuleTriggered(ruleID, userID, strategyID string, avgStrength, avgConfidence, adjustment float64) {
	eb.Publish(Event{
		Type: EventRuleTriggered,
		Data: map[string]interface{}{
			"rule_id":        ruleID,
			"user_id":        userID,
			"strategy_id":    strategyID,
			"avg_strength":   avgStrength,
			"avg_confidence": avgConfidence,
			"adjustment":     adjustment,
		},
	})
}

// PublishPurchaseExecuted publishes a purchase executed event
func (eb *EventBus) PublishPurchaseExecuted(transactionID, strategyID, symbol string, amount, price, assetAmount float64) {
	eb.Publish(Event{
		Type: EventPurchaseExecuted,
		Data: map[string]interface{}{
			"transaction_id": transactionID,
			"strategy_id":    strategyID,
			"symbol":         symbol,
			"amount":         amount,
			"price":          price,
			"asset_amount":   assetAmount,
		},
	})
}

// PublishPassCompleted publishes an evaluation pass completed event
func (eb *EventBus) PublishPassCompleted(passNumber int64, signalCount, activeRules int) {
	eb.Publish(Event{
		Type: EventPassCompleted,
		Data: map[string]interface{}{
			"pass_number":  passNumber,
			"signal_count": signalCount,
			"active_rules": activeRules,
		},
	})
}

// PublishPassSkipped publishes a tick skipped event (previous pass still
// in flight)
func (eb *EventBus) PublishPassSkipped() {
	eb.Publish(Event{
		Type: EventPassSkipped,
		Data: map[string]interface{}{},
	})
}

// PublishRuleCreated publishes a rule created event
func (eb *EventBus) PublishRuleCreated(ruleID, strategyID string) {
	eb.Publish(Event{
		Type: EventRuleCreated,
		Data: map[string]interface{}{
			"rule_id":     ruleID,
			"strategy_id": strategyID,
		},
	})
}

// PublishRuleUpdated publishes a rule updated event
func (eb *EventBus) PublishRuleUpdated(ruleID, strategyID string) {
	eb.Publish(Event{
		Type: EventRuleUpdated,
		Data: map[string]interface{}{
			"rule_id":     ruleID,
			"strategy_id": strategyID,
		},
	})
}

// PublishRuleDeleted publishes a rule deleted event
func (eb *EventBus) PublishRuleDeleted(ruleID string) {
	eb.Publish(Event{
		Type: EventRuleDeleted,
		Data: map[string]interface{}{
			"rule_id": ruleID,
		},
	})
}

// PublishStrategyCreated publishes a strategy created event
func (eb *EventBus) PublishStrategyCreated(strategyID, symbol string) {
	eb.Publish(Event{
		Type: EventStrategyCreated,
		Data: map[string]interface{}{
			"strategy_id": strategyID,
			"symbol":      symbol,
		},
	})
}

// PublishStrategyUpdated publishes a strategy updated event
func (eb *EventBus) PublishStrategyUpdated(strategyID string, active bool) {
	eb.Publish(Event{
		Type: EventStrategyUpdated,
		Data: map[string]interface{}{
			"strategy_id": strategyID,
			"is_active":   active,
		},
	})
}

// PublishSafetyTripped publishes a safety limits tripped event
func (eb *EventBus) PublishSafetyTripped(reason string) {
	eb.Publish(Event{
		Type: EventSafetyTripped,
		Data: map[string]interface{}{
			"reason": reason,
		},
	})
}

// PublishError publishes an error event
func (eb *EventBus) PublishError(source, message string, err error) {
	data := map[string]interface{}{
		"source":  source,
		"message": message,
	}
	if err != nil {
		data["error"] = err.Error()
	}
	eb.Publish(Event{
		Type: EventError,
		Data: data,
	})
}
