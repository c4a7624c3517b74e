package upstream

import "encoding/json"

// Activity feed topics and subscription types.
const (
	TopicActivity = "activity"

	EventTypeTrades        = "trades"
	EventTypeOrdersMatched = "orders_matched"
)

// ActivityEvent is one message from the venue's activity feed.
type ActivityEvent struct {
	Type    string // trades | orders_matched
	Payload json.RawMessage
}

// OrdersMatchedEvent carries the order ids of a match. Depending on the
// emitting path the upstream populates takerOrderId, makerOrderId, or a
// makerOrders array.
type OrdersMatchedEvent struct {
	TakerOrderID string              `json:"takerOrderId"`
	MakerOrderID string              `json:"makerOrderId"`
	MakerOrders  []MatchedMakerOrder `json:"makerOrders"`
}

// MatchedMakerOrder is one element of the makerOrders array.
type MatchedMakerOrder struct {
	OrderID string `json:"orderId"`
}

// OrderIDs collects all non-empty order ids carried by the event.
func (e *OrdersMatchedEvent) OrderIDs() []string {
	var ids []string
	if e.TakerOrderID != "" {
		ids = append(ids, e.TakerOrderID)
	}
	if e.MakerOrderID != "" {
		ids = append(ids, e.MakerOrderID)
	}
	for _, mo := range e.MakerOrders {
		if mo.OrderID != "" {
			ids = append(ids, mo.OrderID)
		}
	}
	return ids
}

// ParseOrdersMatched decodes an orders_matched payload.
func ParseOrdersMatched(raw json.RawMessage) (*OrdersMatchedEvent, error) {
	var e OrdersMatchedEvent
	if err := json.Unmarshal(raw, &e); err != nil {
		return nil, err
	}
	return &e, nil
}
