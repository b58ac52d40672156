// Package order is the sample aggregate served by eventsd: orders that are created,
// receive line items and may be cancelled.
package order

import (
	"fmt"

	jsoniter "github.com/json-iterator/go"

	"github.com/convey2karthikshivashankar-cloud/nexus-sub000/command"
	"github.com/convey2karthikshivashankar-cloud/nexus-sub000/eventstore"
)

const AggregateType = "order"

// Command types.
const (
	CreateOrder = "CreateOrder"
	AddItem     = "AddItem"
	CancelOrder = "CancelOrder"
)

// Event types.
const (
	OrderCreated   = "OrderCreated"
	ItemAdded      = "ItemAdded"
	OrderCancelled = "OrderCancelled"
)

// CriticalTypes are distributed on the ordered path.
var CriticalTypes = []string{OrderCreated, OrderCancelled}

// CommandTypes lists every command the decider accepts.
var CommandTypes = []string{CreateOrder, AddItem, CancelOrder}

type Status string

const (
	StatusNone      Status = ""
	StatusOpen      Status = "open"
	StatusCancelled Status = "cancelled"
)

const maxItemsPerOrder = 100

type CreateOrderPayload struct {
	CustomerID string `json:"customerId"`
	Currency   string `json:"currency,omitempty"`
}

type AddItemPayload struct {
	SKU       string `json:"sku"`
	Quantity  int    `json:"quantity"`
	UnitPrice int64  `json:"unitPrice"`
}

type CancelOrderPayload struct {
	Reason string `json:"reason,omitempty"`
}

// State is the folded order. It is stored in snapshots, so its fields are exported.
type State struct {
	Status     Status `json:"status"`
	CustomerID string `json:"customerId,omitempty"`
	Currency   string `json:"currency,omitempty"`
	ItemCount  int    `json:"itemCount"`
	Total      int64  `json:"total"`
}

// Decider returns the order decider for command.NewProcessor.
func Decider() command.Decider[State] {
	return command.Decider[State]{
		AggregateType: AggregateType,
		InitialState:  func() State { return State{Currency: "EUR"} },
		Evolve:        evolve,
		Decide:        decide,
		CreatesAggregate: func(commandType string) bool {
			return commandType == CreateOrder
		},
	}
}

func evolve(state State, event eventstore.Event) (State, error) {
	switch event.EventType {
	case OrderCreated:
		var p CreateOrderPayload
		if err := jsoniter.Unmarshal(event.Payload, &p); err != nil {
			return state, err
		}
		state.Status = StatusOpen
		state.CustomerID = p.CustomerID
		if p.Currency != "" {
			state.Currency = p.Currency
		}

	case ItemAdded:
		var p AddItemPayload
		if err := jsoniter.Unmarshal(event.Payload, &p); err != nil {
			return state, err
		}
		state.ItemCount += p.Quantity
		state.Total += int64(p.Quantity) * p.UnitPrice

	case OrderCancelled:
		state.Status = StatusCancelled
	}

	return state, nil
}

func decide(state State, _ uint64, cmd command.Command) ([]command.NewEvent, error) {
	switch cmd.CommandType {
	case CreateOrder:
		var p CreateOrderPayload
		if err := decodePayload(cmd, &p); err != nil {
			return nil, err
		}
		if state.Status != StatusNone {
			return nil, eventstore.NewDomainViolation("order already exists")
		}
		if p.CustomerID == "" {
			return nil, eventstore.NewDomainViolation("customerId is required")
		}
		return []command.NewEvent{{EventType: OrderCreated, Payload: p}}, nil

	case AddItem:
		var p AddItemPayload
		if err := decodePayload(cmd, &p); err != nil {
			return nil, err
		}
		if err := requireOpen(state); err != nil {
			return nil, err
		}
		var violations []string
		if p.SKU == "" {
			violations = append(violations, "sku is required")
		}
		if p.Quantity <= 0 {
			violations = append(violations, "quantity must be positive")
		}
		if p.UnitPrice < 0 {
			violations = append(violations, "unitPrice must not be negative")
		}
		if state.ItemCount+p.Quantity > maxItemsPerOrder {
			violations = append(violations, fmt.Sprintf("an order holds at most %d items", maxItemsPerOrder))
		}
		if len(violations) > 0 {
			return nil, eventstore.NewDomainViolation(violations...)
		}
		return []command.NewEvent{{EventType: ItemAdded, Payload: p}}, nil

	case CancelOrder:
		var p CancelOrderPayload
		if err := decodePayload(cmd, &p); err != nil {
			return nil, err
		}
		if err := requireOpen(state); err != nil {
			return nil, err
		}
		return []command.NewEvent{{EventType: OrderCancelled, Payload: p}}, nil
	}

	return nil, eventstore.NewDomainViolation(fmt.Sprintf("unknown commandType %q", cmd.CommandType))
}

func requireOpen(state State) error {
	switch state.Status {
	case StatusNone:
		return eventstore.NewDomainViolation("order does not exist")
	case StatusCancelled:
		return eventstore.NewDomainViolation("order is cancelled")
	}

	return nil
}

func decodePayload(cmd command.Command, target any) error {
	if len(cmd.Payload) == 0 {
		return nil
	}

	if err := jsoniter.Unmarshal(cmd.Payload, target); err != nil {
		return eventstore.NewDomainViolation("payload is not valid JSON: " + err.Error())
	}

	return nil
}
