package order

import (
	jsoniter "github.com/json-iterator/go"

	"github.com/convey2karthikshivashankar-cloud/nexus-sub000/eventstore"
	"github.com/convey2karthikshivashankar-cloud/nexus-sub000/projection"
)

// Projection names.
const (
	SummaryProjection  = "order-summary"
	SKUSalesProjection = "sku-sales"
)

// Summary is the order-summary read model, keyed by aggregate id.
type Summary struct {
	OrderID    string `json:"orderId"`
	CustomerID string `json:"customerId"`
	Status     Status `json:"status"`
	ItemCount  int    `json:"itemCount"`
	Total      int64  `json:"total"`
	Version    uint64 `json:"version"`
}

// SKUSales is the sku-sales read model, keyed by SKU across all orders.
type SKUSales struct {
	SKU      string `json:"sku"`
	Quantity int    `json:"quantity"`
	Revenue  int64  `json:"revenue"`
	Orders   int    `json:"orders"`
}

// Projections returns the read models of the order domain.
func Projections() []projection.Projection {
	return []projection.Projection{summaryProjection(), skuSalesProjection()}
}

func summaryProjection() projection.Projection {
	return projection.New(SummaryProjection, func(view projection.View, event eventstore.Event) error {
		summary := Summary{OrderID: event.AggregateID}
		if _, err := view.Get(event.AggregateID, &summary); err != nil {
			return err
		}

		switch event.EventType {
		case OrderCreated:
			var p CreateOrderPayload
			if err := jsoniter.Unmarshal(event.Payload, &p); err != nil {
				return err
			}
			summary.CustomerID = p.CustomerID
			summary.Status = StatusOpen

		case ItemAdded:
			var p AddItemPayload
			if err := jsoniter.Unmarshal(event.Payload, &p); err != nil {
				return err
			}
			summary.ItemCount += p.Quantity
			summary.Total += int64(p.Quantity) * p.UnitPrice

		case OrderCancelled:
			summary.Status = StatusCancelled
		}

		summary.Version = event.Version

		return view.Put(event.AggregateID, summary)
	}, OrderCreated, ItemAdded, OrderCancelled)
}

func skuSalesProjection() projection.Projection {
	return projection.New(SKUSalesProjection, func(view projection.View, event eventstore.Event) error {
		var p AddItemPayload
		if err := jsoniter.Unmarshal(event.Payload, &p); err != nil {
			return err
		}

		sales := SKUSales{SKU: p.SKU}
		if _, err := view.Get(p.SKU, &sales); err != nil {
			return err
		}

		sales.Quantity += p.Quantity
		sales.Revenue += int64(p.Quantity) * p.UnitPrice
		sales.Orders++

		return view.Put(p.SKU, sales)
	}, ItemAdded)
}
