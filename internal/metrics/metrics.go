// Package metrics exposes order business counters to Prometheus.
package metrics

import (
	"strings"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/rrajo-portfolio/orders-service/internal/order"
)

type OrdersMetrics struct {
	status          *prometheus.CounterVec
	customers       *prometheus.CounterVec
	revenue         *prometheus.CounterVec
	productQuantity *prometheus.CounterVec
}

func NewOrdersMetrics(reg prometheus.Registerer) *OrdersMetrics {
	m := &OrdersMetrics{
		status: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "orders_status_total",
			Help: "Total orders processed per status.",
		}, []string{"status"}),
		customers: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "orders_customers_total",
			Help: "Orders placed per customer segment.",
		}, []string{"segment"}),
		revenue: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "orders_revenue_total",
			Help: "Aggregated order revenue by currency.",
		}, []string{"currency"}),
		productQuantity: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "orders_product_quantity_total",
			Help: "Total quantity sold per product.",
		}, []string{"product_id", "product_name"}),
	}
	reg.MustRegister(m.status, m.customers, m.revenue, m.productQuantity)
	return m
}

func (m *OrdersMetrics) TrackNewOrder(o order.Order, newCustomer bool) {
	m.IncrementStatus(o.Status)

	segment := "returning"
	if newCustomer {
		segment = "new"
	}
	m.customers.WithLabelValues(segment).Inc()

	if o.Currency != "" {
		amount, _ := o.TotalAmount.Float64()
		m.revenue.WithLabelValues(strings.ToUpper(o.Currency)).Add(amount)
	}

	for _, item := range o.Items {
		name := item.Title
		if name == "" {
			name = "unknown"
		}
		m.productQuantity.WithLabelValues(item.ProductID.String(), name).Add(float64(item.Quantity))
	}
}

func (m *OrdersMetrics) IncrementStatus(status order.Status) {
	m.status.WithLabelValues(status.String()).Inc()
}
