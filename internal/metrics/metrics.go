// Package metrics объявляет счётчики Prometheus для потока обработки платежей.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Результаты обработки события вебхука для метки result.
const (
	ResultGranted   = "granted"
	ResultDuplicate = "duplicate"
	ResultIgnored   = "ignored"
	ResultRejected  = "rejected"
	ResultFailed    = "failed"
)

// WebhookEventsTotal количество принятых событий вебхука по результату обработки.
var WebhookEventsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "lorastudio_webhook_events_total",
	Help: "Webhook events received, labelled by processing result.",
}, []string{"result"})

// CreditGrantsTotal количество начислений по продуктам.
var CreditGrantsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "lorastudio_credit_grants_total",
	Help: "Credit grants applied, labelled by product.",
}, []string{"product"})

// CreditSpendsTotal количество списаний кредитов по продуктам.
var CreditSpendsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "lorastudio_credit_spends_total",
	Help: "Credit spends performed, labelled by product.",
}, []string{"product"})
