package notifier_test

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/shopspring/decimal"

	"github.com/workfin/finance-core/internal"
	"github.com/workfin/finance-core/internal/core/events"
	"github.com/workfin/finance-core/internal/notifier"
)

func TestNotifier(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Notifier Suite")
}

var _ = Describe("Dispatcher", func() {
	var (
		logger   *slog.Logger
		received chan map[string]interface{}
		headers  chan http.Header
		server   *httptest.Server
	)

	newDispatcher := func(cfg internal.NotifierConfig) *notifier.Dispatcher {
		if cfg.WebhookURL == "" {
			cfg.WebhookURL = server.URL
		}
		if cfg.DeliverTimeout == 0 {
			cfg.DeliverTimeout = 2 * time.Second
		}
		return notifier.NewDispatcher(cfg, logger)
	}

	BeforeEach(func() {
		logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
		received = make(chan map[string]interface{}, 10)
		headers = make(chan http.Header, 10)

		server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			body, _ := io.ReadAll(r.Body)
			var envelope map[string]interface{}
			Expect(json.Unmarshal(body, &envelope)).NotTo(HaveOccurred())
			received <- envelope
			headers <- r.Header
			w.WriteHeader(http.StatusOK)
		}))
	})

	AfterEach(func() {
		server.Close()
	})

	It("delivers a queued event as a json envelope", func() {
		d := newDispatcher(internal.NotifierConfig{MaxWorkers: 2})
		defer d.Shutdown()

		amount := decimal.RequireFromString("150.00")
		event := events.NewExpenseStatusChangedEvent(1, 2, "approved", &amount, 30)
		Expect(d.HandleEvent(context.Background(), event)).NotTo(HaveOccurred())

		var envelope map[string]interface{}
		Eventually(received, "3s").Should(Receive(&envelope))
		Expect(envelope["event_type"]).To(Equal(events.EventTypeExpenseStatusChanged))
		Expect(envelope["event_id"]).NotTo(BeEmpty())

		data, ok := envelope["data"].(map[string]interface{})
		Expect(ok).To(BeTrue())
		Expect(data["status"]).To(Equal("approved"))
		Expect(data["approved_amount"]).To(Equal(amount.String()))
	})

	It("sends the api key header when configured", func() {
		d := newDispatcher(internal.NotifierConfig{APIKey: "secret-key", MaxWorkers: 1})
		defer d.Shutdown()

		event := events.NewInvoiceStatusChangedEvent(1, 2, "paid")
		Expect(d.HandleEvent(context.Background(), event)).NotTo(HaveOccurred())

		var h http.Header
		Eventually(headers, "3s").Should(Receive(&h))
		Expect(h.Get("X-API-Key")).To(Equal("secret-key"))
		Expect(h.Get("Content-Type")).To(Equal("application/json"))
	})

	It("receives events published through the bus", func() {
		d := newDispatcher(internal.NotifierConfig{MaxWorkers: 2})
		defer d.Shutdown()

		bus := events.NewEventBus(logger)
		d.SubscribeAll(bus)

		event := events.NewInvoicePaymentAppliedEvent(7,
			decimal.RequireFromString("40.00"),
			decimal.RequireFromString("40.00"),
			"PartialPaid")
		Expect(bus.Publish(context.Background(), event)).NotTo(HaveOccurred())

		var envelope map[string]interface{}
		Eventually(received, "3s").Should(Receive(&envelope))
		Expect(envelope["event_type"]).To(Equal(events.EventTypeInvoicePaymentApplied))
	})
})
