package notifier

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/workfin/finance-core/internal"
	"github.com/workfin/finance-core/internal/core/events"
)

// DeliveryJob is one webhook delivery: the serialized event plus routing
// metadata for logging.
type DeliveryJob struct {
	EventID   string
	EventType string
	Payload   []byte
}

type Worker struct {
	ID         int
	WorkerPool chan chan DeliveryJob
	JobChannel chan DeliveryJob
	Logger     *slog.Logger
}

func NewWorker(id int, workerPool chan chan DeliveryJob, logger *slog.Logger) *Worker {
	return &Worker{
		ID:         id,
		WorkerPool: workerPool,
		JobChannel: make(chan DeliveryJob),
		Logger:     logger,
	}
}

func (w *Worker) Start(ctx context.Context, wg *sync.WaitGroup, deliverFunc func(DeliveryJob)) {
	wg.Add(1)
	go func() {
		defer wg.Done()

		for {
			w.WorkerPool <- w.JobChannel

			select {
			case job := <-w.JobChannel:
				w.Logger.Debug("worker delivering notification", "worker_id", w.ID, "event_id", job.EventID)
				deliverFunc(job)
			case <-ctx.Done():
				w.Logger.Debug("worker shutting down", "worker_id", w.ID)
				return
			}
		}
	}()
}

// Dispatcher consumes status-change events from the bus and posts them as
// JSON to the configured webhook through a bounded worker pool. When no
// webhook is configured the dispatcher is not started and events stay
// in-process.
type Dispatcher struct {
	webhookURL     string
	apiKey         string
	deliverTimeout time.Duration
	logger         *slog.Logger
	httpClient     *http.Client

	jobQueue   chan DeliveryJob
	workerPool chan chan DeliveryJob
	maxWorkers int
	ctx        context.Context
	cancel     context.CancelFunc
	wg         sync.WaitGroup
	once       sync.Once
}

func NewDispatcher(cfg internal.NotifierConfig, logger *slog.Logger) *Dispatcher {
	ctx, cancel := context.WithCancel(context.Background())

	maxWorkers := cfg.MaxWorkers
	if maxWorkers <= 0 {
		maxWorkers = 10
	}

	jobQueueSize := cfg.JobQueueSize
	if jobQueueSize <= 0 {
		jobQueueSize = 100
	}

	workerPoolSize := cfg.WorkerPoolSize
	if workerPoolSize <= 0 {
		workerPoolSize = maxWorkers
	}

	deliverTimeout := cfg.DeliverTimeout
	if deliverTimeout <= 0 {
		deliverTimeout = 10 * time.Second
	}

	d := &Dispatcher{
		webhookURL:     cfg.WebhookURL,
		apiKey:         cfg.APIKey,
		deliverTimeout: deliverTimeout,
		logger:         logger,
		httpClient:     &http.Client{Timeout: deliverTimeout},

		maxWorkers: maxWorkers,
		jobQueue:   make(chan DeliveryJob, jobQueueSize),
		workerPool: make(chan chan DeliveryJob, workerPoolSize),
		ctx:        ctx,
		cancel:     cancel,
	}

	d.startWorkerPool()

	return d
}

// SubscribeAll registers the dispatcher for every finance event type.
func (d *Dispatcher) SubscribeAll(bus *events.EventBus) {
	for _, eventType := range []string{
		events.EventTypeExpenseStatusChanged,
		events.EventTypeRevisionStatusChanged,
		events.EventTypeInvoiceStatusChanged,
		events.EventTypeInvoicePaymentApplied,
	} {
		bus.Subscribe(eventType, d.HandleEvent)
	}
}

// HandleEvent enqueues an event for webhook delivery. A full queue drops
// the notification rather than blocking the publisher.
func (d *Dispatcher) HandleEvent(ctx context.Context, event events.Event) error {
	envelope := map[string]interface{}{
		"event_id":    event.EventID(),
		"event_type":  event.EventType(),
		"occurred_at": event.OccurredAt().Format(time.RFC3339),
		"data":        event.Payload(),
	}

	payload, err := json.Marshal(envelope)
	if err != nil {
		return fmt.Errorf("failed to marshal event %s: %w", event.EventID(), err)
	}

	job := DeliveryJob{
		EventID:   event.EventID(),
		EventType: event.EventType(),
		Payload:   payload,
	}

	select {
	case d.jobQueue <- job:
		d.logger.Debug("notification queued",
			"event_id", job.EventID,
			"event_type", job.EventType,
			"queue_length", len(d.jobQueue))
	default:
		d.logger.Warn("notification queue full, dropping event",
			"event_id", job.EventID,
			"event_type", job.EventType,
			"queue_capacity", cap(d.jobQueue))
		return fmt.Errorf("notification queue full")
	}

	return nil
}

func (d *Dispatcher) startWorkerPool() {
	d.once.Do(func() {
		for i := 0; i < d.maxWorkers; i++ {
			worker := NewWorker(i, d.workerPool, d.logger)
			worker.Start(d.ctx, &d.wg, d.deliver)
		}

		go d.dispatch()

		d.logger.Info("notification worker pool started",
			"max_workers", d.maxWorkers,
			"queue_size", cap(d.jobQueue))
	})
}

func (d *Dispatcher) dispatch() {
	d.wg.Add(1)
	defer d.wg.Done()

	for {
		select {
		case job := <-d.jobQueue:
			select {
			case jobChannel := <-d.workerPool:
				select {
				case jobChannel <- job:

				case <-d.ctx.Done():
					d.logger.Info("dispatcher shutting down")
					return
				}
			case <-d.ctx.Done():
				d.logger.Info("dispatcher shutting down")
				return
			}
		case <-d.ctx.Done():
			d.logger.Info("dispatcher shutting down")
			return
		}
	}
}

// Shutdown stops accepting jobs and waits for in-flight deliveries.
func (d *Dispatcher) Shutdown() {
	d.logger.Info("shutting down notification dispatcher")
	d.cancel()
	d.wg.Wait()
	d.logger.Info("notification dispatcher shutdown complete")
}

func (d *Dispatcher) deliver(job DeliveryJob) {
	ctx, cancel := context.WithTimeout(d.ctx, d.deliverTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.webhookURL, bytes.NewBuffer(job.Payload))
	if err != nil {
		d.logger.Error("failed to create webhook request",
			"error", err,
			"event_id", job.EventID)
		return
	}
	req.Header.Set("Content-Type", "application/json")
	if d.apiKey != "" {
		req.Header.Set("X-API-Key", d.apiKey)
	}

	resp, err := d.httpClient.Do(req)
	if err != nil {
		d.logger.Error("webhook delivery failed",
			"error", err,
			"event_id", job.EventID,
			"event_type", job.EventType)
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		d.logger.Info("notification delivered",
			"event_id", job.EventID,
			"event_type", job.EventType,
			"status_code", resp.StatusCode)
	} else {
		d.logger.Warn("webhook returned non-success status",
			"event_id", job.EventID,
			"event_type", job.EventType,
			"status_code", resp.StatusCode)
	}
}
