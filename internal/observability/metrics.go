package observability

import (
	"strconv"
	"sync"
	"time"
)

// Metrics provides basic in-memory counters.
type Metrics struct {
	mu                 sync.Mutex
	requestCount       map[string]int64
	errorCount         map[string]int64
	ticketsCreated     int64
	notificationsSent  int64
	notificationFaults int64
	redeliveries       int64
}

// Snapshot is a point-in-time copy of the counters.
type Snapshot struct {
	Requests           map[string]int64 `json:"requests"`
	Errors             map[string]int64 `json:"errors"`
	TicketsCreated     int64            `json:"tickets_created"`
	NotificationsSent  int64            `json:"notifications_sent"`
	NotificationFaults int64            `json:"notification_faults"`
	Redeliveries       int64            `json:"redeliveries"`
}

// NewMetrics initializes metrics storage.
func NewMetrics() *Metrics {
	return &Metrics{
		requestCount: make(map[string]int64),
		errorCount:   make(map[string]int64),
	}
}

// RecordRequest increments counters for requests.
func (m *Metrics) RecordRequest(path, method string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	key := pathKey(path, method, status)
	m.mu.Lock()
	defer m.mu.Unlock()
	m.requestCount[key]++
}

// RecordError increments error counters.
func (m *Metrics) RecordError(path, method, code string) {
	if m == nil {
		return
	}
	key := path + "|" + method + "|" + code
	m.mu.Lock()
	defer m.mu.Unlock()
	m.errorCount[key]++
}

func (m *Metrics) RecordTicketCreated() {
	m.add(func(m *Metrics) { m.ticketsCreated++ })
}

func (m *Metrics) RecordNotificationSent() {
	m.add(func(m *Metrics) { m.notificationsSent++ })
}

func (m *Metrics) RecordNotificationFault() {
	m.add(func(m *Metrics) { m.notificationFaults++ })
}

// RecordRedelivery counts creation events re-emitted by the reconciler.
func (m *Metrics) RecordRedelivery() {
	m.add(func(m *Metrics) { m.redeliveries++ })
}

func (m *Metrics) add(inc func(*Metrics)) {
	if m == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	inc(m)
}

// Snapshot copies the current counters.
func (m *Metrics) Snapshot() Snapshot {
	if m == nil {
		return Snapshot{Requests: map[string]int64{}, Errors: map[string]int64{}}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	snap := Snapshot{
		Requests:           make(map[string]int64, len(m.requestCount)),
		Errors:             make(map[string]int64, len(m.errorCount)),
		TicketsCreated:     m.ticketsCreated,
		NotificationsSent:  m.notificationsSent,
		NotificationFaults: m.notificationFaults,
		Redeliveries:       m.redeliveries,
	}
	for k, v := range m.requestCount {
		snap.Requests[k] = v
	}
	for k, v := range m.errorCount {
		snap.Errors[k] = v
	}
	return snap
}

func pathKey(path, method string, status int) string {
	return path + "|" + method + "|" + strconv.Itoa(status)
}
