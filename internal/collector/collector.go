package collector

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/davidrios/incubadora-telemetry/internal/service"
)

const fetchTimeout = 3 * time.Second

// DeviceStatus is the per-device state exposed to the dashboard.
type DeviceStatus struct {
	BaseURL    string         `json:"base_url"`
	LastOK     *time.Time     `json:"last_ok,omitempty"`
	LastError  string         `json:"last_error,omitempty"`
	LastSample map[string]any `json:"last_sample,omitempty"`
}

// StatusSnapshot is the collector state at one point in time.
type StatusSnapshot struct {
	Enabled  bool           `json:"enabled"`
	PeriodMS int            `json:"period_ms"`
	Devices  []DeviceStatus `json:"devices"`
	Now      time.Time      `json:"now"`
}

// Collector polls each configured device's /data endpoint on a fixed period
// and feeds the responses through the regular ingestion pipeline. Failures
// are isolated per device and not retried before the next tick.
type Collector struct {
	devices  []string
	period   time.Duration
	ingestor *service.Ingestor
	client   *http.Client
	logger   *zap.Logger

	mu     sync.Mutex
	status map[string]*DeviceStatus

	cancel context.CancelFunc
	done   chan struct{}
}

// New creates a collector for the given device base URLs.
func New(ingestor *service.Ingestor, devices []string, period time.Duration, logger *zap.Logger) *Collector {
	status := make(map[string]*DeviceStatus, len(devices))
	for _, d := range devices {
		status[d] = &DeviceStatus{BaseURL: d}
	}
	return &Collector{
		devices:  devices,
		period:   period,
		ingestor: ingestor,
		client:   &http.Client{Timeout: fetchTimeout},
		logger:   logger,
		status:   status,
	}
}

// Enabled reports whether any devices are configured.
func (c *Collector) Enabled() bool {
	return len(c.devices) > 0
}

// Start launches the polling loop. No-op when no devices are configured.
func (c *Collector) Start() {
	if !c.Enabled() {
		c.logger.Info("no devices configured, collector disabled")
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	c.cancel = cancel
	c.done = make(chan struct{})

	c.logger.Info("collector started",
		zap.Strings("devices", c.devices),
		zap.Duration("period", c.period),
	)

	go func() {
		defer close(c.done)
		ticker := time.NewTicker(c.period)
		defer ticker.Stop()
		c.PollAll(ctx)
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				c.PollAll(ctx)
			}
		}
	}()
}

// Stop cancels the polling loop and waits for it to finish.
func (c *Collector) Stop() {
	if c.cancel == nil {
		return
	}
	c.cancel()
	<-c.done
	c.logger.Info("collector stopped")
}

// PollAll runs one fetch-and-ingest cycle for every device. One device's
// failure never affects the others.
func (c *Collector) PollAll(ctx context.Context) {
	for _, base := range c.devices {
		c.pollOne(ctx, base)
	}
}

func (c *Collector) pollOne(ctx context.Context, base string) {
	fields, err := c.fetch(ctx, base)
	if err == nil {
		// Devices rarely self-identify over this path; fall back to
		// the configured base URL as their identity.
		if !hasIdentity(fields) {
			fields["device"] = base
		}
		_, err = c.ingestor.IngestFields(ctx, fields, c.logger)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	st := c.status[base]
	if err != nil {
		st.LastError = err.Error()
		c.logger.Warn("device poll failed", zap.String("base_url", base), zap.Error(err))
		return
	}
	now := time.Now().UTC()
	st.LastOK = &now
	st.LastError = ""
	st.LastSample = fields
}

func (c *Collector) fetch(ctx context.Context, base string) (map[string]any, error) {
	url := strings.TrimRight(base, "/") + "/data"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("device returned status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	var fields map[string]any
	if err := json.Unmarshal(body, &fields); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	return fields, nil
}

func hasIdentity(fields map[string]any) bool {
	for _, key := range []string{"device_id", "id", "mac", "device"} {
		if _, ok := fields[key]; ok {
			return true
		}
	}
	return false
}

// Status returns a snapshot of the collector state.
func (c *Collector) Status() StatusSnapshot {
	c.mu.Lock()
	defer c.mu.Unlock()

	devices := make([]DeviceStatus, 0, len(c.devices))
	for _, base := range c.devices {
		devices = append(devices, *c.status[base])
	}
	return StatusSnapshot{
		Enabled:  c.Enabled(),
		PeriodMS: int(c.period / time.Millisecond),
		Devices:  devices,
		Now:      time.Now().UTC(),
	}
}
