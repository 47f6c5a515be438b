package server

import (
	"encoding/json"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"

	"github.com/aristath/autoinvest/internal/modules/recurring"
	"github.com/aristath/autoinvest/internal/scheduler"
	"github.com/aristath/autoinvest/internal/services"
)

// OrderLister lists recurring orders
type OrderLister interface {
	List() []recurring.RecurringOrder
}

// CashReader reads ledger balances
type CashReader interface {
	CashBalance() float64
	TotalValue() float64
}

// HistoryCounter counts execution records
type HistoryCounter interface {
	Len() int
}

// LastScanReader reports the most recent scan
type LastScanReader interface {
	LastResult() (services.ScanResult, bool)
}

// JobLister reports registered background jobs
type JobLister interface {
	Jobs() []scheduler.JobInfo
}

// SystemHandlers handles system-wide monitoring endpoints
type SystemHandlers struct {
	log          zerolog.Logger
	dataDir      string
	storeBackend string
	startupTime  time.Time
	orders       OrderLister
	ledger       CashReader
	history      HistoryCounter
	scans        LastScanReader
	jobs         JobLister
	systemStats  func() (float64, float64)
}

// NewSystemHandlers creates a new system handlers instance
func NewSystemHandlers(
	log zerolog.Logger,
	dataDir string,
	storeBackend string,
	orders OrderLister,
	ledgerReader CashReader,
	historyCounter HistoryCounter,
	scans LastScanReader,
	jobs JobLister,
) *SystemHandlers {
	h := &SystemHandlers{
		log:          log.With().Str("component", "system_handlers").Logger(),
		dataDir:      dataDir,
		storeBackend: storeBackend,
		startupTime:  time.Now(),
		orders:       orders,
		ledger:       ledgerReader,
		history:      historyCounter,
		scans:        scans,
		jobs:         jobs,
	}
	h.systemStats = h.getSystemStats
	return h
}

// OrderCounts breaks orders down by status
type OrderCounts struct {
	Total     int `json:"total"`
	Active    int `json:"active"`
	Paused    int `json:"paused"`
	Cancelled int `json:"cancelled"`
	Due       int `json:"due"`
}

// LastScanSummary describes the most recent scan
type LastScanSummary struct {
	Due        int   `json:"due"`
	Succeeded  int   `json:"succeeded"`
	Failed     int   `json:"failed"`
	Skipped    int   `json:"skipped"`
	DurationMS int64 `json:"duration_ms"`
}

// SystemStatusResponse represents the system status
type SystemStatusResponse struct {
	Status         string              `json:"status"`
	UptimeSeconds  int64               `json:"uptime_seconds"`
	CPUPercent     float64             `json:"cpu_percent"`
	MemoryPercent  float64             `json:"memory_percent"`
	StoreBackend   string              `json:"store_backend"`
	Orders         OrderCounts         `json:"orders"`
	CashBalance    float64             `json:"cash_balance"`
	TotalValue     float64             `json:"total_value"`
	HistoryRecords int                 `json:"history_records"`
	LastScan       *LastScanSummary    `json:"last_scan,omitempty"`
	Jobs           []scheduler.JobInfo `json:"jobs"`
}

// DiskUsageResponse represents disk usage of the data directory
type DiskUsageResponse struct {
	DataDirMB float64 `json:"data_dir_mb"`
	StateDBMB float64 `json:"state_db_mb"`
}

// GetSystemStatusSnapshot returns a snapshot of the current system status
func (h *SystemHandlers) GetSystemStatusSnapshot() SystemStatusResponse {
	now := time.Now()

	var counts OrderCounts
	for _, order := range h.orders.List() {
		counts.Total++
		switch order.Status {
		case recurring.Active:
			counts.Active++
		case recurring.Paused:
			counts.Paused++
		case recurring.Cancelled:
			counts.Cancelled++
		}
		if order.IsDue(now) {
			counts.Due++
		}
	}

	cpuPercent, memPercent := h.systemStats()

	response := SystemStatusResponse{
		Status:         "healthy",
		UptimeSeconds:  int64(now.Sub(h.startupTime).Seconds()),
		CPUPercent:     cpuPercent,
		MemoryPercent:  memPercent,
		StoreBackend:   h.storeBackend,
		Orders:         counts,
		CashBalance:    h.ledger.CashBalance(),
		TotalValue:     h.ledger.TotalValue(),
		HistoryRecords: h.history.Len(),
		Jobs:           []scheduler.JobInfo{},
	}
	if h.jobs != nil {
		response.Jobs = h.jobs.Jobs()
	}

	if h.scans != nil {
		if last, ok := h.scans.LastResult(); ok {
			response.LastScan = &LastScanSummary{
				Due:        last.Due,
				Succeeded:  last.Succeeded,
				Failed:     last.Failed,
				Skipped:    last.Skipped,
				DurationMS: last.Duration.Milliseconds(),
			}
		}
	}

	return response
}

// HandleSystemStatus returns comprehensive system status
func (h *SystemHandlers) HandleSystemStatus(w http.ResponseWriter, r *http.Request) {
	h.log.Debug().Msg("Getting system status")

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(h.GetSystemStatusSnapshot()); err != nil {
		h.log.Error().Err(err).Msg("Failed to encode system status")
	}
}

// HandleDiskUsage returns the size of the data directory
func (h *SystemHandlers) HandleDiskUsage(w http.ResponseWriter, r *http.Request) {
	h.log.Debug().Msg("Getting disk usage")

	response := DiskUsageResponse{
		DataDirMB: h.getDirSize(h.dataDir),
	}
	if info, err := os.Stat(filepath.Join(h.dataDir, "state.db")); err == nil {
		response.StateDBMB = float64(info.Size()) / 1024 / 1024
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(response); err != nil {
		h.log.Error().Err(err).Msg("Failed to encode disk usage")
	}
}

// getDirSize calculates total size of a directory in MB
func (h *SystemHandlers) getDirSize(dirPath string) float64 {
	var totalSize int64

	err := filepath.Walk(dirPath, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return nil // Skip errors
		}
		if !info.IsDir() {
			totalSize += info.Size()
		}
		return nil
	})

	if err != nil {
		h.log.Warn().Err(err).Str("dir", dirPath).Msg("Failed to calculate directory size")
		return 0
	}

	return float64(totalSize) / 1024 / 1024
}

// getSystemStats calculates CPU and RAM usage percentages.
// CPU is sampled over 100ms so the endpoint stays responsive.
func (h *SystemHandlers) getSystemStats() (float64, float64) {
	cpuPercent, err := cpu.Percent(100*time.Millisecond, false)
	if err != nil {
		h.log.Warn().Err(err).Msg("Failed to get CPU percentage")
		cpuPercent = []float64{0}
	}

	memStat, err := mem.VirtualMemory()
	if err != nil {
		h.log.Warn().Err(err).Msg("Failed to get memory statistics")
		return 0, 0
	}

	cpuAvg := 0.0
	if len(cpuPercent) > 0 {
		cpuAvg = cpuPercent[0]
	}

	return cpuAvg, memStat.UsedPercent
}
