package handlers

import (
	"context"
	"os"
	"runtime"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/shirou/gopsutil/v3/load"
	"github.com/shirou/gopsutil/v3/mem"
	"github.com/shirou/gopsutil/v3/process"

	"github.com/soracast/soracast/internal/models"
)

// StreamStatusProvider reports the current broadcast state.
type StreamStatusProvider interface {
	Status() models.StreamSnapshot
}

// HealthHandler handles the health check endpoint.
type HealthHandler struct {
	version   string
	startTime time.Time
	streams   StreamStatusProvider
}

// NewHealthHandler creates a new health handler.
func NewHealthHandler(version string) *HealthHandler {
	return &HealthHandler{
		version:   version,
		startTime: time.Now(),
	}
}

// WithStreamService wires the stream service so health reports the
// broadcast phase.
func (h *HealthHandler) WithStreamService(svc StreamStatusProvider) *HealthHandler {
	h.streams = svc
	return h
}

// CPUInfo reports load averages relative to the core count.
type CPUInfo struct {
	Cores              int     `json:"cores"`
	Load1Min           float64 `json:"load1Min"`
	Load5Min           float64 `json:"load5Min"`
	Load15Min          float64 `json:"load15Min"`
	LoadPercentage1Min float64 `json:"loadPercentage1Min"`
}

// MemoryInfo reports system and process memory in megabytes. The process
// tree matters here because every encode forks an ffmpeg child.
type MemoryInfo struct {
	TotalMemoryMB      float64 `json:"totalMemoryMb"`
	UsedMemoryMB       float64 `json:"usedMemoryMb"`
	AvailableMemoryMB  float64 `json:"availableMemoryMb"`
	MainProcessMB      float64 `json:"mainProcessMb"`
	ChildProcessCount  int     `json:"childProcessCount"`
	ChildProcessesMB   float64 `json:"childProcessesMb"`
	TotalProcessTreeMB float64 `json:"totalProcessTreeMb"`
}

// StreamHealth reports the broadcast state.
type StreamHealth struct {
	Status      string `json:"status"`
	PresetID    string `json:"presetId,omitempty"`
	QueueLength int    `json:"queueLength"`
}

// HealthResponse is the body of the health check endpoint.
type HealthResponse struct {
	Status        string       `json:"status"`
	Timestamp     string       `json:"timestamp"`
	Version       string       `json:"version"`
	Uptime        string       `json:"uptime"`
	UptimeSeconds float64      `json:"uptimeSeconds"`
	CPUInfo       CPUInfo      `json:"cpu"`
	Memory        MemoryInfo   `json:"memory"`
	Stream        StreamHealth `json:"stream"`
}

// HealthOutput is the output for the health check endpoint.
type HealthOutput struct {
	Body HealthResponse
}

// Register registers the health route with the API.
func (h *HealthHandler) Register(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "getHealth",
		Method:      "GET",
		Path:        "/health",
		Summary:     "Health check",
		Description: "Returns the health status of the service including system metrics",
		Tags:        []string{"System"},
	}, h.GetHealth)
}

// GetHealth returns the health status of the service.
func (h *HealthHandler) GetHealth(_ context.Context, _ *struct{}) (*HealthOutput, error) {
	now := time.Now()
	uptime := now.Sub(h.startTime)

	streamHealth := StreamHealth{Status: string(models.PhaseStopped)}
	if h.streams != nil {
		snap := h.streams.Status()
		streamHealth = StreamHealth{
			Status:      string(snap.Phase),
			PresetID:    snap.PresetID,
			QueueLength: snap.QueueLength,
		}
	}

	return &HealthOutput{
		Body: HealthResponse{
			Status:        "healthy",
			Timestamp:     now.UTC().Format(time.RFC3339),
			Version:       h.version,
			Uptime:        uptime.Round(time.Second).String(),
			UptimeSeconds: uptime.Seconds(),
			CPUInfo:       h.getCPUInfo(),
			Memory:        h.getMemoryInfo(),
			Stream:        streamHealth,
		},
	}, nil
}

func (h *HealthHandler) getCPUInfo() CPUInfo {
	cores := runtime.NumCPU()
	info := CPUInfo{Cores: cores}

	loadAvg, err := load.Avg()
	if err == nil && loadAvg != nil {
		info.Load1Min = loadAvg.Load1
		info.Load5Min = loadAvg.Load5
		info.Load15Min = loadAvg.Load15
		if cores > 0 {
			info.LoadPercentage1Min = (loadAvg.Load1 / float64(cores)) * 100
		}
	}

	return info
}

func (h *HealthHandler) getMemoryInfo() MemoryInfo {
	info := MemoryInfo{}

	vmStat, err := mem.VirtualMemory()
	if err == nil && vmStat != nil {
		info.TotalMemoryMB = float64(vmStat.Total) / 1024 / 1024
		info.UsedMemoryMB = float64(vmStat.Used) / 1024 / 1024
		info.AvailableMemoryMB = float64(vmStat.Available) / 1024 / 1024
	}

	proc, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		return info
	}

	memInfo, err := proc.MemoryInfo()
	if err == nil && memInfo != nil {
		info.MainProcessMB = float64(memInfo.RSS) / 1024 / 1024
		info.TotalProcessTreeMB = info.MainProcessMB
	}

	children, err := proc.Children()
	if err == nil {
		info.ChildProcessCount = len(children)
		for _, child := range children {
			childMem, err := child.MemoryInfo()
			if err == nil && childMem != nil {
				childMB := float64(childMem.RSS) / 1024 / 1024
				info.ChildProcessesMB += childMB
				info.TotalProcessTreeMB += childMB
			}
		}
	}

	return info
}
