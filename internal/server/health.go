package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/shirou/gopsutil/v4/host"
	"github.com/shirou/gopsutil/v4/mem"
)

// HostStats is the host snapshot reported by /healthz.
type HostStats struct {
	Hostname       string  `json:"host"`
	OS             string  `json:"os"`
	UptimeSeconds  uint64  `json:"uptime_seconds"`
	MemUsedPercent float64 `json:"mem_used_percent"`
}

// collectHostStats is best-effort: fields that cannot be read stay zero.
func collectHostStats() HostStats {
	var s HostStats
	if info, err := host.Info(); err == nil {
		s.Hostname = info.Hostname
		s.UptimeSeconds = info.Uptime
		s.OS = info.Platform
		if info.PlatformVersion != "" {
			s.OS += " " + info.PlatformVersion
		}
	}
	if vm, err := mem.VirtualMemory(); err == nil {
		s.MemUsedPercent = vm.UsedPercent
	}
	return s
}

func handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok", "host": collectHostStats()})
}
