package web

import "github.com/sweeney/button-monitor/internal/history"

// GroupJSON is the response for GET /<group>.
type GroupJSON struct {
	Group      string            `json:"group"`
	Attributes map[string]string `json:"attributes"`
}

// HistoryJSON is the response for GET /<group>/history.
type HistoryJSON struct {
	Group   string          `json:"group"`
	Total   int             `json:"total"`
	Entries []history.Entry `json:"entries"`
}

// HealthJSON is the response for GET /health.
type HealthJSON struct {
	Active             bool   `json:"active"`
	MQTTConnected      bool   `json:"mqtt_connected"`
	NumGoroutines      int    `json:"num_goroutines"`
	HeapAllocatedBytes uint64 `json:"heap_allocated_bytes"`
	SysMemoryBytes     uint64 `json:"sys_memory_bytes"`
	ProgLang           string `json:"prog_lang"`
	Version            string `json:"version"`
	HostName           string `json:"host_name"`
	Time               string `json:"time"`
}
