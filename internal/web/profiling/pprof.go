// Package profiling mounts pprof and runtime statistics for diagnosing a
// running ddmark server.
//
// These endpoints expose goroutine stacks and heap contents. Only enable them
// on a server bound to a trusted interface.
package profiling

import (
	"net/http"
	"net/http/pprof"
	"runtime"

	"github.com/go-chi/chi/v5"

	"github.com/dphaener/ddmark/internal/web/response"
)

// DefaultPath is where the profiling routes are mounted
const DefaultPath = "/debug/pprof"

// Config holds profiling configuration
type Config struct {
	// Path is the URL prefix for the routes
	Path string

	// BlockRate is passed to runtime.SetBlockProfileRate; 0 leaves block
	// profiling off
	BlockRate int

	// MutexFraction is passed to runtime.SetMutexProfileFraction; 0 leaves
	// mutex profiling off
	MutexFraction int
}

// DefaultConfig returns default profiling configuration
func DefaultConfig() Config {
	return Config{Path: DefaultPath}
}

// profiles are served by pprof.Handler under their own name
var profiles = []string{"allocs", "block", "goroutine", "heap", "mutex", "threadcreate"}

// RegisterRoutes mounts pprof plus a JSON runtime summary at Path/stats
func RegisterRoutes(router chi.Router, config Config) {
	if config.Path == "" {
		config.Path = DefaultPath
	}
	if config.BlockRate > 0 {
		runtime.SetBlockProfileRate(config.BlockRate)
	}
	if config.MutexFraction > 0 {
		runtime.SetMutexProfileFraction(config.MutexFraction)
	}

	router.Route(config.Path, func(r chi.Router) {
		r.HandleFunc("/", pprof.Index)
		r.HandleFunc("/cmdline", pprof.Cmdline)
		r.HandleFunc("/profile", pprof.Profile)
		r.HandleFunc("/symbol", pprof.Symbol)
		r.HandleFunc("/trace", pprof.Trace)
		for _, name := range profiles {
			r.Handle("/"+name, pprof.Handler(name))
		}
		r.Get("/stats", StatsHandler())
	})
}

// Stats is a snapshot of the Go runtime
type Stats struct {
	Goroutines int         `json:"goroutines"`
	Memory     MemoryStats `json:"memory"`
	CPU        CPUStats    `json:"cpu"`
}

// MemoryStats is the subset of runtime.MemStats worth watching
type MemoryStats struct {
	Alloc      uint64 `json:"alloc"`
	TotalAlloc uint64 `json:"total_alloc"`
	Sys        uint64 `json:"sys"`
	NumGC      uint32 `json:"num_gc"`
}

// CPUStats describes the processors available to the runtime
type CPUStats struct {
	NumCPU     int   `json:"num_cpu"`
	NumCgoCall int64 `json:"num_cgo_call"`
}

// RuntimeStats returns current runtime statistics
func RuntimeStats() Stats {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	return Stats{
		Goroutines: runtime.NumGoroutine(),
		Memory: MemoryStats{
			Alloc:      m.Alloc,
			TotalAlloc: m.TotalAlloc,
			Sys:        m.Sys,
			NumGC:      m.NumGC,
		},
		CPU: CPUStats{
			NumCPU:     runtime.NumCPU(),
			NumCgoCall: runtime.NumCgoCall(),
		},
	}
}

// StatsHandler serves RuntimeStats as JSON
func StatsHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		_ = response.RenderJSON(w, http.StatusOK, RuntimeStats())
	}
}
