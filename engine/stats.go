package engine

import (
	"encoding/json"
	"net/http"

	"github.com/corvid-labs/wireclient/metrics"
)

// Stats is a point-in-time snapshot of a Context's observable state: its
// request counters, how many sockets it currently holds open, and how many
// cookies its jar is carrying. It's the JSON body StatsHandler serves.
type Stats struct {
	metrics.Snapshot
	OpenSockets int `json:"open_sockets"`
	CookieCount int `json:"cookie_count"`
}

// Stats returns a snapshot of the Context's counters and pool/jar sizes.
func (c *Context) Stats() Stats {
	return Stats{
		Snapshot:    c.metrics.Snapshot(),
		OpenSockets: c.pool.GlobalTotal(),
		CookieCount: c.jar.Total(),
	}
}

// StatsHandler returns an http.Handler that serves the Context's current
// Stats as JSON. It carries none of the teacher dashboard's SSE streaming,
// config hot-reload, or cluster-node endpoints — those concerns don't exist
// for a single in-process Context, which has no peers to report on and no
// config to mutate after construction.
func (c *Context) StatsHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("Access-Control-Allow-Origin", "*")
		_ = json.NewEncoder(w).Encode(c.Stats())
	})
}
