package node

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/redbco/redb-open/services/raftcore/internal/consensus"
	"github.com/redbco/redb-open/services/raftcore/internal/monitoring"
	"github.com/redbco/redb-open/services/raftcore/pkg/health"
)

// StatusResponse is the /status payload: the consensus core's
// check_state snapshot plus the monitoring collector's last sample.
type StatusResponse struct {
	Self        string    `json:"self"`
	Role        string    `json:"role"`
	Term        uint64    `json:"term"`
	LeaderID    string    `json:"leader_id"`
	CommitIndex uint64    `json:"commit_index"`
	Healthy     bool      `json:"healthy"`
	SampledAt   time.Time `json:"sampled_at"`
}

// adminServer exposes /status and /healthz for operators and for the
// dashboards other services in this codebase build against.
type adminServer struct {
	self      string
	core      *consensus.Core
	collector *monitoring.Collector
	checker   *health.Checker
	server    *http.Server
}

func newAdminServer(addr, self string, core *consensus.Core, collector *monitoring.Collector, checker *health.Checker) *adminServer {
	a := &adminServer{self: self, core: core, collector: collector, checker: checker}

	mux := http.NewServeMux()
	mux.HandleFunc("/status", a.handleStatus)
	mux.HandleFunc("/healthz", a.handleHealthz)
	mux.HandleFunc("/propose", a.handlePropose)
	a.server = &http.Server{Addr: addr, Handler: mux}
	return a
}

func (a *adminServer) start() {
	go a.server.ListenAndServe()
}

func (a *adminServer) stop() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	a.server.Shutdown(ctx)
}

func (a *adminServer) handleStatus(w http.ResponseWriter, r *http.Request) {
	state := a.core.CheckState()
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(StatusResponse{
		Self:        a.self,
		Role:        state.Role.String(),
		Term:        state.Term,
		LeaderID:    state.LeaderID,
		CommitIndex: state.CommitIndex,
		Healthy:     state.Healthy,
		SampledAt:   a.collector.Latest().SampledAt,
	})
}

// handlePropose appends the request body to the replicated log and waits
// for it to commit. Non-leaders answer 409 with the leader they know of,
// so a client can redirect itself.
func (a *adminServer) handlePropose(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	payload, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	index, err := a.core.Propose(payload)
	if err != nil {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusConflict)
		json.NewEncoder(w).Encode(map[string]string{
			"error":  err.Error(),
			"leader": a.core.CheckState().LeaderID,
		})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()
	committed := a.core.WaitCommitted(ctx, index)

	w.Header().Set("Content-Type", "application/json")
	if !committed {
		w.WriteHeader(http.StatusAccepted)
	}
	json.NewEncoder(w).Encode(map[string]any{"index": index, "committed": committed})
}

func (a *adminServer) handleHealthz(w http.ResponseWriter, r *http.Request) {
	status := a.checker.GetOverallStatus()
	w.Header().Set("Content-Type", "application/json")
	if status != health.StatusHealthy {
		w.WriteHeader(http.StatusServiceUnavailable)
	}
	json.NewEncoder(w).Encode(map[string]string{"status": string(status)})
}
