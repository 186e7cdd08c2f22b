package monitoring

import (
	"context"
	"fmt"
	"time"

	"github.com/redbco/redb-open/services/raftcore/internal/consensus"
	"github.com/redbco/redb-open/services/raftcore/pkg/health"
)

// RegisterConsensusCheck wires the consensus core's check_state into a
// health.Checker under name "consensus", polling at period until ctx is
// done. A Leader that has lost majority, a Follower with no known leader
// or whose election timer has fired, and any Candidate report unhealthy.
func RegisterConsensusCheck(ctx context.Context, checker *health.Checker, core *consensus.Core, period time.Duration) {
	if period <= 0 {
		period = 5 * time.Second
	}

	run := func() {
		checker.RunCheck("consensus", func() error {
			state := core.CheckState()
			if !state.Healthy {
				return fmt.Errorf("role=%s term=%d leader=%q commit=%d not healthy", state.Role, state.Term, state.LeaderID, state.CommitIndex)
			}
			return nil
		})
	}

	run()
	ticker := time.NewTicker(period)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				run()
			}
		}
	}()
}
