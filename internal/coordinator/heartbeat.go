// File: heartbeat.go
// Purpose: The single heartbeat goroutine — periodically pings every known
// worker so a worker that has silently vanished has its per-worker file
// under nodes/ removed before the generator wastes a dispatch attempt on
// it. Entries in nodes.txt are not pruned.

package coordinator

import (
	"context"
	"time"

	"github.com/spits-runtime/spits/internal/discovery"
	"github.com/spits-runtime/spits/internal/wire"
	"github.com/spits-runtime/spits/pkg/types"
)

func (c *Coordinator) heartbeatLoop(ctx context.Context) {
	defer c.wg.Done()

	ticker := time.NewTicker(c.cfg.HeartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.stopCh:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.heartbeatRound()
		}
	}
}

func (c *Coordinator) heartbeatRound() {
	endpoints, err := discovery.Load(c.deps.WorkDir)
	if err != nil {
		c.log.Error("heartbeat: discovery load failed", "err", err)
		return
	}

	for _, ep := range endpoints {
		if !c.pingWorker(ep) {
			c.log.Info("heartbeat: worker unresponsive, removing from discovery", "endpoint", ep)
			if err := discovery.RemoveNode(c.deps.WorkDir, ep.Name); err != nil {
				c.log.Error("heartbeat: remove node failed", "endpoint", ep, "err", err)
			}
		}
	}
}

func (c *Coordinator) pingWorker(ep types.Endpoint) bool {
	conn, err := wire.Dial(ep.Addr(), c.cfg.ConnectionTimeout)
	if err != nil {
		return false
	}
	defer conn.Close()

	_, matched, err := conn.Handshake(c.cfg.JobID, c.cfg.HeartbeatTimeout)
	if err != nil || !matched {
		return false
	}

	if err := conn.WriteInt64(int64(wire.SendHeart), c.cfg.HeartbeatTimeout); err != nil {
		return false
	}
	_, err = conn.ReadInt64(c.cfg.HeartbeatTimeout)
	return err == nil
}
