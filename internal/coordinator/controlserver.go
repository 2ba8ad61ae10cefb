// File: controlserver.go
// Purpose: The coordinator's control-session handler — answers
// QUERY_STATE, QUERY_METRICS_LIST/LAST/HISTORY, and NODES_APPEND/LIST/
// REMOVE over the same framed wire protocol the CLI tools speak.

package coordinator

import (
	"encoding/json"
	"fmt"
	"net"
	"strconv"

	"github.com/spits-runtime/spits/internal/discovery"
	"github.com/spits-runtime/spits/internal/wire"
	"github.com/spits-runtime/spits/pkg/types"
)

// ListenControl binds the control server address and wires its accept loop
// to handleControlSession. Call before Run so the goroutine spawned in Run
// has a listener ready.
func (c *Coordinator) ListenControl(addr string) error {
	ln, err := wire.Listen(addr, c.handleControlSession, c.log)
	if err != nil {
		return fmt.Errorf("coordinator: listen control: %w", err)
	}
	c.controlLn = ln
	return nil
}

// ControlAddr returns the bound control server address, useful when Port
// was configured as 0.
func (c *Coordinator) ControlAddr() string {
	if c.controlLn == nil {
		return ""
	}
	return c.controlLn.Addr()
}

func (c *Coordinator) handleControlSession(ep *wire.Endpoint) {
	defer ep.Close()

	_, matched, err := ep.Handshake(c.cfg.JobID, c.cfg.ConnectionTimeout)
	if err != nil {
		c.log.Debug("control: handshake failed", "err", err)
		return
	}
	if !matched {
		c.log.Error("control: jobid mismatch, closing session")
		return
	}

	verbRaw, err := ep.ReadInt64(c.cfg.ReceiveTimeout)
	if err != nil {
		c.log.Debug("control: read verb failed", "err", err)
		return
	}

	switch wire.Verb(verbRaw) {
	case wire.QueryState:
		c.handleQueryState(ep)
	case wire.QueryMetricsList:
		c.handleQueryMetricsList(ep)
	case wire.QueryMetricsLast:
		c.handleQueryMetricsLast(ep)
	case wire.QueryMetricsHistory:
		c.handleQueryMetricsHistory(ep)
	case wire.NodesAppend:
		c.handleNodesAppend(ep)
	case wire.NodesList:
		c.handleNodesList(ep)
	case wire.NodesRemove:
		c.handleNodesRemove(ep)
	default:
		c.log.Error("control: unknown verb", "verb", wire.Verb(verbRaw))
		ep.WriteInt64(int64(wire.ResModuleError), c.cfg.SendTimeout)
	}
}

func (c *Coordinator) handleQueryState(ep *wire.Endpoint) {
	data, err := json.Marshal(c.Stats())
	if err != nil {
		ep.WriteInt64(int64(wire.ResModuleError), c.cfg.SendTimeout)
		return
	}
	ep.Write(data, c.cfg.SendTimeout)
}

func (c *Coordinator) handleQueryMetricsList(ep *wire.Endpoint) {
	if c.reg == nil {
		ep.Write([]byte(`{"metrics":[]}`), c.cfg.SendTimeout)
		return
	}
	data, err := c.reg.ListJSON()
	if err != nil {
		ep.WriteInt64(int64(wire.ResModuleError), c.cfg.SendTimeout)
		return
	}
	ep.Write(data, c.cfg.SendTimeout)
}

func (c *Coordinator) handleQueryMetricsLast(ep *wire.Endpoint) {
	name, err := ep.ReadString(c.cfg.ReceiveTimeout)
	if err != nil {
		return
	}
	if c.reg == nil {
		ep.Write([]byte(`{}`), c.cfg.SendTimeout)
		return
	}
	data, err := c.reg.LastValuesJSON([]string{name})
	if err != nil {
		ep.WriteInt64(int64(wire.ResModuleError), c.cfg.SendTimeout)
		return
	}
	ep.Write(data, c.cfg.SendTimeout)
}

func (c *Coordinator) handleQueryMetricsHistory(ep *wire.Endpoint) {
	name, err := ep.ReadString(c.cfg.ReceiveTimeout)
	if err != nil {
		return
	}
	if c.reg == nil {
		ep.Write([]byte(`{"name":"","samples":[]}`), c.cfg.SendTimeout)
		return
	}
	data, err := c.reg.HistoryJSON(name)
	if err != nil {
		ep.WriteInt64(int64(wire.ResModuleError), c.cfg.SendTimeout)
		return
	}
	ep.Write(data, c.cfg.SendTimeout)
}

func (c *Coordinator) handleNodesAppend(ep *wire.Endpoint) {
	line, err := ep.ReadString(c.cfg.ReceiveTimeout)
	if err != nil {
		return
	}
	host, port, err := splitNodeLine(line)
	if err != nil {
		ep.WriteInt64(int64(wire.ResModuleError), c.cfg.SendTimeout)
		return
	}
	if err := discovery.AddNode(c.deps.WorkDir, types.Endpoint{Host: host, Port: port}); err != nil {
		c.log.Error("control: nodes_append failed", "err", err)
		ep.WriteInt64(int64(wire.ResModuleError), c.cfg.SendTimeout)
		return
	}
	ep.WriteInt64(int64(wire.SendMore), c.cfg.SendTimeout)
}

func (c *Coordinator) handleNodesList(ep *wire.Endpoint) {
	endpoints, err := discovery.ListNodes(c.deps.WorkDir)
	if err != nil {
		ep.WriteInt64(int64(wire.ResModuleError), c.cfg.SendTimeout)
		return
	}
	data, err := json.Marshal(endpoints)
	if err != nil {
		ep.WriteInt64(int64(wire.ResModuleError), c.cfg.SendTimeout)
		return
	}
	ep.Write(data, c.cfg.SendTimeout)
}

func (c *Coordinator) handleNodesRemove(ep *wire.Endpoint) {
	name, err := ep.ReadString(c.cfg.ReceiveTimeout)
	if err != nil {
		return
	}
	if err := discovery.RemoveNode(c.deps.WorkDir, name); err != nil {
		ep.WriteInt64(int64(wire.ResModuleError), c.cfg.SendTimeout)
		return
	}
	ep.WriteInt64(int64(wire.SendMore), c.cfg.SendTimeout)
}

func splitNodeLine(line string) (host string, port int, err error) {
	h, portStr, err := net.SplitHostPort(line)
	if err != nil {
		return "", 0, fmt.Errorf("controlserver: malformed node line %q: %w", line, err)
	}
	p, err := strconv.Atoi(portStr)
	if err != nil {
		return "", 0, fmt.Errorf("controlserver: bad port in %q: %w", line, err)
	}
	return h, p, nil
}
