// Command spits-metric-values is a thin control-protocol client: it opens
// a session against a running coordinator's control server and asks for
// either the known metric names, a metric's last value, or its full
// history.
package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spits-runtime/spits/internal/cli"
	"github.com/spits-runtime/spits/internal/wire"
)

const controlTimeout = 5 * time.Second

func main() {
	cmd := cli.BuildMetricValuesCommand(run)
	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(addr, jobID, metric string, history bool) error {
	conn, err := wire.Dial(addr, controlTimeout)
	if err != nil {
		return fmt.Errorf("spits-metric-values: %w", err)
	}
	defer conn.Close()

	_, matched, err := conn.Handshake(jobID, controlTimeout)
	if err != nil {
		return fmt.Errorf("spits-metric-values: handshake: %w", err)
	}
	if !matched {
		return fmt.Errorf("spits-metric-values: jobid mismatch talking to %s", addr)
	}

	if metric == "" {
		if err := conn.WriteInt64(int64(wire.QueryMetricsList), controlTimeout); err != nil {
			return fmt.Errorf("spits-metric-values: %w", err)
		}
	} else if history {
		if err := conn.WriteInt64(int64(wire.QueryMetricsHistory), controlTimeout); err != nil {
			return fmt.Errorf("spits-metric-values: %w", err)
		}
		if err := conn.WriteString(metric, controlTimeout); err != nil {
			return fmt.Errorf("spits-metric-values: %w", err)
		}
	} else {
		if err := conn.WriteInt64(int64(wire.QueryMetricsLast), controlTimeout); err != nil {
			return fmt.Errorf("spits-metric-values: %w", err)
		}
		if err := conn.WriteString(metric, controlTimeout); err != nil {
			return fmt.Errorf("spits-metric-values: %w", err)
		}
	}

	data, err := conn.Read(controlTimeout)
	if err != nil {
		return fmt.Errorf("spits-metric-values: %w", err)
	}
	fmt.Println(string(data))
	return nil
}
