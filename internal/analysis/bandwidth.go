package analysis

import (
	"errors"
	"fmt"

	psnet "github.com/shirou/gopsutil/v3/net"
)

var errNoCounters = errors.New("no interface counters reported")

// CounterReader returns cumulative bytes sent and received.
type CounterReader interface {
	Counters() (sent, recv uint64, err error)
}

// InterfaceCounters reads OS network counters. An empty Interface sums all
// interfaces.
type InterfaceCounters struct {
	Interface string
}

func (c InterfaceCounters) Counters() (uint64, uint64, error) {
	stats, err := psnet.IOCounters(c.Interface != "")
	if err != nil {
		return 0, 0, fmt.Errorf("read io counters: %w", err)
	}

	for _, st := range stats {
		if c.Interface == "" || st.Name == c.Interface {
			return st.BytesSent, st.BytesRecv, nil
		}
	}
	return 0, 0, fmt.Errorf("%w for %q", errNoCounters, c.Interface)
}

// rate returns the per-second delta, or 0 when elapsed is not positive or
// the counter went backwards.
func rate(current, previous uint64, elapsedSeconds float64) float64 {
	if elapsedSeconds <= 0 || current < previous {
		return 0
	}
	return float64(current-previous) / elapsedSeconds
}
