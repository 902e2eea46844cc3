// Package supervisor arranges the long-running services of the monitor in
// a suture tree so a crashing component is restarted on its own.
package supervisor

import (
	"context"
	"time"

	"github.com/thejerf/suture/v4"

	"netmonitor/internal/logger"
)

// TreeConfig holds restart policy for every supervisor in the tree.
type TreeConfig struct {
	FailureThreshold float64
	FailureDecay     float64
	FailureBackoff   time.Duration
	ShutdownTimeout  time.Duration
}

func DefaultTreeConfig() TreeConfig {
	return TreeConfig{
		FailureThreshold: 5,
		FailureDecay:     30,
		FailureBackoff:   15 * time.Second,
		ShutdownTimeout:  10 * time.Second,
	}
}

// Tree has three layers:
//   - capture: the traffic sampler
//   - monitor: reconciliation loop and stats driver
//   - output: event forwarders and the HTTP server
type Tree struct {
	root    *suture.Supervisor
	capture *suture.Supervisor
	monitor *suture.Supervisor
	output  *suture.Supervisor
	config  TreeConfig
}

func NewTree(log logger.Logger, config TreeConfig) *Tree {
	def := DefaultTreeConfig()
	if config.FailureThreshold == 0 {
		config.FailureThreshold = def.FailureThreshold
	}
	if config.FailureDecay == 0 {
		config.FailureDecay = def.FailureDecay
	}
	if config.FailureBackoff == 0 {
		config.FailureBackoff = def.FailureBackoff
	}
	if config.ShutdownTimeout == 0 {
		config.ShutdownTimeout = def.ShutdownTimeout
	}

	childSpec := suture.Spec{
		FailureThreshold: config.FailureThreshold,
		FailureDecay:     config.FailureDecay,
		FailureBackoff:   config.FailureBackoff,
		Timeout:          config.ShutdownTimeout,
	}
	rootSpec := childSpec
	rootSpec.EventHook = EventHook(log.WithComponent("supervisor"))

	t := &Tree{
		root:    suture.New("netmonitor", rootSpec),
		capture: suture.New("capture", childSpec),
		monitor: suture.New("monitor", childSpec),
		output:  suture.New("output", childSpec),
		config:  config,
	}
	t.root.Add(t.capture)
	t.root.Add(t.monitor)
	t.root.Add(t.output)
	return t
}

// EventHook logs supervisor events. Failures and backoff are warnings.
func EventHook(log logger.Logger) suture.EventHook {
	return func(e suture.Event) {
		ev := log.Warn()
		if e.Type() == suture.EventTypeResume {
			ev = log.Info()
		}
		ev.Fields(e.Map()).Msg(e.String())
	}
}

func (t *Tree) AddCaptureService(svc suture.Service) suture.ServiceToken {
	return t.capture.Add(svc)
}

func (t *Tree) AddMonitorService(svc suture.Service) suture.ServiceToken {
	return t.monitor.Add(svc)
}

func (t *Tree) AddOutputService(svc suture.Service) suture.ServiceToken {
	return t.output.Add(svc)
}

// Serve runs the tree until ctx is cancelled.
func (t *Tree) Serve(ctx context.Context) error {
	return t.root.Serve(ctx)
}

func (t *Tree) ServeBackground(ctx context.Context) <-chan error {
	return t.root.ServeBackground(ctx)
}

// UnstoppedServiceReport lists services that ignored the shutdown timeout,
// across every layer. It blocks until the tree has stopped.
func (t *Tree) UnstoppedServiceReport() ([]suture.UnstoppedService, error) {
	var out []suture.UnstoppedService
	for _, sup := range []*suture.Supervisor{t.root, t.capture, t.monitor, t.output} {
		report, err := sup.UnstoppedServiceReport()
		if err != nil {
			return nil, err
		}
		out = append(out, report...)
	}
	return out, nil
}

// LogUnstopped warns about every service that outlived shutdown and
// returns how many there were.
func (t *Tree) LogUnstopped(log logger.Logger) int {
	report, err := t.UnstoppedServiceReport()
	if err != nil {
		log.Warn().Err(err).Msg("could not read unstopped service report")
		return 0
	}
	for _, u := range report {
		log.Warn().Str("service", u.Name).Dur("timeout", t.config.ShutdownTimeout).
			Msg("service did not stop within the shutdown timeout")
	}
	return len(report)
}
