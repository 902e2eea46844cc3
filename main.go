package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"net"
	"os"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"
	"github.com/nats-io/nats.go"
	"github.com/thejerf/suture/v4"

	"netmonitor/internal/analysis"
	"netmonitor/internal/config"
	"netmonitor/internal/discovery"
	"netmonitor/internal/events"
	"netmonitor/internal/httpapi"
	"netmonitor/internal/logger"
	"netmonitor/internal/metrics"
	"netmonitor/internal/monitor"
	"netmonitor/internal/portscan"
	"netmonitor/internal/reporting"
	"netmonitor/internal/storage"
	"netmonitor/internal/supervisor"
	"netmonitor/internal/tui"
)

// tuiLogFile receives log output while the dashboard owns the terminal.
const tuiLogFile = "netmonitor.log"

func main() {
	configPath := flag.String("config", "", "Path to a YAML config file")
	headless := flag.Bool("headless", false, "Run without the terminal dashboard")
	flag.Parse()

	if err := run(*configPath, *headless); err != nil {
		fmt.Fprintf(os.Stderr, "netmonitor: %v\n", err)
		os.Exit(1)
	}
}

func run(configPath string, headless bool) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	if !headless {
		switch cfg.Logging.Output {
		case "", "stderr", "stdout":
			cfg.Logging.Output = tuiLogFile
		}
	}

	log, logCloser, err := logger.New(cfg.Logging)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer logCloser.Close()

	if os.Geteuid() != 0 {
		if cfg.Capture.RequirePrivileges {
			return errors.New("root privileges are required for packet capture and ARP discovery")
		}
		log.Warn().Msg("not running as root; capture and discovery will be degraded, run with elevated privileges")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := storage.Open(ctx, cfg.Storage, log)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer store.Close()
	recorder := storage.NewRecorder(store, cfg.Storage, log)

	bus := events.NewBus(metrics.CountDrop)
	defer bus.Close()

	state := monitor.NewState()
	detector := analysis.NewDetector(cfg.Detection, nil, recorder, log.WithComponent("detector"))

	sampler := analysis.NewTrafficSampler(
		cfg.Capture.Source(),
		analysis.InterfaceCounters{Interface: cfg.Capture.Interface},
		cfg.Capture.Sampler(),
		log.WithComponent("sampler"),
	)

	loop := monitor.NewLoop(cfg.Monitor,
		discovery.New(cfg.Discovery, log.WithComponent("discovery")),
		portscan.NewProber(cfg.PortScan, &net.Dialer{}, log.WithComponent("portscan")),
		detector, recorder, state, bus, log)
	stats := monitor.NewStatsDriver(cfg.Monitor.StatsInterval, sampler, detector, state, bus, log)

	tree := supervisor.NewTree(log, supervisor.DefaultTreeConfig())
	tree.AddCaptureService(monitor.SamplerService{Sampler: sampler})
	tree.AddMonitorService(loop)
	tree.AddMonitorService(stats)
	tree.AddOutputService(events.NewForwarder(bus, metrics.Sink{}, log))

	closers, err := addExternalSinks(ctx, cfg.Events, tree, bus, log)
	if err != nil {
		return err
	}
	defer func() {
		for _, c := range closers {
			c.Close()
		}
	}()

	if cfg.HTTP.Enabled {
		gin.SetMode(gin.ReleaseMode)
		tree.AddOutputService(httpapi.NewServer(cfg.HTTP.Addr, state, bus, log))
	}

	if !headless {
		tree.AddOutputService(tui.Service{
			Bus:    bus,
			Buffer: cfg.Events.Buffer,
			Report: func() (string, error) {
				return reporting.WriteSessionReport(cfg.Report.Dir, state.Session(), "html")
			},
			Title: "NetMonitor",
		})
	}

	log.Info().Bool("headless", headless).Msg("netmonitor starting")

	err = tree.Serve(ctx)
	tree.LogUnstopped(log)
	if err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, suture.ErrTerminateSupervisorTree) {
		return err
	}

	log.Info().Msg("netmonitor stopped")
	return nil
}

// addExternalSinks connects the optional redis and nats sinks and returns
// the connections to close on exit.
func addExternalSinks(ctx context.Context, cfg config.EventsConfig, tree *supervisor.Tree,
	bus *events.Bus, log logger.Logger) ([]io.Closer, error) {
	var closers []io.Closer

	if cfg.Redis.Enabled {
		client, err := events.NewRedisClient(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			return nil, fmt.Errorf("connect redis: %w", err)
		}
		closers = append(closers, client)
		tree.AddOutputService(events.NewForwarder(bus, events.NewRedisSink(client, cfg.Redis.Channel), log))
	}

	if cfg.NATS.Enabled {
		conn, err := events.ConnectNATS(cfg.NATS.URL)
		if err != nil {
			for _, c := range closers {
				c.Close()
			}
			return nil, fmt.Errorf("connect nats: %w", err)
		}
		closers = append(closers, natsCloser{conn})
		tree.AddOutputService(events.NewForwarder(bus, events.NewNatsSink(conn, cfg.NATS.Subject), log))
	}

	return closers, nil
}

type natsCloser struct{ c *nats.Conn }

func (n natsCloser) Close() error { return n.c.Drain() }
