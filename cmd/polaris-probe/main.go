// Command polaris-probe is a small operator CLI around the registry
// client runtime: get-instance, get-instances, register, heartbeat and
// get-quota as one-shot subcommands, for smoke-testing a control plane
// without writing Go.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"
	"golang.org/x/sys/unix"

	"github.com/polarismesh/polaris-go-sub002/pkg/config"
	"github.com/polarismesh/polaris-go-sub002/pkg/connector"
	"github.com/polarismesh/polaris-go-sub002/pkg/facade"
	"github.com/polarismesh/polaris-go-sub002/pkg/model"
	"github.com/polarismesh/polaris-go-sub002/pkg/polarislog"
)

// runSignals are the signals that end a subcommand's reactor session; a
// second delivery forces an immediate exit instead of waiting on the
// first signal's graceful shutdown to finish draining the connector.
var runSignals = []os.Signal{unix.SIGINT, unix.SIGTERM}

// withShutdownSignal returns a context canceled on the first SIGINT/
// SIGTERM delivered to the probe, and force-exits the process on a
// second one so an operator stuck waiting on a hung connector can
// still Ctrl-C out.
func withShutdownSignal() context.Context {
	ctx, cancel := context.WithCancel(context.Background())
	sigCh := make(chan os.Signal, 2)
	signal.Notify(sigCh, runSignals...)
	go func() {
		s := <-sigCh
		logrus.Debugf("received %s, stopping probe session", s)
		cancel()
		s = <-sigCh
		logrus.Infof("received second %s, exiting immediately", s)
		os.Exit(1)
	}()
	return ctx
}

var configFlag = &cli.StringFlag{
	Name:    "config",
	Aliases: []string{"c"},
	Usage:   "path to a polaris.yaml configuration file",
}

var addressesFlag = &cli.StringSliceFlag{
	Name:  "address",
	Usage: "control-plane address (repeatable), overrides config",
}

var transportFlag = &cli.StringFlag{
	Name:  "transport",
	Value: "grpc",
	Usage: "control-plane transport: grpc or ws",
}

func main() {
	app := &cli.App{
		Name:  "polaris-probe",
		Usage: "exercise the registry client runtime from the command line",
		Flags: []cli.Flag{configFlag, addressesFlag, transportFlag},
		Commands: []*cli.Command{
			getOneInstanceCommand,
			getInstancesCommand,
			registerCommand,
			heartbeatCommand,
			getQuotaCommand,
		},
	}

	if err := app.Run(os.Args); err != nil {
		logrus.Fatal(err)
	}
}

func loadConfig(c *cli.Context) (*config.Config, error) {
	var cfg *config.Config
	var err error
	if path := c.String("config"); path != "" {
		cfg, err = config.FromFile(path)
	} else {
		cfg = config.Default()
	}
	if err != nil {
		return nil, err
	}
	if addrs := c.StringSlice("address"); len(addrs) > 0 {
		cfg.Global.ServerConnector.Addresses = addrs
	}
	if len(cfg.Global.ServerConnector.Addresses) == 0 {
		return nil, fmt.Errorf("no control-plane addresses configured (use --address or --config)")
	}
	if err := polarislog.Setup(polarislog.Config{
		File: cfg.Log.File, MaxSizeMB: cfg.Log.MaxSizeMB,
		MaxBackups: cfg.Log.MaxBackups, MaxAgeDays: cfg.Log.MaxAgeDays, Level: cfg.Log.Level,
	}); err != nil {
		return nil, err
	}
	return cfg, nil
}

// newContext builds a facade.Context over the configured transport and
// starts its reactor goroutine, returning a stop func the caller defers.
func newContext(c *cli.Context, cfg *config.Config) (*facade.Context, func(), error) {
	polarislog.InstallGRPCLogger()

	proto := c.String("transport")
	if proto == "" {
		proto = cfg.Global.ServerConnector.Protocol
	}
	var transport connector.Transport
	switch proto {
	case "ws":
		transport = connector.NewWSTransport(connector.WSTransportConfig{NodeName: "polaris-probe"})
	default:
		transport = connector.NewGRPCTransport("polaris-probe")
	}

	ctx, err := facade.New(cfg, transport)
	if err != nil {
		return nil, nil, err
	}
	runCtx, cancel := context.WithCancel(withShutdownSignal())
	go ctx.Run(runCtx)
	return ctx, func() {
		cancel()
		ctx.Stop()
	}, nil
}

func parseServiceKey(s string) (model.ServiceKey, error) {
	parts := strings.SplitN(s, "/", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return model.ServiceKey{}, fmt.Errorf("service must be namespace/name, got %q", s)
	}
	return model.ServiceKey{Namespace: parts[0], Name: parts[1]}, nil
}

var getOneInstanceCommand = &cli.Command{
	Name:      "get-instance",
	Usage:     "pick one instance of a service",
	ArgsUsage: "<namespace/name>",
	Flags: []cli.Flag{
		&cli.DurationFlag{Name: "timeout", Value: 2 * time.Second},
		&cli.StringFlag{Name: "lb-policy"},
	},
	Action: func(c *cli.Context) error {
		key, err := parseServiceKey(c.Args().First())
		if err != nil {
			return err
		}
		cfg, err := loadConfig(c)
		if err != nil {
			return err
		}
		ctx, stop, err := newContext(c, cfg)
		if err != nil {
			return err
		}
		defer stop()

		inst, err := ctx.Consumer().GetOneInstance(context.Background(), facade.GetOneInstanceRequest{
			Service: key,
			Timeout: c.Duration("timeout"),
			LBPolicy: c.String("lb-policy"),
		})
		if err != nil {
			return err
		}
		fmt.Printf("%s:%d (id=%s weight=%d)\n", inst.Host, inst.Port, inst.ID, inst.Weight)
		return nil
	},
}

var getInstancesCommand = &cli.Command{
	Name:      "get-instances",
	Usage:     "list the routed instance set of a service",
	ArgsUsage: "<namespace/name>",
	Flags: []cli.Flag{
		&cli.DurationFlag{Name: "timeout", Value: 2 * time.Second},
		&cli.BoolFlag{Name: "include-unhealthy"},
	},
	Action: func(c *cli.Context) error {
		key, err := parseServiceKey(c.Args().First())
		if err != nil {
			return err
		}
		cfg, err := loadConfig(c)
		if err != nil {
			return err
		}
		ctx, stop, err := newContext(c, cfg)
		if err != nil {
			return err
		}
		defer stop()

		set, err := ctx.Consumer().GetInstances(context.Background(), facade.GetInstancesRequest{
			Service: key, Timeout: c.Duration("timeout"), IncludeUnhealthy: c.Bool("include-unhealthy"),
		})
		if err != nil {
			return err
		}
		for _, inst := range set.Instances {
			fmt.Printf("%s:%d\tid=%s\thealthy=%v\tweight=%d\n", inst.Host, inst.Port, inst.ID, inst.Healthy, inst.Weight)
		}
		return nil
	},
}

var registerCommand = &cli.Command{
	Name:      "register",
	Usage:     "register an instance with the control plane",
	ArgsUsage: "<namespace/name> <host> <port>",
	Action: func(c *cli.Context) error {
		if c.Args().Len() < 3 {
			return fmt.Errorf("usage: register <namespace/name> <host> <port>")
		}
		key, err := parseServiceKey(c.Args().Get(0))
		if err != nil {
			return err
		}
		host := c.Args().Get(1)
		var port uint32
		if _, err := fmt.Sscanf(c.Args().Get(2), "%d", &port); err != nil {
			return fmt.Errorf("invalid port %q: %w", c.Args().Get(2), err)
		}
		cfg, err := loadConfig(c)
		if err != nil {
			return err
		}
		ctx, stop, err := newContext(c, cfg)
		if err != nil {
			return err
		}
		defer stop()

		inst := model.NewInstance("", host, port, 100)
		if err := ctx.Provider().Register(context.Background(), facade.RegisterRequest{Service: key, Instance: inst}); err != nil {
			return err
		}
		fmt.Printf("registered %s:%d as %s\n", host, port, inst.ID)
		return nil
	},
}

var heartbeatCommand = &cli.Command{
	Name:      "heartbeat",
	Usage:     "send one heartbeat for an instance",
	ArgsUsage: "<namespace/name> <instance-id>",
	Action: func(c *cli.Context) error {
		if c.Args().Len() < 2 {
			return fmt.Errorf("usage: heartbeat <namespace/name> <instance-id>")
		}
		key, err := parseServiceKey(c.Args().Get(0))
		if err != nil {
			return err
		}
		cfg, err := loadConfig(c)
		if err != nil {
			return err
		}
		ctx, stop, err := newContext(c, cfg)
		if err != nil {
			return err
		}
		defer stop()

		if err := ctx.Provider().Heartbeat(context.Background(), facade.HeartbeatRequest{Service: key, InstanceID: c.Args().Get(1)}); err != nil {
			return err
		}
		fmt.Println("ok")
		return nil
	},
}

var getQuotaCommand = &cli.Command{
	Name:      "get-quota",
	Usage:     "acquire one unit of rate-limit quota",
	ArgsUsage: "<namespace/name>",
	Flags: []cli.Flag{
		&cli.Int64Flag{Name: "amount", Value: 1},
	},
	Action: func(c *cli.Context) error {
		key, err := parseServiceKey(c.Args().First())
		if err != nil {
			return err
		}
		cfg, err := loadConfig(c)
		if err != nil {
			return err
		}
		ctx, stop, err := newContext(c, cfg)
		if err != nil {
			return err
		}
		defer stop()

		info, err := ctx.Limit().GetQuota(facade.GetQuotaRequest{Service: key, AcquireAmount: c.Int64("amount")})
		if err != nil {
			fmt.Printf("denied: %v (left=%d all=%d)\n", err, info.Left, info.All)
			return nil
		}
		fmt.Printf("allowed: left=%d all=%d durationMs=%d degrade=%v\n", info.Left, info.All, info.DurationMs, info.IsDegrade)
		return nil
	},
}
