package main

import (
	"context"
	"fmt"
	"net"
	"os"
	"sort"
	"strconv"
	"strings"
	"sync"
	"text/tabwriter"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/pdf/goyeelight"
	"github.com/pdf/goyeelight/common"
	"github.com/pdf/goyeelight/protocol/command"
	"github.com/pdf/goyeelight/protocol/device"
	"github.com/pdf/goyeelight/protocol/flow"
)

var (
	flagFlowCount  int
	flagFlowAction string
)

func bulbCommands() []*cobra.Command {
	cmdFlow := &cobra.Command{
		Use:   `flow <expression>`,
		Short: `start a color flow, eg "1000, 1, 16711680, 100, 1000, 1, 255, 100"`,
		Args:  cobra.ExactArgs(1),
		Run:   startFlow,
	}
	cmdFlow.Flags().IntVar(&flagFlowCount, `count`, 0, `times to play the flow, 0 loops forever`)
	cmdFlow.Flags().StringVar(&flagFlowAction, `action`, flow.ActionRecover.String(), `action once the flow ends, one of: [recover,stay,off]`)

	commands := []*cobra.Command{
		{
			Use:   `discover`,
			Short: `list the bulbs that answer discovery`,
			Args:  cobra.NoArgs,
			Run:   listBulbs,
		},
		{
			Use:   `on`,
			Short: `switch bulbs on`,
			Args:  cobra.NoArgs,
			Run: forEach(func(ctx context.Context, b *device.Bulb, args []string) error {
				return b.TurnOn(ctx, options()...)
			}),
		},
		{
			Use:   `off`,
			Short: `switch bulbs off`,
			Args:  cobra.NoArgs,
			Run: forEach(func(ctx context.Context, b *device.Bulb, args []string) error {
				return b.TurnOff(ctx, options()...)
			}),
		},
		{
			Use:   `toggle`,
			Short: `toggle the power of bulbs`,
			Args:  cobra.NoArgs,
			Run: forEach(func(ctx context.Context, b *device.Bulb, args []string) error {
				return b.Toggle(ctx, options()...)
			}),
		},
		{
			Use:   `brightness <1-100>`,
			Short: `set the brightness of bulbs`,
			Args:  cobra.ExactArgs(1),
			Run: forEach(func(ctx context.Context, b *device.Bulb, args []string) error {
				v := ints(args)
				return b.SetBrightness(ctx, v[0], options()...)
			}),
		},
		{
			Use:   `rgb <red> <green> <blue>`,
			Short: `set the color of bulbs, each channel 0-255`,
			Args:  cobra.ExactArgs(3),
			Run: forEach(func(ctx context.Context, b *device.Bulb, args []string) error {
				v := ints(args)
				return b.SetRGB(ctx, v[0], v[1], v[2], options()...)
			}),
		},
		{
			Use:   `hsv <hue> <saturation> [value]`,
			Short: `set the hue (0-359) and saturation (0-100) of bulbs, and optionally the brightness`,
			Args:  cobra.RangeArgs(2, 3),
			Run: forEach(func(ctx context.Context, b *device.Bulb, args []string) error {
				v := append(ints(args), 0)
				return b.SetHSV(ctx, v[0], v[1], v[2], options()...)
			}),
		},
		{
			Use:   `temp <kelvin>`,
			Short: `set the color temperature of bulbs, 1700-6500`,
			Args:  cobra.ExactArgs(1),
			Run: forEach(func(ctx context.Context, b *device.Bulb, args []string) error {
				v := ints(args)
				return b.SetColorTemp(ctx, v[0], options()...)
			}),
		},
		{
			Use:   `adjust <bright|ct|color> <percentage>`,
			Short: `change brightness, color temperature or color relative to the current value, -100 to 100`,
			Args:  cobra.ExactArgs(2),
			Run: forEach(func(ctx context.Context, b *device.Bulb, args []string) error {
				v := ints(args[1:])
				switch args[0] {
				case `bright`:
					return b.AdjustBrightness(ctx, v[0], options()...)
				case `ct`:
					return b.AdjustColorTemp(ctx, v[0], options()...)
				case `color`:
					return b.AdjustColor(ctx, v[0], options()...)
				}
				return &common.ValidationError{Field: `adjust property`, Value: args[0], Reason: `must be one of bright, ct, color`}
			}),
		},
		{
			Use:   `default`,
			Short: `save the current state of bulbs as their power-on state`,
			Args:  cobra.NoArgs,
			Run: forEach(func(ctx context.Context, b *device.Bulb, args []string) error {
				return b.SetDefault(ctx, options()...)
			}),
		},
		cmdFlow,
		{
			Use:   `stop-flow`,
			Short: `stop a running color flow`,
			Args:  cobra.NoArgs,
			Run: forEach(func(ctx context.Context, b *device.Bulb, args []string) error {
				return b.StopFlow(ctx, options()...)
			}),
		},
		{
			Use:   `sleep <minutes>`,
			Short: `switch bulbs off after minutes, 0 cancels`,
			Args:  cobra.ExactArgs(1),
			Run: forEach(func(ctx context.Context, b *device.Bulb, args []string) error {
				v := ints(args)
				if v[0] == 0 {
					return b.CronDel(ctx)
				}
				return b.CronAdd(ctx, v[0])
			}),
		},
		{
			Use:   `name <name>`,
			Short: `store a name on bulbs`,
			Args:  cobra.ExactArgs(1),
			Run: forEach(func(ctx context.Context, b *device.Bulb, args []string) error {
				return b.SetName(ctx, args[0])
			}),
		},
		{
			Use:   `props [property...]`,
			Short: `print the properties of bulbs`,
			Run:   printProperties,
		},
		{
			Use:   `listen`,
			Short: `print state changes pushed by bulbs until interrupted`,
			Args:  cobra.NoArgs,
			Run:   listen,
		},
	}

	for _, c := range commands {
		c.PreRun = setupClient
		c.PostRun = closeClient
	}
	return commands
}

func options() []device.Option {
	if flagAmbient {
		return []device.Option{device.WithLight(command.LightAmbient)}
	}
	return nil
}

func ints(args []string) []int {
	out := make([]int, len(args))
	for i, arg := range args {
		v, err := strconv.Atoi(arg)
		if err != nil {
			logger.WithFields(logrus.Fields{
				`argument`: arg,
				`error`:    err,
			}).Fatalln(`Invalid number`)
		}
		out[i] = v
	}
	return out
}

func isAddress(target string) bool {
	host := target
	if h, _, err := net.SplitHostPort(target); err == nil {
		host = h
	}
	return net.ParseIP(host) != nil
}

// targets resolves the --bulb flags, or returns every discovered bulb
func targets() ([]*device.Bulb, error) {
	if len(flagBulbs) == 0 {
		return client.GetBulbs()
	}

	bulbs := make([]*device.Bulb, 0, len(flagBulbs))
	for _, target := range flagBulbs {
		var (
			bulb *device.Bulb
			err  error
		)
		if address, ok := cfg.Bulbs[target]; ok {
			bulb, err = client.NewBulb(address)
		} else if isAddress(target) {
			bulb, err = client.NewBulb(target)
		} else {
			bulb, err = client.GetBulbByName(target)
		}
		if err != nil {
			return nil, fmt.Errorf(`%s: %w`, target, err)
		}
		bulbs = append(bulbs, bulb)
	}
	return bulbs, nil
}

// forEach runs fn against every target bulb concurrently.  A failing bulb
// does not stop the others.
func forEach(fn func(context.Context, *device.Bulb, []string) error) func(*cobra.Command, []string) {
	return func(c *cobra.Command, args []string) {
		bulbs, err := targets()
		if err != nil {
			logger.WithField(`error`, err).Fatalln(`Failed finding bulbs`)
		}

		ctx := c.Context()
		g := new(errgroup.Group)
		for _, bulb := range bulbs {
			bulb := bulb
			g.Go(func() error {
				if err := fn(ctx, bulb, args); err != nil {
					logger.WithFields(logrus.Fields{
						`bulb`:  bulb.ID(),
						`error`: err,
					}).Errorln(`Command failed`)
					return err
				}
				logger.WithField(`bulb`, bulb.ID()).Debugln(`Command succeeded`)
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			closeClient(c, args)
			os.Exit(1)
		}
	}
}

func startFlow(c *cobra.Command, args []string) {
	transitions, err := flow.Decode(args[0])
	if err != nil {
		logger.WithField(`error`, err).Fatalln(`Invalid flow expression`)
	}
	action, err := flow.ParseAction(flagFlowAction)
	if err != nil {
		logger.WithField(`error`, err).Fatalln(`Invalid flow action`)
	}
	f := flow.Flow{Count: flagFlowCount, Action: action, Transitions: transitions}

	forEach(func(ctx context.Context, b *device.Bulb, args []string) error {
		return b.StartFlow(ctx, f, options()...)
	})(c, args)
}

func listBulbs(c *cobra.Command, args []string) {
	bulbs, err := client.GetBulbs()
	if err != nil {
		logger.Infoln(`No bulbs found`)
		return
	}
	sort.Slice(bulbs, func(i, j int) bool {
		return bulbs[i].ID() < bulbs[j].ID()
	})

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tADDRESS\tMODEL\tFIRMWARE\tNAME\tPOWER\tBRIGHTNESS")
	for _, bulb := range bulbs {
		desc := bulb.Descriptor()
		props := bulb.CachedProperties()
		fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%s\t%s\t%s\n",
			bulb.ID(), desc.Endpoint(), desc.Model, desc.FirmwareVersion,
			goyeelight.DeviceName(bulb), props[common.PropPower], props[common.PropBright])
	}
	_ = w.Flush()
}

func printProperties(c *cobra.Command, args []string) {
	var mu sync.Mutex
	forEach(func(ctx context.Context, b *device.Bulb, names []string) error {
		props, err := b.GetProperties(ctx, names...)
		if err != nil {
			return err
		}
		keys := make([]string, 0, len(props))
		for name := range props {
			keys = append(keys, name)
		}
		sort.Strings(keys)

		var out strings.Builder
		fmt.Fprintf(&out, "%s (%s)\n", b.ID(), b.Descriptor().Endpoint())
		for _, name := range keys {
			fmt.Fprintf(&out, "  %s: %s\n", name, props[name])
		}
		mu.Lock()
		fmt.Print(out.String())
		mu.Unlock()
		return nil
	})(c, args)
}

func listen(c *cobra.Command, args []string) {
	bulbs, err := targets()
	if err != nil {
		logger.WithField(`error`, err).Fatalln(`Failed finding bulbs`)
	}

	ctx := c.Context()
	g := new(errgroup.Group)
	for _, bulb := range bulbs {
		bulb := bulb
		sub, err := bulb.NewSubscription()
		if err != nil {
			logger.WithFields(logrus.Fields{`bulb`: bulb.ID(), `error`: err}).Fatalln(`Failed subscribing`)
		}
		if err := bulb.Connect(ctx); err != nil {
			logger.WithFields(logrus.Fields{`bulb`: bulb.ID(), `error`: err}).Errorln(`Failed connecting`)
			continue
		}
		g.Go(func() error {
			for {
				select {
				case <-ctx.Done():
					return nil
				case event, ok := <-sub.Events():
					if !ok {
						return nil
					}
					logEvent(bulb.ID(), event)
				}
			}
		})
	}
	_ = g.Wait()
}

func logEvent(id string, event interface{}) {
	entry := logger.WithField(`bulb`, id)
	switch e := event.(type) {
	case common.EventUpdateProperties:
		fields := logrus.Fields{}
		for name, value := range e.Changes {
			fields[name] = value
		}
		entry.WithFields(fields).Infoln(`Properties changed`)
	case common.EventConnected:
		entry.Infoln(`Connected`)
	case common.EventDisconnected:
		entry.WithField(`error`, e.Err).Warnln(`Disconnected`)
	case common.EventMusicMode:
		entry.WithField(`enabled`, e.Enabled).Infoln(`Music mode changed`)
	default:
		entry.Debugf("Unhandled event %T", event)
	}
}
