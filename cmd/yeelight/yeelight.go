// Command yeelight allows performing basic operations on Yeelight bulbs over
// the LAN
package main

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/signal"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/cobra/doc"

	"github.com/pdf/goyeelight"
	"github.com/pdf/goyeelight/common"
	"github.com/pdf/goyeelight/protocol"
	"github.com/pdf/goyeelight/protocol/command"
	"github.com/pdf/goyeelight/protocol/device"
	"github.com/pdf/goyeelight/protocol/shared"
)

var (
	client *goyeelight.Client
	cfg    = &config{}

	flagConfig           string
	flagTimeout          time.Duration
	flagLogLevel         string
	flagBulbs            []string
	flagEffect           string
	flagDuration         time.Duration
	flagDiscoveryTimeout time.Duration
	flagInterface        string
	flagAmbient          bool
	flagAutoOn           bool

	logger = logrus.New()
	app    = &cobra.Command{
		Use:   `yeelight`,
		Short: `control Yeelight bulbs on the LAN`,
		PersistentPreRun: func(c *cobra.Command, args []string) {
			loadSettings(c)
			setLogger()
		},
	}

	cmdGenerateBashComp = &cobra.Command{
		Use:   `bashcomp <filename>`,
		Short: "generate bash completion at <file>",
		Run:   generateBashComp,
	}

	cmdGenerateDocs = &cobra.Command{
		Use:   `docs <path>`,
		Short: "generate markdown documentation at <path>",
		Run:   generateDocs,
	}
)

func init() {
	goyeelight.SetLogger(logger)

	flags := app.PersistentFlags()
	flags.StringVarP(&flagConfig, `config`, `c`, defaultConfigPath(), `path to the YAML config file`)
	flags.DurationVarP(&flagTimeout, `timeout`, `t`, common.DefaultTimeout, `timeout for each command`)
	flags.StringVarP(&flagLogLevel, `log-level`, `L`, `info`, `log level, one of: [debug,info,warn,error]`)
	flags.StringSliceVarP(&flagBulbs, `bulb`, `b`, nil, `bulb to operate on, by configured name, advertised name or IP address (repeatable, default all discovered bulbs)`)
	flags.StringVarP(&flagEffect, `effect`, `e`, string(command.EffectSmooth), `transition effect, one of: [smooth,sudden]`)
	flags.DurationVarP(&flagDuration, `duration`, `d`, command.DefaultDuration, `transition duration`)
	flags.DurationVar(&flagDiscoveryTimeout, `discovery-timeout`, shared.DefaultDiscoveryTimeout, `time to wait for bulbs to answer discovery`)
	flags.StringVar(&flagInterface, `interface`, ``, `network interface to send discovery from`)
	flags.BoolVarP(&flagAmbient, `ambient`, `a`, false, `operate on the ambient light of bulbs that have one`)
	flags.BoolVar(&flagAutoOn, `auto-on`, false, `switch bulbs on before changing their color or brightness`)

	app.AddCommand(bulbCommands()...)
	app.AddCommand(cmdGenerateBashComp)
	app.AddCommand(cmdGenerateDocs)
}

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()
	if err := app.ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

// loadSettings reads the config file, flags set on the command line override
// its values
func loadSettings(c *cobra.Command) {
	loaded, err := loadConfig(flagConfig)
	if err != nil {
		logger.WithFields(logrus.Fields{
			`filename`: flagConfig,
			`error`:    err,
		}).Fatalln(`Could not read config`)
	}
	cfg = loaded

	flags := c.Flags()
	if !flags.Changed(`log-level`) && cfg.LogLevel != `` {
		flagLogLevel = cfg.LogLevel
	}
	if !flags.Changed(`timeout`) && cfg.Timeout != 0 {
		flagTimeout = time.Duration(cfg.Timeout)
	}
	if !flags.Changed(`effect`) && cfg.Effect != `` {
		flagEffect = cfg.Effect
	}
	if !flags.Changed(`duration`) && cfg.Duration != 0 {
		flagDuration = time.Duration(cfg.Duration)
	}
	if !flags.Changed(`discovery-timeout`) && cfg.DiscoveryTimeout != 0 {
		flagDiscoveryTimeout = time.Duration(cfg.DiscoveryTimeout)
	}
	if !flags.Changed(`interface`) && cfg.Interface != `` {
		flagInterface = cfg.Interface
	}
	if !flags.Changed(`auto-on`) && cfg.AutoOn {
		flagAutoOn = true
	}
}

func bulbConfig() device.Config {
	effect, err := command.ParseEffect(flagEffect)
	if err != nil {
		logger.WithField(`error`, err).Fatalln(`Invalid effect`)
	}
	config := device.DefaultConfig()
	config.Timeout = flagTimeout
	config.Effect = effect
	config.Duration = flagDuration
	config.AutoOn = flagAutoOn
	return config
}

func setupClient(c *cobra.Command, args []string) {
	var err error

	config := bulbConfig()
	client, err = goyeelight.NewClient(&protocol.LAN{
		DiscoveryTimeout: flagDiscoveryTimeout,
		Interface:        flagInterface,
		Config:           &config,
	})
	if err != nil {
		logger.WithField(`error`, err).Fatalln(`Failed initializing client`)
	}
	client.SetTimeout(flagTimeout)
}

func closeClient(c *cobra.Command, args []string) {
	if client == nil {
		return
	}
	err := client.Close()
	if err != nil {
		logger.WithField(`error`, err).Fatalln(`Failed closing client`)
	}
}

func generateBashComp(c *cobra.Command, args []string) {
	if len(args) != 1 {
		_ = c.Usage()
		fmt.Println()
		logger.Fatalln(`Missing filename`)
	}

	buf := new(bytes.Buffer)
	f, err := os.Create(args[0])
	if err != nil {
		logger.WithFields(logrus.Fields{
			`filename`: args[0],
			`error`:    err,
		}).Fatalln(`Could not open file`)
	}
	defer f.Close()
	_ = app.GenBashCompletion(buf)
	_, _ = buf.WriteTo(f)
}

func generateDocs(c *cobra.Command, args []string) {
	if len(args) != 1 {
		_ = c.Usage()
		fmt.Println()
		logger.Fatalln(`Missing output path`)
	}

	path := args[0]
	if path[len(path)-1] != os.PathSeparator {
		path += string(os.PathSeparator)
	}
	if err := doc.GenMarkdownTree(app, path); err != nil {
		logger.WithField(`error`, err).Fatalln(`Could not generate docs`)
	}
}

func setLogger() {
	switch flagLogLevel {
	case `debug`:
		logger.Level = logrus.DebugLevel
	case `info`:
		logger.Level = logrus.InfoLevel
	case `warn`:
		logger.Level = logrus.WarnLevel
	case `error`:
		logger.Level = logrus.ErrorLevel
	default:
		logger.Level = logrus.InfoLevel
	}
}
