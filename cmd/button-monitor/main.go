// Command button-monitor toggles an LED on each button press, keeps press
// statistics and exposes them over HTTP and MQTT.
package main

import (
	"fmt"
	"io"
	"os"
	"sort"

	"github.com/urfave/cli/v2"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/sweeney/button-monitor/internal/attr"
	"github.com/sweeney/button-monitor/internal/config"
	"github.com/sweeney/button-monitor/internal/gpio"
	"github.com/sweeney/button-monitor/internal/status"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	if err := newApp().Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

func newApp() *cli.App {
	app := &cli.App{
		Name:    "button-monitor",
		Usage:   "toggle an LED on button presses and expose press statistics",
		Version: version,
		UsageText: "button-monitor [--config <file>] [--input <line>] [--output <line>] [--falling]" +
			"\n\nEXAMPLE:" +
			"\n\tmonitor line 17, drive the LED on line 27, serve on port 8080" +
			"\n\t\tbutton-monitor --input 17 --output 27 --http :8080",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "config", Aliases: []string{"c"}, Value: config.DefaultFile, Usage: "load configuration from `FILE`"},
			&cli.StringFlag{Name: "log", Aliases: []string{"l"}, Usage: "`LEVEL` is one of debug|info|warn|error"},
			&cli.StringFlag{Name: "chip", Usage: "GPIO character device `NAME`"},
			&cli.IntFlag{Name: "input", Usage: "button input `LINE` offset"},
			&cli.IntFlag{Name: "output", Usage: "LED output `LINE` offset"},
			&cli.BoolFlag{Name: "falling", Usage: "count falling edges instead of rising"},
			&cli.DurationFlag{Name: "debounce", Usage: "kernel debounce `PERIOD` (0 disables)"},
			&cli.StringFlag{Name: "http", Usage: "HTTP control plane `ADDR` (empty disables)"},
			&cli.StringFlag{Name: "broker", Usage: "MQTT broker `URL` (empty disables)"},
			&cli.StringFlag{Name: "history", Usage: "SQLite press log `FILE` (empty disables)"},
		},
		Action: func(c *cli.Context) error {
			cfg, err := loadConfig(c)
			if err != nil {
				return err
			}
			logger, err := newLogger(cfg.LogLevel)
			if err != nil {
				return err
			}
			defer logger.Sync()
			return run(c.Context, cfg, logger.Sugar())
		},
		Commands: []*cli.Command{
			{
				Name:  "state",
				Usage: "print the input line level and exit",
				Action: func(c *cli.Context) error {
					cfg, err := loadConfig(c)
					if err != nil {
						return err
					}
					return printState(cfg, c.App.Writer)
				},
			},
		},
	}
	sort.Sort(cli.FlagsByName(app.Flags))
	return app
}

// loadConfig layers the config file and any flags that were set over the
// defaults, then validates the result.
func loadConfig(c *cli.Context) (config.Config, error) {
	cfg, err := config.Load(c.String("config"), !c.IsSet("config"))
	if err != nil {
		return cfg, err
	}
	if c.IsSet("log") {
		cfg.LogLevel = c.String("log")
	}
	if c.IsSet("chip") {
		cfg.Chip = c.String("chip")
	}
	if c.IsSet("input") {
		cfg.InputLine = c.Int("input")
	}
	if c.IsSet("output") {
		cfg.OutputLine = c.Int("output")
	}
	if c.IsSet("falling") && c.Bool("falling") {
		cfg.Polarity = gpio.FallingEdge.String()
	}
	if c.IsSet("debounce") {
		cfg.Debounce = c.Duration("debounce")
	}
	if c.IsSet("http") {
		cfg.HTTP.Addr = c.String("http")
	}
	if c.IsSet("broker") {
		cfg.MQTT.Broker = c.String("broker")
	}
	if c.IsSet("history") {
		cfg.History = c.String("history")
	}
	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

func newLogger(level string) (*zap.Logger, error) {
	lvl, err := zap.ParseAtomicLevel(level)
	if err != nil {
		return nil, fmt.Errorf("log level: %w", err)
	}
	zc := zap.NewProductionConfig()
	zc.Level = lvl
	zc.Encoding = "console"
	zc.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	zc.DisableStacktrace = true
	return zc.Build()
}

// printState reads the button line once without starting the monitor.
func printState(cfg config.Config, w io.Writer) error {
	chip, err := gpio.NewRealChip(cfg.Chip)
	if err != nil {
		return fmt.Errorf("open chip: %w", err)
	}
	defer chip.Close()

	in, err := chip.RequestInput(cfg.InputLine)
	if err != nil {
		return fmt.Errorf("request input line %d: %w", cfg.InputLine, err)
	}
	defer in.Close()

	level, err := in.Value()
	if err != nil {
		return fmt.Errorf("read input line %d: %w", cfg.InputLine, err)
	}
	fmt.Fprintf(w, "%s: %s\n", attr.GroupName(cfg.InputLine), levelString(level))
	return nil
}

func levelString(high bool) string {
	if high {
		return "1"
	}
	return "0"
}

// pi-helper env var names (written to /run/pi-helper.env).
const (
	envNetworkType       = "NETWORK_TYPE"
	envNetworkIP         = "NETWORK_IP"
	envNetworkStatus     = "NETWORK_STATUS"
	envNetworkGateway    = "NETWORK_GATEWAY"
	envNetworkWifiStatus = "NETWORK_WIFI_STATUS"
	envNetworkWifiSSID   = "NETWORK_WIFI_SSID"
)

func readNetworkInfo() *status.NetworkInfo {
	s := os.Getenv(envNetworkStatus)
	if s == "" {
		return nil
	}
	return &status.NetworkInfo{
		Type:       os.Getenv(envNetworkType),
		IP:         os.Getenv(envNetworkIP),
		Status:     s,
		Gateway:    os.Getenv(envNetworkGateway),
		WifiStatus: os.Getenv(envNetworkWifiStatus),
		SSID:       os.Getenv(envNetworkWifiSSID),
	}
}
