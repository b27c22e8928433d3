package main

import (
	"context"
	_ "embed"
	"errors"
	"html/template"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/brutella/hap"
	"github.com/brutella/hap/accessory"
	"github.com/caarlos0/env/v11"
	nx595e "github.com/caarlos0/homekit-nx595e"
	"github.com/cenkalti/backoff/v4"
	logp "github.com/charmbracelet/log"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

//go:embed index.html
var index []byte

var log = logp.NewWithOptions(os.Stderr, logp.Options{
	ReportTimestamp: true,
	TimeFormat:      time.Kitchen,
	Prefix:          "homekit",
})

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

const manufacturer = "CaddX"

func main() {
	log.Info(
		"homekit-nx595e",
		"version", version,
		"commit", commit,
		"date", date,
		"info", strings.Join([]string{
			"Homekit bridge for NX-595E alarm systems",
			"© Carlos Alexandro Becker",
			"https://becker.software",
		}, "\n"),
	)

	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		log.Fatal(
			"could not parse env",
			"err",
			strings.TrimPrefix(strings.ReplaceAll(err.Error(), "; ", "\n"), "env: ")+"\n",
		)
	}

	level, err := logp.ParseLevel(cfg.LogLevel)
	if err != nil {
		log.Fatal("invalid log level", "level", cfg.LogLevel, "err", err)
	}
	log.SetLevel(level)
	nx595e.SetLogLevel(level)
	if cfg.PollInterval <= 0 {
		log.Fatal("invalid poll interval", "interval", cfg.PollInterval)
	}

	parser, err := nx595e.LoginParserFor(cfg.LoginParser)
	if err != nil {
		log.Fatal("could not init client", "err", err)
	}
	opts := []nx595e.Option{nx595e.WithLoginParser(parser)}
	if cfg.InsecureTLS {
		opts = append(opts, nx595e.WithInsecureTLS())
	}
	cli := nx595e.New(nx595e.Credentials{
		Host:     cfg.Host,
		Username: cfg.Username,
		PIN:      cfg.PIN,
		HTTPS:    cfg.HTTPS,
	}, opts...)

	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt)
	signal.Notify(c, syscall.SIGTERM)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		<-c
		log.Info("stopping server")
		signal.Stop(c)
		cancel()
	}()

	if err := login(ctx, cli); err != nil {
		log.Fatal("could not login", "err", err)
	}

	overrides, err := cfg.overrides()
	if err != nil {
		log.Fatal("could not load zone overrides", "err", err)
	}
	zones, err := cfg.allZones(cli.Zones(), overrides)
	if err != nil {
		log.Fatal("invalid zone configuration", "err", err)
	}
	log.Info("loading accessories", "zones", zones.String())

	macAddr, err := nx595e.MacAddress(hostIP(cfg.Host))
	if err != nil {
		log.Warn(
			"could not get the mac address, needs 'cap_net_raw+ep' capabilities",
			"err", err,
		)
	}
	log.Info(
		"got alarm system information",
		"manufacturer", manufacturer,
		"vendor", cli.Vendor(),
		"version", cli.FirmwareVersion(),
		"mac", macAddr,
	)

	bridge := accessory.NewBridge(accessory.Info{
		Name:         "Alarm Bridge",
		SerialNumber: macAddr,
		Manufacturer: manufacturer,
		Firmware:     version,
	})

	areas := setupAreas(cli, cli.Areas(), macAddr, cli.FirmwareVersion())
	sensors := setupZones(cli, zones, time.Now())
	outputs := setupOutputs(cli, cfg, cli.Outputs())

	go func() {
		tick := time.NewTicker(cfg.PollInterval)
		defer tick.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case now := <-tick.C:
				if err := poll(ctx, cli, now, areas, sensors, outputs); err != nil {
					log.Error("could not poll", "err", err)
				}
			}
		}
	}()

	fs := hap.NewFsStore("./db")

	server, err := hap.NewServer(
		fs, bridge.A,
		securityAccessories(areas, sensors, outputs)...,
	)
	if err != nil {
		log.Fatal("fail to create server", "error", err)
	}
	server.Addr = cfg.Address
	server.ServeMux().Handle("/metrics", promhttp.Handler())
	server.ServeMux().Handle("/", http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		tpl := template.Must(template.New("index").Parse(string(index)))
		_ = tpl.Execute(w, statusPage(cli))
	}))

	log.Info("starting server", "addr", server.Addr)
	if err := server.ListenAndServe(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Error("failed to close server", "err", err)
	}

	logoutCtx, logoutCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer logoutCancel()
	cli.Logout(logoutCtx)
}

// hostIP strips the port and IPv6 brackets from the panel address.
func hostIP(host string) string {
	if h, _, err := net.SplitHostPort(host); err == nil {
		return h
	}
	return strings.TrimSuffix(strings.TrimPrefix(host, "["), "]")
}

// login retries transient failures. Bad credentials, unsupported panels and
// invalid configuration are not retried.
func login(ctx context.Context, cli *nx595e.Client) error {
	bo := backoff.NewExponentialBackOff()
	bo.MaxInterval = time.Second * 5
	bo.MaxElapsedTime = time.Minute

	return backoff.RetryNotify(func() error {
		if err := cli.Login(ctx); err != nil {
			if errors.Is(err, nx595e.ErrAuthentication) ||
				errors.Is(err, nx595e.ErrUnsupportedPanel) ||
				errors.Is(err, nx595e.ErrInvalidConfiguration) {
				return backoff.Permanent(err)
			}
			return err
		}
		return nil
	}, backoff.WithContext(bo, ctx), func(err error, d time.Duration) {
		log.Error("could not login", "err", err, "retry", d)
	})
}

type poller interface {
	Authenticated() bool
	Login(ctx context.Context) error
	Poll(ctx context.Context) (nx595e.PollResult, error)
	Areas() []nx595e.Area
	Zones() []nx595e.Zone
	Outputs() []nx595e.Output
	FirmwareVersion() string
}

// poll runs a poll cycle and pushes what changed to the accessories. Sensors
// are updated on every cycle so persistence windows can expire.
func poll(
	ctx context.Context,
	cli poller,
	now time.Time,
	areas []*SecuritySystem,
	sensors []*ZoneSensor,
	outputs []*OutputSwitch,
) error {
	if !cli.Authenticated() {
		log.Info("not logged in, logging in again")
		if err := cli.Login(ctx); err != nil {
			return err
		}
	}

	pollCounter.Inc()
	result, err := cli.Poll(ctx)
	if err != nil {
		pollErrorCounter.Inc()
		return err
	}
	if result.Changed() {
		log.Debug("panel changed", "areas", result.Areas, "zones", result.Zones, "outputs", result.Outputs)
	}

	if len(result.Areas) > 0 {
		for _, area := range cli.Areas() {
			for _, a := range areas {
				if a.bank == area.Bank {
					a.Update(area)
				}
			}
		}
	}

	zones := map[int]nx595e.Zone{}
	for _, z := range cli.Zones() {
		zones[z.Bank] = z
	}
	for _, s := range sensors {
		if z, ok := zones[s.bank]; ok {
			s.Update(z, now)
		}
	}

	if len(result.Outputs) > 0 {
		for _, output := range cli.Outputs() {
			for _, o := range outputs {
				if o.bank == output.Bank {
					o.Update(output)
				}
			}
		}
	}
	return nil
}

type PageItem struct {
	Number   int
	Name     string
	Status   string
	Open     bool
	Bypassed bool
	On       bool
}

type Page struct {
	Firmware string
	Areas    []PageItem
	Zones    []PageItem
	Outputs  []PageItem
}

func statusPage(cli poller) Page {
	page := Page{Firmware: cli.FirmwareVersion()}
	for _, a := range cli.Areas() {
		page.Areas = append(page.Areas, PageItem{
			Number: a.Bank + 1,
			Name:   a.Name,
			Status: a.Status,
		})
	}
	for _, z := range cli.Zones() {
		page.Zones = append(page.Zones, PageItem{
			Number:   z.Bank + 1,
			Name:     z.Name,
			Status:   z.Status,
			Open:     z.Open(),
			Bypassed: z.Bypassed,
		})
	}
	for _, o := range cli.Outputs() {
		page.Outputs = append(page.Outputs, PageItem{
			Number: o.Bank + 1,
			Name:   o.Name,
			On:     o.On,
		})
	}
	return page
}
