package nx595e

import (
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/caarlos0/sync/cio"
	"github.com/cenkalti/backoff/v4"
	logp "github.com/charmbracelet/log"
	"github.com/j-keck/arping"
	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"
	"golang.org/x/sync/semaphore"
)

var log = logp.NewWithOptions(os.Stderr, logp.Options{
	ReportTimestamp: true,
	TimeFormat:      time.Kitchen,
	Prefix:          "nx595e",
})

// SetLogLevel sets the level of the client logger.
func SetLogLevel(level logp.Level) {
	log.SetLevel(level)
}

const (
	defaultTimeout    = 15 * time.Second
	defaultRetryDelay = 1500 * time.Millisecond
)

const (
	pathLogin        = "/login.cgi"
	pathLogout       = "/logout.cgi"
	pathAreas        = "/user/area.htm"
	pathZones        = "/user/zones.htm"
	pathOutputs      = "/user/outputs.htm"
	pathSequence     = "/user/seq.xml"
	pathZoneState    = "/user/zstate.xml"
	pathAreaStatus   = "/user/status.xml"
	pathOutputStatus = "/user/outstat.xml"
	pathKeyFunction  = "/user/keyfunction.cgi"
	pathZoneFunction = "/user/zonefunction.cgi"
	pathOutput       = "/user/output.cgi"
)

// Credentials used to log into the panel web server.
type Credentials struct {
	Host     string
	Username string
	PIN      string
	HTTPS    bool
}

var hostnameRe = regexp.MustCompile(`^[A-Za-z0-9]([A-Za-z0-9-]{0,61}[A-Za-z0-9])?(\.[A-Za-z0-9]([A-Za-z0-9-]{0,61}[A-Za-z0-9])?)*$`)

func (c Credentials) validate() error {
	host := c.Host
	if h, port, err := net.SplitHostPort(host); err == nil {
		if _, err := strconv.ParseUint(port, 10, 16); err != nil {
			return fmt.Errorf("%w: invalid port in %q", ErrInvalidConfiguration, c.Host)
		}
		host = h
	} else {
		host = strings.TrimSuffix(strings.TrimPrefix(host, "["), "]")
	}
	if host == "" || (net.ParseIP(host) == nil && !hostnameRe.MatchString(host)) {
		return fmt.Errorf("%w: not a valid address: %q", ErrInvalidConfiguration, c.Host)
	}
	if c.Username == "" {
		return fmt.Errorf("%w: did not specify a username", ErrInvalidConfiguration)
	}
	if c.PIN == "" {
		return fmt.Errorf("%w: did not specify a user PIN", ErrInvalidConfiguration)
	}
	return nil
}

func (c Credentials) baseURL() string {
	host := c.Host
	if ip := net.ParseIP(host); ip != nil && strings.Contains(host, ":") {
		host = "[" + host + "]"
	}
	if c.HTTPS {
		return "https://" + host
	}
	return "http://" + host
}

// Option customizes a Client.
type Option func(*Client)

// WithHTTPClient sets the HTTP client used to talk to the panel. Redirects
// are never followed regardless of the given client settings.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		cp := *hc
		c.http = &cp
	}
}

// WithLoginParser sets how login pages are parsed.
func WithLoginParser(p LoginParser) Option {
	return func(c *Client) {
		c.parser = p
	}
}

// WithRetryDelay sets the delay before retrying a failed request.
func WithRetryDelay(d time.Duration) Option {
	return func(c *Client) {
		c.retryDelay = d
	}
}

// WithTimeout sets the timeout of each HTTP request.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		c.timeout = d
	}
}

// WithInsecureTLS skips certificate verification, as the panel ships with a
// self-signed certificate.
func WithInsecureTLS() Option {
	return func(c *Client) {
		c.insecure = true
	}
}

// Client talks to a single NX-595E panel.
//
// The session token is owned by the client and never handed out. Requests
// that depend on it are serialized in FIFO order; login is the only call
// allowed to run without holding that lock.
type Client struct {
	creds      Credentials
	http       *http.Client
	parser     LoginParser
	retryDelay time.Duration
	timeout    time.Duration
	insecure   bool

	sem *semaphore.Weighted

	mu         sync.RWMutex
	sess       string
	vendor     Vendor
	version    string
	release    string
	lastUpdate time.Time
	areas      []*Area
	zones      map[int]*Zone
	outputs    []*Output
	zoneSeq    []int
	zoneBanks  [][]int
	faults     []string
}

// New creates a client for the panel. Credentials are validated on login.
func New(creds Credentials, opts ...Option) *Client {
	c := &Client{
		creds:      creds,
		parser:     MarkerParser{},
		retryDelay: defaultRetryDelay,
		timeout:    defaultTimeout,
		sem:        semaphore.NewWeighted(1),
		vendor:     VendorUndefined,
		zones:      map[int]*Zone{},
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.http == nil {
		c.http = &http.Client{Timeout: c.timeout}
		if c.insecure {
			c.http.Transport = &http.Transport{
				TLSClientConfig: &tls.Config{InsecureSkipVerify: true},
			}
		}
	}
	c.http.CheckRedirect = func(*http.Request, []*http.Request) error {
		return http.ErrUseLastResponse
	}
	return c
}

// MacAddress resolves the hardware address of the panel.
func MacAddress(ip string) (string, error) {
	addr := net.ParseIP(ip)
	if addr == nil {
		return "", fmt.Errorf("could not get the mac address: not an ip: %q", ip)
	}
	hw, _, err := arping.Ping(addr)
	if err != nil {
		return "", fmt.Errorf("could not get the mac address: %w", err)
	}
	return hw.String(), nil
}

// Login authenticates against the panel and loads its areas, zones and
// outputs from scratch. On failure the client is left logged out.
func (c *Client) Login(ctx context.Context) error {
	body, err := c.authenticate(ctx)
	if err != nil {
		return err
	}
	if err := c.retrieve(ctx, body); err != nil {
		c.setSession("")
		return err
	}
	return nil
}

// Logout ends the session. It never fails: the session is dropped first and
// the panel is notified on a best-effort basis.
func (c *Client) Logout(ctx context.Context) {
	c.mu.Lock()
	sess := c.sess
	c.sess = ""
	c.mu.Unlock()
	if sess == "" {
		return
	}

	log.Debug("logout")
	if _, err := c.post(ctx, pathLogout, newPayload("sess", sess)); err != nil {
		log.Warn("could not logout", "err", err)
	}
}

// Authenticated reports whether the client holds a session.
func (c *Client) Authenticated() bool {
	return c.session() != ""
}

func (c *Client) session() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.sess
}

func (c *Client) setSession(sess string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sess = sess
}

// authenticate posts the credentials and stores the session and firmware
// details. It returns the login page, which already carries the areas.
func (c *Client) authenticate(ctx context.Context) (string, error) {
	if err := c.creds.validate(); err != nil {
		c.setSession("")
		return "", err
	}

	log.Debug("login", "host", c.creds.Host, "user", c.creds.Username)
	body, err := c.request(ctx, pathLogin, newPayload(
		"lgname", c.creds.Username,
		"lgpin", c.creds.PIN,
	), requestOpts{login: true})
	if err != nil {
		c.setSession("")
		return "", err
	}

	info, err := c.parser.ParseLogin(body)
	if err != nil {
		c.setSession("")
		return "", err
	}
	vendor := vendorFromTag(info.VendorTag)
	if vendor != VendorComnav {
		c.setSession("")
		return "", fmt.Errorf("%w: unrecognized vendor %q", ErrUnsupportedPanel, info.VendorTag)
	}

	c.mu.Lock()
	c.sess = info.Session
	c.vendor = vendor
	c.version = info.Version
	c.release = info.Release
	c.lastUpdate = time.Now()
	c.mu.Unlock()

	log.Debug("logged in", "vendor", vendor, "version", info.Version, "release", info.Release)
	return body, nil
}

// retrieve rebuilds the area, zone and output tables. Requests run without
// the session lock, as retrieve is part of login.
func (c *Client) retrieve(ctx context.Context, loginPage string) error {
	opts := requestOpts{noLock: true, noRelogin: true}

	ap, err := parseAreaPage(loginPage)
	if err != nil {
		log.Debug("login page carries no areas, fetching them")
		body, err := c.request(ctx, pathAreas, newPayload(), opts)
		if err != nil {
			return fmt.Errorf("could not retrieve areas: %w", err)
		}
		if ap, err = parseAreaPage(body); err != nil {
			return fmt.Errorf("could not retrieve areas: %w", err)
		}
	}
	areas := ap.areas()
	if len(areas) == 0 {
		return fmt.Errorf("%w: no areas found, check your installation and user permissions", ErrParse)
	}

	body, err := c.request(ctx, pathZones, newPayload(), opts)
	if err != nil {
		return fmt.Errorf("could not retrieve zones: %w", err)
	}
	zp, err := parseZonePage(body)
	if err != nil {
		return fmt.Errorf("could not retrieve zones: %w", err)
	}

	body, err = c.request(ctx, pathOutputs, newPayload(), opts)
	if err != nil {
		return fmt.Errorf("could not retrieve outputs: %w", err)
	}
	outputs := parseOutputPage(body)

	c.mu.Lock()
	defer c.mu.Unlock()
	c.areas = areas
	c.zones = zp.zones(zoneNamingEnabled(c.version))
	c.zoneSeq = zp.sequence
	c.zoneBanks = zp.banks
	c.outputs = outputs
	c.faults = nil
	c.processAreasLocked()
	c.processZonesLocked()

	log.Debug("retrieved panel", "areas", len(c.areas), "zones", len(c.zones), "outputs", len(c.outputs))
	return nil
}

type requestOpts struct {
	// login marks a credentials post: a redirect means they were rejected.
	login bool
	// noLock skips the session lock, for calls made while it is already held
	// or while logging in.
	noLock bool
	// noRelogin fails with ErrSessionExpired on the first redirect.
	noRelogin bool
}

// request posts the payload with the current session as its first key. A
// redirect means the session expired: the client logs in again and retries
// exactly once.
func (c *Client) request(ctx context.Context, path string, p payload, opts requestOpts) (string, error) {
	if !opts.login && !opts.noLock {
		t := time.Now()
		if err := c.sem.Acquire(ctx, 1); err != nil {
			return "", fmt.Errorf("%w: %s: %w", ErrNetwork, path, err)
		}
		defer c.sem.Release(1)
		log.Debug("got session lock", "path", path, "after", time.Since(t))
	}

	for attempt := 0; ; attempt++ {
		if !opts.login {
			p = p.withSession(c.session())
		}
		resp, err := c.post(ctx, path, p)
		if err != nil {
			return "", err
		}
		if !resp.redirect() {
			return resp.body, nil
		}

		switch {
		case opts.login:
			return "", fmt.Errorf("%w: login redirected to %q", ErrAuthentication, resp.location)
		case attempt > 0 || opts.noRelogin:
			return "", fmt.Errorf("%w: %s redirected to %q", ErrSessionExpired, path, resp.location)
		}

		log.Debug("session expired, logging in again", "path", path)
		if _, err := c.authenticate(ctx); err != nil {
			return "", err
		}
	}
}

type response struct {
	status   int
	location string
	body     string
}

func (r response) redirect() bool {
	return r.status/100 == 3
}

// post issues a single form post, retrying once after a fixed delay on
// transport failures and server errors.
func (c *Client) post(ctx context.Context, path string, p payload) (response, error) {
	var resp response
	op := func() error {
		req, err := http.NewRequestWithContext(
			ctx,
			http.MethodPost,
			c.creds.baseURL()+path,
			strings.NewReader(p.encode()),
		)
		if err != nil {
			return backoff.Permanent(err)
		}
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

		res, err := c.http.Do(req)
		if err != nil {
			return err
		}
		defer res.Body.Close()

		switch {
		case res.StatusCode >= 500:
			return fmt.Errorf("unexpected status: %s", res.Status)
		case res.StatusCode >= 400:
			return backoff.Permanent(fmt.Errorf("unexpected status: %s", res.Status))
		}

		body, err := io.ReadAll(cio.TimeoutReader(res.Body, c.timeout))
		if err != nil {
			return fmt.Errorf("could not read body: %w", err)
		}
		resp = response{
			status:   res.StatusCode,
			location: res.Header.Get("Location"),
			body:     string(body),
		}
		return nil
	}

	bo := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewConstantBackOff(c.retryDelay), 1),
		ctx,
	)
	if err := backoff.RetryNotify(op, bo, func(err error, d time.Duration) {
		log.Debug("request failed, retrying", "path", path, "in", d, "err", err)
	}); err != nil {
		return response{}, fmt.Errorf("%w: %s: %w", ErrNetwork, path, err)
	}
	return resp, nil
}

func zoneNamingEnabled(version string) bool {
	v, err := strconv.ParseFloat(version, 64)
	if err != nil {
		return false
	}
	return v > 0.106
}

// ZoneNaming reports whether the panel firmware supports zone names.
func (c *Client) ZoneNaming() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return zoneNamingEnabled(c.version)
}

// Vendor returns the panel vendor, as parsed on login.
func (c *Client) Vendor() Vendor {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.vendor
}

// FirmwareVersion returns the panel firmware as v<version>-<release>.
func (c *Client) FirmwareVersion() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return "v" + c.version + "-" + c.release
}

// LastUpdate returns when the client last logged in.
func (c *Client) LastUpdate() time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.lastUpdate
}

// Areas returns a copy of the known areas, ordered by bank.
func (c *Client) Areas() []Area {
	c.mu.RLock()
	defer c.mu.RUnlock()
	areas := make([]Area, 0, len(c.areas))
	for _, a := range c.areas {
		areas = append(areas, a.copy())
	}
	return areas
}

// Area returns the area at the given bank.
func (c *Client) Area(bank int) (Area, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if a := c.findArea(bank); a != nil {
		return a.copy(), true
	}
	return Area{}, false
}

// AreaArmed reports whether the area is armed, partially armed or exiting.
func (c *Client) AreaArmed(bank int) bool {
	a, ok := c.Area(bank)
	if !ok {
		return false
	}
	return a.States.Armed || a.States.Partial || a.States.Exit1 || a.States.Exit2
}

// AreaChime reports whether the area chime is on.
func (c *Client) AreaChime(bank int) bool {
	a, ok := c.Area(bank)
	return ok && a.States.Chime
}

// Zones returns a copy of the known zones, ordered by bank. Unused slots
// are not included.
func (c *Client) Zones() []Zone {
	c.mu.RLock()
	defer c.mu.RUnlock()
	banks := maps.Keys(c.zones)
	slices.Sort(banks)
	zones := make([]Zone, 0, len(banks))
	for _, bank := range banks {
		zones = append(zones, c.zones[bank].copy())
	}
	return zones
}

// Zone returns the zone at the given bank.
func (c *Client) Zone(bank int) (Zone, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if z, ok := c.zones[bank]; ok {
		return z.copy(), true
	}
	return Zone{}, false
}

// ZoneOpen reports whether the zone is in any state other than ready.
func (c *Client) ZoneOpen(bank int) bool {
	z, ok := c.Zone(bank)
	return ok && z.Open()
}

// ZoneBankState returns the zone bits, joined.
func (c *Client) ZoneBankState(bank int) string {
	z, _ := c.Zone(bank)
	return joinInts(z.BankState, "")
}

// Outputs returns a copy of the known outputs.
func (c *Client) Outputs() []Output {
	c.mu.RLock()
	defer c.mu.RUnlock()
	outputs := make([]Output, 0, len(c.outputs))
	for _, o := range c.outputs {
		outputs = append(outputs, *o)
	}
	return outputs
}

// Output returns the output at the given bank.
func (c *Client) Output(bank int) (Output, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if bank < 0 || bank >= len(c.outputs) {
		return Output{}, false
	}
	return *c.outputs[bank], true
}

func (c *Client) findArea(bank int) *Area {
	for _, a := range c.areas {
		if a.Bank == bank {
			return a
		}
	}
	return nil
}

func (a *Area) copy() Area {
	cp := *a
	cp.BankState = slices.Clone(a.BankState)
	return cp
}

func (z *Zone) copy() Zone {
	cp := *z
	cp.BankState = slices.Clone(z.BankState)
	return cp
}
