package nx595e

import (
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

const (
	testUser = "user"
	testPIN  = "1234"

	fixtureSession = "0123456789ABCDEF"
)

// fakePanel mimics the panel web server: it hands out sessions on login and
// redirects any request carrying a stale one.
type fakePanel struct {
	t      *testing.T
	server *httptest.Server

	mu        sync.Mutex
	logins    int
	sess      string
	hits      map[string]int
	forms     map[string][]url.Values
	overrides map[string]http.HandlerFunc
	pages     map[string]string
	loginPage func(string) string

	seqXML     string
	zoneXML    map[string]string
	areaXML    map[string]string
	outputsXML string
}

func newFakePanel(t *testing.T) *fakePanel {
	t.Helper()
	p := &fakePanel{
		t:          t,
		hits:       map[string]int{},
		forms:      map[string][]url.Values{},
		overrides:  map[string]http.HandlerFunc{},
		zoneXML:    map[string]string{},
		areaXML:    map[string]string{},
		outputsXML: `<response><o1>0</o1><o2>1</o2></response>`,
		pages:      map[string]string{},
	}
	for _, name := range []string{"login.html", "login_failed.html", "area.htm", "zones.htm", "outputs.htm"} {
		p.pages[name] = readFixture(t, name)
	}
	p.server = httptest.NewServer(http.HandlerFunc(p.serve))
	t.Cleanup(p.server.Close)
	return p
}

func (p *fakePanel) client(opts ...Option) *Client {
	u, err := url.Parse(p.server.URL)
	require.NoError(p.t, err)
	opts = append([]Option{
		WithRetryDelay(time.Millisecond),
		WithTimeout(5 * time.Second),
	}, opts...)
	return New(Credentials{
		Host:     u.Host,
		Username: testUser,
		PIN:      testPIN,
	}, opts...)
}

func (p *fakePanel) handle(path string, fn http.HandlerFunc) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.overrides[path] = fn
}

// expire invalidates the current session, as the panel does after a while.
func (p *fakePanel) expire() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.sess = "expired"
}

func (p *fakePanel) hitsFor(path string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.hits[path]
}

func (p *fakePanel) totalHits() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	var n int
	for _, h := range p.hits {
		n += h
	}
	return n
}

func (p *fakePanel) formsFor(path string) []url.Values {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.forms[path]
}

func (p *fakePanel) reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.hits = map[string]int{}
	p.forms = map[string][]url.Values{}
}

func (p *fakePanel) serve(w http.ResponseWriter, r *http.Request) {
	raw, err := io.ReadAll(r.Body)
	if err != nil {
		p.t.Errorf("could not read request: %v", err)
		return
	}
	form, err := url.ParseQuery(string(raw))
	if err != nil {
		p.t.Errorf("could not parse form: %v", err)
		return
	}

	p.mu.Lock()
	p.hits[r.URL.Path]++
	p.forms[r.URL.Path] = append(p.forms[r.URL.Path], form)
	override := p.overrides[r.URL.Path]
	p.mu.Unlock()

	if override != nil {
		override(w, r)
		return
	}

	if r.URL.Path == pathLogin {
		p.login(w, form)
		return
	}

	if !strings.HasPrefix(string(raw), "sess=") {
		p.t.Errorf("%s: session is not the first key: %q", r.URL.Path, raw)
	}
	p.mu.Lock()
	valid := form.Get("sess") == p.sess
	p.mu.Unlock()
	if !valid {
		http.Redirect(w, r, "/login.htm", http.StatusFound)
		return
	}

	switch r.URL.Path {
	case pathAreas:
		_, _ = io.WriteString(w, p.pages["area.htm"])
	case pathZones:
		_, _ = io.WriteString(w, p.pages["zones.htm"])
	case pathOutputs:
		_, _ = io.WriteString(w, p.pages["outputs.htm"])
	case pathSequence:
		p.writeXML(w, func() string { return p.seqXML })
	case pathZoneState:
		p.writeXML(w, func() string { return p.zoneXML[form.Get("state")] })
	case pathAreaStatus:
		p.writeXML(w, func() string { return p.areaXML[form.Get("arsel")] })
	case pathOutputStatus:
		p.writeXML(w, func() string { return p.outputsXML })
	case pathLogout:
		p.mu.Lock()
		p.sess = ""
		p.mu.Unlock()
	}
}

func (p *fakePanel) writeXML(w http.ResponseWriter, body func() string) {
	p.mu.Lock()
	s := body()
	p.mu.Unlock()
	w.Header().Set("Content-Type", "text/xml")
	_, _ = io.WriteString(w, s)
}

func (p *fakePanel) login(w http.ResponseWriter, form url.Values) {
	if form.Get("lgname") != testUser || form.Get("lgpin") != testPIN {
		_, _ = io.WriteString(w, p.pages["login_failed.html"])
		return
	}
	p.mu.Lock()
	p.logins++
	p.sess = fmt.Sprintf("%016X", p.logins)
	sess := p.sess
	transform := p.loginPage
	p.mu.Unlock()
	page := strings.Replace(p.pages["login.html"], fixtureSession, sess, 1)
	if transform != nil {
		page = transform(page)
	}
	_, _ = io.WriteString(w, page)
}

func readFixture(tb testing.TB, name string) string {
	tb.Helper()
	bts, err := os.ReadFile(filepath.Join("testdata", name))
	require.NoError(tb, err)
	return string(bts)
}

func areaStatusXML(stats [areaBankSize]int, sysflt string) string {
	var sb strings.Builder
	sb.WriteString("<?xml version=\"1.0\" encoding=\"ISO-8859-1\"?>\n<response>")
	for i, v := range stats {
		fmt.Fprintf(&sb, "<stat%d>%d</stat%d>", i, v, i)
	}
	if sysflt != "" {
		fmt.Fprintf(&sb, "<sysflt>%s</sysflt>", sysflt)
	}
	sb.WriteString("</response>")
	return sb.String()
}
