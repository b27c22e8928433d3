package nx595e

import (
	"fmt"
	"regexp"
	"strings"
)

// LoginInfo is what a login page carries once the credentials are accepted.
type LoginInfo struct {
	Session   string
	VendorTag string
	Version   string
	Release   string
}

// LoginParser extracts the session and firmware details from the page the
// panel answers a login with. The page layout changed between firmware
// revisions, hence more than one implementation.
type LoginParser interface {
	ParseLogin(body string) (LoginInfo, error)
}

// MarkerParser finds the login details by looking for markers anywhere in
// the page. This is the default.
type MarkerParser struct{}

var (
	sessionMarkerRe = regexp.MustCompile(`function\s+getSession\s*\(\s*\)\s*\{\s*return\s*["']([0-9A-Za-z]+)["']`)
	vendorMarkerRe  = regexp.MustCompile(`src="/v_([A-Za-z]+)_([0-9.]+)-([^/"]+)/`)
)

func (MarkerParser) ParseLogin(body string) (LoginInfo, error) {
	sess := sessionMarkerRe.FindStringSubmatch(body)
	if sess == nil {
		return LoginInfo{}, fmt.Errorf("%w: session marker not found, credentials likely rejected", ErrAuthentication)
	}
	vendor := vendorMarkerRe.FindStringSubmatch(body)
	if vendor == nil {
		return LoginInfo{}, fmt.Errorf("%w: vendor marker not found", ErrUnsupportedPanel)
	}
	return LoginInfo{
		Session:   sess[1],
		VendorTag: vendor[1],
		Version:   vendor[2],
		Release:   vendor[3],
	}, nil
}

// LegacyParser reads the login details from fixed lines and columns, as the
// first supported firmware laid them out.
type LegacyParser struct{}

const (
	legacyVendorLine  = 6
	legacySignInLine  = 25
	legacySessionLine = 28
)

var legacyVendorSplit = regexp.MustCompile(`[/_-]`)

func (LegacyParser) ParseLogin(body string) (LoginInfo, error) {
	lines := strings.Split(body, "\n")
	if len(lines) <= legacySessionLine {
		return LoginInfo{}, fmt.Errorf("%w: login page has %d lines", ErrAuthentication, len(lines))
	}

	if line := strings.TrimSpace(lines[legacySignInLine]); len(line) >= 32 && line[25:32] == "Sign in" {
		return LoginInfo{}, fmt.Errorf("%w: credentials rejected", ErrAuthentication)
	}

	line := strings.TrimSpace(lines[legacySessionLine])
	if len(line) < 46 {
		return LoginInfo{}, fmt.Errorf("%w: session line too short", ErrAuthentication)
	}
	info := LoginInfo{Session: line[30:46]}

	details := legacyVendorSplit.Split(strings.TrimSpace(lines[legacyVendorLine]), -1)
	if len(details) < 5 {
		return LoginInfo{}, fmt.Errorf("%w: vendor line not recognized", ErrUnsupportedPanel)
	}
	info.VendorTag = details[2]
	info.Version = details[3]
	info.Release = details[4]
	return info, nil
}

// LoginParserFor returns the parser with the given name: marker or legacy.
func LoginParserFor(name string) (LoginParser, error) {
	switch strings.ToLower(name) {
	case "", "marker":
		return MarkerParser{}, nil
	case "legacy":
		return LegacyParser{}, nil
	default:
		return nil, fmt.Errorf("%w: unknown login parser %q", ErrInvalidConfiguration, name)
	}
}
