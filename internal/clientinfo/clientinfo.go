// Package clientinfo identifies the calling ordering app. Clients
// declare themselves through the Order-Client request header, an
// RFC 8941 dictionary:
//
//	Order-Client: app="customer", version="2.4.0", platform="web"
//
// The middleware parses the header, gates requests from app versions
// below the supported minimum, and stores the parsed info in the
// request context for handlers and request logs.
package clientinfo

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/dunglas/httpsfv"
	"golang.org/x/mod/semver"
)

// Header is the request header carrying the client declaration.
const Header = "Order-Client"

// Info is the parsed client declaration.
type Info struct {
	App      string // e.g. "customer", "admin"
	Version  string // e.g. "2.4.0"
	Platform string // e.g. "web", "android"; optional
}

// ParseHeader parses the Order-Client header. The app and version
// keys are required; platform is optional. Dictionary parameters on
// the items are ignored.
func ParseHeader(header string) (Info, error) {
	header = strings.TrimSpace(header)
	if header == "" {
		return Info{}, errors.New("empty Order-Client header")
	}

	dict, err := httpsfv.UnmarshalDictionary([]string{header})
	if err != nil {
		return Info{}, fmt.Errorf("invalid Order-Client header: %w", err)
	}

	app, err := stringMember(dict, "app")
	if err != nil {
		return Info{}, err
	}
	version, err := stringMember(dict, "version")
	if err != nil {
		return Info{}, err
	}
	if !semver.IsValid("v" + version) {
		return Info{}, fmt.Errorf("invalid client version %q", version)
	}

	info := Info{App: app, Version: version}
	if platform, err := stringMember(dict, "platform"); err == nil {
		info.Platform = platform
	}
	return info, nil
}

func stringMember(dict *httpsfv.Dictionary, key string) (string, error) {
	member, ok := dict.Get(key)
	if !ok {
		return "", fmt.Errorf("%s key not found in Order-Client header", key)
	}
	item, ok := member.(httpsfv.Item)
	if !ok {
		return "", fmt.Errorf("%s value must be an item", key)
	}
	value, ok := item.Value.(string)
	if !ok {
		return "", fmt.Errorf("%s value must be a string", key)
	}
	return value, nil
}

// VersionError reports a client below the supported minimum.
type VersionError struct {
	Version string
	Min     string
}

func (e *VersionError) Error() string {
	return fmt.Sprintf("client version %s below supported minimum %s", e.Version, e.Min)
}

// CheckMinVersion compares a client version against the minimum
// supported version.
func CheckMinVersion(version, min string) error {
	if min == "" {
		return nil
	}
	if semver.Compare("v"+version, "v"+min) < 0 {
		return &VersionError{Version: version, Min: min}
	}
	return nil
}

// contextKey avoids collisions with other context values.
type contextKey string

const infoContextKey contextKey = "orderflow.clientinfo"

// NewContext stores parsed client info in a context.
func NewContext(ctx context.Context, info Info) context.Context {
	return context.WithValue(ctx, infoContextKey, info)
}

// FromContext retrieves the client info, if the middleware ran.
func FromContext(ctx context.Context) (Info, bool) {
	info, ok := ctx.Value(infoContextKey).(Info)
	return info, ok
}
