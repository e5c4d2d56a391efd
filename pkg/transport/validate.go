package transport

import (
	"net/url"
	"strings"

	"github.com/meadowlark-sync/willow/errors"
)

// ValidateSyncAddr checks a peer address given to `willow sync` before it is
// ever dialed. Unlike an outbound HTTP client, a sync peer is routinely on a
// private LAN or localhost (that is the common case for this tool), so this
// only rejects the patterns that are never legitimate: a non-websocket
// scheme, a missing host, or userinfo smuggled into the URL to confuse a
// human reading the address ("ws://trusted.example@evil.invalid/sync").
func ValidateSyncAddr(addr string) (*url.URL, error) {
	u, err := url.Parse(addr)
	if err != nil {
		return nil, errors.Wrap(err, "invalid peer address")
	}

	scheme := strings.ToLower(u.Scheme)
	if scheme != "ws" && scheme != "wss" {
		return nil, errors.Newf("peer address scheme %q not allowed (must be ws or wss)", u.Scheme)
	}
	if u.Hostname() == "" {
		return nil, errors.New("peer address missing host")
	}
	if u.User != nil {
		return nil, errors.New("peer address must not contain userinfo")
	}

	return u, nil
}
