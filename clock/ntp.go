package clock

import (
	"sync/atomic"
	"time"

	"github.com/beevik/ntp"
	"github.com/sirupsen/logrus"
)

var log = logrus.WithField("module", "ntp")

// DefaultNTPServer is the server queried when none is configured.
const DefaultNTPServer = "pool.ntp.org"

// NTPClock is the computer clock corrected by the offset reported by an NTP
// server. Until Sync succeeds it behaves like the computer clock.
type NTPClock struct {
	server string
	offset int64
	query  func(host string) (*ntp.Response, error)
}

// NewNTPClock creates a clock synchronized against server.
func NewNTPClock(server string) *NTPClock {
	if server == "" {
		server = DefaultNTPServer
	}
	return &NTPClock{
		server: server,
		query:  ntp.Query,
	}
}

// Sync queries the NTP server and updates the clock offset.
func (c *NTPClock) Sync() error {
	res, err := c.query(c.server)
	if err != nil {
		log.WithField("server", c.server).Warn("could not connect to NTP server to check time offset")
		return err
	}

	log.WithField("offset", res.ClockOffset).Info("got clock offset from NTP server")
	atomic.StoreInt64(&c.offset, int64(res.ClockOffset))
	return nil
}

// Offset gets the last offset reported by the NTP server.
func (c *NTPClock) Offset() time.Duration {
	return time.Duration(atomic.LoadInt64(&c.offset))
}

// Now gets the true time (not relying on computer time).
func (c *NTPClock) Now() time.Time {
	return time.Now().Add(c.Offset())
}
