package database

import (
	"math"
	"net"
	"net/url"
	"strconv"

	"github.com/nagasaiveerla/stock-data-pipeline/internal/config"
)

// BuildConnString builds the PostgreSQL URL for the price store. The
// connect timeout is rounded up to whole seconds, the unit libpq accepts;
// zero leaves it unset.
func BuildConnString(cfg config.DBConfig) string {
	sslMode := cfg.SSLMode
	if sslMode == "" {
		sslMode = config.DefaultDBSSLMode
	}

	q := url.Values{}
	q.Set("sslmode", sslMode)
	if cfg.ConnectTimeout > 0 {
		secs := int64(math.Ceil(cfg.ConnectTimeout.Seconds()))
		q.Set("connect_timeout", strconv.FormatInt(secs, 10))
	}
	if cfg.ApplicationName != "" {
		q.Set("application_name", cfg.ApplicationName)
	}

	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(cfg.User, cfg.Password),
		Host:     net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port)),
		Path:     "/" + cfg.Name,
		RawQuery: q.Encode(),
	}
	return u.String()
}
