package database

import (
	"fmt"
	"net"
	"net/url"
	"strconv"

	"github.com/rickgao/chatflow/internal/config"
)

// ApplicationName is reported to PostgreSQL for every connection.
const ApplicationName = "chatflow-loadgen"

// BuildConnString builds a PostgreSQL connection string from config.
func BuildConnString(cfg config.DBConfig) string {
	sslMode := cfg.SSLMode
	if sslMode == "" {
		sslMode = config.DefaultDBSSLMode
	}

	params := url.Values{}
	params.Set("sslmode", sslMode)
	params.Set("application_name", ApplicationName)

	// URL-encode credentials to handle special characters
	return fmt.Sprintf(
		"postgres://%s:%s@%s/%s?%s",
		url.QueryEscape(cfg.User),
		url.QueryEscape(cfg.Password),
		net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port)),
		cfg.Name,
		params.Encode(),
	)
}
