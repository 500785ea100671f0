package wire

import (
	"fmt"
	"net"
	"strings"
)

// SslMode is the connection's TLS negotiation policy.
type SslMode string

const (
	SslDisable    SslMode = "disable"
	SslAllow      SslMode = "allow"
	SslPrefer     SslMode = "prefer"
	SslRequire    SslMode = "require"
	SslVerifyCA   SslMode = "verify-ca"
	SslVerifyFull SslMode = "verify-full"
)

// Endpoint describes one backend to connect to: everything StartupMessage
// and authentication need, plus the TLS/SNI parameters the socket layer
// consumes (the socket configuration itself is an external collaborator;
// this struct only carries the parameters it needs).
type Endpoint struct {
	Host           string
	Port           string
	User           string
	Database       string
	Password       string
	SslMode        SslMode
	ServerHostname string // SNI name, when Host is an IP literal
}

// quoteConnValue single-quotes a connection-option value, escaping
// backslash and single-quote, and rejecting an embedded NUL byte which
// cannot be represented in the libpq key=value wire form.
func quoteConnValue(v string) (string, error) {
	if strings.ContainsRune(v, 0) {
		return "", fmt.Errorf("wire: connection value contains NUL byte")
	}
	var b strings.Builder
	b.WriteByte('\'')
	for _, r := range v {
		switch r {
		case '\\':
			b.WriteString(`\\`)
		case '\'':
			b.WriteString(`\'`)
		default:
			b.WriteRune(r)
		}
	}
	b.WriteByte('\'')
	return b.String(), nil
}

// StartupParams builds the ordered key/value pairs sent in a StartupMessage:
// user, client_encoding, database (when set), plus hostaddr/host when the endpoint is
// an IP literal carrying an SNI name.
func (e Endpoint) StartupParams() ([][2]string, error) {
	params := [][2]string{
		{"user", e.User},
		{"client_encoding", "UTF8"},
	}
	if e.Database != "" {
		params = append(params, [2]string{"database", e.Database})
	}
	if net.ParseIP(e.Host) != nil && e.ServerHostname != "" {
		params = append(params, [2]string{"hostaddr", e.Host}, [2]string{"host", e.ServerHostname})
	}
	for _, kv := range params {
		if _, err := quoteConnValue(kv[1]); err != nil {
			return nil, err
		}
	}
	return params, nil
}
