// Package formatter decorates raw log lines before a producer hands them to
// the archiving backend. The backend itself is agnostic to line framing;
// these are the two wire formats producers are known to use.
package formatter

import (
	"fmt"
	"os"
	"time"
)

// Plain prepends a token to every line, with no other framing.
type Plain struct {
	token string
}

// NewPlain returns a formatter that prefixes every line with token.
func NewPlain(token string) *Plain {
	return &Plain{token: token}
}

// FormatLine returns token+line.
func (p *Plain) FormatLine(line string) string {
	return p.token + line
}

// syslogMsgFormat is the historical wire layout consumers depend on:
// "<token><14>1 <iso-utc> <host> <app> - <msgid> -
// hostname=<host> appname=<app> <line>".
const syslogMsgFormat = "%s<14>1 %sZ %s %s - %s - hostname=%s appname=%s %s"

// Syslog formats lines per RFC 5424 (abbreviated, matching the source
// agent's historical wire format rather than the full RFC grammar).
type Syslog struct {
	hostname    string
	appname     string
	token       string
	sendDatahub bool
}

// NewSyslog returns a Syslog formatter. If hostname is empty, the local
// machine's hostname is used. When sendDatahub is true, FormatLine never
// emits a leading token, since datahub routing carries it out-of-band.
func NewSyslog(hostname, appname, token string, sendDatahub bool) *Syslog {
	if hostname == "" {
		if h, err := os.Hostname(); err == nil {
			hostname = h
		}
	}
	return &Syslog{
		hostname:    hostname,
		appname:     appname,
		token:       token,
		sendDatahub: sendDatahub,
	}
}

// FormatLine renders line with the given msgid (defaulting to "-") and an
// optional per-call token override (defaulting to the formatter's own
// token). The leading token field is suppressed entirely in datahub mode.
func (s *Syslog) FormatLine(line, msgid, token string) string {
	if msgid == "" {
		msgid = "-"
	}
	if token == "" {
		token = s.token
	}

	tokenParam := token
	if s.sendDatahub {
		tokenParam = ""
	}

	iso := time.Now().UTC().Format("2006-01-02T15:04:05.000000")

	return fmt.Sprintf(syslogMsgFormat,
		tokenParam,
		iso,
		s.hostname, s.appname,
		msgid,
		s.hostname, s.appname,
		line)
}
