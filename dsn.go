package selekt

import (
	"net/url"
	"os"
	"strconv"
	"strings"

	"github.com/selekt/selekt/pool"
)

// DSN is a parsed connection URL:
//
//	jdbc:<subprotocol>:<database-path>[?prop=value(&prop=value)*]
//
// subprotocol is "selekt" or the legacy "sqlite".
type DSN struct {
	Path        string
	Key         []byte
	PoolSize    int
	BusyTimeout int64
	JournalMode pool.JournalMode
	ForeignKeys bool

	// Extra holds unrecognized properties, retained but ignored.
	Extra map[string]string
}

const dsnPrefix = "jdbc:"

// ParseDSN parses a selekt connection URL. Unlike net/url, the prefix
// "jdbc:" plus a bare subprotocol segment is not a URL scheme net/url
// understands on its own, so this does its own minimal split rather than
// routing through url.Parse for the whole string.
func ParseDSN(raw string) (*DSN, error) {
	if !strings.HasPrefix(raw, dsnPrefix) {
		return nil, NewMisuseError("dsn must start with \"jdbc:\": " + raw)
	}
	rest := raw[len(dsnPrefix):]

	colon := strings.IndexByte(rest, ':')
	if colon < 0 {
		return nil, NewMisuseError("dsn missing subprotocol: " + raw)
	}
	subprotocol := rest[:colon]
	if subprotocol != "selekt" && subprotocol != "sqlite" {
		return nil, NewMisuseError("unrecognized subprotocol " + subprotocol)
	}
	rest = rest[colon+1:]

	path := rest
	query := ""
	if q := strings.IndexByte(rest, '?'); q >= 0 {
		path = rest[:q]
		query = rest[q+1:]
	}
	if path == "" {
		return nil, NewMisuseError("dsn missing database path: " + raw)
	}

	dsn := &DSN{
		Path:        path,
		PoolSize:    10,
		BusyTimeout: 5000,
		JournalMode: pool.JournalWAL,
		ForeignKeys: true,
		Extra:       map[string]string{},
	}

	for _, tok := range strings.Split(query, "&") {
		if tok == "" {
			continue
		}
		name := tok
		value := ""
		if eq := strings.IndexByte(tok, '='); eq >= 0 {
			name = tok[:eq]
			value = tok[eq+1:]
		}
		decoded, err := url.QueryUnescape(value)
		if err != nil {
			return nil, NewMisuseError("dsn property " + name + " is not valid percent-encoding")
		}
		if err := dsn.applyProperty(name, decoded); err != nil {
			return nil, err
		}
	}
	return dsn, nil
}

func (d *DSN) applyProperty(name, value string) error {
	switch name {
	case "key":
		key, err := parseKeyProperty(value)
		if err != nil {
			return err
		}
		d.Key = key
	case "poolSize":
		n, err := strconv.Atoi(value)
		if err != nil || n <= 0 {
			return NewMisuseError("poolSize must be a positive integer: " + value)
		}
		d.PoolSize = n
	case "busyTimeout":
		n, err := strconv.ParseInt(value, 10, 64)
		if err != nil || n < 0 {
			return NewMisuseError("busyTimeout must be a non-negative integer: " + value)
		}
		d.BusyTimeout = n
	case "journalMode":
		mode, ok := pool.ParseJournalMode(value)
		if !ok {
			return NewMisuseError("unrecognized journalMode: " + value)
		}
		d.JournalMode = mode
	case "foreignKeys":
		b, ok := parseBoolProperty(value)
		if !ok {
			return NewMisuseError("foreignKeys must be true/false/1/0: " + value)
		}
		d.ForeignKeys = b
	default:
		d.Extra[name] = value
	}
	return nil
}

// parseKeyProperty accepts a "0x..." hex string, a filesystem path to a key
// file, or a plain UTF-8 string.
func parseKeyProperty(value string) ([]byte, error) {
	if strings.HasPrefix(value, "0x") || strings.HasPrefix(value, "0X") {
		hexDigits := value[2:]
		if len(hexDigits)%2 != 0 {
			return nil, NewMisuseError("hex key must have an even number of digits")
		}
		out := make([]byte, len(hexDigits)/2)
		for i := range out {
			b, err := strconv.ParseUint(hexDigits[2*i:2*i+2], 16, 8)
			if err != nil {
				return nil, NewMisuseError("invalid hex key digits: " + hexDigits)
			}
			out[i] = byte(b)
		}
		return out, nil
	}
	if looksLikeFilesystemPath(value) {
		return readKeyFile(value)
	}
	return []byte(value), nil
}

func readKeyFile(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, NewMisuseError("failed to read key file " + path + ": " + err.Error())
	}
	return data, nil
}

func looksLikeFilesystemPath(value string) bool {
	return strings.HasPrefix(value, "/") || strings.HasPrefix(value, "./") || strings.HasPrefix(value, "../")
}

func parseBoolProperty(value string) (bool, bool) {
	switch strings.ToLower(value) {
	case "true", "1":
		return true, true
	case "false", "0":
		return false, true
	default:
		return false, false
	}
}
