package iio

import (
	"fmt"
	"strconv"
	"strings"
)

// Scheme selects the backend used to reach a context.
type Scheme string

const (
	SchemeIP     Scheme = "ip"
	SchemeSerial Scheme = "serial"
	SchemeLocal  Scheme = "local"
	SchemeSSH    Scheme = "ssh"
	SchemeEmu    Scheme = "emu"
)

const defaultBaud = 115200

// URI is a parsed context address such as "ip:192.168.2.1" or
// "serial:/dev/ttyUSB0,115200".
type URI struct {
	Scheme  Scheme
	Address string
	Baud    int
}

// ParseURI parses a context URI. An empty string selects the local backend and
// a string without a known scheme is taken as an IIOD host.
func ParseURI(s string) (URI, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return URI{Scheme: SchemeLocal}, nil
	}

	scheme, rest, found := strings.Cut(s, ":")
	if !found {
		return URI{Scheme: SchemeIP, Address: s}, nil
	}

	switch Scheme(scheme) {
	case SchemeIP:
		if rest == "" {
			return URI{}, fmt.Errorf("%w: ip URI needs a host", ErrInvalidValue)
		}
		return URI{Scheme: SchemeIP, Address: rest}, nil
	case SchemeSerial:
		parts := strings.Split(rest, ",")
		if parts[0] == "" {
			return URI{}, fmt.Errorf("%w: serial URI needs a port", ErrInvalidValue)
		}
		u := URI{Scheme: SchemeSerial, Address: parts[0], Baud: defaultBaud}
		if len(parts) > 1 && parts[1] != "" {
			baud, err := strconv.Atoi(parts[1])
			if err != nil || baud <= 0 {
				return URI{}, fmt.Errorf("%w: bad baud rate %q", ErrInvalidValue, parts[1])
			}
			u.Baud = baud
		}
		return u, nil
	case SchemeLocal:
		return URI{Scheme: SchemeLocal}, nil
	case SchemeSSH:
		if rest == "" {
			return URI{}, fmt.Errorf("%w: ssh URI needs a host", ErrInvalidValue)
		}
		return URI{Scheme: SchemeSSH, Address: rest}, nil
	case SchemeEmu:
		if rest == "" {
			return URI{}, fmt.Errorf("%w: emu URI needs an XML file", ErrInvalidValue)
		}
		return URI{Scheme: SchemeEmu, Address: rest}, nil
	case "usb":
		return URI{}, fmt.Errorf("%w: usb contexts are not supported", ErrInvalidValue)
	default:
		// "host:port" without a scheme.
		if _, err := strconv.Atoi(rest); err == nil {
			return URI{Scheme: SchemeIP, Address: s}, nil
		}
		return URI{}, fmt.Errorf("%w: unknown URI scheme %q", ErrInvalidValue, scheme)
	}
}

func (u URI) String() string {
	switch u.Scheme {
	case SchemeLocal:
		return "local:"
	case SchemeSerial:
		return fmt.Sprintf("serial:%s,%d", u.Address, u.Baud)
	default:
		return string(u.Scheme) + ":" + u.Address
	}
}

// splitUserHost splits "user@host:port" into its parts. Missing parts are
// returned empty or zero.
func splitUserHost(addr string) (user, host string, port int) {
	if at := strings.LastIndex(addr, "@"); at >= 0 {
		user, addr = addr[:at], addr[at+1:]
	}
	host = addr
	if i := strings.LastIndex(addr, ":"); i >= 0 && !strings.Contains(addr[i+1:], "]") {
		if p, err := strconv.Atoi(addr[i+1:]); err == nil {
			host, port = addr[:i], p
		}
	}
	return user, strings.Trim(host, "[]"), port
}
