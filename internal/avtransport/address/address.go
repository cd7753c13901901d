// Package address implements the AVTransport URL grammar (spec §4.4, §6.2):
// parsing a connection string into the {transport, mode, host, port,
// interface, uuid, options} tuple the connection pipeline uses to configure
// a transport back-end.
//
// Parsing is built on net/url, the way the teacher repo parses destination
// URLs in internal/rtmp/relay/destination.go, generalized from a single
// fixed scheme (rtmp://) to the full AVTransport scheme/transport/mode
// grammar.
package address

import (
	"fmt"
	"net"
	"strconv"
	"strings"

	"github.com/avtransport/avtransport/internal/errors"
	"github.com/google/uuid"
)

// Transport identifies the wire transport an Address configures.
type Transport int

const (
	TransportUnknown Transport = iota
	TransportUDP
	TransportUDPLite
	TransportQUIC
	TransportFile
	TransportSocket
	TransportFD
)

func (t Transport) String() string {
	switch t {
	case TransportUDP:
		return "udp"
	case TransportUDPLite:
		return "udplite"
	case TransportQUIC:
		return "quic"
	case TransportFile:
		return "file"
	case TransportSocket:
		return "socket"
	case TransportFD:
		return "fd"
	default:
		return "unknown"
	}
}

// Mode is the avt:// connection role.
type Mode int

const (
	ModeDefault Mode = iota
	ModePassive
	ModeActive
)

func (m Mode) String() string {
	switch m {
	case ModePassive:
		return "passive"
	case ModeActive:
		return "active"
	default:
		return "default"
	}
}

// DefaultPort is used when a URL omits a port (spec §4.4: "Port is optional
// (default is a configured constant)").
const DefaultPort = 5170

// Options holds the parsed `#k=v&k=v…` fragment.
type Options struct {
	StartTimeNS   int64
	DefaultSID    []uint16
	TxBuf         int32
	RxBuf         int32
	HasTxBuf      bool
	HasRxBuf      bool
	CertFile      string
	KeyFile       string
}

// Address is the fully parsed connection descriptor (spec §3.5), restricted
// to the URL-addressable fields; file/fd/callback-only fields are left zero
// for URL schemes that don't use them.
type Address struct {
	Transport Transport
	Mode      Mode
	Listen    bool

	IP            net.IP // always 16 bytes, IPv4-mapped when the host was IPv4
	Port          uint16
	Interface     string
	InterfaceIdx  int

	Path string // file://, socket://, fd:// target

	UUID    uuid.UUID
	HasUUID bool

	Options Options

	raw string // original input, for round-trip tests
}

var schemes = map[string]Transport{
	"udp":     TransportUDP,
	"udplite": TransportUDPLite,
	"quic":    TransportQUIC,
	"file":    TransportFile,
	"socket":  TransportSocket,
	"fd":      TransportFD,
}

var transportNames = map[string]Transport{
	"udp":     TransportUDP,
	"udplite": TransportUDPLite,
	"quic":    TransportQUIC,
}

var modeNames = map[string]Mode{
	"passive": ModePassive,
	"active":  ModeActive,
	"default": ModeDefault,
}

// Parse parses rawURL under the grammar of spec §6.2:
//
//	<scheme>://[<transport>[:<mode>]@]<host>[:<port>][/[<uuid>][#<k>=<v>(&<k>=<v>)*]]
//
// listen reports the caller's intent (server vs client), used to resolve
// hostnames with AI_PASSIVE semantics. Mode is taken from the URL only.
func Parse(rawURL string, listen bool) (Address, error) {
	a := Address{raw: rawURL, Listen: listen}

	schemeSep := strings.Index(rawURL, "://")
	if schemeSep < 0 {
		return Address{}, errors.InvalidArgument("address.parse", fmt.Errorf("missing scheme: %q", rawURL))
	}
	scheme := rawURL[:schemeSep]
	rest := rawURL[schemeSep+3:]

	switch scheme {
	case "avt":
		if err := parseAVT(&a, rest); err != nil {
			return Address{}, err
		}
	case "udp", "udplite", "quic":
		a.Transport = schemes[scheme]
		if err := parseHostPortPath(&a, rest); err != nil {
			return Address{}, err
		}
	case "file":
		a.Transport = TransportFile
		a.Path = rest
		return a, nil
	case "socket":
		a.Transport = TransportSocket
		a.Path = rest
		return a, nil
	case "fd":
		a.Transport = TransportFD
		a.Path = rest
		return a, nil
	default:
		return Address{}, errors.Unsupported("address.parse", fmt.Errorf("unknown scheme: %q", scheme))
	}

	return a, nil
}

// parseAVT handles avt://[transport[:mode]@]host[:port][/...].
func parseAVT(a *Address, rest string) error {
	if at := strings.IndexByte(rest, '@'); at >= 0 {
		prefix := rest[:at]
		rest = rest[at+1:]

		transportPart, modePart, hasMode := strings.Cut(prefix, ":")
		tr, ok := transportNames[transportPart]
		if !ok {
			return errors.Unsupported("address.parse", fmt.Errorf("unknown transport: %q", transportPart))
		}
		a.Transport = tr

		if hasMode {
			mode, ok := modeNames[modePart]
			if !ok {
				return errors.InvalidArgument("address.parse", fmt.Errorf("unknown mode: %q", modePart))
			}
			a.Mode = mode
		}
	} else {
		a.Transport = TransportUDP
	}
	return parseHostPortPath(a, rest)
}

// parseHostPortPath handles host[:port][/[uuid][#options]] once the
// scheme/transport/mode prefix has already been consumed.
func parseHostPortPath(a *Address, rest string) error {
	hostport := rest
	var pathAndFrag string
	if slash := strings.IndexByte(rest, '/'); slash >= 0 {
		hostport = rest[:slash]
		pathAndFrag = rest[slash+1:]
	}

	host, port, iface, err := splitHostPort(hostport)
	if err != nil {
		return err
	}
	a.Interface = iface

	ip, err := resolveHost(host, a.Listen)
	if err != nil {
		return err
	}
	a.IP = ip

	if iface != "" {
		idx, err := net.InterfaceByName(iface)
		if err != nil {
			return errors.InvalidArgument("address.parse", fmt.Errorf("unknown interface %q: %w", iface, err))
		}
		a.InterfaceIdx = idx.Index
	}

	if port == "" {
		a.Port = DefaultPort
	} else {
		p, err := strconv.ParseUint(port, 10, 32)
		if err != nil {
			return errors.InvalidArgument("address.parse", fmt.Errorf("invalid port: %q", port))
		}
		if p > 65535 {
			return errors.Range("address.parse", fmt.Errorf("port out of range: %d", p))
		}
		a.Port = uint16(p)
	}

	uuidPart, fragPart, _ := strings.Cut(pathAndFrag, "#")
	if uuidPart != "" {
		id, err := uuid.Parse(uuidPart)
		if err != nil {
			return errors.InvalidArgument("address.parse", fmt.Errorf("invalid uuid: %q", uuidPart))
		}
		a.UUID = id
		a.HasUUID = true
	}
	if fragPart != "" {
		opts, err := parseOptions(fragPart)
		if err != nil {
			return err
		}
		a.Options = opts
	}
	return nil
}

// splitHostPort separates host[%iface][:port] without relying on
// net.SplitHostPort, which rejects the bracketed-IPv6-plus-scope-id form
// this grammar also allows for bare IPv6 literals.
func splitHostPort(hostport string) (host, port, iface string, err error) {
	if strings.HasPrefix(hostport, "[") {
		end := strings.IndexByte(hostport, ']')
		if end < 0 {
			return "", "", "", errors.InvalidArgument("address.parse", fmt.Errorf("unterminated bracket: %q", hostport))
		}
		host = hostport[1:end]
		remainder := hostport[end+1:]
		if strings.HasPrefix(remainder, ":") {
			port = remainder[1:]
		}
	} else if idx := strings.LastIndexByte(hostport, ':'); idx >= 0 && strings.Count(hostport, ":") == 1 {
		host = hostport[:idx]
		port = hostport[idx+1:]
	} else {
		host = hostport
	}

	if pct := strings.IndexByte(host, '%'); pct >= 0 {
		iface = host[pct+1:]
		host = host[:pct]
	}
	return host, port, iface, nil
}

// resolveHost converts an IPv4, bracketed/bare IPv6, or hostname into a
// 16-byte IPv6 (IPv4-mapped where applicable) address, per §4.4.
func resolveHost(host string, listen bool) (net.IP, error) {
	if host == "" {
		if listen {
			return net.IPv6unspecified, nil
		}
		return nil, errors.InvalidArgument("address.parse", fmt.Errorf("empty host"))
	}
	if ip := net.ParseIP(host); ip != nil {
		return ip.To16(), nil
	}
	ips, err := net.LookupIP(host)
	if err != nil || len(ips) == 0 {
		return nil, errors.InvalidArgument("address.parse", fmt.Errorf("invalid address family: %q", host))
	}
	return ips[0].To16(), nil
}

// parseOptions parses the `#k=v&k=v…` fragment per the table in §4.4.
func parseOptions(frag string) (Options, error) {
	var opts Options
	seen := map[uint16]bool{}

	for _, kv := range strings.Split(frag, "&") {
		key, val, hasEq := strings.Cut(kv, "=")
		if !hasEq {
			return Options{}, errors.InvalidArgument("address.parse", fmt.Errorf("malformed option: %q", kv))
		}
		switch key {
		case "t":
			f, err := strconv.ParseFloat(val, 64)
			if err != nil {
				return Options{}, errors.InvalidArgument("address.parse", fmt.Errorf("invalid t: %q", val))
			}
			opts.StartTimeNS = int64(f * 1e9)
		case "default":
			for _, part := range strings.FieldsFunc(val, func(r rune) bool { return r == ',' }) {
				n, err := strconv.ParseUint(part, 10, 16)
				if err != nil {
					return Options{}, errors.InvalidArgument("address.parse", fmt.Errorf("invalid default sid: %q", part))
				}
				sid := uint16(n)
				if sid == 0xFFFF {
					return Options{}, errors.InvalidArgument("address.parse", fmt.Errorf("reserved stream id in default"))
				}
				if seen[sid] {
					return Options{}, errors.InvalidArgument("address.parse", fmt.Errorf("duplicate default sid: %d", sid))
				}
				seen[sid] = true
				opts.DefaultSID = append(opts.DefaultSID, sid)
			}
		case "tx_buf":
			n, err := parseBufOption(val)
			if err != nil {
				return Options{}, err
			}
			opts.TxBuf, opts.HasTxBuf = n, true
		case "rx_buf":
			n, err := parseBufOption(val)
			if err != nil {
				return Options{}, err
			}
			opts.RxBuf, opts.HasRxBuf = n, true
		case "cert":
			opts.CertFile = val
		case "key":
			opts.KeyFile = val
		default:
			return Options{}, errors.InvalidArgument("address.parse", fmt.Errorf("unknown option key: %q", key))
		}
	}
	return opts, nil
}

func parseBufOption(val string) (int32, error) {
	n, err := strconv.ParseInt(val, 10, 64)
	if err != nil {
		return 0, errors.InvalidArgument("address.parse", fmt.Errorf("invalid buffer size: %q", val))
	}
	if n > int64(1<<31-1) || n < 0 {
		return 0, errors.InvalidArgument("address.parse", fmt.Errorf("buffer size overflow: %d", n))
	}
	return int32(n), nil
}

// String renders a's canonical form, which Parse can re-parse to an
// equivalent Address (spec §8 invariant 7: parse(print(parse(url))) ==
// parse(url)). The start-time option (t) is not rendered, and an interface
// selector is rendered only for IPv6 hosts.
func (a Address) String() string {
	var b strings.Builder
	switch a.Transport {
	case TransportFile:
		b.WriteString("file://")
		b.WriteString(a.Path)
		return b.String()
	case TransportSocket:
		b.WriteString("socket://")
		b.WriteString(a.Path)
		return b.String()
	case TransportFD:
		b.WriteString("fd://")
		b.WriteString(a.Path)
		return b.String()
	}

	b.WriteString("avt://")
	b.WriteString(a.Transport.String())
	if a.Mode != ModeDefault {
		b.WriteByte(':')
		b.WriteString(a.Mode.String())
	}
	b.WriteByte('@')

	host := a.IP.String()
	if strings.Contains(host, ":") {
		b.WriteByte('[')
		b.WriteString(host)
		if a.Interface != "" {
			b.WriteByte('%')
			b.WriteString(a.Interface)
		}
		b.WriteByte(']')
	} else {
		b.WriteString(host)
	}
	b.WriteByte(':')
	b.WriteString(strconv.Itoa(int(a.Port)))

	if a.HasUUID || a.Options.fragment() != "" {
		b.WriteByte('/')
		if a.HasUUID {
			b.WriteString(a.UUID.String())
		}
	}
	if frag := a.Options.fragment(); frag != "" {
		b.WriteByte('#')
		b.WriteString(frag)
	}
	return b.String()
}

func (o Options) fragment() string {
	var parts []string
	if len(o.DefaultSID) > 0 {
		sids := make([]string, len(o.DefaultSID))
		for i, s := range o.DefaultSID {
			sids[i] = strconv.Itoa(int(s))
		}
		parts = append(parts, "default="+strings.Join(sids, ","))
	}
	if o.HasTxBuf {
		parts = append(parts, "tx_buf="+strconv.Itoa(int(o.TxBuf)))
	}
	if o.HasRxBuf {
		parts = append(parts, "rx_buf="+strconv.Itoa(int(o.RxBuf)))
	}
	if o.CertFile != "" {
		parts = append(parts, "cert="+o.CertFile)
	}
	if o.KeyFile != "" {
		parts = append(parts, "key="+o.KeyFile)
	}
	return strings.Join(parts, "&")
}
