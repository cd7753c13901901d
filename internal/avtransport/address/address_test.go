package address

import (
	"net"
	"testing"

	"github.com/avtransport/avtransport/internal/errors"
)

func TestParseUDPPlainHost(t *testing.T) {
	a, err := Parse("udp://192.168.1.1", false)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if a.Transport != TransportUDP {
		t.Fatalf("expected UDP transport, got %v", a.Transport)
	}
	if a.Mode != ModeDefault {
		t.Fatalf("expected default mode, got %v", a.Mode)
	}
	if a.Port != DefaultPort {
		t.Fatalf("expected default port, got %d", a.Port)
	}
	want := net.ParseIP("::ffff:192.168.1.1")
	if !a.IP.Equal(want) {
		t.Fatalf("expected IPv4-mapped ip %v, got %v", want, a.IP)
	}
}

func TestParseAVTQuicActiveWithInterface(t *testing.T) {
	// github.com/avtransport/avtransport test host "lo" is assumed present
	// in the sandbox running these tests (loopback interface).
	a, err := Parse("avt://quic:active@[2001:db8::4%lo]:9999", false)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if a.Transport != TransportQUIC {
		t.Fatalf("expected QUIC transport, got %v", a.Transport)
	}
	if a.Mode != ModeActive {
		t.Fatalf("expected active mode, got %v", a.Mode)
	}
	want := net.ParseIP("2001:db8::4")
	if !a.IP.Equal(want) {
		t.Fatalf("expected ip %v, got %v", want, a.IP)
	}
	if a.Port != 9999 {
		t.Fatalf("expected port 9999, got %d", a.Port)
	}
	if a.Interface != "lo" {
		t.Fatalf("expected interface lo, got %q", a.Interface)
	}
}

func TestParseDefaultStreamIDs(t *testing.T) {
	a, err := Parse("udp://192.168.1.4/#default=0,65534", false)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	want := []uint16{0, 65534}
	if len(a.Options.DefaultSID) != len(want) {
		t.Fatalf("expected %v, got %v", want, a.Options.DefaultSID)
	}
	for i := range want {
		if a.Options.DefaultSID[i] != want[i] {
			t.Fatalf("expected %v, got %v", want, a.Options.DefaultSID)
		}
	}
}

func TestParseUUID(t *testing.T) {
	a, err := Parse("udp://192.168.1.6/123e4567-e89b-12d3-a456-426614174000", false)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if !a.HasUUID {
		t.Fatalf("expected uuid to be parsed")
	}
	if a.UUID[0] != 0x12 || a.UUID[1] != 0x3e || a.UUID[15] != 0x00 {
		t.Fatalf("unexpected uuid bytes: %x", a.UUID)
	}
}

func TestParseDefaultRejectsDuplicateAndReserved(t *testing.T) {
	if _, err := Parse("udp://192.168.1.4/#default=1,1", false); !errors.Is(err, errors.KindInvalidArgument) {
		t.Fatalf("expected invalid-argument for duplicate sid, got %v", err)
	}
	if _, err := Parse("udp://192.168.1.4/#default=65535", false); !errors.Is(err, errors.KindInvalidArgument) {
		t.Fatalf("expected invalid-argument for reserved sid, got %v", err)
	}
}

func TestParsePortOutOfRange(t *testing.T) {
	if _, err := Parse("udp://192.168.1.1:70000", false); !errors.Is(err, errors.KindRange) {
		t.Fatalf("expected range error, got %v", err)
	}
}

func TestParseUnknownScheme(t *testing.T) {
	if _, err := Parse("ftp://example.com", false); !errors.Is(err, errors.KindUnsupported) {
		t.Fatalf("expected unsupported error, got %v", err)
	}
}

func TestParseUnknownOptionKey(t *testing.T) {
	if _, err := Parse("udp://192.168.1.1/#bogus=1", false); !errors.Is(err, errors.KindInvalidArgument) {
		t.Fatalf("expected invalid-argument for unknown key, got %v", err)
	}
}

func TestParseInvalidUUID(t *testing.T) {
	if _, err := Parse("udp://192.168.1.1/not-a-uuid", false); !errors.Is(err, errors.KindInvalidArgument) {
		t.Fatalf("expected invalid-argument for bad uuid, got %v", err)
	}
}

func TestFileSocketFDSchemes(t *testing.T) {
	cases := map[string]Transport{
		"file:///tmp/stream.avt": TransportFile,
		"socket:///tmp/avt.sock": TransportSocket,
		"fd://3":                TransportFD,
	}
	for url, want := range cases {
		a, err := Parse(url, false)
		if err != nil {
			t.Fatalf("parse %q: %v", url, err)
		}
		if a.Transport != want {
			t.Fatalf("%q: expected transport %v, got %v", url, want, a.Transport)
		}
	}
}

func TestURLIdempotence(t *testing.T) {
	urls := []string{
		"udp://192.168.1.1",
		"avt://quic:active@[2001:db8::4%lo]:9999",
		"udp://192.168.1.4/#default=0,65534",
		"udp://192.168.1.6/123e4567-e89b-12d3-a456-426614174000",
	}
	for _, u := range urls {
		first, err := Parse(u, false)
		if err != nil {
			t.Fatalf("parse(%q): %v", u, err)
		}
		second, err := Parse(first.String(), false)
		if err != nil {
			t.Fatalf("parse(print(parse(%q))): %v", u, err)
		}
		if !addressesEqual(first, second) {
			t.Fatalf("parse(print(parse(%q))) != parse(%q): %+v vs %+v", u, u, first, second)
		}
	}
}

func addressesEqual(a, b Address) bool {
	if a.Transport != b.Transport || a.Mode != b.Mode || a.Port != b.Port {
		return false
	}
	if !a.IP.Equal(b.IP) || a.Interface != b.Interface {
		return false
	}
	if a.HasUUID != b.HasUUID || a.UUID != b.UUID {
		return false
	}
	if len(a.Options.DefaultSID) != len(b.Options.DefaultSID) {
		return false
	}
	for i := range a.Options.DefaultSID {
		if a.Options.DefaultSID[i] != b.Options.DefaultSID[i] {
			return false
		}
	}
	return true
}
