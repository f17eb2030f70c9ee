package iio

import (
	"errors"
	"testing"
)

func TestParseURI(t *testing.T) {
	tests := []struct {
		in   string
		want URI
	}{
		{"", URI{Scheme: SchemeLocal}},
		{"local:", URI{Scheme: SchemeLocal}},
		{"ip:192.168.2.1", URI{Scheme: SchemeIP, Address: "192.168.2.1"}},
		{"pluto.local", URI{Scheme: SchemeIP, Address: "pluto.local"}},
		{"10.0.0.5:30431", URI{Scheme: SchemeIP, Address: "10.0.0.5:30431"}},
		{"serial:/dev/ttyUSB0", URI{Scheme: SchemeSerial, Address: "/dev/ttyUSB0", Baud: 115200}},
		{"serial:/dev/ttyACM0,57600,8n1", URI{Scheme: SchemeSerial, Address: "/dev/ttyACM0", Baud: 57600}},
		{"ssh:root@phaser.local:2222", URI{Scheme: SchemeSSH, Address: "root@phaser.local:2222"}},
		{"emu:testdata/phaser.xml", URI{Scheme: SchemeEmu, Address: "testdata/phaser.xml"}},
	}
	for _, tc := range tests {
		got, err := ParseURI(tc.in)
		if err != nil {
			t.Fatalf("ParseURI(%q) error: %v", tc.in, err)
		}
		if got != tc.want {
			t.Fatalf("ParseURI(%q) = %+v, want %+v", tc.in, got, tc.want)
		}
	}

	for _, bad := range []string{"ip:", "serial:", "serial:/dev/tty,fast", "usb:1.2.3", "ftp:host"} {
		if _, err := ParseURI(bad); !errors.Is(err, ErrInvalidValue) {
			t.Fatalf("ParseURI(%q) = %v, want ErrInvalidValue", bad, err)
		}
	}
}

func TestURIString(t *testing.T) {
	u := URI{Scheme: SchemeSerial, Address: "/dev/ttyUSB0", Baud: 115200}
	if u.String() != "serial:/dev/ttyUSB0,115200" {
		t.Fatalf("String() = %q", u.String())
	}
	if (URI{Scheme: SchemeLocal}).String() != "local:" {
		t.Fatal("local URI string mismatch")
	}
}

func TestSplitUserHost(t *testing.T) {
	user, host, port := splitUserHost("analog@10.0.0.2:2222")
	if user != "analog" || host != "10.0.0.2" || port != 2222 {
		t.Fatalf("splitUserHost = %q %q %d", user, host, port)
	}
	user, host, port = splitUserHost("phaser.local")
	if user != "" || host != "phaser.local" || port != 0 {
		t.Fatalf("splitUserHost = %q %q %d", user, host, port)
	}
}
