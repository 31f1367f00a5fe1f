package netutil

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNormalizeDomain(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    string
		wantErr bool
	}{
		{name: "plain domain", input: "example.com", want: "example.com"},
		{name: "uppercase", input: "EXAMPLE.Com", want: "example.com"},
		{name: "https scheme", input: "https://example.com", want: "example.com"},
		{name: "http scheme with path", input: "http://example.com/login?x=1", want: "example.com"},
		{name: "port stripped", input: "example.com:8443", want: "example.com"},
		{name: "wildcard label", input: "*.example.com", want: "example.com"},
		{name: "trailing dot", input: "example.com.", want: "example.com"},
		{name: "subdomain kept", input: "api.staging.example.com", want: "api.staging.example.com"},
		{name: "surrounding space", input: "  example.com  ", want: "example.com"},
		{name: "empty", input: "", wantErr: true},
		{name: "whitespace only", input: "   ", wantErr: true},
		{name: "single label", input: "localhost", wantErr: true},
		{name: "ip address", input: "192.168.1.1", wantErr: true},
		{name: "numeric tld", input: "example.123", wantErr: true},
		{name: "label with underscore", input: "bad_host.example.com", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := NormalizeDomain(tt.input)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tt.want, got)
		})
	}
}

func TestIsValidDomain(t *testing.T) {
	require.True(t, IsValidDomain("example.com"))
	require.True(t, IsValidDomain("a-b.example.co.uk"))
	require.False(t, IsValidDomain(""))
	require.False(t, IsValidDomain("example"))
	require.False(t, IsValidDomain("-bad.example.com"))
	require.False(t, IsValidDomain("bad-.example.com"))
	require.False(t, IsValidDomain("10.0.0.1"))
	require.False(t, IsValidDomain("example..com"))
}

func TestRegistrableDomain(t *testing.T) {
	require.Equal(t, "example.com", RegistrableDomain("www.example.com"))
	require.Equal(t, "example.co.uk", RegistrableDomain("deep.api.example.co.uk"))
	// Non-registrable input falls back to itself.
	require.Equal(t, "localhost", RegistrableDomain("localhost"))
}

func TestInScope(t *testing.T) {
	require.True(t, InScope("example.com", "example.com"))
	require.True(t, InScope("api.example.com", "example.com"))
	require.True(t, InScope("API.Example.com.", "example.com"))
	require.False(t, InScope("example.com.evil.net", "example.com"))
	require.False(t, InScope("notexample.com", "example.com"))
	require.False(t, InScope("", "example.com"))
}

func TestFilterScannableIPs(t *testing.T) {
	input := []string{
		"93.184.216.34",
		"93.184.216.34", // duplicate
		"224.0.0.1",     // multicast
		"0.0.0.0",       // unspecified
		"169.254.10.9",  // link-local
		"fe80::1",       // link-local v6
		"not-an-ip",
		" ",
		"2606:2800:220:1::1",
		"127.0.0.1", // loopback stays
	}
	got := FilterScannableIPs(input)
	require.Equal(t, []string{"93.184.216.34", "2606:2800:220:1::1", "127.0.0.1"}, got)
}

func TestParsePortString(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    []int
		wantErr bool
	}{
		{name: "empty", input: "", want: []int{}},
		{name: "single", input: "443", want: []int{443}},
		{name: "list with duplicates", input: "80,443,80", want: []int{80, 443}},
		{name: "range", input: "1000-1002", want: []int{1000, 1001, 1002}},
		{name: "mixed sorted", input: "443,22,1000-1001", want: []int{22, 443, 1000, 1001}},
		{name: "spaces tolerated", input: " 80 , 443 ", want: []int{80, 443}},
		{name: "port zero rejected", input: "0", wantErr: true},
		{name: "too large", input: "70000", wantErr: true},
		{name: "reversed range", input: "100-50", wantErr: true},
		{name: "garbage", input: "http", wantErr: true},
		{name: "bad range bound", input: "10-abc", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParsePortString(tt.input)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tt.want, got)
		})
	}
}
