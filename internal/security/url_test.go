package security

import (
	"errors"
	"testing"
)

func TestGuardValidate(t *testing.T) {
	t.Parallel()

	g := NewGuard()

	tests := []struct {
		name    string
		url     string
		wantErr bool
	}{
		{name: "public https", url: "https://example.com/article", wantErr: false},
		{name: "public http", url: "http://example.com", wantErr: false},
		{name: "public ip", url: "https://93.184.216.34/page", wantErr: false},

		{name: "localhost", url: "http://localhost:8080/", wantErr: true},
		{name: "loopback ip", url: "http://127.0.0.1/", wantErr: true},
		{name: "loopback range", url: "http://127.0.0.53/", wantErr: true},
		{name: "ipv6 loopback", url: "http://[::1]/", wantErr: true},
		{name: "private 10", url: "http://10.1.2.3/", wantErr: true},
		{name: "private 172", url: "http://172.16.0.1/", wantErr: true},
		{name: "private 192", url: "http://192.168.1.1/", wantErr: true},
		{name: "cloud metadata", url: "http://169.254.169.254/latest/meta-data/", wantErr: true},
		{name: "metadata hostname", url: "http://metadata.google.internal/", wantErr: true},
		{name: "mapped ipv4 loopback", url: "http://[::ffff:127.0.0.1]/", wantErr: true},
		{name: "unspecified", url: "http://0.0.0.0/", wantErr: true},

		{name: "file scheme", url: "file:///etc/passwd", wantErr: true},
		{name: "ftp scheme", url: "ftp://example.com/", wantErr: true},
		{name: "no host", url: "https:///path", wantErr: true},
		{name: "garbage", url: "http://[", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			err := g.Validate(tt.url)
			if tt.wantErr {
				if !errors.Is(err, ErrUnsafeURL) {
					t.Errorf("Validate(%q) = %v, want ErrUnsafeURL", tt.url, err)
				}
				return
			}
			if err != nil {
				t.Errorf("Validate(%q) = %v, want nil", tt.url, err)
			}
		})
	}
}

func FuzzGuardValidate(f *testing.F) {
	f.Add("https://example.com")
	f.Add("http://127.0.0.1")
	f.Add("")
	f.Add("://")
	f.Add("http://[::ffff:10.0.0.1]/x")

	g := NewGuard()
	f.Fuzz(func(_ *testing.T, rawURL string) {
		// Must never panic, whatever the input.
		_ = g.Validate(rawURL)
	})
}
