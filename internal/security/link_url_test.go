package security

import "testing"

func TestValidateLinkURL(t *testing.T) {
	tests := []struct {
		url     string
		wantErr bool
	}{
		{"https://go.dev/doc/", false},
		{"http://example.com", false},
		{"HTTPS://EXAMPLE.COM/path?q=1", false},
		// 保存リンクはサーバーから取得しないため、プライベートアドレスも許可する
		{"http://192.168.0.10/wiki", false},
		{"http://localhost:3000", false},
		{"", true},
		{"   ", true},
		{"javascript:alert(1)", true},
		{"data:text/html,<b>x</b>", true},
		{"ftp://example.com", true},
		{"/relative/path", true},
		{"https://", true},
	}

	for _, tt := range tests {
		t.Run(tt.url, func(t *testing.T) {
			err := ValidateLinkURL(tt.url)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateLinkURL(%q) error = %v, wantErr %v", tt.url, err, tt.wantErr)
			}
		})
	}
}
