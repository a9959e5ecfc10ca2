package bootstrap

import (
	"reflect"
	"testing"
	"time"

	"mediasvc/internal/config"
)

func TestNormalizeAllowedOrigins(t *testing.T) {
	tests := []struct {
		name  string
		input []string
		want  []string
	}{
		{
			name:  "empty",
			input: []string{},
			want:  []string{},
		},
		{
			name:  "mixed separators and duplicates",
			input: []string{" https://a.example.com,https://b.example.com", "https://a.example.com", "http://c.example.com\t"},
			want:  []string{"https://a.example.com", "https://b.example.com", "http://c.example.com"},
		},
		{
			name:  "trims whitespace",
			input: []string{"  http://localhost:3000  ", "   http://localhost:3001 "},
			want:  []string{"http://localhost:3000", "http://localhost:3001"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := normalizeAllowedOrigins(tt.input)
			if !reflect.DeepEqual(got, tt.want) {
				t.Fatalf("normalizeAllowedOrigins(%v) = %#v; want %#v", tt.input, got, tt.want)
			}
		})
	}
}

func TestMediaAndRouterConfigMapping(t *testing.T) {
	var cfg config.Config
	cfg.Server.RateLimitRPM = 120
	cfg.Server.UploadTimeout = time.Minute
	cfg.Server.AllowedOrigins = []string{"https://a.example.com"}
	cfg.Media.MaxFileSize = 1 << 20
	cfg.Media.MaxFiles = 3
	cfg.Media.BasePath = "/files"
	cfg.Media.StatsTTL = time.Second

	media := MediaConfig(cfg)
	if media.MaxFileSize != 1<<20 || media.MaxFiles != 3 || media.BasePath != "/files" || media.StatsTTL != time.Second {
		t.Fatalf("unexpected media config: %+v", media)
	}

	router := RouterConfig(cfg)
	if router.RateLimit.RequestsPerMinute != 120 || router.UploadTimeout != time.Minute {
		t.Fatalf("unexpected router config: %+v", router)
	}
	if !reflect.DeepEqual(router.AllowedOrigins, []string{"https://a.example.com"}) {
		t.Fatalf("unexpected origins: %v", router.AllowedOrigins)
	}
}
