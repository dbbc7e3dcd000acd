package transport

import (
	"testing"

	"github.com/go-logr/logr"

	"github.com/autopeer-io/autopeer-bms/pkg/options"
)

func logrDiscard() logr.Logger { return logr.Discard() }

func TestNewSource(t *testing.T) {
	s3 := options.NewS3Options()
	s3.Endpoint = "localhost:9000"

	tests := []struct {
		url      string
		wantName string
		wantErr  bool
	}{
		{url: "socketcan://can0", wantName: "socketcan:can0"},
		{url: "can://vcan0", wantName: "socketcan:vcan0"},
		{url: "file:///var/lib/bms/capture.log", wantName: "file:/var/lib/bms/capture.log"},
		{url: "capture.log", wantName: "file:capture.log"},
		{url: "s3://captures/pack.log", wantName: "s3:pack.log"},
		{url: "s3:///pack.log", wantName: "s3:pack.log"},
		{url: "socketcan://", wantErr: true},
		{url: "s3://bucket/", wantErr: true},
		{url: "serial:///dev/ttyUSB0", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.url, func(t *testing.T) {
			src, err := NewSource(SourceConfig{URL: tt.url, S3: s3})
			if tt.wantErr {
				if err == nil {
					t.Fatalf("NewSource(%q) = %s, want error", tt.url, src.Name())
				}
				return
			}
			if err != nil {
				t.Fatalf("NewSource(%q) error = %v", tt.url, err)
			}
			if src.Name() != tt.wantName {
				t.Errorf("Name() = %q, want %q", src.Name(), tt.wantName)
			}
		})
	}
}

func TestNewSourceS3RequiresOptions(t *testing.T) {
	if _, err := NewSource(SourceConfig{URL: "s3://captures/pack.log"}); err == nil {
		t.Fatal("expected error without s3 options")
	}
}
