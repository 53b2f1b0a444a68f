package backup

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/s3"
)

func TestParseS3BucketURL(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		raw       string
		wantErr   bool
		wantBkt   string
		wantPre   string
		errSubstr string
	}{
		{
			name:    "bucket only",
			raw:     "s3://my-bucket",
			wantBkt: "my-bucket",
			wantPre: "",
		},
		{
			name:    "bucket with prefix",
			raw:     "s3://my-bucket/trafficwatch/backups",
			wantBkt: "my-bucket",
			wantPre: "trafficwatch/backups",
		},
		{
			name:      "invalid scheme",
			raw:       "https://my-bucket/trafficwatch",
			wantErr:   true,
			errSubstr: "s3:// scheme",
		},
		{
			name:      "missing bucket",
			raw:       "s3:///trafficwatch",
			wantErr:   true,
			errSubstr: "missing bucket",
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			gotBkt, gotPre, err := parseS3BucketURL(tt.raw)
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error, got nil")
				}
				if tt.errSubstr != "" && !strings.Contains(err.Error(), tt.errSubstr) {
					t.Fatalf("err = %q, want substring %q", err.Error(), tt.errSubstr)
				}
				return
			}
			if err != nil {
				t.Fatalf("parseS3BucketURL error: %v", err)
			}
			if gotBkt != tt.wantBkt {
				t.Fatalf("bucket = %q, want %q", gotBkt, tt.wantBkt)
			}
			if gotPre != tt.wantPre {
				t.Fatalf("prefix = %q, want %q", gotPre, tt.wantPre)
			}
		})
	}
}

func TestNewS3Uploader_MissingCredentials(t *testing.T) {
	t.Parallel()

	_, err := NewS3Uploader(context.Background(), S3Config{
		BucketURL: "s3://my-bucket/trafficwatch",
		Endpoint:  "s3.amazonaws.com",
		UseSSL:    true,
	})
	if err == nil {
		t.Fatal("expected error, got nil")
	}
}

type recordingPutter struct {
	bucket string
	key    string
	body   []byte
}

func (p *recordingPutter) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	p.bucket = *in.Bucket
	p.key = *in.Key
	data, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	p.body = data
	return &s3.PutObjectOutput{}, nil
}

func TestS3Uploader_UploadFile(t *testing.T) {
	t.Parallel()

	localPath := filepath.Join(t.TempDir(), "trafficwatch-20260101-000000.000000000.duckdb")
	if err := os.WriteFile(localPath, []byte("snapshot"), 0644); err != nil {
		t.Fatalf("write snapshot: %v", err)
	}

	putter := &recordingPutter{}
	u := &S3Uploader{client: putter, bucket: "my-bucket", keyPrefix: "backups"}
	if err := u.UploadFile(context.Background(), localPath); err != nil {
		t.Fatalf("UploadFile: %v", err)
	}
	if putter.bucket != "my-bucket" {
		t.Errorf("bucket = %q, want %q", putter.bucket, "my-bucket")
	}
	if want := "backups/trafficwatch-20260101-000000.000000000.duckdb"; putter.key != want {
		t.Errorf("key = %q, want %q", putter.key, want)
	}
	if string(putter.body) != "snapshot" {
		t.Errorf("body = %q, want %q", putter.body, "snapshot")
	}
}

func TestNormalizeEndpoint(t *testing.T) {
	t.Parallel()

	tests := []struct {
		endpoint string
		useSSL   bool
		want     string
	}{
		{"", true, ""},
		{"minio:9000", false, "http://minio:9000"},
		{"s3.example.com", true, "https://s3.example.com"},
		{"http://already", true, "http://already"},
	}
	for _, tt := range tests {
		if got := normalizeEndpoint(tt.endpoint, tt.useSSL); got != tt.want {
			t.Errorf("normalizeEndpoint(%q, %v) = %q, want %q", tt.endpoint, tt.useSSL, got, tt.want)
		}
	}
}
