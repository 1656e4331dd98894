package source

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/524D/specfit/internal/jdx"
	aws "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// mockS3 serves GET requests for path style bucket/key URLs from memory
type mockS3 struct {
	objects map[string][]byte
	gets    int
}

func (m *mockS3) RoundTrip(req *http.Request) (*http.Response, error) {
	key := strings.TrimPrefix(req.URL.Path, "/")
	if req.Method == http.MethodGet {
		m.gets++
		if body, ok := m.objects[key]; ok {
			return &http.Response{StatusCode: http.StatusOK, Body: io.NopCloser(bytes.NewReader(body)), Header: http.Header{
				"Content-Type": {"chemical/x-jcamp-dx"},
				"ETag":         {"\"etag\""},
			}, Request: req}, nil
		}
		return &http.Response{StatusCode: http.StatusNotFound, Body: io.NopCloser(bytes.NewReader(nil)), Header: http.Header{}, Request: req}, nil
	}
	return &http.Response{StatusCode: http.StatusNotImplemented, Body: io.NopCloser(bytes.NewReader(nil)), Header: http.Header{}, Request: req}, nil
}

func newMockResolver(t *testing.T) (*Resolver, *mockS3) {
	t.Helper()
	co2, err := os.ReadFile(filepath.Join("..", "jdx", "testdata", "co2.jdx"))
	if err != nil {
		t.Fatalf("ReadFile: error return %v", err)
	}
	rt := &mockS3{objects: map[string][]byte{"spectra/nist/co2.jdx": co2}}
	client := s3.New(s3.Options{
		Region:       "us-east-1",
		Credentials:  credentials.NewStaticCredentialsProvider("AKIA", "SECRET", ""),
		HTTPClient:   &http.Client{Transport: rt},
		UsePathStyle: true,
		BaseEndpoint: aws.String("https://mock.s3.local"),
	})
	return NewResolverWithClient(client), rt
}

func TestLoadSpectrumS3(t *testing.T) {
	r, rt := newMockResolver(t)
	s, err := r.LoadSpectrum(context.Background(), "s3://spectra/nist/co2.jdx", jdx.Options{})
	if err != nil {
		t.Fatalf("LoadSpectrum: error return %v", err)
	}
	if s.Name() != "C_O2" || s.ProtonCount() != 22 {
		t.Errorf("Expected C_O2 with 22 protons, got %s with %d", s.Name(), s.ProtonCount())
	}
	if s.SourceFile() != "s3://spectra/nist/co2.jdx" {
		t.Errorf("Unexpected source %q", s.SourceFile())
	}
	if rt.gets != 1 {
		t.Errorf("Expected 1 GET, got %d", rt.gets)
	}

	_, err = r.LoadSpectrum(context.Background(), "s3://spectra/nist/missing.jdx", jdx.Options{})
	if !errors.Is(err, jdx.ErrFileOpen) {
		t.Errorf("Missing object: expected ErrFileOpen, got %v", err)
	}
	_, err = r.Open(context.Background(), "s3://spectra")
	if !errors.Is(err, jdx.ErrFileOpen) {
		t.Errorf("URI without key: expected ErrFileOpen, got %v", err)
	}
}

func TestOpenLocal(t *testing.T) {
	r := NewResolver(S3Config{})
	path, err := filepath.Abs(filepath.Join("..", "jdx", "testdata", "ar.jdx"))
	if err != nil {
		t.Fatalf("Abs: error return %v", err)
	}
	for _, uri := range []string{path, "file://" + filepath.ToSlash(path)} {
		s, err := r.LoadSpectrum(context.Background(), uri, jdx.Options{})
		if err != nil {
			t.Fatalf("LoadSpectrum(%s): error return %v", uri, err)
		}
		if s.Name() != "Ar" {
			t.Errorf("LoadSpectrum(%s): expected Ar, got %s", uri, s.Name())
		}
	}
	if rc, err := r.Open(context.Background(), "file://localhost"+filepath.ToSlash(path)); err != nil {
		t.Errorf("file://localhost: error return %v", err)
	} else {
		rc.Close()
	}
	_, err = r.Open(context.Background(), "file://testdata/ar.jdx")
	if !errors.Is(err, jdx.ErrFileOpen) || !strings.Contains(err.Error(), `host "testdata"`) {
		t.Errorf("file URI with host: expected ErrFileOpen, got %v", err)
	}
	_, err = r.Open(context.Background(), filepath.Join(t.TempDir(), "none.jdx"))
	if !errors.Is(err, jdx.ErrFileOpen) {
		t.Errorf("Expected ErrFileOpen, got %v", err)
	}
	_, err = r.LoadSpectrum(context.Background(), filepath.Join("..", "jdx", "testdata", "badpeak.jdx"), jdx.Options{})
	if !errors.Is(err, jdx.ErrMalformedPeak) {
		t.Errorf("Expected ErrMalformedPeak, got %v", err)
	}
}

func TestUnsupportedScheme(t *testing.T) {
	for _, uri := range []string{"http://example.com/co2.jdx", "gs://bucket/co2.jdx"} {
		if _, err := Open(context.Background(), uri); !errors.Is(err, ErrUnsupportedScheme) {
			t.Errorf("Open(%s): expected ErrUnsupportedScheme, got %v", uri, err)
		}
	}
}

func TestS3ConfigFromEnv(t *testing.T) {
	t.Setenv("SPECFIT_S3_REGION", "eu-west-1")
	t.Setenv("SPECFIT_S3_ENDPOINT", "http://localhost:9000")
	t.Setenv("SPECFIT_S3_PATH_STYLE", "TRUE")
	cfg := S3ConfigFromEnv()
	if cfg.Region != "eu-west-1" || cfg.Endpoint != "http://localhost:9000" || !cfg.PathStyle {
		t.Errorf("Unexpected config %+v", cfg)
	}
}
