// Package source opens spectrum files given as local paths, file://
// URLs or s3://bucket/key objects.
package source

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"strings"
	"sync"

	"github.com/524D/specfit/internal/jdx"
	aws "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// ErrUnsupportedScheme is returned for URIs other than file:// and s3://
var ErrUnsupportedScheme = errors.New("unsupported source scheme")

// S3Config holds the S3 client settings. Empty fields fall back to the
// AWS SDK defaults.
type S3Config struct {
	Region          string
	Endpoint        string // optional, e.g. a MinIO server
	AccessKeyID     string // optional (falls back to default credentials chain)
	SecretAccessKey string
	PathStyle       bool
}

// Environment variables:
//
//	SPECFIT_S3_REGION=<region> (default us-east-1)
//	SPECFIT_S3_ENDPOINT=<url> (optional)
//	SPECFIT_S3_PATH_STYLE=true|false (default false)
//	AWS_ACCESS_KEY_ID / AWS_SECRET_ACCESS_KEY (optional)

// S3ConfigFromEnv reads S3Config from the process environment
func S3ConfigFromEnv() S3Config {
	return S3Config{
		Region:    os.Getenv("SPECFIT_S3_REGION"),
		Endpoint:  os.Getenv("SPECFIT_S3_ENDPOINT"),
		PathStyle: strings.EqualFold(os.Getenv("SPECFIT_S3_PATH_STYLE"), "true"),
	}
}

// NewS3Client creates an S3 client from cfg
func NewS3Client(ctx context.Context, cfg S3Config) (*s3.Client, error) {
	region := cfg.Region
	if region == "" {
		region = "us-east-1"
	}
	loadOpts := []func(*config.LoadOptions) error{config.WithRegion(region)}
	if cfg.AccessKeyID != "" {
		loadOpts = append(loadOpts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, "")))
	}
	awsCfg, err := config.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	return s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.UsePathStyle = cfg.PathStyle
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
	}), nil
}

// Resolver opens sources by URI. The S3 client is created on the
// first s3:// URI.
type Resolver struct {
	mu       sync.Mutex
	client   *s3.Client
	s3Config S3Config
}

// NewResolver returns a Resolver that creates its S3 client from cfg
func NewResolver(cfg S3Config) *Resolver {
	return &Resolver{s3Config: cfg}
}

// NewResolverWithClient returns a Resolver using an existing S3 client
func NewResolverWithClient(client *s3.Client) *Resolver {
	return &Resolver{client: client}
}

func (r *Resolver) s3Client(ctx context.Context) (*s3.Client, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.client == nil {
		c, err := NewS3Client(ctx, r.s3Config)
		if err != nil {
			return nil, err
		}
		r.client = c
	}
	return r.client, nil
}

// Open returns a reader for the source at uri. Open failures wrap
// jdx.ErrFileOpen.
func (r *Resolver) Open(ctx context.Context, uri string) (io.ReadCloser, error) {
	if !strings.Contains(uri, "://") {
		return openLocal(uri)
	}
	u, err := url.Parse(uri)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", jdx.ErrFileOpen, err)
	}
	switch u.Scheme {
	case "file":
		// file://rel/x.jdx would silently open /x.jdx
		if u.Host != "" && u.Host != "localhost" {
			return nil, fmt.Errorf("%w: file URI %s has host %q, use file:///path", jdx.ErrFileOpen, uri, u.Host)
		}
		return openLocal(u.Path)
	case "s3":
		return r.openS3(ctx, u)
	}
	return nil, fmt.Errorf("%w: %s", ErrUnsupportedScheme, u.Scheme)
}

func openLocal(path string) (io.ReadCloser, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", jdx.ErrFileOpen, err)
	}
	return f, nil
}

func (r *Resolver) openS3(ctx context.Context, u *url.URL) (io.ReadCloser, error) {
	bucket := u.Host
	key := strings.TrimPrefix(u.Path, "/")
	if bucket == "" || key == "" {
		return nil, fmt.Errorf("%w: s3 URI %s needs a bucket and a key", jdx.ErrFileOpen, u)
	}
	client, err := r.s3Client(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", jdx.ErrFileOpen, err)
	}
	out, err := client.GetObject(ctx, &s3.GetObjectInput{Bucket: &bucket, Key: &key})
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", jdx.ErrFileOpen, u, err)
	}
	return out.Body, nil
}

// LoadSpectrum opens uri and parses it as a JDX file. The URI is
// recorded as the spectrum's source.
func (r *Resolver) LoadSpectrum(ctx context.Context, uri string, opts jdx.Options) (jdx.Spectrum, error) {
	rc, err := r.Open(ctx, uri)
	if err != nil {
		return jdx.Spectrum{}, err
	}
	defer rc.Close()
	s, err := jdx.ReadFrom(rc, uri, opts)
	if err != nil {
		return jdx.Spectrum{}, fmt.Errorf("%s: %w", uri, err)
	}
	return s, nil
}

var defaultResolver = NewResolver(S3ConfigFromEnv())

// Open opens uri with a Resolver configured from the environment
func Open(ctx context.Context, uri string) (io.ReadCloser, error) {
	return defaultResolver.Open(ctx, uri)
}

// LoadSpectrum loads uri with a Resolver configured from the environment
func LoadSpectrum(ctx context.Context, uri string, opts jdx.Options) (jdx.Spectrum, error) {
	return defaultResolver.LoadSpectrum(ctx, uri, opts)
}
