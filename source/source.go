// Package source opens PLMXML documents from the local filesystem or from
// S3-compatible object storage.
package source

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"
	"sync"

	aws "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	plmxml "github.com/agentflare-ai/go-plmxml"
)

const s3Scheme = "s3://"

// Config holds S3 client parameters. Local files need none of it.
type Config struct {
	Region          string
	Endpoint        string // optional; set for MinIO and other S3-compatible stores
	AccessKeyID     string // optional (falls back to the default credentials chain)
	SecretAccessKey string
	SessionToken    string
	PathStyle       bool
	HTTPClient      *http.Client // optional
}

// Environment variables read by ConfigFromEnv:
//   PLMXML_S3_REGION=<region> (default us-east-1)
//   PLMXML_S3_ENDPOINT=<url> (optional)
//   PLMXML_S3_PATH_STYLE=true|false (default false)
//   AWS_ACCESS_KEY_ID / AWS_SECRET_ACCESS_KEY / AWS_SESSION_TOKEN (optional, via the default chain)

// ConfigFromEnv builds a Config from the process environment
func ConfigFromEnv() Config {
	return Config{
		Region:    os.Getenv("PLMXML_S3_REGION"),
		Endpoint:  os.Getenv("PLMXML_S3_ENDPOINT"),
		PathStyle: strings.EqualFold(os.Getenv("PLMXML_S3_PATH_STYLE"), "true"),
	}
}

// Document is an opened document stream and the context needed to parse it
type Document struct {
	Body     io.ReadCloser
	Name     string // location as given, used in diagnostic positions
	Base     string // location ExternalFile references are resolved against
	Resolver plmxml.PathResolver
}

// Options returns the parse options matching the document's location
func (d *Document) Options() []plmxml.Option {
	return []plmxml.Option{
		plmxml.WithFileName(d.Name),
		plmxml.WithBaseDir(d.Base),
		plmxml.WithPathResolver(d.Resolver),
	}
}

// Close closes the document body
func (d *Document) Close() error {
	return d.Body.Close()
}

// Opener opens documents by location. The S3 client is created on first use.
type Opener struct {
	cfg Config

	once   sync.Once
	client *s3.Client
	err    error
}

// NewOpener creates an Opener using cfg for S3 locations
func NewOpener(cfg Config) *Opener {
	return &Opener{cfg: cfg}
}

// Open opens a local path or an s3://bucket/key location
func Open(ctx context.Context, location string) (*Document, error) {
	return NewOpener(ConfigFromEnv()).Open(ctx, location)
}

// Parse opens location and parses it. opts are applied after the
// location's own options.
func Parse(ctx context.Context, location string, opts ...plmxml.Option) (*plmxml.Result, error) {
	return NewOpener(ConfigFromEnv()).Parse(ctx, location, opts...)
}

// Parse opens location and parses it
func (o *Opener) Parse(ctx context.Context, location string, opts ...plmxml.Option) (*plmxml.Result, error) {
	doc, err := o.Open(ctx, location)
	if err != nil {
		return nil, err
	}
	defer doc.Close()
	return plmxml.Parse(doc.Body, append(doc.Options(), opts...)...)
}

// Open opens a local path or an s3://bucket/key location. Failures wrap
// plmxml.ErrSource.
func (o *Opener) Open(ctx context.Context, location string) (*Document, error) {
	if IsS3(location) {
		return o.openS3(ctx, location)
	}
	return openFile(location)
}

// IsS3 reports whether location uses the s3:// scheme
func IsS3(location string) bool {
	return strings.HasPrefix(location, s3Scheme)
}

// SplitS3 splits an s3://bucket/key location
func SplitS3(location string) (bucket, key string, err error) {
	if !IsS3(location) {
		return "", "", fmt.Errorf("not an s3 location: %q", location)
	}
	bucket, key, _ = strings.Cut(strings.TrimPrefix(location, s3Scheme), "/")
	if bucket == "" || key == "" || strings.HasSuffix(key, "/") {
		return "", "", fmt.Errorf("s3 location needs a bucket and an object key: %q", location)
	}
	return bucket, key, nil
}

// S3Resolver resolves an ExternalFile location against an s3://bucket/dir
// base. The result stays inside the bucket.
func S3Resolver(base, location string) (string, error) {
	if !IsS3(base) {
		return "", fmt.Errorf("not an s3 base: %q", base)
	}
	bucket, dir, _ := strings.Cut(strings.TrimPrefix(base, s3Scheme), "/")
	if bucket == "" {
		return "", fmt.Errorf("s3 base without bucket: %q", base)
	}
	key := path.Clean(path.Join("/", dir, strings.ReplaceAll(location, `\`, "/")))
	return s3Scheme + bucket + key, nil
}

func openFile(location string) (*Document, error) {
	location = strings.TrimPrefix(location, "file://")
	f, err := os.Open(location)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", plmxml.ErrSource, err)
	}
	return &Document{
		Body:     f,
		Name:     location,
		Base:     filepath.Dir(location),
		Resolver: plmxml.FileResolver,
	}, nil
}

func (o *Opener) openS3(ctx context.Context, location string) (*Document, error) {
	bucket, key, err := SplitS3(location)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", plmxml.ErrSource, err)
	}
	client, err := o.s3Client(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", plmxml.ErrSource, err)
	}
	out, err := client.GetObject(ctx, &s3.GetObjectInput{Bucket: &bucket, Key: &key})
	if err != nil {
		return nil, fmt.Errorf("%w: get %s: %w", plmxml.ErrSource, location, err)
	}
	dir := path.Dir(key)
	if dir == "." {
		dir = ""
	}
	return &Document{
		Body:     out.Body,
		Name:     location,
		Base:     s3Scheme + path.Join(bucket, dir),
		Resolver: S3Resolver,
	}, nil
}

func (o *Opener) s3Client(ctx context.Context) (*s3.Client, error) {
	o.once.Do(func() {
		region := o.cfg.Region
		if region == "" {
			region = "us-east-1"
		}
		loadOpts := []func(*config.LoadOptions) error{config.WithRegion(region)}
		if o.cfg.AccessKeyID != "" {
			loadOpts = append(loadOpts, config.WithCredentialsProvider(
				credentials.NewStaticCredentialsProvider(o.cfg.AccessKeyID, o.cfg.SecretAccessKey, o.cfg.SessionToken)))
		}
		awsCfg, err := config.LoadDefaultConfig(ctx, loadOpts...)
		if err != nil {
			o.err = fmt.Errorf("load aws config: %w", err)
			return
		}
		o.client = s3.NewFromConfig(awsCfg, func(opts *s3.Options) {
			opts.UsePathStyle = o.cfg.PathStyle
			if o.cfg.Endpoint != "" {
				opts.BaseEndpoint = aws.String(o.cfg.Endpoint)
			}
			if o.cfg.HTTPClient != nil {
				opts.HTTPClient = o.cfg.HTTPClient
			}
		})
	})
	return o.client, o.err
}
