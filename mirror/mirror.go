// Package mirror copies written archive units to an S3 bucket as they are
// journaled.
package mirror

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"mime"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/dhcgn/mbox-to-archive/archive"
	"github.com/dhcgn/mbox-to-archive/manifest"
	"github.com/dhcgn/mbox-to-archive/stats"
)

// Putter is the part of the S3 client the mirror needs.
type Putter interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

type Options struct {
	Bucket    string
	Prefix    string
	Region    string
	Endpoint  string
	AccessKey string
	SecretKey string
	// Root is the local directory keys are computed relative to.
	Root string
}

// NewClient builds an S3 client. Static credentials are used when both keys
// are set, the default credential chain otherwise. A custom endpoint switches
// to path-style addressing for S3-compatible stores.
func NewClient(ctx context.Context, opts Options) (*s3.Client, error) {
	region := opts.Region
	if region == "" {
		region = "us-east-1"
	}
	optFns := []func(*config.LoadOptions) error{config.WithRegion(region)}
	if opts.AccessKey != "" && opts.SecretKey != "" {
		creds := credentials.NewStaticCredentialsProvider(opts.AccessKey, opts.SecretKey, "")
		optFns = append(optFns, config.WithCredentialsProvider(creds))
	}

	awsCfg, err := config.LoadDefaultConfig(ctx, optFns...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	return s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if opts.Endpoint != "" {
			o.BaseEndpoint = aws.String(opts.Endpoint)
			o.UsePathStyle = true
		}
	}), nil
}

// Mirror is a manifest.Recorder that uploads the descriptor and objects of
// every recorded unit.
type Mirror struct {
	client Putter
	opts   Options
	logger *slog.Logger
	events func(stats.Event)
}

func New(client Putter, opts Options, logger *slog.Logger, events func(stats.Event)) (*Mirror, error) {
	if opts.Bucket == "" {
		return nil, fmt.Errorf("bucket is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Mirror{client: client, opts: opts, logger: logger, events: events}, nil
}

// Key maps a local file below Root to its object key.
func (m *Mirror) Key(local string) (string, error) {
	rel, err := filepath.Rel(m.opts.Root, local)
	if err != nil {
		return "", fmt.Errorf("relative path of %s: %w", local, err)
	}
	rel = filepath.ToSlash(rel)
	if rel == ".." || strings.HasPrefix(rel, "../") {
		return "", fmt.Errorf("%s is outside %s", local, m.opts.Root)
	}
	return path.Join(m.opts.Prefix, rel), nil
}

func (m *Mirror) Record(ctx context.Context, e manifest.Entry) error {
	files := []string{archive.DescriptorName}
	for _, o := range e.Objects {
		files = append(files, o.Name)
	}

	for _, name := range files {
		local := filepath.Join(e.Path, name)
		if err := m.put(ctx, local); err != nil {
			m.emit(stats.Event{Stage: stats.StageMirror, Type: stats.EventTypeError, Path: local, Err: err})
			return err
		}
		m.emit(stats.Event{Stage: stats.StageMirror, Type: stats.EventTypeMirrored, Path: local, MessageID: e.MessageID})
	}
	return nil
}

func (m *Mirror) put(ctx context.Context, local string) error {
	key, err := m.Key(local)
	if err != nil {
		return err
	}
	data, err := os.ReadFile(local)
	if err != nil {
		return fmt.Errorf("read %s: %w", local, err)
	}

	input := &s3.PutObjectInput{
		Bucket: aws.String(m.opts.Bucket),
		Key:    aws.String(key),
		Body:   bytes.NewReader(data),
	}
	if ct := mime.TypeByExtension(path.Ext(key)); ct != "" {
		input.ContentType = aws.String(ct)
	}
	if _, err := m.client.PutObject(ctx, input); err != nil {
		return fmt.Errorf("put s3://%s/%s: %w", m.opts.Bucket, key, err)
	}

	m.logger.Debug("mirrored unit file", "bucket", m.opts.Bucket, "key", key)
	return nil
}

func (m *Mirror) emit(evt stats.Event) {
	if m.events != nil {
		m.events(evt)
	}
}
