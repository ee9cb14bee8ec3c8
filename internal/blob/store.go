package blob

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/example/carepulse/internal/application"
)

// S3API is the subset of the S3 client used by Store.
type S3API interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// Options configures how stored files are addressed.
type Options struct {
	Bucket string
	// ViewEndpoint is the public storage endpoint used to build view URLs.
	ViewEndpoint string
	Project      string
	Prefix       string
}

// Store uploads identification documents to an S3 bucket.
type Store struct {
	client S3API
	opts   Options
	logger *slog.Logger
}

// NewStore creates a Store writing to opts.Bucket.
func NewStore(client S3API, opts Options, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	opts.ViewEndpoint = strings.TrimRight(opts.ViewEndpoint, "/")
	opts.Prefix = strings.Trim(opts.Prefix, "/")
	return &Store{client: client, opts: opts, logger: logger}
}

// Enabled reports whether uploads can be performed.
func (s *Store) Enabled() bool {
	return s != nil && s.client != nil && s.opts.Bucket != ""
}

// PutFile uploads the document under fileID and returns a view reference.
func (s *Store) PutFile(ctx context.Context, fileID string, document application.Document) (application.FileRef, error) {
	if !s.Enabled() {
		return application.FileRef{}, fmt.Errorf("blob: store is not configured")
	}
	if strings.TrimSpace(fileID) == "" {
		return application.FileRef{}, fmt.Errorf("blob: file id is required")
	}

	key := s.objectKey(fileID)
	contentType := document.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	input := &s3.PutObjectInput{
		Bucket:        aws.String(s.opts.Bucket),
		Key:           aws.String(key),
		Body:          bytes.NewReader(document.Content),
		ContentType:   aws.String(contentType),
		ContentLength: aws.Int64(int64(len(document.Content))),
	}
	if document.Filename != "" {
		input.Metadata = map[string]string{"filename": document.Filename}
		input.ContentDisposition = aws.String(fmt.Sprintf("inline; filename=%q", document.Filename))
	}

	if _, err := s.client.PutObject(ctx, input); err != nil {
		return application.FileRef{}, fmt.Errorf("blob: s3 put %s: %w", key, err)
	}

	s.logger.InfoContext(ctx, "stored identification document",
		"file_id", fileID,
		"s3_key", key,
		"size", len(document.Content),
	)

	return application.FileRef{ID: fileID, URL: s.ViewURL(fileID)}, nil
}

// ViewURL builds the public view URL for a stored file.
func (s *Store) ViewURL(fileID string) string {
	view := fmt.Sprintf("%s/storage/buckets/%s/files/%s/view",
		s.opts.ViewEndpoint, url.PathEscape(s.opts.Bucket), url.PathEscape(fileID))
	if s.opts.Project != "" {
		view += "?project=" + url.QueryEscape(s.opts.Project)
	}
	return view
}

func (s *Store) objectKey(fileID string) string {
	if s.opts.Prefix == "" {
		return fileID
	}
	return s.opts.Prefix + "/" + fileID
}

// ClientConfig holds the settings needed to build an S3 client.
type ClientConfig struct {
	Region          string
	Endpoint        string
	AccessKeyID     string
	SecretAccessKey string
}

// NewS3Client builds an S3 client. A custom endpoint switches to path style
// addressing so S3 compatible stores such as MinIO work.
func NewS3Client(ctx context.Context, cfg ClientConfig) (*s3.Client, error) {
	loaders := []func(*config.LoadOptions) error{config.WithRegion(cfg.Region)}
	if strings.TrimSpace(cfg.AccessKeyID) != "" && strings.TrimSpace(cfg.SecretAccessKey) != "" {
		loaders = append(loaders, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}

	awsCfg, err := config.LoadDefaultConfig(ctx, loaders...)
	if err != nil {
		return nil, fmt.Errorf("blob: load aws config: %w", err)
	}

	endpoint := strings.TrimSpace(cfg.Endpoint)
	return s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if endpoint != "" {
			o.BaseEndpoint = aws.String(endpoint)
			o.UsePathStyle = true
		}
	}), nil
}
