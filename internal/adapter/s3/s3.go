package s3

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/smithy-go"
	smithyhttp "github.com/aws/smithy-go/transport/http"

	"github.com/Ning0612/Hotfolder/internal/domain"
)

// Metadata keys stored on each object
const (
	metaUploadKey   = "upload-key"
	metaWorkstation = "workstation"
	metaTimestamp   = "timestamp"
)

// Options configures the S3 destination
type Options struct {
	// Endpoint is set for S3-compatible stores (MinIO, Ceph); empty uses AWS
	Endpoint  string
	Region    string
	Bucket    string
	Prefix    string
	AccessKey string
	SecretKey string
}

// Destination puts each file as one object under bucket/prefix
type Destination struct {
	client *s3.Client
	bucket string
	prefix string
}

// New creates an S3 destination. Static credentials are used when both
// keys are set, otherwise the default AWS credential chain applies.
func New(ctx context.Context, opts Options) (*Destination, error) {
	if opts.Bucket == "" {
		return nil, fmt.Errorf("%w: s3 bucket is required", domain.ErrConfigInvalid)
	}

	loadOpts := []func(*config.LoadOptions) error{
		config.WithRegion(opts.Region),
	}
	if opts.AccessKey != "" && opts.SecretKey != "" {
		loadOpts = append(loadOpts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(opts.AccessKey, opts.SecretKey, ""),
		))
	}

	awsCfg, err := config.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if opts.Endpoint != "" {
			o.BaseEndpoint = aws.String(opts.Endpoint)
			o.UsePathStyle = true
		}
		// Bodies are streamed through hashing readers and cannot be rewound
		o.RequestChecksumCalculation = aws.RequestChecksumCalculationWhenRequired
	})

	return &Destination{
		client: client,
		bucket: opts.Bucket,
		prefix: strings.Trim(opts.Prefix, "/"),
	}, nil
}

// Name returns the destination type
func (d *Destination) Name() string {
	return "s3"
}

// Key returns the object key for filename
func (d *Destination) Key(filename string) string {
	if d.prefix == "" {
		return filename
	}
	return path.Join(d.prefix, filename)
}

// Upload streams body as one PutObject and returns the object key
func (d *Destination) Upload(ctx context.Context, payload domain.UploadPayload, body io.Reader) (string, error) {
	key := d.Key(payload.Filename)

	input := &s3.PutObjectInput{
		Bucket:        aws.String(d.bucket),
		Key:           aws.String(key),
		Body:          body,
		ContentLength: aws.Int64(payload.Size),
		Metadata: map[string]string{
			metaUploadKey:   payload.UploadKey,
			metaWorkstation: payload.Workstation,
			metaTimestamp:   payload.Timestamp.UTC().Format("2006-01-02T15:04:05.000Z"),
		},
	}
	if payload.ContentType != "" {
		input.ContentType = aws.String(payload.ContentType)
	}

	_, err := d.client.PutObject(ctx, input,
		s3.WithAPIOptions(v4.SwapComputePayloadSHA256ForUnsignedPayloadMiddleware))
	if err != nil {
		return "", uploadError(key, err)
	}

	return key, nil
}

// Close releases any resources
func (d *Destination) Close() error {
	return nil
}

func uploadError(key string, err error) error {
	var respErr *smithyhttp.ResponseError
	if errors.As(err, &respErr) {
		body := respErr.Error()
		var apiErr smithy.APIError
		if errors.As(err, &apiErr) {
			body = apiErr.ErrorCode() + ": " + apiErr.ErrorMessage()
		}
		return &domain.UploadError{StatusCode: respErr.HTTPStatusCode(), Body: body}
	}
	return fmt.Errorf("%w: put object %s: %w", domain.ErrUpload, key, err)
}
