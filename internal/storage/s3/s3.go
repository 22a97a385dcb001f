package s3store

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"path"
	"strings"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/smithy-go"
)

const defaultPresignExpiry = 15 * time.Minute

type Storage struct {
	name      string
	bucket    string
	prefix    string
	expiry    time.Duration
	client    *s3.Client
	presigner *s3.PresignClient
}

type Options struct {
	Name          string
	Bucket        string
	Region        string
	Prefix        string
	Endpoint      string
	AccessKey     string
	SecretKey     string
	PresignExpiry time.Duration
}

func New(ctx context.Context, opt Options) (*Storage, error) {
	if opt.Bucket == "" || opt.Region == "" {
		return nil, fmt.Errorf("s3: bucket and region are required")
	}

	loadOpts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(opt.Region)}
	// Without static keys the default chain (env, shared config, IMDS) applies.
	if opt.AccessKey != "" || opt.SecretKey != "" {
		creds := credentials.NewStaticCredentialsProvider(opt.AccessKey, opt.SecretKey, "")
		loadOpts = append(loadOpts, awsconfig.WithCredentialsProvider(creds))
	}
	cfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		if opt.Endpoint != "" {
			o.BaseEndpoint = aws.String(opt.Endpoint)
			o.UsePathStyle = true
		}
	})

	expiry := opt.PresignExpiry
	if expiry <= 0 {
		expiry = defaultPresignExpiry
	}
	return &Storage{
		name:      opt.Name,
		bucket:    opt.Bucket,
		prefix:    strings.Trim(opt.Prefix, "/"),
		expiry:    expiry,
		client:    client,
		presigner: s3.NewPresignClient(client),
	}, nil
}

func (s *Storage) Name() string {
	return s.name
}

func (s *Storage) fullKey(key string) string {
	if s.prefix == "" {
		return key
	}
	// S3 usually use forward slashes
	return path.Join(s.prefix, key)
}

// Put uploads data and returns an object whose URL is a presigned GET.
func (s *Storage) Put(ctx context.Context, key, contentType string, data []byte) (*Object, error) {
	fullKey := s.fullKey(key)
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(s.bucket),
		Key:           aws.String(fullKey),
		Body:          bytes.NewReader(data),
		ContentLength: aws.Int64(int64(len(data))),
		ContentType:   aws.String(contentType),
	})
	if err != nil {
		return nil, apiError("putobject", err)
	}

	req, err := s.presigner.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(fullKey),
	}, s3.WithPresignExpires(s.expiry))
	if err != nil {
		return nil, fmt.Errorf("s3 presign failed: %w", err)
	}

	return &Object{
		storage:  s,
		key:      fullKey,
		url:      req.URL,
		location: fmt.Sprintf("s3://%s/%s", s.bucket, fullKey),
	}, nil
}

func (s *Storage) delete(ctx context.Context, key string) error {
	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return apiError("deleteobject", err)
	}
	return nil
}

func apiError(op string, err error) error {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		return fmt.Errorf("s3 %s failed: %s: %s", op, apiErr.ErrorCode(), apiErr.ErrorMessage())
	}
	return fmt.Errorf("s3 %s failed: %w", op, err)
}

// Object is an uploaded archive.
type Object struct {
	storage  *Storage
	key      string
	url      string
	location string

	once sync.Once
	err  error
}

func (o *Object) URL() string { return o.url }

func (o *Object) Location() string { return o.location }

// Release deletes the object. Only the first call talks to S3.
func (o *Object) Release(ctx context.Context) error {
	o.once.Do(func() {
		o.err = o.storage.delete(ctx, o.key)
	})
	return o.err
}
