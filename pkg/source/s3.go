package source

import (
	"context"
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/hashicorp/go-hclog"
)

const defaultS3Region = "us-east-1"

// S3API defines the S3 operations the source uses. This allows for
// testing with mocks.
type S3API interface {
	HeadBucket(ctx context.Context, params *s3.HeadBucketInput, optFns ...func(*s3.Options)) (*s3.HeadBucketOutput, error)
	ListObjectsV2(ctx context.Context, params *s3.ListObjectsV2Input, optFns ...func(*s3.Options)) (*s3.ListObjectsV2Output, error)
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// S3Options configures an S3 source. Only Bucket is required;
// credentials fall back to the standard AWS chain and Endpoint is for
// S3-compatible stores such as MinIO.
type S3Options struct {
	Bucket       string
	Region       string
	Endpoint     string
	AccessKey    string
	SecretKey    string
	UsePathStyle bool
}

// S3 reads documents from a single S3 bucket. Paths may be bare object
// keys or s3://bucket/key URIs for the bound bucket.
type S3 struct {
	client S3API
	bucket string
	logger hclog.Logger
}

// NewS3 creates an S3 source and verifies the bucket is reachable.
func NewS3(ctx context.Context, opts S3Options, logger hclog.Logger) (*S3, error) {
	if opts.Bucket == "" {
		return nil, fmt.Errorf("s3 source requires a bucket")
	}

	awsCfg, err := loadAWSConfig(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if opts.Endpoint != "" {
			o.BaseEndpoint = aws.String(opts.Endpoint)
			o.UsePathStyle = true
		}
		if opts.UsePathStyle {
			o.UsePathStyle = true
		}
	})

	src, err := NewS3WithClient(client, opts, logger)
	if err != nil {
		return nil, err
	}
	if err := src.verifyBucket(ctx); err != nil {
		return nil, err
	}
	return src, nil
}

// NewS3WithClient creates an S3 source around an existing client or a
// mock. The bucket is not verified.
func NewS3WithClient(client S3API, opts S3Options, logger hclog.Logger) (*S3, error) {
	if opts.Bucket == "" {
		return nil, fmt.Errorf("s3 source requires a bucket")
	}
	if logger == nil {
		logger = hclog.NewNullLogger()
	}

	return &S3{
		client: client,
		bucket: opts.Bucket,
		logger: logger.Named("s3-source"),
	}, nil
}

func loadAWSConfig(ctx context.Context, opts S3Options) (aws.Config, error) {
	region := opts.Region
	if region == "" {
		region = defaultS3Region
	}

	loadOpts := []func(*config.LoadOptions) error{
		config.WithRegion(region),
	}
	if opts.AccessKey != "" && opts.SecretKey != "" {
		loadOpts = append(loadOpts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(opts.AccessKey, opts.SecretKey, ""),
		))
	}

	return config.LoadDefaultConfig(ctx, loadOpts...)
}

// Name returns the source name.
func (s *S3) Name() string {
	return "s3"
}

// List enumerates the objects under root, a key prefix or s3:// URI.
// Without recurse the delimiter keeps the listing to direct children.
// Directory markers and hidden names are skipped.
func (s *S3) List(ctx context.Context, root string, recurse bool) ([]File, error) {
	prefix, err := s.resolveKey(root)
	if err != nil {
		return nil, err
	}
	if prefix != "" && !strings.HasSuffix(prefix, "/") {
		prefix += "/"
	}

	input := &s3.ListObjectsV2Input{
		Bucket: aws.String(s.bucket),
		Prefix: aws.String(prefix),
	}
	if !recurse {
		input.Delimiter = aws.String("/")
	}

	var files []File
	paginator := s3.NewListObjectsV2Paginator(s.client, input)
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to list objects under %s: %w", prefix, err)
		}
		for _, obj := range page.Contents {
			key := aws.ToString(obj.Key)
			if strings.HasSuffix(key, "/") {
				continue
			}
			name := path.Base(key)
			if isHidden(name) {
				continue
			}
			files = append(files, File{
				Path: s3Scheme + s.bucket + "/" + key,
				Name: name,
				Size: aws.ToInt64(obj.Size),
			})
		}
	}

	s.logger.Debug("listed s3 objects", "bucket", s.bucket, "prefix", prefix, "count", len(files))
	return files, nil
}

// Fetch downloads the object at path.
func (s *S3) Fetch(ctx context.Context, p string) ([]byte, error) {
	key, err := s.resolveKey(p)
	if err != nil {
		return nil, err
	}

	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get object %s: %w", key, err)
	}
	defer out.Body.Close()

	data, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read object %s: %w", key, err)
	}
	return data, nil
}

func (s *S3) verifyBucket(ctx context.Context) error {
	_, err := s.client.HeadBucket(ctx, &s3.HeadBucketInput{
		Bucket: aws.String(s.bucket),
	})
	if err != nil {
		return fmt.Errorf("bucket %s is not accessible: %w", s.bucket, err)
	}
	return nil
}

// resolveKey turns a caller path into an object key. Full s3:// URIs
// must name the bound bucket.
func (s *S3) resolveKey(p string) (string, error) {
	bucket, key, ok := ParseS3URI(p)
	if !ok {
		return strings.TrimPrefix(p, "/"), nil
	}
	if bucket != s.bucket {
		return "", fmt.Errorf("path %s names bucket %s, not %s", p, bucket, s.bucket)
	}
	return key, nil
}
