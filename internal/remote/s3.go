package remote

import (
	"context"
	"fmt"
	"os"
	"path"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"saveswap/internal/config"
	"saveswap/internal/swap"
)

// S3Remote mirrors archives into an S3-compatible bucket under
// <prefix>/<archive name>.
type S3Remote struct {
	client   *s3.Client
	uploader *manager.Uploader
	bucket   string
	prefix   string
}

var _ swap.Remote = (*S3Remote)(nil)

// NewS3Remote creates an S3 remote from cfg. Static credentials are used when
// both keys are set; otherwise the default AWS credential chain applies.
func NewS3Remote(ctx context.Context, cfg config.S3Config) (*S3Remote, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("%w: s3 bucket is required", swap.ErrNotConfigured)
	}

	var opts []func(*awsconfig.LoadOptions) error
	if cfg.Region != "" {
		opts = append(opts, awsconfig.WithRegion(cfg.Region))
	}
	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("loading AWS config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
		if cfg.UsePathStyle {
			o.UsePathStyle = true
		}
	})

	return &S3Remote{
		client:   client,
		uploader: manager.NewUploader(client),
		bucket:   cfg.Bucket,
		prefix:   strings.Trim(cfg.Prefix, "/"),
	}, nil
}

func (r *S3Remote) Name() string {
	if r.prefix == "" {
		return "s3://" + r.bucket
	}
	return "s3://" + r.bucket + "/" + r.prefix
}

func (r *S3Remote) Configured() bool { return r.bucket != "" }

func (r *S3Remote) key(name string) string {
	if r.prefix == "" {
		return name
	}
	return path.Join(r.prefix, name)
}

func (r *S3Remote) listPrefix() string {
	if r.prefix == "" {
		return ""
	}
	return r.prefix + "/"
}

// TestConnection checks that the bucket exists and the credentials can reach it.
func (r *S3Remote) TestConnection(ctx context.Context) (string, error) {
	if _, err := r.client.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(r.bucket)}); err != nil {
		return "", fmt.Errorf("%w: bucket %s: %w", swap.ErrConnectionFailed, r.bucket, err)
	}
	return fmt.Sprintf("bucket %s is reachable", r.bucket), nil
}

// Upload stores the archive with the multipart upload manager.
func (r *S3Remote) Upload(ctx context.Context, localPath string) (*swap.SyncResult, error) {
	start := time.Now()
	f, err := os.Open(localPath)
	if err != nil {
		return nil, fmt.Errorf("%w: opening %s: %w", swap.ErrTransferFailed, localPath, err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", swap.ErrTransferFailed, err)
	}

	name := path.Base(localPath)
	key := r.key(name)
	if _, err := r.uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket: aws.String(r.bucket),
		Key:    aws.String(key),
		Body:   f,
	}); err != nil {
		return nil, fmt.Errorf("%w: uploading %s: %w", swap.ErrTransferFailed, key, err)
	}

	return &swap.SyncResult{
		Name:       name,
		LocalPath:  localPath,
		RemotePath: "s3://" + r.bucket + "/" + key,
		Bytes:      info.Size(),
		Duration:   time.Since(start),
	}, nil
}

func (r *S3Remote) Download(ctx context.Context, remoteName, localDir string) (*swap.SyncResult, error) {
	if err := checkName(remoteName); err != nil {
		return nil, err
	}
	start := time.Now()
	key := r.key(remoteName)

	out, err := r.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(r.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, fmt.Errorf("%w: downloading %s: %w", swap.ErrTransferFailed, key, err)
	}
	defer out.Body.Close()

	dest, n, err := writeLocal(ctx, localDir, remoteName, out.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", swap.ErrTransferFailed, err)
	}
	return &swap.SyncResult{
		Name:       remoteName,
		LocalPath:  dest,
		RemotePath: "s3://" + r.bucket + "/" + key,
		Bytes:      n,
		Duration:   time.Since(start),
	}, nil
}

// List returns the archives directly under the prefix, newest first.
func (r *S3Remote) List(ctx context.Context) ([]swap.RemoteEntry, error) {
	prefix := r.listPrefix()
	paginator := s3.NewListObjectsV2Paginator(r.client, &s3.ListObjectsV2Input{
		Bucket:    aws.String(r.bucket),
		Prefix:    aws.String(prefix),
		Delimiter: aws.String("/"),
	})

	var entries []swap.RemoteEntry
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("%w: listing %s: %w", swap.ErrTransferFailed, r.Name(), err)
		}
		for _, obj := range page.Contents {
			if obj.Key == nil {
				continue
			}
			name := strings.TrimPrefix(*obj.Key, prefix)
			if !swap.IsArchiveName(name) {
				continue
			}
			entry := swap.RemoteEntry{Name: name}
			if obj.Size != nil {
				entry.Size = *obj.Size
			}
			if obj.LastModified != nil {
				entry.ModifiedAt = *obj.LastModified
			}
			entries = append(entries, entry)
		}
	}
	sortNewestFirst(entries)
	return entries, nil
}
