package artifact

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"

	"github.com/xiaot623/gogo/kernel/internal/domain"
)

// S3API is the subset of the S3 client used by S3Store.
type S3API interface {
	GetObject(ctx context.Context, in *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	HeadObject(ctx context.Context, in *s3.HeadObjectInput, optFns ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
	ListObjectsV2(ctx context.Context, in *s3.ListObjectsV2Input, optFns ...func(*s3.Options)) (*s3.ListObjectsV2Output, error)
}

// S3Config holds configuration for S3Store.
type S3Config struct {
	Bucket   string
	Region   string
	Endpoint string // custom endpoint for MinIO / LocalStack
	Prefix   string
}

// S3Store keeps artifacts as objects <prefix><kind>/<artifact_id>.json.
// First writes use If-None-Match so two kernels racing on a ref cannot
// both win.
type S3Store struct {
	client S3API
	bucket string
	prefix string
}

// NewS3Store creates an S3-backed store using the default AWS credential chain.
func NewS3Store(ctx context.Context, cfg S3Config) (*S3Store, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("%w: s3 bucket is required", domain.ErrValidation)
	}
	awsCfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(cfg.Region))
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}
	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
	})
	return NewS3StoreWithClient(client, cfg.Bucket, cfg.Prefix), nil
}

// NewS3StoreWithClient wraps an existing client.
func NewS3StoreWithClient(client S3API, bucket, prefix string) *S3Store {
	return &S3Store{client: client, bucket: bucket, prefix: prefix}
}

func (s *S3Store) key(ref domain.ArtifactRef) string {
	return s.prefix + ref.Kind + "/" + ref.ArtifactID + ".json"
}

func (s *S3Store) Put(ctx context.Context, ref domain.ArtifactRef, env *domain.ArtifactEnvelope) error {
	data, err := encode(ref, env)
	if err != nil {
		return err
	}

	existing, err := s.read(ctx, ref)
	if err == nil {
		return sameContent(ref, existing, data)
	}
	if !errors.Is(err, domain.ErrNotFound) {
		return err
	}

	_, err = s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(s.key(ref)),
		Body:        bytes.NewReader(data),
		ContentType: aws.String("application/json"),
		IfNoneMatch: aws.String("*"),
	})
	if err == nil {
		return nil
	}
	if isPreconditionFailed(err) {
		// Another writer created the object first.
		existing, rerr := s.read(ctx, ref)
		if rerr != nil {
			return rerr
		}
		return sameContent(ref, existing, data)
	}
	return fmt.Errorf("s3 put failed for %s: %w", ref.Key(), err)
}

func (s *S3Store) read(ctx context.Context, ref domain.ArtifactRef) ([]byte, error) {
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.key(ref)),
	})
	if err != nil {
		var nsk *types.NoSuchKey
		if errors.As(err, &nsk) {
			return nil, notFound(ref)
		}
		return nil, fmt.Errorf("s3 get failed for %s: %w", ref.Key(), err)
	}
	defer func() { _ = out.Body.Close() }()
	return io.ReadAll(out.Body)
}

func (s *S3Store) Get(ctx context.Context, ref domain.ArtifactRef) (*domain.ArtifactEnvelope, error) {
	if err := ref.Validate(); err != nil {
		return nil, err
	}
	data, err := s.read(ctx, ref)
	if err != nil {
		return nil, err
	}
	return decode(data)
}

func (s *S3Store) Exists(ctx context.Context, ref domain.ArtifactRef) (bool, error) {
	if err := ref.Validate(); err != nil {
		return false, err
	}
	_, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.key(ref)),
	})
	if err == nil {
		return true, nil
	}
	var nf *types.NotFound
	if errors.As(err, &nf) {
		return false, nil
	}
	return false, fmt.Errorf("s3 head failed for %s: %w", ref.Key(), err)
}

func (s *S3Store) List(ctx context.Context, kind string, limit int) ([]domain.ArtifactRef, error) {
	prefix := s.prefix + kind + "/"
	type item struct {
		id       string
		modified time.Time
	}
	var items []item

	p := s3.NewListObjectsV2Paginator(s.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(s.bucket),
		Prefix: aws.String(prefix),
	})
	for p.HasMorePages() {
		page, err := p.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("s3 list failed for %s: %w", kind, err)
		}
		for _, obj := range page.Contents {
			name := strings.TrimPrefix(aws.ToString(obj.Key), prefix)
			if strings.Contains(name, "/") || !strings.HasSuffix(name, ".json") {
				continue
			}
			items = append(items, item{id: strings.TrimSuffix(name, ".json"), modified: aws.ToTime(obj.LastModified)})
		}
	}

	sort.Slice(items, func(i, j int) bool {
		if items[i].modified.Equal(items[j].modified) {
			return items[i].id > items[j].id
		}
		return items[i].modified.After(items[j].modified)
	})
	if limit > 0 && len(items) > limit {
		items = items[:limit]
	}
	refs := make([]domain.ArtifactRef, len(items))
	for i, it := range items {
		refs[i] = domain.ArtifactRef{Kind: kind, ArtifactID: it.id}
	}
	return refs, nil
}

func isPreconditionFailed(err error) bool {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		return apiErr.ErrorCode() == "PreconditionFailed" || apiErr.ErrorCode() == "ConditionalRequestConflict"
	}
	return false
}
