package source

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/beaconrag/beacon/engine/domain"
)

// s3API is the subset of *s3.Client this adapter needs, so tests can stub it.
type s3API interface {
	ListObjectsV2(ctx context.Context, in *s3.ListObjectsV2Input, opts ...func(*s3.Options)) (*s3.ListObjectsV2Output, error)
	GetObject(ctx context.Context, in *s3.GetObjectInput, opts ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// ObjectStoreAdapter lists and downloads objects under an s3:// prefix.
type ObjectStoreAdapter struct {
	client s3API
}

// NewObjectStoreAdapter loads the default AWS credential chain and builds an
// ObjectStoreAdapter.
func NewObjectStoreAdapter(ctx context.Context) (*ObjectStoreAdapter, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	return &ObjectStoreAdapter{client: s3.NewFromConfig(cfg)}, nil
}

// NewObjectStoreAdapterWithClient wraps an existing s3API, for testing.
func NewObjectStoreAdapterWithClient(client s3API) *ObjectStoreAdapter {
	return &ObjectStoreAdapter{client: client}
}

var _ Adapter = (*ObjectStoreAdapter)(nil)

// Fetch lists every object under the s3://bucket/prefix in prefixURL and
// downloads it. depth is unused; object stores are flat key spaces.
func (a *ObjectStoreAdapter) Fetch(ctx context.Context, prefixURL string, _ int) (<-chan Document, <-chan error) {
	docCh := make(chan Document, 16)
	errCh := make(chan error, 4)

	go func() {
		defer close(docCh)
		defer close(errCh)

		bucket, prefix, err := parseS3URL(prefixURL)
		if err != nil {
			errCh <- domain.Wrap(domain.CodeValidation, err, "parsing %s", prefixURL)
			return
		}

		var continuation *string
		for {
			if ctx.Err() != nil {
				return
			}
			out, err := a.client.ListObjectsV2(ctx, &s3.ListObjectsV2Input{
				Bucket:            aws.String(bucket),
				Prefix:            aws.String(prefix),
				ContinuationToken: continuation,
			})
			if err != nil {
				errCh <- domain.Wrap(domain.CodeSourceUnreachable, err, "listing s3://%s/%s", bucket, prefix)
				return
			}

			for _, obj := range out.Contents {
				if ctx.Err() != nil {
					return
				}
				key := aws.ToString(obj.Key)
				if strings.HasSuffix(key, "/") {
					continue
				}
				body, mime, err := a.getObject(ctx, bucket, key)
				if err != nil {
					select {
					case errCh <- domain.Wrap(domain.CodeSourceUnreachable, err, "getting s3://%s/%s", bucket, key):
					default:
					}
					continue
				}
				docCh <- Document{
					DisplayName: key,
					SourceURL:   fmt.Sprintf("s3://%s/%s", bucket, key),
					MimeType:    mime,
					Body:        body,
				}
			}

			if out.IsTruncated == nil || !*out.IsTruncated {
				return
			}
			continuation = out.NextContinuationToken
		}
	}()

	return docCh, errCh
}

func (a *ObjectStoreAdapter) getObject(ctx context.Context, bucket, key string) ([]byte, string, error) {
	out, err := a.client.GetObject(ctx, &s3.GetObjectInput{Bucket: aws.String(bucket), Key: aws.String(key)})
	if err != nil {
		return nil, "", err
	}
	defer out.Body.Close()
	body, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, "", err
	}
	return body, aws.ToString(out.ContentType), nil
}

// parseS3URL splits "s3://bucket/prefix/path" into bucket and prefix.
func parseS3URL(raw string) (bucket, prefix string, err error) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", "", err
	}
	if u.Scheme != "s3" && u.Scheme != "gs" {
		return "", "", fmt.Errorf("unsupported object store scheme %q", u.Scheme)
	}
	return u.Host, strings.TrimPrefix(u.Path, "/"), nil
}
