// Package media re-hosts selected cover images in object storage so
// published records never depend on third-party image URLs staying alive.
package media

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"path"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awshttp "github.com/aws/aws-sdk-go-v2/aws/transport/http"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/smithy-go"

	"newsmith/types"
)

// Config contains minimal configuration for the S3-backed image host.
// Values fall back to the standard AWS config/credential chain.
type Config struct {
	Bucket string
	Prefix string
	// Region to use for requests, e.g. "us-east-1". If empty, AWS defaults apply.
	Region string
	// UsePathStyle forces path-style addressing (useful for S3-compatible providers).
	UsePathStyle bool
	// PublicBaseURL overrides the derived https://<bucket>.s3.amazonaws.com base.
	PublicBaseURL string
}

// Host uploads images to S3 and returns their public URLs.
type Host struct {
	client     *s3.Client
	cfg        Config
	httpClient *http.Client
}

// NewHost creates an image host using the default AWS configuration chain.
func NewHost(ctx context.Context, cfg Config) (*Host, error) {
	if cfg.Bucket == "" {
		return nil, errors.New("bucket is required")
	}

	var loadOpts []func(*awsconfig.LoadOptions) error
	if cfg.Region != "" {
		loadOpts = append(loadOpts, awsconfig.WithRegion(cfg.Region))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, err
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.UsePathStyle = cfg.UsePathStyle
	})
	return &Host{
		client:     client,
		cfg:        cfg,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}, nil
}

// Rehost downloads the image at srcURL and uploads it under a stable key
// derived from the URL. When the URL's own extension fixes the key up front,
// an image that is already hosted is returned without downloading it again.
func (h *Host) Rehost(ctx context.Context, srcURL string) (string, error) {
	if ext := usableExt(srcURL); ext != "" {
		key := h.cfg.Prefix + types.GenerateID(srcURL) + ext
		if ok, err := h.Exists(ctx, key); err == nil && ok {
			return h.publicURL(key), nil
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srcURL, nil)
	if err != nil {
		return "", fmt.Errorf("create download request: %w", err)
	}

	resp, err := h.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("download image: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("image download returned status %d", resp.StatusCode)
	}

	contentType := resp.Header.Get("Content-Type")
	if !strings.HasPrefix(contentType, "image/") {
		return "", fmt.Errorf("unexpected content type %q", contentType)
	}

	key := h.keyFor(srcURL, contentType)
	_, err = h.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:       aws.String(h.cfg.Bucket),
		Key:          aws.String(key),
		Body:         resp.Body,
		ContentType:  aws.String(contentType),
		CacheControl: aws.String("public, max-age=31536000"),
	})
	if err != nil {
		return "", fmt.Errorf("upload image: %w", err)
	}

	return h.publicURL(key), nil
}

// Exists reports whether an object is already present at bucket/key.
func (h *Host) Exists(ctx context.Context, key string) (bool, error) {
	_, err := h.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(h.cfg.Bucket),
		Key:    aws.String(key),
	})
	if err == nil {
		return true, nil
	}

	var respErr *awshttp.ResponseError
	if errors.As(err, &respErr) && respErr.HTTPStatusCode() == 404 {
		return false, nil
	}
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) && apiErr.ErrorCode() == "NotFound" {
		return false, nil
	}
	return false, err
}

func usableExt(srcURL string) string {
	ext := path.Ext(srcURL)
	if ext == "" || len(ext) > 5 {
		return ""
	}
	return ext
}

func (h *Host) keyFor(srcURL, contentType string) string {
	ext := usableExt(srcURL)
	if ext == "" {
		switch contentType {
		case "image/png":
			ext = ".png"
		case "image/webp":
			ext = ".webp"
		default:
			ext = ".jpg"
		}
	}
	return h.cfg.Prefix + types.GenerateID(srcURL) + ext
}

func (h *Host) publicURL(key string) string {
	if h.cfg.PublicBaseURL != "" {
		return strings.TrimSuffix(h.cfg.PublicBaseURL, "/") + "/" + key
	}
	return fmt.Sprintf("https://%s.s3.amazonaws.com/%s", h.cfg.Bucket, key)
}
