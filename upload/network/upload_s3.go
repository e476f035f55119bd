package network

import (
	"context"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
	"github.com/bitrise-io/go-utils/retry"
	"github.com/bitrise-io/go-utils/v2/log"
)

const numS3UploadRetries = 3

// S3UploadParams ...
type S3UploadParams struct {
	FilePath        string
	FileSize        int64
	Bucket          string
	Key             string
	Region          string
	AccessKeyID     string
	SecretAccessKey string
	// PartSize is handed to the transfer manager; zero means the manager's
	// default.
	PartSize int64
}

type s3UploadService struct {
	client   *s3.Client
	bucket   string
	key      string
	filePath string
	fileSize int64
	partSize int64
}

// IsS3URL reports whether the destination uses the s3:// scheme.
func IsS3URL(rawURL string) bool {
	return strings.HasPrefix(rawURL, "s3://")
}

// ParseS3URL splits s3://bucket/key/path into bucket and key.
func ParseS3URL(rawURL string) (bucket, key string, err error) {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return "", "", fmt.Errorf("parse s3 url: %w", err)
	}
	if parsed.Scheme != "s3" || parsed.Host == "" || strings.TrimPrefix(parsed.Path, "/") == "" {
		return "", "", fmt.Errorf("invalid s3 url: %s", rawURL)
	}
	return parsed.Host, strings.TrimPrefix(parsed.Path, "/"), nil
}

// UploadToS3 uploads the file to the bucket/key of params, skipping the
// upload when an object with the same SHA-256 checksum is already there.
// The transfer manager splits the payload into parts on its own, so the
// chunk engine is bypassed on this path.
func UploadToS3(ctx context.Context, params S3UploadParams, logger log.Logger) error {
	if params.Bucket == "" {
		return fmt.Errorf("Bucket must not be empty")
	}
	if params.Key == "" {
		return fmt.Errorf("Key must not be empty")
	}
	if params.FilePath == "" {
		return fmt.Errorf("FilePath must not be empty")
	}
	if params.FileSize == 0 {
		return fmt.Errorf("FileSize must not be empty")
	}

	cfg, err := loadAWSCredentials(
		ctx,
		params.Region,
		params.AccessKeyID,
		params.SecretAccessKey,
		logger,
	)
	if err != nil {
		return fmt.Errorf("load aws credentials: %w", err)
	}

	service := &s3UploadService{
		client:   s3.NewFromConfig(*cfg),
		bucket:   params.Bucket,
		key:      params.Key,
		filePath: params.FilePath,
		fileSize: params.FileSize,
		partSize: params.PartSize,
	}

	return service.upload(ctx, logger)
}

func (service *s3UploadService) upload(ctx context.Context, logger log.Logger) error {
	localChecksum, err := fileSHA256(service.filePath)
	if err != nil {
		return fmt.Errorf("checksum file: %w", err)
	}

	remoteChecksum, err := service.findChecksumWithRetry(ctx, logger)
	if err != nil {
		return fmt.Errorf("validate object: %w", err)
	}

	if remoteChecksum != "" && remoteChecksum == localChecksum {
		logger.Debugf("Object with the same checksum is already present, skipping upload")
		return nil
	}

	logger.Debugf("Uploading %s to s3://%s/%s", service.filePath, service.bucket, service.key)
	if err := service.putObjectWithRetry(ctx); err != nil {
		return fmt.Errorf("upload object: %w", err)
	}
	return nil
}

// findChecksumWithRetry looks up the destination object.
// If the object is present, it returns its SHA-256 checksum.
// If the object isn't present, it returns an empty string.
func (service *s3UploadService) findChecksumWithRetry(ctx context.Context, logger log.Logger) (string, error) {
	var checksum string
	err := retry.Times(numS3UploadRetries).Wait(5 * time.Second).TryWithAbort(func(attempt uint) (error, bool) {
		_, err := service.client.HeadObject(ctx, &s3.HeadObjectInput{
			Bucket: aws.String(service.bucket),
			Key:    aws.String(service.key),
		})
		if err != nil {
			var apiError smithy.APIError
			if errors.As(err, &apiError) {
				switch apiError.(type) {
				case *types.NotFound:
					// destination is empty, continue with upload
					return nil, true
				default:
					return fmt.Errorf("validating object: %w", err), false
				}
			}
		}

		attributes, err := service.client.GetObjectAttributes(ctx, &s3.GetObjectAttributesInput{
			Bucket: aws.String(service.bucket),
			Key:    aws.String(service.key),
			ObjectAttributes: []types.ObjectAttributes{
				"Checksum",
			},
		})
		if err != nil {
			return fmt.Errorf("get object attributes: %w", err), false
		}

		if attributes != nil && attributes.Checksum != nil && attributes.Checksum.ChecksumSHA256 != nil {
			decodedChecksum, err := base64.StdEncoding.DecodeString(*attributes.Checksum.ChecksumSHA256)
			if err != nil {
				return fmt.Errorf("base64 decode checksum: %w", err), true
			}

			checksum = hex.EncodeToString(decodedChecksum)
		}

		return nil, true
	})

	return checksum, err
}

func (service *s3UploadService) putObjectWithRetry(ctx context.Context) error {
	return retry.Times(numS3UploadRetries).Wait(5 * time.Second).TryWithAbort(func(attempt uint) (error, bool) {
		file, err := os.Open(service.filePath)
		if err != nil {
			return fmt.Errorf("open file: %w", err), true
		}
		defer file.Close() //nolint:errcheck

		uploader := manager.NewUploader(service.client, func(u *manager.Uploader) {
			if service.partSize > 0 {
				u.PartSize = service.partSize
			}
		})

		_, err = uploader.Upload(ctx, &s3.PutObjectInput{
			Body:              file,
			Bucket:            aws.String(service.bucket),
			Key:               aws.String(service.key),
			ContentType:       aws.String("application/octet-stream"),
			ContentLength:     aws.Int64(service.fileSize),
			ChecksumAlgorithm: types.ChecksumAlgorithmSha256,
		})
		if err != nil {
			if ctx.Err() != nil {
				// cancelled by abort or dispose, retrying is pointless
				return fmt.Errorf("upload object: %w", err), true
			}
			return fmt.Errorf("upload object: %w", err), false
		}

		return nil, true
	})
}

func loadAWSCredentials(
	ctx context.Context,
	region string,
	accessKeyID string,
	secretKey string,
	logger log.Logger,
) (*aws.Config, error) {
	if region == "" {
		return nil, fmt.Errorf("region must not be empty")
	}

	opts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(region),
	}

	if accessKeyID != "" && secretKey != "" {
		opts = append(opts,
			awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(accessKeyID, secretKey, "")))
	} else {
		logger.Debugf("AWS credentials not provided, loading them from the environment...")
	}

	cfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load config, %v", err)
	}

	return &cfg, nil
}

func fileSHA256(path string) (string, error) {
	file, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("open file: %w", err)
	}
	defer file.Close() //nolint:errcheck

	h := sha256.New()
	if _, err := io.Copy(h, file); err != nil {
		return "", fmt.Errorf("read file: %w", err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
