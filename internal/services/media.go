package services

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"image"
	"net/http"
	"strings"
	"time"

	appconfig "direct-chat-backend/internal/config"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/disintegration/imaging"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// Media folders in the bucket
const (
	FolderMessages = "messages"
	FolderAvatars  = "avatars"
)

var (
	errInvalidImage  = errors.New("image is not a valid base64 encoded picture")
	errImageTooLarge = errors.New("image is too large")
)

// ImageUploader stores a client-supplied image and returns its public URL
type ImageUploader interface {
	UploadImage(ctx context.Context, folder, image string) (string, error)
}

// objectPutter is the part of the S3 client the media service uses
type objectPutter interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// MediaService uploads images to the S3 asset host
type MediaService struct {
	s3Client  objectPutter
	bucket    string
	publicURL string
	timeout   time.Duration
	maxDim    int
	maxBytes  int64
}

// NewMediaService creates a new media service
func NewMediaService(ctx context.Context, awsCfg appconfig.AWSConfig, mediaCfg appconfig.MediaConfig) (*MediaService, error) {
	opts := []func(*config.LoadOptions) error{
		config.WithRegion(awsCfg.Region),
	}
	if awsCfg.AccessKey != "" {
		opts = append(opts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(awsCfg.AccessKey, awsCfg.SecretKey, ""),
		))
	}

	cfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	s3Client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		if awsCfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(awsCfg.Endpoint)
			o.UsePathStyle = true
		}
	})

	publicURL := awsCfg.PublicURL
	if publicURL == "" {
		publicURL = fmt.Sprintf("https://%s.s3.%s.amazonaws.com", awsCfg.S3Bucket, awsCfg.Region)
	}

	return newMediaService(s3Client, awsCfg.S3Bucket, publicURL, mediaCfg), nil
}

func newMediaService(client objectPutter, bucket, publicURL string, mediaCfg appconfig.MediaConfig) *MediaService {
	return &MediaService{
		s3Client:  client,
		bucket:    bucket,
		publicURL: strings.TrimRight(publicURL, "/"),
		timeout:   mediaCfg.UploadTimeout,
		maxDim:    mediaCfg.MaxDimension,
		maxBytes:  mediaCfg.MaxBytes,
	}
}

// UploadImage decodes a data URL or bare base64 image, shrinks it if needed
// and uploads it within the configured timeout
func (s *MediaService) UploadImage(ctx context.Context, folder, image string) (string, error) {
	img, err := prepareImage(image, s.maxDim, s.maxBytes)
	if err != nil {
		return "", err
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	key := fmt.Sprintf("%s/%s%s", folder, uuid.New().String(), img.ext)
	_, err = s.s3Client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(img.data),
		ContentType: aws.String(img.contentType),
	})
	if err != nil {
		return "", fmt.Errorf("failed to upload image to S3: %w", err)
	}

	log.Debug().
		Str("key", key).
		Int("bytes", len(img.data)).
		Msg("Image uploaded")

	return s.publicURL + "/" + key, nil
}

type preparedImage struct {
	data        []byte
	contentType string
	ext         string
}

// prepareImage validates the payload and re-encodes it when it exceeds maxDim
func prepareImage(raw string, maxDim int, maxBytes int64) (*preparedImage, error) {
	if i := strings.Index(raw, ","); strings.HasPrefix(raw, "data:") && i >= 0 {
		raw = raw[i+1:]
	}

	data, err := base64.StdEncoding.DecodeString(strings.TrimSpace(raw))
	if err != nil {
		return nil, errInvalidImage
	}
	if maxBytes > 0 && int64(len(data)) > maxBytes {
		return nil, errImageTooLarge
	}

	contentType := http.DetectContentType(data)
	var format imaging.Format
	var ext string
	switch contentType {
	case "image/jpeg":
		format, ext = imaging.JPEG, ".jpg"
	case "image/png":
		format, ext = imaging.PNG, ".png"
	case "image/gif":
		// animated frames would be lost on re-encode
		return &preparedImage{data: data, contentType: contentType, ext: ".gif"}, nil
	case "image/webp":
		return &preparedImage{data: data, contentType: contentType, ext: ".webp"}, nil
	default:
		return nil, errInvalidImage
	}

	src, err := imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true))
	if err != nil {
		return nil, errInvalidImage
	}
	if maxDim <= 0 || !exceeds(src.Bounds(), maxDim) {
		return &preparedImage{data: data, contentType: contentType, ext: ext}, nil
	}

	resized := imaging.Fit(src, maxDim, maxDim, imaging.Lanczos)
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, resized, format, imaging.JPEGQuality(85)); err != nil {
		return nil, fmt.Errorf("failed to encode image: %w", err)
	}
	return &preparedImage{data: buf.Bytes(), contentType: contentType, ext: ext}, nil
}

func exceeds(b image.Rectangle, maxDim int) bool {
	return b.Dx() > maxDim || b.Dy() > maxDim
}
