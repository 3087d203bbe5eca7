// Package archive stores receipts of published casts in S3-compatible
// object storage.
package archive

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/dmitrijs2005/signerrelay/internal/server/models"
)

var (
	loadDefaultAWSConfig = config.LoadDefaultConfig

	newS3ClientFromConfig = func(cfg aws.Config, optFns ...func(*s3.Options)) *s3.Client {
		return s3.NewFromConfig(cfg, optFns...)
	}

	putObject = func(c *s3.Client, ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
		return c.PutObject(ctx, in, optFns...)
	}
)

// Archiver records a published cast.
type Archiver interface {
	Archive(ctx context.Context, c *models.Cast) error
}

// Nop discards receipts. Used when no bucket is configured.
type Nop struct{}

func (Nop) Archive(context.Context, *models.Cast) error { return nil }

// S3Config holds the object storage settings.
type S3Config struct {
	Region       string
	User         string
	Password     string
	Bucket       string
	BaseEndpoint string
}

// Receipt is the JSON document written per published cast.
type Receipt struct {
	CastID      string    `json:"cast_id"`
	SignerID    string    `json:"signer_id"`
	AuthorFID   int64     `json:"author_fid"`
	ContentID   string    `json:"content_id"`
	Text        string    `json:"text"`
	PublishedAt time.Time `json:"published_at"`
}

type S3Archiver struct {
	client *s3.Client
	bucket string
}

// NewS3Archiver builds an S3 client with static credentials. An empty
// BaseEndpoint keeps the SDK's default resolution.
func NewS3Archiver(ctx context.Context, cfg S3Config) (*S3Archiver, error) {
	awsCfg, err := loadDefaultAWSConfig(ctx,
		config.WithRegion(cfg.Region),
		config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(cfg.User, cfg.Password, "")),
	)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	client := newS3ClientFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.BaseEndpoint != "" {
			o.BaseEndpoint = aws.String(cfg.BaseEndpoint)
			o.UsePathStyle = true
		}
	})

	return &S3Archiver{client: client, bucket: cfg.Bucket}, nil
}

// ReceiptKey is the object key of a cast receipt.
func ReceiptKey(c *models.Cast) string {
	d := c.UpdatedAt.UTC()
	return fmt.Sprintf("casts/%d/%02d/%02d/%s.json", d.Year(), d.Month(), d.Day(), c.ID)
}

func (a *S3Archiver) Archive(ctx context.Context, c *models.Cast) error {
	body, err := json.Marshal(Receipt{
		CastID:      c.ID,
		SignerID:    c.SignerID,
		AuthorFID:   c.AuthorUserID,
		ContentID:   c.ContentID,
		Text:        c.Text,
		PublishedAt: c.UpdatedAt,
	})
	if err != nil {
		return err
	}

	_, err = putObject(a.client, ctx, &s3.PutObjectInput{
		Bucket:      aws.String(a.bucket),
		Key:         aws.String(ReceiptKey(c)),
		Body:        bytes.NewReader(body),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		return fmt.Errorf("put receipt: %w", err)
	}
	return nil
}
