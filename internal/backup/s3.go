package backup

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"labstore-backend/internal/config"
	"labstore-backend/internal/models"
	"labstore-backend/internal/repositories"
)

// Scheduler periodically snapshots the request aggregates and the item
// registry to S3-compatible object storage. Snapshots are plain JSON and
// complement, not replace, database-level backups.
type Scheduler struct {
	cfg      *config.Config
	requests *repositories.RequestRepository
	items    *repositories.EquipmentItemRepository
}

type snapshot struct {
	TakenAt  time.Time              `json:"taken_at"`
	Requests []models.LabRequest    `json:"requests"`
	Items    []models.EquipmentItem `json:"items"`
}

func NewScheduler(cfg *config.Config, requests *repositories.RequestRepository, items *repositories.EquipmentItemRepository) *Scheduler {
	return &Scheduler{cfg: cfg, requests: requests, items: items}
}

// Run blocks, taking one snapshot per configured interval. Meant to be
// started in its own goroutine; a failed snapshot is logged and the next
// tick tries again.
func (s *Scheduler) Run(ctx context.Context) {
	interval := time.Duration(s.cfg.Backup.IntervalMinutes) * time.Minute
	log.Printf("[Backup] Snapshot scheduler running every %s", interval)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := s.Snapshot(ctx); err != nil {
				log.Printf("[Backup] Snapshot failed: %v", err)
			}
		}
	}
}

// Snapshot uploads one JSON snapshot of all requests and registry items.
func (s *Scheduler) Snapshot(ctx context.Context) error {
	requests, err := s.requests.List(ctx, "", "")
	if err != nil {
		return fmt.Errorf("listing requests: %w", err)
	}
	items, err := s.items.List(ctx, "")
	if err != nil {
		return fmt.Errorf("listing items: %w", err)
	}

	data, err := json.Marshal(snapshot{
		TakenAt:  time.Now().UTC(),
		Requests: requests,
		Items:    items,
	})
	if err != nil {
		return err
	}

	client, err := s.newClient(ctx)
	if err != nil {
		return err
	}

	key := fmt.Sprintf("snapshots/labstore-%s.json", time.Now().UTC().Format("20060102-150405"))
	_, err = client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.cfg.Backup.Bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		return fmt.Errorf("uploading %s: %w", key, err)
	}

	log.Printf("[Backup] Uploaded %s (%d requests, %d items)", key, len(requests), len(items))
	return nil
}

func (s *Scheduler) newClient(ctx context.Context) (*s3.Client, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			s.cfg.Backup.AccessKey,
			s.cfg.Backup.SecretKey,
			"",
		)),
		awsconfig.WithRegion(s.cfg.Backup.Region),
	)
	if err != nil {
		return nil, fmt.Errorf("configuring s3 client: %w", err)
	}

	return s3.NewFromConfig(cfg, func(o *s3.Options) {
		if s.cfg.Backup.Endpoint != "" {
			o.BaseEndpoint = aws.String(s.cfg.Backup.Endpoint)
		}
	}), nil
}
