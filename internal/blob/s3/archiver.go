package s3blob

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/cardclob/blackjackbot/internal/domain"
)

// ReportArchiver implements domain.ReportArchiver. Each cycle report is
// uploaded as one JSON object keyed by the cycle's start date and sequence
// number, so a day of trading lists under a single prefix.
type ReportArchiver struct {
	uploader *manager.Uploader
	bucket   string
	prefix   string
	logger   *slog.Logger
}

// NewReportArchiver builds an archiver writing under the given key prefix
// (for example "reports"). An empty prefix stores objects at the bucket root.
func NewReportArchiver(c *Client, prefix string, logger *slog.Logger) *ReportArchiver {
	return &ReportArchiver{
		uploader: manager.NewUploader(c.s3),
		bucket:   c.bucket,
		prefix:   prefix,
		logger:   logger,
	}
}

// Archive serializes the report and uploads it. The object key embeds the
// cycle start date, so retention policies can expire whole day prefixes.
func (a *ReportArchiver) Archive(ctx context.Context, r domain.CycleReport) error {
	body, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return fmt.Errorf("s3blob: encode report for cycle %d: %w", r.Cycle, err)
	}

	key := a.reportKey(r)
	_, err = a.uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(a.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(body),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		return fmt.Errorf("s3blob: archive cycle %d: %w", r.Cycle, err)
	}

	a.logger.Debug("cycle report archived",
		"cycle", r.Cycle,
		"key", key,
		"bytes", len(body))
	return nil
}

func (a *ReportArchiver) reportKey(r domain.CycleReport) string {
	day := r.StartedAt.UTC().Format("2006/01/02")
	key := fmt.Sprintf("%s/cycle-%06d.json", day, r.Cycle)
	if a.prefix != "" {
		key = a.prefix + "/" + key
	}
	return key
}

var _ domain.ReportArchiver = (*ReportArchiver)(nil)
