package platformsync

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"bitbucket.org/mktfocus/marketing_backend/config"
	"cloud.google.com/go/storage"
	"github.com/sirupsen/logrus"
	"google.golang.org/api/option"
)

// Archiver stores raw platform payloads for later audit and replay. Archiving
// is best-effort: a failed write is logged and never fails the sync run.
type Archiver interface {
	Archive(ctx context.Context, businessId string, platform string, runId uint, payload []byte)
}

type noopArchiver struct{}

func (noopArchiver) Archive(ctx context.Context, businessId string, platform string, runId uint, payload []byte) {
}

type gcsArchiver struct {
	bucket string

	mu     sync.Mutex
	client *storage.Client
}

// NewArchiver returns the bucket-backed archiver when RAW_PAYLOAD_BUCKET is
// configured and a no-op otherwise.
func NewArchiver() Archiver {
	bucket := config.RawPayloadBucket()
	if bucket == "" {
		return noopArchiver{}
	}
	return &gcsArchiver{bucket: bucket}
}

func (a *gcsArchiver) storageClient(ctx context.Context) (*storage.Client, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.client != nil {
		return a.client, nil
	}
	var opts []option.ClientOption
	if creds := os.Getenv("GOOGLE_APPLICATION_CREDENTIALS_JSON"); creds != "" {
		opts = append(opts, option.WithCredentialsJSON([]byte(creds)))
	}
	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, err
	}
	a.client = client
	return client, nil
}

func (a *gcsArchiver) Archive(ctx context.Context, businessId string, platform string, runId uint, payload []byte) {
	if len(payload) == 0 {
		return
	}
	client, err := a.storageClient(ctx)
	if err != nil {
		config.LogError(config.GetLogger(), "platformsync", "Archive", "Unable to create storage client", a.bucket, err)
		return
	}

	object := fmt.Sprintf("raw/%s/%s/%s/run-%d.json",
		platform, businessId, time.Now().UTC().Format("2006/01/02"), runId)
	writer := client.Bucket(a.bucket).Object(object).NewWriter(ctx)
	writer.ContentType = "application/json"
	if _, err := writer.Write(payload); err != nil {
		_ = writer.Close()
		config.LogError(config.GetLogger(), "platformsync", "Archive", "Unable to write raw payload", object, err)
		return
	}
	if err := writer.Close(); err != nil {
		config.LogError(config.GetLogger(), "platformsync", "Archive", "Unable to flush raw payload", object, err)
		return
	}
	logrus.WithFields(logrus.Fields{
		"bucket": a.bucket,
		"object": object,
	}).Debug("archived raw platform payload")
}
