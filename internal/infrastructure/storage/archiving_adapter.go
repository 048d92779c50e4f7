package storage

import (
	"context"
	"path"
	"strings"

	"github.com/mobilsoft/edire/internal/domain/integration"
	"go.uber.org/zap"
)

// PayloadArchive is the write side of a payload store
type PayloadArchive interface {
	Put(ctx context.Context, key string, data []byte) error
}

// PayloadKey returns the archive key for a downloaded document:
// {source}/{direction}/{kind}/{yyyy}/{mm}/{external id}.
func PayloadKey(sourceID string, summary integration.DocumentSummary) string {
	period := "undated"
	if !summary.Date.IsZero() {
		period = summary.Date.UTC().Format("2006/01")
	}
	return path.Join(
		keySegment(sourceID),
		keySegment(string(summary.Direction)),
		keySegment(string(summary.Kind)),
		period,
		keySegment(summary.ExternalID),
	)
}

func keySegment(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return "_"
	}
	return strings.NewReplacer("/", "_", "\\", "_", "..", "_").Replace(s)
}

// Archive wraps adapter so every downloaded payload is copied to archive.
// Archive failures are logged and never fail the download. The returned
// adapter keeps the Reauthenticator capability of the wrapped one.
func Archive(adapter integration.SourceAdapter, archive PayloadArchive, logger *zap.Logger) integration.SourceAdapter {
	if archive == nil {
		return adapter
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	base := &archivingAdapter{SourceAdapter: adapter, archive: archive, logger: logger}
	if reauth, ok := adapter.(integration.Reauthenticator); ok {
		return &reauthArchivingAdapter{archivingAdapter: base, reauth: reauth}
	}
	return base
}

type archivingAdapter struct {
	integration.SourceAdapter
	archive PayloadArchive
	logger  *zap.Logger
}

func (a *archivingAdapter) DownloadDocument(ctx context.Context, summary integration.DocumentSummary) ([]byte, error) {
	raw, err := a.SourceAdapter.DownloadDocument(ctx, summary)
	if err != nil {
		return nil, err
	}
	key := PayloadKey(a.SourceID(), summary)
	if err := a.archive.Put(ctx, key, raw); err != nil {
		a.logger.Warn("Failed to archive payload",
			zap.String("source_id", a.SourceID()),
			zap.String("external_id", summary.ExternalID),
			zap.String("key", key),
			zap.Error(err))
	}
	return raw, nil
}

type reauthArchivingAdapter struct {
	*archivingAdapter
	reauth integration.Reauthenticator
}

func (a *reauthArchivingAdapter) RefreshAuth(ctx context.Context) error {
	return a.reauth.RefreshAuth(ctx)
}
