package scraper

import (
	"context"
	"net/http"
	"sync/atomic"

	"github.com/rs/zerolog/log"
	"github.com/schollz/progressbar/v3"

	"github.com/wikimirror/wikimirror/internal/archive"
	"github.com/wikimirror/wikimirror/internal/kv"
	"github.com/wikimirror/wikimirror/pkg/models"
)

// downloadFiles drains one file queue with speed workers. On the first
// pass a failure spills the task into filesToRetry; on the retry pass
// failures are terminal and counted.
func (s *Scraper) downloadFiles(ctx context.Context, queue *kv.Typed[models.FileTask], spillToRetry bool) error {
	total, err := queue.Len(ctx)
	if err != nil {
		return err
	}
	if total == 0 {
		return nil
	}

	label := "files"
	if !spillToRetry {
		label = "files (retry)"
	}
	bar := progressbar.Default(int64(total), label)
	var done atomic.Int64

	err = queue.ForEach(ctx, s.opts.Speed, func(ctx context.Context, path string, task models.FileTask) error {
		if err := s.downloadOne(ctx, task); err != nil {
			if spillToRetry {
				log.Debug().Err(err).Str("path", path).Msg("File failed, queued for retry")
				if err := s.stores.FilesToRetry.Set(ctx, path, task); err != nil {
					return err
				}
			} else {
				s.status.Files.Fail()
				log.Warn().Err(err).Str("path", path).Msg("File failed permanently")
			}
		} else {
			s.status.Files.Success()
		}
		_ = bar.Add(1)
		logProgress(label, done.Add(1), int64(total))
		return nil
	})
	_ = bar.Finish()
	return err
}

func (s *Scraper) downloadOne(ctx context.Context, task models.FileTask) error {
	body, headers, err := s.opts.Downloader.DownloadContent(ctx, task.URL)
	if err != nil {
		return err
	}

	namespace := task.Namespace
	if namespace == "" {
		namespace = archive.NamespaceImage
	}
	return s.opts.Writer.AddEntry(archive.Entry{
		Namespace: namespace,
		URL:       task.ArchivePath,
		MimeType:  contentTypeOf(headers),
		Data:      body,
	})
}

func contentTypeOf(headers http.Header) string {
	if ct := headers.Get("Content-Type"); ct != "" {
		return ct
	}
	return "application/octet-stream"
}
