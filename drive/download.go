package drive

import (
	"context"
	"fmt"
	"net/url"

	"github.com/bitrise-io/go-deta/transport"
	"github.com/melbahja/got"
)

// Download writes the named file to dest on the local file system.
func (d *Drive) Download(ctx context.Context, name, dest string) error {
	downloadURL := d.client.URL(downloadPath, url.Values{"name": []string{name}})

	d.logger.Debugf("Downloading %s to %s", name, dest)

	downloader := got.New()
	downloader.Client = d.client.StandardClient()

	download := got.NewDownload(ctx, downloadURL, dest)
	download.Client = downloader.Client
	download.Header = []got.GotHeader{
		{Key: transport.APIKeyHeader, Value: d.client.APIKey()},
	}

	if err := downloader.Do(download); err != nil {
		return fmt.Errorf("download %s: %w", name, err)
	}

	return nil
}
