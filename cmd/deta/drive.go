package main

import (
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"

	"github.com/bitrise-io/go-deta/compression"
	"github.com/bitrise-io/go-deta/drive"
	"github.com/bmatcuk/doublestar/v4"
	"github.com/docker/go-units"
	"github.com/spf13/cobra"
)

type putResult struct {
	Name string `json:"name"`
	Size int    `json:"size"`
}

func newDriveCmd(a *app) *cobra.Command {
	var driveName string

	driveCmd := &cobra.Command{
		Use:   "drive",
		Short: "Manage files of a drive",
	}
	driveCmd.PersistentFlags().StringVar(&driveName, "drive", "", "drive name (default from config)")

	open := func() (*drive.Drive, error) {
		return drive.New(a.cfg.DriveOptions(driveName, a.logger))
	}

	driveCmd.AddCommand(
		newDrivePutCmd(a, open),
		newDriveGetCmd(a, open),
		newDriveListCmd(a, open),
		newDriveRemoveCmd(a, open),
		newDriveSyncCmd(a, open),
		newDriveBackupCmd(a, open),
		newDriveRestoreCmd(a, open),
	)

	return driveCmd
}

type driveOpener func() (*drive.Drive, error)

func newDrivePutCmd(a *app, open driveOpener) *cobra.Command {
	var contentType string
	var compress bool

	cmd := &cobra.Command{
		Use:   "put NAME FILE",
		Short: "Upload a local file",
		Args:  cobra.ExactArgs(2),
		RunE: a.runE(func(cmd *cobra.Command, args []string) error {
			name, file := args[0], args[1]

			d, err := open()
			if err != nil {
				return err
			}

			data, err := os.ReadFile(file)
			if err != nil {
				return fmt.Errorf("read %s: %w", file, err)
			}

			if compress {
				if data, err = compression.Compress(data); err != nil {
					return err
				}
				if !compression.IsCompressed(name) {
					name += compression.Extension
				}
			}

			if err := d.Put(cmd.Context(), name, data, drive.PutOptions{ContentType: contentType}); err != nil {
				return err
			}
			a.logger.Infof("Uploaded %s (%s)", name, units.HumanSize(float64(len(data))))

			return printJSON(cmd, putResult{Name: name, Size: len(data)})
		}),
	}
	cmd.Flags().StringVar(&contentType, "content-type", "", "content type of the file (default "+drive.DefaultContentType+")")
	cmd.Flags().BoolVar(&compress, "zstd", false, "zstd-compress the file before uploading")

	return cmd
}

func newDriveGetCmd(a *app, open driveOpener) *cobra.Command {
	var output string
	var decompress bool

	cmd := &cobra.Command{
		Use:   "get NAME",
		Short: "Download a file",
		Long:  `Downloads a file to the path given with --output, or to stdout.`,
		Args:  cobra.ExactArgs(1),
		RunE: a.runE(func(cmd *cobra.Command, args []string) error {
			name := args[0]

			d, err := open()
			if err != nil {
				return err
			}

			if output != "" && !decompress {
				return d.Download(cmd.Context(), name, output)
			}

			data, err := d.Get(cmd.Context(), name)
			if err != nil {
				return err
			}
			if decompress {
				if data, err = compression.Decompress(data); err != nil {
					return err
				}
			}

			if output == "" {
				_, err = cmd.OutOrStdout().Write(data)
				return err
			}
			return os.WriteFile(output, data, 0644)
		}),
	}
	cmd.Flags().StringVarP(&output, "output", "o", "", "write the file to this path")
	cmd.Flags().BoolVar(&decompress, "zstd", false, "zstd-decompress the downloaded file")

	return cmd
}

func newDriveListCmd(a *app, open driveOpener) *cobra.Command {
	var opts drive.ListOptions

	cmd := &cobra.Command{
		Use:   "ls",
		Short: "List file names",
		Args:  cobra.NoArgs,
		RunE: a.runE(func(cmd *cobra.Command, args []string) error {
			d, err := open()
			if err != nil {
				return err
			}

			resp, err := d.List(cmd.Context(), opts)
			if err != nil {
				return err
			}
			return printJSON(cmd, resp)
		}),
	}
	cmd.Flags().StringVar(&opts.Prefix, "prefix", "", "only list names with this prefix")
	cmd.Flags().StringVar(&opts.Last, "last", "", "list names after this one")
	cmd.Flags().IntVar(&opts.Limit, "limit", 0, "maximum number of names")

	return cmd
}

func newDriveRemoveCmd(a *app, open driveOpener) *cobra.Command {
	return &cobra.Command{
		Use:   "rm NAME...",
		Short: "Delete files",
		Args:  cobra.MinimumNArgs(1),
		RunE: a.runE(func(cmd *cobra.Command, args []string) error {
			d, err := open()
			if err != nil {
				return err
			}

			result := drive.DeleteResponse{Deleted: []string{}, Failed: map[string]string{}}
			for start := 0; start < len(args); start += drive.MaxDeleteNames {
				end := start + drive.MaxDeleteNames
				if end > len(args) {
					end = len(args)
				}

				resp, err := d.Delete(cmd.Context(), args[start:end]...)
				if err != nil {
					return err
				}
				result.Deleted = append(result.Deleted, resp.Deleted...)
				for name, reason := range resp.Failed {
					result.Failed[name] = reason
				}
			}

			return printJSON(cmd, result)
		}),
	}
}

func newDriveSyncCmd(a *app, open driveOpener) *cobra.Command {
	var pattern string
	var prefix string

	cmd := &cobra.Command{
		Use:   "sync DIR",
		Short: "Upload the files of a directory",
		Long:  `Uploads every file of DIR matching --pattern. File names are slash separated paths relative to DIR.`,
		Args:  cobra.ExactArgs(1),
		RunE: a.runE(func(cmd *cobra.Command, args []string) error {
			dir := args[0]

			d, err := open()
			if err != nil {
				return err
			}

			fsys := os.DirFS(dir)
			matches, err := doublestar.Glob(fsys, pattern, doublestar.WithNoFollow())
			if err != nil {
				return fmt.Errorf("match %s in %s: %w", pattern, dir, err)
			}

			results := []putResult{}
			for _, match := range matches {
				info, err := fs.Stat(fsys, match)
				if err != nil {
					return err
				}
				if !info.Mode().IsRegular() {
					continue
				}

				data, err := os.ReadFile(filepath.Join(dir, filepath.FromSlash(match)))
				if err != nil {
					return fmt.Errorf("read %s: %w", match, err)
				}

				name := path.Join(prefix, match)
				if err := d.Put(cmd.Context(), name, data, drive.PutOptions{}); err != nil {
					return err
				}
				a.logger.Debugf("Uploaded %s (%s)", name, units.HumanSize(float64(len(data))))
				results = append(results, putResult{Name: name, Size: len(data)})
			}
			a.logger.Infof("Uploaded %d file(s) from %s", len(results), dir)

			return printJSON(cmd, results)
		}),
	}
	cmd.Flags().StringVar(&pattern, "pattern", "**/*", "glob of the files to upload")
	cmd.Flags().StringVar(&prefix, "prefix", "", "prefix of the uploaded file names")

	return cmd
}

func newDriveBackupCmd(a *app, open driveOpener) *cobra.Command {
	return &cobra.Command{
		Use:   "backup DIR NAME",
		Short: "Upload a directory as a tar.zst archive",
		Args:  cobra.ExactArgs(2),
		RunE: a.runE(func(cmd *cobra.Command, args []string) error {
			dir, name := args[0], args[1]

			if compression.IsEmptyDir(dir) {
				return fmt.Errorf("%s is empty or does not exist", dir)
			}

			d, err := open()
			if err != nil {
				return err
			}

			archive, err := compression.Archive(dir)
			if err != nil {
				return err
			}
			a.logger.Printf("Archive size: %s", units.HumanSizeWithPrecision(float64(len(archive)), 3))

			if err := d.Put(cmd.Context(), name, archive, drive.PutOptions{ContentType: "application/zstd"}); err != nil {
				return err
			}

			return printJSON(cmd, putResult{Name: name, Size: len(archive)})
		}),
	}
}

func newDriveRestoreCmd(a *app, open driveOpener) *cobra.Command {
	return &cobra.Command{
		Use:   "restore NAME DIR",
		Short: "Extract an archive created by backup",
		Args:  cobra.ExactArgs(2),
		RunE: a.runE(func(cmd *cobra.Command, args []string) error {
			name, dir := args[0], args[1]

			d, err := open()
			if err != nil {
				return err
			}

			archive, err := d.Get(cmd.Context(), name)
			if err != nil {
				return err
			}

			if err := compression.Extract(archive, dir); err != nil {
				return err
			}
			a.logger.Infof("Restored %s to %s", name, dir)

			return nil
		}),
	}
}
