package terminal

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/olekukonko/tablewriter"
	"github.com/olekukonko/tablewriter/tw"
	"github.com/spf13/afero"

	"ftpmirror/transport"
)

// FileInfo represents a file or directory entry
type FileInfo struct {
	Name      string
	Type      string
	Size      uint64
	Modified  time.Time
	IsDir     bool
	IsSymlink bool
}

// TableFormatter renders directory listings as tables.
type TableFormatter struct {
	out   io.Writer
	table *tablewriter.Table
}

// NewTableFormatter creates a formatter writing to out.
func NewTableFormatter(out io.Writer) *TableFormatter {
	table := tablewriter.NewWriter(out)
	table.Header("Name", "Type", "Size", "Modified")
	table.Options(
		tablewriter.WithRendition(tw.Rendition{Borders: tw.Border{Left: tw.Pending, Right: tw.Pending, Top: tw.Pending, Bottom: tw.Pending}}),
		tablewriter.WithPadding(tw.Padding{Left: "\t", Right: "\t"}),
	)
	table.Configure(func(cfg *tablewriter.Config) {
		cfg.MaxWidth = 0
		cfg.Header = tw.CellConfig{
			Alignment: tw.CellAlignment{
				Global: tw.AlignLeft,
			},
		}
		cfg.Row = tw.CellConfig{
			Alignment: tw.CellAlignment{
				Global: tw.AlignLeft,
			},
		}
		cfg.Behavior = tw.Behavior{}
	})

	return &TableFormatter{out: out, table: table}
}

// FormatLocalDirectory formats a local directory listing
func (tf *TableFormatter) FormatLocalDirectory(fs afero.Fs, path string) error {
	entries, err := afero.ReadDir(fs, path)
	if err != nil {
		return err
	}

	files := make([]FileInfo, 0, len(entries))
	for _, info := range entries {
		symlink := info.Mode()&os.ModeSymlink != 0
		fileType := "file"
		switch {
		case info.IsDir():
			fileType = "dir"
		case symlink:
			fileType = "link"
		}

		files = append(files, FileInfo{
			Name:      info.Name(),
			Type:      fileType,
			Size:      uint64(info.Size()),
			Modified:  info.ModTime(),
			IsDir:     info.IsDir(),
			IsSymlink: symlink,
		})
	}

	return tf.renderTable(files)
}

// FormatRemoteDirectory formats a LIST result.
func (tf *TableFormatter) FormatRemoteDirectory(entries []transport.Entry) error {
	files := make([]FileInfo, 0, len(entries))
	for _, entry := range entries {
		fileType := "file"
		if entry.IsDir {
			fileType = "dir"
		}
		files = append(files, FileInfo{
			Name:     entry.Name,
			Type:     fileType,
			Size:     entry.Size,
			Modified: entry.Time,
			IsDir:    entry.IsDir,
		})
	}

	return tf.renderTable(files)
}

func (tf *TableFormatter) renderTable(files []FileInfo) error {
	if len(files) == 0 {
		_, err := fmt.Fprintln(tf.out, "Directory is empty")
		return err
	}

	tf.table.Reset()
	tf.table.Header("Name", "Type", "Size", "Modified")

	for _, file := range files {
		size := humanize.IBytes(file.Size)
		if file.IsDir {
			size = "-"
		}

		name := file.Name
		if file.IsDir {
			name += "/"
		} else if file.IsSymlink {
			name += "@"
		}
		if len(name) > 50 {
			name = name[:47] + "..."
		}

		fileType := file.Type
		if !file.IsDir && !file.IsSymlink {
			if ext := filepath.Ext(file.Name); ext != "" {
				fileType = strings.ToUpper(strings.TrimPrefix(ext, "."))
			}
		}

		if err := tf.table.Append([]string{name, fileType, size, file.Modified.Format("Jan 02 15:04")}); err != nil {
			return err
		}
	}

	return tf.table.Render()
}
