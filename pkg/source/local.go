package source

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/hashicorp/go-hclog"
	"github.com/spf13/afero"
)

// Local reads documents from a filesystem. Production callers get the
// OS filesystem; tests can inject an in-memory one.
type Local struct {
	fs     afero.Fs
	logger hclog.Logger
}

// NewLocal creates a filesystem source. A nil fsys means the real OS
// filesystem.
func NewLocal(fsys afero.Fs, logger hclog.Logger) *Local {
	if fsys == nil {
		fsys = afero.NewOsFs()
	}
	if logger == nil {
		logger = hclog.NewNullLogger()
	}

	return &Local{
		fs:     fsys,
		logger: logger.Named("local-source"),
	}
}

// Name returns the source name.
func (l *Local) Name() string {
	return "local"
}

// List enumerates the files under root. Hidden files and hidden
// directory subtrees are skipped. When root names a single file, that
// file is returned as the only entry.
func (l *Local) List(ctx context.Context, root string, recurse bool) ([]File, error) {
	info, err := l.fs.Stat(root)
	if err != nil {
		return nil, fmt.Errorf("failed to stat %s: %w", root, err)
	}
	if !info.IsDir() {
		return []File{{Path: root, Name: info.Name(), Size: info.Size()}}, nil
	}

	var files []File
	if !recurse {
		entries, err := afero.ReadDir(l.fs, root)
		if err != nil {
			return nil, fmt.Errorf("failed to read directory %s: %w", root, err)
		}
		for _, entry := range entries {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			if entry.IsDir() || isHidden(entry.Name()) {
				continue
			}
			files = append(files, File{
				Path: filepath.Join(root, entry.Name()),
				Name: entry.Name(),
				Size: entry.Size(),
			})
		}
		return files, nil
	}

	walkErr := afero.Walk(l.fs, root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if info.IsDir() {
			// The root is always walked, even when it is hidden
			// itself. The caller asked for it by name.
			if path != root && isHidden(info.Name()) {
				return filepath.SkipDir
			}
			return nil
		}
		if isHidden(info.Name()) {
			return nil
		}
		files = append(files, File{Path: path, Name: info.Name(), Size: info.Size()})
		return nil
	})
	if walkErr != nil {
		return nil, fmt.Errorf("failed to walk %s: %w", root, walkErr)
	}

	l.logger.Debug("listed local files", "root", root, "count", len(files))
	return files, nil
}

// Fetch reads the file at path.
func (l *Local) Fetch(ctx context.Context, path string) ([]byte, error) {
	data, err := afero.ReadFile(l.fs, path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	return data, nil
}

func isHidden(name string) bool {
	return strings.HasPrefix(name, ".")
}
