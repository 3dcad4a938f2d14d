package fetch

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"clgen/pkg/session"
)

// FilesystemSource imports content files from local files and directories.
// Directories are walked recursively.
type FilesystemSource struct{}

func (f *FilesystemSource) Name() string {
	return "filesystem"
}

func (f *FilesystemSource) Run(ctx context.Context, target string, _ *session.Session) <-chan Result {
	results := make(chan Result)

	go func() {
		defer close(results)

		info, err := os.Stat(target)
		if err != nil {
			results <- Result{Source: f.Name(), Error: fmt.Errorf("cannot read %s: %w", target, err)}
			return
		}

		emit := func(path string) {
			data, err := os.ReadFile(path)
			if err != nil {
				select {
				case results <- Result{Source: f.Name(), Error: fmt.Errorf("cannot read %s: %w", path, err)}:
				case <-ctx.Done():
				}
				return
			}
			select {
			case results <- Result{Source: f.Name(), Path: path, Contents: string(data)}:
			case <-ctx.Done():
			}
		}

		if !info.IsDir() {
			emit(target)
			return
		}

		_ = filepath.WalkDir(target, func(path string, entry fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if entry.IsDir() {
				return nil
			}
			emit(path)
			return nil
		})
	}()

	return results
}
