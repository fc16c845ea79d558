package port

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/voxrow/voxrow/internal/codec"
	"github.com/voxrow/voxrow/internal/ctxlog"
	"github.com/voxrow/voxrow/pkg/pipeline"
)

// File writes payloads to the local filesystem as JSON text.
type File struct {
	perm os.FileMode
}

func NewFile() *File {
	return &File{perm: 0o644}
}

// Load writes the JSON form of data to the destination path, creating parent
// directories, and returns the path.
func (f *File) Load(ctx context.Context, data pipeline.Data, destination pipeline.Destination) (pipeline.ResourceLocation, error) {
	dst, ok := destination.(pipeline.FileDestination)
	if !ok {
		return "", fmt.Errorf("file port cannot load to %T: %w", destination, pipeline.ErrContract)
	}
	if dst.Path == "" {
		return "", &pipeline.ConfigurationError{Msg: "file destination has an empty path"}
	}

	body, err := codec.DumpsJSON(data)
	if err != nil {
		return "", fmt.Errorf("encode %s: %w", dst.Path, err)
	}
	if dir := filepath.Dir(dst.Path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return "", &pipeline.TransportError{Op: "file mkdir", Target: dst.Path, Err: err}
		}
	}
	if err := os.WriteFile(dst.Path, body, f.perm); err != nil {
		return "", &pipeline.TransportError{Op: "file write", Target: dst.Path, Err: err}
	}
	ctxlog.FromContext(ctx).Info("File written.", "path", dst.Path, "bytes", len(body))
	return pipeline.ResourceLocation(dst.Path), nil
}
