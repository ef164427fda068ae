// Package s3 provides the 's3' unit: file transfer against pre-signed URLs,
// so no cloud credentials ever enter the workflow engine.
package s3

import (
	"context"
	"fmt"
	"io"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/vk/flowgridgo/internal/ctxlog"
	"github.com/vk/flowgridgo/internal/ctyutil"
	"github.com/vk/flowgridgo/internal/registry"
)

// Module implements the registry.Module interface for this package.
type Module struct{}

// httpClient is shared across executions to reuse TCP connections.
var httpClient = &http.Client{}

func handleUpload(ctx context.Context, taskID, sourcePath, uploadURL string) (any, error) {
	logger := ctxlog.FromContext(ctx).With("task", taskID, "action", "upload")

	file, err := os.Open(sourcePath)
	if err != nil {
		return nil, fmt.Errorf("opening source file '%s': %w", sourcePath, err)
	}
	defer file.Close()

	stat, err := file.Stat()
	if err != nil {
		return nil, fmt.Errorf("reading file stats for '%s': %w", sourcePath, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPut, uploadURL, file)
	if err != nil {
		return nil, fmt.Errorf("building upload request: %w", err)
	}

	contentType := mime.TypeByExtension(filepath.Ext(sourcePath))
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	req.Header.Set("Content-Type", contentType)
	req.ContentLength = stat.Size()

	logger.Info("Uploading file.", "source", sourcePath, "size", stat.Size(), "contentType", contentType)

	resp, err := httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("executing upload request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("upload failed with status: %s", resp.Status)
	}

	logger.Info("Upload finished.", "status", resp.Status)
	return map[string]any{"success": true, "status": resp.Status}, nil
}

func handleDownload(ctx context.Context, taskID, downloadURL, destPath string) (any, error) {
	logger := ctxlog.FromContext(ctx).With("task", taskID, "action", "download")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, downloadURL, nil)
	if err != nil {
		return nil, fmt.Errorf("building download request: %w", err)
	}

	resp, err := httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("executing download request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("download failed with status: %s", resp.Status)
	}

	file, err := os.Create(destPath)
	if err != nil {
		return nil, fmt.Errorf("creating destination file '%s': %w", destPath, err)
	}
	defer file.Close()

	written, err := io.Copy(file, resp.Body)
	if err != nil {
		return nil, fmt.Errorf("writing downloaded content: %w", err)
	}

	logger.Info("Download finished.", "dest", destPath, "size", written)
	return map[string]any{"success": true, "size": written, "dest": destPath}, nil
}

func onRunS3(ctx context.Context, call registry.Call) (any, error) {
	action, err := ctyutil.StringArg(call.Args, "action")
	if err != nil {
		return nil, err
	}

	switch strings.ToLower(action) {
	case "upload":
		source, err := ctyutil.StringArg(call.Args, "source_path")
		if err != nil {
			return nil, err
		}
		url, err := ctyutil.StringArg(call.Args, "upload_url")
		if err != nil {
			return nil, err
		}
		return handleUpload(ctx, call.TaskID, source, url)
	case "download":
		url, err := ctyutil.StringArg(call.Args, "download_url")
		if err != nil {
			return nil, err
		}
		dest, err := ctyutil.StringArg(call.Args, "dest_path")
		if err != nil {
			return nil, err
		}
		return handleDownload(ctx, call.TaskID, url, dest)
	default:
		return nil, fmt.Errorf("unknown s3 action: '%s'", action)
	}
}

// Register registers the handler with the engine.
func (m *Module) Register(r *registry.Registry) {
	r.RegisterHandler("s3", onRunS3)
}
