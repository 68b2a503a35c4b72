package client

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"

	"github.com/marmos91/ftpplus/internal/logger"
	"github.com/marmos91/ftpplus/internal/protocol"
	"github.com/marmos91/ftpplus/pkg/ftperr"
	"github.com/marmos91/ftpplus/pkg/validation"
)

// Result is the outcome of one Execute call, ready to be rendered.
type Result struct {
	// OK is true when the server answered with a success status.
	OK bool

	Command protocol.Command
	Dialect protocol.Dialect

	// FileName is the base name sent to the server, if any.
	FileName string

	// Message is the server's message in the request dialect.
	Message string

	// Names lists the stored files (List only).
	Names []string

	// Saved holds the local paths written by Download and DownloadAll,
	// sorted.
	Saved []string

	// Bytes is the total payload transferred in either direction.
	Bytes int64
}

// Execute runs one command end to end.
//
// command is a wire token in either dialect and selects the dialect of the
// exchange. fileName names the remote file. For Upload, localPath is the
// file to read and defaults to fileName; only its base name is sent. For
// Download, localPath is an optional destination and defaults to
// DownloadDir/fileName. DownloadAll always writes into DownloadDir.
//
// Local failures (unknown command, missing argument, a local file that does
// not exist or fails validation, connection exhaustion) are returned as
// errors. A server-side failure is a Result with OK false.
func (c *Client) Execute(ctx context.Context, command, fileName, localPath string) (*Result, error) {
	cmd, dialect, ok := protocol.ParseCommand(command)
	if !ok {
		return nil, ftperr.New(ftperr.UnknownCommand, "unknown command %q", command)
	}

	req := &protocol.Request{Command: cmd, Dialect: dialect}
	res := &Result{Command: cmd, Dialect: dialect}

	if cmd.NeedsFileName() {
		if fileName == "" && cmd == protocol.CommandUpload {
			fileName = localPath
		}
		if fileName == "" {
			return nil, ftperr.New(ftperr.InvalidName, "%s requires a file name", command)
		}
		req.FileName = validation.BaseName(fileName)
		res.FileName = req.FileName
	}

	if cmd == protocol.CommandUpload {
		if localPath == "" {
			localPath = fileName
		}
		payload, err := c.readUpload(localPath, req.FileName)
		if err != nil {
			return nil, err
		}
		req.Payload = payload
		res.Bytes = int64(len(payload))
	}

	resp, err := c.SendAndReceive(ctx, req)
	if err != nil {
		return nil, err
	}

	res.OK = resp.OK()
	res.Message = resp.Message
	if !res.OK {
		return res, nil
	}

	switch cmd {
	case protocol.CommandList:
		res.Names = resp.Names
		if res.Names == nil {
			res.Names = []string{}
		}
	case protocol.CommandDownload:
		dest := localPath
		if dest == "" {
			dest = filepath.Join(c.config.DownloadDir, req.FileName)
		}
		if err := c.save(dest, resp.FileData); err != nil {
			return nil, err
		}
		res.Saved = []string{dest}
		res.Bytes = int64(len(resp.FileData))
	case protocol.CommandDownloadAll:
		if err := c.saveAll(resp.Files, res); err != nil {
			return res, err
		}
	}

	return res, nil
}

// readUpload validates a local file before reading it into memory. The size
// is checked against the stat result first so an oversized file is never
// loaded.
func (c *Client) readUpload(path, name string) ([]byte, error) {
	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, ftperr.Wrap(ftperr.NotFound, err, "local file %s not found", path)
		}
		return nil, ftperr.Wrap(ftperr.StorageIO, err, "stat %s", path)
	}
	if info.IsDir() {
		return nil, ftperr.New(ftperr.InvalidName, "%s is a directory", path)
	}

	if err := c.config.Validator.Validate(name, nil, false); err != nil {
		return nil, err
	}
	if err := c.config.Validator.ValidateSize(info.Size()); err != nil {
		return nil, err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, ftperr.Wrap(ftperr.StorageIO, err, "read %s", path)
	}
	return data, nil
}

func (c *Client) saveAll(files map[string][]byte, res *Result) error {
	names := make([]string, 0, len(files))
	for name := range files {
		names = append(names, name)
	}
	sort.Strings(names)

	var errs []error
	for _, name := range names {
		base := validation.BaseName(name)
		if base == "" || base == "." || base == ".." {
			errs = append(errs, ftperr.New(ftperr.InvalidName, "server sent unusable name %q", name))
			continue
		}

		dest := filepath.Join(c.config.DownloadDir, base)
		if err := c.save(dest, files[name]); err != nil {
			errs = append(errs, err)
			continue
		}
		res.Saved = append(res.Saved, dest)
		res.Bytes += int64(len(files[name]))
	}
	return errors.Join(errs...)
}

func (c *Client) save(dest string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(dest), 0755); err != nil {
		return ftperr.Wrap(ftperr.StorageIO, err, "create %s", filepath.Dir(dest))
	}
	if err := os.WriteFile(dest, data, 0644); err != nil {
		return ftperr.Wrap(ftperr.StorageIO, err, "write %s", dest)
	}
	logger.Debug("Saved %d bytes to %s", len(data), dest)
	return nil
}

// String renders a one-line summary, mostly for logs.
func (r *Result) String() string {
	status := "ok"
	if !r.OK {
		status = "error"
	}
	return fmt.Sprintf("%s %s: %s", r.Command, status, r.Message)
}
