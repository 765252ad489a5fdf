package ssh

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/pkg/sftp"
	"github.com/rs/zerolog/log"
)

// Upload writes content to remotePath over SFTP, truncating any existing
// file, then applies mode when it is not zero. The write happens as the
// session user; callers move the file into privileged locations themselves.
func (c *SSHClient) Upload(ctx context.Context, remotePath string, content []byte, mode uint32) error {
	sshClient, err := c.getClient("upload")
	if err != nil {
		return err
	}

	started := time.Now()
	sc, err := sftp.NewClient(sshClient)
	if err != nil {
		return &TransportError{Op: "upload", Err: fmt.Errorf("failed to start sftp: %w", err)}
	}
	defer sc.Close()

	f, err := sc.OpenFile(remotePath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC)
	if err != nil {
		return &TransportError{Op: "upload", Err: fmt.Errorf("failed to open %s: %w", remotePath, err)}
	}

	n, err := io.Copy(f, &ctxReader{ctx: ctx, r: bytes.NewReader(content)})
	if closeErr := f.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		return &TransportError{Op: "upload", Err: fmt.Errorf("failed to write %s: %w", remotePath, err)}
	}

	if mode != 0 {
		if err := sc.Chmod(remotePath, os.FileMode(mode)); err != nil {
			return &TransportError{Op: "upload", Err: fmt.Errorf("failed to chmod %s: %w", remotePath, err)}
		}
	}

	log.Debug().
		Str("remote", remotePath).
		Int64("bytes", n).
		Dur("duration", time.Since(started)).
		Msg("uploaded file")
	return nil
}

// ctxReader stops a copy once ctx is done.
type ctxReader struct {
	ctx context.Context
	r   io.Reader
}

func (r *ctxReader) Read(p []byte) (int, error) {
	if err := r.ctx.Err(); err != nil {
		return 0, err
	}
	return r.r.Read(p)
}
