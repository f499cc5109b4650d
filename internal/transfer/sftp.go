package transfer

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"

	"github.com/pkg/sftp"
	"golang.org/x/crypto/ssh"
)

// pushOne uploads one local file over an established connection and
// verifies the upload by reading it back. Returns bytes sent and the
// SHA-256 digest.
func pushOne(ctx context.Context, conn *ssh.Client, localPath, remotePath, node string, fn Progress) (int64, string, error) {
	src, err := os.Open(localPath)
	if err != nil {
		return 0, "", fmt.Errorf("open %s: %w", localPath, err)
	}
	defer src.Close()

	info, err := src.Stat()
	if err != nil {
		return 0, "", fmt.Errorf("stat %s: %w", localPath, err)
	}

	sc, err := sftp.NewClient(conn)
	if err != nil {
		return 0, "", fmt.Errorf("sftp session: %w", err)
	}
	defer sc.Close()

	// Remote paths are always Unix paths, hence path, not filepath.
	if dir := path.Dir(remotePath); dir != "." && dir != "/" {
		if err := sc.MkdirAll(dir); err != nil {
			return 0, "", fmt.Errorf("mkdir %s: %w", dir, err)
		}
	}

	dst, err := sc.Create(remotePath)
	if err != nil {
		return 0, "", fmt.Errorf("create %s: %w", remotePath, err)
	}

	sum := sha256.New()
	w := io.MultiWriter(&meter{dst: dst, node: node, total: info.Size(), fn: fn}, sum)

	n, err := copyCtx(ctx, w, src)
	// Flush before the readback sees the file.
	dst.Close()
	if err != nil {
		return n, "", fmt.Errorf("upload %s: %w", remotePath, err)
	}

	sent := hex.EncodeToString(sum.Sum(nil))
	got, err := readbackSHA256(sc, remotePath)
	if err != nil {
		return n, sent, fmt.Errorf("verify %s: %w", remotePath, err)
	}
	if got != sent {
		return n, sent, fmt.Errorf("verify %s: digest mismatch, sent %s but node holds %s", remotePath, sent, got)
	}
	return n, sent, nil
}

// pullOne downloads one remote file into localDir/<node>/, keeping the
// remote base name, and verifies the copy against the remote digest.
func pullOne(ctx context.Context, conn *ssh.Client, remotePath, localDir, node string, fn Progress) (int64, string, error) {
	sc, err := sftp.NewClient(conn)
	if err != nil {
		return 0, "", fmt.Errorf("sftp session: %w", err)
	}
	defer sc.Close()

	src, err := sc.Open(remotePath)
	if err != nil {
		return 0, "", fmt.Errorf("open %s: %w", remotePath, err)
	}
	defer src.Close()

	info, err := src.Stat()
	if err != nil {
		return 0, "", fmt.Errorf("stat %s: %w", remotePath, err)
	}

	nodeDir := filepath.Join(localDir, node)
	if err := os.MkdirAll(nodeDir, 0o755); err != nil {
		return 0, "", fmt.Errorf("mkdir %s: %w", nodeDir, err)
	}

	localPath := filepath.Join(nodeDir, path.Base(remotePath))
	dst, err := os.Create(localPath)
	if err != nil {
		return 0, "", fmt.Errorf("create %s: %w", localPath, err)
	}
	defer dst.Close()

	sum := sha256.New()
	w := io.MultiWriter(&meter{dst: dst, node: node, total: info.Size(), fn: fn}, sum)

	n, err := copyCtx(ctx, w, src)
	if err != nil {
		return n, "", fmt.Errorf("download %s: %w", remotePath, err)
	}

	got := hex.EncodeToString(sum.Sum(nil))
	want, err := readbackSHA256(sc, remotePath)
	if err != nil {
		return n, got, fmt.Errorf("verify %s: %w", remotePath, err)
	}
	if want != got {
		return n, got, fmt.Errorf("verify %s: digest mismatch, node holds %s but received %s", remotePath, want, got)
	}
	return n, got, nil
}

// readbackSHA256 digests a remote file over the same SFTP session.
// Reading it back keeps the check independent of whatever sha256sum
// the node may or may not have installed.
func readbackSHA256(sc *sftp.Client, remotePath string) (string, error) {
	f, err := sc.Open(remotePath)
	if err != nil {
		return "", fmt.Errorf("reopen: %w", err)
	}
	defer f.Close()

	sum := sha256.New()
	if _, err := io.Copy(sum, f); err != nil {
		return "", fmt.Errorf("read back: %w", err)
	}
	return hex.EncodeToString(sum.Sum(nil)), nil
}

// copyCtx is io.Copy with a cancellation check between chunks. SFTP
// reads do not honor ctx on their own, so the check runs per chunk.
func copyCtx(ctx context.Context, dst io.Writer, src io.Reader) (int64, error) {
	buf := make([]byte, 128*1024)
	var n int64
	for {
		if err := ctx.Err(); err != nil {
			return n, err
		}

		r, rerr := src.Read(buf)
		if r > 0 {
			w, werr := dst.Write(buf[:r])
			n += int64(w)
			if werr != nil {
				return n, werr
			}
			if w < r {
				return n, io.ErrShortWrite
			}
		}
		if rerr == io.EOF {
			return n, nil
		}
		if rerr != nil {
			return n, rerr
		}
	}
}
