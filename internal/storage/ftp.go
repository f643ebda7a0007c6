package storage

import (
	"context"
	"fmt"
	"io"
	"path"
	"strconv"
	"strings"
	"time"

	"github.com/jlaffaye/ftp"

	"dbvault/internal/errors"
)

const ftpDialTimeout = 30 * time.Second

// FTPBackend stores snapshots on a plain FTP server under a configured
// root directory. Like SFTP, connections are per operation.
type FTPBackend struct {
	addr     string
	user     string
	password string
	root     string
}

// NewFTPBackend creates an FTP backend from a volume configuration with
// "host", "username" and "password" keys, optional "port" (default 21) and
// "root".
func NewFTPBackend(cfg map[string]string) (*FTPBackend, error) {
	if err := requireKeys(cfg, "host", "username", "password"); err != nil {
		return nil, err
	}

	port := 21
	if cfg["port"] != "" {
		parsed, err := strconv.Atoi(cfg["port"])
		if err != nil {
			return nil, errors.NewConfigurationError("ftp port is not a number", err)
		}
		port = parsed
	}

	return &FTPBackend{
		addr:     fmt.Sprintf("%s:%d", cfg["host"], port),
		user:     cfg["username"],
		password: cfg["password"],
		root:     cfg["root"],
	}, nil
}

func (b *FTPBackend) Name() string {
	return "ftp"
}

func (b *FTPBackend) remotePath(key string) string {
	if b.root == "" {
		return key
	}
	return path.Join(b.root, key)
}

func (b *FTPBackend) connect(ctx context.Context) (*ftp.ServerConn, error) {
	conn, err := ftp.Dial(b.addr, ftp.DialWithTimeout(ftpDialTimeout), ftp.DialWithContext(ctx))
	if err != nil {
		return nil, errors.NewConnectionError("failed to reach ftp host", err).
			WithContext("addr", b.addr)
	}
	if err := conn.Login(b.user, b.password); err != nil {
		conn.Quit()
		return nil, errors.NewConnectionError("ftp login failed", err).
			WithContext("addr", b.addr)
	}
	return conn, nil
}

func (b *FTPBackend) Write(ctx context.Context, key string, r io.Reader) error {
	conn, err := b.connect(ctx)
	if err != nil {
		return err
	}
	defer conn.Quit()

	remote := b.remotePath(key)
	if dir := path.Dir(remote); dir != "." && dir != "/" {
		// MakeDir fails when the directory already exists; harmless.
		_ = b.makeDirs(conn, dir)
	}

	if err := conn.Stor(remote, r); err != nil {
		return errors.NewConnectionError("failed to upload file over ftp", err).
			WithContext("key", key)
	}
	return nil
}

func (b *FTPBackend) makeDirs(conn *ftp.ServerConn, dir string) error {
	var built string
	for _, part := range strings.Split(dir, "/") {
		if part == "" {
			continue
		}
		built = path.Join(built, part)
		_ = conn.MakeDir(built)
	}
	return nil
}

// ftpStream keeps the control connection alive for the download's lifetime
type ftpStream struct {
	response *ftp.Response
	conn     *ftp.ServerConn
}

func (s *ftpStream) Read(p []byte) (int, error) { return s.response.Read(p) }

func (s *ftpStream) Close() error {
	err := s.response.Close()
	s.conn.Quit()
	return err
}

func (b *FTPBackend) ReadStream(ctx context.Context, key string) (io.ReadCloser, error) {
	conn, err := b.connect(ctx)
	if err != nil {
		return nil, err
	}

	response, err := conn.Retr(b.remotePath(key))
	if err != nil {
		conn.Quit()
		return nil, errors.NewConnectionError("failed to download file over ftp", err).
			WithContext("key", key)
	}
	return &ftpStream{response: response, conn: conn}, nil
}

func (b *FTPBackend) Exists(ctx context.Context, key string) (bool, error) {
	conn, err := b.connect(ctx)
	if err != nil {
		return false, err
	}
	defer conn.Quit()

	if _, err := conn.FileSize(b.remotePath(key)); err != nil {
		// 550 is the server's "no such file" answer.
		if strings.Contains(err.Error(), "550") {
			return false, nil
		}
		return false, errors.NewConnectionError("failed to check file over ftp", err).
			WithContext("key", key)
	}
	return true, nil
}

func (b *FTPBackend) Delete(ctx context.Context, key string) error {
	conn, err := b.connect(ctx)
	if err != nil {
		return err
	}
	defer conn.Quit()

	if err := conn.Delete(b.remotePath(key)); err != nil && !strings.Contains(err.Error(), "550") {
		return errors.NewConnectionError("failed to delete file over ftp", err).
			WithContext("key", key)
	}
	return nil
}
