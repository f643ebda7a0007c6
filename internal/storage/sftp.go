package storage

import (
	"context"
	stderrors "errors"
	"fmt"
	"io"
	"os"
	"path"
	"strconv"
	"time"

	"github.com/pkg/sftp"
	"golang.org/x/crypto/ssh"

	"dbvault/internal/errors"
)

const sftpDialTimeout = 30 * time.Second

// SFTPBackend stores snapshots on a remote host over SFTP under a
// configured root directory. Connections are established per operation;
// backup transfers are long-lived single streams, so connection reuse buys
// nothing and idle-timeout handling costs a lot.
type SFTPBackend struct {
	addr     string
	user     string
	password string
	root     string
}

// NewSFTPBackend creates an SFTP backend from a volume configuration with
// "host", "username" and "password" keys, optional "port" (default 22) and
// "root".
func NewSFTPBackend(cfg map[string]string) (*SFTPBackend, error) {
	if err := requireKeys(cfg, "host", "username", "password"); err != nil {
		return nil, err
	}

	port := 22
	if cfg["port"] != "" {
		parsed, err := strconv.Atoi(cfg["port"])
		if err != nil {
			return nil, errors.NewConfigurationError("sftp port is not a number", err)
		}
		port = parsed
	}

	return &SFTPBackend{
		addr:     fmt.Sprintf("%s:%d", cfg["host"], port),
		user:     cfg["username"],
		password: cfg["password"],
		root:     cfg["root"],
	}, nil
}

func (b *SFTPBackend) Name() string {
	return "sftp"
}

func (b *SFTPBackend) remotePath(key string) string {
	if b.root == "" {
		return key
	}
	return path.Join(b.root, key)
}

// connect dials the host and opens an SFTP session
func (b *SFTPBackend) connect() (*ssh.Client, *sftp.Client, error) {
	sshClient, err := ssh.Dial("tcp", b.addr, &ssh.ClientConfig{
		User:            b.user,
		Auth:            []ssh.AuthMethod{ssh.Password(b.password)},
		HostKeyCallback: ssh.InsecureIgnoreHostKey(),
		Timeout:         sftpDialTimeout,
	})
	if err != nil {
		return nil, nil, errors.NewConnectionError("failed to reach sftp host", err).
			WithContext("addr", b.addr)
	}

	sftpClient, err := sftp.NewClient(sshClient)
	if err != nil {
		sshClient.Close()
		return nil, nil, errors.NewConnectionError("failed to open sftp session", err).
			WithContext("addr", b.addr)
	}
	return sshClient, sftpClient, nil
}

func (b *SFTPBackend) Write(ctx context.Context, key string, r io.Reader) error {
	sshClient, client, err := b.connect()
	if err != nil {
		return err
	}
	defer sshClient.Close()
	defer client.Close()

	remote := b.remotePath(key)
	if dir := path.Dir(remote); dir != "." && dir != "/" {
		if err := client.MkdirAll(dir); err != nil {
			return errors.NewConnectionError("failed to create remote directory", err).
				WithContext("key", key)
		}
	}

	f, err := client.Create(remote)
	if err != nil {
		return errors.NewConnectionError("failed to create remote file", err).
			WithContext("key", key)
	}
	if _, err := io.Copy(f, r); err != nil {
		f.Close()
		return errors.NewConnectionError("failed to write remote file", err).
			WithContext("key", key)
	}
	if err := f.Close(); err != nil {
		return errors.NewConnectionError("failed to flush remote file", err).
			WithContext("key", key)
	}
	return nil
}

// sftpStream keeps the session alive for the lifetime of a download
type sftpStream struct {
	file      *sftp.File
	client    *sftp.Client
	sshClient *ssh.Client
}

func (s *sftpStream) Read(p []byte) (int, error) { return s.file.Read(p) }

func (s *sftpStream) Close() error {
	err := s.file.Close()
	s.client.Close()
	s.sshClient.Close()
	return err
}

func (b *SFTPBackend) ReadStream(ctx context.Context, key string) (io.ReadCloser, error) {
	sshClient, client, err := b.connect()
	if err != nil {
		return nil, err
	}

	f, err := client.Open(b.remotePath(key))
	if err != nil {
		client.Close()
		sshClient.Close()
		return nil, errors.NewConnectionError("failed to open remote file", err).
			WithContext("key", key)
	}
	return &sftpStream{file: f, client: client, sshClient: sshClient}, nil
}

func (b *SFTPBackend) Exists(ctx context.Context, key string) (bool, error) {
	sshClient, client, err := b.connect()
	if err != nil {
		return false, err
	}
	defer sshClient.Close()
	defer client.Close()

	if _, err := client.Stat(b.remotePath(key)); err != nil {
		if stderrors.Is(err, os.ErrNotExist) {
			return false, nil
		}
		return false, errors.NewConnectionError("failed to stat remote file", err).
			WithContext("key", key)
	}
	return true, nil
}

func (b *SFTPBackend) Delete(ctx context.Context, key string) error {
	sshClient, client, err := b.connect()
	if err != nil {
		return err
	}
	defer sshClient.Close()
	defer client.Close()

	if err := client.Remove(b.remotePath(key)); err != nil && !stderrors.Is(err, os.ErrNotExist) {
		return errors.NewConnectionError("failed to delete remote file", err).
			WithContext("key", key)
	}
	return nil
}
