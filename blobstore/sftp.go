package blobstore

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"path"
	"strings"
	"sync"
	"time"

	"github.com/pkg/sftp"
	"golang.org/x/crypto/ssh"

	"hlsworker/config"
	"hlsworker/logger"
)

// dialFunc opens an SFTP session and returns what must be closed with it.
type dialFunc func(ctx context.Context) (*sftp.Client, io.Closer, error)

// SFTP stores objects on a remote host. The bucket is the remote root
// directory objects are placed under. The session is reopened when the
// connection is lost.
type SFTP struct {
	dial       dialFunc
	addr       string
	publicBase string

	mu     sync.Mutex
	client *sftp.Client
	conn   io.Closer
}

// NewSFTP dials the server once to fail fast on bad settings. PrivateKey
// may be base64 or raw PEM.
func NewSFTP(ctx context.Context, cfg config.SFTPConfig) (*SFTP, error) {
	if cfg.Host == "" || cfg.User == "" {
		return nil, fmt.Errorf("missing SFTP host or user")
	}
	port := cfg.Port
	if port == "" {
		port = "22"
	}

	var auths []ssh.AuthMethod
	if cfg.PrivateKey != "" {
		keyBytes, err := base64.StdEncoding.DecodeString(cfg.PrivateKey)
		if err != nil {
			keyBytes = []byte(cfg.PrivateKey)
		}
		signer, err := ssh.ParsePrivateKey(keyBytes)
		if err != nil {
			return nil, fmt.Errorf("parse private key: %w", err)
		}
		auths = append(auths, ssh.PublicKeys(signer))
	} else if cfg.Password != "" {
		auths = append(auths, ssh.Password(cfg.Password))
	} else {
		return nil, fmt.Errorf("no auth method provided; set SFTP_PASSWORD or SFTP_PRIVATE_KEY")
	}

	clientConfig := &ssh.ClientConfig{
		User:            cfg.User,
		Auth:            auths,
		HostKeyCallback: ssh.InsecureIgnoreHostKey(),
		Timeout:         10 * time.Second,
	}

	addr := net.JoinHostPort(cfg.Host, port)
	s := newSFTP(addr, cfg.PublicBaseURL, func(ctx context.Context) (*sftp.Client, io.Closer, error) {
		return dialSFTP(ctx, addr, clientConfig)
	})
	if _, err := s.session(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

func newSFTP(addr, publicBase string, dial dialFunc) *SFTP {
	return &SFTP{dial: dial, addr: addr, publicBase: publicBase}
}

func dialSFTP(ctx context.Context, addr string, clientConfig *ssh.ClientConfig) (*sftp.Client, io.Closer, error) {
	d := net.Dialer{}
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, nil, fmt.Errorf("dial tcp %s: %w", addr, err)
	}

	clientConn, chans, reqs, err := ssh.NewClientConn(conn, addr, clientConfig)
	if err != nil {
		conn.Close()
		return nil, nil, fmt.Errorf("ssh handshake with %s: %w", addr, err)
	}
	sshClient := ssh.NewClient(clientConn, chans, reqs)

	sftpClient, err := sftp.NewClient(sshClient)
	if err != nil {
		sshClient.Close()
		return nil, nil, fmt.Errorf("create sftp client: %w", err)
	}
	return sftpClient, sshClient, nil
}

// session returns the open client, dialing when there is none.
func (s *SFTP) session(ctx context.Context) (*sftp.Client, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.client != nil {
		return s.client, nil
	}
	client, conn, err := s.dial(ctx)
	if err != nil {
		return nil, err
	}
	s.client, s.conn = client, conn
	return client, nil
}

// reset drops client if it is still the current session.
func (s *SFTP) reset(client *sftp.Client) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.client != client {
		return
	}
	s.closeLocked()
}

func (s *SFTP) closeLocked() error {
	if s.client == nil {
		return nil
	}
	err := s.client.Close()
	if s.conn != nil {
		if cerr := s.conn.Close(); err == nil {
			err = cerr
		}
	}
	s.client, s.conn = nil, nil
	return err
}

// connectionLost reports whether err means the session is unusable.
func connectionLost(err error) bool {
	return errors.Is(err, sftp.ErrSSHFxConnectionLost) ||
		errors.Is(err, io.EOF) ||
		errors.Is(err, io.ErrClosedPipe) ||
		errors.Is(err, net.ErrClosed)
}

// do runs op on the current session and, if the connection turns out to be
// lost, once more on a fresh one.
func (s *SFTP) do(ctx context.Context, op func(*sftp.Client) error) error {
	for attempt := 0; ; attempt++ {
		client, err := s.session(ctx)
		if err != nil {
			return err
		}
		err = op(client)
		if err == nil || attempt > 0 || !connectionLost(err) {
			return err
		}
		logger.Warnf("sftp connection to %s lost, reconnecting: %v", s.addr, err)
		s.reset(client)
	}
}

func (s *SFTP) remotePath(bucket, object string) string {
	return path.Join("/", bucket, object)
}

func (s *SFTP) Download(ctx context.Context, bucket, object, localPath string) error {
	remote := s.remotePath(bucket, object)
	return s.do(ctx, func(client *sftp.Client) error {
		src, err := client.Open(remote)
		if err != nil {
			if os.IsNotExist(err) {
				return fmt.Errorf("sftp %s: %w", remote, ErrNotFound)
			}
			return fmt.Errorf("open remote file %s: %w", remote, err)
		}
		defer src.Close()

		dst, err := os.Create(localPath)
		if err != nil {
			return fmt.Errorf("failed to create %s: %w", localPath, err)
		}
		if _, err := io.Copy(dst, src); err != nil {
			dst.Close()
			return fmt.Errorf("copy from remote file %s: %w", remote, err)
		}
		return dst.Close()
	})
}

func (s *SFTP) Upload(ctx context.Context, bucket, object, localPath string) (string, error) {
	remote := s.remotePath(bucket, object)
	err := s.do(ctx, func(client *sftp.Client) error {
		src, err := os.Open(localPath)
		if err != nil {
			return fmt.Errorf("failed to open %s: %w", localPath, err)
		}
		defer src.Close()

		if err := mkdirAllSFTP(client, path.Dir(remote)); err != nil {
			return fmt.Errorf("ensure remote dir %s: %w", path.Dir(remote), err)
		}

		// Create truncates, so re-runs overwrite.
		f, err := client.Create(remote)
		if err != nil {
			return fmt.Errorf("create remote file %s: %w", remote, err)
		}
		if _, err := io.Copy(f, src); err != nil {
			f.Close()
			return fmt.Errorf("copy to remote file %s: %w", remote, err)
		}
		if err := f.Close(); err != nil {
			return fmt.Errorf("close remote file %s: %w", remote, err)
		}
		return nil
	})
	if err != nil {
		return "", err
	}

	logger.Debugf("uploaded '%s' to %s", remote, s.addr)
	return s.PublicURL(bucket, object), nil
}

func (s *SFTP) PublicURL(bucket, object string) string {
	base := s.publicBase
	if base == "" {
		base = "sftp://" + s.addr
	}
	return joinURL(base, bucket, object)
}

func (s *SFTP) Delete(ctx context.Context, bucket, object string) error {
	remote := s.remotePath(bucket, object)
	return s.do(ctx, func(client *sftp.Client) error {
		if err := client.Remove(remote); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("remove remote file %s: %w", remote, err)
		}
		return nil
	})
}

func (s *SFTP) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closeLocked()
}

// mkdirAllSFTP mimics os.MkdirAll for an SFTP server by creating each segment of the path.
func mkdirAllSFTP(client *sftp.Client, dir string) error {
	if dir == "" || dir == "." || dir == "/" {
		return nil
	}

	parts := strings.Split(dir, "/")
	cur := ""
	if strings.HasPrefix(dir, "/") {
		cur = "/"
	}

	for _, p := range parts {
		if p == "" {
			continue
		}
		cur = path.Join(cur, p)
		if _, err := client.Stat(cur); err != nil {
			if !os.IsNotExist(err) {
				return fmt.Errorf("stat %s: %w", cur, err)
			}
			if err := client.Mkdir(cur); err != nil {
				return fmt.Errorf("mkdir %s: %w", cur, err)
			}
		}
	}
	return nil
}
