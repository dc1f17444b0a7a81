package remote

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"net"
	"os"
	"path"
	"strconv"
	"time"

	"github.com/pkg/sftp"
	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/knownhosts"

	"saveswap/internal/config"
	"saveswap/internal/swap"
)

// DefaultSSHTimeout bounds the TCP dial and SSH handshake.
const DefaultSSHTimeout = 30 * time.Second

// session is one SFTP connection; close tears down SFTP and SSH together.
type session struct {
	client *sftp.Client
	close  func() error
}

type connectFunc func(ctx context.Context) (*session, error)

// SSHRemote mirrors archives to a directory on an SFTP server. Every
// operation opens its own connection.
type SSHRemote struct {
	host      string
	port      int
	user      string
	remoteDir string
	logger    swap.Logger
	connect   connectFunc
}

var _ swap.Remote = (*SSHRemote)(nil)

// NewSSHRemote validates cfg and returns an SSHRemote. Missing settings
// return ErrNotConfigured. The key and known_hosts files are read when a
// connection is opened, so problems with them surface as ErrConnectionFailed.
//
// AuthMethod "key" authenticates with the private key at KeyPath, using
// Password as its passphrase if the key is encrypted; "password" sends
// Password. An empty AuthMethod means "key" when KeyPath is set.
func NewSSHRemote(cfg config.SSHConfig, logger swap.Logger) (*SSHRemote, error) {
	if err := checkSSHConfig(cfg); err != nil {
		return nil, err
	}

	timeout, err := cfg.TimeoutOr(DefaultSSHTimeout)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", swap.ErrNotConfigured, err)
	}
	port := cfg.Port
	if port == 0 {
		port = 22
	}

	r := &SSHRemote{
		host:      cfg.Host,
		port:      port,
		user:      cfg.User,
		remoteDir: cfg.RemoteDir,
		logger:    logger,
	}
	addr := net.JoinHostPort(cfg.Host, strconv.Itoa(port))
	r.connect = func(ctx context.Context) (*session, error) {
		clientConfig, err := sshClientConfig(cfg, timeout, logger)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", swap.ErrConnectionFailed, err)
		}
		return dialSFTP(ctx, addr, clientConfig, timeout)
	}
	return r, nil
}

func checkSSHConfig(cfg config.SSHConfig) error {
	switch {
	case !cfg.Enabled:
		return fmt.Errorf("%w: ssh remote is disabled", swap.ErrNotConfigured)
	case cfg.Host == "":
		return fmt.Errorf("%w: ssh host is required", swap.ErrNotConfigured)
	case cfg.User == "":
		return fmt.Errorf("%w: ssh user is required", swap.ErrNotConfigured)
	case cfg.RemoteDir == "":
		return fmt.Errorf("%w: ssh remote_dir is required", swap.ErrNotConfigured)
	}

	switch authMethod(cfg) {
	case "key":
		if cfg.KeyPath == "" {
			return fmt.Errorf("%w: ssh auth_method key needs key_path", swap.ErrNotConfigured)
		}
	case "password":
		if cfg.Password == "" {
			return fmt.Errorf("%w: ssh needs key_path or password", swap.ErrNotConfigured)
		}
	default:
		return fmt.Errorf("%w: unknown ssh auth_method %q", swap.ErrNotConfigured, cfg.AuthMethod)
	}
	return nil
}

func authMethod(cfg config.SSHConfig) string {
	if cfg.AuthMethod != "" {
		return cfg.AuthMethod
	}
	if cfg.KeyPath != "" {
		return "key"
	}
	return "password"
}

func sshClientConfig(cfg config.SSHConfig, timeout time.Duration, logger swap.Logger) (*ssh.ClientConfig, error) {
	var auth []ssh.AuthMethod
	if authMethod(cfg) == "key" {
		pem, err := os.ReadFile(cfg.KeyPath)
		if err != nil {
			return nil, fmt.Errorf("reading ssh key: %w", err)
		}
		signer, err := ssh.ParsePrivateKey(pem)
		var missing *ssh.PassphraseMissingError
		if errors.As(err, &missing) && cfg.Password != "" {
			signer, err = ssh.ParsePrivateKeyWithPassphrase(pem, []byte(cfg.Password))
		}
		if err != nil {
			return nil, fmt.Errorf("parsing ssh key %s: %w", cfg.KeyPath, err)
		}
		auth = append(auth, ssh.PublicKeys(signer))
	} else {
		auth = append(auth, ssh.Password(cfg.Password))
	}

	var hostKeyCallback ssh.HostKeyCallback
	if cfg.KnownHostsPath != "" {
		cb, err := knownhosts.New(cfg.KnownHostsPath)
		if err != nil {
			return nil, fmt.Errorf("loading known_hosts: %w", err)
		}
		hostKeyCallback = cb
	} else {
		logger.Warn("ssh host key verification disabled; set remote.ssh.known_hosts_path", "host", cfg.Host)
		hostKeyCallback = ssh.InsecureIgnoreHostKey()
	}

	return &ssh.ClientConfig{
		User:            cfg.User,
		Auth:            auth,
		HostKeyCallback: hostKeyCallback,
		Timeout:         timeout,
	}, nil
}

// dialSFTP dials addr, completes the SSH handshake within timeout and starts
// the sftp subsystem.
func dialSFTP(ctx context.Context, addr string, clientConfig *ssh.ClientConfig, timeout time.Duration) (*session, error) {
	dialer := net.Dialer{Timeout: timeout}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("%w: dialing %s: %w", swap.ErrConnectionFailed, addr, err)
	}

	if timeout > 0 {
		conn.SetDeadline(time.Now().Add(timeout))
	}
	c, chans, reqs, err := ssh.NewClientConn(conn, addr, clientConfig)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("%w: ssh handshake with %s: %w", swap.ErrConnectionFailed, addr, err)
	}
	conn.SetDeadline(time.Time{})

	sshClient := ssh.NewClient(c, chans, reqs)
	sftpClient, err := sftp.NewClient(sshClient)
	if err != nil {
		sshClient.Close()
		return nil, fmt.Errorf("%w: starting sftp on %s: %w", swap.ErrConnectionFailed, addr, err)
	}

	return &session{
		client: sftpClient,
		close: func() error {
			return errors.Join(sftpClient.Close(), sshClient.Close())
		},
	}, nil
}

func (r *SSHRemote) Name() string {
	return fmt.Sprintf("sftp://%s@%s%s", r.user, net.JoinHostPort(r.host, strconv.Itoa(r.port)), r.remoteDir)
}

func (r *SSHRemote) Configured() bool { return r.connect != nil }

func (r *SSHRemote) open(ctx context.Context) (*session, error) {
	s, err := r.connect(ctx)
	if err != nil {
		if errors.Is(err, swap.ErrConnectionFailed) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %w", swap.ErrConnectionFailed, err)
	}
	return s, nil
}

func (r *SSHRemote) closeSession(s *session) {
	if err := s.close(); err != nil {
		r.logger.Debug("closing sftp session", "error", err)
	}
}

// TestConnection connects, ensures the remote directory exists and writes
// and removes a probe file in it.
func (r *SSHRemote) TestConnection(ctx context.Context) (string, error) {
	s, err := r.open(ctx)
	if err != nil {
		return "", err
	}
	defer r.closeSession(s)

	if err := s.client.MkdirAll(r.remoteDir); err != nil {
		return "", fmt.Errorf("%w: creating %s: %w", swap.ErrConnectionFailed, r.remoteDir, err)
	}
	probe := path.Join(r.remoteDir, ".saveswap-probe")
	f, err := s.client.Create(probe)
	if err != nil {
		return "", fmt.Errorf("%w: %s is not writable: %w", swap.ErrConnectionFailed, r.remoteDir, err)
	}
	f.Close()
	if err := s.client.Remove(probe); err != nil {
		r.logger.Warn("removing probe file failed", "path", probe, "error", err)
	}

	return fmt.Sprintf("connected to %s, %s is writable", net.JoinHostPort(r.host, strconv.Itoa(r.port)), r.remoteDir), nil
}

// Upload writes the archive to <remoteDir>/<name>.part and renames it into
// place once fully transferred.
func (r *SSHRemote) Upload(ctx context.Context, localPath string) (*swap.SyncResult, error) {
	start := time.Now()
	src, err := os.Open(localPath)
	if err != nil {
		return nil, fmt.Errorf("%w: opening %s: %w", swap.ErrTransferFailed, localPath, err)
	}
	defer src.Close()

	s, err := r.open(ctx)
	if err != nil {
		return nil, err
	}
	defer r.closeSession(s)

	if err := s.client.MkdirAll(r.remoteDir); err != nil {
		return nil, fmt.Errorf("%w: creating %s: %w", swap.ErrTransferFailed, r.remoteDir, err)
	}

	name := path.Base(localPath)
	remotePath := path.Join(r.remoteDir, name)
	partPath := remotePath + ".part"

	dst, err := s.client.Create(partPath)
	if err != nil {
		return nil, fmt.Errorf("%w: creating %s: %w", swap.ErrTransferFailed, partPath, err)
	}
	n, err := dst.ReadFrom(ctxReader{ctx: ctx, r: src})
	if closeErr := dst.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		s.client.Remove(partPath)
		return nil, fmt.Errorf("%w: writing %s: %w", swap.ErrTransferFailed, partPath, err)
	}

	if err := s.client.Remove(remotePath); err != nil && !errors.Is(err, fs.ErrNotExist) {
		r.logger.Debug("removing previous remote archive", "path", remotePath, "error", err)
	}
	if err := s.client.Rename(partPath, remotePath); err != nil {
		return nil, fmt.Errorf("%w: renaming %s: %w", swap.ErrTransferFailed, partPath, err)
	}

	return &swap.SyncResult{
		Name:       name,
		LocalPath:  localPath,
		RemotePath: remotePath,
		Bytes:      n,
		Duration:   time.Since(start),
	}, nil
}

func (r *SSHRemote) Download(ctx context.Context, remoteName, localDir string) (*swap.SyncResult, error) {
	if err := checkName(remoteName); err != nil {
		return nil, err
	}
	start := time.Now()

	s, err := r.open(ctx)
	if err != nil {
		return nil, err
	}
	defer r.closeSession(s)

	remotePath := path.Join(r.remoteDir, remoteName)
	src, err := s.client.Open(remotePath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: archive not found: %s", swap.ErrTransferFailed, remoteName)
		}
		return nil, fmt.Errorf("%w: opening %s: %w", swap.ErrTransferFailed, remotePath, err)
	}
	defer src.Close()

	dest, n, err := writeLocal(ctx, localDir, remoteName, src)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", swap.ErrTransferFailed, err)
	}
	return &swap.SyncResult{
		Name:       remoteName,
		LocalPath:  dest,
		RemotePath: remotePath,
		Bytes:      n,
		Duration:   time.Since(start),
	}, nil
}

// List returns the archives in the remote directory, newest first.
func (r *SSHRemote) List(ctx context.Context) ([]swap.RemoteEntry, error) {
	s, err := r.open(ctx)
	if err != nil {
		return nil, err
	}
	defer r.closeSession(s)

	infos, err := s.client.ReadDir(r.remoteDir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("%w: listing %s: %w", swap.ErrTransferFailed, r.remoteDir, err)
	}

	var entries []swap.RemoteEntry
	for _, info := range infos {
		if !info.Mode().IsRegular() || !swap.IsArchiveName(info.Name()) {
			continue
		}
		entries = append(entries, swap.RemoteEntry{Name: info.Name(), Size: info.Size(), ModifiedAt: info.ModTime()})
	}
	sortNewestFirst(entries)
	return entries, nil
}
