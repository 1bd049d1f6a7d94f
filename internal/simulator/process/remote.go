package process

import (
	"context"
	"fmt"
	"io"
	"net"
	"os"
	"path"
	"sync"
	"time"

	"github.com/pkg/sftp"
	"go.uber.org/zap"
	"golang.org/x/crypto/ssh"
	"golang.org/x/sync/errgroup"

	"github.com/extsim/extsim/internal/common/logger"
	"github.com/extsim/extsim/internal/simulator"
)

const (
	sshDialTimeout = 10 * time.Second
	defaultSSHPort = "22"
)

// RemoteClient holds an SSH connection to a registered target.
type RemoteClient struct {
	target simulator.RemoteTarget
	client *ssh.Client
	logger *logger.Logger
}

// DialTarget opens an SSH connection to the target using its key file.
func DialTarget(target simulator.RemoteTarget, log *logger.Logger) (*RemoteClient, error) {
	key, err := os.ReadFile(target.PrivateKey)
	if err != nil {
		return nil, fmt.Errorf("failed to read private key %s: %w", target.PrivateKey, err)
	}
	signer, err := ssh.ParsePrivateKey(key)
	if err != nil {
		return nil, fmt.Errorf("failed to parse private key: %w", err)
	}

	addr := target.Address
	if _, _, splitErr := net.SplitHostPort(addr); splitErr != nil {
		addr = net.JoinHostPort(addr, defaultSSHPort)
	}

	config := &ssh.ClientConfig{
		User:            target.Username,
		Auth:            []ssh.AuthMethod{ssh.PublicKeys(signer)},
		HostKeyCallback: ssh.InsecureIgnoreHostKey(),
		Timeout:         sshDialTimeout,
	}
	client, err := ssh.Dial("tcp", addr, config)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s: %w", addr, err)
	}
	return &RemoteClient{
		target: target,
		client: client,
		logger: log.WithFields(zap.String("target", target.Name)),
	}, nil
}

// Close tears down the SSH connection.
func (c *RemoteClient) Close() error {
	return c.client.Close()
}

// CopyFiles uploads the given local files into dir on the target,
// creating the directory first. All uploads must succeed. report, when
// non-nil, receives one line per staged file so the copy shows up in
// the same output stream as the simulation itself.
func (c *RemoteClient) CopyFiles(ctx context.Context, dir string, report func(line string), files ...string) error {
	sftpClient, err := sftp.NewClient(c.client)
	if err != nil {
		return fmt.Errorf("failed to open sftp session: %w", err)
	}
	defer sftpClient.Close()

	if err := sftpClient.MkdirAll(dir); err != nil {
		return fmt.Errorf("failed to create %s on target: %w", dir, err)
	}

	g, _ := errgroup.WithContext(ctx)
	for _, file := range files {
		g.Go(func() error {
			remote := path.Join(dir, path.Base(file))
			if err := c.upload(sftpClient, file, remote); err != nil {
				return err
			}
			if report != nil {
				report(fmt.Sprintf("copied %s to %s", path.Base(file), dir))
			}
			return nil
		})
	}
	return g.Wait()
}

func (c *RemoteClient) upload(sftpClient *sftp.Client, local, remote string) error {
	src, err := os.Open(local)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", local, err)
	}
	defer src.Close()

	dst, err := sftpClient.Create(remote)
	if err != nil {
		return fmt.Errorf("failed to create %s on target: %w", remote, err)
	}
	defer dst.Close()

	if _, err := io.Copy(dst, src); err != nil {
		return fmt.Errorf("failed to copy %s to target: %w", local, err)
	}
	c.logger.Debug("copied file to target", zap.String("remote_path", remote))
	return nil
}

func (o *Orchestrator) startRemote(ctx context.Context, req StartRequest, r *run, onClose CloseFunc) error {
	if req.Target == nil {
		return simulator.ErrTargetRequired
	}
	client, err := DialTarget(*req.Target, o.logger)
	if err != nil {
		return err
	}

	// The launch depends on every input being present on the target, so
	// a failed copy aborts before anything is executed there. The staging
	// lines go through the run output so the log shows both sub-steps.
	scratch := RemoteScratchDir(req.Target.OsType)
	o.emitLine(r, "stdout", fmt.Sprintf("staging %d files in %s on %s", len(req.CopyFiles), scratch, req.Target.Name))
	err = client.CopyFiles(ctx, scratch, func(line string) {
		o.emitLine(r, "stdout", line)
	}, req.CopyFiles...)
	if err != nil {
		o.emitLine(r, "stderr", fmt.Sprintf("failed to stage simulation inputs: %v", err))
		client.Close()
		return fmt.Errorf("failed to stage simulation inputs on target: %w", err)
	}

	session, err := client.client.NewSession()
	if err != nil {
		client.Close()
		return fmt.Errorf("failed to open ssh session: %w", err)
	}
	stdout, err := session.StdoutPipe()
	if err != nil {
		session.Close()
		client.Close()
		return fmt.Errorf("failed to attach stdout: %w", err)
	}
	stderr, err := session.StderrPipe()
	if err != nil {
		session.Close()
		client.Close()
		return fmt.Errorf("failed to attach stderr: %w", err)
	}
	if err := session.Start(req.Command); err != nil {
		session.Close()
		client.Close()
		return fmt.Errorf("failed to start remote simulation: %w", err)
	}

	r.terminate = func(log *logger.Logger) {
		if err := session.Signal(ssh.SIGKILL); err != nil {
			log.WithError(err).Warn("failed to signal remote process")
		}
		session.Close()
	}

	var readers sync.WaitGroup
	readers.Add(2)
	go o.consume(r, stdout, "stdout", &readers)
	go o.consume(r, stderr, "stderr", &readers)

	go func() {
		readers.Wait()
		err := session.Wait()
		log := o.logger.WithRunID(r.id).WithWorkspace(r.workspace)
		switch e := err.(type) {
		case nil:
			log.Info("remote simulation closed", zap.Int("exit_code", 0))
		case *ssh.ExitError:
			if sig := e.Signal(); sig != "" {
				log.Info("remote simulation closed", zap.String("signal", sig))
			} else {
				log.Info("remote simulation closed", zap.Int("exit_code", e.ExitStatus()))
			}
			r.success.Store(false)
		case *ssh.ExitMissingError:
			// Killing the session leaves no exit status behind.
			log.Info("remote simulation closed", zap.String("signal", "KILL"))
			r.success.Store(false)
		default:
			log.WithError(err).Error("remote simulation failed")
			r.success.Store(false)
		}
		session.Close()
		client.Close()
		o.finish(r, onClose)
	}()
	return nil
}
