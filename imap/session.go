package imap

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"strconv"
	"time"

	imapv2 "github.com/emersion/go-imap/v2"
	"github.com/emersion/go-imap/v2/imapclient"
)

// session is a logged-in IMAP connection.
type session struct {
	client    *imapclient.Client
	delim     rune
	logger    *slog.Logger
	stopClose func() bool
	ctx       context.Context
}

func (u *Uploader) dial(ctx context.Context) (mailbox, error) {
	address := net.JoinHostPort(u.opts.Host, strconv.Itoa(u.opts.Port))
	options := &imapclient.Options{}

	var (
		client *imapclient.Client
		err    error
	)
	if u.opts.UseTLS {
		options.TLSConfig = &tls.Config{
			ServerName:         u.opts.Host,
			InsecureSkipVerify: u.opts.InsecureSkipVerify,
		}
		client, err = imapclient.DialTLS(address, options)
	} else {
		client, err = imapclient.DialInsecure(address, options)
	}
	if err != nil {
		return nil, fmt.Errorf("dial imap %s: %w", address, err)
	}

	if err := client.Login(u.opts.Username, u.opts.Password).Wait(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("imap login failed: %w", err)
	}

	// LIST "" "" only reports the hierarchy delimiter.
	delim := rune(0)
	listed, err := client.List("", "", nil).Collect()
	if err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("imap hierarchy delimiter: %w", err)
	}
	if len(listed) > 0 {
		delim = listed[0].Delim
	}

	u.logger.Debug("imap connection established", "address", address, "user", u.opts.Username,
		"target", u.targetFolder(), "tls", u.opts.UseTLS, "delimiter", string(delim))

	return &session{
		client: client,
		delim:  delim,
		logger: u.logger,
		ctx:    ctx,
		stopClose: context.AfterFunc(ctx, func() {
			_ = client.Close()
		}),
	}, nil
}

func (s *session) Delimiter() rune {
	return s.delim
}

// Ensure creates folder unless the server already has it.
func (s *session) Ensure(folder string) error {
	if err := s.client.Create(folder, nil).Wait(); err != nil {
		var respErr *imapv2.Error
		if errors.As(err, &respErr) && respErr.Code == imapv2.ResponseCodeAlreadyExists {
			s.logger.Debug("imap mailbox already exists", "mailbox", folder)
			return nil
		}
		return fmt.Errorf("ensure mailbox %s: %w", folder, err)
	}
	s.logger.Info("imap mailbox created", "mailbox", folder)
	return nil
}

func (s *session) Append(folder string, raw []byte, date time.Time) error {
	cmd := s.client.Append(folder, int64(len(raw)), &imapv2.AppendOptions{Time: date})

	remaining := raw
	for len(remaining) > 0 {
		n, err := cmd.Write(remaining)
		if err != nil {
			_ = cmd.Close()
			return fmt.Errorf("append write: %w", err)
		}
		if n == 0 {
			_ = cmd.Close()
			return fmt.Errorf("append write: wrote 0 bytes")
		}
		remaining = remaining[n:]
	}

	if err := cmd.Close(); err != nil {
		return fmt.Errorf("append close: %w", err)
	}
	if _, err := cmd.Wait(); err != nil {
		return fmt.Errorf("append wait: %w", err)
	}
	return nil
}

// Close logs out unless the run was cancelled, then drops the connection.
func (s *session) Close() error {
	s.stopClose()
	if s.ctx.Err() == nil {
		if err := s.client.Logout().Wait(); err != nil {
			s.logger.Warn("imap logout failed", "err", err)
		}
	}
	return s.client.Close()
}
