package intake

import (
	"context"
	"io"
	"net"
	"net/url"

	"github.com/jlaffaye/ftp"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// ftpDownload retrieves the export from an FTP drop. Marketplace drops use
// anonymous FTP; credentials in the URL override that.
func (c *Client) ftpDownload(ctx context.Context, u *url.URL) ([]byte, error) {
	if u.Path == "" {
		return nil, eris.New("intake: empty path in ftp url")
	}
	host := u.Host
	if _, _, err := net.SplitHostPort(host); err != nil {
		host = net.JoinHostPort(host, "21")
	}

	zap.L().Debug("intake: ftp connecting", zap.String("host", host), zap.String("path", u.Path))

	conn, err := ftp.Dial(host, ftp.DialWithTimeout(c.ftpTimeout), ftp.DialWithContext(ctx))
	if err != nil {
		return nil, eris.Wrap(err, "intake: ftp dial")
	}
	defer conn.Quit() //nolint:errcheck

	user, pass := "anonymous", "anonymous@"
	if u.User != nil {
		user = u.User.Username()
		if p, ok := u.User.Password(); ok {
			pass = p
		}
	}
	if err := conn.Login(user, pass); err != nil {
		return nil, eris.Wrap(err, "intake: ftp login")
	}

	resp, err := conn.Retr(u.Path)
	if err != nil {
		return nil, eris.Wrap(err, "intake: ftp retrieve")
	}
	defer resp.Close() //nolint:errcheck

	data, err := io.ReadAll(resp)
	if err != nil {
		return nil, eris.Wrap(err, "intake: ftp read")
	}
	return data, nil
}
