package writerbackends

import (
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"net"
	"path"
	"time"

	"m3u8conv/logger"

	"github.com/pkg/sftp"
	"golang.org/x/crypto/ssh"
)

// UploadToSFTPWithCreds uploads content to remoteDir/objectName on a server via SFTP.
// accessInfo needs host and user plus password or privateKey (base64 or raw PEM).
// port defaults to 22 and remoteDir to the login directory. hostKey, in
// authorized_keys format, pins the server key when present.
func UploadToSFTPWithCreds(ctx context.Context, accessInfo map[string]string, reader io.Reader, objectName string) error {
	host := accessInfo["host"]
	user := accessInfo["user"]
	if host == "" || user == "" {
		return fmt.Errorf("missing required accessInfo keys: host, user")
	}
	port := accessInfo["port"]
	if port == "" {
		port = "22"
	}

	config, err := sshClientConfig(accessInfo)
	if err != nil {
		return err
	}

	addr := net.JoinHostPort(host, port)
	d := net.Dialer{}
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("dial tcp %s: %w", addr, err)
	}

	clientConn, chans, reqs, err := ssh.NewClientConn(conn, addr, config)
	if err != nil {
		conn.Close()
		return fmt.Errorf("ssh handshake with %s: %w", addr, err)
	}
	sshClient := ssh.NewClient(clientConn, chans, reqs)
	defer sshClient.Close()

	sftpClient, err := sftp.NewClient(sshClient)
	if err != nil {
		return fmt.Errorf("create sftp client: %w", err)
	}
	defer sftpClient.Close()

	remoteDir := accessInfo["remoteDir"]
	if remoteDir != "" {
		if err := sftpClient.MkdirAll(remoteDir); err != nil {
			return fmt.Errorf("ensure remote dir %s: %w", remoteDir, err)
		}
	}

	// upload under a temporary name so readers never see a partial file
	finalPath := path.Join(remoteDir, objectName)
	partPath := finalPath + ".part"

	f, err := sftpClient.Create(partPath)
	if err != nil {
		return fmt.Errorf("create remote file %s: %w", partPath, err)
	}
	if _, err := io.Copy(f, reader); err != nil {
		f.Close()
		sftpClient.Remove(partPath)
		return fmt.Errorf("copy to remote file %s: %w", partPath, err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close remote file %s: %w", partPath, err)
	}
	if err := sftpClient.PosixRename(partPath, finalPath); err != nil {
		return fmt.Errorf("rename %s to %s: %w", partPath, finalPath, err)
	}

	logger.Infof("Successfully uploaded '%s' to %s", finalPath, addr)
	return nil
}

func sshClientConfig(accessInfo map[string]string) (*ssh.ClientConfig, error) {
	var auths []ssh.AuthMethod
	switch {
	case accessInfo["privateKey"] != "":
		keyBytes, err := base64.StdEncoding.DecodeString(accessInfo["privateKey"])
		if err != nil {
			keyBytes = []byte(accessInfo["privateKey"])
		}
		signer, err := ssh.ParsePrivateKey(keyBytes)
		if err != nil {
			return nil, fmt.Errorf("parse private key: %w", err)
		}
		auths = append(auths, ssh.PublicKeys(signer))
	case accessInfo["password"] != "":
		auths = append(auths, ssh.Password(accessInfo["password"]))
	default:
		return nil, fmt.Errorf("no auth method provided; set password or privateKey")
	}

	hostKeyCallback := ssh.InsecureIgnoreHostKey()
	if hostKey := accessInfo["hostKey"]; hostKey != "" {
		pub, _, _, _, err := ssh.ParseAuthorizedKey([]byte(hostKey))
		if err != nil {
			return nil, fmt.Errorf("parse host key: %w", err)
		}
		hostKeyCallback = ssh.FixedHostKey(pub)
	} else {
		logger.Warnf("SFTP target %s has no pinned host key", accessInfo["host"])
	}

	return &ssh.ClientConfig{
		User:            accessInfo["user"],
		Auth:            auths,
		HostKeyCallback: hostKeyCallback,
		Timeout:         10 * time.Second,
	}, nil
}
