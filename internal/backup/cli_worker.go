package backup

import (
	"fmt"
	"net"
	"strings"
	"time"

	"golang.org/x/crypto/ssh"

	"github.com/agncf/netfortress/internal/inventory"
)

const (
	sshConnectTimeout = 60 * time.Second
	sshReadTimeout    = 120 * time.Second
)

// ConfigFetcher retrieves the raw running configuration of one device.
type ConfigFetcher interface {
	Fetch(snap inventory.Snapshot) (string, error)
}

// CLIWorker fetches configurations over SSH for the CLI platforms
// (IOS, NX-OS, EOS, OS10).
type CLIWorker struct {
	connectTimeout time.Duration
	readTimeout    time.Duration
}

// NewCLIWorker creates an SSH config fetcher with the default timeouts.
func NewCLIWorker() *CLIWorker {
	return &CLIWorker{
		connectTimeout: sshConnectTimeout,
		readTimeout:    sshReadTimeout,
	}
}

// showCommand returns the platform's running-config command.
func showCommand(driverID string) (string, error) {
	switch driverID {
	case "cisco_ios", "cisco_nxos", "arista_eos":
		return "show running-config", nil
	case "dell_os10":
		return "show running-configuration", nil
	default:
		return "", fmt.Errorf("no CLI command for driver %q", driverID)
	}
}

func ensurePortSuffix(host string, port int) string {
	switch {
	case !strings.Contains(host, ":"):
		return fmt.Sprintf("%s:%d", host, port)
	case strings.HasPrefix(host, "[") && strings.Contains(host, "]:"):
		return host
	default:
		return fmt.Sprintf("[%s]:%d", host, port)
	}
}

// Fetch connects to the device, runs the platform's show command and returns
// the raw output. Network devices present ephemeral host keys, so host key
// verification is skipped.
func (w *CLIWorker) Fetch(snap inventory.Snapshot) (string, error) {
	command, err := showCommand(snap.DriverID)
	if err != nil {
		return "", err
	}

	sshcfg := ssh.ClientConfig{
		User:            snap.Username,
		Auth:            []ssh.AuthMethod{ssh.Password(snap.Password)},
		HostKeyCallback: ssh.InsecureIgnoreHostKey(),
		Timeout:         w.connectTimeout,
	}

	addr := ensurePortSuffix(snap.IP, snap.Port)
	tcpconn, err := net.DialTimeout("tcp", addr, w.connectTimeout)
	if err != nil {
		return "", fmt.Errorf("dial %s: %w", addr, err)
	}

	sshconn, chans, reqs, err := ssh.NewClientConn(tcpconn, addr, &sshcfg)
	if err != nil {
		tcpconn.Close()
		return "", fmt.Errorf("ssh handshake with %s: %w", addr, err)
	}
	client := ssh.NewClient(sshconn, chans, reqs)
	defer client.Close()

	session, err := client.NewSession()
	if err != nil {
		return "", fmt.Errorf("ssh session on %s: %w", addr, err)
	}
	defer session.Close()

	// Hard read deadline: a device that stops mid-output would otherwise
	// hold the worker forever.
	timer := time.AfterFunc(w.readTimeout, func() { client.Close() })
	defer timer.Stop()

	output, err := session.Output(command)
	if err != nil {
		if !timer.Stop() {
			return "", fmt.Errorf("read from %s timed out after %s", addr, w.readTimeout)
		}
		return "", fmt.Errorf("run %q on %s: %w", command, addr, err)
	}
	return string(output), nil
}

// Compile-time check
var _ ConfigFetcher = (*CLIWorker)(nil)
