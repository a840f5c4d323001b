package nfsgate

import (
	"fmt"
	"net"
	"os/exec"
	"runtime"
	"strings"

	billy "github.com/go-git/go-billy/v5"
	"github.com/golang/glog"
	nfs "github.com/willscott/go-nfs"
	nfshelper "github.com/willscott/go-nfs/helpers"
)

// handleCacheSize bounds the NFS file-handle cache. Handles past the
// cap are invalidated and the kernel re-looks them up.
const handleCacheSize = 4096

// Server is one NFS export of a TreeFS, bound to an ephemeral
// loopback port.
type Server struct {
	listener net.Listener
}

// NewServer starts serving fs over NFSv3 and returns once the
// listener is bound.
func NewServer(fs billy.Filesystem) (*Server, error) {
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return nil, fmt.Errorf("nfs listen: %w", err)
	}

	handler := nfshelper.NewCachingHandler(nfshelper.NewNullAuthHandler(fs), handleCacheSize)
	go func() {
		if err := nfs.Serve(listener, handler); err != nil {
			glog.V(1).Infof("nfs export stopped: %v", err)
		}
	}()

	glog.Infof("nfs export listening on %s", listener.Addr())
	return &Server{listener: listener}, nil
}

// Port returns the TCP port of the export.
func (s *Server) Port() int {
	return s.listener.Addr().(*net.TCPAddr).Port
}

// Close stops the export. Existing mounts go stale.
func (s *Server) Close() error {
	return s.listener.Close()
}

// mountOptions builds the -o string for the host's mount command.
// Both platforms speak NFSv3 over TCP against the ephemeral port; the
// lock options keep the kernel from consulting a statd that is not
// running.
func mountOptions(port int, writable bool) (string, error) {
	opts := []string{
		fmt.Sprintf("port=%d", port),
		fmt.Sprintf("mountport=%d", port),
		"vers=3",
		"tcp",
	}
	switch runtime.GOOS {
	case "darwin":
		opts = append(opts, "locallocks", "noresvport")
		if !writable {
			opts = append(opts, "rdonly")
		}
	case "linux":
		opts = append(opts, "local_lock=all", "nolock")
		if !writable {
			opts = append(opts, "ro")
		}
	default:
		return "", fmt.Errorf("no mount support for %s", runtime.GOOS)
	}
	return strings.Join(opts, ","), nil
}

// Mount attaches the export at mountpoint via the system mount
// command. Needs sudo.
func Mount(port int, mountpoint string, writable bool) error {
	opts, err := mountOptions(port, writable)
	if err != nil {
		return err
	}
	cmd := exec.Command("sudo", "mount", "-t", "nfs", "-o", opts, "localhost:/", mountpoint)
	if output, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("mount %s: %w\n%s", mountpoint, err, output)
	}
	return nil
}

// Unmount detaches mountpoint. On macOS diskutil is tried first since
// it needs no sudo for user mounts.
func Unmount(mountpoint string) error {
	if runtime.GOOS == "darwin" {
		if err := exec.Command("diskutil", "unmount", mountpoint).Run(); err == nil {
			return nil
		}
	}
	output, err := exec.Command("sudo", "umount", mountpoint).CombinedOutput()
	if err != nil {
		return fmt.Errorf("unmount %s: %w\n%s", mountpoint, err, output)
	}
	return nil
}
