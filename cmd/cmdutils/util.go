package cmdutils

import (
	"fmt"
	"net"
	"strconv"
	"strings"
)

// Addr turns "host:port" into a base URL. Full URLs pass through unchanged.
func Addr(from string) (string, error) {
	if strings.HasPrefix(from, "http://") || strings.HasPrefix(from, "https://") {
		return strings.TrimRight(from, "/"), nil
	}
	host, port, err := net.SplitHostPort(from)
	if err != nil {
		return "", err
	}
	if host == "" {
		host = "127.0.0.1"
	}
	return fmt.Sprintf("http://%s", net.JoinHostPort(host, port)), nil
}

// ListenAddr builds a bind address; an empty host listens on all interfaces.
func ListenAddr(host string, port int) string {
	return net.JoinHostPort(host, strconv.Itoa(port))
}
