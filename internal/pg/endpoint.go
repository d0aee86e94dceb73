package pg

import (
	"fmt"
	"net"
	"net/url"
	"strconv"
)

type Role string

const (
	RolePrimary Role = "primary"
	RoleStandby Role = "standby"
)

const DefaultApplicationName = "pgreplmon"

// Endpoint identifies one PostgreSQL node. Immutable after startup.
type Endpoint struct {
	Role     Role
	Host     string
	Port     int
	Database string
	User     string
	Password string
	SSLMode  string
	AppName  string
}

// ConnString builds a postgres:// URL for pgx.ParseConfig.
func (e Endpoint) ConnString() string {
	u := &url.URL{
		Scheme: "postgres",
		Host:   net.JoinHostPort(e.Host, strconv.Itoa(e.Port)),
		Path:   "/" + e.Database,
	}
	if e.User != "" {
		if e.Password != "" {
			u.User = url.UserPassword(e.User, e.Password)
		} else {
			u.User = url.User(e.User)
		}
	}

	q := url.Values{}
	sslMode := e.SSLMode
	if sslMode == "" {
		sslMode = "disable"
	}
	q.Set("sslmode", sslMode)
	appName := e.AppName
	if appName == "" {
		appName = DefaultApplicationName
	}
	q.Set("application_name", appName)
	u.RawQuery = q.Encode()

	return u.String()
}

// String never includes the password.
func (e Endpoint) String() string {
	return fmt.Sprintf("%s(%s@%s/%s)", e.Role, e.User, net.JoinHostPort(e.Host, strconv.Itoa(e.Port)), e.Database)
}
