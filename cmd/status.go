package cmd

import (
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/hashmap-kz/pgreplmon/cmd/cmdutils"
	"github.com/hashmap-kz/pgreplmon/internal/render"
)

type StatusOpts struct {
	Addr    string
	Timeout time.Duration
}

// FetchStatus queries the /health endpoint of a running monitor and prints a
// short summary. A 503 answer is printed first and then returned as an error.
func FetchStatus(w io.Writer, opts *StatusOpts) error {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}

	client := resty.New()
	client.SetRetryCount(0)
	client.SetTimeout(timeout)

	addr, err := cmdutils.Addr(opts.Addr)
	if err != nil {
		return err
	}

	var hr render.HealthReport
	resp, err := client.R().
		SetResult(&hr).
		SetError(&hr).
		Get(addr + "/health")
	if err != nil {
		return fmt.Errorf("cannot query monitor at %s: %w", addr, err)
	}
	if resp.StatusCode() != http.StatusOK && resp.StatusCode() != http.StatusServiceUnavailable {
		return fmt.Errorf("unexpected status from %s: %s", addr, resp.Status())
	}

	printStatus(w, &hr)

	if resp.StatusCode() == http.StatusServiceUnavailable {
		return fmt.Errorf("cluster is %s", hr.Status)
	}
	return nil
}

func printStatus(w io.Writer, hr *render.HealthReport) {
	_, _ = fmt.Fprintf(w, "Status:    %s (score %d)\n", hr.Status, hr.HealthScore)
	if !hr.Timestamp.IsZero() {
		_, _ = fmt.Fprintf(w, "Collected: %s\n", hr.Timestamp.Format(time.RFC3339))
	}
	printNode(w, "Primary:", &hr.Primary)
	printNode(w, "Standby:", &hr.Standby)

	lag := "unknown"
	if hr.Replication.LagBytes != nil {
		lag = fmt.Sprintf("%d bytes", *hr.Replication.LagBytes)
		if hr.Replication.LagMB != nil {
			lag = fmt.Sprintf("%s (%.2f MB)", lag, *hr.Replication.LagMB)
		}
	}
	_, _ = fmt.Fprintf(w, "Lag:       %s\n", lag)
	if hr.Replication.LagSeconds != nil {
		_, _ = fmt.Fprintf(w, "Lag time:  %.3fs\n", *hr.Replication.LagSeconds)
	}
	if hr.DataConsistent != nil {
		_, _ = fmt.Fprintf(w, "Consistent: %t\n", *hr.DataConsistent)
	}
}

func printNode(w io.Writer, title string, n *render.NodeReport) {
	state := "down"
	if n.Up {
		state = "up"
	}
	_, _ = fmt.Fprintf(w, "%-10s %s %s:%d %s (score %d)\n", title, state, n.Host, n.Port, n.Status, n.Score)
}
