package endpoints

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/jackzampolin/pagecap/internal/api"
	"github.com/jackzampolin/pagecap/internal/jobs"
	"github.com/jackzampolin/pagecap/internal/svcctx"
)

// JobEventsEndpoint handles GET /api/job/events, a server-sent event stream
// of status and metrics updates.
type JobEventsEndpoint struct {
	// Heartbeat is the keep-alive comment interval. Default 15s.
	Heartbeat time.Duration
}

func (e *JobEventsEndpoint) Route() (string, string, http.HandlerFunc) {
	return "GET", "/api/job/events", e.handler
}

func (e *JobEventsEndpoint) RequiresInit() bool { return true }

// handler godoc
//
//	@Summary		Follow run progress
//	@Description	Server-sent events: "status" carries a status line, "metrics" carries run metrics
//	@Tags			job
//	@Produce		text/event-stream
//	@Success		200	{object}	jobs.Update
//	@Failure		503	{object}	ErrorResponse
//	@Router			/api/job/events [get]
func (e *JobEventsEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	b := svcctx.BroadcasterFrom(r.Context())
	if b == nil {
		writeError(w, http.StatusServiceUnavailable, "broadcaster not initialized")
		return
	}

	rc := http.NewResponseController(w)
	// The stream outlives the server write timeout.
	_ = rc.SetWriteDeadline(time.Time{})

	updates, unsubscribe := b.Subscribe(32)
	defer unsubscribe()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	now := time.Now()
	status, metrics := b.Last()
	if err := writeEvent(w, jobs.Update{Kind: "status", Status: status, Time: now}); err != nil {
		return
	}
	if err := writeEvent(w, jobs.Update{Kind: "metrics", Metrics: &metrics, Time: now}); err != nil {
		return
	}
	_ = rc.Flush()

	heartbeat := e.Heartbeat
	if heartbeat <= 0 {
		heartbeat = 15 * time.Second
	}
	ticker := time.NewTicker(heartbeat)
	defer ticker.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case u, ok := <-updates:
			if !ok {
				return
			}
			if err := writeEvent(w, u); err != nil {
				return
			}
		case <-ticker.C:
			if _, err := io.WriteString(w, ": keep-alive\n\n"); err != nil {
				return
			}
		}
		if err := rc.Flush(); err != nil {
			return
		}
	}
}

func writeEvent(w io.Writer, u jobs.Update) error {
	data, err := json.Marshal(u)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "event: %s\ndata: %s\n\n", u.Kind, data)
	return err
}

func (e *JobEventsEndpoint) Command(getServerURL func() string) *cobra.Command {
	return &cobra.Command{
		Use:   "events",
		Short: "Follow run progress until interrupted",
		RunE: func(cmd *cobra.Command, args []string) error {
			client := api.NewClient(getServerURL())
			return client.Stream(cmd.Context(), "/api/job/events", func(event string, data []byte) error {
				var u jobs.Update
				if err := json.Unmarshal(data, &u); err != nil {
					return err
				}
				if api.GetOutputFormat() == api.OutputFormatJSON {
					return api.OutputTo(os.Stdout, api.OutputFormatJSON, u)
				}
				if u.Kind == "status" {
					fmt.Printf("%s  %s\n", u.Time.Format(time.TimeOnly), u.Status)
				} else if u.Metrics != nil {
					m := u.Metrics
					fmt.Printf("%s  %d/%d pages, part %d, ~%d bytes, wait %dms\n",
						u.Time.Format(time.TimeOnly), m.CapturedPages, m.TotalPages, m.PartIndex, m.EstimatedBytes, m.CurrentWaitMs)
				}
				return nil
			})
		},
	}
}
