package endpoints

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/spf13/cobra"

	"github.com/jackzampolin/pagecap/internal/api"
	"github.com/jackzampolin/pagecap/internal/jobcfg"
	"github.com/jackzampolin/pagecap/internal/jobs"
	"github.com/jackzampolin/pagecap/internal/svcctx"
)

const maxStartBody = 64 << 10

// StartJobResponse is the response for starting a run.
type StartJobResponse struct {
	Status   string        `json:"status"`
	Settings jobs.Settings `json:"settings"`
}

// StopJobResponse is the response for stopping a run.
type StopJobResponse struct {
	Status string `json:"status"`
}

// JobStatusResponse is the session snapshot plus the last status line.
type JobStatusResponse struct {
	Session jobs.Session `json:"session"`
	Status  string       `json:"status"`
	Metrics jobs.Metrics `json:"metrics"`
}

// StartJobEndpoint handles POST /api/job/start.
// Defaults are read from config at request time, so a reloaded config file
// applies to the next run.
type StartJobEndpoint struct{}

func (e *StartJobEndpoint) Route() (string, string, http.HandlerFunc) {
	return "POST", "/api/job/start", e.handler
}

func (e *StartJobEndpoint) RequiresInit() bool { return true }

// handler godoc
//
//	@Summary		Start a capture run
//	@Description	Start capturing pages. Omitted fields use configured defaults; out-of-range values are clamped.
//	@Tags			job
//	@Accept			json
//	@Produce		json
//	@Param			request	body		jobcfg.Request	false	"Run overrides"
//	@Success		202		{object}	StartJobResponse
//	@Failure		400		{object}	ErrorResponse
//	@Failure		409		{object}	ErrorResponse
//	@Failure		503		{object}	ErrorResponse
//	@Router			/api/job/start [post]
func (e *StartJobEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	var req *jobcfg.Request
	raw, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxStartBody))
	if err != nil {
		writeError(w, http.StatusBadRequest, "failed to read request body")
		return
	}
	if len(raw) > 0 {
		if err := validateStart(raw); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		req = &jobcfg.Request{}
		if err := json.Unmarshal(raw, req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
	}

	controller := svcctx.ControllerFrom(r.Context())
	builder := svcctx.BuilderFrom(r.Context())
	if controller == nil || builder == nil {
		writeError(w, http.StatusServiceUnavailable, "controller not initialized")
		return
	}

	settings := builder.Settings(r.Context(), req)
	status, err := controller.Start(r.Context(), settings)
	if err != nil {
		if errors.Is(err, jobs.ErrAlreadyRunning) {
			writeError(w, http.StatusConflict, status)
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusAccepted, StartJobResponse{Status: status, Settings: settings})
}

func (e *StartJobEndpoint) Command(getServerURL func() string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "start",
		Short: "Start a capture run",
		Long: `Start capturing pages in the reader tab.

Only flags that are set are sent; everything else uses the server's
configured defaults.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			req, err := jobcfg.RequestFromFlags(cmd.Flags())
			if err != nil {
				return err
			}

			client := api.NewClient(getServerURL())
			var resp StartJobResponse
			if err := client.Post(cmd.Context(), "/api/job/start", req, &resp); err != nil {
				return err
			}
			return api.Output(resp)
		},
	}
	jobcfg.AddFlags(cmd.Flags())
	return cmd
}

// StopJobEndpoint handles POST /api/job/stop.
type StopJobEndpoint struct{}

func (e *StopJobEndpoint) Route() (string, string, http.HandlerFunc) {
	return "POST", "/api/job/stop", e.handler
}

func (e *StopJobEndpoint) RequiresInit() bool { return true }

// handler godoc
//
//	@Summary		Stop the capture run
//	@Description	Ask the active run to finish after the current page and deliver what was captured
//	@Tags			job
//	@Produce		json
//	@Success		200	{object}	StopJobResponse
//	@Failure		409	{object}	ErrorResponse
//	@Failure		503	{object}	ErrorResponse
//	@Router			/api/job/stop [post]
func (e *StopJobEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	controller := svcctx.ControllerFrom(r.Context())
	if controller == nil {
		writeError(w, http.StatusServiceUnavailable, "controller not initialized")
		return
	}

	status, err := controller.Stop(r.Context())
	if err != nil {
		if errors.Is(err, jobs.ErrNotRunning) {
			writeError(w, http.StatusConflict, status)
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, StopJobResponse{Status: status})
}

func (e *StopJobEndpoint) Command(getServerURL func() string) *cobra.Command {
	return &cobra.Command{
		Use:   "stop",
		Short: "Stop the capture run after the current page",
		RunE: func(cmd *cobra.Command, args []string) error {
			client := api.NewClient(getServerURL())
			var resp StopJobResponse
			if err := client.Post(cmd.Context(), "/api/job/stop", nil, &resp); err != nil {
				return err
			}
			fmt.Println(resp.Status)
			return nil
		},
	}
}

// JobStatusEndpoint handles GET /api/job/status.
type JobStatusEndpoint struct{}

func (e *JobStatusEndpoint) Route() (string, string, http.HandlerFunc) {
	return "GET", "/api/job/status", e.handler
}

func (e *JobStatusEndpoint) RequiresInit() bool { return true }

// handler godoc
//
//	@Summary		Get run status
//	@Description	Session snapshot, last status line and metrics
//	@Tags			job
//	@Produce		json
//	@Success		200	{object}	JobStatusResponse
//	@Failure		503	{object}	ErrorResponse
//	@Router			/api/job/status [get]
func (e *JobStatusEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	controller := svcctx.ControllerFrom(r.Context())
	if controller == nil {
		writeError(w, http.StatusServiceUnavailable, "controller not initialized")
		return
	}

	session, err := controller.Status(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	resp := JobStatusResponse{Session: session}
	if b := svcctx.BroadcasterFrom(r.Context()); b != nil {
		resp.Status, resp.Metrics = b.Last()
	}
	writeJSON(w, http.StatusOK, resp)
}

func (e *JobStatusEndpoint) Command(getServerURL func() string) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show run status",
		RunE: func(cmd *cobra.Command, args []string) error {
			client := api.NewClient(getServerURL())
			var resp JobStatusResponse
			if err := client.Get(cmd.Context(), "/api/job/status", &resp); err != nil {
				return err
			}
			return api.Output(resp)
		},
	}
}
