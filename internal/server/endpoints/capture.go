package endpoints

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/spf13/cobra"

	"github.com/jackzampolin/pagecap/internal/api"
	"github.com/jackzampolin/pagecap/internal/capture"
	"github.com/jackzampolin/pagecap/internal/jobs"
	"github.com/jackzampolin/pagecap/internal/svcctx"
)

// CaptureOneResponse is the response for a single capture.
type CaptureOneResponse struct {
	Path string `json:"path"`
}

// TurnPageResponse describes how the page was turned.
type TurnPageResponse struct {
	Result string `json:"result"`
}

// CaptureOneEndpoint handles POST /api/capture/one.
type CaptureOneEndpoint struct{}

func (e *CaptureOneEndpoint) Route() (string, string, http.HandlerFunc) {
	return "POST", "/api/capture/one", e.handler
}

func (e *CaptureOneEndpoint) RequiresInit() bool { return true }

// handler godoc
//
//	@Summary		Capture the visible page
//	@Description	Save one screenshot of the reader tab as a numbered PNG. Rejected during a run.
//	@Tags			capture
//	@Produce		json
//	@Success		200	{object}	CaptureOneResponse
//	@Failure		409	{object}	ErrorResponse
//	@Failure		502	{object}	ErrorResponse
//	@Failure		503	{object}	ErrorResponse
//	@Router			/api/capture/one [post]
func (e *CaptureOneEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	controller := svcctx.ControllerFrom(r.Context())
	capturer := svcctx.CapturerFrom(r.Context())
	if controller == nil || capturer == nil {
		writeError(w, http.StatusServiceUnavailable, "capture not initialized")
		return
	}

	var path string
	err := controller.Exclusive(r.Context(), func(ctx context.Context) error {
		var err error
		path, err = capturer.CaptureOne(ctx)
		return err
	})
	if err != nil {
		writeBrowserError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, CaptureOneResponse{Path: path})
}

func (e *CaptureOneEndpoint) Command(getServerURL func() string) *cobra.Command {
	return &cobra.Command{
		Use:   "one",
		Short: "Capture the visible page as a PNG",
		RunE: func(cmd *cobra.Command, args []string) error {
			client := api.NewClient(getServerURL())
			var resp CaptureOneResponse
			if err := client.Post(cmd.Context(), "/api/capture/one", nil, &resp); err != nil {
				return err
			}
			fmt.Println(resp.Path)
			return nil
		},
	}
}

// TurnPageEndpoint handles POST /api/capture/turn.
type TurnPageEndpoint struct{}

func (e *TurnPageEndpoint) Route() (string, string, http.HandlerFunc) {
	return "POST", "/api/capture/turn", e.handler
}

func (e *TurnPageEndpoint) RequiresInit() bool { return true }

// handler godoc
//
//	@Summary		Turn one page
//	@Description	Click the page-turn area or press the arrow key once. Rejected during a run.
//	@Tags			capture
//	@Produce		json
//	@Success		200	{object}	TurnPageResponse
//	@Failure		409	{object}	ErrorResponse
//	@Failure		502	{object}	ErrorResponse
//	@Failure		503	{object}	ErrorResponse
//	@Router			/api/capture/turn [post]
func (e *TurnPageEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	controller := svcctx.ControllerFrom(r.Context())
	turner := svcctx.TurnerFrom(r.Context())
	if controller == nil || turner == nil {
		writeError(w, http.StatusServiceUnavailable, "page turner not initialized")
		return
	}

	var result string
	err := controller.Exclusive(r.Context(), func(ctx context.Context) error {
		var err error
		result, err = turner.Turn(ctx)
		return err
	})
	if err != nil {
		writeBrowserError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, TurnPageResponse{Result: result})
}

func (e *TurnPageEndpoint) Command(getServerURL func() string) *cobra.Command {
	return &cobra.Command{
		Use:   "turn",
		Short: "Turn one page",
		RunE: func(cmd *cobra.Command, args []string) error {
			client := api.NewClient(getServerURL())
			var resp TurnPageResponse
			if err := client.Post(cmd.Context(), "/api/capture/turn", nil, &resp); err != nil {
				return err
			}
			fmt.Println(resp.Result)
			return nil
		},
	}
}

func writeBrowserError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, jobs.ErrAlreadyRunning):
		writeError(w, http.StatusConflict, jobs.StatusAlreadyCapturing)
	case errors.Is(err, capture.ErrNoActiveTarget), errors.Is(err, capture.ErrNoTurnTarget), errors.Is(err, capture.ErrClosed):
		writeError(w, http.StatusBadGateway, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}
