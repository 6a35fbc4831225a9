package connect

import (
	"context"
	"net/http"
	"strings"

	"connectrpc.com/connect"
)

// TimerClient calls a TimerService.
type TimerClient struct {
	playRoutine       *connect.Client[PlayRoutineRequest, StatusResponse]
	playDuration      *connect.Client[PlayDurationRequest, StatusResponse]
	start             *connect.Client[IndexRequest, StatusResponse]
	delayedStart      *connect.Client[DelayedStartRequest, StatusResponse]
	pause             *connect.Client[PauseRequest, StatusResponse]
	resume            *connect.Client[Empty, StatusResponse]
	stop              *connect.Client[IndexRequest, StatusResponse]
	skip              *connect.Client[IndexRequest, StatusResponse]
	next              *connect.Client[Empty, StatusResponse]
	previous          *connect.Client[Empty, StatusResponse]
	getStatus         *connect.Client[Empty, StatusResponse]
	watchStatus       *connect.Client[Empty, WatchEvent]
	saveRoutine       *connect.Client[SaveRoutineRequest, RoutineResponse]
	listRoutines      *connect.Client[Empty, ListRoutinesResponse]
	getRoutine        *connect.Client[RoutineRequest, RoutineResponse]
	deleteRoutine     *connect.Client[RoutineRequest, Empty]
	getPreferences    *connect.Client[Empty, PreferencesResponse]
	updatePreferences *connect.Client[UpdatePreferencesRequest, PreferencesResponse]
}

// NewTimerClient creates a client for the service at baseURL. A non-empty
// token is sent with every call.
func NewTimerClient(httpClient connect.HTTPClient, baseURL, token string, opts ...connect.ClientOption) *TimerClient {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	baseURL = strings.TrimRight(baseURL, "/")
	opts = append([]connect.ClientOption{
		connect.WithCodec(Codec{}),
		connect.WithInterceptors(NewTokenInterceptor(token)),
	}, opts...)

	return &TimerClient{
		playRoutine:       connect.NewClient[PlayRoutineRequest, StatusResponse](httpClient, baseURL+PlayRoutineProcedure, opts...),
		playDuration:      connect.NewClient[PlayDurationRequest, StatusResponse](httpClient, baseURL+PlayDurationProcedure, opts...),
		start:             connect.NewClient[IndexRequest, StatusResponse](httpClient, baseURL+StartProcedure, opts...),
		delayedStart:      connect.NewClient[DelayedStartRequest, StatusResponse](httpClient, baseURL+DelayedStartProcedure, opts...),
		pause:             connect.NewClient[PauseRequest, StatusResponse](httpClient, baseURL+PauseProcedure, opts...),
		resume:            connect.NewClient[Empty, StatusResponse](httpClient, baseURL+ResumeProcedure, opts...),
		stop:              connect.NewClient[IndexRequest, StatusResponse](httpClient, baseURL+StopProcedure, opts...),
		skip:              connect.NewClient[IndexRequest, StatusResponse](httpClient, baseURL+SkipProcedure, opts...),
		next:              connect.NewClient[Empty, StatusResponse](httpClient, baseURL+NextProcedure, opts...),
		previous:          connect.NewClient[Empty, StatusResponse](httpClient, baseURL+PreviousProcedure, opts...),
		getStatus:         connect.NewClient[Empty, StatusResponse](httpClient, baseURL+GetStatusProcedure, opts...),
		watchStatus:       connect.NewClient[Empty, WatchEvent](httpClient, baseURL+WatchStatusProcedure, opts...),
		saveRoutine:       connect.NewClient[SaveRoutineRequest, RoutineResponse](httpClient, baseURL+SaveRoutineProcedure, opts...),
		listRoutines:      connect.NewClient[Empty, ListRoutinesResponse](httpClient, baseURL+ListRoutinesProcedure, opts...),
		getRoutine:        connect.NewClient[RoutineRequest, RoutineResponse](httpClient, baseURL+GetRoutineProcedure, opts...),
		deleteRoutine:     connect.NewClient[RoutineRequest, Empty](httpClient, baseURL+DeleteRoutineProcedure, opts...),
		getPreferences:    connect.NewClient[Empty, PreferencesResponse](httpClient, baseURL+GetPreferencesProcedure, opts...),
		updatePreferences: connect.NewClient[UpdatePreferencesRequest, PreferencesResponse](httpClient, baseURL+UpdatePreferencesProcedure, opts...),
	}
}

func callStatus[Req any](ctx context.Context, c *connect.Client[Req, StatusResponse], req *Req) (Status, error) {
	resp, err := c.CallUnary(ctx, connect.NewRequest(req))
	if err != nil {
		return Status{}, err
	}
	return resp.Msg.Status, nil
}

// PlayRoutine calls TimerService.PlayRoutine.
func (c *TimerClient) PlayRoutine(ctx context.Context, req *PlayRoutineRequest) (Status, error) {
	return callStatus(ctx, c.playRoutine, req)
}

// PlayDuration calls TimerService.PlayDuration.
func (c *TimerClient) PlayDuration(ctx context.Context, req *PlayDurationRequest) (Status, error) {
	return callStatus(ctx, c.playDuration, req)
}

// Start calls TimerService.Start.
func (c *TimerClient) Start(ctx context.Context, index int) (Status, error) {
	return callStatus(ctx, c.start, &IndexRequest{Index: index})
}

// DelayedStart calls TimerService.DelayedStart.
func (c *TimerClient) DelayedStart(ctx context.Context, delaySeconds, index int) (Status, error) {
	return callStatus(ctx, c.delayedStart, &DelayedStartRequest{DelaySeconds: delaySeconds, Index: index})
}

// Pause calls TimerService.Pause.
func (c *TimerClient) Pause(ctx context.Context, req *PauseRequest) (Status, error) {
	return callStatus(ctx, c.pause, req)
}

// Resume calls TimerService.Resume.
func (c *TimerClient) Resume(ctx context.Context) (Status, error) {
	return callStatus(ctx, c.resume, &Empty{})
}

// Stop calls TimerService.Stop.
func (c *TimerClient) Stop(ctx context.Context, index int) (Status, error) {
	return callStatus(ctx, c.stop, &IndexRequest{Index: index})
}

// Skip calls TimerService.Skip.
func (c *TimerClient) Skip(ctx context.Context, index int) (Status, error) {
	return callStatus(ctx, c.skip, &IndexRequest{Index: index})
}

// Next calls TimerService.Next.
func (c *TimerClient) Next(ctx context.Context) (Status, error) {
	return callStatus(ctx, c.next, &Empty{})
}

// Previous calls TimerService.Previous.
func (c *TimerClient) Previous(ctx context.Context) (Status, error) {
	return callStatus(ctx, c.previous, &Empty{})
}

// GetStatus calls TimerService.GetStatus.
func (c *TimerClient) GetStatus(ctx context.Context) (Status, error) {
	return callStatus(ctx, c.getStatus, &Empty{})
}

// WatchStatus calls TimerService.WatchStatus and passes every message to fn
// until the stream ends, ctx is done or fn returns false.
func (c *TimerClient) WatchStatus(ctx context.Context, fn func(*WatchEvent) bool) error {
	stream, err := c.watchStatus.CallServerStream(ctx, connect.NewRequest(&Empty{}))
	if err != nil {
		return err
	}
	defer stream.Close()

	for stream.Receive() {
		if !fn(stream.Msg()) {
			return nil
		}
	}
	if err := stream.Err(); err != nil && ctx.Err() == nil {
		return err
	}
	return nil
}

// SaveRoutine calls TimerService.SaveRoutine.
func (c *TimerClient) SaveRoutine(ctx context.Context, r Routine) (Routine, error) {
	resp, err := c.saveRoutine.CallUnary(ctx, connect.NewRequest(&SaveRoutineRequest{Routine: r}))
	if err != nil {
		return Routine{}, err
	}
	return resp.Msg.Routine, nil
}

// ListRoutines calls TimerService.ListRoutines.
func (c *TimerClient) ListRoutines(ctx context.Context) ([]RoutineSummary, error) {
	resp, err := c.listRoutines.CallUnary(ctx, connect.NewRequest(&Empty{}))
	if err != nil {
		return nil, err
	}
	return resp.Msg.Routines, nil
}

// GetRoutine calls TimerService.GetRoutine.
func (c *TimerClient) GetRoutine(ctx context.Context, id string) (Routine, error) {
	resp, err := c.getRoutine.CallUnary(ctx, connect.NewRequest(&RoutineRequest{ID: id}))
	if err != nil {
		return Routine{}, err
	}
	return resp.Msg.Routine, nil
}

// DeleteRoutine calls TimerService.DeleteRoutine.
func (c *TimerClient) DeleteRoutine(ctx context.Context, id string) error {
	_, err := c.deleteRoutine.CallUnary(ctx, connect.NewRequest(&RoutineRequest{ID: id}))
	return err
}

// GetPreferences calls TimerService.GetPreferences.
func (c *TimerClient) GetPreferences(ctx context.Context) (Preferences, error) {
	resp, err := c.getPreferences.CallUnary(ctx, connect.NewRequest(&Empty{}))
	if err != nil {
		return Preferences{}, err
	}
	return resp.Msg.Preferences, nil
}

// UpdatePreferences calls TimerService.UpdatePreferences.
func (c *TimerClient) UpdatePreferences(ctx context.Context, changes map[string]any) (Preferences, error) {
	resp, err := c.updatePreferences.CallUnary(ctx, connect.NewRequest(&UpdatePreferencesRequest{Changes: changes}))
	if err != nil {
		return Preferences{}, err
	}
	return resp.Msg.Preferences, nil
}
