// Package connect provides the Connect RPC control API.
package connect

import (
	"context"
	"net/http"
	"time"

	"connectrpc.com/connect"
	"github.com/cockroachdb/errors"
	"github.com/go-playground/validator/v10"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/routinetimer/internal/app/playback"
	"github.com/osa030/routinetimer/internal/app/session"
	"github.com/osa030/routinetimer/internal/domain/preference"
	"github.com/osa030/routinetimer/internal/domain/routine"
	"github.com/osa030/routinetimer/internal/domain/sequence"
	"github.com/osa030/routinetimer/internal/infra/preferences"
	"github.com/osa030/routinetimer/internal/infra/store"
)

// TimerServiceName is the fully-qualified name of the service.
const TimerServiceName = "routinetimer.v1.TimerService"

// Procedure paths of TimerService.
const (
	PlayRoutineProcedure       = "/" + TimerServiceName + "/PlayRoutine"
	PlayDurationProcedure      = "/" + TimerServiceName + "/PlayDuration"
	StartProcedure             = "/" + TimerServiceName + "/Start"
	DelayedStartProcedure      = "/" + TimerServiceName + "/DelayedStart"
	PauseProcedure             = "/" + TimerServiceName + "/Pause"
	ResumeProcedure            = "/" + TimerServiceName + "/Resume"
	StopProcedure              = "/" + TimerServiceName + "/Stop"
	SkipProcedure              = "/" + TimerServiceName + "/Skip"
	NextProcedure              = "/" + TimerServiceName + "/Next"
	PreviousProcedure          = "/" + TimerServiceName + "/Previous"
	GetStatusProcedure         = "/" + TimerServiceName + "/GetStatus"
	WatchStatusProcedure       = "/" + TimerServiceName + "/WatchStatus"
	SaveRoutineProcedure       = "/" + TimerServiceName + "/SaveRoutine"
	ListRoutinesProcedure      = "/" + TimerServiceName + "/ListRoutines"
	GetRoutineProcedure        = "/" + TimerServiceName + "/GetRoutine"
	DeleteRoutineProcedure     = "/" + TimerServiceName + "/DeleteRoutine"
	GetPreferencesProcedure    = "/" + TimerServiceName + "/GetPreferences"
	UpdatePreferencesProcedure = "/" + TimerServiceName + "/UpdatePreferences"
)

// RoutineRepository stores routines.
type RoutineRepository interface {
	Save(ctx context.Context, r routine.Routine) (*routine.Routine, error)
	Get(ctx context.Context, id string) (*routine.Routine, error)
	List(ctx context.Context) ([]store.Summary, error)
	Delete(ctx context.Context, id string) error
}

// PreferenceStore reads and changes the user preferences.
type PreferenceStore interface {
	preference.Source
	Patch(changes map[string]any) (preference.Preferences, error)
}

// TimerService implements the TimerService RPC.
type TimerService struct {
	session     *session.Manager
	routines    RoutineRepository
	preferences PreferenceStore
	watchBuffer int
}

// NewTimerService creates a new TimerService.
func NewTimerService(session *session.Manager, routines RoutineRepository, prefs PreferenceStore, watchBuffer int) *TimerService {
	if watchBuffer <= 0 {
		watchBuffer = 64
	}
	return &TimerService{
		session:     session,
		routines:    routines,
		preferences: prefs,
		watchBuffer: watchBuffer,
	}
}

// NewTimerServiceHandler builds an HTTP handler serving every procedure of
// svc. It returns the path to mount the handler on.
func NewTimerServiceHandler(svc *TimerService, opts ...connect.HandlerOption) (string, http.Handler) {
	opts = append([]connect.HandlerOption{connect.WithCodec(Codec{})}, opts...)
	mux := http.NewServeMux()

	handleUnary(mux, PlayRoutineProcedure, svc.PlayRoutine, opts)
	handleUnary(mux, PlayDurationProcedure, svc.PlayDuration, opts)
	handleUnary(mux, StartProcedure, svc.Start, opts)
	handleUnary(mux, DelayedStartProcedure, svc.DelayedStart, opts)
	handleUnary(mux, PauseProcedure, svc.Pause, opts)
	handleUnary(mux, ResumeProcedure, svc.Resume, opts)
	handleUnary(mux, StopProcedure, svc.Stop, opts)
	handleUnary(mux, SkipProcedure, svc.Skip, opts)
	handleUnary(mux, NextProcedure, svc.Next, opts)
	handleUnary(mux, PreviousProcedure, svc.Previous, opts)
	handleUnary(mux, GetStatusProcedure, svc.GetStatus, opts)
	handleUnary(mux, SaveRoutineProcedure, svc.SaveRoutine, opts)
	handleUnary(mux, ListRoutinesProcedure, svc.ListRoutines, opts)
	handleUnary(mux, GetRoutineProcedure, svc.GetRoutine, opts)
	handleUnary(mux, DeleteRoutineProcedure, svc.DeleteRoutine, opts)
	handleUnary(mux, GetPreferencesProcedure, svc.GetPreferences, opts)
	handleUnary(mux, UpdatePreferencesProcedure, svc.UpdatePreferences, opts)
	mux.Handle(WatchStatusProcedure, connect.NewServerStreamHandler(WatchStatusProcedure, svc.WatchStatus, opts...))

	return "/" + TimerServiceName + "/", mux
}

func handleUnary[Req, Res any](
	mux *http.ServeMux,
	procedure string,
	fn func(context.Context, *connect.Request[Req]) (*connect.Response[Res], error),
	opts []connect.HandlerOption,
) {
	mux.Handle(procedure, connect.NewUnaryHandler(procedure, fn, opts...))
}

// PlayRoutine loads a stored routine and starts it after the pre-start delay.
func (s *TimerService) PlayRoutine(
	ctx context.Context,
	req *connect.Request[PlayRoutineRequest],
) (*connect.Response[StatusResponse], error) {
	if req.Msg.RoutineID == "" {
		return nil, connect.NewError(connect.CodeInvalidArgument, errors.New("routine_id is required"))
	}
	snap, err := s.session.PlayRoutine(ctx, req.Msg.RoutineID, session.PlayOptions{
		StartIndex:   req.Msg.StartIndex,
		Shuffle:      req.Msg.Shuffle,
		Count:        req.Msg.Count,
		DelaySeconds: req.Msg.DelaySeconds,
	})
	if err != nil {
		return nil, toConnectError(err)
	}
	return s.statusResponse(s.session.GetStatus(), snap), nil
}

// PlayDuration starts an ad-hoc single countdown.
func (s *TimerService) PlayDuration(
	ctx context.Context,
	req *connect.Request[PlayDurationRequest],
) (*connect.Response[StatusResponse], error) {
	unit := routine.Seconds
	if req.Msg.Unit != "" {
		u, err := routine.ParseUnit(req.Msg.Unit)
		if err != nil {
			return nil, toConnectError(err)
		}
		unit = u
	}
	snap, err := s.session.PlayDuration(req.Msg.Label, req.Msg.Amount, unit, req.Msg.DelaySeconds)
	if err != nil {
		return nil, toConnectError(err)
	}
	return s.statusResponse(s.session.GetStatus(), snap), nil
}

// Start starts (or resumes) a step.
func (s *TimerService) Start(
	ctx context.Context,
	req *connect.Request[IndexRequest],
) (*connect.Response[StatusResponse], error) {
	snap := s.session.Start(req.Msg.Index)
	return s.statusResponse(s.session.GetStatus(), snap), nil
}

// DelayedStart starts a step after a delay.
func (s *TimerService) DelayedStart(
	ctx context.Context,
	req *connect.Request[DelayedStartRequest],
) (*connect.Response[StatusResponse], error) {
	if req.Msg.DelaySeconds < 0 {
		return nil, connect.NewError(connect.CodeInvalidArgument, errors.New("delay_seconds must not be negative"))
	}
	snap := s.session.DelayedStart(req.Msg.DelaySeconds, req.Msg.Index)
	return s.statusResponse(s.session.GetStatus(), snap), nil
}

// Pause pauses the running step.
func (s *TimerService) Pause(
	ctx context.Context,
	req *connect.Request[PauseRequest],
) (*connect.Response[StatusResponse], error) {
	var remaining *time.Duration
	if req.Msg.RemainingMs != nil {
		d := time.Duration(*req.Msg.RemainingMs) * time.Millisecond
		remaining = &d
	}
	snap := s.session.Pause(remaining)
	return s.statusResponse(s.session.GetStatus(), snap), nil
}

// Resume resumes a paused step.
func (s *TimerService) Resume(
	ctx context.Context,
	req *connect.Request[Empty],
) (*connect.Response[StatusResponse], error) {
	snap := s.session.Resume()
	return s.statusResponse(s.session.GetStatus(), snap), nil
}

// Stop stops and rests on a step.
func (s *TimerService) Stop(
	ctx context.Context,
	req *connect.Request[IndexRequest],
) (*connect.Response[StatusResponse], error) {
	snap := s.session.Stop(req.Msg.Index)
	return s.statusResponse(s.session.GetStatus(), snap), nil
}

// Skip moves to a step.
func (s *TimerService) Skip(
	ctx context.Context,
	req *connect.Request[IndexRequest],
) (*connect.Response[StatusResponse], error) {
	snap := s.session.Skip(req.Msg.Index)
	return s.statusResponse(s.session.GetStatus(), snap), nil
}

// Next moves to the following step.
func (s *TimerService) Next(
	ctx context.Context,
	req *connect.Request[Empty],
) (*connect.Response[StatusResponse], error) {
	snap := s.session.Next()
	return s.statusResponse(s.session.GetStatus(), snap), nil
}

// Previous moves to the preceding step.
func (s *TimerService) Previous(
	ctx context.Context,
	req *connect.Request[Empty],
) (*connect.Response[StatusResponse], error) {
	snap := s.session.Previous()
	return s.statusResponse(s.session.GetStatus(), snap), nil
}

// GetStatus returns the current status.
func (s *TimerService) GetStatus(
	ctx context.Context,
	req *connect.Request[Empty],
) (*connect.Response[StatusResponse], error) {
	return connect.NewResponse(&StatusResponse{Status: toStatus(s.session.GetStatus())}), nil
}

// WatchStatus streams the current status, then one message per timer event
// until the client goes away or the server shuts down.
func (s *TimerService) WatchStatus(
	ctx context.Context,
	req *connect.Request[Empty],
	stream *connect.ServerStream[WatchEvent],
) error {
	// Subscribe before reading the initial status so nothing falls in between.
	subscriptionID, events := s.session.Subscribe(s.watchBuffer)
	defer s.session.Unsubscribe(subscriptionID)

	status := s.session.GetStatus()
	if err := stream.Send(&WatchEvent{Type: EventInitial, Step: status.Index, Status: toStatus(status)}); err != nil {
		return err
	}
	zlog.Debug().Msgf("api: watch started: subscription=%s", subscriptionID)

	for {
		select {
		case <-ctx.Done():
			zlog.Debug().Msgf("api: watch ended: subscription=%s", subscriptionID)
			return nil
		case <-s.session.Done():
			return nil
		case e, ok := <-events:
			if !ok {
				return nil
			}
			msg := &WatchEvent{
				Type:   e.Type.String(),
				Step:   e.Step,
				Status: toSnapshotStatus(s.session.GetStatus(), e.Snapshot),
			}
			if err := stream.Send(msg); err != nil {
				return err
			}
		}
	}
}

// SaveRoutine creates or replaces a routine.
func (s *TimerService) SaveRoutine(
	ctx context.Context,
	req *connect.Request[SaveRoutineRequest],
) (*connect.Response[RoutineResponse], error) {
	r, err := fromRoutine(req.Msg.Routine)
	if err != nil {
		return nil, toConnectError(err)
	}
	saved, err := s.routines.Save(ctx, r)
	if err != nil {
		return nil, toConnectError(err)
	}
	zlog.Info().Msgf("api: routine saved: id=%s title=%s", saved.ID, saved.Title)
	return connect.NewResponse(&RoutineResponse{Routine: toRoutine(saved)}), nil
}

// ListRoutines lists stored routines.
func (s *TimerService) ListRoutines(
	ctx context.Context,
	req *connect.Request[Empty],
) (*connect.Response[ListRoutinesResponse], error) {
	summaries, err := s.routines.List(ctx)
	if err != nil {
		return nil, toConnectError(err)
	}
	resp := &ListRoutinesResponse{Routines: make([]RoutineSummary, len(summaries))}
	for i, sum := range summaries {
		resp.Routines[i] = toSummary(sum)
	}
	return connect.NewResponse(resp), nil
}

// GetRoutine returns one stored routine.
func (s *TimerService) GetRoutine(
	ctx context.Context,
	req *connect.Request[RoutineRequest],
) (*connect.Response[RoutineResponse], error) {
	r, err := s.routines.Get(ctx, req.Msg.ID)
	if err != nil {
		return nil, toConnectError(err)
	}
	return connect.NewResponse(&RoutineResponse{Routine: toRoutine(r)}), nil
}

// DeleteRoutine removes a stored routine. A routine being played keeps
// playing.
func (s *TimerService) DeleteRoutine(
	ctx context.Context,
	req *connect.Request[RoutineRequest],
) (*connect.Response[Empty], error) {
	if err := s.routines.Delete(ctx, req.Msg.ID); err != nil {
		return nil, toConnectError(err)
	}
	zlog.Info().Msgf("api: routine deleted: id=%s", req.Msg.ID)
	return connect.NewResponse(&Empty{}), nil
}

// GetPreferences returns the current preferences.
func (s *TimerService) GetPreferences(
	ctx context.Context,
	req *connect.Request[Empty],
) (*connect.Response[PreferencesResponse], error) {
	return connect.NewResponse(&PreferencesResponse{Preferences: toPreferences(s.preferences.Current())}), nil
}

// UpdatePreferences changes preferences. They apply to the next play or cue.
func (s *TimerService) UpdatePreferences(
	ctx context.Context,
	req *connect.Request[UpdatePreferencesRequest],
) (*connect.Response[PreferencesResponse], error) {
	if len(req.Msg.Changes) == 0 {
		return nil, connect.NewError(connect.CodeInvalidArgument, errors.New("no changes given"))
	}
	p, err := s.preferences.Patch(req.Msg.Changes)
	if err != nil {
		return nil, toConnectError(err)
	}
	return connect.NewResponse(&PreferencesResponse{Preferences: toPreferences(p)}), nil
}

func (s *TimerService) statusResponse(status session.Status, snap playback.Snapshot) *connect.Response[StatusResponse] {
	return connect.NewResponse(&StatusResponse{Status: toSnapshotStatus(status, snap)})
}

// toConnectError maps domain errors to Connect codes.
func toConnectError(err error) error {
	var validationErrs validator.ValidationErrors
	switch {
	case errors.Is(err, session.ErrRoutineNotFound), errors.Is(err, store.ErrNotFound):
		return connect.NewError(connect.CodeNotFound, err)
	case errors.Is(err, sequence.ErrEmptySession),
		errors.Is(err, sequence.ErrInvalidStartIndex),
		errors.Is(err, sequence.ErrNegativeDuration),
		errors.Is(err, sequence.ErrTooLong),
		errors.Is(err, routine.ErrUnknownUnit),
		errors.Is(err, routine.ErrAmountTooLarge),
		errors.Is(err, preferences.ErrInvalid),
		errors.As(err, &validationErrs):
		return connect.NewError(connect.CodeInvalidArgument, err)
	default:
		zlog.Error().Msgf("api: request failed: %v", err)
		return connect.NewError(connect.CodeInternal, err)
	}
}
