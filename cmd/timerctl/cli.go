package main

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/alecthomas/kingpin/v2"
	"github.com/cockroachdb/errors"
	"gopkg.in/yaml.v3"

	apiconnect "github.com/osa030/routinetimer/internal/api/connect"
	"github.com/osa030/routinetimer/internal/domain/routine"
)

// cli holds one parsed command line. The shell builds a fresh one per line.
type cli struct {
	app        *kingpin.Application
	out        io.Writer
	httpClient *http.Client

	server  *string
	token   *string
	timeout *time.Duration

	playCmd     *kingpin.CmdClause
	playID      *string
	playStart   *int
	playShuffle *bool
	playCount   *int
	playDelay   *int

	quickCmd    *kingpin.CmdClause
	quickAmount *int64
	quickUnit   *string
	quickLabel  *string
	quickDelay  *int

	startCmd   *kingpin.CmdClause
	startIndex *int

	delayCmd     *kingpin.CmdClause
	delaySeconds *int
	delayIndex   *int

	pauseCmd   *kingpin.CmdClause
	pauseAt    *time.Duration
	pauseAtSet bool

	resumeCmd *kingpin.CmdClause

	stopCmd   *kingpin.CmdClause
	stopIndex *int

	skipCmd   *kingpin.CmdClause
	skipIndex *int

	nextCmd   *kingpin.CmdClause
	prevCmd   *kingpin.CmdClause
	statusCmd *kingpin.CmdClause

	watchCmd   *kingpin.CmdClause
	watchTicks *bool

	routinesListCmd   *kingpin.CmdClause
	routinesShowCmd   *kingpin.CmdClause
	routinesShowID    *string
	routinesImportCmd *kingpin.CmdClause
	routinesImportF   *string
	routinesDeleteCmd *kingpin.CmdClause
	routinesDeleteID  *string

	prefsGetCmd *kingpin.CmdClause
	prefsSetCmd *kingpin.CmdClause
	prefsSetKV  *map[string]string

	shellCmd    *kingpin.CmdClause
	shellPrompt *string
}

func newCLI(out io.Writer) *cli {
	c := &cli{
		app:        kingpin.New("timerctl", "Routine timer control client"),
		out:        out,
		httpClient: http.DefaultClient,
	}
	app := c.app
	app.Writer(out)
	app.UsageWriter(out)
	app.ErrorWriter(out)

	c.server = app.Flag("server", "Server address").Default("http://localhost:8080").Envar("ROUTINETIMER_SERVER").String()
	c.token = app.Flag("token", "Control token (or set ROUTINETIMER_TOKEN env)").Envar("ROUTINETIMER_TOKEN").String()
	c.timeout = app.Flag("timeout", "Request timeout").Default("10s").Duration()

	c.playCmd = app.Command("play", "Play a stored routine")
	c.playID = c.playCmd.Arg("routine-id", "Routine ID").Required().String()
	c.playStart = c.playCmd.Flag("start", "Step index to start from").Default("0").Int()
	c.playShuffle = c.playCmd.Flag("shuffle", "Shuffle the items").Bool()
	c.playCount = c.playCmd.Flag("count", "With --shuffle, play only this many items").Default("0").Int()
	c.playDelay = c.playCmd.Flag("delay", "Pre-start delay in seconds (default: preference)").Default("-1").Int()

	c.quickCmd = app.Command("quick", "Play a single ad-hoc countdown")
	c.quickAmount = c.quickCmd.Arg("amount", "Duration amount").Required().Int64()
	c.quickUnit = c.quickCmd.Arg("unit", "Duration unit (sec, min, hour)").Default("sec").String()
	c.quickLabel = c.quickCmd.Flag("label", "Countdown label").Short('l').String()
	c.quickDelay = c.quickCmd.Flag("delay", "Pre-start delay in seconds (default: preference)").Default("-1").Int()

	c.startCmd = app.Command("start", "Start (or resume) a step")
	c.startIndex = c.startCmd.Arg("index", "Step index").Default("0").Int()

	c.delayCmd = app.Command("delay", "Start a step after a delay")
	c.delaySeconds = c.delayCmd.Arg("seconds", "Delay in seconds").Required().Int()
	c.delayIndex = c.delayCmd.Arg("index", "Step index").Default("0").Int()

	c.pauseCmd = app.Command("pause", "Pause the running step")
	c.pauseAt = c.pauseCmd.Flag("at", "Remaining time shown when pausing (e.g. 1m20s)").IsSetByUser(&c.pauseAtSet).Duration()

	c.resumeCmd = app.Command("resume", "Resume the paused step")

	c.stopCmd = app.Command("stop", "Stop and rest on a step")
	c.stopIndex = c.stopCmd.Arg("index", "Step index").Default("0").Int()

	c.skipCmd = app.Command("skip", "Move to a step")
	c.skipIndex = c.skipCmd.Arg("index", "Step index").Required().Int()

	c.nextCmd = app.Command("next", "Move to the next step")
	c.prevCmd = app.Command("prev", "Move to the previous step").Alias("previous")
	c.statusCmd = app.Command("status", "Show the timer status")

	c.watchCmd = app.Command("watch", "Stream timer events until interrupted")
	c.watchTicks = c.watchCmd.Flag("ticks", "Also print tick events").Bool()

	routines := app.Command("routines", "Manage stored routines")
	c.routinesListCmd = routines.Command("list", "List routines").Default()
	c.routinesShowCmd = routines.Command("show", "Show a routine")
	c.routinesShowID = c.routinesShowCmd.Arg("id", "Routine ID").Required().String()
	c.routinesImportCmd = routines.Command("import", "Create or replace a routine from a YAML file")
	c.routinesImportF = c.routinesImportCmd.Arg("file", "Routine YAML file").Required().ExistingFile()
	c.routinesDeleteCmd = routines.Command("delete", "Delete a routine")
	c.routinesDeleteID = c.routinesDeleteCmd.Arg("id", "Routine ID").Required().String()

	prefs := app.Command("prefs", "Show or change preferences")
	c.prefsGetCmd = prefs.Command("get", "Show preferences").Default()
	c.prefsSetCmd = prefs.Command("set", "Change preferences")
	c.prefsSetKV = c.prefsSetCmd.Arg("changes", "key=value pairs").Required().StringMap()

	c.shellCmd = app.Command("shell", "Start an interactive shell")
	c.shellPrompt = c.shellCmd.Flag("prompt", "Prompt string").Default("timer> ").String()

	return c
}

// run parses args and executes the selected command.
func (c *cli) run(args []string) error {
	command, err := c.app.Parse(args)
	if err != nil {
		return err
	}

	if command == c.shellCmd.FullCommand() {
		return runShell(c.out, *c.shellPrompt, c.globalArgs())
	}

	client := apiconnect.NewTimerClient(c.httpClient, *c.server, *c.token)
	if command == c.watchCmd.FullCommand() {
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		return c.watch(ctx, client)
	}

	ctx, cancel := context.WithTimeout(context.Background(), *c.timeout)
	defer cancel()
	return c.dispatch(ctx, client, command)
}

func (c *cli) dispatch(ctx context.Context, client *apiconnect.TimerClient, command string) error {
	switch command {
	case c.playCmd.FullCommand():
		return c.printStatus(client.PlayRoutine(ctx, &apiconnect.PlayRoutineRequest{
			RoutineID:    *c.playID,
			StartIndex:   *c.playStart,
			Shuffle:      *c.playShuffle,
			Count:        *c.playCount,
			DelaySeconds: optionalDelay(*c.playDelay),
		}))
	case c.quickCmd.FullCommand():
		return c.printStatus(client.PlayDuration(ctx, &apiconnect.PlayDurationRequest{
			Label:        *c.quickLabel,
			Amount:       *c.quickAmount,
			Unit:         *c.quickUnit,
			DelaySeconds: optionalDelay(*c.quickDelay),
		}))
	case c.startCmd.FullCommand():
		return c.printStatus(client.Start(ctx, *c.startIndex))
	case c.delayCmd.FullCommand():
		return c.printStatus(client.DelayedStart(ctx, *c.delaySeconds, *c.delayIndex))
	case c.pauseCmd.FullCommand():
		req := &apiconnect.PauseRequest{}
		if c.pauseAtSet {
			ms := c.pauseAt.Milliseconds()
			req.RemainingMs = &ms
		}
		return c.printStatus(client.Pause(ctx, req))
	case c.resumeCmd.FullCommand():
		return c.printStatus(client.Resume(ctx))
	case c.stopCmd.FullCommand():
		return c.printStatus(client.Stop(ctx, *c.stopIndex))
	case c.skipCmd.FullCommand():
		return c.printStatus(client.Skip(ctx, *c.skipIndex))
	case c.nextCmd.FullCommand():
		return c.printStatus(client.Next(ctx))
	case c.prevCmd.FullCommand():
		return c.printStatus(client.Previous(ctx))
	case c.statusCmd.FullCommand():
		status, err := client.GetStatus(ctx)
		if err != nil {
			return err
		}
		printStatusDetail(c.out, status)
		return nil

	case c.routinesListCmd.FullCommand():
		list, err := client.ListRoutines(ctx)
		if err != nil {
			return err
		}
		printRoutineList(c.out, list)
		return nil
	case c.routinesShowCmd.FullCommand():
		r, err := client.GetRoutine(ctx, *c.routinesShowID)
		if err != nil {
			return err
		}
		printRoutine(c.out, r)
		return nil
	case c.routinesImportCmd.FullCommand():
		r, err := readRoutineFile(*c.routinesImportF)
		if err != nil {
			return err
		}
		saved, err := client.SaveRoutine(ctx, r)
		if err != nil {
			return err
		}
		fmt.Fprintf(c.out, "Saved routine %s (%s)\n", saved.ID, saved.Title)
		return nil
	case c.routinesDeleteCmd.FullCommand():
		if err := client.DeleteRoutine(ctx, *c.routinesDeleteID); err != nil {
			return err
		}
		fmt.Fprintf(c.out, "Deleted routine %s\n", *c.routinesDeleteID)
		return nil

	case c.prefsGetCmd.FullCommand():
		p, err := client.GetPreferences(ctx)
		if err != nil {
			return err
		}
		printPreferences(c.out, p)
		return nil
	case c.prefsSetCmd.FullCommand():
		changes := make(map[string]any, len(*c.prefsSetKV))
		for k, v := range *c.prefsSetKV {
			changes[k] = v
		}
		p, err := client.UpdatePreferences(ctx, changes)
		if err != nil {
			return err
		}
		printPreferences(c.out, p)
		return nil
	}
	return errors.Newf("unknown command: %s", command)
}

func (c *cli) watch(ctx context.Context, client *apiconnect.TimerClient) error {
	return client.WatchStatus(ctx, func(e *apiconnect.WatchEvent) bool {
		if e.Type == "tick" && !*c.watchTicks {
			return true
		}
		fmt.Fprintf(c.out, "%-16s %s\n", e.Type, formatStatusLine(e.Status))
		return true
	})
}

func (c *cli) printStatus(status apiconnect.Status, err error) error {
	if err != nil {
		return err
	}
	fmt.Fprintln(c.out, formatStatusLine(status))
	return nil
}

// globalArgs renders the global flags so shell lines inherit them.
func (c *cli) globalArgs() []string {
	return []string{
		"--server=" + *c.server,
		"--token=" + *c.token,
		"--timeout=" + c.timeout.String(),
	}
}

// optionalDelay maps the "not given" flag value to nil.
func optionalDelay(v int) *int {
	if v < 0 {
		return nil
	}
	return &v
}

// readRoutineFile parses a routine YAML file:
//
//	title: Morning
//	items:
//	  - {activity: Stretch, amount: 30, unit: seconds}
func readRoutineFile(path string) (apiconnect.Routine, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return apiconnect.Routine{}, errors.Wrap(err, "failed to read routine file")
	}
	var r routine.Routine
	if err := yaml.Unmarshal(data, &r); err != nil {
		return apiconnect.Routine{}, errors.Wrapf(err, "failed to parse routine file %s", path)
	}
	if err := r.Validate(); err != nil {
		return apiconnect.Routine{}, err
	}

	msg := apiconnect.Routine{ID: r.ID, Title: r.Title, Items: make([]apiconnect.Item, len(r.Items))}
	for i, it := range r.Items {
		msg.Items[i] = apiconnect.Item{Activity: it.Activity, Amount: it.Amount, Unit: it.Unit.String()}
	}
	return msg, nil
}
