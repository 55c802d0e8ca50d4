package logsvc

import (
	"context"
	"fmt"
	"log"
	"sort"
	"strings"

	"github.com/rollbar/rollbar-go"
	"github.com/rollbar/rollbar-go/errors"

	"github.com/trezcool/maktab/core"
)

const serverRoot = "github.com/trezcool/maktab"

// RollbarLogger prints to std and reports to Rollbar, attaching the actor of each event
// (user, session and role) to the report.
type RollbarLogger struct {
	std       *log.Logger
	client    *rollbar.Client
	reporting bool // a token is set and we are not testing
}

var _ core.Logger = (*RollbarLogger)(nil)

func NewRollbarLogger(std *log.Logger, conf *core.Config) *RollbarLogger {
	client := rollbar.New(conf.RollbarToken, conf.Env, conf.Build, conf.Server.Host, serverRoot)
	client.SetStackTracer(errors.StackTracer)

	l := &RollbarLogger{
		std:       std,
		client:    client,
		reporting: conf.RollbarToken != "" && !conf.TestMode,
	}
	l.Enable(true)
	return l
}

// Enable turns reporting on or off. It stays off without a token.
func (l *RollbarLogger) Enable(enabled bool) {
	l.client.SetEnabled(enabled && l.reporting)
}

type event struct {
	msg    string
	err    error
	extras map[string]interface{}
	actor  *core.Actor
}

// newEvent sorts out the args; the first error and the first actor win.
func newEvent(msg string, args []interface{}) event {
	ev := event{msg: msg, extras: make(map[string]interface{})}
	for _, arg := range args {
		switch v := arg.(type) {
		case error:
			if ev.err == nil {
				ev.err = v
			}
		case map[string]interface{}:
			for k, x := range v {
				ev.extras[k] = x
			}
		case core.Actor:
			if ev.actor == nil && v.UserID != "" {
				actor := v
				ev.actor = &actor
			}
		default:
			ev.extras[fmt.Sprintf("arg%d", len(ev.extras))] = v
		}
	}
	if ev.actor != nil {
		if ev.actor.SessionID != "" {
			ev.extras["session_id"] = ev.actor.SessionID
		}
		if ev.actor.Role != "" {
			ev.extras["role"] = ev.actor.Role
		}
	}
	return ev
}

// context carries the person Rollbar files the report under.
func (ev event) context() context.Context {
	ctx := context.Background()
	if ev.actor != nil {
		ctx = rollbar.NewPersonContext(ctx, &rollbar.Person{
			Id:       ev.actor.UserID,
			Username: ev.actor.Email,
			Email:    ev.actor.Email,
		})
	}
	return ctx
}

// line renders the event for the std logger: msg [key=value ...].
func (ev event) line() string {
	var b strings.Builder
	b.WriteString(ev.msg)

	fields := make([]string, 0, len(ev.extras)+1)
	if ev.actor != nil {
		fields = append(fields, "user="+ev.actor.UserID)
	}
	keys := make([]string, 0, len(ev.extras))
	for k := range ev.extras {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fields = append(fields, fmt.Sprintf("%s=%v", k, ev.extras[k]))
	}
	if len(fields) > 0 {
		b.WriteString(" [" + strings.Join(fields, " ") + "]")
	}
	return b.String()
}

func (l *RollbarLogger) log(level string, msg string, args []interface{}) {
	ev := newEvent(msg, args)

	l.std.Println(ev.line())
	if ev.err != nil {
		l.std.Printf("%+v\n", ev.err)
		l.client.ErrorWithExtrasAndContext(ev.context(), level, ev.err, ev.extras)
		return
	}
	l.client.MessageWithExtrasAndContext(ev.context(), level, msg, ev.extras)
}

func (l *RollbarLogger) Debug(msg string, args ...interface{}) { l.log(rollbar.DEBUG, msg, args) }

func (l *RollbarLogger) Info(msg string, args ...interface{}) { l.log(rollbar.INFO, msg, args) }

func (l *RollbarLogger) Warn(msg string, args ...interface{}) { l.log(rollbar.WARN, msg, args) }

func (l *RollbarLogger) Error(msg string, args ...interface{}) { l.log(rollbar.ERR, msg, args) }

func (l *RollbarLogger) Fatal(msg string, args ...interface{}) {
	l.log(rollbar.CRIT, msg, args)
	_ = l.client.Close()
	l.std.Fatal(msg)
}
