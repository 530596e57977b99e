/*
 * MIT License
 *
 * Copyright (c) 2025 Nicolas JUHEL
 *
 * Permission is hereby granted, free of charge, to any person obtaining a copy
 * of this software and associated documentation files (the "Software"), to deal
 * in the Software without restriction, including without limitation the rights
 * to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
 * copies of the Software, and to permit persons to whom the Software is
 * furnished to do so, subject to the following conditions:
 *
 * The above copyright notice and this permission notice shall be included in all
 * copies or substantial portions of the Software.
 *
 * THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
 * IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
 * FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
 * AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
 * LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
 * OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
 * SOFTWARE.
 *
 *
 */

// Package hooksyslog provides a logrus hook that forwards entries to syslog,
// local or remote. The network transport is plain log/syslog: the pack this
// package was adapted from reaches a socket/network-protocol layer that
// could not be retrieved with an implementation, so this hook talks to
// syslogd directly instead.
package hooksyslog

import (
	"context"
	"errors"
	"log/syslog"
	"strings"

	logcfg "github.com/nabbar/golib/logger/config"
	loglvl "github.com/nabbar/golib/logger/level"
	logtps "github.com/nabbar/golib/logger/types"
	"github.com/sirupsen/logrus"
)

var errMissingTag = errors.New("hooksyslog: tag is required")

type hks struct {
	w      *syslog.Writer
	format logrus.Formatter
	levels []logrus.Level
}

// HookFile mirrors the other hook packages' naming even though this hook
// writes to syslog rather than a file.
type HookFile interface {
	logtps.Hook
}

func facility(s string) syslog.Priority {
	switch strings.ToLower(s) {
	case "kern":
		return syslog.LOG_KERN
	case "mail":
		return syslog.LOG_MAIL
	case "daemon":
		return syslog.LOG_DAEMON
	case "auth":
		return syslog.LOG_AUTH
	case "cron":
		return syslog.LOG_CRON
	case "local0":
		return syslog.LOG_LOCAL0
	case "local1":
		return syslog.LOG_LOCAL1
	case "local2":
		return syslog.LOG_LOCAL2
	case "local3":
		return syslog.LOG_LOCAL3
	case "local4":
		return syslog.LOG_LOCAL4
	case "local5":
		return syslog.LOG_LOCAL5
	case "local6":
		return syslog.LOG_LOCAL6
	case "local7":
		return syslog.LOG_LOCAL7
	default:
		return syslog.LOG_DAEMON
	}
}

// New opens a syslog writer (local if opt.Network/Host are empty, remote
// otherwise) and wraps it as a logrus-compatible hook.
func New(opt logcfg.OptionsSyslog, format logrus.Formatter) (HookFile, error) {
	if opt.Tag == "" {
		return nil, errMissingTag
	}

	var (
		w   *syslog.Writer
		e   error
		pri = facility(opt.Facility) | syslog.LOG_INFO
	)

	if opt.Network == "" && opt.Host == "" {
		w, e = syslog.New(pri, opt.Tag)
	} else {
		w, e = syslog.Dial(opt.Network, opt.Host, pri, opt.Tag)
	}

	if e != nil {
		return nil, e
	}

	var lvl = make([]logrus.Level, 0, len(opt.LogLevel))
	if len(opt.LogLevel) > 0 {
		for _, l := range opt.LogLevel {
			lvl = append(lvl, loglvl.Parse(l).Logrus())
		}
	} else {
		lvl = logrus.AllLevels
	}

	return &hks{w: w, format: format, levels: lvl}, nil
}

func (o *hks) Levels() []logrus.Level {
	return o.levels
}

func (o *hks) RegisterHook(log *logrus.Logger) {
	log.AddHook(o)
}

func (o *hks) Fire(entry *logrus.Entry) error {
	for _, l := range o.levels {
		if l != entry.Level {
			continue
		}

		p, e := o.format.Format(entry)
		if e != nil {
			return e
		}

		return o.writeLevel(entry.Level, string(p))
	}

	return nil
}

func (o *hks) writeLevel(lvl logrus.Level, msg string) error {
	switch lvl {
	case logrus.PanicLevel, logrus.FatalLevel:
		return o.w.Crit(msg)
	case logrus.ErrorLevel:
		return o.w.Err(msg)
	case logrus.WarnLevel:
		return o.w.Warning(msg)
	case logrus.DebugLevel, logrus.TraceLevel:
		return o.w.Debug(msg)
	default:
		return o.w.Info(msg)
	}
}

func (o *hks) Write(p []byte) (int, error) {
	if e := o.w.Info(string(p)); e != nil {
		return 0, e
	}

	return len(p), nil
}

func (o *hks) Close() error {
	return o.w.Close()
}

func (o *hks) IsRunning() bool {
	return o.w != nil
}

func (o *hks) Run(ctx context.Context) {
	<-ctx.Done()
}
