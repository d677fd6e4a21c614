// SPDX-FileCopyrightText: 2026 Tobias Böhm <code@aibor.de>
//
// SPDX-License-Identifier: GPL-3.0-or-later

package device

import (
	"os"
	"os/signal"

	"golang.org/x/sys/unix"
)

// signalWatcher calls a handler for the first SIGINT or SIGTERM received
// while it is active.
type signalWatcher struct {
	signals chan os.Signal
	stop    chan struct{}
	done    chan struct{}
}

func watchSignals(handle func(os.Signal)) *signalWatcher {
	w := &signalWatcher{
		signals: make(chan os.Signal, 1),
		stop:    make(chan struct{}),
		done:    make(chan struct{}),
	}

	signal.Notify(w.signals, unix.SIGINT, unix.SIGTERM)

	go func() {
		defer close(w.done)

		select {
		case sig := <-w.signals:
			// Unregister first, so a repeated signal hits the default
			// handler and terminates the process.
			signal.Stop(w.signals)
			handle(sig)
		case <-w.stop:
			signal.Stop(w.signals)
		}
	}()

	return w
}

// close unregisters the handler. Must not be called from the handler.
func (w *signalWatcher) close() {
	select {
	case <-w.done:
		return
	default:
	}

	close(w.stop)
	<-w.done
}

// reraise sends the signal to the own process again, now that the handler is
// unregistered.
func reraise(sig os.Signal) {
	if s, ok := sig.(unix.Signal); ok {
		_ = unix.Kill(unix.Getpid(), s)
	}
}
