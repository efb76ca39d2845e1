/*
	Madrox
	Copyright (c) 2026 The Madrox Authors

	This program is free software: you can redistribute it and/or modify
	it under the terms of the GNU Affero General Public License as published
	by the Free Software Foundation, either version 3 of the License, or
	(at your option) any later version.

	This program is distributed in the hope that it will be useful,
	but WITHOUT ANY WARRANTY; without even the implied warranty of
	MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
	GNU Affero General Public License for more details.

	You should have received a copy of the GNU Affero General Public License
	along with this program.  If not, see <https://www.gnu.org/licenses/>.
*/

package madroxapp

import (
	"os"
	"os/signal"
	"sync/atomic"

	"github.com/madrox-osint/madrox/hivemind"
	"go.uber.org/zap"
)

// TrapSignals create signal handlers for all applicable signals for this system.
func TrapSignals() {
	trapSignalsCrossPlatform()
	trapSignalsPosix()
}

// trapSignalsCrossPlatform captures SIGINT, which triggers forceful
// shutdown that cleans up any network or local resources. A second
// interrupt signal will exit the process immediately.
func trapSignalsCrossPlatform() {
	go func() {
		sig := make(chan os.Signal, 1)
		signal.Notify(sig, os.Interrupt)

		for i := 0; true; i++ {
			<-sig

			if i > 0 {
				hivemind.Log.Fatal("SIGINT: force quit")
				os.Exit(2) //nolint:mnd
			}

			hivemind.Log.Warn("SIGINT: shutting down")
			go shutdown(1)
		}
	}()
}

// shutdown shuts down this process after closing the
// hivemind. It is a no-op if the process is already exiting.
func shutdown(exitCode int) {
	if !shuttingDown.CompareAndSwap(false, true) {
		return
	}

	appMu.Lock()
	if app != nil {
		app.cancel()
	}
	appMu.Unlock()

	// in case no app was ever created
	shutdownHivemind()

	_ = hivemind.Log.Sync()

	os.Exit(exitCode)
}

// logStatus writes a summary of the open hivemind to the log.
func logStatus() {
	hm, err := getHivemind()
	if err != nil {
		hivemind.Log.Info("no hivemind open")
		return
	}
	st := hm.Status()
	hivemind.Log.Info("hivemind status",
		zap.String("repo_id", st.RepoID),
		zap.String("repo_dir", st.RepoDir),
		zap.Bool("persistent", st.Persistent),
		zap.Any("store", st.Store),
		zap.Int("investigations", st.Investigations))
}

// shuttingDown is set when the program is shutting down.
var shuttingDown atomic.Bool
