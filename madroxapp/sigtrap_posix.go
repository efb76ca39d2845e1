//go:build !windows && !plan9 && !nacl

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

	"github.com/madrox-osint/madrox/hivemind"
	"golang.org/x/sys/unix"
)

// trapSignalsPosix captures POSIX-only signals: SIGTERM shuts down
// cleanly, SIGQUIT exits at once, and SIGUSR1 logs the status of the
// open hivemind.
func trapSignalsPosix() {
	go func() {
		sigchan := make(chan os.Signal, 1)
		signal.Notify(sigchan, unix.SIGTERM, unix.SIGQUIT, unix.SIGUSR1)

		for sig := range sigchan {
			switch sig {
			case unix.SIGQUIT:
				hivemind.Log.Warn("SIGQUIT: quitting process immediately")
				os.Exit(2) //nolint:mnd

			case unix.SIGTERM:
				hivemind.Log.Warn("SIGTERM: cleaning up resources, then terminating")
				shutdown(1)

			case unix.SIGUSR1:
				logStatus()
			}
		}
	}()
}
