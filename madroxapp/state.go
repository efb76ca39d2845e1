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
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"

	"github.com/madrox-osint/madrox/hivemind"
	"go.uber.org/zap"
)

// errNoHivemind is returned by commands that need the hivemind
// before it has been opened.
var errNoHivemind = errors.New("hivemind is not open")

// openHivemind opens the configured repository, if not already open.
func (a *App) openHivemind(ctx context.Context) (*hivemind.Hivemind, error) {
	openHivemindMu.Lock()
	defer openHivemindMu.Unlock()

	if openedHivemind != nil {
		return openedHivemind, nil
	}

	repoDir, opts := a.cfg.hivemindOptions()
	hm, err := hivemind.Open(ctx, repoDir, opts)
	if err != nil {
		return nil, fmt.Errorf("opening hivemind repository %s: %w", repoDir, err)
	}
	openedHivemind = hm
	return hm, nil
}

// getHivemind returns the open hivemind. If it is not open,
// a structured error is returned.
func getHivemind() (*hivemind.Hivemind, error) {
	openHivemindMu.RLock()
	defer openHivemindMu.RUnlock()
	if openedHivemind == nil {
		return nil, Error{
			Err:        errNoHivemind,
			HTTPStatus: http.StatusServiceUnavailable,
			Log:        "getting hivemind",
			Message:    "The hivemind repository is not open yet.",
		}
	}
	return openedHivemind, nil
}

func shutdownHivemind() {
	openHivemindMu.Lock()
	defer openHivemindMu.Unlock()
	if openedHivemind == nil {
		return
	}
	if err := openedHivemind.Close(); err != nil {
		hivemind.Log.Error("closing hivemind",
			zap.String("repo", openedHivemind.Dir()),
			zap.Error(err))
	}
	openedHivemind = nil
}

var (
	openedHivemind *hivemind.Hivemind
	openHivemindMu sync.RWMutex
)
