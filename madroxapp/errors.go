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
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	mathrand "math/rand/v2"
	"net/http"
	"strconv"
	"strings"

	"github.com/madrox-osint/madrox/hivemind"
	"go.uber.org/zap"
)

// Error is a JSON-serializable representation of an error.
type Error struct {
	Err             error    `json:"-"`
	HTTPStatus      int      `json:"http_status"`               // recommended HTTP status to send to the client
	Log             string   `json:"-"`                         // optional; for logs, technical context in which the error was produced
	Message         string   `json:"message,omitempty"`         // optional; a human-readable sentence
	Recommendations []string `json:"recommendations,omitempty"` // optional
	Data            any      `json:"data,omitempty"`            // optional; any extra data that should be included or handled specially

	// generated; don't fill these out
	ID        string `json:"id,omitempty"` // for associating log entries
	ErrString string `json:"error"`        // to ensure string serialization
}

func (e Error) Error() string {
	var msg strings.Builder
	if e.Log != "" {
		msg.WriteString(e.Log)
		if e.Err != nil {
			msg.WriteString(": ")
		}
	}
	if e.Err != nil {
		msg.WriteString(e.Err.Error())
	}
	if e.Message != "" {
		msg.WriteString(fmt.Sprintf(" (%s)", e.Message))
	}
	if e.ID != "" {
		msg.WriteString(fmt.Sprintf(" {id=%s}", e.ID))
	}
	return msg.String()
}

func (e Error) Unwrap() error { return e.Err }

// httpStatusFromErr maps errors from the hivemind and the
// file system to an HTTP status.
func httpStatusFromErr(err error, defaultStatus int) int {
	switch {
	case errors.Is(err, hivemind.ErrNotFound), errors.Is(err, fs.ErrNotExist):
		return http.StatusNotFound
	case errors.Is(err, hivemind.ErrDuplicate), errors.Is(err, hivemind.ErrInvalidTransition):
		return http.StatusConflict
	case errors.Is(err, hivemind.ErrInvalid), errors.Is(err, hivemind.ErrConfirmationRequired):
		return http.StatusBadRequest
	case errors.Is(err, hivemind.ErrCapacity):
		return http.StatusInsufficientStorage
	case errors.Is(err, fs.ErrPermission):
		return http.StatusForbidden
	}
	return defaultStatus
}

func handleError(w http.ResponseWriter, r *http.Request, err error) {
	var errVal Error
	if !errors.As(err, &errVal) {
		errVal = Error{Err: err}
		if errVal.HTTPStatus = httpStatusFromErr(err, 0); errVal.HTTPStatus == 0 {
			errVal.Log = "error was not well-structured"
		}
	}

	// give this error a unique ID so we can investigate bug reports more easily
	errVal.ID = newErrorID()

	// ensure error is serialized as a string when written to the client
	if errVal.Err != nil {
		errVal.ErrString = errVal.Err.Error()
	}

	// see if we can fill in some default values if they're missing
	if errVal.HTTPStatus == 0 {
		errVal.HTTPStatus = httpStatusFromErr(errVal.Err, http.StatusInternalServerError)
	}
	if errVal.Message == "" && errVal.Err != nil {
		errVal.Message = errVal.Err.Error()
	}

	switch {
	case errors.Is(errVal.Err, hivemind.ErrConfirmationRequired):
		errVal.Recommendations = append(errVal.Recommendations, "Repeat the command with confirm set to true.")
	case errVal.HTTPStatus >= http.StatusInternalServerError:
		errVal.Recommendations = append(errVal.Recommendations,
			"Make any relevant changes, then try again.",
			"If it still doesn't work, please report this bug along with this error ID: "+errVal.ID,
		)
	}

	logger := hivemind.Log.Named("http")
	logFn := logger.Error
	if errVal.HTTPStatus < http.StatusInternalServerError {
		logFn = logger.Warn
	}
	logFn(errVal.Log,
		zap.Error(errVal.Err),
		zap.Int("status", errVal.HTTPStatus),
		zap.String("method", r.Method),
		zap.String("path", r.URL.Path),
		zap.String("error_id", errVal.ID),
		zap.Any("data", errVal.Data),
	)

	// write the error to the HTTP response for the client
	jsonBytes, err := json.Marshal(errVal)
	if err != nil {
		hivemind.Log.Error("encoding error response",
			zap.Error(err),
			zap.String("original_error", errVal.Error()))
	}
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Content-Length", strconv.Itoa(len(jsonBytes)))
	status := errVal.HTTPStatus
	if status < http.StatusOK {
		status = http.StatusInternalServerError
	}
	w.WriteHeader(status)
	_, _ = w.Write(jsonBytes)
}

func newErrorID() string {
	const idLen = 8
	return randString(idLen, true)
}

// randString returns a string of n random characters.
// It is not even remotely secure or a proper distribution.
// But it's good enough for some things. It excludes certain
// confusing characters like I, l, 1, 0, O, etc., and a couple
// vowels to avoid most profanities.
func randString(n int, lowerCase bool) string {
	if n <= 0 {
		return ""
	}
	dict := []byte("abcdefghjkmnopqrstvwxyzABCDEFGHJKLMNPQRTUVWXY23456789")
	if lowerCase {
		dict = []byte("abcdefghjkmnpqrstvwxyz23456789")
	}
	b := make([]byte, n)
	for i := range b {
		b[i] = dict[mathrand.IntN(len(dict))] //nolint:gosec
	}
	return string(b)
}
