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

package hivemind

import (
	"errors"
	"os"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Log is the process log. Components should log through named
// children of it, for example Log.Named("store").
var Log = newLogger()

// newLogger returns a logger that writes colored text to stderr and
// JSON to every websocket connection subscribed with AddLogConn.
func newLogger() *zap.Logger {
	websocketsOut := zapcore.Lock(zapcore.AddSync(websocketLogOutputs))
	consoleOut := zapcore.Lock(os.Stderr)

	encCfg := zap.NewProductionEncoderConfig()
	encCfg.EncodeTime = func(ts time.Time, encoder zapcore.PrimitiveArrayEncoder) {
		encoder.AppendString(ts.UTC().Format("2006/01/02 15:04:05.000"))
	}
	encCfg.EncodeLevel = zapcore.CapitalColorLevelEncoder
	consoleEncoder := zapcore.NewConsoleEncoder(encCfg)
	jsonEncoder := zapcore.NewJSONEncoder(zap.NewProductionEncoderConfig())

	core := zapcore.NewTee(
		zapcore.NewCore(consoleEncoder, consoleOut, zap.DebugLevel),
		zapcore.NewCore(jsonEncoder, websocketsOut, zap.InfoLevel),
	)

	// extraction of a large page can emit a lot of entries at once
	const firstNMsgs, everyNthMsg = 10, 100
	core = zapcore.NewSamplerWithOptions(core, time.Second, firstNMsgs, everyNthMsg)

	return zap.New(&auditCore{core})
}

// multiConnWriter writes to a changing set of websocket connections.
// It is best-effort: a failed write to one connection does not stop
// writes to the others, and connections found to be closed are dropped.
type multiConnWriter struct {
	conns   []*websocket.Conn
	connsMu sync.RWMutex
}

func (mw *multiConnWriter) Write(p []byte) (n int, err error) {
	mw.connsMu.RLock()
	for _, w := range mw.conns {
		err = w.WriteMessage(websocket.TextMessage, p)
		if errors.Is(err, websocket.ErrCloseSent) {
			defer mw.RemoveConn(w)
		}
	}
	mw.connsMu.RUnlock()
	return len(p), err
}

// AddConn subscribes conn to writes.
func (mw *multiConnWriter) AddConn(conn *websocket.Conn) {
	mw.connsMu.Lock()
	mw.conns = append(mw.conns, conn)
	mw.connsMu.Unlock()
}

// RemoveConn unsubscribes conn from writes, if it is subscribed.
func (mw *multiConnWriter) RemoveConn(conn *websocket.Conn) {
	mw.connsMu.Lock()
	for i, mww := range mw.conns {
		if mww == conn {
			mw.conns = append(mw.conns[:i], mw.conns[i+1:]...)
			break
		}
	}
	mw.connsMu.Unlock()
}

var websocketLogOutputs = new(multiConnWriter)

// AddLogConn subscribes conn to the log output. When the
// conn is closed, it should be removed with RemoveLogConn().
func AddLogConn(conn *websocket.Conn) {
	websocketLogOutputs.AddConn(conn)
}

// RemoveLogConn removes conn from receiving logs.
// It is idempotent.
func RemoveLogConn(conn *websocket.Conn) {
	websocketLogOutputs.RemoveConn(conn)
}

// auditCore wraps another zapcore.Core and exempts the audit
// logger from sampling.
type auditCore struct {
	zapcore.Core
}

func (c *auditCore) Check(ent zapcore.Entry, ce *zapcore.CheckedEntry) *zapcore.CheckedEntry {
	if ent.LoggerName == auditLoggerName {
		return ce.AddCore(ent, c)
	}
	return c.Core.Check(ent, ce)
}

const auditLoggerName = "audit"
