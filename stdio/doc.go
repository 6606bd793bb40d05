// Package stdio serves the dispatch engine over any byte stream carrying
// newline-delimited JSON. It is intended for embedding servers as
// subprocesses (stdin/stdout) and for raw socket listeners where each
// connection is its own session.
//
// Characteristics
//
//	Connection model : 1 Serve call <-> 1 session
//	Framing          : one JSON message per line, bounded by WithMaxFrameSize
//	Ordering         : responses are written as invocations finish, not in request order
//
// Example:
//
//	reg := tools.NewRegistry()
//	_ = reg.Register(echo.Tool())
//	eng := engine.NewEngine(reg)
//	h := stdio.NewHandler(eng)
//	if err := h.Serve(context.Background()); err != nil { log.Fatal(err) }
package stdio
