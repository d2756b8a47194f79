package http

// Handler responds to a parsed request by filling in the response. The
// request and response are owned by the dispatching connection and must
// not be retained after Serve returns: both go back to an object pool.
//
// A nil return means the response is complete as built. A returned
// *Error produces a failure response with that code; any other error
// produces a 500. Panics are contained by the caller and treated like
// an internal error.
type Handler interface {
	Serve(req *Request, res *Response) error
}

// HandlerFunc adapts a plain function to the Handler interface.
type HandlerFunc func(req *Request, res *Response) error

// Serve calls f(req, res).
func (f HandlerFunc) Serve(req *Request, res *Response) error {
	return f(req, res)
}
