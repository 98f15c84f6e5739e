// Package oracletest provides a deterministic oracle for tests.
package oracletest

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/joelkehle/jury-instructions/internal/oracle"
)

// Responder computes a reply from the request.
type Responder func(req oracle.Request) (string, error)

type reply struct {
	body string
	err  error
}

// Scripted replays canned responses per schema name. Queued replies are
// consumed first; after that the schema's Responder, if any, answers. A
// request with nothing scripted fails.
type Scripted struct {
	mu         sync.Mutex
	queues     map[string][]reply
	responders map[string]Responder
	calls      []oracle.Request
}

var _ oracle.Oracle = (*Scripted)(nil)

func New() *Scripted {
	return &Scripted{
		queues:     map[string][]reply{},
		responders: map[string]Responder{},
	}
}

// Push queues a JSON body for schema.
func (s *Scripted) Push(schema, body string) *Scripted {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.queues[schema] = append(s.queues[schema], reply{body: body})
	return s
}

// PushJSON marshals v and queues it for schema.
func (s *Scripted) PushJSON(schema string, v any) *Scripted {
	b, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	return s.Push(schema, string(b))
}

// PushError queues a failure for schema.
func (s *Scripted) PushError(schema string, err error) *Scripted {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.queues[schema] = append(s.queues[schema], reply{err: err})
	return s
}

// Handle answers every otherwise unscripted request for schema with fn.
func (s *Scripted) Handle(schema string, fn Responder) *Scripted {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.responders[schema] = fn
	return s
}

func (s *Scripted) Invoke(_ context.Context, req oracle.Request) (json.RawMessage, error) {
	s.mu.Lock()
	s.calls = append(s.calls, req)
	q := s.queues[req.SchemaName]
	if len(q) > 0 {
		r := q[0]
		s.queues[req.SchemaName] = q[1:]
		s.mu.Unlock()
		if r.err != nil {
			return nil, r.err
		}
		return json.RawMessage(r.body), nil
	}
	fn := s.responders[req.SchemaName]
	s.mu.Unlock()
	if fn == nil {
		return nil, fmt.Errorf("oracletest: no reply scripted for %s", req.SchemaName)
	}
	body, err := fn(req)
	if err != nil {
		return nil, err
	}
	return json.RawMessage(body), nil
}

// Calls returns the requests received for schema, or all requests when
// schema is empty.
func (s *Scripted) Calls(schema string) []oracle.Request {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []oracle.Request
	for _, c := range s.calls {
		if schema == "" || c.SchemaName == schema {
			out = append(out, c)
		}
	}
	return out
}

func (s *Scripted) CallCount(schema string) int {
	return len(s.Calls(schema))
}

// Executor wraps s in an executor that asks each request once.
func (s *Scripted) Executor(opts ...oracle.Option) *oracle.Executor {
	return oracle.NewExecutor(s, append([]oracle.Option{oracle.WithAttempts(1)}, opts...)...)
}
