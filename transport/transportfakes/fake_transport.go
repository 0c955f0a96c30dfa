package transportfakes

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/pkg/errors"

	"github.com/jrsteele09/go-baas-sdk/transport"
)

// Stub is one scripted response (or error) returned by the fake in order.
type Stub struct {
	Status int
	Body   any
	Err    error
}

// FakeTransport replays scripted responses and records every request it
// receives, so tests can assert exactly what would have gone over the wire.
type FakeTransport struct {
	lock     sync.Mutex
	stubs    []Stub
	Requests []transport.Request
}

// NewFakeTransport creates an empty fake; queue responses with Stub/StubErr.
func NewFakeTransport() *FakeTransport {
	return &FakeTransport{}
}

// Stub queues a response with the given status and JSON body.
func (f *FakeTransport) Stub(status int, body any) *FakeTransport {
	f.lock.Lock()
	defer f.lock.Unlock()
	f.stubs = append(f.stubs, Stub{Status: status, Body: body})
	return f
}

// StubErr queues a transport-level error.
func (f *FakeTransport) StubErr(err error) *FakeTransport {
	f.lock.Lock()
	defer f.lock.Unlock()
	f.stubs = append(f.stubs, Stub{Err: err})
	return f
}

// Execute pops the next stub, recording the request.
func (f *FakeTransport) Execute(_ context.Context, req transport.Request) (*transport.Response, error) {
	f.lock.Lock()
	defer f.lock.Unlock()

	f.Requests = append(f.Requests, req)
	if len(f.stubs) == 0 {
		return nil, errors.New("fake transport: no stubbed response left")
	}

	next := f.stubs[0]
	f.stubs = f.stubs[1:]

	if next.Err != nil {
		return nil, next.Err
	}

	data, err := json.Marshal(next.Body)
	if err != nil {
		return nil, errors.Wrap(err, "fake transport: failed to marshal stub body")
	}
	return &transport.Response{StatusCode: next.Status, Data: data}, nil
}

// CallCount returns how many requests the fake has served.
func (f *FakeTransport) CallCount() int {
	f.lock.Lock()
	defer f.lock.Unlock()
	return len(f.Requests)
}
