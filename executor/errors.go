// Copyright (c) 2023 The KBase Project and its Contributors
// Copyright (c) 2023 Cohere Consulting, LLC
//
// Permission is hereby granted, free of charge, to any person obtaining a copy of
// this software and associated documentation files (the "Software"), to deal in
// the Software without restriction, including without limitation the rights to
// use, copy, modify, merge, publish, distribute, sublicense, and/or sell copies
// of the Software, and to permit persons to whom the Software is furnished to do
// so, subject to the following conditions:
//
// The above copyright notice and this permission notice shall be included in all
// copies or substantial portions of the Software.
//
// THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
// IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
// FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
// AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
// LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
// OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
// SOFTWARE.

package executor

import (
	"fmt"

	"github.com/globus-compute/central-scheduler/core"
)

// DowngradedRedirectError is emitted if the execution service redirects an
// HTTPS request to an HTTP endpoint.
type DowngradedRedirectError struct {
	Endpoint string
}

func (e DowngradedRedirectError) Error() string {
	return fmt.Sprintf("the execution service at %s is attempting to downgrade an HTTPS request to HTTP",
		e.Endpoint)
}

// UnavailableError indicates the execution service responded, but with a
// status indicating it cannot currently serve requests.
type UnavailableError struct {
	StatusCode int
}

func (e UnavailableError) Error() string {
	return fmt.Sprintf("execution service unavailable (status %d)", e.StatusCode)
}

// BatchMismatchError indicates the execution service's response to a
// Submit call didn't carry one real task id per submitted item.
type BatchMismatchError struct {
	Submitted, Returned int
}

func (e BatchMismatchError) Error() string {
	return fmt.Sprintf("execution service returned %d task ids for a batch of %d", e.Returned, e.Submitted)
}

// UnrecognizedEndpointError indicates the execution service has no record
// of the endpoint named in a status poll.
type UnrecognizedEndpointError struct {
	Endpoint core.EndpointID
}

func (e UnrecognizedEndpointError) Error() string {
	return fmt.Sprintf("execution service has no record of endpoint %s", e.Endpoint)
}
