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

package core

import (
	"strings"
)

// FileRef is a Frictionless-flavored reference to a remote input file,
// as extracted from a task's opaque payload by a Serializer. The scheduler
// never interprets a FileRef beyond passing it to the TransferCoordinator
// and Strategy/predictor ports; its shape follows the Frictionless
// DataResource spec (https://specs.frictionlessdata.io/data-resource/) so
// that it can be embedded directly in a DataPackage manifest.
type FileRef struct {
	// a unique identifier for the resource
	Id string `json:"id"`
	// the name of the resource's file, with any suffix stripped off
	Name string `json:"name"`
	// a path (absolute or relative to the source endpoint) to the file
	Path string `json:"path"`
	// a title or label for the resource (optional)
	Title string `json:"title,omitempty"`
	// indicates the format of the resource's file, often used as an extension
	Format string `json:"format,omitempty"`
	// the size of the resource's file in bytes
	Bytes int64 `json:"bytes,omitempty"`
	// the hash for the resource's file (other algorithms are indicated with
	// a prefix to the hash delimited by a colon)
	Hash string `json:"hash,omitempty"`
}

// HashAlgorithm returns the name of the hashing algorithm used by the
// receiver's Hash field, defaulting to "md5" when no algorithm prefix is
// present.
func (f FileRef) HashAlgorithm() string {
	if colon := strings.Index(f.Hash, ":"); colon != -1 {
		return f.Hash[:colon]
	}
	return "md5"
}

// DataPackage is a minimal Frictionless data package
// (https://specs.frictionlessdata.io/data-package/) used to describe the
// set of files associated with a completed task when it is written to the
// execution journal.
type DataPackage struct {
	// the name of the data package
	Name string `json:"name"`
	// the resources (files) staged or produced for the task
	Resources []FileRef `json:"resources"`
}
