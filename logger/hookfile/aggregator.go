/*
 * MIT License
 *
 * Copyright (c) 2025 Nicolas JUHEL
 *
 * Permission is hereby granted, free of charge, to any person obtaining a copy
 * of this software and associated documentation files (the "Software"), to deal
 * in the Software without restriction, including without limitation the rights
 * to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
 * copies of the Software, and to permit persons to whom the Software is
 * furnished to do so, subject to the following conditions:
 *
 * The above copyright notice and this permission notice shall be included in all
 * copies or substantial portions of the Software.
 *
 * THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
 * IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
 * FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
 * AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
 * LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
 * OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
 * SOFTWARE.
 *
 *
 */

package hookfile

import (
	"errors"
	"os"
	"sync"
)

// errClosedResource is returned by a shared file writer once every hook
// referencing it has called Close and the underlying descriptor was released.
var errClosedResource = errors.New("hookfile: shared file resource is closed")

// sharedFile is a refcounted *os.File wrapper: several hkf instances pointed
// at the same path share one open descriptor and one write mutex.
type sharedFile struct {
	mu   sync.Mutex
	f    *os.File
	refs int
}

func (s *sharedFile) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.f == nil {
		return 0, errClosedResource
	}

	return s.f.Write(p)
}

var (
	aggMu  sync.Mutex
	aggMap = make(map[string]*sharedFile)
)

// setAgg returns the shared writer for path, opening it if this is the first
// reference, and bumps its reference count.
func setAgg(path string, mode os.FileMode, create bool) (*sharedFile, error) {
	aggMu.Lock()
	defer aggMu.Unlock()

	if s, ok := aggMap[path]; ok {
		s.refs++
		return s, nil
	}

	flags := os.O_WRONLY | os.O_APPEND
	if create {
		flags |= os.O_CREATE
	}

	f, e := os.OpenFile(path, flags, mode)
	if e != nil {
		return nil, e
	}

	s := &sharedFile{f: f, refs: 1}
	aggMap[path] = s

	return s, nil
}

// delAgg drops one reference on path's shared writer, closing and removing
// it once the last hook referencing it has gone away.
func delAgg(path string) {
	aggMu.Lock()
	defer aggMu.Unlock()

	s, ok := aggMap[path]
	if !ok {
		return
	}

	s.refs--
	if s.refs > 0 {
		return
	}

	delete(aggMap, path)

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.f != nil {
		_ = s.f.Close()
		s.f = nil
	}
}

// ResetOpenFiles closes every shared file writer and clears the registry.
// Intended for use by tests between cases.
func ResetOpenFiles() {
	aggMu.Lock()
	defer aggMu.Unlock()

	for path, s := range aggMap {
		s.mu.Lock()
		if s.f != nil {
			_ = s.f.Close()
			s.f = nil
		}
		s.mu.Unlock()
		delete(aggMap, path)
	}
}
