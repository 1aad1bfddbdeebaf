/*
 * MIT License
 *
 * Copyright (c) 2020 Nicolas JUHEL
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

package corepool

// store is component C: the pool's keepalive set of idle connections,
// indexed by origin. Connections handed out to a request are not tracked
// in any store. It is not safe for concurrent use on its own; pool.go
// guards every call with its own mutex, the same way the teacher guards
// struct field access in httpcli/model.go's request type.
type store struct {
	byOrigin map[Origin][]*connection
	order    []*connection
}

func newStore() *store {
	return &store{
		byOrigin: make(map[Origin][]*connection),
	}
}

// add registers c under its origin, most-recent last.
func (s *store) add(c *connection) {
	s.byOrigin[c.origin] = append(s.byOrigin[c.origin], c)
	s.order = append(s.order, c)
}

// remove drops c from both indices. No-op if c is not present.
func (s *store) remove(c *connection) {
	if lst, ok := s.byOrigin[c.origin]; ok {
		s.byOrigin[c.origin] = removeConn(lst, c)
		if len(s.byOrigin[c.origin]) == 0 {
			delete(s.byOrigin, c.origin)
		}
	}
	s.order = removeConn(s.order, c)
}

// popMostRecentFor pops the most recently released connection for an
// origin (LIFO), minimizing the chance of handing out a connection whose
// peer silently closed it while idle.
func (s *store) popMostRecentFor(o Origin) (*connection, bool) {
	lst, ok := s.byOrigin[o]
	if !ok || len(lst) == 0 {
		return nil, false
	}

	c := lst[len(lst)-1]
	s.byOrigin[o] = lst[:len(lst)-1]
	if len(s.byOrigin[o]) == 0 {
		delete(s.byOrigin, o)
	}
	s.order = removeConn(s.order, c)

	return c, true
}

// Len returns the total number of connections currently tracked.
func (s *store) Len() int {
	return len(s.order)
}

// all returns a snapshot of every tracked connection, for Close().
func (s *store) all() []*connection {
	out := make([]*connection, len(s.order))
	copy(out, s.order)
	return out
}

func removeConn(lst []*connection, c *connection) []*connection {
	for i, v := range lst {
		if v == c {
			return append(lst[:i], lst[i+1:]...)
		}
	}
	return lst
}
