//go:build windows
// +build windows

/* Copyright (c) 2019 Gregor Riepl
 *
 * This program is free software: you can redistribute it and/or modify
 * it under the terms of the GNU General Public License as published by
 * the Free Software Foundation, either version 3 of the License, or
 * (at your option) any later version.
 *
 * This program is distributed in the hope that it will be useful,
 * but WITHOUT ANY WARRANTY; without even the implied warranty of
 * MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
 * GNU General Public License for more details.
 *
 * You should have received a copy of the GNU General Public License
 * along with this program.  If not, see <http://www.gnu.org/licenses/>.
 */

package transport

import (
	"io"
	"time"
)

// poll is the portable substitute for the unix.Select-based poller: no
// readiness multiplexing is available, so a dedicated reader goroutine
// blocks on Read while this goroutine drains writeBuf on a short tick,
// approximating the same level-triggered callbacks.
func (p *Pipe) poll(stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)
	readDone := make(chan struct{})
	go p.readPump(stop, readDone)
	p.writePump(stop)
	<-readDone
}

func (p *Pipe) readPump(stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)
	tmp := make([]byte, 4096)
	for {
		select {
		case <-stop:
			return
		default:
		}
		p.mu.Lock()
		in := p.in
		p.mu.Unlock()
		if in == nil {
			return
		}
		n, err := in.Read(tmp)
		if n > 0 {
			p.buf.Append(tmp[:n])
		}
		if err != nil {
			p.mu.Lock()
			if err == io.EOF {
				p.lastError = ErrPipeReadAtEnd
			} else {
				p.lastError = ErrPipeReadFailed
			}
			p.mu.Unlock()
			return
		}
	}
}

func (p *Pipe) writePump(stop <-chan struct{}) {
	ticker := time.NewTicker(5 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
		}
		p.mu.Lock()
		out := p.out
		pending := append([]byte(nil), p.writeBuf.Bytes()...)
		p.mu.Unlock()
		if out == nil || len(pending) == 0 {
			continue
		}
		n, err := out.Write(pending)
		p.mu.Lock()
		if n > 0 {
			p.writeBuf.Next(n)
		}
		if err != nil {
			p.lastError = ErrPipeWriteFailed
		}
		drained := p.writeBuf.Len() == 0
		notify := p.onWriteNotify
		p.mu.Unlock()
		if drained && notify != nil {
			notify()
		}
	}
}
