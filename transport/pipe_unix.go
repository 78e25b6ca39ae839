//go:build !windows
// +build !windows

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
	"os"
	"time"

	"golang.org/x/sys/unix"
)

const fdSetBits = 64

func fdSet(set *unix.FdSet, fd int) {
	set.Bits[fd/fdSetBits] |= 1 << (uint(fd) % fdSetBits)
}

func fdIsSet(set *unix.FdSet, fd int) bool {
	return set.Bits[fd/fdSetBits]&(1<<(uint(fd)%fdSetBits)) != 0
}

// poll drives both fds with a single level-triggered unix.Select loop: the
// read side is always watched for readability, the write side only while
// writeBuf holds unflushed bytes, so SetWriteNotify fires exactly once per
// drain rather than on every idle wakeup.
func (p *Pipe) poll(stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)
	tmp := make([]byte, 4096)
	for {
		select {
		case <-stop:
			return
		default:
		}

		p.mu.Lock()
		in, out := p.in, p.out
		wantWrite := out != nil && p.writeBuf.Len() > 0
		p.mu.Unlock()

		if in == nil && out == nil {
			time.Sleep(10 * time.Millisecond)
			continue
		}

		var rfds, wfds unix.FdSet
		nfd := 0
		if in != nil {
			fd := int(in.Fd())
			fdSet(&rfds, fd)
			if fd+1 > nfd {
				nfd = fd + 1
			}
		}
		if wantWrite {
			fd := int(out.Fd())
			fdSet(&wfds, fd)
			if fd+1 > nfd {
				nfd = fd + 1
			}
		}

		tv := unix.NsecToTimeval((100 * time.Millisecond).Nanoseconds())
		n, err := unix.Select(nfd, &rfds, &wfds, nil, &tv)
		if err != nil || n <= 0 {
			continue
		}

		if in != nil && fdIsSet(&rfds, int(in.Fd())) {
			nr, rerr := in.Read(tmp)
			if nr > 0 {
				p.buf.Append(tmp[:nr])
			}
			if rerr != nil {
				p.mu.Lock()
				if rerr == io.EOF {
					p.lastError = ErrPipeReadAtEnd
				} else {
					p.lastError = ErrPipeReadFailed
				}
				p.mu.Unlock()
			}
		}
		if wantWrite && fdIsSet(&wfds, int(out.Fd())) {
			p.flushWrite(out)
		}
	}
}

func (p *Pipe) flushWrite(out *os.File) {
	p.mu.Lock()
	pending := append([]byte(nil), p.writeBuf.Bytes()...)
	p.mu.Unlock()
	if len(pending) == 0 {
		return
	}
	nw, werr := out.Write(pending)

	p.mu.Lock()
	if nw > 0 {
		p.writeBuf.Next(nw)
	}
	if werr != nil {
		p.lastError = ErrPipeWriteFailed
	}
	drained := p.writeBuf.Len() == 0
	notify := p.onWriteNotify
	p.mu.Unlock()
	if drained && notify != nil {
		notify()
	}
}
