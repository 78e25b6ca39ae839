/* Copyright (c) 2017 Gregor Riepl
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

import "errors"

// Stream error taxonomy.
var (
	ErrNoError                    error = nil
	ErrWriteFailedNoConnection          = errors.New("transport: write failed, not connected")
	ErrMaxReadBufferSizeExceeded        = errors.New("transport: maximum read buffer size exceeded")
	ErrMaxWriteBufferSizeExceeded       = errors.New("transport: maximum write buffer size exceeded")
	ErrWriteFailed                      = errors.New("transport: write failed")
	ErrWriteFailedReturnedZero          = errors.New("transport: write returned zero bytes")
)

// Pipe error taxonomy.
var (
	ErrPipeWriteFailed = errors.New("transport: pipe write failed")
	ErrPipeWriteAtEnd  = errors.New("transport: pipe write end closed")
	ErrPipeReadFailed  = errors.New("transport: pipe read failed")
	ErrPipeReadAtEnd   = errors.New("transport: pipe read end closed")
)
