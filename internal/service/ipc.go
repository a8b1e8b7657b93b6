// Copyright 2026 The Wormhole Authors.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package service

import (
	"bytes"
	"context"
	"encoding/binary"
	"encoding/gob"
	"errors"
	"fmt"
	"io"
	"net"
	"os"

	"github.com/agartha-software/wormhole/internal/logger"
)

// maxFrameSize bounds a single Command/Answer frame, generous enough for
// an ApplyConfig document while refusing to let a misbehaving client make
// the listener allocate without limit.
const maxFrameSize = 16 << 20

// Listener accepts CLI connections on a local Unix domain socket and
// dispatches each one's single Command to a Service, per spec.md §6: "The
// service listens on a named local socket... Frame format: 4-byte
// big-endian length prefix followed by a compact binary-serialized
// Command... The service responds with the same framing and a serialized
// Answer." Grounded on the teacher's cmd/root.go command-dispatch
// structure, adapted from an in-process cobra.Command tree to an
// out-of-process socket because Wormhole's CLI and long-running Service
// are separate binaries/processes (spec.md §1, §6).
type Listener struct {
	svc  *Service
	ln   net.Listener
	path string
}

// Listen creates (replacing any stale socket file left by a prior crash)
// and starts listening on the Unix domain socket at path.
func Listen(path string, svc *Service) (*Listener, error) {
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("service: clearing stale socket %s: %w", path, err)
	}
	ln, err := net.Listen("unix", path)
	if err != nil {
		return nil, fmt.Errorf("service: listening on %s: %w", path, err)
	}
	return &Listener{svc: svc, ln: ln, path: path}, nil
}

// Addr returns the socket path being served.
func (l *Listener) Addr() string { return l.path }

// Close stops accepting connections and removes the socket file.
func (l *Listener) Close() error {
	err := l.ln.Close()
	_ = os.Remove(l.path)
	return err
}

// Serve accepts connections until ctx is cancelled or Close is called,
// handling each one synchronously with one Command in, one Answer out,
// matching spec.md §6's per-connection request/response shape.
func (l *Listener) Serve(ctx context.Context) error {
	go func() {
		<-ctx.Done()
		_ = l.ln.Close()
	}()

	for {
		conn, err := l.ln.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				return nil
			default:
			}
			var netErr net.Error
			if errors.As(err, &netErr) && !netErr.Timeout() {
				return err
			}
			continue
		}
		go l.handleConn(ctx, conn)
	}
}

func (l *Listener) handleConn(ctx context.Context, conn net.Conn) {
	defer conn.Close()

	cmd, err := readCommand(conn)
	if err != nil {
		if !errors.Is(err, io.EOF) {
			logger.Warnf("service: reading command: %v", err)
		}
		return
	}

	answer := l.svc.Handle(ctx, cmd)
	if err := writeAnswer(conn, answer); err != nil {
		logger.Warnf("service: writing answer for %s: %v", cmd.Kind, err)
	}
}

func readCommand(r io.Reader) (Command, error) {
	var cmd Command
	data, err := readFrame(r)
	if err != nil {
		return Command{}, err
	}
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&cmd); err != nil {
		return Command{}, fmt.Errorf("decoding command: %w", err)
	}
	return cmd, nil
}

func writeAnswer(w io.Writer, answer Answer) error {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(answer); err != nil {
		return fmt.Errorf("encoding answer: %w", err)
	}
	return writeFrame(w, buf.Bytes())
}

func readFrame(r io.Reader) ([]byte, error) {
	var lenBuf [4]byte
	if _, err := io.ReadFull(r, lenBuf[:]); err != nil {
		return nil, err
	}
	n := binary.BigEndian.Uint32(lenBuf[:])
	if n > maxFrameSize {
		return nil, fmt.Errorf("frame of %d bytes exceeds limit", n)
	}
	data := make([]byte, n)
	if _, err := io.ReadFull(r, data); err != nil {
		return nil, fmt.Errorf("reading frame body: %w", err)
	}
	return data, nil
}

func writeFrame(w io.Writer, data []byte) error {
	var lenBuf [4]byte
	binary.BigEndian.PutUint32(lenBuf[:], uint32(len(data)))
	if _, err := w.Write(lenBuf[:]); err != nil {
		return err
	}
	_, err := w.Write(data)
	return err
}

// Dial connects to a running Service's socket, for CLI use.
func Dial(path string) (net.Conn, error) {
	return net.Dial("unix", path)
}

// Call sends cmd over conn and waits for the matching Answer, the round
// trip the CLI's command implementations perform once per invocation.
func Call(conn net.Conn, cmd Command) (Answer, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(cmd); err != nil {
		return Answer{}, fmt.Errorf("encoding command: %w", err)
	}
	if err := writeFrame(conn, buf.Bytes()); err != nil {
		return Answer{}, fmt.Errorf("sending command: %w", err)
	}

	data, err := readFrame(conn)
	if err != nil {
		return Answer{}, fmt.Errorf("reading answer: %w", err)
	}
	var answer Answer
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&answer); err != nil {
		return Answer{}, fmt.Errorf("decoding answer: %w", err)
	}
	return answer, nil
}
