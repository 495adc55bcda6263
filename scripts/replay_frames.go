// replay_frames feeds a capture of metrics socket messages, one JSON wire
// event per line, through a session stream and prints the journal entries
// it produces.
package main

import (
	"bufio"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/harunnryd/procura/pkg/frames"
	"github.com/harunnryd/procura/pkg/processors"
	"github.com/harunnryd/procura/pkg/server"
	"github.com/harunnryd/procura/pkg/stream"
	"github.com/harunnryd/procura/pkg/transports/mock"
)

func main() {
	input := flag.String("in", "-", "capture file, - for stdin")
	policy := flag.String("unknown", string(processors.UnknownSurface), "unknown intent policy: surface or log")
	session := flag.String("session", "replay", "session id")
	flag.Parse()

	var r io.Reader = os.Stdin
	if *input != "-" {
		f, err := os.Open(*input)
		if err != nil {
			fmt.Println("open error:", err)
			os.Exit(1)
		}
		defer f.Close()
		r = f
	}

	dialer := mock.NewDialer()
	conn := mock.NewConn()
	dialer.Enqueue(conn)

	s := stream.New(stream.Config{UnknownPolicy: *policy}, stream.Options{Dialer: dialer})
	journal := server.NewJournal(0)
	enc := json.NewEncoder(os.Stdout)
	done := make(chan struct{})
	s.AddListener(func(f frames.Frame) {
		if err := enc.Encode(journal.Append(f, time.Now())); err != nil {
			fmt.Fprintln(os.Stderr, "encode error:", err)
		}
		if sf, ok := f.(frames.SystemFrame); ok && sf.Name() == frames.SystemDisconnected {
			close(done)
		}
	})
	if err := s.Connect(context.Background(), *session, ""); err != nil {
		fmt.Println("connect error:", err)
		os.Exit(1)
	}

	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 8<<20)
	lines := 0
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		conn.Push(line)
		lines++
	}
	if err := sc.Err(); err != nil {
		fmt.Println("read error:", err)
	}
	conn.PeerClose(1000, "replay finished")

	select {
	case <-done:
	case <-time.After(10 * time.Second):
		fmt.Fprintln(os.Stderr, "timed out waiting for stream to finish")
	}
	fmt.Fprintf(os.Stderr, "replayed %d lines, %d entries\n", lines, journal.LastSeq())
}
