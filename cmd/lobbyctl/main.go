// Package main provides an interactive lobby client over the gRPC gateway.
//
// Each stdin line is "<event> [json data]", for example:
//
//	session:create {"leaderName":"alice"}
//	session:launch
//
// Every frame received from the server is printed on its own line.
package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"strconv"
	"strings"

	"github.com/cory-johannsen/rushlobby/internal/gateway/grpcgw"
	"github.com/cory-johannsen/rushlobby/internal/lobby/protocol"
)

func main() {
	addr := flag.String("addr", "127.0.0.1:50061", "lobby gRPC address")
	flag.Parse()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	client, err := grpcgw.Dial(*addr)
	if err != nil {
		log.Fatalf("dialing: %v", err)
	}
	defer client.Close()

	stream, err := client.Connect(ctx)
	if err != nil {
		log.Fatalf("connecting: %v", err)
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			frame, err := stream.Recv()
			if err != nil {
				if !errors.Is(err, io.EOF) && ctx.Err() == nil {
					log.Printf("receive: %v", err)
				}
				return
			}
			fmt.Println(string(frame))
		}
	}()

	scanner := bufio.NewScanner(os.Stdin)
	seq := 0
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		seq++
		frame, err := parseLine(line, strconv.Itoa(seq))
		if err != nil {
			log.Printf("%v", err)
			continue
		}
		if err := stream.Send(frame); err != nil {
			log.Printf("send: %v", err)
			break
		}
	}
	_ = stream.CloseSend()
	<-done
}

// parseLine turns "<event> [json data]" into an encoded frame.
func parseLine(line, requestID string) ([]byte, error) {
	event, rest, _ := strings.Cut(line, " ")
	var data any
	if rest = strings.TrimSpace(rest); rest != "" {
		raw := json.RawMessage(rest)
		if !json.Valid(raw) {
			return nil, fmt.Errorf("data for %s is not valid JSON", event)
		}
		data = raw
	}
	return protocol.Encode(event, requestID, data)
}
