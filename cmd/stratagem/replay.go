package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/openbiome/stratagem/internal/protocol"
	"github.com/openbiome/stratagem/internal/reconcile"
)

// replayCmd feeds a recorded agent event log through a fresh
// reconciler and prints the resulting transcript.
func replayCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "replay <event-log>",
		Short: "Replay a msgpack event log and print the transcript",
		Long: `Replay a recorded agent event log through a fresh reconciler.

The log is a stream of msgpack-encoded envelopes as captured from the
agent websocket. Non-event envelopes are skipped. The reconciled
transcript is printed as JSON, which makes it possible to diff the
transcript a client would have seen against the raw event stream.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runReplay(args[0])
		},
	}
}

func runReplay(path string) error {
	var in io.Reader
	if path == "-" {
		in = os.Stdin
	} else {
		f, err := os.Open(path)
		if err != nil {
			return fmt.Errorf("open event log: %w", err)
		}
		defer f.Close()
		in = f
	}

	transcript := reconcile.NewDirect([]reconcile.Message(nil))
	undo := reconcile.NewDirect(map[int]*reconcile.StrategySnapshot{})
	rc := reconcile.NewContext(transcript, undo)
	rc.ParseToolArguments = reconcile.DefaultParseToolArguments
	rc.ParseToolResult = reconcile.DefaultParseToolResult

	dec := msgpack.NewDecoder(in)
	var total, replayed int
	for {
		var env protocol.Envelope
		if err := dec.Decode(&env); err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return fmt.Errorf("decode envelope %d: %w", total, err)
		}
		total++
		if env.Type != protocol.TypeChatEvent {
			continue
		}
		ev, err := protocol.DecodeBody[protocol.ChatEvent](&env)
		if err != nil {
			return fmt.Errorf("decode event %d: %w", total, err)
		}

		if ev.Type == protocol.EventMessageStart {
			next := reconcile.NewContext(transcript, undo)
			next.ParseToolArguments = rc.ParseToolArguments
			next.ParseToolResult = rc.ParseToolResult
			rc = next
		}
		reconcile.Dispatch(rc, *ev)
		replayed++
	}

	out, err := json.MarshalIndent(transcript.State(), "", "  ")
	if err != nil {
		return fmt.Errorf("marshal transcript: %w", err)
	}
	fmt.Println(string(out))
	fmt.Fprintf(os.Stderr, "replayed %d of %d envelopes\n", replayed, total)
	return nil
}
