package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/gastown/gt/internal/obs/client"
	"github.com/gastown/gt/internal/obs/model"
)

func init() {
	observeCmd.AddCommand(observeWatchCmd)
}

var observeWatchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Stream live fleet events from a running observability server",
	Long: `Connect to a running "gt observe serve" backend over its WebSocket and
print every incremental event and alert as it arrives, until interrupted.`,
	RunE: runObserveWatch,
}

func runObserveWatch(cmd *cobra.Command, args []string) error {
	c := client.New(observeServerAddr)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigChan
		cancel()
	}()

	frames, err := c.Watch(ctx)
	if err != nil {
		return fmt.Errorf("connecting to %s: %w", observeServerAddr, err)
	}

	for frame := range frames {
		switch {
		case frame.Alert != nil:
			fmt.Printf("[%s] ALERT %s: %s\n", frame.Alert.Timestamp.Format("15:04:05"), frame.Alert.Severity, frame.Alert.RuleName)
		case frame.Event != nil:
			fmt.Printf("[%s] %-22s rig=%s %s\n", frame.Event.Timestamp.Format("15:04:05"), frame.Type, frame.Event.Rig, describeEvent(*frame.Event))
		default:
			data, _ := json.Marshal(frame)
			fmt.Println(string(data))
		}
	}
	return ctx.Err()
}

func describeEvent(ev model.Event) string {
	switch ev.Type {
	case model.EventAgentStatusChange, model.EventAgentAdded, model.EventAgentRemoved:
		return fmt.Sprintf("agent=%s %s->%s", ev.Agent, ev.From, ev.To)
	case model.EventHookChange:
		return fmt.Sprintf("agent=%s hook=%s->%s", ev.Agent, ev.PrevBead, ev.NewBead)
	case model.EventBeadStatusChange:
		return fmt.Sprintf("bead=%s %s->%s", ev.BeadID, ev.FromStatus, ev.ToStatus)
	case model.EventMail:
		return fmt.Sprintf("%s->%s: %s", ev.MailFrom, ev.MailTo, ev.Subject)
	case model.EventError, model.EventLog:
		return fmt.Sprintf("[%s] %s", ev.Severity, ev.Message)
	default:
		return ev.Message
	}
}
