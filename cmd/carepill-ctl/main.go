package main

import (
	"context"
	"fmt"
	"os"
	"time"

	cli "github.com/spf13/pflag"

	"github.com/siwon333/CarePill/internal/ipc"
)

const usage = `usage: carepill-ctl <command> [arg]

commands:
  voice-on | voice-off | voice-toggle   control the voice command listener
  chat-start | chat-stop                control the live conversation
  dispense <medicine>                   dispense a medicine slot
  summarize | save                      summarize the conversation (save persists it)
  voice-register                        record a reference voice sample
  voice-import <file>                   import a reference voice sample
  status                                show daemon state
`

func main() {
	socket := cli.String("socket", ipc.DefaultSocketPath, "Control socket path")
	timeout := cli.Duration("timeout", 90*time.Second, "Command timeout")
	cli.Parse()

	args := cli.Args()
	if len(args) == 0 {
		fmt.Print(usage)
		os.Exit(2)
	}
	cmd := args[0]
	arg := ""
	if len(args) > 1 {
		arg = args[1]
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	rep, err := ipc.Send(ctx, *socket, cmd, arg)
	if err != nil {
		fmt.Println("carepilld not running:", err)
		os.Exit(1)
	}
	if !rep.OK {
		fmt.Println("error:", rep.Detail)
		os.Exit(1)
	}
	if rep.Detail != "" {
		fmt.Println(rep.Detail)
	}
}
