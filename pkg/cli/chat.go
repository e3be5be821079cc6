package cli

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/fatih/color"
	"github.com/urfave/cli/v3"

	"github.com/helixa-health/scribe/pkg/cli/config"
	"github.com/helixa-health/scribe/pkg/domain/types"
	"github.com/helixa-health/scribe/pkg/repository/memory"
	"github.com/helixa-health/scribe/pkg/service/cache"
	"github.com/helixa-health/scribe/pkg/usecase"
)

func cmdChat() *cli.Command {
	var uploadCfg config.Upload
	var patientID string

	flags := []cli.Flag{
		&cli.StringFlag{
			Name:        "patient-id",
			Usage:       "Scope the conversation to one patient",
			Sources:     cli.EnvVars("SCRIBE_CHAT_PATIENT_ID"),
			Destination: &patientID,
		},
	}
	flags = append(flags, uploadCfg.Flags()...)

	return &cli.Command{
		Name:    "chat",
		Aliases: []string{"c"},
		Usage:   "Interactive assistant chat session",
		Flags:   flags,
		Action: func(ctx context.Context, c *cli.Command) error {
			client, err := uploadCfg.ConfigureChat()
			if err != nil {
				return err
			}

			uc := usecase.New(memory.New(), cache.NewStore(), usecase.WithChatClient(client))

			fmt.Println(color.CyanString("Chat session started. Empty line or Ctrl-D to quit."))

			scanner := bufio.NewScanner(os.Stdin)
			prompt := color.New(color.FgYellow, color.Bold).Sprint("you> ")

			for {
				fmt.Print(prompt)
				if !scanner.Scan() {
					break
				}
				line := strings.TrimSpace(scanner.Text())
				if line == "" {
					break
				}

				if err := streamReply(ctx, uc.Chat, line, types.PatientID(patientID)); err != nil {
					fmt.Println(color.RedString("error: %s", err.Error()))
				}
			}

			return scanner.Err()
		},
	}
}

// streamReply sends one user message and prints the assistant reply as chunks
// arrive.
func streamReply(ctx context.Context, chat *usecase.ChatUseCase, content string, patientID types.PatientID) error {
	printed := 0
	fmt.Print(color.HiBlueString("helixa> "))

	err := chat.Send(ctx, content, patientID, func() {
		for _, msg := range chat.Messages() {
			if !msg.IsStreaming() {
				continue
			}
			if len(msg.Content) > printed {
				fmt.Print(msg.Content[printed:])
				printed = len(msg.Content)
			}
		}
	})
	if err != nil {
		fmt.Println()
		return err
	}

	// Finalized content can extend past the last streamed chunk.
	msgs := chat.Messages()
	if len(msgs) > 0 {
		if last := msgs[len(msgs)-1]; last.Role == types.ChatRoleAssistant && len(last.Content) > printed {
			fmt.Print(last.Content[printed:])
		}
	}
	fmt.Println()
	return nil
}
