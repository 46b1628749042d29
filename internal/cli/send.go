package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ryandotelliott/dead-internet/internal/compose"
)

func (r *runner) sendCmd() *cobra.Command {
	var (
		from, name    string
		to, cc        []string
		subject, body string
		threadID      string
	)
	cmd := &cobra.Command{
		Use:   "send",
		Short: "Send an email as a human",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			s, err := r.open(ctx)
			if err != nil {
				return err
			}
			defer s.close()

			sender, err := s.human(ctx, from, name)
			if err != nil {
				return err
			}
			receipt, err := s.svc.Composer.Send(ctx, sender.ID, compose.Draft{
				To:       to,
				CC:       cc,
				Subject:  subject,
				Body:     body,
				ThreadID: threadID,
			})
			if err != nil {
				return err
			}
			s.settle(ctx)
			fmt.Fprintf(cmd.OutOrStdout(), "message %s\nthread %s\n", receipt.MessageID, receipt.ThreadID)
			return nil
		},
	}
	f := cmd.Flags()
	f.StringVar(&from, "from", "", "sender address")
	f.StringVar(&name, "name", "", "sender name; creates the sender when missing")
	f.StringSliceVar(&to, "to", nil, "recipient addresses")
	f.StringSliceVar(&cc, "cc", nil, "copied addresses")
	f.StringVar(&subject, "subject", "", "subject line")
	f.StringVar(&body, "body", "", "message body")
	f.StringVar(&threadID, "thread", "", "thread to reply in")
	_ = cmd.MarkFlagRequired("from")
	_ = cmd.MarkFlagRequired("to")
	return cmd
}
