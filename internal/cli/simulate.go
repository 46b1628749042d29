package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ryandotelliott/dead-internet/internal/compose"
)

// simulateCmd runs one exchange against an in-process store: optional
// personas are seeded, a human sends, every reply is processed and the
// resulting thread is printed.
func (r *runner) simulateCmd() *cobra.Command {
	var (
		seed          string
		from, name    string
		to            []string
		subject, body string
	)
	cmd := &cobra.Command{
		Use:   "simulate",
		Short: "Run one exchange in memory and print the thread",
		RunE: func(cmd *cobra.Command, args []string) error {
			r.v.Set("store", storeMemory)
			ctx := cmd.Context()
			s, err := r.open(ctx)
			if err != nil {
				return err
			}
			defer s.close()

			if seed != "" {
				f, err := readSeedFile(seed)
				if err != nil {
					return err
				}
				if _, err := s.seedPersonas(ctx, f); err != nil {
					return err
				}
			}
			sender, err := s.human(ctx, from, name)
			if err != nil {
				return err
			}
			receipt, err := s.svc.Composer.Send(ctx, sender.ID, compose.Draft{
				To:      to,
				Subject: subject,
				Body:    body,
			})
			if err != nil {
				return err
			}
			s.settle(ctx)

			tc, err := s.svc.Threads.GetContext(ctx, receipt.ThreadID, s.cfg.Orchestrator.MaxThreadMessages)
			if err != nil {
				return err
			}
			printThread(cmd.OutOrStdout(), tc)
			fmt.Fprintf(cmd.OutOrStdout(), "\n%d messages\n", len(tc.Messages))
			return nil
		},
	}
	f := cmd.Flags()
	f.StringVar(&seed, "seed", "", "persona YAML file")
	f.StringVar(&from, "from", "you@example.com", "sender address")
	f.StringVar(&name, "name", "You", "sender name")
	f.StringSliceVar(&to, "to", nil, "recipient addresses")
	f.StringVar(&subject, "subject", "", "subject line")
	f.StringVar(&body, "body", "", "message body")
	_ = cmd.MarkFlagRequired("to")
	return cmd
}
