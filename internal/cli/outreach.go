package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

func (r *runner) outreachCmd() *cobra.Command {
	var (
		from string
		to   []string
	)
	cmd := &cobra.Command{
		Use:   "outreach",
		Short: "Have a persona start a thread",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			s, err := r.open(ctx)
			if err != nil {
				return err
			}
			defer s.close()

			sender, err := s.persona(ctx, from)
			if err != nil {
				return err
			}
			ids, err := s.svc.Directory.ResolveRecipients(ctx, to, "")
			if err != nil {
				return err
			}
			receipt, err := s.svc.Orchestrator.Outreach(ctx, sender.ID, ids)
			if err != nil {
				return err
			}
			s.settle(ctx)
			fmt.Fprintf(cmd.OutOrStdout(), "message %s\nthread %s\n", receipt.MessageID, receipt.ThreadID)
			return nil
		},
	}
	f := cmd.Flags()
	f.StringVar(&from, "persona", "", "persona address")
	f.StringSliceVar(&to, "to", nil, "recipient addresses")
	_ = cmd.MarkFlagRequired("persona")
	_ = cmd.MarkFlagRequired("to")
	return cmd
}
