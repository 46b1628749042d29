package cli

import (
	"errors"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/ryandotelliott/dead-internet/internal/apperr"
	"github.com/ryandotelliott/dead-internet/internal/mailbox"
	"github.com/ryandotelliott/dead-internet/internal/thread"
)

func printFolder(w io.Writer, items []*mailbox.FolderItem) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "THREAD\tFROM\tSUBJECT\tREAD\tDATE")
	for _, it := range items {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%t\t%s\n",
			it.Entry.ThreadID, it.SenderEmail, it.Entry.Subject, it.Entry.Read,
			it.Entry.CreatedAt.Format(time.RFC3339))
	}
	return tw.Flush()
}

func printThread(w io.Writer, tc *thread.Context) {
	fmt.Fprintf(w, "Subject: %s\n", tc.Subject)
	for _, m := range tc.Messages {
		fmt.Fprintf(w, "\n%s <%s>  %s\n%s\n",
			m.Author.Name, m.Author.Email, m.CreatedAt.Format(time.RFC3339), m.Body)
	}
}

func (r *runner) inboxCmd() *cobra.Command {
	var (
		as, folder string
		limit      int
	)
	cmd := &cobra.Command{
		Use:   "inbox",
		Short: "List a folder, one row per thread",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			s, err := r.open(ctx)
			if err != nil {
				return err
			}
			defer s.close()

			owner, err := s.human(ctx, as, "")
			if err != nil {
				return err
			}
			items, err := s.svc.Mailbox.ListFolder(ctx, owner.ID, folder, limit)
			if err != nil {
				return err
			}
			return printFolder(cmd.OutOrStdout(), items)
		},
	}
	f := cmd.Flags()
	f.StringVar(&as, "as", "", "owner address")
	f.StringVar(&folder, "folder", "inbox", "inbox, sent or trash")
	f.IntVar(&limit, "limit", mailbox.DefaultListLimit, "maximum rows")
	_ = cmd.MarkFlagRequired("as")
	return cmd
}

func (r *runner) threadCmd() *cobra.Command {
	var (
		as       string
		limit    int
		markRead bool
	)
	cmd := &cobra.Command{
		Use:   "thread <thread-id>",
		Short: "Show the recent messages of a thread",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			s, err := r.open(ctx)
			if err != nil {
				return err
			}
			defer s.close()

			owner, err := s.human(ctx, as, "")
			if err != nil {
				return err
			}
			entries, err := s.svc.Mailbox.ListThread(ctx, owner.ID, args[0])
			if err != nil {
				return err
			}
			if len(entries) == 0 {
				return apperr.NotFound("thread " + args[0])
			}
			tc, err := s.svc.Threads.GetContext(ctx, args[0], limit)
			if err != nil {
				return err
			}
			printThread(cmd.OutOrStdout(), tc)
			if markRead {
				if _, err := s.svc.Mailbox.MarkThreadRead(ctx, owner.ID, args[0]); err != nil && !errors.Is(err, apperr.ErrNotFound) {
					return err
				}
			}
			return nil
		},
	}
	f := cmd.Flags()
	f.StringVar(&as, "as", "", "reader address")
	f.IntVar(&limit, "limit", thread.DefaultLimit, "maximum messages")
	f.BoolVar(&markRead, "mark-read", false, "mark the thread read")
	_ = cmd.MarkFlagRequired("as")
	return cmd
}
