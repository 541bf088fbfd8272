package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"

	"github.com/spf13/cobra"
	"github.com/zulandar/autodialer/internal/models"
	"golang.org/x/term"
)

type callOpts struct {
	configPath   string
	phone        string
	name         string
	email        string
	referralCode string
}

func newCallCmd() *cobra.Command {
	var opts callOpts

	cmd := &cobra.Command{
		Use:   "call",
		Short: "Run an interactive call session",
		Long: `Starts a call session and prints its progress. Each input line is sent
as a caller response; the commands end, reset, state and quit control the
session.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCall(cmd, opts)
		},
	}

	cmd.Flags().StringVarP(&opts.configPath, "config", "c", "autodialer.yaml", "path to autodialer config file")
	cmd.Flags().StringVar(&opts.phone, "phone", "", "caller phone number (required)")
	cmd.Flags().StringVar(&opts.name, "name", "", "caller name (required)")
	cmd.Flags().StringVar(&opts.email, "email", "", "caller email")
	cmd.Flags().StringVar(&opts.referralCode, "referral-code", "", "referral code")
	cmd.MarkFlagRequired("phone")
	cmd.MarkFlagRequired("name")
	return cmd
}

func runCall(cmd *cobra.Command, opts callOpts) error {
	cfg, err := loadConfig(opts.configPath)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	if cfg.Demo() {
		fmt.Fprintln(out, "Demo mode: placeholder channel credentials, no realtime connection")
	}

	p := &printer{out: out}
	s, err := buildStack(cfg, p.events())
	if err != nil {
		return err
	}
	defer s.close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	profile := models.CallerProfile{
		Phone:        opts.phone,
		Name:         opts.name,
		Email:        opts.email,
		ReferralCode: opts.referralCode,
	}
	if err := s.dialer.StartCall(ctx, profile); err != nil {
		s.dialer.ResetToIdle()
		return fmt.Errorf("start call: %w", err)
	}
	defer s.dialer.ResetToIdle()
	if cand, ok := s.channel.Candidate(); ok {
		p.printf("channel: %s\n", cand)
	}

	return repl(ctx, cmd.InOrStdin(), out, s)
}

// repl reads caller input until quit, EOF or interrupt.
func repl(ctx context.Context, in io.Reader, out io.Writer, s *stack) error {
	interactive := false
	if f, ok := in.(*os.File); ok {
		interactive = term.IsTerminal(int(f.Fd()))
	}

	lines := make(chan string)
	go func() {
		defer close(lines)
		sc := bufio.NewScanner(in)
		for sc.Scan() {
			select {
			case lines <- sc.Text():
			case <-ctx.Done():
				return
			}
		}
	}()

	for {
		if interactive {
			fmt.Fprint(out, "> ")
		}
		var line string
		select {
		case <-ctx.Done():
			fmt.Fprintln(out)
			return nil
		case l, ok := <-lines:
			if !ok {
				return nil
			}
			line = strings.TrimSpace(l)
		}

		switch line {
		case "":
			continue
		case "quit", "exit":
			return nil
		case "end":
			if err := s.dialer.EndCall(); err != nil {
				fmt.Fprintf(out, "error: %v\n", err)
			}
		case "reset":
			s.dialer.ResetToIdle()
		case "state":
			data, _ := json.MarshalIndent(s.dialer.GetState(), "", "  ")
			fmt.Fprintln(out, string(data))
		default:
			if err := s.dialer.SendResponse(ctx, line); err != nil {
				fmt.Fprintf(out, "error: %v\n", err)
			}
		}
	}
}
