package main

import (
	"fmt"
	"io"
	"sync"

	"github.com/zulandar/autodialer/internal/audit"
	"github.com/zulandar/autodialer/internal/calllog"
	"github.com/zulandar/autodialer/internal/channel"
	"github.com/zulandar/autodialer/internal/config"
	"github.com/zulandar/autodialer/internal/db"
	"github.com/zulandar/autodialer/internal/dialer"
	"github.com/zulandar/autodialer/internal/metrics"
	"github.com/zulandar/autodialer/internal/models"
	"github.com/zulandar/autodialer/internal/notify"
	"github.com/zulandar/autodialer/internal/voice"
	"gorm.io/gorm"
)

// stack is a fully wired dialer with its optional side channels.
type stack struct {
	cfg      *config.Config
	dialer   *dialer.Dialer
	channel  *channel.Client
	db       *gorm.DB
	notifier *notify.Notifier
	metrics  *metrics.Metrics
}

// loadConfig reads the dotenv file and the YAML config.
func loadConfig(configPath string) (*config.Config, error) {
	if err := config.LoadEnv(); err != nil {
		return nil, err
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return cfg, nil
}

// connectAudit opens and migrates the audit store. It returns nil when
// auditing is disabled.
func connectAudit(cfg *config.Config) (*gorm.DB, error) {
	if cfg.Audit.Driver == "" {
		return nil, nil
	}
	gormDB, err := db.Connect(cfg.Audit.Driver, cfg.Audit.DSN)
	if err != nil {
		return nil, err
	}
	if err := db.AutoMigrate(gormDB); err != nil {
		return nil, err
	}
	return gormDB, nil
}

// buildStack wires the transports, the dialer and every configured
// listener. extra listeners receive notifications after the built-in ones.
func buildStack(cfg *config.Config, extra ...dialer.Events) (*stack, error) {
	s := &stack{cfg: cfg, metrics: metrics.New("")}

	gormDB, err := connectAudit(cfg)
	if err != nil {
		return nil, err
	}
	s.db = gormDB

	sinks, err := notify.FromConfig(cfg.Notify.SlackWebhookURL, cfg.Notify.DiscordWebhookURL)
	if err != nil {
		return nil, err
	}

	listeners := []dialer.Events{s.metrics.Events()}
	if s.db != nil {
		listeners = append(listeners, audit.New(s.db).Events())
	}
	if len(sinks) > 0 {
		s.notifier = notify.New(sinks...)
		listeners = append(listeners, s.notifier.Events())
	}
	listeners = append(listeners, extra...)

	s.channel = channel.New(channel.Options{
		Candidates:         channel.CandidatesFromConfig(cfg.Channels),
		Tenant:             cfg.Tenant,
		Token:              cfg.Token,
		CallerChannelID:    cfg.CallerChannelID,
		BackendURL:         cfg.BackendURL,
		WAFToken:           cfg.WAFToken,
		AttemptTimeout:     cfg.Timeouts.Attempt,
		UnavailableTimeout: cfg.Timeouts.Unavailable,
	})

	var factory voice.DeviceFactory
	if cfg.Voice.Simulate {
		factory = voice.NewSimulatedDevice().Factory()
	}
	v := voice.New(voice.Options{
		BackendURL:   cfg.BackendURL,
		CampaignID:   cfg.CampaignID,
		WAFToken:     cfg.WAFToken,
		SoundBaseURL: cfg.Voice.SoundBaseURL,
		Debug:        cfg.Voice.Debug,
		Factory:      factory,
	})

	s.dialer = dialer.New(dialer.Options{
		Tenant:          cfg.Tenant,
		Token:           cfg.Token,
		CampaignID:      cfg.CampaignID,
		CallerChannelID: cfg.CallerChannelID,
		DialIn:          cfg.DialIn,
		Channel:         s.channel,
		Voice:           v,
		Events:          dialer.Multi(listeners...),
	})
	return s, nil
}

// close waits for pending notifications.
func (s *stack) close() {
	if s.notifier != nil {
		s.notifier.Wait()
	}
}

// printer renders dialer notifications as terminal lines.
type printer struct {
	mu   sync.Mutex
	out  io.Writer
	seen int
}

func (p *printer) events() dialer.Events {
	return dialer.Events{
		OnStatusChange: func(s dialer.Status) {
			p.printf("status: %s\n", s)
		},
		OnError: func(msg string) {
			p.printf("error: %s\n", msg)
		},
		OnCallStart: func(prof models.CallerProfile) {
			p.printf("call started for %s (%s)\n", prof.Name, prof.Phone)
		},
		OnCallEnd: func() {
			p.printf("call ended\n")
		},
		OnCallLogUpdate: p.logUpdate,
	}
}

func (p *printer) printf(format string, args ...any) {
	p.mu.Lock()
	defer p.mu.Unlock()
	fmt.Fprintf(p.out, format, args...)
}

func (p *printer) logUpdate(log []calllog.Entry) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(log) < p.seen {
		p.seen = 0
	}
	for _, e := range log[p.seen:] {
		fmt.Fprintf(p.out, "  [%s] %s\n", e.Kind, e.Message)
	}
	p.seen = len(log)

	in := calllog.CurrentInteraction(log)
	switch in.Type {
	case calllog.InteractionSurvey:
		fmt.Fprintf(p.out, "  ? %s\n", in.Question)
		for _, a := range in.Answers {
			fmt.Fprintf(p.out, "    %s) %s\n", a.Key, a.Label)
		}
	case calllog.InteractionDistrictSelection:
		for _, d := range in.Districts {
			fmt.Fprintf(p.out, "    %s) %s\n", d.Key, d.Name)
		}
	case calllog.InteractionPostcodeEntry:
		fmt.Fprintf(p.out, "  ? %s\n", in.Message)
	}
}
