package cmd

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/example/court-scheduler/internal/config"
	"github.com/example/court-scheduler/internal/metrics"
	"github.com/example/court-scheduler/internal/notify"
	"github.com/example/court-scheduler/internal/scheduler"
	"github.com/example/court-scheduler/internal/web"
)

// override copies one flag value into the loaded config when the flag was set.
type override struct {
	flag  string
	apply func(dst, src *config.RunConfig)
}

var runOverrides = []override{
	{"days", func(d, s *config.RunConfig) { d.Days = s.Days }},
	{"eager-days", func(d, s *config.RunConfig) { d.EagerDays = s.EagerDays }},
	{"req-interval", func(d, s *config.RunConfig) { d.ReqInterval = s.ReqInterval }},
	{"max-req-interval", func(d, s *config.RunConfig) { d.MaxReqInterval = s.MaxReqInterval }},
	{"interval", func(d, s *config.RunConfig) { d.Interval = s.Interval }},
	{"eager-interval", func(d, s *config.RunConfig) { d.EagerInterval = s.EagerInterval }},
	{"concurrency", func(d, s *config.RunConfig) { d.Concurrency = s.Concurrency }},
	{"refresh-time", func(d, s *config.RunConfig) { d.RefreshTime = s.RefreshTime }},
	{"eager-lead", func(d, s *config.RunConfig) { d.EagerLead = s.EagerLead }},
	{"eager-hold", func(d, s *config.RunConfig) { d.EagerHold = s.EagerHold }},
	{"max-retries", func(d, s *config.RunConfig) { d.MaxRetries = s.MaxRetries }},
	{"retry-delay", func(d, s *config.RunConfig) { d.RetryDelay = s.RetryDelay }},
	{"attempt-timeout", func(d, s *config.RunConfig) { d.AttemptTimeout = s.AttemptTimeout }},
	{"consider-solo-fields", func(d, s *config.RunConfig) { d.ConsiderSoloFields = s.ConsiderSoloFields }},
	{"max-acquisitions", func(d, s *config.RunConfig) { d.MaxAcquisitions = s.MaxAcquisitions }},
	{"combine", func(d, s *config.RunConfig) { d.Combine = s.Combine }},
	{"token", func(d, s *config.RunConfig) { d.Token = s.Token }},
	{"open-id", func(d, s *config.RunConfig) { d.OpenID = s.OpenID }},
	{"send-key", func(d, s *config.RunConfig) { d.SendKey = s.SendKey }},
	{"base-url", func(d, s *config.RunConfig) { d.BaseURL = s.BaseURL }},
	{"sport-id", func(d, s *config.RunConfig) { d.SportID = s.SportID }},
	{"metrics-addr", func(d, s *config.RunConfig) { d.MetricsAddr = s.MetricsAddr }},
}

// registerRunFlags binds the run options to o. Defaults shown are the built-in ones; only
// flags set on the command line override the config file and environment.
func registerRunFlags(cmd *cobra.Command, o *config.RunConfig) {
	def, _ := config.Defaults()
	f := cmd.Flags()
	f.IntSliceVar(&o.Days, "days", def.Days, "day offsets to monitor (0 = today)")
	f.IntSliceVar(&o.EagerDays, "eager-days", nil, "day offsets to monitor in the eager window (default: --days)")
	f.IntVar(&o.ReqInterval, "req-interval", def.ReqInterval, "minimum seconds between requests to the service")
	f.IntVar(&o.MaxReqInterval, "max-req-interval", def.MaxReqInterval, "ceiling in seconds for the widened request spacing")
	f.IntVar(&o.Interval, "interval", def.Interval, "seconds between polls outside the eager window")
	f.IntVar(&o.EagerInterval, "eager-interval", def.EagerInterval, "seconds between polls in the eager window")
	f.IntVar(&o.Concurrency, "concurrency", def.Concurrency, "maximum orders in flight at once")
	f.StringVar(&o.RefreshTime, "refresh-time", def.RefreshTime, "daily time (HH:MM) new days open for booking")
	f.DurationVar(&o.EagerLead, "eager-lead", def.EagerLead, "how long before the refresh time eager polling starts")
	f.DurationVar(&o.EagerHold, "eager-hold", def.EagerHold, "how long after the refresh time eager polling lasts")
	f.IntVar(&o.MaxRetries, "max-retries", def.MaxRetries, "retries per order on transient failures")
	f.DurationVar(&o.RetryDelay, "retry-delay", def.RetryDelay, "initial delay between order retries")
	f.DurationVar(&o.AttemptTimeout, "attempt-timeout", def.AttemptTimeout, "timeout of a single order request")
	f.BoolVar(&o.ConsiderSoloFields, "consider-solo-fields", def.ConsiderSoloFields, "also book one-hour solo slots")
	f.IntVar(&o.MaxAcquisitions, "max-acquisitions", def.MaxAcquisitions, "end the run after this many orders (0 = never)")
	f.StringVar(&o.Combine, "combine", def.Combine, "how field and hour scores combine: sum or product")
	f.StringVar(&o.Token, "token", "", "booking service token")
	f.StringVar(&o.OpenID, "open-id", "", "WeChat open id")
	f.StringVar(&o.SendKey, "send-key", "", "ServerChan send key for notifications")
	f.StringVar(&o.BaseURL, "base-url", def.BaseURL, "booking service base URL")
	f.IntVar(&o.SportID, "sport-id", def.SportID, "sport id of the badminton venue")
	f.StringVar(&o.MetricsAddr, "metrics-addr", "", "serve /metrics, /healthz and /status on this address")
}

func applyOverrides(cmd *cobra.Command, dst, src *config.RunConfig) {
	f := cmd.Flags()
	for _, o := range runOverrides {
		if f.Changed(o.flag) {
			o.apply(dst, src)
		}
	}
}

func newRunCmd(g *globalFlags) *cobra.Command {
	var o config.RunConfig

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the acquisition daemon",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer cancel()

			cfg, logger, err := prepare(ctx, g, func(c *config.RunConfig) { applyOverrides(cmd, c, &o) })
			if err != nil {
				return err
			}
			clock, err := cfg.Clock()
			if err != nil {
				return err
			}
			prefs, err := cfg.Preferences()
			if err != nil {
				return err
			}
			notifier, err := notify.New(cfg.SendKey, logger)
			if err != nil {
				return err
			}

			scope, closer, mux := metrics.InitScope(cfg.MetricsAddr != "", time.Second, logger)
			defer closer.Close()

			client := newGymClient(cfg, logger)
			if err := client.Setup(ctx); err != nil {
				return err
			}

			s := scheduler.New(scheduler.Config{
				Days:            cfg.Days,
				EagerDays:       cfg.EagerOffsets(),
				Interval:        config.Seconds(cfg.Interval),
				EagerInterval:   config.Seconds(cfg.EagerInterval),
				Concurrency:     cfg.Concurrency,
				MaxRetries:      cfg.MaxRetries,
				RetryDelay:      cfg.RetryDelay,
				MaxRetryDelay:   config.Seconds(cfg.MaxReqInterval),
				AttemptTimeout:  cfg.AttemptTimeout,
				MaxAcquisitions: cfg.MaxAcquisitions,
			}, clock, prefs, scheduler.Deps{
				Source:    client,
				Submitter: client,
				Notifier:  notifier,
				Logger:    logger,
				Scope:     scope,
			})

			if cfg.MetricsAddr != "" {
				ws := &web.Server{Status: s, Metrics: mux, Log: logger}
				go func() {
					if err := web.Start(ctx, cfg.MetricsAddr, ws.Routes(), logger); err != nil {
						logger.WithError(err).Error("status server stopped")
					}
				}()
			}

			err = s.Run(ctx)
			if errors.Is(err, context.Canceled) {
				logger.Info("interrupted, exiting")
				return nil
			}
			return err
		},
	}
	registerRunFlags(cmd, &o)
	return cmd
}
