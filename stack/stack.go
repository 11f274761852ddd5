// Package stack provisions and removes the fixed AWS stack.
//
// Provisioning is a strict sequence of steps, each fed by the identifiers the
// earlier ones produced. Every resource a step creates is recorded in the
// Journal before the next step starts; if a step fails, everything recorded
// during the run is removed again, newest first.
package stack

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/rahulwagh/aistack/config"
	"github.com/rahulwagh/aistack/fetcher"
	"github.com/rahulwagh/aistack/metrics"
)

// ErrTeardown marks a Run whose provisioning succeeded but whose teardown
// pass did not finish. The Outputs of such a run are complete.
var ErrTeardown = errors.New("teardown failed")

// Options tunes retries and rollback.
type Options struct {
	RetryInterval    time.Duration
	RetryMaxInterval time.Duration
	RetryMaxTries    uint
	RollbackTimeout  time.Duration
}

// Option is a functional option for New.
type Option func(*Stack)

// WithLogger sets the logger.
func WithLogger(l zerolog.Logger) Option {
	return func(s *Stack) { s.log = l }
}

// WithMetrics records step timings into r.
func WithMetrics(r *metrics.Recorder) Option {
	return func(s *Stack) { s.metrics = r }
}

// WithJournal replaces the empty default journal.
func WithJournal(j *Journal) Option {
	return func(s *Stack) { s.journal = j }
}

// WithRetry sets the backoff used for eventually consistent calls.
func WithRetry(interval, maxInterval time.Duration, maxTries uint) Option {
	return func(s *Stack) {
		s.opts.RetryInterval = interval
		s.opts.RetryMaxInterval = maxInterval
		s.opts.RetryMaxTries = maxTries
	}
}

// WithRollbackTimeout bounds how long a rollback may take after a failure.
func WithRollbackTimeout(d time.Duration) Option {
	return func(s *Stack) { s.opts.RollbackTimeout = d }
}

// Stack runs the steps for one configured stack.
type Stack struct {
	cfg     *config.Config
	clients *Clients
	journal *Journal
	metrics *metrics.Recorder
	log     zerolog.Logger
	opts    Options
	runID   string
}

// New creates a Stack. cfg must already be validated.
func New(cfg *config.Config, clients *Clients, opts ...Option) *Stack {
	s := &Stack{
		cfg:     cfg,
		clients: clients,
		journal: NewJournal(nil, nil),
		log:     zerolog.Nop(),
		opts: Options{
			RetryInterval:    time.Second,
			RetryMaxInterval: 20 * time.Second,
			RetryMaxTries:    8,
			RollbackTimeout:  10 * time.Minute,
		},
		runID: uuid.NewString(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.log = s.log.With().Str("stack", cfg.Name).Str("run", s.runID).Logger()
	return s
}

// Journal exposes the stack's record of live resources.
func (s *Stack) Journal() *Journal {
	return s.journal
}

// Outputs are the identifiers produced by a provisioning run.
type Outputs struct {
	RunID           string
	Account         string
	VPCID           string
	BucketName      string
	GatewayID       string
	EndpointID      string
	NotificationID  string
	RouteTableID    string
	ConnectionState string
	SecretARN       string
	AlarmName       string
}

// Provision runs every creation step in order. On failure it rolls back
// everything this run created and returns the step error, joined with any
// rollback errors.
func (s *Stack) Provision(ctx context.Context) (*Outputs, error) {
	start := time.Now()
	out := &Outputs{RunID: s.runID}

	ident, err := s.WhoAmI(ctx)
	if err != nil {
		return nil, err
	}
	out.Account = ident.Account
	s.log.Info().Str("account", ident.Account).Str("alias", ident.Alias).Str("region", s.cfg.Region).Msg("provisioning stack")

	steps := s.steps()
	firstOwned := s.journal.Len()
	for i, st := range steps {
		name := fmt.Sprintf("%s (%d/%d)", st.name, i+1, len(steps))
		if err := ctx.Err(); err != nil {
			return out, s.rollback(ctx, firstOwned, fmt.Errorf("interrupted before %s: %w", st.name, err))
		}

		stepStart := time.Now()
		s.log.Info().Str("step", name).Msg("starting")
		err := st.run(ctx, out)
		s.metrics.ObserveStep(st.name, time.Since(stepStart), err)
		if err != nil {
			s.log.Error().Err(err).Str("step", name).Msg("failed")
			return out, s.rollback(ctx, firstOwned, fmt.Errorf("%s step failed: %w", st.name, err))
		}
		s.log.Info().Str("step", name).Dur("took", time.Since(stepStart).Round(time.Millisecond)).Msg("completed")
	}

	s.log.Info().Dur("took", time.Since(start).Round(time.Millisecond)).Msg("provisioning completed")
	return out, nil
}

// rollback removes the resources recorded from index firstOwned on, newest
// first, using a context that survives the cancellation of ctx.
func (s *Stack) rollback(ctx context.Context, firstOwned int, cause error) error {
	owned := s.journal.Resources()[firstOwned:]
	if len(owned) == 0 {
		return cause
	}

	rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.opts.RollbackTimeout)
	defer cancel()

	s.log.Warn().Int("resources", len(owned)).Msg("rolling back")
	var errs []error
	for i := len(owned) - 1; i >= 0; i-- {
		if err := s.remove(rctx, owned[i]); err != nil {
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 {
		s.log.Error().Int("failed", len(errs)).Msg("rollback incomplete; run 'down' to retry")
		return errors.Join(cause, fmt.Errorf("rollback incomplete: %w", errors.Join(errs...)))
	}
	s.log.Info().Msg("rollback completed")
	return cause
}

// teardownOrder is the final pass of a run: alarm, secret, then the gateway.
var teardownOrder = []string{
	fetcher.KindMetricAlarm,
	fetcher.KindSecret,
	fetcher.KindGatewayAttachment,
	fetcher.KindInternetGateway,
}

// Teardown deletes the alarm and the secret and detaches and deletes the
// gateway. It keeps going past failures and returns them all.
func (s *Stack) Teardown(ctx context.Context) error {
	s.log.Info().Msg("tearing down alarm, secret and gateway")
	var errs []error
	for _, kind := range teardownOrder {
		for _, r := range s.journal.OfKind(kind) {
			if err := s.remove(ctx, r); err != nil {
				errs = append(errs, err)
			}
		}
	}
	return errors.Join(errs...)
}

// Destroy removes every resource in the journal, newest first. It keeps going
// past failures and returns them all.
func (s *Stack) Destroy(ctx context.Context) error {
	resources := s.journal.Newest()
	s.log.Info().Int("resources", len(resources)).Msg("destroying stack")
	var errs []error
	for _, r := range resources {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}
		if err := s.remove(ctx, r); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Run provisions the stack and then performs the teardown pass.
func (s *Stack) Run(ctx context.Context) (*Outputs, error) {
	out, err := s.Provision(ctx)
	if err != nil {
		return out, err
	}
	if err := s.Teardown(ctx); err != nil {
		return out, fmt.Errorf("%w: %w", ErrTeardown, err)
	}
	return out, nil
}

// remove deletes one resource and drops it from the journal.
func (s *Stack) remove(ctx context.Context, r fetcher.StandardizedResource) error {
	start := time.Now()
	err := s.destroy(ctx, r)
	s.metrics.ObserveStep("delete-"+r.Service, time.Since(start), err)
	if err != nil {
		s.log.Error().Err(err).Str("kind", r.Service).Str("id", r.ID).Msg("delete failed")
		return fmt.Errorf("failed to delete %s %s: %w", r.Service, r.ID, err)
	}
	s.log.Info().Str("kind", r.Service).Str("id", r.ID).Msg("deleted")
	return s.journal.Forget(r)
}

// record adds a resource created in this stack's region to the journal.
func (s *Stack) record(kind, id, name string, attrs map[string]string) error {
	r := fetcher.NewAWSResource(s.cfg.Name, kind, s.cfg.Region, id, name, attrs)
	s.log.Debug().Str("kind", kind).Str("id", id).Msg("recorded")
	return s.journal.Record(r)
}
