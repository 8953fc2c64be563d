package recovery

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"golang.org/x/sync/errgroup"
)

// Coordinator drives a recovery plan's phases — issue, load, replay,
// prepare, commit — across the receiver and replayer servers it
// names, fanning each phase out in parallel over the distinct hosts it
// touches (spec.md §4.13 "Phases").
type Coordinator struct {
	receivers func(host string) (ReceiverClient, error)
	replayers func(host string) (ReplayerClient, error)
	log       *slog.Logger
}

// NewCoordinator constructs a Coordinator. receivers and replayers
// resolve a host name to the RPC client addressing that server; the
// real range server supplies one backed by its transport, tests supply
// an in-process stub.
func NewCoordinator(receivers func(string) (ReceiverClient, error), replayers func(string) (ReplayerClient, error), log *slog.Logger) *Coordinator {
	if log == nil {
		log = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Coordinator{receivers: receivers, replayers: replayers, log: log}
}

// Execute carries plan through every phase, returning the first error
// encountered. A failed phase leaves later ranges' phantom bits
// unset; re-issuing the same plan_generation is safe (BeginGeneration
// is the only operation to reset already-set bits, and it only does
// so on a generation change), and the Master is expected to retry.
func (c *Coordinator) Execute(ctx context.Context, plan *Plan) error {
	c.log.Info("recovery: executing plan", "generation", plan.Generation, "type", plan.Type.String(), "ranges", len(plan.Receivers))

	if err := c.beginGeneration(ctx, plan); err != nil {
		return fmt.Errorf("recovery: begin generation %d: %w", plan.Generation, err)
	}
	if err := c.loadPhase(ctx, plan); err != nil {
		return fmt.Errorf("recovery: load phase: %w", err)
	}
	if err := c.runReplayers(ctx, plan); err != nil {
		return fmt.Errorf("recovery: replay phase: %w", err)
	}
	if err := c.finishReplay(ctx, plan); err != nil {
		return fmt.Errorf("recovery: replay phase: %w", err)
	}
	if err := c.preparePhase(ctx, plan); err != nil {
		return fmt.Errorf("recovery: prepare phase: %w", err)
	}
	if err := c.commitPhase(ctx, plan); err != nil {
		return fmt.Errorf("recovery: commit phase: %w", err)
	}

	c.log.Info("recovery: plan committed", "generation", plan.Generation, "type", plan.Type.String())
	return nil
}

func (c *Coordinator) beginGeneration(ctx context.Context, plan *Plan) error {
	g, gctx := errgroup.WithContext(ctx)
	for _, host := range plan.receiverHosts() {
		host := host
		g.Go(func() error {
			client, err := c.receivers(host)
			if err != nil {
				return fmt.Errorf("resolve receiver %s: %w", host, err)
			}
			return client.BeginGeneration(gctx, plan.Generation)
		})
	}
	return g.Wait()
}

func (c *Coordinator) loadPhase(ctx context.Context, plan *Plan) error {
	g, gctx := errgroup.WithContext(ctx)
	for qr, assignment := range plan.Receivers {
		qr, assignment := qr, assignment
		g.Go(func() error {
			client, err := c.receivers(assignment.Host)
			if err != nil {
				return fmt.Errorf("resolve receiver %s: %w", assignment.Host, err)
			}
			return client.LoadPhantom(gctx, qr, assignment.State)
		})
	}
	return g.Wait()
}

func (c *Coordinator) runReplayers(ctx context.Context, plan *Plan) error {
	byHost := plan.replayersByHost()
	g, gctx := errgroup.WithContext(ctx)
	for host, fragments := range byHost {
		host, fragments := host, fragments
		g.Go(func() error {
			client, err := c.replayers(host)
			if err != nil {
				return fmt.Errorf("resolve replayer %s: %w", host, err)
			}
			return client.Replay(gctx, plan, fragments)
		})
	}
	return g.Wait()
}

func (c *Coordinator) finishReplay(ctx context.Context, plan *Plan) error {
	g, gctx := errgroup.WithContext(ctx)
	for qr, assignment := range plan.Receivers {
		qr, assignment := qr, assignment
		g.Go(func() error {
			client, err := c.receivers(assignment.Host)
			if err != nil {
				return fmt.Errorf("resolve receiver %s: %w", assignment.Host, err)
			}
			return client.FinishReplay(gctx, qr)
		})
	}
	return g.Wait()
}

func (c *Coordinator) preparePhase(ctx context.Context, plan *Plan) error {
	g, gctx := errgroup.WithContext(ctx)
	for qr, assignment := range plan.Receivers {
		qr, assignment := qr, assignment
		g.Go(func() error {
			client, err := c.receivers(assignment.Host)
			if err != nil {
				return fmt.Errorf("resolve receiver %s: %w", assignment.Host, err)
			}
			return client.Prepare(gctx, qr)
		})
	}
	return g.Wait()
}

func (c *Coordinator) commitPhase(ctx context.Context, plan *Plan) error {
	g, gctx := errgroup.WithContext(ctx)
	for qr, assignment := range plan.Receivers {
		qr, assignment := qr, assignment
		g.Go(func() error {
			client, err := c.receivers(assignment.Host)
			if err != nil {
				return fmt.Errorf("resolve receiver %s: %w", assignment.Host, err)
			}
			return client.Commit(gctx, qr, assignment.State)
		})
	}
	return g.Wait()
}
