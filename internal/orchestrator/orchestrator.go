// Package orchestrator plans and executes waves over a per-image blackboard:
// priority-ordered rounds, trigger guards, lane filtering, per-wave and total
// timeouts, and confidence-driven early exit.
package orchestrator

import (
	"context"
	"fmt"
	"sort"
	"time"

	"pixelsense/internal/faults"
	"pixelsense/internal/imaging"
	"pixelsense/internal/logging"
	"pixelsense/internal/manifest"
	"pixelsense/internal/signal"
	"pixelsense/internal/wave"

	"golang.org/x/sync/errgroup"
)

// AnalysisOptions controls one orchestrated run.
type AnalysisOptions struct {
	MaxParallelism  int
	TotalTimeout    time.Duration
	EnableEarlyExit bool

	// LaneFilter restricts the run to the named lanes; nil means all lanes.
	// The fast path runs with LaneFilter{"fast": true}.
	LaneFilter map[string]bool
}

// Orchestrator schedules waves. Construction validates the dependency graph;
// a cyclic manifest set is rejected before any image is analyzed.
type Orchestrator struct {
	waves              []wave.Wave
	defaultWaveTimeout time.Duration
	earlyExitThreshold float64

	// ConfigGates answers manifest config.bindings lookups; a wave bound to
	// a key that maps to false (with skip_if_false) is excluded from runs.
	configGates map[string]bool
}

// New builds an orchestrator over the given waves.
func New(waves []wave.Wave, defaultWaveTimeout time.Duration, earlyExitThreshold float64, configGates map[string]bool) (*Orchestrator, error) {
	if err := checkDependencyCycles(waves); err != nil {
		return nil, err
	}
	return &Orchestrator{
		waves:              waves,
		defaultWaveTimeout: defaultWaveTimeout,
		earlyExitThreshold: earlyExitThreshold,
		configGates:        configGates,
	}, nil
}

// checkDependencyCycles rejects manifest sets whose listens.required /
// emits.on_complete graph contains a cycle.
func checkDependencyCycles(waves []wave.Wave) error {
	emitters := make(map[string][]string) // signal key -> wave names
	for _, w := range waves {
		for _, e := range w.Manifest().Emits.OnComplete {
			emitters[e.Key] = append(emitters[e.Key], w.Name())
		}
	}
	// adjacency: wave -> waves it depends on
	deps := make(map[string][]string)
	for _, w := range waves {
		for _, key := range w.Manifest().Listens.Required {
			deps[w.Name()] = append(deps[w.Name()], emitters[key]...)
		}
	}

	const (
		unvisited = 0
		visiting  = 1
		done      = 2
	)
	state := make(map[string]int)
	var visit func(name string) error
	visit = func(name string) error {
		switch state[name] {
		case visiting:
			return fmt.Errorf("wave dependency cycle through %q", name)
		case done:
			return nil
		}
		state[name] = visiting
		for _, dep := range deps[name] {
			if dep == name {
				continue // self-emission is refinement, not a cycle
			}
			if err := visit(dep); err != nil {
				return err
			}
		}
		state[name] = done
		return nil
	}
	for _, w := range waves {
		if err := visit(w.Name()); err != nil {
			return err
		}
	}
	return nil
}

// waveRun tracks one wave's scheduling state within a run.
type waveRun struct {
	wave    wave.Wave
	started bool
}

// Analyze runs the wave DAG for one image and returns the merged result.
// pre may carry an already-decoded image; otherwise the path is decoded
// here. Fatal errors are ImageUnreadable, AllWavesFailed and Timeout.
func (o *Orchestrator) Analyze(ctx context.Context, imagePath string, pre *imaging.Decoded, opts AnalysisOptions) (*signal.ImageAnalysisResult, error) {
	log := logging.Get(logging.CategoryOrchestrator)
	started := time.Now()

	if opts.MaxParallelism <= 0 {
		opts.MaxParallelism = 4
	}
	if opts.TotalTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.TotalTimeout)
		defer cancel()
	}

	img := pre
	if img == nil {
		var err error
		img, err = imaging.Decode(imagePath)
		if err != nil {
			return nil, faults.Wrap(faults.ImageUnreadable, err, "cannot decode %s", imagePath)
		}
	}

	board := signal.NewBlackboard(imagePath)
	board.Image = img
	board.IsAnimated = img.IsAnimated

	runs := o.planWaves(board, opts)
	log.Debug("planned %d waves for %s", len(runs), imagePath)

	var (
		contributions  []signal.DetectionContribution
		completedWaves = make(map[string]struct{})
		earlyExit      bool
		earlyReason    string
	)

	for round := 0; ; round++ {
		ready := readyWaves(runs, board, opts.MaxParallelism)
		if len(ready) == 0 {
			break
		}
		if ctx.Err() != nil {
			log.Warn("total timeout elapsed after round %d", round)
			break
		}

		log.Debug("round %d: %d waves", round, len(ready))
		roundContribs := o.runRound(ctx, ready, board)

		for _, rc := range roundContribs {
			contributions = append(contributions, rc.contribs...)
			if rc.completed {
				completedWaves[rc.name] = struct{}{}
			}
			for _, c := range rc.contribs {
				board.WriteAll(c.Signals)
			}
		}

		// Early-exit check after every round.
		if opts.EnableEarlyExit && !earlyExit {
			interim := signal.Merge(contributions)
			for _, rc := range roundContribs {
				for _, c := range rc.contribs {
					if c.TriggerEarlyExit && interim.Confidence >= o.earlyExitThreshold {
						earlyExit = true
						earlyReason = fmt.Sprintf("%s: %s (confidence %.2f)", c.Detector, c.EarlyExitVerdict, interim.Confidence)
						break
					}
				}
			}
			if earlyExit {
				log.Info("early exit: %s", earlyReason)
				break
			}
		}
	}

	if len(completedWaves) == 0 {
		if ctx.Err() != nil {
			return nil, faults.New(faults.Timeout, "analysis timed out before any wave completed")
		}
		return nil, faults.New(faults.AllWavesFailed, "no wave completed for %s", imagePath)
	}

	merged := signal.Merge(contributions)
	result := &signal.ImageAnalysisResult{
		Confidence:      merged.Confidence,
		Signals:         merged.Signals,
		CompletedWaves:  completedWaves,
		EarlyExit:       earlyExit,
		EarlyExitReason: earlyReason,
		ImagePath:       imagePath,
		IsAnimated:      img.IsAnimated,
		Width:           img.Width,
		Height:          img.Height,
		Format:          img.Format,
		ProcessingTime:  time.Since(started),
		StartedAt:       started,
	}
	result.Caption = result.BestString(signal.KeyLLMCaption, "")
	result.OCRText = result.BestString(signal.KeyExtractedText, "")
	if names, ok := merged.Signals[signal.KeyDominantNames]; ok {
		if list, ok := names.Value.AsStringList(); ok && len(list) > 0 {
			result.DominantColor = list[0]
		}
	}

	log.Info("analysis of %s: confidence %.2f, %d waves, early_exit=%v (%s)",
		imagePath, result.Confidence, len(completedWaves), earlyExit, result.ProcessingTime)
	return result, nil
}

// planWaves selects and orders the waves for this run: enabled manifests
// filtered by lane and config gates, minus any whose skip condition already
// holds, ordered by priority.
func (o *Orchestrator) planWaves(board *signal.Blackboard, opts AnalysisOptions) []*waveRun {
	var runs []*waveRun
	for _, w := range o.waves {
		m := w.Manifest()
		if opts.LaneFilter != nil && !opts.LaneFilter[m.LaneName()] {
			continue
		}
		if o.gatedOff(m.Config.Bindings) {
			continue
		}
		if m.SkipCondition().Eval(board) {
			continue
		}
		runs = append(runs, &waveRun{wave: w})
	}
	sort.SliceStable(runs, func(i, j int) bool {
		return runs[i].wave.Manifest().Priority > runs[j].wave.Manifest().Priority
	})
	return runs
}

// gatedOff applies manifest config bindings: a wave bound to a config key
// with skip_if_false is excluded when that key resolves to false.
func (o *Orchestrator) gatedOff(bindings []manifest.ConfigBinding) bool {
	for _, b := range bindings {
		if b.SkipIfFalse && !o.configGates[b.ConfigKey] {
			return true
		}
	}
	return false
}

// readyWaves returns the highest-priority band of unrun waves whose
// triggers hold, bounded by maxParallelism. Lower-priority ready waves wait
// for a later round; that is what gives early exit something to skip.
// The input is already priority-sorted.
func readyWaves(runs []*waveRun, board *signal.Blackboard, maxParallelism int) []*waveRun {
	var ready []*waveRun
	bandPriority := 0
	for _, r := range runs {
		if r.started {
			continue
		}
		if r.wave.Manifest().SkipCondition().Eval(board) {
			// A skip condition that comes true mid-run retires the wave.
			r.started = true
			continue
		}
		if !r.wave.Manifest().TriggerCondition().Eval(board) {
			continue
		}
		if len(ready) == 0 {
			bandPriority = r.wave.Manifest().Priority
		} else if r.wave.Manifest().Priority != bandPriority {
			break
		}
		ready = append(ready, r)
		if len(ready) >= maxParallelism {
			break
		}
	}
	return ready
}

// roundResult is one wave's outcome within a round.
type roundResult struct {
	name      string
	completed bool
	contribs  []signal.DetectionContribution
}

// runRound executes the ready waves concurrently, each under its own
// execution timeout. A wave that fails or times out yields a single info
// contribution and never blocks the others.
func (o *Orchestrator) runRound(ctx context.Context, ready []*waveRun, board *signal.Blackboard) []roundResult {
	log := logging.Get(logging.CategoryOrchestrator)
	results := make([]roundResult, len(ready))

	var g errgroup.Group
	for i, r := range ready {
		r.started = true
		i, r := i, r
		g.Go(func() error {
			name := r.wave.Name()
			timeout := r.wave.Manifest().ExecTimeout(o.defaultWaveTimeout)
			wctx, cancel := context.WithTimeout(ctx, timeout)
			defer cancel()

			done := make(chan struct{})
			var contribs []signal.DetectionContribution
			var waveErr error
			go func() {
				defer close(done)
				defer func() {
					if p := recover(); p != nil {
						waveErr = fmt.Errorf("panic: %v", p)
					}
				}()
				contribs, waveErr = r.wave.Contribute(wctx, board)
			}()

			select {
			case <-done:
			case <-wctx.Done():
				log.Warn("wave %s timed out after %s", name, timeout)
				results[i] = roundResult{
					name: name,
					contribs: []signal.DetectionContribution{
						signal.InfoContribution(name, fmt.Sprintf("execution timeout after %s", timeout)),
					},
				}
				return nil
			}

			if waveErr != nil {
				log.Warn("wave %s failed: %v", name, waveErr)
				results[i] = roundResult{
					name: name,
					contribs: []signal.DetectionContribution{
						signal.InfoContribution(name, fmt.Sprintf("wave error: %v", waveErr)),
					},
				}
				return nil
			}
			results[i] = roundResult{name: name, completed: true, contribs: contribs}
			return nil
		})
	}
	_ = g.Wait()
	return results
}
