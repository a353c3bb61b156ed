package orchestrator

import (
	"context"
	"fmt"
	"image"
	"image/png"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"pixelsense/internal/faults"
	"pixelsense/internal/manifest"
	"pixelsense/internal/signal"
	"pixelsense/internal/wave"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeWave is a scriptable wave for scheduler tests.
type fakeWave struct {
	wave.Base
	contribute func(ctx context.Context, b *signal.Blackboard) ([]signal.DetectionContribution, error)

	mu   sync.Mutex
	runs int
}

func (f *fakeWave) Contribute(ctx context.Context, b *signal.Blackboard) ([]signal.DetectionContribution, error) {
	f.mu.Lock()
	f.runs++
	f.mu.Unlock()
	return f.contribute(ctx, b)
}

func (f *fakeWave) runCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.runs
}

func newFakeWave(m *manifest.WaveManifest, fn func(ctx context.Context, b *signal.Blackboard) ([]signal.DetectionContribution, error)) *fakeWave {
	return &fakeWave{Base: wave.NewBase(m), contribute: fn}
}

func simpleManifest(name string, priority int) *manifest.WaveManifest {
	return &manifest.WaveManifest{
		SchemaVersion: 1,
		Name:          name,
		Priority:      priority,
		Enabled:       true,
	}
}

func emitting(name string, priority int, key string, value signal.Value, delta float64) *fakeWave {
	return newFakeWave(simpleManifest(name, priority), func(ctx context.Context, b *signal.Blackboard) ([]signal.DetectionContribution, error) {
		c := signal.NewContribution(name, "test", delta, 1, 0.5, "scripted")
		c.AddSignal(signal.New(key, value, 0.9, name))
		return []signal.DetectionContribution{c}, nil
	})
}

// testImage writes a small PNG so decode succeeds.
func testImage(t *testing.T) string {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 16, 16))
	for i := range img.Pix {
		img.Pix[i] = 255
	}
	path := filepath.Join(t.TempDir(), "test.png")
	f, err := os.Create(path)
	require.NoError(t, err)
	require.NoError(t, png.Encode(f, img))
	require.NoError(t, f.Close())
	return path
}

func defaultOpts() AnalysisOptions {
	return AnalysisOptions{MaxParallelism: 4, TotalTimeout: 5 * time.Second, EnableEarlyExit: true}
}

func TestAnalyzeRunsAllReadyWaves(t *testing.T) {
	a := emitting("a", 100, "sig.a", signal.Bool(true), 0.2)
	b := emitting("b", 50, "sig.b", signal.Bool(true), 0.2)

	o, err := New([]wave.Wave{a, b}, time.Second, 0.95, nil)
	require.NoError(t, err)

	result, err := o.Analyze(context.Background(), testImage(t), nil, defaultOpts())
	require.NoError(t, err)
	assert.True(t, result.Completed("a"))
	assert.True(t, result.Completed("b"))
	assert.Contains(t, result.Signals, "sig.a")
	assert.Contains(t, result.Signals, "sig.b")
	assert.GreaterOrEqual(t, result.Confidence, 0.0)
	assert.LessOrEqual(t, result.Confidence, 1.0)
}

func TestTriggerGatingOrdersRounds(t *testing.T) {
	producer := emitting("producer", 100, "upstream.ready", signal.Bool(true), 0.1)

	consumerManifest := simpleManifest("consumer", 50)
	consumerManifest.Triggers.Requires = []manifest.RequireSpec{{Signal: "upstream.ready"}}
	var sawUpstream bool
	consumer := newFakeWave(consumerManifest, func(ctx context.Context, b *signal.Blackboard) ([]signal.DetectionContribution, error) {
		sawUpstream = b.Has("upstream.ready")
		return []signal.DetectionContribution{signal.NewContribution("consumer", "test", 0.1, 1, 0.5, "ok")}, nil
	})

	o, err := New([]wave.Wave{consumer, producer}, time.Second, 0.95, nil)
	require.NoError(t, err)

	result, err := o.Analyze(context.Background(), testImage(t), nil, defaultOpts())
	require.NoError(t, err)
	assert.True(t, result.Completed("consumer"))
	assert.True(t, sawUpstream, "consumer must observe its trigger signal")
}

func TestUnsatisfiedTriggerNeverRuns(t *testing.T) {
	gated := newFakeWave(func() *manifest.WaveManifest {
		m := simpleManifest("gated", 50)
		m.Triggers.Requires = []manifest.RequireSpec{{Signal: "never.emitted"}}
		return m
	}(), func(ctx context.Context, b *signal.Blackboard) ([]signal.DetectionContribution, error) {
		return nil, nil
	})
	runner := emitting("runner", 100, "sig.r", signal.Bool(true), 0.1)

	o, err := New([]wave.Wave{gated, runner}, time.Second, 0.95, nil)
	require.NoError(t, err)

	result, err := o.Analyze(context.Background(), testImage(t), nil, defaultOpts())
	require.NoError(t, err)
	assert.False(t, result.Completed("gated"))
	assert.Equal(t, 0, gated.runCount())
}

func TestWaveFailureDoesNotBlockOthers(t *testing.T) {
	failing := newFakeWave(simpleManifest("failing", 100), func(ctx context.Context, b *signal.Blackboard) ([]signal.DetectionContribution, error) {
		return nil, fmt.Errorf("synthetic failure")
	})
	healthy := emitting("healthy", 50, "sig.ok", signal.Bool(true), 0.2)

	o, err := New([]wave.Wave{failing, healthy}, time.Second, 0.95, nil)
	require.NoError(t, err)

	result, err := o.Analyze(context.Background(), testImage(t), nil, defaultOpts())
	require.NoError(t, err)
	assert.False(t, result.Completed("failing"))
	assert.True(t, result.Completed("healthy"))
	assert.Contains(t, result.Signals, "waves.failing.info")
}

func TestWaveTimeoutContributesInfoSignal(t *testing.T) {
	slowManifest := simpleManifest("slow", 100)
	slowManifest.ExecutionTimeout = "30ms"
	slow := newFakeWave(slowManifest, func(ctx context.Context, b *signal.Blackboard) ([]signal.DetectionContribution, error) {
		select {
		case <-time.After(5 * time.Second):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
		return nil, nil
	})
	after := emitting("after", 50, "sig.after", signal.Bool(true), 0.2)

	o, err := New([]wave.Wave{slow, after}, time.Second, 0.95, nil)
	require.NoError(t, err)

	result, err := o.Analyze(context.Background(), testImage(t), nil, defaultOpts())
	require.NoError(t, err)
	assert.False(t, result.Completed("slow"))
	assert.True(t, result.Completed("after"), "timed-out wave must not prevent later rounds")
	assert.Contains(t, result.Signals, "waves.slow.info")
}

func TestEarlyExitStopsScheduling(t *testing.T) {
	confident := newFakeWave(simpleManifest("confident", 100), func(ctx context.Context, b *signal.Blackboard) ([]signal.DetectionContribution, error) {
		c := signal.NewContribution("confident", "test", 0.5, 1, 1, "sure")
		c.TriggerEarlyExit = true
		c.EarlyExitVerdict = "Photo"
		return []signal.DetectionContribution{c}, nil
	})
	skipped := emitting("skipped", 10, "sig.skipped", signal.Bool(true), 0.1)

	o, err := New([]wave.Wave{confident, skipped}, time.Second, 0.8, nil)
	require.NoError(t, err)

	result, err := o.Analyze(context.Background(), testImage(t), nil, defaultOpts())
	require.NoError(t, err)
	assert.True(t, result.EarlyExit)
	assert.Contains(t, result.EarlyExitReason, "Photo")
	assert.Equal(t, 0, skipped.runCount(), "early exit skips lower-priority waves")
}

func TestEarlyExitDisabled(t *testing.T) {
	confident := newFakeWave(simpleManifest("confident", 100), func(ctx context.Context, b *signal.Blackboard) ([]signal.DetectionContribution, error) {
		c := signal.NewContribution("confident", "test", 0.5, 1, 1, "sure")
		c.TriggerEarlyExit = true
		return []signal.DetectionContribution{c}, nil
	})
	follower := emitting("follower", 10, "sig.f", signal.Bool(true), 0.1)

	o, err := New([]wave.Wave{confident, follower}, time.Second, 0.8, nil)
	require.NoError(t, err)

	opts := defaultOpts()
	opts.EnableEarlyExit = false
	result, err := o.Analyze(context.Background(), testImage(t), nil, opts)
	require.NoError(t, err)
	assert.False(t, result.EarlyExit)
	assert.True(t, result.Completed("follower"))
}

func TestLaneFilter(t *testing.T) {
	fastManifest := simpleManifest("fastwave", 100)
	fastManifest.Lane.Name = "fast"
	fast := newFakeWave(fastManifest, func(ctx context.Context, b *signal.Blackboard) ([]signal.DetectionContribution, error) {
		return []signal.DetectionContribution{signal.NewContribution("fastwave", "test", 0.1, 1, 0.5, "ok")}, nil
	})
	heavyManifest := simpleManifest("heavywave", 50)
	heavyManifest.Lane.Name = "heavy"
	heavy := newFakeWave(heavyManifest, func(ctx context.Context, b *signal.Blackboard) ([]signal.DetectionContribution, error) {
		return []signal.DetectionContribution{signal.NewContribution("heavywave", "test", 0.1, 1, 0.5, "ok")}, nil
	})

	o, err := New([]wave.Wave{fast, heavy}, time.Second, 0.95, nil)
	require.NoError(t, err)

	opts := defaultOpts()
	opts.LaneFilter = map[string]bool{"fast": true}
	result, err := o.Analyze(context.Background(), testImage(t), nil, opts)
	require.NoError(t, err)
	assert.True(t, result.Completed("fastwave"))
	assert.Equal(t, 0, heavy.runCount())
}

func TestUnreadableImage(t *testing.T) {
	o, err := New([]wave.Wave{emitting("a", 1, "k", signal.Bool(true), 0)}, time.Second, 0.95, nil)
	require.NoError(t, err)

	_, err = o.Analyze(context.Background(), filepath.Join(t.TempDir(), "missing.png"), nil, defaultOpts())
	require.Error(t, err)
	assert.True(t, faults.IsKind(err, faults.ImageUnreadable))
}

func TestAllWavesFailed(t *testing.T) {
	failing := newFakeWave(simpleManifest("failing", 100), func(ctx context.Context, b *signal.Blackboard) ([]signal.DetectionContribution, error) {
		return nil, fmt.Errorf("broken")
	})

	o, err := New([]wave.Wave{failing}, time.Second, 0.95, nil)
	require.NoError(t, err)

	_, err = o.Analyze(context.Background(), testImage(t), nil, defaultOpts())
	require.Error(t, err)
	assert.True(t, faults.IsKind(err, faults.AllWavesFailed))
}

func TestDependencyCycleRejectedAtLoad(t *testing.T) {
	mA := simpleManifest("a", 100)
	mA.Listens.Required = []string{"sig.b"}
	mA.Emits.OnComplete = []manifest.EmitKeySpec{{Key: "sig.a"}}
	mB := simpleManifest("b", 50)
	mB.Listens.Required = []string{"sig.a"}
	mB.Emits.OnComplete = []manifest.EmitKeySpec{{Key: "sig.b"}}

	a := newFakeWave(mA, nil)
	b := newFakeWave(mB, nil)
	_, err := New([]wave.Wave{a, b}, time.Second, 0.95, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "cycle")
}

func TestMaxParallelismBoundsRound(t *testing.T) {
	var mu sync.Mutex
	inFlight, peak := 0, 0
	mk := func(name string) *fakeWave {
		return newFakeWave(simpleManifest(name, 50), func(ctx context.Context, b *signal.Blackboard) ([]signal.DetectionContribution, error) {
			mu.Lock()
			inFlight++
			if inFlight > peak {
				peak = inFlight
			}
			mu.Unlock()
			time.Sleep(20 * time.Millisecond)
			mu.Lock()
			inFlight--
			mu.Unlock()
			return []signal.DetectionContribution{signal.NewContribution(name, "test", 0.1, 1, 0.5, "ok")}, nil
		})
	}
	waves := []wave.Wave{mk("w1"), mk("w2"), mk("w3"), mk("w4"), mk("w5")}

	o, err := New(waves, time.Second, 0.95, nil)
	require.NoError(t, err)

	opts := defaultOpts()
	opts.MaxParallelism = 2
	_, err = o.Analyze(context.Background(), testImage(t), nil, opts)
	require.NoError(t, err)
	assert.LessOrEqual(t, peak, 2)
}
