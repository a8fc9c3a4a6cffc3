package lifecycle

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/five82/sluice/internal/errstore"
	"github.com/five82/sluice/internal/model"
)

type widget struct {
	Name  string
	Count int
}

type fakeProvider struct {
	mu      sync.Mutex
	inits   []model.Params
	streams []chan *model.Snapshot[widget]
	updates []*model.Snapshot[widget]
	idles   []*model.Snapshot[widget]
	initErr error
	initNil bool
}

func (p *fakeProvider) Init(_ context.Context, subjectID string, route model.Params) (*model.Snapshot[widget], error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.inits = append(p.inits, route.Clone())
	if p.initErr != nil {
		return nil, p.initErr
	}
	if p.initNil {
		return nil, nil
	}
	return model.NewSnapshot[widget](subjectID, route), nil
}

func (p *fakeProvider) Model(_ context.Context, _ string, _ model.Params) (<-chan *model.Snapshot[widget], error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	ch := make(chan *model.Snapshot[widget], 8)
	p.streams = append(p.streams, ch)
	return ch, nil
}

func (p *fakeProvider) Update(_ context.Context, s *model.Snapshot[widget]) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.updates = append(p.updates, s)
	return nil
}

func (p *fakeProvider) Idle(_ context.Context, s *model.Snapshot[widget]) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.idles = append(p.idles, s)
	return nil
}

func (p *fakeProvider) stream(i int) chan *model.Snapshot[widget] {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.streams[i]
}

func (p *fakeProvider) counts() (inits, streams, updates, idles int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.inits), len(p.streams), len(p.updates), len(p.idles)
}

// recorder collects callback names in invocation order.
type recorder struct {
	mu       sync.Mutex
	calls    []string
	distinct [][]errstore.Record
}

func (r *recorder) add(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, name)
}

func (r *recorder) snapshot() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Clone(r.calls)
}

func (r *recorder) count(name string) int {
	n := 0
	for _, c := range r.snapshot() {
		if c == name {
			n++
		}
	}
	return n
}

// fullHost implements every callback, including both legacy forms.
type fullHost struct {
	recorder
	changeErr   error
	changePanic bool
}

func (h *fullHost) OnInit(*model.Snapshot[widget], string) error { h.add(StepInit); return nil }
func (h *fullHost) OnInitialLoad(*model.Snapshot[widget], string) error {
	h.add(StepInitialLoad)
	return nil
}
func (h *fullHost) OnFirstLoad(*model.Snapshot[widget], string) error {
	h.add(StepFirstLoad)
	return nil
}
func (h *fullHost) OnLoad(*model.Snapshot[widget], string) error { h.add(StepLoad); return nil }
func (h *fullHost) OnChange(*model.Snapshot[widget], string) error {
	h.add(StepChange)
	if h.changePanic {
		panic("render exploded")
	}
	return h.changeErr
}
func (h *fullHost) OnError(_ *model.Snapshot[widget], _ string, distinct []errstore.Record) error {
	h.add(StepError)
	h.mu.Lock()
	h.distinct = append(h.distinct, distinct)
	h.mu.Unlock()
	return nil
}
func (h *fullHost) OnFail(*model.Snapshot[widget], string) error { h.add(StepFail); return nil }

// legacyHost only implements the deprecated forms.
type legacyHost struct {
	recorder
}

func (h *legacyHost) OnFirstLoad(*model.Snapshot[widget], string) error {
	h.add(StepFirstLoad)
	return nil
}
func (h *legacyHost) OnFail(*model.Snapshot[widget], string) error { h.add(StepFail); return nil }

func snap(count int, status model.Status, task string) *model.Snapshot[widget] {
	s := model.NewSnapshot[widget]("widget", model.Params{"id": "w1"})
	s.Status = status
	s.Task = task
	s.Data = widget{Name: "w1", Count: count}
	return s
}

func newTestCoordinator(host any, opts Options[widget]) (*Coordinator[widget], *fakeProvider) {
	p := &fakeProvider{}
	if opts.Subject == "" {
		opts.Subject = "widget"
	}
	return New[widget](p, host, opts), p
}

func TestProcess_InitialLoadRunsOnceAndPrefersRichVariant(t *testing.T) {
	h := &fullHost{}
	c, _ := newTestCoordinator(h, Options[widget]{})
	ctx := context.Background()

	for i := 1; i <= 3; i++ {
		c.process(ctx, snap(i, model.StatusLoaded, ""))
	}

	assert.Equal(t, 1, h.count(StepInitialLoad))
	assert.Equal(t, 0, h.count(StepFirstLoad))
	assert.Equal(t, 3, h.count(StepLoad))
	assert.Equal(t, StepInitialLoad, h.snapshot()[0])
}

func TestProcess_FirstLoadAndFailFallback(t *testing.T) {
	h := &legacyHost{}
	c, _ := newTestCoordinator(h, Options[widget]{})
	ctx := context.Background()

	failed := snap(1, model.StatusFailed, "")
	failed.Errors.Record("Pipelines_Public_FetchPipeline_500", "w1", errors.New("boom"))
	r := c.process(ctx, failed)
	c.process(ctx, snap(2, model.StatusLoaded, ""))

	assert.Equal(t, []string{StepFirstLoad, StepFail}, h.snapshot())
	assert.Equal(t, []string{StepFirstLoad, StepFail}, r.Callbacks)
}

func TestProcess_UnmodifiedSnapshotIsNoop(t *testing.T) {
	h := &fullHost{}
	c, p := newTestCoordinator(h, Options[widget]{})
	ctx := context.Background()

	first := c.process(ctx, snap(1, model.StatusLoaded, "refresh"))
	require.True(t, first.Modified)
	held := c.Head()

	// Only the task differs, which the default policy ignores.
	r := c.process(ctx, snap(1, model.StatusLoaded, "poll"))

	assert.False(t, r.Modified)
	assert.Equal(t, []string{StepLoad}, r.Callbacks)
	assert.Same(t, held, c.Head())
	assert.Equal(t, 1, h.count(StepChange))
	_, _, updates, _ := p.counts()
	assert.Equal(t, 1, updates)
}

func TestProcess_HistoryIsBoundedToThreeAncestors(t *testing.T) {
	c, _ := newTestCoordinator(&fullHost{}, Options[widget]{})
	ctx := context.Background()

	for i := 1; i <= 6; i++ {
		r := c.process(ctx, snap(i, model.StatusLoaded, ""))
		require.True(t, r.Modified, "snapshot %d", i)
	}

	head := c.Head()
	require.NotNil(t, head)
	assert.Equal(t, 6, head.Snapshot.Data.Count)
	require.NotNil(t, head.Previous.Previous.Previous)
	assert.Nil(t, head.Previous.Previous.Previous.Previous)
	assert.Equal(t, 3, head.Depth())

	var got []int
	for _, s := range head.Snapshots() {
		got = append(got, s.Data.Count)
	}
	assert.Equal(t, []int{6, 5, 4, 3}, got)
}

func TestProcess_ChangeFaultDoesNotStopNormalization(t *testing.T) {
	tests := []struct {
		name  string
		host  *fullHost
		check func(t *testing.T, err error)
	}{
		{
			name: "panic",
			host: &fullHost{changePanic: true},
			check: func(t *testing.T, err error) {
				var perr *PanicError
				require.ErrorAs(t, err, &perr)
				assert.Equal(t, "render exploded", perr.Value)
			},
		},
		{
			name: "error",
			host: &fullHost{changeErr: errors.New("render failed")},
			check: func(t *testing.T, err error) {
				assert.EqualError(t, err, "render failed")
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, p := newTestCoordinator(tt.host, Options[widget]{})

			var r Report
			require.NotPanics(t, func() {
				r = c.process(context.Background(), snap(1, model.StatusLoaded, "refresh"))
			})

			require.Len(t, r.Faults, 1)
			assert.Equal(t, StepChange, r.Faults[0].Step)
			tt.check(t, r.Faults[0].Err)

			assert.Zero(t, tt.host.count(StepError))
			assert.Zero(t, tt.host.count(StepFail))

			p.mu.Lock()
			defer p.mu.Unlock()
			require.Len(t, p.updates, 1)
			assert.Empty(t, p.updates[0].Task)
			assert.Empty(t, c.Head().Snapshot.Task)
		})
	}
}

func TestProcess_OnErrorReceivesOnlyNewRecords(t *testing.T) {
	h := &fullHost{}
	c, _ := newTestCoordinator(h, Options[widget]{})
	ctx := context.Background()

	first := snap(1, model.StatusFailed, "")
	first.Errors.RecordStatus("Pipelines_Public_FetchPipeline_500", "w1", errors.New("boom"), 500)
	c.process(ctx, first)

	second := snap(1, model.StatusFailed, "")
	second.Errors = first.Errors.Clone()
	second.Errors.Record("Pipelines_Public_FetchRuns_Generic", "w1", errors.New("timeout"))
	c.process(ctx, second)

	assert.Equal(t, 2, h.count(StepError))
	assert.Zero(t, h.count(StepFail))
	assert.Zero(t, h.count(StepChange))

	h.mu.Lock()
	defer h.mu.Unlock()
	require.Len(t, h.distinct, 2)
	require.Len(t, h.distinct[0], 1)
	assert.Equal(t, "Pipelines_Public_FetchPipeline_500", h.distinct[0][0].Code)
	require.Len(t, h.distinct[1], 1)
	assert.Equal(t, "Pipelines_Public_FetchRuns_Generic", h.distinct[1][0].Code)

	assert.Equal(t, 2, c.Errors().Len())
}

func TestProcess_LocalStoreMirrorsHeldSnapshot(t *testing.T) {
	c, _ := newTestCoordinator(&fullHost{}, Options[widget]{})
	ctx := context.Background()

	notified := 0
	c.Errors().OnChange(func(*errstore.Store) { notified++ })

	failed := snap(1, model.StatusFailed, "")
	failed.Errors.Record("Pipelines_Public_FetchPipelines_503", "list", nil)
	c.process(ctx, failed)
	assert.True(t, c.Errors().HasCode("Pipelines_Public_FetchPipelines_503"))

	c.process(ctx, snap(2, model.StatusLoaded, ""))
	assert.Zero(t, c.Errors().Len())
	assert.Equal(t, 2, notified)
}

func TestProcess_PanickingPolicyCountsAsModified(t *testing.T) {
	h := &fullHost{}
	c, _ := newTestCoordinator(h, Options[widget]{
		Modified: func(_, _ *model.Snapshot[widget]) bool { panic("bad policy") },
	})

	r := c.process(context.Background(), snap(1, model.StatusLoaded, ""))

	assert.True(t, r.Modified)
	require.Len(t, r.Faults, 1)
	assert.Equal(t, StepModified, r.Faults[0].Step)
	assert.Equal(t, 1, h.count(StepChange))
}

func TestProcess_CustomFieldPolicy(t *testing.T) {
	h := &fullHost{}
	c, _ := newTestCoordinator(h, Options[widget]{
		Modified: model.FieldsModified[widget](model.FieldStatus),
	})
	ctx := context.Background()

	c.process(ctx, snap(1, model.StatusLoaded, ""))
	r := c.process(ctx, snap(2, model.StatusLoaded, ""))
	assert.False(t, r.Modified)

	r = c.process(ctx, snap(2, model.StatusLoading, ""))
	assert.True(t, r.Modified)
	assert.Equal(t, 2, h.count(StepChange))
}

func TestMount_LifecycleAndIdempotentUnmount(t *testing.T) {
	h := &fullHost{}
	c, p := newTestCoordinator(h, Options[widget]{Route: model.Params{"id": "w1"}})

	require.NoError(t, c.Mount(context.Background()))
	assert.ErrorIs(t, c.Mount(context.Background()), ErrAlreadyMounted)

	require.Eventually(t, func() bool {
		_, streams, _, _ := p.counts()
		return streams == 1
	}, time.Second, 5*time.Millisecond)

	failed := snap(1, model.StatusFailed, "refresh")
	failed.Errors.Record("Pipelines_Public_FetchPipeline_404", "w1", nil)
	p.stream(0) <- failed

	require.Eventually(t, func() bool {
		_, _, updates, _ := p.counts()
		return updates == 1
	}, time.Second, 5*time.Millisecond)

	c.Unmount()
	c.Unmount()

	select {
	case <-c.Done():
	case <-time.After(time.Second):
		t.Fatal("teardown did not finish")
	}
	c.Unmount()

	inits, _, _, idles := p.counts()
	assert.Equal(t, 1, inits)
	assert.Equal(t, 1, idles)
	assert.True(t, c.Errors().IsDisposed())
	assert.Equal(t, []string{StepInit, StepInitialLoad, StepLoad, StepError}, h.snapshot())

	p.mu.Lock()
	assert.Equal(t, model.StatusIdle, p.idles[0].Status)
	assert.Empty(t, p.idles[0].Task)
	p.mu.Unlock()

	late := c.process(context.Background(), snap(9, model.StatusLoaded, ""))
	assert.True(t, late.Dropped)
	assert.Empty(t, late.Callbacks)

	assert.ErrorIs(t, c.Mount(context.Background()), ErrUnmounted)
}

func TestUnmount_BeforeMount(t *testing.T) {
	c, p := newTestCoordinator(&fullHost{}, Options[widget]{})

	c.Unmount()

	select {
	case <-c.Done():
	default:
		t.Fatal("Done not closed")
	}
	_, _, _, idles := p.counts()
	assert.Zero(t, idles, "nothing held, nothing to flush")
	assert.True(t, c.Errors().IsDisposed())
}

func TestMount_ContextCancelTearsDown(t *testing.T) {
	c, p := newTestCoordinator(&fullHost{}, Options[widget]{})
	ctx, cancel := context.WithCancel(context.Background())

	require.NoError(t, c.Mount(ctx))
	require.Eventually(t, func() bool {
		_, streams, _, _ := p.counts()
		return streams == 1
	}, time.Second, 5*time.Millisecond)
	p.stream(0) <- snap(1, model.StatusLoaded, "")
	require.Eventually(t, func() bool {
		_, _, updates, _ := p.counts()
		return updates == 1
	}, time.Second, 5*time.Millisecond)

	cancel()

	select {
	case <-c.Done():
	case <-time.After(time.Second):
		t.Fatal("teardown did not finish")
	}
	_, _, _, idles := p.counts()
	assert.Equal(t, 1, idles)
}

func TestMount_InitFailureSkipsOnInit(t *testing.T) {
	h := &fullHost{}
	c, p := newTestCoordinator(h, Options[widget]{})
	p.initErr = errors.New("not ready")

	require.NoError(t, c.Mount(context.Background()))
	require.Eventually(t, func() bool {
		_, streams, _, _ := p.counts()
		return streams == 1
	}, time.Second, 5*time.Millisecond)
	p.stream(0) <- snap(1, model.StatusLoaded, "")
	require.Eventually(t, func() bool { return h.count(StepChange) == 1 }, time.Second, 5*time.Millisecond)

	c.Unmount()
	<-c.Done()
	assert.Zero(t, h.count(StepInit))
}

func TestMount_NilInitialSnapshotSkipsOnInit(t *testing.T) {
	var logs bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&logs, &slog.HandlerOptions{Level: slog.LevelDebug}))
	h := &fullHost{}
	c, p := newTestCoordinator(h, Options[widget]{Logger: logger})
	p.initNil = true

	require.NoError(t, c.Mount(context.Background()))
	require.Eventually(t, func() bool {
		_, streams, _, _ := p.counts()
		return streams == 1
	}, time.Second, 5*time.Millisecond)
	p.stream(0) <- snap(1, model.StatusLoaded, "")
	require.Eventually(t, func() bool { return h.count(StepChange) == 1 }, time.Second, 5*time.Millisecond)

	c.Unmount()
	<-c.Done()
	assert.Zero(t, h.count(StepInit))
	assert.Contains(t, logs.String(), "skipping OnInit")
}

func TestCoordinator_HeadReadableDuringProcessing(t *testing.T) {
	c, _ := newTestCoordinator(&fullHost{}, Options[widget]{})
	ctx := context.Background()

	stop := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for {
			select {
			case <-stop:
				return
			default:
			}
			if cur := c.Current(); cur != nil {
				_ = cur.Task
			}
			for _, s := range c.Head().Snapshots() {
				_ = s.Data.Count
			}
		}
	}()

	const n = 2000
	for i := 1; i <= n; i++ {
		c.process(ctx, snap(i, model.StatusLoaded, "refresh"))
	}
	close(stop)
	wg.Wait()

	head := c.Head()
	require.NotNil(t, head)
	assert.Equal(t, n, head.Snapshot.Data.Count)
	assert.Empty(t, head.Snapshot.Task)
	assert.Equal(t, DefaultHistoryDepth, head.Depth())
}

func TestPush_LeavesEarlierChainIntact(t *testing.T) {
	var head *Node[widget]
	for i := 1; i <= 4; i++ {
		head = push(head, snap(i, model.StatusLoaded, ""), DefaultHistoryDepth)
	}
	before := head
	require.Equal(t, 3, before.Depth())

	head = push(head, snap(5, model.StatusLoaded, ""), DefaultHistoryDepth)

	assert.Equal(t, 3, head.Depth())
	assert.Equal(t, 3, before.Depth())
	var got []int
	for _, s := range before.Snapshots() {
		got = append(got, s.Data.Count)
	}
	assert.Equal(t, []int{4, 3, 2, 1}, got)
}

func TestMount_RouteReuseRestartsLifecycle(t *testing.T) {
	h := &fullHost{}
	routes := make(chan model.Params, 2)
	c, p := newTestCoordinator(h, Options[widget]{
		Route:      model.Params{"id": "w1"},
		RouteReuse: routes,
	})

	require.NoError(t, c.Mount(context.Background()))
	t.Cleanup(c.Unmount)

	require.Eventually(t, func() bool {
		_, streams, _, _ := p.counts()
		return streams == 1
	}, time.Second, 5*time.Millisecond)
	p.stream(0) <- snap(1, model.StatusLoaded, "")
	require.Eventually(t, func() bool {
		_, _, updates, _ := p.counts()
		return updates == 1
	}, time.Second, 5*time.Millisecond)

	// Same identity is not a restart.
	routes <- model.Params{"id": "w1"}
	routes <- model.Params{"id": "w2"}

	require.Eventually(t, func() bool {
		_, streams, _, _ := p.counts()
		return streams == 2
	}, time.Second, 5*time.Millisecond)

	inits, _, _, idles := p.counts()
	assert.Equal(t, 2, inits)
	assert.Equal(t, 1, idles, "held snapshot flushed before restart")
	assert.Nil(t, c.Head())

	p.stream(1) <- snap(1, model.StatusLoaded, "")
	require.Eventually(t, func() bool { return h.count(StepChange) == 2 }, time.Second, 5*time.Millisecond)

	assert.Equal(t, 2, h.count(StepInit))
	assert.Equal(t, 2, h.count(StepInitialLoad))

	p.mu.Lock()
	assert.Equal(t, model.Params{"id": "w2"}, p.inits[1])
	p.mu.Unlock()
}

func TestUnmount_FromInsideCallback(t *testing.T) {
	var c *Coordinator[widget]
	h := &unmountingHost{unmount: func() { c.Unmount() }}
	c, p := newTestCoordinator(h, Options[widget]{})

	require.NoError(t, c.Mount(context.Background()))
	require.Eventually(t, func() bool {
		_, streams, _, _ := p.counts()
		return streams == 1
	}, time.Second, 5*time.Millisecond)
	p.stream(0) <- snap(1, model.StatusLoaded, "")

	select {
	case <-c.Done():
	case <-time.After(time.Second):
		t.Fatal("teardown did not finish")
	}
	_, _, _, idles := p.counts()
	assert.Equal(t, 1, idles)
}

type unmountingHost struct {
	unmount func()
}

func (h *unmountingHost) OnChange(*model.Snapshot[widget], string) error {
	h.unmount()
	return nil
}
