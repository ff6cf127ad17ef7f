package swarm

import (
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/sirupsen/logrus"

	cm "github.com/pythagoras-dev/pythagoras/src/common"
	"github.com/pythagoras-dev/pythagoras/src/identity"
	"github.com/pythagoras-dev/pythagoras/src/keyval"
	"github.com/pythagoras-dev/pythagoras/src/portal"
	"github.com/pythagoras-dev/pythagoras/src/work"
)

func testConfig() Config {
	conf := DefaultConfig()
	conf.PollInterval = 10 * time.Millisecond
	return conf
}

func newTestPortal(t *testing.T) *portal.Portal {
	opts := portal.DefaultOptions()
	opts.BaseDelay = 10 * time.Millisecond
	opts.NodeID = "test-node"

	return portal.NewPortal(
		keyval.NewInmemBackend(),
		work.NewRegistry(),
		opts,
		cm.NewTestEntry(t, logrus.ErrorLevel),
	)
}

func newTestIdentity(t *testing.T) *identity.Identity {
	id, err := identity.LoadOrCreate(filepath.Join(t.TempDir(), "node_key"))
	if err != nil {
		t.Fatal(err)
	}
	return id
}

func TestBeacon(t *testing.T) {
	backend := keyval.NewInmemBackend()
	beacon := NewBeacon(backend, "node-sig")

	if beacon.Alive("some-token") {
		t.Fatal("no heartbeat should read as dead")
	}

	hb := Heartbeat{NodeSignature: "node-sig", Pid: 42, Token: "some-token"}
	if err := beacon.Publish(hb); err != nil {
		t.Fatal(err)
	}

	got, err := beacon.Read()
	if err != nil {
		t.Fatal(err)
	}
	if got != hb {
		t.Fatalf("bad heartbeat: %+v", got)
	}

	if !beacon.Alive("some-token") {
		t.Fatal("published heartbeat should read as alive")
	}

	// a different principal took over the node
	if beacon.Alive("other-token") {
		t.Fatal("token mismatch should read as dead")
	}

	if err := beacon.Clear(); err != nil {
		t.Fatal(err)
	}

	if beacon.Alive("some-token") {
		t.Fatal("cleared heartbeat should read as dead")
	}
}

func TestBeaconReplacesStaleRecord(t *testing.T) {
	backend := keyval.NewInmemBackend()
	beacon := NewBeacon(backend, "node-sig")

	stale := Heartbeat{NodeSignature: "node-sig", Pid: 1, Token: "dead-principal"}
	if err := beacon.Publish(stale); err != nil {
		t.Fatal(err)
	}

	fresh := Heartbeat{NodeSignature: "node-sig", Pid: 2, Token: "live-principal"}
	if err := beacon.Publish(fresh); err != nil {
		t.Fatal(err)
	}

	if beacon.Alive("dead-principal") {
		t.Fatal("stale token should read as dead")
	}
	if !beacon.Alive("live-principal") {
		t.Fatal("fresh token should read as alive")
	}
}

func TestSchedulerLifecycle(t *testing.T) {
	p := newTestPortal(t)
	defer p.Close()

	s, err := NewScheduler(p, newTestIdentity(t), testConfig(), cm.NewTestEntry(t, logrus.ErrorLevel))
	if err != nil {
		t.Fatal(err)
	}

	if err := s.Start(); err != nil {
		t.Fatal(err)
	}

	// double start is refused
	if err := s.Start(); err == nil {
		t.Fatal("double start should fail")
	}

	if !s.beacon.Alive(s.Token()) {
		t.Fatal("heartbeat should be up while running")
	}

	if err := s.Stop(); err != nil {
		t.Fatal(err)
	}

	if s.beacon.Alive(s.Token()) {
		t.Fatal("heartbeat should be gone after Stop")
	}

	// stopping again is a no-op
	if err := s.Stop(); err != nil {
		t.Fatal(err)
	}

	// the scheduler can go again after a clean stop
	if err := s.Start(); err != nil {
		t.Fatal(err)
	}
	if err := s.Stop(); err != nil {
		t.Fatal(err)
	}
}

func TestSchedulerDrainsQueue(t *testing.T) {
	p := newTestPortal(t)
	defer p.Close()

	op, err := work.NewOp("shout", "def shout(x): return x + '!'", func(args work.ArgMap) (interface{}, error) {
		return args["x"].(string) + "!", nil
	}, nil)
	if err != nil {
		t.Fatal(err)
	}
	if err := p.Registry().Register(op); err != nil {
		t.Fatal(err)
	}

	handles := []*portal.Pending{}
	for i := 0; i < 5; i++ {
		pending, err := p.Call(op, work.ArgMap{"x": fmt.Sprintf("item %d", i)})
		if err != nil {
			t.Fatal(err)
		}
		if err := pending.RequestExecution(); err != nil {
			t.Fatal(err)
		}
		handles = append(handles, pending)
	}

	s, err := NewScheduler(p, newTestIdentity(t), testConfig(), cm.NewTestEntry(t, logrus.ErrorLevel))
	if err != nil {
		t.Fatal(err)
	}

	if err := s.Start(); err != nil {
		t.Fatal(err)
	}
	defer s.Stop()

	for i, pending := range handles {
		res, err := pending.Get(10 * time.Second)
		if err != nil {
			t.Fatal(err)
		}
		expected := fmt.Sprintf("item %d!", i)
		if res != expected {
			t.Fatalf("bad result: got %v, want %s", res, expected)
		}
	}

	// worker attempts carry the principal's runtime token
	attempt, _, err := p.Attempts().Last(handles[0].Key())
	if err != nil {
		t.Fatal(err)
	}
	if attempt.Token != s.Token() {
		t.Fatalf("bad attempt token: %q", attempt.Token)
	}

	// the queue must eventually empty out
	deadline := time.Now().Add(10 * time.Second)
	for {
		count, err := p.Requests().Count()
		if err != nil {
			t.Fatal(err)
		}
		if count == 0 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("queue not drained, %d requests left", count)
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestWorkersExitOnHeartbeatLoss(t *testing.T) {
	p := newTestPortal(t)
	defer p.Close()

	s, err := NewScheduler(p, newTestIdentity(t), testConfig(), cm.NewTestEntry(t, logrus.ErrorLevel))
	if err != nil {
		t.Fatal(err)
	}

	if err := s.Start(); err != nil {
		t.Fatal(err)
	}

	// pull the heartbeat out from under the workers, as if the principal
	// died without a clean stop
	if err := s.beacon.Clear(); err != nil {
		t.Fatal(err)
	}

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(10 * time.Second):
		t.Fatal("workers did not exit on heartbeat loss")
	}

	if err := s.Stop(); err != nil {
		t.Fatal(err)
	}
}

func TestWorkerSurvivesPanickingOp(t *testing.T) {
	p := newTestPortal(t)
	defer p.Close()

	boom, err := work.NewOp("boom", "def boom(): raise", func(args work.ArgMap) (interface{}, error) {
		panic("kaboom")
	}, nil)
	if err != nil {
		t.Fatal(err)
	}
	if err := p.Registry().Register(boom); err != nil {
		t.Fatal(err)
	}

	echo, err := work.NewOp("echo", "def echo(x): return x", func(args work.ArgMap) (interface{}, error) {
		return args["x"], nil
	}, nil)
	if err != nil {
		t.Fatal(err)
	}
	if err := p.Registry().Register(echo); err != nil {
		t.Fatal(err)
	}

	bad, err := p.Call(boom, work.ArgMap{})
	if err != nil {
		t.Fatal(err)
	}
	if err := bad.RequestExecution(); err != nil {
		t.Fatal(err)
	}

	good, err := p.Call(echo, work.ArgMap{"x": "survivor"})
	if err != nil {
		t.Fatal(err)
	}
	if err := good.RequestExecution(); err != nil {
		t.Fatal(err)
	}

	s, err := NewScheduler(p, newTestIdentity(t), testConfig(), cm.NewTestEntry(t, logrus.ErrorLevel))
	if err != nil {
		t.Fatal(err)
	}

	if err := s.Start(); err != nil {
		t.Fatal(err)
	}
	defer s.Stop()

	// the healthy item must complete even though the pool keeps hitting the
	// panicking one
	res, err := good.Get(10 * time.Second)
	if err != nil {
		t.Fatal(err)
	}
	if res != "survivor" {
		t.Fatalf("bad result: %v", res)
	}
}
