package sequence

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"chaintrace/internal/cache"
	"chaintrace/internal/compliance/models"
)

type TrackerSuite struct {
	suite.Suite
	cache   *cache.Memory
	tracker *Tracker
}

func TestTrackerSuite(t *testing.T) {
	suite.Run(t, new(TrackerSuite))
}

func (s *TrackerSuite) SetupTest() {
	s.cache = cache.NewMemory()

	var err error
	s.tracker, err = New(s.cache, 24*time.Hour)
	s.Require().NoError(err)
}

// commitStage is a test helper driving a full check-then-commit cycle.
func (s *TrackerSuite) commitStage(productID string, role models.RoleType, position int, stageID string, deps []string) string {
	ctx := context.Background()

	res, err := s.tracker.CheckAndReserve(ctx, productID, role, position, deps)
	s.Require().NoError(err)
	defer res.Release()

	if !res.Allowed() {
		return res.Violation()
	}

	violation, err := res.Commit(ctx, stageID, "0xactor", time.Now())
	s.Require().NoError(err)
	return violation
}

func (s *TrackerSuite) TestNew() {
	s.Run("nil cache returns error", func() {
		_, err := New(nil, time.Hour)
		s.Error(err)
	})

	s.Run("non-positive ttl returns error", func() {
		_, err := New(s.cache, 0)
		s.Error(err)
	})
}

func (s *TrackerSuite) TestProducerFirstActionAllowed() {
	violation := s.commitStage("CT-2024-001", models.RoleProducer, 1, "producer_initial_creation", nil)
	s.Empty(violation)

	state, err := s.tracker.State(context.Background(), "CT-2024-001")
	s.Require().NoError(err)
	s.Require().Len(state.Stages, 1)
	s.Equal(models.RoleProducer, state.Stages[0].Role)
	s.Equal("producer_initial_creation", state.Stages[0].StageID)
	s.Equal("0xactor", state.Stages[0].Actor)
}

func (s *TrackerSuite) TestDuplicateProducerRejected() {
	s.Empty(s.commitStage("CT-dup", models.RoleProducer, 1, "producer_initial_creation", nil))

	violation := s.commitStage("CT-dup", models.RoleProducer, 1, "producer_initial_creation", nil)
	s.Contains(violation, "SEQUENCE_VIOLATION")
	s.Contains(violation, "Multiple Producer actions detected for product CT-dup without Processor intervention")

	state, err := s.tracker.State(context.Background(), "CT-dup")
	s.Require().NoError(err)
	s.Len(state.Stages, 1, "rejected action must not be committed")
}

func (s *TrackerSuite) TestProducerAllowedAgainAfterProcessor() {
	s.Empty(s.commitStage("CT-cycle", models.RoleProducer, 1, "producer_initial_creation", nil))
	s.Empty(s.commitStage("CT-cycle", models.RoleProcessor, 2, "processor_verification", nil))
	s.Empty(s.commitStage("CT-cycle", models.RoleProducer, 1, "producer_initial_creation", nil))
}

func (s *TrackerSuite) TestProcessorNeedsProducer() {
	violation := s.commitStage("CT-fresh", models.RoleProcessor, 2, "processor_verification", nil)
	s.Equal("SEQUENCE_VIOLATION: Processor action attempted before Producer initialization", violation)
}

func (s *TrackerSuite) TestVerifierPreconditions() {
	s.Run("missing producer reported first", func() {
		violation := s.commitStage("CT-v1", models.RoleVerifier, 3, "verifier_final_approval", nil)
		s.Equal("SEQUENCE_VIOLATION: Verifier action attempted before Producer initialization", violation)
	})

	s.Run("missing processor reported when producer exists", func() {
		s.Empty(s.commitStage("CT-v2", models.RoleProducer, 1, "producer_initial_creation", nil))

		violation := s.commitStage("CT-v2", models.RoleVerifier, 3, "verifier_final_approval", nil)
		s.Equal("SEQUENCE_VIOLATION: Verifier action attempted before Processor completion", violation)
	})

	s.Run("allowed after both stages", func() {
		s.Empty(s.commitStage("CT-v3", models.RoleProducer, 1, "producer_initial_creation", nil))
		s.Empty(s.commitStage("CT-v3", models.RoleProcessor, 2, "processor_verification", nil))
		s.Empty(s.commitStage("CT-v3", models.RoleVerifier, 3, "verifier_final_approval", nil))
	})
}

func (s *TrackerSuite) TestExplicitDependencies() {
	s.Empty(s.commitStage("CT-dep", models.RoleProducer, 1, "producer_initial_creation", nil))

	s.Run("unmet named dependency rejected", func() {
		violation := s.commitStage("CT-dep", models.RoleProcessor, 2, "processor_verification",
			[]string{"producer_initial_creation", "lab_certification"})
		s.Contains(violation, "required stage lab_certification not completed for product CT-dep")
	})

	s.Run("satisfied dependencies pass", func() {
		violation := s.commitStage("CT-dep", models.RoleProcessor, 2, "processor_verification",
			[]string{"producer_initial_creation"})
		s.Empty(violation)
	})
}

func (s *TrackerSuite) TestStateForFreshProductIsEmpty() {
	state, err := s.tracker.State(context.Background(), "never-seen")
	s.Require().NoError(err)
	s.Equal("never-seen", state.ProductID)
	s.Empty(state.Stages)
}

func (s *TrackerSuite) TestCommitOnRejectedReservationFails() {
	ctx := context.Background()

	res, err := s.tracker.CheckAndReserve(ctx, "CT-rej", models.RoleProcessor, 2, nil)
	s.Require().NoError(err)
	defer res.Release()
	s.Require().False(res.Allowed())

	_, err = res.Commit(ctx, "processor_verification", "0xactor", time.Now())
	s.Error(err)
}

func (s *TrackerSuite) TestConcurrentProducersExactlyOneWins() {
	const attempts = 20
	ctx := context.Background()

	var approved atomic.Int64
	var rejected atomic.Int64

	var wg sync.WaitGroup
	wg.Add(attempts)
	for i := 0; i < attempts; i++ {
		go func() {
			defer wg.Done()

			res, err := s.tracker.CheckAndReserve(ctx, "CT-race", models.RoleProducer, 1, nil)
			if !s.NoError(err) {
				return
			}
			defer res.Release()

			if !res.Allowed() {
				rejected.Add(1)
				return
			}
			violation, err := res.Commit(ctx, "producer_initial_creation", "0xactor", time.Now())
			if !s.NoError(err) {
				return
			}
			if violation != "" {
				rejected.Add(1)
				return
			}
			approved.Add(1)
		}()
	}
	wg.Wait()

	s.Equal(int64(1), approved.Load())
	s.Equal(int64(attempts-1), rejected.Load())
}

func TestKeyedMutex(t *testing.T) {
	km := newKeyedMutex()

	t.Run("unlock is idempotent", func(t *testing.T) {
		unlock := km.Lock("k")
		unlock()
		unlock() // second call must not panic or double-unlock
	})

	t.Run("entries are reclaimed", func(t *testing.T) {
		unlock := km.Lock("reclaim")
		unlock()

		km.mu.Lock()
		defer km.mu.Unlock()
		if len(km.entries) != 0 {
			t.Fatalf("expected empty entry map, got %d entries", len(km.entries))
		}
	})

	t.Run("different keys do not block each other", func(t *testing.T) {
		unlockA := km.Lock("a")
		defer unlockA()

		done := make(chan struct{})
		go func() {
			unlockB := km.Lock("b")
			unlockB()
			close(done)
		}()

		select {
		case <-done:
		case <-time.After(time.Second):
			t.Fatal("lock on independent key blocked")
		}
	})
}
