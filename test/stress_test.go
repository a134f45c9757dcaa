package test

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"math/rand"
	"os"
	"os/exec"
	"testing"
	"time"

	"golang.org/x/sync/errgroup"

	"supportdesk/audit"
	"supportdesk/identity"
	"supportdesk/session"
	"supportdesk/test/infra"
)

var (
	flDuration    = flag.Duration("duration", 20*time.Second, "how long to run stress")
	flConcurrency = flag.Int("concurrency", 8, "number of concurrent actors")
	flSeed        = flag.Int64("seed", time.Now().UnixNano(), "random seed")
	flDSN         = flag.String("dsn", "", "existing Postgres DSN to reuse (avoids Docker)")
)

// TestIdentitySessionConcurrency hammers the session, registry, and audit
// layers with concurrent actors and then checks the core invariants: a
// current identity is always authenticated, registries never hold inactive
// or duplicate entries, and audit enrichment resolves every attributed row.
func TestIdentitySessionConcurrency(t *testing.T) {
	flag.Parse()
	rng := rand.New(rand.NewSource(*flSeed))
	t.Logf("seed=%d duration=%s concurrency=%d", *flSeed, *flDuration, *flConcurrency)

	ctx, cancel := context.WithTimeout(context.Background(), *flDuration+60*time.Second)
	defer cancel()

	var (
		pgC *infra.PGContainer
		dsn string
		err error
	)
	switch {
	case *flDSN != "":
		dsn = *flDSN
		pgC = &infra.PGContainer{}
	case os.Getenv("SUPPORTDESK_TEST_PG_DSN") != "":
		dsn = os.Getenv("SUPPORTDESK_TEST_PG_DSN")
		pgC = &infra.PGContainer{}
	default:
		if !dockerAvailable(ctx) {
			t.Skip("no Docker and no DSN; set -dsn or SUPPORTDESK_TEST_PG_DSN")
		}
		pgC, dsn, err = infra.StartPostgres16(ctx, "")
		if err != nil {
			t.Fatalf("start postgres: %v", err)
		}
	}
	t.Cleanup(func() { _ = pgC.Terminate(context.Background()) })

	pool, teardown, err := infra.ApplyMigrations(ctx, dsn, true)
	if err != nil {
		t.Fatalf("apply migrations: %v", err)
	}
	t.Cleanup(func() {
		pool.Close()
		_ = teardown(context.Background())
	})

	var accountID string
	if err := pool.QueryRow(ctx,
		`INSERT INTO accounts (email, org_name, password_hash) VALUES ($1, $2, 'x') RETURNING id`,
		fmt.Sprintf("stress+%d@example.com", time.Now().UnixNano()), "Stress Org").Scan(&accountID); err != nil {
		t.Fatalf("seed account: %v", err)
	}

	recorder := audit.NewRecorder(pool, nil)
	repo := identity.NewRepository(pool)
	svc := identity.NewService(repo, recorder, nil)

	type seeded struct {
		id  string
		pin string
	}
	agents := make([]seeded, 0, 6)
	for i := 0; i < 6; i++ {
		pin := fmt.Sprintf("%04d", rng.Intn(10000))
		ident, err := svc.Create(ctx, identity.CreateParams{
			AccountID: accountID,
			Kind:      identity.KindAgent,
			Name:      fmt.Sprintf("Agent %02d", i),
			PIN:       pin,
		})
		if err != nil {
			t.Fatalf("seed identity %d: %v", i, err)
		}
		agents = append(agents, seeded{id: ident.ID, pin: pin})
	}

	hub := identity.NewHub(repo, nil)
	manager := session.NewManager(hub, session.NewMemoryStore(), recorder, nil)

	runCtx, stop := context.WithTimeout(ctx, *flDuration)
	defer stop()

	sessions := make([]*session.Session, *flConcurrency)
	for i := range sessions {
		sessions[i] = manager.Session(ctx, fmt.Sprintf("tab-%d", i), accountID, identity.KindAgent)
	}

	g, gctx := errgroup.WithContext(runCtx)
	for i := 0; i < *flConcurrency; i++ {
		i := i
		seed := rng.Int63()
		g.Go(func() error {
			r := rand.New(rand.NewSource(seed))
			sess := sessions[i]
			reg := hub.ForAccount(gctx, accountID, identity.KindAgent)
			for gctx.Err() == nil {
				target := agents[r.Intn(len(agents))]
				switch r.Intn(4) {
				case 0:
					pin := target.pin
					if r.Intn(2) == 0 {
						pin = "0000" // frequently wrong on purpose
					}
					sess.Authenticate(gctx, target.id, pin)
				case 1:
					err := sess.SetCurrent(gctx, target.id)
					if err != nil && !errors.Is(err, session.ErrNotAuthenticated) {
						return fmt.Errorf("actor %d: set current: %w", i, err)
					}
				case 2:
					if err := reg.Load(gctx); err != nil && gctx.Err() == nil {
						return fmt.Errorf("actor %d: reload: %w", i, err)
					}
				case 3:
					if current := sess.Current(); current != "" && !sess.IsAuthenticated(current) {
						return fmt.Errorf("actor %d: current %s not in authenticated set", i, current)
					}
				}
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil && !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("stress run: %v", err)
	}

	// Oracle: selection invariant holds at rest for every session.
	for i, sess := range sessions {
		if current := sess.Current(); current != "" && !sess.IsAuthenticated(current) {
			t.Fatalf("session %d: current %s not authenticated", i, current)
		}
	}

	// Oracle: registry reflects exactly the active rows, no duplicates.
	reg := hub.ForAccount(ctx, accountID, identity.KindAgent)
	if err := reg.Load(ctx); err != nil {
		t.Fatalf("final reload: %v", err)
	}
	seen := map[string]bool{}
	for _, ident := range reg.Identities() {
		if seen[ident.ID] {
			t.Fatalf("duplicate identity %s in registry", ident.ID)
		}
		seen[ident.ID] = true
		if !ident.Active {
			t.Fatalf("inactive identity %s in registry", ident.ID)
		}
	}

	// Oracle: every identity-attributed audit row enriches to a ref code.
	entries, err := audit.NewReader(pool).ListRecent(ctx, accountID, 200)
	if err != nil {
		t.Fatalf("audit read: %v", err)
	}
	if len(entries) == 0 {
		t.Fatal("expected audit entries from the run")
	}
	for _, e := range entries {
		if e.IdentityID != nil && e.RefCode == "" {
			t.Fatalf("audit entry %s not enriched for identity %s", e.ID, *e.IdentityID)
		}
	}
}

func dockerAvailable(ctx context.Context) bool {
	cmd := exec.CommandContext(ctx, "docker", "info")
	cmd.Stdout = nil
	cmd.Stderr = nil
	return cmd.Run() == nil
}
