package risk_test

import (
	"context"
	"errors"
	"testing"

	"grcore.org/internal/auth"
	"grcore.org/internal/ids"
	"grcore.org/internal/risk"
	"grcore.org/internal/store/memory"
)

func writer() auth.Principal {
	return auth.NewPrincipal(&auth.User{ID: ids.New(), Email: "writer@test"}, nil,
		[]string{auth.PermRiskRead, auth.PermRiskWrite})
}

func bystander() auth.Principal {
	return auth.NewPrincipal(&auth.User{ID: ids.New(), Email: "other@test"}, nil, nil)
}

func TestScoreIsLikelihoodTimesImpact(t *testing.T) {
	store := memory.New()
	svc := risk.NewService(store.Risks())
	ctx := context.Background()
	actor := writer()

	cases := []struct {
		likelihood, impact, want int
	}{
		{2, 3, 6},
		{1, 1, 1},
		{3, 3, 9},
	}
	for _, tc := range cases {
		r, err := svc.Create(ctx, actor, risk.CreateInput{
			Title:      "r",
			Likelihood: tc.likelihood,
			Impact:     tc.impact,
		})
		if err != nil {
			t.Fatalf("create %dx%d: %v", tc.likelihood, tc.impact, err)
		}
		if r.Score != tc.want {
			t.Fatalf("score(%d,%d) = %d, want %d", tc.likelihood, tc.impact, r.Score, tc.want)
		}
	}
}

func TestCreateRejectsOutOfRangeScales(t *testing.T) {
	store := memory.New()
	svc := risk.NewService(store.Risks())
	ctx := context.Background()
	actor := writer()

	var validation *risk.ValidationError
	if _, err := svc.Create(ctx, actor, risk.CreateInput{Title: "r", Likelihood: 0, Impact: 2}); !errors.As(err, &validation) {
		t.Fatalf("likelihood 0: expected ValidationError, got %v", err)
	}
	if validation.Field != "likelihood" {
		t.Fatalf("wrong field: %s", validation.Field)
	}
	if _, err := svc.Create(ctx, actor, risk.CreateInput{Title: "r", Likelihood: 2, Impact: 4}); !errors.As(err, &validation) {
		t.Fatalf("impact 4: expected ValidationError, got %v", err)
	}
	if validation.Field != "impact" {
		t.Fatalf("wrong field: %s", validation.Field)
	}

	// Nothing persisted, nothing audited.
	list, err := store.Risks().List(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(list) != 0 {
		t.Fatalf("risk persisted despite validation failure: %+v", list)
	}
	entries, err := store.Audit().List(ctx, 500)
	if err != nil {
		t.Fatalf("audit: %v", err)
	}
	if len(entries) != 0 {
		t.Fatalf("rejected call was audited: %+v", entries)
	}
}

func TestUpdateRecomputesScore(t *testing.T) {
	store := memory.New()
	svc := risk.NewService(store.Risks())
	ctx := context.Background()
	actor := writer()

	r, err := svc.Create(ctx, actor, risk.CreateInput{Title: "r", Likelihood: 3, Impact: 3})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	impact := 2
	updated, err := svc.Update(ctx, actor, r.ID, risk.Update{Impact: &impact})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if updated.Score != 6 {
		t.Fatalf("score not recomputed: got %d, want 6", updated.Score)
	}
	if updated.Likelihood != 3 || updated.Title != "r" {
		t.Fatalf("partial update touched other fields: %+v", updated)
	}
}

func TestUpdateValidatesBeforeMutating(t *testing.T) {
	store := memory.New()
	svc := risk.NewService(store.Risks())
	ctx := context.Background()
	actor := writer()

	r, err := svc.Create(ctx, actor, risk.CreateInput{Title: "r", Likelihood: 2, Impact: 2})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	bad := 4
	var validation *risk.ValidationError
	if _, err := svc.Update(ctx, actor, r.ID, risk.Update{Impact: &bad}); !errors.As(err, &validation) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
	after, err := store.Risks().Find(ctx, r.ID)
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if after.Impact != 2 || after.Score != 4 {
		t.Fatalf("risk mutated by rejected update: %+v", after)
	}
}

func TestOwnerMayUpdateWithoutWritePermission(t *testing.T) {
	store := memory.New()
	svc := risk.NewService(store.Risks())
	ctx := context.Background()

	owner := bystander()
	r, err := svc.Create(ctx, writer(), risk.CreateInput{
		Title:      "owned",
		Likelihood: 1,
		Impact:     1,
		OwnerID:    owner.User.ID,
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	plan := "rotate credentials"
	updated, err := svc.Update(ctx, owner, r.ID, risk.Update{MitigationPlan: &plan})
	if err != nil {
		t.Fatalf("owner update: %v", err)
	}
	if updated.MitigationPlan != plan {
		t.Fatalf("update not applied: %+v", updated)
	}

	var forbidden *auth.ForbiddenError
	if _, err := svc.Update(ctx, bystander(), r.ID, risk.Update{MitigationPlan: &plan}); !errors.As(err, &forbidden) {
		t.Fatalf("non-owner without risk:write: expected ForbiddenError, got %v", err)
	}
}

func TestUpdateMissingRiskIsNotFoundEvenWithoutPermission(t *testing.T) {
	svc := risk.NewService(memory.New().Risks())
	title := "x"
	// Existence is checked first, so an unauthorized caller learns no
	// more than an authorized one would.
	if _, err := svc.Update(context.Background(), bystander(), "missing", risk.Update{Title: &title}); !errors.Is(err, risk.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestListOrdersByScore(t *testing.T) {
	store := memory.New()
	svc := risk.NewService(store.Risks())
	ctx := context.Background()
	actor := writer()

	if _, err := svc.Create(ctx, actor, risk.CreateInput{Title: "low", Likelihood: 1, Impact: 1}); err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := svc.Create(ctx, actor, risk.CreateInput{Title: "high", Likelihood: 3, Impact: 3}); err != nil {
		t.Fatalf("create: %v", err)
	}
	list, err := svc.List(ctx, actor)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(list) != 2 || list[0].Title != "high" {
		t.Fatalf("expected highest score first, got %+v", list)
	}
}
