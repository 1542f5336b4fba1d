package roles

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/event-reminder/backend/internal/clock"
	"github.com/event-reminder/backend/internal/notify"
	"github.com/event-reminder/backend/internal/storage"
	"github.com/event-reminder/backend/internal/storage/models"
	"github.com/event-reminder/backend/internal/testutil"
)

var now = time.Date(2024, 9, 1, 12, 0, 0, 0, time.UTC)

type fixture struct {
	store   *storage.Store
	manager *Manager
	group   *models.Group
	alice   *models.User
	bob     *models.User
	admin   *models.User
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()
	store := testutil.NewTestStore(t)
	resolver := notify.NewResolver(store, clock.NewFixed(now))
	f := &fixture{
		store: store,
		group: testutil.CreateGroup(t, store, "-300"),
		alice: testutil.CreateUser(t, store, 1001, "alice"),
		bob:   testutil.CreateUser(t, store, 1002, "bob"),
		admin: testutil.CreateUser(t, store, 1003, "admin"),
	}
	if err := store.Groups.SetMember(ctx, f.group.ID, f.admin.ID, models.MemberAdmin); err != nil {
		t.Fatalf("SetMember: %v", err)
	}
	f.manager = NewManager(store, resolver, NewGroupAuthorizer(store, func(id int64) bool { return id == 9999 }), nil)

	err := resolver.AddRule(ctx, &models.NotificationRule{
		GroupID: f.group.ID,
		Kind:    models.KindPersonal,
		Offset:  models.Offset{Amount: 1, Unit: models.UnitDays},
	})
	if err != nil {
		t.Fatalf("AddRule: %v", err)
	}
	return f
}

func (f *fixture) event(t *testing.T, allowMulti bool, roles ...string) *models.Event {
	t.Helper()
	ctx := context.Background()
	ev := &models.Event{
		GroupID:                f.group.ID,
		Name:                   "Sunday service",
		StartTime:              now.Add(72 * time.Hour),
		AllowMultiRolesPerUser: allowMulti,
	}
	if err := f.store.Events.Create(ctx, ev); err != nil {
		t.Fatalf("creating event: %v", err)
	}
	if err := f.store.Roles.AddRequirements(ctx, ev.ID, roles); err != nil {
		t.Fatalf("adding roles: %v", err)
	}
	return ev
}

func (f *fixture) personal(t *testing.T, eventID string, userID int64) int {
	t.Helper()
	list, err := f.store.Instances.ListPersonal(context.Background(), eventID, userID)
	if err != nil {
		t.Fatalf("listing personal instances: %v", err)
	}
	return len(list)
}

func (f *fixture) booked(t *testing.T, eventID string, userID int64) bool {
	t.Helper()
	ok, err := f.store.Bookings.Exists(context.Background(), userID, eventID)
	if err != nil {
		t.Fatalf("querying booking: %v", err)
	}
	return ok
}

func TestAssignCreatesBookingAndPersonalReminders(t *testing.T) {
	f := newFixture(t)
	ev := f.event(t, false, "Leader", "Reader")

	ok, err := f.manager.Assign(context.Background(), ev.ID, "Leader", f.alice.ID)
	if err != nil || !ok {
		t.Fatalf("Assign = %v, %v", ok, err)
	}
	if !f.booked(t, ev.ID, f.alice.ID) {
		t.Error("expected booking")
	}
	if n := f.personal(t, ev.ID, f.alice.ID); n != 1 {
		t.Errorf("personal instances = %d, want 1", n)
	}
}

func TestAssignDeclines(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	ev := f.event(t, false, "Leader", "Reader")

	if _, err := f.manager.Assign(ctx, ev.ID, "Leader", f.alice.ID); err != nil {
		t.Fatalf("Assign: %v", err)
	}

	tests := []struct {
		name string
		role string
		user int64
		want Decision
	}{
		{"taken slot", "Leader", f.bob.ID, SlotTaken},
		{"second role", "Reader", f.alice.ID, MultiRoleDenied},
		{"unknown role", "Drummer", f.bob.ID, UnknownRole},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d, err := f.manager.TryAssign(ctx, ev.ID, tt.role, tt.user)
			if err != nil {
				t.Fatalf("TryAssign: %v", err)
			}
			if d != tt.want {
				t.Errorf("decision = %s, want %s", d, tt.want)
			}
		})
	}

	if _, err := f.manager.Assign(ctx, "missing", "Leader", f.bob.ID); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("missing event err = %v", err)
	}
}

func TestAssignAllowsMultipleRolesWhenEnabled(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	ev := f.event(t, true, "Leader", "Reader")

	for _, role := range []string{"Leader", "Reader"} {
		ok, err := f.manager.Assign(ctx, ev.ID, role, f.alice.ID)
		if err != nil || !ok {
			t.Fatalf("Assign %s = %v, %v", role, ok, err)
		}
	}
	// Personal reminders are per user, not per role.
	if n := f.personal(t, ev.ID, f.alice.ID); n != 1 {
		t.Errorf("personal instances = %d, want 1", n)
	}
}

func TestConcurrentAssignIsExclusive(t *testing.T) {
	f := newFixture(t)
	ev := f.event(t, false, "Leader")

	users := []int64{f.alice.ID, f.bob.ID, f.admin.ID}
	results := make([]bool, len(users))
	errs := make([]error, len(users))

	var wg sync.WaitGroup
	for i, uid := range users {
		wg.Add(1)
		go func(i int, uid int64) {
			defer wg.Done()
			results[i], errs[i] = f.manager.Assign(context.Background(), ev.ID, "Leader", uid)
		}(i, uid)
	}
	wg.Wait()

	winners := 0
	for i := range users {
		if errs[i] != nil {
			t.Fatalf("Assign %d: %v", i, errs[i])
		}
		if results[i] {
			winners++
		}
	}
	if winners != 1 {
		t.Fatalf("%d concurrent assignments succeeded, want 1", winners)
	}

	slots, _ := f.manager.Slots(context.Background(), ev.ID)
	if len(slots) != 1 || slots[0].IsFree() {
		t.Errorf("slots = %+v", slots)
	}
}

func TestUnassignPermissions(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	ev := f.event(t, false, "Leader")

	if _, err := f.manager.Assign(ctx, ev.ID, "Leader", f.alice.ID); err != nil {
		t.Fatalf("Assign: %v", err)
	}

	ok, err := f.manager.Unassign(ctx, ev.ID, "Leader", f.bob.ID)
	if err != nil {
		t.Fatalf("Unassign: %v", err)
	}
	if ok {
		t.Fatal("member removed someone else's role")
	}

	ok, err = f.manager.Unassign(ctx, ev.ID, "Leader", f.admin.ID)
	if err != nil || !ok {
		t.Fatalf("admin Unassign = %v, %v", ok, err)
	}
	if f.booked(t, ev.ID, f.alice.ID) {
		t.Error("booking survived unassignment")
	}
	if n := f.personal(t, ev.ID, f.alice.ID); n != 0 {
		t.Errorf("personal instances = %d, want 0", n)
	}

	ok, err = f.manager.Unassign(ctx, ev.ID, "Leader", f.admin.ID)
	if err != nil || ok {
		t.Errorf("unassigning empty slot = %v, %v", ok, err)
	}
}

func TestTryUnassignReportsOutcome(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	ev := f.event(t, false, "Leader", "Reader")

	if _, err := f.manager.Assign(ctx, ev.ID, "Leader", f.alice.ID); err != nil {
		t.Fatalf("Assign: %v", err)
	}

	tests := []struct {
		name  string
		role  string
		actor int64
		want  Release
	}{
		{"someone else's role", "Leader", f.bob.ID, NotHolder},
		{"empty slot", "Reader", f.bob.ID, SlotEmpty},
		{"unknown role", "Drummer", f.alice.ID, SlotEmpty},
		{"own role", "Leader", f.alice.ID, Released},
		{"already released", "Leader", f.alice.ID, SlotEmpty},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := f.manager.TryUnassign(ctx, ev.ID, tt.role, tt.actor)
			if err != nil {
				t.Fatalf("TryUnassign: %v", err)
			}
			if got != tt.want {
				t.Errorf("outcome = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestUnassignSelfAndSuperadmin(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	ev := f.event(t, false, "Leader", "Reader")
	root := testutil.CreateUser(t, f.store, 9999, "root")

	if _, err := f.manager.Assign(ctx, ev.ID, "Leader", f.alice.ID); err != nil {
		t.Fatalf("Assign: %v", err)
	}
	if ok, err := f.manager.Unassign(ctx, ev.ID, "Leader", f.alice.ID); err != nil || !ok {
		t.Fatalf("self Unassign = %v, %v", ok, err)
	}

	if _, err := f.manager.Assign(ctx, ev.ID, "Reader", f.bob.ID); err != nil {
		t.Fatalf("Assign: %v", err)
	}
	if ok, err := f.manager.Unassign(ctx, ev.ID, "Reader", root.ID); err != nil || !ok {
		t.Fatalf("superadmin Unassign = %v, %v", ok, err)
	}
}

func TestCleanupWaitsForLastRole(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	ev := f.event(t, true, "Leader", "Reader")

	for _, role := range []string{"Leader", "Reader"} {
		if _, err := f.manager.Assign(ctx, ev.ID, role, f.alice.ID); err != nil {
			t.Fatalf("Assign: %v", err)
		}
	}

	if _, err := f.manager.Unassign(ctx, ev.ID, "Leader", f.alice.ID); err != nil {
		t.Fatalf("Unassign: %v", err)
	}
	if !f.booked(t, ev.ID, f.alice.ID) || f.personal(t, ev.ID, f.alice.ID) != 1 {
		t.Fatal("cleanup ran while a role was still held")
	}

	if _, err := f.manager.Unassign(ctx, ev.ID, "Reader", f.alice.ID); err != nil {
		t.Fatalf("Unassign: %v", err)
	}
	if f.booked(t, ev.ID, f.alice.ID) || f.personal(t, ev.ID, f.alice.ID) != 0 {
		t.Fatal("cleanup did not run after the last role")
	}
}

func TestSetResponsibleIsCompareAndSwap(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	ev := f.event(t, false, "Leader")
	alice, bob := f.alice.ID, f.bob.ID

	ok, err := f.manager.SetResponsible(ctx, ev.ID, nil, &alice)
	if err != nil || !ok {
		t.Fatalf("SetResponsible = %v, %v", ok, err)
	}
	if !f.booked(t, ev.ID, alice) || f.personal(t, ev.ID, alice) != 1 {
		t.Error("responsible user should be booked with personal reminders")
	}

	// A stale expectation loses.
	ok, err = f.manager.SetResponsible(ctx, ev.ID, nil, &bob)
	if err != nil || ok {
		t.Fatalf("stale SetResponsible = %v, %v", ok, err)
	}

	ok, err = f.manager.SetResponsible(ctx, ev.ID, &alice, &bob)
	if err != nil || !ok {
		t.Fatalf("SetResponsible = %v, %v", ok, err)
	}
	if f.booked(t, ev.ID, alice) || f.personal(t, ev.ID, alice) != 0 {
		t.Error("previous responsible user kept booking or reminders")
	}
	if !f.booked(t, ev.ID, bob) {
		t.Error("new responsible user not booked")
	}

	current, _ := f.store.Events.GetByID(ctx, ev.ID)
	if !current.IsResponsible(bob) {
		t.Errorf("responsible = %v", current.ResponsibleUserID)
	}
}

func TestSetResponsibleKeepsManualPersonalReminders(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	ev := f.event(t, false, "Host")
	alice := f.alice.ID

	if _, err := f.manager.Assign(ctx, ev.ID, "Host", alice); err != nil {
		t.Fatalf("Assign: %v", err)
	}
	manual, err := f.manager.resolver.Add(ctx, notify.AddRequest{
		EventID: ev.ID,
		Kind:    models.KindPersonal,
		UserID:  &alice,
		Offset:  models.Offset{Amount: 15, Unit: models.UnitMinutes},
	})
	if err != nil {
		t.Fatalf("Add: %v", err)
	}
	if n := f.personal(t, ev.ID, alice); n != 2 {
		t.Fatalf("personal instances before = %d, want 2", n)
	}

	ok, err := f.manager.SetResponsible(ctx, ev.ID, nil, &alice)
	if err != nil || !ok {
		t.Fatalf("SetResponsible = %v, %v", ok, err)
	}
	list, err := f.store.Instances.ListPersonal(ctx, ev.ID, alice)
	if err != nil {
		t.Fatalf("ListPersonal: %v", err)
	}
	if len(list) != 2 {
		t.Fatalf("personal instances after = %d, want 2", len(list))
	}
	found := false
	for _, inst := range list {
		if inst.ID == manual.ID {
			found = true
		}
	}
	if !found {
		t.Error("manual reminder was replaced")
	}
}

func TestResponsibilityKeepsBookingAfterUnassign(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	ev := f.event(t, false, "Leader")
	alice := f.alice.ID

	if _, err := f.manager.SetResponsible(ctx, ev.ID, nil, &alice); err != nil {
		t.Fatalf("SetResponsible: %v", err)
	}
	if _, err := f.manager.Assign(ctx, ev.ID, "Leader", alice); err != nil {
		t.Fatalf("Assign: %v", err)
	}
	if _, err := f.manager.Unassign(ctx, ev.ID, "Leader", alice); err != nil {
		t.Fatalf("Unassign: %v", err)
	}
	if !f.booked(t, ev.ID, alice) || f.personal(t, ev.ID, alice) != 1 {
		t.Error("responsible user lost booking after giving up a role")
	}
}

func TestSetRequirementsReleasesDisplacedUsers(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	ev := f.event(t, false, "Leader", "Reader")

	if _, err := f.manager.Assign(ctx, ev.ID, "Reader", f.bob.ID); err != nil {
		t.Fatalf("Assign: %v", err)
	}
	if err := f.manager.SetRequirements(ctx, ev.ID, []string{"Leader", "Singer"}); err != nil {
		t.Fatalf("SetRequirements: %v", err)
	}

	slots, _ := f.manager.Slots(ctx, ev.ID)
	if len(slots) != 2 || slots[0].RoleName != "Leader" || slots[1].RoleName != "Singer" {
		t.Errorf("slots = %+v", slots)
	}
	if f.booked(t, ev.ID, f.bob.ID) {
		t.Error("displaced user still booked")
	}
}
