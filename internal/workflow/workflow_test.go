package workflow

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/dinnermatch/internal/domain"
	"github.com/roach88/dinnermatch/internal/scoring"
	"github.com/roach88/dinnermatch/internal/store"
	"github.com/roach88/dinnermatch/internal/testutil"
)

func TestScenarioA_DeclineRestoresCapacity(t *testing.T) {
	f := setup(t)
	f.seed(t,
		[]domain.Guest{testutil.Guest("g1", testutil.PartyOf(2))},
		[]domain.Host{testutil.Host("h1", testutil.Seats(4))},
	)
	assert.Equal(t, 4, f.remaining(t, "h1"))

	m := f.generateOne(t)
	assert.Equal(t, domain.StatusProposed, m.Status)
	assert.Equal(t, 2, f.remaining(t, "h1"), "proposal reserves under the default policy")
	f.assertInvariants(t)

	res, err := f.svc.SendRequest(f.ctx, m.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusRequested, res.Match.Status)
	assert.Empty(t, res.Warnings)
	assert.Equal(t, 2, f.remaining(t, "h1"))
	f.assertInvariants(t)

	resp, err := f.svc.Respond(f.ctx, f.linkToken(t, domain.TemplateMatchRequest, m.ID), "decline")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusDeclined, resp.Status)
	assert.Equal(t, "declined", resp.Outcome)
	assert.Equal(t, 4, f.remaining(t, "h1"))
	f.assertInvariants(t)

	placement, err := f.svc.GuestStatus(f.ctx, "g1")
	require.NoError(t, err)
	assert.Equal(t, Unmatched, placement.Status)

	admin := f.notifications(t, store.NotificationFilter{Template: domain.TemplateDeclinedAdmin})
	require.Len(t, admin, 1)
	assert.Equal(t, "organizers@dinner.example", admin[0].To)
}

func TestScenarioA_RequestPolicyReservesOnSend(t *testing.T) {
	f := setup(t, requestPolicy())
	f.seed(t,
		[]domain.Guest{testutil.Guest("g1", testutil.PartyOf(2))},
		[]domain.Host{testutil.Host("h1", testutil.Seats(4))},
	)

	m := f.generateOne(t)
	assert.Equal(t, 4, f.remaining(t, "h1"), "proposals hold nothing under the request policy")
	f.assertInvariants(t)

	_, err := f.svc.SendRequest(f.ctx, m.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, f.remaining(t, "h1"))
	f.assertInvariants(t)

	_, err = f.svc.Respond(f.ctx, f.linkToken(t, domain.TemplateMatchRequest, m.ID), "decline")
	require.NoError(t, err)
	assert.Equal(t, 4, f.remaining(t, "h1"))
	f.assertInvariants(t)
}

func TestRequestPolicy_RegenerationSeesRequestedSeats(t *testing.T) {
	f := setup(t, requestPolicy())
	f.seed(t,
		[]domain.Guest{testutil.Guest("g1", testutil.PartyOf(2)), testutil.Guest("g2", testutil.PartyOf(2))},
		[]domain.Host{testutil.Host("h1", testutil.Seats(3))},
	)

	res, err := f.svc.GenerateMatches(f.ctx, GenerateOptions{})
	require.NoError(t, err)
	require.Len(t, res.Created, 1, "a single run never over-proposes a host")

	_, err = f.svc.SendRequest(f.ctx, res.Created[0].ID)
	require.NoError(t, err)

	// A second run sees one seat left, too few for g2.
	again, err := f.svc.GenerateMatches(f.ctx, GenerateOptions{})
	require.NoError(t, err)
	assert.Empty(t, again.Created)
	assert.Equal(t, []string{"g2"}, again.Unmatched)
	f.assertInvariants(t)
}

func TestGenerate_SkipsHostThatDeclined(t *testing.T) {
	f := setup(t)
	f.seed(t, []domain.Guest{testutil.Guest("g1")}, []domain.Host{testutil.Host("h1"), testutil.Host("h2")})
	m := f.generateOne(t)
	require.Equal(t, "h1", m.HostID)
	_, err := f.svc.SendRequest(f.ctx, m.ID)
	require.NoError(t, err)
	_, err = f.svc.Respond(f.ctx, f.linkToken(t, domain.TemplateMatchRequest, m.ID), "decline")
	require.NoError(t, err)

	again := f.generateOne(t)
	assert.Equal(t, "h2", again.HostID)
	assert.NotContains(t, again.Alternatives, "h1")

	// Once h2 declines too there is nobody left to ask.
	_, err = f.svc.SendRequest(f.ctx, again.ID)
	require.NoError(t, err)
	_, err = f.svc.Respond(f.ctx, f.linkToken(t, domain.TemplateMatchRequest, again.ID), "decline")
	require.NoError(t, err)

	res, err := f.svc.GenerateMatches(f.ctx, GenerateOptions{})
	require.NoError(t, err)
	assert.Empty(t, res.Created)
	assert.Equal(t, []string{"g1"}, res.Unmatched)
	f.assertInvariants(t)
}

func TestRequestPolicy_SendRequestChecksCapacity(t *testing.T) {
	f := setup(t, requestPolicy())
	f.seed(t,
		[]domain.Guest{testutil.Guest("g1", testutil.PartyOf(2)), testutil.Guest("g2", testutil.PartyOf(2))},
		[]domain.Host{testutil.Host("h1", testutil.Seats(2)), testutil.Host("h2", testutil.Seats(2))},
	)
	res, err := f.svc.GenerateMatches(f.ctx, GenerateOptions{})
	require.NoError(t, err)
	require.Len(t, res.Created, 2)

	// Proposals hold nothing, so both can point at h1.
	_, err = f.svc.Edit(f.ctx, res.Created[1].ID, "h1")
	require.NoError(t, err)

	_, err = f.svc.SendRequest(f.ctx, res.Created[0].ID)
	require.NoError(t, err)
	_, err = f.svc.SendRequest(f.ctx, res.Created[1].ID)
	require.Error(t, err)
	assert.True(t, domain.IsCapacityConflict(err), "got %v", err)

	m, err := f.svc.GetMatch(f.ctx, res.Created[1].ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusProposed, m.Status)
	assert.Equal(t, 0, f.remaining(t, "h1"))
	f.assertInvariants(t)
}

func TestScenarioB_StrictKosherGuestUnmatched(t *testing.T) {
	f := setup(t)
	f.seed(t,
		[]domain.Guest{testutil.Guest("g1", testutil.Requires(domain.RequirementFullKosherOnly))},
		[]domain.Host{testutil.Host("h1", testutil.Kitchen(domain.KosherMixed))},
	)

	res, err := f.svc.GenerateMatches(f.ctx, GenerateOptions{})
	require.NoError(t, err)
	assert.Empty(t, res.Created)
	assert.Equal(t, []string{"g1"}, res.Unmatched)

	matches, err := f.svc.ListMatches(f.ctx, store.MatchFilter{})
	require.NoError(t, err)
	assert.Empty(t, matches)

	dash, err := f.svc.Dashboard(f.ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"g1"}, dash.UnmatchedStrictKosher)
}

func TestScenarioC_ReassignRespectsCapacity(t *testing.T) {
	f := setup(t)
	f.seed(t,
		[]domain.Guest{testutil.Guest("g1", testutil.PartyOf(2))},
		[]domain.Host{testutil.Host("hA", testutil.Seats(4))},
	)
	m := f.generateOne(t)
	require.Equal(t, "hA", m.HostID)
	_, err := f.svc.SendRequest(f.ctx, m.ID)
	require.NoError(t, err)
	oldLink := f.linkToken(t, domain.TemplateMatchRequest, m.ID)

	f.seed(t, nil, []domain.Host{
		testutil.Host("hB", testutil.Seats(1)),
		testutil.Host("hC", testutil.Seats(4)),
	})

	_, err = f.svc.Edit(f.ctx, m.ID, "hB")
	require.Error(t, err)
	assert.True(t, domain.IsCapacityConflict(err), "got %v", err)
	assert.Equal(t, 2, f.remaining(t, "hA"), "failed reassignment leaves the old reservation")
	assert.Equal(t, 1, f.remaining(t, "hB"))
	f.assertInvariants(t)

	res, err := f.svc.Edit(f.ctx, m.ID, "hC")
	require.NoError(t, err)
	assert.Equal(t, "hC", res.Match.HostID)
	assert.Equal(t, domain.StatusRequested, res.Match.Status, "reassignment keeps the status")
	assert.NotEmpty(t, res.Match.WhyItsAFit)
	assert.Equal(t, 4, f.remaining(t, "hA"))
	assert.Equal(t, 2, f.remaining(t, "hC"))
	f.assertInvariants(t)

	// The old host's link is retired and replays the reassignment.
	stale, err := f.svc.Respond(f.ctx, oldLink, "accept")
	require.NoError(t, err)
	assert.True(t, stale.Replay)
	assert.Equal(t, "already_reassigned", stale.Outcome)
	assert.Equal(t, domain.StatusRequested, stale.Status)

	withdrawn := f.notifications(t, store.NotificationFilter{Template: domain.TemplateReassignedOldHost})
	require.Len(t, withdrawn, 1)
	assert.Equal(t, "hA@hosts.example", withdrawn[0].To)

	newLink := f.linkToken(t, domain.TemplateMatchRequest, m.ID)
	assert.NotEqual(t, oldLink, newLink)
	resp, err := f.svc.Respond(f.ctx, newLink, "accept")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusAccepted, resp.Status)
	f.assertInvariants(t)
}

func TestEdit_SameHostIsNoOp(t *testing.T) {
	f := setup(t)
	f.seed(t, []domain.Guest{testutil.Guest("g1")}, []domain.Host{testutil.Host("h1")})
	m := f.generateOne(t)

	res, err := f.svc.Edit(f.ctx, m.ID, "h1")
	require.NoError(t, err)
	assert.Equal(t, "h1", res.Match.HostID)
	assert.True(t, m.UpdatedAt.Equal(res.Match.UpdatedAt))
	assert.Equal(t, 3, f.remaining(t, "h1"))
}

func TestEdit_EveryWithdrawalNotifiesOldHost(t *testing.T) {
	f := setup(t)
	f.seed(t, []domain.Guest{testutil.Guest("g1")}, []domain.Host{testutil.Host("h1"), testutil.Host("h2")})
	m := f.generateOne(t)
	require.Equal(t, "h1", m.HostID)
	_, err := f.svc.SendRequest(f.ctx, m.ID)
	require.NoError(t, err)

	// The clock stands still, so only the retired link tells the notices apart.
	for _, to := range []string{"h2", "h1", "h2"} {
		_, err := f.svc.Edit(f.ctx, m.ID, to)
		require.NoError(t, err)
	}

	toH1 := f.notifications(t, store.NotificationFilter{Template: domain.TemplateReassignedOldHost, HostID: "h1"})
	assert.Len(t, toH1, 2)
	toH2 := f.notifications(t, store.NotificationFilter{Template: domain.TemplateReassignedOldHost, HostID: "h2"})
	assert.Len(t, toH2, 1)
	f.assertInvariants(t)
}

func TestEdit_RejectsLaterStatusesAndUnknownHost(t *testing.T) {
	f := setup(t)
	f.seed(t, []domain.Guest{testutil.Guest("g1")}, []domain.Host{testutil.Host("h1"), testutil.Host("h2")})
	m := f.generateOne(t)

	_, err := f.svc.Edit(f.ctx, m.ID, "nobody")
	assert.True(t, domain.IsNotFound(err))

	f.confirmed(t, m.ID)
	_, err = f.svc.Edit(f.ctx, m.ID, "h2")
	require.Error(t, err)
	assert.True(t, domain.IsStateTransition(err))
	var derr *domain.Error
	require.ErrorAs(t, err, &derr)
	assert.Equal(t, domain.StatusConfirmed, derr.Current)
}

func TestScenarioD_ConcurrentResponses(t *testing.T) {
	f := setup(t)
	f.seed(t, []domain.Guest{testutil.Guest("g1", testutil.PartyOf(2))}, []domain.Host{testutil.Host("h1")})
	m := f.generateOne(t)
	_, err := f.svc.SendRequest(f.ctx, m.ID)
	require.NoError(t, err)
	link := f.linkToken(t, domain.TemplateMatchRequest, m.ID)

	actions := []string{"accept", "decline"}
	results := make([]Response, len(actions))
	errs := make([]error, len(actions))
	var (
		wg    sync.WaitGroup
		start = make(chan struct{})
	)
	for i, action := range actions {
		wg.Add(1)
		go func(i int, action string) {
			defer wg.Done()
			<-start
			results[i], errs[i] = f.svc.Respond(f.ctx, link, action)
		}(i, action)
	}
	close(start)
	wg.Wait()

	require.NoError(t, errs[0])
	require.NoError(t, errs[1])

	var first, second Response
	switch {
	case !results[0].Replay && results[1].Replay:
		first, second = results[0], results[1]
	case results[0].Replay && !results[1].Replay:
		first, second = results[1], results[0]
	default:
		t.Fatalf("expected exactly one applied response, got %+v", results)
	}
	assert.Equal(t, "already_"+first.Outcome, second.Outcome)
	assert.Equal(t, first.Status, second.Status)

	got, err := f.svc.GetMatch(f.ctx, m.ID)
	require.NoError(t, err)
	assert.Equal(t, first.Status, got.Status)

	if first.Status == domain.StatusDeclined {
		assert.Equal(t, 4, f.remaining(t, "h1"))
	} else {
		assert.Equal(t, 2, f.remaining(t, "h1"))
	}
	f.assertInvariants(t)

	activity, err := f.store.ListActivity(f.ctx, m.ID, 0)
	require.NoError(t, err)
	responses := 0
	for _, a := range activity {
		if a.Type == domain.ActivityMatchAccepted || a.Type == domain.ActivityMatchDeclined {
			responses++
		}
	}
	assert.Equal(t, 1, responses)
}

func TestRespond_SecondClickReplays(t *testing.T) {
	f := setup(t)
	f.seed(t, []domain.Guest{testutil.Guest("g1")}, []domain.Host{testutil.Host("h1")})
	m := f.generateOne(t)
	_, err := f.svc.SendRequest(f.ctx, m.ID)
	require.NoError(t, err)
	link := f.linkToken(t, domain.TemplateMatchRequest, m.ID)

	first, err := f.svc.Respond(f.ctx, link, "accept")
	require.NoError(t, err)
	assert.Equal(t, "accepted", first.Outcome)
	assert.False(t, first.Replay)
	remaining := f.remaining(t, "h1")

	second, err := f.svc.Respond(f.ctx, link, "accept")
	require.NoError(t, err)
	assert.Equal(t, "already_accepted", second.Outcome)
	assert.True(t, second.Replay)
	assert.Equal(t, first.Status, second.Status)
	assert.Equal(t, remaining, f.remaining(t, "h1"))

	awaiting := f.notifications(t, store.NotificationFilter{Template: domain.TemplateAwaitingFinalize})
	assert.Len(t, awaiting, 1, "a replay queues nothing")
	f.assertInvariants(t)
}

func TestRespond_InvalidInput(t *testing.T) {
	f := setup(t)
	f.seed(t, []domain.Guest{testutil.Guest("g1")}, []domain.Host{testutil.Host("h1")})
	m := f.generateOne(t)
	f.confirmed(t, m.ID)
	_, err := f.svc.SendReminder(f.ctx, m.ID)
	require.NoError(t, err)
	reminder := f.linkToken(t, domain.TemplateReminderGuest, m.ID)

	_, err = f.svc.Respond(f.ctx, "not-a-token", "accept")
	assert.True(t, domain.IsNotFound(err))

	_, err = f.svc.Respond(f.ctx, reminder, "accept")
	assert.True(t, domain.IsValidation(err), "wrong purpose must be rejected, got %v", err)

	_, err = f.svc.Respond(f.ctx, reminder, "maybe")
	assert.True(t, domain.IsValidation(err))
}

func TestRespond_ExpiredTokenDeclines(t *testing.T) {
	f := setup(t)
	f.seed(t, []domain.Guest{testutil.Guest("g1", testutil.PartyOf(2))}, []domain.Host{testutil.Host("h1")})
	m := f.generateOne(t)
	_, err := f.svc.SendRequest(f.ctx, m.ID)
	require.NoError(t, err)
	link := f.linkToken(t, domain.TemplateMatchRequest, m.ID)

	f.clock.Advance(7*24*time.Hour + time.Second)

	resp, err := f.svc.Respond(f.ctx, link, "accept")
	require.Error(t, err)
	assert.True(t, domain.IsTokenExpired(err))
	assert.Equal(t, domain.StatusDeclined, resp.Status)
	assert.Equal(t, 4, f.remaining(t, "h1"))
	f.assertInvariants(t)

	again, err := f.svc.Respond(f.ctx, link, "accept")
	require.NoError(t, err)
	assert.Equal(t, "already_expired", again.Outcome)

	placement, err := f.svc.GuestStatus(f.ctx, "g1")
	require.NoError(t, err)
	assert.Equal(t, Unmatched, placement.Status)
}

func TestSweepExpired(t *testing.T) {
	f := setup(t)
	f.seed(t,
		[]domain.Guest{testutil.Guest("g1"), testutil.Guest("g2")},
		[]domain.Host{testutil.Host("h1", testutil.Seats(1)), testutil.Host("h2", testutil.Seats(1))},
	)
	res, err := f.svc.GenerateMatches(f.ctx, GenerateOptions{})
	require.NoError(t, err)
	require.Len(t, res.Created, 2)

	_, err = f.svc.SendRequest(f.ctx, res.Created[0].ID)
	require.NoError(t, err)
	f.clock.Advance(24 * time.Hour)
	_, err = f.svc.SendRequest(f.ctx, res.Created[1].ID)
	require.NoError(t, err)

	f.clock.Advance(6*24*time.Hour + time.Minute)
	sweep, err := f.svc.SweepExpired(f.ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{res.Created[0].ID}, sweep.Declined)
	f.assertInvariants(t)

	again, err := f.svc.SweepExpired(f.ctx)
	require.NoError(t, err)
	assert.Empty(t, again.Declined)

	m, err := f.svc.GetMatch(f.ctx, res.Created[1].ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusRequested, m.Status)

	// The declined guest is eligible again.
	regen, err := f.svc.GenerateMatches(f.ctx, GenerateOptions{})
	require.NoError(t, err)
	require.Len(t, regen.Created, 1)
	assert.Equal(t, res.Created[0].GuestID, regen.Created[0].GuestID)
	f.assertInvariants(t)
}

func TestFinalizeAndAttendance(t *testing.T) {
	f := setup(t)
	f.seed(t, []domain.Guest{testutil.Guest("g1")}, []domain.Host{testutil.Host("h1")})
	m := f.generateOne(t)

	_, err := f.svc.Finalize(f.ctx, m.ID)
	assert.True(t, domain.IsStateTransition(err), "only accepted matches finalize")

	_, err = f.svc.SendReminder(f.ctx, m.ID)
	assert.True(t, domain.IsStateTransition(err))

	f.confirmed(t, m.ID)
	got, err := f.svc.GetMatch(f.ctx, m.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusConfirmed, got.Status)
	require.NotNil(t, got.FinalizedAt)

	contact := f.notifications(t, store.NotificationFilter{MatchID: m.ID})
	var templates []domain.Template
	for _, n := range contact {
		templates = append(templates, n.Template)
	}
	assert.Contains(t, templates, domain.TemplateConfirmedGuest)
	assert.Contains(t, templates, domain.TemplateConfirmedHost)

	_, err = f.svc.SendReminder(f.ctx, m.ID)
	require.NoError(t, err)
	link := f.linkToken(t, domain.TemplateReminderGuest, m.ID)

	att, err := f.svc.ConfirmAttendance(f.ctx, link)
	require.NoError(t, err)
	assert.Equal(t, "Host h1", att.HostName)
	assert.Equal(t, "1 h1 Street", att.HostAddress)
	assert.Equal(t, "555-0199", att.HostPhone)
	assert.Equal(t, "confirmed", att.Outcome)

	replay, err := f.svc.ConfirmAttendance(f.ctx, link)
	require.NoError(t, err)
	assert.Equal(t, "already_confirmed", replay.Outcome)
	assert.Equal(t, att.HostAddress, replay.HostAddress)

	got, err = f.svc.GetMatch(f.ctx, m.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusConfirmed, got.Status, "attendance never changes status")
	require.NotNil(t, got.AttendanceConfirmedAt)
	f.assertInvariants(t)
}

func TestConfirmAttendance_Expired(t *testing.T) {
	f := setup(t)
	f.seed(t, []domain.Guest{testutil.Guest("g1")}, []domain.Host{testutil.Host("h1")})
	m := f.generateOne(t)
	f.confirmed(t, m.ID)
	_, err := f.svc.SendReminder(f.ctx, m.ID)
	require.NoError(t, err)

	f.clock.Advance(24 * time.Hour)
	_, err = f.svc.ConfirmAttendance(f.ctx, f.linkToken(t, domain.TemplateReminderGuest, m.ID))
	assert.True(t, domain.IsTokenExpired(err))

	got, err := f.svc.GetMatch(f.ctx, m.ID)
	require.NoError(t, err)
	assert.Nil(t, got.AttendanceConfirmedAt)
}

func TestDelete(t *testing.T) {
	f := setup(t)
	f.seed(t,
		[]domain.Guest{testutil.Guest("g1", testutil.PartyOf(2)), testutil.Guest("g2")},
		[]domain.Host{testutil.Host("h1", testutil.Seats(4))},
	)
	res, err := f.svc.GenerateMatches(f.ctx, GenerateOptions{})
	require.NoError(t, err)
	require.Len(t, res.Created, 2)
	assert.Equal(t, 1, f.remaining(t, "h1"))

	_, err = f.svc.Delete(f.ctx, res.Created[0].ID)
	require.NoError(t, err)
	assert.Equal(t, 3, f.remaining(t, "h1"))
	_, err = f.svc.GetMatch(f.ctx, res.Created[0].ID)
	assert.True(t, domain.IsNotFound(err))
	f.assertInvariants(t)

	_, err = f.svc.SendRequest(f.ctx, res.Created[1].ID)
	require.NoError(t, err)
	_, err = f.svc.Delete(f.ctx, res.Created[1].ID)
	require.Error(t, err)
	var derr *domain.Error
	require.ErrorAs(t, err, &derr)
	assert.Equal(t, domain.CodeStateTransition, derr.Code)
	assert.Equal(t, domain.StatusRequested, derr.Current)
	f.assertInvariants(t)
}

func TestSendRequest_Twice(t *testing.T) {
	f := setup(t)
	f.seed(t, []domain.Guest{testutil.Guest("g1")}, []domain.Host{testutil.Host("h1")})
	m := f.generateOne(t)

	_, err := f.svc.SendRequest(f.ctx, m.ID)
	require.NoError(t, err)
	_, err = f.svc.SendRequest(f.ctx, m.ID)
	assert.True(t, domain.IsStateTransition(err))

	requests := f.notifications(t, store.NotificationFilter{Template: domain.TemplateMatchRequest})
	assert.Len(t, requests, 1)
	f.assertInvariants(t)
}

func TestSendRequest_EnqueueFailureKeepsTransition(t *testing.T) {
	f := setup(t)
	noEmail := testutil.Host("h1")
	noEmail.Email = ""
	f.seed(t, []domain.Guest{testutil.Guest("g1")}, []domain.Host{noEmail})
	m := f.generateOne(t)

	res, err := f.svc.SendRequest(f.ctx, m.ID)
	require.NoError(t, err)
	require.Len(t, res.Warnings, 1)
	assert.Contains(t, res.Warnings[0], string(domain.TemplateMatchRequest))

	got, err := f.svc.GetMatch(f.ctx, m.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusRequested, got.Status)
	assert.Empty(t, f.notifications(t, store.NotificationFilter{}))

	activity, err := f.store.ListActivity(f.ctx, m.ID, 0)
	require.NoError(t, err)
	require.Len(t, activity, 2)
	assert.Equal(t, domain.ActivityNotifyFailed, activity[0].Type)
	assert.Equal(t, string(domain.TemplateMatchRequest), activity[0].Details["template"])
	assert.Equal(t, domain.ActivityRequestSent, activity[1].Type)
	f.assertInvariants(t)
}

func TestRespond_UnqueuedAdminNoticeReachesOrganizers(t *testing.T) {
	f := setup(t, WithAdminEmail(""))
	f.seed(t, []domain.Guest{testutil.Guest("g1")}, []domain.Host{testutil.Host("h1")})
	m := f.generateOne(t)
	_, err := f.svc.SendRequest(f.ctx, m.ID)
	require.NoError(t, err)

	resp, err := f.svc.Respond(f.ctx, f.linkToken(t, domain.TemplateMatchRequest, m.ID), "accept")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusAccepted, resp.Status)
	require.Len(t, resp.Warnings, 1)

	activity, err := f.store.ListActivity(f.ctx, m.ID, 0)
	require.NoError(t, err)
	var failed []domain.Activity
	for _, a := range activity {
		if a.Type == domain.ActivityNotifyFailed {
			failed = append(failed, a)
		}
	}
	require.Len(t, failed, 1)
	assert.Equal(t, string(domain.TemplateAwaitingFinalize), failed[0].Details["template"])
	assert.Equal(t, domain.ActorSystem, failed[0].Actor)

	dash, err := f.svc.Dashboard(f.ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, dash.UnqueuedNotifications)
	f.assertInvariants(t)
}

func TestNoShowReport(t *testing.T) {
	f := setup(t)
	f.seed(t,
		[]domain.Guest{testutil.Guest("g1"), testutil.Guest("g2"), testutil.Guest("g3")},
		[]domain.Host{testutil.Host("h1", testutil.Seats(2)), testutil.Host("h2", testutil.Seats(1))},
	)
	res, err := f.svc.GenerateMatches(f.ctx, GenerateOptions{})
	require.NoError(t, err)
	require.Len(t, res.Created, 3)

	byHost := map[string][]domain.Match{}
	for _, m := range res.Created {
		f.confirmed(t, m.ID)
		byHost[m.HostID] = append(byHost[m.HostID], m)
	}
	require.Len(t, byHost["h1"], 2)
	require.Len(t, byHost["h2"], 1)

	// Only guests who confirmed attendance appear on the form.
	for _, m := range byHost["h1"] {
		_, err := f.svc.SendReminder(f.ctx, m.ID)
		require.NoError(t, err)
		_, err = f.svc.ConfirmAttendance(f.ctx, f.linkToken(t, domain.TemplateReminderGuest, m.ID))
		require.NoError(t, err)
	}

	_, err = f.svc.SendNoShowRequest(f.ctx, "nobody")
	assert.True(t, domain.IsNotFound(err))

	sent, err := f.svc.SendNoShowRequest(f.ctx, "h1")
	require.NoError(t, err)
	assert.Equal(t, 2, sent.Guests)
	link := f.linkToken(t, domain.TemplateNoShowRequest, "h1")

	form, err := f.svc.GetNoShowForm(f.ctx, link)
	require.NoError(t, err)
	assert.Equal(t, "Host h1", form.HostName)
	assert.False(t, form.Submitted)
	require.Len(t, form.Guests, 2)

	absent := form.Guests[0]
	foreign := byHost["h2"][0].ID
	report, err := f.svc.SubmitNoShowReport(f.ctx, link, []string{absent.MatchID, foreign, "m-404", absent.MatchID})
	require.NoError(t, err)
	assert.Equal(t, 1, report.Reported)
	assert.ElementsMatch(t, []string{foreign, "m-404"}, report.Skipped)

	g, err := f.store.GetGuest(f.ctx, absent.GuestID)
	require.NoError(t, err)
	assert.Equal(t, 1, g.NoShowCount)

	m, err := f.svc.GetMatch(f.ctx, absent.MatchID)
	require.NoError(t, err)
	assert.True(t, m.NoShow)
	assert.Equal(t, domain.StatusConfirmed, m.Status, "a no-show does not revert status")

	replay, err := f.svc.SubmitNoShowReport(f.ctx, link, []string{form.Guests[1].MatchID})
	require.NoError(t, err)
	assert.True(t, replay.Replay)
	assert.Equal(t, 1, replay.Reported)

	g, err = f.store.GetGuest(f.ctx, absent.GuestID)
	require.NoError(t, err)
	assert.Equal(t, 1, g.NoShowCount, "replay never increments")
	other, err := f.store.GetGuest(f.ctx, form.Guests[1].GuestID)
	require.NoError(t, err)
	assert.Equal(t, 0, other.NoShowCount)

	after, err := f.svc.GetNoShowForm(f.ctx, link)
	require.NoError(t, err)
	assert.True(t, after.Submitted)
	assert.Equal(t, 1, after.Reported)

	// A fresh request no longer lists the reported guest.
	_, err = f.svc.SendNoShowRequest(f.ctx, "h1")
	require.NoError(t, err)
	fresh, err := f.svc.GetNoShowForm(f.ctx, f.linkToken(t, domain.TemplateNoShowRequest, "h1"))
	require.NoError(t, err)
	require.Len(t, fresh.Guests, 1)
	assert.Equal(t, form.Guests[1].MatchID, fresh.Guests[0].MatchID)
	f.assertInvariants(t)
}

func TestHostSummary(t *testing.T) {
	f := setup(t)
	f.seed(t, []domain.Guest{testutil.Guest("g1", testutil.PartyOf(2))}, []domain.Host{testutil.Host("h1")})

	_, err := f.svc.SendHostSummary(f.ctx, "h1")
	assert.True(t, domain.IsValidation(err), "no confirmed guests yet")

	m := f.generateOne(t)
	f.confirmed(t, m.ID)

	res, err := f.svc.SendHostSummary(f.ctx, "h1")
	require.NoError(t, err)
	assert.Equal(t, 1, res.Guests)
	_, err = f.svc.SendHostSummary(f.ctx, "h1")
	require.NoError(t, err)

	summaries := f.notifications(t, store.NotificationFilter{Template: domain.TemplateSummaryHost})
	require.Len(t, summaries, 1, "one summary per host per day")
	assert.Equal(t, "2", summaries[0].Data["total_seats"])
	assert.Contains(t, summaries[0].Data["guest_list"], "Guest g1 (party of 2")
}

func TestGenerate_RegenerateReplacesProposals(t *testing.T) {
	f := setup(t)
	f.seed(t,
		[]domain.Guest{testutil.Guest("g1"), testutil.Guest("g2", testutil.PartyOf(2))},
		[]domain.Host{testutil.Host("h1"), testutil.Host("h2")},
	)
	first, err := f.svc.GenerateMatches(f.ctx, GenerateOptions{})
	require.NoError(t, err)
	require.Len(t, first.Created, 2)

	_, err = f.svc.SendRequest(f.ctx, first.Created[0].ID)
	require.NoError(t, err)

	again, err := f.svc.GenerateMatches(f.ctx, GenerateOptions{})
	require.NoError(t, err)
	assert.Empty(t, again.Created, "placed guests are never re-proposed")

	regen, err := f.svc.GenerateMatches(f.ctx, GenerateOptions{Regenerate: true})
	require.NoError(t, err)
	assert.Equal(t, 1, regen.Removed)
	require.Len(t, regen.Created, 1)
	assert.Equal(t, first.Created[1].GuestID, regen.Created[0].GuestID)
	assert.Equal(t, first.Created[1].HostID, regen.Created[0].HostID)
	assert.Equal(t, first.Created[1].Score, regen.Created[0].Score)
	f.assertInvariants(t)
}

func TestGenerate_Deterministic(t *testing.T) {
	guests := []domain.Guest{
		testutil.Guest("g1", testutil.PartyOf(2), testutil.GuestVibe(5, 5, 5)),
		testutil.Guest("g2", testutil.Speaks("English", "Hebrew")),
		testutil.Guest("g3", testutil.LivesIn(scoring.Chelsea, 25)),
		testutil.Guest("g4", testutil.GuestVibe(1, 1, 1)),
	}
	hosts := []domain.Host{
		testutil.Host("h1", testutil.Seats(2), testutil.HostVibe(5, 5, 5)),
		testutil.Host("h2", testutil.HostSpeaks("Hebrew", "English")),
		testutil.Host("h3", testutil.HostIn(scoring.MidtownWest), testutil.HostVibe(1, 2, 1)),
	}

	type pair struct {
		guest, host string
		score       float64
	}
	run := func() []pair {
		f := setup(t)
		f.seed(t, guests, hosts)
		res, err := f.svc.GenerateMatches(f.ctx, GenerateOptions{})
		require.NoError(t, err)
		f.assertInvariants(t)
		var out []pair
		for _, m := range res.Created {
			out = append(out, pair{m.GuestID, m.HostID, m.Score})
		}
		return out
	}

	first := run()
	require.NotEmpty(t, first)
	assert.Equal(t, first, run())
}

func TestGenerate_SkipsFlaggedGuests(t *testing.T) {
	f := setup(t)
	f.seed(t,
		[]domain.Guest{testutil.Guest("g1", testutil.Flagged(2)), testutil.Guest("g2", testutil.Flagged(1))},
		[]domain.Host{testutil.Host("h1")},
	)
	res, err := f.svc.GenerateMatches(f.ctx, GenerateOptions{})
	require.NoError(t, err)
	require.Len(t, res.Created, 1)
	assert.Equal(t, "g2", res.Created[0].GuestID)
	assert.Equal(t, []string{"g1"}, res.Unmatched)
	assert.Equal(t, 1, res.Stats.Skipped)
}

func TestFlagGuest_LeavesNoShowCount(t *testing.T) {
	f := setup(t)
	f.seed(t, []domain.Guest{testutil.Guest("g1")}, nil)

	g, err := f.svc.FlagGuest(f.ctx, "g1", "")
	require.NoError(t, err)
	assert.True(t, g.IsFlagged)
	assert.Equal(t, 0, g.NoShowCount)

	// Flagging twice still never counts as a no-show.
	g, err = f.svc.FlagGuest(f.ctx, "g1", "rude to host")
	require.NoError(t, err)
	assert.Equal(t, 0, g.NoShowCount)

	stored, err := f.store.GetGuest(f.ctx, "g1")
	require.NoError(t, err)
	assert.True(t, stored.IsFlagged)
	assert.Equal(t, 0, stored.NoShowCount)

	log, err := f.store.ListActivity(f.ctx, "g1", 0)
	require.NoError(t, err)
	require.Len(t, log, 2)
	assert.Equal(t, domain.ActivityGuestFlagged, log[0].Type)
	assert.Equal(t, domain.ActorAdmin, log[0].Actor)
	assert.Equal(t, "Manual flag by admin", log[0].Details["reason"])
	assert.Equal(t, "rude to host", log[1].Details["reason"])

	_, err = f.svc.FlagGuest(f.ctx, "ghost", "")
	assert.True(t, domain.IsNotFound(err), "got %v", err)
}

func TestDashboard(t *testing.T) {
	f := setup(t)
	f.seed(t,
		[]domain.Guest{testutil.Guest("g1"), testutil.Guest("g2"), testutil.Guest("g3", testutil.PartyOf(2))},
		[]domain.Host{testutil.Host("h1", testutil.Seats(2)), testutil.Host("h2", testutil.Seats(2))},
	)
	res, err := f.svc.GenerateMatches(f.ctx, GenerateOptions{})
	require.NoError(t, err)
	require.Len(t, res.Created, 2)
	f.confirmed(t, res.Created[0].ID)
	_, err = f.svc.SendRequest(f.ctx, res.Created[1].ID)
	require.NoError(t, err)

	d, err := f.svc.Dashboard(f.ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, d.TotalGuests)
	assert.Equal(t, 2, d.TotalHosts)
	assert.Equal(t, 2, d.GuestsPlaced)
	assert.Equal(t, 1, d.PendingDecisions)
	assert.Equal(t, 1, d.Confirmed)
	assert.Equal(t, 4, d.TotalSeats)
	assert.Equal(t, 2, d.RemainingSeats)
	assert.Len(t, d.HostsWithRoom, 2)
	assert.Empty(t, d.UnmatchedStrictKosher)
}

func TestGuestStatus(t *testing.T) {
	f := setup(t)
	f.seed(t, []domain.Guest{testutil.Guest("g1")}, []domain.Host{testutil.Host("h1")})

	_, err := f.svc.GuestStatus(f.ctx, "ghost")
	assert.True(t, domain.IsNotFound(err))

	m := f.generateOne(t)
	p, err := f.svc.GuestStatus(f.ctx, "g1")
	require.NoError(t, err)
	assert.Equal(t, string(domain.StatusProposed), p.Status)
	assert.Equal(t, m.ID, p.MatchID)
}

func TestVerifyAndRepairCapacity(t *testing.T) {
	f := setup(t)
	f.seed(t, []domain.Guest{testutil.Guest("g1", testutil.PartyOf(2))}, []domain.Host{testutil.Host("h1")})
	f.generateOne(t)

	require.NoError(t, f.store.SetCommitted(f.ctx, "h1", 0))
	drifts, err := f.svc.VerifyCapacity(f.ctx)
	require.NoError(t, err)
	require.Len(t, drifts, 1)
	assert.Equal(t, 0, drifts[0].Counter)
	assert.Equal(t, 2, drifts[0].Recomputed)

	repaired, err := f.svc.RepairCapacity(f.ctx)
	require.NoError(t, err)
	assert.Len(t, repaired, 1)
	f.assertInvariants(t)
}
