package workflow

import (
	"errors"
	"testing"
)

func TestNext(t *testing.T) {
	cases := []struct {
		from    Status
		event   Event
		want    Status
		wantErr error
	}{
		{StatusPrivate, EventSubmitForReview, StatusPending, nil},
		{StatusPending, EventSubmitForReview, "", ErrInvalidTransition},
		{StatusApproved, EventSubmitForReview, "", ErrInvalidTransition},
		{StatusPending, EventApprove, StatusApproved, nil},
		{StatusPrivate, EventApprove, "", ErrInvalidTransition},
		{StatusRejected, EventApprove, "", ErrInvalidTransition},
		{StatusPending, EventReject, StatusRejected, nil},
		{StatusApproved, EventReject, "", ErrInvalidTransition},
		{StatusPrivate, EventPublish, StatusApproved, nil},
		{StatusRejected, EventPublish, StatusApproved, nil},
		{StatusApproved, EventPublish, "", ErrAlreadyPublished},
		{StatusPending, EventPublish, "", ErrInvalidTransition},
		{StatusApproved, EventUnpublish, StatusPrivate, nil},
		{StatusPrivate, EventUnpublish, "", ErrAlreadyUnpublished},
		{StatusPending, EventUnpublish, "", ErrAlreadyUnpublished},
		{StatusPrivate, Event("bogus"), "", ErrInvalidTransition},
	}
	for _, tc := range cases {
		got, err := Next(tc.from, tc.event)
		if tc.wantErr != nil {
			if !errors.Is(err, tc.wantErr) {
				t.Errorf("Next(%s, %s): expected %v, got %v", tc.from, tc.event, tc.wantErr, err)
			}
			continue
		}
		if err != nil {
			t.Errorf("Next(%s, %s): unexpected error %v", tc.from, tc.event, err)
			continue
		}
		if got != tc.want {
			t.Errorf("Next(%s, %s): expected %s, got %s", tc.from, tc.event, tc.want, got)
		}
	}
}

func TestRequiresStatusCapability(t *testing.T) {
	if RequiresStatusCapability(EventSubmitForReview) {
		t.Error("submitting for review must not require the capability")
	}
	for _, event := range []Event{EventApprove, EventReject, EventPublish, EventUnpublish} {
		if !RequiresStatusCapability(event) {
			t.Errorf("%s must require the capability", event)
		}
	}
}

func TestCanEdit(t *testing.T) {
	cases := []struct {
		name       string
		status     Status
		isCreator  bool
		isElevated bool
		want       bool
	}{
		{"creator edits private", StatusPrivate, true, false, true},
		{"stranger cannot edit private", StatusPrivate, false, false, false},
		{"nobody edits pending", StatusPending, true, true, false},
		{"creator edits rejected", StatusRejected, true, false, true},
		{"creator cannot edit own approved", StatusApproved, true, false, false},
		{"elevated edits approved", StatusApproved, false, true, true},
		{"elevated cannot edit foreign private", StatusPrivate, false, true, false},
	}
	for _, tc := range cases {
		if got := CanEdit(tc.status, tc.isCreator, tc.isElevated); got != tc.want {
			t.Errorf("%s: expected %v, got %v", tc.name, tc.want, got)
		}
	}
}
