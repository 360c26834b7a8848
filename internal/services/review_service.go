package services

import (
	"context"
	"fmt"
	"sort"
)

// ReviewStore abstracts persistence operations required by ReviewService.
type ReviewStore interface {
	CommitteeMembers(ctx context.Context) ([]CommitteeMember, error)
	AddCommitteeMember(ctx context.Context, m *CommitteeMember) (*CommitteeMember, error)
	IncrementCommitteeCount(ctx context.Context, memberID int64) error
	GetUser(ctx context.Context, id int64) (*User, error)
}

// ReviewService manages the review committee and picks the next reviewer.
type ReviewService struct {
	store ReviewStore
}

func NewReviewService(store ReviewStore) *ReviewService {
	return &ReviewService{store: store}
}

// NextFreeReviewer returns the committee member with the smallest review
// count; members sharing the minimum are tie-broken by highest id. An empty
// committee returns nil without error — callers treat that as a deployment
// configuration problem, not a request failure.
func (s *ReviewService) NextFreeReviewer(ctx context.Context) (*CommitteeMember, error) {
	members, err := s.store.CommitteeMembers(ctx)
	if err != nil {
		return nil, err
	}
	if len(members) == 0 {
		return nil, nil
	}
	sort.Slice(members, func(i, j int) bool {
		if members[i].Count != members[j].Count {
			return members[i].Count < members[j].Count
		}
		return members[i].ID > members[j].ID
	})
	m := members[0]
	return &m, nil
}

// AddMember adds a user to the committee with a zero review count.
func (s *ReviewService) AddMember(ctx context.Context, userID int64) (*CommitteeMember, error) {
	user, err := s.store.GetUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, NewInvalidError(fmt.Sprintf("user %d does not exist", userID))
	}
	members, err := s.store.CommitteeMembers(ctx)
	if err != nil {
		return nil, err
	}
	for _, m := range members {
		if m.UserID == userID {
			return nil, NewConflictError(fmt.Sprintf("user %d is already on the committee", userID))
		}
	}
	return s.store.AddCommitteeMember(ctx, &CommitteeMember{UserID: userID})
}

// ListMembers returns the whole committee.
func (s *ReviewService) ListMembers(ctx context.Context) ([]CommitteeMember, error) {
	return s.store.CommitteeMembers(ctx)
}

// RecordAssignment bumps the member's review count after a reviewer
// assignment.
func (s *ReviewService) RecordAssignment(ctx context.Context, memberID int64) error {
	return s.store.IncrementCommitteeCount(ctx, memberID)
}
