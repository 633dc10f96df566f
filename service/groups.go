package service

import (
	"context"
	"strings"

	"github.com/freewilll/splitledger/database"
	"github.com/freewilll/splitledger/ledger"
	"github.com/sirupsen/logrus"
)

// CreateGroup creates a group with createdBy and members in it. Members other
// than the creator are notified.
func (s *Service) CreateGroup(ctx context.Context, name string, createdBy int, members []int) (database.Group, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return database.Group{}, invalid("name", "is required")
	}

	all := []int{createdBy}
	seen := map[int]bool{createdBy: true}
	for _, id := range members {
		if !seen[id] {
			seen[id] = true
			all = append(all, id)
		}
	}

	var id ledger.Group
	err := s.inTx(ctx, func(tx database.Tx) (err error) {
		if err := checkUsers(ctx, tx, all...); err != nil {
			return err
		}
		if id, err = tx.CreateGroup(ctx, name, createdBy); err != nil {
			return err
		}
		for _, userID := range all {
			if err := s.addMember(ctx, tx, id, createdBy, userID); err != nil {
				return err
			}
		}
		return tx.AddActivity(ctx, database.Activity{
			UserID:     createdBy,
			Action:     database.ActionCreate,
			TargetType: "group",
			TargetID:   int(id),
			Group:      id,
		})
	})
	if err != nil {
		return database.Group{}, err
	}

	s.log.WithFields(logrus.Fields{"func": "CreateGroup", "group_id": id, "created_by": createdBy}).Info("Group created")

	g, err := s.db.GetGroup(ctx, id)
	return g, notFound(err, "group", int(id))
}

// addMember adds userID to group g on behalf of actorID
func (s *Service) addMember(ctx context.Context, tx database.Tx, g ledger.Group, actorID, userID int) error {
	if err := tx.AddGroupMember(ctx, g, userID); err != nil {
		return err
	}
	if userID == actorID {
		return nil
	}
	return tx.AddNotification(ctx, database.Notification{
		UserID:    userID,
		ActorID:   actorID,
		Kind:      database.NotifyAddedToGroup,
		RelatedID: int(g),
	})
}

// AddGroupMember adds userID to group g. actorID must already be a member.
// Adding an existing member does nothing.
func (s *Service) AddGroupMember(ctx context.Context, g ledger.Group, actorID, userID int) error {
	return s.inTx(ctx, func(tx database.Tx) error {
		group, err := tx.GetGroup(ctx, g)
		if err != nil {
			return notFound(err, "group", int(g))
		}
		if !isMember(group, actorID) {
			return &NotFoundError{Kind: "group", ID: int(g)}
		}
		if isMember(group, userID) {
			return nil
		}
		if err := checkUsers(ctx, tx, userID); err != nil {
			return err
		}
		return s.addMember(ctx, tx, g, actorID, userID)
	})
}

// RenameGroup renames group g. actorID must be a member.
func (s *Service) RenameGroup(ctx context.Context, g ledger.Group, actorID int, name string) (database.Group, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return database.Group{}, invalid("name", "is required")
	}

	err := s.inTx(ctx, func(tx database.Tx) error {
		group, err := tx.GetGroup(ctx, g)
		if err != nil {
			return notFound(err, "group", int(g))
		}
		if !isMember(group, actorID) {
			return &NotFoundError{Kind: "group", ID: int(g)}
		}
		if err := tx.RenameGroup(ctx, g, name); err != nil {
			return notFound(err, "group", int(g))
		}
		return tx.AddActivity(ctx, database.Activity{
			UserID:     actorID,
			Action:     database.ActionUpdate,
			TargetType: "group",
			TargetID:   int(g),
			Group:      g,
		})
	})
	if err != nil {
		return database.Group{}, err
	}

	s.log.WithFields(logrus.Fields{"func": "RenameGroup", "group_id": g, "actor_id": actorID}).Info("Group renamed")
	return s.GetGroup(ctx, g, actorID)
}

// GetGroup returns group g if viewerID is a member
func (s *Service) GetGroup(ctx context.Context, g ledger.Group, viewerID int) (database.Group, error) {
	group, err := s.db.GetGroup(ctx, g)
	if err != nil {
		return database.Group{}, notFound(err, "group", int(g))
	}
	if !isMember(group, viewerID) {
		return database.Group{}, &NotFoundError{Kind: "group", ID: int(g)}
	}
	return group, nil
}

// GroupsFor returns the groups userID is a member of
func (s *Service) GroupsFor(ctx context.Context, userID int) ([]database.Group, error) {
	groups, err := s.db.GetGroups(ctx, userID)
	return groups, storeError(err)
}

func isMember(g database.Group, userID int) bool {
	for _, id := range g.Members {
		if id == userID {
			return true
		}
	}
	return false
}
