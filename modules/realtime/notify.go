package realtime

import (
	"context"

	domain "github.com/example/chat-backend/domain/room"
	"github.com/go-monolith/mono/pkg/types"
	"golang.org/x/sync/errgroup"
)

// maxFanOut bounds concurrent per-user deliveries of one notification.
const maxFanOut = 16

// Notifier pushes membership changes to the live connections of the users
// they affect. Delivery is best-effort: offline users get nothing and failed
// sends are logged, never retried.
type Notifier struct {
	registry *Registry
	groups   *Groups
	logger   types.Logger
}

// NewNotifier creates a Notifier.
func NewNotifier(registry *Registry, groups *Groups, logger types.Logger) *Notifier {
	return &Notifier{registry: registry, groups: groups, logger: logger}
}

// MembersAdded sends newRoom to every connection of each added user.
func (n *Notifier) MembersAdded(ctx context.Context, r *domain.Room, added []string) int {
	if r == nil {
		return 0
	}
	return n.fanOut(ctx, added, EventNewRoom, NewRoomData{Room: r})
}

// MemberRemoved sends roomDeleted to the removed user and unsubscribes their
// connections from the room group.
func (n *Notifier) MemberRemoved(ctx context.Context, roomID, userID string) int {
	n.groups.RemoveUser(roomID, userID)
	return n.fanOut(ctx, []string{userID}, EventRoomDeleted, RoomDeletedData{RoomID: roomID})
}

// RoomDeleted sends roomDeleted to every member and to any other connection
// still subscribed to the room, then drops the group.
func (n *Notifier) RoomDeleted(ctx context.Context, roomID string, members []string) int {
	subscribers := n.groups.Drop(roomID)
	delivered := n.fanOut(ctx, members, EventRoomDeleted, RoomDeletedData{RoomID: roomID})

	memberSet := make(map[string]struct{}, len(members))
	for _, id := range members {
		memberSet[id] = struct{}{}
	}
	frame, err := EncodeFrame(EventRoomDeleted, RoomDeletedData{RoomID: roomID})
	if err != nil {
		n.logger.Error("Failed to encode notification", "event", EventRoomDeleted, "error", err)
		return delivered
	}
	for _, c := range subscribers {
		if _, isMember := memberSet[c.UserID()]; isMember {
			continue
		}
		if err := c.write(frame); err == nil {
			delivered++
		}
	}
	return delivered
}

// fanOut delivers one event to all connections of the given users and
// returns the number of successful writes.
func (n *Notifier) fanOut(ctx context.Context, userIDs []string, event string, data any) int {
	frame, err := EncodeFrame(event, data)
	if err != nil {
		n.logger.Error("Failed to encode notification", "event", event, "error", err)
		return 0
	}

	results := make([]int, len(userIDs))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(maxFanOut)
	for i, userID := range userIDs {
		g.Go(func() error {
			for _, c := range n.registry.ConnectionsFor(userID) {
				if ctx.Err() != nil {
					return nil
				}
				if err := c.write(frame); err != nil {
					n.logger.Debug("Notification delivery failed",
						"event", event,
						"userID", userID,
						"connID", c.ID(),
						"error", err)
					continue
				}
				results[i]++
			}
			return nil
		})
	}
	_ = g.Wait()

	delivered := 0
	for _, count := range results {
		delivered += count
	}
	return delivered
}
