// Package redis mirrors room membership into Redis so it can be observed
// from outside the signaling process.
package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Presence keeps one set per room (<prefix>room:<id>:peers) plus an index
// set of room ids (<prefix>rooms). Room sets expire after ttl so a crashed
// process does not leave members behind forever.
type Presence struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// NewPresence returns a presence mirror writing through client.
func NewPresence(client *redis.Client, prefix string, ttl time.Duration) *Presence {
	return &Presence{client: client, prefix: prefix, ttl: ttl}
}

func (p *Presence) roomKey(roomID string) string {
	return p.prefix + "room:" + roomID + ":peers"
}

func (p *Presence) indexKey() string {
	return p.prefix + "rooms"
}

// Joined adds clientID to the room's set and refreshes its TTL.
func (p *Presence) Joined(ctx context.Context, roomID, clientID string) error {
	key := p.roomKey(roomID)

	pipe := p.client.TxPipeline()
	pipe.SAdd(ctx, key, clientID)
	if p.ttl > 0 {
		pipe.Expire(ctx, key, p.ttl)
	}
	pipe.SAdd(ctx, p.indexKey(), roomID)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("record join of %s to %s: %w", clientID, roomID, err)
	}
	return nil
}

// leaveScript removes a member from a room set and, in the same atomic step,
// drops the room from the index once the set is empty.
//
// KEYS[1] room set, KEYS[2] index set; ARGV[1] client id, ARGV[2] room id.
var leaveScript = redis.NewScript(`
redis.call("SREM", KEYS[1], ARGV[1])
if redis.call("SCARD", KEYS[1]) == 0 then
	redis.call("SREM", KEYS[2], ARGV[2])
	return 1
end
return 0
`)

// Left removes clientID from each room and drops rooms that became empty.
func (p *Presence) Left(ctx context.Context, clientID string, roomIDs []string) error {
	if len(roomIDs) == 0 {
		return nil
	}

	pipe := p.client.Pipeline()
	for _, roomID := range roomIDs {
		leaveScript.Eval(ctx, pipe, []string{p.roomKey(roomID), p.indexKey()}, clientID, roomID)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("record leave of %s: %w", clientID, err)
	}
	return nil
}

// Members returns the mirrored membership of a room.
func (p *Presence) Members(ctx context.Context, roomID string) ([]string, error) {
	return p.client.SMembers(ctx, p.roomKey(roomID)).Result()
}

// Reset deletes every key this mirror owns. It is called at startup because
// rooms never outlive the process that hosted them.
func (p *Presence) Reset(ctx context.Context) error {
	rooms, err := p.client.SMembers(ctx, p.indexKey()).Result()
	if err != nil {
		return fmt.Errorf("list mirrored rooms: %w", err)
	}

	keys := make([]string, 0, len(rooms)+1)
	for _, roomID := range rooms {
		keys = append(keys, p.roomKey(roomID))
	}
	keys = append(keys, p.indexKey())

	if err := p.client.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("clear mirrored rooms: %w", err)
	}
	return nil
}
